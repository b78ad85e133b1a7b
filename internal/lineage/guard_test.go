package lineage_test

import (
	"context"
	"testing"

	"jobscout/pipeline-service/internal/lineage"
	"jobscout/pipeline-service/internal/model"
	"jobscout/pipeline-service/internal/store"
)

func newRoot(t *testing.T, st *store.MemoryStore, itemType model.ItemType, url string, maxDepth int) *model.QueueItem {
	t.Helper()
	item := lineage.NewRoot(lineage.RootOptions{
		Type:          itemType,
		URL:           url,
		MaxSpawnDepth: maxDepth,
		MaxRetries:    3,
	})
	if err := st.Insert(context.Background(), item); err != nil {
		t.Fatalf("insert root: %v", err)
	}
	return item
}

func spawnChild(t *testing.T, st *store.MemoryStore, g *lineage.Guard, parent *model.QueueItem, req model.SpawnRequest) *model.QueueItem {
	t.Helper()
	allow, reason, err := g.CanSpawn(context.Background(), parent, req)
	if err != nil {
		t.Fatalf("CanSpawn error: %v", err)
	}
	if !allow {
		t.Fatalf("CanSpawn denied unexpectedly: %s", reason)
	}
	child := lineage.NewChild(parent, req)
	if err := st.Insert(context.Background(), child); err != nil {
		t.Fatalf("insert child: %v", err)
	}
	return child
}

// ── Child construction invariants ──────────────────────────────────────────

func TestNewChild_LineageInvariants(t *testing.T) {
	st := store.NewMemory()
	g := lineage.NewGuard(st)

	root := newRoot(t, st, model.TypeScrape, "https://example.com/feed", 10)
	if root.SpawnDepth != 0 {
		t.Errorf("root spawn depth = %d, want 0", root.SpawnDepth)
	}
	if len(root.AncestryChain) != 1 || root.AncestryChain[0] != root.ID {
		t.Errorf("root ancestry chain = %v, want [%s]", root.AncestryChain, root.ID)
	}

	child := spawnChild(t, st, g, root, model.SpawnRequest{
		URL: "https://example.com/job/1", Type: model.TypeJob,
	})

	if child.TrackingID != root.TrackingID {
		t.Errorf("child tracking id = %s, want %s", child.TrackingID, root.TrackingID)
	}
	if child.SpawnDepth != root.SpawnDepth+1 {
		t.Errorf("child spawn depth = %d, want %d", child.SpawnDepth, root.SpawnDepth+1)
	}
	if child.ParentItemID != root.ID {
		t.Errorf("child parent id = %s, want %s", child.ParentItemID, root.ID)
	}
	if len(child.AncestryChain) != child.SpawnDepth+1 {
		t.Errorf("len(ancestry chain) = %d, want %d", len(child.AncestryChain), child.SpawnDepth+1)
	}
	if child.AncestryChain[0] != root.ID {
		t.Errorf("chain[0] = %s, want root id %s", child.AncestryChain[0], root.ID)
	}
	if child.AncestryChain[len(child.AncestryChain)-1] != child.ID {
		t.Errorf("chain tail = %s, want own id %s",
			child.AncestryChain[len(child.AncestryChain)-1], child.ID)
	}
}

func TestNewChild_NoDuplicateIDsInChain(t *testing.T) {
	st := store.NewMemory()
	g := lineage.NewGuard(st)

	item := newRoot(t, st, model.TypeScrape, "https://example.com/feed", 10)
	for i := 0; i < 5; i++ {
		item = spawnChild(t, st, g, item, model.SpawnRequest{
			URL:  "https://example.com/job/" + string(rune('a'+i)),
			Type: model.TypeJob,
		})
	}

	seen := make(map[string]bool)
	for _, id := range item.AncestryChain {
		if seen[id] {
			t.Fatalf("duplicate id %s in ancestry chain %v", id, item.AncestryChain)
		}
		seen[id] = true
	}
}

// ── Depth ceiling ──────────────────────────────────────────────────────────

func TestCanSpawn_DepthCeiling(t *testing.T) {
	st := store.NewMemory()
	g := lineage.NewGuard(st)
	ctx := context.Background()

	// Root at depth 0 with ceiling 2: spawns succeed at depth 1 and 2,
	// and the depth-2 item may not spawn further.
	root := newRoot(t, st, model.TypeScrape, "https://example.com/feed", 2)
	depth1 := spawnChild(t, st, g, root, model.SpawnRequest{
		URL: "https://example.com/job/1", Type: model.TypeJob,
	})
	depth2 := spawnChild(t, st, g, depth1, model.SpawnRequest{
		URL: "company:acme", Type: model.TypeCompany,
	})

	allow, reason, err := g.CanSpawn(ctx, depth2, model.SpawnRequest{
		URL: "https://acme.example.com/careers", Type: model.TypeSourceDiscovery,
	})
	if err != nil {
		t.Fatalf("CanSpawn error: %v", err)
	}
	if allow {
		t.Fatal("spawn at max depth should be denied")
	}
	if reason == "" {
		t.Error("depth denial should carry a reason")
	}
}

func TestCanSpawn_AtCeilingAlwaysDenied(t *testing.T) {
	st := store.NewMemory()
	g := lineage.NewGuard(st)

	root := newRoot(t, st, model.TypeScrape, "https://example.com/feed", 0)
	allow, _, err := g.CanSpawn(context.Background(), root, model.SpawnRequest{
		URL: "https://example.com/job/1", Type: model.TypeJob,
	})
	if err != nil {
		t.Fatalf("CanSpawn error: %v", err)
	}
	if allow {
		t.Error("spawn_depth == max_spawn_depth must always deny")
	}
}

// ── Circularity ────────────────────────────────────────────────────────────

func TestCanSpawn_CircularURLBlocked(t *testing.T) {
	st := store.NewMemory()
	g := lineage.NewGuard(st)

	root := newRoot(t, st, model.TypeScrape, "https://example.com/feed", 10)
	child := spawnChild(t, st, g, root, model.SpawnRequest{
		URL: "https://example.com/job/1", Type: model.TypeJob,
	})

	// Ancestor URL, even under a different item type, must be denied.
	for _, reqType := range []model.ItemType{model.TypeScrape, model.TypeJob, model.TypeCompany} {
		allow, _, err := g.CanSpawn(context.Background(), child, model.SpawnRequest{
			URL: "https://example.com/feed", Type: reqType,
		})
		if err != nil {
			t.Fatalf("CanSpawn error: %v", err)
		}
		if allow {
			t.Errorf("circular URL should be denied regardless of type (type %s)", reqType)
		}
	}
}

func TestCanSpawn_OwnURLBlocked(t *testing.T) {
	st := store.NewMemory()
	g := lineage.NewGuard(st)

	root := newRoot(t, st, model.TypeScrape, "https://example.com/feed", 10)
	allow, _, err := g.CanSpawn(context.Background(), root, model.SpawnRequest{
		URL: "https://example.com/feed", Type: model.TypeScrape,
	})
	if err != nil {
		t.Fatalf("CanSpawn error: %v", err)
	}
	if allow {
		t.Error("item respawning its own URL should be denied")
	}
}

// ── Duplicate suppression ──────────────────────────────────────────────────

func TestCanSpawn_DuplicateInFlight(t *testing.T) {
	st := store.NewMemory()
	g := lineage.NewGuard(st)

	root := newRoot(t, st, model.TypeScrape, "https://example.com/feed", 10)
	spawnChild(t, st, g, root, model.SpawnRequest{
		URL: "https://example.com/job/1", Type: model.TypeJob,
	})

	// Same (url, type) still pending in the same lineage.
	allow, reason, err := g.CanSpawn(context.Background(), root, model.SpawnRequest{
		URL: "https://example.com/job/1", Type: model.TypeJob,
	})
	if err != nil {
		t.Fatalf("CanSpawn error: %v", err)
	}
	if allow {
		t.Error("duplicate in-flight spawn should be denied")
	}
	if reason == "" {
		t.Error("duplicate denial should carry a reason")
	}
}

func TestCanSpawn_DifferentTypeSameURLAllowed(t *testing.T) {
	st := store.NewMemory()
	g := lineage.NewGuard(st)

	root := newRoot(t, st, model.TypeScrape, "https://example.com/feed", 10)
	spawnChild(t, st, g, root, model.SpawnRequest{
		URL: "https://example.com/job/1", Type: model.TypeJob,
	})

	// Same URL under a different type is not a duplicate — only the
	// circularity check looks at URL alone, and that only covers ancestors.
	allow, reason, err := g.CanSpawn(context.Background(), root, model.SpawnRequest{
		URL: "https://example.com/job/1", Type: model.TypeCompany,
	})
	if err != nil {
		t.Fatalf("CanSpawn error: %v", err)
	}
	if !allow {
		t.Errorf("same URL different type should be allowed, denied: %s", reason)
	}
}

func TestCanSpawn_AlreadySucceeded(t *testing.T) {
	st := store.NewMemory()
	g := lineage.NewGuard(st)
	ctx := context.Background()

	root := newRoot(t, st, model.TypeScrape, "https://example.com/feed", 10)
	child := spawnChild(t, st, g, root, model.SpawnRequest{
		URL: "https://example.com/job/1", Type: model.TypeJob,
	})

	// Drive the child to terminal success.
	if _, err := st.ClaimPending(ctx); err != nil {
		t.Fatalf("claim root: %v", err)
	}
	if _, err := st.ClaimPending(ctx); err != nil {
		t.Fatalf("claim child: %v", err)
	}
	if ok, err := st.UpdateStatus(ctx, child.ID, model.StatusProcessing, model.StatusSuccess, store.TerminalFields{}); err != nil || !ok {
		t.Fatalf("mark child success: ok=%v err=%v", ok, err)
	}

	allow, reason, err := g.CanSpawn(ctx, root, model.SpawnRequest{
		URL: "https://example.com/job/1", Type: model.TypeJob,
	})
	if err != nil {
		t.Fatalf("CanSpawn error: %v", err)
	}
	if allow {
		t.Error("spawn of already-succeeded (url, type) should be denied")
	}
	if reason == "" {
		t.Error("already-succeeded denial should carry a reason")
	}
}

func TestCanSpawn_FailedItemMayBeRespawned(t *testing.T) {
	st := store.NewMemory()
	g := lineage.NewGuard(st)
	ctx := context.Background()

	root := newRoot(t, st, model.TypeScrape, "https://example.com/feed", 10)
	child := spawnChild(t, st, g, root, model.SpawnRequest{
		URL: "https://example.com/job/1", Type: model.TypeJob,
	})

	if _, err := st.ClaimPending(ctx); err != nil {
		t.Fatalf("claim root: %v", err)
	}
	if _, err := st.ClaimPending(ctx); err != nil {
		t.Fatalf("claim child: %v", err)
	}
	if ok, err := st.UpdateStatus(ctx, child.ID, model.StatusProcessing, model.StatusFailed, store.TerminalFields{}); err != nil || !ok {
		t.Fatalf("mark child failed: ok=%v err=%v", ok, err)
	}

	// Terminal failure does not block a fresh attempt: neither the
	// in-flight nor the already-succeeded check matches.
	allow, reason, err := g.CanSpawn(ctx, root, model.SpawnRequest{
		URL: "https://example.com/job/1", Type: model.TypeJob,
	})
	if err != nil {
		t.Fatalf("CanSpawn error: %v", err)
	}
	if !allow {
		t.Errorf("failed (url, type) should be respawnable, denied: %s", reason)
	}
}
