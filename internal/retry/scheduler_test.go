package retry_test

import (
	"context"
	"testing"
	"time"

	"jobscout/pipeline-service/internal/lineage"
	"jobscout/pipeline-service/internal/model"
	"jobscout/pipeline-service/internal/retry"
	"jobscout/pipeline-service/internal/store"
)

// ── Retry exhaustion ───────────────────────────────────────────────────────

func TestShouldRetry_ExhaustedRetries(t *testing.T) {
	st := store.NewMemory()
	s := retry.NewScheduler(st)

	item := lineage.NewRoot(lineage.RootOptions{
		Type: model.TypeScrape, URL: "https://example.com/feed",
		MaxSpawnDepth: 10, MaxRetries: 3,
	})
	item.RetryCount = 3

	dec, err := s.ShouldRetry(context.Background(), item, "connection refused")
	if err != nil {
		t.Fatalf("ShouldRetry error: %v", err)
	}
	if dec.Retry {
		t.Error("exhausted item should not be retried")
	}
	if dec.Reason == "" {
		t.Error("exhaustion decision should carry a reason")
	}
}

func TestShouldRetry_UnderLimit(t *testing.T) {
	st := store.NewMemory()
	s := retry.NewScheduler(st)

	item := lineage.NewRoot(lineage.RootOptions{
		Type: model.TypeScrape, URL: "https://example.com/feed",
		MaxSpawnDepth: 10, MaxRetries: 3,
	})
	item.RetryCount = 1

	dec, err := s.ShouldRetry(context.Background(), item, "connection refused")
	if err != nil {
		t.Fatalf("ShouldRetry error: %v", err)
	}
	if !dec.Retry {
		t.Errorf("item under retry limit should be retried, got reason %q", dec.Reason)
	}
	if dec.Delay <= 0 {
		t.Errorf("retry delay should be positive, got %s", dec.Delay)
	}
}

// ── Ancestor repeat suppression ────────────────────────────────────────────

// buildFailedAncestorLineage inserts a root that failed with the given
// error and returns a child sharing the root's (url, type).
func buildFailedAncestorLineage(t *testing.T, st *store.MemoryStore, ancestorErr string) *model.QueueItem {
	t.Helper()
	ctx := context.Background()

	root := lineage.NewRoot(lineage.RootOptions{
		Type: model.TypeScrape, URL: "https://example.com/feed",
		MaxSpawnDepth: 10, MaxRetries: 3,
	})
	root.Status = model.StatusFailed
	root.ErrorDetails = ancestorErr
	if err := st.Insert(ctx, root); err != nil {
		t.Fatalf("insert root: %v", err)
	}

	child := lineage.NewChild(root, model.SpawnRequest{
		URL: "https://example.com/feed", Type: model.TypeScrape,
	})
	if err := st.Insert(ctx, child); err != nil {
		t.Fatalf("insert child: %v", err)
	}
	return child
}

func TestShouldRetry_AncestorIdenticalError(t *testing.T) {
	st := store.NewMemory()
	s := retry.NewScheduler(st)

	child := buildFailedAncestorLineage(t, st, "board API returned 403")

	// retry_count is well under the limit, yet the identical ancestor
	// failure must suppress the retry.
	dec, err := s.ShouldRetry(context.Background(), child, "board API returned 403")
	if err != nil {
		t.Fatalf("ShouldRetry error: %v", err)
	}
	if dec.Retry {
		t.Error("identical ancestor error should suppress retry")
	}
	if dec.Reason == "" {
		t.Error("ancestor-repeat decision should carry a reason")
	}
}

func TestShouldRetry_AncestorRepeatReasonDistinctFromExhaustion(t *testing.T) {
	st := store.NewMemory()
	s := retry.NewScheduler(st)
	ctx := context.Background()

	child := buildFailedAncestorLineage(t, st, "board API returned 403")
	repeat, err := s.ShouldRetry(ctx, child, "board API returned 403")
	if err != nil {
		t.Fatalf("ShouldRetry error: %v", err)
	}

	exhausted := lineage.NewRoot(lineage.RootOptions{
		Type: model.TypeScrape, URL: "https://other.example.com",
		MaxSpawnDepth: 10, MaxRetries: 3,
	})
	exhausted.RetryCount = 3
	limit, err := s.ShouldRetry(ctx, exhausted, "board API returned 403")
	if err != nil {
		t.Fatalf("ShouldRetry error: %v", err)
	}

	if repeat.Reason == limit.Reason {
		t.Errorf("ancestor-repeat and exhaustion must be distinguishable, both %q", repeat.Reason)
	}
}

func TestShouldRetry_AncestorDifferentError(t *testing.T) {
	st := store.NewMemory()
	s := retry.NewScheduler(st)

	child := buildFailedAncestorLineage(t, st, "board API returned 403")

	// Comparison is exact-match: a different error string retries.
	dec, err := s.ShouldRetry(context.Background(), child, "connection reset by peer")
	if err != nil {
		t.Fatalf("ShouldRetry error: %v", err)
	}
	if !dec.Retry {
		t.Errorf("different error string should still retry, got reason %q", dec.Reason)
	}
}

func TestShouldRetry_AncestorDifferentURL(t *testing.T) {
	st := store.NewMemory()
	s := retry.NewScheduler(st)
	ctx := context.Background()

	root := lineage.NewRoot(lineage.RootOptions{
		Type: model.TypeScrape, URL: "https://example.com/feed",
		MaxSpawnDepth: 10, MaxRetries: 3,
	})
	root.Status = model.StatusFailed
	root.ErrorDetails = "board API returned 403"
	if err := st.Insert(ctx, root); err != nil {
		t.Fatalf("insert root: %v", err)
	}
	child := lineage.NewChild(root, model.SpawnRequest{
		URL: "https://example.com/job/1", Type: model.TypeJob,
	})
	if err := st.Insert(ctx, child); err != nil {
		t.Fatalf("insert child: %v", err)
	}

	// Same error text but a different (url, type) key — not a repeat.
	dec, err := s.ShouldRetry(ctx, child, "board API returned 403")
	if err != nil {
		t.Fatalf("ShouldRetry error: %v", err)
	}
	if !dec.Retry {
		t.Errorf("different (url, type) should still retry, got reason %q", dec.Reason)
	}
}

// ── Backoff ────────────────────────────────────────────────────────────────

func TestBackoff_ExponentialWithinJitterBounds(t *testing.T) {
	for attempt := 0; attempt <= 5; attempt++ {
		base := time.Duration(1<<attempt) * time.Second
		lo, hi := base*3/4, base*5/4
		for i := 0; i < 50; i++ {
			d := retry.Backoff(attempt)
			if d < lo || d > hi {
				t.Fatalf("Backoff(%d) = %s, want within [%s, %s]", attempt, d, lo, hi)
			}
		}
	}
}

func TestBackoff_Capped(t *testing.T) {
	// Large attempt counts must neither overflow nor exceed the cap
	// plus its jitter margin.
	limit := 15 * time.Minute * 5 / 4
	for _, attempt := range []int{20, 30, 1000} {
		if d := retry.Backoff(attempt); d <= 0 || d > limit {
			t.Errorf("Backoff(%d) = %s, want within (0, %s]", attempt, d, limit)
		}
	}
}
