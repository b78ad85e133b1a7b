// Package lineage owns spawn admission and queue item construction.
//
// Every item carries an append-only ancestry chain and a depth counter,
// so loop prevention needs no graph traversal: the chain is a simple
// path, and the checks below are lookups against it and against the
// shared lineage key (tracking_id, url, type).
package lineage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"jobscout/pipeline-service/internal/model"
	"jobscout/pipeline-service/internal/store"
)

// Guard decides whether a spawn request is permitted. All checks are
// reads; the caller inserts the child only after an allow verdict. The
// check-then-insert pair is intentionally not transactional — a
// duplicate slipping through the window is redundant work, not a
// correctness failure, and is bounded by the depth ceiling.
type Guard struct {
	store store.Store
}

// NewGuard returns a Guard backed by the given store.
func NewGuard(st store.Store) *Guard {
	return &Guard{store: st}
}

var inFlight = []model.Status{model.StatusPending, model.StatusProcessing}

// CanSpawn evaluates the admission checks in order; the first failing
// check wins. A false verdict is advisory — it never fails the spawning
// item's own processing. The error return is for storage failures only.
func (g *Guard) CanSpawn(ctx context.Context, current *model.QueueItem, req model.SpawnRequest) (bool, string, error) {
	// 1. Depth ceiling.
	if current.SpawnDepth >= current.MaxSpawnDepth {
		return false, fmt.Sprintf("spawn depth limit reached (%d/%d)",
			current.SpawnDepth, current.MaxSpawnDepth), nil
	}

	// 2. Circularity: the requested URL must not already appear anywhere
	// in the ancestry, regardless of item type. The chain ends with the
	// spawning item itself, so self-respawns are caught here too.
	ancestors, err := g.store.GetMany(ctx, current.AncestryChain)
	if err != nil {
		return false, "", fmt.Errorf("load ancestry: %w", err)
	}
	for _, a := range ancestors {
		if a.URL != "" && a.URL == req.URL {
			return false, fmt.Sprintf("circular spawn: url already in ancestry (item %s)", a.ID), nil
		}
	}

	// 3. Duplicate in flight within the same lineage.
	dupes, err := g.store.QueryLineage(ctx, current.TrackingID, req.URL, req.Type, inFlight)
	if err != nil {
		return false, "", fmt.Errorf("duplicate check: %w", err)
	}
	if len(dupes) > 0 {
		return false, fmt.Sprintf("duplicate already in flight (item %s)", dupes[0].ID), nil
	}

	// 4. Already succeeded within the same lineage.
	done, err := g.store.QueryLineage(ctx, current.TrackingID, req.URL, req.Type,
		[]model.Status{model.StatusSuccess})
	if err != nil {
		return false, "", fmt.Errorf("already-succeeded check: %w", err)
	}
	if len(done) > 0 {
		return false, fmt.Sprintf("already succeeded earlier in lineage (item %s)", done[0].ID), nil
	}

	return true, "", nil
}

// NewChild constructs the approved child item for a spawn request. The
// tracking id is copied unchanged, the ancestry chain is extended with
// the child's own id, and the depth increases by exactly one.
func NewChild(current *model.QueueItem, req model.SpawnRequest) *model.QueueItem {
	now := time.Now().UTC()
	id := uuid.NewString()

	chain := make([]string, 0, len(current.AncestryChain)+1)
	chain = append(chain, current.AncestryChain...)
	chain = append(chain, id)

	return &model.QueueItem{
		ID:            id,
		Type:          req.Type,
		Status:        model.StatusPending,
		URL:           req.URL,
		CompanyName:   req.CompanyName,
		TrackingID:    current.TrackingID,
		AncestryChain: chain,
		SpawnDepth:    current.SpawnDepth + 1,
		MaxSpawnDepth: current.MaxSpawnDepth,
		ParentItemID:  current.ID,
		MaxRetries:    current.MaxRetries,
		Payload:       req.Payload,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// RootOptions configures a new lineage root.
type RootOptions struct {
	Type          model.ItemType
	URL           string
	CompanyName   string
	Payload       []byte
	MaxSpawnDepth int
	MaxRetries    int
}

// NewRoot constructs a lineage root: depth zero, a fresh tracking id, and
// an ancestry chain holding only the root's own id.
func NewRoot(opts RootOptions) *model.QueueItem {
	now := time.Now().UTC()
	id := uuid.NewString()

	return &model.QueueItem{
		ID:            id,
		Type:          opts.Type,
		Status:        model.StatusPending,
		URL:           opts.URL,
		CompanyName:   opts.CompanyName,
		TrackingID:    uuid.NewString(),
		AncestryChain: []string{id},
		SpawnDepth:    0,
		MaxSpawnDepth: opts.MaxSpawnDepth,
		MaxRetries:    opts.MaxRetries,
		Payload:       opts.Payload,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}
