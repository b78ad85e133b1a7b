// Package store defines the storage contract the queue engine depends on
// and its PostgreSQL and in-memory implementations.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"jobscout/pipeline-service/internal/model"
)

// ErrNotFound is returned when an item or config document does not exist.
var ErrNotFound = errors.New("not found")

// TerminalFields carries the diagnostics written alongside a terminal
// status transition.
type TerminalFields struct {
	ResultMessage string
	ErrorDetails  string
}

// Store is the persistence contract consumed by the dispatcher, lineage
// guard and retry scheduler. All status transitions are conditioned on
// the caller's expected current status so that concurrent dispatchers
// cannot double-apply them.
type Store interface {
	// Get returns the item with the given id, or ErrNotFound.
	Get(ctx context.Context, id string) (*model.QueueItem, error)

	// GetMany returns the items for the given ids. Missing ids are
	// silently omitted (ancestry lookups tolerate pruned history).
	GetMany(ctx context.Context, ids []string) ([]*model.QueueItem, error)

	// Insert stores a new item.
	Insert(ctx context.Context, item *model.QueueItem) error

	// ClaimPending atomically moves one due pending item to processing
	// and returns it. Returns nil, nil when the queue is idle.
	ClaimPending(ctx context.Context) (*model.QueueItem, error)

	// UpdateStatus transitions an item from expected to next, writing the
	// given diagnostics. Returns false when the item's current status no
	// longer matches expected (lost race — the caller must not assume the
	// transition happened).
	UpdateStatus(ctx context.Context, id string, expected, next model.Status, fields TerminalFields) (bool, error)

	// Requeue returns a processing item to pending for a retry attempt:
	// retry count is set, the item becomes claimable after delay, and the
	// error is recorded. Conditioned on the item still being processing.
	Requeue(ctx context.Context, id string, retryCount int, delay time.Duration, errMsg string) (bool, error)

	// RequeueStale returns items stuck in processing for longer than
	// olderThan back to pending. Crash recovery — in-process timeouts are
	// handled by the dispatcher itself.
	RequeueStale(ctx context.Context, olderThan time.Duration) (int, error)

	// QueryLineage returns items in the given lineage matching url, type
	// and any of the given statuses.
	QueryLineage(ctx context.Context, trackingID, url string, t model.ItemType, statuses []model.Status) ([]*model.QueueItem, error)

	// PendingCount returns the number of claimable items.
	PendingCount(ctx context.Context) (int, error)

	// ConfigDocument returns the raw JSON of a versioned configuration
	// document ("job-filters", "technology-ranks") and its last-updated
	// stamp, or ErrNotFound.
	ConfigDocument(ctx context.Context, key string) (json.RawMessage, time.Time, error)

	// InsertMatch records an admitted job candidate.
	InsertMatch(ctx context.Context, m *model.JobMatch) error
}
