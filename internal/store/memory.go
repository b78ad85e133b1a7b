package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"jobscout/pipeline-service/internal/model"
)

// MemoryStore is a mutex-guarded in-memory Store. It backs the engine
// tests and local (no-database) runs, and mirrors the PostgreSQL store's
// semantics exactly, including status-conditioned update failures and
// backoff scheduling.
type MemoryStore struct {
	mu      sync.Mutex
	items   map[string]*memoryItem
	order   []string // insertion order, breaks created_at ties in claims
	configs map[string]configDoc
	matches []*model.JobMatch
}

type memoryItem struct {
	item        model.QueueItem
	scheduledAt time.Time
}

type configDoc struct {
	doc     json.RawMessage
	updated time.Time
}

// NewMemory returns an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		items:   make(map[string]*memoryItem),
		configs: make(map[string]configDoc),
	}
}

func cloneItem(it *model.QueueItem) *model.QueueItem {
	cp := *it
	cp.AncestryChain = append([]string(nil), it.AncestryChain...)
	cp.Payload = append(json.RawMessage(nil), it.Payload...)
	if it.ProcessedAt != nil {
		t := *it.ProcessedAt
		cp.ProcessedAt = &t
	}
	if it.CompletedAt != nil {
		t := *it.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

func (s *MemoryStore) Get(_ context.Context, id string) (*model.QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneItem(&rec.item), nil
}

func (s *MemoryStore) GetMany(_ context.Context, ids []string) ([]*model.QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.QueueItem
	for _, id := range ids {
		if rec, ok := s.items[id]; ok {
			out = append(out, cloneItem(&rec.item))
		}
	}
	return out, nil
}

func (s *MemoryStore) Insert(_ context.Context, it *model.QueueItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[it.ID]; exists {
		return fmt.Errorf("duplicate queue item id %q", it.ID)
	}
	s.items[it.ID] = &memoryItem{item: *cloneItem(it), scheduledAt: time.Now()}
	s.order = append(s.order, it.ID)
	return nil
}

func (s *MemoryStore) ClaimPending(_ context.Context) (*model.QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var due []*memoryItem
	for _, id := range s.order {
		rec := s.items[id]
		if rec.item.Status == model.StatusPending && !rec.scheduledAt.After(now) {
			due = append(due, rec)
		}
	}
	if len(due) == 0 {
		return nil, nil
	}
	sort.SliceStable(due, func(i, j int) bool {
		return due[i].item.CreatedAt.Before(due[j].item.CreatedAt)
	})

	rec := due[0]
	rec.item.Status = model.StatusProcessing
	rec.item.ProcessedAt = &now
	rec.item.UpdatedAt = now
	return cloneItem(&rec.item), nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, id string, expected, next model.Status, fields TerminalFields) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.items[id]
	if !ok {
		return false, ErrNotFound
	}
	if rec.item.Status != expected {
		return false, nil
	}
	now := time.Now()
	rec.item.Status = next
	rec.item.ResultMessage = fields.ResultMessage
	rec.item.ErrorDetails = fields.ErrorDetails
	rec.item.UpdatedAt = now
	if next.IsTerminal() {
		rec.item.CompletedAt = &now
	} else {
		rec.item.CompletedAt = nil
	}
	return true, nil
}

func (s *MemoryStore) Requeue(_ context.Context, id string, retryCount int, delay time.Duration, errMsg string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.items[id]
	if !ok {
		return false, ErrNotFound
	}
	if rec.item.Status != model.StatusProcessing {
		return false, nil
	}
	now := time.Now()
	rec.item.Status = model.StatusPending
	rec.item.RetryCount = retryCount
	rec.item.ErrorDetails = errMsg
	rec.item.ProcessedAt = nil
	rec.item.UpdatedAt = now
	rec.scheduledAt = now.Add(delay)
	return true, nil
}

func (s *MemoryStore) RequeueStale(_ context.Context, olderThan time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	cutoff := now.Add(-olderThan)
	var n int
	for _, rec := range s.items {
		if rec.item.Status != model.StatusProcessing || rec.item.ProcessedAt == nil {
			continue
		}
		if rec.item.ProcessedAt.Before(cutoff) {
			rec.item.Status = model.StatusPending
			rec.item.ProcessedAt = nil
			rec.item.UpdatedAt = now
			rec.scheduledAt = now
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) QueryLineage(_ context.Context, trackingID, url string, t model.ItemType, statuses []model.Status) ([]*model.QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.QueueItem
	for _, id := range s.order {
		rec := s.items[id]
		if rec.item.TrackingID != trackingID || rec.item.URL != url || rec.item.Type != t {
			continue
		}
		for _, st := range statuses {
			if rec.item.Status == st {
				out = append(out, cloneItem(&rec.item))
				break
			}
		}
	}
	return out, nil
}

func (s *MemoryStore) PendingCount(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var n int
	for _, rec := range s.items {
		if rec.item.Status == model.StatusPending && !rec.scheduledAt.After(now) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) ConfigDocument(_ context.Context, key string) (json.RawMessage, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.configs[key]
	if !ok {
		return nil, time.Time{}, ErrNotFound
	}
	return append(json.RawMessage(nil), doc.doc...), doc.updated, nil
}

// PutConfigDocument stores or replaces a configuration document.
func (s *MemoryStore) PutConfigDocument(key string, doc json.RawMessage, updated time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[key] = configDoc{doc: append(json.RawMessage(nil), doc...), updated: updated}
}

func (s *MemoryStore) InsertMatch(_ context.Context, m *model.JobMatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.matches {
		if existing.ItemID == m.ItemID {
			return nil
		}
	}
	cp := *m
	s.matches = append(s.matches, &cp)
	return nil
}

// Matches returns a snapshot of all recorded matches.
func (s *MemoryStore) Matches() []*model.JobMatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.JobMatch, len(s.matches))
	copy(out, s.matches)
	return out
}
