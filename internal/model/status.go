// Queue item state machine:
//
//	pending ──► processing ──► success
//	   ▲             │    ├──► failed
//	   └─────────────┘    └──► skipped
//
// The processing → pending edge is the retry/requeue path. success,
// failed and skipped are terminal — once reached, the status never
// changes again.
package model

import "fmt"

// Status values mirror the queue_item_status enum in PostgreSQL.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
	StatusSkipped    Status = "skipped"
)

// ItemType values mirror the queue_item_type enum in PostgreSQL.
type ItemType string

const (
	TypeJob             ItemType = "job"
	TypeCompany         ItemType = "company"
	TypeScrape          ItemType = "scrape"
	TypeSourceDiscovery ItemType = "source_discovery"
)

// validTransitions lists every allowed (from → to) pair.
var validTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing},
	StatusProcessing: {StatusSuccess, StatusFailed, StatusSkipped, StatusPending},
	// success, failed and skipped are terminal — no outgoing transitions
}

// ParseStatus converts a raw string to a Status, returning an error for
// unknown values.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	switch st {
	case StatusPending, StatusProcessing, StatusSuccess, StatusFailed, StatusSkipped:
		return st, nil
	}
	return "", fmt.Errorf("unknown queue item status %q", s)
}

// ParseItemType converts a raw string to an ItemType, returning an error
// for unknown values.
func ParseItemType(s string) (ItemType, error) {
	t := ItemType(s)
	switch t {
	case TypeJob, TypeCompany, TypeScrape, TypeSourceDiscovery:
		return t, nil
	}
	return "", fmt.Errorf("unknown queue item type %q", s)
}

// IsTerminal returns true for success, failed and skipped.
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusSkipped
}

// IsTransitionAllowed returns true when moving from → to is permitted by
// the state machine.
func IsTransitionAllowed(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false // terminal state — no outgoing transitions
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}
