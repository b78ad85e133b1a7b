// Package model defines the shared data structures for the pipeline service.
package model

import (
	"encoding/json"
	"time"
)

// QueueItem is the unit of work. Rows live in queue_items and are never
// deleted — terminal items remain as an audit trail for lineage lookups.
type QueueItem struct {
	ID     string   `json:"id"`
	Type   ItemType `json:"type"`
	Status Status   `json:"status"`

	URL         string `json:"url,omitempty"`
	CompanyName string `json:"company_name,omitempty"`
	CompanyID   string `json:"company_id,omitempty"`

	// Lineage bookkeeping. TrackingID is set once at the root item and
	// copied unchanged to every descendant. AncestryChain is ordered
	// root first, the item's own id last, and is append-only:
	// len(AncestryChain) == SpawnDepth+1 always holds.
	TrackingID    string   `json:"tracking_id"`
	AncestryChain []string `json:"ancestry_chain"`
	SpawnDepth    int      `json:"spawn_depth"`
	MaxSpawnDepth int      `json:"max_spawn_depth"`
	ParentItemID  string   `json:"parent_item_id,omitempty"`

	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`

	ResultMessage string `json:"result_message,omitempty"`
	ErrorDetails  string `json:"error_details,omitempty"`

	// Payload is the type-specific configuration object (scrape_config,
	// source_discovery_config, a raw posting, …). Opaque to the engine;
	// only the type-specific handler interprets it.
	Payload json.RawMessage `json:"payload,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// SpawnRequest is a handler's request to enqueue a new child item. It is
// resolved through the lineage guard before any insert happens.
type SpawnRequest struct {
	URL         string          `json:"url"`
	Type        ItemType        `json:"type"`
	CompanyName string          `json:"company_name,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// ResultKind classifies a handler outcome.
type ResultKind string

const (
	ResultSuccess ResultKind = "success"
	ResultSpawn   ResultKind = "spawn"
	ResultFailure ResultKind = "failure"
)

// HandlerResult is what every type-specific handler returns to the
// dispatcher. Candidate is only set by the job handler; the dispatcher
// runs it through the filter and scoring engines before committing a
// terminal status.
type HandlerResult struct {
	Kind      ResultKind
	Payload   json.RawMessage
	Spawns    []SpawnRequest
	Candidate *JobCandidate
	Err       error
}

// Success reports a completed item with an optional result payload.
func Success(payload json.RawMessage) HandlerResult {
	return HandlerResult{Kind: ResultSuccess, Payload: payload}
}

// SpawnAndContinue reports a completed item that also requests child items.
func SpawnAndContinue(payload json.RawMessage, spawns ...SpawnRequest) HandlerResult {
	return HandlerResult{Kind: ResultSpawn, Payload: payload, Spawns: spawns}
}

// Failure reports a handler error; the retry scheduler decides what happens.
func Failure(err error) HandlerResult {
	return HandlerResult{Kind: ResultFailure, Err: err}
}

// JobCandidate is a normalised job posting produced by the job handler and
// evaluated by the filter and scoring engines.
type JobCandidate struct {
	Title           string   `json:"title"`
	Company         string   `json:"company"`
	Location        string   `json:"location"`
	City            string   `json:"city,omitempty"`
	Description     string   `json:"description"`
	JobType         string   `json:"jobType,omitempty"`      // e.g. "full-time", "contract"
	Seniority       string   `json:"seniority,omitempty"`    // e.g. "mid-level", "senior"
	RemotePolicy    string   `json:"remotePolicy,omitempty"` // "remote" | "hybrid" | "onsite"
	CommissionOnly  bool     `json:"commissionOnly,omitempty"`
	SalaryMin       float64  `json:"salaryMin,omitempty"`
	SalaryMax       float64  `json:"salaryMax,omitempty"`
	ExperienceYears int      `json:"experienceYears,omitempty"`
	Technologies    []string `json:"technologies,omitempty"`
	SourceURL       string   `json:"sourceUrl"`
}

// SalaryPresent reports whether the posting carries any compensation figure.
func (c *JobCandidate) SalaryPresent() bool {
	return c.SalaryMin > 0 || c.SalaryMax > 0
}

// Salary returns the figure used for threshold comparisons: the posting's
// upper bound when present, otherwise the lower bound.
func (c *JobCandidate) Salary() float64 {
	if c.SalaryMax > 0 {
		return c.SalaryMax
	}
	return c.SalaryMin
}

// Strike is one scoring signal's contribution, kept for observability.
type Strike struct {
	Signal    string `json:"signal"`
	Points    int    `json:"points"`
	Rationale string `json:"rationale"`
}

// StrikeResult is the scoring engine's output for one candidate.
type StrikeResult struct {
	Strikes     []Strike `json:"strikes"`
	TotalPoints int      `json:"totalPoints"`
	Admitted    bool     `json:"admitted"`
}

// JobMatch records an admitted candidate.
type JobMatch struct {
	ID          string        `json:"id"`
	ItemID      string        `json:"item_id"`
	TrackingID  string        `json:"tracking_id"`
	Candidate   *JobCandidate `json:"candidate"`
	TotalPoints int           `json:"total_points"`
	CreatedAt   time.Time     `json:"created_at"`
}
