// Package pipeline contains the dispatcher: the top-level loop that
// claims queue items, routes them to type-specific handlers, resolves
// spawn requests through the lineage guard, and commits terminal
// transitions through the store.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"jobscout/pipeline-service/internal/filter"
	"jobscout/pipeline-service/internal/lineage"
	"jobscout/pipeline-service/internal/model"
	"jobscout/pipeline-service/internal/retry"
	"jobscout/pipeline-service/internal/store"
)

// Dispatcher processes claimed items one at a time. Multiple Dispatchers
// may run concurrently against the same store: the pending → processing
// claim is atomically conditioned, so no item is processed twice.
type Dispatcher struct {
	store    store.Store
	guard    *lineage.Guard
	retries  *retry.Scheduler
	registry *Registry
	events   *Events

	// HandlerTimeout bounds a single handler invocation; the claim is
	// never held past it. IdleWait is the poll pause on an empty queue.
	HandlerTimeout time.Duration
	IdleWait       time.Duration
}

// New returns a Dispatcher. events may be nil for local runs.
func New(st store.Store, reg *Registry, events *Events) *Dispatcher {
	return &Dispatcher{
		store:          st,
		guard:          lineage.NewGuard(st),
		retries:        retry.NewScheduler(st),
		registry:       reg,
		events:         events,
		HandlerTimeout: 60 * time.Second,
		IdleWait:       500 * time.Millisecond,
	}
}

// Run polls the queue until ctx is canceled. Item-level errors are
// logged and never stop the loop; a ConfigurationError is batch-fatal
// and returned to the caller — processing against malformed filter rules
// must not continue.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		processed, err := d.RunOnce(ctx)
		if err != nil {
			var cfgErr *filter.ConfigurationError
			if errors.As(err, &cfgErr) {
				log.Printf("[dispatcher] Fatal configuration error: %v", err)
				return err
			}
			log.Printf("[dispatcher] Item error: %v — continuing", err)
			time.Sleep(d.IdleWait)
			continue
		}
		if !processed {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(d.IdleWait):
			}
		}
	}
}

// RunOnce claims and processes at most one item. Returns false when the
// queue was idle.
func (d *Dispatcher) RunOnce(ctx context.Context) (bool, error) {
	item, err := d.store.ClaimPending(ctx)
	if err != nil {
		return false, fmt.Errorf("claim: %w", err)
	}
	if item == nil {
		return false, nil
	}
	return true, d.process(ctx, item)
}

func (d *Dispatcher) process(ctx context.Context, item *model.QueueItem) error {
	handler, err := d.registry.Lookup(item.Type)
	if err != nil {
		// Unroutable items terminate immediately — retrying cannot help.
		return d.fail(ctx, item, "no handler registered", err.Error())
	}

	hctx, cancel := context.WithTimeout(ctx, d.HandlerTimeout)
	res := invoke(hctx, handler, item)
	cancel()

	if res.Kind == model.ResultFailure {
		return d.handleFailure(ctx, item, res.Err)
	}

	spawned, denied, err := d.resolveSpawns(ctx, item, res.Spawns)
	if err != nil {
		return err
	}

	if item.Type == model.TypeJob && res.Candidate != nil {
		return d.evaluateCandidate(ctx, item, res.Candidate)
	}

	msg := "processed"
	if len(res.Spawns) > 0 {
		msg = fmt.Sprintf("processed; spawned %d item(s), %d denied", spawned, denied)
	}
	return d.complete(ctx, item, model.StatusSuccess, msg)
}

// invoke runs a handler with panic containment: nothing may escape the
// item-processing loop, or one bad handler would stall the whole queue.
func invoke(ctx context.Context, handler Handler, item *model.QueueItem) (res model.HandlerResult) {
	defer func() {
		if r := recover(); r != nil {
			res = model.Failure(fmt.Errorf("handler panic: %v", r))
		}
	}()
	return handler(ctx, item)
}

// resolveSpawns runs each spawn request through the lineage guard.
// Denials are advisory: logged with the rejecting reason, never an
// error for the parent.
func (d *Dispatcher) resolveSpawns(ctx context.Context, item *model.QueueItem, spawns []model.SpawnRequest) (spawned, denied int, err error) {
	for _, req := range spawns {
		allow, reason, err := d.guard.CanSpawn(ctx, item, req)
		if err != nil {
			return spawned, denied, fmt.Errorf("lineage check: %w", err)
		}
		if !allow {
			denied++
			log.Printf("[dispatcher] Spawn denied for item %s (%s %s): %s",
				item.ID, req.Type, req.URL, reason)
			continue
		}

		child := lineage.NewChild(item, req)
		if err := d.store.Insert(ctx, child); err != nil {
			return spawned, denied, fmt.Errorf("insert spawned item: %w", err)
		}
		spawned++
		log.Printf("[dispatcher] Spawned %s item %s at depth %d (tracking %s)",
			child.Type, child.ID, child.SpawnDepth, child.TrackingID)
	}
	return spawned, denied, nil
}

// evaluateCandidate runs the filter and scoring engines over a job
// handler's candidate. The configuration snapshot is fetched fresh so
// admin updates take effect for the next item, never retroactively.
func (d *Dispatcher) evaluateCandidate(ctx context.Context, item *model.QueueItem, cand *model.JobCandidate) error {
	cfg, ranks, err := filter.Load(ctx, d.store)
	if err != nil {
		// Release the claim before escalating so the item is not lost
		// behind a configuration problem.
		if _, uerr := d.store.UpdateStatus(ctx, item.ID,
			model.StatusProcessing, model.StatusPending, store.TerminalFields{}); uerr != nil {
			log.Printf("[dispatcher] Release claim for %s failed: %v", item.ID, uerr)
		}
		return err
	}

	if rejected, reason := filter.HardReject(cand, cfg, ranks); rejected {
		return d.complete(ctx, item, model.StatusSkipped, "hard rejected: "+reason)
	}

	result := filter.Score(cand, cfg, ranks)
	summary := filter.Summary(result, cfg.StrikeThreshold)
	if !result.Admitted {
		return d.complete(ctx, item, model.StatusSkipped, "rejected by scoring: "+summary)
	}

	match := &model.JobMatch{
		ID:          uuid.NewString(),
		ItemID:      item.ID,
		TrackingID:  item.TrackingID,
		Candidate:   cand,
		TotalPoints: result.TotalPoints,
		CreatedAt:   time.Now().UTC(),
	}
	if err := d.store.InsertMatch(ctx, match); err != nil {
		return fmt.Errorf("insert match: %w", err)
	}
	d.events.MatchFound(ctx, match)
	return d.complete(ctx, item, model.StatusSuccess, "admitted: "+summary)
}

// handleFailure converts a handler error into a retry or a terminal
// failure per the retry scheduler's decision.
func (d *Dispatcher) handleFailure(ctx context.Context, item *model.QueueItem, herr error) error {
	errMsg := herr.Error()
	dec, err := d.retries.ShouldRetry(ctx, item, errMsg)
	if err != nil {
		return fmt.Errorf("retry decision: %w", err)
	}

	if dec.Retry {
		ok, err := d.store.Requeue(ctx, item.ID, item.RetryCount+1, dec.Delay, errMsg)
		if err != nil {
			return fmt.Errorf("requeue: %w", err)
		}
		if !ok {
			log.Printf("[dispatcher] Stale requeue ignored for item %s", item.ID)
			return nil
		}
		log.Printf("[dispatcher] Item %s failed — retry %d/%d in %s: %v",
			item.ID, item.RetryCount+1, item.MaxRetries, dec.Delay.Round(time.Millisecond), herr)
		return nil
	}

	return d.fail(ctx, item, dec.Reason, errMsg)
}

func (d *Dispatcher) complete(ctx context.Context, item *model.QueueItem, status model.Status, message string) error {
	ok, err := d.store.UpdateStatus(ctx, item.ID, model.StatusProcessing, status,
		store.TerminalFields{ResultMessage: message})
	if err != nil {
		return fmt.Errorf("mark %s: %w", status, err)
	}
	if !ok {
		log.Printf("[dispatcher] Stale %s transition ignored for item %s", status, item.ID)
		return nil
	}
	log.Printf("[dispatcher] Item %s (%s) → %s: %s", item.ID, item.Type, status, message)
	d.events.ItemCompleted(ctx, item, status, message)
	return nil
}

func (d *Dispatcher) fail(ctx context.Context, item *model.QueueItem, reason, errDetails string) error {
	ok, err := d.store.UpdateStatus(ctx, item.ID, model.StatusProcessing, model.StatusFailed,
		store.TerminalFields{ResultMessage: reason, ErrorDetails: errDetails})
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	if !ok {
		log.Printf("[dispatcher] Stale failed transition ignored for item %s", item.ID)
		return nil
	}
	log.Printf("[dispatcher] Item %s (%s) → failed: %s", item.ID, item.Type, reason)
	d.events.ItemFailed(ctx, item, reason)
	return nil
}
