// Package retry decides whether a failed queue item gets another attempt
// and how long it must wait for one.
package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"jobscout/pipeline-service/internal/model"
	"jobscout/pipeline-service/internal/store"
)

// Decision is the outcome of ShouldRetry. When Retry is false, Reason
// names the rule that terminated the item so operators can tell retry
// exhaustion apart from an ancestor-repeat loop.
type Decision struct {
	Retry  bool
	Delay  time.Duration
	Reason string
}

// Scheduler consults the item's lineage before granting a retry.
type Scheduler struct {
	store store.Store
}

// NewScheduler returns a Scheduler backed by the given store.
func NewScheduler(st store.Store) *Scheduler {
	return &Scheduler{store: st}
}

// ShouldRetry returns the retry decision for a failed item.
//
// A retry is refused when the item has exhausted its attempts, or when
// any ancestor with the same (url, type) already failed with an
// identical error string — retrying would re-trigger a systemic failure
// chain. Error comparison is exact-match: loosening it risks
// false-positive retry suppression.
func (s *Scheduler) ShouldRetry(ctx context.Context, item *model.QueueItem, errMsg string) (Decision, error) {
	if item.RetryCount >= item.MaxRetries {
		return Decision{
			Reason: fmt.Sprintf("retry limit reached (%d/%d)", item.RetryCount, item.MaxRetries),
		}, nil
	}

	if len(item.AncestryChain) > 1 {
		// Everything in the chain except the item itself.
		ancestors, err := s.store.GetMany(ctx, item.AncestryChain[:len(item.AncestryChain)-1])
		if err != nil {
			return Decision{}, fmt.Errorf("load ancestry: %w", err)
		}
		for _, a := range ancestors {
			if a.Status == model.StatusFailed &&
				a.URL == item.URL && a.Type == item.Type &&
				a.ErrorDetails == errMsg {
				return Decision{
					Reason: fmt.Sprintf("ancestor %s already failed with identical error", a.ID),
				}, nil
			}
		}
	}

	return Decision{Retry: true, Delay: Backoff(item.RetryCount)}, nil
}

const (
	backoffBase = 1 * time.Second
	backoffMax  = 15 * time.Minute
)

// Backoff returns 2^attempt seconds with ±25% jitter, capped at
// backoffMax. The shift is clamped to keep the multiplication from
// overflowing on absurd retry counts.
func Backoff(attempt int) time.Duration {
	shift := attempt
	if shift > 20 {
		shift = 20
	}
	d := backoffBase * time.Duration(1<<shift)
	if d > backoffMax {
		d = backoffMax
	}
	jitter := time.Duration(rand.Int63n(int64(d/2))) - d/4
	return d + jitter
}
