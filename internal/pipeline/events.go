package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"jobscout/pipeline-service/internal/model"
)

// Redis pub/sub channels consumed by the gateway for SSE forwarding.
const (
	ChannelItemCompleted = "EVENT_ITEM_COMPLETED"
	ChannelItemFailed    = "EVENT_ITEM_FAILED"
	ChannelMatchFound    = "EVENT_MATCH_FOUND"
)

// Events publishes queue lifecycle events to Redis. Publishing is
// best-effort: a failed publish is logged and never fails the item. A
// nil Events is valid and publishes nothing (local runs without Redis).
type Events struct {
	rdb *redis.Client
}

// NewEvents returns an Events publisher over the given client.
func NewEvents(rdb *redis.Client) *Events {
	return &Events{rdb: rdb}
}

func (e *Events) publish(ctx context.Context, channel string, payload any) {
	if e == nil || e.rdb == nil {
		return
	}
	raw, _ := json.Marshal(payload)
	if err := e.rdb.Publish(ctx, channel, raw).Err(); err != nil {
		slog.Warn("event publish failed", "channel", channel, "err", err)
	}
}

// ItemCompleted announces a terminal success or skipped transition.
func (e *Events) ItemCompleted(ctx context.Context, item *model.QueueItem, status model.Status, message string) {
	e.publish(ctx, ChannelItemCompleted, map[string]string{
		"itemId":        item.ID,
		"trackingId":    item.TrackingID,
		"itemType":      string(item.Type),
		"status":        string(status),
		"resultMessage": message,
	})
}

// ItemFailed announces a terminal failure with the terminating rule.
func (e *Events) ItemFailed(ctx context.Context, item *model.QueueItem, reason string) {
	e.publish(ctx, ChannelItemFailed, map[string]string{
		"itemId":     item.ID,
		"trackingId": item.TrackingID,
		"itemType":   string(item.Type),
		"reason":     reason,
	})
}

// MatchFound announces an admitted job candidate.
func (e *Events) MatchFound(ctx context.Context, m *model.JobMatch) {
	e.publish(ctx, ChannelMatchFound, map[string]any{
		"matchId":     m.ID,
		"itemId":      m.ItemID,
		"trackingId":  m.TrackingID,
		"totalPoints": m.TotalPoints,
		"title":       m.Candidate.Title,
		"company":     m.Candidate.Company,
	})
}
