package pipeline

import (
	"context"
	"fmt"

	"jobscout/pipeline-service/internal/model"
)

// Handler is the contract every type-specific handler implements. It
// performs the actual scraping/matching work for one claimed item and
// reports the outcome; it must respect ctx, which carries the
// dispatcher's processing timeout. A handler that ignores ctx holds its
// claim past that timeout — the cron reaper is the backstop that
// eventually requeues such claims.
type Handler func(ctx context.Context, item *model.QueueItem) model.HandlerResult

// Registry maps item types to their handlers.
type Registry struct {
	handlers map[model.ItemType]Handler
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[model.ItemType]Handler)}
}

// Register binds a handler to an item type, replacing any previous one.
func (r *Registry) Register(t model.ItemType, h Handler) {
	r.handlers[t] = h
}

// Lookup returns the handler for an item type.
func (r *Registry) Lookup(t model.ItemType) (Handler, error) {
	h, ok := r.handlers[t]
	if !ok {
		return nil, fmt.Errorf("no handler registered for item type %q", t)
	}
	return h, nil
}

// Types returns the registered item types.
func (r *Registry) Types() []model.ItemType {
	types := make([]model.ItemType, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	return types
}
