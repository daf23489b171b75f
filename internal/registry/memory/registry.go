// Package memory provides an in-memory processing registry for
// development and testing.
package memory

import (
	"context"
	"sync"

	"github.com/perchlink/perch/internal/bookmarks"
)

// Registry keeps processing items and cancellation flags in process memory.
type Registry struct {
	mu        sync.RWMutex
	items     map[string]bookmarks.ProcessingItem
	cancelled map[string]bool
}

// NewRegistry constructs a Registry.
func NewRegistry() *Registry {
	return &Registry{
		items:     make(map[string]bookmarks.ProcessingItem),
		cancelled: make(map[string]bool),
	}
}

// Upsert inserts or replaces the item with a matching id.
func (r *Registry) Upsert(_ context.Context, item bookmarks.ProcessingItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[item.ID] = item
	return nil
}

// List returns a snapshot of the user's items, unordered.
func (r *Registry) List(_ context.Context, userID string) ([]bookmarks.ProcessingItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]bookmarks.ProcessingItem, 0)
	for _, item := range r.items {
		if item.UserID == userID {
			out = append(out, item)
		}
	}
	return out, nil
}

// Remove deletes the item; removing an absent id is a no-op.
func (r *Registry) Remove(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
	return nil
}

// MarkCancelled flags the run and removes the item so a cancelled run never
// surfaces through List.
func (r *Registry) MarkCancelled(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelled[id] = true
	delete(r.items, id)
	return nil
}

// IsCancelled observes the cancellation flag for a run id.
func (r *Registry) IsCancelled(_ context.Context, id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cancelled[id]
}

// ClearCancelled resets the flag, letting a resubmission of the same URL run.
func (r *Registry) ClearCancelled(_ context.Context, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cancelled, id)
}
