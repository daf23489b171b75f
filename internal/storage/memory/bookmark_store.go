// Package memory provides an in-memory bookmark store for development/testing.
package memory

import (
	"context"
	"sync"

	"github.com/perchlink/perch/internal/bookmarks"
)

// BookmarkStore keeps records in process memory behind a RWMutex.
type BookmarkStore struct {
	mu      sync.RWMutex
	records map[string]bookmarks.BookmarkRecord
}

// NewBookmarkStore constructs a BookmarkStore.
func NewBookmarkStore() *BookmarkStore {
	return &BookmarkStore{records: make(map[string]bookmarks.BookmarkRecord)}
}

// Insert stores a record keyed by id.
func (s *BookmarkStore) Insert(_ context.Context, rec bookmarks.BookmarkRecord) (bookmarks.BookmarkRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec
	return rec, nil
}

// List returns a copy of the user's records, unordered.
func (s *BookmarkStore) List(_ context.Context, userID string) ([]bookmarks.BookmarkRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]bookmarks.BookmarkRecord, 0)
	for _, rec := range s.records {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Delete removes a record owned by the user; absent ids are a no-op.
func (s *BookmarkStore) Delete(_ context.Context, id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[id]; ok && rec.UserID == userID {
		delete(s.records, id)
	}
	return nil
}

// FindByURL returns the first record whose URL matches any given variant.
func (s *BookmarkStore) FindByURL(_ context.Context, userID string, urls []string) (bookmarks.BookmarkRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	variant := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		variant[u] = struct{}{}
	}
	for _, rec := range s.records {
		if rec.UserID != userID {
			continue
		}
		if _, ok := variant[rec.URL]; ok {
			return rec, nil
		}
	}
	return bookmarks.BookmarkRecord{}, bookmarks.ErrNotFound
}
