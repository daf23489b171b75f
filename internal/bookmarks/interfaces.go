package bookmarks

import (
	"context"
	"time"
)

// ProcessingRegistry stores in-flight processing items. Items are keyed by id
// globally; List scopes to one user. Implementations are best-effort transient
// state: on backing-store unavailability they degrade to no-ops rather than
// failing the caller.
type ProcessingRegistry interface {
	// Upsert inserts or replaces the item with a matching id.
	Upsert(ctx context.Context, item ProcessingItem) error
	// List returns a snapshot of the user's in-flight items, unordered.
	List(ctx context.Context, userID string) ([]ProcessingItem, error)
	// Remove deletes the item; removing an absent id is not an error.
	Remove(ctx context.Context, id string) error
	// MarkCancelled sets the cancellation flag and removes the item so it
	// never surfaces through List again.
	MarkCancelled(ctx context.Context, id string) error
	// IsCancelled observes the cancellation flag for a run id.
	IsCancelled(ctx context.Context, id string) bool
	// ClearCancelled resets the flag. Run ids derive deterministically from
	// (user, canonical URL), so a resubmission reuses the id of a previously
	// cancelled run and must start with a clean flag.
	ClearCancelled(ctx context.Context, id string)
}

// BookmarkStore persists durable bookmark records.
type BookmarkStore interface {
	Insert(ctx context.Context, rec BookmarkRecord) (BookmarkRecord, error)
	List(ctx context.Context, userID string) ([]BookmarkRecord, error)
	Delete(ctx context.Context, id, userID string) error
	// FindByURL returns the first record whose URL matches any of the given
	// variants, or ErrNotFound.
	FindByURL(ctx context.Context, userID string, urls []string) (BookmarkRecord, error)
}

// MirrorStore is a secondary per-user snapshot of bookmark records, used as the
// fallback path when the primary store is unreachable.
type MirrorStore interface {
	BookmarkStore
	// Replace atomically rewrites the user's snapshot from the primary.
	Replace(ctx context.Context, userID string, recs []BookmarkRecord) error
}

// Scraper fetches the textual content of a page.
type Scraper interface {
	Scrape(ctx context.Context, url string) (string, error)
}

// MetadataExtractor derives title/description/favicon/tags from a page.
type MetadataExtractor interface {
	Extract(ctx context.Context, url, content string) (PageMetadata, error)
}

// Screenshotter captures a visual snapshot of a page.
type Screenshotter interface {
	Capture(ctx context.Context, url string) (Screenshot, error)
}

// Tagger generates tags for a page from its URL and scraped content.
type Tagger interface {
	Tags(ctx context.Context, url, content string) ([]string, error)
}

// BlobStore writes raw artifacts (screenshot images) and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces record IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
