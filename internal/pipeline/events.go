package pipeline

import "time"

// Topics for completion events.
const (
	TopicBookmarkSaved   = "bookmark.saved"
	TopicBookmarkDeleted = "bookmark.deleted"
)

// SavedEvent is published after a bookmark record is persisted.
type SavedEvent struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	URL       string    `json:"url"`
	Title     string    `json:"title,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// DeletedEvent is published after a bookmark record is deleted.
type DeletedEvent struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	URL    string `json:"url,omitempty"`
}
