// Package bookmarks defines core types shared across subsystems.
package bookmarks

import (
	"time"
)

// Step identifies one stage of the enrichment pipeline.
type Step string

// Pipeline steps, in execution order.
const (
	StepScraping   Step = "scraping"
	StepMetadata   Step = "metadata"
	StepScreenshot Step = "screenshot"
	StepDescribe   Step = "describe"
	StepSummary    Step = "summary"
	StepTags       Step = "tags"
	StepSaving     Step = "saving"
	StepFinished   Step = "finished"
)

// Status represents the externally visible state of a processing item.
type Status string

// Processing item statuses surfaced to polling clients.
const (
	StatusLoading   Status = "loading"
	StatusComplete  Status = "complete"
	StatusError     Status = "error"
	StatusCancelled Status = "cancelled"
)

// ProcessingItem is the transient pipeline state for one ingestion attempt.
// It lives in the processing registry from submission until the run reaches a
// terminal state, and is mutated in place at every step transition.
type ProcessingItem struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	URL         string    `json:"url"`
	Step        Step      `json:"step"`
	Status      Status    `json:"status"`
	Title       string    `json:"title,omitempty"`
	Description string    `json:"description,omitempty"`
	Favicon     string    `json:"favicon,omitempty"`
	Thumbnail   string    `json:"thumbnail,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	ErrorText   string    `json:"error_text,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// BookmarkRecord is the durable, enriched bookmark entity. Records correlate
// with processing items by canonical URL within a user scope, never by id.
type BookmarkRecord struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	URL         string    `json:"url"`
	Title       string    `json:"title,omitempty"`
	Description string    `json:"description,omitempty"`
	Favicon     string    `json:"favicon,omitempty"`
	Thumbnail   string    `json:"thumbnail,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// MergedCard is the client-facing union of a persisted record and any in-flight
// processing state for the same canonical URL. Status is empty for a purely
// persisted card so completed bookmarks serialize without a status field.
type MergedCard struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	Title       string    `json:"title,omitempty"`
	Description string    `json:"description,omitempty"`
	Favicon     string    `json:"favicon,omitempty"`
	Thumbnail   string    `json:"thumbnail,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	Status      Status    `json:"status,omitempty"`
	Step        Step      `json:"step,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// PageMetadata is returned by a metadata extraction service.
type PageMetadata struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Favicon     string   `json:"favicon"`
	Tags        []string `json:"tags"`
}

// Screenshot is returned by a screenshot service. Either URI is already set
// (the service hosts the image) or Image carries raw bytes for the caller to
// store in a blob store.
type Screenshot struct {
	URI         string
	Image       []byte
	ContentType string
}

// IsTerminal reports whether a step ends the pipeline.
func (s Step) IsTerminal() bool {
	return s == StepFinished
}
