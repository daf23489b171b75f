package bookmarks

import "errors"

// Sentinel errors surfaced by the submission and persistence paths. Handlers
// map these onto specific HTTP status codes; everything else is a generic
// processing failure.
var (
	// ErrInvalidURL rejects input that cannot be parsed as a URL.
	ErrInvalidURL = errors.New("invalid url")

	// ErrDuplicateBookmark means the canonical URL (or a variant) is already
	// persisted for this user.
	ErrDuplicateBookmark = errors.New("bookmark already exists")

	// ErrAlreadyProcessing means a live run exists for the same canonical URL.
	ErrAlreadyProcessing = errors.New("url is already being processed")

	// ErrCancelled is the cooperative-abort outcome, not a failure.
	ErrCancelled = errors.New("processing cancelled")

	// ErrNotFound signals that the requested record does not exist.
	ErrNotFound = errors.New("bookmark not found")
)
