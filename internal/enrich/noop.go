package enrich

import (
	"context"

	"github.com/perchlink/perch/internal/bookmarks"
)

// Noop implementations stand in when a service endpoint is not configured.
// They return empty results so every pipeline step degrades to its default.

type NoopScraper struct{}

func (NoopScraper) Scrape(ctx context.Context, url string) (string, error) { return "", nil }

type NoopMetadataExtractor struct{}

func (NoopMetadataExtractor) Extract(ctx context.Context, url, content string) (bookmarks.PageMetadata, error) {
	return bookmarks.PageMetadata{}, nil
}

type NoopScreenshotter struct{}

func (NoopScreenshotter) Capture(ctx context.Context, url string) (bookmarks.Screenshot, error) {
	return bookmarks.Screenshot{}, nil
}

type NoopTagger struct{}

func (NoopTagger) Tags(ctx context.Context, url, content string) ([]string, error) {
	return nil, nil
}
