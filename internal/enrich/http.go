package enrich

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/perchlink/perch/internal/bookmarks"
)

// HTTPScraper calls a content-scrape service that turns a URL into page text.
type HTTPScraper struct {
	endpoint string
	client   *http.Client
}

// HTTPMetadataExtractor calls a metadata-extraction service.
type HTTPMetadataExtractor struct {
	endpoint string
	client   *http.Client
}

// HTTPScreenshotter calls a screenshot service. The service responds either
// with a hosted image URI or with inline base64 image bytes.
type HTTPScreenshotter struct {
	endpoint string
	client   *http.Client
}

// HTTPTagger calls a tag-generation service.
type HTTPTagger struct {
	endpoint string
	client   *http.Client
}

// NewHTTPScraper builds a scrape-service client for the given endpoint.
func NewHTTPScraper(endpoint string, timeout time.Duration) *HTTPScraper {
	return &HTTPScraper{endpoint: endpoint, client: newHTTPClient(timeout)}
}

// NewHTTPMetadataExtractor builds a metadata-service client.
func NewHTTPMetadataExtractor(endpoint string, timeout time.Duration) *HTTPMetadataExtractor {
	return &HTTPMetadataExtractor{endpoint: endpoint, client: newHTTPClient(timeout)}
}

// NewHTTPScreenshotter builds a screenshot-service client.
func NewHTTPScreenshotter(endpoint string, timeout time.Duration) *HTTPScreenshotter {
	return &HTTPScreenshotter{endpoint: endpoint, client: newHTTPClient(timeout)}
}

// NewHTTPTagger builds a tag-service client.
func NewHTTPTagger(endpoint string, timeout time.Duration) *HTTPTagger {
	return &HTTPTagger{endpoint: endpoint, client: newHTTPClient(timeout)}
}

// Scrape fetches the textual content of a page through the scrape service.
func (s *HTTPScraper) Scrape(ctx context.Context, url string) (string, error) {
	var resp struct {
		Content string `json:"content"`
	}
	req := struct {
		URL string `json:"url"`
	}{URL: url}
	if err := postJSON(ctx, s.client, s.endpoint, req, &resp); err != nil {
		return "", fmt.Errorf("scrape service: %w", err)
	}
	return resp.Content, nil
}

// Extract derives page metadata through the metadata service.
func (m *HTTPMetadataExtractor) Extract(ctx context.Context, url, content string) (bookmarks.PageMetadata, error) {
	var resp bookmarks.PageMetadata
	req := struct {
		URL     string `json:"url"`
		Content string `json:"content,omitempty"`
	}{URL: url, Content: content}
	if err := postJSON(ctx, m.client, m.endpoint, req, &resp); err != nil {
		return bookmarks.PageMetadata{}, fmt.Errorf("metadata service: %w", err)
	}
	return resp, nil
}

// Capture requests a screenshot of the page. When the service hosts the image
// it returns the URI; otherwise the raw bytes come back inline.
func (s *HTTPScreenshotter) Capture(ctx context.Context, url string) (bookmarks.Screenshot, error) {
	var resp struct {
		URI         string `json:"uri"`
		Image       string `json:"image_base64"`
		ContentType string `json:"content_type"`
	}
	req := struct {
		URL string `json:"url"`
	}{URL: url}
	if err := postJSON(ctx, s.client, s.endpoint, req, &resp); err != nil {
		return bookmarks.Screenshot{}, fmt.Errorf("screenshot service: %w", err)
	}
	shot := bookmarks.Screenshot{URI: resp.URI, ContentType: resp.ContentType}
	if resp.Image != "" {
		raw, err := base64.StdEncoding.DecodeString(resp.Image)
		if err != nil {
			return bookmarks.Screenshot{}, fmt.Errorf("screenshot service: decode image: %w", err)
		}
		shot.Image = raw
		if shot.ContentType == "" {
			shot.ContentType = "image/png"
		}
	}
	return shot, nil
}

// Tags generates tags for a page through the tag service.
func (t *HTTPTagger) Tags(ctx context.Context, url, content string) ([]string, error) {
	var resp struct {
		Tags []string `json:"tags"`
	}
	req := struct {
		URL     string `json:"url"`
		Content string `json:"content,omitempty"`
	}{URL: url, Content: content}
	if err := postJSON(ctx, t.client, t.endpoint, req, &resp); err != nil {
		return nil, fmt.Errorf("tag service: %w", err)
	}
	return resp.Tags, nil
}
