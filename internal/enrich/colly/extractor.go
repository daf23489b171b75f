// Package colly provides a built-in scraper and metadata extractor backed by
// a Colly collector, used when no external scrape or metadata service endpoint
// is configured.
package colly

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/perchlink/perch/internal/bookmarks"
	"github.com/perchlink/perch/internal/enrich/ratelimit"
)

const defaultUserAgent = "perchbot/1.0 (+https://perch.link/bot)"

// Extractor fetches pages directly and implements both bookmarks.Scraper and
// bookmarks.MetadataExtractor.
type Extractor struct {
	base    *colly.Collector
	limiter *ratelimit.Limiter
	logger  *zap.Logger
}

// Config tunes the built-in extractor.
type Config struct {
	UserAgent      string
	RequestTimeout time.Duration
	// PerHostRPS throttles fetches per hostname; zero means unlimited.
	PerHostRPS   float64
	PerHostBurst int
}

// New constructs an Extractor with a shared base collector.
func New(cfg Config, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 20 * time.Second
	}

	base := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
	)
	base.AllowURLRevisit = true
	base.WithTransport(&http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          32,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.RequestTimeout,
		ForceAttemptHTTP2:     true,
	})
	base.SetRequestTimeout(cfg.RequestTimeout)

	var limiter *ratelimit.Limiter
	if cfg.PerHostRPS > 0 {
		limiter = ratelimit.New(ratelimit.Config{RPS: cfg.PerHostRPS, Burst: cfg.PerHostBurst})
	}

	return &Extractor{base: base, limiter: limiter, logger: logger}
}

type pageSnapshot struct {
	text        string
	title       string
	description string
	favicon     string
	keywords    string
	finalURL    string
}

// Scrape fetches the page and returns the visible body text.
func (e *Extractor) Scrape(ctx context.Context, rawURL string) (string, error) {
	snap, err := e.visit(ctx, rawURL)
	if err != nil {
		return "", err
	}
	return snap.text, nil
}

// Extract fetches the page head and derives title, description, favicon, and
// keyword tags. The content argument is ignored; the built-in provider always
// reads the live page.
func (e *Extractor) Extract(ctx context.Context, rawURL, _ string) (bookmarks.PageMetadata, error) {
	snap, err := e.visit(ctx, rawURL)
	if err != nil {
		return bookmarks.PageMetadata{}, err
	}
	meta := bookmarks.PageMetadata{
		Title:       strings.TrimSpace(snap.title),
		Description: strings.TrimSpace(snap.description),
		Favicon:     resolveFavicon(snap.finalURL, snap.favicon),
		Tags:        splitKeywords(snap.keywords),
	}
	return meta, nil
}

func (e *Extractor) visit(ctx context.Context, rawURL string) (pageSnapshot, error) {
	if err := e.limiter.Wait(ctx, rawURL); err != nil {
		return pageSnapshot{}, err
	}

	collector := e.base.Clone()
	collector.Context = ctx

	var (
		mu   sync.Mutex
		snap pageSnapshot
		last error
	)

	collector.OnResponse(func(r *colly.Response) {
		mu.Lock()
		snap.finalURL = r.Request.URL.String()
		mu.Unlock()
	})
	collector.OnHTML("head", func(h *colly.HTMLElement) {
		mu.Lock()
		defer mu.Unlock()
		snap.title = h.ChildText("title")
		snap.description = h.ChildAttr(`meta[name="description"]`, "content")
		if snap.description == "" {
			snap.description = h.ChildAttr(`meta[property="og:description"]`, "content")
		}
		snap.keywords = h.ChildAttr(`meta[name="keywords"]`, "content")
		snap.favicon = h.ChildAttr(`link[rel="icon"]`, "href")
		if snap.favicon == "" {
			snap.favicon = h.ChildAttr(`link[rel="shortcut icon"]`, "href")
		}
	})
	collector.OnHTML("body", func(h *colly.HTMLElement) {
		mu.Lock()
		snap.text = strings.Join(strings.Fields(h.Text), " ")
		mu.Unlock()
	})
	collector.OnError(func(_ *colly.Response, err error) {
		mu.Lock()
		if err == nil {
			err = errors.New("unknown colly error")
		}
		last = err
		mu.Unlock()
	})

	if err := collector.Visit(rawURL); err != nil {
		return pageSnapshot{}, err
	}
	collector.Wait()

	mu.Lock()
	defer mu.Unlock()
	if err := ctx.Err(); err != nil {
		return pageSnapshot{}, err
	}
	if last != nil {
		return pageSnapshot{}, last
	}
	if snap.finalURL == "" {
		snap.finalURL = rawURL
	}
	return snap, nil
}

func resolveFavicon(pageURL, href string) string {
	if href == "" {
		return ""
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

func splitKeywords(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if tag := strings.TrimSpace(p); tag != "" {
			tags = append(tags, strings.ToLower(tag))
		}
	}
	if len(tags) == 0 {
		return nil
	}
	return tags
}
