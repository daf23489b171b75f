// Package headless captures page screenshots with headless Chrome via
// chromedp, used when no external screenshot service endpoint is configured.
package headless

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/perchlink/perch/internal/bookmarks"
)

// ErrDisabled indicates the screenshotter has been disabled via configuration.
var ErrDisabled = errors.New("headless screenshotter disabled")

// Config tunes the headless screenshotter.
type Config struct {
	UserAgent      string
	Timeout        time.Duration
	MaxConcurrency int
	ViewportWidth  int
	ViewportHeight int
	Quality        int
}

// Screenshotter renders pages in a shared headless browser and captures a
// full-page image per call.
type Screenshotter struct {
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	logger          *zap.Logger
	sem             chan struct{}
	timeout         time.Duration
	width           int
	height          int
	quality         int
}

// New launches the browser and warms it up.
func New(cfg Config, logger *zap.Logger) (*Screenshotter, error) {
	if cfg.MaxConcurrency <= 0 {
		return nil, ErrDisabled
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.ViewportWidth <= 0 {
		cfg.ViewportWidth = 1280
	}
	if cfg.ViewportHeight <= 0 {
		cfg.ViewportHeight = 800
	}
	if cfg.Quality <= 0 || cfg.Quality > 100 {
		cfg.Quality = 80
	}

	opts := chromedp.DefaultExecAllocatorOptions[:]
	opts = append(opts,
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		allocatorCancel()
		browserCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}

	return &Screenshotter{
		allocatorCancel: allocatorCancel,
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
		logger:          logger,
		sem:             make(chan struct{}, cfg.MaxConcurrency),
		timeout:         cfg.Timeout,
		width:           cfg.ViewportWidth,
		height:          cfg.ViewportHeight,
		quality:         cfg.Quality,
	}, nil
}

// Close tears down the browser and allocator contexts.
func (s *Screenshotter) Close(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.browserCancel()
	s.allocatorCancel()
	select {
	case <-ctx.Done():
	default:
	}
	return nil
}

// Capture navigates to the page in a fresh tab and returns a full-page PNG.
func (s *Screenshotter) Capture(ctx context.Context, rawURL string) (bookmarks.Screenshot, error) {
	if s == nil {
		return bookmarks.Screenshot{}, ErrDisabled
	}

	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	case <-ctx.Done():
		return bookmarks.Screenshot{}, fmt.Errorf("acquire capture slot: %w", ctx.Err())
	}

	tabCtx, cancelTab := chromedp.NewContext(s.browserCtx)
	defer cancelTab()

	taskCtx, cancelTask := context.WithTimeout(tabCtx, s.timeout)
	defer cancelTask()

	stopForward := forwardCancel(ctx, cancelTask)
	defer stopForward()

	var buf []byte
	tasks := chromedp.Tasks{
		emulation.SetDeviceMetricsOverride(int64(s.width), int64(s.height), 1, false),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.FullScreenshot(&buf, s.quality),
	}
	if err := chromedp.Run(taskCtx, tasks); err != nil {
		return bookmarks.Screenshot{}, fmt.Errorf("chromedp capture: %w", err)
	}

	return bookmarks.Screenshot{
		Image:       buf,
		ContentType: "image/png",
	}, nil
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
