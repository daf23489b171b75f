package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/perchlink/perch/internal/bookmarks"
	"github.com/perchlink/perch/internal/metrics"
)

// Timeouts bound each category of external service call.
type Timeouts struct {
	Scrape     time.Duration `mapstructure:"scrape" yaml:"scrape"`
	Metadata   time.Duration `mapstructure:"metadata" yaml:"metadata"`
	Screenshot time.Duration `mapstructure:"screenshot" yaml:"screenshot"`
	AI         time.Duration `mapstructure:"ai" yaml:"ai"`
}

// WithDefaults fills unset timeouts.
func (t Timeouts) WithDefaults() Timeouts {
	if t.Scrape <= 0 {
		t.Scrape = 20 * time.Second
	}
	if t.Metadata <= 0 {
		t.Metadata = 10 * time.Second
	}
	if t.Screenshot <= 0 {
		t.Screenshot = 30 * time.Second
	}
	if t.AI <= 0 {
		t.AI = 15 * time.Second
	}
	return t
}

// Orchestrator drives one processing item through the enrichment steps. Step
// transitions are written to the registry so polling clients observe
// progress; service failures degrade to defaults; cancellation unwinds the
// run without persisting anything.
type Orchestrator struct {
	registry  bookmarks.ProcessingRegistry
	store     bookmarks.BookmarkStore
	scraper   bookmarks.Scraper
	metadata  bookmarks.MetadataExtractor
	shooter   bookmarks.Screenshotter
	tagger    bookmarks.Tagger
	blobs     bookmarks.BlobStore
	publisher bookmarks.Publisher
	ids       bookmarks.IDGenerator
	clock     bookmarks.Clock
	timeouts  Timeouts
	logger    *zap.Logger
}

// OrchestratorParams collects the orchestrator dependencies.
type OrchestratorParams struct {
	Registry      bookmarks.ProcessingRegistry
	Store         bookmarks.BookmarkStore
	Scraper       bookmarks.Scraper
	Metadata      bookmarks.MetadataExtractor
	Screenshotter bookmarks.Screenshotter
	Tagger        bookmarks.Tagger
	Blobs         bookmarks.BlobStore
	Publisher     bookmarks.Publisher
	IDs           bookmarks.IDGenerator
	Clock         bookmarks.Clock
	Timeouts      Timeouts
	Logger        *zap.Logger
}

// NewOrchestrator wires an orchestrator. Blobs and Publisher are optional;
// the rest are required.
func NewOrchestrator(p OrchestratorParams) *Orchestrator {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		registry:  p.Registry,
		store:     p.Store,
		scraper:   p.Scraper,
		metadata:  p.Metadata,
		shooter:   p.Screenshotter,
		tagger:    p.Tagger,
		blobs:     p.Blobs,
		publisher: p.Publisher,
		ids:       p.IDs,
		clock:     p.Clock,
		timeouts:  p.Timeouts.WithDefaults(),
		logger:    logger,
	}
}

// Run executes the full step sequence for one item and returns the persisted
// record. It returns bookmarks.ErrCancelled when the token trips, and a
// wrapped persistence error when the saving step fails on both stores.
func (o *Orchestrator) Run(ctx context.Context, item bookmarks.ProcessingItem, token *Token) (bookmarks.BookmarkRecord, error) {
	metrics.IncActiveRuns()
	defer metrics.DecActiveRuns()

	log := o.logger.With(
		zap.String("processing_id", item.ID),
		zap.String("user_id", item.UserID),
		zap.String("url", item.URL),
	)

	// Scraping.
	if err := o.advance(ctx, &item, bookmarks.StepScraping, token); err != nil {
		return bookmarks.BookmarkRecord{}, err
	}
	content := unwrap(log, bookmarks.StepScraping,
		runStep(ctx, token, bookmarks.StepScraping, o.timeouts.Scrape, func(c context.Context) (string, error) {
			return o.scraper.Scrape(c, item.URL)
		}), "")

	// Metadata.
	if err := o.advance(ctx, &item, bookmarks.StepMetadata, token); err != nil {
		return bookmarks.BookmarkRecord{}, err
	}
	meta := unwrap(log, bookmarks.StepMetadata,
		runStep(ctx, token, bookmarks.StepMetadata, o.timeouts.Metadata, func(c context.Context) (bookmarks.PageMetadata, error) {
			return o.metadata.Extract(c, item.URL, content)
		}), bookmarks.PageMetadata{})
	if meta.Title != "" {
		item.Title = meta.Title
	}
	if meta.Description != "" {
		item.Description = meta.Description
	}
	if meta.Favicon != "" {
		item.Favicon = meta.Favicon
	}
	if len(meta.Tags) > 0 {
		item.Tags = mergeTags(item.Tags, meta.Tags)
	}

	// Screenshot.
	if err := o.advance(ctx, &item, bookmarks.StepScreenshot, token); err != nil {
		return bookmarks.BookmarkRecord{}, err
	}
	shot := unwrap(log, bookmarks.StepScreenshot,
		runStep(ctx, token, bookmarks.StepScreenshot, o.timeouts.Screenshot, func(c context.Context) (bookmarks.Screenshot, error) {
			return o.shooter.Capture(c, item.URL)
		}), bookmarks.Screenshot{})
	if uri := o.storeScreenshot(ctx, log, item, shot); uri != "" {
		item.Thumbnail = uri
	}

	// Describe and summary are placeholder transitions reserved for future
	// model calls; they only make progress visible.
	if err := o.advance(ctx, &item, bookmarks.StepDescribe, token); err != nil {
		return bookmarks.BookmarkRecord{}, err
	}
	if err := o.advance(ctx, &item, bookmarks.StepSummary, token); err != nil {
		return bookmarks.BookmarkRecord{}, err
	}

	// Tags.
	if err := o.advance(ctx, &item, bookmarks.StepTags, token); err != nil {
		return bookmarks.BookmarkRecord{}, err
	}
	tags := unwrap(log, bookmarks.StepTags,
		runStep(ctx, token, bookmarks.StepTags, o.timeouts.AI, func(c context.Context) ([]string, error) {
			return o.tagger.Tags(c, item.URL, content)
		}), nil)
	if len(tags) > 0 {
		item.Tags = mergeTags(item.Tags, tags)
	}

	// Saving aborts the run on failure instead of degrading.
	if err := o.advance(ctx, &item, bookmarks.StepSaving, token); err != nil {
		return bookmarks.BookmarkRecord{}, err
	}
	recordID, err := o.ids.NewID()
	if err != nil {
		return bookmarks.BookmarkRecord{}, o.fail(ctx, item, log, fmt.Errorf("generate record id: %w", err))
	}
	saved, err := o.store.Insert(ctx, bookmarks.BookmarkRecord{
		ID:          recordID,
		UserID:      item.UserID,
		URL:         item.URL,
		Title:       item.Title,
		Description: item.Description,
		Favicon:     item.Favicon,
		Thumbnail:   item.Thumbnail,
		Tags:        item.Tags,
		CreatedAt:   o.clock.Now(),
	})
	if err != nil {
		return bookmarks.BookmarkRecord{}, o.fail(ctx, item, log, fmt.Errorf("persist bookmark: %w", err))
	}

	// A final finished/complete write lets one last poll observe completion
	// before the item disappears.
	item.Step = bookmarks.StepFinished
	item.Status = bookmarks.StatusComplete
	if err := o.registry.Upsert(ctx, item); err != nil {
		log.Warn("finished upsert failed", zap.Error(err))
	}
	o.publishSaved(ctx, log, saved)
	if err := o.registry.Remove(ctx, item.ID); err != nil {
		log.Warn("registry remove failed", zap.Error(err))
	}

	metrics.ObserveRun("ok")
	log.Info("pipeline finished", zap.String("record_id", saved.ID))
	return saved, nil
}

// advance writes the next step transition. It reports ErrCancelled when the
// token has tripped; the canceller already removed the registry item.
func (o *Orchestrator) advance(ctx context.Context, item *bookmarks.ProcessingItem, step bookmarks.Step, token *Token) error {
	if token.Cancelled() {
		metrics.ObserveRun("cancelled")
		o.logger.Info("pipeline cancelled",
			zap.String("processing_id", item.ID),
			zap.String("at_step", string(step)),
		)
		return bookmarks.ErrCancelled
	}
	item.Step = step
	item.Status = bookmarks.StatusLoading
	if err := o.registry.Upsert(ctx, *item); err != nil {
		o.logger.Warn("step upsert failed", zap.String("step", string(step)), zap.Error(err))
	}
	return nil
}

// unwrap turns a step result into its value, logging and counting the
// degradation when the step failed.
func unwrap[T any](log *zap.Logger, step bookmarks.Step, res StepResult[T], def T) T {
	if res.Err != nil {
		log.Warn("step degraded", zap.String("step", string(step)), zap.Error(res.Err))
		metrics.ObserveStepDegraded(string(step))
		return def
	}
	return res.Value
}

func (o *Orchestrator) storeScreenshot(ctx context.Context, log *zap.Logger, item bookmarks.ProcessingItem, shot bookmarks.Screenshot) string {
	if shot.URI != "" {
		return shot.URI
	}
	if len(shot.Image) == 0 || o.blobs == nil {
		return ""
	}
	path := fmt.Sprintf("screenshots/%s/%s.png", item.UserID, item.ID)
	uri, err := o.blobs.PutObject(ctx, path, shot.ContentType, shot.Image)
	if err != nil {
		log.Warn("screenshot upload failed", zap.Error(err))
		metrics.ObserveStepDegraded(string(bookmarks.StepScreenshot))
		return ""
	}
	return uri
}

// fail records the error on the item so the client can render a retry
// affordance, and leaves the item in the registry.
func (o *Orchestrator) fail(ctx context.Context, item bookmarks.ProcessingItem, log *zap.Logger, err error) error {
	item.Status = bookmarks.StatusError
	item.ErrorText = err.Error()
	if upErr := o.registry.Upsert(ctx, item); upErr != nil {
		log.Warn("error upsert failed", zap.Error(upErr))
	}
	metrics.ObserveRun("error")
	log.Error("pipeline failed", zap.Error(err))
	return err
}

func (o *Orchestrator) publishSaved(ctx context.Context, log *zap.Logger, rec bookmarks.BookmarkRecord) {
	if o.publisher == nil {
		return
	}
	if _, err := o.publisher.Publish(ctx, TopicBookmarkSaved, SavedEvent{
		ID:        rec.ID,
		UserID:    rec.UserID,
		URL:       rec.URL,
		Title:     rec.Title,
		Tags:      rec.Tags,
		CreatedAt: rec.CreatedAt,
	}); err != nil {
		log.Warn("publish saved event failed", zap.Error(err))
	}
}

func mergeTags(existing, extra []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(extra))
	out := make([]string, 0, len(existing)+len(extra))
	for _, t := range existing {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	for _, t := range extra {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
