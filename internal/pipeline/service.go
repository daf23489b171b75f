package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/perchlink/perch/internal/bookmarks"
	"github.com/perchlink/perch/internal/canonical"
	"github.com/perchlink/perch/internal/hash/sha256"
	"github.com/perchlink/perch/internal/merge"
)

// Service is the submission-side entry point: it canonicalizes, runs the
// duplicate guards, seeds the registry, and hands the run to the
// orchestrator. It also serves the merged card list and direct record
// creation and deletion.
type Service struct {
	registry   bookmarks.ProcessingRegistry
	store      bookmarks.BookmarkStore
	orch       *Orchestrator
	publisher  bookmarks.Publisher
	ids        bookmarks.IDGenerator
	clock      bookmarks.Clock
	cancelPoll time.Duration
	logger     *zap.Logger
}

// ServiceParams collects the service dependencies.
type ServiceParams struct {
	Registry     bookmarks.ProcessingRegistry
	Store        bookmarks.BookmarkStore
	Orchestrator *Orchestrator
	Publisher    bookmarks.Publisher
	IDs          bookmarks.IDGenerator
	Clock        bookmarks.Clock
	CancelPoll   time.Duration
	Logger       *zap.Logger
}

// NewService wires a Service. Publisher is optional.
func NewService(p ServiceParams) *Service {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	poll := p.CancelPoll
	if poll <= 0 {
		poll = 250 * time.Millisecond
	}
	return &Service{
		registry:   p.Registry,
		store:      p.Store,
		orch:       p.Orchestrator,
		publisher:  p.Publisher,
		ids:        p.IDs,
		clock:      p.Clock,
		cancelPoll: poll,
		logger:     logger,
	}
}

// ProcessResult reports the terminal outcome of one submission.
type ProcessResult struct {
	Record   bookmarks.BookmarkRecord
	Duration time.Duration
}

// Process drives one raw URL through the full pipeline. It returns
// ErrInvalidURL, ErrDuplicateBookmark, ErrAlreadyProcessing, or ErrCancelled
// for the corresponding short-circuit outcomes.
func (s *Service) Process(ctx context.Context, userID, rawURL string) (ProcessResult, error) {
	start := s.clock.Now()

	canon, err := canonical.Canonicalize(rawURL)
	if err != nil {
		return ProcessResult{}, err
	}
	variants := canonical.Variants(canon)

	if _, err := s.store.FindByURL(ctx, userID, variants); err == nil {
		return ProcessResult{}, bookmarks.ErrDuplicateBookmark
	}

	procID := sha256.ProcessingID(userID, canon)
	if s.hasLiveRun(ctx, userID, procID) {
		return ProcessResult{}, bookmarks.ErrAlreadyProcessing
	}

	// Run ids are deterministic, so a resubmission reuses the id of any
	// previously cancelled run and must start with a clean flag.
	s.registry.ClearCancelled(ctx, procID)

	item := bookmarks.ProcessingItem{
		ID:        procID,
		UserID:    userID,
		URL:       canon,
		Step:      bookmarks.StepScraping,
		Status:    bookmarks.StatusLoading,
		CreatedAt: s.clock.Now(),
	}
	if err := s.registry.Upsert(ctx, item); err != nil {
		s.logger.Warn("seed upsert failed", zap.String("processing_id", procID), zap.Error(err))
	}

	token := NewPollingToken(ctx, s.registry, procID, s.cancelPoll)
	defer token.Stop()

	rec, err := s.orch.Run(ctx, item, token)
	if err != nil {
		return ProcessResult{}, err
	}
	return ProcessResult{
		Record:   rec,
		Duration: s.clock.Now().Sub(start),
	}, nil
}

// Cancel flags the run for cooperative abort. Idempotent; cancelling an
// unknown id is not an error.
func (s *Service) Cancel(ctx context.Context, id string) error {
	return s.registry.MarkCancelled(ctx, id)
}

// Cards returns the merged view of persisted records and in-flight items.
func (s *Service) Cards(ctx context.Context, userID string) ([]bookmarks.MergedCard, error) {
	persisted, err := s.store.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list bookmarks: %w", err)
	}
	inFlight, err := s.registry.List(ctx, userID)
	if err != nil {
		s.logger.Warn("registry list failed", zap.String("user_id", userID), zap.Error(err))
		inFlight = nil
	}
	cancelled := func(id string) bool {
		return s.registry.IsCancelled(ctx, id)
	}
	return merge.Cards(persisted, inFlight, cancelled), nil
}

// CreateInput carries a pre-enriched record to store without running the
// pipeline.
type CreateInput struct {
	URL         string
	Title       string
	Description string
	Favicon     string
	Thumbnail   string
	Tags        []string
}

// Create stores a record directly, bypassing the pipeline. The duplicate
// guard over the URL variant set still applies.
func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (bookmarks.BookmarkRecord, error) {
	canon, err := canonical.Canonicalize(in.URL)
	if err != nil {
		return bookmarks.BookmarkRecord{}, err
	}
	if _, err := s.store.FindByURL(ctx, userID, canonical.Variants(canon)); err == nil {
		return bookmarks.BookmarkRecord{}, bookmarks.ErrDuplicateBookmark
	}

	id, err := s.ids.NewID()
	if err != nil {
		return bookmarks.BookmarkRecord{}, fmt.Errorf("generate record id: %w", err)
	}
	rec, err := s.store.Insert(ctx, bookmarks.BookmarkRecord{
		ID:          id,
		UserID:      userID,
		URL:         canon,
		Title:       in.Title,
		Description: in.Description,
		Favicon:     in.Favicon,
		Thumbnail:   in.Thumbnail,
		Tags:        in.Tags,
		CreatedAt:   s.clock.Now(),
	})
	if err != nil {
		return bookmarks.BookmarkRecord{}, fmt.Errorf("persist bookmark: %w", err)
	}
	s.publish(ctx, TopicBookmarkSaved, SavedEvent{
		ID:        rec.ID,
		UserID:    rec.UserID,
		URL:       rec.URL,
		Title:     rec.Title,
		Tags:      rec.Tags,
		CreatedAt: rec.CreatedAt,
	})
	return rec, nil
}

// Delete removes a persisted record and any lingering processing item for
// the same URL. Both removals are idempotent.
func (s *Service) Delete(ctx context.Context, id, userID string) error {
	var deletedURL string
	if recs, err := s.store.List(ctx, userID); err == nil {
		for _, rec := range recs {
			if rec.ID == id {
				deletedURL = rec.URL
				break
			}
		}
	}

	if err := s.store.Delete(ctx, id, userID); err != nil {
		return fmt.Errorf("delete bookmark: %w", err)
	}

	if err := s.registry.Remove(ctx, id); err != nil {
		s.logger.Warn("registry remove failed", zap.String("id", id), zap.Error(err))
	}
	if deletedURL != "" {
		procID := sha256.ProcessingID(userID, deletedURL)
		if err := s.registry.Remove(ctx, procID); err != nil {
			s.logger.Warn("registry remove failed", zap.String("id", procID), zap.Error(err))
		}
	}

	s.publish(ctx, TopicBookmarkDeleted, DeletedEvent{ID: id, UserID: userID, URL: deletedURL})
	return nil
}

// hasLiveRun reports whether a loading item with the given id is in the
// user's registry snapshot. Error-status items do not count; a resubmission
// replaces them.
func (s *Service) hasLiveRun(ctx context.Context, userID, procID string) bool {
	items, err := s.registry.List(ctx, userID)
	if err != nil {
		return false
	}
	for _, it := range items {
		if it.ID == procID && it.Status == bookmarks.StatusLoading {
			return true
		}
	}
	return false
}

func (s *Service) publish(ctx context.Context, topic string, payload any) {
	if s.publisher == nil {
		return
	}
	if _, err := s.publisher.Publish(ctx, topic, payload); err != nil {
		s.logger.Warn("publish event failed", zap.String("topic", topic), zap.Error(err))
	}
}
