package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	blobmem "github.com/perchlink/perch/internal/blob/memory"
	"github.com/perchlink/perch/internal/bookmarks"
	"github.com/perchlink/perch/internal/hash/sha256"
	"github.com/perchlink/perch/internal/metrics"
	pubmem "github.com/perchlink/perch/internal/publisher/memory"
	regmem "github.com/perchlink/perch/internal/registry/memory"
	storemem "github.com/perchlink/perch/internal/storage/memory"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time {
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

type seqIDs struct{ n atomic.Int64 }

func (g *seqIDs) NewID() (string, error) {
	return fmt.Sprintf("rec-%d", g.n.Add(1)), nil
}

type stubScraper struct {
	content string
	err     error
	calls   atomic.Int64
}

func (s *stubScraper) Scrape(ctx context.Context, url string) (string, error) {
	s.calls.Add(1)
	return s.content, s.err
}

type stubExtractor struct {
	meta bookmarks.PageMetadata
	err  error
}

func (s *stubExtractor) Extract(ctx context.Context, url, content string) (bookmarks.PageMetadata, error) {
	return s.meta, s.err
}

type stubShooter struct {
	shot bookmarks.Screenshot
	err  error
}

func (s *stubShooter) Capture(ctx context.Context, url string) (bookmarks.Screenshot, error) {
	return s.shot, s.err
}

type stubTagger struct {
	tags []string
	err  error
}

func (s *stubTagger) Tags(ctx context.Context, url, content string) ([]string, error) {
	return s.tags, s.err
}

// failingStore rejects inserts but serves the read-side duplicate guard.
type failingStore struct{}

func (failingStore) Insert(ctx context.Context, rec bookmarks.BookmarkRecord) (bookmarks.BookmarkRecord, error) {
	return bookmarks.BookmarkRecord{}, errors.New("store down")
}

func (failingStore) List(ctx context.Context, userID string) ([]bookmarks.BookmarkRecord, error) {
	return nil, nil
}

func (failingStore) Delete(ctx context.Context, id, userID string) error {
	return nil
}

func (failingStore) FindByURL(ctx context.Context, userID string, urls []string) (bookmarks.BookmarkRecord, error) {
	return bookmarks.BookmarkRecord{}, bookmarks.ErrNotFound
}

type harness struct {
	registry  *regmem.Registry
	store     *storemem.BookmarkStore
	blobs     *blobmem.BlobStore
	publisher *pubmem.Publisher
	scraper   *stubScraper
	extractor *stubExtractor
	shooter   *stubShooter
	tagger    *stubTagger
	svc       *Service
}

func newHarness(t *testing.T, mutate func(p *OrchestratorParams)) *harness {
	t.Helper()
	metrics.Init()
	h := &harness{
		registry:  regmem.NewRegistry(),
		store:     storemem.NewBookmarkStore(),
		blobs:     blobmem.New(),
		publisher: pubmem.New(),
		scraper:   &stubScraper{content: "page text"},
		extractor: &stubExtractor{meta: bookmarks.PageMetadata{
			Title:       "Example Title",
			Description: "Example description",
			Favicon:     "https://example.com/favicon.ico",
		}},
		shooter: &stubShooter{shot: bookmarks.Screenshot{
			Image:       []byte{0x89, 0x50},
			ContentType: "image/png",
		}},
		tagger: &stubTagger{tags: []string{"go", "testing"}},
	}
	clock := &fakeClock{now: time.Unix(1700000000, 0).UTC()}
	ids := &seqIDs{}

	params := OrchestratorParams{
		Registry:      h.registry,
		Store:         h.store,
		Scraper:       h.scraper,
		Metadata:      h.extractor,
		Screenshotter: h.shooter,
		Tagger:        h.tagger,
		Blobs:         h.blobs,
		Publisher:     h.publisher,
		IDs:           ids,
		Clock:         clock,
		Timeouts:      Timeouts{Scrape: time.Second, Metadata: time.Second, Screenshot: time.Second, AI: time.Second},
		Logger:        zap.NewNop(),
	}
	if mutate != nil {
		mutate(&params)
	}
	orch := NewOrchestrator(params)
	h.svc = NewService(ServiceParams{
		Registry:     h.registry,
		Store:        params.Store,
		Orchestrator: orch,
		Publisher:    h.publisher,
		IDs:          ids,
		Clock:        clock,
		CancelPoll:   5 * time.Millisecond,
		Logger:       zap.NewNop(),
	})
	return h
}

func TestProcessHappyPath(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	res, err := h.svc.Process(t.Context(), "user-1", "https://Example.com/Path/?utm_source=x")
	require.NoError(t, err)

	rec := res.Record
	assert.Equal(t, "https://example.com/Path", rec.URL)
	assert.Equal(t, "Example Title", rec.Title)
	assert.Equal(t, "Example description", rec.Description)
	assert.Equal(t, []string{"go", "testing"}, rec.Tags)
	assert.Contains(t, rec.Thumbnail, "mem://screenshots/user-1/")
	assert.Greater(t, res.Duration, time.Duration(0))

	// The registry item is gone once the run finishes.
	items, err := h.registry.List(t.Context(), "user-1")
	require.NoError(t, err)
	assert.Empty(t, items)

	// Exactly one record persisted, visible through the store.
	recs, err := h.store.List(t.Context(), "user-1")
	require.NoError(t, err)
	require.Len(t, recs, 1)

	// Completion event published.
	msgs := h.publisher.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, TopicBookmarkSaved, msgs[0].Topic)
}

func TestProcessInvalidURL(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	_, err := h.svc.Process(t.Context(), "user-1", "http://%zz")
	require.ErrorIs(t, err, bookmarks.ErrInvalidURL)
}

func TestProcessDuplicateAcrossVariants(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	_, err := h.svc.Process(t.Context(), "user-1", "https://www.example.org")
	require.NoError(t, err)

	_, err = h.svc.Process(t.Context(), "user-1", "http://example.org")
	require.ErrorIs(t, err, bookmarks.ErrDuplicateBookmark)

	recs, listErr := h.store.List(t.Context(), "user-1")
	require.NoError(t, listErr)
	assert.Len(t, recs, 1, "second submission must never create a second record")
}

func TestProcessAlreadyProcessing(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	procID := sha256.ProcessingID("user-1", "https://example.com/live")
	require.NoError(t, h.registry.Upsert(t.Context(), bookmarks.ProcessingItem{
		ID:     procID,
		UserID: "user-1",
		URL:    "https://example.com/live",
		Step:   bookmarks.StepMetadata,
		Status: bookmarks.StatusLoading,
	}))

	_, err := h.svc.Process(t.Context(), "user-1", "https://example.com/live")
	require.ErrorIs(t, err, bookmarks.ErrAlreadyProcessing)
}

func TestProcessDegradedStepsStillFinish(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.scraper.err = errors.New("scrape service down")
	h.shooter.err = errors.New("screenshot service down")
	h.tagger.err = errors.New("tag service down")

	res, err := h.svc.Process(t.Context(), "user-1", "https://example.com/degraded")
	require.NoError(t, err, "non-critical step failures must not fail the run")
	assert.Equal(t, "Example Title", res.Record.Title)
	assert.Empty(t, res.Record.Thumbnail)
	assert.Empty(t, res.Record.Tags)
}

func TestProcessCancelledBeforeStart(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	orch := NewOrchestrator(OrchestratorParams{
		Registry:      h.registry,
		Store:         h.store,
		Scraper:       h.scraper,
		Metadata:      h.extractor,
		Screenshotter: h.shooter,
		Tagger:        h.tagger,
		IDs:           &seqIDs{},
		Clock:         &fakeClock{now: time.Unix(1700000000, 0).UTC()},
		Logger:        zap.NewNop(),
	})

	item := bookmarks.ProcessingItem{ID: "run-1", UserID: "user-1", URL: "https://example.com"}
	_, err := orch.Run(t.Context(), item, NewCancelledToken())
	require.ErrorIs(t, err, bookmarks.ErrCancelled)

	// Nothing persisted, nothing scraped.
	recs, listErr := h.store.List(t.Context(), "user-1")
	require.NoError(t, listErr)
	assert.Empty(t, recs)
	assert.Zero(t, h.scraper.calls.Load())
}

func TestProcessCancelledMidRun(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	slowScraper := &blockingScraper{started: make(chan struct{})}

	orch := NewOrchestrator(OrchestratorParams{
		Registry:      h.registry,
		Store:         h.store,
		Scraper:       slowScraper,
		Metadata:      h.extractor,
		Screenshotter: h.shooter,
		Tagger:        h.tagger,
		IDs:           &seqIDs{},
		Clock:         &fakeClock{now: time.Unix(1700000000, 0).UTC()},
		Timeouts:      Timeouts{Scrape: 5 * time.Second},
		Logger:        zap.NewNop(),
	})
	svc := NewService(ServiceParams{
		Registry:     h.registry,
		Store:        h.store,
		Orchestrator: orch,
		IDs:          &seqIDs{},
		Clock:        &fakeClock{now: time.Unix(1700000000, 0).UTC()},
		CancelPoll:   5 * time.Millisecond,
		Logger:       zap.NewNop(),
	})

	procID := sha256.ProcessingID("user-1", "https://example.com/slow")
	errCh := make(chan error, 1)
	go func() {
		_, err := svc.Process(context.Background(), "user-1", "https://example.com/slow")
		errCh <- err
	}()

	<-slowScraper.started
	require.NoError(t, svc.Cancel(context.Background(), procID))

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, bookmarks.ErrCancelled)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not unwind after cancellation")
	}

	// No record persisted and no registry item left behind.
	recs, err := h.store.List(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Empty(t, recs)
	items, err := h.registry.List(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Empty(t, items)
}

// blockingScraper blocks until its step context is aborted, simulating a
// hung scrape service during cancellation.
type blockingScraper struct {
	started chan struct{}
	once    atomic.Bool
}

func (s *blockingScraper) Scrape(ctx context.Context, url string) (string, error) {
	if s.once.CompareAndSwap(false, true) {
		close(s.started)
	}
	<-ctx.Done()
	return "", ctx.Err()
}

func TestProcessPersistenceFailureSurfacesError(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(p *OrchestratorParams) {
		p.Store = failingStore{}
	})
	_, err := h.svc.Process(t.Context(), "user-1", "https://example.com/failing")
	require.Error(t, err)
	require.NotErrorIs(t, err, bookmarks.ErrCancelled)

	// The item stays in the registry with an error status so the client can
	// offer retry.
	items, listErr := h.registry.List(t.Context(), "user-1")
	require.NoError(t, listErr)
	require.Len(t, items, 1)
	assert.Equal(t, bookmarks.StatusError, items[0].Status)
	assert.NotEmpty(t, items[0].ErrorText)
}

func TestCancelIsIdempotent(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	require.NoError(t, h.svc.Cancel(t.Context(), "unknown-id"))
	require.NoError(t, h.svc.Cancel(t.Context(), "unknown-id"))
}

func TestResubmitAfterCancelRuns(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	procID := sha256.ProcessingID("user-1", "https://example.com/again")
	require.NoError(t, h.registry.MarkCancelled(t.Context(), procID))

	// The stale flag from the cancelled run must not abort the new one.
	res, err := h.svc.Process(t.Context(), "user-1", "https://example.com/again")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/again", res.Record.URL)
}

func TestCardsMergesStoreAndRegistry(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	_, err := h.svc.Process(t.Context(), "user-1", "https://example.com/done")
	require.NoError(t, err)

	require.NoError(t, h.registry.Upsert(t.Context(), bookmarks.ProcessingItem{
		ID:        "run-live",
		UserID:    "user-1",
		URL:       "https://example.com/inflight",
		Step:      bookmarks.StepScreenshot,
		Status:    bookmarks.StatusLoading,
		CreatedAt: time.Unix(1800000000, 0).UTC(),
	}))

	cards, err := h.svc.Cards(t.Context(), "user-1")
	require.NoError(t, err)
	require.Len(t, cards, 2)
	assert.Equal(t, bookmarks.StatusLoading, cards[0].Status, "in-flight card sorts first")
	assert.Equal(t, "https://example.com/inflight", cards[0].URL)
	assert.Empty(t, cards[1].Status, "persisted card has no status")
}

func TestCreateAndDelete(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	rec, err := h.svc.Create(t.Context(), "user-1", CreateInput{
		URL:   "https://Example.com/manual/",
		Title: "Manual",
		Tags:  []string{"manual"},
	})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/manual", rec.URL)

	_, err = h.svc.Create(t.Context(), "user-1", CreateInput{URL: "http://www.example.com/manual"})
	require.ErrorIs(t, err, bookmarks.ErrDuplicateBookmark)

	require.NoError(t, h.svc.Delete(t.Context(), rec.ID, "user-1"))
	recs, err := h.store.List(t.Context(), "user-1")
	require.NoError(t, err)
	assert.Empty(t, recs)

	msgs := h.publisher.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, TopicBookmarkDeleted, msgs[1].Topic)
}

func TestTokenPolling(t *testing.T) {
	t.Parallel()

	reg := regmem.NewRegistry()
	token := NewPollingToken(t.Context(), reg, "run-1", time.Millisecond)
	defer token.Stop()
	assert.False(t, token.Cancelled())

	require.NoError(t, reg.MarkCancelled(t.Context(), "run-1"))
	select {
	case <-token.Done():
	case <-time.After(time.Second):
		t.Fatal("token did not trip after MarkCancelled")
	}
	assert.True(t, token.Cancelled())
}
