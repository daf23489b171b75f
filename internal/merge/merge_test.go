package merge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perchlink/perch/internal/bookmarks"
)

var base = time.Unix(1700000000, 0).UTC()

func TestCardsPersistedOnly(t *testing.T) {
	t.Parallel()

	persisted := []bookmarks.BookmarkRecord{
		{ID: "r-1", URL: "https://a.example", Title: "A", CreatedAt: base},
	}
	cards := Cards(persisted, nil, nil)
	require.Len(t, cards, 1)
	assert.Equal(t, "r-1", cards[0].ID)
	assert.Empty(t, cards[0].Status, "persisted-only cards carry no status")
	assert.Empty(t, cards[0].Step)
}

func TestCardsInFlightOnly(t *testing.T) {
	t.Parallel()

	inFlight := []bookmarks.ProcessingItem{
		{ID: "p-1", URL: "https://a.example", Step: bookmarks.StepMetadata, Status: bookmarks.StatusLoading, CreatedAt: base},
	}
	cards := Cards(nil, inFlight, nil)
	require.Len(t, cards, 1)
	assert.Equal(t, bookmarks.StatusLoading, cards[0].Status)
	assert.Equal(t, bookmarks.StepMetadata, cards[0].Step)
}

func TestCardsComposesBothSides(t *testing.T) {
	t.Parallel()

	persisted := []bookmarks.BookmarkRecord{
		{
			ID:          "r-1",
			URL:         "https://a.example",
			Title:       "Old title",
			Description: "Old description",
			Favicon:     "https://a.example/old.ico",
			CreatedAt:   base,
		},
	}
	inFlight := []bookmarks.ProcessingItem{
		{
			ID:        "p-1",
			URL:       "https://a.example",
			Title:     "Fresh title",
			Thumbnail: "gs://bucket/fresh.png",
			Step:      bookmarks.StepScreenshot,
			Status:    bookmarks.StatusLoading,
			CreatedAt: base.Add(time.Minute),
		},
	}
	cards := Cards(persisted, inFlight, nil)
	require.Len(t, cards, 1)

	card := cards[0]
	assert.Equal(t, "r-1", card.ID, "persisted fields are the base")
	assert.Equal(t, "Fresh title", card.Title, "non-empty in-flight fields win")
	assert.Equal(t, "Old description", card.Description, "empty in-flight fields keep the base")
	assert.Equal(t, "gs://bucket/fresh.png", card.Thumbnail)
	assert.Equal(t, bookmarks.StatusLoading, card.Status)
	assert.Equal(t, bookmarks.StepScreenshot, card.Step)
}

func TestCardsIgnoresFinishedRemnant(t *testing.T) {
	t.Parallel()

	persisted := []bookmarks.BookmarkRecord{
		{ID: "r-1", URL: "https://a.example", Title: "Saved", CreatedAt: base},
	}
	inFlight := []bookmarks.ProcessingItem{
		{ID: "p-1", URL: "https://a.example", Step: bookmarks.StepFinished, Status: bookmarks.StatusComplete, CreatedAt: base},
	}
	cards := Cards(persisted, inFlight, nil)
	require.Len(t, cards, 1)
	assert.Equal(t, "r-1", cards[0].ID)
	assert.Empty(t, cards[0].Status)
}

func TestCardsNeverEmitsCancelled(t *testing.T) {
	t.Parallel()

	inFlight := []bookmarks.ProcessingItem{
		{ID: "p-1", URL: "https://a.example", Status: bookmarks.StatusCancelled, CreatedAt: base},
		{ID: "p-2", URL: "https://b.example", Status: bookmarks.StatusLoading, CreatedAt: base},
	}
	flagged := func(id string) bool { return id == "p-2" }

	cards := Cards(nil, inFlight, flagged)
	assert.Empty(t, cards, "cancelled items must never resurrect a card")
}

func TestCardsOrdering(t *testing.T) {
	t.Parallel()

	persisted := []bookmarks.BookmarkRecord{
		{ID: "r-old", URL: "https://old.example", CreatedAt: base},
		{ID: "r-new", URL: "https://new.example", CreatedAt: base.Add(2 * time.Hour)},
	}
	inFlight := []bookmarks.ProcessingItem{
		{ID: "p-1", URL: "https://inflight.example", Status: bookmarks.StatusLoading, Step: bookmarks.StepScraping, CreatedAt: base.Add(time.Hour)},
	}
	cards := Cards(persisted, inFlight, nil)
	require.Len(t, cards, 3)
	assert.Equal(t, "p-1", cards[0].ID, "loading cards come first")
	assert.Equal(t, "r-new", cards[1].ID, "then newest persisted")
	assert.Equal(t, "r-old", cards[2].ID)
}
