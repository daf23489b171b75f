// Package merge combines persisted bookmark records with in-flight processing
// items into the single ordered card list served to polling clients.
package merge

import (
	"sort"

	"github.com/perchlink/perch/internal/bookmarks"
)

// Cards merges persisted records and in-flight items into one list. The two
// sides correlate by canonical URL, never by id, because a processing item and
// its eventual record carry independent identifiers. cancelled reports whether
// a run's cancellation flag is set; nil means no flags. Pure function, no I/O.
func Cards(
	persisted []bookmarks.BookmarkRecord,
	inFlight []bookmarks.ProcessingItem,
	cancelled func(id string) bool,
) []bookmarks.MergedCard {
	liveByURL := make(map[string]bookmarks.ProcessingItem, len(inFlight))
	for _, item := range inFlight {
		if item.Status == bookmarks.StatusCancelled {
			continue
		}
		if cancelled != nil && cancelled(item.ID) {
			continue
		}
		liveByURL[item.URL] = item
	}

	cards := make([]bookmarks.MergedCard, 0, len(persisted)+len(liveByURL))
	for _, rec := range persisted {
		item, live := liveByURL[rec.URL]
		if !live || item.Step.IsTerminal() {
			// A finished in-flight remnant is stale once the record
			// exists; the record alone is the truth.
			delete(liveByURL, rec.URL)
			cards = append(cards, recordCard(rec))
			continue
		}
		delete(liveByURL, rec.URL)
		cards = append(cards, composedCard(rec, item))
	}
	for _, item := range inFlight {
		if item, ok := liveByURL[item.URL]; ok {
			delete(liveByURL, item.URL)
			cards = append(cards, itemCard(item))
		}
	}

	sort.SliceStable(cards, func(i, j int) bool {
		iLoading := cards[i].Status == bookmarks.StatusLoading
		jLoading := cards[j].Status == bookmarks.StatusLoading
		if iLoading != jLoading {
			return iLoading
		}
		return cards[i].CreatedAt.After(cards[j].CreatedAt)
	})
	return cards
}

func recordCard(rec bookmarks.BookmarkRecord) bookmarks.MergedCard {
	return bookmarks.MergedCard{
		ID:          rec.ID,
		URL:         rec.URL,
		Title:       rec.Title,
		Description: rec.Description,
		Favicon:     rec.Favicon,
		Thumbnail:   rec.Thumbnail,
		Tags:        rec.Tags,
		CreatedAt:   rec.CreatedAt,
	}
}

func itemCard(item bookmarks.ProcessingItem) bookmarks.MergedCard {
	return bookmarks.MergedCard{
		ID:          item.ID,
		URL:         item.URL,
		Title:       item.Title,
		Description: item.Description,
		Favicon:     item.Favicon,
		Thumbnail:   item.Thumbnail,
		Tags:        item.Tags,
		Status:      item.Status,
		Step:        item.Step,
		CreatedAt:   item.CreatedAt,
	}
}

// composedCard overlays non-empty in-flight fields on the persisted base peer
// and forces loading status so the client keeps polling until the run ends.
func composedCard(rec bookmarks.BookmarkRecord, item bookmarks.ProcessingItem) bookmarks.MergedCard {
	card := recordCard(rec)
	if item.Title != "" {
		card.Title = item.Title
	}
	if item.Description != "" {
		card.Description = item.Description
	}
	if item.Favicon != "" {
		card.Favicon = item.Favicon
	}
	if item.Thumbnail != "" {
		card.Thumbnail = item.Thumbnail
	}
	if len(item.Tags) > 0 {
		card.Tags = item.Tags
	}
	card.Status = bookmarks.StatusLoading
	card.Step = item.Step
	return card
}
