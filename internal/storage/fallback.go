// Package storage composes the primary bookmark store with its secondary
// mirror into one dual-path store.
package storage

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/perchlink/perch/internal/bookmarks"
	"github.com/perchlink/perch/internal/metrics"
)

// Fallback decorates a primary store with a secondary mirror. Successful
// primary writes are shadowed into the mirror best-effort; when the primary is
// unreachable, reads and writes operate directly on the mirror so the user
// experience degrades to cache-only rather than failing.
type Fallback struct {
	primary bookmarks.BookmarkStore
	mirror  bookmarks.MirrorStore
	logger  *zap.Logger
}

// NewFallback wires the two stores.
func NewFallback(primary bookmarks.BookmarkStore, mirror bookmarks.MirrorStore, logger *zap.Logger) *Fallback {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fallback{primary: primary, mirror: mirror, logger: logger}
}

// Insert writes to the primary and shadows the record into the mirror. When
// the primary write fails the record lands in the mirror alone; the next
// successful List reconciles it back into the primary.
func (f *Fallback) Insert(ctx context.Context, rec bookmarks.BookmarkRecord) (bookmarks.BookmarkRecord, error) {
	stored, err := f.primary.Insert(ctx, rec)
	if err == nil {
		if _, mErr := f.mirror.Insert(ctx, stored); mErr != nil {
			f.logger.Warn("mirror shadow insert failed", zap.String("id", stored.ID), zap.Error(mErr))
		}
		return stored, nil
	}

	f.logger.Warn("primary insert failed, falling back to mirror", zap.String("id", rec.ID), zap.Error(err))
	metrics.ObserveStoreFallback("insert")
	stored, mErr := f.mirror.Insert(ctx, rec)
	if mErr != nil {
		return bookmarks.BookmarkRecord{}, fmt.Errorf("insert failed on primary (%v) and mirror: %w", err, mErr)
	}
	return stored, nil
}

// List reads from the primary, reconciling the mirror afterwards; if the
// primary is unreachable it serves the mirror snapshot.
func (f *Fallback) List(ctx context.Context, userID string) ([]bookmarks.BookmarkRecord, error) {
	recs, err := f.primary.List(ctx, userID)
	if err != nil {
		f.logger.Warn("primary list failed, serving mirror snapshot", zap.String("user_id", userID), zap.Error(err))
		metrics.ObserveStoreFallback("list")
		return f.mirror.List(ctx, userID)
	}
	return f.reconcile(ctx, userID, recs), nil
}

// Delete removes from both stores. A primary failure is tolerated as long as
// the mirror delete lands.
func (f *Fallback) Delete(ctx context.Context, id, userID string) error {
	pErr := f.primary.Delete(ctx, id, userID)
	mErr := f.mirror.Delete(ctx, id, userID)
	if pErr != nil && mErr != nil {
		return fmt.Errorf("delete failed on primary (%v) and mirror: %w", pErr, mErr)
	}
	if pErr != nil {
		f.logger.Warn("primary delete failed, mirror updated", zap.String("id", id), zap.Error(pErr))
		metrics.ObserveStoreFallback("delete")
	}
	if mErr != nil {
		f.logger.Warn("mirror delete failed", zap.String("id", id), zap.Error(mErr))
	}
	return nil
}

// FindByURL consults both stores: a record inserted into the mirror during a
// primary outage still blocks duplicate submissions.
func (f *Fallback) FindByURL(ctx context.Context, userID string, urls []string) (bookmarks.BookmarkRecord, error) {
	rec, err := f.primary.FindByURL(ctx, userID, urls)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, bookmarks.ErrNotFound) {
		f.logger.Warn("primary url lookup failed, checking mirror", zap.String("user_id", userID), zap.Error(err))
		metrics.ObserveStoreFallback("find_by_url")
	}
	return f.mirror.FindByURL(ctx, userID, urls)
}

// reconcile converges the mirror with a fresh primary read. Records that exist
// only in the mirror (inserted while the primary was down) are re-inserted
// into the primary under their mirror id, then the snapshot is rewritten, so
// one URL never keeps two divergent ids once the primary recovers.
func (f *Fallback) reconcile(ctx context.Context, userID string, primaryRecs []bookmarks.BookmarkRecord) []bookmarks.BookmarkRecord {
	out := primaryRecs
	mirrorRecs, err := f.mirror.List(ctx, userID)
	if err == nil {
		byURL := make(map[string]struct{}, len(primaryRecs))
		for _, rec := range primaryRecs {
			byURL[rec.URL] = struct{}{}
		}
		for _, rec := range mirrorRecs {
			if _, dup := byURL[rec.URL]; dup {
				continue
			}
			if _, insErr := f.primary.Insert(ctx, rec); insErr != nil {
				f.logger.Warn("mirror-only record re-insert failed", zap.String("id", rec.ID), zap.Error(insErr))
				continue
			}
			f.logger.Info("re-inserted mirror-only record into primary", zap.String("id", rec.ID))
			out = append(out, rec)
		}
	}
	if err := f.mirror.Replace(ctx, userID, out); err != nil {
		f.logger.Warn("mirror snapshot refresh failed", zap.String("user_id", userID), zap.Error(err))
	}
	return out
}
