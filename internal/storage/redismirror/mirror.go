// Package redismirror keeps a secondary per-user snapshot of bookmark records
// in Redis. The snapshot shadows the primary store so reads and writes can
// fall back to it when Postgres is unreachable, degrading the product to
// cache-only instead of failing outright.
package redismirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/perchlink/perch/internal/bookmarks"
)

const keyPrefixSnapshot = "perch:bookmarks:user:"

// snapshotKey returns the Redis hash key holding a user's records by id.
func snapshotKey(userID string) string {
	return keyPrefixSnapshot + userID
}

// Mirror implements bookmarks.MirrorStore on a Redis hash per user.
type Mirror struct {
	client *redis.Client
	logger *zap.Logger
}

// New wires a Redis client and logger.
func New(client *redis.Client, logger *zap.Logger) *Mirror {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mirror{client: client, logger: logger}
}

// Insert stores one record in the user's snapshot.
func (m *Mirror) Insert(ctx context.Context, rec bookmarks.BookmarkRecord) (bookmarks.BookmarkRecord, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return bookmarks.BookmarkRecord{}, fmt.Errorf("marshal record: %w", err)
	}
	if err := m.client.HSet(ctx, snapshotKey(rec.UserID), rec.ID, data).Err(); err != nil {
		return bookmarks.BookmarkRecord{}, fmt.Errorf("mirror insert: %w", err)
	}
	return rec, nil
}

// List returns every record in the user's snapshot, unordered.
func (m *Mirror) List(ctx context.Context, userID string) ([]bookmarks.BookmarkRecord, error) {
	vals, err := m.client.HVals(ctx, snapshotKey(userID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("mirror list: %w", err)
	}
	out := make([]bookmarks.BookmarkRecord, 0, len(vals))
	for _, v := range vals {
		var rec bookmarks.BookmarkRecord
		if err := json.Unmarshal([]byte(v), &rec); err != nil {
			m.logger.Warn("mirror record corrupt", zap.String("user_id", userID), zap.Error(err))
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Delete removes one record from the user's snapshot; absent ids are a no-op.
func (m *Mirror) Delete(ctx context.Context, id, userID string) error {
	if err := m.client.HDel(ctx, snapshotKey(userID), id).Err(); err != nil {
		return fmt.Errorf("mirror delete: %w", err)
	}
	return nil
}

// FindByURL scans the snapshot for a record whose URL matches any variant.
func (m *Mirror) FindByURL(ctx context.Context, userID string, urls []string) (bookmarks.BookmarkRecord, error) {
	recs, err := m.List(ctx, userID)
	if err != nil {
		return bookmarks.BookmarkRecord{}, err
	}
	variant := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		variant[u] = struct{}{}
	}
	for _, rec := range recs {
		if _, ok := variant[rec.URL]; ok {
			return rec, nil
		}
	}
	return bookmarks.BookmarkRecord{}, bookmarks.ErrNotFound
}

// Replace atomically rewrites the user's snapshot from a primary read.
func (m *Mirror) Replace(ctx context.Context, userID string, recs []bookmarks.BookmarkRecord) error {
	fields := make(map[string]any, len(recs))
	for _, rec := range recs {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		fields[rec.ID] = data
	}
	pipe := m.client.TxPipeline()
	pipe.Del(ctx, snapshotKey(userID))
	if len(fields) > 0 {
		pipe.HSet(ctx, snapshotKey(userID), fields)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("mirror replace: %w", err)
	}
	return nil
}
