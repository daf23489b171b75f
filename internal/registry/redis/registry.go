// Package redis implements the processing registry on a Redis backend so
// in-flight state survives process restarts and is shared across replicas.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/perchlink/perch/internal/bookmarks"
)

const (
	// itemTTL bounds how long an orphaned item can linger if a process dies
	// mid-run and never removes it.
	itemTTL = time.Hour
	// cancelTTL keeps the flag long enough for a slow run to observe it.
	cancelTTL = 10 * time.Minute
)

// Registry stores processing items in Redis. The registry is best-effort
// transient state: every operation degrades to a no-op (or an empty result)
// when Redis is unreachable, so a registry outage only stalls progress UI.
type Registry struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRegistry wires a Redis client and logger.
func NewRegistry(client *redis.Client, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{client: client, logger: logger}
}

// Upsert inserts or replaces the item with a matching id.
func (r *Registry) Upsert(ctx context.Context, item bookmarks.ProcessingItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return err
	}
	pipe := r.client.Pipeline()
	pipe.Set(ctx, itemKey(item.ID), data, itemTTL)
	pipe.SAdd(ctx, userKey(item.UserID), item.ID)
	pipe.Expire(ctx, userKey(item.UserID), itemTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Warn("registry upsert failed", zap.String("id", item.ID), zap.Error(err))
	}
	return nil
}

// List returns a snapshot of the user's in-flight items. Ids whose payload has
// expired are pruned from the set as they are encountered.
func (r *Registry) List(ctx context.Context, userID string) ([]bookmarks.ProcessingItem, error) {
	ids, err := r.client.SMembers(ctx, userKey(userID)).Result()
	if err != nil {
		r.logger.Warn("registry list failed", zap.String("user_id", userID), zap.Error(err))
		return nil, nil
	}
	items := make([]bookmarks.ProcessingItem, 0, len(ids))
	for _, id := range ids {
		data, err := r.client.Get(ctx, itemKey(id)).Bytes()
		if errors.Is(err, redis.Nil) {
			r.client.SRem(ctx, userKey(userID), id)
			continue
		}
		if err != nil {
			continue
		}
		var item bookmarks.ProcessingItem
		if err := json.Unmarshal(data, &item); err != nil {
			r.logger.Warn("registry item corrupt", zap.String("id", id), zap.Error(err))
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// Remove deletes the item and its set membership; absent ids are a no-op.
func (r *Registry) Remove(ctx context.Context, id string) error {
	item, ok := r.getItem(ctx, id)
	pipe := r.client.Pipeline()
	pipe.Del(ctx, itemKey(id))
	if ok {
		pipe.SRem(ctx, userKey(item.UserID), id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Warn("registry remove failed", zap.String("id", id), zap.Error(err))
	}
	return nil
}

// MarkCancelled sets the cancellation flag and removes the item so the run
// never surfaces through List again.
func (r *Registry) MarkCancelled(ctx context.Context, id string) error {
	if err := r.client.Set(ctx, cancelKey(id), "1", cancelTTL).Err(); err != nil {
		r.logger.Warn("registry cancel flag failed", zap.String("id", id), zap.Error(err))
	}
	return r.Remove(ctx, id)
}

// IsCancelled observes the cancellation flag. Unreachable Redis reads as not
// cancelled; the run then finishes normally, which is the safe default.
func (r *Registry) IsCancelled(ctx context.Context, id string) bool {
	n, err := r.client.Exists(ctx, cancelKey(id)).Result()
	if err != nil {
		return false
	}
	return n > 0
}

// ClearCancelled resets the flag before a resubmission reuses the run id.
func (r *Registry) ClearCancelled(ctx context.Context, id string) {
	if err := r.client.Del(ctx, cancelKey(id)).Err(); err != nil {
		r.logger.Warn("registry cancel clear failed", zap.String("id", id), zap.Error(err))
	}
}

func (r *Registry) getItem(ctx context.Context, id string) (bookmarks.ProcessingItem, bool) {
	data, err := r.client.Get(ctx, itemKey(id)).Bytes()
	if err != nil {
		return bookmarks.ProcessingItem{}, false
	}
	var item bookmarks.ProcessingItem
	if err := json.Unmarshal(data, &item); err != nil {
		return bookmarks.ProcessingItem{}, false
	}
	return item, true
}
