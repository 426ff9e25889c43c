package dedup

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisWindow keeps the recent-title window in a Redis list so several
// hosts can share it.
type RedisWindow struct {
	rdb *redis.Client
	key string
}

// NewRedisWindow returns a window stored under key.
func NewRedisWindow(rdb *redis.Client, key string) *RedisWindow {
	return &RedisWindow{rdb: rdb, key: key}
}

// RecentTitles returns the window, oldest first.
func (w *RedisWindow) RecentTitles(ctx context.Context) ([]string, error) {
	titles, err := w.rdb.LRange(ctx, w.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", w.key, err)
	}
	return titles, nil
}

// AppendRecentTitles pushes titles and trims the list to the newest keep.
func (w *RedisWindow) AppendRecentTitles(ctx context.Context, titles []string, keep int) error {
	if len(titles) == 0 {
		return nil
	}
	values := make([]any, len(titles))
	for i, t := range titles {
		values[i] = t
	}
	pipe := w.rdb.TxPipeline()
	pipe.RPush(ctx, w.key, values...)
	if keep > 0 {
		pipe.LTrim(ctx, w.key, int64(-keep), -1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("updating %s: %w", w.key, err)
	}
	return nil
}
