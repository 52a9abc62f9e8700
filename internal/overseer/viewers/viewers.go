// Package viewers implements the distributed viewer-count tracker per
// spec.md §4.5/§5: a sorted-set keyed by stream, scored by last-seen
// timestamp, so a viewer who stops polling ages out without an explicit
// leave signal.
package viewers

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Tracker tracks distinct viewer ids per stream in Redis sorted sets.
type Tracker struct {
	client *redis.Client
	ttl    time.Duration
}

// New creates a Tracker against the given Redis connection options.
func New(addr, password string, db int, ttl time.Duration) *Tracker {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &Tracker{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		ttl: ttl,
	}
}

func streamKey(streamID uuid.UUID) string {
	return fmt.Sprintf("zapengine:viewers:%s", streamID.String())
}

// Touch registers viewerID as actively watching streamID, refreshing its
// expiry score to now. An add-with-expiry atomic per-stream operation, per
// spec.md §5's "Shared resources" description of the viewer store.
func (t *Tracker) Touch(ctx context.Context, streamID uuid.UUID, viewerID string) error {
	key := streamKey(streamID)
	now := float64(time.Now().Unix())
	if err := t.client.ZAdd(ctx, key, redis.Z{Score: now, Member: viewerID}).Err(); err != nil {
		return fmt.Errorf("viewers: touch: %w", err)
	}
	if err := t.client.Expire(ctx, key, t.ttl*2).Err(); err != nil {
		return fmt.Errorf("viewers: setting key expiry: %w", err)
	}
	return nil
}

// Count returns the number of distinct viewers seen within the TTL
// window, pruning stale entries first.
func (t *Tracker) Count(ctx context.Context, streamID uuid.UUID) (int64, error) {
	key := streamKey(streamID)
	cutoff := float64(time.Now().Add(-t.ttl).Unix())

	if err := t.client.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("%f", cutoff)).Err(); err != nil {
		return 0, fmt.Errorf("viewers: pruning stale entries: %w", err)
	}

	count, err := t.client.ZCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("viewers: counting: %w", err)
	}
	return count, nil
}

// Remove deletes the viewer set for a stream entirely, called on
// end-stream per spec.md §4.5.
func (t *Tracker) Remove(ctx context.Context, streamID uuid.UUID) error {
	if err := t.client.Del(ctx, streamKey(streamID)).Err(); err != nil {
		return fmt.Errorf("viewers: removing stream set: %w", err)
	}
	return nil
}

// Close releases the underlying Redis connection pool.
func (t *Tracker) Close() error {
	return t.client.Close()
}
