package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"momento/internal/observability"

	"github.com/redis/go-redis/v9"
)

const (
	PostKeyPrefix = "post:%d"
	ViewKeyPrefix = "view:%d:%d"
)

const (
	PostTTL = 5 * time.Minute
)

func PostKey(postID uint) string {
	return fmt.Sprintf(PostKeyPrefix, postID)
}

// ViewKey marks that viewerID has been counted as a viewer of postID.
func ViewKey(postID, viewerID uint) string {
	return fmt.Sprintf(ViewKeyPrefix, postID, viewerID)
}

// GetJSON reads key into dest. Returns (true, nil) on a hit and (false, nil) on a miss.
func (s *Store) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	if !s.Enabled() {
		return false, nil
	}
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON marshals v and stores it under key with ttl.
func (s *Store) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	if !s.Enabled() {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, b, ttl).Err()
}

// Aside tries Redis first; on a miss it calls fetch, which must populate dest,
// then stores dest with ttl. Cache failures never fail the read.
func (s *Store) Aside(ctx context.Context, key string, dest any, ttl time.Duration, fetch func() error) error {
	found, err := s.GetJSON(ctx, key, dest)
	if err == nil && found {
		observability.CacheLookups.WithLabelValues("hit").Inc()
		return nil
	}
	observability.CacheLookups.WithLabelValues("miss").Inc()

	if err := fetch(); err != nil {
		return err
	}

	_ = s.SetJSON(ctx, key, dest, ttl)
	return nil
}

// Invalidate removes keys, ignoring errors.
func (s *Store) Invalidate(ctx context.Context, keys ...string) {
	if !s.Enabled() || len(keys) == 0 {
		return
	}
	s.client.Del(ctx, keys...)
}

// InvalidatePost drops the cached snapshot of postID.
func (s *Store) InvalidatePost(ctx context.Context, postID uint) {
	s.Invalidate(ctx, PostKey(postID))
}

// MarkOnce sets key if absent and reports whether this call set it. Without a
// client every call reports true.
func (s *Store) MarkOnce(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if !s.Enabled() {
		return true, nil
	}
	return s.client.SetNX(ctx, key, 1, ttl).Result()
}
