// README: Dashboard match cache backed by Redis.
package matching

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"bookferry/internal/types"
)

const dashboardKeyPrefix = "matching:dashboard:%s"

type Store struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{redis: rdb, ttl: ttl}
}

// GetDashboard returns the cached dashboard for a user, if present.
func (s *Store) GetDashboard(ctx context.Context, userID types.ID) (*Dashboard, bool, error) {
	val, err := s.redis.Get(ctx, dashboardKey(userID)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var d Dashboard
	if err := json.Unmarshal([]byte(val), &d); err != nil {
		// A corrupt cache entry is treated as a miss and recomputed.
		return nil, false, nil
	}
	return &d, true, nil
}

func (s *Store) SetDashboard(ctx context.Context, userID types.ID, d *Dashboard) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, dashboardKey(userID), raw, s.ttl).Err()
}

// Invalidate drops a user's cached dashboard after one of their entities
// changes. Staleness is otherwise bounded by the TTL.
func (s *Store) Invalidate(ctx context.Context, userID types.ID) error {
	return s.redis.Del(ctx, dashboardKey(userID)).Err()
}

func dashboardKey(userID types.ID) string {
	return fmt.Sprintf(dashboardKeyPrefix, string(userID))
}
