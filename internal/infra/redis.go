// README: Redis client initialization for the dashboard match cache.
package infra

import (
	"github.com/redis/go-redis/v9"

	"bookferry/internal/config"
)

func NewRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}
