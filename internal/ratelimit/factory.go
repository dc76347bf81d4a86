// Package ratelimit provides the storage backends behind the API rate limiter.
package ratelimit

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/storage/memory/v2"
	"github.com/rs/zerolog/log"

	"github.com/importsize/importsize/internal/config"
)

const gcInterval = 10 * time.Minute

// NewStorage creates the limiter storage selected by cfg.Backend.
//
// Backend options:
// - "local": in-memory counters, one set per instance (default)
// - "redis": Redis-compatible counters shared by every instance
func NewStorage(cfg *config.RateLimitConfig) (fiber.Storage, error) {
	switch cfg.Backend {
	case "local", "":
		log.Debug().Msg("Using in-memory rate limit storage")
		return memory.New(memory.Config{GCInterval: gcInterval}), nil

	case "redis":
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("redis_url is required for redis rate limit backend")
		}
		storage, err := NewRedisStorage(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		return storage, nil

	default:
		return nil, fmt.Errorf("unknown rate limit backend: %s (valid options: local, redis)", cfg.Backend)
	}
}
