package middleware

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/storage/memory/v2"
)

// RateLimiterConfig holds configuration for rate limiting
type RateLimiterConfig struct {
	Name       string                  // Prefix of the storage keys
	Max        int                     // Maximum number of requests
	Expiration time.Duration           // Time window for the rate limit
	KeyFunc    func(*fiber.Ctx) string // Function to generate the key for rate limiting
	Message    string                  // Custom error message
	Storage    fiber.Storage           // Counter storage, in-memory when nil
}

// NewRateLimiter creates a new rate limiter middleware with custom configuration
func NewRateLimiter(config RateLimiterConfig) fiber.Handler {
	storage := config.Storage
	if storage == nil {
		storage = memory.New(memory.Config{
			GCInterval: 10 * time.Minute,
		})
	}

	// Default key function uses IP address
	keyFunc := config.KeyFunc
	if keyFunc == nil {
		keyFunc = func(c *fiber.Ctx) string {
			return c.IP()
		}
	}
	if config.Name != "" {
		inner := keyFunc
		keyFunc = func(c *fiber.Ctx) string {
			return config.Name + ":" + inner(c)
		}
	}

	if config.Message == "" {
		config.Message = fmt.Sprintf("Rate limit exceeded. Maximum %d requests per %s allowed.",
			config.Max, config.Expiration.String())
	}

	return limiter.New(limiter.Config{
		Max:          config.Max,
		Expiration:   config.Expiration,
		KeyGenerator: keyFunc,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "Rate limit exceeded",
				"code":        "RATE_LIMITED",
				"message":     config.Message,
				"retry_after": int(config.Expiration.Seconds()),
			})
		},
		Storage: storage,
	})
}

// BundleLimiter limits bundle and resolve requests per IP
func BundleLimiter(max int, window time.Duration, storage fiber.Storage) fiber.Handler {
	return NewRateLimiter(RateLimiterConfig{
		Name:       "bundle",
		Max:        max,
		Expiration: window,
		Storage:    storage,
		Message:    fmt.Sprintf("Too many bundle requests. Please try again in %s.", window),
	})
}
