package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/rs/zerolog/log"

	"github.com/importsize/importsize/internal/bundler"
	"github.com/importsize/importsize/internal/config"
	"github.com/importsize/importsize/internal/middleware"
	"github.com/importsize/importsize/internal/observability"
	"github.com/importsize/importsize/internal/ratelimit"
)

// Version is reported by the health endpoint and the server header
var Version = "dev"

// Server is the HTTP front end of the bundling pipeline
type Server struct {
	app       *fiber.App
	config    *config.Config
	stack     *bundler.Stack
	metrics   *observability.Metrics
	tracer    *observability.Tracer
	startTime time.Time
	limits    fiber.Storage

	bundleHandler *BundleHandler
}

// NewServer creates a new HTTP server. metrics may be nil.
func NewServer(cfg *config.Config, stack *bundler.Stack, metrics *observability.Metrics) *Server {
	app := fiber.New(fiber.Config{
		ServerHeader:          "importsize",
		AppName:               "importsize " + Version,
		BodyLimit:             cfg.Server.BodyLimit,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		DisableStartupMessage: !cfg.Debug,
		ErrorHandler:          customErrorHandler,
	})

	tracer, err := observability.NewTracer(context.Background(), cfg.Tracing.TracerConfig())
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize OpenTelemetry tracer, tracing will be disabled")
	}

	s := &Server{
		app:           app,
		config:        cfg,
		stack:         stack,
		metrics:       metrics,
		tracer:        tracer,
		startTime:     time.Now(),
		bundleHandler: NewBundleHandler(stack.Bundler, stack.Resolver),
	}

	if cfg.RateLimit.Enabled {
		limits, err := ratelimit.NewStorage(&cfg.RateLimit)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize rate limit storage, falling back to in-memory limits")
			limits, _ = ratelimit.NewStorage(&config.RateLimitConfig{Backend: "local"})
		}
		s.limits = limits
	}

	s.setupMiddlewares()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddlewares() {
	// Request ID middleware - must be first for tracing
	s.app.Use(requestid.New())

	if s.tracer != nil && s.tracer.IsEnabled() {
		log.Debug().Msg("Adding OpenTelemetry tracing middleware")
		s.app.Use(middleware.TracingMiddleware(middleware.DefaultTracingConfig()))
	}

	s.app.Use(middleware.StructuredLogger())

	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: s.config.Debug,
	}))

	// The web UI calls the API from other origins; no credentials are involved
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))

	if s.config.Metrics.Enabled {
		s.app.Use(s.metrics.MetricsMiddleware())
	}

	s.app.Use(compress.New(compress.Config{
		Level: compress.LevelDefault,
	}))
}

func (s *Server) setupRoutes() {
	s.app.Get("/health", s.handleHealth)

	if s.config.Metrics.Enabled && s.metrics != nil {
		s.app.Get("/metrics", s.metrics.Handler())
	}

	v1 := s.app.Group("/api/v1")
	if s.limits != nil {
		v1.Use(middleware.BundleLimiter(s.config.RateLimit.Max, s.config.RateLimit.Window, s.limits))
	}
	s.bundleHandler.RegisterRoutes(v1)

	// 404 handler
	s.app.Use(func(c *fiber.Ctx) error {
		return fiber.ErrNotFound
	})
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *fiber.Ctx) error {
	s.metrics.UpdateUptime(s.startTime)

	return c.JSON(fiber.Map{
		"status":  "ok",
		"version": Version,
		"cache": fiber.Map{
			"modules":  s.stack.Modules.Len(),
			"capacity": s.config.Cache.Modules,
		},
		"registry":       s.config.Registry.Root,
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
		"timestamp":      time.Now().UTC(),
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	return s.app.Listen(s.config.Server.Address)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	// Flush remaining spans
	if s.tracer != nil {
		if err := s.tracer.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to shutdown OpenTelemetry tracer")
		}
	}

	log.Info().Msg("Shutting down HTTP server")
	err := s.app.ShutdownWithContext(ctx)

	if s.limits != nil {
		if cerr := s.limits.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("Failed to close rate limit storage")
		}
	}
	return err
}

// App returns the underlying Fiber app instance for testing
func (s *Server) App() *fiber.App {
	return s.app
}
