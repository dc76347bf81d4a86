package api

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/importsize/importsize/internal/bundler"
	"github.com/importsize/importsize/internal/config"
	"github.com/importsize/importsize/internal/observability"
)

const shutdownTimeout = 30 * time.Second

// Run serves the API until ctx is cancelled, then shuts down gracefully
func Run(ctx context.Context, cfg *config.Config) error {
	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics(prometheus.DefaultRegisterer)
	}

	stack, err := bundler.NewStack(cfg, metrics)
	if err != nil {
		return err
	}
	server := NewServer(cfg, stack, metrics)

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("address", cfg.Server.Address).
			Str("registry", cfg.Registry.Root).
			Msg("Starting importsize server")
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server stopped: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info().Msg("Server exited")
	return nil
}
