package bundler

import (
	"fmt"

	"github.com/importsize/importsize/internal/cache"
	"github.com/importsize/importsize/internal/config"
	"github.com/importsize/importsize/internal/loader"
	"github.com/importsize/importsize/internal/observability"
	"github.com/importsize/importsize/internal/resolver"
)

// Stack is the cache, loader, resolver and bundler shared by one process
type Stack struct {
	Modules  *cache.LRU[string, string]
	Loader   *loader.Loader
	Resolver *resolver.Resolver
	Bundler  *Bundler
}

// NewStack wires the bundling pipeline from configuration. metrics may be nil.
func NewStack(cfg *config.Config, metrics *observability.Metrics) (*Stack, error) {
	modules, err := cache.New[string, string](cfg.Cache.Modules,
		cache.WithMetrics[string, string]("modules", metrics))
	if err != nil {
		return nil, fmt.Errorf("failed to create module cache: %w", err)
	}

	l := loader.New(modules,
		loader.WithTimeout(cfg.Registry.Timeout),
		loader.WithRegistry(cfg.Registry.Host(), cfg.Registry.Conditions),
		loader.WithRateLimit(cfg.Registry.RateLimit, cfg.Registry.RateBurst),
		loader.WithUserAgent(cfg.Registry.UserAgent),
		loader.WithMaxBodySize(cfg.Registry.MaxResponseSize),
		loader.WithMetrics(metrics),
	)

	r, err := resolver.New(l, resolver.Options{
		RegistryRoot:  cfg.Registry.Root,
		Conditions:    cfg.Registry.Conditions,
		JSRManifests:  cfg.Registry.JSRManifests,
		ManifestCache: cfg.Cache.Manifests,
		Metrics:       metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create resolver: %w", err)
	}

	b := New(r, l, Options{
		SuppressMarker: cfg.Bundler.SuppressMarker,
		Target:         cfg.Bundler.Target,
		Platform:       cfg.Bundler.Platform,
		Metrics:        metrics,
	})

	return &Stack{Modules: modules, Loader: l, Resolver: r, Bundler: b}, nil
}
