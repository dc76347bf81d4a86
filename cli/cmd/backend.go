package cmd

import (
	"context"

	"github.com/spf13/viper"

	"github.com/importsize/importsize/cli/client"
	"github.com/importsize/importsize/internal/bundler"
	"github.com/importsize/importsize/internal/config"
	"github.com/importsize/importsize/internal/entry"
)

// backend is what bundle and resolve run against: the in-process pipeline or a server
type backend interface {
	Bundle(ctx context.Context, imports []entry.Import) (*bundler.Outcome, error)
	Resolve(ctx context.Context, specifier, importer string) (string, error)
}

type localBackend struct {
	stack *bundler.Stack
}

func (b *localBackend) Bundle(ctx context.Context, imports []entry.Import) (*bundler.Outcome, error) {
	return b.stack.Bundler.Bundle(ctx, imports)
}

func (b *localBackend) Resolve(ctx context.Context, specifier, importer string) (string, error) {
	return b.stack.Resolver.Resolve(ctx, specifier, importer)
}

// newBackend returns a client for --remote, otherwise a pipeline built from config
func newBackend() (backend, error) {
	remote := remoteURL
	if remote == "" {
		remote = viper.GetString("remote")
	}
	if remote != "" {
		return client.NewClient(remote, client.WithDebug(debug)), nil
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	stack, err := bundler.NewStack(cfg, nil)
	if err != nil {
		return nil, err
	}
	return &localBackend{stack: stack}, nil
}
