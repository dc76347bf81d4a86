// Package resolver maps module specifiers to fetchable registry URLs using
// package manifest "exports" semantics.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/importsize/importsize/internal/cache"
	"github.com/importsize/importsize/internal/observability"
)

var (
	// ErrUnresolvable is wrapped by every resolution failure
	ErrUnresolvable = errors.New("unresolvable specifier")
	// ErrManifestNotFound means no manifest could be fetched and parsed
	ErrManifestNotFound = errors.New("package manifest not found")
	// ErrNoMatchingExport means the exports map has no entry for the sub-path and conditions
	ErrNoMatchingExport = errors.New("no matching export")
)

// DefaultRegistryRoot is the registry serving both npm and jsr packages
const DefaultRegistryRoot = "https://esm.sh"

// DefaultJSRManifests are tried in order for jsr packages
var DefaultJSRManifests = []string{"jsr.json", "deno.json", "deno.jsonc"}

// Fetcher returns the text content at url. ok is false when nothing could be fetched.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (content string, ok bool)
}

// Options configures a Resolver
type Options struct {
	RegistryRoot  string
	Conditions    []string
	JSRManifests  []string
	ManifestCache int
	Metrics       *observability.Metrics
}

// Resolver resolves specifiers against a registry
type Resolver struct {
	fetcher      Fetcher
	root         *url.URL
	conditions   []string
	jsrManifests []string
	manifests    *cache.LRU[string, *Manifest]
	metrics      *observability.Metrics
}

// New creates a resolver backed by fetcher
func New(fetcher Fetcher, opts Options) (*Resolver, error) {
	if opts.RegistryRoot == "" {
		opts.RegistryRoot = DefaultRegistryRoot
	}
	if len(opts.Conditions) == 0 {
		opts.Conditions = DefaultConditions
	}
	if len(opts.JSRManifests) == 0 {
		opts.JSRManifests = DefaultJSRManifests
	}
	if opts.ManifestCache <= 0 {
		opts.ManifestCache = cache.DefaultCapacity
	}

	root, err := url.Parse(strings.TrimSuffix(opts.RegistryRoot, "/"))
	if err != nil || !IsRemote(root.String()) {
		return nil, fmt.Errorf("invalid registry root %q", opts.RegistryRoot)
	}

	manifests, err := cache.New[string, *Manifest](opts.ManifestCache,
		cache.WithMetrics[string, *Manifest]("manifests", opts.Metrics))
	if err != nil {
		return nil, err
	}

	return &Resolver{
		fetcher:      fetcher,
		root:         root,
		conditions:   opts.Conditions,
		jsrManifests: opts.JSRManifests,
		manifests:    manifests,
		metrics:      opts.Metrics,
	}, nil
}

// Resolve maps specifier, imported by importer (may be empty), to an absolute URL.
// Failures wrap ErrUnresolvable.
func (r *Resolver) Resolve(ctx context.Context, specifier, importer string) (string, error) {
	ctx, span := observability.StartResolveSpan(ctx, specifier, importer)

	resolved, kind, err := r.resolve(ctx, specifier, importer)
	if err != nil {
		err = fmt.Errorf("%w %q: %w", ErrUnresolvable, specifier, err)
	}

	r.metrics.RecordResolution(kind, err)
	observability.EndSpan(span, err)

	log.Debug().
		Str("specifier", specifier).
		Str("importer", importer).
		Str("resolved", resolved).
		Err(err).
		Msg("Resolved specifier")

	return resolved, err
}

func (r *Resolver) resolve(ctx context.Context, specifier, importer string) (string, string, error) {
	if IsRemote(specifier) {
		return specifier, "url", nil
	}

	isPath := strings.HasPrefix(specifier, ".") || strings.HasPrefix(specifier, "/")
	if importer != "" && IsRemote(importer) {
		if isPath {
			resolved, err := resolveRelative(specifier, importer)
			return resolved, "relative", err
		}
		if r.isJSRURL(importer) && strings.HasPrefix(specifier, jsrInternalScope) {
			specifier = normalizeJSRInternal(specifier)
		}
	} else if isPath {
		return "", "relative", errors.New("relative specifier without a remote importer")
	}

	if strings.HasPrefix(specifier, jsrScheme) {
		resolved, err := r.resolveJSR(ctx, strings.TrimPrefix(specifier, jsrScheme))
		return resolved, "jsr", err
	}

	resolved, err := r.resolveNPM(ctx, strings.TrimPrefix(specifier, npmScheme))
	return resolved, "npm", err
}

// resolveRelative resolves a path specifier against a remote importer in raw mode
func resolveRelative(specifier, importer string) (string, error) {
	base, err := url.Parse(importer)
	if err != nil {
		return "", fmt.Errorf("invalid importer URL: %w", err)
	}
	ref, err := url.Parse(specifier)
	if err != nil {
		return "", fmt.Errorf("invalid relative specifier: %w", err)
	}
	u := base.ResolveReference(ref)
	u.RawQuery = rawQuery
	u.Fragment = ""
	return u.String(), nil
}

func (r *Resolver) resolveNPM(ctx context.Context, id string) (string, error) {
	name, subpath := SplitPackage(id)
	if name == "" {
		return "", errors.New("empty package name")
	}
	base := r.packageBase("", name)

	manifest, err := r.manifest(ctx, base, []string{"package.json"})
	if err != nil {
		return "", err
	}
	return r.compose(base, manifest, subpath)
}

func (r *Resolver) resolveJSR(ctx context.Context, id string) (string, error) {
	name, subpath := SplitPackage(id)
	if !strings.HasPrefix(name, "@") || !strings.Contains(name, "/") {
		return "", fmt.Errorf("jsr package %q must be scoped", name)
	}
	base := r.packageBase("jsr", name)

	manifest, err := r.manifest(ctx, base, r.jsrManifests)
	if err != nil {
		return "", err
	}
	return r.compose(base, manifest, subpath)
}

func (r *Resolver) compose(base string, manifest *Manifest, subpath string) (string, error) {
	target, err := ResolveExports(manifest, subpath, r.conditions)
	if err != nil {
		return "", err
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("invalid export target %q: %w", target, err)
	}
	return baseURL.ResolveReference(ref).String(), nil
}

// packageBase returns <root>/[prefix/]<name>/
func (r *Resolver) packageBase(prefix, name string) string {
	base := r.root.String() + "/"
	if prefix != "" {
		base += prefix + "/"
	}
	return base + name + "/"
}

// manifest returns the first candidate under base that fetches and parses
func (r *Resolver) manifest(ctx context.Context, base string, candidates []string) (*Manifest, error) {
	if m, ok := r.manifests.Get(base); ok {
		return m, nil
	}

	for _, file := range candidates {
		content, ok := r.fetcher.Fetch(ctx, base+file)
		if !ok {
			continue
		}
		m, err := ParseManifest([]byte(content), strings.HasSuffix(file, ".jsonc"))
		if err != nil {
			log.Debug().Err(err).Str("manifest", base+file).Msg("Skipping unparsable manifest")
			continue
		}
		r.manifests.Set(base, m)
		return m, nil
	}

	return nil, fmt.Errorf("%w under %s", ErrManifestNotFound, base)
}

// isJSRURL reports whether u points at a jsr package served by the registry
func (r *Resolver) isJSRURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Scheme == r.root.Scheme && u.Host == r.root.Host && strings.HasPrefix(u.Path, r.root.Path+"/jsr/")
}
