// Package loader fetches and caches module source text from remote URLs.
package loader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/importsize/importsize/internal/cache"
	"github.com/importsize/importsize/internal/observability"
	"github.com/importsize/importsize/internal/resolver"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultMaxBodySize = 32 * 1024 * 1024
	defaultUserAgent   = "importsize/1.0"
)

// Loader fetches module text over HTTP. Results are cached by request URL and
// concurrent fetches of the same URL share one network round trip.
type Loader struct {
	cache        *cache.LRU[string, string]
	client       *http.Client
	group        singleflight.Group
	limiter      *rate.Limiter
	registryHost string
	conditions   []string
	userAgent    string
	maxBodySize  int64
	metrics      *observability.Metrics
}

// Option configures a Loader
type Option func(*Loader)

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(l *Loader) {
		l.client = client
	}
}

// WithTimeout sets the per-request timeout
func WithTimeout(timeout time.Duration) Option {
	return func(l *Loader) {
		l.client.Timeout = timeout
	}
}

// WithRegistry sets the registry host whose URLs get condition or raw query parameters
func WithRegistry(host string, conditions []string) Option {
	return func(l *Loader) {
		l.registryHost = host
		l.conditions = conditions
	}
}

// WithRateLimit limits outbound requests per second. Zero disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(l *Loader) {
		if perSecond <= 0 {
			l.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		l.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithUserAgent sets the User-Agent header
func WithUserAgent(userAgent string) Option {
	return func(l *Loader) {
		l.userAgent = userAgent
	}
}

// WithMaxBodySize caps the accepted response size in bytes
func WithMaxBodySize(n int64) Option {
	return func(l *Loader) {
		l.maxBodySize = n
	}
}

// WithMetrics records fetch metrics
func WithMetrics(m *observability.Metrics) Option {
	return func(l *Loader) {
		l.metrics = m
	}
}

// New creates a loader backed by c
func New(c *cache.LRU[string, string], opts ...Option) *Loader {
	l := &Loader{
		cache:       c,
		client:      &http.Client{Timeout: defaultTimeout},
		userAgent:   defaultUserAgent,
		maxBodySize: defaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load returns the module source at resolvedURL after applying the registry
// query parameters. ok is false on any network or transport failure and for
// non-2xx responses.
func (l *Loader) Load(ctx context.Context, resolvedURL string) (string, bool) {
	return l.get(ctx, l.requestURL(resolvedURL))
}

// Fetch returns the text at rawURL unchanged by registry query handling.
// The resolver uses it for manifests.
func (l *Loader) Fetch(ctx context.Context, rawURL string) (string, bool) {
	return l.get(ctx, rawURL)
}

func (l *Loader) get(ctx context.Context, requestURL string) (string, bool) {
	if content, ok := l.cache.Get(requestURL); ok {
		return content, true
	}

	// The shared fetch outlives any single caller; each caller stops waiting on
	// its own cancellation. The client timeout still bounds the fetch.
	shared := context.WithoutCancel(ctx)
	ch := l.group.DoChan(requestURL, func() (interface{}, error) {
		if content, ok := l.cache.Get(requestURL); ok {
			return content, nil
		}
		content, err := l.fetch(shared, requestURL)
		if err != nil {
			return "", err
		}
		l.cache.Set(requestURL, content)
		return content, nil
	})

	select {
	case <-ctx.Done():
		log.Debug().Err(ctx.Err()).Str("url", requestURL).Msg("Module fetch abandoned")
		return "", false
	case res := <-ch:
		if res.Err != nil {
			log.Debug().Err(res.Err).Str("url", requestURL).Msg("Module fetch failed")
			return "", false
		}
		return res.Val.(string), true
	}
}

// requestURL applies the registry query parameters: raw passthrough when the
// URL was tagged raw, the resolution conditions otherwise
func (l *Loader) requestURL(rawURL string) string {
	if l.registryHost == "" {
		return rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host != l.registryHost {
		return rawURL
	}

	if resolver.IsRaw(rawURL) {
		u.RawQuery = "raw"
		return u.String()
	}
	if len(l.conditions) > 0 {
		query := u.Query()
		query.Set("conditions", strings.Join(l.conditions, ","))
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (l *Loader) fetch(ctx context.Context, requestURL string) (content string, err error) {
	ctx, span := observability.StartFetchSpan(ctx, requestURL)
	start := time.Now()
	host := hostOf(requestURL)
	outcome := "ok"
	defer func() {
		if err != nil && outcome == "ok" {
			outcome = "error"
		}
		l.metrics.RecordFetch(host, outcome, time.Since(start))
		observability.EndSpan(span, err)
	}()

	if l.limiter != nil {
		if err := l.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limiter: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", l.userAgent)

	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		outcome = "status"
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, l.maxBodySize+1))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) > l.maxBodySize {
		outcome = "too_large"
		return "", fmt.Errorf("response exceeds %d bytes", l.maxBodySize)
	}

	log.Debug().Str("url", requestURL).Int("bytes", len(body)).Msg("Fetched module")
	return string(body), nil
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "invalid"
	}
	return u.Host
}
