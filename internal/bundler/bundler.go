// Package bundler drives esbuild over the synthetic entry module and measures
// the resulting bundle.
package bundler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/importsize/importsize/internal/entry"
	"github.com/importsize/importsize/internal/observability"
)

const (
	entryID         = entry.ID
	entryNamespace  = "entry"
	remoteNamespace = "remote"
	outdir          = "/out"

	// DefaultSuppressMarker tags esbuild's own timing diagnostics
	DefaultSuppressMarker = "PLUGIN_TIMINGS"
)

// Resolver maps a specifier imported by importer to a module URL
type Resolver interface {
	Resolve(ctx context.Context, specifier, importer string) (string, error)
}

// Loader returns the source at a module URL. ok is false when nothing could be fetched.
type Loader interface {
	Load(ctx context.Context, url string) (content string, ok bool)
}

// Options configures a Bundler
type Options struct {
	// SuppressMarker drops warnings containing it. Empty uses DefaultSuppressMarker.
	SuppressMarker string
	// Target is an esbuild language target such as "esnext" or "es2020"
	Target string
	// Platform is "browser" or "neutral"
	Platform string
	Metrics  *observability.Metrics
}

// Bundler builds bundles for import declarations. It holds no per-build state;
// concurrent Bundle calls are independent.
type Bundler struct {
	resolver Resolver
	loader   Loader
	marker   string
	target   api.Target
	platform api.Platform
	metrics  *observability.Metrics
}

// Result is the measured output of a successful build
type Result struct {
	Code         string       `json:"code"`
	BundledSize  int          `json:"bundled_size"`
	MinifiedSize int          `json:"minified_size"`
	GzipSize     int          `json:"gzip_size"`
	Chunks       []Chunk      `json:"chunks"`
	Modules      []ModuleSize `json:"modules"`
}

// Chunk is one emitted JavaScript output file of the minified build
type Chunk struct {
	Path     string `json:"path"`
	Code     string `json:"code"`
	Size     int    `json:"size"`
	GzipSize int    `json:"gzip_size"`
}

// Outcome is returned by every Bundle call. Result is nil when the build failed;
// the failure text is then among Warnings.
type Outcome struct {
	Entry      string   `json:"entry"`
	Result     *Result  `json:"result"`
	Warnings   []string `json:"warnings"`
	DurationMs int64    `json:"duration_ms"`
}

// Duration is the wall time spent building and measuring
func (o *Outcome) Duration() time.Duration {
	return time.Duration(o.DurationMs) * time.Millisecond
}

// Succeeded reports whether the build produced a result
func (o *Outcome) Succeeded() bool {
	return o != nil && o.Result != nil
}

// New creates a Bundler
func New(r Resolver, l Loader, opts Options) *Bundler {
	if opts.SuppressMarker == "" {
		opts.SuppressMarker = DefaultSuppressMarker
	}
	target, ok := ParseTarget(opts.Target)
	if !ok {
		target = api.ESNext
	}
	platform := api.PlatformBrowser
	if opts.Platform == "neutral" {
		platform = api.PlatformNeutral
	}

	return &Bundler{
		resolver: r,
		loader:   l,
		marker:   opts.SuppressMarker,
		target:   target,
		platform: platform,
		metrics:  opts.Metrics,
	}
}

var targets = map[string]api.Target{
	"esnext": api.ESNext,
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
}

// ParseTarget maps a target name to the esbuild target. Empty means esnext.
func ParseTarget(name string) (api.Target, bool) {
	if name == "" {
		return api.ESNext, true
	}
	target, ok := targets[strings.ToLower(name)]
	return target, ok
}

// Bundle synthesizes the entry for imports, builds it minified and
// non-minified, and measures the output. Build failures are reported through
// Outcome.Warnings with a nil Result; the error return is reserved for context
// cancellation and measurement faults.
func (b *Bundler) Bundle(ctx context.Context, imports []entry.Import) (*Outcome, error) {
	ctx, span := observability.StartBuildSpan(ctx, len(imports))
	start := time.Now()

	source := entry.Synthesize(imports)
	outcome := &Outcome{Entry: source, Warnings: []string{}}

	var minified, bundled api.BuildResult
	g := new(errgroup.Group)
	g.Go(func() error {
		minified = api.Build(b.buildOptions(ctx, source, true))
		return nil
	})
	g.Go(func() error {
		bundled = api.Build(b.buildOptions(ctx, source, false))
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		observability.EndSpan(span, err)
		return nil, err
	}

	warnings := newMessageSet(b.marker)
	warnings.add(minified.Warnings...)
	warnings.add(bundled.Warnings...)
	warnings.add(minified.Errors...)
	warnings.add(bundled.Errors...)
	outcome.Warnings = warnings.list()

	if len(minified.Errors) > 0 || len(bundled.Errors) > 0 {
		log.Warn().
			Int("imports", len(imports)).
			Strs("warnings", outcome.Warnings).
			Msg("Bundle build failed")
		elapsed := time.Since(start)
		outcome.DurationMs = elapsed.Milliseconds()
		b.metrics.RecordBuild(false, elapsed, len(outcome.Warnings), 0, 0, 0)
		observability.EndSpan(span, errors.New("build failed"))
		return outcome, nil
	}

	result, err := b.measure(ctx, minified, bundled)
	if err != nil {
		observability.EndSpan(span, err)
		return nil, err
	}
	outcome.Result = result
	elapsed := time.Since(start)
	outcome.DurationMs = elapsed.Milliseconds()

	b.metrics.RecordBuild(true, elapsed, len(outcome.Warnings), result.BundledSize, result.MinifiedSize, result.GzipSize)
	observability.EndSpan(span, nil)

	log.Debug().
		Int("imports", len(imports)).
		Int("bundled", result.BundledSize).
		Int("minified", result.MinifiedSize).
		Int("gzip", result.GzipSize).
		Dur("duration", elapsed).
		Msg("Bundle built")

	return outcome, nil
}

func (b *Bundler) buildOptions(ctx context.Context, source string, minify bool) api.BuildOptions {
	return api.BuildOptions{
		EntryPointsAdvanced: []api.EntryPoint{{InputPath: entry.ID, OutputPath: "entry"}},
		Bundle:              true,
		Write:               false,
		Metafile:            minify,
		Outdir:              outdir,
		AbsWorkingDir:       "/",
		Format:              api.FormatESModule,
		Platform:            b.platform,
		Target:              b.target,
		TreeShaking:         api.TreeShakingTrue,
		MinifyWhitespace:    minify,
		MinifyIdentifiers:   minify,
		MinifySyntax:        minify,
		LogLevel:            api.LogLevelSilent,
		Plugins: []api.Plugin{
			entryPlugin(source),
			b.remotePlugin(ctx),
		},
	}
}

// measure collects chunks of the minified build and sizes both builds
func (b *Bundler) measure(ctx context.Context, minified, bundled api.BuildResult) (*Result, error) {
	result := &Result{Chunks: []Chunk{}}
	codes := make([]string, 0, len(minified.OutputFiles))
	for _, file := range minified.OutputFiles {
		if !isChunk(file.Path) {
			continue
		}
		code := string(file.Contents)
		codes = append(codes, code)
		result.Chunks = append(result.Chunks, Chunk{
			Path: strings.TrimPrefix(file.Path, outdir+"/"),
			Code: code,
			Size: len(file.Contents),
		})
		result.MinifiedSize += len(file.Contents)
	}
	result.Code = strings.Join(codes, "\n")

	for _, file := range bundled.OutputFiles {
		if isChunk(file.Path) {
			result.BundledSize += len(file.Contents)
		}
	}

	g, _ := errgroup.WithContext(ctx)
	for i := range result.Chunks {
		chunk := &result.Chunks[i]
		g.Go(func() error {
			size, err := gzipSize([]byte(chunk.Code))
			if err != nil {
				return fmt.Errorf("failed to gzip %s: %w", chunk.Path, err)
			}
			chunk.GzipSize = size
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, chunk := range result.Chunks {
		result.GzipSize += chunk.GzipSize
	}

	modules, err := moduleSizes(minified.Metafile)
	if err != nil {
		log.Debug().Err(err).Msg("Skipping module breakdown")
	}
	result.Modules = modules

	return result, nil
}

func isChunk(file string) bool {
	ext := path.Ext(file)
	return ext == ".js" || ext == ".mjs"
}

// gzipSize returns the length of data after gzip compression
func gzipSize(data []byte) (int, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return 0, err
	}
	if err := zw.Close(); err != nil {
		return 0, err
	}
	return buf.Len(), nil
}
