package bundler

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"regexp"

	"github.com/evanw/esbuild/pkg/api"
)

// entryPlugin serves the synthesized source under the fixed entry identifier
func entryPlugin(source string) api.Plugin {
	return api.Plugin{
		Name: "entry",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: "^" + regexp.QuoteMeta(entryID) + "$"},
				func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					return api.OnResolveResult{
						Path:      entryID,
						Namespace: entryNamespace,
					}, nil
				})

			build.OnLoad(api.OnLoadOptions{Filter: ".*", Namespace: entryNamespace},
				func(args api.OnLoadArgs) (api.OnLoadResult, error) {
					contents := source
					return api.OnLoadResult{
						Contents: &contents,
						Loader:   api.LoaderJS,
					}, nil
				})
		},
	}
}

// remotePlugin routes every other specifier through the resolver and every
// remote module through the loader
func (b *Bundler) remotePlugin(ctx context.Context) api.Plugin {
	return api.Plugin{
		Name: "remote-module",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: ".*"},
				func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					resolved, err := b.resolver.Resolve(ctx, args.Path, importerOf(args))
					if err != nil {
						return api.OnResolveResult{
							Errors: []api.Message{{Text: err.Error()}},
						}, nil
					}
					return api.OnResolveResult{
						Path:      resolved,
						Namespace: remoteNamespace,
					}, nil
				})

			build.OnLoad(api.OnLoadOptions{Filter: ".*", Namespace: remoteNamespace},
				func(args api.OnLoadArgs) (api.OnLoadResult, error) {
					content, ok := b.loader.Load(ctx, args.Path)
					result := api.OnLoadResult{
						Contents: &content,
						Loader:   loaderFor(args.Path),
					}
					if !ok {
						result.Warnings = []api.Message{{Text: fmt.Sprintf("no content for %s", args.Path)}}
					}
					return result, nil
				})
		},
	}
}

// importerOf returns the importing module's URL, or the entry identifier for
// imports made by the entry module
func importerOf(args api.OnResolveArgs) string {
	if args.Namespace == entryNamespace {
		return entryID
	}
	return args.Importer
}

var loaders = map[string]api.Loader{
	".ts":   api.LoaderTS,
	".mts":  api.LoaderTS,
	".cts":  api.LoaderTS,
	".tsx":  api.LoaderTSX,
	".jsx":  api.LoaderJSX,
	".json": api.LoaderJSON,
	".css":  api.LoaderCSS,
}

// loaderFor picks the esbuild loader from the URL path extension
func loaderFor(moduleURL string) api.Loader {
	u, err := url.Parse(moduleURL)
	if err != nil {
		return api.LoaderJS
	}
	if loader, ok := loaders[path.Ext(u.Path)]; ok {
		return loader
	}
	return api.LoaderJS
}
