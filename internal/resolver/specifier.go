package resolver

import (
	"net/url"
	"strings"
)

const (
	npmScheme = "npm:"
	jsrScheme = "jsr:"

	// jsrInternalScope is the npm scope the registry uses for jsr packages
	// inside modules it serves, e.g. @jsr/std__path.
	jsrInternalScope = "@jsr/"

	rawQuery = "raw"
)

// IsRemote reports whether id is an absolute http(s) URL
func IsRemote(id string) bool {
	return strings.HasPrefix(id, "https://") || strings.HasPrefix(id, "http://")
}

// IsRaw reports whether a resolved URL was tagged for raw fetching
func IsRaw(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	_, ok := u.Query()[rawQuery]
	return ok
}

// SplitPackage splits a registry specifier into package name and sub-path.
// Scoped names take two segments. The sub-path is "." when empty.
//
//	lodash            -> lodash, .
//	lodash/fp/map     -> lodash, fp/map
//	@scope/pkg/a/b    -> @scope/pkg, a/b
func SplitPackage(id string) (name, subpath string) {
	segments := strings.Split(id, "/")
	n := 1
	if strings.HasPrefix(segments[0], "@") && len(segments) > 1 {
		n = 2
	}
	name = strings.Join(segments[:n], "/")
	subpath = strings.Join(segments[n:], "/")
	if subpath == "" {
		subpath = "."
	}
	return name, subpath
}

// normalizeJSRInternal turns @jsr/<scope>__<name>[/path] back into jsr:@<scope>/<name>[/path]
func normalizeJSRInternal(id string) string {
	rest := strings.TrimPrefix(id, jsrInternalScope)
	return jsrScheme + "@" + strings.Replace(rest, "__", "/", 1)
}

// exportEntry converts a sub-path into an exports map key
func exportEntry(subpath string) string {
	if subpath == "." || subpath == "" {
		return "."
	}
	if strings.HasPrefix(subpath, "./") {
		return subpath
	}
	return "./" + strings.TrimPrefix(subpath, "/")
}
