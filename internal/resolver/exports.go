package resolver

import (
	"fmt"
	"strings"
)

// DefaultConditions is the condition set used for browser bundles
var DefaultConditions = []string{"browser", "import", "default"}

// ResolveExports maps a package sub-path to a target path using the manifest's
// exports field. Condition objects are walked in manifest order and the first
// key present in conditions with a usable target wins. Sub-path keys are tried exactly first, then
// the first matching pattern ("*" or trailing "/") in manifest order.
//
// Manifests without an exports field fall back to browser, module and main for
// the root sub-path, and to the sub-path itself otherwise.
func ResolveExports(m *Manifest, subpath string, conditions []string) (string, error) {
	entry := exportEntry(subpath)
	allowed := make(map[string]bool, len(conditions))
	for _, c := range conditions {
		allowed[c] = true
	}

	if m.Exports == nil || m.Exports.Kind == KindNull {
		return legacyEntry(m, entry), nil
	}

	exports := m.Exports
	if exports.Kind != KindObject || !isSubpathMap(exports) {
		if entry != "." {
			return "", fmt.Errorf("%w: %q", ErrNoMatchingExport, entry)
		}
		return targetOf(exports, allowed, entry)
	}

	if value := exports.Get(entry); value != nil {
		return targetOf(value, allowed, entry)
	}

	for i, key := range exports.Keys {
		match, ok := matchPattern(key, entry)
		if !ok {
			continue
		}
		target, err := targetOf(exports.Values[i], allowed, entry)
		if err != nil {
			return "", err
		}
		if strings.HasSuffix(key, "/") {
			return target + match, nil
		}
		return strings.ReplaceAll(target, "*", match), nil
	}

	return "", fmt.Errorf("%w: %q", ErrNoMatchingExport, entry)
}

// isSubpathMap reports whether an exports object is keyed by sub-paths rather
// than by conditions
func isSubpathMap(n *Node) bool {
	for _, key := range n.Keys {
		if strings.HasPrefix(key, ".") {
			return true
		}
	}
	return false
}

// matchPattern matches entry against a "*" pattern key or a "/" folder key and
// returns the substituted part
func matchPattern(key, entry string) (string, bool) {
	if prefix, suffix, found := strings.Cut(key, "*"); found {
		if len(entry) < len(prefix)+len(suffix) {
			return "", false
		}
		if !strings.HasPrefix(entry, prefix) || !strings.HasSuffix(entry, suffix) {
			return "", false
		}
		return entry[len(prefix) : len(entry)-len(suffix)], true
	}
	if strings.HasSuffix(key, "/") && strings.HasPrefix(entry, key) {
		return strings.TrimPrefix(entry, key), true
	}
	return "", false
}

func targetOf(n *Node, allowed map[string]bool, entry string) (string, error) {
	if target := walkTarget(n, allowed); target != "" {
		return target, nil
	}
	return "", fmt.Errorf("%w: no condition matched for %q", ErrNoMatchingExport, entry)
}

func walkTarget(n *Node, allowed map[string]bool) string {
	if n == nil {
		return ""
	}
	switch n.Kind {
	case KindString:
		return n.Str
	case KindArray:
		for _, element := range n.Values {
			if target := walkTarget(element, allowed); target != "" {
				return target
			}
		}
	case KindObject:
		for i, key := range n.Keys {
			if !allowed[key] {
				continue
			}
			if target := walkTarget(n.Values[i], allowed); target != "" {
				return target
			}
		}
	}
	return ""
}

func legacyEntry(m *Manifest, entry string) string {
	if entry != "." {
		return entry
	}
	if browser := m.Browser.stringValue(); browser != "" {
		return browser
	}
	if m.Module != "" {
		return m.Module
	}
	if m.Main != "" {
		return m.Main
	}
	return "index.js"
}
