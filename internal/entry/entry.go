// Package entry turns user import declarations into the source of the synthetic
// entry module handed to the bundler.
package entry

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// ID is the fixed identifier of the synthetic entry module.
const ID = "virtual:entry"

// Import is one user supplied import declaration.
// ID only distinguishes rows; it carries no meaning for bundling.
type Import struct {
	ID        string `json:"id"`
	Specifier string `json:"specifier"`
	Names     string `json:"names"`
}

// Synthesize renders one re-export line per usable import.
// Imports with an empty specifier or empty names are skipped.
func Synthesize(imports []Import) string {
	lines := make([]string, 0, len(imports))
	for _, imp := range imports {
		if imp.Specifier == "" || imp.Names == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("export %s from %q;", Clause(imp.Names), imp.Specifier))
	}
	return strings.Join(lines, "\n")
}

// Clause rewrites an import clause into the equivalent re-export clause.
//
//	{ a, b }       -> { a, b }
//	* as ns        -> * as ns
//	React          -> { default as React }
//	React, { a }   -> {default as React,  a }
//
// The last form is a textual splice that assumes well formed input.
func Clause(names string) string {
	trimmed := strings.TrimSpace(names)
	switch {
	case strings.HasPrefix(trimmed, "*"):
		return trimmed
	case strings.HasPrefix(trimmed, "{"):
		return trimmed
	case !strings.HasSuffix(trimmed, "}"):
		return fmt.Sprintf("{ default as %s }", trimmed)
	default:
		return "{default as " + strings.Replace(trimmed, "{", "", 1)
	}
}

// ParseLine parses a "specifier|names" value. Everything after the first "|"
// belongs to names. ok is false when the specifier is empty.
func ParseLine(value string) (Import, bool) {
	specifier, names, _ := strings.Cut(value, "|")
	if specifier == "" {
		return Import{}, false
	}
	return Import{
		ID:        uuid.NewString(),
		Specifier: specifier,
		Names:     names,
	}, true
}

// ParseQuery decodes the repeated "i" parameters of a share query string.
// It returns nil when no usable import is present.
func ParseQuery(query string) []Import {
	values, err := url.ParseQuery(strings.TrimPrefix(query, "?"))
	if err != nil {
		return nil
	}

	var imports []Import
	for _, value := range values["i"] {
		if imp, ok := ParseLine(value); ok {
			imports = append(imports, imp)
		}
	}
	return imports
}
