package bundler

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Metafile is the subset of the esbuild metafile used for the module breakdown
type Metafile struct {
	Inputs  map[string]MetafileInput  `json:"inputs"`
	Outputs map[string]MetafileOutput `json:"outputs"`
}

// MetafileInput is an input module in the metafile
type MetafileInput struct {
	Bytes   int              `json:"bytes"`
	Imports []MetafileImport `json:"imports"`
	Format  string           `json:"format,omitempty"` // "cjs" or "esm"
}

// MetafileImport is an import edge in the metafile
type MetafileImport struct {
	Path     string `json:"path"`
	Kind     string `json:"kind"`
	External bool   `json:"external,omitempty"`
	Original string `json:"original,omitempty"`
}

// MetafileOutput is an emitted file in the metafile
type MetafileOutput struct {
	Bytes      int                     `json:"bytes"`
	Inputs     map[string]InputContrib `json:"inputs"`
	EntryPoint string                  `json:"entryPoint,omitempty"`
}

// InputContrib is the contribution of an input to an output
type InputContrib struct {
	BytesInOutput int `json:"bytesInOutput"`
}

// ModuleSize is one module's share of the minified output
type ModuleSize struct {
	Path          string  `json:"path"`
	Bytes         int     `json:"bytes"`
	BytesInOutput int     `json:"bytes_in_output"`
	Percentage    float64 `json:"percentage"`
	Imports       int     `json:"imports"`
}

// moduleSizes breaks the chunk outputs of a metafile down by input module,
// largest contribution first. Modules that were tree-shaken away entirely are
// omitted.
func moduleSizes(raw string) ([]ModuleSize, error) {
	if raw == "" {
		return []ModuleSize{}, nil
	}
	var meta Metafile
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return []ModuleSize{}, fmt.Errorf("failed to parse metafile: %w", err)
	}

	total := 0
	contributions := make(map[string]int)
	for outputPath, output := range meta.Outputs {
		if !isChunk(outputPath) {
			continue
		}
		total += output.Bytes
		for input, contrib := range output.Inputs {
			contributions[input] += contrib.BytesInOutput
		}
	}

	modules := make([]ModuleSize, 0, len(contributions))
	for input, bytesInOutput := range contributions {
		if bytesInOutput == 0 {
			continue
		}
		info := meta.Inputs[input]
		percentage := 0.0
		if total > 0 {
			percentage = float64(bytesInOutput) / float64(total) * 100
		}
		modules = append(modules, ModuleSize{
			Path:          displayPath(input),
			Bytes:         info.Bytes,
			BytesInOutput: bytesInOutput,
			Percentage:    percentage,
			Imports:       len(info.Imports),
		})
	}

	sort.Slice(modules, func(i, j int) bool {
		if modules[i].BytesInOutput != modules[j].BytesInOutput {
			return modules[i].BytesInOutput > modules[j].BytesInOutput
		}
		return modules[i].Path < modules[j].Path
	})

	return modules, nil
}
