package masking

import (
	"log/slog"
	"regexp"

	"github.com/warden-ci/warden/pkg/config"
)

// CompiledPattern holds a pre-compiled regex pattern with its replacement.
type CompiledPattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
	Description string
}

// resolveBuiltins expands a list of built-in names into code maskers and
// compiled regex patterns, deduplicating and preserving config order.
// Unknown names and invalid patterns are logged and skipped.
func resolveBuiltins(names []string) ([]Masker, []*CompiledPattern) {
	defs := builtinPatterns()
	maskerDefs := builtinMaskers()
	seen := make(map[string]bool)

	var maskers []Masker
	var patterns []*CompiledPattern
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true

		if newMasker, ok := maskerDefs[name]; ok {
			maskers = append(maskers, newMasker())
			continue
		}

		def, ok := defs[name]
		if !ok {
			slog.Warn("Unknown built-in masking pattern, skipping", "pattern", name)
			continue
		}
		compiled, err := regexp.Compile(def.pattern)
		if err != nil {
			slog.Error("Failed to compile built-in masking pattern, skipping",
				"pattern", name, "error", err)
			continue
		}
		patterns = append(patterns, &CompiledPattern{
			Name:        name,
			Regex:       compiled,
			Replacement: def.replacement,
			Description: def.description,
		})
	}
	return maskers, patterns
}

// compileCustom compiles user-supplied patterns from config. Config
// validation already rejects invalid regexes at startup, so a compile
// failure here is logged and skipped rather than treated as fatal.
func compileCustom(custom []config.CustomMaskingPattern) []*CompiledPattern {
	var patterns []*CompiledPattern
	for _, p := range custom {
		compiled, err := regexp.Compile(p.Pattern)
		if err != nil {
			slog.Error("Failed to compile custom masking pattern, skipping",
				"pattern", p.Name, "error", err)
			continue
		}
		patterns = append(patterns, &CompiledPattern{
			Name:        p.Name,
			Regex:       compiled,
			Replacement: p.Replacement,
			Description: "custom pattern",
		})
	}
	return patterns
}
