// Package masking scrubs secrets from text before it leaves the system:
// diff text headed for the model and comment bodies headed back to the
// pull request. Built-in patterns are selected by name from config and
// extended with user-supplied regexes.
package masking

import (
	"log/slog"

	"github.com/warden-ci/warden/pkg/config"
)

// Service applies secret masking to diff text and outbound comment bodies.
// Created once at application startup. Thread-safe and stateless aside from
// compiled patterns.
type Service struct {
	enabled  bool
	maskers  []Masker           // Code-based maskers, applied first
	patterns []*CompiledPattern // Built-in + custom compiled regexes
}

// NewService creates a masking service with compiled patterns and registered
// maskers. All patterns are compiled eagerly at creation time. Invalid
// patterns are logged and skipped. A nil cfg uses the defaults.
func NewService(cfg *config.MaskingSettings) *Service {
	if cfg == nil {
		cfg = config.DefaultMaskingSettings()
	}

	s := &Service{enabled: cfg.Enabled}
	if s.enabled {
		s.maskers, s.patterns = resolveBuiltins(cfg.BuiltinPatterns)
		s.patterns = append(s.patterns, compileCustom(cfg.CustomPatterns)...)
	}

	slog.Info("Masking service initialized",
		"enabled", s.enabled,
		"compiled_patterns", len(s.patterns),
		"code_maskers", len(s.maskers))

	return s
}

// Mask scrubs secrets from text. Code-based maskers run first (structural
// awareness, key semantics), then the regex patterns sweep the remainder.
// Returns text unchanged when masking is disabled or text is empty.
func (s *Service) Mask(text string) string {
	if s == nil || !s.enabled || text == "" {
		return text
	}

	masked := text
	for _, m := range s.maskers {
		if m.AppliesTo(masked) {
			masked = m.Mask(masked)
		}
	}
	for _, p := range s.patterns {
		masked = p.Regex.ReplaceAllString(masked, p.Replacement)
	}
	return masked
}

// Enabled reports whether masking is active.
func (s *Service) Enabled() bool {
	return s != nil && s.enabled
}
