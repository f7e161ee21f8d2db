package masking

import (
	"regexp"
	"strings"
)

// MaskedEnvValue is the replacement string for masked dotenv assignment values.
const MaskedEnvValue = "__MASKED_ENV_VALUE__"

var (
	// envAssignmentPattern captures a dotenv-style assignment line, keeping
	// any diff marker, indentation and optional export prefix intact.
	envAssignmentPattern = regexp.MustCompile(`^([+\- ]?\s*(?:export\s+)?)([A-Za-z_][A-Za-z0-9_]*)=(.*)$`)

	// sensitiveKeyPattern decides whether an assignment key names a secret.
	sensitiveKeyPattern = regexp.MustCompile(`(?i)(secret|token|password|passwd|api_?key|private_?key|credential|auth)`)
)

// EnvFileMasker masks values of sensitive-looking keys in dotenv-style
// assignment lines. Unlike the regex patterns, which match known value
// formats, it decides by key name, so opaque values like database passwords
// are caught too. Diff markers on hunk lines are preserved.
type EnvFileMasker struct{}

// Name returns the unique identifier for this masker.
func (m *EnvFileMasker) Name() string { return "env_file" }

// AppliesTo performs a lightweight check on whether this masker should process the text.
func (m *EnvFileMasker) AppliesTo(text string) bool {
	if !strings.Contains(text, "=") {
		return false
	}
	return sensitiveKeyPattern.MatchString(text)
}

// Mask rewrites sensitive assignment values line by line. Lines that are not
// assignments, or whose key does not look sensitive, pass through unchanged.
func (m *EnvFileMasker) Mask(text string) string {
	lines := strings.Split(text, "\n")
	changed := false

	for i, line := range lines {
		groups := envAssignmentPattern.FindStringSubmatch(line)
		if groups == nil {
			continue
		}
		prefix, key, value := groups[1], groups[2], groups[3]
		if value == "" || !sensitiveKeyPattern.MatchString(key) {
			continue
		}
		lines[i] = prefix + key + "=" + MaskedEnvValue
		changed = true
	}

	if !changed {
		return text
	}
	return strings.Join(lines, "\n")
}
