package masking

// builtinPattern is the source definition of a built-in regex pattern.
type builtinPattern struct {
	pattern     string
	replacement string
	description string
}

// builtinPatterns returns the regex-based patterns that can be selected by
// name through MaskingSettings.BuiltinPatterns. Replacements use ${n} group
// references so key names and separators survive masking and the diff stays
// recognizable to reviewers.
func builtinPatterns() map[string]builtinPattern {
	return map[string]builtinPattern{
		"api_key": {
			pattern:     `(?i)(api[_-]?key|apikey)(["']?\s*[:=]\s*["']?)([A-Za-z0-9_\-]{16,})`,
			replacement: `${1}${2}__MASKED_API_KEY__`,
			description: "API key assignments",
		},
		"bearer_token": {
			pattern:     `(?i)bearer\s+[A-Za-z0-9_\-.~+/]{8,}=*`,
			replacement: `Bearer __MASKED_TOKEN__`,
			description: "Bearer tokens in Authorization headers",
		},
		"password_assignment": {
			pattern:     `(?i)(password|passwd|pwd)(["']?\s*[:=]\s*["']?)([^"'\s]{6,})`,
			replacement: `${1}${2}__MASKED_PASSWORD__`,
			description: "Password assignments",
		},
		"url_credentials": {
			pattern:     `([a-zA-Z][a-zA-Z0-9+.-]*://[^/\s:@]+):([^@/\s]+)@`,
			replacement: `${1}:__MASKED_PASSWORD__@`,
			description: "Credentials embedded in URLs",
		},
		"private_key_block": {
			pattern:     `(?s)-----BEGIN [A-Z ]*PRIVATE KEY-----.*?-----END [A-Z ]*PRIVATE KEY-----`,
			replacement: `__MASKED_PRIVATE_KEY__`,
			description: "PEM private key blocks",
		},
		"basic_auth_header": {
			pattern:     `(?i)(authorization["']?\s*[:=]?\s*["']?basic\s+)[A-Za-z0-9+/=]{8,}`,
			replacement: `${1}__MASKED_CREDENTIALS__`,
			description: "Basic auth headers",
		},
		"github_token": {
			pattern:     `\b(?:gh[pousr]_[A-Za-z0-9]{20,255}|github_pat_[A-Za-z0-9_]{20,255})\b`,
			replacement: `__MASKED_GITHUB_TOKEN__`,
			description: "GitHub access tokens",
		},
		"aws_access_key": {
			pattern:     `\b(?:AKIA|ASIA)[A-Z0-9]{16}\b`,
			replacement: `__MASKED_AWS_KEY__`,
			description: "AWS access key IDs",
		},
	}
}

// builtinMaskers returns the code-based maskers selectable by name. They
// share the builtin_patterns namespace with the regex patterns above.
func builtinMaskers() map[string]func() Masker {
	return map[string]func() Masker{
		"env_file": func() Masker { return &EnvFileMasker{} },
	}
}
