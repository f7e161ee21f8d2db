package config

// CustomMaskingPattern is a user-supplied masking rule loaded from YAML.
// The regex syntax is Go RE2; invalid patterns fail validation at startup.
type CustomMaskingPattern struct {
	Name        string `yaml:"name"`
	Pattern     string `yaml:"pattern"`
	Replacement string `yaml:"replacement"`
}

// MaskingSettings controls secret masking of diff text and outbound
// comment bodies. BuiltinPatterns selects by name from the patterns
// compiled into pkg/masking; CustomPatterns extend them.
type MaskingSettings struct {
	// Enabled gates all masking. When false, text passes through untouched.
	Enabled bool

	// BuiltinPatterns is the list of built-in pattern names to activate.
	// The loader fills in the default set when the YAML omits it.
	BuiltinPatterns []string

	// CustomPatterns are additional user-defined rules applied after the
	// built-in set.
	CustomPatterns []CustomMaskingPattern
}

// DefaultMaskingSettings returns the built-in masking defaults: enabled,
// with the standard security pattern set and no custom rules.
func DefaultMaskingSettings() *MaskingSettings {
	return &MaskingSettings{
		Enabled: true,
		BuiltinPatterns: []string{
			"api_key",
			"bearer_token",
			"password_assignment",
			"url_credentials",
			"private_key_block",
			"basic_auth_header",
			"github_token",
			"aws_access_key",
			"env_file",
		},
	}
}

// ActivePatternNames returns the names of every pattern the service will
// apply, built-in and custom, in application order. Empty when disabled.
func (s *MaskingSettings) ActivePatternNames() []string {
	if s == nil || !s.Enabled {
		return nil
	}
	names := make([]string, 0, len(s.BuiltinPatterns)+len(s.CustomPatterns))
	names = append(names, s.BuiltinPatterns...)
	for _, p := range s.CustomPatterns {
		names = append(names, p.Name)
	}
	return names
}

// MaskingYAMLConfig is the YAML-facing shape of MaskingSettings.
type MaskingYAMLConfig struct {
	Enabled         *bool                  `yaml:"enabled,omitempty"`
	BuiltinPatterns []string               `yaml:"builtin_patterns,omitempty"`
	CustomPatterns  []CustomMaskingPattern `yaml:"custom_patterns,omitempty"`
}
