package masking

// Masker is the interface for code-based maskers that need structural
// awareness beyond regex pattern matching. Code-based maskers understand the
// shape of the text they process (e.g. dotenv assignment lines inside diff
// hunks) and can mask by key semantics rather than value format.
type Masker interface {
	// Name returns the unique identifier for this masker. Names share the
	// namespace of built-in regex patterns and are selected through the
	// same builtin_patterns config list.
	Name() string

	// AppliesTo performs a lightweight check on whether this masker
	// should process the text. Should be fast (string contains, not parsing).
	AppliesTo(text string) bool

	// Mask applies masking logic and returns the masked result.
	// Must be defensive: return original text on parse/processing errors.
	Mask(text string) string
}
