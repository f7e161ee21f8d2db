package models

// Severity classifies how serious a review finding is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityNitpick  Severity = "nitpick"
)

// Category classifies what kind of problem a review finding describes.
type Category string

const (
	CategorySecurity        Category = "security"
	CategoryBug             Category = "bug"
	CategoryPerformance     Category = "performance"
	CategoryErrorHandling   Category = "error_handling"
	CategoryStyle           Category = "style"
	CategoryMaintainability Category = "maintainability"
)

// CommentStatus tracks what happened to a review comment after creation.
type CommentStatus string

const (
	CommentStatusPending       CommentStatus = "pending"
	CommentStatusPosted        CommentStatus = "posted"
	CommentStatusFixApplied    CommentStatus = "fix_applied"
	CommentStatusDismissed     CommentStatus = "dismissed"
	CommentStatusResolved      CommentStatus = "resolved"
	CommentStatusFalsePositive CommentStatus = "false_positive"
)

var severityRanks = map[Severity]int{
	SeverityCritical: 0,
	SeverityHigh:     1,
	SeverityMedium:   2,
	SeverityLow:      3,
	SeverityNitpick:  4,
}

var categoryRanks = map[Category]int{
	CategorySecurity:        0,
	CategoryBug:             1,
	CategoryPerformance:     2,
	CategoryErrorHandling:   3,
	CategoryStyle:           4,
	CategoryMaintainability: 5,
}

// IsValid returns true for known severities.
func (s Severity) IsValid() bool {
	_, ok := severityRanks[s]
	return ok
}

// IsValid returns true for known categories.
func (c Category) IsValid() bool {
	_, ok := categoryRanks[c]
	return ok
}

// SeverityRank orders severities most-severe-first (critical = 0).
// Unknown severities sort last.
func SeverityRank(s Severity) int {
	if r, ok := severityRanks[s]; ok {
		return r
	}
	return len(severityRanks)
}

// CategoryRank orders categories by remediation priority (security = 0).
// Unknown categories sort last.
func CategoryRank(c Category) int {
	if r, ok := categoryRanks[c]; ok {
		return r
	}
	return len(categoryRanks)
}

// MeetsThreshold reports whether severity s is at least as severe as the
// threshold (e.g. high meets a medium threshold, nitpick does not).
func (s Severity) MeetsThreshold(threshold Severity) bool {
	return SeverityRank(s) <= SeverityRank(threshold)
}

// Suggestion carries a concrete replacement proposed by the reviewer agent.
type Suggestion struct {
	OriginalCode  string `json:"original_code"`
	SuggestedCode string `json:"suggested_code"`
}

// ReviewComment is one finding produced by the reviewer agent for a workflow.
type ReviewComment struct {
	ID         string        `json:"id"`
	WorkflowID string        `json:"workflow_id"`
	File       string        `json:"file"`
	Line       int           `json:"line"`
	Severity   Severity      `json:"severity"`
	Category   Category      `json:"category"`
	Message    string        `json:"message"`
	Suggestion *Suggestion   `json:"suggestion,omitempty"`
	Confidence float64       `json:"confidence"`
	Status     CommentStatus `json:"status"`
}
