package remediation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/warden-ci/warden/pkg/models"
)

// defaultAutoApplyThreshold is the minimum confidence a suggested fix needs
// before it may be applied without human review.
const defaultAutoApplyThreshold = 0.8

// signaturePattern captures the declared identifier of a function-like
// declaration inside suggestion text.
var signaturePattern = regexp.MustCompile(`\b(?:function|const|let|var)\s+([A-Za-z_$][\w$]*)\s*\(`)

var (
	exportKeyword  = regexp.MustCompile(`\bexport\b`)
	publicKeyword  = regexp.MustCompile(`\bpublic\b`)
	privateKeyword = regexp.MustCompile(`\bprivate\b`)
)

// Applicability decides whether one review comment's suggestion can be
// applied without human review: the suggestion must carry concrete original
// and replacement code, must not look like a breaking change, and the
// comment's confidence must meet the threshold.
func Applicability(comment *models.ReviewComment, threshold float64) models.FixApplicability {
	if threshold <= 0 {
		threshold = defaultAutoApplyThreshold
	}

	fix := models.FixApplicability{
		CommentID:  comment.ID,
		File:       comment.File,
		Line:       comment.Line,
		Severity:   comment.Severity,
		Category:   comment.Category,
		Confidence: comment.Confidence,
	}

	if comment.Suggestion == nil ||
		strings.TrimSpace(comment.Suggestion.OriginalCode) == "" ||
		strings.TrimSpace(comment.Suggestion.SuggestedCode) == "" {
		fix.Reason = "no concrete suggestion"
		return fix
	}

	if breaking, why := isBreakingChange(comment); breaking {
		fix.IsBreaking = true
		fix.Reason = why
		return fix
	}

	if comment.Confidence < threshold {
		fix.Reason = fmt.Sprintf("confidence %.2f below threshold %.2f", comment.Confidence, threshold)
		return fix
	}

	fix.CanAutoApply = true
	return fix
}

// isBreakingChange applies the conservative breaking-change detectors:
// renamed declarations on maintainability findings, removed exports, and
// public visibility reduced to private. Any match disqualifies the fix
// from automatic application.
func isBreakingChange(comment *models.ReviewComment) (bool, string) {
	original := comment.Suggestion.OriginalCode
	suggested := comment.Suggestion.SuggestedCode

	if comment.Category == models.CategoryMaintainability {
		before := signaturePattern.FindStringSubmatch(original)
		after := signaturePattern.FindStringSubmatch(suggested)
		if before != nil && after != nil && before[1] != after[1] {
			return true, fmt.Sprintf("renames %s to %s", before[1], after[1])
		}
	}

	if exportKeyword.MatchString(original) && !exportKeyword.MatchString(suggested) {
		return true, "removes an export"
	}

	if publicKeyword.MatchString(original) &&
		!publicKeyword.MatchString(suggested) &&
		privateKeyword.MatchString(suggested) {
		return true, "reduces public visibility to private"
	}

	return false, ""
}
