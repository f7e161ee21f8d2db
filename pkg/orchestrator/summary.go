package orchestrator

import (
	"fmt"
	"strings"

	"github.com/warden-ci/warden/pkg/models"
)

// summaryCommentBody renders the summary comment posted on the pull
// request at the end of a run. The provider prepends its own hidden
// marker so reruns update the comment in place.
func summaryCommentBody(analysis *models.Analysis, synthesis *models.Synthesis,
	review []models.ReviewComment, threshold models.Severity) string {

	var sb strings.Builder

	sb.WriteString("## Warden review\n\n")
	fmt.Fprintf(&sb, "**Recommendation:** %s\n", recommendationLabel(synthesis.Recommendation))
	fmt.Fprintf(&sb, "**Classification:** %s | **Risk:** %s\n\n", analysis.Classification, analysis.Risk)
	sb.WriteString(synthesis.Summary)
	sb.WriteString("\n")

	if len(synthesis.Highlights) > 0 {
		sb.WriteString("\n**Highlights:**\n")
		for _, h := range synthesis.Highlights {
			fmt.Fprintf(&sb, "- %s\n", h)
		}
	}

	if len(review) == 0 {
		sb.WriteString("\nNo review findings.\n")
		return sb.String()
	}

	published := 0
	for _, c := range review {
		if c.Severity.MeetsThreshold(threshold) {
			published++
		}
	}
	fmt.Fprintf(&sb, "\n%d finding(s), %d at or above the %s threshold posted inline.\n",
		len(review), published, threshold)

	return sb.String()
}

// recommendationLabel renders a recommendation for humans.
func recommendationLabel(r models.Recommendation) string {
	switch r {
	case models.RecommendationApprove:
		return "approve"
	case models.RecommendationRequestChanges:
		return "request changes"
	default:
		return "comment"
	}
}

// fallbackSynthesis is the summary used when the synthesizer fails. It is
// assembled from artifacts already in hand so publication never blocks on
// the model.
func fallbackSynthesis(analysis *models.Analysis, review []models.ReviewComment) *models.Synthesis {
	return &models.Synthesis{
		Summary: fmt.Sprintf(
			"Automated review finished: %s change, %s risk, %d finding(s). The synthesis stage did not produce a summary.",
			analysis.Classification, analysis.Risk, len(review)),
		Recommendation: models.RecommendationComment,
	}
}

// checkRunTitle is the short line shown next to the check run conclusion.
func checkRunTitle(conclusion string, review []models.ReviewComment) string {
	switch conclusion {
	case conclusionFailure:
		return fmt.Sprintf("%d finding(s), critical issues present", len(review))
	case conclusionActionRequired:
		return fmt.Sprintf("%d finding(s) need attention", len(review))
	default:
		if len(review) == 0 {
			return "No findings"
		}
		return fmt.Sprintf("%d finding(s), none blocking", len(review))
	}
}
