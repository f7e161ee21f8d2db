package remediation

import (
	"sort"

	"github.com/warden-ci/warden/pkg/models"
)

// Phase names in execution order. Phase two absorbs security findings
// below high severity so every planned fix lands in exactly one phase.
const (
	phaseSecurity    = "security"
	phaseBugs        = "bugs"
	phasePerformance = "performance"
	phaseErrors      = "error handling"
	phaseStyle       = "style and maintainability"
)

// buildPlan filters candidate fixes per config, orders them and buckets
// them into the fixed phase sequence. Empty phases are dropped.
func buildPlan(workflowID string, comments []models.ReviewComment, cfg models.RemediationConfig) *models.RemediationPlan {
	plan := &models.RemediationPlan{WorkflowID: workflowID}

	var fixes []models.FixApplicability
	for i := range comments {
		comment := &comments[i]
		if !isCandidate(comment) {
			continue
		}
		if !severityIncluded(comment.Severity, cfg.IncludeSeverities) {
			continue
		}
		if !categoryIncluded(comment.Category, cfg.IncludeCategories) {
			continue
		}

		fix := Applicability(comment, cfg.AutoApplyThreshold)
		if fix.IsBreaking {
			plan.BreakingChanges++
			if cfg.SkipBreakingChanges {
				continue
			}
		}
		fixes = append(fixes, fix)
	}

	// Severity first, then category, then the most confident fix of a tie.
	sort.SliceStable(fixes, func(i, j int) bool {
		if a, b := models.SeverityRank(fixes[i].Severity), models.SeverityRank(fixes[j].Severity); a != b {
			return a < b
		}
		if a, b := models.CategoryRank(fixes[i].Category), models.CategoryRank(fixes[j].Category); a != b {
			return a < b
		}
		return fixes[i].Confidence > fixes[j].Confidence
	})

	plan.TotalFixes = len(fixes)
	for _, fix := range fixes {
		if fix.CanAutoApply {
			plan.AutoApplicable++
		} else {
			plan.ManualRequired++
		}
	}
	plan.Phases = bucketPhases(fixes)
	return plan
}

// isCandidate reports whether a comment can feed a remediation plan: it
// carries a suggestion and has not already been fixed or dismissed.
func isCandidate(comment *models.ReviewComment) bool {
	if comment.Suggestion == nil {
		return false
	}
	switch comment.Status {
	case models.CommentStatusPending, models.CommentStatusPosted:
		return true
	}
	return false
}

func severityIncluded(s models.Severity, include []models.Severity) bool {
	if len(include) == 0 {
		return true
	}
	for _, candidate := range include {
		if s == candidate {
			return true
		}
	}
	return false
}

func categoryIncluded(c models.Category, include []models.Category) bool {
	if len(include) == 0 {
		return true
	}
	for _, candidate := range include {
		if c == candidate {
			return true
		}
	}
	return false
}

// bucketPhases distributes ordered fixes into the phase sequence:
// critical and high security first, bugs plus remaining security second,
// then performance, error handling, and finally style and maintainability,
// which always requires human review.
func bucketPhases(fixes []models.FixApplicability) []models.RemediationPhase {
	phases := []models.RemediationPhase{
		{Name: phaseSecurity, Order: 1},
		{Name: phaseBugs, Order: 2},
		{Name: phasePerformance, Order: 3},
		{Name: phaseErrors, Order: 4},
		{Name: phaseStyle, Order: 5, RequiresReview: true},
	}

	for _, fix := range fixes {
		idx := phaseIndex(fix)
		phases[idx].Fixes = append(phases[idx].Fixes, fix)
	}

	result := make([]models.RemediationPhase, 0, len(phases))
	for _, phase := range phases {
		if len(phase.Fixes) == 0 {
			continue
		}
		phase.CanAutoApply = !phase.RequiresReview && allAutoApplicable(phase.Fixes)
		result = append(result, phase)
	}
	return result
}

func phaseIndex(fix models.FixApplicability) int {
	switch fix.Category {
	case models.CategorySecurity:
		if fix.Severity == models.SeverityCritical || fix.Severity == models.SeverityHigh {
			return 0
		}
		return 1
	case models.CategoryBug:
		return 1
	case models.CategoryPerformance:
		return 2
	case models.CategoryErrorHandling:
		return 3
	default:
		return 4
	}
}

func allAutoApplicable(fixes []models.FixApplicability) bool {
	for _, fix := range fixes {
		if !fix.CanAutoApply {
			return false
		}
	}
	return true
}
