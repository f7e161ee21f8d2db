package remediation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warden-ci/warden/pkg/models"
)

func planConfig() models.RemediationConfig {
	return models.RemediationConfig{AutoApplyThreshold: 0.8, SkipBreakingChanges: true}
}

func phaseCommentIDs(phase models.RemediationPhase) []string {
	ids := make([]string, 0, len(phase.Fixes))
	for _, fix := range phase.Fixes {
		ids = append(ids, fix.CommentID)
	}
	return ids
}

func planCommentIDs(plan *models.RemediationPlan) []string {
	var ids []string
	for _, phase := range plan.Phases {
		ids = append(ids, phaseCommentIDs(phase)...)
	}
	return ids
}

func TestBuildPlan(t *testing.T) {
	t.Run("only pending and posted comments with suggestions feed the plan", func(t *testing.T) {
		posted := commentFixture("posted", models.SeverityHigh, models.CategoryBug, 0.9)
		pending := commentFixture("pending", models.SeverityHigh, models.CategoryBug, 0.9)
		pending.Status = models.CommentStatusPending
		bare := commentFixture("bare", models.SeverityHigh, models.CategoryBug, 0.9)
		bare.Suggestion = nil
		fixed := commentFixture("fixed", models.SeverityHigh, models.CategoryBug, 0.9)
		fixed.Status = models.CommentStatusFixApplied
		dismissed := commentFixture("dismissed", models.SeverityHigh, models.CategoryBug, 0.9)
		dismissed.Status = models.CommentStatusDismissed

		plan := buildPlan("wf-1", []models.ReviewComment{posted, pending, bare, fixed, dismissed}, planConfig())

		assert.Equal(t, 2, plan.TotalFixes)
		assert.ElementsMatch(t, []string{"posted", "pending"}, planCommentIDs(plan))
	})

	t.Run("severity filter drops everything below the cut", func(t *testing.T) {
		cfg := planConfig()
		cfg.IncludeSeverities = []models.Severity{models.SeverityCritical, models.SeverityHigh}
		high := commentFixture("high", models.SeverityHigh, models.CategoryBug, 0.9)
		medium := commentFixture("medium", models.SeverityMedium, models.CategoryBug, 0.9)

		plan := buildPlan("wf-1", []models.ReviewComment{high, medium}, cfg)

		assert.Equal(t, []string{"high"}, planCommentIDs(plan))
	})

	t.Run("category filter keeps only the listed categories", func(t *testing.T) {
		cfg := planConfig()
		cfg.IncludeCategories = []models.Category{models.CategorySecurity}
		sec := commentFixture("sec", models.SeverityHigh, models.CategorySecurity, 0.9)
		style := commentFixture("style", models.SeverityNitpick, models.CategoryStyle, 0.9)

		plan := buildPlan("wf-1", []models.ReviewComment{sec, style}, cfg)

		assert.Equal(t, []string{"sec"}, planCommentIDs(plan))
	})

	t.Run("empty filters include every severity and category", func(t *testing.T) {
		nit := commentFixture("nit", models.SeverityNitpick, models.CategoryStyle, 0.9)

		plan := buildPlan("wf-1", []models.ReviewComment{nit}, planConfig())

		assert.Equal(t, 1, plan.TotalFixes)
	})

	t.Run("breaking fixes are counted and then skipped", func(t *testing.T) {
		breaking := commentFixture("breaking", models.SeverityMedium, models.CategoryMaintainability, 0.9)
		breaking.Suggestion = suggestionFixture("function getUser() {", "function fetchUser() {")
		safe := commentFixture("safe", models.SeverityHigh, models.CategoryBug, 0.9)

		plan := buildPlan("wf-1", []models.ReviewComment{breaking, safe}, planConfig())

		assert.Equal(t, 1, plan.BreakingChanges)
		assert.Equal(t, 1, plan.TotalFixes)
		assert.Equal(t, []string{"safe"}, planCommentIDs(plan))
	})

	t.Run("breaking fixes stay in the plan when not skipped", func(t *testing.T) {
		cfg := planConfig()
		cfg.SkipBreakingChanges = false
		breaking := commentFixture("breaking", models.SeverityMedium, models.CategoryMaintainability, 0.9)
		breaking.Suggestion = suggestionFixture("function getUser() {", "function fetchUser() {")

		plan := buildPlan("wf-1", []models.ReviewComment{breaking}, cfg)

		assert.Equal(t, 1, plan.BreakingChanges)
		assert.Equal(t, 1, plan.TotalFixes)
		assert.Equal(t, 1, plan.ManualRequired)
		require.Len(t, plan.Phases, 1)
		assert.Equal(t, phaseStyle, plan.Phases[0].Name)
		assert.False(t, plan.Phases[0].CanAutoApply)
		assert.True(t, plan.Phases[0].Fixes[0].IsBreaking)
	})

	t.Run("severity then category then confidence orders fixes", func(t *testing.T) {
		surest := commentFixture("surest", models.SeverityHigh, models.CategoryBug, 0.95)
		weaker := commentFixture("weaker", models.SeverityHigh, models.CategoryBug, 0.85)
		lower := commentFixture("lower", models.SeverityMedium, models.CategorySecurity, 0.99)

		plan := buildPlan("wf-1", []models.ReviewComment{lower, weaker, surest}, planConfig())

		// All three land in the bugs phase: medium security rides along.
		require.Len(t, plan.Phases, 1)
		assert.Equal(t, phaseBugs, plan.Phases[0].Name)
		assert.Equal(t, []string{"surest", "weaker", "lower"}, phaseCommentIDs(plan.Phases[0]))
	})

	t.Run("critical and high security get their own first phase", func(t *testing.T) {
		crit := commentFixture("crit", models.SeverityCritical, models.CategorySecurity, 0.9)
		med := commentFixture("med", models.SeverityMedium, models.CategorySecurity, 0.9)

		plan := buildPlan("wf-1", []models.ReviewComment{crit, med}, planConfig())

		require.Len(t, plan.Phases, 2)
		assert.Equal(t, phaseSecurity, plan.Phases[0].Name)
		assert.Equal(t, []string{"crit"}, phaseCommentIDs(plan.Phases[0]))
		assert.Equal(t, phaseBugs, plan.Phases[1].Name)
		assert.Equal(t, []string{"med"}, phaseCommentIDs(plan.Phases[1]))
	})

	t.Run("phases keep their fixed order numbers when some are empty", func(t *testing.T) {
		sec := commentFixture("sec", models.SeverityCritical, models.CategorySecurity, 0.9)
		perf := commentFixture("perf", models.SeverityMedium, models.CategoryPerformance, 0.9)
		style := commentFixture("style", models.SeverityNitpick, models.CategoryStyle, 0.9)

		plan := buildPlan("wf-1", []models.ReviewComment{style, perf, sec}, planConfig())

		require.Len(t, plan.Phases, 3)
		assert.Equal(t, phaseSecurity, plan.Phases[0].Name)
		assert.Equal(t, 1, plan.Phases[0].Order)
		assert.Equal(t, phasePerformance, plan.Phases[1].Name)
		assert.Equal(t, 3, plan.Phases[1].Order)
		assert.Equal(t, phaseStyle, plan.Phases[2].Name)
		assert.Equal(t, 5, plan.Phases[2].Order)
	})

	t.Run("style phase never auto-applies", func(t *testing.T) {
		style := commentFixture("style", models.SeverityNitpick, models.CategoryStyle, 0.95)

		plan := buildPlan("wf-1", []models.ReviewComment{style}, planConfig())

		require.Len(t, plan.Phases, 1)
		assert.True(t, plan.Phases[0].RequiresReview)
		assert.False(t, plan.Phases[0].CanAutoApply)
		// The fix itself qualifies; the phase holds it back.
		assert.True(t, plan.Phases[0].Fixes[0].CanAutoApply)
	})

	t.Run("phase auto-applies only when every fix does", func(t *testing.T) {
		sure := commentFixture("sure", models.SeverityHigh, models.CategoryBug, 0.9)
		shaky := commentFixture("shaky", models.SeverityHigh, models.CategoryBug, 0.5)

		plan := buildPlan("wf-1", []models.ReviewComment{sure, shaky}, planConfig())

		require.Len(t, plan.Phases, 1)
		assert.False(t, plan.Phases[0].CanAutoApply)
		assert.Equal(t, 1, plan.AutoApplicable)
		assert.Equal(t, 1, plan.ManualRequired)
		assert.Equal(t, plan.TotalFixes, plan.AutoApplicable+plan.ManualRequired)
	})

	t.Run("no comments produce an empty plan", func(t *testing.T) {
		plan := buildPlan("wf-1", nil, planConfig())

		assert.Zero(t, plan.TotalFixes)
		assert.Empty(t, plan.Phases)
	})
}
