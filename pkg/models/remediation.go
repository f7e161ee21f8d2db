package models

// CommitStrategy controls how applied fixes are grouped into commits.
type CommitStrategy string

const (
	CommitStrategySingle   CommitStrategy = "single"
	CommitStrategyPerPhase CommitStrategy = "per-phase"
	CommitStrategyPerFile  CommitStrategy = "per-file"
)

// IsValid returns true for known commit strategies.
func (s CommitStrategy) IsValid() bool {
	switch s {
	case CommitStrategySingle, CommitStrategyPerPhase, CommitStrategyPerFile:
		return true
	}
	return false
}

// RemediationConfig parameterizes plan generation and execution.
type RemediationConfig struct {
	AutoApplyThreshold  float64        `json:"auto_apply_threshold"`
	IncludeSeverities   []Severity     `json:"include_severities,omitempty"`
	IncludeCategories   []Category     `json:"include_categories,omitempty"`
	SkipBreakingChanges bool           `json:"skip_breaking_changes"`
	CommitStrategy      CommitStrategy `json:"commit_strategy"`
	TriggerReanalysis   bool           `json:"trigger_reanalysis"`
	DryRun              bool           `json:"dry_run"`
}

// FixApplicability is the per-comment decision whether a suggested fix can
// be applied without human review.
type FixApplicability struct {
	CommentID    string   `json:"comment_id"`
	File         string   `json:"file"`
	Line         int      `json:"line"`
	Severity     Severity `json:"severity"`
	Category     Category `json:"category"`
	CanAutoApply bool     `json:"can_auto_apply"`
	IsBreaking   bool     `json:"is_breaking"`
	Confidence   float64  `json:"confidence"`
	Reason       string   `json:"reason,omitempty"`
	DependsOn    []string `json:"depends_on,omitempty"`
}

// RemediationPhase bundles fixes of compatible category and severity that
// are applied together.
type RemediationPhase struct {
	Name  string             `json:"name"`
	Order int                `json:"order"`
	Fixes []FixApplicability `json:"fixes"`

	// CanAutoApply is true only when every fix in the phase is auto-applicable.
	CanAutoApply bool `json:"can_auto_apply"`

	// RequiresReview marks phases that must never auto-apply (style and
	// maintainability changes).
	RequiresReview bool `json:"requires_review"`
}

// RemediationPlan is the derived, unstored plan for a workflow's findings.
type RemediationPlan struct {
	WorkflowID      string             `json:"workflow_id"`
	TotalFixes      int                `json:"total_fixes"`
	AutoApplicable  int                `json:"auto_applicable"`
	ManualRequired  int                `json:"manual_required"`
	BreakingChanges int                `json:"breaking_changes"`
	Phases          []RemediationPhase `json:"phases"`
}

// FailedFix records a fix that could not be applied.
type FailedFix struct {
	Fix   FixApplicability `json:"fix"`
	Error string           `json:"error"`
}

// SkippedFix records a fix left for humans, with the reason.
type SkippedFix struct {
	Fix    FixApplicability `json:"fix"`
	Reason string           `json:"reason"`
}

// RemediationResult summarizes one plan execution. Every candidate fix of
// the plan lands in exactly one of Applied, Skipped, or Failed.
type RemediationResult struct {
	WorkflowID          string             `json:"workflow_id"`
	Success             bool               `json:"success"`
	PhasesCompleted     int                `json:"phases_completed"`
	Applied             []FixApplicability `json:"applied_fixes"`
	Skipped             []SkippedFix       `json:"skipped_fixes"`
	Failed              []FailedFix        `json:"failed_fixes"`
	CommitShas          []string           `json:"commit_shas,omitempty"`
	ReanalysisTriggered bool               `json:"reanalysis_triggered"`
	DryRun              bool               `json:"dry_run,omitempty"`
}
