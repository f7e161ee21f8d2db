package models

// Classification buckets what a pull request is doing.
type Classification string

const (
	ClassificationFeature  Classification = "feature"
	ClassificationBugfix   Classification = "bugfix"
	ClassificationRefactor Classification = "refactor"
	ClassificationDocs     Classification = "docs"
	ClassificationChore    Classification = "chore"
	ClassificationTest     Classification = "test"
	ClassificationDeps     Classification = "deps"
)

// Risk grades how risky a change set is.
type Risk string

const (
	RiskLow      Risk = "low"
	RiskMedium   Risk = "medium"
	RiskHigh     Risk = "high"
	RiskCritical Risk = "critical"
)

// SemanticChange describes one meaningful change the analyzer identified.
type SemanticChange struct {
	Kind   string `json:"kind"`
	Symbol string `json:"symbol"`
	File   string `json:"file"`
	Impact string `json:"impact"`
}

// ImpactRadius captures how far a change set reaches.
type ImpactRadius struct {
	Direct        int      `json:"direct"`
	Transitive    int      `json:"transitive"`
	AffectedFiles []string `json:"affected_files,omitempty"`
}

// Analysis is the analyzer agent's artifact for a workflow.
type Analysis struct {
	WorkflowID         string           `json:"workflow_id"`
	Classification     Classification   `json:"classification"`
	Risk               Risk             `json:"risk"`
	FilesChanged       int              `json:"files_changed"`
	Additions          int              `json:"additions"`
	Deletions          int              `json:"deletions"`
	SemanticChanges    []SemanticChange `json:"semantic_changes,omitempty"`
	ImpactRadius       ImpactRadius     `json:"impact_radius"`
	RiskFactors        []string         `json:"risk_factors,omitempty"`
	SuggestedReviewers []string         `json:"suggested_reviewers,omitempty"`
}
