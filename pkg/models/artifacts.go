package models

// TestFile is one generated test file.
type TestFile struct {
	Path      string `json:"path"`
	Content   string `json:"content"`
	Framework string `json:"framework,omitempty"`
}

// GeneratedTests is the test generator agent's artifact for a workflow.
type GeneratedTests struct {
	WorkflowID string     `json:"workflow_id"`
	Files      []TestFile `json:"files,omitempty"`
	Summary    string     `json:"summary,omitempty"`
}

// DocUpdate is one proposed documentation change.
type DocUpdate struct {
	File    string `json:"file"`
	Section string `json:"section,omitempty"`
	Content string `json:"content"`
}

// DocUpdates is the doc updater agent's artifact for a workflow.
type DocUpdates struct {
	WorkflowID string      `json:"workflow_id"`
	Updates    []DocUpdate `json:"updates,omitempty"`
	Summary    string      `json:"summary,omitempty"`
}

// Recommendation is the synthesizer's overall verdict on a pull request.
type Recommendation string

const (
	RecommendationApprove        Recommendation = "approve"
	RecommendationRequestChanges Recommendation = "request_changes"
	RecommendationComment        Recommendation = "comment"
)

// Synthesis is the synthesizer agent's artifact: the cross-agent summary
// published back to the pull request.
type Synthesis struct {
	WorkflowID     string         `json:"workflow_id"`
	Summary        string         `json:"summary"`
	Recommendation Recommendation `json:"recommendation,omitempty"`
	Highlights     []string       `json:"highlights,omitempty"`
}
