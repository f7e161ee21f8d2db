package models

import "time"

// WorkflowStatus represents the lifecycle state of a pull-request workflow.
type WorkflowStatus string

const (
	WorkflowStatusPending         WorkflowStatus = "pending"
	WorkflowStatusAnalyzing       WorkflowStatus = "analyzing"
	WorkflowStatusReviewing       WorkflowStatus = "reviewing"
	WorkflowStatusGeneratingTests WorkflowStatus = "generating_tests"
	WorkflowStatusUpdatingDocs    WorkflowStatus = "updating_docs"
	WorkflowStatusSynthesizing    WorkflowStatus = "synthesizing"
	WorkflowStatusCompleted       WorkflowStatus = "completed"
	WorkflowStatusFailed          WorkflowStatus = "failed"
)

// IsTerminal reports whether the status is a settled end state.
func (s WorkflowStatus) IsTerminal() bool {
	return s == WorkflowStatusCompleted || s == WorkflowStatusFailed
}

// IsInFlight reports whether a run is currently advancing the workflow.
func (s WorkflowStatus) IsInFlight() bool {
	switch s {
	case WorkflowStatusAnalyzing, WorkflowStatusReviewing, WorkflowStatusGeneratingTests,
		WorkflowStatusUpdatingDocs, WorkflowStatusSynthesizing:
		return true
	}
	return false
}

// PREvent is the inbound pull-request event that starts (or restarts) a workflow.
type PREvent struct {
	RepositoryID   string `json:"repository_id"`
	PRNumber       int    `json:"pr_number"`
	Owner          string `json:"owner"`
	Repo           string `json:"repo"`
	HeadSHA        string `json:"head_sha"`
	InstallationID int64  `json:"installation_id,omitempty"`
}

// Workflow tracks one pull request through the automation pipeline.
// Uniquely identified by (repository_id, pr_number).
type Workflow struct {
	ID             string         `json:"id"`
	RepositoryID   string         `json:"repository_id"`
	PRNumber       int            `json:"pr_number"`
	Owner          string         `json:"owner"`
	Repo           string         `json:"repo"`
	HeadSHA        string         `json:"head_sha"`
	InstallationID int64          `json:"installation_id,omitempty"`
	Status         WorkflowStatus `json:"status"`

	// CheckRunID is the provider-side check run created for this workflow.
	// Zero until the run is created.
	CheckRunID int64 `json:"check_run_id,omitempty"`

	Author     string `json:"author,omitempty"`
	Title      string `json:"title,omitempty"`
	BaseBranch string `json:"base_branch,omitempty"`
	HeadBranch string `json:"head_branch,omitempty"`

	// Error holds the failure reason for failed workflows.
	Error string `json:"error,omitempty"`

	// WorkerID identifies the worker currently processing this workflow.
	WorkerID string `json:"-"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// RepositorySettings holds the per-repository pipeline toggles consulted by
// the orchestrator before running optional agents.
type RepositorySettings struct {
	RepositoryID          string   `json:"repository_id"`
	ReviewEnabled         bool     `json:"review_enabled"`
	TestGenerationEnabled bool     `json:"test_generation_enabled"`
	DocUpdatesEnabled     bool     `json:"doc_updates_enabled"`
	SeverityThreshold     Severity `json:"severity_threshold"`
}

// DefaultRepositorySettings returns the settings applied when a repository
// has no stored row: everything enabled, every severity published.
func DefaultRepositorySettings(repositoryID string) RepositorySettings {
	return RepositorySettings{
		RepositoryID:          repositoryID,
		ReviewEnabled:         true,
		TestGenerationEnabled: true,
		DocUpdatesEnabled:     true,
		SeverityThreshold:     SeverityLow,
	}
}

// WorkflowWithSettings pairs a workflow with its repository settings.
type WorkflowWithSettings struct {
	Workflow
	Settings RepositorySettings `json:"settings"`
}

// CreateWorkflowRequest contains fields for creating a workflow from a PR event.
type CreateWorkflowRequest struct {
	Event      PREvent `json:"event"`
	Author     string  `json:"author,omitempty"`
	Title      string  `json:"title,omitempty"`
	BaseBranch string  `json:"base_branch,omitempty"`
	HeadBranch string  `json:"head_branch,omitempty"`
}
