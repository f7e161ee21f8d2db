package api

import "github.com/warden-ci/warden/pkg/models"

// ArtifactSummary reports which pipeline artifacts exist for a workflow.
// Absent stages are omitted rather than erroring the whole detail view.
type ArtifactSummary struct {
	Analysis           *models.Analysis       `json:"analysis,omitempty"`
	ReviewCommentCount int                    `json:"review_comment_count"`
	GeneratedTests     *models.GeneratedTests `json:"generated_tests,omitempty"`
	DocUpdates         *models.DocUpdates     `json:"doc_updates,omitempty"`
	Synthesis          *models.Synthesis      `json:"synthesis,omitempty"`
}

// WorkflowDetailResponse is the GET /workflows/:id body.
type WorkflowDetailResponse struct {
	Workflow  *models.Workflow `json:"workflow"`
	Artifacts ArtifactSummary  `json:"artifacts"`
}

// ReviewCommentsResponse is the GET /workflows/:id/review body.
type ReviewCommentsResponse struct {
	WorkflowID string                 `json:"workflow_id"`
	Comments   []models.ReviewComment `json:"comments"`
	Count      int                    `json:"count"`
}

// QueueListResponse is the GET /repositories/:repositoryID/queue body.
type QueueListResponse struct {
	RepositoryID string              `json:"repository_id"`
	Items        []*models.QueueItem `json:"items"`
	Count        int                 `json:"count"`
}

// SessionListResponse is the GET /chat/sessions body.
type SessionListResponse struct {
	Sessions []*models.ChatSession `json:"sessions"`
	Count    int                   `json:"count"`
}
