package remediation

import (
	"context"
	"fmt"
	"sync"

	"github.com/warden-ci/warden/pkg/models"
	"github.com/warden-ci/warden/pkg/provider"
	"github.com/warden-ci/warden/pkg/services"
)

// stubWorkflows serves a single workflow and records reanalysis requeues.
type stubWorkflows struct {
	mu         sync.Mutex
	workflow   *models.Workflow
	getErr     error
	requeued   []string
	requeueErr error
}

func (s *stubWorkflows) GetWorkflow(_ context.Context, workflowID string) (*models.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	if s.workflow == nil || s.workflow.ID != workflowID {
		return nil, fmt.Errorf("workflow %s: %w", workflowID, services.ErrNotFound)
	}
	w := *s.workflow
	return &w, nil
}

func (s *stubWorkflows) RequeueForAnalysis(_ context.Context, workflowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.requeueErr != nil {
		return s.requeueErr
	}
	s.requeued = append(s.requeued, workflowID)
	return nil
}

func (s *stubWorkflows) requeues() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requeued...)
}

// stubArtifacts serves canned review comments and records status updates.
type stubArtifacts struct {
	mu        sync.Mutex
	comments  []models.ReviewComment
	getErr    error
	updates   map[string]models.CommentStatus
	updateErr error
}

func (s *stubArtifacts) GetReviewComments(_ context.Context, _ string) ([]models.ReviewComment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	return append([]models.ReviewComment(nil), s.comments...), nil
}

func (s *stubArtifacts) UpdateReviewCommentStatuses(_ context.Context, commentIDs []string, status models.CommentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	if s.updates == nil {
		s.updates = make(map[string]models.CommentStatus)
	}
	for _, id := range commentIDs {
		s.updates[id] = status
	}
	return nil
}

func (s *stubArtifacts) statusOf(commentID string) models.CommentStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates[commentID]
}

// commitRecord is one UpdateFile call captured by stubRepo.
type commitRecord struct {
	path    string
	branch  string
	message string
	content string
}

// stubRepo fakes the provider contents API over an in-memory file tree.
// Paths listed in failPaths reject commits.
type stubRepo struct {
	mu        sync.Mutex
	pull      *provider.PullRequest
	pullErr   error
	files     map[string]string
	getErr    error
	failPaths map[string]bool
	commits   []commitRecord
	seq       int
}

func (s *stubRepo) GetPullRequest(_ context.Context, _, _ string, number int) (*provider.PullRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pullErr != nil {
		return nil, s.pullErr
	}
	if s.pull == nil {
		return nil, fmt.Errorf("pull request %d not found", number)
	}
	pr := *s.pull
	return &pr, nil
}

func (s *stubRepo) GetFileContent(_ context.Context, _, _, path, ref string) (*provider.FileContent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	content, ok := s.files[path]
	if !ok {
		return nil, fmt.Errorf("no such file %s on %s", path, ref)
	}
	return &provider.FileContent{Path: path, Content: content, SHA: "blob-" + path}, nil
}

func (s *stubRepo) UpdateFile(_ context.Context, _, _, path, branch, message, content, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPaths[path] {
		return "", fmt.Errorf("update of %s rejected", path)
	}
	if s.files == nil {
		s.files = make(map[string]string)
	}
	s.files[path] = content
	s.commits = append(s.commits, commitRecord{path: path, branch: branch, message: message, content: content})
	s.seq++
	return fmt.Sprintf("commit-%d", s.seq), nil
}

func (s *stubRepo) fileContent(path string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.files[path]
}

func (s *stubRepo) committed() []commitRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]commitRecord(nil), s.commits...)
}

// progressEvent is one remediation progress publish captured by stubEvents.
type progressEvent struct {
	status  string
	phase   string
	applied int
	skipped int
	failed  int
}

type stubEvents struct {
	mu     sync.Mutex
	events []progressEvent
	err    error
}

func (s *stubEvents) PublishRemediationProgress(_ context.Context, _ *models.Workflow, status, phase string, applied, skipped, failed int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, progressEvent{
		status: status, phase: phase,
		applied: applied, skipped: skipped, failed: failed,
	})
	return nil
}

func (s *stubEvents) statuses() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.status)
	}
	return out
}
