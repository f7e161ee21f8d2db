package mergequeue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/warden-ci/warden/pkg/models"
	"github.com/warden-ci/warden/pkg/provider"
)

// stubForge is an in-memory Provider. Zero value fails every call, so
// tests only wire up the gates they exercise.
type stubForge struct {
	mu sync.Mutex

	pulls   map[int]*provider.PullRequest
	pullErr error

	diffs   map[int]*provider.Diff
	diffErr error

	combined    *provider.CombinedStatus
	combinedErr error

	runs    []provider.CheckRun
	runsErr error

	reviews    []provider.Review
	reviewsErr error

	compare    *provider.BranchComparison
	compareErr error

	updateErr error
	updated   []int

	mergeSHA string
	mergeErr error
	merged   []int
}

func (f *stubForge) GetPullRequest(_ context.Context, _, _ string, number int) (*provider.PullRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pullErr != nil {
		return nil, f.pullErr
	}
	pr, ok := f.pulls[number]
	if !ok {
		return nil, fmt.Errorf("no pull request %d configured", number)
	}
	copied := *pr
	return &copied, nil
}

func (f *stubForge) GetPullRequestDiff(_ context.Context, _, _ string, number int) (*provider.Diff, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.diffErr != nil {
		return nil, f.diffErr
	}
	diff, ok := f.diffs[number]
	if !ok {
		return &provider.Diff{}, nil
	}
	return diff, nil
}

func (f *stubForge) GetCombinedStatus(_ context.Context, _, _, _ string) (*provider.CombinedStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.combinedErr != nil {
		return nil, f.combinedErr
	}
	if f.combined == nil {
		return &provider.CombinedStatus{State: "success"}, nil
	}
	return f.combined, nil
}

func (f *stubForge) GetCheckRuns(_ context.Context, _, _, _ string) ([]provider.CheckRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.runsErr != nil {
		return nil, f.runsErr
	}
	return f.runs, nil
}

func (f *stubForge) GetReviews(_ context.Context, _, _ string, _ int) ([]provider.Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reviewsErr != nil {
		return nil, f.reviewsErr
	}
	return f.reviews, nil
}

func (f *stubForge) CompareBranches(_ context.Context, _, _, _, _ string) (*provider.BranchComparison, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.compareErr != nil {
		return nil, f.compareErr
	}
	if f.compare == nil {
		return &provider.BranchComparison{Status: "ahead"}, nil
	}
	return f.compare, nil
}

func (f *stubForge) UpdateBranch(_ context.Context, _, _ string, number int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated = append(f.updated, number)
	return f.updateErr
}

func (f *stubForge) MergePullRequest(_ context.Context, _, _ string, number int, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mergeErr != nil {
		return "", f.mergeErr
	}
	f.merged = append(f.merged, number)
	if f.mergeSHA == "" {
		return "merge-sha", nil
	}
	return f.mergeSHA, nil
}

func (f *stubForge) updatedBranches() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.updated...)
}

func (f *stubForge) mergedPRs() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.merged...)
}

// openPull registers a ready-to-review open pull request.
func (f *stubForge) openPull(number int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pulls == nil {
		f.pulls = make(map[int]*provider.PullRequest)
	}
	f.pulls[number] = &provider.PullRequest{
		Number:     number,
		Title:      fmt.Sprintf("change %d", number),
		State:      "open",
		Author:     "octocat",
		HeadSHA:    fmt.Sprintf("sha-%d", number),
		HeadBranch: fmt.Sprintf("feature-%d", number),
		BaseBranch: "main",
	}
}

// approve wires a single approving review, satisfying the default policy.
func (f *stubForge) approve(reviewer string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reviews = append(f.reviews, provider.Review{
		User:  provider.User{Login: reviewer},
		State: "APPROVED",
	})
}

// setDiff registers the file-level diff for a pull request.
func (f *stubForge) setDiff(number int, diff *provider.Diff) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.diffs == nil {
		f.diffs = make(map[int]*provider.Diff)
	}
	f.diffs[number] = diff
}

// stubSink records published queue item renditions.
type stubSink struct {
	mu     sync.Mutex
	events []models.QueueItem
	err    error
}

func (s *stubSink) PublishQueueItemStatus(_ context.Context, item *models.QueueItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *item
	copied.ConflictsWith = append([]int(nil), item.ConflictsWith...)
	s.events = append(s.events, copied)
	return s.err
}

// statusesFor returns the status trajectory published for one pull request.
func (s *stubSink) statusesFor(prNumber int) []models.QueueItemStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	var statuses []models.QueueItemStatus
	for _, ev := range s.events {
		if ev.PRNumber == prNumber {
			statuses = append(statuses, ev.Status)
		}
	}
	return statuses
}

// lastFor returns the most recent rendition published for one pull request.
func (s *stubSink) lastFor(prNumber int) (models.QueueItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].PRNumber == prNumber {
			return s.events[i], true
		}
	}
	return models.QueueItem{}, false
}

func (s *stubSink) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

// stubClock is a controllable time source.
type stubClock struct {
	mu sync.Mutex
	t  time.Time
}

func newStubClock() *stubClock {
	return &stubClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *stubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *stubClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
