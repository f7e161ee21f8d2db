package models

import "time"

// QueueItemStatus is the merge-queue lifecycle state of a queued pull request.
type QueueItemStatus string

const (
	QueueItemStatusQueued     QueueItemStatus = "queued"
	QueueItemStatusChecking   QueueItemStatus = "checking"
	QueueItemStatusReady      QueueItemStatus = "ready"
	QueueItemStatusMerging    QueueItemStatus = "merging"
	QueueItemStatusMerged     QueueItemStatus = "merged"
	QueueItemStatusFailed     QueueItemStatus = "failed"
	QueueItemStatusBlocked    QueueItemStatus = "blocked"
	QueueItemStatusConflicted QueueItemStatus = "conflicted"
)

// IsTerminal reports whether the item has left the queue lifecycle.
// Blocked and conflicted items remain queued awaiting operator action.
func (s QueueItemStatus) IsTerminal() bool {
	return s == QueueItemStatusMerged || s == QueueItemStatusFailed
}

// MergeMethod selects how the provider merges a pull request.
type MergeMethod string

const (
	MergeMethodMerge  MergeMethod = "merge"
	MergeMethodSquash MergeMethod = "squash"
	MergeMethodRebase MergeMethod = "rebase"
)

// IsValid returns true for known merge methods.
func (m MergeMethod) IsValid() bool {
	switch m {
	case MergeMethodMerge, MergeMethodSquash, MergeMethodRebase:
		return true
	}
	return false
}

// QueueItem is one pull request waiting in a repository's merge queue.
type QueueItem struct {
	RepositoryID string          `json:"repository_id"`
	PRNumber     int             `json:"pr_number"`
	Owner        string          `json:"owner"`
	Repo         string          `json:"repo"`
	Title        string          `json:"title,omitempty"`
	Author       string          `json:"author,omitempty"`
	BaseBranch   string          `json:"base_branch"`
	HeadBranch   string          `json:"head_branch,omitempty"`
	HeadSHA      string          `json:"head_sha,omitempty"`
	Status       QueueItemStatus `json:"status"`

	// Position is the dense 1..N slot in score order within the repository
	// queue, recomputed after every mutation.
	Position int `json:"position"`

	// Priority orders items ahead of later arrivals; higher merges first.
	Priority int `json:"priority"`

	AddedAt        time.Time  `json:"added_at"`
	ChecksPassedAt *time.Time `json:"checks_passed_at,omitempty"`
	MergedAt       *time.Time `json:"merged_at,omitempty"`

	// Reason explains blocked, conflicted, and failed states.
	Reason string `json:"reason,omitempty"`

	// ConflictsWith lists PR numbers of ahead-of-queue peers whose changed
	// lines overlap this item's.
	ConflictsWith []int `json:"conflicts_with,omitempty"`
}

// EnqueueRequest contains fields for adding a pull request to a merge queue.
type EnqueueRequest struct {
	PRNumber   int    `json:"pr_number"`
	Owner      string `json:"owner"`
	Repo       string `json:"repo"`
	Title      string `json:"title,omitempty"`
	Author     string `json:"author,omitempty"`
	BaseBranch string `json:"base_branch"`
	HeadBranch string `json:"head_branch,omitempty"`
	HeadSHA    string `json:"head_sha,omitempty"`
	Priority   int    `json:"priority,omitempty"`
}
