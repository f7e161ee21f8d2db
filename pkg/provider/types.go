package provider

// PullRequest is the subset of pull request metadata the pipeline needs.
type PullRequest struct {
	Number       int
	Title        string
	Body         string
	State        string // "open" or "closed"
	Draft        bool
	Merged       bool
	Author       string
	HeadSHA      string
	HeadBranch   string
	BaseBranch   string
	Additions    int
	Deletions    int
	ChangedFiles int
}

// DiffFile is one changed file in a pull request diff.
type DiffFile struct {
	Filename  string
	Status    string // added, modified, removed, renamed
	Additions int
	Deletions int
	Patch     string
}

// Diff is the full file-level diff of a pull request.
type Diff struct {
	Files          []DiffFile
	TotalAdditions int
	TotalDeletions int
}

// CombinedStatus is the rolled-up commit status for a ref.
// State is normalized to success, failure or pending.
type CombinedStatus struct {
	State      string
	TotalCount int
}

// CheckRun is one check run for a ref. Conclusion is normalized to
// success, failure, pending or neutral; a run that has not completed
// reports pending.
type CheckRun struct {
	ID         int64
	Name       string
	Status     string
	Conclusion string
}

// User identifies the author of a review.
type User struct {
	Login string `json:"login"`
}

// Review is one pull request review verdict.
type Review struct {
	User  User   `json:"user"`
	State string `json:"state"` // APPROVED, CHANGES_REQUESTED, COMMENTED, PENDING
}

// BranchComparison reports how a head branch relates to its base.
type BranchComparison struct {
	BehindBy int
	AheadBy  int
	Status   string // ahead, behind, identical, diverged
}

// FileContent is a file fetched from a repository at a specific ref.
type FileContent struct {
	Path    string
	Content string // decoded
	SHA     string // blob sha, required to update the file
}
