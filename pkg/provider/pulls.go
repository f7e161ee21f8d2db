package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// pullResponse is the wire shape of GET /repos/{owner}/{repo}/pulls/{number}.
type pullResponse struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	State  string `json:"state"`
	Draft  bool   `json:"draft"`
	Merged bool   `json:"merged"`
	User   struct {
		Login string `json:"login"`
	} `json:"user"`
	Head struct {
		Ref string `json:"ref"`
		SHA string `json:"sha"`
	} `json:"head"`
	Base struct {
		Ref string `json:"ref"`
	} `json:"base"`
	Additions    int `json:"additions"`
	Deletions    int `json:"deletions"`
	ChangedFiles int `json:"changed_files"`
}

// GetPullRequest fetches pull request metadata.
func (c *Client) GetPullRequest(ctx context.Context, owner, repo string, number int) (*PullRequest, error) {
	var resp pullResponse
	path := fmt.Sprintf("/repos/%s/%s/pulls/%d", owner, repo, number)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("get pull request %s/%s#%d: %w", owner, repo, number, err)
	}

	return &PullRequest{
		Number:       resp.Number,
		Title:        resp.Title,
		Body:         resp.Body,
		State:        resp.State,
		Draft:        resp.Draft,
		Merged:       resp.Merged,
		Author:       resp.User.Login,
		HeadSHA:      resp.Head.SHA,
		HeadBranch:   resp.Head.Ref,
		BaseBranch:   resp.Base.Ref,
		Additions:    resp.Additions,
		Deletions:    resp.Deletions,
		ChangedFiles: resp.ChangedFiles,
	}, nil
}

// GetPullRequestDiff fetches the file-level diff of a pull request. Results
// are cached per head sha, so repeated reads while the PR does not move cost
// one metadata request instead of a paginated file listing. The returned
// diff is shared with the cache and must not be mutated.
func (c *Client) GetPullRequestDiff(ctx context.Context, owner, repo string, number int) (*Diff, error) {
	pr, err := c.GetPullRequest(ctx, owner, repo, number)
	if err != nil {
		return nil, err
	}

	key := diffKey{owner: owner, repo: repo, number: number, headSHA: pr.HeadSHA}
	if diff, ok := c.diffs.get(key); ok {
		return diff, nil
	}

	files, err := c.listPullFiles(ctx, owner, repo, number)
	if err != nil {
		return nil, err
	}

	diff := &Diff{Files: files}
	for _, f := range files {
		diff.TotalAdditions += f.Additions
		diff.TotalDeletions += f.Deletions
	}

	c.diffs.set(key, diff)
	return diff, nil
}

// GetChangedFiles returns the filenames touched by a pull request.
func (c *Client) GetChangedFiles(ctx context.Context, owner, repo string, number int) ([]string, error) {
	diff, err := c.GetPullRequestDiff(ctx, owner, repo, number)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(diff.Files))
	for _, f := range diff.Files {
		names = append(names, f.Filename)
	}
	return names, nil
}

func (c *Client) listPullFiles(ctx context.Context, owner, repo string, number int) ([]DiffFile, error) {
	var files []DiffFile
	for page := 1; ; page++ {
		var batch []struct {
			Filename  string `json:"filename"`
			Status    string `json:"status"`
			Additions int    `json:"additions"`
			Deletions int    `json:"deletions"`
			Patch     string `json:"patch"`
		}
		path := fmt.Sprintf("/repos/%s/%s/pulls/%d/files?per_page=%d&page=%d",
			owner, repo, number, defaultPageSize, page)
		if err := c.doJSON(ctx, http.MethodGet, path, nil, &batch); err != nil {
			return nil, fmt.Errorf("list pull request files %s/%s#%d: %w", owner, repo, number, err)
		}

		for _, f := range batch {
			files = append(files, DiffFile(f))
		}
		if len(batch) < defaultPageSize {
			return files, nil
		}
	}
}

// CompareBranches reports how head relates to base.
func (c *Client) CompareBranches(ctx context.Context, owner, repo, base, head string) (*BranchComparison, error) {
	var resp struct {
		BehindBy int    `json:"behind_by"`
		AheadBy  int    `json:"ahead_by"`
		Status   string `json:"status"`
	}
	path := fmt.Sprintf("/repos/%s/%s/compare/%s...%s", owner, repo, base, head)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("compare %s...%s in %s/%s: %w", base, head, owner, repo, err)
	}

	return &BranchComparison{BehindBy: resp.BehindBy, AheadBy: resp.AheadBy, Status: resp.Status}, nil
}

// UpdateBranch asks the provider to merge the base branch into the PR head.
// A 422 response means the update cannot be done cleanly and surfaces as
// ErrMergeConflict.
func (c *Client) UpdateBranch(ctx context.Context, owner, repo string, number int) error {
	path := fmt.Sprintf("/repos/%s/%s/pulls/%d/update-branch", owner, repo, number)
	err := c.doJSON(ctx, http.MethodPut, path, map[string]any{}, nil)
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnprocessableEntity {
		return fmt.Errorf("update branch %s/%s#%d: %w: %s", owner, repo, number, ErrMergeConflict, apiErr.Message)
	}
	return fmt.Errorf("update branch %s/%s#%d: %w", owner, repo, number, err)
}

// MergePullRequest merges the pull request with the given method
// (merge, squash or rebase) and returns the merge commit sha.
func (c *Client) MergePullRequest(ctx context.Context, owner, repo string, number int, method string) (string, error) {
	var resp struct {
		SHA    string `json:"sha"`
		Merged bool   `json:"merged"`
	}
	path := fmt.Sprintf("/repos/%s/%s/pulls/%d/merge", owner, repo, number)
	body := map[string]string{"merge_method": method}
	if err := c.doJSON(ctx, http.MethodPut, path, body, &resp); err != nil {
		return "", fmt.Errorf("merge %s/%s#%d: %w", owner, repo, number, err)
	}
	if !resp.Merged {
		return "", fmt.Errorf("merge %s/%s#%d: provider reported not merged", owner, repo, number)
	}
	return resp.SHA, nil
}
