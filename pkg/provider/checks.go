package provider

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// GetCombinedStatus returns the rolled-up commit status for a ref, with
// state normalized to success, failure or pending.
func (c *Client) GetCombinedStatus(ctx context.Context, owner, repo, sha string) (*CombinedStatus, error) {
	var resp struct {
		State      string `json:"state"`
		TotalCount int    `json:"total_count"`
	}
	path := fmt.Sprintf("/repos/%s/%s/commits/%s/status", owner, repo, sha)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("get combined status for %s/%s@%s: %w", owner, repo, sha, err)
	}

	state := resp.State
	if state == "error" {
		state = "failure"
	}
	return &CombinedStatus{State: state, TotalCount: resp.TotalCount}, nil
}

// GetCheckRuns returns the check runs for a ref with conclusions normalized
// to success, failure, pending or neutral. Runs that have not completed
// report pending regardless of their raw conclusion.
func (c *Client) GetCheckRuns(ctx context.Context, owner, repo, sha string) ([]CheckRun, error) {
	var runs []CheckRun
	for page := 1; ; page++ {
		var resp struct {
			TotalCount int `json:"total_count"`
			CheckRuns  []struct {
				ID         int64  `json:"id"`
				Name       string `json:"name"`
				Status     string `json:"status"`
				Conclusion string `json:"conclusion"`
			} `json:"check_runs"`
		}
		path := fmt.Sprintf("/repos/%s/%s/commits/%s/check-runs?per_page=%d&page=%d",
			owner, repo, sha, defaultPageSize, page)
		if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
			return nil, fmt.Errorf("get check runs for %s/%s@%s: %w", owner, repo, sha, err)
		}

		for _, r := range resp.CheckRuns {
			runs = append(runs, CheckRun{
				ID:         r.ID,
				Name:       r.Name,
				Status:     r.Status,
				Conclusion: normalizeConclusion(r.Status, r.Conclusion),
			})
		}
		if len(resp.CheckRuns) < defaultPageSize {
			return runs, nil
		}
	}
}

// normalizeConclusion collapses GitHub's conclusion vocabulary into the four
// values the merge gates understand. Skipped runs count as neutral; every
// other terminal non-success counts as failure.
func normalizeConclusion(status, conclusion string) string {
	if status != "completed" || conclusion == "" {
		return "pending"
	}
	switch conclusion {
	case "success":
		return "success"
	case "neutral", "skipped":
		return "neutral"
	default:
		return "failure"
	}
}

// GetReviews returns the review verdicts on a pull request.
func (c *Client) GetReviews(ctx context.Context, owner, repo string, number int) ([]Review, error) {
	var reviews []Review
	for page := 1; ; page++ {
		var batch []Review
		path := fmt.Sprintf("/repos/%s/%s/pulls/%d/reviews?per_page=%d&page=%d",
			owner, repo, number, defaultPageSize, page)
		if err := c.doJSON(ctx, http.MethodGet, path, nil, &batch); err != nil {
			return nil, fmt.Errorf("get reviews for %s/%s#%d: %w", owner, repo, number, err)
		}

		reviews = append(reviews, batch...)
		if len(batch) < defaultPageSize {
			return reviews, nil
		}
	}
}

// CreateCheckRun opens an in-progress check run on the given sha and
// returns its id.
func (c *Client) CreateCheckRun(ctx context.Context, owner, repo, sha, name string) (int64, error) {
	var resp struct {
		ID int64 `json:"id"`
	}
	path := fmt.Sprintf("/repos/%s/%s/check-runs", owner, repo)
	body := map[string]any{
		"name":       name,
		"head_sha":   sha,
		"status":     "in_progress",
		"started_at": time.Now().UTC().Format(time.RFC3339),
	}
	if err := c.doJSON(ctx, http.MethodPost, path, body, &resp); err != nil {
		return 0, fmt.Errorf("create check run %q on %s/%s@%s: %w", name, owner, repo, sha, err)
	}
	return resp.ID, nil
}

// CompleteCheckRun finalizes a check run with a conclusion and output text.
func (c *Client) CompleteCheckRun(ctx context.Context, owner, repo string, id int64, conclusion, title, summary string) error {
	path := fmt.Sprintf("/repos/%s/%s/check-runs/%d", owner, repo, id)
	body := map[string]any{
		"status":       "completed",
		"conclusion":   conclusion,
		"completed_at": time.Now().UTC().Format(time.RFC3339),
		"output": map[string]string{
			"title":   title,
			"summary": summary,
		},
	}
	if err := c.doJSON(ctx, http.MethodPatch, path, body, nil); err != nil {
		return fmt.Errorf("complete check run %d on %s/%s: %w", id, owner, repo, err)
	}
	return nil
}
