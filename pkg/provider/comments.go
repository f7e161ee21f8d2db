package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/warden-ci/warden/pkg/models"
)

// summaryMarker is a hidden HTML comment embedded in the summary comment so
// later runs can find and update it instead of posting a duplicate.
const summaryMarker = "<!-- warden:summary -->"

// PostSummaryComment posts the workflow summary as an issue comment.
// Idempotent: if a previous summary (identified by a hidden marker) exists,
// it is updated in place.
func (c *Client) PostSummaryComment(ctx context.Context, owner, repo string, number int, body string) error {
	full := summaryMarker + "\n" + body

	existingID, err := c.findSummaryComment(ctx, owner, repo, number)
	if err != nil {
		return err
	}

	if existingID != 0 {
		path := fmt.Sprintf("/repos/%s/%s/issues/comments/%d", owner, repo, existingID)
		if err := c.doJSON(ctx, http.MethodPatch, path, map[string]string{"body": full}, nil); err != nil {
			return fmt.Errorf("update summary comment on %s/%s#%d: %w", owner, repo, number, err)
		}
		return nil
	}

	path := fmt.Sprintf("/repos/%s/%s/issues/%d/comments", owner, repo, number)
	if err := c.doJSON(ctx, http.MethodPost, path, map[string]string{"body": full}, nil); err != nil {
		return fmt.Errorf("post summary comment on %s/%s#%d: %w", owner, repo, number, err)
	}
	return nil
}

// findSummaryComment scans issue comments for the hidden marker and returns
// the comment id, or 0 when no summary has been posted yet.
func (c *Client) findSummaryComment(ctx context.Context, owner, repo string, number int) (int64, error) {
	for page := 1; ; page++ {
		var batch []struct {
			ID   int64  `json:"id"`
			Body string `json:"body"`
		}
		path := fmt.Sprintf("/repos/%s/%s/issues/%d/comments?per_page=%d&page=%d",
			owner, repo, number, defaultPageSize, page)
		if err := c.doJSON(ctx, http.MethodGet, path, nil, &batch); err != nil {
			return 0, fmt.Errorf("list comments on %s/%s#%d: %w", owner, repo, number, err)
		}

		for _, comment := range batch {
			if strings.Contains(comment.Body, summaryMarker) {
				return comment.ID, nil
			}
		}
		if len(batch) < defaultPageSize {
			return 0, nil
		}
	}
}

// PostReviewComments posts inline review comments whose severity meets the
// threshold and returns the subset actually posted. Per-comment post
// failures are logged and skipped; only context cancellation aborts the
// whole batch.
func (c *Client) PostReviewComments(ctx context.Context, owner, repo string, number int, sha string,
	comments []models.ReviewComment, threshold models.Severity) ([]models.ReviewComment, error) {

	path := fmt.Sprintf("/repos/%s/%s/pulls/%d/comments", owner, repo, number)

	var posted []models.ReviewComment
	for _, comment := range comments {
		if !comment.Severity.MeetsThreshold(threshold) {
			continue
		}
		if ctx.Err() != nil {
			return posted, ctx.Err()
		}

		body := map[string]any{
			"body":      formatReviewComment(comment),
			"commit_id": sha,
			"path":      comment.File,
			"line":      comment.Line,
			"side":      "RIGHT",
		}
		if err := c.doJSON(ctx, http.MethodPost, path, body, nil); err != nil {
			c.logger.Warn("Failed to post review comment, skipping",
				"repo", owner+"/"+repo, "pr", number,
				"file", comment.File, "line", comment.Line, "error", err)
			continue
		}
		posted = append(posted, comment)
	}

	return posted, nil
}

// formatReviewComment renders a finding as a GitHub comment body, with a
// suggestion block when the reviewer proposed a concrete replacement.
func formatReviewComment(comment models.ReviewComment) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "**[%s] %s**: %s", comment.Severity, comment.Category, comment.Message)

	if comment.Suggestion != nil && comment.Suggestion.SuggestedCode != "" {
		sb.WriteString("\n\n```suggestion\n")
		sb.WriteString(comment.Suggestion.SuggestedCode)
		if !strings.HasSuffix(comment.Suggestion.SuggestedCode, "\n") {
			sb.WriteString("\n")
		}
		sb.WriteString("```")
	}

	return sb.String()
}
