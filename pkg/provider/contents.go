package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// GetFileContent fetches a file at the given ref, decoded, along with the
// blob sha needed to update it.
func (c *Client) GetFileContent(ctx context.Context, owner, repo, path, ref string) (*FileContent, error) {
	var resp struct {
		Content  string `json:"content"`
		Encoding string `json:"encoding"`
		SHA      string `json:"sha"`
	}
	apiPath := fmt.Sprintf("/repos/%s/%s/contents/%s?ref=%s", owner, repo, path, url.QueryEscape(ref))
	if err := c.doJSON(ctx, http.MethodGet, apiPath, nil, &resp); err != nil {
		return nil, fmt.Errorf("get contents of %s at %s in %s/%s: %w", path, ref, owner, repo, err)
	}

	content := resp.Content
	if resp.Encoding == "base64" {
		// GitHub wraps base64 payloads in newlines.
		decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(resp.Content, "\n", ""))
		if err != nil {
			return nil, fmt.Errorf("decode contents of %s: %w", path, err)
		}
		content = string(decoded)
	}

	return &FileContent{Path: path, Content: content, SHA: resp.SHA}, nil
}

// UpdateFile commits new content for a file on a branch and returns the
// commit sha. The blob sha must come from a prior GetFileContent so the
// provider can reject concurrent edits.
func (c *Client) UpdateFile(ctx context.Context, owner, repo, path, branch, message, content, blobSHA string) (string, error) {
	var resp struct {
		Commit struct {
			SHA string `json:"sha"`
		} `json:"commit"`
	}
	apiPath := fmt.Sprintf("/repos/%s/%s/contents/%s", owner, repo, path)
	body := map[string]string{
		"message": message,
		"content": base64.StdEncoding.EncodeToString([]byte(content)),
		"sha":     blobSHA,
		"branch":  branch,
	}
	if err := c.doJSON(ctx, http.MethodPut, apiPath, body, &resp); err != nil {
		return "", fmt.Errorf("update %s on %s in %s/%s: %w", path, branch, owner, repo, err)
	}
	return resp.Commit.SHA, nil
}
