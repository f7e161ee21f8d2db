// Package provider is the GitHub REST facade for everything the pipeline
// needs from the hosting provider: pull request metadata, diffs, checks,
// reviews, comments, branch updates and merges. Consumers declare the narrow
// interface they need; *Client satisfies all of them.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/warden-ci/warden/pkg/config"
)

// ErrMergeConflict is returned when the provider refuses a branch update or
// merge because of a merge conflict.
var ErrMergeConflict = errors.New("merge conflict")

const defaultPageSize = 100

// APIError is a non-2xx response from the GitHub API.
type APIError struct {
	StatusCode int
	Message    string
	Path       string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("github returned HTTP %d for %s", e.StatusCode, e.Path)
	}
	return fmt.Sprintf("github returned HTTP %d for %s: %s", e.StatusCode, e.Path, e.Message)
}

// Client provides HTTP access to the GitHub REST v3 API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	diffs      *diffCache
	logger     *slog.Logger
}

// NewClient creates a GitHub client from config. The token may be empty
// (public repos only, lower rate limits). BaseURL is configurable so tests
// and GitHub Enterprise deployments can point elsewhere.
func NewClient(cfg *config.GitHubConfig) *Client {
	timeout := 30 * time.Second
	baseURL := "https://api.github.com"
	diffTTL := 5 * time.Minute
	token := ""
	if cfg != nil {
		if cfg.RequestTimeout > 0 {
			timeout = cfg.RequestTimeout
		}
		if cfg.BaseURL != "" {
			baseURL = strings.TrimSuffix(cfg.BaseURL, "/")
		}
		if cfg.DiffCacheTTL > 0 {
			diffTTL = cfg.DiffCacheTTL
		}
		token = cfg.Token()
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		token:      token,
		diffs:      newDiffCache(diffTTL),
		logger:     slog.Default(),
	}
}

// SplitRepository splits a "owner/repo" repository id into its parts.
func SplitRepository(repositoryID string) (owner, repo string, err error) {
	owner, repo, ok := strings.Cut(repositoryID, "/")
	if !ok || owner == "" || repo == "" {
		return "", "", fmt.Errorf("repository id %q is not owner/repo", repositoryID)
	}
	return owner, repo, nil
}

// doJSON performs one API request. A nil out discards the response body;
// a nil body sends no payload. Non-2xx responses become *APIError.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.setAuthHeader(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.apiError(path, resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// apiError drains the error body and extracts GitHub's "message" field when
// present so callers see the provider's own explanation.
func (c *Client) apiError(path string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var detail struct {
		Message string `json:"message"`
	}
	message := ""
	if err := json.Unmarshal(raw, &detail); err == nil && detail.Message != "" {
		message = detail.Message
	} else if len(raw) > 0 {
		message = strings.TrimSpace(string(raw))
	}

	return &APIError{StatusCode: resp.StatusCode, Message: message, Path: path}
}

func (c *Client) setAuthHeader(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
