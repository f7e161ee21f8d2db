package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warden-ci/warden/pkg/config"
)

// newTestClient points a Client at an httptest server.
func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	t.Setenv("WARDEN_TEST_GITHUB_TOKEN", "test-token-123")
	return NewClient(&config.GitHubConfig{
		BaseURL:        server.URL,
		TokenEnv:       "WARDEN_TEST_GITHUB_TOKEN",
		RequestTimeout: 5 * time.Second,
		DiffCacheTTL:   time.Minute,
	})
}

func TestSplitRepository(t *testing.T) {
	t.Run("splits owner and repo", func(t *testing.T) {
		owner, repo, err := SplitRepository("octo/widgets")
		require.NoError(t, err)
		assert.Equal(t, "octo", owner)
		assert.Equal(t, "widgets", repo)
	})

	t.Run("rejects ids without a slash", func(t *testing.T) {
		_, _, err := SplitRepository("octowidgets")
		assert.Error(t, err)
	})

	t.Run("rejects empty parts", func(t *testing.T) {
		_, _, err := SplitRepository("/widgets")
		assert.Error(t, err)
		_, _, err = SplitRepository("octo/")
		assert.Error(t, err)
	})
}

func TestClientHeaders(t *testing.T) {
	t.Run("sends bearer token and accept header", func(t *testing.T) {
		var gotAuth, gotAccept string
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			gotAccept = r.Header.Get("Accept")
			_, _ = w.Write([]byte(`{}`))
		}))

		_, err := client.GetPullRequest(context.Background(), "octo", "repo", 1)
		require.NoError(t, err)
		assert.Equal(t, "Bearer test-token-123", gotAuth)
		assert.Equal(t, "application/vnd.github.v3+json", gotAccept)
	})

	t.Run("no auth header when token empty", func(t *testing.T) {
		var gotAuth string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			_, _ = w.Write([]byte(`{}`))
		}))
		t.Cleanup(server.Close)

		client := NewClient(&config.GitHubConfig{BaseURL: server.URL, TokenEnv: "WARDEN_TEST_UNSET_TOKEN"})
		_, err := client.GetPullRequest(context.Background(), "octo", "repo", 1)
		require.NoError(t, err)
		assert.Empty(t, gotAuth)
	})
}

func TestAPIErrors(t *testing.T) {
	t.Run("surfaces githubs message field", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"message":"API rate limit exceeded"}`))
		}))

		_, err := client.GetPullRequest(context.Background(), "octo", "repo", 1)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "HTTP 403")
		assert.Contains(t, err.Error(), "API rate limit exceeded")
	})

	t.Run("falls back to the raw body", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("upstream exploded"))
		}))

		_, err := client.GetPullRequest(context.Background(), "octo", "repo", 1)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "upstream exploded")
	})
}
