package config

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validConfig builds a fully-defaulted configuration for mutation in tests.
func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := load(context.Background(), t.TempDir())
	require.NoError(t, err)
	return cfg
}

func TestValidateAll(t *testing.T) {
	t.Run("default configuration is valid", func(t *testing.T) {
		require.NoError(t, validate(validConfig(t)))
	})

	t.Run("rejects non-positive worker count", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.Orchestrator.WorkerCount = 0

		err := validate(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "worker_count")
	})

	t.Run("rejects workflow timeout below agent timeout", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.Orchestrator.WorkflowTimeout = cfg.Orchestrator.AgentTimeout / 2

		err := validate(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "workflow_timeout")
	})

	t.Run("rejects invalid merge method override", func(t *testing.T) {
		cfg := validConfig(t)
		method := "cherry-pick"
		cfg.MergeQueue.Repositories["octo/repo"] = QueuePolicyOverride{MergeMethod: &method}

		err := validate(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "merge_method")
		assert.Contains(t, err.Error(), "octo/repo")
	})

	t.Run("rejects negative approval requirement", func(t *testing.T) {
		cfg := validConfig(t)
		approvals := -1
		cfg.MergeQueue.Defaults.RequireApprovals = &approvals

		err := validate(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "require_approvals")
	})

	t.Run("rejects out-of-range auto apply threshold", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.Remediation.AutoApplyThreshold = 1.5

		err := validate(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "auto_apply_threshold")
	})

	t.Run("rejects unknown commit strategy", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.Remediation.CommitStrategy = "per-hunk"

		err := validate(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "commit_strategy")
	})

	t.Run("rejects non-positive session ttl", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.Sessions.TTL = 0

		err := validate(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ttl")
	})

	t.Run("rejects custom masking pattern with bad regex", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.Masking.CustomPatterns = []CustomMaskingPattern{
			{Name: "broken", Pattern: "([unclosed", Replacement: "__MASKED__"},
		}

		err := validate(cfg)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidValue)
		assert.Contains(t, err.Error(), "broken")
	})

	t.Run("rejects duplicate custom masking pattern names", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.Masking.CustomPatterns = []CustomMaskingPattern{
			{Name: "internal_id", Pattern: `ID-\d+`, Replacement: "__MASKED__"},
			{Name: "internal_id", Pattern: `UID-\d+`, Replacement: "__MASKED__"},
		}

		err := validate(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate")
	})

	t.Run("disabled masking skips custom pattern checks", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.Masking.Enabled = false
		cfg.Masking.CustomPatterns = []CustomMaskingPattern{
			{Name: "broken", Pattern: "([unclosed", Replacement: "x"},
		}

		require.NoError(t, validate(cfg))
	})

	t.Run("rejects non-positive event retention", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.Retention.EventRetention = 0

		err := validate(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "event_retention")
	})
}
