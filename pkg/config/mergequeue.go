package config

import (
	"time"

	"github.com/warden-ci/warden/pkg/models"
)

// QueuePolicy is the effective merge-queue behavior for one repository
// after defaults and overrides are layered.
type QueuePolicy struct {
	// Enabled gates all queue processing for the repository.
	Enabled bool

	// AutoMergeEnabled allows the processor to actually merge ready items.
	// When false, items park in ready and wait for a human.
	AutoMergeEnabled bool

	// RequireApprovals is the minimum number of distinct approving reviews.
	RequireApprovals int

	// RequireChecks demands a passing combined status and passing check runs.
	RequireChecks bool

	// RequireUpToDate demands the head branch contain the latest base commit.
	RequireUpToDate bool

	// CheckConflicts enables textual overlap detection against queue peers.
	CheckConflicts bool

	// AutoResolveConflicts lets the processor update stale branches itself.
	AutoResolveConflicts bool

	// MergeMethod is how the provider merges the pull request.
	MergeMethod models.MergeMethod

	// BatchSize is the number of front-of-queue items examined per cycle.
	BatchSize int

	// MaxWaitTime bounds how long an item may sit in the queue before it is
	// blocked instead of retried.
	MaxWaitTime time.Duration
}

// DefaultQueuePolicy returns the built-in policy applied when neither the
// defaults section nor a per-repository override sets a field.
func DefaultQueuePolicy() QueuePolicy {
	return QueuePolicy{
		Enabled:              true,
		AutoMergeEnabled:     false,
		RequireApprovals:     1,
		RequireChecks:        true,
		RequireUpToDate:      true,
		CheckConflicts:       true,
		AutoResolveConflicts: false,
		MergeMethod:          models.MergeMethodSquash,
		BatchSize:            1,
		MaxWaitTime:          60 * time.Minute,
	}
}

// QueuePolicyOverride is the YAML-facing sparse form of QueuePolicy.
// Pointer fields distinguish "explicitly false/zero" from "not set".
type QueuePolicyOverride struct {
	Enabled              *bool   `yaml:"enabled,omitempty"`
	AutoMergeEnabled     *bool   `yaml:"auto_merge_enabled,omitempty"`
	RequireApprovals     *int    `yaml:"require_approvals,omitempty"`
	RequireChecks        *bool   `yaml:"require_checks,omitempty"`
	RequireUpToDate      *bool   `yaml:"require_up_to_date,omitempty"`
	CheckConflicts       *bool   `yaml:"check_conflicts,omitempty"`
	AutoResolveConflicts *bool   `yaml:"auto_resolve_conflicts,omitempty"`
	MergeMethod          *string `yaml:"merge_method,omitempty"`
	BatchSize            *int    `yaml:"batch_size,omitempty"`
	MaxWaitTimeMinutes   *int    `yaml:"max_wait_time_minutes,omitempty"`
}

// apply layers the override's set fields onto a base policy.
func (o *QueuePolicyOverride) apply(base QueuePolicy) QueuePolicy {
	if o == nil {
		return base
	}
	if o.Enabled != nil {
		base.Enabled = *o.Enabled
	}
	if o.AutoMergeEnabled != nil {
		base.AutoMergeEnabled = *o.AutoMergeEnabled
	}
	if o.RequireApprovals != nil {
		base.RequireApprovals = *o.RequireApprovals
	}
	if o.RequireChecks != nil {
		base.RequireChecks = *o.RequireChecks
	}
	if o.RequireUpToDate != nil {
		base.RequireUpToDate = *o.RequireUpToDate
	}
	if o.CheckConflicts != nil {
		base.CheckConflicts = *o.CheckConflicts
	}
	if o.AutoResolveConflicts != nil {
		base.AutoResolveConflicts = *o.AutoResolveConflicts
	}
	if o.MergeMethod != nil {
		base.MergeMethod = models.MergeMethod(*o.MergeMethod)
	}
	if o.BatchSize != nil {
		base.BatchSize = *o.BatchSize
	}
	if o.MaxWaitTimeMinutes != nil {
		base.MaxWaitTime = time.Duration(*o.MaxWaitTimeMinutes) * time.Minute
	}
	return base
}

// MergeQueueSettings holds resolved merge-queue configuration.
type MergeQueueSettings struct {
	// PollInterval is how often each repository queue is processed.
	PollInterval time.Duration

	// Defaults is layered onto the built-in policy for every repository.
	Defaults QueuePolicyOverride

	// Repositories maps "owner/repo" to a sparse per-repository override.
	Repositories map[string]QueuePolicyOverride
}

// PolicyFor returns the effective policy for a repository: built-in
// defaults, then the defaults section, then the per-repository override.
func (s *MergeQueueSettings) PolicyFor(repositoryID string) QueuePolicy {
	policy := s.Defaults.apply(DefaultQueuePolicy())
	if override, ok := s.Repositories[repositoryID]; ok {
		policy = override.apply(policy)
	}
	return policy
}

// MergeQueueYAMLConfig is the YAML-facing shape of MergeQueueSettings.
type MergeQueueYAMLConfig struct {
	PollInterval string                         `yaml:"poll_interval,omitempty"`
	Defaults     *QueuePolicyOverride           `yaml:"defaults,omitempty"`
	Repositories map[string]QueuePolicyOverride `yaml:"repositories,omitempty"`
}
