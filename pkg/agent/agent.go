// Package agent defines the contract every analysis agent implements and the
// registry the orchestrator uses to construct them by name. Agents wrap a
// single model call: they build a prompt from the pull request and its
// masked diff, parse the model's JSON reply into a typed artifact, and
// report the outcome through a Result envelope. Agents never return a Go
// error and never let a panic escape — failures are carried in the envelope
// so the orchestrator can decide what is fatal.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/warden-ci/warden/pkg/agent/prompt"
	"github.com/warden-ci/warden/pkg/llm"
	"github.com/warden-ci/warden/pkg/masking"
	"github.com/warden-ci/warden/pkg/models"
	"github.com/warden-ci/warden/pkg/provider"
)

// Agent names, as registered in the default registry and referenced by
// workflow stages.
const (
	NameAnalyzer      = "analyzer"
	NameReviewer      = "reviewer"
	NameTestGenerator = "test_generator"
	NameDocUpdater    = "doc_updater"
	NameSynthesizer   = "synthesizer"
)

// Result is the envelope every agent execution returns. Data holds the
// typed artifact on success and is absent on failure. LatencyMs covers the
// whole execution, prompt assembly included, and is stamped only by the
// run wrapper.
type Result struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
}

// Input carries everything an agent may consume. The orchestrator populates
// fields as stages complete: the analyzer sees only the pull request and
// diff, the parallel agents additionally see the analysis, and the
// synthesizer sees whichever parallel artifacts were produced.
type Input struct {
	PR       *provider.PullRequest
	Diff     *provider.Diff
	Analysis *models.Analysis
	Review   []models.ReviewComment
	Tests    *models.GeneratedTests
	Docs     *models.DocUpdates
	Settings models.RepositorySettings
}

// Agent is a single pipeline stage participant.
type Agent interface {
	// Name returns the registry name the agent was registered under.
	Name() string
	// Execute runs the agent against the input. It must honor ctx
	// cancellation and must not panic; outcomes travel in the Result.
	Execute(ctx context.Context, in *Input) *Result
}

// Deps are the external collaborators injected into every agent at
// construction. Agents hold no other state, so a stub Caller is enough to
// unit-test any of them.
type Deps struct {
	LLM    llm.Caller
	Masker *masking.Service
	Logger *slog.Logger
}

func (d Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// maskedDiff renders the diff to prompt text and strips secrets from it.
// Every agent prompt that embeds diff content goes through here.
func (d Deps) maskedDiff(diff *provider.Diff) string {
	return d.Masker.Mask(prompt.RenderDiff(diff))
}

// run executes fn under the agent contract: latency is measured from entry
// to exit, a panic is recovered into a failed Result carrying the panic
// text, and an error return becomes the Result's Error string.
func run(logger *slog.Logger, name string, fn func() (any, error)) (res *Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Agent panicked",
				"agent", name,
				"panic", r)
			res = &Result{
				Error:     fmt.Sprintf("agent %s panicked: %v", name, r),
				LatencyMs: time.Since(start).Milliseconds(),
			}
		}
	}()

	data, err := fn()
	res = &Result{LatencyMs: time.Since(start).Milliseconds()}
	if err != nil {
		logger.Warn("Agent execution failed",
			"agent", name,
			"error", err)
		res.Error = err.Error()
		return res
	}
	res.Success = true
	res.Data = data
	return res
}
