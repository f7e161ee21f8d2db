package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/warden-ci/warden/pkg/agent/prompt"
	"github.com/warden-ci/warden/pkg/llm"
	"github.com/warden-ci/warden/pkg/models"
)

// TestGenerator writes tests for the behavior a change set introduces.
type TestGenerator struct {
	deps Deps
}

// NewTestGenerator constructs the test generator agent.
func NewTestGenerator(deps Deps) Agent {
	return &TestGenerator{deps: deps}
}

func (g *TestGenerator) Name() string { return NameTestGenerator }

// Execute produces a *models.GeneratedTests. An empty file list is a valid
// outcome; the summary says why.
func (g *TestGenerator) Execute(ctx context.Context, in *Input) *Result {
	return run(g.deps.logger(), g.Name(), func() (any, error) {
		if in == nil || in.PR == nil || in.Diff == nil {
			return nil, errors.New("test generator requires a pull request and diff")
		}

		messages := prompt.ForTestGenerator(in.PR, g.deps.maskedDiff(in.Diff), in.Analysis)
		reply, err := g.deps.LLM.Call(ctx, messages, llm.CallOptions{})
		if err != nil {
			return nil, fmt.Errorf("test generator model call: %w", err)
		}

		var out models.GeneratedTests
		if err := decodeReply(reply.Content, &out); err != nil {
			return nil, err
		}

		files := out.Files[:0]
		for _, f := range out.Files {
			if f.Path == "" || f.Content == "" {
				g.deps.logger().Warn("Dropping generated test file without path or content")
				continue
			}
			files = append(files, f)
		}
		out.Files = files
		return &out, nil
	})
}
