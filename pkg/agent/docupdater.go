package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/warden-ci/warden/pkg/agent/prompt"
	"github.com/warden-ci/warden/pkg/llm"
	"github.com/warden-ci/warden/pkg/models"
)

// DocUpdater proposes the documentation changes a change set warrants.
type DocUpdater struct {
	deps Deps
}

// NewDocUpdater constructs the doc updater agent.
func NewDocUpdater(deps Deps) Agent {
	return &DocUpdater{deps: deps}
}

func (d *DocUpdater) Name() string { return NameDocUpdater }

// Execute produces a *models.DocUpdates. An empty update list is a valid
// outcome; the summary says why.
func (d *DocUpdater) Execute(ctx context.Context, in *Input) *Result {
	return run(d.deps.logger(), d.Name(), func() (any, error) {
		if in == nil || in.PR == nil || in.Diff == nil {
			return nil, errors.New("doc updater requires a pull request and diff")
		}

		messages := prompt.ForDocUpdater(in.PR, d.deps.maskedDiff(in.Diff), in.Analysis)
		reply, err := d.deps.LLM.Call(ctx, messages, llm.CallOptions{})
		if err != nil {
			return nil, fmt.Errorf("doc updater model call: %w", err)
		}

		var out models.DocUpdates
		if err := decodeReply(reply.Content, &out); err != nil {
			return nil, err
		}

		updates := out.Updates[:0]
		for _, u := range out.Updates {
			if u.File == "" || u.Content == "" {
				d.deps.logger().Warn("Dropping documentation update without file or content")
				continue
			}
			updates = append(updates, u)
		}
		out.Updates = updates
		return &out, nil
	})
}
