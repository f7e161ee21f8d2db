package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/warden-ci/warden/pkg/agent/prompt"
	"github.com/warden-ci/warden/pkg/llm"
	"github.com/warden-ci/warden/pkg/models"
)

// Synthesizer combines the earlier stage artifacts into the verdict that
// gets published back to the pull request.
type Synthesizer struct {
	deps Deps
}

// NewSynthesizer constructs the synthesizer agent.
func NewSynthesizer(deps Deps) Agent {
	return &Synthesizer{deps: deps}
}

func (s *Synthesizer) Name() string { return NameSynthesizer }

// Execute produces a *models.Synthesis. Absent parallel-stage artifacts are
// tolerated — the prompt states what each missing stage means — so a run
// where every optional agent failed still synthesizes.
func (s *Synthesizer) Execute(ctx context.Context, in *Input) *Result {
	return run(s.deps.logger(), s.Name(), func() (any, error) {
		if in == nil || in.PR == nil || in.Analysis == nil {
			return nil, errors.New("synthesizer requires a pull request and analysis")
		}

		messages := prompt.ForSynthesizer(in.PR, in.Analysis, in.Review, in.Tests, in.Docs)
		reply, err := s.deps.LLM.Call(ctx, messages, llm.CallOptions{})
		if err != nil {
			return nil, fmt.Errorf("synthesizer model call: %w", err)
		}

		var out synthesizerOutput
		if err := decodeReply(reply.Content, &out); err != nil {
			return nil, err
		}
		if out.Summary == "" {
			return nil, errors.New("synthesizer reply has no summary")
		}

		recommendation := models.Recommendation(normalizeEnum(out.Recommendation))
		switch recommendation {
		case models.RecommendationApprove, models.RecommendationRequestChanges, models.RecommendationComment:
		default:
			s.deps.logger().Warn("Unknown recommendation, defaulting to comment",
				"recommendation", out.Recommendation)
			recommendation = models.RecommendationComment
		}

		return &models.Synthesis{
			Summary:        out.Summary,
			Recommendation: recommendation,
			Highlights:     out.Highlights,
		}, nil
	})
}

// synthesizerOutput mirrors the synthesizer's reply schema.
type synthesizerOutput struct {
	Summary        string   `json:"summary"`
	Recommendation string   `json:"recommendation"`
	Highlights     []string `json:"highlights"`
}
