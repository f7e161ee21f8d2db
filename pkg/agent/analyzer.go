package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/warden-ci/warden/pkg/agent/prompt"
	"github.com/warden-ci/warden/pkg/llm"
	"github.com/warden-ci/warden/pkg/models"
)

// Analyzer classifies a change set and grades its risk. It runs first and
// its artifact feeds every later stage.
type Analyzer struct {
	deps Deps
}

// NewAnalyzer constructs the analyzer agent.
func NewAnalyzer(deps Deps) Agent {
	return &Analyzer{deps: deps}
}

func (a *Analyzer) Name() string { return NameAnalyzer }

// Execute produces a *models.Analysis. The size counts come from the diff
// itself; the model is only trusted for classification and impact.
func (a *Analyzer) Execute(ctx context.Context, in *Input) *Result {
	return run(a.deps.logger(), a.Name(), func() (any, error) {
		if in == nil || in.PR == nil || in.Diff == nil {
			return nil, errors.New("analyzer requires a pull request and diff")
		}

		messages := prompt.ForAnalyzer(in.PR, a.deps.maskedDiff(in.Diff))
		reply, err := a.deps.LLM.Call(ctx, messages, llm.CallOptions{})
		if err != nil {
			return nil, fmt.Errorf("analyzer model call: %w", err)
		}

		var out analyzerOutput
		if err := decodeReply(reply.Content, &out); err != nil {
			return nil, err
		}

		analysis := &models.Analysis{
			Classification:     models.Classification(normalizeEnum(out.Classification)),
			Risk:               models.Risk(normalizeEnum(out.Risk)),
			SemanticChanges:    out.SemanticChanges,
			ImpactRadius:       out.ImpactRadius,
			RiskFactors:        out.RiskFactors,
			SuggestedReviewers: out.SuggestedReviewers,
			FilesChanged:       len(in.Diff.Files),
			Additions:          in.Diff.TotalAdditions,
			Deletions:          in.Diff.TotalDeletions,
		}
		if analysis.Risk == "" {
			analysis.Risk = models.RiskMedium
		}
		return analysis, nil
	})
}

// analyzerOutput mirrors the analyzer's reply schema.
type analyzerOutput struct {
	Classification     string                  `json:"classification"`
	Risk               string                  `json:"risk"`
	SemanticChanges    []models.SemanticChange `json:"semantic_changes"`
	ImpactRadius       models.ImpactRadius     `json:"impact_radius"`
	RiskFactors        []string                `json:"risk_factors"`
	SuggestedReviewers []string                `json:"suggested_reviewers"`
}

func normalizeEnum(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
