package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/warden-ci/warden/pkg/agent/prompt"
	"github.com/warden-ci/warden/pkg/llm"
	"github.com/warden-ci/warden/pkg/models"
)

// Reviewer inspects the diff for concrete defects and emits review
// comments.
type Reviewer struct {
	deps Deps
}

// NewReviewer constructs the reviewer agent.
func NewReviewer(deps Deps) Agent {
	return &Reviewer{deps: deps}
}

func (r *Reviewer) Name() string { return NameReviewer }

// Execute produces []models.ReviewComment. Every comment gets a fresh ID
// and starts pending; confidence is clamped to [0,1]. Findings with an
// unknown severity or category are kept but downgraded to values the rest
// of the pipeline understands.
func (r *Reviewer) Execute(ctx context.Context, in *Input) *Result {
	return run(r.deps.logger(), r.Name(), func() (any, error) {
		if in == nil || in.PR == nil || in.Diff == nil {
			return nil, errors.New("reviewer requires a pull request and diff")
		}

		messages := prompt.ForReviewer(in.PR, r.deps.maskedDiff(in.Diff), in.Analysis)
		reply, err := r.deps.LLM.Call(ctx, messages, llm.CallOptions{})
		if err != nil {
			return nil, fmt.Errorf("reviewer model call: %w", err)
		}

		var out reviewerOutput
		if err := decodeReply(reply.Content, &out); err != nil {
			return nil, err
		}

		comments := make([]models.ReviewComment, 0, len(out.Comments))
		for _, f := range out.Comments {
			if f.File == "" || f.Message == "" {
				r.deps.logger().Warn("Dropping review finding without file or message")
				continue
			}

			severity := models.Severity(normalizeEnum(f.Severity))
			if !severity.IsValid() {
				r.deps.logger().Warn("Unknown finding severity, defaulting to medium",
					"severity", f.Severity,
					"file", f.File)
				severity = models.SeverityMedium
			}
			category := models.Category(normalizeEnum(f.Category))
			if !category.IsValid() {
				r.deps.logger().Warn("Unknown finding category, defaulting to maintainability",
					"category", f.Category,
					"file", f.File)
				category = models.CategoryMaintainability
			}

			comments = append(comments, models.ReviewComment{
				ID:         uuid.NewString(),
				File:       f.File,
				Line:       f.Line,
				Severity:   severity,
				Category:   category,
				Message:    f.Message,
				Suggestion: f.Suggestion,
				Confidence: clamp01(f.Confidence),
				Status:     models.CommentStatusPending,
			})
		}
		return comments, nil
	})
}

// reviewerOutput mirrors the reviewer's reply schema.
type reviewerOutput struct {
	Comments []reviewerFinding `json:"comments"`
}

type reviewerFinding struct {
	File       string             `json:"file"`
	Line       int                `json:"line"`
	Severity   string             `json:"severity"`
	Category   string             `json:"category"`
	Message    string             `json:"message"`
	Suggestion *models.Suggestion `json:"suggestion"`
	Confidence float64            `json:"confidence"`
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
