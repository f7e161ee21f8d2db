package prompt

import (
	"fmt"
	"strings"

	"github.com/warden-ci/warden/pkg/models"
	"github.com/warden-ci/warden/pkg/provider"
)

// maxDiffChars caps how much rendered diff text a single prompt carries.
// Files past the cap are dropped with an explicit truncation note so the
// model knows it saw a partial change set.
const maxDiffChars = 120_000

// maxBodyChars caps how much pull request description is embedded.
const maxBodyChars = 4_000

// RenderDiff renders a fetched diff into prompt text, one fenced section
// per file. Callers must mask the result before embedding it in a prompt.
func RenderDiff(diff *provider.Diff) string {
	if diff == nil || len(diff.Files) == 0 {
		return ""
	}

	var sb strings.Builder
	for i, f := range diff.Files {
		if sb.Len() > maxDiffChars {
			fmt.Fprintf(&sb, "... diff truncated: %d of %d files shown ...\n", i, len(diff.Files))
			break
		}
		fmt.Fprintf(&sb, "### %s (%s, +%d/-%d)\n", f.Filename, f.Status, f.Additions, f.Deletions)
		if f.Patch == "" {
			sb.WriteString("(patch unavailable)\n\n")
			continue
		}
		sb.WriteString("```diff\n")
		sb.WriteString(f.Patch)
		if !strings.HasSuffix(f.Patch, "\n") {
			sb.WriteString("\n")
		}
		sb.WriteString("```\n\n")
	}
	return sb.String()
}

// FormatPullRequestSection builds the pull request metadata section.
func FormatPullRequestSection(pr *provider.PullRequest) string {
	var sb strings.Builder
	sb.WriteString("## Pull Request\n")
	fmt.Fprintf(&sb, "**Title:** %s\n", pr.Title)
	fmt.Fprintf(&sb, "**Author:** %s\n", pr.Author)
	fmt.Fprintf(&sb, "**Branch:** %s into %s\n", pr.HeadBranch, pr.BaseBranch)
	fmt.Fprintf(&sb, "**Size:** %d files, +%d/-%d\n", pr.ChangedFiles, pr.Additions, pr.Deletions)

	sb.WriteString("\n### Description\n")
	body := strings.TrimSpace(pr.Body)
	if body == "" {
		sb.WriteString("No description provided.\n")
		return sb.String()
	}
	if len(body) > maxBodyChars {
		body = body[:maxBodyChars] + "\n... (description truncated)"
	}
	sb.WriteString(body)
	sb.WriteString("\n")
	return sb.String()
}

// FormatDiffSection wraps already-masked diff text into a delimited section.
func FormatDiffSection(maskedDiff string) string {
	if maskedDiff == "" {
		return "## Diff\nNo diff content is available.\n"
	}

	var sb strings.Builder
	sb.WriteString("## Diff\n")
	sb.WriteString("<!-- DIFF START -->\n")
	sb.WriteString(maskedDiff)
	if !strings.HasSuffix(maskedDiff, "\n") {
		sb.WriteString("\n")
	}
	sb.WriteString("<!-- DIFF END -->\n")
	return sb.String()
}

// FormatAnalysisSection builds the prior-analysis section consumed by the
// agents that run after the analyzer.
func FormatAnalysisSection(analysis *models.Analysis) string {
	if analysis == nil {
		return "## Prior Analysis\nNo analysis is available for this pull request.\n"
	}

	var sb strings.Builder
	sb.WriteString("## Prior Analysis\n")
	fmt.Fprintf(&sb, "**Classification:** %s\n", analysis.Classification)
	fmt.Fprintf(&sb, "**Risk:** %s\n", analysis.Risk)
	fmt.Fprintf(&sb, "**Impact:** %d direct, %d transitive files\n",
		analysis.ImpactRadius.Direct, analysis.ImpactRadius.Transitive)

	if len(analysis.RiskFactors) > 0 {
		sb.WriteString("\n**Risk factors:**\n")
		for _, factor := range analysis.RiskFactors {
			fmt.Fprintf(&sb, "- %s\n", factor)
		}
	}
	if len(analysis.SemanticChanges) > 0 {
		sb.WriteString("\n**Semantic changes:**\n")
		for _, change := range analysis.SemanticChanges {
			fmt.Fprintf(&sb, "- %s %s (%s): %s\n", change.Kind, change.Symbol, change.File, change.Impact)
		}
	}
	return sb.String()
}

// FormatFindingsSection lists review findings for the synthesizer.
func FormatFindingsSection(comments []models.ReviewComment) string {
	if len(comments) == 0 {
		return "## Review Findings\nNo review findings were produced.\n"
	}

	var sb strings.Builder
	sb.WriteString("## Review Findings\n")
	for _, c := range comments {
		fmt.Fprintf(&sb, "- %s:%d [%s/%s]: %s\n", c.File, c.Line, c.Severity, c.Category, c.Message)
	}
	return sb.String()
}

// FormatTestsSection summarizes generated tests for the synthesizer. The
// file contents stay out of the prompt; paths and the generator's own
// summary are enough to synthesize from.
func FormatTestsSection(tests *models.GeneratedTests) string {
	if tests == nil || (len(tests.Files) == 0 && tests.Summary == "") {
		return "## Generated Tests\nNo tests were generated.\n"
	}

	var sb strings.Builder
	sb.WriteString("## Generated Tests\n")
	if len(tests.Files) > 0 {
		paths := make([]string, len(tests.Files))
		for i, f := range tests.Files {
			paths[i] = f.Path
		}
		fmt.Fprintf(&sb, "%d file(s): %s\n", len(paths), strings.Join(paths, ", "))
	}
	if tests.Summary != "" {
		fmt.Fprintf(&sb, "%s\n", tests.Summary)
	}
	return sb.String()
}

// FormatDocsSection summarizes proposed documentation updates for the
// synthesizer.
func FormatDocsSection(docs *models.DocUpdates) string {
	if docs == nil || (len(docs.Updates) == 0 && docs.Summary == "") {
		return "## Documentation Updates\nNo documentation updates were proposed.\n"
	}

	var sb strings.Builder
	sb.WriteString("## Documentation Updates\n")
	for _, u := range docs.Updates {
		if u.Section != "" {
			fmt.Fprintf(&sb, "- %s (%s)\n", u.File, u.Section)
			continue
		}
		fmt.Fprintf(&sb, "- %s\n", u.File)
	}
	if docs.Summary != "" {
		fmt.Fprintf(&sb, "%s\n", docs.Summary)
	}
	return sb.String()
}
