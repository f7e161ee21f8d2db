package prompt

import (
	"strings"

	"github.com/warden-ci/warden/pkg/llm"
	"github.com/warden-ci/warden/pkg/models"
	"github.com/warden-ci/warden/pkg/provider"
)

// ForAnalyzer builds the analyzer conversation.
func ForAnalyzer(pr *provider.PullRequest, maskedDiff string) []llm.Message {
	var sb strings.Builder
	sb.WriteString(FormatPullRequestSection(pr))
	sb.WriteString("\n")
	sb.WriteString(FormatDiffSection(maskedDiff))
	sb.WriteString("\n")
	sb.WriteString(analyzerTask)

	return []llm.Message{
		{Role: llm.RoleSystem, Content: analyzerSystem + "\n\n" + analyzerFormat},
		{Role: llm.RoleUser, Content: sb.String()},
	}
}

// ForReviewer builds the reviewer conversation. The analysis section tells
// the reviewer where the analyzer saw risk.
func ForReviewer(pr *provider.PullRequest, maskedDiff string, analysis *models.Analysis) []llm.Message {
	var sb strings.Builder
	sb.WriteString(FormatPullRequestSection(pr))
	sb.WriteString("\n")
	sb.WriteString(FormatAnalysisSection(analysis))
	sb.WriteString("\n")
	sb.WriteString(FormatDiffSection(maskedDiff))
	sb.WriteString("\n")
	sb.WriteString(reviewerTask)

	return []llm.Message{
		{Role: llm.RoleSystem, Content: reviewerSystem + "\n\n" + reviewerFormat},
		{Role: llm.RoleUser, Content: sb.String()},
	}
}

// ForTestGenerator builds the test generator conversation.
func ForTestGenerator(pr *provider.PullRequest, maskedDiff string, analysis *models.Analysis) []llm.Message {
	var sb strings.Builder
	sb.WriteString(FormatPullRequestSection(pr))
	sb.WriteString("\n")
	sb.WriteString(FormatAnalysisSection(analysis))
	sb.WriteString("\n")
	sb.WriteString(FormatDiffSection(maskedDiff))
	sb.WriteString("\n")
	sb.WriteString(testGeneratorTask)

	return []llm.Message{
		{Role: llm.RoleSystem, Content: testGeneratorSystem + "\n\n" + testGeneratorFormat},
		{Role: llm.RoleUser, Content: sb.String()},
	}
}

// ForDocUpdater builds the doc updater conversation.
func ForDocUpdater(pr *provider.PullRequest, maskedDiff string, analysis *models.Analysis) []llm.Message {
	var sb strings.Builder
	sb.WriteString(FormatPullRequestSection(pr))
	sb.WriteString("\n")
	sb.WriteString(FormatAnalysisSection(analysis))
	sb.WriteString("\n")
	sb.WriteString(FormatDiffSection(maskedDiff))
	sb.WriteString("\n")
	sb.WriteString(docUpdaterTask)

	return []llm.Message{
		{Role: llm.RoleSystem, Content: docUpdaterSystem + "\n\n" + docUpdaterFormat},
		{Role: llm.RoleUser, Content: sb.String()},
	}
}

// ForSynthesizer builds the synthesizer conversation from whatever the
// earlier stages produced. The diff stays out — the synthesizer judges the
// stage outputs, it does not re-review the code.
func ForSynthesizer(
	pr *provider.PullRequest,
	analysis *models.Analysis,
	review []models.ReviewComment,
	tests *models.GeneratedTests,
	docs *models.DocUpdates,
) []llm.Message {
	var sb strings.Builder
	sb.WriteString(FormatPullRequestSection(pr))
	sb.WriteString("\n")
	sb.WriteString(FormatAnalysisSection(analysis))
	sb.WriteString("\n")
	sb.WriteString(FormatFindingsSection(review))
	sb.WriteString("\n")
	sb.WriteString(FormatTestsSection(tests))
	sb.WriteString("\n")
	sb.WriteString(FormatDocsSection(docs))
	sb.WriteString("\n")
	sb.WriteString(synthesizerTask)

	return []llm.Message{
		{Role: llm.RoleSystem, Content: synthesizerSystem + "\n\n" + synthesizerFormat},
		{Role: llm.RoleUser, Content: sb.String()},
	}
}
