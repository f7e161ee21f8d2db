package prompt

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/warden-ci/warden/pkg/models"
	"github.com/warden-ci/warden/pkg/provider"
)

func TestRenderDiff(t *testing.T) {
	t.Run("renders one fenced section per file", func(t *testing.T) {
		diff := &provider.Diff{Files: []provider.DiffFile{
			{Filename: "pkg/a.go", Status: "modified", Additions: 3, Deletions: 1, Patch: "@@ -1 +1,3 @@\n+added"},
			{Filename: "pkg/b.go", Status: "added", Additions: 8, Patch: "@@ -0,0 +1,8 @@\n+package b\n"},
		}}

		out := RenderDiff(diff)
		assert.Contains(t, out, "### pkg/a.go (modified, +3/-1)")
		assert.Contains(t, out, "### pkg/b.go (added, +8/-0)")
		assert.Contains(t, out, "```diff\n@@ -1 +1,3 @@\n+added\n```")
	})

	t.Run("empty diff renders nothing", func(t *testing.T) {
		assert.Empty(t, RenderDiff(nil))
		assert.Empty(t, RenderDiff(&provider.Diff{}))
	})

	t.Run("files without a patch are noted, not fenced", func(t *testing.T) {
		diff := &provider.Diff{Files: []provider.DiffFile{
			{Filename: "assets/logo.png", Status: "modified"},
		}}

		out := RenderDiff(diff)
		assert.Contains(t, out, "(patch unavailable)")
		assert.NotContains(t, out, "```diff")
	})

	t.Run("oversized diffs are truncated with a note", func(t *testing.T) {
		files := make([]provider.DiffFile, 5)
		for i := range files {
			files[i] = provider.DiffFile{
				Filename: fmt.Sprintf("pkg/file-%d.go", i),
				Status:   "modified",
				Patch:    strings.Repeat("x", 30_000),
			}
		}

		out := RenderDiff(&provider.Diff{Files: files})
		assert.Contains(t, out, "diff truncated")
		assert.Contains(t, out, "of 5 files shown")
		assert.NotContains(t, out, "pkg/file-4.go")
	})
}

func TestFormatPullRequestSection(t *testing.T) {
	pr := &provider.PullRequest{
		Title:        "Add retry backoff",
		Author:       "octocat",
		HeadBranch:   "feature/backoff",
		BaseBranch:   "main",
		Additions:    10,
		Deletions:    2,
		ChangedFiles: 1,
	}

	t.Run("includes metadata and description", func(t *testing.T) {
		pr := *pr
		pr.Body = "Retries now back off exponentially."

		out := FormatPullRequestSection(&pr)
		assert.Contains(t, out, "**Title:** Add retry backoff")
		assert.Contains(t, out, "**Author:** octocat")
		assert.Contains(t, out, "**Branch:** feature/backoff into main")
		assert.Contains(t, out, "**Size:** 1 files, +10/-2")
		assert.Contains(t, out, "Retries now back off exponentially.")
	})

	t.Run("missing description is stated", func(t *testing.T) {
		out := FormatPullRequestSection(pr)
		assert.Contains(t, out, "No description provided.")
	})

	t.Run("long descriptions are truncated", func(t *testing.T) {
		pr := *pr
		pr.Body = strings.Repeat("long body ", 1_000)

		out := FormatPullRequestSection(&pr)
		assert.Contains(t, out, "(description truncated)")
		assert.Less(t, len(out), 6_000)
	})
}

func TestFormatAnalysisSection(t *testing.T) {
	t.Run("nil analysis is stated", func(t *testing.T) {
		assert.Contains(t, FormatAnalysisSection(nil), "No analysis is available")
	})

	t.Run("lists risk factors and semantic changes", func(t *testing.T) {
		out := FormatAnalysisSection(&models.Analysis{
			Classification: models.ClassificationFeature,
			Risk:           models.RiskHigh,
			ImpactRadius:   models.ImpactRadius{Direct: 2, Transitive: 7},
			RiskFactors:    []string{"touches auth middleware"},
			SemanticChanges: []models.SemanticChange{
				{Kind: "signature_change", Symbol: "ParseConfig", File: "pkg/config/load.go", Impact: "callers must pass a context"},
			},
		})

		assert.Contains(t, out, "**Classification:** feature")
		assert.Contains(t, out, "**Risk:** high")
		assert.Contains(t, out, "2 direct, 7 transitive")
		assert.Contains(t, out, "- touches auth middleware")
		assert.Contains(t, out, "signature_change ParseConfig (pkg/config/load.go): callers must pass a context")
	})
}

func TestFormatFindingsSection(t *testing.T) {
	t.Run("empty findings are stated", func(t *testing.T) {
		assert.Contains(t, FormatFindingsSection(nil), "No review findings were produced.")
	})

	t.Run("one line per finding", func(t *testing.T) {
		out := FormatFindingsSection([]models.ReviewComment{
			{File: "a.go", Line: 14, Severity: models.SeverityHigh, Category: models.CategoryBug, Message: "busy loop"},
			{File: "b.go", Line: 3, Severity: models.SeverityNitpick, Category: models.CategoryStyle, Message: "doc comment"},
		})

		assert.Contains(t, out, "- a.go:14 [high/bug]: busy loop")
		assert.Contains(t, out, "- b.go:3 [nitpick/style]: doc comment")
	})
}

func TestFormatTestsSection(t *testing.T) {
	t.Run("absent tests are stated", func(t *testing.T) {
		assert.Contains(t, FormatTestsSection(nil), "No tests were generated.")
		assert.Contains(t, FormatTestsSection(&models.GeneratedTests{}), "No tests were generated.")
	})

	t.Run("lists paths without contents", func(t *testing.T) {
		out := FormatTestsSection(&models.GeneratedTests{
			Files:   []models.TestFile{{Path: "a_test.go", Content: "package a"}},
			Summary: "covers the edge cases",
		})

		assert.Contains(t, out, "1 file(s): a_test.go")
		assert.Contains(t, out, "covers the edge cases")
		assert.NotContains(t, out, "package a")
	})
}

func TestFormatDocsSection(t *testing.T) {
	t.Run("absent updates are stated", func(t *testing.T) {
		assert.Contains(t, FormatDocsSection(nil), "No documentation updates were proposed.")
	})

	t.Run("lists files with optional sections", func(t *testing.T) {
		out := FormatDocsSection(&models.DocUpdates{
			Updates: []models.DocUpdate{
				{File: "README.md", Section: "Retries", Content: "..."},
				{File: "docs/ops.md", Content: "..."},
			},
			Summary: "retry docs refreshed",
		})

		assert.Contains(t, out, "- README.md (Retries)")
		assert.Contains(t, out, "- docs/ops.md")
		assert.Contains(t, out, "retry docs refreshed")
	})
}
