package remediation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warden-ci/warden/pkg/config"
	"github.com/warden-ci/warden/pkg/models"
	"github.com/warden-ci/warden/pkg/provider"
	"github.com/warden-ci/warden/pkg/services"
)

const dbFile = "src/db.ts"

type engineFixture struct {
	workflows *stubWorkflows
	artifacts *stubArtifacts
	repo      *stubRepo
	events    *stubEvents
	engine    *Engine
}

func newEngineFixture(comments []models.ReviewComment, files map[string]string) *engineFixture {
	fix := &engineFixture{
		workflows: &stubWorkflows{workflow: remediationWorkflow()},
		artifacts: &stubArtifacts{comments: comments},
		repo:      &stubRepo{files: files},
		events:    &stubEvents{},
	}
	fix.engine = NewEngine(fix.workflows, fix.artifacts, fix.repo, fix.events, nil)
	return fix
}

func remediationWorkflow() *models.Workflow {
	return &models.Workflow{
		ID:           "wf-1",
		RepositoryID: "acme/api",
		PRNumber:     42,
		Owner:        "acme",
		Repo:         "api",
		HeadSHA:      "abc123",
		HeadBranch:   "feature/login",
		BaseBranch:   "main",
		Status:       models.WorkflowStatusCompleted,
	}
}

// reviewedComments is the three-finding fixture: a confident security fix,
// a breaking rename, and a low-confidence nitpick.
func reviewedComments() []models.ReviewComment {
	sql := commentFixture("c-sql", models.SeverityHigh, models.CategorySecurity, 0.9)
	sql.File = dbFile
	sql.Suggestion = suggestionFixture(
		`const q = "SELECT * FROM users WHERE id = " + id;`,
		`const q = "SELECT * FROM users WHERE id = $1";`,
	)
	rename := commentFixture("c-rename", models.SeverityMedium, models.CategoryMaintainability, 0.9)
	rename.Suggestion = suggestionFixture("function getUser(id) {", "function fetchUser(id) {")
	nit := commentFixture("c-nit", models.SeverityNitpick, models.CategoryStyle, 0.6)
	return []models.ReviewComment{sql, rename, nit}
}

func reviewedFiles() map[string]string {
	return map[string]string{
		dbFile: "import db from \"./pool\";\n" +
			`const q = "SELECT * FROM users WHERE id = " + id;` + "\n" +
			"export default q;\n",
	}
}

func executeConfig() models.RemediationConfig {
	return models.RemediationConfig{
		AutoApplyThreshold: 0.8,
		IncludeSeverities: []models.Severity{
			models.SeverityCritical, models.SeverityHigh, models.SeverityMedium,
		},
		IncludeCategories: []models.Category{
			models.CategorySecurity, models.CategoryBug,
			models.CategoryPerformance, models.CategoryErrorHandling,
		},
		SkipBreakingChanges: true,
		CommitStrategy:      models.CommitStrategySingle,
		TriggerReanalysis:   true,
	}
}

func skippedReasons(result *models.RemediationResult) map[string]string {
	reasons := make(map[string]string, len(result.Skipped))
	for _, skipped := range result.Skipped {
		reasons[skipped.Fix.CommentID] = skipped.Reason
	}
	return reasons
}

func failedErrors(result *models.RemediationResult) map[string]string {
	errs := make(map[string]string, len(result.Failed))
	for _, failed := range result.Failed {
		errs[failed.Fix.CommentID] = failed.Error
	}
	return errs
}

func TestGeneratePlan(t *testing.T) {
	t.Run("derives one security phase from the reviewed findings", func(t *testing.T) {
		fix := newEngineFixture(reviewedComments(), reviewedFiles())

		plan, err := fix.engine.GeneratePlan(context.Background(), "wf-1", executeConfig())
		require.NoError(t, err)

		assert.Equal(t, "wf-1", plan.WorkflowID)
		assert.Equal(t, 1, plan.TotalFixes)
		assert.Equal(t, 1, plan.AutoApplicable)
		require.Len(t, plan.Phases, 1)
		assert.Equal(t, phaseSecurity, plan.Phases[0].Name)
		assert.Equal(t, []string{"c-sql"}, phaseCommentIDs(plan.Phases[0]))
	})

	t.Run("unknown workflow", func(t *testing.T) {
		fix := newEngineFixture(nil, nil)

		_, err := fix.engine.GeneratePlan(context.Background(), "wf-404", executeConfig())

		assert.ErrorIs(t, err, services.ErrNotFound)
	})

	t.Run("comment fetch failure propagates", func(t *testing.T) {
		fix := newEngineFixture(nil, nil)
		fix.artifacts.getErr = errors.New("db down")

		_, err := fix.engine.GeneratePlan(context.Background(), "wf-1", executeConfig())

		assert.ErrorContains(t, err, "db down")
	})

	t.Run("disabled remediation conflicts", func(t *testing.T) {
		fix := newEngineFixture(nil, nil)
		fix.engine = NewEngine(fix.workflows, fix.artifacts, fix.repo, fix.events,
			&config.RemediationSettings{Enabled: false})

		_, err := fix.engine.GeneratePlan(context.Background(), "wf-1", executeConfig())

		assert.ErrorIs(t, err, services.ErrStateConflict)
	})
}

func TestEngineExecute(t *testing.T) {
	t.Run("applies a confident security fix end to end", func(t *testing.T) {
		fix := newEngineFixture(reviewedComments(), reviewedFiles())

		result, err := fix.engine.Execute(context.Background(), "wf-1", executeConfig())
		require.NoError(t, err)

		assert.True(t, result.Success)
		assert.Equal(t, 1, result.PhasesCompleted)
		require.Len(t, result.Applied, 1)
		assert.Equal(t, "c-sql", result.Applied[0].CommentID)
		assert.Empty(t, result.Skipped)
		assert.Empty(t, result.Failed)
		assert.Equal(t, []string{"commit-1"}, result.CommitShas)
		assert.True(t, result.ReanalysisTriggered)

		commits := fix.repo.committed()
		require.Len(t, commits, 1)
		assert.Equal(t, dbFile, commits[0].path)
		assert.Equal(t, "feature/login", commits[0].branch)
		assert.Equal(t, "fix: apply security fixes", commits[0].message)
		assert.Contains(t, fix.repo.fileContent(dbFile), `WHERE id = $1`)
		assert.NotContains(t, fix.repo.fileContent(dbFile), `" + id`)

		assert.Equal(t, models.CommentStatusFixApplied, fix.artifacts.statusOf("c-sql"))
		assert.Equal(t, []string{"wf-1"}, fix.workflows.requeues())
		assert.Equal(t, []string{"started", "phase_completed", "completed"}, fix.events.statuses())
	})

	t.Run("skips a phase that requires human review", func(t *testing.T) {
		style := commentFixture("c-style", models.SeverityNitpick, models.CategoryStyle, 0.95)
		fix := newEngineFixture([]models.ReviewComment{style}, reviewedFiles())
		cfg := models.RemediationConfig{AutoApplyThreshold: 0.8, SkipBreakingChanges: true, TriggerReanalysis: true}

		result, err := fix.engine.Execute(context.Background(), "wf-1", cfg)
		require.NoError(t, err)

		assert.True(t, result.Success)
		assert.Equal(t, 1, result.PhasesCompleted)
		assert.Empty(t, result.Applied)
		assert.Equal(t, map[string]string{"c-style": "phase requires human review"}, skippedReasons(result))
		assert.Empty(t, fix.repo.committed())
		assert.False(t, result.ReanalysisTriggered)
	})

	t.Run("one shaky fix holds back the whole phase", func(t *testing.T) {
		sure := commentFixture("c-sure", models.SeverityHigh, models.CategoryBug, 0.9)
		sure.File = dbFile
		sure.Suggestion = suggestionFixture(`import db from "./pool";`, `import db from "./pool/v2";`)
		shaky := commentFixture("c-shaky", models.SeverityHigh, models.CategoryBug, 0.5)
		shaky.File = dbFile
		fix := newEngineFixture([]models.ReviewComment{sure, shaky}, reviewedFiles())

		result, err := fix.engine.Execute(context.Background(), "wf-1", models.RemediationConfig{AutoApplyThreshold: 0.8})
		require.NoError(t, err)

		assert.Empty(t, result.Applied)
		assert.Equal(t, map[string]string{
			"c-sure":  "phase cannot auto-apply",
			"c-shaky": "confidence 0.50 below threshold 0.80",
		}, skippedReasons(result))
		assert.Empty(t, fix.repo.committed())
	})

	t.Run("fails the fix when the original code is missing", func(t *testing.T) {
		comments := reviewedComments()[:1]
		stale := commentFixture("c-stale", models.SeverityHigh, models.CategorySecurity, 0.9)
		stale.File = dbFile
		stale.Suggestion = suggestionFixture("const legacy = true;", "const legacy = false;")
		comments = append(comments, stale)
		fix := newEngineFixture(comments, reviewedFiles())

		result, err := fix.engine.Execute(context.Background(), "wf-1", executeConfig())
		require.NoError(t, err)

		assert.False(t, result.Success)
		require.Len(t, result.Applied, 1)
		assert.Equal(t, "c-sql", result.Applied[0].CommentID)
		assert.Equal(t, map[string]string{
			"c-stale": "original code not found in src/db.ts",
		}, failedErrors(result))
		assert.Len(t, fix.repo.committed(), 1)
		assert.Equal(t, []string{"started", "phase_completed", "failed"}, fix.events.statuses())
	})

	t.Run("a commit failure aborts the phase but later phases still run", func(t *testing.T) {
		sec := commentFixture("c-sec", models.SeverityHigh, models.CategorySecurity, 0.9)
		sec.File = "src/a.ts"
		sec.Suggestion = suggestionFixture("const a = 1;", "const a = 2;")
		bug := commentFixture("c-bug", models.SeverityHigh, models.CategoryBug, 0.9)
		bug.File = "src/b.ts"
		bug.Suggestion = suggestionFixture("const b = 1;", "const b = 2;")
		fix := newEngineFixture([]models.ReviewComment{sec, bug}, map[string]string{
			"src/a.ts": "const a = 1;\n",
			"src/b.ts": "const b = 1;\n",
		})
		fix.repo.failPaths = map[string]bool{"src/a.ts": true}

		result, err := fix.engine.Execute(context.Background(), "wf-1", models.RemediationConfig{AutoApplyThreshold: 0.8})
		require.NoError(t, err)

		assert.False(t, result.Success)
		assert.Equal(t, 1, result.PhasesCompleted)
		require.Len(t, result.Applied, 1)
		assert.Equal(t, "c-bug", result.Applied[0].CommentID)
		assert.Contains(t, failedErrors(result)["c-sec"], "failed to commit src/a.ts")
		assert.Len(t, result.CommitShas, 1)
	})

	t.Run("a commit failure fails the remaining files of the phase", func(t *testing.T) {
		first := commentFixture("c-first", models.SeverityHigh, models.CategoryBug, 0.95)
		first.File = "src/a.ts"
		first.Suggestion = suggestionFixture("const a = 1;", "const a = 2;")
		second := commentFixture("c-second", models.SeverityHigh, models.CategoryBug, 0.9)
		second.File = "src/b.ts"
		second.Suggestion = suggestionFixture("const b = 1;", "const b = 2;")
		fix := newEngineFixture([]models.ReviewComment{first, second}, map[string]string{
			"src/a.ts": "const a = 1;\n",
			"src/b.ts": "const b = 1;\n",
		})
		fix.repo.failPaths = map[string]bool{"src/a.ts": true}

		result, err := fix.engine.Execute(context.Background(), "wf-1", models.RemediationConfig{AutoApplyThreshold: 0.8})
		require.NoError(t, err)

		assert.Zero(t, result.PhasesCompleted)
		assert.Empty(t, result.Applied)
		assert.Contains(t, failedErrors(result)["c-first"], "failed to commit src/a.ts")
		assert.Equal(t, "phase aborted after commit failure", failedErrors(result)["c-second"])
		assert.Empty(t, fix.repo.committed())
	})

	t.Run("dry run reports without committing", func(t *testing.T) {
		fix := newEngineFixture(reviewedComments(), reviewedFiles())
		cfg := executeConfig()
		cfg.DryRun = true

		result, err := fix.engine.Execute(context.Background(), "wf-1", cfg)
		require.NoError(t, err)

		assert.True(t, result.DryRun)
		assert.True(t, result.Success)
		assert.Equal(t, 1, result.PhasesCompleted)
		require.Len(t, result.Applied, 1)
		assert.Empty(t, result.CommitShas)
		assert.Empty(t, fix.repo.committed())
		assert.Contains(t, fix.repo.fileContent(dbFile), `" + id`)
		assert.Empty(t, fix.artifacts.statusOf("c-sql"))
		assert.False(t, result.ReanalysisTriggered)
		assert.Empty(t, fix.workflows.requeues())
	})

	t.Run("dry run still reports held phases as skipped", func(t *testing.T) {
		style := commentFixture("c-style", models.SeverityNitpick, models.CategoryStyle, 0.95)
		fix := newEngineFixture([]models.ReviewComment{style}, nil)

		result, err := fix.engine.Execute(context.Background(), "wf-1",
			models.RemediationConfig{AutoApplyThreshold: 0.8, DryRun: true})
		require.NoError(t, err)

		assert.Equal(t, map[string]string{"c-style": "phase requires human review"}, skippedReasons(result))
		assert.Equal(t, 1, result.PhasesCompleted)
	})

	t.Run("per-file commits name the file", func(t *testing.T) {
		fix := newEngineFixture(reviewedComments(), reviewedFiles())
		cfg := executeConfig()
		cfg.CommitStrategy = models.CommitStrategyPerFile

		_, err := fix.engine.Execute(context.Background(), "wf-1", cfg)
		require.NoError(t, err)

		commits := fix.repo.committed()
		require.Len(t, commits, 1)
		assert.Equal(t, "fix: security src/db.ts", commits[0].message)
	})

	t.Run("resolves the head branch from the pull request when unset", func(t *testing.T) {
		fix := newEngineFixture(reviewedComments(), reviewedFiles())
		fix.workflows.workflow.HeadBranch = ""
		fix.repo.pull = &provider.PullRequest{Number: 42, State: "open", HeadBranch: "feature/login"}

		_, err := fix.engine.Execute(context.Background(), "wf-1", executeConfig())
		require.NoError(t, err)

		commits := fix.repo.committed()
		require.Len(t, commits, 1)
		assert.Equal(t, "feature/login", commits[0].branch)
	})

	t.Run("head branch lookup failure aborts the run", func(t *testing.T) {
		fix := newEngineFixture(reviewedComments(), reviewedFiles())
		fix.workflows.workflow.HeadBranch = ""
		fix.repo.pullErr = errors.New("forge unavailable")

		_, err := fix.engine.Execute(context.Background(), "wf-1", executeConfig())

		assert.ErrorContains(t, err, "failed to resolve head branch")
	})

	t.Run("requeue failure leaves the reanalysis flag unset", func(t *testing.T) {
		fix := newEngineFixture(reviewedComments(), reviewedFiles())
		fix.workflows.requeueErr = errors.New("queue closed")

		result, err := fix.engine.Execute(context.Background(), "wf-1", executeConfig())
		require.NoError(t, err)

		assert.True(t, result.Success)
		assert.False(t, result.ReanalysisTriggered)
	})

	t.Run("cancelled context skips every phase", func(t *testing.T) {
		fix := newEngineFixture(reviewedComments(), reviewedFiles())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		result, err := fix.engine.Execute(ctx, "wf-1", executeConfig())
		require.NoError(t, err)

		assert.Zero(t, result.PhasesCompleted)
		assert.Empty(t, result.Applied)
		assert.Equal(t, map[string]string{"c-sql": "execution cancelled"}, skippedReasons(result))
		assert.Empty(t, fix.repo.committed())
	})

	t.Run("concurrent runs on one workflow conflict", func(t *testing.T) {
		fix := newEngineFixture(reviewedComments(), reviewedFiles())
		require.True(t, fix.engine.tryBegin("wf-1"))

		_, err := fix.engine.Execute(context.Background(), "wf-1", executeConfig())
		assert.ErrorIs(t, err, services.ErrStateConflict)

		fix.engine.endRun("wf-1")
		_, err = fix.engine.Execute(context.Background(), "wf-1", executeConfig())
		assert.NoError(t, err)
	})

	t.Run("missing workflow", func(t *testing.T) {
		fix := newEngineFixture(nil, nil)

		_, err := fix.engine.Execute(context.Background(), "wf-404", executeConfig())

		assert.ErrorIs(t, err, services.ErrNotFound)
	})

	t.Run("disabled remediation conflicts", func(t *testing.T) {
		fix := newEngineFixture(nil, nil)
		fix.engine = NewEngine(fix.workflows, fix.artifacts, fix.repo, fix.events,
			&config.RemediationSettings{Enabled: false})

		_, err := fix.engine.Execute(context.Background(), "wf-1", executeConfig())

		assert.ErrorIs(t, err, services.ErrStateConflict)
	})
}
