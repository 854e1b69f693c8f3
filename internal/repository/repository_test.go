package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"exam_review_backend/internal/config"
	"exam_review_backend/internal/model"
	"exam_review_backend/internal/util"
	"exam_review_backend/pkg/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.InitDB(&config.DatabaseConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "repo.db"),
	}, "release")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

func seedQuestion(t *testing.T, db *gorm.DB, authorID uint) *model.Question {
	t.Helper()
	q := &model.Question{
		AuthorID:       authorID,
		Title:          "ultimate question",
		QuestionText:   "What is 6 x 7?",
		StandardAnswer: "42",
	}
	require.NoError(t, NewQuestionRepository(db).Create(context.Background(), q))
	return q
}

func attempt(runID string, n int, correct bool) *model.TestAttempt {
	return &model.TestAttempt{
		TestRunID:     runID,
		AttemptNumber: n,
		AIAnswer:      "42",
		IsCorrect:     correct,
		CallTimestamp: time.Now(),
	}
}

func TestQuestionRepository_FindByID(t *testing.T) {
	db := setupDB(t)
	q := seedQuestion(t, db, 1)

	got, err := NewQuestionRepository(db).FindByID(context.Background(), q.ID)
	require.NoError(t, err)
	assert.Equal(t, "42", got.StandardAnswer)

	_, err = NewQuestionRepository(db).FindByID(context.Background(), q.ID+100)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestTestRunRepository_CommitAttemptUpdatesCounters(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)
	q := seedQuestion(t, db, 1)
	runs := NewTestRunRepository(db)
	attempts := NewTestAttemptRepository(db)

	run := model.NewTestRun(q.ID, 3)
	require.NoError(t, runs.Create(ctx, run))
	require.NotEmpty(t, run.ID)

	require.NoError(t, runs.CommitAttempt(ctx, attempt(run.ID, 1, true), 1, 1, time.Now()))
	require.NoError(t, runs.CommitAttempt(ctx, attempt(run.ID, 2, false), 1, 2, time.Now()))

	got, err := runs.FindByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.CorrectCount)
	assert.Equal(t, 2, got.CompletedAttempts)
	assert.NotNil(t, got.HeartbeatAt)

	stats, err := attempts.StatsByRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, AttemptStats{Count: 2, Correct: 1, LastNumber: 2}, stats)

	// 序号重复违反唯一索引，整个事务回滚
	err = runs.CommitAttempt(ctx, attempt(run.ID, 2, true), 2, 3, time.Now())
	assert.Error(t, err)
	got, _ = runs.FindByID(ctx, run.ID)
	assert.Equal(t, 1, got.CorrectCount)
}

func TestTestRunRepository_CompleteOnlyOnce(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)
	q := seedQuestion(t, db, 1)
	runs := NewTestRunRepository(db)

	run := model.NewTestRun(q.ID, 2)
	require.NoError(t, runs.Create(ctx, run))

	run.CorrectCount = 1
	run.CompletedAttempts = 2
	run.Finalize(50, time.Now())
	require.NoError(t, runs.Complete(ctx, run))

	got, err := runs.FindByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TestRunCompleted, got.Status)
	assert.Equal(t, 50.0, got.SuccessRate)
	assert.False(t, got.Qualified)
	assert.Equal(t, "1/2", got.DifficultyStatus)

	assert.ErrorIs(t, runs.Complete(ctx, run), util.ErrRunNotRunning)
	assert.ErrorIs(t, runs.CommitAttempt(ctx, attempt(run.ID, 3, true), 2, 3, time.Now()), util.ErrRunNotRunning)
}

func TestTestRunRepository_DeleteRemovesAttempts(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)
	q := seedQuestion(t, db, 1)
	runs := NewTestRunRepository(db)
	attempts := NewTestAttemptRepository(db)

	run := model.NewTestRun(q.ID, 2)
	require.NoError(t, runs.Create(ctx, run))
	require.NoError(t, runs.CommitAttempt(ctx, attempt(run.ID, 1, true), 1, 1, time.Now()))

	require.NoError(t, runs.Delete(ctx, run.ID))

	count, err := attempts.CountByRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
	_, err = runs.FindByID(ctx, run.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	assert.ErrorIs(t, runs.Delete(ctx, run.ID), gorm.ErrRecordNotFound)
}

func TestTestRunRepository_StaleAndExpiredLeases(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)
	q := seedQuestion(t, db, 1)
	runs := NewTestRunRepository(db)

	now := time.Now()
	old := model.NewTestRun(q.ID, 8)
	young := model.NewTestRun(q.ID, 8)
	oldButBeating := model.NewTestRun(q.ID, 8)
	for _, r := range []*model.TestRun{old, young, oldButBeating} {
		require.NoError(t, runs.Create(ctx, r))
	}
	require.NoError(t, db.Model(&model.TestRun{}).Where("id IN ?", []string{old.ID, oldButBeating.ID}).
		Update("created_at", now.Add(-time.Hour)).Error)
	require.NoError(t, runs.Touch(ctx, oldButBeating.ID, now))

	stale, err := runs.ListStaleRunning(ctx, now.Add(-30*time.Minute))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{old.ID, oldButBeating.ID}, runIDs(stale))

	expired, err := runs.ListExpiredLeases(ctx, now.Add(-10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []string{old.ID}, runIDs(expired))
}

func TestTestRunRepository_ListCompletedFilters(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)
	mine := seedQuestion(t, db, 1)
	theirs := seedQuestion(t, db, 2)
	runs := NewTestRunRepository(db)

	complete := func(qid uint, correct int) *model.TestRun {
		r := model.NewTestRun(qid, 4)
		require.NoError(t, runs.Create(ctx, r))
		r.CorrectCount = correct
		r.CompletedAttempts = 4
		r.Finalize(50, time.Now())
		require.NoError(t, runs.Complete(ctx, r))
		return r
	}
	hard := complete(mine.ID, 1)
	easy := complete(mine.ID, 4)
	other := complete(theirs.ID, 0)
	require.NoError(t, runs.Create(ctx, model.NewTestRun(mine.ID, 4)))

	all, total, err := runs.ListCompleted(ctx, RunFilter{}, 1, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.ElementsMatch(t, []string{hard.ID, easy.ID, other.ID}, runIDs(all))

	qualified := true
	onlyQualified, total, err := runs.ListCompleted(ctx, RunFilter{Qualified: &qualified, AuthorID: mine.AuthorID}, 1, 20)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, []string{hard.ID}, runIDs(onlyQualified))
	require.NotNil(t, onlyQualified[0].Question)
	assert.Equal(t, mine.ID, onlyQualified[0].Question.ID)
}

func TestTestRunRepository_UpdateReview(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)
	q := seedQuestion(t, db, 1)
	runs := NewTestRunRepository(db)

	run := model.NewTestRun(q.ID, 1)
	require.NoError(t, runs.Create(ctx, run))
	require.NoError(t, runs.UpdateReview(ctx, run.ID, model.ReviewApproved, "reviewer", "looks good", time.Now()))

	got, err := runs.FindWithAttempts(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReviewApproved, got.ManualReviewStatus)
	assert.Equal(t, "reviewer", got.ManualReviewedBy)
	assert.NotNil(t, got.ManualReviewTime)

	assert.ErrorIs(t, runs.UpdateReview(ctx, "missing", model.ReviewRejected, "r", "", time.Now()), gorm.ErrRecordNotFound)
}

func runIDs(runs []model.TestRun) []string {
	ids := make([]string, 0, len(runs))
	for _, r := range runs {
		ids = append(ids, r.ID)
	}
	return ids
}
