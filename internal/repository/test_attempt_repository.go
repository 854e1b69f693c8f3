package repository

import (
	"context"

	"exam_review_backend/internal/model"

	"gorm.io/gorm"
)

type TestAttemptRepository struct {
	DB *gorm.DB
}

func NewTestAttemptRepository(db *gorm.DB) *TestAttemptRepository {
	return &TestAttemptRepository{DB: db}
}

func (r *TestAttemptRepository) CountByRun(ctx context.Context, runID string) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.TestAttempt{}).Where("test_run_id = ?", runID).Count(&count).Error
	return count, err
}

func (r *TestAttemptRepository) ListByRun(ctx context.Context, runID string) ([]model.TestAttempt, error) {
	var attempts []model.TestAttempt
	err := r.DB.WithContext(ctx).Where("test_run_id = ?", runID).Order("attempt_number asc").Find(&attempts).Error
	return attempts, err
}

// AttemptStats 续跑时根据已有记录重建计数
type AttemptStats struct {
	Count      int
	Correct    int
	LastNumber int
}

func (r *TestAttemptRepository) StatsByRun(ctx context.Context, runID string) (AttemptStats, error) {
	var row struct {
		Count      int
		Correct    int
		LastNumber int
	}
	err := r.DB.WithContext(ctx).Model(&model.TestAttempt{}).
		Select("COUNT(*) AS count, "+
			"COALESCE(SUM(CASE WHEN is_correct THEN 1 ELSE 0 END), 0) AS correct, "+
			"COALESCE(MAX(attempt_number), 0) AS last_number").
		Where("test_run_id = ?", runID).
		Scan(&row).Error
	return AttemptStats{Count: row.Count, Correct: row.Correct, LastNumber: row.LastNumber}, err
}
