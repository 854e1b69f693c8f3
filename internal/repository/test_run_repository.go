package repository

import (
	"context"
	"time"

	"exam_review_backend/internal/model"
	"exam_review_backend/internal/util"

	"gorm.io/gorm"
)

type TestRunRepository struct {
	DB *gorm.DB
}

func NewTestRunRepository(db *gorm.DB) *TestRunRepository {
	return &TestRunRepository{DB: db}
}

func (r *TestRunRepository) Create(ctx context.Context, run *model.TestRun) error {
	return r.DB.WithContext(ctx).Create(run).Error
}

func (r *TestRunRepository) FindByID(ctx context.Context, id string) (*model.TestRun, error) {
	var run model.TestRun
	if err := r.DB.WithContext(ctx).First(&run, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

// FindWithAttempts 加载题目和按序号排列的全部尝试
func (r *TestRunRepository) FindWithAttempts(ctx context.Context, id string) (*model.TestRun, error) {
	var run model.TestRun
	err := r.DB.WithContext(ctx).
		Preload("Question").
		Preload("Attempts", func(db *gorm.DB) *gorm.DB {
			return db.Order("attempt_number asc")
		}).
		First(&run, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// CommitAttempt 在同一事务中写入尝试记录并更新计数与心跳，run 已不在 running 状态时回滚
func (r *TestRunRepository) CommitAttempt(ctx context.Context, attempt *model.TestAttempt, correctCount, completed int, now time.Time) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(attempt).Error; err != nil {
			return err
		}
		res := tx.Model(&model.TestRun{}).
			Where("id = ? AND status = ?", attempt.TestRunID, model.TestRunRunning).
			Updates(map[string]interface{}{
				"correct_count":      correctCount,
				"completed_attempts": completed,
				"heartbeat_at":       now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return util.ErrRunNotRunning
		}
		return nil
	})
}

func (r *TestRunRepository) Touch(ctx context.Context, id string, now time.Time) error {
	return r.DB.WithContext(ctx).Model(&model.TestRun{}).
		Where("id = ? AND status = ?", id, model.TestRunRunning).
		Update("heartbeat_at", now).Error
}

// Complete 写入最终结果
func (r *TestRunRepository) Complete(ctx context.Context, run *model.TestRun) error {
	res := r.DB.WithContext(ctx).Model(&model.TestRun{}).
		Where("id = ? AND status = ?", run.ID, model.TestRunRunning).
		Updates(map[string]interface{}{
			"correct_count":      run.CorrectCount,
			"completed_attempts": run.CompletedAttempts,
			"success_rate":       run.SuccessRate,
			"qualified":          run.Qualified,
			"difficulty_status":  run.DifficultyStatus,
			"status":             run.Status,
			"completed_at":       run.CompletedAt,
			"heartbeat_at":       run.CompletedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return util.ErrRunNotRunning
	}
	return nil
}

func (r *TestRunRepository) SetArchiveURL(ctx context.Context, id, url string) error {
	return r.DB.WithContext(ctx).Model(&model.TestRun{}).Where("id = ?", id).Update("archive_url", url).Error
}

// Delete 先删尝试再删 run
func (r *TestRunRepository) Delete(ctx context.Context, id string) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("test_run_id = ?", id).Delete(&model.TestAttempt{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&model.TestRun{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// ListStaleRunning 创建时间早于 cutoff 仍处于 running 的记录
func (r *TestRunRepository) ListStaleRunning(ctx context.Context, cutoff time.Time) ([]model.TestRun, error) {
	var runs []model.TestRun
	err := r.DB.WithContext(ctx).
		Where("status = ? AND created_at < ?", model.TestRunRunning, cutoff).
		Find(&runs).Error
	return runs, err
}

// ListExpiredLeases 最近心跳（无心跳时取创建时间）早于 cutoff 的 running 记录
func (r *TestRunRepository) ListExpiredLeases(ctx context.Context, cutoff time.Time) ([]model.TestRun, error) {
	var runs []model.TestRun
	err := r.DB.WithContext(ctx).
		Where("status = ? AND COALESCE(heartbeat_at, created_at) < ?", model.TestRunRunning, cutoff).
		Find(&runs).Error
	return runs, err
}

type RunFilter struct {
	Qualified *bool
	// AuthorID 非 0 时只返回该作者题目的测试
	AuthorID uint
}

func (r *TestRunRepository) ListCompleted(ctx context.Context, filter RunFilter, page, limit int) ([]model.TestRun, int64, error) {
	query := r.DB.WithContext(ctx).Model(&model.TestRun{}).
		Where("test_runs.status = ?", model.TestRunCompleted)

	if filter.Qualified != nil {
		query = query.Where("test_runs.qualified = ?", *filter.Qualified)
	}
	if filter.AuthorID != 0 {
		query = query.Joins("JOIN questions ON questions.id = test_runs.question_id").
			Where("questions.author_id = ? AND questions.deleted_at IS NULL", filter.AuthorID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var runs []model.TestRun
	err := query.Preload("Question").
		Order("test_runs.created_at desc").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&runs).Error
	return runs, total, err
}

func (r *TestRunRepository) UpdateReview(ctx context.Context, id string, status model.ManualReviewStatus, reviewer, comment string, now time.Time) error {
	res := r.DB.WithContext(ctx).Model(&model.TestRun{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"manual_review_status":  status,
			"manual_reviewed_by":    reviewer,
			"manual_review_comment": comment,
			"manual_review_time":    now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
