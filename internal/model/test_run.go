package model

import (
	"fmt"
	"time"
)

type TestRunStatus string

const (
	TestRunRunning   TestRunStatus = "running"
	TestRunCompleted TestRunStatus = "completed"
)

type ManualReviewStatus string

const (
	ReviewPending  ManualReviewStatus = "pending"
	ReviewApproved ManualReviewStatus = "approved"
	ReviewRejected ManualReviewStatus = "rejected"
)

// TestRun 一次题目测试（N 次独立作答），running 状态下的统计字段只反映已记录的尝试
// swagger:model TestRun
type TestRun struct {
	UUIDBase
	QuestionID        uint          `gorm:"index;not null" json:"questionId"`
	TotalAttempts     int           `gorm:"not null" json:"totalAttempts"`
	CompletedAttempts int           `gorm:"not null;default:0" json:"completedAttempts"`
	CorrectCount      int           `gorm:"not null;default:0" json:"correctCount"`
	SuccessRate       float64       `gorm:"not null;default:0" json:"successRate"`
	Qualified         bool          `gorm:"not null;default:false;index" json:"qualified"`
	DifficultyStatus  string        `gorm:"size:20;not null" json:"difficultyStatus"`
	Status            TestRunStatus `gorm:"size:20;not null;default:'running';index" json:"status"`
	HeartbeatAt       *time.Time    `gorm:"index" json:"heartbeatAt,omitempty"`
	CompletedAt       *time.Time    `json:"completedAt,omitempty"`
	ArchiveURL        string        `gorm:"size:255" json:"archiveUrl,omitempty"`

	ManualReviewStatus  ManualReviewStatus `gorm:"size:20;not null;default:'pending'" json:"manualReviewStatus"`
	ManualReviewedBy    string             `gorm:"size:100" json:"manualReviewedBy,omitempty"`
	ManualReviewTime    *time.Time         `json:"manualReviewTime,omitempty"`
	ManualReviewComment string             `gorm:"type:text" json:"manualReviewComment,omitempty"`

	Question *Question     `gorm:"foreignKey:QuestionID" json:"question,omitempty"`
	Attempts []TestAttempt `gorm:"foreignKey:TestRunID;constraint:OnDelete:CASCADE" json:"attempts,omitempty"`
}

func (TestRun) TableName() string {
	return "test_runs"
}

// NewTestRun 创建一条 running 状态的测试记录
func NewTestRun(questionID uint, totalAttempts int) *TestRun {
	return &TestRun{
		UUIDBase:           UUIDBase{ID: NewID()},
		QuestionID:         questionID,
		TotalAttempts:      totalAttempts,
		DifficultyStatus:   FormatDifficulty(0, totalAttempts),
		Status:             TestRunRunning,
		ManualReviewStatus: ReviewPending,
	}
}

func (r *TestRun) IsRunning() bool {
	return r.Status == TestRunRunning
}

// Finalize 计算最终结果。qualified 表示 AI 正确率严格低于阈值，即题目难度足够
func (r *TestRun) Finalize(threshold float64, now time.Time) {
	r.SuccessRate = SuccessRate(r.CorrectCount, r.TotalAttempts)
	r.Qualified = IsQualified(r.SuccessRate, threshold)
	r.DifficultyStatus = FormatDifficulty(r.CorrectCount, r.TotalAttempts)
	r.Status = TestRunCompleted
	r.CompletedAt = &now
}

func SuccessRate(correct, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(correct) / float64(total) * 100
}

func IsQualified(successRate, threshold float64) bool {
	return successRate < threshold
}

func FormatDifficulty(correct, total int) string {
	return fmt.Sprintf("%d/%d", correct, total)
}
