package model

import "time"

// TestAttempt 单次作答记录，只追加不修改
// swagger:model TestAttempt
type TestAttempt struct {
	ID                   uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	TestRunID            string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_attempt_run_number" json:"testRunId"`
	AttemptNumber        int       `gorm:"not null;uniqueIndex:idx_attempt_run_number" json:"attemptNumber"`
	AIAnswer             string    `gorm:"type:text;not null" json:"aiAnswer"`
	IsCorrect            bool      `gorm:"not null;default:false" json:"isCorrect"`
	VerificationResponse string    `gorm:"type:text" json:"verificationResponse"`
	CallTimestamp        time.Time `json:"callTimestamp"`
	ErrorMessage         *string   `gorm:"type:text" json:"errorMessage,omitempty"`
}

func (TestAttempt) TableName() string {
	return "test_attempts"
}

func (a *TestAttempt) Failed() bool {
	return a.ErrorMessage != nil && *a.ErrorMessage != ""
}
