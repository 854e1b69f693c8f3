package util

import "errors"

var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrQuestionNotFound = errors.New("question not found")
	ErrRunNotFound      = errors.New("test run not found")
	ErrRunNotRunning    = errors.New("test run is not running")
	ErrRunAlreadyActive = errors.New("test run is already being executed")
	ErrRunNotCompleted  = errors.New("test run has not completed yet")
	ErrInvalidReview    = errors.New("invalid manual review status")
	ErrServiceShutdown  = errors.New("testing service is shutting down")
)
