package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"exam_review_backend/internal/config"
	"exam_review_backend/internal/model"
	"exam_review_backend/internal/repository"
	"exam_review_backend/internal/util"
	"exam_review_backend/pkg/logger"
	"exam_review_backend/pkg/monitoring"
	"exam_review_backend/pkg/retry"
	"exam_review_backend/pkg/tracing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	discardTimeout = 30 * time.Second
	archiveTimeout = 30 * time.Second
)

// TestingService 题目测试编排：对同一道题顺序执行 N 次独立作答与判定，汇总为是否合格
type TestingService struct {
	questionRepo *repository.QuestionRepository
	runRepo      *repository.TestRunRepository
	attemptRepo  *repository.TestAttemptRepository

	answerer Answerer
	verifier Verifier
	retrier  *retry.Retrier
	guard    RunGuard
	storage  *StorageService

	settings atomic.Pointer[config.TestingConfig]
	sleep    retry.SleepFunc
	now      func() time.Time

	// 后台 run 绑定服务生命周期，不绑定触发它的请求
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	closed  bool
}

type TestingOption func(*TestingService)

// WithTestingSleep 替换调用间隔的等待实现
func WithTestingSleep(sleep retry.SleepFunc) TestingOption {
	return func(s *TestingService) { s.sleep = sleep }
}

func WithClock(now func() time.Time) TestingOption {
	return func(s *TestingService) { s.now = now }
}

// WithStorage 完成后归档审计记录，未设置时不归档
func WithStorage(storage *StorageService) TestingOption {
	return func(s *TestingService) { s.storage = storage }
}

func NewTestingService(
	questionRepo *repository.QuestionRepository,
	runRepo *repository.TestRunRepository,
	attemptRepo *repository.TestAttemptRepository,
	answerer Answerer,
	verifier Verifier,
	retrier *retry.Retrier,
	guard RunGuard,
	cfg config.TestingConfig,
	opts ...TestingOption,
) *TestingService {
	ctx, cancel := context.WithCancel(context.Background())
	s := &TestingService{
		questionRepo: questionRepo,
		runRepo:      runRepo,
		attemptRepo:  attemptRepo,
		answerer:     answerer,
		verifier:     verifier,
		retrier:      retrier,
		guard:        guard,
		sleep:        retry.Sleep,
		now:          time.Now,
		baseCtx:      ctx,
		cancel:       cancel,
	}
	s.settings.Store(&cfg)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *TestingService) Settings() config.TestingConfig {
	return *s.settings.Load()
}

// UpdateSettings 热更新测试参数，已开始的 run 保持原有的总次数
func (s *TestingService) UpdateSettings(cfg config.TestingConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.settings.Store(&cfg)
	logger.Log.Info("测试参数已更新",
		zap.Int("attempts", cfg.Attempts),
		zap.Float64("threshold", cfg.QualificationThreshold),
		zap.Duration("call_delay", cfg.CallDelay))
	return nil
}

func (s *TestingService) findQuestion(ctx context.Context, questionID uint) (*model.Question, error) {
	q, err := s.questionRepo.FindByID(ctx, questionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrQuestionNotFound
	}
	return q, err
}

func (s *TestingService) findRun(ctx context.Context, runID string) (*model.TestRun, error) {
	run, err := s.runRepo.FindByID(ctx, runID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrRunNotFound
	}
	return run, err
}

// RunTest 同步执行一次完整测试。existingRunID 为空时新建 run，否则从已有记录的下一个序号继续
func (s *TestingService) RunTest(ctx context.Context, questionID uint, existingRunID string) (*model.TestRun, error) {
	settings := s.Settings()

	q, err := s.findQuestion(ctx, questionID)
	if err != nil {
		return nil, err
	}

	var run *model.TestRun
	created := false
	if existingRunID == "" {
		run = model.NewTestRun(q.ID, settings.Attempts)
		if err := s.runRepo.Create(ctx, run); err != nil {
			return nil, fmt.Errorf("create test run: %w", err)
		}
		created = true
		monitoring.RunsTotal.WithLabelValues("started").Inc()
	} else {
		run, err = s.findRun(ctx, existingRunID)
		if err != nil {
			return nil, err
		}
		if run.QuestionID != q.ID {
			return nil, util.ErrRunNotFound
		}
		if !run.IsRunning() {
			return nil, util.ErrRunNotRunning
		}
	}

	ok, err := s.guard.Acquire(ctx, run.ID)
	if err != nil || !ok {
		if created {
			s.discard(run.ID)
		}
		if err != nil {
			return nil, fmt.Errorf("claim test run %s: %w", run.ID, err)
		}
		return nil, util.ErrRunAlreadyActive
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.guard.Release(releaseCtx, run.ID); err != nil {
			logger.Log.Warn("释放测试占用失败", zap.String("run_id", run.ID), zap.Error(err))
		}
	}()

	// 占用前的状态可能已过期，拿到占用后重新确认
	if !created {
		run, err = s.findRun(ctx, existingRunID)
		if err != nil {
			return nil, err
		}
		if !run.IsRunning() {
			return nil, util.ErrRunNotRunning
		}
	}

	return s.execute(ctx, q, run, settings)
}

func (s *TestingService) execute(ctx context.Context, q *model.Question, run *model.TestRun, settings config.TestingConfig) (*model.TestRun, error) {
	ctx, span := tracing.Tracer.Start(ctx, "testing.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("run.id", run.ID),
		attribute.Int("question.id", int(q.ID)),
		attribute.Int("run.total", run.TotalAttempts),
	)

	monitoring.ActiveRuns.Inc()
	defer monitoring.ActiveRuns.Dec()

	stats, err := s.attemptRepo.StatsByRun(ctx, run.ID)
	if err != nil {
		return nil, s.abort(span, run, fmt.Errorf("load attempts: %w", err))
	}
	correct, completed := stats.Correct, stats.Count
	if err := s.runRepo.Touch(ctx, run.ID, s.now()); err != nil {
		return nil, s.abort(span, run, fmt.Errorf("heartbeat: %w", err))
	}

	logger.Log.Info("开始题目测试",
		zap.String("run_id", run.ID),
		zap.Uint("question_id", q.ID),
		zap.Int("total", run.TotalAttempts),
		zap.Int("resume_from", stats.LastNumber+1))

	for n := stats.LastNumber + 1; n <= run.TotalAttempts; n++ {
		if err := ctx.Err(); err != nil {
			return nil, s.abort(span, run, err)
		}

		attempt := s.runAttempt(ctx, q, run.ID, n, settings.CallDelay)
		// 取消导致的失败不记录为尝试结果
		if err := ctx.Err(); err != nil {
			return nil, s.abort(span, run, err)
		}

		if attempt.IsCorrect {
			correct++
		}
		completed++
		if err := s.runRepo.CommitAttempt(ctx, attempt, correct, completed, s.now()); err != nil {
			return nil, s.abort(span, run, fmt.Errorf("commit attempt %d: %w", n, err))
		}
		monitoring.AttemptsTotal.WithLabelValues(attemptResult(attempt)).Inc()

		if err := s.guard.Refresh(ctx, run.ID); err != nil {
			logger.Log.Warn("续期测试占用失败", zap.String("run_id", run.ID), zap.Error(err))
		}

		if n < run.TotalAttempts {
			if err := s.sleep(ctx, settings.CallDelay); err != nil {
				return nil, s.abort(span, run, err)
			}
		}
	}

	run.CorrectCount = correct
	run.CompletedAttempts = completed
	run.Finalize(settings.QualificationThreshold, s.now())
	if err := s.runRepo.Complete(ctx, run); err != nil {
		return nil, s.abort(span, run, fmt.Errorf("complete run: %w", err))
	}

	monitoring.RunsTotal.WithLabelValues("completed").Inc()
	span.SetAttributes(
		attribute.Int("run.correct", run.CorrectCount),
		attribute.Bool("run.qualified", run.Qualified),
	)
	logger.Log.Info("题目测试完成",
		zap.String("run_id", run.ID),
		zap.String("difficulty", run.DifficultyStatus),
		zap.Float64("success_rate", run.SuccessRate),
		zap.Bool("qualified", run.Qualified))

	s.archive(ctx, run)
	return run, nil
}

// runAttempt 执行一次作答与判定。外部调用失败不会中断测试，只记为错误的尝试
func (s *TestingService) runAttempt(ctx context.Context, q *model.Question, runID string, n int, delay time.Duration) *model.TestAttempt {
	ctx, span := tracing.Tracer.Start(ctx, "testing.attempt")
	defer span.End()
	span.SetAttributes(attribute.Int("attempt.number", n))

	attempt := &model.TestAttempt{
		TestRunID:     runID,
		AttemptNumber: n,
		CallTimestamp: s.now(),
	}

	answer, err := retry.DoValue(ctx, s.retrier, "answer", func(ctx context.Context) (string, error) {
		return s.answerer.Ask(ctx, q.QuestionText)
	})
	if err != nil {
		msg := fmt.Sprintf("Error in attempt %d: %v", n, err)
		attempt.ErrorMessage = &msg
		span.RecordError(err)
		span.SetStatus(codes.Error, "answer failed")
		logger.Log.Warn("作答失败", zap.String("run_id", runID), zap.Int("attempt", n), zap.Error(err))
		return attempt
	}
	attempt.AIAnswer = answer

	if err := s.sleep(ctx, delay); err != nil {
		return attempt
	}

	var raw string
	var correct bool
	err = s.retrier.Do(ctx, "verify", func(ctx context.Context) error {
		var err error
		correct, raw, err = s.verifier.Judge(ctx, q.QuestionText, q.StandardAnswer, answer)
		return err
	})
	if err != nil {
		msg := fmt.Sprintf("Verification error: %v", err)
		attempt.VerificationResponse = msg
		attempt.ErrorMessage = &msg
		span.RecordError(err)
		span.SetStatus(codes.Error, "verification failed")
		logger.Log.Warn("判定失败", zap.String("run_id", runID), zap.Int("attempt", n), zap.Error(err))
		return attempt
	}

	attempt.IsCorrect = correct
	attempt.VerificationResponse = raw
	span.SetAttributes(attribute.Bool("attempt.correct", correct))
	return attempt
}

func attemptResult(a *model.TestAttempt) string {
	switch {
	case a.Failed():
		return "error"
	case a.IsCorrect:
		return "correct"
	}
	return "incorrect"
}

// abort 中途失败时丢弃整个 run，原请求的 ctx 可能已取消，使用独立的 ctx 删除
func (s *TestingService) abort(span trace.Span, run *model.TestRun, cause error) error {
	span.RecordError(cause)
	span.SetStatus(codes.Error, "run aborted")
	// 已不是 running 说明 run 归其他执行者所有（或已完成），不能删除
	if errors.Is(cause, util.ErrRunNotRunning) {
		logger.Log.Warn("题目测试中止，run 已不在执行状态", zap.String("run_id", run.ID), zap.Error(cause))
		return fmt.Errorf("test run %s aborted: %w", run.ID, cause)
	}
	s.discard(run.ID)
	logger.Log.Warn("题目测试中止，已丢弃", zap.String("run_id", run.ID), zap.Error(cause))
	return fmt.Errorf("test run %s aborted: %w", run.ID, cause)
}

func (s *TestingService) discard(runID string) {
	ctx, cancel := context.WithTimeout(context.Background(), discardTimeout)
	defer cancel()
	if err := s.runRepo.Delete(ctx, runID); err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		logger.Log.Error("丢弃未完成测试失败", zap.String("run_id", runID), zap.Error(err))
		return
	}
	monitoring.RunsTotal.WithLabelValues("discarded").Inc()
}

func (s *TestingService) archive(ctx context.Context, run *model.TestRun) {
	if s.storage == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
	defer cancel()

	attempts, err := s.attemptRepo.ListByRun(ctx, run.ID)
	if err != nil {
		logger.Log.Warn("读取尝试记录失败，跳过归档", zap.String("run_id", run.ID), zap.Error(err))
		return
	}
	url, err := s.storage.ArchiveRun(ctx, run, attempts)
	if err != nil {
		logger.Log.Warn("测试归档失败", zap.String("run_id", run.ID), zap.Error(err))
		return
	}
	if err := s.runRepo.SetArchiveURL(ctx, run.ID, url); err != nil {
		logger.Log.Warn("保存归档地址失败", zap.String("run_id", run.ID), zap.Error(err))
		return
	}
	run.ArchiveURL = url
}

// StartRun 同步创建 run 记录后在后台执行，调用方可立即拿到 run ID 轮询进度
func (s *TestingService) StartRun(ctx context.Context, questionID uint) (string, error) {
	if s.isClosed() {
		return "", util.ErrServiceShutdown
	}
	q, err := s.findQuestion(ctx, questionID)
	if err != nil {
		return "", err
	}

	run := model.NewTestRun(q.ID, s.Settings().Attempts)
	if err := s.runRepo.Create(ctx, run); err != nil {
		return "", fmt.Errorf("create test run: %w", err)
	}
	monitoring.RunsTotal.WithLabelValues("started").Inc()

	if err := s.launch(q.ID, run.ID); err != nil {
		s.discard(run.ID)
		return "", err
	}
	return run.ID, nil
}

// StartExistingRun 在后台执行（或续跑）一条已存在的 running 记录
func (s *TestingService) StartExistingRun(ctx context.Context, questionID uint, runID string) error {
	if s.isClosed() {
		return util.ErrServiceShutdown
	}
	run, err := s.findRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.QuestionID != questionID {
		return util.ErrRunNotFound
	}
	if !run.IsRunning() {
		return util.ErrRunNotRunning
	}
	active, err := s.guard.Active(ctx, runID)
	if err != nil {
		return err
	}
	if active {
		return util.ErrRunAlreadyActive
	}
	return s.launch(questionID, runID)
}

func (s *TestingService) launch(questionID uint, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return util.ErrServiceShutdown
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				logger.Log.Error("题目测试异常退出", zap.String("run_id", runID), zap.Any("panic", r))
				s.discard(runID)
			}
		}()

		if _, err := s.RunTest(s.baseCtx, questionID, runID); err != nil {
			logger.Log.Error("后台题目测试失败", zap.String("run_id", runID), zap.Error(err))
		}
	}()
	return nil
}

func (s *TestingService) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Shutdown 取消所有后台 run 并等待其清理完成
func (s *TestingService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type AttemptProgress struct {
	Seq           int    `json:"seq"`
	Correct       bool   `json:"correct"`
	AnswerPreview string `json:"answerPreview"`
	Error         string `json:"error,omitempty"`
}

// Progress 进度快照，completed 以尝试记录数为准
type Progress struct {
	RunID      string            `json:"runId"`
	Status     string            `json:"status"`
	Total      int               `json:"total"`
	Completed  int               `json:"completed"`
	Correct    int               `json:"correct"`
	IsComplete bool              `json:"isComplete"`
	Attempts   []AttemptProgress `json:"attempts"`
}

// GetProgress 只读查询，不与执行中的 run 竞争。审核员、管理员和题目作者可查看
func (s *TestingService) GetProgress(ctx context.Context, runID string, actor Actor) (*Progress, error) {
	run, err := s.findRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !actor.Role.CanReview() {
		q, err := s.findQuestion(ctx, run.QuestionID)
		if errors.Is(err, util.ErrQuestionNotFound) {
			return nil, util.ErrPermissionDenied
		}
		if err != nil {
			return nil, err
		}
		if q.AuthorID != actor.UserID {
			return nil, util.ErrPermissionDenied
		}
	}
	attempts, err := s.attemptRepo.ListByRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	preview := s.Settings().AnswerPreview
	p := &Progress{
		RunID:      run.ID,
		Status:     string(run.Status),
		Total:      run.TotalAttempts,
		Completed:  min(len(attempts), run.TotalAttempts),
		Correct:    run.CorrectCount,
		IsComplete: run.Status == model.TestRunCompleted,
		Attempts:   make([]AttemptProgress, 0, len(attempts)),
	}
	for _, a := range attempts {
		ap := AttemptProgress{
			Seq:           a.AttemptNumber,
			Correct:       a.IsCorrect,
			AnswerPreview: util.Truncate(a.AIAnswer, preview),
		}
		if a.ErrorMessage != nil {
			ap.Error = *a.ErrorMessage
		}
		p.Attempts = append(p.Attempts, ap)
	}
	return p, nil
}

// CleanupIncomplete 删除创建时间超过 maxAge 仍未完成的 run，返回删除数量
func (s *TestingService) CleanupIncomplete(ctx context.Context, maxAge time.Duration) (int, error) {
	runs, err := s.runRepo.ListStaleRunning(ctx, s.now().Add(-maxAge))
	if err != nil {
		return 0, err
	}
	return s.reap(ctx, runs, "stale")
}

// SweepExpiredLeases 删除心跳超过 ttl 的 run，执行者仍持有占用的跳过
func (s *TestingService) SweepExpiredLeases(ctx context.Context, ttl time.Duration) (int, error) {
	runs, err := s.runRepo.ListExpiredLeases(ctx, s.now().Add(-ttl))
	if err != nil {
		return 0, err
	}
	return s.reap(ctx, runs, "lease_expired")
}

func (s *TestingService) reap(ctx context.Context, runs []model.TestRun, reason string) (int, error) {
	removed := 0
	for _, run := range runs {
		active, err := s.guard.Active(ctx, run.ID)
		if err != nil {
			return removed, err
		}
		if active {
			continue
		}
		if err := s.runRepo.Delete(ctx, run.ID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return removed, fmt.Errorf("delete run %s: %w", run.ID, err)
		}
		removed++
		monitoring.RunsTotal.WithLabelValues("reaped").Inc()
	}
	if removed > 0 {
		logger.Log.Info("已清理未完成的测试", zap.String("reason", reason), zap.Int("count", removed))
	}
	return removed, nil
}

// Actor 请求发起人
type Actor struct {
	UserID   uint
	Role     model.UserRole
	RealName string
}

// CheckQuestionAccess 题目作者和管理员可以测试、删除该题的记录
func (s *TestingService) CheckQuestionAccess(ctx context.Context, questionID uint, actor Actor) error {
	q, err := s.findQuestion(ctx, questionID)
	if err != nil {
		return err
	}
	if actor.Role.IsAdmin() || q.AuthorID == actor.UserID {
		return nil
	}
	return util.ErrPermissionDenied
}

type RunQuery struct {
	Qualified *bool
	Page      int
	Limit     int
}

// ListCompleted 管理员和审核员查看全部，普通用户只能看到自己题目的测试
func (s *TestingService) ListCompleted(ctx context.Context, actor Actor, q RunQuery) ([]model.TestRun, int64, int, int, error) {
	page, limit := util.NormalizePage(q.Page, q.Limit)
	filter := repository.RunFilter{Qualified: q.Qualified}
	if !actor.Role.CanReview() {
		filter.AuthorID = actor.UserID
	}
	runs, total, err := s.runRepo.ListCompleted(ctx, filter, page, limit)
	return runs, total, page, limit, err
}

func (s *TestingService) GetRun(ctx context.Context, runID string, actor Actor) (*model.TestRun, error) {
	run, err := s.runRepo.FindWithAttempts(ctx, runID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	if !actor.Role.CanReview() && (run.Question == nil || run.Question.AuthorID != actor.UserID) {
		return nil, util.ErrPermissionDenied
	}
	return run, nil
}

func (s *TestingService) DeleteRun(ctx context.Context, runID string, actor Actor) error {
	run, err := s.findRun(ctx, runID)
	if err != nil {
		return err
	}
	if !actor.Role.IsAdmin() {
		if err := s.CheckQuestionAccess(ctx, run.QuestionID, actor); err != nil {
			if errors.Is(err, util.ErrQuestionNotFound) {
				return util.ErrPermissionDenied
			}
			return err
		}
	}
	return s.deleteRun(ctx, run)
}

// DeleteRuns 批量删除，执行中的 run 与不存在的 ID 会被跳过
func (s *TestingService) DeleteRuns(ctx context.Context, runIDs []string) (int, error) {
	deleted := 0
	for _, id := range runIDs {
		run, err := s.findRun(ctx, id)
		if errors.Is(err, util.ErrRunNotFound) {
			continue
		}
		if err != nil {
			return deleted, err
		}
		if err := s.deleteRun(ctx, run); err != nil {
			if errors.Is(err, util.ErrRunAlreadyActive) || errors.Is(err, util.ErrRunNotFound) {
				continue
			}
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

func (s *TestingService) deleteRun(ctx context.Context, run *model.TestRun) error {
	active, err := s.guard.Active(ctx, run.ID)
	if err != nil {
		return err
	}
	if active {
		return util.ErrRunAlreadyActive
	}
	if err := s.runRepo.Delete(ctx, run.ID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return util.ErrRunNotFound
		}
		return err
	}
	if s.storage != nil && run.ArchiveURL != "" {
		if err := s.storage.DeleteArchive(ctx, run.ID); err != nil {
			logger.Log.Warn("删除测试归档失败", zap.String("run_id", run.ID), zap.Error(err))
		}
	}
	return nil
}

// ReviewRun 记录人工审核结论，仅对已完成的 run 有效
func (s *TestingService) ReviewRun(ctx context.Context, runID string, status model.ManualReviewStatus, comment string, actor Actor) (*model.TestRun, error) {
	switch status {
	case model.ReviewApproved, model.ReviewRejected, model.ReviewPending:
	default:
		return nil, util.ErrInvalidReview
	}

	run, err := s.findRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.IsRunning() {
		return nil, util.ErrRunNotCompleted
	}

	reviewer := actor.RealName
	if reviewer == "" {
		reviewer = fmt.Sprintf("user-%d", actor.UserID)
	}
	if err := s.runRepo.UpdateReview(ctx, runID, status, reviewer, comment, s.now()); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrRunNotFound
		}
		return nil, err
	}
	return s.findRun(ctx, runID)
}
