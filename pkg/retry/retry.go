package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"exam_review_backend/pkg/logger"

	"go.uber.org/zap"
)

var (
	errMaxAttemptsInvalid     = errors.New("maxAttempts must be greater than 0")
	errInitialIntervalInvalid = errors.New("initialInterval must not be negative")
	errMaxIntervalInvalid     = errors.New("maxInterval must be >= initialInterval")
	errMultiplierInvalid      = errors.New("multiplier must be >= 1.0")

	// ErrExhausted 所有重试均失败，包装最后一次错误
	ErrExhausted = errors.New("all retries exhausted")
)

const (
	DefaultMaxAttempts     = 3
	DefaultInitialInterval = 2 * time.Second
	DefaultMaxInterval     = 10 * time.Second
	DefaultMultiplier      = 2.0
)

// Policy 指数退避策略：第 n 次失败后等待 InitialInterval*Multiplier^(n-1)，不超过 MaxInterval
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     DefaultMaxAttempts,
		InitialInterval: DefaultInitialInterval,
		MaxInterval:     DefaultMaxInterval,
		Multiplier:      DefaultMultiplier,
	}
}

func (p Policy) Validate() error {
	if p.MaxAttempts <= 0 {
		return fmt.Errorf("%w, got %d", errMaxAttemptsInvalid, p.MaxAttempts)
	}
	if p.InitialInterval < 0 {
		return fmt.Errorf("%w, got %v", errInitialIntervalInvalid, p.InitialInterval)
	}
	if p.MaxInterval < p.InitialInterval {
		return fmt.Errorf("%w, MaxInterval: %v, InitialInterval: %v", errMaxIntervalInvalid, p.MaxInterval, p.InitialInterval)
	}
	if p.Multiplier < 1.0 {
		return fmt.Errorf("%w, got %f", errMultiplierInvalid, p.Multiplier)
	}
	return nil
}

// Backoff 返回第 attempt 次失败后的等待时间（attempt 从 1 开始）
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	backoff := p.InitialInterval
	for i := 1; i < attempt; i++ {
		backoff = time.Duration(float64(backoff) * p.Multiplier)
		if backoff >= p.MaxInterval {
			return p.MaxInterval
		}
	}
	if backoff > p.MaxInterval {
		return p.MaxInterval
	}
	return backoff
}

// AfterProvider 由携带服务端退避建议（如 429 Retry-After）的错误实现
type AfterProvider interface {
	GetRetryAfter() time.Duration
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent 标记不应重试的错误
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// SleepFunc 可被取消的等待
type SleepFunc func(ctx context.Context, d time.Duration) error

func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Observer 在每次失败后回调，用于指标统计
type Observer func(op string, attempt int, err error)

type Option func(*Retrier)

func WithSleep(sleep SleepFunc) Option {
	return func(r *Retrier) { r.sleep = sleep }
}

func WithObserver(obs Observer) Option {
	return func(r *Retrier) { r.observer = obs }
}

type Retrier struct {
	policy   Policy
	sleep    SleepFunc
	observer Observer
}

func New(policy Policy, opts ...Option) (*Retrier, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	r := &Retrier{policy: policy, sleep: Sleep}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *Retrier) Policy() Policy {
	return r.policy
}

// Do 执行 fn，失败时按策略重试。永久错误和 ctx 取消立即返回
func (r *Retrier) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return fmt.Errorf("%s: %w (last error: %v)", op, err, lastErr)
			}
			return fmt.Errorf("%s: %w", op, err)
		}

		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Log.Info("call succeeded after retry", zap.String("op", op), zap.Int("attempt", attempt))
			}
			return nil
		}
		lastErr = err

		if r.observer != nil {
			r.observer(op, attempt, err)
		}

		if IsPermanent(err) || ctx.Err() != nil {
			return err
		}
		if attempt == r.policy.MaxAttempts {
			break
		}

		backoff := r.backoff(attempt, err)
		logger.Log.Warn("call failed, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		if err := r.sleep(ctx, backoff); err != nil {
			return fmt.Errorf("%s: %w (last error: %v)", op, err, lastErr)
		}
	}

	return fmt.Errorf("%s: %w after %d attempts: %w", op, ErrExhausted, r.policy.MaxAttempts, lastErr)
}

func (r *Retrier) backoff(attempt int, err error) time.Duration {
	var provider AfterProvider
	if errors.As(err, &provider) {
		if after := provider.GetRetryAfter(); after > 0 {
			if after > r.policy.MaxInterval {
				return r.policy.MaxInterval
			}
			return after
		}
	}
	return r.policy.Backoff(attempt)
}

// DoValue 是 Do 的带返回值版本
func DoValue[T any](ctx context.Context, r *Retrier, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := r.Do(ctx, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}
