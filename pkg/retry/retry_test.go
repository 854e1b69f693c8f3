package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"exam_review_backend/pkg/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSleep struct {
	waits []time.Duration
}

func (s *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return ctx.Err()
}

type retryAfterErr struct {
	after time.Duration
}

func (e retryAfterErr) Error() string                { return "rate limited" }
func (e retryAfterErr) GetRetryAfter() time.Duration { return e.after }

func newRetrier(t *testing.T, policy retry.Policy) (*retry.Retrier, *recordingSleep) {
	t.Helper()
	rec := &recordingSleep{}
	r, err := retry.New(policy, retry.WithSleep(rec.sleep))
	require.NoError(t, err)
	return r, rec
}

func TestPolicy_Validate(t *testing.T) {
	tests := []struct {
		name    string
		policy  retry.Policy
		wantErr bool
	}{
		{name: "default", policy: retry.DefaultPolicy()},
		{name: "zero attempts", policy: retry.Policy{MaxAttempts: 0, Multiplier: 2}, wantErr: true},
		{name: "max below initial", policy: retry.Policy{MaxAttempts: 3, InitialInterval: 2 * time.Second, MaxInterval: time.Second, Multiplier: 2}, wantErr: true},
		{name: "shrinking multiplier", policy: retry.Policy{MaxAttempts: 3, Multiplier: 0.5}, wantErr: true},
		{name: "no wait", policy: retry.Policy{MaxAttempts: 3, Multiplier: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// TestPolicy_Backoff checks the documented schedule: 2s, doubling, capped at 10s.
func TestPolicy_Backoff(t *testing.T) {
	p := retry.DefaultPolicy()

	assert.Equal(t, time.Duration(0), p.Backoff(0))
	assert.Equal(t, 2*time.Second, p.Backoff(1))
	assert.Equal(t, 4*time.Second, p.Backoff(2))
	assert.Equal(t, 8*time.Second, p.Backoff(3))
	assert.Equal(t, 10*time.Second, p.Backoff(4))
	assert.Equal(t, 10*time.Second, p.Backoff(10))
}

func TestRetrier_SucceedsAfterTransientFailures(t *testing.T) {
	r, rec := newRetrier(t, retry.DefaultPolicy())

	calls := 0
	err := r.Do(context.Background(), "ask", func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection reset")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, rec.waits)
}

func TestRetrier_ExhaustionSurfacesLastError(t *testing.T) {
	r, rec := newRetrier(t, retry.DefaultPolicy())

	lastErr := errors.New("upstream 503")
	calls := 0
	err := r.Do(context.Background(), "ask", func(context.Context) error {
		calls++
		return lastErr
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, retry.ErrExhausted)
	assert.ErrorIs(t, err, lastErr)
	assert.Equal(t, 3, calls, "maximum of three attempts in total")
	assert.Len(t, rec.waits, 2, "no wait after the final attempt")
}

func TestRetrier_PermanentErrorStopsImmediately(t *testing.T) {
	r, rec := newRetrier(t, retry.DefaultPolicy())

	calls := 0
	err := r.Do(context.Background(), "ask", func(context.Context) error {
		calls++
		return retry.Permanent(errors.New("401 unauthorized"))
	})

	require.Error(t, err)
	assert.True(t, retry.IsPermanent(err))
	assert.Equal(t, 1, calls)
	assert.Empty(t, rec.waits)
}

func TestRetrier_RetryAfterIsCappedAtMaxInterval(t *testing.T) {
	r, rec := newRetrier(t, retry.DefaultPolicy())

	calls := 0
	err := r.Do(context.Background(), "judge", func(context.Context) error {
		calls++
		switch calls {
		case 1:
			return retryAfterErr{after: 3 * time.Second}
		case 2:
			return retryAfterErr{after: time.Minute}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []time.Duration{3 * time.Second, 10 * time.Second}, rec.waits)
}

func TestRetrier_CancelledContextStopsRetrying(t *testing.T) {
	r, _ := newRetrier(t, retry.DefaultPolicy())

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := r.Do(ctx, "ask", func(context.Context) error {
		calls++
		cancel()
		return errors.New("timeout")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetrier_ObserverSeesEveryFailure(t *testing.T) {
	var seen []int
	r, err := retry.New(retry.DefaultPolicy(),
		retry.WithSleep(func(context.Context, time.Duration) error { return nil }),
		retry.WithObserver(func(op string, attempt int, err error) {
			assert.Equal(t, "ask", op)
			seen = append(seen, attempt)
		}))
	require.NoError(t, err)

	_ = r.Do(context.Background(), "ask", func(context.Context) error { return errors.New("boom") })
	assert.Equal(t, []int{1, 2, 3}, seen)
}

func TestDoValue(t *testing.T) {
	r, _ := newRetrier(t, retry.DefaultPolicy())

	calls := 0
	got, err := retry.DoValue(context.Background(), r, "ask", func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("malformed response")
		}
		return "42", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "42", got)
}

func TestSleep_HonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := retry.Sleep(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}
