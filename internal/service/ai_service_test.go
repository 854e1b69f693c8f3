package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"exam_review_backend/internal/config"
	"exam_review_backend/pkg/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAIServer(t *testing.T, handler http.HandlerFunc) *AIService {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewAIService(config.AIConfig{
		BaseURL:     srv.URL + "/v1/",
		APIKey:      "sk-test",
		Model:       "hunyuan-turbos-latest",
		Temperature: 0.7,
		Timeout:     5 * time.Second,
	})
}

func TestAIService_CompleteSendsSingleStatelessMessage(t *testing.T) {
	svc := newAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "hunyuan-turbos-latest", req.Model)
		assert.Equal(t, 0.7, req.Temperature)
		assert.Equal(t, []AIChatMessage{{Role: "user", Content: "What is 6 x 7?"}}, req.Messages)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  42\n"}}]}`))
	})

	got, err := svc.Complete(context.Background(), "What is 6 x 7?")
	require.NoError(t, err)
	assert.Equal(t, "42", got)
}

func TestAIService_ErrorClassification(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		header     map[string]string
		permanent  bool
		retryAfter time.Duration
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"error":"bad key"}`, permanent: true},
		{name: "bad request", status: http.StatusBadRequest, body: `{}`, permanent: true},
		{name: "rate limited", status: http.StatusTooManyRequests, body: `slow down`, header: map[string]string{"Retry-After": "3"}, retryAfter: 3 * time.Second},
		{name: "server error", status: http.StatusBadGateway, body: `oops`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newAIServer(t, func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.header {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := svc.Complete(context.Background(), "q")
			require.Error(t, err)
			assert.Equal(t, tt.permanent, retry.IsPermanent(err))

			var apiErr *AIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.body, apiErr.Body)
			assert.Equal(t, tt.retryAfter, apiErr.GetRetryAfter())
		})
	}
}

func TestAIService_MalformedResponsesAreRetryable(t *testing.T) {
	for name, body := range map[string]string{
		"empty choices": `{"choices":[]}`,
		"not json":      `<html>gateway</html>`,
		"error payload": `{"error":{"message":"model overloaded"}}`,
	} {
		t.Run(name, func(t *testing.T) {
			svc := newAIServer(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			})

			_, err := svc.Complete(context.Background(), "q")
			require.Error(t, err)
			assert.False(t, retry.IsPermanent(err))
		})
	}
}

func TestAIService_HonorsContextCancellation(t *testing.T) {
	svc := newAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := svc.Complete(ctx, "q")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, time.Duration(0), parseRetryAfter(""))
	assert.Equal(t, 5*time.Second, parseRetryAfter("5"))
	assert.Equal(t, time.Duration(0), parseRetryAfter("-1"))
	assert.Equal(t, time.Duration(0), parseRetryAfter("soon"))

	future := time.Now().Add(time.Minute).UTC().Format(http.TimeFormat)
	d := parseRetryAfter(future)
	assert.Greater(t, d, 50*time.Second)
	assert.LessOrEqual(t, d, time.Minute)
}
