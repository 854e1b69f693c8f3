package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"exam_review_backend/internal/config"
	"exam_review_backend/internal/util"
	"exam_review_backend/pkg/logger"
	"exam_review_backend/pkg/retry"

	"go.uber.org/zap"
)

// 日志中记录的响应体最大长度
const logBodyLimit = 300

// AIService 调用 OpenAI 兼容的 chat/completions 接口。每次调用只发送一条 user 消息，不携带历史
type AIService struct {
	config config.AIConfig
	client *http.Client
}

func NewAIService(cfg config.AIConfig) *AIService {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &AIService{
		config: cfg,
		client: &http.Client{Timeout: timeout},
	}
}

type AIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatCompletionRequest struct {
	Model       string          `json:"model"`
	Messages    []AIChatMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
}

type ChatCompletionResponse struct {
	Choices []struct {
		Message AIChatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// AIError 接口返回非 200 状态码
type AIError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *AIError) Error() string {
	return fmt.Sprintf("AI API error (status %d): %s", e.StatusCode, e.Body)
}

func (e *AIError) GetRetryAfter() time.Duration {
	return e.RetryAfter
}

var errEmptyChoices = errors.New("AI returned no choices")

// 请求本身有问题，重试没有意义
var permanentStatus = map[int]bool{
	http.StatusBadRequest:          true,
	http.StatusUnauthorized:        true,
	http.StatusForbidden:           true,
	http.StatusNotFound:            true,
	http.StatusUnprocessableEntity: true,
}

// Complete 发送单轮对话并返回模型回复（已去除首尾空白）
func (s *AIService) Complete(ctx context.Context, prompt string) (string, error) {
	reqBody := ChatCompletionRequest{
		Model:       s.config.Model,
		Messages:    []AIChatMessage{{Role: "user", Content: prompt}},
		Temperature: s.config.Temperature,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", retry.Permanent(err)
	}

	endpoint := strings.TrimRight(s.config.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", retry.Permanent(err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.config.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read AI response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &AIError{
			StatusCode: resp.StatusCode,
			Body:       string(body),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
		logger.Log.Warn("AI API returned error status",
			zap.Int("status", resp.StatusCode),
			zap.String("body", util.Truncate(string(body), logBodyLimit)))
		if permanentStatus[resp.StatusCode] {
			return "", retry.Permanent(apiErr)
		}
		return "", apiErr
	}

	var result ChatCompletionResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("decode AI response: %w", err)
	}
	if result.Error != nil && result.Error.Message != "" {
		return "", fmt.Errorf("AI API error: %s", result.Error.Message)
	}
	if len(result.Choices) == 0 {
		return "", errEmptyChoices
	}

	reply := strings.TrimSpace(result.Choices[0].Message.Content)
	logger.Log.Debug("AI reply received",
		zap.String("model", s.config.Model),
		zap.String("reply", util.Truncate(reply, logBodyLimit)))
	return reply, nil
}

// parseRetryAfter 支持秒数与 HTTP 日期两种格式
func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
