package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"exam_review_backend/pkg/monitoring"
)

// Completer 单轮无状态补全，AIService 实现
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Answerer 向外部模型提问，获取候选答案
type Answerer interface {
	Ask(ctx context.Context, questionText string) (string, error)
}

// Verifier 判断候选答案与标准答案是否一致，raw 为模型原始回复
type Verifier interface {
	Judge(ctx context.Context, question, standard, candidate string) (correct bool, raw string, err error)
}

type AIAnswerer struct {
	completer Completer
}

func NewAIAnswerer(c Completer) *AIAnswerer {
	return &AIAnswerer{completer: c}
}

func (a *AIAnswerer) Ask(ctx context.Context, questionText string) (string, error) {
	start := time.Now()
	answer, err := a.completer.Complete(ctx, questionText)
	monitoring.ObserveAICall("answer", start, err)
	return answer, err
}

type AIVerifier struct {
	completer Completer
}

func NewAIVerifier(c Completer) *AIVerifier {
	return &AIVerifier{completer: c}
}

const judgmentTemplate = `请判断以下两个答案是否一致：

问题：%s

标准答案：%s

AI回答：%s

请只回答"一致"或"不一致"。`

func BuildJudgmentPrompt(question, standard, candidate string) string {
	return fmt.Sprintf(judgmentTemplate, question, standard, candidate)
}

func (v *AIVerifier) Judge(ctx context.Context, question, standard, candidate string) (bool, string, error) {
	start := time.Now()
	raw, err := v.completer.Complete(ctx, BuildJudgmentPrompt(question, standard, candidate))
	monitoring.ObserveAICall("verify", start, err)
	if err != nil {
		return false, "", err
	}
	return ParseJudgment(raw), raw, nil
}

// ParseJudgment 解析判定结果。"不一致" 包含 "一致"，必须先判否定；无法识别的回复视为不正确
func ParseJudgment(raw string) bool {
	s := strings.ToLower(strings.TrimSpace(raw))
	if strings.Contains(s, "不一致") {
		return false
	}
	return strings.Contains(s, "一致")
}
