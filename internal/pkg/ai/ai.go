// Package ai 调用多模态大模型对商品做推荐判定。
//
// 商品完整 JSON 与实拍图一起发给模型，模型按任务配置的分析标准
// 返回结构化结论。不同任务可以用不同的 prompt。
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"fleahunter/internal/model"
	"fleahunter/internal/pkg/metrics"
)

// Scorer 对单个商品记录给出推荐结论。
type Scorer interface {
	Score(ctx context.Context, record *model.ProductRecord, imagePaths []string, prompt string) (*model.ScoredResult, error)
}

// Options 模型接入参数。
type Options struct {
	BaseURL    string
	APIKey     string
	ModelName  string
	MaxRetries int
}

// LLMScorer 基于 OpenAI 兼容接口的实现。
type LLMScorer struct {
	llm        *openai.LLM
	modelName  string
	maxRetries int
	logger     *slog.Logger
}

func NewLLMScorer(opts Options, logger *slog.Logger) (*LLMScorer, error) {
	if opts.BaseURL == "" || opts.ModelName == "" {
		return nil, fmt.Errorf("ai scorer requires base url and model name")
	}
	llm, err := openai.New(
		openai.WithBaseURL(opts.BaseURL),
		openai.WithModel(opts.ModelName),
		openai.WithToken(opts.APIKey),
	)
	if err != nil {
		return nil, fmt.Errorf("init llm client: %w", err)
	}
	retries := opts.MaxRetries
	if retries <= 0 {
		retries = 3
	}
	return &LLMScorer{
		llm:        llm,
		modelName:  opts.ModelName,
		maxRetries: retries,
		logger:     logger,
	}, nil
}

// Score 发送商品数据与图片，解析模型返回的 JSON 结论。
// 模型偶尔输出裹在代码块里的 JSON 或夹带说明文字，解析端做容错，
// 仍然失败则降温重试。
func (s *LLMScorer) Score(ctx context.Context, record *model.ProductRecord, imagePaths []string, prompt string) (*model.ScoredResult, error) {
	if prompt == "" {
		return nil, fmt.Errorf("ai analysis prompt is empty")
	}

	productJSON, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal record for analysis: %w", err)
	}

	parts := make([]llms.ContentPart, 0, len(imagePaths)+1)
	for _, path := range imagePaths {
		data, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn("read image for analysis failed",
				slog.String("path", path),
				slog.String("error", err.Error()))
			continue
		}
		parts = append(parts, llms.BinaryPart("image/jpeg", data))
	}
	parts = append(parts, llms.TextPart(fmt.Sprintf(
		"请基于你的专业知识和我的要求，分析以下商品的完整 JSON 数据：\n\n```json\n%s\n```\n\n%s",
		productJSON, prompt)))

	messages := []llms.MessageContent{{
		Role:  schema.ChatMessageTypeHuman,
		Parts: parts,
	}}

	var lastErr error
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		// 重试时进一步降温，减少自由发挥
		temperature := 0.1
		if attempt > 0 {
			temperature = 0.05
		}

		resp, err := s.llm.GenerateContent(ctx, messages,
			llms.WithTemperature(temperature),
			llms.WithMaxTokens(4000),
		)
		if err != nil {
			lastErr = fmt.Errorf("llm call: %w", err)
			s.logger.Warn("ai call failed",
				slog.Int("attempt", attempt+1),
				slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt+1) * 2 * time.Second):
			}
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("llm returned no choices")
			continue
		}

		result, err := parseScoredResult(resp.Choices[0].Content)
		if err != nil {
			lastErr = err
			s.logger.Warn("ai response unparsable",
				slog.Int("attempt", attempt+1),
				slog.String("error", err.Error()))
			continue
		}
		result.Model = s.modelName
		metrics.AIAnalysisTotal.WithLabelValues("ok").Inc()
		return result, nil
	}

	metrics.AIAnalysisTotal.WithLabelValues("failed").Inc()
	return nil, fmt.Errorf("ai analysis failed after %d attempts: %w", s.maxRetries, lastErr)
}

// parseScoredResult 解析模型输出。先整体解析，失败后剥掉 Markdown
// 代码块标记，再截取最外层大括号之间的内容重试。
func parseScoredResult(content string) (*model.ScoredResult, error) {
	var result model.ScoredResult
	if err := json.Unmarshal([]byte(content), &result); err == nil {
		return &result, nil
	}

	cleaned := strings.TrimSpace(content)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	start := strings.IndexByte(cleaned, '{')
	end := strings.LastIndexByte(cleaned, '}')
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no json object in ai response")
	}
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), &result); err != nil {
		return nil, fmt.Errorf("parse ai response: %w", err)
	}
	return &result, nil
}
