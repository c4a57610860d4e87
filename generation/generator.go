package generation

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kbflow/kbflow/config"
	"github.com/kbflow/kbflow/internal/metrics"
	"github.com/kbflow/kbflow/llm"
	"github.com/kbflow/kbflow/llm/retry"
	"github.com/kbflow/kbflow/types"
)

// =============================================================================
// 🧠 回答生成器
// =============================================================================

// 检索为空时的固定回答，不调用 LLM。
const (
	InsufficientInfoAnswer   = "I don't have enough information in the knowledge base to answer this question."
	InsufficientInfoAnswerZH = "知识库中没有足够的信息来回答这个问题。"
)

// Generator 用检索结果生成带引用的回答。
// 按配置顺序在多个提供者之间降级，单个提供者内部做指数退避重试。
type Generator struct {
	cfg       config.GenerationConfig
	llmCfg    config.LLMConfig
	providers []llm.Provider
	retryer   retry.Retryer
	citations *CitationBuilder
	quality   *QualityChecker
	metrics   *metrics.Collector
	logger    *zap.Logger
}

// NewGenerator creates a generator over an ordered provider chain.
// The first provider is primary; the rest are fallbacks.
func NewGenerator(cfg config.GenerationConfig, llmCfg config.LLMConfig, providers []llm.Provider, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "generation"))

	policy := &retry.RetryPolicy{
		MaxRetries:   llmCfg.MaxRetries,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
		RetryIf:      types.IsRetryable,
	}

	return &Generator{
		cfg:       cfg,
		llmCfg:    llmCfg,
		providers: providers,
		retryer:   retry.NewBackoffRetryer(policy, logger),
		citations: &CitationBuilder{},
		quality:   NewQualityChecker(cfg.MinAnswerLength),
		logger:    logger,
	}
}

// SetMetrics 注入指标收集器，未注入时不记录。
func (g *Generator) SetMetrics(c *metrics.Collector) { g.metrics = c }

// Generate 生成一个完整回答。
// 检索结果为空时直接返回固定的"信息不足"回答，不调用任何提供者。
func (g *Generator) Generate(ctx context.Context, query string, chunks []types.ScoredChunk) (*types.QueryResult, error) {
	start := time.Now()

	if len(chunks) == 0 {
		answer := InsufficientInfoAnswer
		if containsCJK(query) {
			answer = InsufficientInfoAnswerZH
		}
		g.logger.Info("检索结果为空，返回固定回答", zap.String("query", query))
		return &types.QueryResult{
			Query:   query,
			Answer:  answer,
			Elapsed: time.Since(start),
		}, nil
	}

	prompt, err := g.buildPrompt(query, chunks)
	if err != nil {
		return nil, err
	}

	answer, providerName, err := g.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}

	// 质量不达标时重新生成一次
	if g.cfg.QualityCheck {
		if a := g.quality.Assess(query, answer); !a.Passed {
			g.logger.Warn("回答质量不达标，重新生成",
				zap.Float64("score", a.Score),
				zap.Strings("reasons", a.Reasons))
			if regenerated, name, rerr := g.complete(ctx, prompt); rerr == nil {
				if g.quality.Assess(query, regenerated).Score > a.Score {
					answer, providerName = regenerated, name
				}
			}
		}
	}

	result := &types.QueryResult{
		Query:    query,
		Answer:   answer,
		Sources:  chunks,
		Provider: providerName,
		Elapsed:  time.Since(start),
	}

	if g.cfg.Citations {
		result.Citations = g.citations.Citations(chunks)
		result.Answer = g.citations.AppendReferences(answer, result.Citations)
	}
	return result, nil
}

// GenerateStream 流式生成回答。检索为空时返回一个只含固定回答的通道。
func (g *Generator) GenerateStream(ctx context.Context, query string, chunks []types.ScoredChunk) (<-chan llm.StreamChunk, error) {
	if len(chunks) == 0 {
		answer := InsufficientInfoAnswer
		if containsCJK(query) {
			answer = InsufficientInfoAnswerZH
		}
		ch := make(chan llm.StreamChunk, 1)
		ch <- llm.StreamChunk{Delta: types.NewAssistantMessage(answer), FinishReason: "stop"}
		close(ch)
		return ch, nil
	}

	prompt, err := g.buildPrompt(query, chunks)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, provider := range g.providers {
		ch, serr := provider.Stream(ctx, g.chatRequest(prompt))
		if serr == nil {
			return ch, nil
		}
		lastErr = serr
		g.logger.Warn("流式生成失败，尝试下一个提供者",
			zap.String("provider", provider.Name()),
			zap.Error(serr))
	}
	if lastErr == nil {
		lastErr = types.NewError(types.ErrProviderNotSet, "no llm providers configured")
	}
	return nil, lastErr
}

// buildPrompt 构造上下文块并渲染模板。
func (g *Generator) buildPrompt(query string, chunks []types.ScoredChunk) (string, error) {
	template := SelectTemplate(g.cfg.PromptLanguage, query)
	return template.Render(map[string]string{
		"context": g.citations.BuildContext(chunks),
		"query":   query,
	})
}

// complete 沿提供者链调用，每个提供者内部带重试。
func (g *Generator) complete(ctx context.Context, prompt string) (answer, providerName string, err error) {
	if len(g.providers) == 0 {
		return "", "", types.NewError(types.ErrProviderNotSet, "no llm providers configured")
	}

	req := g.chatRequest(prompt)
	var lastErr error
	for _, provider := range g.providers {
		attempt := time.Now()
		result, rerr := g.retryer.DoWithResult(ctx, func() (any, error) {
			return provider.Completion(ctx, req)
		})
		if rerr == nil {
			resp := result.(*llm.ChatResponse)
			if g.metrics != nil {
				g.metrics.RecordLLMRequest(provider.Name(), req.Model, "success",
					time.Since(attempt), resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
			}
			return resp.Text(), provider.Name(), nil
		}
		if g.metrics != nil {
			g.metrics.RecordLLMRequest(provider.Name(), req.Model, "error", time.Since(attempt), 0, 0)
		}

		lastErr = rerr
		g.logger.Warn("提供者调用失败，降级到下一个",
			zap.String("provider", provider.Name()),
			zap.Error(rerr))

		if ctx.Err() != nil {
			return "", "", ctx.Err()
		}
	}
	return "", "", types.NewError(types.ErrRecoveryExceeded, "all llm providers failed").WithCause(lastErr)
}

func (g *Generator) chatRequest(prompt string) *llm.ChatRequest {
	return &llm.ChatRequest{
		Model:       g.llmCfg.Model,
		Messages:    []types.Message{types.NewUserMessage(prompt)},
		MaxTokens:   g.llmCfg.MaxTokens,
		Temperature: g.llmCfg.Temperature,
		Timeout:     g.llmCfg.Timeout,
	}
}
