package llm

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimitedProvider 用令牌桶限制对上游 Provider 的请求速率。
// 阻塞等待令牌，context 取消时立即返回。
type RateLimitedProvider struct {
	inner   Provider
	limiter *rate.Limiter
}

// NewRateLimitedProvider wraps a provider with a token-bucket limiter.
// rps <= 0 disables limiting and returns the provider unchanged.
func NewRateLimitedProvider(inner Provider, rps float64, burst int) Provider {
	if rps <= 0 {
		return inner
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitedProvider{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Completion waits for a token, then delegates to the inner provider.
func (p *RateLimitedProvider) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return p.inner.Completion(ctx, req)
}

// Stream waits for a token, then delegates to the inner provider.
func (p *RateLimitedProvider) Stream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return p.inner.Stream(ctx, req)
}

// Name returns the inner provider name.
func (p *RateLimitedProvider) Name() string { return p.inner.Name() }
