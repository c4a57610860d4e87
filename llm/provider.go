// Package llm defines the unified chat provider contract used by the
// knowledge base for answer generation and reasoning.
package llm

import (
	"context"
	"time"

	"github.com/kbflow/kbflow/types"
)

// ChatRequest 是统一的聊天请求结构。
type ChatRequest struct {
	Model       string            `json:"model"`
	Messages    []types.Message   `json:"messages"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
	Temperature float64           `json:"temperature,omitempty"`
	TopP        float64           `json:"top_p,omitempty"`
	Stop        []string          `json:"stop,omitempty"`
	Timeout     time.Duration     `json:"timeout,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// ChatUsage 记录 token 用量。
type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

// ChatChoice 是一条候选回复。
type ChatChoice struct {
	Index        int           `json:"index"`
	FinishReason string        `json:"finish_reason,omitempty"`
	Message      types.Message `json:"message"`
}

// ChatResponse 是完整的聊天响应。
type ChatResponse struct {
	ID        string       `json:"id,omitempty"`
	Provider  string       `json:"provider,omitempty"`
	Model     string       `json:"model"`
	Choices   []ChatChoice `json:"choices"`
	Usage     ChatUsage    `json:"usage,omitempty"`
	CreatedAt time.Time    `json:"created_at,omitempty"`
}

// Text returns the content of the first choice, or "".
func (r *ChatResponse) Text() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

// StreamChunk 是流式响应的增量片段。
type StreamChunk struct {
	ID           string        `json:"id,omitempty"`
	Provider     string        `json:"provider,omitempty"`
	Model        string        `json:"model,omitempty"`
	Delta        types.Message `json:"delta"`
	FinishReason string        `json:"finish_reason,omitempty"`
	Usage        *ChatUsage    `json:"usage,omitempty"` // 最终 chunk 可带 usage
	Err          *types.Error  `json:"error,omitempty"`
}

// Provider 定义了统一的 LLM 适配接口，便于降级与监控。
type Provider interface {
	// Completion 发起同步聊天请求，返回完整响应
	Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Stream 发起流式聊天请求，返回增量响应通道
	Stream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error)

	// Name 返回 Provider 的唯一标识
	Name() string
}
