// =============================================================================
// kbflow OpenAI-Compatible Chat Provider
// =============================================================================
// Works against any OpenAI-style endpoint (/v1/chat/completions): OpenAI
// itself, DeepSeek, SiliconFlow, Together and friends — only the BaseURL,
// API key and default model differ.
// =============================================================================

package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kbflow/kbflow/llm"
	"github.com/kbflow/kbflow/types"
)

// Config holds the configuration for an OpenAI-compatible chat provider.
type Config struct {
	// ProviderName is the unique identifier (e.g. "openai", "deepseek").
	ProviderName string

	// APIKey is the bearer token for the API.
	APIKey string

	// BaseURL is the API root (e.g. "https://api.openai.com").
	BaseURL string

	// DefaultModel is used when the request does not name a model.
	DefaultModel string

	// Timeout is the HTTP client timeout. Defaults to 60s if zero.
	Timeout time.Duration

	// Organization sets the OpenAI-Organization header when non-empty.
	Organization string
}

// Provider 实现 OpenAI 兼容的聊天接口。
type Provider struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New creates a new OpenAI-compatible chat provider.
func New(cfg Config, logger *zap.Logger) *Provider {
	if cfg.ProviderName == "" {
		cfg.ProviderName = "openai"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gpt-4o-mini"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Name returns the provider name.
func (p *Provider) Name() string { return p.cfg.ProviderName }

// --- wire types ---

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	TopP        float64       `json:"top_p,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Created int64  `json:"created"`
	Choices []struct {
		Index        int          `json:"index"`
		FinishReason string       `json:"finish_reason"`
		Message      *wireMessage `json:"message,omitempty"`
		Delta        *wireMessage `json:"delta,omitempty"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage,omitempty"`
}

func (p *Provider) buildRequest(req *llm.ChatRequest, stream bool) chatCompletionRequest {
	messages := make([]wireMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, wireMessage{Role: string(m.Role), Content: m.Content})
	}
	return chatCompletionRequest{
		Model:       llm.ChooseModel(req.Model, p.cfg.DefaultModel, "gpt-4o-mini"),
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stop:        req.Stop,
		Stream:      stream,
	}
}

func (p *Provider) newHTTPRequest(ctx context.Context, body any) (*http.Request, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := strings.TrimRight(p.cfg.BaseURL, "/") + "/v1/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	if p.cfg.Organization != "" {
		httpReq.Header.Set("OpenAI-Organization", p.cfg.Organization)
	}
	return httpReq, nil
}

// Completion performs a non-streaming chat completion.
func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	httpReq, err := p.newHTTPRequest(ctx, p.buildRequest(req, false))
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &types.Error{
			Code: types.ErrUpstreamError, Message: err.Error(),
			HTTPStatus: http.StatusBadGateway, Retryable: true, Provider: p.Name(),
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, llm.MapHTTPError(resp.StatusCode, llm.ReadErrorMessage(resp.Body), p.Name())
	}

	var oaResp chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&oaResp); err != nil {
		return nil, &types.Error{
			Code: types.ErrUpstreamError, Message: err.Error(),
			HTTPStatus: http.StatusBadGateway, Retryable: true, Provider: p.Name(),
		}
	}

	return p.toChatResponse(oaResp), nil
}

func (p *Provider) toChatResponse(oaResp chatCompletionResponse) *llm.ChatResponse {
	choices := make([]llm.ChatChoice, 0, len(oaResp.Choices))
	for _, c := range oaResp.Choices {
		msg := types.Message{Role: types.RoleAssistant}
		if c.Message != nil {
			msg.Role = types.Role(c.Message.Role)
			msg.Content = c.Message.Content
		}
		choices = append(choices, llm.ChatChoice{
			Index:        c.Index,
			FinishReason: c.FinishReason,
			Message:      msg,
		})
	}

	result := &llm.ChatResponse{
		ID:       oaResp.ID,
		Provider: p.Name(),
		Model:    oaResp.Model,
		Choices:  choices,
	}
	if oaResp.Usage != nil {
		result.Usage = llm.ChatUsage{
			PromptTokens:     oaResp.Usage.PromptTokens,
			CompletionTokens: oaResp.Usage.CompletionTokens,
			TotalTokens:      oaResp.Usage.TotalTokens,
		}
	}
	if oaResp.Created != 0 {
		result.CreatedAt = time.Unix(oaResp.Created, 0)
	}
	return result
}

// Stream performs a streaming chat completion via SSE.
func (p *Provider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	httpReq, err := p.newHTTPRequest(ctx, p.buildRequest(req, true))
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &types.Error{
			Code: types.ErrUpstreamError, Message: err.Error(),
			HTTPStatus: http.StatusBadGateway, Retryable: true, Provider: p.Name(),
		}
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, llm.MapHTTPError(resp.StatusCode, llm.ReadErrorMessage(resp.Body), p.Name())
	}

	return p.streamSSE(ctx, resp.Body), nil
}

// streamSSE 解析 OpenAI 风格的 SSE 流并转换为增量通道。
func (p *Provider) streamSSE(ctx context.Context, body io.ReadCloser) <-chan llm.StreamChunk {
	ch := make(chan llm.StreamChunk)
	go func() {
		defer body.Close()
		defer close(ch)
		reader := bufio.NewReader(body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				if err != io.EOF {
					select {
					case <-ctx.Done():
					case ch <- llm.StreamChunk{Err: &types.Error{
						Code: types.ErrUpstreamError, Message: err.Error(),
						HTTPStatus: http.StatusBadGateway, Retryable: true, Provider: p.Name(),
					}}:
					}
				}
				return
			}
			line = strings.TrimSpace(line)
			if line == "" || !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return
			}

			var oaResp chatCompletionResponse
			if err := json.Unmarshal([]byte(data), &oaResp); err != nil {
				select {
				case <-ctx.Done():
				case ch <- llm.StreamChunk{Err: &types.Error{
					Code: types.ErrUpstreamError, Message: err.Error(),
					HTTPStatus: http.StatusBadGateway, Retryable: true, Provider: p.Name(),
				}}:
				}
				return
			}

			for _, choice := range oaResp.Choices {
				chunk := llm.StreamChunk{
					ID:           oaResp.ID,
					Provider:     p.Name(),
					Model:        oaResp.Model,
					FinishReason: choice.FinishReason,
					Delta:        types.Message{Role: types.RoleAssistant},
				}
				if choice.Delta != nil {
					chunk.Delta.Content = choice.Delta.Content
				}
				select {
				case <-ctx.Done():
					return
				case ch <- chunk:
				}
			}
		}
	}()
	return ch
}
