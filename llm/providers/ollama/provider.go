// Package ollama implements the chat provider contract against a local
// Ollama daemon (/api/chat). Streaming uses newline-delimited JSON rather
// than SSE.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kbflow/kbflow/llm"
	"github.com/kbflow/kbflow/types"
)

// Config holds the Ollama provider configuration.
type Config struct {
	// BaseURL is the daemon address. Defaults to "http://localhost:11434".
	BaseURL string

	// DefaultModel is used when the request does not name a model.
	DefaultModel string

	// Timeout is the HTTP client timeout. Defaults to 120s (local models are slow).
	Timeout time.Duration
}

// Provider 实现本地 Ollama 聊天接口。
type Provider struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New creates a new Ollama chat provider.
func New(cfg Config, logger *zap.Logger) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "llama3.1"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
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
func (p *Provider) Name() string { return "ollama" }

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64  `json:"temperature,omitempty"`
	TopP        float64  `json:"top_p,omitempty"`
	NumPredict  int      `json:"num_predict,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

type ollamaChatResponse struct {
	Model           string        `json:"model"`
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	DoneReason      string        `json:"done_reason,omitempty"`
	PromptEvalCount int           `json:"prompt_eval_count,omitempty"`
	EvalCount       int           `json:"eval_count,omitempty"`
}

func (p *Provider) buildRequest(req *llm.ChatRequest, stream bool) ollamaChatRequest {
	messages := make([]ollamaMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, ollamaMessage{Role: string(m.Role), Content: m.Content})
	}
	return ollamaChatRequest{
		Model:    llm.ChooseModel(req.Model, p.cfg.DefaultModel, "llama3.1"),
		Messages: messages,
		Stream:   stream,
		Options: ollamaOptions{
			Temperature: req.Temperature,
			TopP:        req.TopP,
			NumPredict:  req.MaxTokens,
			Stop:        req.Stop,
		},
	}
}

func (p *Provider) doChat(ctx context.Context, body ollamaChatRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := strings.TrimRight(p.cfg.BaseURL, "/") + "/api/chat"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

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
	return resp, nil
}

// Completion performs a non-streaming chat completion.
func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	resp, err := p.doChat(ctx, p.buildRequest(req, false))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var olResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&olResp); err != nil {
		return nil, &types.Error{
			Code: types.ErrUpstreamError, Message: err.Error(),
			HTTPStatus: http.StatusBadGateway, Retryable: true, Provider: p.Name(),
		}
	}

	return &llm.ChatResponse{
		Provider: p.Name(),
		Model:    olResp.Model,
		Choices: []llm.ChatChoice{{
			FinishReason: olResp.DoneReason,
			Message: types.Message{
				Role:    types.Role(olResp.Message.Role),
				Content: olResp.Message.Content,
			},
		}},
		Usage: llm.ChatUsage{
			PromptTokens:     olResp.PromptEvalCount,
			CompletionTokens: olResp.EvalCount,
			TotalTokens:      olResp.PromptEvalCount + olResp.EvalCount,
		},
		CreatedAt: time.Now(),
	}, nil
}

// Stream performs a streaming chat completion via NDJSON.
func (p *Provider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	resp, err := p.doChat(ctx, p.buildRequest(req, true))
	if err != nil {
		return nil, err
	}

	ch := make(chan llm.StreamChunk)
	go func() {
		defer resp.Body.Close()
		defer close(ch)
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}

			var olResp ollamaChatResponse
			if err := json.Unmarshal([]byte(line), &olResp); err != nil {
				select {
				case <-ctx.Done():
				case ch <- llm.StreamChunk{Err: &types.Error{
					Code: types.ErrUpstreamError, Message: err.Error(),
					HTTPStatus: http.StatusBadGateway, Retryable: true, Provider: p.Name(),
				}}:
				}
				return
			}

			chunk := llm.StreamChunk{
				Provider: p.Name(),
				Model:    olResp.Model,
				Delta: types.Message{
					Role:    types.RoleAssistant,
					Content: olResp.Message.Content,
				},
			}
			if olResp.Done {
				chunk.FinishReason = olResp.DoneReason
				if chunk.FinishReason == "" {
					chunk.FinishReason = "stop"
				}
				chunk.Usage = &llm.ChatUsage{
					PromptTokens:     olResp.PromptEvalCount,
					CompletionTokens: olResp.EvalCount,
					TotalTokens:      olResp.PromptEvalCount + olResp.EvalCount,
				}
			}
			select {
			case <-ctx.Done():
				return
			case ch <- chunk:
			}
			if olResp.Done {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			select {
			case <-ctx.Done():
			case ch <- llm.StreamChunk{Err: &types.Error{
				Code: types.ErrUpstreamError, Message: err.Error(),
				HTTPStatus: http.StatusBadGateway, Retryable: true, Provider: p.Name(),
			}}:
			}
		}
	}()
	return ch, nil
}
