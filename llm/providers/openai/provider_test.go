package openai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/kbflow/kbflow/llm"
	"github.com/kbflow/kbflow/types"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{
		ProviderName: "openai",
		APIKey:       "test-key",
		BaseURL:      srv.URL,
		DefaultModel: "gpt-4o-mini",
	}, zap.NewNop())
}

func TestCompletion(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("bad auth header: %s", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "cmpl-1",
			"model": "gpt-4o-mini",
			"created": 1700000000,
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "hello there"}}],
			"usage": {"prompt_tokens": 5, "completion_tokens": 3, "total_tokens": 8}
		}`))
	})

	resp, err := p.Completion(context.Background(), &llm.ChatRequest{
		Messages: []types.Message{types.NewUserMessage("hi")},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Text() != "hello there" {
		t.Errorf("Text() = %q", resp.Text())
	}
	if resp.Usage.TotalTokens != 8 {
		t.Errorf("usage = %+v", resp.Usage)
	}
	if resp.Provider != "openai" {
		t.Errorf("provider = %s", resp.Provider)
	}
}

func TestCompletionErrorMapping(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": {"message": "rate limit exceeded"}}`))
	})

	_, err := p.Completion(context.Background(), &llm.ChatRequest{
		Messages: []types.Message{types.NewUserMessage("hi")},
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if types.GetErrorCode(err) != types.ErrRateLimited {
		t.Errorf("code = %s, want RATE_LIMITED", types.GetErrorCode(err))
	}
	if !types.IsRetryable(err) {
		t.Error("429 should be retryable")
	}
}

func TestStream(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: {\"id\":\"s1\",\"choices\":[{\"index\":0,\"delta\":{\"role\":\"assistant\",\"content\":\"hel\"}}]}\n\n"))
		w.Write([]byte("data: {\"id\":\"s1\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"lo\"},\"finish_reason\":\"stop\"}]}\n\n"))
		w.Write([]byte("data: [DONE]\n\n"))
	})

	ch, err := p.Stream(context.Background(), &llm.ChatRequest{
		Messages: []types.Message{types.NewUserMessage("hi")},
	})
	if err != nil {
		t.Fatal(err)
	}

	var content string
	for chunk := range ch {
		if chunk.Err != nil {
			t.Fatalf("stream error: %v", chunk.Err)
		}
		content += chunk.Delta.Content
	}
	if content != "hello" {
		t.Errorf("streamed content = %q", content)
	}
}
