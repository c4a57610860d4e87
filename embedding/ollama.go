package embedding

import (
	"context"
	"encoding/json"
	"time"
)

// OllamaConfig holds the Ollama embedding provider configuration.
type OllamaConfig struct {
	BaseURL    string
	Model      string
	Dimensions int
	Timeout    time.Duration
}

// OllamaProvider implements embedding against a local Ollama daemon.
type OllamaProvider struct {
	*BaseProvider
	cfg OllamaConfig
}

// NewOllamaProvider creates a new Ollama embedding provider.
func NewOllamaProvider(cfg OllamaConfig) *OllamaProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "nomic-embed-text"
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = 768
	}

	return &OllamaProvider{
		BaseProvider: NewBaseProvider(BaseConfig{
			Name:       "ollama-embedding",
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			MaxBatch:   512,
			Timeout:    cfg.Timeout,
		}),
		cfg: cfg,
	}
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Model           string      `json:"model"`
	Embeddings      [][]float64 `json:"embeddings"`
	PromptEvalCount int         `json:"prompt_eval_count,omitempty"`
}

// Embed generates embeddings via the /api/embed endpoint.
func (p *OllamaProvider) Embed(ctx context.Context, req *EmbeddingRequest) (*EmbeddingResponse, error) {
	body := ollamaEmbedRequest{
		Model: ChooseModel(req.Model, p.cfg.Model, "nomic-embed-text"),
		Input: req.Input,
	}

	respBody, err := p.DoRequest(ctx, "POST", "/api/embed", body, nil)
	if err != nil {
		return nil, err
	}

	var olResp ollamaEmbedResponse
	if err := json.Unmarshal(respBody, &olResp); err != nil {
		return nil, err
	}

	embeddings := make([]EmbeddingData, len(olResp.Embeddings))
	for i, e := range olResp.Embeddings {
		embeddings[i] = EmbeddingData{Index: i, Embedding: e, Object: "embedding"}
	}

	return &EmbeddingResponse{
		Provider:   p.Name(),
		Model:      olResp.Model,
		Embeddings: embeddings,
		Usage: EmbeddingUsage{
			PromptTokens: olResp.PromptEvalCount,
			TotalTokens:  olResp.PromptEvalCount,
		},
		CreatedAt: time.Now(),
	}, nil
}

// EmbedQuery embeds a single query.
func (p *OllamaProvider) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	return p.BaseProvider.EmbedQuery(ctx, query, p.Embed)
}

// EmbedDocuments embeds multiple documents.
func (p *OllamaProvider) EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error) {
	return p.BaseProvider.EmbedDocuments(ctx, documents, p.Embed)
}
