package llm

import "context"

// ollamaProvider implements Provider for Ollama through its
// OpenAI-compatible endpoint. Vision models such as llava or qwen2.5vl
// accept image_url parts there.
type ollamaProvider struct {
	base openAICompatClient
}

// NewOllama creates a provider for Ollama.
func NewOllama(cfg Config) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	return &ollamaProvider{base: newOpenAICompatClient(cfg)}
}

func (p *ollamaProvider) ChatWithImages(ctx context.Context, req VisionChatRequest) (*ChatResponse, error) {
	// Ollama rejects json_schema objects it cannot compile; json_object is
	// accepted everywhere.
	if req.ResponseFormat != nil && req.ResponseFormat.Type == "json_schema" {
		req.ResponseFormat = &ResponseFormat{Type: "json_object"}
	}
	return p.base.chatWithImages(ctx, req)
}
