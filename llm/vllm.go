package llm

import "context"

// vllmProvider implements Provider for a self-hosted vLLM server running a
// vision-language model (Qwen2.5-VL and friends). vLLM speaks the
// OpenAI-compatible API and honours response_format json_schema through
// guided decoding.
type vllmProvider struct {
	base openAICompatClient
}

// NewVLLM creates a provider for a vLLM deployment.
func NewVLLM(cfg Config) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8000"
	}
	if cfg.Model == "" {
		cfg.Model = "Qwen2.5-VL-7B-Instruct"
	}
	return &vllmProvider{base: newOpenAICompatClient(cfg)}
}

func (p *vllmProvider) ChatWithImages(ctx context.Context, req VisionChatRequest) (*ChatResponse, error) {
	return p.base.chatWithImages(ctx, req)
}
