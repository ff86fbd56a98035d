package llm

import "context"

// dashScopeProvider implements Provider for Alibaba Cloud DashScope in
// OpenAI-compatible mode.
//
// Supported vision models:
//
//	qwen-vl-max
//	qwen-vl-plus
//	qwen2.5-vl-72b-instruct
//
// API key: set via config or the VISTAG_LLM_API_KEY env var.
type dashScopeProvider struct {
	base openAICompatClient
}

// NewDashScope creates a provider for DashScope.
func NewDashScope(cfg Config) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://dashscope.aliyuncs.com/compatible-mode"
	}
	if cfg.Model == "" {
		cfg.Model = "qwen-vl-plus"
	}
	return &dashScopeProvider{base: newOpenAICompatClient(cfg)}
}

func (p *dashScopeProvider) ChatWithImages(ctx context.Context, req VisionChatRequest) (*ChatResponse, error) {
	return p.base.chatWithImages(ctx, req)
}
