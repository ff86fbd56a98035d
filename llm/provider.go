package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNoChoices is returned when the service answers without any completion.
var ErrNoChoices = errors.New("llm: no choices in response")

// Provider is the inference gateway: one image plus one instruction in, raw
// text plus usage counts out.
type Provider interface {
	// ChatWithImages sends a chat request that includes images.
	ChatWithImages(ctx context.Context, req VisionChatRequest) (*ChatResponse, error)
}

// VisionChatRequest is a chat request with image content.
type VisionChatRequest struct {
	Model       string          `json:"model"`
	Messages    []VisionMessage `json:"messages"`
	Temperature float64         `json:"temperature,omitempty"`
	TopP        float64         `json:"top_p,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	// ResponseFormat optionally constrains the output shape. Services that
	// ignore it still return text the caller must parse.
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

// ResponseFormat mirrors the OpenAI "response_format" object.
type ResponseFormat struct {
	Type       string      `json:"type"` // "json_schema" or "json_object"
	JSONSchema *JSONSchema `json:"json_schema,omitempty"`
}

// JSONSchema is a named schema for structured output.
type JSONSchema struct {
	Name   string         `json:"name"`
	Schema map[string]any `json:"schema"`
	Strict bool           `json:"strict"`
}

// VisionMessage represents a chat message that may contain images.
type VisionMessage struct {
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

// ContentPart is either text or an image in a vision message.
type ContentPart struct {
	Type     string    `json:"type"` // "text" or "image_url"
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL contains a base64 or URL reference to an image.
type ImageURL struct {
	URL string `json:"url"`
}

// ChatResponse is the response from a chat completion.
type ChatResponse struct {
	Content          string `json:"content"`
	Model            string `json:"model"`
	FinishReason     string `json:"finish_reason"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
}

// NewImageRequest builds the single-turn request every tagging branch sends:
// the image first, then the instruction text.
func NewImageRequest(imageURL, instruction string) VisionChatRequest {
	return VisionChatRequest{
		Messages: []VisionMessage{{
			Role: "user",
			Content: []ContentPart{
				{Type: "image_url", ImageURL: &ImageURL{URL: NormalizeImageURL(imageURL)}},
				{Type: "text", Text: instruction},
			},
		}},
	}
}

// Config configures an LLM provider.
type Config struct {
	Provider string `json:"provider" yaml:"provider"` // vllm, dashscope, ollama, lmstudio, openrouter, openai, gemini, genai, custom
	Model    string `json:"model" yaml:"model"`
	BaseURL  string `json:"base_url" yaml:"base_url"`
	APIKey   string `json:"api_key" yaml:"api_key"`
	// MaxRetries bounds transport-level retries on 429/5xx. Zero disables them.
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
	// HTTPTimeout caps a single HTTP exchange. Zero means 120s.
	HTTPTimeout time.Duration `json:"http_timeout" yaml:"http_timeout"`
	// MaxConcurrent bounds in-flight requests when the provider is pooled.
	MaxConcurrent int `json:"max_concurrent" yaml:"max_concurrent"`
}

// NewProvider creates an LLM provider from configuration.
func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "vllm":
		return NewVLLM(cfg), nil
	case "dashscope":
		return NewDashScope(cfg), nil
	case "ollama":
		return NewOllama(cfg), nil
	case "lmstudio":
		return NewLMStudio(cfg), nil
	case "openrouter":
		return NewOpenRouter(cfg), nil
	case "openai":
		return NewOpenAI(cfg), nil
	case "gemini":
		return NewGemini(cfg), nil
	case "genai":
		return NewGenAI(context.Background(), cfg)
	case "custom":
		return NewOpenAICompat(cfg), nil
	case "":
		return nil, fmt.Errorf("llm provider not specified")
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
}
