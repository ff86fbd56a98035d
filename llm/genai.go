package llm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"
)

// genAIProvider implements Provider on the native Gemini SDK. Unlike the
// OpenAI-compatible endpoint it sends the image as inline bytes and maps
// json_schema constraints onto ResponseJsonSchema.
type genAIProvider struct {
	client *genai.Client
	model  string
	fetch  *http.Client
}

// NewGenAI creates a native Gemini provider.
func NewGenAI(ctx context.Context, cfg Config) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("genai API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &genAIProvider{
		client: client,
		model:  cfg.Model,
		fetch:  &http.Client{Timeout: timeout},
	}, nil
}

func (p *genAIProvider) ChatWithImages(ctx context.Context, req VisionChatRequest) (*ChatResponse, error) {
	var parts []*genai.Part
	for _, msg := range req.Messages {
		for _, cp := range msg.Content {
			switch cp.Type {
			case "text":
				parts = append(parts, genai.NewPartFromText(cp.Text))
			case "image_url":
				if cp.ImageURL == nil {
					continue
				}
				part, err := p.imagePart(ctx, cp.ImageURL.URL)
				if err != nil {
					return nil, err
				}
				parts = append(parts, part)
			}
		}
	}

	model := req.Model
	if model == "" {
		model = p.model
	}

	gc := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if req.TopP > 0 {
		gc.TopP = genai.Ptr(float32(req.TopP))
	}
	if req.MaxTokens > 0 {
		gc.MaxOutputTokens = int32(req.MaxTokens)
	}
	if rf := req.ResponseFormat; rf != nil {
		gc.ResponseMIMEType = "application/json"
		if rf.JSONSchema != nil {
			gc.ResponseJsonSchema = rf.JSONSchema.Schema
		}
	}

	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	resp, err := p.client.Models.GenerateContent(ctx, model, contents, gc)
	if err != nil {
		return nil, fmt.Errorf("genai generate failed: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return nil, ErrNoChoices
	}

	out := &ChatResponse{
		Content:      resp.Text(),
		Model:        model,
		FinishReason: string(resp.Candidates[0].FinishReason),
	}
	if u := resp.UsageMetadata; u != nil {
		out.PromptTokens = int(u.PromptTokenCount)
		out.CompletionTokens = int(u.CandidatesTokenCount)
		out.TotalTokens = int(u.TotalTokenCount)
	}
	return out, nil
}

func (p *genAIProvider) imagePart(ctx context.Context, url string) (*genai.Part, error) {
	if hasPrefixFold(url, "data:") {
		mime, data, err := decodeDataURL(url)
		if err != nil {
			return nil, err
		}
		return genai.NewPartFromBytes(data, mime), nil
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.fetch.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("fetching image %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching image %s: status %d", url, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading image %s: %w", url, err)
	}
	mime := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(mime, "image/") {
		mime = http.DetectContentType(data)
	}
	return genai.NewPartFromBytes(data, mime), nil
}
