package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestChatWithImagesRequestShape(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s, want /v1/chat/completions", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer k" {
			t.Errorf("Authorization = %q", auth)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		w.Write([]byte(`{"model":"m","choices":[{"message":{"content":"{\"主体\":[\"人像\"]}"},"finish_reason":"stop"}],"usage":{"prompt_tokens":1200,"completion_tokens":30,"total_tokens":1230}}`))
	}))
	defer srv.Close()

	p := NewVLLM(Config{BaseURL: srv.URL, Model: "m", APIKey: "k"})
	req := NewImageRequest("https://example.com/cat.jpg", "describe")
	req.Temperature = 0.1
	req.MaxTokens = 512
	req.ResponseFormat = &ResponseFormat{
		Type: "json_schema",
		JSONSchema: &JSONSchema{
			Name:   "tagging_result",
			Schema: map[string]any{"type": "object"},
			Strict: true,
		},
	}

	resp, err := p.ChatWithImages(context.Background(), req)
	if err != nil {
		t.Fatalf("ChatWithImages: %v", err)
	}
	if resp.PromptTokens != 1200 || resp.CompletionTokens != 30 {
		t.Errorf("usage = %d/%d, want 1200/30", resp.PromptTokens, resp.CompletionTokens)
	}
	if resp.Content != `{"主体":["人像"]}` {
		t.Errorf("content = %q", resp.Content)
	}

	rf, _ := got["response_format"].(map[string]any)
	if rf["type"] != "json_schema" {
		t.Errorf("response_format.type = %v, want json_schema", rf["type"])
	}
	js, _ := rf["json_schema"].(map[string]any)
	if js["name"] != "tagging_result" || js["strict"] != true {
		t.Errorf("json_schema = %v", js)
	}
	msgs, _ := got["messages"].([]any)
	if len(msgs) != 1 {
		t.Fatalf("messages = %v", got["messages"])
	}
	content := msgs[0].(map[string]any)["content"].([]any)
	first := content[0].(map[string]any)
	if first["type"] != "image_url" {
		t.Errorf("first part type = %v, want image_url", first["type"])
	}
}

func TestChatWithImagesMissingUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"{}"}}]}`))
	}))
	defer srv.Close()

	resp, err := NewOpenAICompat(Config{BaseURL: srv.URL}).ChatWithImages(context.Background(), NewImageRequest("AAAA", "x"))
	if err != nil {
		t.Fatalf("ChatWithImages: %v", err)
	}
	if resp.PromptTokens != 0 || resp.CompletionTokens != 0 {
		t.Errorf("usage = %d/%d, want zeros", resp.PromptTokens, resp.CompletionTokens)
	}
}

func TestChatWithImagesNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := NewOpenAICompat(Config{BaseURL: srv.URL}).ChatWithImages(context.Background(), NewImageRequest("AAAA", "x"))
	if !errors.Is(err, ErrNoChoices) {
		t.Fatalf("err = %v, want ErrNoChoices", err)
	}
}

func TestDoPostNoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad schema", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := NewOpenAICompat(Config{BaseURL: srv.URL, MaxRetries: 3}).ChatWithImages(context.Background(), NewImageRequest("AAAA", "x"))
	if err == nil || !strings.Contains(err.Error(), "400") {
		t.Fatalf("err = %v, want 400 error", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestDoPostRetriesDisabled(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewOpenAICompat(Config{BaseURL: srv.URL}).ChatWithImages(context.Background(), NewImageRequest("AAAA", "x"))
	if err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestDoPostHonoursContextDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := NewOpenAICompat(Config{BaseURL: srv.URL, MaxRetries: 5}).ChatWithImages(ctx, NewImageRequest("AAAA", "x"))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if time.Since(start) > time.Second {
		t.Errorf("backoff ignored context cancellation")
	}
}

func TestOllamaDowngradesJSONSchema(t *testing.T) {
	var format map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		format, _ = body["response_format"].(map[string]any)
		w.Write([]byte(`{"choices":[{"message":{"content":"{}"}}]}`))
	}))
	defer srv.Close()

	req := NewImageRequest("AAAA", "x")
	req.ResponseFormat = &ResponseFormat{Type: "json_schema", JSONSchema: &JSONSchema{Name: "n"}}
	if _, err := NewOllama(Config{BaseURL: srv.URL}).ChatWithImages(context.Background(), req); err != nil {
		t.Fatalf("ChatWithImages: %v", err)
	}
	if format["type"] != "json_object" {
		t.Errorf("response_format.type = %v, want json_object", format["type"])
	}
	if _, ok := format["json_schema"]; ok {
		t.Error("json_schema should be dropped for ollama")
	}
}
