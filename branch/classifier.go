package branch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brunobiangulo/vistag/extract"
	"github.com/brunobiangulo/vistag/llm"
)

// Settings are the per-call inference parameters shared by all branches.
type Settings struct {
	Model            string
	Temperature      float64
	TopP             float64
	MaxTokens        int
	Timeout          time.Duration
	StructuredOutput bool
}

// DefaultSettings returns the tuned defaults for tagging.
func DefaultSettings() Settings {
	return Settings{
		Temperature:      0.1,
		TopP:             0.95,
		MaxTokens:        512,
		Timeout:          60 * time.Second,
		StructuredOutput: true,
	}
}

// Call is an audit record of one branch execution.
type Call struct {
	RunID            string
	Branch           ID
	Status           Status
	Instruction      string
	Response         string
	PromptTokens     int
	CompletionTokens int
	Cost             float64
	Elapsed          time.Duration
	Err              string
	At               time.Time
}

// Auditor receives call records. Record must not block.
type Auditor interface {
	Record(c Call)
}

// Input is what a branch needs for one run.
type Input struct {
	RunID string
	// Image is an image_url value: an http(s) URL or a data URL.
	Image string
	// Subjects are the detected subjects; only consulted for gated branches.
	Subjects []string
}

// Classifier executes branch descriptors against an inference gateway.
type Classifier struct {
	gateway  llm.Provider
	settings Settings
	prices   map[ID]Price
	auditor  Auditor
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithPrice overrides the price for one branch.
func WithPrice(id ID, p Price) Option {
	return func(c *Classifier) { c.prices[id] = p }
}

// WithAuditor records every executed call.
func WithAuditor(a Auditor) Option {
	return func(c *Classifier) { c.auditor = a }
}

// NewClassifier creates a classifier. Branches without an explicit price
// use DefaultPrice.
func NewClassifier(gateway llm.Provider, settings Settings, opts ...Option) *Classifier {
	c := &Classifier{
		gateway:  gateway,
		settings: settings,
		prices:   make(map[ID]Price),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Classifier) price(id ID) Price {
	if p, ok := c.prices[id]; ok {
		return p
	}
	return DefaultPrice
}

// Run executes one branch. It always returns a terminal outcome: skipped
// when the precondition fails, failed on gateway or extraction errors.
func (c *Classifier) Run(ctx context.Context, b *Branch, in Input) (out Outcome) {
	if !b.Eligible(in.Subjects) {
		return Skipped(b.ID)
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("branch: panic during call", "branch", b.ID, "run_id", in.RunID, "panic", r)
			out = Outcome{Branch: b.ID, Status: StatusFailed, Mapping: extract.Mapping{}, Err: fmt.Sprintf("panic: %v", r)}
		}
	}()

	req := llm.NewImageRequest(in.Image, b.Instruction)
	req.Model = c.settings.Model
	req.Temperature = c.settings.Temperature
	req.TopP = c.settings.TopP
	req.MaxTokens = c.settings.MaxTokens
	if c.settings.StructuredOutput && b.Schema != nil {
		req.ResponseFormat = &llm.ResponseFormat{
			Type: "json_schema",
			JSONSchema: &llm.JSONSchema{
				Name:   "tagging_result",
				Schema: b.Schema,
				Strict: true,
			},
		}
	}

	callCtx := ctx
	if c.settings.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.settings.Timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := c.gateway.ChatWithImages(callCtx, req)
	elapsed := time.Since(start)
	if err != nil {
		slog.Warn("branch: gateway call failed",
			"branch", b.ID,
			"run_id", in.RunID,
			"error", err,
			"elapsed", elapsed.Round(time.Millisecond),
		)
		out = Outcome{Branch: b.ID, Status: StatusFailed, Mapping: extract.Mapping{}, Err: err.Error()}
		c.audit(in, b, out, "", start)
		return out
	}

	out = Outcome{
		Branch:           b.ID,
		Status:           StatusDone,
		PromptTokens:     resp.PromptTokens,
		CompletionTokens: resp.CompletionTokens,
		Cost:             c.price(b.ID).Cost(resp.PromptTokens, resp.CompletionTokens),
		Elapsed:          elapsed,
	}

	m, err := extract.Parse(resp.Content)
	if err != nil {
		slog.Warn("branch: unparseable model output",
			"branch", b.ID,
			"run_id", in.RunID,
			"error", err,
			"completion_tokens", resp.CompletionTokens,
			"finish_reason", resp.FinishReason,
		)
		out.Status = StatusFailed
		out.Err = err.Error()
		m = extract.Mapping{}
	}
	for category := range m {
		if !b.Owns(category) {
			slog.Debug("branch: dropping foreign category", "branch", b.ID, "category", category)
			delete(m, category)
		}
	}
	out.Mapping = m

	slog.Debug("branch: call complete",
		"branch", b.ID,
		"run_id", in.RunID,
		"status", out.Status,
		"categories", len(m),
		"prompt_tokens", resp.PromptTokens,
		"completion_tokens", resp.CompletionTokens,
		"elapsed", elapsed.Round(time.Millisecond),
	)
	c.audit(in, b, out, resp.Content, start)
	return out
}

func (c *Classifier) audit(in Input, b *Branch, out Outcome, response string, at time.Time) {
	if c.auditor == nil {
		return
	}
	c.auditor.Record(Call{
		RunID:            in.RunID,
		Branch:           b.ID,
		Status:           out.Status,
		Instruction:      b.Instruction,
		Response:         response,
		PromptTokens:     out.PromptTokens,
		CompletionTokens: out.CompletionTokens,
		Cost:             out.Cost,
		Elapsed:          out.Elapsed,
		Err:              out.Err,
		At:               at,
	})
}
