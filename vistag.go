// Package vistag assigns hierarchical taxonomy tags to images by running
// a conditional graph of vision-language calls, one per taxonomy branch,
// and aggregating the validated results.
package vistag

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/brunobiangulo/vistag/branch"
	"github.com/brunobiangulo/vistag/llm"
	"github.com/brunobiangulo/vistag/pipeline"
	"github.com/brunobiangulo/vistag/store"
	"github.com/brunobiangulo/vistag/taxonomy"
)

// Status values of a Result.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// maxErrorRunes bounds the error text returned to callers.
const maxErrorRunes = 200

// Tagger is the main entry point for image tagging.
type Tagger interface {
	// Process tags one image. It never returns an error: image and
	// internal failures are reported through Result.Status and Result.Error.
	// A run whose ctx ends before it completes is failed.
	Process(ctx context.Context, imageRef string, opts ...ProcessOption) *Result

	// ProcessBatch tags images concurrently, bounded by Config.Workers.
	// Results are in input order. onResult, when non-nil, is called as each
	// image finishes and may be called from several goroutines at once.
	ProcessBatch(ctx context.Context, imageRefs []string, onResult func(i int, r *Result), opts ...ProcessOption) []*Result

	// Taxonomy returns the registry tags are validated against.
	Taxonomy() *taxonomy.Registry

	// Store returns the audit store, or nil when auditing is disabled.
	Store() *store.Store

	// Close flushes the audit trail and releases resources.
	Close() error
}

// Result is the outcome of one processing request.
type Result struct {
	RunID            string         `json:"run_id"`
	ImageInfo        string         `json:"image_info"`
	FinalLabels      []string       `json:"final_labels"`
	TotalLabelsCount int            `json:"total_labels_count"`
	ElapsedTime      float64        `json:"elapsed_time"` // seconds, 2 decimals
	TokenCost        float64        `json:"token_cost"`   // 4 decimals
	Status           string         `json:"status"`
	Error            string         `json:"error"`
	Branches         []BranchResult `json:"branches,omitempty"`
}

// BranchResult is the per-branch detail of a run.
type BranchResult struct {
	Branch           string              `json:"branch"`
	Status           string              `json:"status"`
	Values           map[string][]string `json:"values,omitempty"`
	PromptTokens     int                 `json:"prompt_tokens"`
	CompletionTokens int                 `json:"completion_tokens"`
	Cost             float64             `json:"cost"`
	ElapsedTime      float64             `json:"elapsed_time"`
	Error            string              `json:"error,omitempty"`
}

// Option configures a Tagger at construction.
type Option func(*options)

type options struct {
	provider llm.Provider
	registry *taxonomy.Registry
	rules    []pipeline.Rule
	auditor  branch.Auditor
}

// WithProvider uses p instead of building a pool from Config.Instances.
func WithProvider(p llm.Provider) Option {
	return func(o *options) { o.provider = p }
}

// WithTaxonomy replaces the built-in registry.
func WithTaxonomy(reg *taxonomy.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// WithRules replaces the default correction rules.
func WithRules(rules ...pipeline.Rule) Option {
	return func(o *options) { o.rules = rules }
}

// WithAuditor receives branch call records in addition to the audit store.
func WithAuditor(a branch.Auditor) Option {
	return func(o *options) { o.auditor = a }
}

// ProcessOption configures a single request.
type ProcessOption func(*processOptions)

type processOptions struct {
	branchDetail bool
}

// WithBranchDetail includes per-branch outcomes in the result.
func WithBranchDetail() ProcessOption {
	return func(o *processOptions) { o.branchDetail = true }
}

// tagger is the concrete implementation of Tagger.
type tagger struct {
	cfg      Config
	registry *taxonomy.Registry
	graph    *pipeline.Graph
	store    *store.Store
	recorder *store.Recorder

	mu     sync.RWMutex
	closed bool
}

// New builds a Tagger. The task graph is built once and shared by every
// request.
func New(cfg Config, opts ...Option) (Tagger, error) {
	o := options{rules: pipeline.DefaultRules()}
	for _, opt := range opts {
		opt(&o)
	}
	if err := cfg.validate(o.provider == nil); err != nil {
		return nil, err
	}

	gateway := o.provider
	if gateway == nil {
		pool, err := llm.NewPoolFromConfigs(cfg.Balance, cfg.Instances)
		if err != nil {
			return nil, fmt.Errorf("creating inference pool: %w", err)
		}
		gateway = pool
		slog.Info("vistag: inference pool ready", "instances", pool.Size(), "balance", cfg.Balance)
	}

	reg := o.registry
	if reg == nil {
		reg = taxonomy.Default()
	}

	t := &tagger{cfg: cfg, registry: reg}

	var auditors []branch.Auditor
	if o.auditor != nil {
		auditors = append(auditors, o.auditor)
	}
	if path := cfg.AuditPath(); path != "" {
		s, err := store.New(path)
		if err != nil {
			return nil, fmt.Errorf("opening audit store: %w", err)
		}
		t.store = s
		t.recorder = store.NewRecorder(s, cfg.modelLabel(), cfg.AuditQueue)
		auditors = append(auditors, t.recorder)
	}

	copts := make([]branch.Option, 0, branch.Count+1)
	for _, id := range branch.All() {
		copts = append(copts, branch.WithPrice(id, cfg.Pricing.priceFor(id)))
	}
	switch len(auditors) {
	case 0:
	case 1:
		copts = append(copts, branch.WithAuditor(auditors[0]))
	default:
		copts = append(copts, branch.WithAuditor(multiAuditor(auditors)))
	}
	classifier := branch.NewClassifier(gateway, cfg.settings(), copts...)

	g, err := pipeline.NewGraph(reg, classifier, branch.Subject, branch.Defaults(reg), o.rules)
	if err != nil {
		t.Close()
		return nil, fmt.Errorf("building task graph: %w", err)
	}
	t.graph = g
	return t, nil
}

type multiAuditor []branch.Auditor

func (m multiAuditor) Record(c branch.Call) {
	for _, a := range m {
		a.Record(c)
	}
}

func (t *tagger) Taxonomy() *taxonomy.Registry { return t.registry }

func (t *tagger) Store() *store.Store { return t.store }

// Process runs the task graph for one image.
func (t *tagger) Process(ctx context.Context, imageRef string, opts ...ProcessOption) (res *Result) {
	var po processOptions
	for _, opt := range opts {
		opt(&po)
	}

	runID := uuid.NewString()
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("vistag: panic during processing", "run_id", runID, "panic", r)
			res = failedResult(runID, imageRef, start, fmt.Errorf("internal error: %v", r))
		}
	}()

	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return failedResult(runID, imageRef, start, ErrClosed)
	}

	image, err := ResolveImage(imageRef, t.cfg.MaxImageBytes)
	if err != nil {
		slog.Warn("vistag: rejecting image", "run_id", runID, "error", err)
		res = failedResult(runID, imageRef, start, err)
		t.record(res, start, time.Now())
		return res
	}

	s := pipeline.NewRunState(runID, image)
	s.CreatedAt = start
	t.graph.Run(ctx, s)
	if err := ctx.Err(); err != nil {
		// Branches saw the cancellation as call failures; the tags are incomplete.
		slog.Warn("vistag: run cancelled", "run_id", runID, "error", err)
		res = failedResult(runID, imageRef, start, err)
		res.TokenCost = round(s.TotalCost, 4)
		if po.branchDetail {
			res.Branches = branchResults(s)
		}
		t.record(res, s.CreatedAt, s.CompletedAt)
		return res
	}

	res = &Result{
		RunID:            runID,
		ImageInfo:        imageRef,
		FinalLabels:      s.Tags,
		TotalLabelsCount: len(s.Tags),
		ElapsedTime:      round(s.Elapsed().Seconds(), 2),
		TokenCost:        round(s.TotalCost, 4),
		Status:           StatusSuccess,
	}
	if po.branchDetail {
		res.Branches = branchResults(s)
	}
	t.record(res, s.CreatedAt, s.CompletedAt)
	return res
}

// ProcessBatch runs one independent graph per image on a bounded pool.
func (t *tagger) ProcessBatch(ctx context.Context, imageRefs []string, onResult func(int, *Result), opts ...ProcessOption) []*Result {
	results := make([]*Result, len(imageRefs))
	workers := t.cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	var eg errgroup.Group
	eg.SetLimit(workers)
	for i, ref := range imageRefs {
		if err := ctx.Err(); err != nil {
			results[i] = failedResult(uuid.NewString(), ref, time.Now(), err)
			if onResult != nil {
				onResult(i, results[i])
			}
			continue
		}
		eg.Go(func() error {
			results[i] = t.Process(ctx, ref, opts...)
			if onResult != nil {
				onResult(i, results[i])
			}
			return nil
		})
	}
	_ = eg.Wait()
	return results
}

// Close flushes pending audit records and closes the store. Requests in
// flight finish first.
func (t *tagger) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if t.recorder != nil {
		t.recorder.Close()
	}
	if t.store != nil {
		return t.store.Close()
	}
	return nil
}

func (t *tagger) record(res *Result, created, completed time.Time) {
	if t.recorder == nil {
		return
	}
	t.recorder.RecordRun(store.Run{
		ID:              res.RunID,
		ImageRef:        res.ImageInfo,
		Status:          res.Status,
		Error:           res.Error,
		Tags:            res.FinalLabels,
		TagCount:        res.TotalLabelsCount,
		TotalCost:       res.TokenCost,
		ElapsedMS:       completed.Sub(created).Milliseconds(),
		TaxonomyVersion: t.registry.Version(),
		CreatedAt:       created,
		CompletedAt:     completed,
	})
}

func failedResult(runID, imageRef string, start time.Time, err error) *Result {
	return &Result{
		RunID:       runID,
		ImageInfo:   imageRef,
		FinalLabels: []string{},
		ElapsedTime: round(time.Since(start).Seconds(), 2),
		Status:      StatusFailed,
		Error:       truncateRunes(err.Error(), maxErrorRunes),
	}
}

func branchResults(s *pipeline.RunState) []BranchResult {
	out := make([]BranchResult, 0, branch.Count)
	for _, o := range s.Outcomes {
		out = append(out, BranchResult{
			Branch:           o.Branch.String(),
			Status:           o.Status.String(),
			Values:           o.Mapping.Clone(),
			PromptTokens:     o.PromptTokens,
			CompletionTokens: o.CompletionTokens,
			Cost:             round(o.Cost, 4),
			ElapsedTime:      round(o.Elapsed.Seconds(), 2),
			Error:            truncateRunes(o.Err, maxErrorRunes),
		})
	}
	return out
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
