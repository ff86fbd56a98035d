package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/brunobiangulo/vistag/branch"
)

// Recorder writes audit rows and runs in the background. Record and
// RecordRun never block the caller: when the queue is full the entry is
// dropped with a warning.
type Recorder struct {
	store   *Store
	model   string
	queue   chan recordItem
	done    chan struct{}
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	timeout time.Duration
}

type recordItem struct {
	call *BranchCall
	run  *Run
}

// NewRecorder starts the writer goroutine. model is stamped on every
// branch call row.
func NewRecorder(s *Store, model string, queueSize int) *Recorder {
	if queueSize <= 0 {
		queueSize = 256
	}
	r := &Recorder{
		store:   s,
		model:   model,
		queue:   make(chan recordItem, queueSize),
		done:    make(chan struct{}),
		timeout: 5 * time.Second,
	}
	go r.loop()
	return r
}

// Record implements branch.Auditor.
func (r *Recorder) Record(c branch.Call) {
	r.enqueue(recordItem{call: &BranchCall{
		RunID:            c.RunID,
		Branch:           c.Branch.String(),
		Status:           c.Status.String(),
		Model:            r.model,
		Instruction:      c.Instruction,
		Response:         c.Response,
		PromptTokens:     c.PromptTokens,
		CompletionTokens: c.CompletionTokens,
		Cost:             c.Cost,
		ElapsedMS:        c.Elapsed.Milliseconds(),
		Error:            c.Err,
		CreatedAt:        c.At,
	}})
}

// RecordRun queues a finished run.
func (r *Recorder) RecordRun(run Run) {
	r.enqueue(recordItem{run: &run})
}

func (r *Recorder) enqueue(it recordItem) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.queue <- it:
	default:
		slog.Warn("store: audit queue full, dropping record")
	}
}

func (r *Recorder) loop() {
	defer close(r.done)
	for it := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		var err error
		switch {
		case it.call != nil:
			_, err = r.store.RecordBranchCall(ctx, *it.call)
		case it.run != nil:
			err = r.store.RecordRun(ctx, *it.run)
		}
		cancel()
		if err != nil {
			slog.Warn("store: audit write failed", "error", err)
		}
	}
}

// Close stops accepting records, drains the queue and waits for the
// writer to exit. It does not close the store.
func (r *Recorder) Close() {
	r.once.Do(func() {
		r.mu.Lock()
		r.closed = true
		close(r.queue)
		r.mu.Unlock()
		<-r.done
	})
}
