// Package pipeline schedules branch classifiers for one image and
// aggregates their outcomes.
//
// A Graph is built once per process and shared. Each run gets its own
// RunState; ungated branches start immediately, gated branches are
// scheduled or skipped as soon as the gate branch finishes, and the
// aggregator runs once after every branch is terminal.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/brunobiangulo/vistag/branch"
	"github.com/brunobiangulo/vistag/taxonomy"
)

// Runner executes a single branch. *branch.Classifier satisfies it.
type Runner interface {
	Run(ctx context.Context, b *branch.Branch, in branch.Input) branch.Outcome
}

// Graph is the immutable task graph.
type Graph struct {
	gate      *branch.Branch
	ungated   []*branch.Branch // includes gate
	gated     []*branch.Branch
	absent    []branch.ID
	runner    Runner
	aggregate *Aggregator
}

// NewGraph validates the branch set and builds the graph. gate names the
// branch whose outcome decides the gated branches; it must itself be
// ungated.
func NewGraph(reg *taxonomy.Registry, runner Runner, gate branch.ID, branches []*branch.Branch, rules []Rule) (*Graph, error) {
	if runner == nil {
		return nil, fmt.Errorf("pipeline: nil runner")
	}
	g := &Graph{runner: runner}
	var seen [branch.Count]bool
	for _, b := range branches {
		if b == nil || b.ID < 0 || int(b.ID) >= branch.Count {
			return nil, fmt.Errorf("pipeline: invalid branch %v", b)
		}
		if seen[b.ID] {
			return nil, fmt.Errorf("pipeline: duplicate branch %s", b.ID)
		}
		seen[b.ID] = true

		if b.Gated() {
			if !reg.Root().Allows(b.Requires) {
				return nil, fmt.Errorf("pipeline: branch %s requires unknown subject %q", b.ID, b.Requires)
			}
			g.gated = append(g.gated, b)
			continue
		}
		g.ungated = append(g.ungated, b)
		if b.ID == gate {
			g.gate = b
		}
	}
	if g.gate == nil {
		return nil, fmt.Errorf("pipeline: gate branch %s missing or gated", gate)
	}
	for _, id := range branch.All() {
		if !seen[id] {
			g.absent = append(g.absent, id)
		}
	}
	g.aggregate = NewAggregator(reg, branches, rules)
	return g, nil
}

// Aggregator returns the graph's aggregator.
func (g *Graph) Aggregator() *Aggregator { return g.aggregate }

// Run executes every eligible branch for s and aggregates. Branches whose
// subject is not detected are marked skipped without a call. Run returns
// once s is in PhaseDone.
func (g *Graph) Run(ctx context.Context, s *RunState) {
	s.Phase = PhaseRunning
	start := time.Now()
	for _, id := range g.absent {
		s.Outcomes[id] = branch.Skipped(id)
	}

	var eg errgroup.Group
	for _, b := range g.ungated {
		eg.Go(func() error {
			s.Outcomes[b.ID] = g.runner.Run(ctx, b, branch.Input{RunID: s.ID, Image: s.Image})
			if b == g.gate {
				g.fanOut(ctx, &eg, s)
			}
			return nil
		})
	}
	// Branch functions never return errors; Wait is only the join barrier.
	_ = eg.Wait()

	g.aggregate.Aggregate(s)

	slog.Info("pipeline: run complete",
		"run_id", s.ID,
		"tags", len(s.Tags),
		"cost", s.TotalCost,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
}

// fanOut schedules or skips the gated branches once the gate is terminal.
// It runs inside a group goroutine, so Wait cannot return before these
// are added.
func (g *Graph) fanOut(ctx context.Context, eg *errgroup.Group, s *RunState) {
	subjects := subjectsOf(s.Outcomes[g.gate.ID])
	for _, b := range g.gated {
		if !b.Eligible(subjects) {
			s.Outcomes[b.ID] = branch.Skipped(b.ID)
			continue
		}
		in := branch.Input{RunID: s.ID, Image: s.Image, Subjects: subjects}
		eg.Go(func() error {
			s.Outcomes[b.ID] = g.runner.Run(ctx, b, in)
			return nil
		})
	}
}

func subjectsOf(o branch.Outcome) []string {
	if o.Status != branch.StatusDone {
		return nil
	}
	var out []string
	for _, vs := range o.Mapping {
		out = append(out, vs...)
	}
	return out
}
