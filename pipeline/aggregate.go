package pipeline

import (
	"log/slog"
	"slices"
	"time"

	"github.com/brunobiangulo/vistag/branch"
	"github.com/brunobiangulo/vistag/taxonomy"
)

// Aggregator turns the joined branch outcomes into the final tag list.
type Aggregator struct {
	registry *taxonomy.Registry
	branches [branch.Count]*branch.Branch
	rules    []Rule
}

// NewAggregator creates an aggregator. Rules are applied in order.
func NewAggregator(reg *taxonomy.Registry, branches []*branch.Branch, rules []Rule) *Aggregator {
	a := &Aggregator{registry: reg, rules: slices.Clone(rules)}
	for _, b := range branches {
		a.branches[b.ID] = b
	}
	return a
}

// Tags computes the validated, deduplicated, sorted tags for a run without
// touching the run state.
func (a *Aggregator) Tags(s *RunState) []string {
	snap := s.snapshot()
	for _, r := range a.rules {
		if r.When(s, snap) {
			slog.Debug("pipeline: correction applied", "rule", r.Name, "run_id", s.ID)
			r.Then(snap)
		}
	}

	seen := make(map[string]bool)
	tags := []string{}
	for id, b := range a.branches {
		if b == nil {
			continue
		}
		for _, tag := range b.Tags(snap[id]) {
			if seen[tag] {
				continue
			}
			seen[tag] = true
			if !a.registry.Valid(tag) {
				slog.Debug("pipeline: dropping invalid tag", "tag", tag, "branch", b.ID, "run_id", s.ID)
				continue
			}
			tags = append(tags, tag)
		}
	}
	slices.Sort(tags)
	return tags
}

// Aggregate fills the tags, total cost and completion time of a joined run.
func (a *Aggregator) Aggregate(s *RunState) {
	s.Phase = PhaseAggregating
	s.Tags = a.Tags(s)

	var total float64
	for _, o := range s.Outcomes {
		total += o.Cost
	}
	s.TotalCost = total
	s.CompletedAt = time.Now()
	s.Phase = PhaseDone
}
