package pipeline

import (
	"fmt"
	"time"

	"github.com/brunobiangulo/vistag/branch"
	"github.com/brunobiangulo/vistag/extract"
)

// Phase is the lifecycle position of a run.
type Phase int

const (
	PhasePending Phase = iota
	PhaseRunning
	PhaseAggregating
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhasePending:
		return "PENDING"
	case PhaseRunning:
		return "RUNNING"
	case PhaseAggregating:
		return "AGGREGATING"
	case PhaseDone:
		return "DONE"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// RunState is the record for one image. Every field exists from creation;
// branch goroutines write only their own slot in Outcomes.
type RunState struct {
	ID    string
	Image string

	Phase    Phase
	Outcomes [branch.Count]branch.Outcome

	Tags        []string
	TotalCost   float64
	CreatedAt   time.Time
	CompletedAt time.Time
}

// NewRunState creates a pending run with every branch outcome pending.
func NewRunState(id, image string) *RunState {
	s := &RunState{
		ID:        id,
		Image:     image,
		Phase:     PhasePending,
		CreatedAt: time.Now(),
	}
	for _, b := range branch.All() {
		s.Outcomes[b] = branch.Pending(b)
	}
	return s
}

// Outcome returns the outcome for one branch.
func (s *RunState) Outcome(id branch.ID) branch.Outcome { return s.Outcomes[id] }

// Elapsed is completion minus creation, or zero while the run is open.
func (s *RunState) Elapsed() time.Duration {
	if s.CompletedAt.IsZero() {
		return 0
	}
	return s.CompletedAt.Sub(s.CreatedAt)
}

// Snapshot is a mutable copy of every branch mapping, keyed by branch.
// Correction rules operate on it.
type Snapshot [branch.Count]extract.Mapping

// Done reports whether a branch produced a usable mapping.
func (s *RunState) Done(id branch.ID) bool {
	return s.Outcomes[id].Status == branch.StatusDone
}

func (s *RunState) snapshot() Snapshot {
	var snap Snapshot
	for i, o := range s.Outcomes {
		if o.Mapping == nil {
			snap[i] = extract.Mapping{}
			continue
		}
		snap[i] = o.Mapping.Clone()
	}
	return snap
}
