// Package branch defines the taxonomy branch classifiers: one descriptor per
// branch and a Classifier that runs a descriptor against the inference
// gateway.
package branch

import (
	"fmt"
	"slices"
	"time"

	"github.com/brunobiangulo/vistag/extract"
	"github.com/brunobiangulo/vistag/taxonomy"
)

// ID identifies a branch. IDs index fixed-size per-run arrays.
type ID int

const (
	Subject ID = iota
	Portrait
	Clothing
	Pet
	Food
	Scenery
	Scene

	// Count is the number of branches.
	Count int = iota
)

var idNames = [Count]string{"subject", "portrait", "clothing", "pet", "food", "scenery", "scene"}

func (id ID) String() string {
	if id < 0 || int(id) >= Count {
		return fmt.Sprintf("branch(%d)", int(id))
	}
	return idNames[id]
}

// ParseID maps a branch name back to its ID.
func ParseID(name string) (ID, bool) {
	i := slices.Index(idNames[:], name)
	if i < 0 {
		return 0, false
	}
	return ID(i), true
}

// All returns every branch ID in declaration order.
func All() []ID {
	ids := make([]ID, Count)
	for i := range ids {
		ids[i] = ID(i)
	}
	return ids
}

// Status is the terminal state of a branch in one run.
type Status int

const (
	StatusPending Status = iota
	StatusDone
	StatusSkipped
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusDone:
		return "done"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Outcome is what one branch produced for one image. Skipped and failed
// outcomes carry an empty mapping.
type Outcome struct {
	Branch           ID
	Status           Status
	Mapping          extract.Mapping
	PromptTokens     int
	CompletionTokens int
	Cost             float64
	Elapsed          time.Duration
	Err              string
}

// Pending returns the initial outcome for a branch.
func Pending(id ID) Outcome {
	return Outcome{Branch: id, Status: StatusPending, Mapping: extract.Mapping{}}
}

// Skipped returns the outcome of a branch whose precondition failed.
func Skipped(id ID) Outcome {
	return Outcome{Branch: id, Status: StatusSkipped, Mapping: extract.Mapping{}}
}

// Terminal reports whether the branch has finished.
func (o Outcome) Terminal() bool { return o.Status != StatusPending }

// Price is the cost per 1000 tokens, in yuan.
type Price struct {
	Input  float64 `json:"input" yaml:"input"`
	Output float64 `json:"output" yaml:"output"`
}

// DefaultPrice matches the per-branch rate of the hosted VL models.
var DefaultPrice = Price{Input: 0.0012, Output: 0.0036}

// Cost prices one call. Negative counts are treated as zero.
func (p Price) Cost(promptTokens, completionTokens int) float64 {
	in := float64(max(promptTokens, 0)) / 1000 * p.Input
	out := float64(max(completionTokens, 0)) / 1000 * p.Output
	return in + out
}

// Branch describes one taxonomy branch. Descriptors are immutable once
// built and shared across runs.
type Branch struct {
	ID ID
	// Prefix is prepended to category/value when building tags.
	Prefix []string
	// Requires names the subject that must be detected for the branch to
	// run. Empty means the branch always runs.
	Requires    string
	Categories  []taxonomy.Category
	Instruction string
	Schema      map[string]any
}

// Gated reports whether the branch depends on subject classification.
func (b *Branch) Gated() bool { return b.Requires != "" }

// Eligible reports whether the branch should run given detected subjects.
func (b *Branch) Eligible(subjects []string) bool {
	return !b.Gated() || slices.Contains(subjects, b.Requires)
}

// Owns reports whether category belongs to this branch.
func (b *Branch) Owns(category string) bool {
	return slices.ContainsFunc(b.Categories, func(c taxonomy.Category) bool {
		return c.Name == category
	})
}

// Tags builds candidate tags from a mapping, in category order. Candidates
// are not validated here.
func (b *Branch) Tags(m extract.Mapping) []string {
	var out []string
	for _, c := range b.Categories {
		for _, v := range m[c.Name] {
			seg := make([]string, 0, len(b.Prefix)+2)
			seg = append(seg, b.Prefix...)
			seg = append(seg, c.Name, v)
			out = append(out, taxonomy.Join(seg...))
		}
	}
	return out
}
