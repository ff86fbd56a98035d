package pipeline

import (
	"github.com/brunobiangulo/vistag/branch"
	"github.com/brunobiangulo/vistag/taxonomy"
)

// Rule is a cross-branch correction applied before tags are built. When
// sees the run state and the working snapshot; Then edits the snapshot.
type Rule struct {
	Name string
	When func(s *RunState, snap Snapshot) bool
	Then func(snap Snapshot)
}

// BystandersImplyMultiple forces the portrait person count to "multiple"
// when the scene branch saw bystanders.
var BystandersImplyMultiple = Rule{
	Name: "bystanders-imply-multiple",
	When: func(s *RunState, snap Snapshot) bool {
		if !s.Done(branch.Scene) || !s.Done(branch.Portrait) {
			return false
		}
		if !snap[branch.Scene].Has(taxonomy.CategoryImageQuality, taxonomy.ValueBystanders) {
			return false
		}
		_, reported := snap[branch.Portrait][taxonomy.CategoryPersonCount]
		return reported
	},
	Then: func(snap Snapshot) {
		snap[branch.Portrait][taxonomy.CategoryPersonCount] = []string{taxonomy.ValueMultiPerson}
	},
}

// DefaultRules is the ordered correction list used by the engine.
func DefaultRules() []Rule {
	return []Rule{BystandersImplyMultiple}
}
