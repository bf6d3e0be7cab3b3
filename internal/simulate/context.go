// Package simulate runs destination choice: each chooser is scored against a
// set of candidate zones with a utility specification, utilities become
// probabilities, and a seeded Monte Carlo draw picks the zone. Inputs (spec
// table, skims, zone data) are read-only, so choosers evaluate in parallel
// without locking.
package simulate

import (
	"github.com/transitlab/destchoice/internal/skim"
)

// Chooser is one person or household choosing a destination zone.
type Chooser struct {
	ID       int64
	HomeZone int
	Fields   map[string]float64
}

// Alternative is one candidate destination zone with its attributes,
// including the size_term field expressions reference.
type Alternative struct {
	Zone   int
	Fields map[string]float64
}

// Choice is the chosen zone for one chooser. Zone is NoChoice for choosers
// outside every segment.
type Choice struct {
	ChooserID int64
	Zone      int
}

// NoChoice marks a chooser that did not participate in any segment.
const NoChoice = -1

// pairContext is the expression context for one (chooser, alternative) pair.
// Field resolution order follows the interaction-dataset merge: alternative
// attributes shadow chooser attributes, which shadow model constants.
type pairContext struct {
	chooser   *Chooser
	alt       *Alternative
	constants map[string]float64
	pair      skim.Pair
}

func (c pairContext) Field(name string) (float64, bool) {
	if v, ok := c.alt.Fields[name]; ok {
		return v, true
	}
	if v, ok := c.chooser.Fields[name]; ok {
		return v, true
	}
	v, ok := c.constants[name]
	return v, ok
}

func (c pairContext) Skim(name string) (float64, bool) {
	return c.pair.Skim(name)
}
