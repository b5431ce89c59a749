// Package transition implements the state-transition optimizer: for each
// subresource it walks the pass graph in order and emits the minimal
// sequence of state transitions that leaves the subresource in a state
// containing every pass's requested mask at that pass's entry.
package transition

import (
	"github.com/spaghettifunk/rendergraph/passgraph"
	"github.com/spaghettifunk/rendergraph/scheduling"
)

// use is one (passIndex, requestedMask) pair collected while walking the
// graph for a single subresource.
type use struct {
	passIndex int
	pass      string
	mask      passgraph.ResourceState
}

// Optimize computes the minimal transition sequence for every subresource
// of info, against the pass order given by graph. It mutates info in
// place: info.OneTimeTransition and each PassInfo's SubresourceInfo's
// OptimizedTransition.
func Optimize(graph *passgraph.Graph, info *scheduling.Info) {
	for _, sub := range info.SubresourceIndices() {
		optimizeSubresource(graph, info, sub)
	}
}

func optimizeSubresource(graph *passgraph.Graph, info *scheduling.Info, subresource int) {
	uses := collectUses(graph, info, subresource)
	if len(uses) == 0 {
		return
	}

	current := passgraph.AccessCommon
	// priorReads is the read-only state sustained since the last emitted
	// transition, used as the From of a write that follows it. A read not
	// already covered gets its own transition to that read's mask alone,
	// so differing reads are not merged into one compound state.
	var priorReads passgraph.ResourceState
	inReadRun := false

	for i, u := range uses {
		if i == 0 {
			info.OneTimeTransition = scheduling.OptionalTransition{
				Transition: scheduling.Transition{From: passgraph.AccessCommon, To: u.mask},
				Present:    true,
			}
			current = u.mask
			if u.mask.IsReadOnly() {
				priorReads = u.mask
				inReadRun = true
			} else {
				priorReads = 0
				inReadRun = false
			}
			continue
		}

		if isSubset(u.mask, current) {
			// Read-state coalescing: the requested mask is already
			// satisfied by the sustained state, emit nothing.
			if u.mask.IsReadOnly() && inReadRun {
				priorReads |= u.mask
				current |= priorReads
			}
			continue
		}

		from := current
		if inReadRun && !u.mask.IsReadOnly() {
			// Tie-break: a write following a compound read state
			// transitions from the union of prior reads.
			from = priorReads
		}

		setOptimizedTransition(info, u.pass, subresource, scheduling.Transition{From: from, To: u.mask})
		current = u.mask

		if u.mask.IsReadOnly() {
			priorReads = u.mask
			inReadRun = true
		} else {
			priorReads = 0
			inReadRun = false
		}
	}
}

func collectUses(graph *passgraph.Graph, info *scheduling.Info, subresource int) []use {
	var uses []use
	graph.Each(func(p *passgraph.Pass) {
		pi, ok := info.Passes[p.Name]
		if !ok {
			return
		}
		si, ok := pi.Subresources[subresource]
		if !ok {
			return
		}
		uses = append(uses, use{passIndex: p.Index, pass: p.Name, mask: si.RequestedState})
	})
	return uses
}

func setOptimizedTransition(info *scheduling.Info, pass string, subresource int, t scheduling.Transition) {
	pi, ok := info.Passes[pass]
	if !ok {
		return
	}
	si, ok := pi.Subresources[subresource]
	if !ok {
		return
	}
	si.OptimizedTransition = scheduling.OptionalTransition{Transition: t, Present: true}
}

func isSubset(mask, of passgraph.ResourceState) bool {
	return mask&^of == 0
}
