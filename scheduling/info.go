package scheduling

import (
	"fmt"

	"github.com/spaghettifunk/rendergraph/core"
	"github.com/spaghettifunk/rendergraph/passgraph"
)

// SubresourceInfo carries the accumulated requested state mask for one
// subresource of one pass, plus optional overrides a pass may request.
type SubresourceInfo struct {
	RequestedState      passgraph.ResourceState
	ShaderVisibleFormat PixelFormat
	HasFormatOverride   bool
	DescriptorRequested bool

	// Filled in by the state-transition optimizer.
	OptimizedTransition OptionalTransition
}

// Transition is a from-to state change.
type Transition struct {
	From, To passgraph.ResourceState
}

// OptionalTransition distinguishes "no transition emitted" from an
// emitted Transition, whatever its From and To masks are.
type OptionalTransition struct {
	Transition Transition
	Present    bool
}

// PassInfo is the per-pass record inside a resource's scheduling info: one
// SubresourceInfo per subresource index touched by that pass.
type PassInfo struct {
	Subresources map[int]*SubresourceInfo
}

func newPassInfo() *PassInfo {
	return &PassInfo{Subresources: make(map[int]*SubresourceInfo)}
}

// Info is the mutable, per-resource scheduling record built during the
// scheduling phase of a frame and frozen before optimization and aliasing
// consume it read-only.
type Info struct {
	Name         string
	Aliases      []string
	Format       Format
	CanBeAliased bool
	Strategy     UploadStrategy

	Passes map[string]*PassInfo

	expectedStates passgraph.ResourceState

	// AliasingLifetime spans every pass index referencing this resource's
	// name or any of its aliases. Extended across aliases during
	// allocate_scheduled_resources.
	AliasingLifetime struct {
		First, Last int
		Valid       bool
	}

	// Populated by the optimizer: the single Common→firstUse transition
	// emitted once per resource per layout epoch.
	OneTimeTransition OptionalTransition

	// Populated by the aliaser.
	HeapOffset           uint64
	NeedsAliasingBarrier bool
}

// New creates a scheduling info for name with the given declared format.
// CanBeAliased defaults to true unless strategy disables it.
func New(name string, format Format, strategy UploadStrategy) *Info {
	return &Info{
		Name:         name,
		Format:       format,
		Strategy:     strategy,
		CanBeAliased: !strategy.DisablesAliasing(),
		Passes:       make(map[string]*PassInfo),
	}
}

// AddNameAlias registers alias as another name resolving to this info.
func (info *Info) AddNameAlias(alias string) {
	for _, a := range info.Aliases {
		if a == alias {
			return
		}
	}
	info.Aliases = append(info.Aliases, alias)
}

// RequestSubresourceUsage merges kind into the requested state mask for
// (pass, subresource), OR-ing with any prior request the same pass made
// against the same subresource (idempotent accumulation). A format
// override is only accepted when the declared format is typeless.
func (info *Info) RequestSubresourceUsage(pass string, subresource int, kind passgraph.AccessKind, shaderVisibleFormat *PixelFormat) error {
	if kind == passgraph.AccessWriteUnorderedAccess {
		tex, ok := info.Format.(TextureFormat)
		if ok && !tex.IsUnorderedAccess {
			return fmt.Errorf("scheduling: %q subresource %d: %w", info.Name, subresource, core.ErrIncompatibleUsage)
		}
	}

	pi, ok := info.Passes[pass]
	if !ok {
		pi = newPassInfo()
		info.Passes[pass] = pi
	}
	si, ok := pi.Subresources[subresource]
	if !ok {
		si = &SubresourceInfo{}
		pi.Subresources[subresource] = si
	}
	si.RequestedState |= passgraph.ResourceState(kind)

	if shaderVisibleFormat != nil {
		if !info.Format.IsTypeless() {
			return fmt.Errorf("scheduling: %q subresource %d: shader-visible format override on non-typeless format: %w", info.Name, subresource, core.ErrIncompatibleUsage)
		}
		si.ShaderVisibleFormat = *shaderVisibleFormat
		si.HasFormatOverride = true
		// A typed view over a typeless resource needs its own descriptor.
		si.DescriptorRequested = true
	}

	info.addExpectedStates(passgraph.ResourceState(kind))
	return nil
}

// addExpectedStates lifts mask into the resource-wide expected-states
// accumulator, used to size backend allocation capability.
func (info *Info) addExpectedStates(mask passgraph.ResourceState) {
	info.expectedStates |= mask
}

// AddExpectedStates is the exported form used when a caller wants to widen
// a resource's expected-states mask without going through a specific pass
// request (e.g. the transfer test's union-with-previous-frame step).
func (info *Info) AddExpectedStates(mask passgraph.ResourceState) {
	info.addExpectedStates(mask)
}

// ApplyExpectedStates returns the accumulated expected-states mask, which
// conditions backend allocation capability from this accumulator.
func (info *Info) ApplyExpectedStates() passgraph.ResourceState {
	return info.expectedStates
}

// ExtendAliasingLifetime widens info's aliasing lifetime to include
// [first,last], used both for the resource's own timeline and for each of
// its aliases' timelines during allocate_scheduled_resources.
func (info *Info) ExtendAliasingLifetime(first, last int) {
	if !info.AliasingLifetime.Valid {
		info.AliasingLifetime.First = first
		info.AliasingLifetime.Last = last
		info.AliasingLifetime.Valid = true
		return
	}
	if first < info.AliasingLifetime.First {
		info.AliasingLifetime.First = first
	}
	if last > info.AliasingLifetime.Last {
		info.AliasingLifetime.Last = last
	}
}

// SubresourceIndices returns the sorted set of subresource indices any
// pass declared usage against, used by the optimizer to iterate per
// subresource.
func (info *Info) SubresourceIndices() []int {
	seen := make(map[int]bool)
	for _, pi := range info.Passes {
		for sub := range pi.Subresources {
			seen[sub] = true
		}
	}
	indices := make([]int, 0, len(seen))
	for sub := range seen {
		indices = append(indices, sub)
	}
	for i := 1; i < len(indices); i++ {
		for j := i; j > 0 && indices[j-1] > indices[j]; j-- {
			indices[j-1], indices[j] = indices[j], indices[j-1]
		}
	}
	return indices
}
