// Package passgraph provides a stable total order over the render passes
// of a frame and the resource-usage timeline derived from it. Ordering is
// supplied by the caller; the graph never reorders passes.
package passgraph

import (
	"fmt"

	"github.com/spaghettifunk/rendergraph/core"
)

// AccessKind identifies the way a pass touches a subresource. Because
// values are disjoint bit flags, an AccessKind also doubles as a
// ResourceState mask: kinds can be OR'd together and subset-tested.
type AccessKind uint32

// ResourceState is a mask of one or more AccessKind bits describing the
// state a subresource is currently in, as opposed to a single requested
// kind. The two are the same underlying type; the alias exists so call
// sites read according to their intent.
type ResourceState = AccessKind

const (
	AccessReadShaderResource AccessKind = 1 << iota
	AccessWriteUnorderedAccess
	AccessWriteRenderTarget
	AccessWriteDepthStencil
	AccessReadDepthStencil
	AccessCopySource
	AccessCopyDestination
	AccessPresent
	AccessCommon
)

// IsReadOnly reports whether every bit set in kind is a read access, used by
// the state-transition optimizer to decide whether coalescing applies.
func (k AccessKind) IsReadOnly() bool {
	const readMask = AccessReadShaderResource | AccessReadDepthStencil | AccessCopySource | AccessPresent | AccessCommon
	return k&^readMask == 0
}

func (k AccessKind) String() string {
	switch k {
	case AccessReadShaderResource:
		return "ReadShaderResource"
	case AccessWriteUnorderedAccess:
		return "WriteUnorderedAccess"
	case AccessWriteRenderTarget:
		return "WriteRenderTarget"
	case AccessWriteDepthStencil:
		return "WriteDepthStencil"
	case AccessReadDepthStencil:
		return "ReadDepthStencil"
	case AccessCopySource:
		return "CopySource"
	case AccessCopyDestination:
		return "CopyDestination"
	case AccessPresent:
		return "Present"
	case AccessCommon:
		return "Common"
	default:
		return fmt.Sprintf("AccessKind(0x%x)", uint32(k))
	}
}

// Usage is a single (subresource, accessKind) declaration a pass makes
// against a named resource.
type Usage struct {
	Resource    string
	Subresource int
	Kind        AccessKind
}

// Pass is one node of the graph: a name, its index in graph order, and the
// usages it declares.
type Pass struct {
	Name   string
	Index  int
	Usages []Usage
}

// Graph is the ordered, caller-supplied sequence of passes for one frame.
// It owns only names and indices, never scheduling infos or resources, so
// that storage and passes can reference it without forming reference
// cycles.
type Graph struct {
	passes []*Pass
	byName map[string]int
}

// New builds a Graph from names in the order the caller intends to execute
// them. The order is assumed topologically valid; the graph does not
// verify or alter it.
func New(names ...string) *Graph {
	g := &Graph{byName: make(map[string]int, len(names))}
	for _, name := range names {
		g.addPass(name)
	}
	return g
}

func (g *Graph) addPass(name string) *Pass {
	idx := len(g.passes)
	p := &Pass{Name: name, Index: idx}
	g.passes = append(g.passes, p)
	g.byName[name] = idx
	return p
}

// Declare records that pass declares usage against resource. The pass must
// already exist in the graph (constructed via New or AddPass).
func (g *Graph) Declare(passName, resource string, subresource int, kind AccessKind) error {
	idx, ok := g.byName[passName]
	if !ok {
		return fmt.Errorf("passgraph: declare on %q: %w", passName, core.ErrUnknownPass)
	}
	g.passes[idx].Usages = append(g.passes[idx].Usages, Usage{Resource: resource, Subresource: subresource, Kind: kind})
	return nil
}

// AddPass appends a new pass at the end of the graph's current order and
// returns it, for callers building the graph incrementally rather than
// supplying the full name list up front.
func (g *Graph) AddPass(name string) *Pass {
	return g.addPass(name)
}

// IndexOfPass returns the stable index of name in graph order.
func (g *Graph) IndexOfPass(name string) (int, error) {
	idx, ok := g.byName[name]
	if !ok {
		return 0, fmt.Errorf("passgraph: %q: %w", name, core.ErrUnknownPass)
	}
	return idx, nil
}

// Pass returns the pass at index idx, or nil if out of range.
func (g *Graph) Pass(idx int) *Pass {
	if idx < 0 || idx >= len(g.passes) {
		return nil
	}
	return g.passes[idx]
}

// Len returns the number of passes in the graph.
func (g *Graph) Len() int {
	return len(g.passes)
}

// Each calls fn once per pass, in graph order.
func (g *Graph) Each(fn func(p *Pass)) {
	for _, p := range g.passes {
		fn(p)
	}
}

// ResourceUsageTimeline returns the min and max pass index of any pass that
// declares a usage against resource by the given name. ok is false if no
// pass references the resource.
func (g *Graph) ResourceUsageTimeline(resource string) (first, last int, ok bool) {
	first, last = -1, -1
	for _, p := range g.passes {
		for _, u := range p.Usages {
			if u.Resource != resource {
				continue
			}
			if first == -1 || p.Index < first {
				first = p.Index
			}
			if last == -1 || p.Index > last {
				last = p.Index
			}
		}
	}
	return first, last, first != -1
}
