// Package storage owns the per-frame scheduling infos and GPU resources,
// coordinates the scheduling -> optimization -> allocation sequence, and
// decides per frame whether previous-frame GPU resources may be
// transferred or must be reallocated.
package storage

import (
	"fmt"
	"sort"

	"github.com/spaghettifunk/rendergraph/backend"
	"github.com/spaghettifunk/rendergraph/core"
	"github.com/spaghettifunk/rendergraph/passgraph"
	"github.com/spaghettifunk/rendergraph/scheduling"
)

// creationRequest is a queued create(name, format[, cloneFrom]) call from
// the scheduling phase, materialized in two passes: primary creations
// first, then clones.
type creationRequest struct {
	name         string
	format       scheduling.Format
	strategy     scheduling.UploadStrategy
	cloneFrom    string
	isClone      bool
	configurator func(*scheduling.Info) error
}

// useRequest is a queued use(name[, alias], configurator) call. pass is
// the pass active when the request was enqueued.
type useRequest struct {
	pass         string
	name         string
	configurator func(*scheduling.Info) error
}

// Frame holds one frame's scheduling state: resolved resources (keyed by
// every name and alias pointing at the owning *scheduling.Info), the
// alias map, and the allocated heaps once allocate_scheduled_resources
// has run.
type Frame struct {
	Graph     *passgraph.Graph
	Resources map[string]*scheduling.Info // every name/alias -> owning info
	Primary   map[string]bool             // primary (non-alias) names only
	AliasMap  map[string]string           // alias -> name it was registered against (not yet resolved)

	Heaps       map[scheduling.AliasingGroup]backend.HeapHandle
	Handles     map[string]backend.ResourceHandle   // primary name -> allocated/transferred GPU handle
	Descriptors map[string]backend.DescriptorHandle // "name/subresource" -> typed-view descriptor

	creations []creationRequest
	uses      []useRequest

	layoutChanged bool
}

func newFrame() *Frame {
	return &Frame{
		Resources: make(map[string]*scheduling.Info),
		Primary:   make(map[string]bool),
		AliasMap:  make(map[string]string),
		Heaps:       make(map[scheduling.AliasingGroup]backend.HeapHandle),
		Handles:     make(map[string]backend.ResourceHandle),
		Descriptors: make(map[string]backend.DescriptorHandle),
	}
}

// Store orchestrates the current and previous frame's scheduling state.
// It is the single render-thread-owned object passes interact with
// through the pass-author surface (see passauthor.go).
type Store struct {
	capability backend.Capability

	current  *Frame
	previous *Frame

	currentPass string
}

// New creates a Store bound to capability, the backend's capability
// object taken by borrow for the lifetime of every frame the store
// schedules.
func New(capability backend.Capability) *Store {
	return &Store{capability: capability, current: newFrame(), previous: newFrame()}
}

// BeginFrame swaps the previous and current frame buffers: the prior
// "current" becomes "previous" (read-only during the transfer test), and
// a fresh frame is opened against graph.
func (s *Store) BeginFrame(graph *passgraph.Graph) {
	s.previous = s.current
	s.current = newFrame()
	s.current.Graph = graph
	s.currentPass = ""
}

// SetCurrentPass marks name as the pass whose setup callback is now
// running, so pass-author calls know which PassInfo to mutate. The caller
// (the host program's scheduling loop) calls this once per pass,
// in graph order, before invoking that pass's setup closure.
func (s *Store) SetCurrentPass(name string) {
	s.currentPass = name
}

// CurrentPass returns the pass currently being scheduled.
func (s *Store) CurrentPass() string {
	return s.currentPass
}

// LayoutChanged reports whether the most recent
// AllocateScheduledResources call detected a memory layout change.
func (s *Store) LayoutChanged() bool {
	return s.current.layoutChanged
}

// Info returns the (alias-resolved) scheduling info for name in the
// current frame, or an UnknownResource error.
func (s *Store) Info(name string) (*scheduling.Info, error) {
	info, ok := s.current.Resources[name]
	if !ok {
		return nil, fmt.Errorf("storage: %q: %w", name, core.ErrUnknownResource)
	}
	return info, nil
}

// resolveAlias follows aliasMap[alias] transitively to its primary name,
// failing with Misconfiguration on a cycle.
func resolveAlias(aliasMap map[string]string, name string) (string, error) {
	seen := make(map[string]bool)
	cur := name
	for {
		next, ok := aliasMap[cur]
		if !ok {
			return cur, nil
		}
		if seen[cur] {
			return "", fmt.Errorf("storage: alias chain from %q: %w", name, core.ErrMisconfiguration)
		}
		seen[cur] = true
		cur = next
	}
}

// EndScheduling materializes every queued creation and use request for
// the current frame: primary creations, then secondary (clone)
// creations, then creator configurators, then user configurators, in
// that order.
func (s *Store) EndScheduling() error {
	f := s.current

	// Primary creations first.
	for _, req := range f.creations {
		if req.isClone {
			continue
		}
		if _, exists := f.Resources[req.name]; exists {
			return fmt.Errorf("storage: %q: %w", req.name, core.ErrDuplicateCreation)
		}
		info := scheduling.New(req.name, req.format, req.strategy)
		f.Resources[req.name] = info
		f.Primary[req.name] = true
	}

	// Secondary (clone) creations: format copied from the source.
	for _, req := range f.creations {
		if !req.isClone {
			continue
		}
		source, ok := f.Resources[req.cloneFrom]
		if !ok {
			return fmt.Errorf("storage: clone %q from %q: %w", req.name, req.cloneFrom, core.ErrMissingDependency)
		}
		if _, exists := f.Resources[req.name]; exists {
			return fmt.Errorf("storage: %q: %w", req.name, core.ErrDuplicateCreation)
		}
		info := scheduling.New(req.name, source.Format, source.Strategy)
		f.Resources[req.name] = info
		f.Primary[req.name] = true
	}

	// Resolve every alias registered via ReadAlias against its primary
	// resource, registering the alias on the resolved info.
	for alias, target := range f.AliasMap {
		resolved, err := resolveAlias(f.AliasMap, target)
		if err != nil {
			return err
		}
		info, ok := f.Resources[resolved]
		if !ok {
			return fmt.Errorf("storage: alias %q target %q: %w", alias, resolved, core.ErrMissingDependency)
		}
		info.AddNameAlias(alias)
		f.Resources[alias] = info
	}

	// Creator configurators, then user configurators, each in
	// registration order. Any configurator failure aborts the frame.
	for _, req := range f.creations {
		if req.configurator == nil {
			continue
		}
		info, err := s.resolvedInfoFor(req.name)
		if err != nil {
			return err
		}
		if err := req.configurator(info); err != nil {
			return err
		}
	}
	for _, use := range f.uses {
		info, err := s.resolvedInfoFor(use.name)
		if err != nil {
			return err
		}
		if err := use.configurator(info); err != nil {
			return err
		}
	}

	return nil
}

// Handle returns the current frame's allocated or transferred GPU handle
// for name, resolving aliases the same way Info does.
func (s *Store) Handle(name string) (backend.ResourceHandle, error) {
	info, err := s.Info(name)
	if err != nil {
		return nil, err
	}
	handle, ok := s.current.Handles[info.Name]
	if !ok {
		return nil, fmt.Errorf("storage: %q: not yet allocated: %w", name, core.ErrUnknownResource)
	}
	return handle, nil
}

// Graph returns the current frame's pass graph.
func (s *Store) Graph() *passgraph.Graph {
	return s.current.Graph
}

// EachPrimary calls fn once per primary (non-alias) resource name and its
// scheduling info in the current frame, in sorted-name order so barrier
// emission stays deterministic across runs.
func (s *Store) EachPrimary(fn func(name string, info *scheduling.Info)) {
	for _, name := range s.primaryNames() {
		fn(name, s.current.Resources[name])
	}
}

func (s *Store) primaryNames() []string {
	names := make([]string, 0, len(s.current.Primary))
	for name := range s.current.Primary {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HeapFor returns the current frame's heap handle backing info's aliasing
// group, or nil when no heap was allocated for that group this epoch.
func (s *Store) HeapFor(info *scheduling.Info) backend.HeapHandle {
	return s.current.Heaps[info.Format.AliasingGroup(s.capability.Capabilities())]
}

// Descriptor returns the typed-view descriptor allocated for name at
// subresource, resolving aliases first. Descriptors exist only for
// subresources scheduled through a shader-visible format override.
func (s *Store) Descriptor(name string, subresource int) (backend.DescriptorHandle, error) {
	info, err := s.Info(name)
	if err != nil {
		return nil, err
	}
	d, ok := s.current.Descriptors[descriptorKey(info.Name, subresource)]
	if !ok {
		return nil, fmt.Errorf("storage: %q subresource %d: no descriptor allocated: %w", name, subresource, core.ErrUnknownResource)
	}
	return d, nil
}

func descriptorKey(name string, subresource int) string {
	return fmt.Sprintf("%s/%d", name, subresource)
}

func (s *Store) resolvedInfoFor(name string) (*scheduling.Info, error) {
	info, ok := s.current.Resources[name]
	if !ok {
		return nil, fmt.Errorf("storage: %q: %w", name, core.ErrUnknownResource)
	}
	return info, nil
}
