// Package executor drives per-frame execution: begin-frame, per-pass
// (set barriers, invoke the opaque pass callback, flush UAV writes), and
// end-frame submission. It has no knowledge of aliasing beyond the
// barrier lists the storage and transition packages already computed.
package executor

import (
	"fmt"
	"sort"

	"github.com/spaghettifunk/rendergraph/backend"
	"github.com/spaghettifunk/rendergraph/core"
	"github.com/spaghettifunk/rendergraph/passgraph"
	"github.com/spaghettifunk/rendergraph/scheduling"
	"github.com/spaghettifunk/rendergraph/storage"
)

// RenderContext is handed to a pass callback: the currently bound
// resources by name, and the command list the pass should record
// draw/dispatch work into.
type RenderContext struct {
	PassName    string
	CommandList backend.CommandList

	store *storage.Store
}

// Handle returns the GPU handle bound to name for the currently executing
// frame.
func (rc *RenderContext) Handle(name string) (backend.ResourceHandle, error) {
	return rc.store.Handle(name)
}

// Descriptor returns the typed-view descriptor bound to name at
// subresource, available only when the pass scheduled the read through a
// shader-visible format override.
func (rc *RenderContext) Descriptor(name string, subresource int) (backend.DescriptorHandle, error) {
	return rc.store.Descriptor(name, subresource)
}

// PassCallback is the opaque per-pass callback the core invokes in graph
// order; it issues draws/dispatches through ctx.CommandList via the
// backend.
type PassCallback func(ctx *RenderContext) error

// Executor drives execution of a single frame that storage.Store has
// already scheduled and allocated.
type Executor struct {
	capability backend.Capability
	store      *storage.Store
	clock      *core.Clock

	list backend.CommandList
}

// New creates an Executor bound to capability and store. store must have
// already completed scheduling and AllocateScheduledResources for the
// frame the executor is about to run.
func New(capability backend.Capability, store *storage.Store) *Executor {
	return &Executor{capability: capability, store: store, clock: core.NewClock()}
}

// BeginFrame opens a direct command list and, if this frame started a new
// layout epoch, emits every resource's one-time Common->first-use
// transition in a single barrier batch before any pass runs.
func (e *Executor) BeginFrame(frameIndex int) error {
	e.clock.Start()
	core.MetricsInitialize()

	list, err := e.capability.NewCommandList(backend.CommandListDirect)
	if err != nil {
		return fmt.Errorf("executor: begin_frame(%d): %w", frameIndex, core.NewBackendError(0, err))
	}
	e.list = list

	if !e.store.LayoutChanged() {
		return nil
	}

	var barriers []backend.Barrier
	e.store.EachPrimary(func(name string, info *scheduling.Info) {
		if !info.OneTimeTransition.Present {
			return
		}
		handle, err := e.store.Handle(name)
		if err != nil {
			core.LogError("executor: begin_frame: %v", err)
			return
		}
		barriers = append(barriers, backend.Barrier{
			Resource: handle,
			From:     info.OneTimeTransition.Transition.From,
			To:       info.OneTimeTransition.Transition.To,
		})
	})
	if len(barriers) == 0 {
		return nil
	}
	if err := e.capability.RecordBarrier(e.list, barriers...); err != nil {
		return fmt.Errorf("executor: begin_frame(%d) one-time transitions: %w", frameIndex, core.NewBackendError(0, err))
	}
	return nil
}

// RunPass emits name's precomputed barrier list, invokes callback, then
// emits a UAV flush barrier for every subresource name's resources wrote
// in unordered-access state this pass.
func (e *Executor) RunPass(name string, callback PassCallback) error {
	if err := e.emitPassBarriers(name); err != nil {
		return err
	}

	ctx := &RenderContext{PassName: name, CommandList: e.list, store: e.store}
	if err := callback(ctx); err != nil {
		return fmt.Errorf("executor: pass %q: %w", name, err)
	}

	return e.emitUAVFlush(name)
}

func (e *Executor) emitPassBarriers(pass string) error {
	passIndex, err := e.store.Graph().IndexOfPass(pass)
	if err != nil {
		return fmt.Errorf("executor: pass %q: %w", pass, err)
	}

	var barriers []backend.Barrier
	var aliasing []backend.AliasingBarrier

	e.store.EachPrimary(func(resourceName string, info *scheduling.Info) {
		pi, ok := info.Passes[pass]
		if !ok {
			return
		}
		for _, sub := range sortedSubresources(pi) {
			si := pi.Subresources[sub]
			if !si.OptimizedTransition.Present {
				continue
			}
			handle, err := e.store.Handle(resourceName)
			if err != nil {
				core.LogError("executor: pass %q: %v", pass, err)
				continue
			}
			barriers = append(barriers, backend.Barrier{
				Resource:    handle,
				Subresource: sub,
				From:        si.OptimizedTransition.Transition.From,
				To:          si.OptimizedTransition.Transition.To,
			})
		}
		// The heap region changes meaning exactly once, before the
		// resource's first using pass; later passes see it already bound.
		if info.NeedsAliasingBarrier && info.AliasingLifetime.Valid && info.AliasingLifetime.First == passIndex {
			handle, err := e.store.Handle(resourceName)
			if err == nil {
				aliasing = append(aliasing, backend.AliasingBarrier{
					Heap:   e.store.HeapFor(info),
					Offset: info.HeapOffset,
					After:  handle,
				})
			}
		}
	})

	if len(aliasing) > 0 {
		for _, ab := range aliasing {
			if err := e.capability.RecordAliasingBarrier(e.list, ab); err != nil {
				return fmt.Errorf("executor: pass %q aliasing barrier: %w", pass, core.NewBackendError(0, err))
			}
		}
	}
	if len(barriers) == 0 {
		return nil
	}
	if err := e.capability.RecordBarrier(e.list, barriers...); err != nil {
		return fmt.Errorf("executor: pass %q barriers: %w", pass, core.NewBackendError(0, err))
	}
	return nil
}

func (e *Executor) emitUAVFlush(pass string) error {
	var barriers []backend.Barrier
	e.store.EachPrimary(func(resourceName string, info *scheduling.Info) {
		pi, ok := info.Passes[pass]
		if !ok {
			return
		}
		for _, sub := range sortedSubresources(pi) {
			si := pi.Subresources[sub]
			if si.RequestedState&passgraph.ResourceState(passgraph.AccessWriteUnorderedAccess) == 0 {
				continue
			}
			handle, err := e.store.Handle(resourceName)
			if err != nil {
				continue
			}
			barriers = append(barriers, backend.Barrier{
				Resource:    handle,
				Subresource: sub,
				From:        passgraph.AccessWriteUnorderedAccess,
				To:          passgraph.AccessWriteUnorderedAccess,
			})
		}
	})
	if len(barriers) == 0 {
		return nil
	}
	return e.capability.RecordBarrier(e.list, barriers...)
}

func sortedSubresources(pi *scheduling.PassInfo) []int {
	subs := make([]int, 0, len(pi.Subresources))
	for sub := range pi.Subresources {
		subs = append(subs, sub)
	}
	sort.Ints(subs)
	return subs
}

// EndFrame submits the frame's command list and signals the fence,
// updating frame-time metrics from the executor's clock.
func (e *Executor) EndFrame(completedFrameIndex int) (uint64, error) {
	fence, err := e.capability.Submit(e.list)
	if err != nil {
		return 0, fmt.Errorf("executor: end_frame(%d): %w", completedFrameIndex, core.NewBackendError(0, err))
	}
	e.clock.Update()
	core.MetricsUpdate(e.clock.Elapsed() / 1e9)
	return fence, nil
}
