// Package memsim is an in-process simulation of the backend.Capability
// contract: it never touches a real GPU API, only bookkeeping enough to
// exercise the render-graph core's scheduling, aliasing, and optimization
// logic in tests and the demo command.
package memsim

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/spaghettifunk/rendergraph/backend"
	"github.com/spaghettifunk/rendergraph/core"
	"github.com/spaghettifunk/rendergraph/scheduling"
)

type heapHandle struct {
	id   uuid.UUID
	size uint64
}

type resourceHandle struct {
	id     uuid.UUID
	format scheduling.Format
	heap   *heapHandle
	offset uint64
}

type descriptorHandle struct {
	id uuid.UUID
}

type commandList struct {
	kind     backend.CommandListKind
	barriers []backend.Barrier
	aliasing []backend.AliasingBarrier
}

func (c *commandList) Kind() backend.CommandListKind { return c.kind }

// Backend is a single-process in-memory Capability implementation. Owner
// bookkeeping for resources and descriptors goes through core.Identifiers;
// entries are never released, so no slot is reused. Heaps are not tracked.
type Backend struct {
	mu sync.Mutex

	caps scheduling.BackendCapabilities

	resources   *core.Identifiers
	descriptors *core.Identifiers

	nextFence uint64
	signaled  map[uint64]bool
}

func New(caps scheduling.BackendCapabilities) *Backend {
	return &Backend{
		caps:        caps,
		resources:   core.NewIdentifiers(),
		descriptors: core.NewIdentifiers(),
		signaled:    make(map[uint64]bool),
	}
}

func (b *Backend) Capabilities() scheduling.BackendCapabilities {
	return b.caps
}

func (b *Backend) CreateHeap(group scheduling.AliasingGroup, sizeBytes uint64) (backend.HeapHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	h := &heapHandle{id: uuid.New(), size: sizeBytes}
	core.LogDebug("memsim: created heap %s group=%v size=%d", h.id, group, sizeBytes)
	return h, nil
}

// HeapSize is a test/introspection helper, not part of backend.Capability.
func (b *Backend) HeapSize(h backend.HeapHandle) uint64 {
	heap, ok := h.(*heapHandle)
	if !ok {
		return 0
	}
	return heap.size
}

// Barriers returns the state-transition barriers recorded into list so
// far, another introspection helper for tests asserting on the emitted
// schedule.
func (b *Backend) Barriers(list backend.CommandList) []backend.Barrier {
	cl, ok := list.(*commandList)
	if !ok {
		return nil
	}
	return cl.barriers
}

// AliasingBarriers returns the aliasing barriers recorded into list.
func (b *Backend) AliasingBarriers(list backend.CommandList) []backend.AliasingBarrier {
	cl, ok := list.(*commandList)
	if !ok {
		return nil
	}
	return cl.aliasing
}

func (b *Backend) AllocateResource(format scheduling.Format, heap backend.HeapHandle, offset uint64) (backend.ResourceHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	h, ok := heap.(*heapHandle)
	if !ok {
		return nil, fmt.Errorf("memsim: allocate resource: invalid heap handle")
	}
	if offset+format.ByteSize() > h.size {
		return nil, fmt.Errorf("memsim: allocate resource: offset %d + size %d exceeds heap size %d", offset, format.ByteSize(), h.size)
	}
	handle := &resourceHandle{id: uuid.New(), format: format, heap: h, offset: offset}
	b.resources.Acquire(handle)
	return handle, nil
}

func (b *Backend) AllocateCommittedResource(format scheduling.Format) (backend.ResourceHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	handle := &resourceHandle{id: uuid.New(), format: format}
	b.resources.Acquire(handle)
	return handle, nil
}

func (b *Backend) AllocateDescriptor(kind backend.DescriptorKind, resource backend.ResourceHandle, viewFormat *scheduling.PixelFormat) (backend.DescriptorHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	d := &descriptorHandle{id: uuid.New()}
	b.descriptors.Acquire(d)
	return d, nil
}

func (b *Backend) NewCommandList(kind backend.CommandListKind) (backend.CommandList, error) {
	return &commandList{kind: kind}, nil
}

func (b *Backend) RecordBarrier(list backend.CommandList, barriers ...backend.Barrier) error {
	cl, ok := list.(*commandList)
	if !ok {
		return fmt.Errorf("memsim: record barrier: invalid command list")
	}
	cl.barriers = append(cl.barriers, barriers...)
	return nil
}

func (b *Backend) RecordAliasingBarrier(list backend.CommandList, barrier backend.AliasingBarrier) error {
	cl, ok := list.(*commandList)
	if !ok {
		return fmt.Errorf("memsim: record aliasing barrier: invalid command list")
	}
	cl.aliasing = append(cl.aliasing, barrier)
	return nil
}

func (b *Backend) Submit(list backend.CommandList) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextFence++
	b.signaled[b.nextFence] = true
	return b.nextFence, nil
}

func (b *Backend) Wait(fenceValue uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.signaled[fenceValue] {
		return core.NewBackendError(fenceValue, fmt.Errorf("memsim: fence %d never signaled", fenceValue))
	}
	return nil
}
