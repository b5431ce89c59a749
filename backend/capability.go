// Package backend declares the capability surface the render-graph core
// consumes: heap and resource allocation, descriptor allocation, barrier
// recording, and submission. The core never depends on a concrete GPU
// API; it holds a Capability by borrow for the lifetime of a frame.
package backend

import (
	"github.com/spaghettifunk/rendergraph/passgraph"
	"github.com/spaghettifunk/rendergraph/scheduling"
)

// HeapHandle, ResourceHandle, and DescriptorHandle are opaque tokens the
// backend hands back; the core never interprets their contents.
type HeapHandle interface{}
type ResourceHandle interface{}
type DescriptorHandle interface{}

// CommandListKind replaces a polymorphic command-list class hierarchy
// with a single variant plus capability-gated operations.
type CommandListKind int

const (
	CommandListCopy CommandListKind = iota
	CommandListCompute
	CommandListDirect
	CommandListBundle
)

// CommandList is the opaque handle a backend returns for a list the
// executor records barriers and draw/dispatch work into. Only Kind is
// visible to the core; RecordBarrier and Submit accept every kind.
type CommandList interface {
	Kind() CommandListKind
}

// DescriptorKind identifies the descriptor type requested by
// AllocateDescriptor.
type DescriptorKind int

const (
	DescriptorShaderResourceView DescriptorKind = iota
	DescriptorUnorderedAccessView
	DescriptorRenderTargetView
	DescriptorDepthStencilView
	DescriptorConstantBufferView
)

// Barrier describes one subresource's state transition to be recorded
// against a CommandList.
type Barrier struct {
	Resource    ResourceHandle
	Subresource int
	From, To    passgraph.ResourceState
}

// AliasingBarrier declares that a heap region is now interpreted as After
// rather than whatever resource (if any) previously occupied it. The
// executor always leaves Before nil: the prior resource is not named,
// even when one occupied the region earlier in the frame.
type AliasingBarrier struct {
	Heap          HeapHandle
	Offset        uint64
	Before, After ResourceHandle
}

// Capability is the backend contract the core consumes. Every method may
// return core.BackendError-wrapped failures; the core treats all of them
// as fatal to the in-flight submission.
type Capability interface {
	CreateHeap(group scheduling.AliasingGroup, sizeBytes uint64) (HeapHandle, error)
	AllocateResource(format scheduling.Format, heap HeapHandle, offset uint64) (ResourceHandle, error)
	AllocateCommittedResource(format scheduling.Format) (ResourceHandle, error)
	AllocateDescriptor(kind DescriptorKind, resource ResourceHandle, viewFormat *scheduling.PixelFormat) (DescriptorHandle, error)

	NewCommandList(kind CommandListKind) (CommandList, error)
	RecordBarrier(list CommandList, barriers ...Barrier) error
	RecordAliasingBarrier(list CommandList, barrier AliasingBarrier) error

	Submit(list CommandList) (fenceValue uint64, err error)
	Wait(fenceValue uint64) error

	Capabilities() scheduling.BackendCapabilities
}
