package vulkan

import (
	"fmt"
	"sync"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/rendergraph/backend"
	"github.com/spaghettifunk/rendergraph/core"
	"github.com/spaghettifunk/rendergraph/scheduling"
)

// heapHandle wraps the vk.DeviceMemory allocation a backend.HeapHandle
// resolves to: one block shared by every resource an aliasing group packs
// into it, per Context.findMemoryTypeIndex's memory-type search.
type heapHandle struct {
	memory vk.DeviceMemory
	size   uint64
}

// resourceHandle wraps either a vk.Image or a vk.Buffer, and the memory it
// is bound to (shared, for aliased resources, or dedicated, for committed
// ones).
type resourceHandle struct {
	format    scheduling.Format
	image     vk.Image
	buffer    vk.Buffer
	memory    vk.DeviceMemory // only set for committed (non-aliased) resources
	committed bool
}

type descriptorHandle struct {
	view vk.ImageView
}

// commandList wraps a single-use primary command buffer, allocated from
// Context.CommandPool the way
// engine/renderer/vulkan/command_buffer.go's AllocateAndBeginSingleUse
// does.
type commandList struct {
	kind   backend.CommandListKind
	buffer vk.CommandBuffer
}

func (c *commandList) Kind() backend.CommandListKind { return c.kind }

// Backend implements backend.Capability against a real Vulkan device,
// adapted from engine/renderer/vulkan: image/buffer creation follows
// swapchain.go's ImageCreate call pattern, fence handling follows
// fence.go, and queue submission follows command_buffer.go's
// EndSingleUse. Window and swapchain management (surface creation,
// present, framebuffers) are not part of resource scheduling and have no
// home here.
type Backend struct {
	ctx  *Context
	caps scheduling.BackendCapabilities

	mu        sync.Mutex
	fences    map[uint64]vk.Fence
	nextFence uint64
}

// New creates a Backend bound to an already-initialized Vulkan Context.
func New(ctx *Context, caps scheduling.BackendCapabilities) *Backend {
	return &Backend{ctx: ctx, caps: caps, fences: make(map[uint64]vk.Fence)}
}

func (b *Backend) Capabilities() scheduling.BackendCapabilities {
	return b.caps
}

// CreateHeap allocates one device-local vk.DeviceMemory block of
// sizeBytes. The memory-type search follows
// Context.findMemoryTypeIndex; group itself only affects logging, since
// Vulkan has no heap "kind" beyond memory-type bits.
func (b *Backend) CreateHeap(group scheduling.AliasingGroup, sizeBytes uint64) (backend.HeapHandle, error) {
	var err error
	var memory vk.DeviceMemory
	lockErr := b.ctx.Locks.SafeCall(core.MemoryManagement, func() error {
		typeIndex, ok := b.ctx.findMemoryTypeIndex(^uint32(0), vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
		if !ok {
			return fmt.Errorf("vulkan: no device-local memory type available for group %v", group)
		}
		allocInfo := vk.MemoryAllocateInfo{
			SType:           vk.StructureTypeMemoryAllocateInfo,
			AllocationSize:  vk.DeviceSize(sizeBytes),
			MemoryTypeIndex: typeIndex,
		}
		if res := vk.AllocateMemory(b.ctx.Device, &allocInfo, b.ctx.Allocator, &memory); res != vk.Success {
			err = fmt.Errorf("vulkan: allocate heap memory: result %d", res)
			return err
		}
		return nil
	})
	if lockErr != nil {
		return nil, lockErr
	}
	if err != nil {
		return nil, err
	}
	core.LogDebug("vulkan: created heap group=%v size=%d", group, sizeBytes)
	return &heapHandle{memory: memory, size: sizeBytes}, nil
}

func (b *Backend) AllocateResource(format scheduling.Format, heap backend.HeapHandle, offset uint64) (backend.ResourceHandle, error) {
	h, ok := heap.(*heapHandle)
	if !ok {
		return nil, fmt.Errorf("vulkan: allocate resource: invalid heap handle")
	}
	switch f := format.(type) {
	case scheduling.TextureFormat:
		return b.allocateTexture(f, h.memory, offset)
	case scheduling.BufferFormat:
		return b.allocateBuffer(f, h.memory, offset)
	default:
		return nil, fmt.Errorf("vulkan: allocate resource: unsupported format %T", format)
	}
}

func (b *Backend) AllocateCommittedResource(format scheduling.Format) (backend.ResourceHandle, error) {
	var typeIndex uint32
	var ok bool
	var memory vk.DeviceMemory

	b.ctx.Locks.SafeCall(core.MemoryManagement, func() error {
		typeIndex, ok = b.ctx.findMemoryTypeIndex(^uint32(0), vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
		return nil
	})
	if !ok {
		return nil, fmt.Errorf("vulkan: allocate committed resource: no device-local memory type available")
	}

	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  vk.DeviceSize(format.ByteSize()),
		MemoryTypeIndex: typeIndex,
	}
	if res := vk.AllocateMemory(b.ctx.Device, &allocInfo, b.ctx.Allocator, &memory); res != vk.Success {
		return nil, fmt.Errorf("vulkan: allocate committed resource memory: result %d", res)
	}

	switch f := format.(type) {
	case scheduling.TextureFormat:
		handle, err := b.allocateTexture(f, memory, 0)
		if err != nil {
			return nil, err
		}
		handle.memory = memory
		handle.committed = true
		return handle, nil
	case scheduling.BufferFormat:
		handle, err := b.allocateBuffer(f, memory, 0)
		if err != nil {
			return nil, err
		}
		handle.memory = memory
		handle.committed = true
		return handle, nil
	default:
		return nil, fmt.Errorf("vulkan: allocate committed resource: unsupported format %T", format)
	}
}

// allocateTexture creates a vk.Image sized and flagged from f and binds it
// at offset within memory, following swapchain.go's ImageCreate call
// pattern (type, extent, format, tiling, usage) generalized from the
// depth-attachment-only case to every TextureFormat capability flag.
func (b *Backend) allocateTexture(f scheduling.TextureFormat, memory vk.DeviceMemory, offset uint64) (*resourceHandle, error) {
	depth := f.Depth
	if depth == 0 {
		depth = 1
	}
	arrayLayers := uint32(1)
	if f.Kind == scheduling.Texture2DArray {
		arrayLayers = depth
		depth = 1
	}
	mips := f.MipCount
	if mips == 0 {
		mips = 1
	}

	createInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: toVkImageType(f.Kind),
		Extent: vk.Extent3D{
			Width:  f.Width,
			Height: f.Height,
			Depth:  depth,
		},
		MipLevels:     mips,
		ArrayLayers:   arrayLayers,
		Format:        toVkFormat(f.PixelFormat),
		Tiling:        vk.ImageTilingOptimal,
		InitialLayout: vk.ImageLayoutUndefined,
		Usage:         imageUsage(f),
		SharingMode:   vk.SharingModeExclusive,
		Samples:       vk.SampleCount1Bit,
	}
	createInfo.Deref()

	var image vk.Image
	if res := vk.CreateImage(b.ctx.Device, &createInfo, b.ctx.Allocator, &image); res != vk.Success {
		return nil, fmt.Errorf("vulkan: create image: result %d", res)
	}
	if res := vk.BindImageMemory(b.ctx.Device, image, memory, vk.DeviceSize(offset)); res != vk.Success {
		return nil, fmt.Errorf("vulkan: bind image memory: result %d", res)
	}
	return &resourceHandle{format: f, image: image}, nil
}

func (b *Backend) allocateBuffer(f scheduling.BufferFormat, memory vk.DeviceMemory, offset uint64) (*resourceHandle, error) {
	createInfo := vk.BufferCreateInfo{
		SType: vk.StructureTypeBufferCreateInfo,
		Size:  vk.DeviceSize(f.SizeBytes),
		Usage: vk.BufferUsageFlags(vk.BufferUsageStorageBufferBit) | vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit) | vk.BufferUsageFlags(vk.BufferUsageTransferDstBit),
		SharingMode: vk.SharingModeExclusive,
	}
	createInfo.Deref()

	var buf vk.Buffer
	if res := vk.CreateBuffer(b.ctx.Device, &createInfo, b.ctx.Allocator, &buf); res != vk.Success {
		return nil, fmt.Errorf("vulkan: create buffer: result %d", res)
	}
	if res := vk.BindBufferMemory(b.ctx.Device, buf, memory, vk.DeviceSize(offset)); res != vk.Success {
		return nil, fmt.Errorf("vulkan: bind buffer memory: result %d", res)
	}
	return &resourceHandle{format: f, buffer: buf}, nil
}

// AllocateDescriptor creates the vk.ImageView that stands in for a
// DescriptorHandle: Vulkan has no separate descriptor-handle object for a
// single resource view the way D3D12 does, so a view is the closest
// backend-native equivalent, following swapchain.go's ImageViewCreateInfo
// pattern.
func (b *Backend) AllocateDescriptor(kind backend.DescriptorKind, resource backend.ResourceHandle, viewFormat *scheduling.PixelFormat) (backend.DescriptorHandle, error) {
	r, ok := resource.(*resourceHandle)
	if !ok || r.image == nil {
		return nil, fmt.Errorf("vulkan: allocate descriptor: resource has no image to view")
	}
	tf, ok := r.format.(scheduling.TextureFormat)
	if !ok {
		return nil, fmt.Errorf("vulkan: allocate descriptor: not a texture")
	}
	format := toVkFormat(tf.PixelFormat)
	if viewFormat != nil {
		format = toVkFormat(*viewFormat)
	}

	viewInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    r.image,
		ViewType: vk.ImageViewType2d,
		Format:   format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     aspectMask(tf),
			BaseMipLevel:   0,
			LevelCount:     tf.MipCount,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}
	viewInfo.Deref()

	var view vk.ImageView
	var res vk.Result
	if err := b.ctx.Locks.SafeCall(core.DescriptorManagement, func() error {
		res = vk.CreateImageView(b.ctx.Device, &viewInfo, b.ctx.Allocator, &view)
		return nil
	}); err != nil {
		return nil, err
	}
	if res != vk.Success {
		return nil, fmt.Errorf("vulkan: create image view: result %d", res)
	}
	return &descriptorHandle{view: view}, nil
}

// NewCommandList allocates a primary command buffer from Context.CommandPool
// and begins single-use recording, following
// engine/renderer/vulkan/command_buffer.go's AllocateAndBeginSingleUse.
func (b *Backend) NewCommandList(kind backend.CommandListKind) (backend.CommandList, error) {
	allocInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        b.ctx.CommandPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	buffers := make([]vk.CommandBuffer, 1)

	var err error
	lockErr := b.ctx.Locks.SafeCall(core.CommandBufferManagement, func() error {
		if res := vk.AllocateCommandBuffers(b.ctx.Device, &allocInfo, buffers); res != vk.Success {
			err = fmt.Errorf("vulkan: allocate command buffer: result %d", res)
			return err
		}
		beginInfo := vk.CommandBufferBeginInfo{
			SType: vk.StructureTypeCommandBufferBeginInfo,
			Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
		}
		if res := vk.BeginCommandBuffer(buffers[0], &beginInfo); res != vk.Success {
			err = fmt.Errorf("vulkan: begin command buffer: result %d", res)
			return err
		}
		return nil
	})
	if lockErr != nil {
		return nil, lockErr
	}
	return &commandList{kind: kind, buffer: buffers[0]}, nil
}

// RecordBarrier translates each Barrier's (From, To) ResourceState pair
// into a vk.ImageMemoryBarrier (or a buffer memory barrier for
// BufferFormat resources) and records a single CmdPipelineBarrier call,
// the way renderpass.go's SubpassDependency carries one fixed
// srcAccessMask/dstAccessMask pair, generalized to every transition the
// state-transition optimizer can emit.
func (b *Backend) RecordBarrier(list backend.CommandList, barriers ...backend.Barrier) error {
	cl, ok := list.(*commandList)
	if !ok {
		return fmt.Errorf("vulkan: record barrier: invalid command list")
	}
	var imageBarriers []vk.ImageMemoryBarrier
	var bufferBarriers []vk.BufferMemoryBarrier
	var srcStage, dstStage vk.PipelineStageFlags

	for _, bar := range barriers {
		r, ok := bar.Resource.(*resourceHandle)
		if !ok {
			continue
		}
		_, srcAccess, ss := stateLayoutAccess(bar.From)
		dstLayout, dstAccess, ds := stateLayoutAccess(bar.To)
		srcStage |= ss
		dstStage |= ds

		if r.image != nil {
			tf, _ := r.format.(scheduling.TextureFormat)
			oldLayout, _, _ := stateLayoutAccess(bar.From)
			ib := vk.ImageMemoryBarrier{
				SType:               vk.StructureTypeImageMemoryBarrier,
				OldLayout:           oldLayout,
				NewLayout:           dstLayout,
				SrcAccessMask:       srcAccess,
				DstAccessMask:       dstAccess,
				SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
				DstQueueFamilyIndex: vk.QueueFamilyIgnored,
				Image:               r.image,
				SubresourceRange: vk.ImageSubresourceRange{
					AspectMask:     aspectMask(tf),
					BaseMipLevel:   uint32(bar.Subresource),
					LevelCount:     1,
					BaseArrayLayer: 0,
					LayerCount:     1,
				},
			}
			ib.Deref()
			imageBarriers = append(imageBarriers, ib)
		} else if r.buffer != nil {
			bb := vk.BufferMemoryBarrier{
				SType:               vk.StructureTypeBufferMemoryBarrier,
				SrcAccessMask:       srcAccess,
				DstAccessMask:       dstAccess,
				SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
				DstQueueFamilyIndex: vk.QueueFamilyIgnored,
				Buffer:              r.buffer,
				Offset:              0,
				Size:                vk.DeviceSize(vk.WholeSize),
			}
			bb.Deref()
			bufferBarriers = append(bufferBarriers, bb)
		}
	}
	if len(imageBarriers) == 0 && len(bufferBarriers) == 0 {
		return nil
	}
	if srcStage == 0 {
		srcStage = vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
	}
	if dstStage == 0 {
		dstStage = vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit)
	}
	vk.CmdPipelineBarrier(cl.buffer, srcStage, dstStage, 0,
		0, nil,
		uint32(len(bufferBarriers)), bufferBarriers,
		uint32(len(imageBarriers)), imageBarriers)
	return nil
}

// RecordAliasingBarrier emits a full memory barrier (write-then-read
// across the whole device) declaring that a heap region is now a
// different resource. Vulkan has no dedicated aliasing-barrier primitive
// the way D3D12 does; a global vk.MemoryBarrier is the closest
// equivalent, so the prior resource (barrier.Before) is not referenced.
func (b *Backend) RecordAliasingBarrier(list backend.CommandList, barrier backend.AliasingBarrier) error {
	cl, ok := list.(*commandList)
	if !ok {
		return fmt.Errorf("vulkan: record aliasing barrier: invalid command list")
	}
	mb := vk.MemoryBarrier{
		SType:         vk.StructureTypeMemoryBarrier,
		SrcAccessMask: vk.AccessFlags(vk.AccessMemoryWriteBit),
		DstAccessMask: vk.AccessFlags(vk.AccessMemoryReadBit) | vk.AccessFlags(vk.AccessMemoryWriteBit),
	}
	mb.Deref()
	vk.CmdPipelineBarrier(cl.buffer,
		vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit),
		vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit),
		0, 1, []vk.MemoryBarrier{mb}, 0, nil, 0, nil)
	return nil
}

// Submit ends and submits list's command buffer to the graphics queue,
// following command_buffer.go's EndSingleUse, but asynchronously: it
// signals a fence rather than calling QueueWaitIdle, since the core's
// contract is a monotonically increasing fence value the caller waits on
// later.
func (b *Backend) Submit(list backend.CommandList) (uint64, error) {
	cl, ok := list.(*commandList)
	if !ok {
		return 0, fmt.Errorf("vulkan: submit: invalid command list")
	}
	if res := vk.EndCommandBuffer(cl.buffer); res != vk.Success {
		return 0, fmt.Errorf("vulkan: end command buffer: result %d", res)
	}

	fenceInfo := vk.FenceCreateInfo{SType: vk.StructureTypeFenceCreateInfo}
	var fence vk.Fence
	if res := vk.CreateFence(b.ctx.Device, &fenceInfo, b.ctx.Allocator, &fence); res != vk.Success {
		return 0, fmt.Errorf("vulkan: create fence: result %d", res)
	}

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{cl.buffer},
	}
	submitInfo.Deref()

	var submitErr error
	err := b.ctx.Locks.SafeQueueCall(b.ctx.GraphicsQueueFamily, func() error {
		if res := vk.QueueSubmit(b.ctx.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, fence); res != vk.Success {
			submitErr = fmt.Errorf("vulkan: queue submit: result %d", res)
			return submitErr
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	b.mu.Lock()
	b.nextFence++
	fenceValue := b.nextFence
	b.fences[fenceValue] = fence
	b.mu.Unlock()

	return fenceValue, nil
}

// Wait blocks until fenceValue's fence signals, per fence.go's
// FenceWait.
func (b *Backend) Wait(fenceValue uint64) error {
	b.mu.Lock()
	fence, ok := b.fences[fenceValue]
	b.mu.Unlock()
	if !ok {
		return core.NewBackendError(fenceValue, fmt.Errorf("vulkan: fence %d never submitted", fenceValue))
	}
	if res := vk.WaitForFences(b.ctx.Device, 1, []vk.Fence{fence}, vk.True, ^uint64(0)); res != vk.Success {
		return core.NewBackendError(fenceValue, fmt.Errorf("vulkan: wait for fence: result %d", res))
	}
	return nil
}
