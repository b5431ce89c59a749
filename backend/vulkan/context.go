// Package vulkan implements backend.Capability against a real Vulkan
// device via github.com/goki/vulkan, adapted from the
// engine/renderer/vulkan package. Device, instance, and swapchain
// bootstrap are the host program's concern (asset loading, window
// management, and the hardware-abstraction translation are explicitly
// out of the render-graph core's scope); Context is constructed from an
// already-initialized device and handed to New.
package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/rendergraph/core"
)

// Context bundles the Vulkan handles the backend needs: a logical
// device, the memory properties used to pick a heap's memory type, a
// graphics queue to submit against, and the host's allocation callbacks
// (nil is the common case).
type Context struct {
	Instance            vk.Instance
	PhysicalDevice      vk.PhysicalDevice
	Device              vk.Device
	MemoryProperties    vk.PhysicalDeviceMemoryProperties
	GraphicsQueue       vk.Queue
	GraphicsQueueFamily uint32
	CommandPool         vk.CommandPool
	Allocator           *vk.AllocationCallbacks

	Locks *core.LockPool
}

// findMemoryTypeIndex mirrors the standard Vulkan memory-type search: the
// first bit set in typeFilter whose properties are a superset of
// required.
func (c *Context) findMemoryTypeIndex(typeFilter uint32, required vk.MemoryPropertyFlags) (uint32, bool) {
	c.MemoryProperties.Deref()
	for i := uint32(0); i < c.MemoryProperties.MemoryTypeCount; i++ {
		c.MemoryProperties.MemoryTypes[i].Deref()
		typeBit := typeFilter & (1 << i)
		hasProps := vk.MemoryPropertyFlags(c.MemoryProperties.MemoryTypes[i].PropertyFlags)&required == required
		if typeBit != 0 && hasProps {
			return i, true
		}
	}
	return 0, false
}
