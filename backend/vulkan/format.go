package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/rendergraph/passgraph"
	"github.com/spaghettifunk/rendergraph/scheduling"
)

// toVkFormat maps the core's backend-neutral PixelFormat to the concrete
// vk.Format the image/buffer view is created with.
func toVkFormat(p scheduling.PixelFormat) vk.Format {
	switch p {
	case scheduling.FormatRGBA8:
		return vk.FormatR8g8b8a8Unorm
	case scheduling.FormatBGRA8:
		return vk.FormatB8g8r8a8Unorm
	case scheduling.FormatR16Float:
		return vk.FormatR16Sfloat
	case scheduling.FormatRGBA16Float:
		return vk.FormatR16g16b16a16Sfloat
	case scheduling.FormatRGBA32Float:
		return vk.FormatR32g32b32a32Sfloat
	case scheduling.FormatD32Float:
		return vk.FormatD32Sfloat
	case scheduling.FormatD24UnormS8Uint:
		return vk.FormatD24UnormS8Uint
	case scheduling.FormatR32Uint:
		return vk.FormatR32Uint
	default:
		return vk.FormatUndefined
	}
}

// toVkImageType maps a TextureKind to the image type ImageCreate needs;
// Texture2DArray still creates a 2D image, the array-layer count is carried
// separately.
func toVkImageType(k scheduling.TextureKind) vk.ImageType {
	switch k {
	case scheduling.Texture1D:
		return vk.ImageType1d
	case scheduling.Texture3D:
		return vk.ImageType3d
	default:
		return vk.ImageType2d
	}
}

// imageUsage derives the vk.ImageUsageFlags a texture needs from the
// declared capability flags on its format, mirroring
// engine/renderer/vulkan/swapchain.go's depth-attachment usage
// (ImageUsageDepthStencilAttachmentBit) generalized to every capability
// a TextureFormat can declare.
func imageUsage(f scheduling.TextureFormat) vk.ImageUsageFlags {
	usage := vk.ImageUsageFlags(vk.ImageUsageTransferSrcBit) | vk.ImageUsageFlags(vk.ImageUsageTransferDstBit) | vk.ImageUsageFlags(vk.ImageUsageSampledBit)
	if f.IsRenderTarget {
		usage |= vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit)
	}
	if f.IsDepthStencil {
		usage |= vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit)
	}
	if f.IsUnorderedAccess {
		usage |= vk.ImageUsageFlags(vk.ImageUsageStorageBit)
	}
	return usage
}

// aspectMask derives the view aspect from the declared format, used both
// for image-view creation and for barrier subresource ranges.
func aspectMask(f scheduling.TextureFormat) vk.ImageAspectFlags {
	if f.IsDepthStencil {
		if f.PixelFormat == scheduling.FormatD24UnormS8Uint {
			return vk.ImageAspectFlags(vk.ImageAspectDepthBit) | vk.ImageAspectFlags(vk.ImageAspectStencilBit)
		}
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}
	return vk.ImageAspectFlags(vk.ImageAspectColorBit)
}

// stateLayoutAccess maps a single ResourceState bit (AccessKind) to the
// vk.ImageLayout, vk.AccessFlags, and vk.PipelineStageFlags it corresponds
// to, the way engine/renderer/vulkan/renderpass.go's subpass dependency
// hardcodes one fixed transition; here every transition the optimizer can
// emit needs a mapping, not just a colour/depth pair.
func stateLayoutAccess(s passgraph.ResourceState) (vk.ImageLayout, vk.AccessFlags, vk.PipelineStageFlags) {
	switch s {
	case passgraph.AccessReadShaderResource:
		return vk.ImageLayoutShaderReadOnlyOptimal,
			vk.AccessFlags(vk.AccessShaderReadBit),
			vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit)
	case passgraph.AccessWriteUnorderedAccess:
		return vk.ImageLayoutGeneral,
			vk.AccessFlags(vk.AccessShaderReadBit) | vk.AccessFlags(vk.AccessShaderWriteBit),
			vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit)
	case passgraph.AccessWriteRenderTarget:
		return vk.ImageLayoutColorAttachmentOptimal,
			vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
			vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)
	case passgraph.AccessWriteDepthStencil:
		return vk.ImageLayoutDepthStencilAttachmentOptimal,
			vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit),
			vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit)
	case passgraph.AccessReadDepthStencil:
		return vk.ImageLayoutDepthStencilReadOnlyOptimal,
			vk.AccessFlags(vk.AccessDepthStencilAttachmentReadBit),
			vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit)
	case passgraph.AccessCopySource:
		return vk.ImageLayoutTransferSrcOptimal,
			vk.AccessFlags(vk.AccessTransferReadBit),
			vk.PipelineStageFlags(vk.PipelineStageTransferBit)
	case passgraph.AccessCopyDestination:
		return vk.ImageLayoutTransferDstOptimal,
			vk.AccessFlags(vk.AccessTransferWriteBit),
			vk.PipelineStageFlags(vk.PipelineStageTransferBit)
	case passgraph.AccessPresent:
		return vk.ImageLayoutPresentSrc, 0, vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit)
	default: // AccessCommon and compound read states: treat as a read-only shader view.
		return vk.ImageLayoutGeneral,
			vk.AccessFlags(vk.AccessShaderReadBit),
			vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
	}
}
