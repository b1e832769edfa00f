package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/aurora/engine/renderer/metadata"
)

// stateAccess maps a graph resource state to the access mask and
// pipeline stage the barrier needs on the Vulkan side.
func stateAccess(state metadata.ResourceState) (vk.AccessFlags, vk.PipelineStageFlags) {
	switch state {
	case metadata.ResourceStateRenderTarget:
		return vk.AccessFlags(vk.AccessColorAttachmentWriteBit), vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit)
	case metadata.ResourceStateDepthWrite:
		return vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit), vk.PipelineStageFlags(vk.PipelineStageLateFragmentTestsBit)
	case metadata.ResourceStateShaderRead:
		return vk.AccessFlags(vk.AccessShaderReadBit), vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit)
	case metadata.ResourceStateUnorderedAccess:
		return vk.AccessFlags(vk.AccessShaderReadBit | vk.AccessShaderWriteBit), vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit)
	case metadata.ResourceStateCopySource:
		return vk.AccessFlags(vk.AccessTransferReadBit), vk.PipelineStageFlags(vk.PipelineStageTransferBit)
	case metadata.ResourceStateCopyDest:
		return vk.AccessFlags(vk.AccessTransferWriteBit), vk.PipelineStageFlags(vk.PipelineStageTransferBit)
	case metadata.ResourceStatePresent:
		return vk.AccessFlags(vk.AccessMemoryReadBit), vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit)
	}
	// Undefined: no prior access to wait on.
	return 0, vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
}

// barrierFor translates one graph transition into a global memory
// barrier plus its source and destination stages. Image layout tracking
// stays with the resource's backing object, outside this core.
func barrierFor(t metadata.Transition) (vk.MemoryBarrier, vk.PipelineStageFlags, vk.PipelineStageFlags) {
	srcAccess, srcStage := stateAccess(t.Before)
	dstAccess, dstStage := stateAccess(t.After)
	return vk.MemoryBarrier{
		SType:         vk.StructureTypeMemoryBarrier,
		SrcAccessMask: srcAccess,
		DstAccessMask: dstAccess,
	}, srcStage, dstStage
}
