package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/aurora/engine/core"
)

// VulkanFence wraps one frame's completion fence. IsSignaled caches the
// last observed status so a consumed fence is not queried again.
type VulkanFence struct {
	Handle     vk.Fence
	IsSignaled bool
}

func NewFence(device vk.Device, allocator *vk.AllocationCallbacks, createSignaled bool) (*VulkanFence, error) {
	fence := &VulkanFence{
		IsSignaled: createSignaled,
	}

	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if fence.IsSignaled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}

	var pFence vk.Fence
	if res := vk.CreateFence(device, &fenceCreateInfo, allocator, &pFence); res != vk.Success {
		err := fmt.Errorf("failed to create fence")
		core.LogError(err.Error())
		return nil, err
	}
	fence.Handle = pFence
	return fence, nil
}

func (vf *VulkanFence) Destroy(device vk.Device, allocator *vk.AllocationCallbacks) {
	if vf.Handle != vk.NullFence {
		vk.DestroyFence(device, vf.Handle, allocator)
		vf.Handle = vk.NullFence
	}
	vf.IsSignaled = false
}

// Poll checks the fence without blocking. Once signaled it stays
// signaled until Reset.
func (vf *VulkanFence) Poll(device vk.Device) bool {
	if vf.IsSignaled {
		return true
	}
	switch vk.GetFenceStatus(device, vf.Handle) {
	case vk.Success:
		vf.IsSignaled = true
		return true
	case vk.NotReady:
		return false
	case vk.ErrorDeviceLost:
		core.LogError("fence poll - VK_ERROR_DEVICE_LOST.")
	default:
		core.LogError("fence poll - an unknown error has occurred.")
	}
	return false
}

func (vf *VulkanFence) Reset(device vk.Device) error {
	if vf.IsSignaled {
		if res := vk.ResetFences(device, 1, []vk.Fence{vf.Handle}); res != vk.Success {
			err := fmt.Errorf("failed to reset fence")
			core.LogError(err.Error())
			return err
		}
		vf.IsSignaled = false
	}
	return nil
}
