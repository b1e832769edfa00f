package vulkan

import (
	"fmt"
	"sync"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/aurora/engine/core"
	"github.com/spaghettifunk/aurora/engine/renderer/metadata"
)

/**
 * @brief The device objects the adapter records against. Device and
 * queue bring-up belongs to the platform layer; the adapter only
 * consumes them.
 */
type Config struct {
	Device         vk.Device
	Allocator      *vk.AllocationCallbacks
	Queues         map[metadata.QueueType]vk.Queue
	CommandBuffers map[metadata.QueueType]vk.CommandBuffer
	FramesInFlight uint8
}

type frameFence struct {
	frameNumber uint64
	fence       *VulkanFence
}

// VulkanBackend adapts the core's backend boundary to Vulkan: frames are
// tracked with a ring of fences (one per frame in flight), transitions
// become pipeline barriers, pass submission is a queue submit signaling
// the frame's fence.
type VulkanBackend struct {
	device         vk.Device
	allocator      *vk.AllocationCallbacks
	queues         map[metadata.QueueType]vk.Queue
	commandBuffers map[metadata.QueueType]vk.CommandBuffer

	mutex sync.Mutex
	ring  []frameFence
	// completed is the confirmed-complete watermark; it only advances.
	completed uint64
}

func New(config *Config) (*VulkanBackend, error) {
	if config.Device == nil {
		return nil, fmt.Errorf("func New - a logical device is required")
	}
	if config.FramesInFlight == 0 {
		return nil, fmt.Errorf("func New - config.FramesInFlight must be > 0")
	}
	return &VulkanBackend{
		device:         config.Device,
		allocator:      config.Allocator,
		queues:         config.Queues,
		commandBuffers: config.CommandBuffers,
		ring:           make([]frameFence, config.FramesInFlight),
	}, nil
}

func (vb *VulkanBackend) Initialize(appName string) error {
	for i := range vb.ring {
		fence, err := NewFence(vb.device, vb.allocator, false)
		if err != nil {
			return err
		}
		vb.ring[i] = frameFence{fence: fence}
	}
	core.LogInfo("vulkan backend initialized for '%s' with %d frames in flight", appName, len(vb.ring))
	return nil
}

func (vb *VulkanBackend) Shutdown() error {
	vb.mutex.Lock()
	defer vb.mutex.Unlock()
	for i := range vb.ring {
		if vb.ring[i].fence != nil {
			vb.ring[i].fence.Destroy(vb.device, vb.allocator)
			vb.ring[i].fence = nil
		}
	}
	return nil
}

// CompletedFrame polls the fence ring and advances the watermark past
// every frame whose fence has signaled, in frame order.
func (vb *VulkanBackend) CompletedFrame() uint64 {
	vb.mutex.Lock()
	defer vb.mutex.Unlock()

	for {
		slot := vb.slotFor(vb.completed + 1)
		if slot == nil || slot.frameNumber != vb.completed+1 {
			break
		}
		if !slot.fence.Poll(vb.device) {
			break
		}
		vb.completed++
	}
	return vb.completed
}

func (vb *VulkanBackend) slotFor(frameNumber uint64) *frameFence {
	if len(vb.ring) == 0 {
		return nil
	}
	return &vb.ring[frameNumber%uint64(len(vb.ring))]
}

// BeginFrame claims the frame's fence slot. The coordinator's
// frames-in-flight backpressure guarantees the slot's previous occupant
// was already consumed.
func (vb *VulkanBackend) BeginFrame(frameNumber uint64) error {
	vb.mutex.Lock()
	defer vb.mutex.Unlock()

	slot := vb.slotFor(frameNumber)
	if slot == nil {
		return fmt.Errorf("backend not initialized")
	}
	if slot.frameNumber > vb.completed {
		return fmt.Errorf("fence slot for frame %d still tracks in-flight frame %d", frameNumber, slot.frameNumber)
	}
	if err := slot.fence.Reset(vb.device); err != nil {
		return err
	}
	slot.frameNumber = frameNumber
	return nil
}

// EndFrame signals the frame's fence after all of its queue work.
func (vb *VulkanBackend) EndFrame(frameNumber uint64) error {
	vb.mutex.Lock()
	defer vb.mutex.Unlock()

	slot := vb.slotFor(frameNumber)
	if slot == nil || slot.frameNumber != frameNumber {
		return fmt.Errorf("EndFrame for frame %d does not match the claimed slot", frameNumber)
	}
	queue, ok := vb.queues[metadata.QueueTypeGraphics]
	if !ok {
		return fmt.Errorf("no graphics queue configured")
	}
	// Empty submit: the fence signals once everything previously
	// submitted to the queue this frame has finished.
	if res := vk.QueueSubmit(queue, 0, nil, slot.fence.Handle); res != vk.Success {
		return fmt.Errorf("fence-signal submit for frame %d failed", frameNumber)
	}
	return nil
}

// ApplyTransitions records the graph's transitions for one pass as
// pipeline barriers on the queue's command buffer.
func (vb *VulkanBackend) ApplyTransitions(queue metadata.QueueType, transitions []metadata.Transition) error {
	cb, ok := vb.commandBuffers[queue]
	if !ok {
		return fmt.Errorf("no command buffer configured for %s queue", queue.String())
	}
	for _, t := range transitions {
		barrier, srcStage, dstStage := barrierFor(t)
		vk.CmdPipelineBarrier(cb, srcStage, dstStage, 0,
			1, []vk.MemoryBarrier{barrier},
			0, nil,
			0, nil)
	}
	return nil
}

// SubmitPass submits the queue's recorded command buffer. Invoked once
// per pass by its executor.
func (vb *VulkanBackend) SubmitPass(queue metadata.QueueType, debugName string) error {
	q, ok := vb.queues[queue]
	if !ok {
		return fmt.Errorf("no %s queue configured", queue.String())
	}
	cb, ok := vb.commandBuffers[queue]
	if !ok {
		return fmt.Errorf("no command buffer configured for %s queue", queue.String())
	}
	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{cb},
	}
	if res := vk.QueueSubmit(q, 1, []vk.SubmitInfo{submitInfo}, vk.NullFence); res != vk.Success {
		return fmt.Errorf("submit of pass '%s' on %s queue failed", debugName, queue.String())
	}
	return nil
}
