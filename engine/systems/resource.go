package systems

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/spaghettifunk/aurora/engine/core"
	"github.com/spaghettifunk/aurora/engine/renderer/metadata"
)

var (
	// ErrResourcesExhausted is returned when the fixed-capacity registry
	// has no free slot. There is no implicit growth mid-frame.
	ErrResourcesExhausted = errors.New("resource registry exhausted")
	// ErrStaleHandle is returned when a handle's generation no longer
	// matches its slot: the resource was retired, and possibly the slot
	// was reused.
	ErrStaleHandle = errors.New("stale resource handle")
	// ErrUnknownHandle is returned for an index that never held a live
	// resource. This is a programmer error, not a lifetime race.
	ErrUnknownHandle = errors.New("unknown resource handle")
)

/** @brief The configuration for the resource system. */
type ResourceSystemConfig struct {
	/** @brief The fixed number of registry slots. */
	MaxResourceCount uint32
}

type resourceSlot struct {
	generation uint32
	name       string
	live       bool
	// everLive distinguishes "index reused" from "index never existed"
	// when validation fails.
	everLive bool
}

// ResourceSystem is the process-wide registry mapping opaque handles to
// resource state. Registration from multiple producers is serialized by
// a writer lock; lookups of live metadata take the read side.
//
// Slot indices return to the free list only when the reclaim system has
// confirmed the GPU is done with them; reuse bumps the slot generation so
// outstanding handles to the old occupant fail validation.
type ResourceSystem struct {
	mutex     sync.RWMutex
	slots     []resourceSlot
	freeList  []uint32
	nextFresh uint32
	liveCount uint32
	// retiredCount tracks resources marked dead but not yet physically
	// released.
	retiredCount uint32

	reclaimer *ReclaimSystem
	// pendingRetirements accumulate during a frame and are handed to the
	// reclaimer at frame end, tagged with that frame's number.
	pendingRetirements []RetirementRecord
}

func NewResourceSystem(config *ResourceSystemConfig, reclaimer *ReclaimSystem) (*ResourceSystem, error) {
	if config.MaxResourceCount == 0 {
		return nil, fmt.Errorf("func NewResourceSystem - config.MaxResourceCount must be > 0")
	}
	if reclaimer == nil {
		return nil, fmt.Errorf("func NewResourceSystem - a reclaim system is required")
	}
	rs := &ResourceSystem{
		slots:     make([]resourceSlot, config.MaxResourceCount),
		reclaimer: reclaimer,
	}
	reclaimer.SetReleaser(rs.release)
	return rs, nil
}

// Register allocates a fresh handle for a resource. An empty name gets a
// generated one so retirement records stay traceable.
func (rs *ResourceSystem) Register(name string) (metadata.ResourceHandle, error) {
	if name == "" {
		name = fmt.Sprintf("resource-%s", uuid.New().String())
	}

	rs.mutex.Lock()
	defer rs.mutex.Unlock()

	var index uint32
	if n := len(rs.freeList); n > 0 {
		index = rs.freeList[n-1]
		rs.freeList = rs.freeList[:n-1]
	} else if rs.nextFresh < uint32(len(rs.slots)) {
		index = rs.nextFresh
		rs.nextFresh++
	} else {
		core.LogError("resource registry exhausted at %d slots, cannot register %s", len(rs.slots), name)
		return metadata.InvalidResourceHandle, ErrResourcesExhausted
	}

	slot := &rs.slots[index]
	slot.live = true
	slot.everLive = true
	slot.name = name
	rs.liveCount++

	handle := metadata.NewResourceHandle(index, slot.generation)
	core.LogDebug("registered %s as %s", name, handle.String())
	return handle, nil
}

// Unregister marks the handle dead. Storage is not freed here; the
// retirement is queued and handed to the reclaim system at frame end.
func (rs *ResourceSystem) Unregister(handle metadata.ResourceHandle) error {
	rs.mutex.Lock()
	defer rs.mutex.Unlock()

	if err := rs.validateLocked(handle); err != nil {
		return err
	}
	slot := &rs.slots[handle.Index()]
	slot.live = false
	rs.liveCount--
	rs.retiredCount++
	rs.pendingRetirements = append(rs.pendingRetirements, RetirementRecord{
		Handle:    handle,
		DebugName: slot.name,
	})
	return nil
}

// FlushRetirements hands every retirement accumulated this frame to the
// reclaim system, tagged with the frame now being submitted. Called by
// the frame coordinator at EndFrame.
func (rs *ResourceSystem) FlushRetirements(submittedFrame uint64) error {
	rs.mutex.Lock()
	pending := rs.pendingRetirements
	rs.pendingRetirements = nil
	rs.mutex.Unlock()

	for i, record := range pending {
		if err := rs.reclaimer.ScheduleReclaim(record.Handle, submittedFrame, record.DebugName); err != nil {
			// Put the unprocessed remainder back so the slots are not
			// leaked; they go out with a later flush.
			rs.mutex.Lock()
			rs.pendingRetirements = append(pending[i:len(pending):len(pending)], rs.pendingRetirements...)
			rs.mutex.Unlock()
			return err
		}
	}
	return nil
}

// Validate checks that the handle still refers to a live resource. The
// check is purely generation-based; the frame epoch plays no part.
func (rs *ResourceSystem) Validate(handle metadata.ResourceHandle) error {
	rs.mutex.RLock()
	defer rs.mutex.RUnlock()
	return rs.validateLocked(handle)
}

func (rs *ResourceSystem) validateLocked(handle metadata.ResourceHandle) error {
	index := handle.Index()
	if !handle.IsValid() || index >= uint32(len(rs.slots)) {
		return fmt.Errorf("%s: %w", handle.String(), ErrUnknownHandle)
	}
	slot := &rs.slots[index]
	if !slot.everLive {
		return fmt.Errorf("%s: %w", handle.String(), ErrUnknownHandle)
	}
	if !slot.live || slot.generation != handle.Generation() {
		return fmt.Errorf("%s: %w", handle.String(), ErrStaleHandle)
	}
	return nil
}

// Name returns the debug name of a live resource.
func (rs *ResourceSystem) Name(handle metadata.ResourceHandle) (string, error) {
	rs.mutex.RLock()
	defer rs.mutex.RUnlock()
	if err := rs.validateLocked(handle); err != nil {
		return "", err
	}
	return rs.slots[handle.Index()].name, nil
}

// release is the reclaim system's callback: the GPU is provably done
// with the slot, so bump its generation and return the index for reuse.
func (rs *ResourceSystem) release(record RetirementRecord) {
	rs.mutex.Lock()
	defer rs.mutex.Unlock()

	index := record.Handle.Index()
	if index >= uint32(len(rs.slots)) {
		core.LogError("release of out-of-range slot %d ignored", index)
		return
	}
	slot := &rs.slots[index]
	slot.generation++
	slot.name = ""
	rs.freeList = append(rs.freeList, index)
	if rs.retiredCount > 0 {
		rs.retiredCount--
	}
}

func (rs *ResourceSystem) LiveCount() uint32 {
	rs.mutex.RLock()
	defer rs.mutex.RUnlock()
	return rs.liveCount
}

func (rs *ResourceSystem) RetiredCount() uint32 {
	rs.mutex.RLock()
	defer rs.mutex.RUnlock()
	return rs.retiredCount
}

func (rs *ResourceSystem) Shutdown() error {
	rs.mutex.Lock()
	defer rs.mutex.Unlock()
	if rs.liveCount > 0 {
		core.LogWarn("resource system shutting down with %d resources still live", rs.liveCount)
	}
	rs.slots = nil
	rs.freeList = nil
	rs.pendingRetirements = nil
	return nil
}
