package metadata

import (
	"fmt"
	"math"
)

/** @brief An invalid 32-bit identifier, used as a sentinel across all systems. */
const InvalidID uint32 = math.MaxUint32

/** @brief An invalid 16-bit identifier. */
const InvalidIDUint16 uint16 = math.MaxUint16

/** @brief An invalid 64-bit identifier. */
const InvalidIDUint64 uint64 = math.MaxUint64

/**
 * @brief An opaque, versioned identifier for a GPU-visible resource.
 * The low 32 bits hold the registry slot index, the high 32 bits hold
 * the generation counter for that slot. A handle is a capability held
 * by value; only the resource system owns the slot it points at.
 */
type ResourceHandle uint64

// An always-invalid handle. The zero value of ResourceHandle is a valid
// handle for slot 0 generation 0, so invalid must be explicit.
var InvalidResourceHandle = NewResourceHandle(InvalidID, InvalidID)

func NewResourceHandle(index, generation uint32) ResourceHandle {
	return ResourceHandle(uint64(generation)<<32 | uint64(index))
}

// Index returns the registry slot this handle points at.
func (h ResourceHandle) Index() uint32 {
	return uint32(h & 0xFFFFFFFF)
}

// Generation returns the slot generation this handle was minted with.
// Validation compares it against the slot's live generation; the frame
// epoch is never an input here.
func (h ResourceHandle) Generation() uint32 {
	return uint32(h >> 32)
}

func (h ResourceHandle) IsValid() bool {
	return h != InvalidResourceHandle
}

func (h ResourceHandle) String() string {
	if !h.IsValid() {
		return "ResourceHandle(invalid)"
	}
	return fmt.Sprintf("ResourceHandle(index=%d, generation=%d)", h.Index(), h.Generation())
}

/**
 * @brief A slot in the bindless descriptor table. Descriptor indices live
 * in a separate namespace from resource handles; a resource may be pointed
 * at by any number of descriptors, one per view of it.
 */
type DescriptorIndex uint32

const InvalidDescriptorIndex DescriptorIndex = DescriptorIndex(math.MaxUint32)
