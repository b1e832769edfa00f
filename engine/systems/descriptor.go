package systems

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/spaghettifunk/aurora/engine/core"
	"github.com/spaghettifunk/aurora/engine/renderer/metadata"
)

// ErrDescriptorsExhausted is returned when the bindless table is full.
// The table size is bound to the backend's GPU-visible table, so there is
// no silent resizing mid-frame.
var ErrDescriptorsExhausted = errors.New("descriptor table exhausted")

/** @brief One slot of the bindless table: which resource, which view of it. */
type DescriptorEntry struct {
	Resource metadata.ResourceHandle
	// ViewKind discriminates multiple descriptors over one resource
	// (e.g. sampled vs storage view). Opaque to this system.
	ViewKind uint32
	InUse    bool
}

/**
 * @brief An immutable published snapshot of the bindless table. Consumers
 * always observe a whole version; never a mix of two versions' writes.
 */
type DescriptorTable struct {
	Version uint64
	Entries []DescriptorEntry
}

/** @brief The configuration for the descriptor system. */
type DescriptorSystemConfig struct {
	/** @brief The fixed bindless table size. */
	TableSize uint32
}

// DescriptorSystem allocates bindless slots and publishes versioned table
// snapshots. Writes stage under the mutex; PublishTable copies the staged
// state into a fresh immutable snapshot and swaps it in with one atomic
// pointer store, so readers see version N or N+1 and nothing in between.
type DescriptorSystem struct {
	mutex sync.Mutex
	// staging is the mutable table; it becomes visible only via publish.
	staging   []DescriptorEntry
	freeStack []metadata.DescriptorIndex
	nextFresh uint32
	dirty     bool
	version   uint64

	published atomic.Pointer[DescriptorTable]
}

func NewDescriptorSystem(config *DescriptorSystemConfig) (*DescriptorSystem, error) {
	if config.TableSize == 0 {
		return nil, fmt.Errorf("func NewDescriptorSystem - config.TableSize must be > 0")
	}
	ds := &DescriptorSystem{
		staging: make([]DescriptorEntry, config.TableSize),
	}
	// Version 0 is the empty table, published from the start.
	ds.published.Store(&DescriptorTable{
		Entries: make([]DescriptorEntry, config.TableSize),
	})
	return ds, nil
}

// Allocate reserves a bindless slot for a view of the given resource.
// Freed slots are reused LIFO before fresh ones are taken.
func (ds *DescriptorSystem) Allocate(resource metadata.ResourceHandle) (metadata.DescriptorIndex, error) {
	ds.mutex.Lock()
	defer ds.mutex.Unlock()

	var index metadata.DescriptorIndex
	if n := len(ds.freeStack); n > 0 {
		index = ds.freeStack[n-1]
		ds.freeStack = ds.freeStack[:n-1]
	} else if ds.nextFresh < uint32(len(ds.staging)) {
		index = metadata.DescriptorIndex(ds.nextFresh)
		ds.nextFresh++
	} else {
		core.LogError("descriptor table exhausted at %d slots", len(ds.staging))
		return metadata.InvalidDescriptorIndex, ErrDescriptorsExhausted
	}

	ds.staging[index] = DescriptorEntry{Resource: resource, InUse: true}
	ds.dirty = true
	return index, nil
}

// Write stages a descriptor update. It becomes GPU-visible at the next
// publish, never before.
func (ds *DescriptorSystem) Write(index metadata.DescriptorIndex, resource metadata.ResourceHandle, viewKind uint32) error {
	ds.mutex.Lock()
	defer ds.mutex.Unlock()

	if uint32(index) >= uint32(len(ds.staging)) || !ds.staging[index].InUse {
		return fmt.Errorf("descriptor write to unallocated slot %d", index)
	}
	ds.staging[index] = DescriptorEntry{Resource: resource, ViewKind: viewKind, InUse: true}
	ds.dirty = true
	return nil
}

// Free returns a slot for reuse. Published snapshots are copies, so an
// in-flight frame reading version N is unaffected by reuse in N+1.
func (ds *DescriptorSystem) Free(index metadata.DescriptorIndex) error {
	ds.mutex.Lock()
	defer ds.mutex.Unlock()

	if uint32(index) >= uint32(len(ds.staging)) || !ds.staging[index].InUse {
		return fmt.Errorf("descriptor free of unallocated slot %d", index)
	}
	ds.staging[index] = DescriptorEntry{}
	ds.freeStack = append(ds.freeStack, index)
	ds.dirty = true
	return nil
}

// PublishTable commits every staged write as one unit and returns the new
// version. The snapshot swap is a single atomic store.
func (ds *DescriptorSystem) PublishTable() uint64 {
	ds.mutex.Lock()
	ds.version++
	snapshot := &DescriptorTable{
		Version: ds.version,
		Entries: make([]DescriptorEntry, len(ds.staging)),
	}
	copy(snapshot.Entries, ds.staging)
	ds.published.Store(snapshot)
	ds.dirty = false
	// The event fires unlocked so a listener may call back in.
	ds.mutex.Unlock()

	core.MetricsAddTablePublished()
	ctx := core.EventContext{}
	ctx.Data.U64[0] = snapshot.Version
	core.EventFire(core.EVENT_CODE_DESCRIPTOR_TABLE_PUBLISHED, ds, ctx)
	return snapshot.Version
}

// PublishIfDirty publishes only when staged writes exist since the last
// publish. Returns the current version either way.
func (ds *DescriptorSystem) PublishIfDirty() uint64 {
	ds.mutex.Lock()
	dirty := ds.dirty
	version := ds.version
	ds.mutex.Unlock()
	if dirty {
		return ds.PublishTable()
	}
	return version
}

// Table returns the most recently published snapshot. Never nil, never a
// partial state.
func (ds *DescriptorSystem) Table() *DescriptorTable {
	return ds.published.Load()
}

// AllocatedCount reports how many slots are currently reserved.
func (ds *DescriptorSystem) AllocatedCount() uint32 {
	ds.mutex.Lock()
	defer ds.mutex.Unlock()
	return ds.nextFresh - uint32(len(ds.freeStack))
}

func (ds *DescriptorSystem) Shutdown() error {
	ds.mutex.Lock()
	defer ds.mutex.Unlock()
	if allocated := ds.nextFresh - uint32(len(ds.freeStack)); allocated > 0 {
		core.LogWarn("descriptor system shutting down with %d slots still allocated", allocated)
	}
	return nil
}
