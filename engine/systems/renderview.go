package systems

import (
	"fmt"
	"sort"
	"sync"

	"github.com/spaghettifunk/aurora/engine/core"
	"github.com/spaghettifunk/aurora/engine/renderer/metadata"
)

/** @brief The configuration for the render view system. */
type RenderViewSystemConfig struct {
	/** @brief The maximum number of views that can be registered with the system. */
	MaxViewCount uint16
}

/** @brief The configuration for a single view. */
type RenderViewConfig struct {
	Name   string
	Width  uint32
	Height uint32
}

/**
 * @brief A registered view: one camera/output the graph may instantiate
 * per-view passes for. Views are stable between frames; the graph reads
 * the active set at BeginFrame.
 */
type RenderView struct {
	ID     uint16
	Name   string
	Width  uint32
	Height uint32
}

type RenderViewSystem struct {
	mutex           sync.RWMutex
	lookup          map[string]uint16
	maxViewCount    uint32
	registeredViews []*RenderView
}

func NewRenderViewSystem(config RenderViewSystemConfig) (*RenderViewSystem, error) {
	if config.MaxViewCount == 0 {
		return nil, fmt.Errorf("func NewRenderViewSystem - config.MaxViewCount must be > 0")
	}
	rvs := &RenderViewSystem{
		maxViewCount:    uint32(config.MaxViewCount),
		lookup:          make(map[string]uint16, config.MaxViewCount),
		registeredViews: make([]*RenderView, config.MaxViewCount),
	}
	// Fill the array with invalid entries.
	for i := uint32(0); i < rvs.maxViewCount; i++ {
		rvs.registeredViews[i] = &RenderView{
			ID: metadata.InvalidIDUint16,
		}
	}
	return rvs, nil
}

// Create registers a named view and returns its ID.
func (rvs *RenderViewSystem) Create(config *RenderViewConfig) (uint16, error) {
	if config == nil {
		return metadata.InvalidIDUint16, fmt.Errorf("render view creation requires a valid config")
	}
	if config.Name == "" {
		return metadata.InvalidIDUint16, fmt.Errorf("render view creation requires a name")
	}

	rvs.mutex.Lock()
	defer rvs.mutex.Unlock()

	// Make sure there is not already an entry with this name registered.
	if id, ok := rvs.lookup[config.Name]; ok && id != metadata.InvalidIDUint16 {
		return metadata.InvalidIDUint16, fmt.Errorf("a view named '%s' already exists", config.Name)
	}

	// Find a free slot.
	id := metadata.InvalidIDUint16
	for i := uint32(0); i < rvs.maxViewCount; i++ {
		if rvs.registeredViews[i].ID == metadata.InvalidIDUint16 {
			id = uint16(i)
			break
		}
	}
	if id == metadata.InvalidIDUint16 {
		return metadata.InvalidIDUint16, fmt.Errorf("no available slot for a new view, adjust the system config")
	}

	rvs.registeredViews[id] = &RenderView{
		ID:     id,
		Name:   config.Name,
		Width:  config.Width,
		Height: config.Height,
	}
	rvs.lookup[config.Name] = id
	core.LogDebug("registered render view '%s' as %d", config.Name, id)
	return id, nil
}

// Destroy removes a view by name. Passes restricted to the removed view
// simply stop matching from the next frame on.
func (rvs *RenderViewSystem) Destroy(name string) error {
	rvs.mutex.Lock()
	defer rvs.mutex.Unlock()

	id, ok := rvs.lookup[name]
	if !ok || id == metadata.InvalidIDUint16 {
		return fmt.Errorf("no view named '%s' is registered", name)
	}
	rvs.registeredViews[id] = &RenderView{ID: metadata.InvalidIDUint16}
	delete(rvs.lookup, name)
	return nil
}

// Get returns the view registered under the given name.
func (rvs *RenderViewSystem) Get(name string) (*RenderView, error) {
	rvs.mutex.RLock()
	defer rvs.mutex.RUnlock()
	id, ok := rvs.lookup[name]
	if !ok || id == metadata.InvalidIDUint16 {
		return nil, fmt.Errorf("no view named '%s' is registered", name)
	}
	return rvs.registeredViews[id], nil
}

// ActiveViews returns the IDs of all registered views in ascending order.
// The graph expands IterateAllViews passes against this set.
func (rvs *RenderViewSystem) ActiveViews() []uint16 {
	rvs.mutex.RLock()
	defer rvs.mutex.RUnlock()

	views := make([]uint16, 0, len(rvs.lookup))
	for _, id := range rvs.lookup {
		views = append(views, id)
	}
	sort.Slice(views, func(i, j int) bool { return views[i] < views[j] })
	return views
}

func (rvs *RenderViewSystem) Shutdown() error {
	rvs.mutex.Lock()
	defer rvs.mutex.Unlock()
	for i := uint32(0); i < rvs.maxViewCount; i++ {
		rvs.registeredViews[i] = &RenderView{ID: metadata.InvalidIDUint16}
	}
	rvs.lookup = make(map[string]uint16)
	return nil
}
