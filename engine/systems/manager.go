package systems

import (
	"github.com/spaghettifunk/aurora/engine/config"
	"github.com/spaghettifunk/aurora/engine/containers"
)

// SystemManager owns the core systems and wires them together. It is
// plain composition: every consumer receives the sub-systems it needs by
// reference, nothing is looked up through package globals.
type SystemManager struct {
	ResourceSystem   *ResourceSystem
	DescriptorSystem *DescriptorSystem
	ReclaimSystem    *ReclaimSystem
	RenderViewSystem *RenderViewSystem
	JobSystem        *JobSystem
}

func NewSystemManager(cfg *config.RendererConfig, signal CompletionSignal) (*SystemManager, error) {
	// A lane never needs more slots than the registry has resources, and
	// a tiny registry still deserves room for a frame's worth of passes.
	jobChannelSize := containers.Clamp(int(cfg.MaxResourceCount), 64, 1024)
	js, err := NewJobSystem(cfg.WorkersPerQueue, jobChannelSize)
	if err != nil {
		return nil, err
	}
	rcs, err := NewReclaimSystem(&ReclaimSystemConfig{
		MaxPendingCount: cfg.MaxResourceCount,
	}, signal)
	if err != nil {
		return nil, err
	}
	rs, err := NewResourceSystem(&ResourceSystemConfig{
		MaxResourceCount: cfg.MaxResourceCount,
	}, rcs)
	if err != nil {
		return nil, err
	}
	ds, err := NewDescriptorSystem(&DescriptorSystemConfig{
		TableSize: cfg.DescriptorTableSize,
	})
	if err != nil {
		return nil, err
	}
	rvs, err := NewRenderViewSystem(RenderViewSystemConfig{
		MaxViewCount: cfg.MaxViewCount,
	})
	if err != nil {
		return nil, err
	}
	return &SystemManager{
		ResourceSystem:   rs,
		DescriptorSystem: ds,
		ReclaimSystem:    rcs,
		RenderViewSystem: rvs,
		JobSystem:        js,
	}, nil
}

func (sm *SystemManager) Shutdown() error {
	if err := sm.RenderViewSystem.Shutdown(); err != nil {
		return err
	}
	if err := sm.DescriptorSystem.Shutdown(); err != nil {
		return err
	}
	if err := sm.ResourceSystem.Shutdown(); err != nil {
		return err
	}
	if err := sm.ReclaimSystem.Shutdown(); err != nil {
		return err
	}
	if err := sm.JobSystem.Shutdown(); err != nil {
		return err
	}
	return nil
}
