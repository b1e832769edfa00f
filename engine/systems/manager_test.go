package systems

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/aurora/engine/config"
	"github.com/spaghettifunk/aurora/engine/renderer/metadata"
)

func newTestManager(t *testing.T, mutate func(*config.RendererConfig)) *SystemManager {
	t.Helper()
	cfg := config.Default().Renderer
	if mutate != nil {
		mutate(&cfg)
	}
	sm, err := NewSystemManager(&cfg, &fakeSignal{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sm.Shutdown() })
	return sm
}

func TestSystemManagerWiresEverything(t *testing.T) {
	sm := newTestManager(t, nil)
	assert.NotNil(t, sm.ResourceSystem)
	assert.NotNil(t, sm.DescriptorSystem)
	assert.NotNil(t, sm.ReclaimSystem)
	assert.NotNil(t, sm.RenderViewSystem)
	assert.NotNil(t, sm.JobSystem)

	// The releaser is wired: a full retire/confirm round trip frees the slot.
	h, err := sm.ResourceSystem.Register("wired")
	require.NoError(t, err)
	require.NoError(t, sm.ResourceSystem.Unregister(h))
	require.NoError(t, sm.ResourceSystem.FlushRetirements(1))
	assert.Equal(t, 1, sm.ReclaimSystem.PendingCount())
}

func TestSystemManagerHandlesExtremeCapacities(t *testing.T) {
	// Lane sizing is clamped, so a one-slot registry and a huge one both
	// construct and accept work.
	for _, capacity := range []uint32{1, 1 << 20} {
		sm := newTestManager(t, func(c *config.RendererConfig) { c.MaxResourceCount = capacity })

		done := make(chan struct{})
		require.NoError(t, sm.JobSystem.Submit(metadata.QueueTypeGraphics, JobTask{
			Name:    "smoke",
			OnStart: func() error { close(done); return nil },
		}))
		<-done
	}
}
