package systems

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/aurora/engine/renderer/metadata"
)

func newTestRegistry(t *testing.T, capacity uint32) (*ResourceSystem, *ReclaimSystem, *fakeSignal) {
	t.Helper()
	signal := &fakeSignal{}
	reclaimer, err := NewReclaimSystem(&ReclaimSystemConfig{MaxPendingCount: capacity}, signal)
	require.NoError(t, err)
	rs, err := NewResourceSystem(&ResourceSystemConfig{MaxResourceCount: capacity}, reclaimer)
	require.NoError(t, err)
	return rs, reclaimer, signal
}

func TestResourceSystemRegisterAndValidate(t *testing.T) {
	rs, _, _ := newTestRegistry(t, 4)

	h, err := rs.Register("albedo")
	require.NoError(t, err)
	assert.NoError(t, rs.Validate(h))
	assert.Equal(t, uint32(1), rs.LiveCount())

	name, err := rs.Name(h)
	require.NoError(t, err)
	assert.Equal(t, "albedo", name)
}

func TestResourceSystemGeneratesNames(t *testing.T) {
	rs, _, _ := newTestRegistry(t, 4)

	h, err := rs.Register("")
	require.NoError(t, err)
	name, err := rs.Name(h)
	require.NoError(t, err)
	assert.NotEmpty(t, name)
}

func TestResourceSystemStaleVersusUnknown(t *testing.T) {
	rs, _, _ := newTestRegistry(t, 4)

	h, err := rs.Register("transient")
	require.NoError(t, err)

	// A retired handle is stale, not unknown.
	require.NoError(t, rs.Unregister(h))
	assert.ErrorIs(t, rs.Validate(h), ErrStaleHandle)

	// An index that never held a resource is unknown.
	bogus := metadata.NewResourceHandle(3, 0)
	assert.ErrorIs(t, rs.Validate(bogus), ErrUnknownHandle)

	// An out-of-range index is unknown too.
	outOfRange := metadata.NewResourceHandle(99, 0)
	assert.ErrorIs(t, rs.Validate(outOfRange), ErrUnknownHandle)

	assert.ErrorIs(t, rs.Validate(metadata.InvalidResourceHandle), ErrUnknownHandle)
}

func TestResourceSystemGenerationSafetyOnReuse(t *testing.T) {
	rs, reclaimer, signal := newTestRegistry(t, 2)

	h1, err := rs.Register("first")
	require.NoError(t, err)
	index := h1.Index()

	require.NoError(t, rs.Unregister(h1))
	require.NoError(t, rs.FlushRetirements(1))

	// The slot only returns to the free list once the GPU confirms.
	signal.set(1)
	assert.Equal(t, 1, reclaimer.ProcessCompletedFrames())

	h2, err := rs.Register("second")
	require.NoError(t, err)

	// Index reuse bumps the generation: h2 shares the index but not the
	// generation, and validating h1 after h2 exists must fail.
	assert.Equal(t, index, h2.Index())
	assert.Equal(t, h1.Generation()+1, h2.Generation())
	assert.ErrorIs(t, rs.Validate(h1), ErrStaleHandle)
	assert.NoError(t, rs.Validate(h2))
}

func TestResourceSystemSlotNotReusedBeforeCompletion(t *testing.T) {
	rs, _, _ := newTestRegistry(t, 1)

	h, err := rs.Register("only")
	require.NoError(t, err)
	require.NoError(t, rs.Unregister(h))
	require.NoError(t, rs.FlushRetirements(1))

	// The single slot is still pending reclaim: registration must fail
	// rather than hand out an index the GPU may still reference.
	_, err = rs.Register("next")
	assert.ErrorIs(t, err, ErrResourcesExhausted)
}

func TestResourceSystemExhaustion(t *testing.T) {
	rs, _, _ := newTestRegistry(t, 2)

	_, err := rs.Register("a")
	require.NoError(t, err)
	_, err = rs.Register("b")
	require.NoError(t, err)

	_, err = rs.Register("c")
	assert.ErrorIs(t, err, ErrResourcesExhausted)
}

func TestResourceSystemUnregisterTwiceFails(t *testing.T) {
	rs, _, _ := newTestRegistry(t, 2)

	h, err := rs.Register("once")
	require.NoError(t, err)
	require.NoError(t, rs.Unregister(h))
	assert.ErrorIs(t, rs.Unregister(h), ErrStaleHandle)
	assert.Equal(t, uint32(1), rs.RetiredCount())
}

func TestResourceSystemRetiredCountDrops(t *testing.T) {
	rs, reclaimer, signal := newTestRegistry(t, 4)

	h, err := rs.Register("tmp")
	require.NoError(t, err)
	require.NoError(t, rs.Unregister(h))
	require.NoError(t, rs.FlushRetirements(7))
	assert.Equal(t, uint32(1), rs.RetiredCount())

	signal.set(7)
	assert.Equal(t, 1, reclaimer.ProcessCompletedFrames())
	assert.Equal(t, uint32(0), rs.RetiredCount())
}

func TestResourceSystemFlushFailureKeepsRetirements(t *testing.T) {
	signal := &fakeSignal{}
	reclaimer, err := NewReclaimSystem(&ReclaimSystemConfig{MaxPendingCount: 1}, signal)
	require.NoError(t, err)
	rs, err := NewResourceSystem(&ResourceSystemConfig{MaxResourceCount: 2}, reclaimer)
	require.NoError(t, err)

	h1, err := rs.Register("a")
	require.NoError(t, err)
	h2, err := rs.Register("b")
	require.NoError(t, err)
	require.NoError(t, rs.Unregister(h1))
	require.NoError(t, rs.Unregister(h2))

	// Only one reclaim slot: the flush fails partway and must keep the
	// unscheduled record rather than leak its slot.
	require.Error(t, rs.FlushRetirements(1))
	assert.Equal(t, 1, reclaimer.PendingCount())
	assert.Equal(t, uint32(2), rs.RetiredCount())

	// Once the queued record drains, a later flush carries the survivor.
	signal.set(1)
	assert.Equal(t, 1, reclaimer.ProcessCompletedFrames())
	require.NoError(t, rs.FlushRetirements(2))
	assert.Equal(t, 1, reclaimer.PendingCount())

	signal.set(2)
	assert.Equal(t, 1, reclaimer.ProcessCompletedFrames())
	assert.Equal(t, uint32(0), rs.RetiredCount())
}

func TestResourceSystemConcurrentRegistration(t *testing.T) {
	rs, _, _ := newTestRegistry(t, 256)

	const workers = 8
	const perWorker = 32
	handles := make(chan metadata.ResourceHandle, workers*perWorker)
	doneCh := make(chan struct{})
	for w := 0; w < workers; w++ {
		go func() {
			for i := 0; i < perWorker; i++ {
				h, err := rs.Register("")
				if err == nil {
					handles <- h
				}
			}
			doneCh <- struct{}{}
		}()
	}
	for w := 0; w < workers; w++ {
		<-doneCh
	}
	close(handles)

	seen := make(map[metadata.ResourceHandle]struct{})
	for h := range handles {
		_, dup := seen[h]
		assert.False(t, dup, "duplicate handle %s", h.String())
		seen[h] = struct{}{}
	}
	assert.Len(t, seen, workers*perWorker)
}
