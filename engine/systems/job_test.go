package systems

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/aurora/engine/renderer/metadata"
)

func TestJobSystemValidation(t *testing.T) {
	_, err := NewJobSystem(0, 8)
	assert.ErrorIs(t, err, ErrNoWorkers)
	_, err = NewJobSystem(1, -1)
	assert.ErrorIs(t, err, ErrNegativeChannelSize)
}

func TestJobSystemLaneOrdering(t *testing.T) {
	js, err := NewJobSystem(1, 16)
	require.NoError(t, err)

	var mutex sync.Mutex
	var ran []int
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		i := i
		wg.Add(1)
		require.NoError(t, js.Submit(metadata.QueueTypeGraphics, JobTask{
			Name: fmt.Sprintf("job-%d", i),
			OnStart: func() error {
				defer wg.Done()
				mutex.Lock()
				ran = append(ran, i)
				mutex.Unlock()
				return nil
			},
		}))
	}
	wg.Wait()

	// One worker per lane keeps submission order.
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7}, ran)
	require.NoError(t, js.Shutdown())
}

func TestJobSystemFailureCallback(t *testing.T) {
	js, err := NewJobSystem(1, 4)
	require.NoError(t, err)

	failed := make(chan error, 1)
	require.NoError(t, js.Submit(metadata.QueueTypeCompute, JobTask{
		Name:      "boom",
		OnStart:   func() error { return fmt.Errorf("boom") },
		OnFailure: func(err error) { failed <- err },
	}))

	assert.EqualError(t, <-failed, "boom")
	require.NoError(t, js.Shutdown())
}
