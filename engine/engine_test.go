package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/aurora/engine/core"
)

func newRunnableEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(&Game{})
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	return e
}

func runUntilStopped(t *testing.T, e *Engine) chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- e.Run() }()
	return done
}

func TestEngineQuitEventStopsRun(t *testing.T) {
	e := newRunnableEngine(t)
	done := runUntilStopped(t, e)

	// Let the frame loop spin before quitting from another goroutine,
	// the way the signal handler does.
	time.Sleep(10 * time.Millisecond)
	core.EventFire(core.EVENT_CODE_APPLICATION_QUIT, nil, core.EventContext{})

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("frame loop did not stop on the quit event")
	}
	assert.Equal(t, EngineStageShuttingDown, e.stage())
}

func TestEngineShutdownWhileRunningDefersTeardown(t *testing.T) {
	e := newRunnableEngine(t)
	done := runUntilStopped(t, e)

	time.Sleep(10 * time.Millisecond)
	// Shutdown from another goroutine only requests the stop; the loop
	// finishes its frame and tears the systems down itself.
	require.NoError(t, e.Shutdown())

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("frame loop did not stop on shutdown request")
	}

	// A second shutdown after teardown is a no-op.
	assert.NoError(t, e.Shutdown())
}
