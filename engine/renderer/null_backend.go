package renderer

import (
	"sync"

	"github.com/spaghettifunk/aurora/engine/core"
	"github.com/spaghettifunk/aurora/engine/renderer/metadata"
)

// NullBackend is a headless backend: it records nothing and, when
// autoComplete is set, confirms every frame at EndFrame. Useful for
// tests and for running the frame loop without a GPU.
type NullBackend struct {
	mutex        sync.Mutex
	completed    uint64
	autoComplete bool
}

func NewNullBackend(autoComplete bool) *NullBackend {
	return &NullBackend{autoComplete: autoComplete}
}

func (nb *NullBackend) Initialize(appName string) error {
	core.LogInfo("null backend initialized for '%s'", appName)
	return nil
}

func (nb *NullBackend) Shutdown() error {
	return nil
}

func (nb *NullBackend) CompletedFrame() uint64 {
	nb.mutex.Lock()
	defer nb.mutex.Unlock()
	return nb.completed
}

// SetCompletedFrame moves the completion signal by hand, for tests that
// control GPU progress explicitly.
func (nb *NullBackend) SetCompletedFrame(frameNumber uint64) {
	nb.mutex.Lock()
	nb.completed = frameNumber
	nb.mutex.Unlock()
}

func (nb *NullBackend) BeginFrame(frameNumber uint64) error {
	return nil
}

func (nb *NullBackend) EndFrame(frameNumber uint64) error {
	if nb.autoComplete {
		nb.mutex.Lock()
		nb.completed = frameNumber
		nb.mutex.Unlock()
	}
	return nil
}

func (nb *NullBackend) ApplyTransitions(queue metadata.QueueType, transitions []metadata.Transition) error {
	for _, t := range transitions {
		core.LogDebug("null backend: %s transition %s -> %s on %s queue",
			t.Handle.String(), t.Before.String(), t.After.String(), queue.String())
	}
	return nil
}

func (nb *NullBackend) SubmitPass(queue metadata.QueueType, debugName string) error {
	core.LogDebug("null backend: submit '%s' on %s queue", debugName, queue.String())
	return nil
}
