package renderer

import (
	"errors"
	"fmt"
	"time"

	"github.com/spaghettifunk/aurora/engine/config"
	"github.com/spaghettifunk/aurora/engine/core"
	"github.com/spaghettifunk/aurora/engine/renderer/graph"
	"github.com/spaghettifunk/aurora/engine/renderer/metadata"
	"github.com/spaghettifunk/aurora/engine/systems"
)

// RendererBackend is the boundary to the excluded backend layer: it
// reports GPU completion, brackets frames, and carries the command
// submission primitive pass executors record through. Everything else
// about the backend is opaque to the core.
type RendererBackend interface {
	Initialize(appName string) error
	Shutdown() error

	// CompletedFrame reports the latest confirmed-complete frame number.
	// This is the reclaim system's sole external dependency.
	CompletedFrame() uint64

	BeginFrame(frameNumber uint64) error
	EndFrame(frameNumber uint64) error

	graph.CommandSubmitter
}

var (
	// ErrFrameActive is returned when BeginFrame is called inside an
	// active frame. Frames never nest; this is a programming error.
	ErrFrameActive = errors.New("BeginFrame called while a frame is already active")
	// ErrNoActiveFrame is returned for frame operations outside
	// BeginFrame/EndFrame.
	ErrNoActiveFrame = errors.New("no frame is active")
)

type frameState uint8

const (
	stateIdle frameState = iota
	stateFrameActive
)

// Renderer is the frame lifecycle coordinator. It owns the frame epoch,
// drives reclamation at frame begin and retirement/publication at frame
// end, and hands out the per-frame graph builder. One instance per
// process; it is passed by reference, never looked up globally.
//
// The epoch is a monotonic frame counter for retirement tagging and
// diagnostics only. It never substitutes for per-handle generation
// validation; the registry's generation check stands alone.
type Renderer struct {
	backend RendererBackend
	systems *systems.SystemManager

	framesInFlight uint8
	epoch          uint64
	state          frameState
	builder        *graph.Builder
}

func New(cfg *config.RendererConfig, backend RendererBackend, sm *systems.SystemManager) (*Renderer, error) {
	if backend == nil {
		return nil, fmt.Errorf("func New - a renderer backend is required")
	}
	if sm == nil {
		return nil, fmt.Errorf("func New - a system manager is required")
	}
	return &Renderer{
		backend:        backend,
		systems:        sm,
		framesInFlight: cfg.FramesInFlight,
	}, nil
}

func (r *Renderer) Initialize(appName string) error {
	return r.backend.Initialize(appName)
}

func (r *Renderer) Shutdown() error {
	return r.backend.Shutdown()
}

// Epoch returns the current frame number. Diagnostic only.
func (r *Renderer) Epoch() uint64 {
	return r.epoch
}

// BeginFrame advances the epoch, drains completed retirements and
// returns a fresh graph builder for the frame. When the CPU is a full
// frames-in-flight window ahead of confirmed GPU completion it polls the
// completion signal until the window opens; that poll is the
// coordinator's whole backpressure policy.
func (r *Renderer) BeginFrame() (*graph.Builder, error) {
	if r.state == stateFrameActive {
		core.LogError("BeginFrame called while frame %d is still active", r.epoch)
		return nil, ErrFrameActive
	}

	for {
		completed := r.backend.CompletedFrame()
		// A signal claiming frames ahead of the epoch never applies
		// backpressure; the unsigned subtraction would underflow.
		if completed >= r.epoch || r.epoch-completed < uint64(r.framesInFlight) {
			break
		}
		time.Sleep(200 * time.Microsecond)
	}

	r.epoch++
	released := r.systems.ReclaimSystem.ProcessCompletedFrames()
	if released > 0 {
		core.LogDebug("frame %d: released %d retired resources", r.epoch, released)
	}

	if err := r.backend.BeginFrame(r.epoch); err != nil {
		r.epoch--
		return nil, fmt.Errorf("backend BeginFrame failed: %w", err)
	}

	r.builder = graph.NewBuilder(r.epoch, r.systems.RenderViewSystem.ActiveViews(), r.systems.ResourceSystem.Validate)
	r.state = stateFrameActive
	return r.builder, nil
}

// AddPass submits a pass to the active frame's graph.
func (r *Renderer) AddPass(p *graph.Pass) error {
	if r.state != stateFrameActive {
		return ErrNoActiveFrame
	}
	return r.builder.AddPass(p)
}

// Execute compiles the active frame's graph and runs every pass through
// the job system. A build-time failure (cycle, unbound executor, stale
// handle) aborts the frame's graph before any execution begins.
func (r *Renderer) Execute() error {
	if r.state != stateFrameActive {
		return ErrNoActiveFrame
	}
	compiled, err := r.builder.Compile()
	if err != nil {
		core.LogError("frame %d graph build failed: %s", r.epoch, err.Error())
		return err
	}
	return compiled.Execute(r.systems.JobSystem, r.backend)
}

// EndFrame finalizes descriptor publication, hands the frame's
// retirements to the reclaim system tagged with this frame's number, and
// returns to idle.
func (r *Renderer) EndFrame() error {
	if r.state != stateFrameActive {
		core.LogError("EndFrame called with no active frame")
		return ErrNoActiveFrame
	}

	r.systems.DescriptorSystem.PublishIfDirty()
	if err := r.systems.ResourceSystem.FlushRetirements(r.epoch); err != nil {
		return err
	}
	if err := r.backend.EndFrame(r.epoch); err != nil {
		return fmt.Errorf("backend EndFrame failed: %w", err)
	}

	r.builder = nil
	r.state = stateIdle
	return nil
}

// RegisterResource allocates a handle in the resource registry.
func (r *Renderer) RegisterResource(name string) (metadata.ResourceHandle, error) {
	return r.systems.ResourceSystem.Register(name)
}

// UnregisterResource retires a resource; physical release happens only
// after the GPU confirms the retiring frame.
func (r *Renderer) UnregisterResource(handle metadata.ResourceHandle) error {
	return r.systems.ResourceSystem.Unregister(handle)
}

// AllocateDescriptor reserves a bindless slot for a view of the resource.
func (r *Renderer) AllocateDescriptor(handle metadata.ResourceHandle) (metadata.DescriptorIndex, error) {
	if err := r.systems.ResourceSystem.Validate(handle); err != nil {
		return metadata.InvalidDescriptorIndex, err
	}
	return r.systems.DescriptorSystem.Allocate(handle)
}

// CreateRenderView registers a view for per-view pass expansion.
func (r *Renderer) CreateRenderView(cfg *systems.RenderViewConfig) (uint16, error) {
	return r.systems.RenderViewSystem.Create(cfg)
}

// DestroyRenderView removes a view; per-view passes stop matching it
// from the next frame on.
func (r *Renderer) DestroyRenderView(name string) error {
	return r.systems.RenderViewSystem.Destroy(name)
}

// PublishDescriptorTable commits all staged descriptor writes as one
// atomically visible version.
func (r *Renderer) PublishDescriptorTable() uint64 {
	return r.systems.DescriptorSystem.PublishTable()
}

// CheckInvariants runs the standalone consistency check across the
// lifetime systems. For diagnostics and tests.
func (r *Renderer) CheckInvariants() systems.InvariantReport {
	return r.systems.ReclaimSystem.CheckInvariants(r.systems.ResourceSystem.RetiredCount(), r.epoch)
}
