package testbed

import (
	"github.com/spaghettifunk/aurora/engine"
	"github.com/spaghettifunk/aurora/engine/config"
	"github.com/spaghettifunk/aurora/engine/renderer"
	"github.com/spaghettifunk/aurora/engine/renderer/graph"
	"github.com/spaghettifunk/aurora/engine/renderer/metadata"
	"github.com/spaghettifunk/aurora/engine/systems"
)

type TestGame struct {
	*engine.Game
}

type gameState struct {
	gbuffer    metadata.ResourceHandle
	backbuffer metadata.ResourceHandle
	luminance  metadata.ResourceHandle

	frameCount uint64
}

// NewTestGame builds a small deferred-shading style frame: a geometry
// pass fills the gbuffer, a compute pass derives scene luminance, a
// lighting pass reads both and writes the backbuffer, and a per-view
// overlay runs once per registered view.
func NewTestGame() *TestGame {
	cfg := config.Default()
	cfg.Application.Name = "Aurora Testbed"
	cfg.Application.LogLevel = "debug"

	state := &gameState{}
	tg := &TestGame{
		Game: &engine.Game{
			Config: cfg,
			State:  state,
		},
	}
	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnRender = tg.Render
	return tg
}

func (tg *TestGame) Initialize(r *renderer.Renderer) error {
	state := tg.State.(*gameState)

	var err error
	if state.gbuffer, err = r.RegisterResource("gbuffer"); err != nil {
		return err
	}
	if state.backbuffer, err = r.RegisterResource("backbuffer"); err != nil {
		return err
	}
	if state.luminance, err = r.RegisterResource("luminance"); err != nil {
		return err
	}

	if _, err := r.CreateRenderView(&systems.RenderViewConfig{Name: "main", Width: 1280, Height: 720}); err != nil {
		return err
	}
	if _, err := r.CreateRenderView(&systems.RenderViewConfig{Name: "minimap", Width: 256, Height: 256}); err != nil {
		return err
	}

	if _, err := r.AllocateDescriptor(state.gbuffer); err != nil {
		return err
	}
	if _, err := r.AllocateDescriptor(state.luminance); err != nil {
		return err
	}
	r.PublishDescriptorTable()
	return nil
}

func (tg *TestGame) Update(deltaTime float64) error {
	state := tg.State.(*gameState)
	state.frameCount++
	return nil
}

func (tg *TestGame) Render(r *renderer.Renderer, deltaTime float64) error {
	state := tg.State.(*gameState)

	geometry, err := graph.NewPass("geometry").
		Write(state.gbuffer, metadata.ResourceStateRenderTarget).
		SetPriority(10).
		SetExecutor(func(ctx *graph.ExecutionContext) error {
			return ctx.Commands.SubmitPass(ctx.Queue, ctx.PassName)
		}).
		Build()
	if err != nil {
		return err
	}

	luminance, err := graph.NewPass("luminance").
		SetKind(metadata.PassKindCompute).
		SetQueue(metadata.QueueTypeCompute).
		Read(state.gbuffer, metadata.ResourceStateShaderRead).
		Write(state.luminance, metadata.ResourceStateUnorderedAccess).
		SetExecutor(func(ctx *graph.ExecutionContext) error {
			return ctx.Commands.SubmitPass(ctx.Queue, ctx.PassName)
		}).
		Build()
	if err != nil {
		return err
	}

	lighting, err := graph.NewPass("lighting").
		Read(state.gbuffer, metadata.ResourceStateShaderRead).
		Read(state.luminance, metadata.ResourceStateShaderRead).
		Write(state.backbuffer, metadata.ResourceStateRenderTarget).
		SetExecutor(func(ctx *graph.ExecutionContext) error {
			return ctx.Commands.SubmitPass(ctx.Queue, ctx.PassName)
		}).
		Build()
	if err != nil {
		return err
	}

	overlay, err := graph.NewPass("overlay").
		IterateAllViews().
		Read(state.backbuffer, metadata.ResourceStateShaderRead).
		SetPriority(-10).
		SetExecutor(func(ctx *graph.ExecutionContext) error {
			return ctx.Commands.SubmitPass(ctx.Queue, ctx.PassName)
		}).
		Build()
	if err != nil {
		return err
	}

	for _, p := range []*graph.Pass{geometry, luminance, lighting, overlay} {
		if err := r.AddPass(p); err != nil {
			return err
		}
	}
	return nil
}
