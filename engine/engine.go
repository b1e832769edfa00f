package engine

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/spaghettifunk/aurora/engine/config"
	"github.com/spaghettifunk/aurora/engine/core"
	"github.com/spaghettifunk/aurora/engine/renderer"
	"github.com/spaghettifunk/aurora/engine/systems"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

type Engine struct {
	// stageMutex guards currentStage; Shutdown may be requested from a
	// goroutine other than the frame loop's.
	stageMutex   sync.Mutex
	currentStage Stage
	gameInstance *Game
	// isRunning is read every frame by Run and written by the quit event
	// handler, which fires on the quitter's goroutine.
	isRunning     atomic.Bool
	cfg           *config.Config
	configWatcher *config.Watcher
	systemManager *systems.SystemManager
	renderer      *renderer.Renderer
	clock         *core.Clock
}

func New(g *Game) (*Engine, error) {
	cfg := g.Config
	if cfg == nil {
		cfg = config.Default()
	}

	backend := g.Backend
	if backend == nil {
		switch cfg.Renderer.Backend {
		case "null", "":
			backend = renderer.NewNullBackend(true)
		default:
			// The vulkan adapter needs device objects from a platform
			// layer; without one there is nothing to hand it.
			return nil, fmt.Errorf("backend '%s' requires the game to supply a renderer backend", cfg.Renderer.Backend)
		}
	}

	sm, err := systems.NewSystemManager(&cfg.Renderer, backend)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	rend, err := renderer.New(&cfg.Renderer, backend, sm)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	e := &Engine{
		currentStage:  EngineStageUninitialized,
		gameInstance:  g,
		cfg:           cfg,
		clock:         core.NewClock(),
		systemManager: sm,
		renderer:      rend,
	}
	e.isRunning.Store(true)
	return e, nil
}

func (e *Engine) setStage(s Stage) {
	e.stageMutex.Lock()
	e.currentStage = s
	e.stageMutex.Unlock()
}

func (e *Engine) stage() Stage {
	e.stageMutex.Lock()
	defer e.stageMutex.Unlock()
	return e.currentStage
}

func (e *Engine) Initialize() error {
	e.setStage(EngineStageInitializing)

	core.LogSetLevel(core.ParseLogLevel(e.cfg.Application.LogLevel))

	if !core.EventSystemInitialize() {
		return fmt.Errorf("failed to initialize the event system")
	}
	if err := core.MetricsInitialize(); err != nil {
		return err
	}

	core.EventRegister(core.EVENT_CODE_APPLICATION_QUIT, e, e.onQuit)
	core.EventRegister(core.EVENT_CODE_CONFIG_RELOADED, e, e.onConfigReloaded)

	if err := e.renderer.Initialize(e.cfg.Application.Name); err != nil {
		return err
	}

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(e.renderer); err != nil {
			return err
		}
	}

	e.setStage(EngineStageInitialized)
	return nil
}

// WatchConfig starts hot-reloading the config file at path. Only the
// reloadable subset (log level) applies mid-run.
func (e *Engine) WatchConfig(path string) error {
	w, err := config.NewWatcher(path, func(cfg *config.Config) {
		core.LogSetLevel(core.ParseLogLevel(cfg.Application.LogLevel))
	})
	if err != nil {
		return err
	}
	e.configWatcher = w
	return nil
}

// Renderer exposes the frame coordinator to the game layer.
func (e *Engine) Renderer() *renderer.Renderer {
	return e.renderer
}

func (e *Engine) Run() error {
	if e.stage() != EngineStageInitialized {
		return fmt.Errorf("engine must be initialized before running")
	}
	e.setStage(EngineStageRunning)
	e.clock.Start()
	lastTime := 0.0

	for e.isRunning.Load() {
		e.clock.Update()
		now := e.clock.ElapsedSeconds()
		delta := now - lastTime
		lastTime = now

		if e.gameInstance.FnUpdate != nil {
			if err := e.gameInstance.FnUpdate(delta); err != nil {
				core.LogError("game update failed: %s", err.Error())
				return err
			}
		}

		if _, err := e.renderer.BeginFrame(); err != nil {
			return err
		}
		if e.gameInstance.FnRender != nil {
			if err := e.gameInstance.FnRender(e.renderer, delta); err != nil {
				// A build-time graph error aborts this frame only.
				core.LogError("frame %d render failed: %s", e.renderer.Epoch(), err.Error())
			}
		}
		if err := e.renderer.Execute(); err != nil {
			core.LogError("frame %d execution failed: %s", e.renderer.Epoch(), err.Error())
		}
		if err := e.renderer.EndFrame(); err != nil {
			return err
		}

		core.MetricsUpdate(delta)
	}

	return e.teardown()
}

// Shutdown stops the engine. While the frame loop is running it only
// requests the stop; system teardown happens once Run drains the frame
// in flight and exits. An engine that never ran tears down immediately.
func (e *Engine) Shutdown() error {
	if e.stage() == EngineStageRunning {
		e.isRunning.Store(false)
		return nil
	}
	return e.teardown()
}

func (e *Engine) teardown() error {
	e.stageMutex.Lock()
	if e.currentStage == EngineStageShuttingDown {
		e.stageMutex.Unlock()
		return nil
	}
	e.currentStage = EngineStageShuttingDown
	e.stageMutex.Unlock()
	e.isRunning.Store(false)

	if e.configWatcher != nil {
		if err := e.configWatcher.Close(); err != nil {
			core.LogWarn("config watcher close failed: %s", err.Error())
		}
	}
	if err := e.systemManager.Shutdown(); err != nil {
		return err
	}
	if err := e.renderer.Shutdown(); err != nil {
		return err
	}
	core.EventSystemShutdown()
	return nil
}

func (e *Engine) onQuit(code core.SystemEventCode, sender interface{}, context core.EventContext) {
	core.LogInfo("quit requested, stopping frame loop")
	e.isRunning.Store(false)
}

func (e *Engine) onConfigReloaded(code core.SystemEventCode, sender interface{}, context core.EventContext) {
	core.LogDebug("config reloaded from %s", context.Data.C[0])
}
