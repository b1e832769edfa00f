package engine

import (
	"github.com/spaghettifunk/aurora/engine/config"
	"github.com/spaghettifunk/aurora/engine/renderer"
)

// Game is the client side of the engine: configuration plus the
// callbacks invoked through the frame loop. Backend may be supplied by
// a platform layer; when nil the configured backend name decides.
type Game struct {
	Config  *config.Config
	Backend renderer.RendererBackend
	State   interface{}

	FnInitialize Initialize
	FnUpdate     Update
	FnRender     Render
}

type Initialize func(r *renderer.Renderer) error
type Update func(deltaTime float64) error

// Render builds the frame's passes against the active graph. The
// coordinator compiles and executes after it returns.
type Render func(r *renderer.Renderer, deltaTime float64) error
