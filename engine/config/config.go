package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/pelletier/go-toml/v2"

	"github.com/spaghettifunk/aurora/engine/core"
)

type ApplicationConfig struct {
	Name     string `toml:"name"`
	LogLevel string `toml:"log_level"`
}

type RendererConfig struct {
	// Backend selects the command-submission adapter: "vulkan" or "null".
	Backend string `toml:"backend"`
	// MaxResourceCount is the fixed registry capacity. Registration past
	// it fails, there is no mid-frame growth.
	MaxResourceCount uint32 `toml:"max_resource_count"`
	// DescriptorTableSize is the fixed bindless table size, bound to the
	// backend's GPU-visible table.
	DescriptorTableSize uint32 `toml:"descriptor_table_size"`
	// FramesInFlight caps how far the CPU may run ahead of confirmed GPU
	// completion before BeginFrame applies backpressure.
	FramesInFlight uint8  `toml:"frames_in_flight"`
	MaxViewCount   uint16 `toml:"max_view_count"`
	// WorkersPerQueue sizes each queue's execution lane. One worker per
	// lane keeps same-queue passes in submission order.
	WorkersPerQueue int `toml:"workers_per_queue"`
}

type Config struct {
	Application ApplicationConfig `toml:"application"`
	Renderer    RendererConfig    `toml:"renderer"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Application: ApplicationConfig{
			Name:     "Aurora",
			LogLevel: "info",
		},
		Renderer: RendererConfig{
			Backend:             "null",
			MaxResourceCount:    4096,
			DescriptorTableSize: 16384,
			FramesInFlight:      3,
			MaxViewCount:        16,
			WorkersPerQueue:     1,
		},
	}
}

// Load reads and decodes a TOML config file, filling unset fields from
// defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Renderer.MaxResourceCount == 0 {
		return fmt.Errorf("renderer.max_resource_count must be > 0")
	}
	if c.Renderer.DescriptorTableSize == 0 {
		return fmt.Errorf("renderer.descriptor_table_size must be > 0")
	}
	if c.Renderer.FramesInFlight == 0 {
		return fmt.Errorf("renderer.frames_in_flight must be > 0")
	}
	if c.Renderer.WorkersPerQueue <= 0 {
		return fmt.Errorf("renderer.workers_per_queue must be > 0")
	}
	return nil
}

// Watcher re-reads the config file whenever it changes on disk and hands
// the result to the registered callback. Only the reloadable subset (log
// level) should be applied mid-run; capacities are fixed at startup.
type Watcher struct {
	path     string
	fsnotify *fsnotify.Watcher
	done     chan struct{}
	onReload func(*Config)
	isClosed bool
}

func NewWatcher(path string, onReload func(*Config)) (*Watcher, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		path:     path,
		fsnotify: fsWatch,
		done:     make(chan struct{}),
		onReload: onReload,
	}
	// Watch the directory, not the file: editors replace files on save
	// and the watch would be lost with them.
	if err := fsWatch.Add(filepath.Dir(path)); err != nil {
		fsWatch.Close()
		return nil, err
	}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsnotify.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				core.LogWarn("config reload skipped: %s", err.Error())
				continue
			}
			core.LogInfo("config reloaded from %s", w.path)
			ctx := core.EventContext{}
			ctx.Data.C[0] = w.path
			core.EventFire(core.EVENT_CODE_CONFIG_RELOADED, w, ctx)
			if w.onReload != nil {
				w.onReload(cfg)
			}
		case err, ok := <-w.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("config watcher error: %s", err.Error())
		}
	}
}

func (w *Watcher) Close() error {
	if w.isClosed {
		return nil
	}
	w.isClosed = true
	close(w.done)
	return w.fsnotify.Close()
}
