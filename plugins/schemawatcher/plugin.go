// Package schemawatcher reloads a station's telemetry schema when its
// schema file changes on disk.
package schemawatcher

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/groundlink/pkg/groundlink"
	"github.com/bft-labs/groundlink/pkg/log"
)

// DefaultDebounceDelay coalesces editor save bursts into one reload.
const DefaultDebounceDelay = 200 * time.Millisecond

// Config holds configuration options for the schema watcher plugin.
type Config struct {
	// DebounceDelay is the delay to wait after a file change before
	// reloading. Default: 200 milliseconds
	DebounceDelay time.Duration
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{DebounceDelay: DefaultDebounceDelay}
}

type reloader interface {
	ReloadSchema() error
}

// Plugin watches the station's schema file and calls ReloadSchema after
// it is written or replaced.
type Plugin struct {
	mu sync.Mutex

	debounceDelay time.Duration

	path     string
	target   reloader
	logger   groundlink.Logger
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	debounce *time.Timer
	reloads  int
}

// New creates a schema watcher plugin.
func New(cfg Config) *Plugin {
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = DefaultDebounceDelay
	}
	return &Plugin{debounceDelay: cfg.DebounceDelay}
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string {
	return "schemawatcher"
}

// Initialize starts watching cfg.SchemaFile. Without a schema file the
// plugin does nothing.
func (p *Plugin) Initialize(ctx context.Context, cfg groundlink.PluginConfig) error {
	p.mu.Lock()
	p.path = cfg.SchemaFile
	p.logger = cfg.Logger
	if p.logger == nil {
		p.logger = log.NewNoopLogger()
	}
	if cfg.Station != nil {
		p.target = cfg.Station
	}
	p.mu.Unlock()

	if p.path == "" || p.target == nil {
		p.logger.Warn("schema watcher disabled: no schema file configured")
		return nil
	}

	// Watch the directory so a replaced file is still seen.
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(p.path)); err != nil {
		watcher.Close()
		return err
	}

	watchCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.logger.Info("schema watcher plugin initialized", log.String("path", p.path))

	p.wg.Add(1)
	go p.watchLoop(watchCtx, watcher)
	return nil
}

// Shutdown stops the watcher and any pending reload.
func (p *Plugin) Shutdown(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()

	p.mu.Lock()
	if p.debounce != nil {
		p.debounce.Stop()
	}
	p.mu.Unlock()
	return nil
}

// Reloads returns how many reloads the plugin has triggered.
func (p *Plugin) Reloads() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reloads
}

func (p *Plugin) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer p.wg.Done()
	defer watcher.Close()

	name := filepath.Base(p.path)
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			p.debounceReload(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error("schema watcher error", log.Err(err))
		}
	}
}

func (p *Plugin) debounceReload(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.debounce != nil {
		p.debounce.Stop()
	}
	p.debounce = time.AfterFunc(p.debounceDelay, func() {
		if ctx.Err() != nil {
			return
		}
		p.reload()
	})
}

func (p *Plugin) reload() {
	p.mu.Lock()
	p.reloads++
	target := p.target
	p.mu.Unlock()

	if err := target.ReloadSchema(); err != nil {
		// The station keeps its current schema.
		p.logger.Warn("schema reload rejected", log.String("path", p.path), log.Err(err))
		return
	}
	p.logger.Info("schema file change applied", log.String("path", p.path))
}
