// Package exportretention bounds the disk used by exported telemetry logs.
// When enabled, it periodically removes the oldest exports from the export
// directory once they grow past a high watermark.
package exportretention

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bft-labs/groundlink/pkg/groundlink"
	"github.com/bft-labs/groundlink/pkg/log"
)

// Plugin prunes exported telemetry logs.
type Plugin struct {
	mu sync.RWMutex

	// Configuration
	dir           string
	checkInterval time.Duration
	highWatermark int64
	lowWatermark  int64
	maxFiles      int

	// Runtime state
	prefix string
	logger groundlink.Logger
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Config holds configuration options for the export retention plugin.
type Config struct {
	// Dir is the export directory. Default: the telemetry log's directory
	Dir string

	// CheckInterval is how often to check the export directory.
	// Default: 1 hour
	CheckInterval time.Duration

	// HighWatermark is the total export size in bytes above which pruning
	// begins. Default: 512 MiB
	HighWatermark int64

	// LowWatermark is the target size in bytes after pruning.
	// Default: 384 MiB
	LowWatermark int64

	// MaxFiles caps the number of exports kept. Zero means no cap.
	MaxFiles int
}

const (
	defaultCheckInterval = time.Hour
	defaultHighWatermark = 1 << 29 // 512 MiB
	defaultLowWatermark  = 3 << 27 // 384 MiB
)

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		CheckInterval: defaultCheckInterval,
		HighWatermark: defaultHighWatermark,
		LowWatermark:  defaultLowWatermark,
	}
}

// New creates an export retention plugin.
func New(cfg Config) *Plugin {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = defaultCheckInterval
	}
	if cfg.HighWatermark <= 0 {
		cfg.HighWatermark = defaultHighWatermark
	}
	if cfg.LowWatermark <= 0 || cfg.LowWatermark > cfg.HighWatermark {
		cfg.LowWatermark = cfg.HighWatermark * 3 / 4
	}
	return &Plugin{
		dir:           cfg.Dir,
		checkInterval: cfg.CheckInterval,
		highWatermark: cfg.HighWatermark,
		lowWatermark:  cfg.LowWatermark,
		maxFiles:      cfg.MaxFiles,
	}
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string {
	return "exportretention"
}

// Initialize runs one pass immediately and then starts the check loop.
func (p *Plugin) Initialize(ctx context.Context, cfg groundlink.PluginConfig) error {
	p.mu.Lock()
	p.logger = cfg.Logger
	if p.logger == nil {
		p.logger = log.NewNoopLogger()
	}
	if cfg.LogPath == "" {
		p.mu.Unlock()
		p.logger.Warn("export retention disabled: no telemetry log configured")
		return nil
	}
	if p.dir == "" {
		p.dir = filepath.Dir(cfg.LogPath)
	}
	base := filepath.Base(cfg.LogPath)
	p.prefix = strings.TrimSuffix(base, filepath.Ext(base)) + "-"
	p.mu.Unlock()

	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.logger.Info("export retention plugin initialized", log.String("dir", p.dir))

	p.pruneOnce(loopCtx)

	p.wg.Add(1)
	go p.loop(loopCtx)
	return nil
}

// Shutdown stops the check loop.
func (p *Plugin) Shutdown(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	return nil
}

func (p *Plugin) loop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pruneOnce(ctx)
		}
	}
}

// pruneOnce removes exports oldest first until both limits hold.
func (p *Plugin) pruneOnce(ctx context.Context) {
	p.mu.RLock()
	dir, prefix := p.dir, p.prefix
	p.mu.RUnlock()

	files, total, err := exports(dir, prefix)
	if err != nil {
		if !os.IsNotExist(err) {
			p.logger.Error("export retention: list failed", log.Err(err))
		}
		return
	}

	overCount := p.maxFiles > 0 && len(files) > p.maxFiles
	if total <= p.highWatermark && !overCount {
		return
	}

	var removed int
	var freed int64
	for i, f := range files {
		if ctx.Err() != nil {
			return
		}
		remaining := len(files) - i
		countOK := p.maxFiles == 0 || remaining <= p.maxFiles
		if total <= p.lowWatermark && countOK {
			break
		}
		if err := os.Remove(f.path); err != nil {
			p.logger.Error("export retention: remove failed", log.String("path", f.path), log.Err(err))
			continue
		}
		total -= f.size
		freed += f.size
		removed++
	}

	if removed > 0 {
		p.logger.Info("export retention completed",
			log.Int("removed", removed),
			log.String("freed", formatBytes(freed)),
			log.String("remaining", formatBytes(total)))
	}
}

type export struct {
	path string
	size int64
}

// exports lists prefix-*.csv files in dir, oldest first. Export names
// carry a sortable UTC timestamp.
func exports(dir, prefix string) ([]export, int64, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, 0, err
	}
	var out []export
	var total int64
	for _, e := range ents {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".csv") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, 0, err
		}
		out = append(out, export{path: filepath.Join(dir, name), size: info.Size()})
		total += info.Size()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].path < out[j].path })
	return out, total, nil
}

func formatBytes(b int64) string {
	const (
		_          = iota
		KB float64 = 1 << (10 * iota)
		MB
		GB
	)

	fb := float64(b)
	switch {
	case fb >= GB:
		return fmt.Sprintf("%.2fGiB", fb/GB)
	case fb >= MB:
		return fmt.Sprintf("%.2fMiB", fb/MB)
	case fb >= KB:
		return fmt.Sprintf("%.2fKiB", fb/KB)
	default:
		return fmt.Sprintf("%dB", b)
	}
}

var _ groundlink.Plugin = (*Plugin)(nil)
