package groundlink

import "context"

// Plugin extends a Station with optional behavior. Plugins are
// initialized in registration order on Start and shut down in reverse
// order on Stop.
type Plugin interface {
	// Name returns a short identifier used in logs.
	Name() string

	// Initialize is called from Start before the loops are spawned. ctx
	// is cancelled when the station stops. A returned error aborts Start
	// and leaves the station Faulted.
	Initialize(ctx context.Context, cfg PluginConfig) error

	// Shutdown releases plugin resources. Errors are logged only.
	Shutdown(ctx context.Context) error
}

// PluginConfig is what a plugin gets to work with.
type PluginConfig struct {
	Station    *Station
	Logger     Logger
	SchemaFile string
	LogPath    string
}

// BasePlugin implements Plugin with no-ops. Embed it and override what
// you need.
type BasePlugin struct {
	name string
}

// NewBasePlugin returns a BasePlugin reporting name.
func NewBasePlugin(name string) BasePlugin {
	return BasePlugin{name: name}
}

func (p BasePlugin) Name() string                                         { return p.name }
func (BasePlugin) Initialize(ctx context.Context, cfg PluginConfig) error { return nil }
func (BasePlugin) Shutdown(ctx context.Context) error                     { return nil }
