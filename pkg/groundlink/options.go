package groundlink

import (
	"github.com/bft-labs/groundlink/pkg/log"
)

// Option configures optional behavior of a Station.
type Option func(*options)

type options struct {
	logger         log.Logger
	handlers       []EventHandler
	plugins        []Plugin
	link           Link
	telemetryLog   TelemetryLog
	schemaProvider SchemaProvider
}

func defaultOptions() options {
	return options{
		logger: log.NewNoopLogger(),
	}
}

// WithLogger sets the logger. Without it nothing is logged.
func WithLogger(logger Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithEventHandler adds a handler for station events. It may be given
// more than once; handlers are called in registration order.
func WithEventHandler(handler EventHandler) Option {
	return func(o *options) {
		if handler != nil {
			o.handlers = append(o.handlers, handler)
		}
	}
}

// WithPlugin registers a plugin.
func WithPlugin(plugin Plugin) Option {
	return func(o *options) {
		o.plugins = append(o.plugins, plugin)
	}
}

// WithLink replaces the serial link. Config.Port is then not required.
func WithLink(link Link) Option {
	return func(o *options) {
		o.link = link
	}
}

// WithTelemetryLog replaces the CSV telemetry log.
func WithTelemetryLog(tlog TelemetryLog) Option {
	return func(o *options) {
		o.telemetryLog = tlog
	}
}

// WithSchemaProvider replaces the schema source named in Config.
func WithSchemaProvider(p SchemaProvider) Option {
	return func(o *options) {
		o.schemaProvider = p
	}
}
