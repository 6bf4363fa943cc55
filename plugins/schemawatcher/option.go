package schemawatcher

import "github.com/bft-labs/groundlink/pkg/groundlink"

// WithSchemaWatcher returns a groundlink Option that reloads the schema
// whenever Config.SchemaFile changes.
//
// Usage:
//
//	st, err := groundlink.New(cfg,
//	    schemawatcher.WithSchemaWatcher(schemawatcher.Config{
//	        DebounceDelay: 100 * time.Millisecond,
//	    }),
//	)
func WithSchemaWatcher(cfg Config) groundlink.Option {
	return groundlink.WithPlugin(New(cfg))
}

// WithDefaultSchemaWatcher enables the watcher with default settings.
func WithDefaultSchemaWatcher() groundlink.Option {
	return WithSchemaWatcher(DefaultConfig())
}
