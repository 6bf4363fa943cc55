package exportretention

import "github.com/bft-labs/groundlink/pkg/groundlink"

// WithExportRetention returns a groundlink Option that prunes exported
// telemetry logs.
//
// Usage:
//
//	st, err := groundlink.New(cfg,
//	    exportretention.WithExportRetention(exportretention.Config{
//	        Dir:      "flights",
//	        MaxFiles: 20,
//	    }),
//	)
func WithExportRetention(cfg Config) groundlink.Option {
	return groundlink.WithPlugin(New(cfg))
}
