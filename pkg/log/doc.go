// Package log provides the logging abstraction used across groundlink.
//
// Components never import a concrete logging library. They receive a
// Logger and attach typed fields:
//
//	logger.Warn("command dropped",
//	    log.String("command", cmd.Text),
//	    log.Int("queue_depth", depth),
//	)
//
// NewZerologAdapter wraps zerolog for the CLI; NewNoopLogger discards
// everything and is the library default.
package log
