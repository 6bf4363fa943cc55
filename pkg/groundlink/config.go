package groundlink

import (
	"fmt"
	"time"

	"github.com/bft-labs/groundlink/internal/adapters/schema"
	"github.com/bft-labs/groundlink/internal/adapters/serial"
	"github.com/bft-labs/groundlink/internal/app"
	"github.com/bft-labs/groundlink/internal/domain"
)

// Defaults applied by SetDefaults.
const (
	DefaultLogPath         = "data.csv"
	DefaultShutdownTimeout = app.ShutdownTimeout

	// DefaultHistorySize and DefaultQueueSize are also the upper bounds
	// Validate accepts.
	DefaultHistorySize = app.DefaultHistorySize
	DefaultQueueSize   = app.DefaultQueueSize
)

// Command ordering modes.
const (
	OrderingRequeue = string(app.OrderingRequeue)
	OrderingStrict  = string(app.OrderingStrict)
)

// Mission-time policies for replayed commands.
const (
	MissionTimeFixed   = string(app.MissionTimeFixed)
	MissionTimeUTC     = string(app.MissionTimeUTC)
	MissionTimeElapsed = string(app.MissionTimeElapsed)
)

// Config configures a Station. Zero values are replaced by SetDefaults.
type Config struct {
	// Serial link.
	Port           string
	Baud           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	Terminator     string
	KeepTerminator bool
	MaxFrameBytes  int

	// Schema source: SchemaFile wins over Fields; with neither, the
	// built-in legacy layout is used.
	SchemaFile string
	Fields     []Field

	// Durable log.
	LogPath           string
	LogTrailer        string
	LogRejectedFrames bool
	HistorySize       int

	// Command dispatcher.
	QueueSize      int
	EnqueueTimeout time.Duration
	MinInterval    time.Duration
	IdleInterval   time.Duration
	Ordering       string

	// Simulation replay.
	CommandTag       string
	Cadence          time.Duration
	MissionTime      string
	FixedMissionTime string

	ShutdownTimeout time.Duration
}

// SetDefaults fills zero fields.
func (c *Config) SetDefaults() {
	if c.Baud == 0 {
		c.Baud = serial.DefaultBaud
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = serial.DefaultReadTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = serial.DefaultWriteTimeout
	}
	if c.Terminator == "" {
		c.Terminator = serial.DefaultTerminator
	}
	if c.MaxFrameBytes == 0 {
		c.MaxFrameBytes = serial.DefaultMaxFrameBytes
	}
	if c.LogPath == "" {
		c.LogPath = DefaultLogPath
	}
	if c.LogTrailer == "" && c.SchemaFile == "" && len(c.Fields) == 0 {
		c.LogTrailer = schema.LegacyTrailer
	}
	if c.HistorySize == 0 {
		c.HistorySize = app.DefaultHistorySize
	}
	if c.QueueSize == 0 {
		c.QueueSize = app.DefaultQueueSize
	}
	if c.EnqueueTimeout == 0 {
		c.EnqueueTimeout = app.DefaultEnqueueTimeout
	}
	if c.MinInterval == 0 {
		c.MinInterval = app.DefaultMinInterval
	}
	if c.IdleInterval == 0 {
		c.IdleInterval = app.DefaultIdleInterval
	}
	if c.Ordering == "" {
		c.Ordering = OrderingRequeue
	}
	if c.CommandTag == "" {
		c.CommandTag = app.DefaultCommandTag
	}
	if c.Cadence == 0 {
		c.Cadence = app.DefaultCadence
	}
	if c.MissionTime == "" {
		c.MissionTime = MissionTimeFixed
	}
	if c.FixedMissionTime == "" {
		c.FixedMissionTime = app.DefaultFixedMissionTime
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
}

// Validate checks the configuration. The port is checked in New, since
// WithLink makes it optional.
func (c *Config) Validate() error {
	switch {
	case c.Baud <= 0:
		return fmt.Errorf("%w: baud must be positive", domain.ErrInvalidConfig)
	case c.ReadTimeout <= 0 || c.WriteTimeout <= 0:
		return fmt.Errorf("%w: read and write timeouts must be positive", domain.ErrInvalidConfig)
	case c.MinInterval < 0:
		return fmt.Errorf("%w: min interval must not be negative", domain.ErrInvalidConfig)
	case c.QueueSize <= 0 || c.QueueSize > app.DefaultQueueSize:
		return fmt.Errorf("%w: queue size must be between 1 and %d", domain.ErrInvalidConfig, app.DefaultQueueSize)
	case c.HistorySize <= 0 || c.HistorySize > app.DefaultHistorySize:
		return fmt.Errorf("%w: history size must be between 1 and %d", domain.ErrInvalidConfig, app.DefaultHistorySize)
	case c.Cadence <= 0:
		return fmt.Errorf("%w: simulation cadence must be positive", domain.ErrInvalidConfig)
	case c.LogPath == "":
		return fmt.Errorf("%w: log path is required", domain.ErrInvalidConfig)
	}

	switch c.Ordering {
	case OrderingRequeue, OrderingStrict:
	default:
		return fmt.Errorf("%w: unknown ordering %q", domain.ErrInvalidConfig, c.Ordering)
	}
	switch c.MissionTime {
	case MissionTimeFixed, MissionTimeUTC, MissionTimeElapsed:
	default:
		return fmt.Errorf("%w: unknown mission time policy %q", domain.ErrInvalidConfig, c.MissionTime)
	}
	return nil
}

func (c *Config) linkConfig() serial.Config {
	return serial.Config{
		Port:           c.Port,
		Baud:           c.Baud,
		ReadTimeout:    c.ReadTimeout,
		WriteTimeout:   c.WriteTimeout,
		Terminator:     c.Terminator,
		KeepTerminator: c.KeepTerminator,
		MaxFrameBytes:  c.MaxFrameBytes,
	}
}

func (c *Config) dispatcherConfig() app.DispatcherConfig {
	return app.DispatcherConfig{
		QueueSize:      c.QueueSize,
		EnqueueTimeout: c.EnqueueTimeout,
		MinInterval:    c.MinInterval,
		IdleInterval:   c.IdleInterval,
		Ordering:       app.Ordering(c.Ordering),
	}
}

func (c *Config) replayConfig() app.ReplayConfig {
	return app.ReplayConfig{
		CommandTag:       c.CommandTag,
		Cadence:          c.Cadence,
		MissionTime:      app.MissionTime(c.MissionTime),
		FixedMissionTime: c.FixedMissionTime,
	}
}

func (c *Config) schemaProvider() SchemaProvider {
	switch {
	case c.SchemaFile != "":
		return schema.File(c.SchemaFile)
	case len(c.Fields) > 0:
		return schema.Static(c.Fields)
	default:
		return schema.Legacy()
	}
}
