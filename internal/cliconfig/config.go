package cliconfig

import (
	"fmt"
	"strconv"
	"time"

	"github.com/bft-labs/groundlink/internal/domain"
	"github.com/bft-labs/groundlink/pkg/groundlink"
)

// Config holds CLI configuration for groundlink.
type Config struct {
	Port           string
	Baud           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	Terminator     string
	KeepTerminator bool

	SchemaFile  string
	Fields      []domain.Field
	WatchSchema bool

	LogPath           string
	LogTrailer        string
	LogRejectedFrames bool
	ExportDir         string
	ExportKeep        int

	QueueSize      int
	EnqueueTimeout time.Duration
	MinInterval    time.Duration
	Ordering       string

	SimCadence       time.Duration
	MissionTime      string
	FixedMissionTime string

	HTTPAddr    string
	ArchivePath string
	NATSURL     string
	NATSPrefix  string

	LogLevel string
	Duration time.Duration
	Console  bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Baud:             115200,
		ReadTimeout:      4 * time.Second,
		WriteTimeout:     100 * time.Millisecond,
		Terminator:       "\n",
		LogPath:          groundlink.DefaultLogPath,
		ExportDir:        ".",
		QueueSize:        100,
		EnqueueTimeout:   100 * time.Millisecond,
		MinInterval:      time.Second,
		Ordering:         groundlink.OrderingRequeue,
		SimCadence:       time.Second,
		MissionTime:      groundlink.MissionTimeFixed,
		FixedMissionTime: "3195",
		NATSPrefix:       "groundlink",
		LogLevel:         "info",
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port is required")
	}
	if c.Baud <= 0 {
		return fmt.Errorf("baud must be positive")
	}
	if c.ReadTimeout <= 0 || c.WriteTimeout <= 0 {
		return fmt.Errorf("read and write timeouts must be positive")
	}
	if c.QueueSize <= 0 || c.QueueSize > groundlink.DefaultQueueSize {
		return fmt.Errorf("queue size must be between 1 and %d", groundlink.DefaultQueueSize)
	}
	if c.MinInterval <= 0 {
		return fmt.Errorf("min interval must be positive")
	}
	if c.SchemaFile != "" && len(c.Fields) > 0 {
		return fmt.Errorf("schema-file and [[fields]] are mutually exclusive")
	}
	if c.WatchSchema && c.SchemaFile == "" {
		return fmt.Errorf("watch-schema requires schema-file")
	}
	if c.ExportKeep < 0 {
		return fmt.Errorf("export-keep must not be negative")
	}
	if c.Duration < 0 {
		return fmt.Errorf("duration must not be negative")
	}
	return nil
}

// StationConfig converts the CLI configuration to the library's.
func (c *Config) StationConfig() groundlink.Config {
	return groundlink.Config{
		Port:              c.Port,
		Baud:              c.Baud,
		ReadTimeout:       c.ReadTimeout,
		WriteTimeout:      c.WriteTimeout,
		Terminator:        c.Terminator,
		KeepTerminator:    c.KeepTerminator,
		SchemaFile:        c.SchemaFile,
		Fields:            c.Fields,
		LogPath:           c.LogPath,
		LogTrailer:        c.LogTrailer,
		LogRejectedFrames: c.LogRejectedFrames,
		QueueSize:         c.QueueSize,
		EnqueueTimeout:    c.EnqueueTimeout,
		MinInterval:       c.MinInterval,
		Ordering:          c.Ordering,
		Cadence:           c.SimCadence,
		MissionTime:       c.MissionTime,
		FixedMissionTime:  c.FixedMissionTime,
	}
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
