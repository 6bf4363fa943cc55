package cliconfig

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/bft-labs/groundlink/internal/domain"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	Port              string         `toml:"port"`
	Baud              int            `toml:"baud"`
	ReadTimeout       string         `toml:"read_timeout"`
	WriteTimeout      string         `toml:"write_timeout"`
	Terminator        string         `toml:"terminator"`
	KeepTerminator    *bool          `toml:"keep_terminator"`
	SchemaFile        string         `toml:"schema_file"`
	WatchSchema       *bool          `toml:"watch_schema"`
	Fields            []domain.Field `toml:"fields"`
	LogPath           string         `toml:"log_path"`
	LogTrailer        string         `toml:"log_trailer"`
	LogRejectedFrames *bool          `toml:"log_rejected_frames"`
	ExportDir         string         `toml:"export_dir"`
	ExportKeep        int            `toml:"export_keep"`
	QueueSize         int            `toml:"queue_size"`
	EnqueueTimeout    string         `toml:"enqueue_timeout"`
	MinInterval       string         `toml:"min_interval"`
	Ordering          string         `toml:"ordering"`
	SimCadence        string         `toml:"sim_cadence"`
	MissionTime       string         `toml:"mission_time"`
	FixedMissionTime  string         `toml:"fixed_mission_time"`
	HTTPAddr          string         `toml:"http_addr"`
	ArchivePath       string         `toml:"archive_path"`
	NATSURL           string         `toml:"nats_url"`
	NATSPrefix        string         `toml:"nats_prefix"`
	LogLevel          string         `toml:"log_level"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.groundlink/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".groundlink", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("port", fc.Port, &cfg.Port)
	s.setString("terminator", fc.Terminator, &cfg.Terminator)
	s.setString("schema-file", fc.SchemaFile, &cfg.SchemaFile)
	s.setString("log-path", fc.LogPath, &cfg.LogPath)
	s.setString("log-trailer", fc.LogTrailer, &cfg.LogTrailer)
	s.setString("export-dir", fc.ExportDir, &cfg.ExportDir)
	s.setString("ordering", fc.Ordering, &cfg.Ordering)
	s.setString("mission-time", fc.MissionTime, &cfg.MissionTime)
	s.setString("fixed-mission-time", fc.FixedMissionTime, &cfg.FixedMissionTime)
	s.setString("http-addr", fc.HTTPAddr, &cfg.HTTPAddr)
	s.setString("archive", fc.ArchivePath, &cfg.ArchivePath)
	s.setString("nats-url", fc.NATSURL, &cfg.NATSURL)
	s.setString("nats-prefix", fc.NATSPrefix, &cfg.NATSPrefix)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)

	s.setInt("baud", fc.Baud, &cfg.Baud)
	s.setInt("queue-size", fc.QueueSize, &cfg.QueueSize)
	s.setInt("export-keep", fc.ExportKeep, &cfg.ExportKeep)

	if err := s.setDuration("read-timeout", fc.ReadTimeout, &cfg.ReadTimeout); err != nil {
		return err
	}
	if err := s.setDuration("write-timeout", fc.WriteTimeout, &cfg.WriteTimeout); err != nil {
		return err
	}
	if err := s.setDuration("enqueue-timeout", fc.EnqueueTimeout, &cfg.EnqueueTimeout); err != nil {
		return err
	}
	if err := s.setDuration("min-interval", fc.MinInterval, &cfg.MinInterval); err != nil {
		return err
	}
	if err := s.setDuration("sim-cadence", fc.SimCadence, &cfg.SimCadence); err != nil {
		return err
	}

	s.setBool("keep-terminator", fc.KeepTerminator, &cfg.KeepTerminator)
	s.setBool("watch-schema", fc.WatchSchema, &cfg.WatchSchema)
	s.setBool("log-rejected", fc.LogRejectedFrames, &cfg.LogRejectedFrames)

	// Inline fields have no flag equivalent.
	if len(fc.Fields) > 0 {
		cfg.Fields = append([]domain.Field(nil), fc.Fields...)
	}

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
