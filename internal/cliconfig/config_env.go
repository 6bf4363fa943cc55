package cliconfig

import "os"

// ApplyEnvConfig applies GROUNDLINK_* environment variables to cfg.
// Explicitly set flags (changed map) win over the environment.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("port", os.Getenv("GROUNDLINK_PORT"), &cfg.Port)
	s.setString("schema-file", os.Getenv("GROUNDLINK_SCHEMA_FILE"), &cfg.SchemaFile)
	s.setString("log-path", os.Getenv("GROUNDLINK_LOG_PATH"), &cfg.LogPath)
	s.setString("export-dir", os.Getenv("GROUNDLINK_EXPORT_DIR"), &cfg.ExportDir)
	s.setString("ordering", os.Getenv("GROUNDLINK_ORDERING"), &cfg.Ordering)
	s.setString("mission-time", os.Getenv("GROUNDLINK_MISSION_TIME"), &cfg.MissionTime)
	s.setString("http-addr", os.Getenv("GROUNDLINK_HTTP_ADDR"), &cfg.HTTPAddr)
	s.setString("archive", os.Getenv("GROUNDLINK_ARCHIVE"), &cfg.ArchivePath)
	s.setString("nats-url", os.Getenv("GROUNDLINK_NATS_URL"), &cfg.NATSURL)
	s.setString("nats-prefix", os.Getenv("GROUNDLINK_NATS_PREFIX"), &cfg.NATSPrefix)
	s.setString("log-level", os.Getenv("GROUNDLINK_LOG_LEVEL"), &cfg.LogLevel)

	if err := s.setIntFromString("baud", os.Getenv("GROUNDLINK_BAUD"), &cfg.Baud); err != nil {
		return err
	}
	if err := s.setIntFromString("queue-size", os.Getenv("GROUNDLINK_QUEUE_SIZE"), &cfg.QueueSize); err != nil {
		return err
	}

	if err := s.setIntFromString("export-keep", os.Getenv("GROUNDLINK_EXPORT_KEEP"), &cfg.ExportKeep); err != nil {
		return err
	}

	if err := s.setDuration("read-timeout", os.Getenv("GROUNDLINK_READ_TIMEOUT"), &cfg.ReadTimeout); err != nil {
		return err
	}
	if err := s.setDuration("write-timeout", os.Getenv("GROUNDLINK_WRITE_TIMEOUT"), &cfg.WriteTimeout); err != nil {
		return err
	}
	if err := s.setDuration("min-interval", os.Getenv("GROUNDLINK_MIN_INTERVAL"), &cfg.MinInterval); err != nil {
		return err
	}
	if err := s.setDuration("sim-cadence", os.Getenv("GROUNDLINK_SIM_CADENCE"), &cfg.SimCadence); err != nil {
		return err
	}

	s.setBoolFromString("keep-terminator", os.Getenv("GROUNDLINK_KEEP_TERMINATOR"), &cfg.KeepTerminator)
	s.setBoolFromString("watch-schema", os.Getenv("GROUNDLINK_WATCH_SCHEMA"), &cfg.WatchSchema)
	s.setBoolFromString("log-rejected", os.Getenv("GROUNDLINK_LOG_REJECTED"), &cfg.LogRejectedFrames)

	return nil
}
