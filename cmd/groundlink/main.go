package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/groundlink/internal/adapters/archive"
	"github.com/bft-labs/groundlink/internal/adapters/fs"
	"github.com/bft-labs/groundlink/internal/adapters/natspub"
	"github.com/bft-labs/groundlink/internal/adapters/schema"
	"github.com/bft-labs/groundlink/internal/adapters/serial"
	"github.com/bft-labs/groundlink/internal/cliconfig"
	"github.com/bft-labs/groundlink/internal/gateway"
	"github.com/bft-labs/groundlink/internal/metrics"
	"github.com/bft-labs/groundlink/pkg/groundlink"
	"github.com/bft-labs/groundlink/pkg/log"
	"github.com/bft-labs/groundlink/plugins/exportretention"
	"github.com/bft-labs/groundlink/plugins/schemawatcher"
)

const longHelp = `Ground station for a serial-connected flight unit.

Reads CSV telemetry frames from the serial port, decodes them against a
field schema, appends them to a CSV log and paces uplink commands onto the
same port (one per --min-interval). Recorded command profiles can be
replayed with :sim in the console or through the HTTP gateway.

Configuration comes from $HOME/.groundlink/config.toml, GROUNDLINK_*
environment variables and flags, in increasing order of precedence.`

var exampleUsage = strings.TrimSpace(`
  groundlink --port /dev/ttyUSB0 --console
  groundlink --port /dev/ttyACM0 --schema-file prefs.json --watch-schema --http-addr :8080
  groundlink --port /dev/ttyUSB0 --duration 30s
  groundlink ports
  groundlink export-log --export-dir ./flights
`)

const gatewayShutdownTimeout = 5 * time.Second

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	cfg := cliconfig.DefaultConfig()
	var cfgPath string

	root := &cobra.Command{
		Use:           "groundlink",
		Short:         "Serial telemetry and command ground station",
		Long:          longHelp,
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cmd, &cfg, cfgPath); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cfg)
		},
	}

	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.groundlink/config.toml)")
	root.PersistentFlags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&cfg.LogPath, "log-path", cfg.LogPath, "telemetry CSV log")
	root.PersistentFlags().StringVar(&cfg.SchemaFile, "schema-file", cfg.SchemaFile, `JSON schema file {"telemetryFields": {...}} (default: built-in layout)`)
	root.PersistentFlags().StringVar(&cfg.LogTrailer, "log-trailer", cfg.LogTrailer, "extra trailing header column in the telemetry log")
	root.PersistentFlags().StringVar(&cfg.ExportDir, "export-dir", cfg.ExportDir, "directory for exported telemetry logs")

	f := root.Flags()
	f.StringVar(&cfg.Port, "port", cfg.Port, "serial device")
	f.IntVar(&cfg.Baud, "baud", cfg.Baud, "baud rate")
	f.DurationVar(&cfg.ReadTimeout, "read-timeout", cfg.ReadTimeout, "serial read timeout")
	f.DurationVar(&cfg.WriteTimeout, "write-timeout", cfg.WriteTimeout, "serial write timeout")
	f.StringVar(&cfg.Terminator, "terminator", cfg.Terminator, `frame terminator (use "COSMOS" for legacy flight units)`)
	f.BoolVar(&cfg.KeepTerminator, "keep-terminator", cfg.KeepTerminator, "keep the terminator as the frame's last column")
	f.BoolVar(&cfg.WatchSchema, "watch-schema", cfg.WatchSchema, "reload the schema when --schema-file changes")
	f.BoolVar(&cfg.LogRejectedFrames, "log-rejected", cfg.LogRejectedFrames, "append frames with the wrong column count to the log")
	f.IntVar(&cfg.ExportKeep, "export-keep", cfg.ExportKeep, "keep at most this many exports in --export-dir (0 keeps all)")
	f.IntVar(&cfg.QueueSize, "queue-size", cfg.QueueSize, "command queue capacity")
	f.DurationVar(&cfg.EnqueueTimeout, "enqueue-timeout", cfg.EnqueueTimeout, "how long a full queue may block an enqueue")
	f.DurationVar(&cfg.MinInterval, "min-interval", cfg.MinInterval, "minimum spacing between uplink commands")
	f.StringVar(&cfg.Ordering, "ordering", cfg.Ordering, "command ordering while paced: requeue or strict")
	f.DurationVar(&cfg.SimCadence, "sim-cadence", cfg.SimCadence, "spacing between replayed commands")
	f.StringVar(&cfg.MissionTime, "mission-time", cfg.MissionTime, "mission time in replayed commands: fixed, utc or elapsed")
	f.StringVar(&cfg.FixedMissionTime, "fixed-mission-time", cfg.FixedMissionTime, "value used with --mission-time fixed")
	f.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "serve the HTTP gateway and /metrics on this address")
	f.StringVar(&cfg.ArchivePath, "archive", cfg.ArchivePath, "SQLite file to archive frames and commands into")
	f.StringVar(&cfg.NATSURL, "nats-url", cfg.NATSURL, "publish station events to this NATS server")
	f.StringVar(&cfg.NATSPrefix, "nats-prefix", cfg.NATSPrefix, "NATS subject prefix")
	f.DurationVar(&cfg.Duration, "duration", cfg.Duration, "stop after this long (0 runs until interrupted)")
	f.BoolVar(&cfg.Console, "console", cfg.Console, "read commands and directives from stdin")

	root.AddCommand(portsCmd(), resetLogCmd(&cfg, &cfgPath), exportLogCmd(&cfg, &cfgPath))

	if err := root.Execute(); err != nil {
		logger := cliconfig.Logger()
		logger.Error().Err(err).Msg("groundlink")
		os.Exit(1)
	}
}

// loadConfig layers the config file and environment under explicit flags.
func loadConfig(cmd *cobra.Command, cfg *cliconfig.Config, cfgPath string) error {
	cfgFile := cfgPath
	if cfgFile == "" {
		cfgFile = cliconfig.DefaultConfigPath()
	}

	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	if cfgFile != "" && cliconfig.FileExists(cfgFile) {
		fc, err := cliconfig.LoadFileConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cliconfig.ApplyFileConfig(cfg, fc, changed); err != nil {
			return err
		}
	} else if cfgPath != "" {
		return fmt.Errorf("config file %s not found", cfgPath)
	}

	if err := cliconfig.ApplyEnvConfig(cfg, changed); err != nil {
		return err
	}
	return cliconfig.SetLogLevel(cfg.LogLevel)
}

func run(cfg cliconfig.Config) error {
	zl := cliconfig.Logger()
	zl.Info().Interface("config", cfg).Msg("configuration")

	logger := log.NewZerologAdapterWithLogger(zl)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var st *groundlink.Station
	m := metrics.New(func() float64 {
		if st == nil {
			return 0
		}
		return float64(st.QueueDepth())
	})

	opts := []groundlink.Option{
		groundlink.WithLogger(logger.Component("station")),
		groundlink.WithEventHandler(m),
	}

	var hub *gateway.Hub
	if cfg.HTTPAddr != "" {
		hub = gateway.NewHub(logger.Component("gateway"))
		opts = append(opts, groundlink.WithEventHandler(hub))
	}

	if cfg.ArchivePath != "" {
		arch, err := archive.Open(archive.Config{Path: cfg.ArchivePath}, logger.Component("archive"))
		if err != nil {
			return fmt.Errorf("open archive: %w", err)
		}
		defer func() {
			if err := arch.Close(); err != nil {
				zl.Warn().Err(err).Msg("archive close")
			}
		}()
		opts = append(opts, groundlink.WithEventHandler(arch))
	}

	if cfg.NATSURL != "" {
		pub, err := natspub.Connect(natspub.Config{
			URL:    cfg.NATSURL,
			Prefix: cfg.NATSPrefix,
		}, logger.Component("nats"))
		if err != nil {
			return err
		}
		defer pub.Close()
		opts = append(opts, groundlink.WithEventHandler(pub))
	}

	if cfg.WatchSchema {
		opts = append(opts, schemawatcher.WithDefaultSchemaWatcher())
	}

	if cfg.ExportKeep > 0 {
		opts = append(opts, exportretention.WithExportRetention(exportretention.Config{
			Dir:      cfg.ExportDir,
			MaxFiles: cfg.ExportKeep,
		}))
	}

	if cfg.Console {
		opts = append(opts, groundlink.WithEventHandler(consolePrinter{out: os.Stdout}))
	}

	var err error
	st, err = groundlink.New(cfg.StationConfig(), opts...)
	if err != nil {
		return fmt.Errorf("create station: %w", err)
	}

	if err := st.Start(ctx); err != nil {
		return fmt.Errorf("start station: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	gatewayErr := make(chan error, 1)
	if hub != nil {
		srv := gateway.New(gateway.Config{Addr: cfg.HTTPAddr}, st, hub, m.Handler(), logger.Component("gateway"))
		go func() {
			gatewayErr <- srv.ListenAndServe(runCtx, gatewayShutdownTimeout)
		}()
	}

	consoleDone := make(chan error, 1)
	if cfg.Console {
		fmt.Fprintln(os.Stdout, "type :help for directives")
		go func() {
			consoleDone <- runConsole(runCtx, os.Stdin, os.Stdout, st)
		}()
	}

	var timer <-chan time.Time
	if cfg.Duration > 0 {
		t := time.NewTimer(cfg.Duration)
		defer t.Stop()
		timer = t.C
	}

	select {
	case <-ctx.Done():
		zl.Info().Msg("received signal, stopping...")
	case <-timer:
		zl.Info().Dur("duration", cfg.Duration).Msg("run duration elapsed, stopping...")
	case err := <-consoleDone:
		if err != nil && !errors.Is(err, errQuit) {
			zl.Warn().Err(err).Msg("console")
		}
	case err := <-gatewayErr:
		zl.Error().Err(err).Msg("gateway failed")
	}
	cancel()

	status := st.Status()
	if err := st.Close(); err != nil {
		return fmt.Errorf("stop station: %w", err)
	}
	zl.Info().
		Uint64("received", status.Received).
		Uint64("rejected", status.Rejected).
		Uint64("commands_sent", status.CommandsSent).
		Msg("station stopped")
	return nil
}

func portsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List serial ports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := serial.ListPorts()
			if err != nil {
				return err
			}
			if len(ports) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no serial ports found")
				return nil
			}
			for _, p := range ports {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
}

// openLog builds the telemetry log the station would use for cfg.
func openLog(cfg cliconfig.Config) (*fs.CSVLog, error) {
	var provider groundlink.SchemaProvider
	switch {
	case cfg.SchemaFile != "":
		provider = schema.File(cfg.SchemaFile)
	case len(cfg.Fields) > 0:
		provider = schema.Static(cfg.Fields)
	default:
		provider = schema.Legacy()
	}
	sch, err := schema.Load(provider)
	if err != nil {
		return nil, err
	}
	trailer := cfg.LogTrailer
	if trailer == "" && cfg.SchemaFile == "" && len(cfg.Fields) == 0 {
		trailer = schema.LegacyTrailer
	}
	return fs.NewCSVLog(cfg.LogPath, fs.Header(sch.Names(), trailer)), nil
}

func resetLogCmd(cfg *cliconfig.Config, cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-log",
		Short: "Truncate the telemetry log to its header",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cmd, cfg, *cfgPath); err != nil {
				return err
			}
			tlog, err := openLog(*cfg)
			if err != nil {
				return err
			}
			defer tlog.Close()
			if err := tlog.Reset(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reset %s\n", tlog.Path())
			return nil
		},
	}
}

func exportLogCmd(cfg *cliconfig.Config, cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "export-log",
		Short: "Copy the telemetry log into a timestamped file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(cmd, cfg, *cfgPath); err != nil {
				return err
			}
			tlog, err := openLog(*cfg)
			if err != nil {
				return err
			}
			defer tlog.Close()
			path, err := tlog.Export(cfg.ExportDir)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}
