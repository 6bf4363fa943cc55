package groundlink

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/bft-labs/groundlink/internal/adapters/fs"
	"github.com/bft-labs/groundlink/internal/adapters/schema"
	"github.com/bft-labs/groundlink/internal/adapters/serial"
	"github.com/bft-labs/groundlink/internal/app"
	"github.com/bft-labs/groundlink/internal/domain"
	"github.com/bft-labs/groundlink/internal/ports"
	"github.com/bft-labs/groundlink/pkg/log"
)

// Station is one ground station: a serial link, the telemetry decoder
// behind it, the paced command dispatcher in front of it and an optional
// simulation replay feeding the dispatcher.
type Station struct {
	config     Config
	logger     log.Logger
	sink       ports.EventSink
	lifecycle  *app.Lifecycle
	link       ports.Link
	tlog       ports.TelemetryLog
	provider   ports.SchemaProvider
	decoder    *app.Decoder
	dispatcher *app.Dispatcher
	replay     *app.Replay
	reader     *app.Reader
	plugins    []Plugin

	mu sync.Mutex
}

// New creates a Station in StateIdle. The link is not opened until Start.
func New(cfg Config, opts ...Option) (*Station, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.link == nil && cfg.Port == "" {
		return nil, fmt.Errorf("%w: serial port is required", domain.ErrInvalidConfig)
	}

	provider := o.schemaProvider
	if provider == nil {
		provider = cfg.schemaProvider()
	}
	sch, err := schema.Load(provider)
	if err != nil {
		return nil, err
	}

	sink := ports.MultiSink(o.handlers)

	link := o.link
	if link == nil {
		link = serial.New(cfg.linkConfig(), o.logger)
	}
	tlog := o.telemetryLog
	if tlog == nil {
		tlog = fs.NewCSVLog(cfg.LogPath, fs.Header(sch.Names(), cfg.LogTrailer))
	}

	decoder := app.NewDecoder(app.DecoderConfig{
		HistorySize:       cfg.HistorySize,
		LogRejectedFrames: cfg.LogRejectedFrames,
	}, sch, tlog, sink, o.logger)
	dispatcher := app.NewDispatcher(cfg.dispatcherConfig(), link, sink, o.logger)

	s := &Station{
		config:     cfg,
		logger:     o.logger,
		sink:       sink,
		lifecycle:  app.NewLifecycle(o.logger, sink),
		link:       link,
		tlog:       tlog,
		provider:   provider,
		decoder:    decoder,
		dispatcher: dispatcher,
		replay:     app.NewReplay(cfg.replayConfig(), dispatcher, sink, o.logger),
		reader:     app.NewReader(link, decoder, o.logger),
		plugins:    o.plugins,
	}
	s.reader.OnLinkError = s.onLinkError
	return s, nil
}

// Start opens the link, initializes plugins and spawns the read and send
// loops. It returns once both loops are running. When the link cannot be
// opened the error wraps ErrLinkUnavailable and the station stays Idle.
func (s *Station) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.lifecycle.CanStart() {
		return domain.ErrAlreadyRunning
	}

	if !s.link.IsOpen() {
		if err := s.link.Open(); err != nil {
			s.logger.Error("link unavailable", log.Err(err))
			return err
		}
	}

	if err := s.lifecycle.TransitionTo(domain.StateStarting, "Start() called"); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.lifecycle.SetCancel(cancel)

	pluginCfg := PluginConfig{
		Station:    s,
		Logger:     s.logger,
		SchemaFile: s.config.SchemaFile,
		LogPath:    s.tlog.Path(),
	}
	for _, p := range s.plugins {
		if err := p.Initialize(runCtx, pluginCfg); err != nil {
			s.logger.Error("plugin initialization failed",
				log.String("plugin", p.Name()),
				log.Err(err))
			cancel()
			_ = s.link.Close()
			_ = s.lifecycle.TransitionTo(domain.StateFaulted, "plugin init failed: "+p.Name())
			return err
		}
		s.logger.Info("plugin initialized", log.String("plugin", p.Name()))
	}

	if err := s.lifecycle.TransitionTo(domain.StateRunning, "link open"); err != nil {
		cancel()
		return err
	}

	s.lifecycle.Go(func() {
		_ = s.dispatcher.Run(runCtx)
	})
	s.lifecycle.Go(func() {
		_ = s.reader.Run(runCtx)
	})
	return nil
}

// onLinkError runs on the read loop after a link failure. The send loop
// keeps draining; its writes fail until the station is restarted.
func (s *Station) onLinkError(err error) {
	_ = s.link.Close()
	if terr := s.lifecycle.TransitionTo(domain.StateFaulted, err.Error()); terr != nil {
		s.logger.Debug("fault not recorded", log.String("state", s.lifecycle.State().String()))
	}
}

// Stop stops any simulation, cancels both loops and waits for them, then
// closes the link and flushes the log. Returns ErrShutdownTimeout if the
// loops do not exit within Config.ShutdownTimeout; the station is then
// left Faulted.
func (s *Station) Stop() error {
	s.mu.Lock()
	if !s.lifecycle.CanStop() {
		s.mu.Unlock()
		return domain.ErrNotRunning
	}
	if err := s.lifecycle.TransitionTo(domain.StateStopping, "Stop() called"); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	if s.replay.Running() {
		s.replay.Stop()
	}
	s.lifecycle.Cancel()
	if i, ok := s.link.(ports.Interrupter); ok {
		i.Interrupt()
	}
	err := s.lifecycle.WaitWithTimeout(s.config.ShutdownTimeout)

	if cerr := s.link.Close(); cerr != nil {
		s.logger.Warn("link close failed", log.Err(cerr))
	}
	if ferr := s.tlog.Flush(); ferr != nil {
		s.logger.Warn("telemetry log flush failed", log.Err(ferr))
	}

	shutdownCtx := context.Background()
	for i := len(s.plugins) - 1; i >= 0; i-- {
		p := s.plugins[i]
		if perr := p.Shutdown(shutdownCtx); perr != nil {
			s.logger.Error("plugin shutdown failed",
				log.String("plugin", p.Name()),
				log.Err(perr))
		} else {
			s.logger.Info("plugin shutdown complete", log.String("plugin", p.Name()))
		}
	}

	// A link fault raised while stopping leaves the machine in Faulted.
	if s.lifecycle.State() == domain.StateFaulted {
		_ = s.lifecycle.TransitionTo(domain.StateStopping, "recovering from fault")
	}
	if err != nil {
		_ = s.lifecycle.TransitionTo(domain.StateFaulted, "shutdown timeout")
		return err
	}
	_ = s.lifecycle.TransitionTo(domain.StateIdle, "graceful shutdown")
	return nil
}

// Close stops the station if needed and releases the telemetry log.
func (s *Station) Close() error {
	var err error
	if s.lifecycle.CanStop() {
		err = s.Stop()
	}
	if cerr := s.tlog.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// Enqueue queues an operator command. Returns ErrEmptyCommand for blank
// text and ErrQueueFull when the queue stays full past the enqueue
// timeout.
func (s *Station) Enqueue(text string) error {
	if strings.TrimSpace(text) == "" {
		return domain.ErrEmptyCommand
	}
	return s.dispatcher.Enqueue(domain.Command{Text: text, Source: domain.SourceOperator})
}

// ChangeBaud reopens the link at rate. On failure the link stays closed
// and the read loop idles until the next successful change.
func (s *Station) ChangeBaud(rate int) error {
	if err := s.link.ChangeBaud(rate); err != nil {
		s.logger.Error("baud change failed", log.Int("baud", rate), log.Err(err))
		return err
	}
	s.logger.Info("baud changed", log.Int("baud", rate))
	return nil
}

// StartSimulation replays the command rows of the CSV file at path.
func (s *Station) StartSimulation(path string) error {
	return s.replay.Start(path)
}

// StopSimulation cancels the replay and clears the command queue.
func (s *Station) StopSimulation() {
	s.replay.Stop()
}

// ResetLog truncates the telemetry log to its header.
func (s *Station) ResetLog() error {
	if err := s.tlog.Reset(); err != nil {
		return err
	}
	s.logger.Info("telemetry log reset", log.String("path", s.tlog.Path()))
	return nil
}

// ExportLog copies the telemetry log into dir and returns the new path.
func (s *Station) ExportLog(dir string) (string, error) {
	path, err := s.tlog.Export(dir)
	if err != nil {
		return "", err
	}
	s.logger.Info("telemetry log exported", log.String("path", path))
	return path, nil
}

// ReloadSchema re-reads the schema source and swaps it in. Frames decoded
// concurrently finish with the schema they started with. On error the
// current schema is kept.
func (s *Station) ReloadSchema() error {
	sch, err := schema.Load(s.provider)
	if err != nil {
		s.logger.Warn("schema reload failed", log.Err(err))
		return err
	}
	s.decoder.SetSchema(sch)
	if h, ok := s.tlog.(interface{ SetHeader([]string) }); ok {
		h.SetHeader(fs.Header(sch.Names(), s.config.LogTrailer))
	}
	s.logger.Info("schema reloaded", log.Int("fields", sch.Len()))
	return nil
}

// Latest returns the newest value of the named field.
func (s *Station) Latest(name string) (Value, bool) {
	return s.decoder.Latest(name)
}

// GetField is Latest with a default.
func (s *Station) GetField(name string, def Value) Value {
	return s.decoder.GetField(name, def)
}

// History returns the recent decoded rows, oldest first.
func (s *Station) History() [][]string {
	return s.decoder.History().Rows()
}

// LastPacket returns the last non-empty line received.
func (s *Station) LastPacket() string {
	return s.decoder.LastPacket()
}

// Schema returns the schema in use.
func (s *Station) Schema() *Schema {
	return s.decoder.Schema()
}

// State returns the lifecycle state.
func (s *Station) State() State {
	return s.lifecycle.State()
}

// SimulationStatus returns the status of the current or last replay.
func (s *Station) SimulationStatus() SimulationStatus {
	return s.replay.Status()
}

// QueueDepth returns the number of pending commands.
func (s *Station) QueueDepth() int {
	return s.dispatcher.Len()
}

// Status returns a snapshot for operator displays.
func (s *Station) Status() StationStatus {
	return StationStatus{
		State:           s.lifecycle.State(),
		Link:            s.link.State(),
		Received:        s.decoder.Received(),
		Rejected:        s.decoder.Rejected(),
		CommandsSent:    s.dispatcher.Sent(),
		CommandsDropped: s.dispatcher.Dropped(),
		CommandsFailed:  s.dispatcher.Failed(),
		QueueDepth:      s.dispatcher.Len(),
		Simulating:      s.replay.Running(),
		LastPacket:      s.decoder.LastPacket(),
		LogPath:         s.tlog.Path(),
	}
}
