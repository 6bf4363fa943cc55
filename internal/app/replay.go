package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"

	"github.com/bft-labs/groundlink/internal/domain"
	"github.com/bft-labs/groundlink/internal/ports"
	"github.com/bft-labs/groundlink/pkg/log"
)

// Replay defaults.
const (
	DefaultCommandTag       = "CMD"
	DefaultCadence          = time.Second
	DefaultFixedMissionTime = "3195"
)

// MissionTime selects what replaces column 1 of a replayed row.
type MissionTime string

const (
	MissionTimeFixed   MissionTime = "fixed"
	MissionTimeUTC     MissionTime = "utc"
	MissionTimeElapsed MissionTime = "elapsed"
)

// CommandQueue is the part of the dispatcher the replay engine feeds.
type CommandQueue interface {
	Enqueue(cmd domain.Command) error
	Clear() int
}

// ReplayConfig controls simulation replay.
type ReplayConfig struct {
	CommandTag       string
	Cadence          time.Duration
	MissionTime      MissionTime
	FixedMissionTime string
}

// DefaultReplayConfig returns one CMD row per second with the fixed
// mission time.
func DefaultReplayConfig() ReplayConfig {
	return ReplayConfig{
		CommandTag:       DefaultCommandTag,
		Cadence:          DefaultCadence,
		MissionTime:      MissionTimeFixed,
		FixedMissionTime: DefaultFixedMissionTime,
	}
}

func (c *ReplayConfig) setDefaults() {
	if c.CommandTag == "" {
		c.CommandTag = DefaultCommandTag
	}
	if c.Cadence <= 0 {
		c.Cadence = DefaultCadence
	}
	if c.MissionTime == "" {
		c.MissionTime = MissionTimeFixed
	}
	if c.FixedMissionTime == "" {
		c.FixedMissionTime = DefaultFixedMissionTime
	}
}

// Replay feeds command rows from a recorded CSV file into the command
// queue at a fixed cadence. At most one session runs at a time.
type Replay struct {
	config ReplayConfig
	queue  CommandQueue
	sink   ports.EventSink
	logger log.Logger
	now    func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	status  domain.SimulationStatus
	running atomic.Bool
	sent    atomic.Uint64
}

// NewReplay creates an idle replay engine.
func NewReplay(config ReplayConfig, queue CommandQueue, sink ports.EventSink, logger log.Logger) *Replay {
	config.setDefaults()
	if sink == nil {
		sink = ports.NopSink{}
	}
	return &Replay{
		config: config,
		queue:  queue,
		sink:   sink,
		logger: logger,
		now:    time.Now,
	}
}

// Start begins replaying path in the background.
// Returns domain.ErrSimulationRunning if a session is active.
// Missing or unreadable files are reported through status, not here.
func (r *Replay) Start(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running.Load() {
		return domain.ErrSimulationRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	id := uuid.NewString()

	r.cancel = cancel
	r.done = done
	r.sent.Store(0)
	r.running.Store(true)

	r.logger.Info("simulation started", log.String("session", id), log.String("path", path))
	go r.run(ctx, id, path, done)
	return nil
}

// Stop cancels the active session, waits for it to exit and clears the
// command queue. Safe to call when nothing is running.
func (r *Replay) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	if n := r.queue.Clear(); n > 0 {
		r.logger.Info("cleared pending commands", log.Int("count", n))
	}
}

// Running reports whether a session is active.
func (r *Replay) Running() bool {
	return r.running.Load()
}

// Status returns the most recent session status.
func (r *Replay) Status() domain.SimulationStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *Replay) run(ctx context.Context, id, path string, done chan struct{}) {
	defer func() {
		r.mu.Lock()
		r.cancel = nil
		r.done = nil
		r.running.Store(false)
		r.mu.Unlock()
		close(done)
	}()

	state, reason, err := r.replay(ctx, id, path)
	if err != nil {
		r.logger.Error("simulation failed", log.String("session", id), log.Err(err))
	} else {
		r.logger.Info("simulation finished",
			log.String("session", id),
			log.String("state", string(state)),
			log.Uint64("sent", r.sent.Load()),
		)
	}
	r.publish(id, state, reason)
}

func (r *Replay) replay(ctx context.Context, id, path string) (domain.SimState, string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.SimError, "File not found", fmt.Errorf("%w: %s", domain.ErrSimulationFileNotFound, path)
		}
		return domain.SimError, "I/O error", fmt.Errorf("%w: %v", domain.ErrSimulationIO, err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1

	start := r.now()
	r.publish(id, domain.SimRunning, "")

	first := true
	for {
		if ctx.Err() != nil {
			return domain.SimStopped, "", nil
		}

		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return domain.SimCompleted, "", nil
		}
		if err != nil {
			return domain.SimError, "I/O error", fmt.Errorf("%w: %v", domain.ErrSimulationIO, err)
		}

		isCommand := len(row) > 0 && strings.TrimSpace(row[0]) == r.config.CommandTag
		if first {
			first = false
			if !isCommand {
				continue
			}
		}
		if !isCommand {
			continue
		}

		if len(row) > 1 {
			row[1] = r.missionTime(start)
		}

		windowStart := r.now()
		cmd := domain.Command{
			Text:   strings.Join(row, ","),
			Source: domain.SourceSimulation,
		}
		if err := r.queue.Enqueue(cmd); err == nil {
			r.sent.Inc()
			r.publish(id, domain.SimRunning, "")
		}

		rest := r.config.Cadence - r.now().Sub(windowStart)
		if rest > 0 && !sleepCtx(ctx, rest) {
			return domain.SimStopped, "", nil
		}
	}
}

func (r *Replay) missionTime(start time.Time) string {
	switch r.config.MissionTime {
	case MissionTimeUTC:
		return r.now().UTC().Format("15:04:05")
	case MissionTimeElapsed:
		return formatClock(r.now().Sub(start))
	default:
		return r.config.FixedMissionTime
	}
}

func formatClock(d time.Duration) string {
	s := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, (s/60)%60, s%60)
}

func (r *Replay) publish(id string, state domain.SimState, reason string) {
	status := domain.SimulationStatus{
		SessionID: id,
		State:     state,
		Sent:      r.sent.Load(),
		Reason:    reason,
	}
	r.mu.Lock()
	r.status = status
	r.mu.Unlock()
	r.sink.OnSimulationStatus(status)
}
