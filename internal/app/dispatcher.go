package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/bft-labs/groundlink/internal/domain"
	"github.com/bft-labs/groundlink/internal/ports"
	"github.com/bft-labs/groundlink/pkg/log"
)

// Dispatcher defaults.
const (
	DefaultQueueSize      = 100
	DefaultEnqueueTimeout = 100 * time.Millisecond
	DefaultMinInterval    = time.Second
	DefaultIdleInterval   = 10 * time.Millisecond
)

// Ordering selects how a command that arrives before the send interval
// has elapsed is held back.
type Ordering string

const (
	// OrderingRequeue pushes the command to the queue tail. Commands may
	// go out of order when more than one is waiting.
	OrderingRequeue Ordering = "requeue"

	// OrderingStrict keeps the command aside and sends it first once the
	// interval elapses, so commands leave in enqueue order.
	OrderingStrict Ordering = "strict"
)

// DispatcherConfig controls queueing and pacing. QueueSize may shrink
// the queue but never grows it past DefaultQueueSize.
type DispatcherConfig struct {
	QueueSize      int
	EnqueueTimeout time.Duration
	MinInterval    time.Duration
	IdleInterval   time.Duration
	Ordering       Ordering
}

// DefaultDispatcherConfig returns the standard pacing: 100 slots, one
// command per second.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		QueueSize:      DefaultQueueSize,
		EnqueueTimeout: DefaultEnqueueTimeout,
		MinInterval:    DefaultMinInterval,
		IdleInterval:   DefaultIdleInterval,
		Ordering:       OrderingRequeue,
	}
}

func (c *DispatcherConfig) setDefaults() {
	if c.QueueSize <= 0 || c.QueueSize > DefaultQueueSize {
		c.QueueSize = DefaultQueueSize
	}
	if c.EnqueueTimeout <= 0 {
		c.EnqueueTimeout = DefaultEnqueueTimeout
	}
	if c.MinInterval < 0 {
		c.MinInterval = DefaultMinInterval
	}
	if c.IdleInterval <= 0 {
		c.IdleInterval = DefaultIdleInterval
	}
	if c.Ordering == "" {
		c.Ordering = OrderingRequeue
	}
}

// Dispatcher queues uplink commands and writes them no faster than
// MinInterval apart. Enqueue is safe from any goroutine; Run must have a
// single caller.
type Dispatcher struct {
	config DispatcherConfig
	queue  chan domain.Command
	writer ports.LineWriter
	sink   ports.EventSink
	logger log.Logger
	now    func() time.Time

	mu   sync.Mutex
	held *domain.Command

	// lastSend is owned by Run.
	lastSend time.Time

	sent    atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

// NewDispatcher creates a dispatcher writing to writer.
func NewDispatcher(config DispatcherConfig, writer ports.LineWriter, sink ports.EventSink, logger log.Logger) *Dispatcher {
	config.setDefaults()
	if sink == nil {
		sink = ports.NopSink{}
	}
	return &Dispatcher{
		config: config,
		queue:  make(chan domain.Command, config.QueueSize),
		writer: writer,
		sink:   sink,
		logger: logger,
		now:    time.Now,
	}
}

// Enqueue adds cmd to the queue, waiting up to EnqueueTimeout for room.
// A command that cannot be queued is dropped, reported, and
// domain.ErrQueueFull is returned.
func (d *Dispatcher) Enqueue(cmd domain.Command) error {
	if cmd.EnqueuedAt.IsZero() {
		cmd.EnqueuedAt = d.now()
	}
	if cmd.Source == "" {
		cmd.Source = domain.SourceOperator
	}

	select {
	case d.queue <- cmd:
		return nil
	default:
	}

	timer := time.NewTimer(d.config.EnqueueTimeout)
	defer timer.Stop()
	select {
	case d.queue <- cmd:
		return nil
	case <-timer.C:
	}

	d.dropped.Inc()
	d.logger.Warn("command queue full, dropping command",
		log.String("command", cmd.Text),
		log.String("source", string(cmd.Source)),
	)
	d.sink.OnCommand(domain.CommandResult{
		Command: cmd,
		Status:  domain.CommandDropped,
		Err:     domain.ErrQueueFull,
		At:      d.now(),
	})
	return domain.ErrQueueFull
}

// Run sends queued commands until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		cmd, ok := d.next()
		if !ok {
			if !sleepCtx(ctx, d.config.IdleInterval) {
				return ctx.Err()
			}
			continue
		}

		if !d.lastSend.IsZero() && d.now().Sub(d.lastSend) < d.config.MinInterval {
			d.holdBack(cmd)
			if !sleepCtx(ctx, d.config.IdleInterval) {
				return ctx.Err()
			}
			continue
		}

		d.send(cmd)
	}
}

func (d *Dispatcher) next() (domain.Command, bool) {
	d.mu.Lock()
	if d.held != nil {
		cmd := *d.held
		d.held = nil
		d.mu.Unlock()
		return cmd, true
	}
	d.mu.Unlock()

	select {
	case cmd := <-d.queue:
		return cmd, true
	default:
		return domain.Command{}, false
	}
}

func (d *Dispatcher) holdBack(cmd domain.Command) {
	if d.config.Ordering == OrderingRequeue {
		select {
		case d.queue <- cmd:
			return
		default:
			// Refilled to capacity; the sender must not block on its own queue.
		}
	}
	d.mu.Lock()
	d.held = &cmd
	d.mu.Unlock()
}

func (d *Dispatcher) send(cmd domain.Command) {
	start := d.now()
	d.lastSend = start

	err := d.writer.WriteLine(cmd.Text)
	res := domain.CommandResult{
		Command:  cmd,
		Err:      err,
		Duration: d.now().Sub(start),
		At:       start,
	}

	switch {
	case err == nil:
		res.Status = domain.CommandSent
		d.sent.Inc()
		d.logger.Debug("command sent", log.String("command", cmd.Text))
	case errors.Is(err, domain.ErrWriteTimeout):
		res.Status = domain.CommandTimeout
		d.failed.Inc()
		d.logger.Warn("command write timed out", log.String("command", cmd.Text))
	case errors.Is(err, domain.ErrPartialWrite):
		res.Status = domain.CommandPartial
		d.failed.Inc()
		d.logger.Warn("command partially written", log.String("command", cmd.Text), log.Err(err))
	default:
		res.Status = domain.CommandFailed
		d.failed.Inc()
		d.logger.Error("command write failed", log.String("command", cmd.Text), log.Err(err))
	}

	d.sink.OnCommand(res)
}

// Clear discards every pending command and returns how many were dropped.
func (d *Dispatcher) Clear() int {
	n := 0
	d.mu.Lock()
	if d.held != nil {
		d.held = nil
		n++
	}
	d.mu.Unlock()

	for {
		select {
		case <-d.queue:
			n++
		default:
			return n
		}
	}
}

// Len returns the number of pending commands, including the held-back
// one. While a command is held, Len can reach QueueSize+1: the held slot
// sits outside the queue and does not take a queue slot.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	n := len(d.queue)
	if d.held != nil {
		n++
	}
	d.mu.Unlock()
	return n
}

// Sent returns the number of fully written commands.
func (d *Dispatcher) Sent() uint64 { return d.sent.Load() }

// Dropped returns the number of commands rejected by a full queue.
func (d *Dispatcher) Dropped() uint64 { return d.dropped.Load() }

// Failed returns the number of writes that did not complete.
func (d *Dispatcher) Failed() uint64 { return d.failed.Load() }

// sleepCtx sleeps for d or until ctx is done. It reports whether the
// full duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
