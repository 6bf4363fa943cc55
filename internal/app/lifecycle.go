package app

import (
	"context"
	"sync"
	"time"

	"github.com/bft-labs/groundlink/internal/domain"
	"github.com/bft-labs/groundlink/pkg/log"
)

// ShutdownTimeout is the maximum time to wait for both loops to exit.
const ShutdownTimeout = 30 * time.Second

// EventEmitter is called when lifecycle state changes.
type EventEmitter interface {
	OnStateChange(previous, current domain.State, reason string)
}

// Lifecycle manages the station state machine and its worker goroutines.
//
//	Idle -> Starting -> Running -> Stopping -> Idle
//	Starting|Running|Stopping -> Faulted -> Stopping
type Lifecycle struct {
	mu           sync.RWMutex
	state        domain.State
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	logger       log.Logger
	eventEmitter EventEmitter
}

// NewLifecycle creates a lifecycle in StateIdle.
func NewLifecycle(logger log.Logger, emitter EventEmitter) *Lifecycle {
	return &Lifecycle{
		state:        domain.StateIdle,
		logger:       logger,
		eventEmitter: emitter,
	}
}

// State returns the current lifecycle state.
func (l *Lifecycle) State() domain.State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// TransitionTo attempts to transition to a new state.
// Returns an error if the transition is not valid.
func (l *Lifecycle) TransitionTo(newState domain.State, reason string) error {
	l.mu.Lock()
	oldState := l.state

	if err := validTransition(oldState, newState); err != nil {
		l.mu.Unlock()
		return err
	}

	l.state = newState
	l.mu.Unlock()

	// Emit outside of lock
	if l.eventEmitter != nil {
		l.eventEmitter.OnStateChange(oldState, newState, reason)
	}

	l.logger.Info("state transition",
		log.String("from", oldState.String()),
		log.String("to", newState.String()),
		log.String("reason", reason),
	)
	return nil
}

func validTransition(from, to domain.State) error {
	switch from {
	case domain.StateIdle:
		if to != domain.StateStarting {
			return domain.ErrNotRunning
		}
	case domain.StateStarting:
		if to != domain.StateRunning && to != domain.StateStopping && to != domain.StateFaulted {
			return domain.ErrAlreadyRunning
		}
	case domain.StateRunning:
		if to != domain.StateStopping && to != domain.StateFaulted {
			return domain.ErrAlreadyRunning
		}
	case domain.StateFaulted:
		if to != domain.StateStopping {
			return domain.ErrNotRunning
		}
	case domain.StateStopping:
		if to != domain.StateIdle && to != domain.StateFaulted {
			return domain.ErrAlreadyRunning
		}
	}
	return nil
}

// CanStart returns true if Start() can be called.
func (l *Lifecycle) CanStart() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state == domain.StateIdle
}

// CanStop returns true if Stop() can be called.
func (l *Lifecycle) CanStop() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state == domain.StateRunning || l.state == domain.StateStarting || l.state == domain.StateFaulted
}

// SetCancel stores the cancel function shared by the loops.
func (l *Lifecycle) SetCancel(cancel context.CancelFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cancel = cancel
}

// Cancel signals every loop to stop.
func (l *Lifecycle) Cancel() {
	l.mu.Lock()
	cancel := l.cancel
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Go runs fn as a tracked worker.
func (l *Lifecycle) Go(fn func()) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		fn()
	}()
}

// WaitWithTimeout waits for all workers to finish with a timeout.
// Returns ErrShutdownTimeout if the timeout expires.
func (l *Lifecycle) WaitWithTimeout(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		l.logger.Warn("shutdown timeout, forcing exit",
			log.Duration("timeout", timeout),
		)
		return domain.ErrShutdownTimeout
	}
}
