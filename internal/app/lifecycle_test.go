package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bft-labs/groundlink/internal/domain"
	"github.com/bft-labs/groundlink/pkg/log"
)

// mockLogger implements log.Logger for testing.
type mockLogger struct{}

func (mockLogger) Debug(msg string, fields ...log.Field) {}
func (mockLogger) Info(msg string, fields ...log.Field)  {}
func (mockLogger) Warn(msg string, fields ...log.Field)  {}
func (mockLogger) Error(msg string, fields ...log.Field) {}

// mockEmitter tracks state change events for testing.
type mockEmitter struct {
	mu     sync.Mutex
	events []stateChangeEvent
}

type stateChangeEvent struct {
	previous domain.State
	current  domain.State
	reason   string
}

func (m *mockEmitter) OnStateChange(previous, current domain.State, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, stateChangeEvent{previous, current, reason})
}

func (m *mockEmitter) Events() []stateChangeEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]stateChangeEvent{}, m.events...)
}

func TestNewLifecycle(t *testing.T) {
	l := NewLifecycle(&mockLogger{}, nil)

	if l == nil {
		t.Fatal("NewLifecycle returned nil")
	}
	if l.State() != domain.StateIdle {
		t.Errorf("initial state = %v, want Idle", l.State())
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state domain.State
		want  string
	}{
		{domain.StateIdle, "Idle"},
		{domain.StateStarting, "Starting"},
		{domain.StateRunning, "Running"},
		{domain.StateStopping, "Stopping"},
		{domain.StateFaulted, "Faulted"},
		{domain.State(99), "Unknown"},
	}

	for _, tt := range tests {
		got := tt.state.String()
		if got != tt.want {
			t.Errorf("State(%d).String() = %s, want %s", tt.state, got, tt.want)
		}
	}
}

func TestLifecycle_TransitionTo_ValidTransitions(t *testing.T) {
	tests := []struct {
		name string
		from domain.State
		to   domain.State
	}{
		{"idle to starting", domain.StateIdle, domain.StateStarting},
		{"starting to running", domain.StateStarting, domain.StateRunning},
		{"starting to stopping", domain.StateStarting, domain.StateStopping},
		{"starting to faulted", domain.StateStarting, domain.StateFaulted},
		{"running to stopping", domain.StateRunning, domain.StateStopping},
		{"running to faulted", domain.StateRunning, domain.StateFaulted},
		{"stopping to idle", domain.StateStopping, domain.StateIdle},
		{"stopping to faulted", domain.StateStopping, domain.StateFaulted},
		{"faulted to stopping", domain.StateFaulted, domain.StateStopping},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLifecycle(&mockLogger{}, nil)
			l.state = tt.from

			if err := l.TransitionTo(tt.to, "test"); err != nil {
				t.Fatalf("TransitionTo() error = %v", err)
			}
			if l.State() != tt.to {
				t.Errorf("state = %v after transition, want %v", l.State(), tt.to)
			}
		})
	}
}

func TestLifecycle_TransitionTo_InvalidTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    domain.State
		to      domain.State
		wantErr error
	}{
		{"idle to running", domain.StateIdle, domain.StateRunning, domain.ErrNotRunning},
		{"idle to stopping", domain.StateIdle, domain.StateStopping, domain.ErrNotRunning},
		{"starting to idle", domain.StateStarting, domain.StateIdle, domain.ErrAlreadyRunning},
		{"running to starting", domain.StateRunning, domain.StateStarting, domain.ErrAlreadyRunning},
		{"running to idle", domain.StateRunning, domain.StateIdle, domain.ErrAlreadyRunning},
		{"stopping to running", domain.StateStopping, domain.StateRunning, domain.ErrAlreadyRunning},
		{"faulted to running", domain.StateFaulted, domain.StateRunning, domain.ErrNotRunning},
		{"faulted to idle", domain.StateFaulted, domain.StateIdle, domain.ErrNotRunning},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLifecycle(&mockLogger{}, nil)
			l.state = tt.from

			err := l.TransitionTo(tt.to, "test")

			if err != tt.wantErr {
				t.Errorf("TransitionTo() error = %v, want %v", err, tt.wantErr)
			}
			if l.State() != tt.from {
				t.Errorf("state changed to %v on invalid transition, want %v", l.State(), tt.from)
			}
		})
	}
}

func TestLifecycle_TransitionTo_EmitsEvents(t *testing.T) {
	emitter := &mockEmitter{}
	l := NewLifecycle(&mockLogger{}, emitter)

	_ = l.TransitionTo(domain.StateStarting, "start test")
	_ = l.TransitionTo(domain.StateRunning, "running test")

	events := emitter.Events()
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].previous != domain.StateIdle || events[0].current != domain.StateStarting {
		t.Errorf("event 0: got %v->%v, want Idle->Starting", events[0].previous, events[0].current)
	}
	if events[1].previous != domain.StateStarting || events[1].current != domain.StateRunning {
		t.Errorf("event 1: got %v->%v, want Starting->Running", events[1].previous, events[1].current)
	}
	if events[1].reason != "running test" {
		t.Errorf("event 1 reason = %q", events[1].reason)
	}
}

func TestLifecycle_CanStartCanStop(t *testing.T) {
	tests := []struct {
		state     domain.State
		wantStart bool
		wantStop  bool
	}{
		{domain.StateIdle, true, false},
		{domain.StateStarting, false, true},
		{domain.StateRunning, false, true},
		{domain.StateStopping, false, false},
		{domain.StateFaulted, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			l := NewLifecycle(&mockLogger{}, nil)
			l.state = tt.state

			if got := l.CanStart(); got != tt.wantStart {
				t.Errorf("CanStart() = %v, want %v", got, tt.wantStart)
			}
			if got := l.CanStop(); got != tt.wantStop {
				t.Errorf("CanStop() = %v, want %v", got, tt.wantStop)
			}
		})
	}
}

func TestLifecycle_SetCancel_And_Cancel(t *testing.T) {
	l := NewLifecycle(&mockLogger{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	l.SetCancel(cancel)

	select {
	case <-ctx.Done():
		t.Error("context should not be canceled before Cancel()")
	default:
	}

	l.Cancel()

	select {
	case <-ctx.Done():
	default:
		t.Error("context should be canceled after Cancel()")
	}
}

func TestLifecycle_Cancel_NilSafe(t *testing.T) {
	l := NewLifecycle(&mockLogger{}, nil)
	l.Cancel()
}

func TestLifecycle_WaitWithTimeout_Success(t *testing.T) {
	l := NewLifecycle(&mockLogger{}, nil)

	l.Go(func() { time.Sleep(10 * time.Millisecond) })

	if err := l.WaitWithTimeout(time.Second); err != nil {
		t.Errorf("WaitWithTimeout() = %v, want nil", err)
	}
}

func TestLifecycle_WaitWithTimeout_Timeout(t *testing.T) {
	l := NewLifecycle(&mockLogger{}, nil)

	release := make(chan struct{})
	l.Go(func() { <-release })

	err := l.WaitWithTimeout(10 * time.Millisecond)
	if err != domain.ErrShutdownTimeout {
		t.Errorf("WaitWithTimeout() = %v, want ErrShutdownTimeout", err)
	}
	close(release)
}

func TestLifecycle_Concurrency(t *testing.T) {
	l := NewLifecycle(&mockLogger{}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = l.State()
				_ = l.CanStart()
				_ = l.CanStop()
			}
		}()
	}
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.TransitionTo(domain.StateStarting, "test")
			_ = l.TransitionTo(domain.StateRunning, "test")
		}()
	}
	wg.Wait()

	if l.State() != domain.StateRunning {
		t.Errorf("state = %v, want Running", l.State())
	}
}
