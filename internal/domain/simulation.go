package domain

import "fmt"

// SimState is the phase of a replay session.
type SimState string

const (
	SimRunning   SimState = "running"
	SimCompleted SimState = "completed"
	SimStopped   SimState = "stopped"
	SimError     SimState = "error"
)

// SimulationStatus is published on every replay progress change.
type SimulationStatus struct {
	SessionID string   `json:"session_id"`
	State     SimState `json:"state"`
	Sent      uint64   `json:"sent"`
	Reason    string   `json:"reason,omitempty"`
}

// String renders the status line shown to operators.
func (s SimulationStatus) String() string {
	switch s.State {
	case SimRunning:
		return fmt.Sprintf("Simulation: Running (%d)", s.Sent)
	case SimCompleted:
		return "Simulation: Completed"
	case SimStopped:
		return "Simulation: Stopped"
	case SimError:
		if s.Reason == "" {
			return "Simulation: Error"
		}
		return fmt.Sprintf("Simulation: Error (%s)", s.Reason)
	default:
		return "Simulation: Unknown"
	}
}
