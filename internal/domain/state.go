package domain

import "time"

// State represents the lifecycle phase of the station.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StateStopping
	StateFaulted
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateFaulted:
		return "Faulted"
	default:
		return "Unknown"
	}
}

// MarshalText encodes the state name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// LinkState describes the serial connection.
type LinkState struct {
	Port        string        `json:"port"`
	Baud        int           `json:"baud"`
	ReadTimeout time.Duration `json:"read_timeout"`
	Open        bool          `json:"open"`
}

// StationStatus is a point-in-time snapshot for operator displays.
type StationStatus struct {
	State           State     `json:"state"`
	Link            LinkState `json:"link"`
	Received        uint64    `json:"received"`
	Rejected        uint64    `json:"rejected"`
	CommandsSent    uint64    `json:"commands_sent"`
	CommandsDropped uint64    `json:"commands_dropped"`
	CommandsFailed  uint64    `json:"commands_failed"`
	QueueDepth      int       `json:"queue_depth"`
	Simulating      bool      `json:"simulating"`
	LastPacket      string    `json:"last_packet"`
	LogPath         string    `json:"log_path"`
}
