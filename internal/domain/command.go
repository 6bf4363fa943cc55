package domain

import "time"

// CommandSource identifies who produced an uplink command.
type CommandSource string

const (
	SourceOperator   CommandSource = "operator"
	SourceSimulation CommandSource = "simulation"
)

// Command is one uplink line. It is newline-terminated on the wire and
// never acknowledged.
type Command struct {
	Text       string        `json:"text"`
	Source     CommandSource `json:"source"`
	EnqueuedAt time.Time     `json:"enqueued_at"`
}

// CommandStatus is the outcome of a command.
type CommandStatus string

const (
	CommandSent    CommandStatus = "sent"
	CommandTimeout CommandStatus = "timeout"
	CommandPartial CommandStatus = "partial"
	CommandFailed  CommandStatus = "failed"
	CommandDropped CommandStatus = "dropped"
)

// CommandResult reports what happened to a command.
type CommandResult struct {
	Command  Command       `json:"command"`
	Status   CommandStatus `json:"status"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration"`
	At       time.Time     `json:"at"`
}
