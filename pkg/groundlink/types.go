package groundlink

import (
	"github.com/bft-labs/groundlink/internal/domain"
	"github.com/bft-labs/groundlink/internal/ports"
	"github.com/bft-labs/groundlink/pkg/log"
)

// Re-exported core types so embedders never import internal packages.
type (
	Field            = domain.Field
	Schema           = domain.Schema
	Value            = domain.Value
	Record           = domain.Record
	Command          = domain.Command
	CommandResult    = domain.CommandResult
	CommandStatus    = domain.CommandStatus
	SimulationStatus = domain.SimulationStatus
	LinkState        = domain.LinkState
	StationStatus    = domain.StationStatus
	State            = domain.State

	// EventHandler receives upward notifications. Calls are synchronous
	// on the goroutine that produced the event and must return quickly.
	EventHandler = ports.EventSink

	// BaseEventHandler implements EventHandler with no-ops. Embed it and
	// override what you need.
	BaseEventHandler = ports.NopSink

	Link           = ports.Link
	TelemetryLog   = ports.TelemetryLog
	SchemaProvider = ports.SchemaProvider

	Logger   = log.Logger
	LogField = log.Field
)

// Lifecycle states.
const (
	StateIdle     = domain.StateIdle
	StateStarting = domain.StateStarting
	StateRunning  = domain.StateRunning
	StateStopping = domain.StateStopping
	StateFaulted  = domain.StateFaulted
)

// Errors callers are expected to check with errors.Is.
var (
	ErrLinkUnavailable        = domain.ErrLinkUnavailable
	ErrLinkError              = domain.ErrLinkError
	ErrLinkClosed             = domain.ErrLinkClosed
	ErrWriteTimeout           = domain.ErrWriteTimeout
	ErrPartialWrite           = domain.ErrPartialWrite
	ErrFrameLengthMismatch    = domain.ErrFrameLengthMismatch
	ErrQueueFull              = domain.ErrQueueFull
	ErrEmptyCommand           = domain.ErrEmptyCommand
	ErrSimulationRunning      = domain.ErrSimulationRunning
	ErrSimulationFileNotFound = domain.ErrSimulationFileNotFound
	ErrInvalidSchema          = domain.ErrInvalidSchema
	ErrAlreadyRunning         = domain.ErrAlreadyRunning
	ErrNotRunning             = domain.ErrNotRunning
	ErrShutdownTimeout        = domain.ErrShutdownTimeout
	ErrInvalidConfig          = domain.ErrInvalidConfig
)

// Number, Text and Nil build Values, e.g. for GetField defaults.
var (
	Number = domain.Number
	Text   = domain.Text
	Nil    = domain.Nil
)
