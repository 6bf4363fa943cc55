package domain

import (
	"errors"
	"fmt"
)

// Link errors.
var (
	// ErrLinkUnavailable is returned when the serial device cannot be opened.
	ErrLinkUnavailable = errors.New("groundlink: link unavailable")

	// ErrLinkError reports an I/O failure on an open link.
	ErrLinkError = errors.New("groundlink: link error")

	// ErrLinkClosed is returned by reads and writes on a closed link.
	ErrLinkClosed = errors.New("groundlink: link closed")

	// ErrWriteTimeout is returned when a command write exceeds the write timeout.
	ErrWriteTimeout = errors.New("groundlink: write timeout")

	// ErrPartialWrite is matched by *PartialWriteError.
	ErrPartialWrite = errors.New("groundlink: partial write")
)

// Telemetry errors.
var (
	// ErrFrameLengthMismatch is matched by *FrameLengthError.
	ErrFrameLengthMismatch = errors.New("groundlink: frame length mismatch")

	// ErrFieldParse marks a numeric column that did not parse.
	ErrFieldParse = errors.New("groundlink: field parse failure")

	// ErrUnknownField is returned for lookups of a name not in the schema.
	ErrUnknownField = errors.New("groundlink: unknown field")

	// ErrInvalidSchema is returned when a field list cannot form a schema.
	ErrInvalidSchema = errors.New("groundlink: invalid schema")
)

// Command and simulation errors.
var (
	// ErrQueueFull is returned when a command could not be queued in time.
	ErrQueueFull = errors.New("groundlink: command queue full")

	// ErrEmptyCommand is returned for a blank operator command.
	ErrEmptyCommand = errors.New("groundlink: empty command")

	// ErrSimulationFileNotFound is reported when the replay source is missing.
	ErrSimulationFileNotFound = errors.New("groundlink: simulation file not found")

	// ErrSimulationIO is reported for any other replay read failure.
	ErrSimulationIO = errors.New("groundlink: simulation i/o error")

	// ErrSimulationRunning is returned by a second concurrent start.
	ErrSimulationRunning = errors.New("groundlink: simulation already running")
)

// Lifecycle errors.
var (
	ErrAlreadyRunning  = errors.New("groundlink: already running")
	ErrNotRunning      = errors.New("groundlink: not running")
	ErrShutdownTimeout = errors.New("groundlink: shutdown timeout")
	ErrInvalidConfig   = errors.New("groundlink: invalid configuration")
)

// FrameLengthError describes a frame whose column count differs from the schema.
type FrameLengthError struct {
	Got  int
	Want int
}

func (e *FrameLengthError) Error() string {
	return fmt.Sprintf("frame has %d columns, schema has %d", e.Got, e.Want)
}

// Is reports whether target is ErrFrameLengthMismatch.
func (e *FrameLengthError) Is(target error) bool {
	return target == ErrFrameLengthMismatch
}

// PartialWriteError describes a write that transferred fewer bytes than requested.
type PartialWriteError struct {
	Written  int
	Expected int
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("partial write: %d of %d bytes", e.Written, e.Expected)
}

// Is reports whether target is ErrPartialWrite.
func (e *PartialWriteError) Is(target error) bool {
	return target == ErrPartialWrite
}
