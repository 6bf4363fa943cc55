package ports

import "github.com/bft-labs/groundlink/internal/domain"

// LineWriter writes one uplink line.
type LineWriter interface {
	// WriteLine appends the wire terminator and writes line.
	// Returns domain.ErrWriteTimeout, a *domain.PartialWriteError, or a
	// domain.ErrLinkError-wrapped error. The caller does not retry.
	WriteLine(line string) error
}

// Link owns exactly one connection to a serial device.
type Link interface {
	LineWriter

	// Open connects to the configured device.
	// Returns a domain.ErrLinkUnavailable-wrapped error on failure.
	Open() error

	// Close releases the connection. Safe to call when closed.
	Close() error

	// IsOpen reports whether a connection is held.
	IsOpen() bool

	// ReadLine blocks until a complete frame arrives or the read timeout
	// elapses. Returns "" and a nil error on timeout.
	ReadLine() (string, error)

	// ChangeBaud closes and reopens the connection at baud.
	// On failure the link is left closed.
	ChangeBaud(baud int) error

	// State returns a snapshot of the connection parameters.
	State() domain.LinkState
}

// Interrupter is implemented by links whose ReadLine can be cut short.
type Interrupter interface {
	// Interrupt makes a blocked ReadLine, and any later one until the
	// link is reopened, return "" and a nil error promptly.
	Interrupt()
}
