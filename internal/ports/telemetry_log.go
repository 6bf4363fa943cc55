package ports

// TelemetryLog is the append-only durable log of accepted frames.
type TelemetryLog interface {
	// Append writes one row of raw wire columns.
	Append(columns []string) error

	// Reset truncates the log to its header row.
	Reset() error

	// Export copies the log into dir and returns the new file path.
	Export(dir string) (string, error)

	// Flush forces buffered rows to disk.
	Flush() error

	// Path returns the log file location.
	Path() string

	Close() error
}
