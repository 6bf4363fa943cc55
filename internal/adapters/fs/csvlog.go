// Package fs provides the file-backed durable telemetry log.
package fs

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

// exportTimeFormat is used in exported file names.
const exportTimeFormat = "20060102T150405Z"

// Header returns names followed by trailing, unless trailing is empty or
// already present.
func Header(names []string, trailing string) []string {
	out := append([]string(nil), names...)
	if trailing != "" && !slices.Contains(out, trailing) {
		out = append(out, trailing)
	}
	return out
}

// CSVLog implements ports.TelemetryLog as an append-only CSV file.
// Every append reaches the OS before Append returns.
type CSVLog struct {
	mu     sync.Mutex
	path   string
	header []string
	f      *os.File
	w      *csv.Writer
	now    func() time.Time
}

// NewCSVLog creates a log at path. The file is opened on first use.
func NewCSVLog(path string, header []string) *CSVLog {
	return &CSVLog{
		path:   path,
		header: append([]string(nil), header...),
		now:    time.Now,
	}
}

// Open creates the file if needed and writes the header into an empty file.
func (l *CSVLog) Open() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.openLocked()
}

func (l *CSVLog) openLocked() error {
	if l.f != nil {
		return nil
	}
	if dir := filepath.Dir(l.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create log dir: %w", err)
		}
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open telemetry log: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat telemetry log: %w", err)
	}

	l.f = f
	l.w = csv.NewWriter(f)
	if info.Size() == 0 {
		return l.writeLocked(l.header)
	}
	return nil
}

func (l *CSVLog) writeLocked(row []string) error {
	if err := l.w.Write(row); err != nil {
		return fmt.Errorf("write telemetry log: %w", err)
	}
	l.w.Flush()
	if err := l.w.Error(); err != nil {
		return fmt.Errorf("flush telemetry log: %w", err)
	}
	return nil
}

// Append writes one row of wire columns.
func (l *CSVLog) Append(columns []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.openLocked(); err != nil {
		return err
	}
	return l.writeLocked(columns)
}

// SetHeader changes the header written by the next Reset or new file.
func (l *CSVLog) SetHeader(header []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.header = append([]string(nil), header...)
}

// Reset truncates the file to the header row.
func (l *CSVLog) Reset() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.openLocked(); err != nil {
		return err
	}
	l.w.Flush()
	if err := l.f.Truncate(0); err != nil {
		return fmt.Errorf("truncate telemetry log: %w", err)
	}
	if _, err := l.f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind telemetry log: %w", err)
	}
	return l.writeLocked(l.header)
}

// Flush syncs the file to stable storage.
func (l *CSVLog) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.flushLocked()
}

func (l *CSVLog) flushLocked() error {
	if l.f == nil {
		return nil
	}
	l.w.Flush()
	if err := l.w.Error(); err != nil {
		return err
	}
	return l.f.Sync()
}

// Export copies the log to dir/<name>-<UTC time>.csv and returns that path.
func (l *CSVLog) Export(dir string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.openLocked(); err != nil {
		return "", err
	}
	if err := l.flushLocked(); err != nil {
		return "", fmt.Errorf("flush before export: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(l.path), filepath.Ext(l.path))
	dest := filepath.Join(dir, fmt.Sprintf("%s-%s.csv", base, l.now().UTC().Format(exportTimeFormat)))

	src, err := os.Open(l.path)
	if err != nil {
		return "", fmt.Errorf("open telemetry log: %w", err)
	}
	defer src.Close()

	dst, err := os.OpenFile(dest, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("create export: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return "", fmt.Errorf("copy telemetry log: %w", err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("close export: %w", err)
	}
	return dest, nil
}

// Path returns the log file location.
func (l *CSVLog) Path() string {
	return l.path
}

// Close flushes and closes the file. The log reopens on next use.
func (l *CSVLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.f == nil {
		return nil
	}
	err := l.flushLocked()
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	l.f = nil
	l.w = nil
	return err
}
