// Package serial implements ports.Link on go.bug.st/serial.
package serial

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"time"

	gobug "go.bug.st/serial"
	"go.uber.org/atomic"

	"github.com/bft-labs/groundlink/internal/domain"
	"github.com/bft-labs/groundlink/pkg/log"
)

// Link defaults.
const (
	DefaultBaud          = 115200
	DefaultReadTimeout   = 4 * time.Second
	DefaultWriteTimeout  = 100 * time.Millisecond
	DefaultTerminator    = "\n"
	DefaultMaxFrameBytes = 4096

	// LegacyTerminator ends frames from the legacy flight firmware. The
	// token doubles as the TEAM_NAME column, so those frames keep it.
	LegacyTerminator = "COSMOS"

	// pollInterval bounds a single device read so Close and ChangeBaud
	// take effect quickly.
	pollInterval = 100 * time.Millisecond
	readChunk    = 512
)

// Config describes the device and the framing on it.
type Config struct {
	Port           string
	Baud           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	Terminator     string
	KeepTerminator bool
	MaxFrameBytes  int
}

func (c *Config) setDefaults() {
	if c.Baud <= 0 {
		c.Baud = DefaultBaud
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.Terminator == "" {
		c.Terminator = DefaultTerminator
	}
	if c.MaxFrameBytes <= 0 {
		c.MaxFrameBytes = DefaultMaxFrameBytes
	}
}

// portHandle is the subset of gobug.Port the link uses.
type portHandle interface {
	SetReadTimeout(timeout time.Duration) error
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Drain() error
	Close() error
}

// allow tests to override external dependencies
var (
	openPort     = func(name string, mode *gobug.Mode) (portHandle, error) { return gobug.Open(name, mode) }
	getPortsList = gobug.GetPortsList
)

// ListPorts returns the serial devices present on the host.
func ListPorts() ([]string, error) {
	return getPortsList()
}

// Link owns one serial connection. ReadLine has a single caller (the
// read loop); WriteLine, Close and ChangeBaud may be called from any
// goroutine.
type Link struct {
	config Config
	logger log.Logger

	mu   sync.Mutex
	port portHandle
	baud int

	// gen changes on every close so an in-flight read can tell that it
	// was interrupted on purpose.
	gen  atomic.Uint64
	open atomic.Bool

	// interrupted is set by Interrupt and cleared by the next open.
	interrupted atomic.Bool

	writeMu sync.Mutex
	// writing is held from the start of a device write until it returns,
	// which can outlast a timed-out WriteLine.
	writing atomic.Bool

	// Read loop only.
	buf    []byte
	bufGen uint64
	chunk  []byte
}

// New creates a closed link.
func New(config Config, logger log.Logger) *Link {
	config.setDefaults()
	return &Link{
		config: config,
		logger: logger,
		baud:   config.Baud,
		chunk:  make([]byte, readChunk),
	}
}

// Open connects to the configured port. Opening an open link is a no-op.
func (l *Link) Open() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.openLocked()
}

func (l *Link) openLocked() error {
	if l.port != nil {
		return nil
	}

	p, err := openPort(l.config.Port, &gobug.Mode{BaudRate: l.baud})
	if err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrLinkUnavailable, l.config.Port, err)
	}
	timeout := pollInterval
	if l.config.ReadTimeout < timeout {
		timeout = l.config.ReadTimeout
	}
	if err := p.SetReadTimeout(timeout); err != nil {
		_ = p.Close()
		return fmt.Errorf("%w: %s: set read timeout: %v", domain.ErrLinkUnavailable, l.config.Port, err)
	}

	l.port = p
	l.interrupted.Store(false)
	l.open.Store(true)
	l.logger.Info("serial link open",
		log.String("port", l.config.Port),
		log.Int("baud", l.baud),
	)
	return nil
}

// Close releases the port. Safe to call when closed.
func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeLocked()
}

func (l *Link) closeLocked() error {
	if l.port == nil {
		return nil
	}
	l.gen.Inc()
	l.open.Store(false)
	err := l.port.Close()
	l.port = nil
	if err != nil {
		return fmt.Errorf("%w: close: %v", domain.ErrLinkError, err)
	}
	return nil
}

// Interrupt makes an in-flight ReadLine return ("", nil) within one poll
// interval, and later calls return ("", nil) without reading until the
// link is opened again. Buffered bytes are kept.
func (l *Link) Interrupt() {
	l.interrupted.Store(true)
}

// IsOpen reports whether a port is held.
func (l *Link) IsOpen() bool {
	return l.open.Load()
}

// ChangeBaud closes the port and reopens it at baud. If the reopen fails
// the link stays closed.
func (l *Link) ChangeBaud(baud int) error {
	if baud <= 0 {
		return fmt.Errorf("%w: baud %d", domain.ErrInvalidConfig, baud)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.closeLocked(); err != nil {
		l.logger.Warn("close before baud change failed", log.Err(err))
	}
	l.baud = baud
	if err := l.openLocked(); err != nil {
		l.logger.Error("reopen at new baud failed", log.Int("baud", baud), log.Err(err))
		return err
	}
	l.logger.Info("baud rate changed", log.Int("baud", baud))
	return nil
}

// State returns the connection parameters.
func (l *Link) State() domain.LinkState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return domain.LinkState{
		Port:        l.config.Port,
		Baud:        l.baud,
		ReadTimeout: l.config.ReadTimeout,
		Open:        l.port != nil,
	}
}

// ReadLine returns the next whitespace-trimmed, non-empty frame.
// It returns ("", nil) when ReadTimeout passes without a complete frame,
// or when Close, ChangeBaud or Interrupt interrupts the read.
func (l *Link) ReadLine() (string, error) {
	deadline := time.Now().Add(l.config.ReadTimeout)

	l.mu.Lock()
	p := l.port
	gen := l.gen.Load()
	l.mu.Unlock()

	if gen != l.bufGen {
		// Bytes from before a reopen belong to a different session.
		l.buf = l.buf[:0]
		l.bufGen = gen
	}
	if frame, ok := l.nextFrame(); ok {
		return frame, nil
	}
	if p == nil {
		return "", domain.ErrLinkClosed
	}

	for {
		if l.interrupted.Load() {
			return "", nil
		}
		n, err := p.Read(l.chunk)
		if l.gen.Load() != gen {
			return "", nil
		}
		if err != nil {
			return "", fmt.Errorf("%w: read %s: %v", domain.ErrLinkError, l.config.Port, err)
		}
		if n > 0 {
			l.buf = append(l.buf, l.chunk[:n]...)
			if frame, ok := l.nextFrame(); ok {
				return frame, nil
			}
			continue
		}
		if !time.Now().Before(deadline) {
			return "", nil
		}
	}
}

// nextFrame extracts one frame from buf.
func (l *Link) nextFrame() (string, bool) {
	term := []byte(l.config.Terminator)
	for {
		i := bytes.Index(l.buf, term)
		if i < 0 {
			if len(l.buf) > l.config.MaxFrameBytes {
				l.logger.Warn("discarding oversized unterminated input", log.Int("bytes", len(l.buf)))
				l.buf = l.buf[:0]
			}
			return "", false
		}

		end := i
		if l.config.KeepTerminator {
			end = i + len(term)
		}
		frame := strings.TrimSpace(string(l.buf[:end]))
		l.buf = l.buf[i+len(term):]
		if frame != "" {
			return frame, true
		}
	}
}

// WriteLine writes line plus "\n" and waits for the OS to drain it,
// giving up after WriteTimeout. A write abandoned on timeout may still
// complete on the device later; until it does, WriteLine returns
// ErrWriteTimeout without touching the port so lines never interleave.
func (l *Link) WriteLine(line string) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	l.mu.Lock()
	p := l.port
	l.mu.Unlock()
	if p == nil {
		return domain.ErrLinkClosed
	}
	if !l.writing.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: previous write still in progress", domain.ErrWriteTimeout)
	}

	data := []byte(line + "\n")
	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)
	go func() {
		n, err := p.Write(data)
		if err == nil && n == len(data) {
			err = p.Drain()
		}
		l.writing.Store(false)
		done <- result{n, err}
	}()

	timer := time.NewTimer(l.config.WriteTimeout)
	defer timer.Stop()

	select {
	case r := <-done:
		if r.err != nil {
			return fmt.Errorf("%w: write %s: %v", domain.ErrLinkError, l.config.Port, r.err)
		}
		if r.n != len(data) {
			return &domain.PartialWriteError{Written: r.n, Expected: len(data)}
		}
		return nil
	case <-timer.C:
		return domain.ErrWriteTimeout
	}
}
