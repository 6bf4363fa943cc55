// Package archive stores received frames and command outcomes in SQLite.
//
// It is an EventSink: callbacks only enqueue rows, and a single writer
// goroutine inserts them in batches so the read loop never waits on disk.
package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"github.com/bft-labs/groundlink/internal/domain"
	"github.com/bft-labs/groundlink/internal/ports"
	"github.com/bft-labs/groundlink/pkg/log"
)

// Archive defaults.
const (
	DefaultBatchSize     = 50
	DefaultFlushInterval = 2 * time.Second
	DefaultBuffer        = 1024
)

// ErrClosed is returned by operations on a closed archive.
var ErrClosed = errors.New("archive: closed")

// Config holds archive configuration.
type Config struct {
	Path          string
	BatchSize     int
	FlushInterval time.Duration
	Buffer        int
}

func (c *Config) setDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = DefaultFlushInterval
	}
	if c.Buffer <= 0 {
		c.Buffer = DefaultBuffer
	}
}

// Archive implements ports.EventSink on a SQLite database.
type Archive struct {
	ports.NopSink

	config Config
	db     *gorm.DB
	logger log.Logger

	in      chan row
	flushes chan chan error
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
	closed  atomic.Bool
	dropped atomic.Uint64
}

// Open opens (creating if needed) the database at config.Path and starts
// the writer goroutine.
func Open(config Config, lg log.Logger) (*Archive, error) {
	config.setDefaults()

	db, err := gorm.Open(sqlite.Dialector{
		DriverName: "sqlite",
		DSN:        config.Path,
	}, &gorm.Config{
		Logger: logger.New(gormWriter{lg}, logger.Config{
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	// One writer; also keeps ":memory:" databases on a single connection.
	sqlDB.SetMaxOpenConns(1)
	if err := configureSQLite(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("configure archive: %w", err)
	}
	if err := db.AutoMigrate(&FrameRow{}, &CommandRow{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate archive: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &Archive{
		config:  config,
		db:      db,
		logger:  lg,
		in:      make(chan row, config.Buffer),
		flushes: make(chan chan error),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go a.run(ctx)

	lg.Info("archive opened", log.String("path", config.Path))
	return a, nil
}

func configureSQLite(sqlDB *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := sqlDB.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

// OnRecord archives an accepted frame.
func (a *Archive) OnRecord(rec domain.Record) {
	a.push(row{frame: &FrameRow{
		Seq:        rec.Seq,
		ReceivedAt: rec.ReceivedAt,
		Raw:        rec.Raw,
		Accepted:   true,
	}})
}

// OnDecodeFailure archives a rejected frame with its reason.
func (a *Archive) OnDecodeFailure(line string, err error) {
	a.push(row{frame: &FrameRow{
		ReceivedAt: time.Now(),
		Raw:        line,
		Error:      errString(err),
	}})
}

// OnCommand archives a command outcome.
func (a *Archive) OnCommand(res domain.CommandResult) {
	a.push(row{command: &CommandRow{
		Text:       res.Command.Text,
		Source:     string(res.Command.Source),
		Status:     string(res.Status),
		Error:      errString(res.Err),
		DurationMS: res.Duration.Milliseconds(),
		EnqueuedAt: res.Command.EnqueuedAt,
		At:         res.At,
	}})
}

// push never blocks; rows arriving while the buffer is full are counted
// and discarded.
func (a *Archive) push(r row) {
	if a.closed.Load() {
		return
	}
	select {
	case a.in <- r:
	default:
		if a.dropped.Inc()%100 == 1 {
			a.logger.Warn("archive buffer full, dropping rows", log.Uint64("dropped", a.dropped.Load()))
		}
	}
}

func (a *Archive) run(ctx context.Context) {
	defer close(a.done)

	b := newBatcher(a.config.BatchSize, a.config.FlushInterval)
	ticker := time.NewTicker(a.config.FlushInterval / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.drainInto(b)
			if err := a.write(b); err != nil {
				a.logger.Error("final archive flush failed", log.Err(err))
			}
			return
		case r := <-a.in:
			if b.Add(r) {
				a.writeAndLog(b)
			}
		case <-ticker.C:
			if b.Due() {
				a.writeAndLog(b)
			}
		case reply := <-a.flushes:
			a.drainInto(b)
			reply <- a.write(b)
		}
	}
}

func (a *Archive) drainInto(b *batcher) {
	for {
		select {
		case r := <-a.in:
			b.Add(r)
		default:
			return
		}
	}
}

func (a *Archive) writeAndLog(b *batcher) {
	if err := a.write(b); err != nil {
		a.logger.Error("archive flush failed", log.Err(err))
	}
}

func (a *Archive) write(b *batcher) error {
	if b.Pending() == 0 {
		return nil
	}
	frames, commands := b.Take()
	return a.db.Transaction(func(tx *gorm.DB) error {
		if len(frames) > 0 {
			if err := tx.CreateInBatches(frames, a.config.BatchSize).Error; err != nil {
				return fmt.Errorf("insert frames: %w", err)
			}
		}
		if len(commands) > 0 {
			if err := tx.CreateInBatches(commands, a.config.BatchSize).Error; err != nil {
				return fmt.Errorf("insert commands: %w", err)
			}
		}
		return nil
	})
}

// Flush writes every queued row before returning.
func (a *Archive) Flush(ctx context.Context) error {
	if a.closed.Load() {
		return ErrClosed
	}
	reply := make(chan error, 1)
	select {
	case a.flushes <- reply:
	case <-a.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Frames returns the most recent frames, newest first.
func (a *Archive) Frames(limit int) ([]FrameRow, error) {
	var rows []FrameRow
	err := a.db.Order("id desc").Limit(limit).Find(&rows).Error
	return rows, err
}

// Commands returns the most recent command outcomes, newest first.
func (a *Archive) Commands(limit int) ([]CommandRow, error) {
	var rows []CommandRow
	err := a.db.Order("id desc").Limit(limit).Find(&rows).Error
	return rows, err
}

// Dropped returns the number of rows discarded on a full buffer.
func (a *Archive) Dropped() uint64 {
	return a.dropped.Load()
}

// Close stops the writer after a final flush and closes the database.
func (a *Archive) Close() error {
	var err error
	a.once.Do(func() {
		a.closed.Store(true)
		a.cancel()
		<-a.done
		sqlDB, dbErr := a.db.DB()
		if dbErr != nil {
			err = dbErr
			return
		}
		err = sqlDB.Close()
	})
	return err
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// gormWriter routes gorm's logger through log.Logger.
type gormWriter struct {
	logger log.Logger
}

func (w gormWriter) Printf(format string, args ...interface{}) {
	w.logger.Warn(fmt.Sprintf(format, args...), log.String("component", "archive"))
}
