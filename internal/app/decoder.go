package app

import (
	"errors"
	"strings"
	"time"

	"go.uber.org/atomic"

	"github.com/bft-labs/groundlink/internal/domain"
	"github.com/bft-labs/groundlink/internal/ports"
	"github.com/bft-labs/groundlink/pkg/log"
)

// FieldDelimiter separates columns on the wire.
const FieldDelimiter = ","

// DecoderConfig controls the telemetry decoder.
type DecoderConfig struct {
	HistorySize int

	// LogRejectedFrames appends frames with the wrong column count to the
	// durable log too. They never reach history or OnRecord.
	LogRejectedFrames bool
}

// Decoder turns raw frames into records against the current schema.
type Decoder struct {
	config  DecoderConfig
	schema  atomic.Pointer[domain.Schema]
	history *History
	tlog    ports.TelemetryLog
	sink    ports.EventSink
	logger  log.Logger
	now     func() time.Time

	seq        atomic.Uint64
	received   atomic.Uint64
	rejected   atomic.Uint64
	lastPacket atomic.String
}

// NewDecoder creates a decoder. tlog may be nil to skip durable logging.
func NewDecoder(config DecoderConfig, schema *domain.Schema, tlog ports.TelemetryLog, sink ports.EventSink, logger log.Logger) *Decoder {
	if sink == nil {
		sink = ports.NopSink{}
	}
	d := &Decoder{
		config:  config,
		history: NewHistory(config.HistorySize),
		tlog:    tlog,
		sink:    sink,
		logger:  logger,
		now:     time.Now,
	}
	d.schema.Store(schema)
	return d
}

// Schema returns the schema in use.
func (d *Decoder) Schema() *domain.Schema {
	return d.schema.Load()
}

// SetSchema swaps the schema. Decodes already in progress finish with
// the schema they loaded.
func (d *Decoder) SetSchema(schema *domain.Schema) {
	d.schema.Store(schema)
}

// History returns the recent-history buffer.
func (d *Decoder) History() *History {
	return d.history
}

// Decode interprets one frame. A column-count mismatch returns a
// *domain.FrameLengthError and leaves history untouched. A numeric column
// that fails to parse becomes Nil without invalidating the record.
func (d *Decoder) Decode(raw string) (domain.Record, error) {
	schema := d.schema.Load()
	columns := strings.Split(raw, FieldDelimiter)
	if len(columns) != schema.Len() {
		return domain.Record{}, &domain.FrameLengthError{Got: len(columns), Want: schema.Len()}
	}

	rec := domain.Record{
		Seq:        d.seq.Inc(),
		ReceivedAt: d.now(),
		Raw:        raw,
		Columns:    columns,
		Values:     make(map[string]domain.Value, len(columns)),
	}
	for i, col := range columns {
		field := schema.Field(i)
		v, err := domain.ParseValue(field, col)
		if err != nil {
			rec.ParseFailures = append(rec.ParseFailures, field.Name)
		}
		rec.Values[field.Name] = v
	}

	d.history.Push(columns)
	return rec, nil
}

// Ingest runs one frame through decode, durable log and notification,
// in that order.
func (d *Decoder) Ingest(raw string) {
	d.received.Inc()
	d.lastPacket.Store(raw)

	rec, err := d.Decode(raw)
	if err != nil {
		d.rejected.Inc()
		d.logger.Debug("frame rejected", log.Err(err), log.String("frame", raw))
		if d.config.LogRejectedFrames {
			d.appendLog(strings.Split(raw, FieldDelimiter))
		}
		d.sink.OnDecodeFailure(raw, err)
		d.sink.OnRawLine(raw)
		return
	}

	if len(rec.ParseFailures) > 0 {
		d.logger.Debug("numeric fields did not parse", log.Strings("fields", rec.ParseFailures))
	}
	d.appendLog(rec.Columns)
	d.sink.OnRecord(rec)
	d.sink.OnRawLine(raw)
}

func (d *Decoder) appendLog(columns []string) {
	if d.tlog == nil {
		return
	}
	if err := d.tlog.Append(columns); err != nil {
		d.logger.Error("telemetry log append failed", log.Err(err))
	}
}

// Latest returns the newest value of name from history, re-parsed on
// every call. ok is false when there is no history, the field is
// unknown, the row is too short, or the value does not parse.
func (d *Decoder) Latest(name string) (domain.Value, bool) {
	field, idx, known := d.schema.Load().Lookup(name)
	if !known {
		return domain.Nil, false
	}
	row, ok := d.history.Latest()
	if !ok || idx >= len(row) {
		return domain.Nil, false
	}
	v, err := domain.ParseValue(field, row[idx])
	if err != nil {
		return domain.Nil, false
	}
	return v, true
}

// GetField is Latest with a caller-supplied default.
func (d *Decoder) GetField(name string, def domain.Value) domain.Value {
	if v, ok := d.Latest(name); ok {
		return v
	}
	return def
}

// Received returns the number of non-empty frames seen.
func (d *Decoder) Received() uint64 { return d.received.Load() }

// Rejected returns the number of frames with the wrong column count.
func (d *Decoder) Rejected() uint64 { return d.rejected.Load() }

// LastPacket returns the most recent raw frame.
func (d *Decoder) LastPacket() string { return d.lastPacket.Load() }

// IsFrameLengthMismatch reports whether err came from a column-count mismatch.
func IsFrameLengthMismatch(err error) bool {
	return errors.Is(err, domain.ErrFrameLengthMismatch)
}
