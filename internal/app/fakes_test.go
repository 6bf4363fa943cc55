package app

import (
	"sync"
	"time"

	"github.com/bft-labs/groundlink/internal/domain"
	"github.com/bft-labs/groundlink/internal/ports"
)

// recordingSink captures every event.
type recordingSink struct {
	ports.NopSink

	mu       sync.Mutex
	records  []domain.Record
	raw      []string
	failures []error
	commands []domain.CommandResult
	sims     []domain.SimulationStatus
}

func (s *recordingSink) OnRecord(rec domain.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
}

func (s *recordingSink) OnRawLine(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.raw = append(s.raw, line)
}

func (s *recordingSink) OnDecodeFailure(line string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, err)
}

func (s *recordingSink) OnCommand(res domain.CommandResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append(s.commands, res)
}

func (s *recordingSink) OnSimulationStatus(status domain.SimulationStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sims = append(s.sims, status)
}

func (s *recordingSink) Records() []domain.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Record(nil), s.records...)
}

func (s *recordingSink) Commands() []domain.CommandResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.CommandResult(nil), s.commands...)
}

func (s *recordingSink) Simulations() []domain.SimulationStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.SimulationStatus(nil), s.sims...)
}

// memLog is an in-memory TelemetryLog.
type memLog struct {
	mu   sync.Mutex
	rows [][]string
}

func (m *memLog) Append(columns []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, columns)
	return nil
}

func (m *memLog) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = nil
	return nil
}

func (m *memLog) Export(dir string) (string, error) { return dir + "/export.csv", nil }
func (m *memLog) Flush() error                      { return nil }
func (m *memLog) Path() string                      { return "mem" }
func (m *memLog) Close() error                      { return nil }

func (m *memLog) Rows() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]string(nil), m.rows...)
}

// timedWriter records the time and text of every write.
type timedWriter struct {
	mu    sync.Mutex
	lines []string
	times []time.Time
	err   error
}

func (w *timedWriter) WriteLine(line string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lines = append(w.lines, line)
	w.times = append(w.times, time.Now())
	return w.err
}

func (w *timedWriter) Snapshot() ([]string, []time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.lines...), append([]time.Time(nil), w.times...)
}

// fakeQueue is a CommandQueue that records enqueued commands. Each
// Enqueue takes delay to return.
type fakeQueue struct {
	mu      sync.Mutex
	cmds    []domain.Command
	times   []time.Time
	cleared int
	err     error
	delay   time.Duration
}

func (q *fakeQueue) Enqueue(cmd domain.Command) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.times = append(q.times, time.Now())
	if q.delay > 0 {
		time.Sleep(q.delay)
	}
	if q.err != nil {
		return q.err
	}
	q.cmds = append(q.cmds, cmd)
	return nil
}

func (q *fakeQueue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cleared++
	n := len(q.cmds)
	q.cmds = nil
	return n
}

func (q *fakeQueue) Times() []time.Time {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]time.Time(nil), q.times...)
}

func (q *fakeQueue) Commands() []domain.Command {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]domain.Command(nil), q.cmds...)
}

func testSchema() *domain.Schema {
	return domain.MustSchema([]domain.Field{
		{Name: "ALT", Unit: "m"},
		{Name: "LABEL"},
	})
}
