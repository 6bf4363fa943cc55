package ports

import "github.com/bft-labs/groundlink/internal/domain"

// EventSink receives upward notifications. Calls are synchronous on the
// goroutine that produced the event, so implementations must not block.
type EventSink interface {
	OnStateChange(previous, current domain.State, reason string)
	OnRecord(rec domain.Record)
	OnRawLine(line string)
	OnDecodeFailure(line string, err error)
	OnCommand(res domain.CommandResult)
	OnSimulationStatus(status domain.SimulationStatus)
}

// NopSink implements EventSink with no-ops. Embed it to handle a subset.
type NopSink struct{}

func (NopSink) OnStateChange(previous, current domain.State, reason string) {}
func (NopSink) OnRecord(rec domain.Record)                                 {}
func (NopSink) OnRawLine(line string)                                      {}
func (NopSink) OnDecodeFailure(line string, err error)                     {}
func (NopSink) OnCommand(res domain.CommandResult)                         {}
func (NopSink) OnSimulationStatus(status domain.SimulationStatus)          {}

// MultiSink fans every event out to its members in order.
type MultiSink []EventSink

func (m MultiSink) OnStateChange(previous, current domain.State, reason string) {
	for _, s := range m {
		s.OnStateChange(previous, current, reason)
	}
}

func (m MultiSink) OnRecord(rec domain.Record) {
	for _, s := range m {
		s.OnRecord(rec)
	}
}

func (m MultiSink) OnRawLine(line string) {
	for _, s := range m {
		s.OnRawLine(line)
	}
}

func (m MultiSink) OnDecodeFailure(line string, err error) {
	for _, s := range m {
		s.OnDecodeFailure(line, err)
	}
}

func (m MultiSink) OnCommand(res domain.CommandResult) {
	for _, s := range m {
		s.OnCommand(res)
	}
}

func (m MultiSink) OnSimulationStatus(status domain.SimulationStatus) {
	for _, s := range m {
		s.OnSimulationStatus(status)
	}
}
