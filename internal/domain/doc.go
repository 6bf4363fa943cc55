// Package domain contains the core types of the ground station link.
//
// Nothing here touches a serial port, a file, or a logger.
//
//   - [Schema]: ordered, typed column layout of a telemetry frame
//   - [Record]: one decoded frame keyed by field name
//   - [Command]: an uplink line and where it came from
//   - [SimulationStatus]: progress of a replay session
//   - [State]: station lifecycle phase
//
// Schemas are immutable after construction. Records are values and safe
// to hand to any number of observers.
package domain
