// Package ports defines the interfaces that connect the station core to
// the outside world.
//
//   - [Link]: the serial connection (read frames, write commands)
//   - [TelemetryLog]: the durable telemetry log
//   - [SchemaProvider]: where the field layout comes from
//   - [EventSink]: upward notifications (records, raw lines, commands,
//     simulation progress, lifecycle changes)
//
// internal/app depends only on these interfaces; internal/adapters
// provides the serial, file, archive and bus implementations.
package ports
