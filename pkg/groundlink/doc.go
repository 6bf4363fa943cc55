// Package groundlink provides an embeddable ground station for a
// serial-connected flight unit.
//
// A Station owns one serial link. Its read loop turns newline-terminated
// CSV frames into typed records against a telemetry schema, appends them
// to a durable CSV log and keeps the latest rows for quick lookups. Its
// send loop paces operator commands onto the link, at most one per
// Config.MinInterval. A simulation replay can feed recorded command rows
// into the same queue at a fixed cadence.
//
// # Basic Usage
//
//	st, err := groundlink.New(groundlink.Config{
//	    Port:    "/dev/ttyUSB0",
//	    LogPath: "flight.csv",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := st.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer st.Close()
//
//	_ = st.Enqueue("CMD,1000,CX,ON")
//	alt := st.GetField("ALTITUDE", groundlink.Nil)
//
// # Schemas
//
// Without Config.SchemaFile or Config.Fields the built-in legacy layout is
// used. A schema file is a JSON object {"telemetryFields": {"NAME": "unit"}}
// whose key order is the column order; a field with a non-empty unit is
// numeric. Call [Station.ReloadSchema], or register the schemawatcher
// plugin, to pick up changes.
//
// # Events
//
// Implement [EventHandler] (embed [BaseEventHandler] for defaults) and
// pass it with [WithEventHandler]. Handlers run synchronously on the loop
// that produced the event and must return quickly.
//
// # Lifecycle States
//
// A Station is [StateIdle], [StateStarting], [StateRunning],
// [StateStopping] or [StateFaulted]. A lost link moves a running station
// to Faulted; Stop brings it back to Idle.
package groundlink
