// Package gateway is the station's HTTP surface.
//
// GET /ws upgrades to a WebSocket that receives every station event as
// an Envelope. A client may send {"type":"command","text":"..."} to queue
// an uplink command. The REST routes under /api drive the operator
// operations, and /metrics serves Prometheus collectors when configured.
package gateway
