// Package influxdb records gate actuation telemetry in InfluxDB v2.
//
// Writes are non-blocking and batched by the client library. Telemetry is
// optional: when influxdb.enabled is false Connect returns ErrDisabled and
// the caller runs without it.
//
// Measurements:
//
//	gate_actuation  tags: site, gate, driver, actor, result   fields: from, to, duration_ms, error
//	gate_override   tags: site, gate, actor                   fields: from, to
package influxdb
