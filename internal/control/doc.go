// Package control implements the operations exposed by the gate panel.
//
// Every privileged operation starts with one Authorizer check for the
// capability it needs. Toggles then run through the gate state machine,
// which pulses the relay under its actuation lock. Side effects that
// follow a committed change (audit entry, telemetry point, metrics, MQTT
// state message) never undo the change when they fail.
package control
