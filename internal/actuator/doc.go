// Package actuator drives the gate relay.
//
// A Driver has one job: pulse the relay once. Two transports exist:
//
//   - GPIODriver asserts a GPIO line through periph.io, holds it for
//     PulseDwell, then releases it. The release is deferred before the
//     assert so the relay is never left energised.
//   - MQTTDriver publishes a toggle command to smart-plug firmware
//     (Tasmota style cmnd/<device>/POWER) and does not wait for the
//     broker.
//
// Failures are returned as *Error whose kind is ErrDriverUnavailable (the
// hardware access layer is missing or misconfigured) or ErrTransport (the
// broker cannot be reached). Both are fatal to the request only.
package actuator
