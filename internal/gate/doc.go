// Package gate holds the logical state of the gate and serialises every
// change to it.
//
// # Logical versus physical state
//
// Nothing senses the gate. State is what the system last commanded, and a
// committed toggle means only that the relay was pulsed (or, over MQTT,
// that the command was handed to the broker). The two can drift when:
//
//   - the gate is moved by hand, a remote, or a power cut;
//   - a pulse reaches the relay but the motor controller ignores it;
//   - the process restarts with gate.initial_state = closed while the gate
//     is open.
//
// Operators correct drift with the administrative override (SetState or
// FlipState), which records the new state without touching the relay.
//
// # Concurrency
//
// Machine uses two locks. The actuation lock is held for the whole
// read-pulse-commit sequence of Toggle and for overrides, so concurrent
// toggles produce one pulse each and strictly alternate the state. The
// state lock only guards the current value; State never waits for a pulse
// in flight.
package gate
