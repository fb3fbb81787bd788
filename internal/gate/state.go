package gate

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// State is the logical gate state. The numeric codes are part of the API.
type State int

// Gate states. Opening and Closing exist only while a pulse is in flight.
const (
	Closed  State = 0
	Open    State = 1
	Opening State = 2
	Closing State = 3
)

// Errors returned by the state machine.
var (
	ErrInvalidState   = errors.New("invalid gate state")
	ErrInTransit      = errors.New("gate is in transit")
	ErrUnknownCommand = errors.New("unknown gate command")
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case Opening:
		return "opening"
	case Closing:
		return "closing"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Settled reports whether s is Open or Closed.
func (s State) Settled() bool {
	return s == Open || s == Closed
}

// MarshalText encodes the state name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ParseState accepts "open", "closed" (any case) or their codes "1", "0".
// Transit states cannot be requested.
func ParseState(v string) (State, error) {
	norm := strings.ToLower(strings.TrimSpace(v))
	switch norm {
	case "closed", "close":
		return Closed, nil
	case "open", "opened":
		return Open, nil
	}
	if n, err := strconv.Atoi(norm); err == nil {
		if s := State(n); s.Settled() {
			return s, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidState, v)
}

// Command is an input to Apply.
type Command string

// CommandToggle is the only command on the actuation path.
const CommandToggle Command = "toggle"

// Action names the outcome of a toggle.
type Action string

// Toggle outcomes.
const (
	ActionOpened Action = "opened"
	ActionClosed Action = "closed"
)

// Apply is the transition table. It returns the state to commit, the
// action reported to the caller, and whether the relay must be pulsed.
func Apply(current State, cmd Command) (next State, action Action, actuate bool, err error) {
	if cmd != CommandToggle {
		return current, "", false, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd)
	}

	switch current {
	case Closed:
		return Open, ActionOpened, true, nil
	case Open:
		return Closed, ActionClosed, true, nil
	case Opening, Closing:
		return current, "", false, ErrInTransit
	default:
		return current, "", false, fmt.Errorf("%w: %d", ErrInvalidState, int(current))
	}
}

// transitTo is the state reported while moving towards next.
func transitTo(next State) State {
	if next == Open {
		return Opening
	}
	return Closing
}
