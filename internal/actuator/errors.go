package actuator

import (
	"errors"
	"fmt"
)

// Sentinel kinds carried by *Error.
var (
	ErrDriverUnavailable = errors.New("actuator driver unavailable")
	ErrTransport         = errors.New("actuator transport error")
)

// Error is an actuation failure. errors.Is matches both Kind and the
// underlying cause.
type Error struct {
	Kind   error
	Driver string
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Driver, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Driver, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func unavailable(driver string, err error) *Error {
	return &Error{Kind: ErrDriverUnavailable, Driver: driver, Err: err}
}

func transport(driver string, err error) *Error {
	return &Error{Kind: ErrTransport, Driver: driver, Err: err}
}
