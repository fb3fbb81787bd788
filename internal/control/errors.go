package control

import "errors"

// Validation errors for request fields.
var (
	ErrMissingUsername = errors.New("username is missing")
	ErrMissingPassword = errors.New("password is missing")
	ErrMissingRole     = errors.New("role is missing")
	ErrNoUsersSelected = errors.New("no users selected")
)
