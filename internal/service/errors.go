package service

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when the target entity does not exist or is not
// visible to the caller.
var ErrNotFound = errors.New("not found")

// ValidationError marks bad input from the caller.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// AuthorizationError marks a caller acting outside their role or on another
// party's entity.
type AuthorizationError struct {
	Msg string
}

func (e *AuthorizationError) Error() string { return e.Msg }

func authorizationf(format string, args ...any) error {
	return &AuthorizationError{Msg: fmt.Sprintf(format, args...)}
}
