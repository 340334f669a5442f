package services

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an operation targets a row that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrPartialFailure means the readings of a batch were stored but its alerts were not.
	ErrPartialFailure = errors.New("readings recorded, alerts not recorded")
	// ErrRelayUnavailable means a pump command was recorded but the relay device did not acknowledge it.
	ErrRelayUnavailable = errors.New("relay device unavailable")
)

// ValidationError reports malformed caller input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// StorageError wraps a failed store operation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

// ExternalError wraps a failure of the predictor process or the relay device.
type ExternalError struct {
	Dependency string
	Err        error
}

func (e *ExternalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Dependency, e.Err)
}

func (e *ExternalError) Unwrap() error { return e.Err }

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsStorage(err error) bool {
	var s *StorageError
	return errors.As(err, &s)
}

func IsExternal(err error) bool {
	var e *ExternalError
	return errors.As(err, &e)
}
