// Package apperr defines the error kinds surfaced by the ingestion pipeline.
// Callers classify failures with errors.As.
package apperr

import (
	"errors"
	"fmt"
)

// TransportError is a network or HTTP failure. StatusCode is zero when no
// response was received.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError is a malformed or invalid payload.
type DecodeError struct {
	Op  string
	Err error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *DecodeError) Unwrap() error { return e.Err }

// StorageError is a lock or SQL failure in the local store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *StorageError) Unwrap() error { return e.Err }

// ConfigError is a missing or invalid setting, or a request naming
// something the pipeline does not know.
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

// Transport wraps err as a TransportError.
func Transport(op string, statusCode int, err error) error {
	return &TransportError{Op: op, StatusCode: statusCode, Err: err}
}

// Decode wraps err as a DecodeError.
func Decode(op string, err error) error {
	return &DecodeError{Op: op, Err: err}
}

// Storage wraps err as a StorageError. Errors that already carry a kind are
// returned unchanged.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsStorage(err) || IsConfig(err) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// Config builds a ConfigError.
func Config(field, format string, args ...any) error {
	return &ConfigError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// IsTransport reports whether err is a TransportError.
func IsTransport(err error) bool {
	var e *TransportError
	return errors.As(err, &e)
}

// IsDecode reports whether err is a DecodeError.
func IsDecode(err error) bool {
	var e *DecodeError
	return errors.As(err, &e)
}

// IsStorage reports whether err is a StorageError.
func IsStorage(err error) bool {
	var e *StorageError
	return errors.As(err, &e)
}

// IsConfig reports whether err is a ConfigError.
func IsConfig(err error) bool {
	var e *ConfigError
	return errors.As(err, &e)
}
