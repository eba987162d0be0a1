package device

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode is the short, host-visible code of a session failure
type ErrorCode string

const (
	RadioUnavailable         ErrorCode = "bluetooth_off"
	PeripheralNotFound       ErrorCode = "device_not_found"
	ConnectionFailed         ErrorCode = "connection_failed"
	NotConnected             ErrorCode = "not_connected"
	NoWritableCharacteristic ErrorCode = "no_characteristic"
	Timeout                  ErrorCode = "timeout"
)

// Error is a typed per-operation failure. Two Errors match under errors.Is when
// their codes are equal, so callers compare against the sentinels below.
type Error struct {
	Code ErrorCode
	Msg  string
}

// Error implements the error interface
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

// Is allows errors.Is to compare Error values by Code
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Predefined sentinel errors
var (
	ErrRadioUnavailable         = &Error{Code: RadioUnavailable}
	ErrPeripheralNotFound       = &Error{Code: PeripheralNotFound}
	ErrConnectionFailed         = &Error{Code: ConnectionFailed}
	ErrNotConnected             = &Error{Code: NotConnected}
	ErrNoWritableCharacteristic = &Error{Code: NoWritableCharacteristic}
	ErrTimeout                  = &Error{Code: Timeout}
)

// NewError builds an Error carrying a human-readable message
func NewError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// CodeOf returns the code of the first Error in err's chain, or "" if there is none.
func CodeOf(err error) ErrorCode {
	var derr *Error
	if errors.As(err, &derr) {
		return derr.Code
	}
	return ""
}

// IsCode reports whether err is an Error with the given code
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// MessageOf returns the message of the first Error in err's chain, falling back to err.Error().
func MessageOf(err error) string {
	var derr *Error
	if errors.As(err, &derr) && derr.Msg != "" {
		return derr.Msg
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// containsIgnoreCase checks substring case-insensitively
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// NormalizeError maps well-known platform error strings to typed Errors.
// The original error stays in the chain so callers keep its context.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}
	var derr *Error
	if errors.As(err, &derr) {
		return err
	}

	msg := err.Error()
	switch {
	case containsIgnoreCase(msg, "central manager has invalid state"),
		containsIgnoreCase(msg, "bluetooth is turned off"),
		containsIgnoreCase(msg, "can't init hci"),
		containsIgnoreCase(msg, "no devices available"):
		return fmt.Errorf("%w: %w", ErrRadioUnavailable, err)
	case containsIgnoreCase(msg, "device not connected"),
		containsIgnoreCase(msg, "disconnected"):
		return fmt.Errorf("%w: %w", ErrNotConnected, err)
	default:
		return err
	}
}
