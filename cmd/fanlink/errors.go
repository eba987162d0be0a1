package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/srg/fanlink/internal/device"
)

// FormatUserError renders err for the terminal, adding a hint for the session failures
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	var hint string
	switch device.CodeOf(err) {
	case device.RadioUnavailable:
		hint = "make sure Bluetooth is powered on and accessible"
	case device.PeripheralNotFound:
		hint = "run 'fanlink scan' to list nearby devices"
	case device.ConnectionFailed:
		hint = "the device refused or dropped the connection; move closer and retry"
	case device.NotConnected:
		hint = "no active session"
	case device.NoWritableCharacteristic:
		hint = "the device exposes no writable characteristic"
	case device.Timeout:
		hint = "the device did not answer in time; try a longer --timeout"
	default:
		if errors.Is(err, context.DeadlineExceeded) {
			hint = "operation timed out"
		}
	}

	if hint == "" {
		return err.Error()
	}
	return fmt.Sprintf("%s (%s)", err.Error(), hint)
}
