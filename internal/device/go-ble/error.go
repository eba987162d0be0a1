package goble

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/srg/fanlink/internal/device"
)

// NormalizeError maps go-ble failures to typed device errors, keeping the
// original error in the chain.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}
	if device.CodeOf(err) != "" {
		return err
	}

	msg := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", device.ErrTimeout, err)
	case strings.Contains(msg, "operation not permitted"):
		return fmt.Errorf("%w: %w (raw HCI access needs CAP_NET_ADMIN)", device.ErrRadioUnavailable, err)
	case strings.Contains(msg, "can't dial"), strings.Contains(msg, "connection refused"):
		return fmt.Errorf("%w: %w", device.ErrConnectionFailed, err)
	default:
		return device.NormalizeError(err)
	}
}
