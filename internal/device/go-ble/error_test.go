package goble

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/srg/fanlink/internal/device"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want *device.Error
	}{
		{name: "deadline", err: fmt.Errorf("dial: %w", context.DeadlineExceeded), want: device.ErrTimeout},
		{name: "hci permission", err: errors.New("can't init hci: operation not permitted"), want: device.ErrRadioUnavailable},
		{name: "dial refused", err: errors.New("can't dial: connection refused"), want: device.ErrConnectionFailed},
		{name: "powered off", err: errors.New("central manager has invalid state: have=4 want=5"), want: device.ErrRadioUnavailable},
		{name: "link gone", err: errors.New("device not connected"), want: device.ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeError(tt.err)
			assert.ErrorIs(t, got, tt.want)
			assert.ErrorIs(t, got, tt.err, "platform error MUST stay in the chain")
		})
	}

	assert.NoError(t, NormalizeError(nil))
	typed := device.NewError(device.Timeout, "already typed")
	assert.Same(t, typed, NormalizeError(typed))
}
