//go:build darwin

package goble

import (
	"fmt"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/darwin"
)

func newDevice(adapterID string) (ble.Device, error) {
	if adapterID != "" {
		return nil, fmt.Errorf("selecting a Bluetooth adapter (%q) is not supported on macOS", adapterID)
	}
	return darwin.NewDevice()
}
