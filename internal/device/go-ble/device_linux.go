//go:build linux

package goble

import (
	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
	"github.com/go-ble/ble/linux/hci/cmd"
)

// Active scanning, so scan responses carrying the local name are requested.
var scanParams = cmd.LESetScanParameters{
	LEScanType:           1,    // Active scanning
	LEScanInterval:       0x10, // 10ms
	LEScanWindow:         0x10, // 10ms
	OwnAddressType:       0,    // Static
	ScanningFilterPolicy: 0,    // Accept all
}

func newDevice(adapterID string) (ble.Device, error) {
	opts := []ble.Option{ble.OptScanParams(scanParams)}
	if adapterID != "" {
		id, err := ParseAdapterID(adapterID)
		if err != nil {
			return nil, err
		}
		opts = append(opts, ble.OptDeviceID(id))
	}
	return linux.NewDevice(opts...)
}
