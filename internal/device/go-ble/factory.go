package goble

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-ble/ble"
)

// DeviceFactory creates the platform ble.Device for an adapter id ("" is the
// platform default). It is a variable so tests can replace it.
//
//nolint:revive // DeviceFactory name is intentional for test mocking
var DeviceFactory func(adapterID string) (ble.Device, error) = newDevice

// ParseAdapterID accepts "hci1" or "1" and returns the HCI device index
func ParseAdapterID(s string) (int, error) {
	trimmed := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "hci")
	id, err := strconv.Atoi(trimmed)
	if err != nil || id < 0 {
		return 0, fmt.Errorf("invalid Bluetooth adapter id %q: expected hciN or N", s)
	}
	return id, nil
}

// newCentral builds the central over a freshly created platform device
func newCentral(adapterID string) (central, error) {
	dev, err := DeviceFactory(adapterID)
	if err != nil {
		return nil, err
	}
	return &bleCentral{dev: dev}, nil
}
