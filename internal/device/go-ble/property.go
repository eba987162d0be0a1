package goble

import (
	"github.com/go-ble/ble"
	"github.com/srg/fanlink/internal/device"
)

var propertyMap = []struct {
	ble ble.Property
	dev device.Properties
}{
	{ble.CharBroadcast, device.PropBroadcast},
	{ble.CharRead, device.PropRead},
	{ble.CharWriteNR, device.PropWriteWithoutResponse},
	{ble.CharWrite, device.PropWrite},
	{ble.CharNotify, device.PropNotify},
	{ble.CharIndicate, device.PropIndicate},
	{ble.CharSignedWrite, device.PropSignedWrite},
	{ble.CharExtended, device.PropExtended},
}

// ConvertProperties maps go-ble characteristic property flags to device.Properties
func ConvertProperties(p ble.Property) device.Properties {
	var props device.Properties
	for _, m := range propertyMap {
		if p&m.ble != 0 {
			props |= m.dev
		}
	}
	return props
}

// ConvertProfile flattens a discovered go-ble profile into an immutable service
// tree, preserving discovery order, plus the live characteristic handles indexed
// the same way.
func ConvertProfile(profile *ble.Profile) ([]device.Service, [][]*ble.Characteristic) {
	if profile == nil {
		return nil, nil
	}
	services := make([]device.Service, 0, len(profile.Services))
	handles := make([][]*ble.Characteristic, 0, len(profile.Services))
	for _, bleSvc := range profile.Services {
		if bleSvc == nil {
			continue
		}
		svc := device.Service{UUID: device.NormalizeUUID(bleSvc.UUID.String())}
		chars := make([]*ble.Characteristic, 0, len(bleSvc.Characteristics))
		for _, bleChar := range bleSvc.Characteristics {
			if bleChar == nil {
				continue
			}
			svc.Characteristics = append(svc.Characteristics, device.Characteristic{
				UUID:       device.NormalizeUUID(bleChar.UUID.String()),
				Properties: ConvertProperties(bleChar.Property),
			})
			chars = append(chars, bleChar)
		}
		services = append(services, svc)
		handles = append(handles, chars)
	}
	return services, handles
}
