package testutils

import (
	"encoding/json"
	"fmt"

	"github.com/srg/fanlink/internal/device"
)

// CharacteristicConfig describes a mocked characteristic
type CharacteristicConfig struct {
	UUID       string `json:"uuid"`
	Properties string `json:"properties,omitempty"` // e.g. "read,write,notify"
}

// ServiceConfig describes a mocked service
type ServiceConfig struct {
	UUID            string                 `json:"uuid"`
	Characteristics []CharacteristicConfig `json:"characteristics,omitempty"`
}

// PeripheralConfig describes a mocked peripheral
type PeripheralConfig struct {
	ID        string          `json:"id"`
	Name      string          `json:"name,omitempty"`
	Behavior  ConnectBehavior `json:"behavior,omitempty"`
	Services  []ServiceConfig `json:"services,omitempty"`
	Advertise *bool           `json:"advertise,omitempty"`
}

// RadioConfig is the whole mocked radio
type RadioConfig struct {
	PoweredOff     bool                          `json:"powered_off,omitempty"`
	Peripherals    []PeripheralConfig            `json:"peripherals"`
	Advertisements []device.DiscoveredPeripheral `json:"advertisements,omitempty"`
}

// RadioBuilder builds a FakeRadio with a fluent API:
//
//	radio := testutils.NewRadioBuilder().
//	    WithPeripheral("AA:BB", "Fan").
//	    WithService("12345678-1234-5678-1234-56789abcdef0").
//	    WithCharacteristic("abcdef01-1234-5678-1234-56789abcdef0", "write").
//	    Build()
type RadioBuilder struct {
	config RadioConfig
}

// NewRadioBuilder creates an empty, powered radio builder
func NewRadioBuilder() *RadioBuilder {
	return &RadioBuilder{}
}

// PoweredOff makes the built radio report Powered() == false
func (b *RadioBuilder) PoweredOff() *RadioBuilder {
	b.config.PoweredOff = true
	return b
}

// WithPeripheral adds a resolvable peripheral that is also advertised once per discovery
func (b *RadioBuilder) WithPeripheral(id, name string) *RadioBuilder {
	b.config.Peripherals = append(b.config.Peripherals, PeripheralConfig{ID: id, Name: name})
	return b
}

// WithHiddenPeripheral adds a resolvable peripheral that never advertises
func (b *RadioBuilder) WithHiddenPeripheral(id string) *RadioBuilder {
	hidden := false
	b.config.Peripherals = append(b.config.Peripherals, PeripheralConfig{ID: id, Advertise: &hidden})
	return b
}

// WithBehavior sets the connect behaviour of the last added peripheral
func (b *RadioBuilder) WithBehavior(behavior ConnectBehavior) *RadioBuilder {
	p := b.lastPeripheral("WithBehavior")
	p.Behavior = behavior
	return b
}

// WithService adds a service to the last added peripheral
func (b *RadioBuilder) WithService(uuid string) *RadioBuilder {
	p := b.lastPeripheral("WithService")
	p.Services = append(p.Services, ServiceConfig{UUID: uuid})
	return b
}

// WithCharacteristic adds a characteristic to the last added service
func (b *RadioBuilder) WithCharacteristic(uuid, properties string) *RadioBuilder {
	p := b.lastPeripheral("WithCharacteristic")
	if len(p.Services) == 0 {
		panic("WithCharacteristic: no service added yet, call WithService first")
	}
	svc := &p.Services[len(p.Services)-1]
	svc.Characteristics = append(svc.Characteristics, CharacteristicConfig{UUID: uuid, Properties: properties})
	return b
}

// WithAdvertisement adds an extra discovery report, e.g. to exercise duplicate handling
func (b *RadioBuilder) WithAdvertisement(id, name string) *RadioBuilder {
	b.config.Advertisements = append(b.config.Advertisements, device.DiscoveredPeripheral{ID: id, Name: name})
	return b
}

// FromJSON replaces the configuration with a JSON document
func (b *RadioBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *RadioBuilder {
	jsonStr := fmt.Sprintf(jsonStrFmt, args...)

	var config RadioConfig
	if err := json.Unmarshal([]byte(jsonStr), &config); err != nil {
		panic(fmt.Sprintf("RadioBuilder.FromJSON: failed to unmarshal: %v", err))
	}
	b.config = config
	return b
}

func (b *RadioBuilder) lastPeripheral(caller string) *PeripheralConfig {
	if len(b.config.Peripherals) == 0 {
		panic(caller + ": no peripheral added yet, call WithPeripheral first")
	}
	return &b.config.Peripherals[len(b.config.Peripherals)-1]
}

// Build creates the FakeRadio
func (b *RadioBuilder) Build() *FakeRadio {
	radio := NewFakeRadio()
	radio.SetPowered(!b.config.PoweredOff)

	for _, pc := range b.config.Peripherals {
		services := make([]device.Service, 0, len(pc.Services))
		for _, sc := range pc.Services {
			svc := device.Service{UUID: device.NormalizeUUID(sc.UUID)}
			for _, cc := range sc.Characteristics {
				props, err := device.ParseProperties(cc.Properties)
				if err != nil {
					panic(fmt.Sprintf("RadioBuilder.Build: %v", err))
				}
				svc.Characteristics = append(svc.Characteristics, device.Characteristic{
					UUID:       device.NormalizeUUID(cc.UUID),
					Properties: props,
				})
			}
			services = append(services, svc)
		}

		radio.AddPeripheral(&FakePeripheral{
			ID:       pc.ID,
			Name:     pc.Name,
			Services: services,
			Behavior: pc.Behavior,
		})
		if pc.Advertise == nil || *pc.Advertise {
			radio.adverts = append(radio.adverts, device.DiscoveredPeripheral{ID: pc.ID, Name: pc.Name})
		}
	}
	radio.adverts = append(radio.adverts, b.config.Advertisements...)
	return radio
}
