package device

import (
	"fmt"
	"strings"
)

// UnknownDeviceName is reported for peripherals that never advertised a name
const UnknownDeviceName = "Unknown Device"

// DiscoveredPeripheral is a peripheral reported during a discovery window
type DiscoveredPeripheral struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// DisplayName returns the peripheral name or UnknownDeviceName when it is empty
func (p DiscoveredPeripheral) DisplayName() string {
	if strings.TrimSpace(p.Name) == "" {
		return UnknownDeviceName
	}
	return p.Name
}

// ----------------------------
// Properties
// ----------------------------

// Properties is the set of GATT characteristic properties
type Properties uint8

const (
	PropBroadcast Properties = 1 << iota
	PropRead
	PropWriteWithoutResponse
	PropWrite
	PropNotify
	PropIndicate
	PropSignedWrite
	PropExtended
)

var propertyNames = []struct {
	prop Properties
	name string
}{
	{PropBroadcast, "broadcast"},
	{PropRead, "read"},
	{PropWriteWithoutResponse, "write-without-response"},
	{PropWrite, "write"},
	{PropNotify, "notify"},
	{PropIndicate, "indicate"},
	{PropSignedWrite, "signed-write"},
	{PropExtended, "extended"},
}

// Has reports whether every property in q is present
func (p Properties) Has(q Properties) bool {
	return q != 0 && p&q == q
}

// Writable reports whether the characteristic accepts a write request with response
func (p Properties) Writable() bool {
	return p.Has(PropWrite)
}

func (p Properties) String() string {
	if p == 0 {
		return "none"
	}
	parts := make([]string, 0, len(propertyNames))
	for _, pn := range propertyNames {
		if p&pn.prop != 0 {
			parts = append(parts, pn.name)
		}
	}
	return strings.Join(parts, ",")
}

// MarshalText renders the set as its comma separated names
func (p Properties) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// ParseProperties parses a comma separated list such as "read,write,notify".
// "wnr" and "write-nr" are accepted as aliases of "write-without-response".
func ParseProperties(s string) (Properties, error) {
	var props Properties
	for _, raw := range strings.Split(s, ",") {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" {
			continue
		}
		if name == "wnr" || name == "write-nr" {
			name = "write-without-response"
		}
		found := false
		for _, pn := range propertyNames {
			if pn.name == name {
				props |= pn.prop
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown characteristic property %q", raw)
		}
	}
	return props, nil
}

// ----------------------------
// GATT snapshot
// ----------------------------

// Characteristic is an immutable snapshot of a discovered characteristic
type Characteristic struct {
	UUID       string     `json:"uuid"`
	Properties Properties `json:"properties"`
}

// Service is an immutable snapshot of a discovered service, characteristics in discovery order
type Service struct {
	UUID            string           `json:"uuid"`
	Characteristics []Characteristic `json:"characteristics"`
}

// CloneServices deep-copies a service tree
func CloneServices(tree []Service) []Service {
	if tree == nil {
		return nil
	}
	out := make([]Service, len(tree))
	for i, svc := range tree {
		out[i] = Service{
			UUID:            svc.UUID,
			Characteristics: append([]Characteristic(nil), svc.Characteristics...),
		}
	}
	return out
}

// CountCharacteristics returns the number of characteristics across the tree
func CountCharacteristics(tree []Service) int {
	n := 0
	for _, svc := range tree {
		n += len(svc.Characteristics)
	}
	return n
}

// CharacteristicRef addresses one characteristic inside a session's service tree
type CharacteristicRef struct {
	Service     int    `json:"service"`
	Index       int    `json:"index"`
	ServiceUUID string `json:"service_uuid"`
	UUID        string `json:"uuid"`
}

func (r CharacteristicRef) String() string {
	return fmt.Sprintf("%s/%s", r.ServiceUUID, r.UUID)
}

// ----------------------------
// Session
// ----------------------------

// SessionState is the lifecycle state of a Session
type SessionState int

const (
	StateIdle SessionState = iota
	StateConnecting
	StateServicesDiscovered
	StateActive
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateConnecting:
		return "CONNECTING"
	case StateServicesDiscovered:
		return "SERVICES_DISCOVERED"
	case StateActive:
		return "ACTIVE"
	case StateClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("SessionState(%d)", int(s))
	}
}

// MarshalText renders the state by name
func (s SessionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Session is a point-in-time copy of the live session
type Session struct {
	PeripheralID string             `json:"peripheral_id"`
	State        SessionState       `json:"state"`
	LinkUp       bool               `json:"link_up"`
	ServiceTree  []Service          `json:"services,omitempty"`
	WriteTarget  *CharacteristicRef `json:"write_target,omitempty"`
	Generation   uint64             `json:"generation"`
}
