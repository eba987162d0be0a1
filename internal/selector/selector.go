// Package selector locates the write target inside a discovered service tree
// and encodes outbound payloads. It performs no I/O.
package selector

import "github.com/srg/fanlink/internal/device"

// Match decides whether a characteristic is acceptable as a write target
type Match func(device.Characteristic) bool

// Writable matches characteristics that accept a write request with response
func Writable(c device.Characteristic) bool {
	return c.Properties.Writable()
}

// AnyWrite matches characteristics accepting either write flavour
func AnyWrite(c device.Characteristic) bool {
	return c.Properties.Has(device.PropWrite) || c.Properties.Has(device.PropWriteWithoutResponse)
}

// Rule picks the write target of a session.
//
// With CharacteristicUUID set, that characteristic (inside ServiceUUID when
// set too) wins if the tree has it and it accepts a write of either flavour.
// With only ServiceUUID set, the first characteristic of that service accepted
// by Match wins. Anything not found falls back to First with Match.
// UUIDs are compared in device.NormalizeUUID form.
type Rule struct {
	ServiceUUID        string
	CharacteristicUUID string
	// Match is the general criterion; nil means Writable.
	Match Match
}

// Pinned reports whether the rule names a service or characteristic
func (r Rule) Pinned() bool {
	return r.ServiceUUID != "" || r.CharacteristicUUID != ""
}

// Select returns the write target for tree
func (r Rule) Select(tree []device.Service) (device.CharacteristicRef, bool) {
	match := r.Match
	if match == nil {
		match = Writable
	}

	if r.Pinned() {
		svcUUID := device.NormalizeUUID(r.ServiceUUID)
		charUUID := device.NormalizeUUID(r.CharacteristicUUID)
		ref, ok := find(tree, func(svc device.Service, c device.Characteristic) bool {
			if svcUUID != "" && svc.UUID != svcUUID {
				return false
			}
			if charUUID != "" {
				return c.UUID == charUUID && AnyWrite(c)
			}
			return match(c)
		})
		if ok {
			return ref, true
		}
	}
	return First(tree, match)
}

// First walks services in discovery order, and characteristics within each
// service in discovery order, returning the first one accepted by match.
func First(tree []device.Service, match Match) (device.CharacteristicRef, bool) {
	if match == nil {
		match = Writable
	}
	return find(tree, func(_ device.Service, c device.Characteristic) bool { return match(c) })
}

func find(tree []device.Service, accept func(device.Service, device.Characteristic) bool) (device.CharacteristicRef, bool) {
	for si, svc := range tree {
		for ci, c := range svc.Characteristics {
			if accept(svc, c) {
				return device.CharacteristicRef{
					Service:     si,
					Index:       ci,
					ServiceUUID: svc.UUID,
					UUID:        c.UUID,
				}, true
			}
		}
	}
	return device.CharacteristicRef{}, false
}

// Resolve returns the characteristic ref points at, if it is inside tree
func Resolve(tree []device.Service, ref device.CharacteristicRef) (device.Characteristic, bool) {
	if ref.Service < 0 || ref.Service >= len(tree) {
		return device.Characteristic{}, false
	}
	chars := tree[ref.Service].Characteristics
	if ref.Index < 0 || ref.Index >= len(chars) {
		return device.Characteristic{}, false
	}
	return chars[ref.Index], true
}

// Encode returns the UTF-8 bytes of payload
func Encode(payload string) []byte {
	return []byte(payload)
}
