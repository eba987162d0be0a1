// Package fan encodes commands understood by the fan controller firmware.
//
// The firmware accepts JSON objects {"speed":N} (0-100) and {"power":bool},
// and the legacy ASCII commands "1" (on at its default speed) and "0" (off).
package fan

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Speed presets
const (
	Low    = 33
	Medium = 66
	High   = 100
)

// DeviceName is the name the fan controller advertises
const DeviceName = "windtrax"

// ServiceUUID and ControlUUID identify the fan controller's GATT control point
const (
	ServiceUUID = "12345678-1234-5678-1234-56789abcdef0"
	ControlUUID = "abcdef01-1234-5678-1234-56789abcdef0"
)

type kind int

const (
	kindPower kind = iota
	kindSpeed
	kindLegacy
)

// Command is one fan command
type Command struct {
	kind  kind
	on    bool
	speed int
}

// Power switches the fan on (at the firmware default speed) or off
func Power(on bool) Command {
	return Command{kind: kindPower, on: on}
}

// Speed sets the fan speed in percent
func Speed(percent int) (Command, error) {
	if percent < 0 || percent > 100 {
		return Command{}, fmt.Errorf("fan speed %d out of range 0-100", percent)
	}
	return Command{kind: kindSpeed, speed: percent}, nil
}

// Legacy is the ASCII "1"/"0" command of older firmware
func Legacy(on bool) Command {
	return Command{kind: kindLegacy, on: on}
}

// Payload returns the string written to the control characteristic
func (c Command) Payload() string {
	switch c.kind {
	case kindSpeed:
		return mustJSON(struct {
			Speed int `json:"speed"`
		}{c.speed})
	case kindLegacy:
		if c.on {
			return "1"
		}
		return "0"
	default:
		return mustJSON(struct {
			Power bool `json:"power"`
		}{c.on})
	}
}

func (c Command) String() string {
	switch c.kind {
	case kindSpeed:
		return fmt.Sprintf("speed %d%%", c.speed)
	case kindLegacy:
		if c.on {
			return "legacy on"
		}
		return "legacy off"
	default:
		if c.on {
			return "power on"
		}
		return "power off"
	}
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}

// Parse reads a command as typed by a user: on, off, low, medium, high,
// a percentage ("45", "45%") or the legacy "1"/"0".
func Parse(s string) (Command, error) {
	in := strings.ToLower(strings.TrimSpace(s))
	switch in {
	case "":
		return Command{}, fmt.Errorf("empty fan command")
	case "on":
		return Power(true), nil
	case "off":
		return Power(false), nil
	case "low":
		return Speed(Low)
	case "medium", "med":
		return Speed(Medium)
	case "high", "max":
		return Speed(High)
	case "1":
		return Legacy(true), nil
	case "0":
		return Legacy(false), nil
	}

	n, err := strconv.Atoi(strings.TrimSuffix(in, "%"))
	if err != nil {
		return Command{}, fmt.Errorf("unknown fan command %q: expected on, off, low, medium, high or 0-100", s)
	}
	return Speed(n)
}
