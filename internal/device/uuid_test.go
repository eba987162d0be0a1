package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeUUID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "16-bit", input: "FFF1", expected: "fff1"},
		{name: "0x prefix", input: "0x2A29", expected: "2a29"},
		{name: "surrounding spaces", input: "  180a ", expected: "180a"},
		{name: "SIG base collapses", input: "0000FFF0-0000-1000-8000-00805F9B34FB", expected: "fff0"},
		{name: "SIG base without dashes", input: "0000180a00001000800000805f9b34fb", expected: "180a"},
		{name: "vendor 128-bit keeps full form", input: "6E400001-B5A3-F393-E0A9-E50E24DCCA9E", expected: "6e400001b5a3f393e0a9e50e24dcca9e"},
		{name: "32-bit", input: "0000fff0", expected: "0000fff0"},
		{name: "empty", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeUUID(tt.input))
		})
	}
}
