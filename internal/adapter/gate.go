// Package adapter guards the process-wide radio. Every other component reaches
// the platform through a Gate, which checks usability and keeps the discovery
// commands idempotent.
package adapter

import (
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/fanlink/internal/device"
)

// Gate wraps a device.Radio
type Gate struct {
	radio  device.Radio
	logger *logrus.Logger

	mu          sync.Mutex
	discovering bool
	onFound     func(device.DiscoveredPeripheral)
}

// NewGate creates a Gate over radio. radio may be nil, in which case the gate is never usable.
func NewGate(radio device.Radio, logger *logrus.Logger) *Gate {
	if logger == nil {
		logger = logrus.New()
	}
	return &Gate{radio: radio, logger: logger}
}

// IsUsable reports whether the radio exists and is powered on
func (g *Gate) IsUsable() bool {
	return g.radio != nil && g.radio.Powered()
}

// IsDiscovering reports whether a discovery command is outstanding
func (g *Gate) IsDiscovering() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.discovering
}

// BeginDiscovery starts scanning and routes discovery hits to onFound.
// A second call while scanning only swaps the handler.
func (g *Gate) BeginDiscovery(onFound func(device.DiscoveredPeripheral)) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.onFound = onFound
	if g.discovering || g.radio == nil {
		return
	}
	g.discovering = true
	g.logger.Debug("Beginning discovery")
	g.radio.StartDiscovery(g.dispatch)
}

// CancelDiscovery stops scanning; it is a no-op when no discovery is running
func (g *Gate) CancelDiscovery() {
	g.mu.Lock()
	if !g.discovering {
		g.mu.Unlock()
		return
	}
	g.discovering = false
	g.onFound = nil
	g.mu.Unlock()

	g.logger.Debug("Cancelling discovery")
	g.radio.StopDiscovery()
}

func (g *Gate) dispatch(p device.DiscoveredPeripheral) {
	g.mu.Lock()
	fn := g.onFound
	active := g.discovering
	g.mu.Unlock()

	if active && fn != nil {
		fn(p)
	}
}

// Peripheral resolves id to a platform handle
func (g *Gate) Peripheral(id string) (device.RemotePeripheral, error) {
	if strings.TrimSpace(id) == "" {
		return nil, device.NewError(device.PeripheralNotFound, "empty device id")
	}
	if g.radio == nil {
		return nil, device.ErrRadioUnavailable
	}

	p, err := g.radio.RemotePeripheral(id)
	if err != nil {
		if device.CodeOf(err) != "" {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", device.NewError(device.PeripheralNotFound, "device %q not found", id), err)
	}
	if p == nil {
		return nil, device.NewError(device.PeripheralNotFound, "device %q not found", id)
	}
	return p, nil
}
