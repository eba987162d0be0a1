// Package host exposes the four session operations to an application:
// scan, connect, send and disconnect. Operations are serialized, so only one
// of them drives the radio at a time.
package host

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/fanlink/internal/adapter"
	"github.com/srg/fanlink/internal/device"
	"github.com/srg/fanlink/internal/discovery"
	"github.com/srg/fanlink/internal/selector"
	"github.com/srg/fanlink/internal/session"
)

// DefaultConnectTimeout bounds ConnectToDevice when no timeout is configured
const DefaultConnectTimeout = 30 * time.Second

// DeviceResult is one scan result as handed to the application
type DeviceResult struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Options configures a Host
type Options struct {
	ScanDuration time.Duration
	// ConnectTimeout is the deadline applied to ConnectToDevice; negative disables it.
	ConnectTimeout time.Duration
	// AwaitServices makes ConnectToDevice wait for the service tree, not just the link.
	AwaitServices bool
	NameFilter    string
	// WriteWithoutResponse also accepts write-without-response characteristics as write target.
	WriteWithoutResponse bool
	// ServiceUUID and CharacteristicUUID pin the write target when the peripheral exposes it.
	ServiceUUID        string
	CharacteristicUUID string
}

// Status is the host view of the session and the radio
type Status struct {
	device.Session
	RadioUsable bool `json:"radio_usable"`
	Discovering bool `json:"discovering"`
}

// DefaultOptions returns the reference configuration
func DefaultOptions() *Options {
	return &Options{
		ScanDuration:   discovery.DefaultDuration,
		ConnectTimeout: DefaultConnectTimeout,
		AwaitServices:  true,
	}
}

// Host wires the gate, discovery window and session machine around one radio
type Host struct {
	gate    *adapter.Gate
	window  *discovery.Window
	machine *session.Machine
	opts    Options
	logger  *logrus.Logger

	// sem serializes operations; a channel so waiting honours the caller's context
	sem chan struct{}
}

// New creates a Host over radio
func New(radio device.Radio, opts *Options, logger *logrus.Logger) *Host {
	if opts == nil {
		opts = DefaultOptions()
	}
	if logger == nil {
		logger = logrus.New()
	}

	match := selector.Writable
	if opts.WriteWithoutResponse {
		match = selector.AnyWrite
	}

	rule := selector.Rule{
		ServiceUUID:        opts.ServiceUUID,
		CharacteristicUUID: opts.CharacteristicUUID,
		Match:              match,
	}
	if rule.Pinned() {
		logger.WithFields(logrus.Fields{
			"service_uuid":        device.NormalizeUUID(rule.ServiceUUID),
			"characteristic_uuid": device.NormalizeUUID(rule.CharacteristicUUID),
		}).Debug("Write target pinned")
	}

	gate := adapter.NewGate(radio, logger)
	return &Host{
		gate:    gate,
		window:  discovery.NewWindow(gate, &discovery.Options{Duration: opts.ScanDuration, NameFilter: opts.NameFilter}, logger),
		machine: session.NewMachine(gate, &session.Options{Rule: rule}, logger),
		opts:    *opts,
		logger:  logger,
		sem:     make(chan struct{}, 1),
	}
}

func (h *Host) acquire(ctx context.Context) error {
	select {
	case h.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for a previous operation: %w", ctx.Err())
	}
}

func (h *Host) release() {
	<-h.sem
}

// ScanForDevices runs one discovery window
func (h *Host) ScanForDevices(ctx context.Context) ([]DeviceResult, error) {
	return h.Scan(ctx, nil)
}

// Scan is ScanForDevices with a progress callback for interactive callers
func (h *Host) Scan(ctx context.Context, progress discovery.ProgressCallback) ([]DeviceResult, error) {
	if err := h.acquire(ctx); err != nil {
		return nil, err
	}
	defer h.release()

	found, err := h.window.Scan(ctx, progress)
	if err != nil {
		return nil, err
	}
	results := make([]DeviceResult, 0, len(found))
	for _, p := range found {
		results = append(results, DeviceResult{ID: p.ID, Name: p.DisplayName()})
	}
	return results, nil
}

// ConnectToDevice connects to deviceID within the configured deadline. With
// AwaitServices the call also waits for service discovery; a session that fails
// to get there is disconnected.
func (h *Host) ConnectToDevice(ctx context.Context, deviceID string) (bool, error) {
	if err := h.acquire(ctx); err != nil {
		return false, err
	}
	defer h.release()

	if h.opts.ConnectTimeout >= 0 {
		timeout := h.opts.ConnectTimeout
		if timeout == 0 {
			timeout = DefaultConnectTimeout
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := h.machine.Connect(ctx, deviceID); err != nil {
		return false, err
	}
	if !h.opts.AwaitServices {
		return true, nil
	}

	if err := h.machine.AwaitServices(ctx); err != nil {
		h.logger.WithField("address", deviceID).WithError(err).Info("Service discovery did not complete, disconnecting")
		if derr := h.machine.Disconnect(); derr != nil {
			h.logger.WithError(derr).Debug("Disconnect after failed service discovery")
		}
		return false, err
	}
	return true, nil
}

// SendData writes data to the active session. deviceID is accepted for symmetry
// with the other operations; the active session decides the target.
func (h *Host) SendData(ctx context.Context, deviceID, data string) (bool, error) {
	if err := h.acquire(ctx); err != nil {
		return false, err
	}
	defer h.release()

	if snap := h.machine.Snapshot(); deviceID != "" && snap.PeripheralID != "" && snap.PeripheralID != deviceID {
		h.logger.WithFields(logrus.Fields{
			"requested": deviceID,
			"active":    snap.PeripheralID,
		}).Debug("Sending to the active session, not the requested device")
	}

	if err := h.machine.Write(data); err != nil {
		return false, err
	}
	return true, nil
}

// Disconnect closes the active session; deviceID is accepted for symmetry
func (h *Host) Disconnect(ctx context.Context, _ string) (bool, error) {
	if err := h.acquire(ctx); err != nil {
		return false, err
	}
	defer h.release()

	if err := h.machine.Disconnect(); err != nil {
		return false, err
	}
	return true, nil
}

// Status returns the current session snapshot together with the radio state
func (h *Host) Status() Status {
	return Status{
		Session:     h.machine.Snapshot(),
		RadioUsable: h.gate.IsUsable(),
		Discovering: h.gate.IsDiscovering(),
	}
}

// History drains the recent session transitions
func (h *Host) History() []session.Transition {
	return h.machine.DrainTransitions()
}
