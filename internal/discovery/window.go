// Package discovery runs bounded discovery windows and returns the peripherals
// seen during the window, deduplicated by id in first-seen order.
package discovery

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/fanlink/internal/adapter"
	"github.com/srg/fanlink/internal/device"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// DefaultDuration is the length of a discovery window
const DefaultDuration = 10 * time.Second

// ProgressCallback is called when the scan phase changes
type ProgressCallback func(phase string)

// Options configures a Window
type Options struct {
	Duration time.Duration
	// NameFilter keeps only peripherals whose name matches, case-insensitively. Empty keeps all.
	NameFilter string
}

// DefaultOptions returns the reference window configuration
func DefaultOptions() *Options {
	return &Options{Duration: DefaultDuration}
}

// Window accumulates discovery hits for one scan at a time
type Window struct {
	gate   *adapter.Gate
	opts   Options
	logger *logrus.Logger

	mu    sync.Mutex
	found *orderedmap.OrderedMap[string, device.DiscoveredPeripheral]
}

// NewWindow creates a discovery window over gate
func NewWindow(gate *adapter.Gate, opts *Options, logger *logrus.Logger) *Window {
	if opts == nil {
		opts = DefaultOptions()
	}
	if logger == nil {
		logger = logrus.New()
	}
	o := *opts
	if o.Duration <= 0 {
		o.Duration = DefaultDuration
	}
	return &Window{
		gate:   gate,
		opts:   o,
		logger: logger,
		found:  orderedmap.New[string, device.DiscoveredPeripheral](),
	}
}

// Duration returns the configured window length
func (w *Window) Duration() time.Duration {
	return w.opts.Duration
}

// Scan runs one discovery window and returns everything seen, possibly nothing.
// The result is delivered once, after the full window. Cancelling ctx aborts the
// window and returns the context error.
func (w *Window) Scan(ctx context.Context, progress ProgressCallback) ([]device.DiscoveredPeripheral, error) {
	if progress == nil {
		progress = func(string) {}
	}
	if !w.gate.IsUsable() {
		return nil, device.NewError(device.RadioUnavailable, "Bluetooth is not enabled")
	}

	w.mu.Lock()
	w.found = orderedmap.New[string, device.DiscoveredPeripheral]()
	w.mu.Unlock()

	w.logger.WithField("duration", w.opts.Duration).Info("Starting BLE scan...")
	progress("Scanning")

	timer := time.NewTimer(w.opts.Duration)
	defer timer.Stop()

	w.gate.BeginDiscovery(w.record)

	select {
	case <-timer.C:
	case <-ctx.Done():
		w.gate.CancelDiscovery()
		w.logger.WithField("error", ctx.Err()).Info("BLE scan aborted")
		return nil, fmt.Errorf("scan aborted: %w", ctx.Err())
	}
	w.gate.CancelDiscovery()

	progress("Processing results")
	result := w.Snapshot()
	w.logger.WithField("device_count", len(result)).Info("BLE scan completed")
	return result, nil
}

// Snapshot returns the peripherals accumulated so far in first-seen order
func (w *Window) Snapshot() []device.DiscoveredPeripheral {
	w.mu.Lock()
	defer w.mu.Unlock()

	result := make([]device.DiscoveredPeripheral, 0, w.found.Len())
	for pair := w.found.Oldest(); pair != nil; pair = pair.Next() {
		result = append(result, pair.Value)
	}
	return result
}

// record is the discovery handler
func (w *Window) record(p device.DiscoveredPeripheral) {
	if p.ID == "" {
		return
	}
	name := strings.TrimSpace(p.Name)
	if w.opts.NameFilter != "" && !strings.EqualFold(name, w.opts.NameFilter) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	existing, seen := w.found.Get(p.ID)
	if !seen {
		if name == "" {
			name = device.UnknownDeviceName
		}
		w.found.Set(p.ID, device.DiscoveredPeripheral{ID: p.ID, Name: name})
		w.logger.WithFields(logrus.Fields{
			"address": p.ID,
			"device":  name,
		}).Info("Discovered new device")
		return
	}

	// a later report may carry the name the first one lacked
	if name != "" && existing.Name != name {
		existing.Name = name
		w.found.Set(p.ID, existing)
	}
}
