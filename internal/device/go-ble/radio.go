package goble

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/fanlink/internal/device"
	"github.com/srg/fanlink/internal/groutine"
)

const (
	// DefaultWriteQueue bounds the writes queued on one link
	DefaultWriteQueue = 32

	scanStopTimeout = 2 * time.Second
)

var (
	macAddress  = regexp.MustCompile(`^[0-9a-fA-F]{2}(:[0-9a-fA-F]{2}){5}$`)
	darwinUUIDs = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
)

// Options configures a Radio
type Options struct {
	// AdapterID selects the HCI adapter on Linux; empty uses the default one.
	AdapterID string
	// WriteWithoutResponse forces write commands even on characteristics that support write requests.
	WriteWithoutResponse bool
	// WriteQueue bounds pending writes per link; 0 means DefaultWriteQueue.
	WriteQueue int
}

// Radio implements device.Radio on top of go-ble
type Radio struct {
	central central
	opts    Options
	logger  *logrus.Logger

	powered atomic.Bool
	// seen maps every address advertised in this process to its last known local name
	seen *hashmap.Map[string, string]

	mu         sync.Mutex
	onFound    func(device.DiscoveredPeripheral)
	scanCancel context.CancelFunc
	scanDone   chan struct{}
}

// NewRadio opens the platform Bluetooth device. A platform that cannot provide
// one yields RadioUnavailable.
func NewRadio(opts *Options, logger *logrus.Logger) (*Radio, error) {
	if opts == nil {
		opts = &Options{}
	}
	c, err := newCentral(opts.AdapterID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", device.NewError(device.RadioUnavailable, "failed to open Bluetooth adapter"), err)
	}
	return newRadio(c, opts, logger), nil
}

func newRadio(c central, opts *Options, logger *logrus.Logger) *Radio {
	if logger == nil {
		logger = logrus.New()
	}
	o := *opts
	if o.WriteQueue <= 0 {
		o.WriteQueue = DefaultWriteQueue
	}
	r := &Radio{
		central: c,
		opts:    o,
		logger:  logger,
		seen:    hashmap.New[string, string](),
	}
	r.powered.Store(c != nil)
	return r
}

// Powered implements device.Radio. The adapter is considered powered until the
// platform reports otherwise.
func (r *Radio) Powered() bool {
	return r.powered.Load()
}

// StartDiscovery implements device.Radio
func (r *Radio) StartDiscovery(onFound func(device.DiscoveredPeripheral)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.onFound = onFound
	if r.scanCancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	r.scanCancel = cancel
	r.scanDone = done

	groutine.Go(ctx, "ble-scan", func(ctx context.Context) {
		defer close(done)
		err := r.central.Scan(ctx, true, r.advertised)
		if err == nil || errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return
		}
		err = NormalizeError(err)
		if device.IsCode(err, device.RadioUnavailable) {
			r.powered.Store(false)
		}
		r.logger.WithError(err).Warn("BLE scan stopped unexpectedly")
	})
}

// StopDiscovery implements device.Radio
func (r *Radio) StopDiscovery() {
	r.mu.Lock()
	cancel, done := r.scanCancel, r.scanDone
	r.scanCancel, r.scanDone, r.onFound = nil, nil, nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	select {
	case <-done:
	case <-time.After(scanStopTimeout):
		// Some stacks only return from Scan on the next advertisement
		r.logger.Debug("BLE scan did not stop in time, continuing")
	}
}

// advertised records an advertisement and forwards it to the discovery handler
func (r *Radio) advertised(addr, name string) {
	if addr == "" {
		return
	}
	name = strings.TrimSpace(name)
	if name != "" {
		r.seen.Set(addr, name)
	} else {
		r.seen.GetOrInsert(addr, "")
	}

	r.mu.Lock()
	fn := r.onFound
	r.mu.Unlock()
	if fn != nil {
		fn(device.DiscoveredPeripheral{ID: addr, Name: name})
	}
}

// RemotePeripheral implements device.Radio. Addresses advertised during this
// process resolve directly; any other id must at least look like a platform
// address (MAC on Linux, CoreBluetooth UUID on macOS).
func (r *Radio) RemotePeripheral(id string) (device.RemotePeripheral, error) {
	id = strings.TrimSpace(id)
	name, seen := r.seen.Get(id)
	if !seen {
		if !macAddress.MatchString(id) && !darwinUUIDs.MatchString(id) {
			return nil, device.NewError(device.PeripheralNotFound, "device %q was not discovered and is not a valid address", id)
		}
	}
	return &peripheral{radio: r, addr: id, name: name}, nil
}

// Close stops discovery and releases the platform device
func (r *Radio) Close() error {
	r.StopDiscovery()
	r.powered.Store(false)
	if r.central == nil {
		return nil
	}
	return NormalizeError(r.central.Stop())
}

// peripheral is a resolved address
type peripheral struct {
	radio *Radio
	addr  string
	name  string
}

func (p *peripheral) Address() string {
	return p.addr
}

// ConnectGatt implements device.RemotePeripheral; dialing happens on its own goroutine
func (p *peripheral) ConnectGatt(cb device.GattCallback) device.Gatt {
	l := newLink(p.radio, p.addr, cb)
	if p.name != "" {
		l.logger = l.logger.WithField("name", p.name)
	}
	l.dial()
	return l
}
