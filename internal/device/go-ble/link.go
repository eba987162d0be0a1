package goble

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/fanlink/internal/device"
	"github.com/srg/fanlink/internal/groutine"
	"github.com/srg/fanlink/internal/selector"
)

const writeFlushTimeout = 2 * time.Second

type writeRequest struct {
	char  *ble.Characteristic
	uuid  string
	value []byte
	noRsp bool
}

// link is one connection attempt to a peripheral. It implements device.Gatt:
// dial, discovery and writes run on their own goroutines and report back
// through the callback only.
type link struct {
	radio  *Radio
	addr   string
	cb     device.GattCallback
	logger *logrus.Entry

	ctx     context.Context
	cancel  context.CancelFunc
	writes  chan writeRequest
	pending sync.WaitGroup // queued writes not yet handed to the platform

	mu            sync.Mutex
	client        gattClient
	chars         [][]*ble.Characteristic
	tree          []device.Service
	disconnecting bool
	closed        bool
}

func newLink(r *Radio, addr string, cb device.GattCallback) *link {
	ctx, cancel := context.WithCancel(context.Background())
	return &link{
		radio:  r,
		addr:   addr,
		cb:     cb,
		logger: r.logger.WithField("address", addr),
		ctx:    ctx,
		cancel: cancel,
		writes: make(chan writeRequest, r.opts.WriteQueue),
	}
}

// dial connects in the background and reports connected or disconnected
func (l *link) dial() {
	groutine.Go(l.ctx, "ble-dial", func(ctx context.Context) {
		l.logger.Debug("Dialing BLE device...")
		client, err := l.radio.central.Dial(ctx, l.addr)
		if err != nil {
			if ctx.Err() != nil {
				l.logger.Debug("Dial abandoned")
				return
			}
			err = NormalizeError(err)
			l.logger.WithError(err).Info("Failed to dial BLE device")
			l.cb(device.GattEvent{Kind: device.GattDisconnected, Err: err})
			return
		}

		l.mu.Lock()
		if l.closed || l.disconnecting {
			l.mu.Unlock()
			l.logger.Debug("Link released while dialing, cancelling connection")
			l.cancelConnection(client)
			return
		}
		l.client = client
		l.mu.Unlock()

		groutine.Go(ctx, "ble-writer", l.writeLoop)
		if ch := client.Disconnected(); ch != nil {
			groutine.Go(ctx, "ble-connection-monitor", func(ctx context.Context) {
				select {
				case <-ch:
					l.lost()
				case <-ctx.Done():
				}
			})
		} else {
			l.logger.Debug("Client does not report disconnection")
		}

		l.logger.Info("BLE device connected")
		l.cb(device.GattEvent{Kind: device.GattConnected})
	})
}

// lost reports a link drop that was not requested by us
func (l *link) lost() {
	l.mu.Lock()
	requested := l.disconnecting || l.closed
	l.client = nil
	l.mu.Unlock()
	if requested {
		return
	}
	l.logger.Warn("Platform reported disconnection")
	l.cb(device.GattEvent{Kind: device.GattDisconnected, Err: device.NewError(device.NotConnected, "link to %s lost", l.addr)})
}

// DiscoverServices implements device.Gatt
func (l *link) DiscoverServices() {
	l.mu.Lock()
	client := l.client
	l.mu.Unlock()
	if client == nil {
		l.cb(device.GattEvent{Kind: device.GattServiceDiscoveryFailed, Err: device.NewError(device.NotConnected, "link to %s is down", l.addr)})
		return
	}

	groutine.Go(l.ctx, "ble-discover", func(ctx context.Context) {
		l.logger.Debug("Discovering services and characteristics...")
		profile, err := client.DiscoverProfile(true)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			err = NormalizeError(err)
			l.logger.WithError(err).Warn("Failed to discover profile")
			l.cb(device.GattEvent{Kind: device.GattServiceDiscoveryFailed, Err: err})
			return
		}

		tree, chars := ConvertProfile(profile)
		l.mu.Lock()
		l.tree, l.chars = tree, chars
		l.mu.Unlock()

		l.logger.WithFields(logrus.Fields{
			"services":        len(tree),
			"characteristics": device.CountCharacteristics(tree),
		}).Debug("Profile discovered")
		l.cb(device.GattEvent{Kind: device.GattServicesDiscovered, Services: device.CloneServices(tree)})
	})
}

// WriteCharacteristic implements device.Gatt. The write is queued and performed
// by the link's writer goroutine.
func (l *link) WriteCharacteristic(ref device.CharacteristicRef, value []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.client == nil || l.closed || l.disconnecting {
		return device.NewError(device.NotConnected, "link to %s is down", l.addr)
	}
	// l.chars mirrors l.tree index for index
	meta, ok := selector.Resolve(l.tree, ref)
	if !ok {
		return fmt.Errorf("characteristic %s is not part of the discovered profile", ref)
	}
	if meta.UUID != ref.UUID {
		return fmt.Errorf("characteristic %s does not match discovered %s", ref, meta.UUID)
	}

	req := writeRequest{
		char:  l.chars[ref.Service][ref.Index],
		uuid:  ref.UUID,
		value: append([]byte(nil), value...),
		noRsp: l.radio.opts.WriteWithoutResponse || !meta.Properties.Has(device.PropWrite),
	}
	l.pending.Add(1)
	select {
	case l.writes <- req:
		return nil
	default:
		l.pending.Done()
		return fmt.Errorf("write queue for %s is full", l.addr)
	}
}

func (l *link) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-l.writes:
			l.write(req)
			l.pending.Done()
		}
	}
}

func (l *link) write(req writeRequest) {
	l.mu.Lock()
	client := l.client
	l.mu.Unlock()
	if client == nil {
		l.logger.WithField("char_uuid", req.uuid).Warn("Dropping write, link is down")
		return
	}
	if err := client.WriteCharacteristic(req.char, req.value, req.noRsp); err != nil {
		l.logger.WithFields(logrus.Fields{
			"char_uuid": req.uuid,
			"no_rsp":    req.noRsp,
		}).WithError(NormalizeError(err)).Warn("Characteristic write failed")
		return
	}
	l.logger.WithFields(logrus.Fields{
		"char_uuid": req.uuid,
		"bytes":     len(req.value),
	}).Debug("Characteristic written")
}

// flush waits, bounded by writeFlushTimeout, for queued writes to reach the platform
func (l *link) flush() {
	done := make(chan struct{})
	groutine.Go(context.Background(), "ble-flush", func(context.Context) {
		l.pending.Wait()
		close(done)
	})
	select {
	case <-done:
	case <-time.After(writeFlushTimeout):
		l.logger.Warn("Queued writes not flushed before disconnect")
	}
}

// Disconnect implements device.Gatt. Queued writes are flushed first; a dial
// in progress is aborted.
func (l *link) Disconnect() {
	l.mu.Lock()
	if l.disconnecting {
		l.mu.Unlock()
		return
	}
	l.disconnecting = true
	l.mu.Unlock()

	l.flush()

	l.mu.Lock()
	client := l.client
	l.client = nil
	l.mu.Unlock()

	l.cancel()
	if client != nil {
		l.cancelConnection(client)
	}
}

// Close implements device.Gatt
func (l *link) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	client := l.client
	l.client = nil
	l.chars, l.tree = nil, nil
	l.mu.Unlock()

	l.cancel()
	if client != nil {
		l.cancelConnection(client)
	}
}

func (l *link) cancelConnection(client gattClient) {
	if err := client.CancelConnection(); err != nil {
		l.logger.WithError(NormalizeError(err)).Warn("BLE device disconnected with errors")
		return
	}
	l.logger.Info("BLE device disconnected")
}
