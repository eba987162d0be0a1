package testutils

import (
	"fmt"
	"sync"

	"github.com/srg/fanlink/internal/device"
)

// ConnectBehavior scripts how a fake peripheral answers a connect request
type ConnectBehavior int

const (
	// ConnectSucceeds reports connected, then answers service discovery with the configured tree
	ConnectSucceeds ConnectBehavior = iota
	// ConnectRefused reports disconnected without ever connecting
	ConnectRefused
	// ConnectHangs never reports anything
	ConnectHangs
	// ServiceDiscoveryFails connects, then fails service discovery
	ServiceDiscoveryFails
	// ServiceDiscoveryHangs connects but never completes service discovery
	ServiceDiscoveryHangs
)

// RecordedWrite is one write issued through a FakeGatt
type RecordedWrite struct {
	PeripheralID string
	Ref          device.CharacteristicRef
	Value        []byte
}

// FakePeripheral is a scripted peripheral known to a FakeRadio
type FakePeripheral struct {
	ID       string
	Name     string
	Services []device.Service
	Behavior ConnectBehavior

	radio *FakeRadio
}

// Address implements device.RemotePeripheral
func (p *FakePeripheral) Address() string {
	return p.ID
}

// ConnectGatt implements device.RemotePeripheral. Events are delivered on a
// separate goroutine, like a real stack would.
func (p *FakePeripheral) ConnectGatt(cb device.GattCallback) device.Gatt {
	g := &FakeGatt{peripheral: p, cb: cb, events: make(chan device.GattEvent, 8)}
	go g.pump()

	p.radio.mu.Lock()
	p.radio.connects = append(p.radio.connects, p.ID)
	p.radio.gatts = append(p.radio.gatts, g)
	p.radio.mu.Unlock()

	switch p.Behavior {
	case ConnectRefused:
		g.emit(device.GattEvent{Kind: device.GattDisconnected, Err: fmt.Errorf("connection refused by %s", p.ID)})
	case ConnectHangs:
	default:
		g.mu.Lock()
		g.linkUp = true
		g.mu.Unlock()
		g.emit(device.GattEvent{Kind: device.GattConnected})
	}
	return g
}

// FakeGatt is the connection handle returned by FakePeripheral.ConnectGatt
type FakeGatt struct {
	peripheral *FakePeripheral
	cb         device.GattCallback
	events     chan device.GattEvent

	mu           sync.Mutex
	linkUp       bool
	disconnected bool
	closed       bool
	discoveries  int
}

func (g *FakeGatt) pump() {
	for ev := range g.events {
		g.cb(ev)
	}
}

func (g *FakeGatt) emit(ev device.GattEvent) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	g.events <- ev
}

// DiscoverServices implements device.Gatt
func (g *FakeGatt) DiscoverServices() {
	g.mu.Lock()
	g.discoveries++
	g.mu.Unlock()

	switch g.peripheral.Behavior {
	case ServiceDiscoveryFails:
		g.emit(device.GattEvent{Kind: device.GattServiceDiscoveryFailed, Err: fmt.Errorf("attribute not found")})
	case ServiceDiscoveryHangs:
	default:
		g.emit(device.GattEvent{Kind: device.GattServicesDiscovered, Services: device.CloneServices(g.peripheral.Services)})
	}
}

// WriteCharacteristic implements device.Gatt
func (g *FakeGatt) WriteCharacteristic(ref device.CharacteristicRef, value []byte) error {
	g.mu.Lock()
	up := g.linkUp && !g.disconnected && !g.closed
	g.mu.Unlock()
	if !up {
		return device.NewError(device.NotConnected, "link to %s is down", g.peripheral.ID)
	}

	cp := append([]byte(nil), value...)
	r := g.peripheral.radio
	r.mu.Lock()
	r.writes = append(r.writes, RecordedWrite{PeripheralID: g.peripheral.ID, Ref: ref, Value: cp})
	r.mu.Unlock()
	return nil
}

// Disconnect implements device.Gatt
func (g *FakeGatt) Disconnect() {
	g.mu.Lock()
	g.disconnected = true
	g.linkUp = false
	g.mu.Unlock()
}

// Close implements device.Gatt
func (g *FakeGatt) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	g.closed = true
	close(g.events)
}

// DropLink simulates the peripheral going away after the link was established
func (g *FakeGatt) DropLink() {
	g.mu.Lock()
	g.linkUp = false
	g.mu.Unlock()
	g.emit(device.GattEvent{Kind: device.GattDisconnected, Err: fmt.Errorf("link supervision timeout")})
}

// Released reports whether Disconnect and Close were both called
func (g *FakeGatt) Released() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.disconnected && g.closed
}

// Discoveries returns how many service discoveries were requested
func (g *FakeGatt) Discoveries() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.discoveries
}

// FakeRadio is an in-memory device.Radio
type FakeRadio struct {
	mu          sync.Mutex
	powered     bool
	peripherals map[string]*FakePeripheral
	adverts     []device.DiscoveredPeripheral
	onFound     func(device.DiscoveredPeripheral)
	scanning    bool
	startCalls  int
	stopCalls   int
	resolves    int
	connects    []string
	gatts       []*FakeGatt
	writes      []RecordedWrite
}

// NewFakeRadio returns a powered radio without peripherals
func NewFakeRadio() *FakeRadio {
	return &FakeRadio{powered: true, peripherals: make(map[string]*FakePeripheral)}
}

// SetPowered switches the fake radio on or off
func (r *FakeRadio) SetPowered(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.powered = on
}

// Powered implements device.Radio
func (r *FakeRadio) Powered() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.powered
}

// StartDiscovery implements device.Radio; configured advertisements are replayed asynchronously
func (r *FakeRadio) StartDiscovery(onFound func(device.DiscoveredPeripheral)) {
	r.mu.Lock()
	r.startCalls++
	r.onFound = onFound
	r.scanning = true
	adverts := append([]device.DiscoveredPeripheral(nil), r.adverts...)
	r.mu.Unlock()

	go func() {
		for _, adv := range adverts {
			r.Advertise(adv.ID, adv.Name)
		}
	}()
}

// StopDiscovery implements device.Radio
func (r *FakeRadio) StopDiscovery() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopCalls++
	r.scanning = false
	r.onFound = nil
}

// Advertise reports a discovery hit if discovery is running
func (r *FakeRadio) Advertise(id, name string) {
	r.mu.Lock()
	fn := r.onFound
	scanning := r.scanning
	r.mu.Unlock()
	if scanning && fn != nil {
		fn(device.DiscoveredPeripheral{ID: id, Name: name})
	}
}

// RemotePeripheral implements device.Radio
func (r *FakeRadio) RemotePeripheral(id string) (device.RemotePeripheral, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolves++
	p, ok := r.peripherals[id]
	if !ok {
		return nil, device.NewError(device.PeripheralNotFound, "device %q not found", id)
	}
	return p, nil
}

// AddPeripheral registers p so that RemotePeripheral can resolve it
func (r *FakeRadio) AddPeripheral(p *FakePeripheral) *FakePeripheral {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.radio = r
	r.peripherals[p.ID] = p
	return p
}

// Peripheral returns a registered peripheral
func (r *FakeRadio) Peripheral(id string) *FakePeripheral {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.peripherals[id]
}

// StartCalls returns how many times discovery was started
func (r *FakeRadio) StartCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.startCalls
}

// StopCalls returns how many times discovery was stopped
func (r *FakeRadio) StopCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopCalls
}

// Scanning reports whether discovery is running
func (r *FakeRadio) Scanning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scanning
}

// Resolves returns how many RemotePeripheral lookups were made
func (r *FakeRadio) Resolves() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolves
}

// Connects returns the ids of every connect request in order
func (r *FakeRadio) Connects() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.connects...)
}

// Gatts returns every connection handle handed out, oldest first
func (r *FakeRadio) Gatts() []*FakeGatt {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*FakeGatt(nil), r.gatts...)
}

// LastGatt returns the newest connection handle or nil
func (r *FakeRadio) LastGatt() *FakeGatt {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.gatts) == 0 {
		return nil
	}
	return r.gatts[len(r.gatts)-1]
}

// Writes returns every recorded write
func (r *FakeRadio) Writes() []RecordedWrite {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RecordedWrite(nil), r.writes...)
}

// ClearAdvertisements stops replaying configured advertisements on later discoveries
func (r *FakeRadio) ClearAdvertisements() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adverts = nil
}
