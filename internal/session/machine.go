// Package session drives the lifecycle of the single BLE session:
// connect, service discovery, write target selection, write and teardown.
//
// Platform callbacks never touch session state directly. Each session owns an
// ordered event queue drained by one dispatcher goroutine, and every transition
// happens under the Machine mutex, so Snapshot always reflects exactly one
// consistent state.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
	"github.com/sirupsen/logrus"
	"github.com/srg/fanlink/internal/adapter"
	"github.com/srg/fanlink/internal/device"
	"github.com/srg/fanlink/internal/groutine"
	"github.com/srg/fanlink/internal/selector"
)

const (
	// DefaultJournalSize is the number of transitions kept by the journal
	DefaultJournalSize uint32 = 64

	eventQueueSize = 16
)

// Options configures a Machine
type Options struct {
	// Rule selects the write target; the zero Rule takes the first selector.Writable.
	Rule selector.Rule
	// JournalSize bounds the transition journal; 0 means DefaultJournalSize.
	JournalSize uint32
}

// Transition is one journal entry
type Transition struct {
	Generation   uint64              `json:"generation"`
	PeripheralID string              `json:"peripheral_id"`
	From         device.SessionState `json:"from"`
	To           device.SessionState `json:"to"`
	Reason       string              `json:"reason,omitempty"`
	At           time.Time           `json:"at"`
}

// live is the mutable state of one session. Guarded by Machine.mu.
type live struct {
	gen          uint64
	peripheralID string
	state        device.SessionState
	linkUp       bool
	gatt         device.Gatt
	services     []device.Service
	target       *device.CharacteristicRef

	events chan device.GattEvent
	done   chan struct{} // closed when the session reaches CLOSED

	connectDone chan struct{} // closed once the Connect outcome is known
	connectErr  error
	resolved    bool

	settled       chan struct{} // closed when the session leaves CONNECTING for good after link-up, or closes
	settledClosed bool
}

// enqueue is the platform callback; it never blocks past the session's end
func (s *live) enqueue(ev device.GattEvent) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

// Machine owns the single session
type Machine struct {
	gate   *adapter.Gate
	logger *logrus.Logger
	rule   selector.Rule

	connectMu sync.Mutex // serializes the supersede + start steps of Connect

	mu      sync.Mutex
	created bool
	gen     uint64
	cur     *live

	journal mpmc.RichOverlappedRingBuffer[Transition]
}

// NewMachine creates an idle Machine over gate
func NewMachine(gate *adapter.Gate, opts *Options, logger *logrus.Logger) *Machine {
	if opts == nil {
		opts = &Options{}
	}
	if logger == nil {
		logger = logrus.New()
	}
	size := opts.JournalSize
	if size == 0 {
		size = DefaultJournalSize
	}
	return &Machine{
		gate:    gate,
		logger:  logger,
		rule:    opts.Rule,
		journal: mpmc.NewOverlappedRingBuffer[Transition](size),
	}
}

// Connect starts a new session with peripheral id, disconnecting any live session first.
// It returns once the physical link is up, before service discovery has completed;
// use AwaitServices to wait for the service tree. A peripheral that never answers
// keeps Connect waiting until ctx is done, which fails with Timeout and closes the session.
func (m *Machine) Connect(ctx context.Context, id string) error {
	if !m.gate.IsUsable() {
		return device.NewError(device.RadioUnavailable, "Bluetooth is not enabled")
	}

	peripheral, err := m.gate.Peripheral(id)
	if err != nil {
		m.logger.WithField("address", id).WithError(err).Info("Peripheral resolution failed")
		return err
	}

	ls := m.start(ctx, id, peripheral)

	select {
	case <-ls.connectDone:
		m.mu.Lock()
		defer m.mu.Unlock()
		return ls.connectErr
	case <-ctx.Done():
	}

	m.mu.Lock()
	if ls.resolved {
		err := ls.connectErr
		m.mu.Unlock()
		return err
	}
	timeoutErr := fmt.Errorf("%w: %w", device.NewError(device.Timeout, "connection to %s did not complete", id), ctx.Err())
	gatt := m.closeLocked(ls, "connect deadline reached", timeoutErr)
	m.mu.Unlock()

	m.release(gatt)
	m.logger.WithField("address", id).Warn("Connect timed out")
	return timeoutErr
}

// start supersedes the live session and issues the platform connect for a new one
func (m *Machine) start(ctx context.Context, id string, peripheral device.RemotePeripheral) *live {
	m.connectMu.Lock()
	defer m.connectMu.Unlock()

	m.mu.Lock()
	old := m.closeLocked(m.cur, "superseded by a new connect",
		device.NewError(device.ConnectionFailed, "connection attempt superseded"))
	m.mu.Unlock()
	m.release(old)

	m.mu.Lock()
	m.gen++
	m.created = true
	ls := &live{
		gen:          m.gen,
		peripheralID: id,
		state:        device.StateIdle,
		events:       make(chan device.GattEvent, eventQueueSize),
		done:         make(chan struct{}),
		connectDone:  make(chan struct{}),
		settled:      make(chan struct{}),
	}
	m.cur = ls
	m.transitionLocked(ls, device.StateConnecting, "connect requested")
	m.mu.Unlock()

	m.logger.WithFields(logrus.Fields{
		"address":    id,
		"generation": ls.gen,
	}).Info("Connecting to device...")

	// Events queue up in ls.events until the dispatcher starts below.
	gatt := peripheral.ConnectGatt(ls.enqueue)

	m.mu.Lock()
	if ls.state == device.StateClosed {
		m.mu.Unlock()
		m.logger.WithField("address", id).Debug("Session closed while connecting, releasing link")
		m.release(gatt)
		return ls
	}
	ls.gatt = gatt
	m.mu.Unlock()

	groutine.Go(context.WithoutCancel(ctx), fmt.Sprintf("session-dispatch-%d", ls.gen), func(context.Context) {
		m.dispatch(ls)
	})
	return ls
}

// dispatch drains the session's event queue in arrival order
func (m *Machine) dispatch(ls *live) {
	for {
		select {
		case ev := <-ls.events:
			effect := m.apply(ls, ev)
			if effect != nil {
				effect()
			}
		case <-ls.done:
			return
		}
	}
}

// apply performs the transition for ev and returns the platform call to issue
// once the lock is released.
func (m *Machine) apply(ls *live, ev device.GattEvent) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	logger := m.logger.WithFields(logrus.Fields{
		"address": ls.peripheralID,
		"event":   ev.Kind.String(),
		"state":   ls.state.String(),
	})

	if m.cur != ls || ls.state == device.StateClosed {
		logger.Debug("Dropping event of a finished session")
		return nil
	}

	switch ev.Kind {
	case device.GattConnected:
		if ls.linkUp || ls.state != device.StateConnecting {
			logger.Debug("Ignoring repeated connected event")
			return nil
		}
		ls.linkUp = true
		m.resolveLocked(ls, nil)
		logger.Info("Link established, discovering services")
		gatt := ls.gatt
		return func() { gatt.DiscoverServices() }

	case device.GattDisconnected:
		if !ls.linkUp {
			err := device.NewError(device.ConnectionFailed, "peripheral %s refused the connection", ls.peripheralID)
			if ev.Err != nil {
				err = device.NewError(device.ConnectionFailed, "peripheral %s refused the connection: %v", ls.peripheralID, ev.Err)
			}
			logger.WithError(ev.Err).Info("Connection failed")
			return m.releaser(m.closeLocked(ls, "connection failed", err))
		}
		logger.WithError(ev.Err).Warn("Link lost")
		return m.releaser(m.closeLocked(ls, "link lost", nil))

	case device.GattServicesDiscovered:
		if !ls.linkUp || ls.state != device.StateConnecting {
			logger.Debug("Ignoring unexpected service discovery result")
			return nil
		}
		ls.services = device.CloneServices(ev.Services)
		m.transitionLocked(ls, device.StateServicesDiscovered,
			fmt.Sprintf("%d services discovered", len(ls.services)))

		if ref, ok := m.rule.Select(ls.services); ok {
			ls.target = &ref
			m.transitionLocked(ls, device.StateActive, "write target "+ref.String())
		} else {
			logger.WithField("characteristic_count", device.CountCharacteristics(ls.services)).
				Warn("No writable characteristic found")
		}
		m.settleLocked(ls)
		return nil

	case device.GattServiceDiscoveryFailed:
		logger.WithError(ev.Err).Warn("Service discovery failed")
		return m.releaser(m.closeLocked(ls, "service discovery failed", nil))
	}

	logger.Debug("Ignoring unknown event")
	return nil
}

// AwaitServices blocks until the current session has its service tree or is closed.
// It returns nil in SERVICES_DISCOVERED and ACTIVE, NotConnected when the session
// closed first, and Timeout when ctx is done.
func (m *Machine) AwaitServices(ctx context.Context) error {
	m.mu.Lock()
	ls := m.cur
	m.mu.Unlock()
	if ls == nil {
		return device.NewError(device.NotConnected, "no session")
	}

	select {
	case <-ls.settled:
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", device.NewError(device.Timeout, "service discovery on %s did not complete", ls.peripheralID), ctx.Err())
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	switch ls.state {
	case device.StateServicesDiscovered, device.StateActive:
		return nil
	default:
		return device.NewError(device.NotConnected, "session with %s closed before services were discovered", ls.peripheralID)
	}
}

// Write sends payload as UTF-8 to the session's write target without waiting
// for a write confirmation.
func (m *Machine) Write(payload string) error {
	if !m.gate.IsUsable() {
		return device.NewError(device.RadioUnavailable, "Bluetooth is not enabled")
	}

	m.mu.Lock()
	ls := m.cur
	if ls == nil {
		m.mu.Unlock()
		return device.NewError(device.NotConnected, "no session")
	}
	switch ls.state {
	case device.StateActive:
	case device.StateServicesDiscovered:
		m.mu.Unlock()
		return device.NewError(device.NoWritableCharacteristic, "%s exposes no writable characteristic", ls.peripheralID)
	default:
		state := ls.state
		m.mu.Unlock()
		return device.NewError(device.NotConnected, "session with %s is %s", ls.peripheralID, state)
	}
	ref := *ls.target
	gatt := ls.gatt
	id := ls.peripheralID
	m.mu.Unlock()

	data := selector.Encode(payload)
	if err := gatt.WriteCharacteristic(ref, data); err != nil {
		err = device.NormalizeError(err)
		m.logger.WithFields(logrus.Fields{
			"address":   id,
			"char_uuid": ref.UUID,
		}).WithError(err).Warn("Write rejected")
		return err
	}

	m.logger.WithFields(logrus.Fields{
		"address":      id,
		"service_uuid": ref.ServiceUUID,
		"char_uuid":    ref.UUID,
		"bytes":        len(data),
	}).Debug("Write issued")
	return nil
}

// Disconnect closes the current session. Closing a closed session is a no-op;
// NotConnected is returned only when no session was ever created.
func (m *Machine) Disconnect() error {
	m.mu.Lock()
	if !m.created {
		m.mu.Unlock()
		return device.NewError(device.NotConnected, "no session")
	}
	gatt := m.closeLocked(m.cur, "disconnect requested",
		device.NewError(device.ConnectionFailed, "connection attempt cancelled by disconnect"))
	m.mu.Unlock()

	m.release(gatt)
	return nil
}

// Snapshot returns a copy of the current session; State is IDLE before the first Connect
func (m *Machine) Snapshot() device.Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	ls := m.cur
	if ls == nil {
		return device.Session{State: device.StateIdle}
	}
	snap := device.Session{
		PeripheralID: ls.peripheralID,
		State:        ls.state,
		LinkUp:       ls.linkUp,
		ServiceTree:  device.CloneServices(ls.services),
		Generation:   ls.gen,
	}
	if ls.target != nil {
		ref := *ls.target
		snap.WriteTarget = &ref
	}
	return snap
}

// State returns the current session state
func (m *Machine) State() device.SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil {
		return device.StateIdle
	}
	return m.cur.state
}

// DrainTransitions removes and returns the journaled transitions, oldest first
func (m *Machine) DrainTransitions() []Transition {
	var out []Transition
	for !m.journal.IsEmpty() {
		t, err := m.journal.Dequeue()
		if err != nil {
			break
		}
		out = append(out, t)
	}
	return out
}

// closeLocked moves ls to CLOSED, resolves a pending Connect with cause and
// returns the connection that must be released outside the lock.
func (m *Machine) closeLocked(ls *live, reason string, cause error) device.Gatt {
	if ls == nil || ls.state == device.StateClosed {
		return nil
	}
	if cause == nil {
		cause = device.NewError(device.ConnectionFailed, "%s", reason)
	}
	ls.services = nil
	ls.target = nil
	ls.linkUp = false
	m.transitionLocked(ls, device.StateClosed, reason)
	m.resolveLocked(ls, cause)
	m.settleLocked(ls)
	close(ls.done)

	gatt := ls.gatt
	ls.gatt = nil
	return gatt
}

func (m *Machine) releaser(gatt device.Gatt) func() {
	if gatt == nil {
		return nil
	}
	return func() { m.release(gatt) }
}

// release drops the link and frees the platform connection
func (m *Machine) release(gatt device.Gatt) {
	if gatt == nil {
		return
	}
	gatt.Disconnect()
	gatt.Close()
}

func (m *Machine) resolveLocked(ls *live, err error) {
	if ls.resolved {
		return
	}
	ls.resolved = true
	ls.connectErr = err
	close(ls.connectDone)
}

func (m *Machine) settleLocked(ls *live) {
	if ls.settledClosed {
		return
	}
	ls.settledClosed = true
	close(ls.settled)
}

func (m *Machine) transitionLocked(ls *live, to device.SessionState, reason string) {
	from := ls.state
	ls.state = to

	m.logger.WithFields(logrus.Fields{
		"address":    ls.peripheralID,
		"generation": ls.gen,
		"from":       from.String(),
		"to":         to.String(),
	}).Debug(reason)

	if _, err := m.journal.EnqueueM(Transition{
		Generation:   ls.gen,
		PeripheralID: ls.peripheralID,
		From:         from,
		To:           to,
		Reason:       reason,
		At:           time.Now(),
	}); err != nil {
		m.logger.WithError(err).Warn("Failed to journal transition")
	}
}
