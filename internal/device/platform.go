package device

// GattEventKind identifies a platform GATT callback
type GattEventKind int

const (
	GattConnected GattEventKind = iota
	GattDisconnected
	GattServicesDiscovered
	GattServiceDiscoveryFailed
)

func (k GattEventKind) String() string {
	switch k {
	case GattConnected:
		return "connected"
	case GattDisconnected:
		return "disconnected"
	case GattServicesDiscovered:
		return "services-discovered"
	case GattServiceDiscoveryFailed:
		return "service-discovery-failed"
	default:
		return "unknown"
	}
}

// GattEvent is delivered by the platform stack on its own goroutine.
// Services is set for GattServicesDiscovered, Err for failures and for
// disconnects caused by an error.
type GattEvent struct {
	Kind     GattEventKind
	Services []Service
	Err      error
}

// GattCallback receives the events of one connection request
type GattCallback func(GattEvent)

// Radio is the platform BLE stack as seen by the session core.
// Implementations must be safe for concurrent use.
type Radio interface {
	// Powered reports whether the radio exists and is switched on.
	Powered() bool
	// StartDiscovery begins scanning; every advertisement is passed to onFound.
	// Calling it while discovery is running replaces the handler.
	StartDiscovery(onFound func(DiscoveredPeripheral))
	// StopDiscovery stops scanning. It is a no-op when no discovery runs.
	StopDiscovery()
	// RemotePeripheral resolves a hardware address to a connectable handle.
	RemotePeripheral(id string) (RemotePeripheral, error)
}

// RemotePeripheral is a resolved peripheral handle
type RemotePeripheral interface {
	Address() string
	// ConnectGatt issues a connect request. The returned Gatt is usable
	// immediately for Disconnect/Close; all progress is reported through cb.
	ConnectGatt(cb GattCallback) Gatt
}

// Gatt is one platform connection. None of its methods wait for the peripheral.
type Gatt interface {
	// DiscoverServices requests service discovery; completion arrives as a GattEvent.
	DiscoverServices()
	// WriteCharacteristic queues a write of value to the referenced characteristic.
	WriteCharacteristic(ref CharacteristicRef, value []byte) error
	// Disconnect drops the link (or cancels a pending connect).
	Disconnect()
	// Close releases every platform resource held by the connection.
	Close()
}
