// Package device holds the data model shared by the session core: discovered
// peripherals, GATT service snapshots, characteristic properties, session
// states, the typed error taxonomy and the platform interfaces (Radio,
// RemotePeripheral, Gatt) that the go-ble backend and the test fakes implement.
package device
