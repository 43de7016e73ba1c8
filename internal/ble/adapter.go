// Package ble provides the GATT peripheral that exposes the environmental
// service: a temperature and a humidity characteristic, both readable and
// notifiable. It handles advertising, connection tracking, and value
// publication over Bluetooth Low Energy.
package ble

import "errors"

// Environmental service UUIDs
const (
	ServiceUUID         = "6e400001-b5a3-f393-e0a9-e50e24dcca9e"
	TemperatureCharUUID = "6e400002-b5a3-f393-e0a9-e50e24dcca9e"
	HumidityCharUUID    = "6e400003-b5a3-f393-e0a9-e50e24dcca9e"
)

// DefaultLocalName is the advertised device name.
const DefaultLocalName = "envsense DHT22"

// ErrUnsupported is returned when the platform has no peripheral support.
var ErrUnsupported = errors.New("ble: peripheral role not supported on this platform")

// Characteristic represents a local GATT characteristic.
type Characteristic interface {
	// SetValue replaces the value served to reads.
	SetValue(data []byte) error
	// Notify pushes the current value to subscribed centrals.
	Notify() error
}

// SubscriberCounter is implemented by characteristics whose stack tracks
// client characteristic configuration (CCCD) state.
type SubscriberCounter interface {
	Subscribers() int
}

// CharacteristicConfig describes one characteristic to register.
type CharacteristicConfig struct {
	UUID  string
	Value []byte // initial value
}

// Service describes a primary GATT service to register.
type Service struct {
	UUID            string
	Characteristics []CharacteristicConfig
}

// Advertisement describes the advertising payload.
type Advertisement struct {
	LocalName    string
	ServiceUUIDs []string
}

// Adapter abstracts the BLE hardware adapter for testing.
type Adapter interface {
	// Enable powers on the BLE adapter.
	Enable() error
	// AddService registers svc and returns its characteristics keyed by UUID.
	AddService(svc Service) (map[string]Characteristic, error)
	// StartAdvertising (re)starts connectable advertising.
	StartAdvertising(adv Advertisement) error
	// SetConnectHandler registers the callback for central connect and
	// disconnect events. The central is identified by its address.
	SetConnectHandler(handler func(central string, connected bool))
}
