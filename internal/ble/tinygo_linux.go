//go:build linux

package ble

import (
	"fmt"
	"sync"

	"tinygo.org/x/bluetooth"
)

// TinyGoAdapter wraps tinygo-org/bluetooth in the peripheral role. On Linux
// it drives BlueZ over D-Bus.
type TinyGoAdapter struct {
	adapter *bluetooth.Adapter

	// mu protects adv and advertising.
	mu          sync.Mutex
	adv         *bluetooth.Advertisement
	advertising bool
}

// NewTinyGoAdapter creates a BLE adapter bound to the default controller.
func NewTinyGoAdapter() *TinyGoAdapter {
	return &TinyGoAdapter{adapter: bluetooth.DefaultAdapter}
}

func (a *TinyGoAdapter) Enable() error {
	return a.adapter.Enable()
}

func (a *TinyGoAdapter) AddService(svc Service) (map[string]Characteristic, error) {
	svcUUID, err := bluetooth.ParseUUID(svc.UUID)
	if err != nil {
		return nil, fmt.Errorf("ble: parse service UUID: %w", err)
	}

	handles := make([]bluetooth.Characteristic, len(svc.Characteristics))
	configs := make([]bluetooth.CharacteristicConfig, len(svc.Characteristics))
	for i, c := range svc.Characteristics {
		charUUID, err := bluetooth.ParseUUID(c.UUID)
		if err != nil {
			return nil, fmt.Errorf("ble: parse characteristic UUID %q: %w", c.UUID, err)
		}
		configs[i] = bluetooth.CharacteristicConfig{
			Handle: &handles[i],
			UUID:   charUUID,
			Value:  c.Value,
			Flags:  bluetooth.CharacteristicReadPermission | bluetooth.CharacteristicNotifyPermission,
		}
	}

	if err := a.adapter.AddService(&bluetooth.Service{
		UUID:            svcUUID,
		Characteristics: configs,
	}); err != nil {
		return nil, fmt.Errorf("ble: register service %s: %w", svc.UUID, err)
	}

	chars := make(map[string]Characteristic, len(handles))
	for i, c := range svc.Characteristics {
		chars[c.UUID] = &tinyGoCharacteristic{handle: &handles[i]}
	}
	return chars, nil
}

func (a *TinyGoAdapter) StartAdvertising(adv Advertisement) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	// BlueZ accepts a single Configure per advertisement object; later
	// restarts reuse it.
	if a.adv == nil {
		uuids := make([]bluetooth.UUID, 0, len(adv.ServiceUUIDs))
		for _, s := range adv.ServiceUUIDs {
			u, err := bluetooth.ParseUUID(s)
			if err != nil {
				return fmt.Errorf("ble: parse advertised UUID %q: %w", s, err)
			}
			uuids = append(uuids, u)
		}
		a.adv = a.adapter.DefaultAdvertisement()
		if err := a.adv.Configure(bluetooth.AdvertisementOptions{
			LocalName:    adv.LocalName,
			ServiceUUIDs: uuids,
		}); err != nil {
			a.adv = nil
			return fmt.Errorf("ble: configure advertisement: %w", err)
		}
	}

	if a.advertising {
		// Re-register so the controller resumes advertising after a link drop.
		_ = a.adv.Stop()
		a.advertising = false
	}
	if err := a.adv.Start(); err != nil {
		return fmt.Errorf("ble: start advertisement: %w", err)
	}
	a.advertising = true
	return nil
}

func (a *TinyGoAdapter) SetConnectHandler(handler func(central string, connected bool)) {
	a.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		handler(device.Address.String(), connected)
	})
}

// Compile-time check that TinyGoAdapter implements Adapter.
var _ Adapter = (*TinyGoAdapter)(nil)

type tinyGoCharacteristic struct {
	handle *bluetooth.Characteristic
}

func (c *tinyGoCharacteristic) SetValue(data []byte) error {
	_, err := c.handle.Write(data)
	return err
}

// Notify is a no-op: BlueZ emits the value to subscribed centrals as part
// of SetValue.
func (c *tinyGoCharacteristic) Notify() error {
	return nil
}
