//go:build !linux

package ble

// TinyGoAdapter is unavailable off Linux: the host stacks tinygo-org/bluetooth
// supports elsewhere have no GATT server role.
type TinyGoAdapter struct{}

// NewTinyGoAdapter returns an adapter whose methods report ErrUnsupported.
func NewTinyGoAdapter() *TinyGoAdapter {
	return &TinyGoAdapter{}
}

func (a *TinyGoAdapter) Enable() error { return ErrUnsupported }

func (a *TinyGoAdapter) AddService(Service) (map[string]Characteristic, error) {
	return nil, ErrUnsupported
}

func (a *TinyGoAdapter) StartAdvertising(Advertisement) error { return ErrUnsupported }

func (a *TinyGoAdapter) SetConnectHandler(func(central string, connected bool)) {}

var _ Adapter = (*TinyGoAdapter)(nil)
