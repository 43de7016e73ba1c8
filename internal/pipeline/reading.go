// Package pipeline implements the connection-gated measurement cycle:
// a periodic trigger feeds an acquisition worker, which feeds a
// notification worker that pushes values to subscribed centrals.
package pipeline

import "fmt"

// Reading is one sensor sample in flight between acquisition and
// notification. When Valid is false the numeric fields carry no meaning.
type Reading struct {
	TemperatureCelsius float64
	HumidityPercent    float64
	Valid              bool
}

func (r Reading) String() string {
	if !r.Valid {
		return "invalid"
	}
	return fmt.Sprintf("T=%.2f C, H=%.2f %%", r.TemperatureCelsius, r.HumidityPercent)
}

// Token asks the acquisition worker to take one sample.
type Token struct{}

// Sensor is the blocking driver the acquisition worker reads from. Both
// reads return NaN on failure and must be called sequentially.
type Sensor interface {
	ReadHumidity() float64
	ReadTemperature() float64
}

// Transport is the peripheral stack the notification worker writes to.
// Characteristics are addressed by UUID.
type Transport interface {
	SetValue(id string, value []byte) error
	Notify(id string) error
	SubscriberCount(id string) int
	StartAdvertising() error
}
