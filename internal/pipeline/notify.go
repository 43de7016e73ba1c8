package pipeline

import (
	"context"
	"log/slog"

	"github.com/chaz8081/envsense/internal/ble/protocol"
	"github.com/chaz8081/envsense/internal/metrics"
	"github.com/chaz8081/envsense/internal/queue"
)

// characteristic pairs a transport ID with its metrics label.
type characteristic struct {
	id    string
	label string
}

// Notifier publishes readings to the transport. It retains nothing between
// readings.
type Notifier struct {
	gate        *Gate
	in          *queue.Queue[Reading]
	transport   Transport
	temperature characteristic
	humidity    characteristic
	metrics     metrics.Recorder
}

// Run blocks until ctx is cancelled.
func (n *Notifier) Run(ctx context.Context) {
	slog.Info("[BLE] notification worker started")
	for {
		r, ok := n.in.Receive(ctx)
		if !ok {
			slog.Debug("[BLE] notification worker stopped")
			return
		}
		n.metrics.SetGauge(metrics.QueueLength, float64(n.in.Len()), "reading")
		n.deliver(r)
	}
}

// deliver reports whether the reading reached the transport.
func (n *Notifier) deliver(r Reading) bool {
	// The gate may have closed while r sat in the queue.
	if !n.gate.IsConnected() {
		n.metrics.IncCounter(metrics.ReadingsDiscarded, "disconnected")
		slog.Debug("[BLE] not connected, reading discarded")
		return false
	}
	if !r.Valid {
		n.metrics.IncCounter(metrics.ReadingsDiscarded, "invalid")
		return false
	}

	n.set(n.temperature, protocol.FormatValue(r.TemperatureCelsius))
	n.set(n.humidity, protocol.FormatValue(r.HumidityPercent))

	// Subscription state is read right before each push; a central that
	// unsubscribes in between just misses this one.
	n.notify(n.temperature)
	n.notify(n.humidity)
	return true
}

func (n *Notifier) set(c characteristic, value []byte) {
	if err := n.transport.SetValue(c.id, value); err != nil {
		n.metrics.IncCounter(metrics.TransportErrors, "set_value")
		slog.Warn("[BLE] set value failed", "characteristic", c.label, "error", err)
	}
}

func (n *Notifier) notify(c characteristic) {
	if n.transport.SubscriberCount(c.id) == 0 {
		return
	}
	if err := n.transport.Notify(c.id); err != nil {
		n.metrics.IncCounter(metrics.TransportErrors, "notify")
		slog.Warn("[BLE] notify failed", "characteristic", c.label, "error", err)
		return
	}
	n.metrics.IncCounter(metrics.Notifications, c.label)
}
