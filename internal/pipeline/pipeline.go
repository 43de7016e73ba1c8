package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chaz8081/envsense/internal/metrics"
	"github.com/chaz8081/envsense/internal/queue"
)

// Options configures the measurement cycle.
type Options struct {
	Period        time.Duration // trigger period
	QueueDepth    int           // capacity of both queues
	SendTimeout   time.Duration // bounded wait when posting a reading
	TemperatureID string        // transport ID of the temperature characteristic
	HumidityID    string        // transport ID of the humidity characteristic
}

// DefaultOptions returns the reference timing: 5s period, 8-deep queues,
// 50ms send timeout.
func DefaultOptions() Options {
	return Options{
		Period:      5 * time.Second,
		QueueDepth:  queue.DefaultCapacity,
		SendTimeout: 50 * time.Millisecond,
	}
}

// Pipeline owns the gate, the trigger, both queues and both workers.
// Construct it once at startup.
type Pipeline struct {
	opts      Options
	transport Transport
	metrics   metrics.Recorder

	gate     *Gate
	triggers *queue.Queue[Token]
	readings *queue.Queue[Reading]
	trigger  *Trigger
	acquirer *Acquirer
	notifier *Notifier

	mu      sync.Mutex // orders lifecycle events against shutdown
	stopped bool
}

// New wires a pipeline. A nil recorder disables metrics.
func New(sensor Sensor, transport Transport, rec metrics.Recorder, opts Options) (*Pipeline, error) {
	if sensor == nil {
		return nil, fmt.Errorf("pipeline: sensor is nil")
	}
	if transport == nil {
		return nil, fmt.Errorf("pipeline: transport is nil")
	}
	if opts.TemperatureID == "" || opts.HumidityID == "" {
		return nil, fmt.Errorf("pipeline: characteristic IDs must be set")
	}
	def := DefaultOptions()
	if opts.Period <= 0 {
		opts.Period = def.Period
	}
	if opts.QueueDepth <= 0 {
		opts.QueueDepth = def.QueueDepth
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = def.SendTimeout
	}
	if rec == nil {
		rec = metrics.Nop{}
	}

	p := &Pipeline{
		opts:      opts,
		transport: transport,
		metrics:   rec,
		gate:      &Gate{},
		triggers:  queue.New[Token](opts.QueueDepth),
		readings:  queue.New[Reading](opts.QueueDepth),
	}
	p.trigger = newTrigger(opts.Period, p.gate, p.triggers, rec)
	p.acquirer = &Acquirer{
		sensor:      sensor,
		in:          p.triggers,
		out:         p.readings,
		sendTimeout: opts.SendTimeout,
		metrics:     rec,
	}
	p.notifier = &Notifier{
		gate:        p.gate,
		in:          p.readings,
		transport:   transport,
		temperature: characteristic{id: opts.TemperatureID, label: "temperature"},
		humidity:    characteristic{id: opts.HumidityID, label: "humidity"},
		metrics:     rec,
	}
	return p, nil
}

// Handle applies a lifecycle event. Events arriving after Run has returned
// are ignored, so a late connect cannot re-arm the trigger.
func (p *Pipeline) Handle(ev Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		slog.Debug("[BLE] pipeline stopped, ignoring lifecycle event", "event", ev.String())
		return
	}

	switch ev {
	case EventConnect:
		p.gate.Set(true)
		p.trigger.Arm()
		p.metrics.SetGauge(metrics.Connected, 1)
		slog.Info("[BLE] device connected, measurement timer started", "period", p.opts.Period)

	case EventDisconnect:
		slog.Info("[BLE] device disconnected, timer stopped, re-advertising")
		p.gate.Set(false)
		p.trigger.Disarm()
		p.metrics.SetGauge(metrics.Connected, 0)
		if err := p.transport.StartAdvertising(); err != nil {
			slog.Warn("[BLE] restart advertising failed", "error", err)
		}

	default:
		slog.Warn("[BLE] ignoring unknown lifecycle event", "event", int(ev))
	}
}

// HandleConnection adapts Handle to a connected/disconnected callback.
func (p *Pipeline) HandleConnection(connected bool) {
	if connected {
		p.Handle(EventConnect)
		return
	}
	p.Handle(EventDisconnect)
}

// Connected reports the current gate state.
func (p *Pipeline) Connected() bool {
	return p.gate.IsConnected()
}

// Run starts both workers and blocks until ctx is cancelled. The trigger
// is disarmed before Run returns and stays disarmed.
func (p *Pipeline) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		p.acquirer.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		p.notifier.Run(ctx)
	}()

	<-ctx.Done()
	p.mu.Lock()
	p.stopped = true
	p.trigger.Disarm()
	p.mu.Unlock()
	wg.Wait()
}
