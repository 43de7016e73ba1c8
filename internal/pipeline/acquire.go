package pipeline

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/chaz8081/envsense/internal/metrics"
	"github.com/chaz8081/envsense/internal/queue"
)

// Acquirer turns trigger tokens into readings. It knows nothing about the
// connection state and samples on every token it receives.
type Acquirer struct {
	sensor      Sensor
	in          *queue.Queue[Token]
	out         *queue.Queue[Reading]
	sendTimeout time.Duration
	metrics     metrics.Recorder
}

// Run blocks until ctx is cancelled. An in-flight sensor read is never
// interrupted.
func (a *Acquirer) Run(ctx context.Context) {
	slog.Info("[DHT] acquisition worker started, waiting for triggers")
	for {
		if _, ok := a.in.Receive(ctx); !ok {
			slog.Debug("[DHT] acquisition worker stopped")
			return
		}
		a.metrics.SetGauge(metrics.QueueLength, float64(a.in.Len()), "trigger")
		a.acquire()
	}
}

// acquire takes one sample and hands it to the reading queue, dropping it
// if the queue stays full for longer than the send timeout.
func (a *Acquirer) acquire() {
	r := a.sample()
	if !a.out.SendTimeout(r, a.sendTimeout) {
		a.metrics.IncCounter(metrics.ReadingDropped)
		slog.Debug("[DHT] reading queue full, reading dropped", "timeout", a.sendTimeout)
	}
}

// sample reads humidity then temperature; the driver's two-phase protocol
// depends on that order.
func (a *Acquirer) sample() Reading {
	h := a.sensor.ReadHumidity()
	t := a.sensor.ReadTemperature()

	if math.IsNaN(h) || math.IsNaN(t) {
		a.metrics.IncCounter(metrics.SensorFailures)
		slog.Warn("[DHT] read failed (NaN), check wiring and pull-up (4.7-10k)")
		return Reading{Valid: false}
	}

	r := Reading{
		TemperatureCelsius: t,
		HumidityPercent:    h,
		Valid:              true,
	}
	a.metrics.IncCounter(metrics.SamplesAcquired)
	slog.Debug("[DHT] sample", "reading", r.String())
	return r
}
