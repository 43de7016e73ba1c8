// Package metrics exposes pipeline counters and gauges through Prometheus.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metric names.
const (
	TriggerDropped    = "envsense_trigger_dropped_total"
	ReadingDropped    = "envsense_reading_dropped_total"
	SensorFailures    = "envsense_sensor_failures_total"
	SamplesAcquired   = "envsense_samples_acquired_total"
	ReadingsDiscarded = "envsense_readings_discarded_total" // label: reason
	Notifications     = "envsense_notifications_total"      // label: characteristic
	TransportErrors   = "envsense_transport_errors_total"   // label: op
	Connected         = "envsense_connected"
	QueueLength       = "envsense_queue_length" // label: queue
)

// Recorder is the narrow metrics surface the pipeline writes to.
type Recorder interface {
	IncCounter(name string, labels ...string)
	SetGauge(name string, v float64, labels ...string)
}

// Nop discards everything.
type Nop struct{}

func (Nop) IncCounter(string, ...string)        {}
func (Nop) SetGauge(string, float64, ...string) {}

var _ Recorder = Nop{}

// Prom records into Prometheus collectors. Unknown names are ignored.
type Prom struct {
	counters    map[string]prometheus.Counter
	counterVecs map[string]*prometheus.CounterVec
	gauges      map[string]prometheus.Gauge
	gaugeVecs   map[string]*prometheus.GaugeVec
}

// NewProm creates the envsense collectors and registers them with reg.
func NewProm(reg prometheus.Registerer) (*Prom, error) {
	triggerDropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: TriggerDropped,
		Help: "Trigger tokens dropped because the trigger queue was full.",
	})
	readingDropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: ReadingDropped,
		Help: "Readings dropped because the reading queue stayed full past the send timeout.",
	})
	sensorFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: SensorFailures,
		Help: "Sensor reads that returned NaN.",
	})
	samples := prometheus.NewCounter(prometheus.CounterOpts{
		Name: SamplesAcquired,
		Help: "Valid readings produced by the acquisition worker.",
	})
	discarded := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: ReadingsDiscarded,
		Help: "Readings discarded by the notification worker.",
	}, []string{"reason"})
	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: Notifications,
		Help: "Notifications pushed to subscribed centrals.",
	}, []string{"characteristic"})
	transportErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: TransportErrors,
		Help: "Transport calls that returned an error.",
	}, []string{"op"})
	connected := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: Connected,
		Help: "1 while a central is connected.",
	})
	queueLen := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: QueueLength,
		Help: "Values buffered in a pipeline queue.",
	}, []string{"queue"})

	for _, c := range []prometheus.Collector{
		triggerDropped, readingDropped, sensorFailures, samples,
		discarded, notifications, transportErrors, connected, queueLen,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("metrics: register: %w", err)
		}
	}

	return &Prom{
		counters: map[string]prometheus.Counter{
			TriggerDropped:  triggerDropped,
			ReadingDropped:  readingDropped,
			SensorFailures:  sensorFailures,
			SamplesAcquired: samples,
		},
		counterVecs: map[string]*prometheus.CounterVec{
			ReadingsDiscarded: discarded,
			Notifications:     notifications,
			TransportErrors:   transportErrors,
		},
		gauges: map[string]prometheus.Gauge{
			Connected: connected,
		},
		gaugeVecs: map[string]*prometheus.GaugeVec{
			QueueLength: queueLen,
		},
	}, nil
}

// IncCounter adds one to the named counter. Unlabeled counters never
// allocate, so the trigger tick may call this.
func (p *Prom) IncCounter(name string, labels ...string) {
	if len(labels) == 0 {
		if c, ok := p.counters[name]; ok {
			c.Inc()
		}
		return
	}
	if v, ok := p.counterVecs[name]; ok {
		v.WithLabelValues(labels...).Inc()
	}
}

// SetGauge sets the named gauge.
func (p *Prom) SetGauge(name string, v float64, labels ...string) {
	if len(labels) == 0 {
		if g, ok := p.gauges[name]; ok {
			g.Set(v)
		}
		return
	}
	if gv, ok := p.gaugeVecs[name]; ok {
		gv.WithLabelValues(labels...).Set(v)
	}
}

var _ Recorder = (*Prom)(nil)

// NewMux returns a mux serving /metrics from g and a plain /health probe.
func NewMux(g prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	return mux
}

// Serve runs the metrics endpoint on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewMux(g),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("[SYS] metrics endpoint listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics: serve %s: %w", addr, err)
	}
}
