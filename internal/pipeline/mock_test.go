package pipeline

import (
	"fmt"
	"math"
	"sync"
	"testing"
	"time"
)

const (
	testTempID = "6e400002-b5a3-f393-e0a9-e50e24dcca9e"
	testHumID  = "6e400003-b5a3-f393-e0a9-e50e24dcca9e"
)

// sample is one scripted sensor result.
type sample struct {
	humidity    float64
	temperature float64
}

// mockSensor replays scripted samples. Once the script runs out it keeps
// returning the last sample. If gate is set, ReadHumidity waits on it.
type mockSensor struct {
	mu      sync.Mutex
	samples []sample
	next    int
	calls   []string
	gate    chan struct{}
}

func newMockSensor(samples ...sample) *mockSensor {
	return &mockSensor{samples: samples}
}

func (s *mockSensor) current() sample {
	if len(s.samples) == 0 {
		return sample{humidity: math.NaN(), temperature: math.NaN()}
	}
	i := s.next
	if i >= len(s.samples) {
		i = len(s.samples) - 1
	}
	return s.samples[i]
}

func (s *mockSensor) ReadHumidity() float64 {
	s.mu.Lock()
	gate := s.gate
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "humidity")
	return s.current().humidity
}

func (s *mockSensor) ReadTemperature() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "temperature")
	v := s.current().temperature
	s.next++
	return v
}

func (s *mockSensor) callLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	copy(out, s.calls)
	return out
}

// transportCall is one recorded transport interaction.
type transportCall struct {
	op    string
	id    string
	value string
}

// mockTransport records every call. Subscriber counts default to zero.
type mockTransport struct {
	mu          sync.Mutex
	calls       []transportCall
	subscribers map[string]int
	advertised  int
	setErr      error
}

func newMockTransport() *mockTransport {
	return &mockTransport{subscribers: make(map[string]int)}
}

func (m *mockTransport) SetValue(id string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, transportCall{op: "set", id: id, value: string(value)})
	return m.setErr
}

func (m *mockTransport) Notify(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, transportCall{op: "notify", id: id})
	return nil
}

func (m *mockTransport) SubscriberCount(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subscribers[id]
}

func (m *mockTransport) StartAdvertising() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.advertised++
	return nil
}

func (m *mockTransport) setSubscribers(id string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers[id] = n
}

func (m *mockTransport) recorded() []transportCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]transportCall, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *mockTransport) advertiseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.advertised
}

// valuesFor returns every value set on id, in order.
func (m *mockTransport) valuesFor(id string) []string {
	var out []string
	for _, c := range m.recorded() {
		if c.op == "set" && c.id == id {
			out = append(out, c.value)
		}
	}
	return out
}

// mockMetrics counts calls keyed by name and labels.
type mockMetrics struct {
	mu       sync.Mutex
	counters map[string]int
	gauges   map[string]float64
}

func newMockMetrics() *mockMetrics {
	return &mockMetrics{
		counters: make(map[string]int),
		gauges:   make(map[string]float64),
	}
}

func metricKey(name string, labels []string) string {
	return fmt.Sprint(name, labels)
}

func (m *mockMetrics) IncCounter(name string, labels ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[metricKey(name, labels)]++
}

func (m *mockMetrics) SetGauge(name string, v float64, labels ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges[metricKey(name, labels)] = v
}

func (m *mockMetrics) count(name string, labels ...string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[metricKey(name, labels)]
}

func (m *mockMetrics) gauge(name string, labels ...string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gauges[metricKey(name, labels)]
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.Period = time.Hour // tests post tokens by hand unless noted
	opts.TemperatureID = testTempID
	opts.HumidityID = testHumID
	return opts
}
