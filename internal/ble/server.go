package ble

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chaz8081/envsense/internal/ble/protocol"
)

// ServerOptions configures the GATT server.
type ServerOptions struct {
	LocalName       string
	ServiceUUID     string
	TemperatureUUID string
	HumidityUUID    string
	ReadvertiseBase time.Duration // first advertising retry delay (default 1s)
	ReadvertiseMax  time.Duration // max advertising retry backoff (default 30s)
}

// DefaultServerOptions returns the environmental service layout.
func DefaultServerOptions() ServerOptions {
	return ServerOptions{
		LocalName:       DefaultLocalName,
		ServiceUUID:     ServiceUUID,
		TemperatureUUID: TemperatureCharUUID,
		HumidityUUID:    HumidityCharUUID,
		ReadvertiseBase: time.Second,
		ReadvertiseMax:  30 * time.Second,
	}
}

// Server is the GATT peripheral. Characteristic IDs are UUID strings.
type Server struct {
	adapter Adapter
	opts    ServerOptions

	mu        sync.Mutex
	chars     map[string]Characteristic
	values    map[string][]byte
	centrals  map[string]bool
	onConnect func(connected bool)

	// eventMu serializes connect/disconnect callbacks.
	eventMu sync.Mutex

	readvertising atomic.Bool
	closed        atomic.Bool
	stop          chan struct{}
}

// NewServer creates a server. Call Start to register the service.
func NewServer(adapter Adapter, opts ServerOptions) (*Server, error) {
	if adapter == nil {
		return nil, errors.New("ble: adapter is nil")
	}
	def := DefaultServerOptions()
	if opts.LocalName == "" {
		opts.LocalName = def.LocalName
	}
	if opts.ServiceUUID == "" {
		opts.ServiceUUID = def.ServiceUUID
	}
	if opts.TemperatureUUID == "" {
		opts.TemperatureUUID = def.TemperatureUUID
	}
	if opts.HumidityUUID == "" {
		opts.HumidityUUID = def.HumidityUUID
	}
	if opts.TemperatureUUID == opts.HumidityUUID {
		return nil, fmt.Errorf("ble: temperature and humidity UUIDs must differ")
	}
	if opts.ReadvertiseBase <= 0 {
		opts.ReadvertiseBase = def.ReadvertiseBase
	}
	if opts.ReadvertiseMax <= 0 {
		opts.ReadvertiseMax = def.ReadvertiseMax
	}

	return &Server{
		adapter:  adapter,
		opts:     opts,
		chars:    make(map[string]Characteristic),
		values:   make(map[string][]byte),
		centrals: make(map[string]bool),
		stop:     make(chan struct{}),
	}, nil
}

// SetConnectHandler registers the lifecycle callback. Calls are serialized.
func (s *Server) SetConnectHandler(handler func(connected bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onConnect = handler
}

// Start powers on the adapter, registers the service with both
// characteristics initialized to "NaN", and begins advertising.
func (s *Server) Start() error {
	if err := s.adapter.Enable(); err != nil {
		return fmt.Errorf("ble: enable adapter: %w", err)
	}

	s.adapter.SetConnectHandler(s.handleConnect)

	initial := []byte(protocol.InitialValue)
	chars, err := s.adapter.AddService(Service{
		UUID: s.opts.ServiceUUID,
		Characteristics: []CharacteristicConfig{
			{UUID: s.opts.TemperatureUUID, Value: initial},
			{UUID: s.opts.HumidityUUID, Value: initial},
		},
	})
	if err != nil {
		return fmt.Errorf("ble: add service: %w", err)
	}

	s.mu.Lock()
	for _, id := range []string{s.opts.TemperatureUUID, s.opts.HumidityUUID} {
		c, ok := chars[id]
		if !ok {
			s.mu.Unlock()
			return fmt.Errorf("ble: characteristic %s not registered", id)
		}
		s.chars[id] = c
		s.values[id] = initial
	}
	s.mu.Unlock()

	if err := s.advertise(); err != nil {
		return fmt.Errorf("ble: start advertising: %w", err)
	}
	slog.Info("[BLE] advertising, waiting for a client", "name", s.opts.LocalName)
	return nil
}

func (s *Server) advertise() error {
	return s.adapter.StartAdvertising(Advertisement{
		LocalName:    s.opts.LocalName,
		ServiceUUIDs: []string{s.opts.ServiceUUID},
	})
}

// handleConnect tracks centrals and forwards the event to the registered handler.
func (s *Server) handleConnect(central string, connected bool) {
	s.eventMu.Lock()
	defer s.eventMu.Unlock()

	s.mu.Lock()
	if connected {
		s.centrals[central] = true
	} else {
		delete(s.centrals, central)
	}
	handler := s.onConnect
	s.mu.Unlock()

	slog.Debug("[BLE] central event", "central", central, "connected", connected)
	if handler != nil {
		handler(connected)
	}
}

func (s *Server) characteristic(id string) (Characteristic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chars[id]
	if !ok {
		return nil, fmt.Errorf("ble: unknown characteristic %s", id)
	}
	return c, nil
}

// SetValue replaces the value of characteristic id.
func (s *Server) SetValue(id string, value []byte) error {
	c, err := s.characteristic(id)
	if err != nil {
		return err
	}
	if err := c.SetValue(value); err != nil {
		return fmt.Errorf("ble: set value %s: %w", id, err)
	}

	cp := make([]byte, len(value))
	copy(cp, value)
	s.mu.Lock()
	s.values[id] = cp
	s.mu.Unlock()
	return nil
}

// Value returns the last value set on characteristic id.
func (s *Server) Value(id string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[id]
	if !ok {
		return nil, false
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, true
}

// Notify pushes the current value of characteristic id to subscribers.
func (s *Server) Notify(id string) error {
	c, err := s.characteristic(id)
	if err != nil {
		return err
	}
	if err := c.Notify(); err != nil {
		return fmt.Errorf("ble: notify %s: %w", id, err)
	}
	if v, ok := s.Value(id); ok {
		slog.Debug("[BLE] notified", "characteristic", id, "value", string(v))
	}
	return nil
}

// SubscriberCount returns how many centrals subscribed to id. Stacks that do
// not expose CCCD state report the number of connected centrals instead.
func (s *Server) SubscriberCount(id string) int {
	c, err := s.characteristic(id)
	if err != nil {
		return 0
	}
	if sc, ok := c.(SubscriberCounter); ok {
		return sc.Subscribers()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.centrals)
}

// StartAdvertising restarts advertising. On failure a background loop keeps
// retrying with exponential backoff until it succeeds or Close is called.
func (s *Server) StartAdvertising() error {
	if s.closed.Load() {
		return errors.New("ble: server closed")
	}
	err := s.advertise()
	if err == nil {
		return nil
	}
	if s.readvertising.CompareAndSwap(false, true) {
		go s.readvertiseLoop()
	}
	return fmt.Errorf("ble: start advertising (retrying): %w", err)
}

// readvertiseLoop retries advertising with exponential backoff.
func (s *Server) readvertiseLoop() {
	defer s.readvertising.Store(false)

	for attempt := 0; ; attempt++ {
		delay := backoffDelay(attempt, s.opts.ReadvertiseBase, s.opts.ReadvertiseMax)
		slog.Info("[BLE] advertising retry backoff", "attempt", attempt+1, "delay", delay)

		timer := time.NewTimer(delay)
		select {
		case <-s.stop:
			timer.Stop()
			return
		case <-timer.C:
		}

		if err := s.advertise(); err != nil {
			slog.Warn("[BLE] advertising retry failed", "error", err, "attempt", attempt+1)
			continue
		}
		slog.Info("[BLE] advertising restarted")
		return
	}
}

// Close stops any advertising retry loop. The adapter stays powered; the
// host stack tears down the service when the process exits.
func (s *Server) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		close(s.stop)
	}
	return nil
}

// backoffDelay returns the retry delay for attempt n: base doubled per
// attempt, capped at max.
func backoffDelay(attempt int, base, max time.Duration) time.Duration {
	delay := base
	for i := 0; i < attempt && delay < max; i++ {
		delay *= 2
	}
	if delay > max {
		return max
	}
	return delay
}
