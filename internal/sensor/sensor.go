// Package sensor provides DHT22 humidity/temperature drivers.
//
// Supported drivers:
//   - serial: a DHT22 behind a UART bridge (one line per measurement)
//   - sim: seeded synthetic readings for bench runs without hardware
//
// Both drivers report a failed read as NaN, never as an error.
package sensor

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/chaz8081/envsense/internal/config"
)

// ErrUnknownDriver is returned by New for an unrecognized driver name.
var ErrUnknownDriver = errors.New("sensor: unknown driver")

// Driver reads humidity and temperature. A failed read returns NaN.
type Driver interface {
	// ReadHumidity returns relative humidity in percent.
	ReadHumidity() float64
	// ReadTemperature returns temperature in degrees Celsius.
	ReadTemperature() float64
	// Close releases driver resources.
	Close() error
}

// New creates a Driver based on the config driver setting.
func New(cfg *config.SensorConfig) (Driver, error) {
	switch cfg.Driver {
	case "serial":
		src, err := openSerial(cfg.Port, cfg.Baud, cfg.ReadTimeout)
		if err != nil {
			return nil, err
		}
		return newCached(src, cfg.MinInterval), nil
	case "sim", "":
		return newCached(newSimSource(cfg.Sim), cfg.MinInterval), nil
	default:
		return nil, fmt.Errorf("%w %q (supported: serial, sim)", ErrUnknownDriver, cfg.Driver)
	}
}

// frame is one complete conversion: the DHT22 always measures both values.
type frame struct {
	humidity    float64
	temperature float64
}

// source performs one hardware conversion.
type source interface {
	measure() (frame, error)
	Close() error
}

// cached spaces conversions at least minInterval apart. Reads inside the
// window return the last frame, so a humidity read followed by a
// temperature read costs one conversion.
type cached struct {
	src         source
	minInterval time.Duration
	now         func() time.Time

	mu     sync.Mutex
	last   frame
	lastAt time.Time
	ok     bool
}

func newCached(src source, minInterval time.Duration) *cached {
	return &cached{src: src, minInterval: minInterval, now: time.Now}
}

func (c *cached) read() (frame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if !c.lastAt.IsZero() && now.Sub(c.lastAt) < c.minInterval {
		return c.last, c.ok
	}

	f, err := c.src.measure()
	c.lastAt = now
	if err != nil {
		slog.Debug("[DHT] conversion failed", "error", err)
		c.ok = false
		return frame{}, false
	}
	c.last, c.ok = f, true
	return f, true
}

// ReadHumidity returns relative humidity in percent, or NaN.
func (c *cached) ReadHumidity() float64 {
	f, ok := c.read()
	if !ok {
		return math.NaN()
	}
	return f.humidity
}

// ReadTemperature returns degrees Celsius, or NaN.
func (c *cached) ReadTemperature() float64 {
	f, ok := c.read()
	if !ok {
		return math.NaN()
	}
	return f.temperature
}

// Close releases the underlying source.
func (c *cached) Close() error {
	return c.src.Close()
}
