package sensor

import (
	"errors"
	"math/rand/v2"
	"time"

	"github.com/chaz8081/envsense/internal/config"
)

// simSource produces readings around a base point. Seeded, so runs repeat.
type simSource struct {
	cfg   config.SimConfig
	rng   *rand.Rand
	sleep func(time.Duration)
}

func newSimSource(cfg config.SimConfig) *simSource {
	return &simSource{
		cfg:   cfg,
		rng:   rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		sleep: time.Sleep,
	}
}

func (s *simSource) measure() (frame, error) {
	if s.cfg.Latency > 0 {
		s.sleep(s.cfg.Latency)
	}
	if s.cfg.FailureRate > 0 && s.rng.Float64() < s.cfg.FailureRate {
		return frame{}, errors.New("sensor: simulated read failure")
	}
	return frame{
		humidity:    clamp(s.cfg.Humidity+s.jitter(), 0, 100),
		temperature: s.cfg.Temperature + s.jitter(),
	}, nil
}

func (s *simSource) jitter() float64 {
	return s.cfg.Jitter * (s.rng.Float64()*2 - 1)
}

func (s *simSource) Close() error { return nil }

func clamp(v, lo, hi float64) float64 {
	return min(max(v, lo), hi)
}
