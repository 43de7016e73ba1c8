package pipeline

import (
	"sync"
	"time"

	"github.com/chaz8081/envsense/internal/metrics"
	"github.com/chaz8081/envsense/internal/queue"
)

// Trigger posts a token into the trigger queue once per period while armed
// and the gate is open.
type Trigger struct {
	period  time.Duration
	gate    *Gate
	out     *queue.Queue[Token]
	metrics metrics.Recorder

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

func newTrigger(period time.Duration, gate *Gate, out *queue.Queue[Token], m metrics.Recorder) *Trigger {
	return &Trigger{
		period:  period,
		gate:    gate,
		out:     out,
		metrics: m,
	}
}

// Arm starts the timer. Arming an armed trigger restarts its period.
func (t *Trigger) Arm() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disarmLocked()

	stop := make(chan struct{})
	done := make(chan struct{})
	t.stop, t.done = stop, done

	go func() {
		defer close(done)
		ticker := time.NewTicker(t.period)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				t.tick()
			}
		}
	}()
}

// Disarm stops the timer. A tick already in progress may still complete,
// which is why tick re-checks the gate.
func (t *Trigger) Disarm() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disarmLocked()
}

func (t *Trigger) disarmLocked() {
	if t.stop == nil {
		return
	}
	close(t.stop)
	<-t.done
	t.stop, t.done = nil, nil
}

// Armed reports whether the timer is running.
func (t *Trigger) Armed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stop != nil
}

// tick must stay non-blocking and allocation-free.
func (t *Trigger) tick() {
	if !t.gate.IsConnected() {
		return
	}
	if !t.out.TrySend(Token{}) {
		t.metrics.IncCounter(metrics.TriggerDropped)
	}
}
