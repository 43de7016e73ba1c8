package pipeline

import "sync/atomic"

// Event is a connection lifecycle event delivered by the transport.
type Event int

const (
	// EventConnect signals that a central connected.
	EventConnect Event = iota
	// EventDisconnect signals that the central went away.
	EventDisconnect
)

func (e Event) String() string {
	switch e {
	case EventConnect:
		return "connect"
	case EventDisconnect:
		return "disconnect"
	default:
		return "unknown"
	}
}

// Gate holds the process-wide connected flag. Only lifecycle handling
// writes it; any goroutine may read it, including the trigger tick.
type Gate struct {
	connected atomic.Bool
}

// Set stores the flag and reports whether it changed.
func (g *Gate) Set(connected bool) bool {
	return g.connected.Swap(connected) != connected
}

// IsConnected never blocks.
func (g *Gate) IsConnected() bool {
	return g.connected.Load()
}
