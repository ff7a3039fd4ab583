// Package lifecycle holds process-wide state read by the health endpoint:
// when the service began serving and whether it is draining.
package lifecycle

import (
	"sync/atomic"
	"time"
)

var (
	startedAt    atomic.Int64 // unix nanoseconds; 0 until MarkStarted
	shuttingDown atomic.Bool
)

// MarkStarted records when the listener began accepting traffic. Idle
// reporting waits for a minimum lifespan measured from this instant.
func MarkStarted(t time.Time) {
	startedAt.Store(t.UnixNano())
}

// Uptime returns how long the service has been serving, or 0 before MarkStarted.
func Uptime() time.Duration {
	ns := startedAt.Load()
	if ns == 0 {
		return 0
	}
	return time.Since(time.Unix(0, ns))
}

// SetShuttingDown marks the process as draining. /health reports shutting-down while set.
func SetShuttingDown(v bool) {
	shuttingDown.Store(v)
}

// IsShuttingDown reports whether graceful shutdown has started.
func IsShuttingDown() bool {
	return shuttingDown.Load()
}

// Reset returns the process to its pre-start state.
func Reset() {
	startedAt.Store(0)
	shuttingDown.Store(false)
}
