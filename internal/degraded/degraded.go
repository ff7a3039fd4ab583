// Package degraded decides when upstream failures have pushed the service into a
// degraded state and drives recovery probes until Open-Meteo answers again.
package degraded

import (
	"time"

	"github.com/kjstillabower/dogwalk-index/internal/traffic"
)

// Breached reports whether upstream errors make up at least pct percent of
// forecast outcomes within the window. An empty window is never breached.
func Breached(window time.Duration, pct int) bool {
	if window <= 0 || pct <= 0 {
		return false
	}
	errors, total := traffic.ErrorRate(window)
	if total == 0 {
		return false
	}
	return float64(errors)*100/float64(total) >= float64(pct)
}
