package http

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/kjstillabower/dogwalk-index/internal/observability"
)

// InFlight counts requests the router is currently serving. Shutdown drains
// it after the listener closes so forecast builds and digest sends started
// before the signal can finish.
type InFlight struct {
	active atomic.Int64
}

// Track counts each request for its whole duration and mirrors the count into
// the httpRequestsInFlight gauge.
func (f *InFlight) Track(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.active.Add(1)
		observability.HTTPRequestsInFlight.Inc()
		defer func() {
			observability.HTTPRequestsInFlight.Dec()
			f.active.Add(-1)
		}()
		next.ServeHTTP(w, r)
	})
}

// Count returns the number of requests being served.
func (f *InFlight) Count() int64 {
	return f.active.Load()
}

// Drain polls every interval until no request is in flight or ctx is done.
func (f *InFlight) Drain(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for f.Count() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
