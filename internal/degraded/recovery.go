package degraded

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/dogwalk-index/internal/traffic"
)

const defaultAttemptTimeout = 10 * time.Second

// ProbeFunc checks whether the upstream is reachable again. nil means recovered.
type ProbeFunc func(ctx context.Context) error

// Recovery retries a probe on a Fibonacci schedule after the service turns degraded.
// A successful probe clears the traffic windows so /health reports healthy again.
type Recovery struct {
	probe          ProbeFunc
	initial        time.Duration
	max            time.Duration
	attemptTimeout time.Duration
	logger         *zap.Logger

	notify  chan struct{}
	running atomic.Bool
	startMu sync.Mutex
	started bool
}

// NewRecovery returns a Recovery that probes after initial, 2x, 3x, 5x... initial, up to max.
func NewRecovery(probe ProbeFunc, initial, max time.Duration, logger *zap.Logger) *Recovery {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recovery{
		probe:          probe,
		initial:        initial,
		max:            max,
		attemptTimeout: defaultAttemptTimeout,
		logger:         logger,
		notify:         make(chan struct{}, 1),
	}
}

// Start runs the listener goroutine until ctx is done. Later calls are no-ops.
func (r *Recovery) Start(ctx context.Context) {
	r.startMu.Lock()
	defer r.startMu.Unlock()
	if r.started {
		return
	}
	r.started = true

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-r.notify:
				if r.running.Swap(true) {
					continue
				}
				go func() {
					defer r.running.Store(false)
					r.Run(ctx)
				}()
			}
		}
	}()
}

// Notify signals that the service is degraded. Non-blocking; a recovery already in
// progress absorbs the signal.
func (r *Recovery) Notify() {
	if r == nil {
		return
	}
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Running reports whether a recovery sequence is in progress.
func (r *Recovery) Running() bool {
	return r != nil && r.running.Load()
}

// Run executes one recovery sequence and reports whether the probe succeeded.
func (r *Recovery) Run(ctx context.Context) bool {
	delays := fibDelays(r.initial, r.max)
	if len(delays) == 0 {
		return false
	}
	for i, d := range delays {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(d):
		}

		attemptCtx, cancel := context.WithTimeout(ctx, r.attemptTimeout)
		err := r.probe(attemptCtx)
		cancel()
		if err == nil {
			traffic.Reset()
			r.logger.Info("recovered from degraded state", zap.Int("attempt", i+1))
			return true
		}
		r.logger.Warn("recovery probe failed",
			zap.Int("attempt", i+1),
			zap.Duration("delay", d),
			zap.Error(err))
	}
	r.logger.Error("recovery attempts exhausted; staying degraded until next notification",
		zap.Int("attempts", len(delays)))
	return false
}

func fibDelays(initial, max time.Duration) []time.Duration {
	if initial <= 0 || max < initial {
		return nil
	}
	var out []time.Duration
	for a, b := int64(1), int64(2); ; a, b = b, a+b {
		d := time.Duration(a) * initial
		if d > max {
			break
		}
		out = append(out, d)
	}
	return out
}
