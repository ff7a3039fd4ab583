// Package scheduler runs the recurring digest email.
package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/kjstillabower/dogwalk-index/internal/models"
	"github.com/kjstillabower/dogwalk-index/internal/observability"
)

const runTimeout = 30 * time.Second

// DigestSender builds a forecast and emails it to recipient.
type DigestSender interface {
	Send(ctx context.Context, recipient string, req models.LocationRequest) (models.ForecastResponse, error)
}

// Scheduler periodically sends the digest to one recipient.
type Scheduler struct {
	scheduler *gocron.Scheduler
	digest    DigestSender
	recipient string
	request   models.LocationRequest
	interval  time.Duration
	logger    *zap.Logger
}

// New creates a Scheduler. Nothing runs until Start.
func New(digest DigestSender, recipient string, req models.LocationRequest, interval time.Duration, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		digest:    digest,
		recipient: recipient,
		request:   req,
		interval:  interval,
		logger:    logger,
	}
}

// Start schedules the digest every interval, first run one interval from now.
// With no recipient the job is not scheduled.
func (s *Scheduler) Start() error {
	if s.recipient == "" {
		observability.DigestRunsTotal.WithLabelValues("skipped").Inc()
		s.logger.Warn("scheduler: no digest recipient configured; nothing to schedule")
		return nil
	}
	interval := s.interval
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	_, err := s.scheduler.Every(interval).WaitForSchedule().SingletonMode().Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()
		_ = s.RunOnce(ctx)
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	s.logger.Info("scheduler: digest scheduled",
		zap.Duration("interval", interval),
		zap.String("location", s.request.Query))
	return nil
}

// RunOnce sends one digest. Failures are logged and counted; the error is
// returned for callers that want it.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	ctx = observability.WithLogger(ctx, s.logger.With(zap.String("job", "digest")))
	forecast, err := s.digest.Send(ctx, s.recipient, s.request)
	if err != nil {
		observability.DigestRunsTotal.WithLabelValues("error").Inc()
		s.logger.Error("scheduler: digest run failed", zap.Error(err))
		return err
	}
	observability.DigestRunsTotal.WithLabelValues("success").Inc()
	s.logger.Info("scheduler: digest run completed", zap.String("location", forecast.Location.Name))
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
