package email

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kjstillabower/dogwalk-index/internal/client"
	"github.com/kjstillabower/dogwalk-index/internal/models"
	"github.com/kjstillabower/dogwalk-index/internal/observability"
)

// DefaultFrom is the sender used when none is configured.
const DefaultFrom = "Dogwalk Index <dogwalk-index@updates.codex.app>"

// ForecastBuilder is the part of the forecast service a digest needs.
type ForecastBuilder interface {
	BuildForecast(ctx context.Context, req models.LocationRequest) (models.ForecastResponse, error)
}

// Digest builds a forecast and emails it.
type Digest struct {
	forecasts ForecastBuilder
	sender    client.EmailSender
	from      string
}

// NewDigest returns a Digest sending from from (DefaultFrom when empty).
func NewDigest(forecasts ForecastBuilder, sender client.EmailSender, from string) *Digest {
	if from == "" {
		from = DefaultFrom
	}
	return &Digest{forecasts: forecasts, sender: sender, from: from}
}

// Send builds a forecast for req and delivers it to recipient. Forecast errors
// are returned unchanged; delivery errors come from the sender.
func (d *Digest) Send(ctx context.Context, recipient string, req models.LocationRequest) (models.ForecastResponse, error) {
	logger := observability.LoggerFromContext(ctx)

	forecast, err := d.forecasts.BuildForecast(ctx, req)
	if err != nil {
		return models.ForecastResponse{}, err
	}

	html, err := Render(forecast)
	if err != nil {
		return models.ForecastResponse{}, err
	}

	msg := models.EmailMessage{
		From:    d.from,
		To:      []string{recipient},
		Subject: Subject(forecast.Location.Name),
		HTML:    html,
	}
	if err := d.sender.Send(ctx, msg); err != nil {
		logger.Warn("digest delivery failed",
			zap.String("location", forecast.Location.Name),
			zap.String("category", string(client.CategorizeError(err))),
			zap.Error(err))
		return models.ForecastResponse{}, fmt.Errorf("deliver digest: %w", err)
	}

	logger.Info("digest sent", zap.String("location", forecast.Location.Name))
	return forecast, nil
}
