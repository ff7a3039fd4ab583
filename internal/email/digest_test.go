package email

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/dogwalk-index/internal/client"
	"github.com/kjstillabower/dogwalk-index/internal/models"
	"github.com/kjstillabower/dogwalk-index/internal/observability"
)

type fakeBuilder struct {
	resp    models.ForecastResponse
	err     error
	lastReq models.LocationRequest
}

func (f *fakeBuilder) BuildForecast(ctx context.Context, req models.LocationRequest) (models.ForecastResponse, error) {
	f.lastReq = req
	return f.resp, f.err
}

type fakeSender struct {
	sent []models.EmailMessage
	err  error
}

func (f *fakeSender) Send(ctx context.Context, msg models.EmailMessage) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func TestDigest_Send(t *testing.T) {
	builder := &fakeBuilder{resp: sampleForecast()}
	sender := &fakeSender{}
	d := NewDigest(builder, sender, "")

	req := models.LocationRequest{Query: "Central Park, NYC"}
	got, err := d.Send(context.Background(), "walker@example.com", req)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if got.Location.Name != "Central Park, NYC" {
		t.Errorf("forecast location = %q", got.Location.Name)
	}
	if builder.lastReq.Query != req.Query {
		t.Errorf("built for %q", builder.lastReq.Query)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sender.sent))
	}
	msg := sender.sent[0]
	if msg.From != DefaultFrom {
		t.Errorf("From = %q", msg.From)
	}
	if len(msg.To) != 1 || msg.To[0] != "walker@example.com" {
		t.Errorf("To = %v", msg.To)
	}
	if msg.Subject != "Dogwalk suitability in Central Park, NYC" {
		t.Errorf("Subject = %q", msg.Subject)
	}
	if !strings.Contains(msg.HTML, "Best window") {
		t.Error("HTML missing best window")
	}
}

func TestDigest_Send_CustomFrom(t *testing.T) {
	sender := &fakeSender{}
	d := NewDigest(&fakeBuilder{resp: sampleForecast()}, sender, "Walks <walks@example.com>")
	if _, err := d.Send(context.Background(), "a@b.co", models.LocationRequest{}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if sender.sent[0].From != "Walks <walks@example.com>" {
		t.Errorf("From = %q", sender.sent[0].From)
	}
}

func TestDigest_Send_ForecastErrorSkipsDelivery(t *testing.T) {
	buildErr := errors.New("location resolution failed")
	sender := &fakeSender{}
	d := NewDigest(&fakeBuilder{err: buildErr}, sender, "")

	_, err := d.Send(context.Background(), "a@b.co", models.LocationRequest{Query: "Atlantis"})
	if !errors.Is(err, buildErr) {
		t.Errorf("Send() error = %v, want %v", err, buildErr)
	}
	if len(sender.sent) != 0 {
		t.Error("email sent despite forecast failure")
	}
}

func TestDigest_Send_DeliveryErrorIsLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	ctx := observability.WithLogger(context.Background(), zap.New(core))

	sender := &fakeSender{err: client.ErrSendFailed}
	d := NewDigest(&fakeBuilder{resp: sampleForecast()}, sender, "")

	_, err := d.Send(ctx, "a@b.co", models.LocationRequest{})
	if !errors.Is(err, client.ErrSendFailed) {
		t.Fatalf("Send() error = %v, want ErrSendFailed", err)
	}
	if logs.FilterMessage("digest delivery failed").Len() != 1 {
		t.Errorf("expected one delivery failure log, got %d", logs.Len())
	}
}
