package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/kjstillabower/dogwalk-index/internal/models"
	"github.com/kjstillabower/dogwalk-index/internal/observability"
)

// DefaultResendURL is the Resend send-email endpoint.
const DefaultResendURL = "https://api.resend.com/emails"

var (
	// ErrMissingAPIKey is returned by Send when no Resend key is configured.
	ErrMissingAPIKey = errors.New("resend API key not configured")
	// ErrSendFailed wraps any delivery failure reported by Resend.
	ErrSendFailed = errors.New("email send failed")
)

// EmailSender delivers rendered emails.
type EmailSender interface {
	Send(ctx context.Context, msg models.EmailMessage) error
}

// ResendClient implements EmailSender against the Resend HTTP API.
type ResendClient struct {
	apiKey   string
	baseURL  string
	upstream *upstream
}

// NewResendClient returns a sender for baseURL (DefaultResendURL when empty).
// An empty apiKey is accepted; Send reports ErrMissingAPIKey instead, so the
// forecast API keeps working without email configured.
func NewResendClient(apiKey, baseURL string, opts Options) *ResendClient {
	if baseURL == "" {
		baseURL = DefaultResendURL
	}
	return &ResendClient{
		apiKey:   apiKey,
		baseURL:  baseURL,
		upstream: newUpstream(observability.UpstreamResend, opts),
	}
}

// Configured reports whether an API key is present.
func (c *ResendClient) Configured() bool {
	return c.apiKey != ""
}

// Send posts msg to Resend. Failures wrap ErrSendFailed together with the
// underlying upstream error.
func (c *ResendClient) Send(ctx context.Context, msg models.EmailMessage) error {
	if c.apiKey == "" {
		observability.EmailsSentTotal.WithLabelValues("failed").Inc()
		return ErrMissingAPIKey
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode email: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	if _, err := c.upstream.do(ctx, req); err != nil {
		observability.EmailsSentTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	observability.EmailsSentTotal.WithLabelValues("sent").Inc()
	return nil
}
