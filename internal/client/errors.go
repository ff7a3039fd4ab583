package client

import "errors"

var (
	ErrInvalidAPIKey    = errors.New("invalid API key")
	ErrLocationNotFound = errors.New("location not found")
	ErrUpstreamFailure  = errors.New("upstream failure")
	ErrRateLimited      = errors.New("rate limited")
	ErrInvalidPayload   = errors.New("invalid upstream payload")
	ErrCircuitOpen      = errors.New("circuit breaker open")
)
