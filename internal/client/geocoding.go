package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/kjstillabower/dogwalk-index/internal/observability"
)

// DefaultGeocodingURL is the Open-Meteo geocoding search endpoint.
const DefaultGeocodingURL = "https://geocoding-api.open-meteo.com/v1/search"

// GeocodeResult is one place returned by a geocoding search.
type GeocodeResult struct {
	Name      string  `json:"name"`
	Admin1    string  `json:"admin1,omitempty"`
	Country   string  `json:"country,omitempty"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timezone  string  `json:"timezone,omitempty"`
}

// Geocoder looks up places by name. An empty result slice with a nil error means no match.
type Geocoder interface {
	Search(ctx context.Context, name string) ([]GeocodeResult, error)
}

// OpenMeteoGeocoder implements Geocoder against the Open-Meteo geocoding API.
type OpenMeteoGeocoder struct {
	baseURL  string
	upstream *upstream
}

// NewOpenMeteoGeocoder returns a geocoder for baseURL (DefaultGeocodingURL when empty).
func NewOpenMeteoGeocoder(baseURL string, opts Options) *OpenMeteoGeocoder {
	if baseURL == "" {
		baseURL = DefaultGeocodingURL
	}
	return &OpenMeteoGeocoder{
		baseURL:  baseURL,
		upstream: newUpstream(observability.UpstreamGeocoding, opts),
	}
}

type geocodeResponse struct {
	Results []GeocodeResult `json:"results"`
}

// Search asks for the single best match for name in English.
func (g *OpenMeteoGeocoder) Search(ctx context.Context, name string) ([]GeocodeResult, error) {
	req, err := g.buildRequest(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	body, err := g.upstream.do(ctx, req)
	if err != nil {
		return nil, err
	}

	var resp geocodeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: parse geocoding response: %v", ErrInvalidPayload, err)
	}
	return resp.Results, nil
}

func (g *OpenMeteoGeocoder) buildRequest(ctx context.Context, name string) (*http.Request, error) {
	u, err := url.Parse(g.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid geocoding URL: %w", err)
	}
	params := url.Values{}
	params.Set("name", name)
	params.Set("count", "1")
	params.Set("language", "en")
	params.Set("format", "json")
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}
