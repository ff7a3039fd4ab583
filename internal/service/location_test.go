package service

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/kjstillabower/dogwalk-index/internal/client"
	"github.com/kjstillabower/dogwalk-index/internal/models"
)

func ptr(f float64) *float64 { return &f }

// TestLocationResolver_DefaultNameSkipsGeocoding verifies that spelling the default
// location's name, in any case or accenting, resolves without a network call.
func TestLocationResolver_DefaultNameSkipsGeocoding(t *testing.T) {
	for _, q := range []string{"Central Park, NYC", "  central park, nyc ", "CENTRAL PARK, NYC", "Céntral Pärk, NYC"} {
		t.Run(q, func(t *testing.T) {
			geo := &mockGeocoder{err: errors.New("must not be called")}
			r := NewLocationResolver(geo)

			got, err := r.Resolve(context.Background(), models.LocationRequest{Query: q})
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if got != DefaultLocation {
				t.Errorf("Resolve() = %+v, want default", got)
			}
			if geo.calls != 0 {
				t.Errorf("geocoder calls = %d, want 0", geo.calls)
			}
		})
	}
}

func TestLocationResolver_Resolve(t *testing.T) {
	tests := []struct {
		name      string
		req       models.LocationRequest
		results   []client.GeocodeResult
		want      models.ResolvedLocation
		wantCalls int
	}{
		{
			name: "coordinates without query use default name",
			req:  models.LocationRequest{Latitude: ptr(51.5), Longitude: ptr(-0.12)},
			want: models.ResolvedLocation{Name: "Central Park, NYC", Latitude: 51.5, Longitude: -0.12},
		},
		{
			name: "coordinates win over query",
			req:  models.LocationRequest{Query: " Home ", Latitude: ptr(0), Longitude: ptr(0)},
			want: models.ResolvedLocation{Name: "Home", Latitude: 0, Longitude: 0},
		},
		{
			name:      "only latitude falls through to geocoding",
			req:       models.LocationRequest{Query: "Oslo", Latitude: ptr(1)},
			results:   []client.GeocodeResult{{Name: "Oslo", Latitude: 59.91, Longitude: 10.75}},
			want:      models.ResolvedLocation{Name: "Oslo", Latitude: 59.91, Longitude: 10.75},
			wantCalls: 1,
		},
		{
			name:      "non-finite coordinates ignored",
			req:       models.LocationRequest{Query: "Oslo", Latitude: ptr(math.NaN()), Longitude: ptr(2)},
			results:   []client.GeocodeResult{{Name: "Oslo", Latitude: 59.91, Longitude: 10.75}},
			want:      models.ResolvedLocation{Name: "Oslo", Latitude: 59.91, Longitude: 10.75},
			wantCalls: 1,
		},
		{
			name:      "admin region appended",
			req:       models.LocationRequest{Query: "Springfield"},
			results:   []client.GeocodeResult{{Name: "Springfield", Admin1: "Illinois", Latitude: 39.8, Longitude: -89.64}},
			want:      models.ResolvedLocation{Name: "Springfield, Illinois", Latitude: 39.8, Longitude: -89.64},
			wantCalls: 1,
		},
		{
			name: "empty query uses default",
			req:  models.LocationRequest{Query: "   "},
			want: DefaultLocation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			geo := &mockGeocoder{results: tt.results}
			r := NewLocationResolver(geo)
			got, err := r.Resolve(context.Background(), tt.req)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Resolve() = %+v, want %+v", got, tt.want)
			}
			if geo.calls != tt.wantCalls {
				t.Errorf("geocoder calls = %d, want %d", geo.calls, tt.wantCalls)
			}
		})
	}
}

func TestLocationResolver_NoMatch(t *testing.T) {
	r := NewLocationResolver(&mockGeocoder{})
	_, err := r.Resolve(context.Background(), models.LocationRequest{Query: "Atlantis"})
	if !errors.Is(err, ErrResolution) || !errors.Is(err, client.ErrLocationNotFound) {
		t.Errorf("Resolve() error = %v, want ErrResolution wrapping ErrLocationNotFound", err)
	}
}
