package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/kjstillabower/dogwalk-index/internal/client"
	"github.com/kjstillabower/dogwalk-index/internal/models"
	"github.com/kjstillabower/dogwalk-index/internal/observability"
)

// DefaultLocation is used when a request names no place, and is matched
// without a geocoding call when the query spells its name.
var DefaultLocation = models.ResolvedLocation{
	Name:      "Central Park, NYC",
	Latitude:  40.7812,
	Longitude: -73.9665,
}

// LocationResolver turns a LocationRequest into coordinates and a display name.
type LocationResolver struct {
	geocoder client.Geocoder
	fallback models.ResolvedLocation

	// collate.Collator keeps internal buffers and is not safe for concurrent use.
	mu       sync.Mutex
	collator *collate.Collator
}

// NewLocationResolver returns a resolver backed by geocoder with DefaultLocation as fallback.
func NewLocationResolver(geocoder client.Geocoder) *LocationResolver {
	return &LocationResolver{
		geocoder: geocoder,
		fallback: DefaultLocation,
		collator: collate.New(language.English, collate.IgnoreCase, collate.IgnoreDiacritics),
	}
}

// Resolve applies, in order: explicit coordinates, default-name match,
// geocoding of the query, then the default location.
func (r *LocationResolver) Resolve(ctx context.Context, req models.LocationRequest) (models.ResolvedLocation, error) {
	query := strings.TrimSpace(req.Query)

	if req.HasCoordinates() && finite(*req.Latitude) && finite(*req.Longitude) {
		name := query
		if name == "" {
			name = r.fallback.Name
		}
		return models.ResolvedLocation{Name: name, Latitude: *req.Latitude, Longitude: *req.Longitude}, nil
	}

	if query != "" && r.isDefaultName(query) {
		observability.DefaultLocationShortCircuitTotal.Inc()
		return r.fallback, nil
	}

	if query == "" {
		return r.fallback, nil
	}

	results, err := r.geocoder.Search(ctx, query)
	if err != nil {
		observability.LoggerFromContext(ctx).Warn("geocoding failed",
			zap.String("query", query),
			zap.String("category", string(client.CategorizeError(err))),
			zap.Error(err))
		return models.ResolvedLocation{}, fmt.Errorf("%w: geocode %q: %w", ErrResolution, query, err)
	}
	if len(results) == 0 {
		return models.ResolvedLocation{}, fmt.Errorf("%w: %q: %w", ErrResolution, query, client.ErrLocationNotFound)
	}

	top := results[0]
	name := top.Name
	if top.Admin1 != "" {
		name = top.Name + ", " + top.Admin1
	}
	return models.ResolvedLocation{Name: name, Latitude: top.Latitude, Longitude: top.Longitude}, nil
}

func (r *LocationResolver) isDefaultName(query string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.collator.CompareString(query, r.fallback.Name) == 0
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
