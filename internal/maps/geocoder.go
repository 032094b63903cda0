// README: Best-effort reverse geocoding through the Google Maps Geocoding API.
package maps

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"googlemaps.github.io/maps"
)

const lookupTimeout = 3 * time.Second

type reverseGeocoder interface {
	ReverseGeocode(ctx context.Context, r *maps.GeocodingRequest) ([]maps.GeocodingResult, error)
}

// Geocoder turns coordinates into a display address. It never fails: any lookup
// problem yields the coordinates formatted as "lat, lng".
type Geocoder struct {
	client   reverseGeocoder
	language string
}

// NewGeocoder creates a Geocoder with the given API key.
func NewGeocoder(apiKey, language string) (*Geocoder, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &Geocoder{client: client, language: language}, nil
}

// FallbackAddress is the address used when no geocoder result is available.
func FallbackAddress(lat, lng float64) string {
	return fmt.Sprintf("%.6f, %.6f", lat, lng)
}

func (g *Geocoder) Resolve(ctx context.Context, lat, lng float64) string {
	if g == nil || g.client == nil {
		return FallbackAddress(lat, lng)
	}
	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	results, err := g.client.ReverseGeocode(ctx, &maps.GeocodingRequest{
		LatLng:   &maps.LatLng{Lat: lat, Lng: lng},
		Language: g.language,
	})
	if err != nil {
		log.Printf("reverse geocode %.6f,%.6f failed: %v", lat, lng, err)
		return FallbackAddress(lat, lng)
	}
	for _, r := range results {
		if addr := strings.TrimSpace(r.FormattedAddress); addr != "" {
			return addr
		}
	}
	return FallbackAddress(lat, lng)
}
