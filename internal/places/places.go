// README: Destination-city canonicalization; Google Places lookup with local fallback.
package places

import (
	"context"
	"fmt"
	"strings"

	"googlemaps.github.io/maps"
)

// Canonicalizer turns free-form city input into its canonical stored form.
type Canonicalizer interface {
	CanonicalCity(ctx context.Context, raw string) (string, error)
}

// Normalize is the comparison form of a city name: trimmed, lower-cased,
// inner whitespace collapsed. The matching engine compares cities in this
// form, so normalization bugs surface as missed matches, not wrong ones.
func Normalize(city string) string {
	return strings.Join(strings.Fields(strings.ToLower(city)), " ")
}

// localCanonicalizer canonicalizes without any external lookup.
type localCanonicalizer struct{}

// NewLocal returns a Canonicalizer that only applies Normalize. Used when no
// Places API key is configured and as the fallback on API errors.
func NewLocal() Canonicalizer {
	return localCanonicalizer{}
}

func (localCanonicalizer) CanonicalCity(_ context.Context, raw string) (string, error) {
	return Normalize(raw), nil
}

// PlacesService resolves city names through the Google Places API so that
// spelling variants of the same city converge on one canonical form.
type PlacesService struct {
	client *maps.Client
}

func NewPlacesService(apiKey string) (*PlacesService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &PlacesService{client: client}, nil
}

// CanonicalCity resolves raw input to the API's primary city name. On lookup
// failure or no results it falls back to local normalization; create paths
// must not fail because the Places API is down.
func (s *PlacesService) CanonicalCity(ctx context.Context, raw string) (string, error) {
	r := &maps.TextSearchRequest{
		Query: raw,
		Type:  "locality",
	}
	resp, err := s.client.TextSearch(ctx, r)
	if err != nil || len(resp.Results) == 0 {
		return Normalize(raw), nil
	}
	return Normalize(resp.Results[0].Name), nil
}
