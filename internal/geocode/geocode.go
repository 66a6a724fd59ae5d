// Package geocode resolves coordinates to human-readable addresses.
// Resolution is strictly best-effort; callers substitute the coordinate
// fallback string and move on when it fails.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Reverser turns a coordinate pair into an address line.
type Reverser interface {
	Reverse(ctx context.Context, lat, lon float64) (string, error)
}

// FallbackAddress formats coordinates the way the server expects when no
// resolved address is available. Used at send time only, never persisted
// as a resolved address.
func FallbackAddress(lat, lon float64) string {
	return fmt.Sprintf("Coordenadas: %.6f, %.6f", lat, lon)
}

// HTTPReverser queries a Nominatim-compatible reverse geocoding endpoint.
type HTTPReverser struct {
	base      string
	userAgent string
	client    *http.Client
}

// NewHTTPReverser constructs a reverser against base (e.g. a self-hosted
// Nominatim instance). The user agent is required by public instances.
func NewHTTPReverser(base, userAgent string) *HTTPReverser {
	return &HTTPReverser{
		base:      base,
		userAgent: userAgent,
		client:    &http.Client{Timeout: 5 * time.Second},
	}
}

// Reverse resolves one coordinate pair to its display name.
func (r *HTTPReverser) Reverse(ctx context.Context, lat, lon float64) (string, error) {
	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", fmt.Sprintf("%.7f", lat))
	q.Set("lon", fmt.Sprintf("%.7f", lon))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.base+"/reverse?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("reverse geocode: status %d", resp.StatusCode)
	}

	var body struct {
		DisplayName string `json:"display_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	if body.DisplayName == "" {
		return "", fmt.Errorf("reverse geocode: empty result")
	}
	return body.DisplayName, nil
}

// Noop is a reverser that always reports no address, for offline agents.
type Noop struct{}

// Reverse always fails so callers use the coordinate fallback.
func (Noop) Reverse(context.Context, float64, float64) (string, error) {
	return "", fmt.Errorf("geocoding disabled")
}
