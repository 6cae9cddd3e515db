package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/safar-hail/service-maps/internal/config"
	"github.com/safar-hail/service-maps/internal/domain/geo"
)

var (
	// ErrNoMatch is returned when the search text is empty or the geocoding
	// service has no feature for it.
	ErrNoMatch = errors.New("no matching location")

	// ErrRouteNotFound is returned when the directions service has no path
	// between the requested coordinates.
	ErrRouteNotFound = errors.New("no route between locations")
)

const suggestLimit = 5

// Resolver is the client for the external geocoding and directions services.
// Every operation is single-attempt with a bounded timeout: retry and
// backoff belong to the caller, not here.
type Resolver struct {
	cfg    config.GeocodeConfig
	client *http.Client
	logger *zap.Logger
}

// NewResolver creates a Resolver with the configured request timeout.
func NewResolver(cfg config.GeocodeConfig, logger *zap.Logger) *Resolver {
	return &Resolver{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// searchFeature mirrors one GeoJSON feature of the search response. The
// service's native coordinate order is [lng, lat].
type searchFeature struct {
	Geometry struct {
		Coordinates [2]float64 `json:"coordinates"`
	} `json:"geometry"`
	Properties struct {
		Name        string `json:"name"`
		DisplayName string `json:"display_name"`
		Address     struct {
			Building      string `json:"building"`
			Neighbourhood string `json:"neighbourhood"`
			Suburb        string `json:"suburb"`
			Village       string `json:"village"`
			City          string `json:"city"`
			Town          string `json:"town"`
			Road          string `json:"road"`
		} `json:"address"`
	} `json:"properties"`
}

type searchResponse struct {
	Features []searchFeature `json:"features"`
}

// ResolveAddress geocodes free-text input to a coordinate, taking the first
// feature only. Empty or whitespace-only input short-circuits to ErrNoMatch
// without a network round trip.
func (r *Resolver) ResolveAddress(ctx context.Context, text string) (geo.Coordinate, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return geo.Coordinate{}, ErrNoMatch
	}

	resp, err := r.search(ctx, text, 1)
	if err != nil {
		return geo.Coordinate{}, err
	}
	if len(resp.Features) == 0 {
		r.logger.Debug("geocode returned no features", zap.String("query", text))
		return geo.Coordinate{}, ErrNoMatch
	}

	return geo.FromLngLat(resp.Features[0].Geometry.Coordinates), nil
}

// Suggest performs a live search for the given input and builds display
// suggestions. Empty input short-circuits to an empty result.
func (r *Resolver) Suggest(ctx context.Context, text string) ([]geo.Suggestion, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return []geo.Suggestion{}, nil
	}

	resp, err := r.search(ctx, text, suggestLimit)
	if err != nil {
		return nil, err
	}

	suggestions := make([]geo.Suggestion, 0, len(resp.Features))
	for _, f := range resp.Features {
		coord := geo.FromLngLat(f.Geometry.Coordinates)
		suggestions = append(suggestions, geo.Suggestion{
			Title: shortTitle(f),
			Full:  f.Properties.DisplayName,
			Lat:   coord.Lat,
			Lng:   coord.Lng,
		})
	}
	return suggestions, nil
}

// shortTitle picks the most specific available label for a feature, falling
// back through a fixed priority list and finally the first comma-segment of
// the full display name.
func shortTitle(f searchFeature) string {
	addr := f.Properties.Address
	for _, candidate := range []string{
		f.Properties.Name,
		addr.Building,
		addr.Neighbourhood,
		addr.Suburb,
		addr.Village,
		addr.City,
		addr.Town,
		addr.Road,
	} {
		if candidate != "" {
			return candidate
		}
	}
	if segment, _, found := strings.Cut(f.Properties.DisplayName, ","); found {
		return strings.TrimSpace(segment)
	}
	return f.Properties.DisplayName
}

func (r *Resolver) search(ctx context.Context, text string, limit int) (*searchResponse, error) {
	query := url.Values{}
	query.Set("q", text)
	query.Set("format", "geojson")
	query.Set("addressdetails", "1")
	query.Set("limit", fmt.Sprintf("%d", limit))

	endpoint := fmt.Sprintf("%s/search?%s", r.cfg.SearchBaseURL, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search request returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read search response: %w", err)
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}
	return &parsed, nil
}
