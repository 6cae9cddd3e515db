package geocode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/safar-hail/service-maps/internal/domain/geo"
)

// directionsRequest is the JSON body of the directions POST. Coordinates go
// out in the service's native [lng, lat] order.
type directionsRequest struct {
	Coordinates [][2]float64 `json:"coordinates"`
}

// directionsResponse mirrors the GeoJSON directions response; only the path
// geometry of the first feature is consumed.
type directionsResponse struct {
	Features []struct {
		Geometry struct {
			Coordinates [][2]float64 `json:"coordinates"`
		} `json:"geometry"`
	} `json:"features"`
}

// FetchRoute requests a driving route between start and end and converts the
// returned path into (lat, lng) order. A response without a path feature
// yields ErrRouteNotFound; transport failures come back wrapped.
func (r *Resolver) FetchRoute(ctx context.Context, start, end geo.Coordinate) (geo.RouteGeometry, error) {
	payload, err := json.Marshal(directionsRequest{
		Coordinates: [][2]float64{start.ToLngLat(), end.ToLngLat()},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode directions request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.DirectionsBaseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build directions request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", r.cfg.APIKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("directions request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("directions request returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read directions response: %w", err)
	}

	var parsed directionsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse directions response: %w", err)
	}

	if len(parsed.Features) == 0 || len(parsed.Features[0].Geometry.Coordinates) == 0 {
		r.logger.Debug("directions returned no path feature",
			zap.Float64("start_lat", start.Lat),
			zap.Float64("start_lng", start.Lng),
			zap.Float64("end_lat", end.Lat),
			zap.Float64("end_lng", end.Lng),
		)
		return nil, ErrRouteNotFound
	}

	return geo.GeometryFromLngLat(parsed.Features[0].Geometry.Coordinates), nil
}
