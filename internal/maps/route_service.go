package maps

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"googlemaps.github.io/maps"

	"shopd/internal/types"
)

// maxOrigins is the Distance Matrix per-request origin limit.
const maxOrigins = 25

var ErrNoRoute = errors.New("no route found")

// RouteService estimates road travel times with the Google Distance Matrix API.
type RouteService struct {
	client *maps.Client
	mode   maps.Mode
}

// NewRouteService creates a new RouteService with the given API Key.
func NewRouteService(apiKey string) (*RouteService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &RouteService{client: client, mode: maps.TravelModeDriving}, nil
}

// TravelTimes returns one duration per origin to dest. Elements the API could
// not route come back as a negative duration so callers can keep their own
// estimate for that origin.
func (s *RouteService) TravelTimes(ctx context.Context, origins []types.Point, dest types.Point) ([]time.Duration, error) {
	if len(origins) == 0 {
		return nil, nil
	}
	if len(origins) > maxOrigins {
		return nil, fmt.Errorf("too many origins: %d > %d", len(origins), maxOrigins)
	}
	req := &maps.DistanceMatrixRequest{
		Origins:       make([]string, len(origins)),
		Destinations:  []string{latLng(dest)},
		Mode:          s.mode,
		DepartureTime: "now",
	}
	for i, o := range origins {
		req.Origins[i] = latLng(o)
	}

	resp, err := s.client.DistanceMatrix(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("maps api error: %w", err)
	}
	return durationsFrom(resp, len(origins))
}

// GetTravelEstimate returns the duration and distance string for a single
// trip. It assumes driving mode.
func (s *RouteService) GetTravelEstimate(ctx context.Context, origin, destination types.Point) (time.Duration, string, error) {
	r := &maps.DirectionsRequest{
		Origin:      latLng(origin),
		Destination: latLng(destination),
		Mode:        s.mode,
	}

	routes, _, err := s.client.Directions(ctx, r)
	if err != nil {
		return 0, "", fmt.Errorf("maps api error: %w", err)
	}

	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return 0, "", ErrNoRoute
	}

	leg := routes[0].Legs[0]
	return leg.Duration, leg.Distance.HumanReadable, nil
}

func durationsFrom(resp *maps.DistanceMatrixResponse, n int) ([]time.Duration, error) {
	if resp == nil || len(resp.Rows) != n {
		return nil, fmt.Errorf("distance matrix: unexpected row count")
	}
	out := make([]time.Duration, n)
	for i, row := range resp.Rows {
		out[i] = -1
		if len(row.Elements) == 0 || row.Elements[0] == nil {
			continue
		}
		el := row.Elements[0]
		if el.Status != "OK" {
			continue
		}
		if el.DurationInTraffic > 0 {
			out[i] = el.DurationInTraffic
		} else {
			out[i] = el.Duration
		}
	}
	return out, nil
}

func latLng(p types.Point) string {
	return strconv.FormatFloat(p.Lat, 'f', 6, 64) + "," + strconv.FormatFloat(p.Lng, 'f', 6, 64)
}
