package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/example/ride-ops/internal/models"
	"github.com/example/ride-ops/internal/observability"
	"github.com/example/ride-ops/internal/polyline"
)

// Client returns an encoded route geometry between two points.
type Client interface {
	Route(ctx context.Context, from, to models.Coord) (string, error)
}

// OSRMClient performs route lookups against an OSRM HTTP server.
type OSRMClient struct {
	Endpoint string
	Client   *http.Client
}

func NewOSRMClient(endpoint string) *OSRMClient {
	return &OSRMClient{Endpoint: strings.TrimRight(endpoint, "/"), Client: &http.Client{Timeout: 4 * time.Second}}
}

// Route queries /route and returns the full overview geometry as a
// precision-5 encoded polyline.
func (o *OSRMClient) Route(ctx context.Context, from, to models.Coord) (geom string, err error) {
	defer func() { observability.ProviderCalls.WithLabelValues("osrm", observability.Outcome(err)).Inc() }()
	// OSRM route query: /route/v1/driving/{lon1},{lat1};{lon2},{lat2}
	url := fmt.Sprintf("%s/route/v1/driving/%.6f,%.6f;%.6f,%.6f?overview=full&geometries=polyline", o.Endpoint, from.Lon, from.Lat, to.Lon, to.Lat)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := o.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	var out struct {
		Routes []struct {
			Geometry string  `json:"geometry"`
			Distance float64 `json:"distance"`
		} `json:"routes"`
		Code string `json:"code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("osrm decode: %w", err)
	}
	if out.Code != "Ok" || len(out.Routes) == 0 {
		return "", fmt.Errorf("osrm no route: %v", out.Code)
	}
	geom = out.Routes[0].Geometry
	if _, ok := polyline.Decode(geom); !ok {
		return "", fmt.Errorf("osrm returned unusable geometry")
	}
	return geom, nil
}
