package matcher

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/example/ride-ops/internal/geo"
	"github.com/example/ride-ops/internal/models"
	"github.com/example/ride-ops/internal/observability"
	"github.com/example/ride-ops/internal/polyline"
	"github.com/example/ride-ops/internal/routing"
	"github.com/example/ride-ops/internal/storage"
)

// Store is the subset of storage the matcher reads and writes.
type Store interface {
	ListTrips(ctx context.Context, f storage.TripFilter) ([]models.Trip, error)
	GetTrip(ctx context.Context, id string) (*models.Trip, error)
	GetRequest(ctx context.Context, id string) (*models.SiteTripRequest, error)
	SaveScan(ctx context.Context, r *models.SiteTripRequest) error
}

type Service struct {
	Geo     geo.Geo
	Store   Store
	Routing routing.Client // optional; fills missing request geometry
	RadiusM float64
	TopN    int
	Logger  *slog.Logger
}

func (s *Service) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

// Scan finds candidate trips for a site request and stores the result.
// Missing coordinates are estimated from the city gazetteer and missing
// geometry is fetched from the routing engine when one is configured.
func (s *Service) Scan(ctx context.Context, requestID string) (*models.SiteTripRequest, error) {
	start := time.Now()
	defer func() { observability.MatchScanLatency.Observe(time.Since(start).Seconds()) }()

	r, err := s.Store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	s.enrich(ctx, r)

	r.Matches = []models.Match{}
	if r.Origin != nil {
		if r.Matches, err = s.candidates(ctx, r); err != nil {
			return nil, err
		}
	}
	if err := s.Store.SaveScan(ctx, r); err != nil {
		return nil, err
	}
	observability.MatchScansTotal.Inc()
	s.logger().Info("match scan", "request_id", r.ID, "matches", len(r.Matches), "estimated", r.CoordsEstimated)
	return r, nil
}

func (s *Service) enrich(ctx context.Context, r *models.SiteTripRequest) {
	if r.Origin == nil {
		if c, ok := geo.LookupCity(r.OriginCity); ok {
			r.Origin = &c
			r.CoordsEstimated = true
		}
	}
	if r.Destination == nil {
		if c, ok := geo.LookupCity(r.DestinationCity); ok {
			r.Destination = &c
			r.CoordsEstimated = true
		}
	}
	if s.Routing == nil || r.Origin == nil || r.Destination == nil {
		return
	}
	if _, ok := polyline.Decode(r.Polyline); ok {
		return
	}
	geom, err := s.Routing.Route(ctx, *r.Origin, *r.Destination)
	if err != nil {
		s.logger().Warn("route lookup failed", "request_id", r.ID, "error", err)
		return
	}
	r.Polyline = geom
}

func (s *Service) candidates(ctx context.Context, r *models.SiteTripRequest) ([]models.Match, error) {
	topN := s.TopN
	if topN <= 0 {
		topN = 10
	}
	radius := s.RadiusM
	if radius <= 0 {
		radius = 15000
	}
	hits, err := s.Geo.Nearby(ctx, r.Origin.Lat, r.Origin.Lon, radius, topN*4)
	if err != nil {
		return nil, err
	}
	out := make([]models.Match, 0, len(hits))
	for _, h := range hits {
		t, err := s.Store.GetTrip(ctx, h.ID)
		if errors.Is(err, storage.ErrNotFound) {
			_ = s.Geo.Remove(ctx, h.ID)
			continue
		}
		if err != nil {
			return nil, err
		}
		if !t.Status.Open() || t.SeatsAvailable <= 0 {
			continue
		}
		if r.DesiredDate != nil && !sameDay(*r.DesiredDate, t.DepartureTime) {
			continue
		}
		m := models.Match{TripID: t.ID, OriginDistanceM: h.DistanceM}
		if r.Destination != nil && t.Destination != nil {
			m.DestinationDistanceM = geo.Distance(*r.Destination, *t.Destination)
			if m.DestinationDistanceM > radius {
				continue
			}
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].OriginDistanceM+out[i].DestinationDistanceM < out[j].OriginDistanceM+out[j].DestinationDistanceM
	})
	if len(out) > topN {
		out = out[:topN]
	}
	return out, nil
}

// Reindex writes the origin of every open trip into the geo index.
func (s *Service) Reindex(ctx context.Context) (int, error) {
	n := 0
	for _, st := range []models.TripStatus{models.TripPending, models.TripActive} {
		trips, err := s.Store.ListTrips(ctx, storage.TripFilter{Status: st})
		if err != nil {
			return n, err
		}
		for _, t := range trips {
			loc, ok := TripOrigin(t)
			if !ok {
				continue
			}
			if err := s.Geo.Upsert(ctx, geo.Point{ID: t.ID, Loc: loc}); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}

// TripOrigin is the trip's origin coordinate, falling back to the first
// point of its route.
func TripOrigin(t models.Trip) (models.Coord, bool) {
	if t.Origin != nil {
		return *t.Origin, true
	}
	if pts, ok := polyline.Decode(t.Polyline); ok {
		return pts[0], true
	}
	return models.Coord{}, false
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
