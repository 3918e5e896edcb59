package matcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ride-ops/internal/geo"
	"github.com/example/ride-ops/internal/models"
	"github.com/example/ride-ops/internal/polyline"
	"github.com/example/ride-ops/internal/storage"
)

var (
	dakar = models.Coord{Lat: 14.7167, Lon: -17.4677}
	thies = models.Coord{Lat: 14.7910, Lon: -16.9359}
	touba = models.Coord{Lat: 14.8500, Lon: -15.8833}
	day   = time.Date(2026, 10, 20, 7, 30, 0, 0, time.UTC)
)

func coordPtr(c models.Coord) *models.Coord { return &c }

type fakeRouting struct {
	geom string
	err  error
}

func (f *fakeRouting) Route(ctx context.Context, from, to models.Coord) (string, error) {
	return f.geom, f.err
}

func newService(t *testing.T, store *storage.MemoryStore) *Service {
	t.Helper()
	s := &Service{Geo: geo.NewIndex(), Store: store, RadiusM: 10000, TopN: 5}
	_, err := s.Reindex(context.Background())
	require.NoError(t, err)
	return s
}

func TestScanFiltersAndOrdersCandidates(t *testing.T) {
	store := storage.NewMemoryStore()
	store.PutTrip(models.Trip{ID: "best", Status: models.TripPending, SeatsAvailable: 2, DepartureTime: day,
		Origin: coordPtr(dakar), Destination: coordPtr(thies)})
	store.PutTrip(models.Trip{ID: "farther", Status: models.TripActive, SeatsAvailable: 1, DepartureTime: day,
		Origin: coordPtr(models.Coord{Lat: 14.74, Lon: -17.44}), Destination: coordPtr(thies)})
	store.PutTrip(models.Trip{ID: "full", Status: models.TripPending, SeatsAvailable: 0, DepartureTime: day,
		Origin: coordPtr(dakar), Destination: coordPtr(thies)})
	store.PutTrip(models.Trip{ID: "wrong-way", Status: models.TripPending, SeatsAvailable: 3, DepartureTime: day,
		Origin: coordPtr(dakar), Destination: coordPtr(touba)})
	store.PutTrip(models.Trip{ID: "other-day", Status: models.TripPending, SeatsAvailable: 3, DepartureTime: day.AddDate(0, 0, 1),
		Origin: coordPtr(dakar), Destination: coordPtr(thies)})
	desired := time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC)
	store.PutRequest(models.SiteTripRequest{ID: "r1", OriginCity: "Dakar", DestinationCity: "Thiès",
		Origin: coordPtr(dakar), Destination: coordPtr(thies), DesiredDate: &desired, Status: models.RequestValidated})

	s := newService(t, store)
	r, err := s.Scan(context.Background(), "r1")
	require.NoError(t, err)
	require.Len(t, r.Matches, 2)
	assert.Equal(t, "best", r.Matches[0].TripID)
	assert.Equal(t, "farther", r.Matches[1].TripID)

	saved, err := store.GetRequest(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, r.Matches, saved.Matches)
}

func TestScanEstimatesCoordinatesAndFetchesGeometry(t *testing.T) {
	store := storage.NewMemoryStore()
	store.PutTrip(models.Trip{ID: "t1", Status: models.TripPending, SeatsAvailable: 1, DepartureTime: day,
		Polyline: polyline.Encode([]models.Coord{dakar, thies})})
	store.PutRequest(models.SiteTripRequest{ID: "r1", OriginCity: "Dakar", DestinationCity: "Thies", Status: models.RequestPending})

	s := newService(t, store)
	geom := polyline.Encode([]models.Coord{dakar, thies})
	s.Routing = &fakeRouting{geom: geom}

	r, err := s.Scan(context.Background(), "r1")
	require.NoError(t, err)
	assert.True(t, r.CoordsEstimated)
	require.NotNil(t, r.Origin)
	assert.Equal(t, dakar, *r.Origin)
	assert.Equal(t, geom, r.Polyline)
	require.Len(t, r.Matches, 1, "trip origin falls back to the first route point")
	assert.Equal(t, "t1", r.Matches[0].TripID)
}

func TestScanRoutingFailureIsNotFatal(t *testing.T) {
	store := storage.NewMemoryStore()
	store.PutRequest(models.SiteTripRequest{ID: "r1", Origin: coordPtr(dakar), Destination: coordPtr(thies)})
	s := newService(t, store)
	s.Routing = &fakeRouting{err: errors.New("osrm down")}

	r, err := s.Scan(context.Background(), "r1")
	require.NoError(t, err)
	assert.Empty(t, r.Polyline)
	assert.Empty(t, r.Matches)
}

func TestScanUnknownCityLeavesNoMatches(t *testing.T) {
	store := storage.NewMemoryStore()
	store.PutTrip(models.Trip{ID: "t1", Status: models.TripPending, SeatsAvailable: 1, Origin: coordPtr(dakar)})
	store.PutRequest(models.SiteTripRequest{ID: "r1", OriginCity: "Atlantis", DestinationCity: "Thies"})
	s := newService(t, store)

	r, err := s.Scan(context.Background(), "r1")
	require.NoError(t, err)
	assert.Nil(t, r.Origin)
	assert.NotNil(t, r.Matches)
	assert.Empty(t, r.Matches)
}

func TestScanMissingRequest(t *testing.T) {
	s := newService(t, storage.NewMemoryStore())
	_, err := s.Scan(context.Background(), "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
