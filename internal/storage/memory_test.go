package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ride-ops/internal/models"
)

func TestMemoryStoreListTripsFiltersAndOrders(t *testing.T) {
	m := NewMemoryStore()
	base := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	m.PutTrip(models.Trip{ID: "late", Status: models.TripPending, DepartureTime: base.Add(2 * time.Hour), Driver: models.Person{ID: "d1"}})
	m.PutTrip(models.Trip{ID: "early", Status: models.TripPending, DepartureTime: base, Driver: models.Person{ID: "d2"},
		Passengers: []models.Person{{ID: "p1"}}})
	m.PutTrip(models.Trip{ID: "done", Status: models.TripCompleted, DepartureTime: base, Driver: models.Person{ID: "d1"}})

	ctx := context.Background()
	trips, err := m.ListTrips(ctx, TripFilter{Status: models.TripPending})
	require.NoError(t, err)
	require.Len(t, trips, 2)
	assert.Equal(t, "early", trips[0].ID)
	assert.Nil(t, trips[0].Passengers, "list results carry no passengers")

	trips, err = m.ListTrips(ctx, TripFilter{DriverID: "d1"})
	require.NoError(t, err)
	assert.Len(t, trips, 2)

	p, err := m.TripPassengers(ctx, "early")
	require.NoError(t, err)
	assert.Equal(t, []models.Person{{ID: "p1"}}, p)

	_, err = m.GetTrip(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreSaveScanReplacesMatches(t *testing.T) {
	m := NewMemoryStore()
	m.PutRequest(models.SiteTripRequest{ID: "r1", Status: models.RequestPending, Matches: []models.Match{{TripID: "old"}}})
	ctx := context.Background()

	r, err := m.GetRequest(ctx, "r1")
	require.NoError(t, err)
	r.Origin = &models.Coord{Lat: 14.7167, Lon: -17.4677}
	r.CoordsEstimated = true
	r.Matches = []models.Match{{TripID: "t1", OriginDistanceM: 120}}
	require.NoError(t, m.SaveScan(ctx, r))

	got, err := m.GetRequest(ctx, "r1")
	require.NoError(t, err)
	assert.True(t, got.CoordsEstimated)
	assert.Equal(t, []models.Match{{TripID: "t1", OriginDistanceM: 120}}, got.Matches)

	require.NoError(t, m.UpdateRequestStatus(ctx, "r1", models.RequestContacted))
	got, _ = m.GetRequest(ctx, "r1")
	assert.Equal(t, models.RequestContacted, got.Status)
	assert.ErrorIs(t, m.UpdateRequestStatus(ctx, "nope", models.RequestContacted), ErrNotFound)
}

func TestMemoryStoreAdminWrites(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	m.PutUser(models.User{ID: "u1", Email: "a@example.com", Role: models.RoleUser, Active: true})
	m.PutTransaction(models.Transaction{ID: "tx1", Status: models.TxSucceeded})
	m.PutTicket(models.Ticket{ID: "tk1", Status: models.TicketOpen})

	require.NoError(t, m.SetUserRole(ctx, "u1", models.RoleSupport))
	require.NoError(t, m.SetUserActive(ctx, "u1", false))
	u, err := m.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.RoleSupport, u.Role)
	assert.False(t, u.Active)
	require.NoError(t, m.DeleteUser(ctx, "u1"))
	assert.ErrorIs(t, m.DeleteUser(ctx, "u1"), ErrNotFound)

	require.NoError(t, m.MarkRefunded(ctx, "tx1", "re_1"))
	tx, _ := m.GetTransaction(ctx, "tx1")
	assert.Equal(t, models.TxRefunded, tx.Status)
	assert.Equal(t, "re_1", tx.RefundID)

	c := &models.Comment{TicketID: "tk1", AuthorEmail: "ops@example.com", Body: "on it"}
	require.NoError(t, m.AddComment(ctx, c))
	assert.NotEmpty(t, c.ID)
	tk, _ := m.GetTicket(ctx, "tk1")
	require.Len(t, tk.Comments, 1)
	assert.ErrorIs(t, m.AddComment(ctx, &models.Comment{TicketID: "nope"}), ErrNotFound)
}

func TestSeedProducesUsableData(t *testing.T) {
	m := NewMemoryStore()
	Seed(m, time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()

	open, err := m.ListTrips(ctx, TripFilter{Status: models.TripPending})
	require.NoError(t, err)
	assert.Len(t, open, 2)

	pax, err := m.TripPassengers(ctx, "trip-dkr-ths")
	require.NoError(t, err)
	assert.Len(t, pax, 1)

	tx, err := m.GetTransaction(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, "pi_demo_1", tx.PaymentIntentID)
}
