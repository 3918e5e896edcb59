package storage

import (
	"time"

	"github.com/example/ride-ops/internal/models"
	"github.com/example/ride-ops/internal/polyline"
)

// Seed fills m with a small Senegal data set for local runs without Postgres.
func Seed(m *MemoryStore, now time.Time) {
	dakar := models.Coord{Lat: 14.7167, Lon: -17.4677}
	thies := models.Coord{Lat: 14.7910, Lon: -16.9359}
	mbour := models.Coord{Lat: 14.4167, Lon: -16.9667}
	stLouis := models.Coord{Lat: 16.0179, Lon: -16.4896}
	day := time.Date(now.Year(), now.Month(), now.Day(), 8, 0, 0, 0, time.UTC).AddDate(0, 0, 1)

	awa := models.Person{ID: "drv-awa", DisplayName: "Awa Ndiaye", Rating: 4.8}
	moussa := models.Person{ID: "drv-moussa", DisplayName: "Moussa Diop", Rating: 4.5}

	m.PutTrip(models.Trip{
		ID: "trip-dkr-ths", OriginName: "Dakar", DestinationName: "Thiès",
		Origin: &dakar, Destination: &thies, DepartureTime: day,
		SeatsPublished: 3, SeatsAvailable: 2, SeatsBooked: 1, Price: 2500,
		Status: models.TripPending, Driver: awa,
		Polyline:   polyline.Encode([]models.Coord{dakar, {Lat: 14.7400, Lon: -17.2000}, thies}),
		Passengers: []models.Person{{ID: "pax-fatou", DisplayName: "Fatou Sarr"}},
	})
	m.PutTrip(models.Trip{
		ID: "trip-dkr-mbr", OriginName: "Dakar", DestinationName: "Mbour",
		Origin: &dakar, Destination: &mbour, DepartureTime: day.Add(2 * time.Hour),
		SeatsPublished: 4, SeatsAvailable: 4, Price: 3000,
		Status: models.TripPending, Driver: moussa,
		Polyline: polyline.Encode([]models.Coord{dakar, mbour}),
	})
	m.PutTrip(models.Trip{
		ID: "trip-ths-stl", OriginName: "Thiès", DestinationName: "Saint-Louis",
		Origin: &thies, Destination: &stLouis, DepartureTime: day.AddDate(0, 0, -3),
		SeatsPublished: 3, SeatsBooked: 3, Price: 5000,
		Status: models.TripCompleted, Driver: awa,
	})

	desired := day
	m.PutRequest(models.SiteTripRequest{
		ID: "req-1", ContactName: "Ibrahima Fall", ContactEmail: "ibrahima@example.com",
		OriginCity: "Dakar", DestinationCity: "Thiès", DesiredDate: &desired,
		Status: models.RequestPending, Matches: []models.Match{}, CreatedAt: now.Add(-2 * time.Hour),
	})
	m.PutRequest(models.SiteTripRequest{
		ID: "req-2", ContactName: "Aminata Ba", ContactPhone: "+221770000000",
		OriginCity: "Dakar", Origin: &dakar,
		Status: models.RequestValidated, Matches: []models.Match{{TripID: "trip-dkr-ths", OriginDistanceM: 0}},
		CreatedAt: now.Add(-time.Hour),
	})

	m.PutUser(models.User{ID: "usr-admin", Email: "admin@example.com", DisplayName: "Ops Admin", Role: models.RoleAdmin, Active: true, CreatedAt: now})
	m.PutUser(models.User{ID: "usr-support", Email: "support@example.com", DisplayName: "Support", Role: models.RoleSupport, Active: true, CreatedAt: now})
	m.PutUser(models.User{ID: "pax-fatou", Email: "fatou@example.com", DisplayName: "Fatou Sarr", Role: models.RoleUser, Active: true, CreatedAt: now})

	m.PutTransaction(models.Transaction{ID: "tx-1", UserID: "pax-fatou", TripID: "trip-dkr-ths", Amount: 2500, Currency: "xof",
		Status: models.TxSucceeded, PaymentIntentID: "pi_demo_1", CreatedAt: now.Add(-30 * time.Minute)})

	m.PutTicket(models.Ticket{ID: "tkt-1", UserID: "pax-fatou", RequesterEmail: "fatou@example.com",
		Subject: "Driver was late", Status: models.TicketOpen, CreatedAt: now.Add(-20 * time.Minute)})
}
