package storage

import (
	"context"
	"errors"

	"github.com/example/ride-ops/internal/models"
)

var ErrNotFound = errors.New("not found")

type TripFilter struct {
	Status   models.TripStatus // empty means any status
	DriverID string
	Limit    int
}

type RequestFilter struct {
	Status models.RequestStatus
	Limit  int
}

type TicketFilter struct {
	Status models.TicketStatus
	Limit  int
}

// TripStore reads trips; trips are written by the trip service, never here.
type TripStore interface {
	ListTrips(ctx context.Context, f TripFilter) ([]models.Trip, error)
	GetTrip(ctx context.Context, id string) (*models.Trip, error)
	TripPassengers(ctx context.Context, tripID string) ([]models.Person, error)
}

type RequestStore interface {
	ListRequests(ctx context.Context, f RequestFilter) ([]models.SiteTripRequest, error)
	GetRequest(ctx context.Context, id string) (*models.SiteTripRequest, error)
	UpdateRequestStatus(ctx context.Context, id string, status models.RequestStatus) error
	// SaveScan stores enriched coordinates/geometry and the match list.
	SaveScan(ctx context.Context, r *models.SiteTripRequest) error
}

type UserStore interface {
	ListUsers(ctx context.Context) ([]models.User, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	SetUserRole(ctx context.Context, id string, role models.Role) error
	SetUserActive(ctx context.Context, id string, active bool) error
	DeleteUser(ctx context.Context, id string) error
}

type TransactionStore interface {
	ListTransactions(ctx context.Context, limit int) ([]models.Transaction, error)
	GetTransaction(ctx context.Context, id string) (*models.Transaction, error)
	MarkRefunded(ctx context.Context, id, refundID string) error
}

type TicketStore interface {
	ListTickets(ctx context.Context, f TicketFilter) ([]models.Ticket, error)
	GetTicket(ctx context.Context, id string) (*models.Ticket, error)
	AddComment(ctx context.Context, c *models.Comment) error
}

// Store is everything the dashboard reads and writes.
type Store interface {
	TripStore
	RequestStore
	UserStore
	TransactionStore
	TicketStore
	Ping(ctx context.Context) error
	Close() error
}

const defaultLimit = 500

func limitOr(n int) int {
	if n <= 0 || n > defaultLimit {
		return defaultLimit
	}
	return n
}
