package storage

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"github.com/example/ride-ops/internal/models"
)

// MemoryStore is an in-process Store used for local runs and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	trips    map[string]models.Trip
	requests map[string]models.SiteTripRequest
	users    map[string]models.User
	txs      map[string]models.Transaction
	tickets  map[string]models.Ticket
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		trips:    make(map[string]models.Trip),
		requests: make(map[string]models.SiteTripRequest),
		users:    make(map[string]models.User),
		txs:      make(map[string]models.Transaction),
		tickets:  make(map[string]models.Ticket),
	}
}

func (m *MemoryStore) PutTrip(t models.Trip) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trips[t.ID] = t
}

func (m *MemoryStore) PutRequest(r models.SiteTripRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[r.ID] = r
}

func (m *MemoryStore) PutUser(u models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

func (m *MemoryStore) PutTransaction(t models.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txs[t.ID] = t
}

func (m *MemoryStore) PutTicket(t models.Ticket) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickets[t.ID] = t
}

func (m *MemoryStore) ListTrips(ctx context.Context, f TripFilter) ([]models.Trip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Trip, 0, len(m.trips))
	for _, t := range m.trips {
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if f.DriverID != "" && t.Driver.ID != f.DriverID {
			continue
		}
		t.Passengers = nil
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DepartureTime.Equal(out[j].DepartureTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].DepartureTime.Before(out[j].DepartureTime)
	})
	if n := limitOr(f.Limit); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (m *MemoryStore) GetTrip(ctx context.Context, id string) (*models.Trip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.trips[id]
	if !ok {
		return nil, ErrNotFound
	}
	t.Passengers = append([]models.Person(nil), t.Passengers...)
	return &t, nil
}

func (m *MemoryStore) TripPassengers(ctx context.Context, tripID string) ([]models.Person, error) {
	t, err := m.GetTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	return t.Passengers, nil
}

func (m *MemoryStore) ListRequests(ctx context.Context, f RequestFilter) ([]models.SiteTripRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.SiteTripRequest, 0, len(m.requests))
	for _, r := range m.requests {
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		out = append(out, copyRequest(r))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if n := limitOr(f.Limit); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (m *MemoryStore) GetRequest(ctx context.Context, id string) (*models.SiteTripRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	r = copyRequest(r)
	return &r, nil
}

func (m *MemoryStore) UpdateRequestStatus(ctx context.Context, id string, status models.RequestStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return ErrNotFound
	}
	r.Status = status
	m.requests[id] = r
	return nil
}

func (m *MemoryStore) SaveScan(ctx context.Context, r *models.SiteTripRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.requests[r.ID]
	if !ok {
		return ErrNotFound
	}
	cur.Origin, cur.Destination = r.Origin, r.Destination
	cur.CoordsEstimated = r.CoordsEstimated
	cur.Polyline = r.Polyline
	cur.Matches = append([]models.Match(nil), r.Matches...)
	m.requests[r.ID] = cur
	return nil
}

func (m *MemoryStore) ListUsers(ctx context.Context) ([]models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (m *MemoryStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (m *MemoryStore) SetUserRole(ctx context.Context, id string, role models.Role) error {
	return m.updateUser(id, func(u *models.User) { u.Role = role })
}

func (m *MemoryStore) SetUserActive(ctx context.Context, id string, active bool) error {
	return m.updateUser(id, func(u *models.User) { u.Active = active })
}

func (m *MemoryStore) updateUser(id string, fn func(*models.User)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	fn(&u)
	m.users[id] = u
	return nil
}

func (m *MemoryStore) DeleteUser(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return ErrNotFound
	}
	delete(m.users, id)
	return nil
}

func (m *MemoryStore) ListTransactions(ctx context.Context, limit int) ([]models.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Transaction, 0, len(m.txs))
	for _, t := range m.txs {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if n := limitOr(limit); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (m *MemoryStore) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.txs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (m *MemoryStore) MarkRefunded(ctx context.Context, id, refundID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.txs[id]
	if !ok {
		return ErrNotFound
	}
	t.Status = models.TxRefunded
	t.RefundID = refundID
	m.txs[id] = t
	return nil
}

func (m *MemoryStore) ListTickets(ctx context.Context, f TicketFilter) ([]models.Ticket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Ticket, 0, len(m.tickets))
	for _, t := range m.tickets {
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		t.Comments = nil
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if n := limitOr(f.Limit); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (m *MemoryStore) GetTicket(ctx context.Context, id string) (*models.Ticket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}
	t.Comments = append([]models.Comment(nil), t.Comments...)
	return &t, nil
}

func (m *MemoryStore) AddComment(ctx context.Context, c *models.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[c.TicketID]
	if !ok {
		return ErrNotFound
	}
	if c.ID == "" {
		c.ID = newID()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	t.Comments = append(t.Comments, *c)
	m.tickets[c.TicketID] = t
	return nil
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }
func (m *MemoryStore) Close() error                   { return nil }

func copyRequest(r models.SiteTripRequest) models.SiteTripRequest {
	r.Matches = append([]models.Match(nil), r.Matches...)
	return r
}

func newID() string { b := make([]byte, 8); _, _ = rand.Read(b); return hex.EncodeToString(b) }
