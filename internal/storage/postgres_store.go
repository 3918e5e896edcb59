package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/example/ride-ops/internal/models"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	p := &PostgresStore{db: db}
	if err := p.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return p, nil
}

// DB exposes the pool for migrations.
func (p *PostgresStore) DB() *sql.DB { return p.db }

func (p *PostgresStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return p.db.PingContext(ctx)
}

func (p *PostgresStore) Close() error { return p.db.Close() }

const tripColumns = `t.id, t.origin_name, t.destination_name,
	t.origin_lat, t.origin_lng, t.destination_lat, t.destination_lng,
	t.departure_time, t.seats_published, t.seats_available, t.seats_booked,
	t.price, t.status, COALESCE(t.polyline, ''),
	d.id, COALESCE(d.display_name, ''), COALESCE(d.photo_url, ''), COALESCE(d.rating, 0)`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrip(row rowScanner) (models.Trip, error) {
	var t models.Trip
	var oLat, oLng, dLat, dLng sql.NullFloat64
	err := row.Scan(&t.ID, &t.OriginName, &t.DestinationName,
		&oLat, &oLng, &dLat, &dLng,
		&t.DepartureTime, &t.SeatsPublished, &t.SeatsAvailable, &t.SeatsBooked,
		&t.Price, &t.Status, &t.Polyline,
		&t.Driver.ID, &t.Driver.DisplayName, &t.Driver.PhotoURL, &t.Driver.Rating)
	t.Origin = coord(oLat, oLng)
	t.Destination = coord(dLat, dLng)
	return t, err
}

func (p *PostgresStore) ListTrips(ctx context.Context, f TripFilter) ([]models.Trip, error) {
	q := `SELECT ` + tripColumns + `
FROM trips t JOIN profiles d ON d.id = t.driver_id
WHERE ($1 = '' OR t.status = $1) AND ($2 = '' OR t.driver_id = $2)
ORDER BY t.departure_time ASC, t.id ASC
LIMIT $3`
	rows, err := p.db.QueryContext(ctx, q, string(f.Status), f.DriverID, limitOr(f.Limit))
	if err != nil {
		return nil, fmt.Errorf("query trips: %w", err)
	}
	defer rows.Close()
	var out []models.Trip
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (p *PostgresStore) GetTrip(ctx context.Context, id string) (*models.Trip, error) {
	q := `SELECT ` + tripColumns + `
FROM trips t JOIN profiles d ON d.id = t.driver_id
WHERE t.id = $1`
	t, err := scanTrip(p.db.QueryRowContext(ctx, q, id))
	if err != nil {
		return nil, notFound(err)
	}
	if t.Passengers, err = p.TripPassengers(ctx, id); err != nil {
		return nil, err
	}
	return &t, nil
}

func (p *PostgresStore) TripPassengers(ctx context.Context, tripID string) ([]models.Person, error) {
	q := `SELECT u.id, COALESCE(u.display_name, ''), COALESCE(u.photo_url, '')
FROM bookings b JOIN profiles u ON u.id = b.passenger_id
WHERE b.trip_id = $1 AND b.status = 'CONFIRMED'
ORDER BY b.created_at ASC`
	rows, err := p.db.QueryContext(ctx, q, tripID)
	if err != nil {
		return nil, fmt.Errorf("query passengers: %w", err)
	}
	defer rows.Close()
	out := []models.Person{}
	for rows.Next() {
		var ps models.Person
		if err := rows.Scan(&ps.ID, &ps.DisplayName, &ps.PhotoURL); err != nil {
			return nil, err
		}
		out = append(out, ps)
	}
	return out, rows.Err()
}

const requestColumns = `id, contact_name, COALESCE(contact_email, ''), COALESCE(contact_phone, ''),
	origin_city, destination_city, origin_lat, origin_lng, destination_lat, destination_lng,
	coords_estimated, desired_date, status, COALESCE(polyline, ''), created_at`

func scanRequest(row rowScanner) (models.SiteTripRequest, error) {
	var r models.SiteTripRequest
	var oLat, oLng, dLat, dLng sql.NullFloat64
	var desired sql.NullTime
	err := row.Scan(&r.ID, &r.ContactName, &r.ContactEmail, &r.ContactPhone,
		&r.OriginCity, &r.DestinationCity, &oLat, &oLng, &dLat, &dLng,
		&r.CoordsEstimated, &desired, &r.Status, &r.Polyline, &r.CreatedAt)
	r.Origin = coord(oLat, oLng)
	r.Destination = coord(dLat, dLng)
	if desired.Valid {
		d := desired.Time
		r.DesiredDate = &d
	}
	return r, err
}

func (p *PostgresStore) ListRequests(ctx context.Context, f RequestFilter) ([]models.SiteTripRequest, error) {
	q := `SELECT ` + requestColumns + `
FROM site_trip_requests
WHERE ($1 = '' OR status = $1)
ORDER BY created_at DESC, id ASC
LIMIT $2`
	rows, err := p.db.QueryContext(ctx, q, string(f.Status), limitOr(f.Limit))
	if err != nil {
		return nil, fmt.Errorf("query requests: %w", err)
	}
	defer rows.Close()
	var out []models.SiteTripRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := p.attachMatches(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *PostgresStore) GetRequest(ctx context.Context, id string) (*models.SiteTripRequest, error) {
	q := `SELECT ` + requestColumns + ` FROM site_trip_requests WHERE id = $1`
	r, err := scanRequest(p.db.QueryRowContext(ctx, q, id))
	if err != nil {
		return nil, notFound(err)
	}
	list := []models.SiteTripRequest{r}
	if err := p.attachMatches(ctx, list); err != nil {
		return nil, err
	}
	return &list[0], nil
}

func (p *PostgresStore) attachMatches(ctx context.Context, reqs []models.SiteTripRequest) error {
	if len(reqs) == 0 {
		return nil
	}
	ids := make([]string, len(reqs))
	idx := make(map[string]int, len(reqs))
	for i, r := range reqs {
		ids[i] = r.ID
		idx[r.ID] = i
	}
	q := `SELECT request_id, trip_id, origin_distance_m, COALESCE(destination_distance_m, 0)
FROM site_trip_request_matches
WHERE request_id = ANY($1)
ORDER BY request_id, rank`
	rows, err := p.db.QueryContext(ctx, q, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("query matches: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var reqID string
		var m models.Match
		if err := rows.Scan(&reqID, &m.TripID, &m.OriginDistanceM, &m.DestinationDistanceM); err != nil {
			return err
		}
		i := idx[reqID]
		reqs[i].Matches = append(reqs[i].Matches, m)
	}
	return rows.Err()
}

func (p *PostgresStore) UpdateRequestStatus(ctx context.Context, id string, status models.RequestStatus) error {
	return affected(p.db.ExecContext(ctx, `UPDATE site_trip_requests SET status = $1 WHERE id = $2`, string(status), id))
}

func (p *PostgresStore) SaveScan(ctx context.Context, r *models.SiteTripRequest) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	oLat, oLng := nullCoord(r.Origin)
	dLat, dLng := nullCoord(r.Destination)
	res, err := tx.ExecContext(ctx, `UPDATE site_trip_requests
SET origin_lat = $1, origin_lng = $2, destination_lat = $3, destination_lng = $4,
    coords_estimated = $5, polyline = NULLIF($6, '')
WHERE id = $7`, oLat, oLng, dLat, dLng, r.CoordsEstimated, r.Polyline, r.ID)
	if err := affected(res, err); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM site_trip_request_matches WHERE request_id = $1`, r.ID); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO site_trip_request_matches
(request_id, trip_id, origin_distance_m, destination_distance_m, rank) VALUES ($1, $2, $3, $4, $5)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, m := range r.Matches {
		if _, err := stmt.ExecContext(ctx, r.ID, m.TripID, m.OriginDistanceM, m.DestinationDistanceM, i); err != nil {
			return fmt.Errorf("insert match %s: %w", m.TripID, err)
		}
	}
	return tx.Commit()
}

const userColumns = `id, email, COALESCE(display_name, ''), role, active, created_at`

func scanUser(row rowScanner) (models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.Role, &u.Active, &u.CreatedAt)
	return u, err
}

func (p *PostgresStore) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+userColumns+` FROM profiles ORDER BY email LIMIT $1`, defaultLimit)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()
	var out []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (p *PostgresStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	u, err := scanUser(p.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM profiles WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (p *PostgresStore) SetUserRole(ctx context.Context, id string, role models.Role) error {
	return affected(p.db.ExecContext(ctx, `UPDATE profiles SET role = $1 WHERE id = $2`, string(role), id))
}

func (p *PostgresStore) SetUserActive(ctx context.Context, id string, active bool) error {
	return affected(p.db.ExecContext(ctx, `UPDATE profiles SET active = $1 WHERE id = $2`, active, id))
}

func (p *PostgresStore) DeleteUser(ctx context.Context, id string) error {
	return affected(p.db.ExecContext(ctx, `DELETE FROM profiles WHERE id = $1`, id))
}

const txColumns = `id, user_id, COALESCE(trip_id, ''), amount, currency, status,
	COALESCE(payment_intent_id, ''), COALESCE(refund_id, ''), created_at`

func scanTransaction(row rowScanner) (models.Transaction, error) {
	var t models.Transaction
	err := row.Scan(&t.ID, &t.UserID, &t.TripID, &t.Amount, &t.Currency, &t.Status,
		&t.PaymentIntentID, &t.RefundID, &t.CreatedAt)
	return t, err
}

func (p *PostgresStore) ListTransactions(ctx context.Context, limit int) ([]models.Transaction, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+txColumns+` FROM transactions ORDER BY created_at DESC LIMIT $1`, limitOr(limit))
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()
	var out []models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (p *PostgresStore) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	t, err := scanTransaction(p.db.QueryRowContext(ctx, `SELECT `+txColumns+` FROM transactions WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

func (p *PostgresStore) MarkRefunded(ctx context.Context, id, refundID string) error {
	return affected(p.db.ExecContext(ctx, `UPDATE transactions SET status = $1, refund_id = $2 WHERE id = $3`,
		string(models.TxRefunded), refundID, id))
}

const ticketColumns = `id, user_id, requester_email, subject, status, created_at`

func scanTicket(row rowScanner) (models.Ticket, error) {
	var t models.Ticket
	err := row.Scan(&t.ID, &t.UserID, &t.RequesterEmail, &t.Subject, &t.Status, &t.CreatedAt)
	return t, err
}

func (p *PostgresStore) ListTickets(ctx context.Context, f TicketFilter) ([]models.Ticket, error) {
	q := `SELECT ` + ticketColumns + ` FROM support_tickets
WHERE ($1 = '' OR status = $1)
ORDER BY created_at DESC LIMIT $2`
	rows, err := p.db.QueryContext(ctx, q, string(f.Status), limitOr(f.Limit))
	if err != nil {
		return nil, fmt.Errorf("query tickets: %w", err)
	}
	defer rows.Close()
	var out []models.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (p *PostgresStore) GetTicket(ctx context.Context, id string) (*models.Ticket, error) {
	t, err := scanTicket(p.db.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM support_tickets WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	rows, err := p.db.QueryContext(ctx, `SELECT id, ticket_id, author_email, body, created_at
FROM ticket_comments WHERE ticket_id = $1 ORDER BY created_at ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("query comments: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var c models.Comment
		if err := rows.Scan(&c.ID, &c.TicketID, &c.AuthorEmail, &c.Body, &c.CreatedAt); err != nil {
			return nil, err
		}
		t.Comments = append(t.Comments, c)
	}
	return &t, rows.Err()
}

func (p *PostgresStore) AddComment(ctx context.Context, c *models.Comment) error {
	if c.ID == "" {
		c.ID = newID()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := p.db.ExecContext(ctx, `INSERT INTO ticket_comments (id, ticket_id, author_email, body, created_at)
VALUES ($1, $2, $3, $4, $5)`, c.ID, c.TicketID, c.AuthorEmail, c.Body, c.CreatedAt)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23503" { // foreign_key_violation
		return ErrNotFound
	}
	return err
}

// Migrate applies a schema file's statements in one transaction.
func (p *PostgresStore) Migrate(ctx context.Context, schema string) error {
	if strings.TrimSpace(schema) == "" {
		return nil
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return tx.Commit()
}

func coord(lat, lng sql.NullFloat64) *models.Coord {
	if !lat.Valid || !lng.Valid {
		return nil
	}
	return &models.Coord{Lat: lat.Float64, Lon: lng.Float64}
}

func nullCoord(c *models.Coord) (sql.NullFloat64, sql.NullFloat64) {
	if c == nil {
		return sql.NullFloat64{}, sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: c.Lat, Valid: true}, sql.NullFloat64{Float64: c.Lon, Valid: true}
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func affected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
