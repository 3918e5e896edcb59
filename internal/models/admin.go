package models

import "time"

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleSupport   Role = "support"
	RoleMarketing Role = "marketing"
	RoleUser      Role = "user"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleSupport, RoleMarketing, RoleUser:
		return true
	}
	return false
}

// Staff reports whether the role may open the dashboard at all.
func (r Role) Staff() bool { return r == RoleAdmin || r == RoleSupport || r == RoleMarketing }

type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Role        Role      `json:"role"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

type TransactionStatus string

const (
	TxSucceeded TransactionStatus = "succeeded"
	TxPending   TransactionStatus = "pending"
	TxFailed    TransactionStatus = "failed"
	TxRefunded  TransactionStatus = "refunded"
)

type Transaction struct {
	ID              string            `json:"id"`
	UserID          string            `json:"user_id"`
	TripID          string            `json:"trip_id,omitempty"`
	Amount          int64             `json:"amount"` // minor units
	Currency        string            `json:"currency"`
	Status          TransactionStatus `json:"status"`
	PaymentIntentID string            `json:"payment_intent_id,omitempty"`
	RefundID        string            `json:"refund_id,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}

type TicketStatus string

const (
	TicketOpen    TicketStatus = "open"
	TicketPending TicketStatus = "pending"
	TicketClosed  TicketStatus = "closed"
)

type Ticket struct {
	ID             string       `json:"id"`
	UserID         string       `json:"user_id"`
	RequesterEmail string       `json:"requester_email"`
	Subject        string       `json:"subject"`
	Status         TicketStatus `json:"status"`
	CreatedAt      time.Time    `json:"created_at"`
	Comments       []Comment    `json:"comments,omitempty"`
}

type Comment struct {
	ID          string    `json:"id"`
	TicketID    string    `json:"ticket_id"`
	AuthorEmail string    `json:"author_email"`
	Body        string    `json:"body"`
	CreatedAt   time.Time `json:"created_at"`
}

// AuditEvent records an admin action for downstream consumers.
type AuditEvent struct {
	Actor  string    `json:"actor"`
	Action string    `json:"action"`
	Target string    `json:"target"`
	Detail string    `json:"detail,omitempty"`
	At     time.Time `json:"at"`
}

// TripEvent is published by the trip service whenever a trip changes.
type TripEvent struct {
	TripID string     `json:"trip_id"`
	Status TripStatus `json:"status"`
	Origin *Coord     `json:"origin,omitempty"`
}
