package models

import "time"

type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type TripStatus string

const (
	TripPending   TripStatus = "PENDING"
	TripActive    TripStatus = "ACTIVE"
	TripCompleted TripStatus = "COMPLETED"
	TripCancelled TripStatus = "CANCELLED"
	TripArchived  TripStatus = "ARCHIVED"
)

func (s TripStatus) Valid() bool {
	switch s {
	case TripPending, TripActive, TripCompleted, TripCancelled, TripArchived:
		return true
	}
	return false
}

// Open reports whether a trip can still take passengers.
func (s TripStatus) Open() bool { return s == TripPending || s == TripActive }

// Person is the public profile shown for drivers and passengers.
type Person struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"display_name"`
	PhotoURL    string  `json:"photo_url,omitempty"`
	Rating      float64 `json:"rating,omitempty"` // 0..5, drivers only
}

type Trip struct {
	ID              string     `json:"id"`
	OriginName      string     `json:"origin_name"`
	DestinationName string     `json:"destination_name"`
	Origin          *Coord     `json:"origin,omitempty"`
	Destination     *Coord     `json:"destination,omitempty"`
	DepartureTime   time.Time  `json:"departure_time"`
	SeatsPublished  int        `json:"seats_published"`
	SeatsAvailable  int        `json:"seats_available"`
	SeatsBooked     int        `json:"seats_booked"`
	Price           float64    `json:"price"`
	Status          TripStatus `json:"status"`
	Polyline        string     `json:"polyline,omitempty"`
	Driver          Person     `json:"driver"`
	Passengers      []Person   `json:"passengers,omitempty"`
}

type RequestStatus string

const (
	RequestPending   RequestStatus = "PENDING"
	RequestValidated RequestStatus = "VALIDATED"
	RequestReviewed  RequestStatus = "REVIEWED"
	RequestContacted RequestStatus = "CONTACTED"
)

func (s RequestStatus) Valid() bool {
	switch s {
	case RequestPending, RequestValidated, RequestReviewed, RequestContacted:
		return true
	}
	return false
}

// Match is a candidate trip found for a site trip request.
type Match struct {
	TripID               string  `json:"trip_id"`
	OriginDistanceM      float64 `json:"origin_distance_m"`
	DestinationDistanceM float64 `json:"destination_distance_m,omitempty"`
}

// SiteTripRequest is a ride wish submitted through the public site.
type SiteTripRequest struct {
	ID              string        `json:"id"`
	ContactName     string        `json:"contact_name"`
	ContactEmail    string        `json:"contact_email,omitempty"`
	ContactPhone    string        `json:"contact_phone,omitempty"`
	OriginCity      string        `json:"origin_city"`
	DestinationCity string        `json:"destination_city"`
	Origin          *Coord        `json:"origin,omitempty"`
	Destination     *Coord        `json:"destination,omitempty"`
	CoordsEstimated bool          `json:"coords_estimated"`
	DesiredDate     *time.Time    `json:"desired_date,omitempty"`
	Status          RequestStatus `json:"status"`
	Polyline        string        `json:"polyline,omitempty"`
	Matches         []Match       `json:"matches"`
	CreatedAt       time.Time     `json:"created_at"`
}
