package mapview

import (
	"net/url"
	"strings"

	"github.com/example/ride-ops/internal/models"
)

const (
	ParamSelected     = "selected"
	ParamRequest      = "request"
	ParamStatus       = "status"
	ParamDriver       = "driver"
	ParamShowRequests = "showRequests"

	StatusAll     = "ALL"
	DefaultStatus = string(models.TripPending)
)

// Filters are the map's URL-backed data filters.
type Filters struct {
	Status       string `json:"status"`
	DriverID     string `json:"driver,omitempty"`
	ShowRequests bool   `json:"show_requests"`
}

// ParseFilters reads filters from a query. Unknown statuses fall back to the
// default; showRequests is on unless it is literally "false".
func ParseFilters(q url.Values) Filters {
	f := Filters{Status: DefaultStatus, ShowRequests: true}
	if s := strings.ToUpper(strings.TrimSpace(q.Get(ParamStatus))); s != "" {
		if s == StatusAll || models.TripStatus(s).Valid() {
			f.Status = s
		}
	}
	f.DriverID = strings.TrimSpace(q.Get(ParamDriver))
	if q.Get(ParamShowRequests) == "false" {
		f.ShowRequests = false
	}
	return f
}

// TripStatus returns the status to filter on, or "" for all statuses.
func (f Filters) TripStatus() models.TripStatus {
	if f.Status == StatusAll {
		return ""
	}
	return models.TripStatus(f.Status)
}

// Encode writes the filters into q, dropping values equal to the defaults.
func (f Filters) Encode(q url.Values) {
	if f.Status == "" || f.Status == DefaultStatus {
		q.Del(ParamStatus)
	} else {
		q.Set(ParamStatus, f.Status)
	}
	if f.DriverID == "" {
		q.Del(ParamDriver)
	} else {
		q.Set(ParamDriver, f.DriverID)
	}
	if f.ShowRequests {
		q.Del(ParamShowRequests)
	} else {
		q.Set(ParamShowRequests, "false")
	}
}

// SelectionFromQuery reads the deep-linked selection; a trip wins when both
// parameters are present.
func SelectionFromQuery(q url.Values) Selection {
	if id := strings.TrimSpace(q.Get(ParamSelected)); id != "" {
		return Selection{TripID: id}
	}
	if id := strings.TrimSpace(q.Get(ParamRequest)); id != "" {
		return Selection{RequestID: id}
	}
	return Selection{}
}

// WithSelection returns a copy of u whose selection parameters reflect sel.
// All other parameters are preserved.
func WithSelection(u *url.URL, sel Selection) *url.URL {
	out := *u
	q := u.Query()
	q.Del(ParamSelected)
	q.Del(ParamRequest)
	switch {
	case sel.TripID != "":
		q.Set(ParamSelected, sel.TripID)
	case sel.RequestID != "":
		q.Set(ParamRequest, sel.RequestID)
	}
	out.RawQuery = q.Encode()
	return &out
}

// WithFilters returns a copy of u carrying f; the selection is kept.
func WithFilters(u *url.URL, f Filters) *url.URL {
	out := *u
	q := u.Query()
	f.Encode(q)
	out.RawQuery = q.Encode()
	return &out
}

// History mirrors the browser's session history for one map view.
// Selection churn replaces the current entry; filter changes push.
type History struct {
	entries []*url.URL
}

func NewHistory(initial *url.URL) *History {
	u := *initial
	return &History{entries: []*url.URL{&u}}
}

func (h *History) Current() *url.URL {
	u := *h.entries[len(h.entries)-1]
	return &u
}

func (h *History) Len() int { return len(h.entries) }

// Replace swaps the current entry. It reports whether the URL changed.
func (h *History) Replace(u *url.URL) bool {
	cur := h.entries[len(h.entries)-1]
	if cur.String() == u.String() {
		return false
	}
	c := *u
	h.entries[len(h.entries)-1] = &c
	return true
}

// Push appends an entry unless it equals the current one.
func (h *History) Push(u *url.URL) bool {
	if h.Current().String() == u.String() {
		return false
	}
	c := *u
	h.entries = append(h.entries, &c)
	return true
}
