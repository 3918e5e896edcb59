// Package mapview holds the interactive trips map: the per-session view
// state, the layer renderer, the canvas controller that owns drawn layers,
// URL synchronisation and viewport auto-fit.
package mapview

import "sort"

type DisplayMode string

const (
	DisplayAll      DisplayMode = "all"
	DisplayLastOnly DisplayMode = "last-only"
	DisplayNone     DisplayMode = "none"
)

func (m DisplayMode) Valid() bool {
	return m == DisplayAll || m == DisplayLastOnly || m == DisplayNone
}

// Selection names at most one selected entity.
type Selection struct {
	TripID    string `json:"trip_id,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func (s Selection) Empty() bool { return s.TripID == "" && s.RequestID == "" }

// ViewState is the transient, client-only state of one map session.
// Only the selection is reflected in the URL.
type ViewState struct {
	selection      Selection
	HoveredTrip    string
	HoveredRequest string
	hiddenTrips    map[string]struct{}
	hiddenRequests map[string]struct{}
	Mode           DisplayMode
}

func NewViewState() *ViewState {
	return &ViewState{
		hiddenTrips:    make(map[string]struct{}),
		hiddenRequests: make(map[string]struct{}),
		Mode:           DisplayAll,
	}
}

func (s *ViewState) Selection() Selection { return s.selection }

// SelectTrip selects a trip and clears any selected request. A hidden trip
// is unhidden so the selection is always drawable.
func (s *ViewState) SelectTrip(id string) {
	s.selection = Selection{TripID: id}
	delete(s.hiddenTrips, id)
}

// SelectRequest selects a request and clears any selected trip.
func (s *ViewState) SelectRequest(id string) {
	s.selection = Selection{RequestID: id}
	delete(s.hiddenRequests, id)
}

// Select applies a selection as a whole; a trip wins over a request.
func (s *ViewState) Select(sel Selection) {
	switch {
	case sel.TripID != "":
		s.SelectTrip(sel.TripID)
	case sel.RequestID != "":
		s.SelectRequest(sel.RequestID)
	default:
		s.Close()
	}
}

func (s *ViewState) Close() { s.selection = Selection{} }

func (s *ViewState) TripSelected(id string) bool    { return id != "" && s.selection.TripID == id }
func (s *ViewState) RequestSelected(id string) bool { return id != "" && s.selection.RequestID == id }

func (s *ViewState) TripHidden(id string) bool {
	_, ok := s.hiddenTrips[id]
	return ok
}

func (s *ViewState) RequestHidden(id string) bool {
	_, ok := s.hiddenRequests[id]
	return ok
}

// ToggleTrip flips visibility and returns the new hidden flag. Hiding the
// selected trip closes the selection.
func (s *ViewState) ToggleTrip(id string) bool {
	if s.TripHidden(id) {
		delete(s.hiddenTrips, id)
		return false
	}
	s.hiddenTrips[id] = struct{}{}
	if s.selection.TripID == id {
		s.Close()
	}
	if s.HoveredTrip == id {
		s.HoveredTrip = ""
	}
	return true
}

func (s *ViewState) ToggleRequest(id string) bool {
	if s.RequestHidden(id) {
		delete(s.hiddenRequests, id)
		return false
	}
	s.hiddenRequests[id] = struct{}{}
	if s.selection.RequestID == id {
		s.Close()
	}
	if s.HoveredRequest == id {
		s.HoveredRequest = ""
	}
	return true
}

func (s *ViewState) HideTrips(ids []string) {
	for _, id := range ids {
		if !s.TripHidden(id) {
			s.ToggleTrip(id)
		}
	}
}

func (s *ViewState) HideRequests(ids []string) {
	for _, id := range ids {
		if !s.RequestHidden(id) {
			s.ToggleRequest(id)
		}
	}
}

func (s *ViewState) ShowAllTrips()    { s.hiddenTrips = make(map[string]struct{}) }
func (s *ViewState) ShowAllRequests() { s.hiddenRequests = make(map[string]struct{}) }

func (s *ViewState) HiddenTrips() []string    { return sortedKeys(s.hiddenTrips) }
func (s *ViewState) HiddenRequests() []string { return sortedKeys(s.hiddenRequests) }

// Snapshot is the JSON view of the state sent to the client after each event.
type Snapshot struct {
	Selection      Selection   `json:"selection"`
	HoveredTrip    string      `json:"hovered_trip,omitempty"`
	HoveredRequest string      `json:"hovered_request,omitempty"`
	HiddenTrips    []string    `json:"hidden_trips"`
	HiddenRequests []string    `json:"hidden_requests"`
	Mode           DisplayMode `json:"mode"`
}

func (s *ViewState) Snapshot() Snapshot {
	return Snapshot{
		Selection:      s.selection,
		HoveredTrip:    s.HoveredTrip,
		HoveredRequest: s.HoveredRequest,
		HiddenTrips:    s.HiddenTrips(),
		HiddenRequests: s.HiddenRequests(),
		Mode:           s.Mode,
	}
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
