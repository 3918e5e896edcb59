package mapview

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/example/ride-ops/internal/models"
	"github.com/example/ride-ops/internal/observability"
	"github.com/example/ride-ops/internal/storage"
)

// Data is the read side a map session needs.
type Data interface {
	ListTrips(ctx context.Context, f storage.TripFilter) ([]models.Trip, error)
	ListRequests(ctx context.Context, f storage.RequestFilter) ([]models.SiteTripRequest, error)
	TripPassengers(ctx context.Context, tripID string) ([]models.Person, error)
}

// Event is a user interaction forwarded by the client. A filters event
// changes only the fields it carries; an empty status or an absent driver
// keeps the current value, and an empty driver string clears it.
type Event struct {
	Type         string      `json:"type"`
	ID           string      `json:"id,omitempty"`
	Mode         DisplayMode `json:"mode,omitempty"`
	Status       string      `json:"status,omitempty"`
	Driver       *string     `json:"driver,omitempty"`
	ShowRequests *bool       `json:"show_requests,omitempty"`
}

const (
	EvSelectTrip      = "select_trip"
	EvSelectRequest   = "select_request"
	EvClose           = "close"
	EvHoverTrip       = "hover_trip"
	EvHoverRequest    = "hover_request"
	EvToggleTrip      = "toggle_trip"
	EvToggleRequest   = "toggle_request"
	EvShowAllTrips    = "show_all_trips"
	EvHideAllTrips    = "hide_all_trips"
	EvShowAllRequests = "show_all_requests"
	EvHideAllRequests = "hide_all_requests"
	EvDisplayMode     = "display_mode"
	EvFilters         = "filters"
	EvReload          = "reload"
)

type passengerResult struct {
	tripID     string
	passengers []models.Person
	err        error
}

// Session is one mounted map view. All state is owned by the goroutine
// running Run; other goroutines talk to it through Dispatch and the
// internal fetch channel.
type Session struct {
	data    Data
	sink    Sink
	canvas  *Canvas
	state   *ViewState
	history *History
	filters Filters
	logger  *slog.Logger

	trips    []models.Trip
	requests []models.SiteTripRequest
	// pending holds a deep-linked selection whose data could not be loaded
	// yet; it is applied by the next successful load.
	pending Selection

	events  chan Event
	fetched chan passengerResult
}

func NewSession(data Data, sink Sink, page *url.URL, opts CanvasOptions, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		data:    data,
		sink:    sink,
		canvas:  NewCanvas(opts),
		state:   NewViewState(),
		history: NewHistory(page),
		logger:  logger,
		events:  make(chan Event, 16),
		fetched: make(chan passengerResult, 4),
	}
}

// Dispatch hands an event to the session loop.
func (s *Session) Dispatch(ctx context.Context, ev Event) error {
	select {
	case s.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run mounts the canvas, draws the initial view and processes events until
// ctx is done. The canvas is disposed on return.
func (s *Session) Run(ctx context.Context) error {
	if err := s.canvas.Mount(NewBatchSurface(s.sink)); err != nil {
		return err
	}
	observability.MapSessionsActive.Inc()
	defer func() {
		observability.MapSessionsActive.Dec()
		if err := s.canvas.Dispose(); err != nil {
			s.logger.Debug("canvas dispose", "error", err)
		}
	}()

	q := s.history.Current().Query()
	s.filters = ParseFilters(q)
	if err := s.load(ctx, s.filters); err != nil {
		s.pending = SelectionFromQuery(q)
		if err := s.toast("could not load map data"); err != nil {
			return err
		}
		if err := s.render(false); err != nil {
			return err
		}
	} else if err := s.selectEntity(ctx, SelectionFromQuery(q)); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-s.events:
			if err := s.handle(ctx, ev); err != nil {
				return err
			}
		case res := <-s.fetched:
			if err := s.applyPassengers(res); err != nil {
				return err
			}
		}
	}
}

func (s *Session) handle(ctx context.Context, ev Event) error {
	switch ev.Type {
	case EvSelectTrip:
		if ev.ID == "" || s.state.TripSelected(ev.ID) {
			return nil
		}
		return s.selectEntity(ctx, Selection{TripID: ev.ID})
	case EvSelectRequest:
		if ev.ID == "" || s.state.RequestSelected(ev.ID) {
			return nil
		}
		return s.selectEntity(ctx, Selection{RequestID: ev.ID})
	case EvClose:
		return s.selectEntity(ctx, Selection{})
	case EvHoverTrip:
		if s.state.HoveredTrip == ev.ID {
			return nil
		}
		s.state.HoveredTrip = ev.ID
		return s.render(false)
	case EvHoverRequest:
		if s.state.HoveredRequest == ev.ID {
			return nil
		}
		s.state.HoveredRequest = ev.ID
		return s.render(false)
	case EvToggleTrip:
		s.state.ToggleTrip(ev.ID)
		return s.afterVisibilityChange()
	case EvToggleRequest:
		s.state.ToggleRequest(ev.ID)
		return s.afterVisibilityChange()
	case EvShowAllTrips:
		s.state.ShowAllTrips()
		return s.afterVisibilityChange()
	case EvHideAllTrips:
		s.state.HideTrips(tripIDs(s.trips))
		return s.afterVisibilityChange()
	case EvShowAllRequests:
		s.state.ShowAllRequests()
		return s.afterVisibilityChange()
	case EvHideAllRequests:
		s.state.HideRequests(requestIDs(s.requests))
		return s.afterVisibilityChange()
	case EvDisplayMode:
		if !ev.Mode.Valid() {
			return s.toast(fmt.Sprintf("unknown display mode %q", ev.Mode))
		}
		s.state.Mode = ev.Mode
		return s.render(s.state.Selection().Empty())
	case EvFilters:
		return s.changeFilters(ctx, ev)
	case EvReload:
		if err := s.load(ctx, s.filters); err != nil {
			return s.toast("could not reload map data")
		}
		return s.selectEntity(ctx, s.wantedSelection())
	default:
		return s.toast(fmt.Sprintf("unknown event %q", ev.Type))
	}
}

// selectEntity applies a selection, replaces the URL and redraws with a fit.
// Selections naming entities that are not loaded are dropped.
func (s *Session) selectEntity(ctx context.Context, sel Selection) error {
	s.pending = Selection{}
	if sel.TripID != "" && !hasTrip(s.trips, sel.TripID) {
		sel = Selection{}
	}
	if sel.RequestID != "" && !hasRequest(s.requests, sel.RequestID) {
		sel = Selection{}
	}
	s.state.Select(sel)
	if err := s.syncURL(); err != nil {
		return err
	}
	if sel.TripID != "" {
		s.fetchPassengers(ctx, sel.TripID)
	}
	return s.render(true)
}

func (s *Session) afterVisibilityChange() error {
	if err := s.syncURL(); err != nil {
		return err
	}
	return s.render(s.state.Selection().Empty())
}

// wantedSelection is the deep link still waiting for data, or else the
// current selection.
func (s *Session) wantedSelection() Selection {
	if !s.pending.Empty() {
		return s.pending
	}
	return s.state.Selection()
}

// changeFilters reloads with the new filters and commits them, with a
// history push, only once the load succeeded.
func (s *Session) changeFilters(ctx context.Context, ev Event) error {
	f := s.filters
	if ev.Status != "" {
		q := url.Values{ParamStatus: {ev.Status}}
		f.Status = ParseFilters(q).Status
	}
	if ev.Driver != nil {
		f.DriverID = strings.TrimSpace(*ev.Driver)
	}
	if ev.ShowRequests != nil {
		f.ShowRequests = *ev.ShowRequests
	}
	if f.Status != s.filters.Status || f.DriverID != s.filters.DriverID {
		if err := s.load(ctx, f); err != nil {
			return s.toast("could not load map data")
		}
	}
	s.filters = f
	if s.history.Push(WithFilters(s.history.Current(), f)) {
		if err := s.sink.Send(Message{Type: MsgURLPush, URL: s.history.Current().String()}); err != nil {
			return err
		}
	}
	return s.selectEntity(ctx, s.wantedSelection())
}

func (s *Session) load(ctx context.Context, f Filters) error {
	trips, err := s.data.ListTrips(ctx, storage.TripFilter{Status: f.TripStatus(), DriverID: f.DriverID})
	if err != nil {
		s.logger.Error("map load trips", "error", err)
		return err
	}
	requests, err := s.data.ListRequests(ctx, storage.RequestFilter{})
	if err != nil {
		s.logger.Error("map load requests", "error", err)
		return err
	}
	s.trips, s.requests = trips, requests
	return nil
}

// fetchPassengers loads the passenger list off the loop. The result is
// applied only if the trip is still selected when it arrives.
func (s *Session) fetchPassengers(ctx context.Context, tripID string) {
	go func() {
		p, err := s.data.TripPassengers(ctx, tripID)
		select {
		case s.fetched <- passengerResult{tripID: tripID, passengers: p, err: err}:
		case <-ctx.Done():
		}
	}()
}

func (s *Session) applyPassengers(res passengerResult) error {
	if !s.state.TripSelected(res.tripID) {
		observability.StalePassengerFetches.Inc()
		return nil
	}
	if res.err != nil {
		s.logger.Warn("passenger fetch failed", "trip_id", res.tripID, "error", res.err)
		return s.toast("could not load passengers")
	}
	for i := range s.trips {
		if s.trips[i].ID == res.tripID {
			s.trips[i].Passengers = res.passengers
		}
	}
	return s.sink.Send(Message{Type: MsgPassengers, TripID: res.tripID, Passengers: res.passengers})
}

func (s *Session) syncURL() error {
	u := WithSelection(s.history.Current(), s.wantedSelection())
	if !s.history.Replace(u) {
		return nil
	}
	return s.sink.Send(Message{Type: MsgURLReplace, URL: u.String()})
}

func (s *Session) render(fit bool) error {
	scene := Render(RenderInput{
		Trips:        s.trips,
		Requests:     s.requests,
		State:        s.state,
		ShowRequests: s.filters.ShowRequests,
	})
	observability.MapLayersRendered.Observe(float64(len(scene.Layers)))
	var b Bounds
	if fit {
		b, _ = AutoFit(scene, s.state.Selection())
	}
	if err := s.canvas.Apply(scene, b); err != nil {
		return err
	}
	snap := s.state.Snapshot()
	return s.sink.Send(Message{Type: MsgState, State: &snap})
}

func (s *Session) toast(msg string) error {
	return s.sink.Send(Message{Type: MsgError, Error: msg})
}

func hasTrip(trips []models.Trip, id string) bool {
	for _, t := range trips {
		if t.ID == id {
			return true
		}
	}
	return false
}

func hasRequest(requests []models.SiteTripRequest, id string) bool {
	for _, r := range requests {
		if r.ID == id {
			return true
		}
	}
	return false
}

func tripIDs(trips []models.Trip) []string {
	out := make([]string, len(trips))
	for i, t := range trips {
		out[i] = t.ID
	}
	return out
}

func requestIDs(requests []models.SiteTripRequest) []string {
	out := make([]string, len(requests))
	for i, r := range requests {
		out[i] = r.ID
	}
	return out
}
