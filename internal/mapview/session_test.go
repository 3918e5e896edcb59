package mapview

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ride-ops/internal/models"
	"github.com/example/ride-ops/internal/observability"
	"github.com/example/ride-ops/internal/storage"
)

type chanSink struct {
	ch     chan Message
	mu     sync.Mutex
	closed bool
}

func newChanSink() *chanSink { return &chanSink{ch: make(chan Message, 256)} }

func (s *chanSink) Send(msg Message) error {
	s.ch <- msg
	return nil
}

func (s *chanSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *chanSink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// next reads messages until one of the given type arrives.
func (s *chanSink) next(t *testing.T, typ string) Message {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case msg := <-s.ch:
			if msg.Type == typ {
				return msg
			}
		case <-timeout:
			t.Fatalf("no %s message", typ)
		}
	}
}

// until reads messages up to and including the first one of the given
// type and returns all of them.
func (s *chanSink) until(t *testing.T, typ string) []Message {
	t.Helper()
	var out []Message
	timeout := time.After(2 * time.Second)
	for {
		select {
		case msg := <-s.ch:
			out = append(out, msg)
			if msg.Type == typ {
				return out
			}
		case <-timeout:
			t.Fatalf("no %s message", typ)
		}
	}
}

func types(msgs []Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Type
	}
	return out
}

func strPtr(s string) *string { return &s }

// fakeData serves fixed trips and requests. Passenger lookups for a trip
// with a gate block until the gate is closed.
type fakeData struct {
	trips    []models.Trip
	requests []models.SiteTripRequest
	gates    map[string]chan struct{}

	mu        sync.Mutex
	filters   []storage.TripFilter
	failTrips int
}

// failNext makes the next n trip listings fail.
func (f *fakeData) failNext(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failTrips = n
}

func (f *fakeData) ListTrips(ctx context.Context, flt storage.TripFilter) ([]models.Trip, error) {
	f.mu.Lock()
	f.filters = append(f.filters, flt)
	if f.failTrips > 0 {
		f.failTrips--
		f.mu.Unlock()
		return nil, errors.New("database unavailable")
	}
	f.mu.Unlock()
	var out []models.Trip
	for _, t := range f.trips {
		if flt.Status != "" && t.Status != flt.Status {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeData) ListRequests(ctx context.Context, flt storage.RequestFilter) ([]models.SiteTripRequest, error) {
	return f.requests, nil
}

func (f *fakeData) TripPassengers(ctx context.Context, tripID string) ([]models.Person, error) {
	if g, ok := f.gates[tripID]; ok {
		select {
		case <-g:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return []models.Person{{ID: "pax-" + tripID, DisplayName: "Passenger of " + tripID}}, nil
}

func (f *fakeData) lastFilter() storage.TripFilter {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.filters[len(f.filters)-1]
}

func demoData() *fakeData {
	done := trip("t3", thies, stLouis)
	done.Status = models.TripCompleted
	return &fakeData{
		trips:    []models.Trip{trip("t1", dakar, thies), trip("t2", dakar, mbour), done},
		requests: []models.SiteTripRequest{
			{ID: "r1", Origin: coord(dakar), Destination: coord(thies)},
		},
	}
}

// runSession starts a session and returns a stop func that waits for Run
// to return.
func runSession(t *testing.T, data Data, raw string) (*Session, *chanSink, func()) {
	t.Helper()
	page, err := url.Parse(raw)
	require.NoError(t, err)
	sink := newChanSink()
	s := NewSession(data, sink, page, CanvasOptions{TileURL: "tiles", Center: dakar, Zoom: 7}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	return s, sink, func() {
		cancel()
		require.NoError(t, <-done)
	}
}

func hasOp(msg Message, op string) bool {
	for _, o := range msg.Ops {
		if o.Op == op {
			return true
		}
	}
	return false
}

func TestSessionDeepLinkAndSelection(t *testing.T) {
	data := demoData()
	s, sink, stop := runSession(t, data, "/map?status=ALL&selected=t1")

	mount := sink.next(t, MsgDraw)
	assert.Equal(t, "base", mount.Ops[0].Op)

	first := sink.next(t, MsgDraw)
	assert.True(t, hasOp(first, "fit"), "initial selection fits the viewport")
	state := sink.next(t, MsgState)
	assert.Equal(t, "t1", state.State.Selection.TripID)

	p := sink.next(t, MsgPassengers)
	assert.Equal(t, "t1", p.TripID)
	require.Len(t, p.Passengers, 1)

	require.NoError(t, s.Dispatch(context.Background(), Event{Type: EvSelectRequest, ID: "r1"}))
	u := sink.next(t, MsgURLReplace)
	parsed, err := url.Parse(u.URL)
	require.NoError(t, err)
	assert.Equal(t, "r1", parsed.Query().Get(ParamRequest))
	assert.Empty(t, parsed.Query().Get(ParamSelected))
	assert.Equal(t, StatusAll, parsed.Query().Get(ParamStatus))
	state = sink.next(t, MsgState)
	assert.Equal(t, Selection{RequestID: "r1"}, state.State.Selection)

	// unknown ids are dropped rather than selected
	require.NoError(t, s.Dispatch(context.Background(), Event{Type: EvSelectTrip, ID: "nope"}))
	state = sink.next(t, MsgState)
	assert.True(t, state.State.Selection.Empty())

	stop()
	assert.Equal(t, 1, s.history.Len())
	assert.Empty(t, data.lastFilter().Status)
	assert.True(t, sink.isClosed())
}

func TestSessionDropsStalePassengerFetch(t *testing.T) {
	data := demoData()
	data.gates = map[string]chan struct{}{"t1": make(chan struct{}), "t2": make(chan struct{})}
	s, sink, stop := runSession(t, data, "/map")
	defer stop()
	sink.next(t, MsgState)

	ctx := context.Background()
	require.NoError(t, s.Dispatch(ctx, Event{Type: EvSelectTrip, ID: "t1"}))
	require.NoError(t, s.Dispatch(ctx, Event{Type: EvSelectTrip, ID: "t2"}))
	for {
		u := sink.next(t, MsgURLReplace)
		if parsed, _ := url.Parse(u.URL); parsed.Query().Get(ParamSelected) == "t2" {
			break
		}
	}

	before := testutil.ToFloat64(observability.StalePassengerFetches)
	close(data.gates["t1"])
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(observability.StalePassengerFetches) == before+1
	}, 2*time.Second, 5*time.Millisecond)

	close(data.gates["t2"])
	p := sink.next(t, MsgPassengers)
	assert.Equal(t, "t2", p.TripID)
}

func TestSessionFiltersPushHistory(t *testing.T) {
	data := demoData()
	s, sink, stop := runSession(t, data, "/map")
	state := sink.next(t, MsgState)
	assert.True(t, state.State.Selection.Empty())
	assert.Equal(t, models.TripPending, data.lastFilter().Status)

	require.NoError(t, s.Dispatch(context.Background(), Event{Type: EvFilters, Status: "completed", Driver: strPtr("drv-1")}))
	push := sink.next(t, MsgURLPush)
	assert.Equal(t, "/map?driver=drv-1&status=COMPLETED", push.URL)
	sink.next(t, MsgState)

	stop()
	assert.Equal(t, 2, s.history.Len())
	assert.Equal(t, storage.TripFilter{Status: models.TripCompleted, DriverID: "drv-1"}, data.lastFilter())
}

func TestSessionHideAllThenShowAllRedraws(t *testing.T) {
	s, sink, stop := runSession(t, demoData(), "/map?showRequests=false")
	defer stop()
	sink.next(t, MsgState)
	ctx := context.Background()

	require.NoError(t, s.Dispatch(ctx, Event{Type: EvHideAllTrips}))
	hidden := sink.next(t, MsgState)
	assert.Equal(t, []string{"t1", "t2"}, hidden.State.HiddenTrips)

	require.NoError(t, s.Dispatch(ctx, Event{Type: EvShowAllTrips}))
	draw := sink.next(t, MsgDraw)
	var added []string
	for _, o := range draw.Ops {
		if o.Op == "add" {
			added = append(added, o.Key)
		}
	}
	assert.Equal(t, []string{"trip:t1", "trip:t2"}, added)
	assert.True(t, hasOp(draw, "fit"))
	shown := sink.next(t, MsgState)
	assert.Empty(t, shown.State.HiddenTrips)
}

func TestSessionEmptyDataDoesNotFit(t *testing.T) {
	s, sink, stop := runSession(t, &fakeData{}, "/map")
	defer stop()
	sink.next(t, MsgDraw)
	sink.next(t, MsgState)

	require.NoError(t, s.Dispatch(context.Background(), Event{Type: EvReload}))
	sink.next(t, MsgState)
	for {
		select {
		case msg := <-sink.ch:
			assert.False(t, hasOp(msg, "fit"))
		default:
			return
		}
	}
}

func TestSessionUnknownEventReportsError(t *testing.T) {
	s, sink, stop := runSession(t, demoData(), "/map")
	defer stop()
	sink.next(t, MsgState)

	require.NoError(t, s.Dispatch(context.Background(), Event{Type: EvDisplayMode, Mode: "sideways"}))
	msg := sink.next(t, MsgError)
	assert.Contains(t, msg.Error, "sideways")
}

func TestSessionKeepsDeepLinkWhenFirstLoadFails(t *testing.T) {
	data := demoData()
	data.failNext(1)
	s, sink, stop := runSession(t, data, "/map?status=ALL&selected=t1")

	first := sink.until(t, MsgState)
	assert.Contains(t, types(first), MsgError)
	assert.NotContains(t, types(first), MsgURLReplace, "a failed load leaves the URL alone")

	require.NoError(t, s.Dispatch(context.Background(), Event{Type: EvReload}))
	state := sink.next(t, MsgState)
	assert.Equal(t, Selection{TripID: "t1"}, state.State.Selection)
	p := sink.next(t, MsgPassengers)
	assert.Equal(t, "t1", p.TripID)

	stop()
	assert.Equal(t, 1, s.history.Len())
	assert.Equal(t, "t1", s.history.Current().Query().Get(ParamSelected))
}

func TestSessionFilterChangeRollsBackOnLoadFailure(t *testing.T) {
	data := demoData()
	s, sink, stop := runSession(t, data, "/map")
	sink.next(t, MsgState)

	data.failNext(1)
	ctx := context.Background()
	require.NoError(t, s.Dispatch(ctx, Event{Type: EvFilters, Status: "COMPLETED"}))
	sink.next(t, MsgError)

	require.NoError(t, s.Dispatch(ctx, Event{Type: EvHideAllTrips}))
	msgs := sink.until(t, MsgState)
	assert.NotContains(t, types(msgs), MsgURLPush)
	// still the PENDING trips from the first load
	assert.Equal(t, []string{"t1", "t2"}, msgs[len(msgs)-1].State.HiddenTrips)

	stop()
	assert.Equal(t, 1, s.history.Len())
	assert.Equal(t, DefaultStatus, s.filters.Status)
	assert.Equal(t, "/map", s.history.Current().String())
}

func TestSessionFilterEventKeepsOmittedDriver(t *testing.T) {
	data := demoData()
	s, sink, stop := runSession(t, data, "/map?driver=drv-1")
	sink.next(t, MsgState)
	assert.Equal(t, "drv-1", data.lastFilter().DriverID)
	ctx := context.Background()

	hide := false
	require.NoError(t, s.Dispatch(ctx, Event{Type: EvFilters, ShowRequests: &hide}))
	push := sink.next(t, MsgURLPush)
	assert.Equal(t, "/map?driver=drv-1&showRequests=false", push.URL)
	sink.next(t, MsgState)

	require.NoError(t, s.Dispatch(ctx, Event{Type: EvFilters, Driver: strPtr("")}))
	push = sink.next(t, MsgURLPush)
	assert.Equal(t, "/map?showRequests=false", push.URL)
	sink.next(t, MsgState)

	stop()
	assert.Empty(t, data.lastFilter().DriverID)
	assert.Equal(t, 3, s.history.Len())
}
