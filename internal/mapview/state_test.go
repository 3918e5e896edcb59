package mapview

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/example/ride-ops/internal/models"
)

func TestSelectionIsExclusive(t *testing.T) {
	st := NewViewState()
	st.SelectTrip("t1")
	st.SelectRequest("r1")
	assert.Equal(t, Selection{RequestID: "r1"}, st.Selection())
	assert.False(t, st.TripSelected("t1"))

	st.SelectTrip("t2")
	assert.Equal(t, Selection{TripID: "t2"}, st.Selection())

	st.Select(Selection{TripID: "t3", RequestID: "r3"})
	assert.Equal(t, Selection{TripID: "t3"}, st.Selection())

	st.Close()
	assert.True(t, st.Selection().Empty())
	assert.False(t, st.TripSelected(""))
}

func TestHidingSelectedEntityClosesSelection(t *testing.T) {
	st := NewViewState()
	st.SelectTrip("t1")
	st.HoveredTrip = "t1"
	assert.True(t, st.ToggleTrip("t1"))
	assert.True(t, st.Selection().Empty())
	assert.Empty(t, st.HoveredTrip)

	st.SelectTrip("t1")
	assert.False(t, st.TripHidden("t1"), "selecting unhides")

	st.SelectRequest("r1")
	st.HideRequests([]string{"r1", "r2"})
	assert.True(t, st.Selection().Empty())
	assert.Equal(t, []string{"r1", "r2"}, st.HiddenRequests())
}

func TestHideAllThenShowAllRedrawsEveryTrip(t *testing.T) {
	trips := []models.Trip{trip("a", dakar, thies), trip("b", dakar, mbour), trip("c", thies, mbour)}
	st := NewViewState()

	st.HideTrips([]string{"c", "a", "b"})
	assert.Equal(t, []string{"a", "b", "c"}, st.HiddenTrips())
	assert.Zero(t, Render(RenderInput{Trips: trips, State: st}).Count(KindPolyline))

	st.ShowAllTrips()
	assert.Empty(t, st.HiddenTrips())
	assert.Equal(t, 3, Render(RenderInput{Trips: trips, State: st}).Count(KindPolyline))
}

func TestSnapshot(t *testing.T) {
	st := NewViewState()
	st.ToggleTrip("z")
	st.ToggleTrip("y")
	st.SelectRequest("r")
	st.Mode = DisplayLastOnly

	snap := st.Snapshot()
	assert.Equal(t, []string{"y", "z"}, snap.HiddenTrips)
	assert.Equal(t, []string{}, snap.HiddenRequests)
	assert.Equal(t, Selection{RequestID: "r"}, snap.Selection)
	assert.Equal(t, DisplayLastOnly, snap.Mode)
	assert.False(t, DisplayMode("sometimes").Valid())
}
