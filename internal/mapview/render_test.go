package mapview

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ride-ops/internal/models"
	"github.com/example/ride-ops/internal/polyline"
)

var (
	dakar   = models.Coord{Lat: 14.7167, Lon: -17.4677}
	thies   = models.Coord{Lat: 14.7910, Lon: -16.9359}
	mbour   = models.Coord{Lat: 14.4167, Lon: -16.9667}
	stLouis = models.Coord{Lat: 16.0179, Lon: -16.4896}
)

func coord(c models.Coord) *models.Coord { return &c }

func trip(id string, from, to models.Coord) models.Trip {
	return models.Trip{
		ID: id, Status: models.TripPending,
		Origin: coord(from), Destination: coord(to),
		Polyline: polyline.Encode([]models.Coord{from, to}),
	}
}

func keys(s Scene, kind LayerKind) []string {
	var out []string
	for _, l := range s.Layers {
		if l.Kind == kind {
			out = append(out, l.Key)
		}
	}
	return out
}

func TestRenderSkipsUnusableGeometry(t *testing.T) {
	trips := []models.Trip{
		trip("ok", dakar, thies),
		{ID: "empty"},
		{ID: "garbage", Polyline: "\x01\x02"},
		{ID: "single", Polyline: polyline.Encode([]models.Coord{stLouis})},
	}
	var scene Scene
	require.NotPanics(t, func() { scene = Render(RenderInput{Trips: trips, State: NewViewState()}) })
	assert.Equal(t, []string{"trip:ok"}, keys(scene, KindPolyline))

	b, ok := AutoFit(scene, Selection{})
	require.True(t, ok)
	assert.InDelta(t, thies.Lat, b.NorthEast().Lat, 1e-5, "st-louis must not widen the fit")
}

func TestRenderSelectedTripOnTop(t *testing.T) {
	st := NewViewState()
	st.SelectTrip("a")
	st.HoveredTrip = "b"
	scene := Render(RenderInput{Trips: []models.Trip{trip("a", dakar, thies), trip("b", dakar, mbour), trip("c", thies, mbour)}, State: st})

	require.Len(t, scene.Layers, 3)
	last := scene.Layers[2]
	assert.Equal(t, "trip:a", last.Key)
	assert.Equal(t, selectedTripColor, last.Style.Color)
	assert.Equal(t, float64(tripActiveWeight), last.Style.Weight)

	hovered, ok := scene.Layer("trip:b")
	require.True(t, ok)
	assert.Equal(t, float64(tripActiveWeight), hovered.Style.Weight)
	assert.Equal(t, tripPalette[1], hovered.Style.Color)
}

func TestRenderConnectorsForSelectedRequest(t *testing.T) {
	trips := []models.Trip{trip("t1", dakar, thies), trip("t2", dakar, mbour), {ID: "t3", Origin: coord(dakar)}}
	req := models.SiteTripRequest{
		ID: "r1", Origin: coord(dakar), Destination: coord(thies),
		Matches: []models.Match{{TripID: "t1"}, {TripID: "t2"}, {TripID: "t3"}, {TripID: "not-loaded"}},
	}
	st := NewViewState()

	scene := Render(RenderInput{Trips: trips, Requests: []models.SiteTripRequest{req}, State: st, ShowRequests: true})
	assert.Zero(t, scene.Count(KindConnector), "connectors only for the selected request")

	st.SelectRequest("r1")
	scene = Render(RenderInput{Trips: trips, Requests: []models.SiteTripRequest{req}, State: st, ShowRequests: true})
	assert.ElementsMatch(t, []string{
		"connector:r1:t1:origin", "connector:r1:t1:destination",
		"connector:r1:t2:origin", "connector:r1:t2:destination",
		"connector:r1:t3:origin",
	}, keys(scene, KindConnector))
	assert.ElementsMatch(t, []string{"request:r1:origin", "request:r1:destination"}, keys(scene, KindMarker))
}

func TestRenderConnectorsIgnoreRepeatedMatches(t *testing.T) {
	trips := []models.Trip{trip("t1", dakar, thies)}
	req := models.SiteTripRequest{
		ID: "r1", Origin: coord(dakar), Destination: coord(thies),
		Matches: []models.Match{{TripID: "t1"}, {TripID: "t1", OriginDistanceM: 10}},
	}
	st := NewViewState()
	st.SelectRequest("r1")

	scene := Render(RenderInput{Trips: trips, Requests: []models.SiteTripRequest{req}, State: st, ShowRequests: true})
	assert.Equal(t, []string{"connector:r1:t1:origin", "connector:r1:t1:destination"}, keys(scene, KindConnector))

	s := &recordingSurface{}
	c := NewCanvas(CanvasOptions{})
	require.NoError(t, c.Mount(s))
	require.NoError(t, c.Apply(scene, Bounds{}))
	require.NoError(t, c.Apply(scene, Bounds{}))
	assert.Equal(t, len(scene.Layers), s.count("remove"), "each drawn key is removed once")
}

func TestRenderDakarRequestWithoutDestination(t *testing.T) {
	trips := []models.Trip{trip("t1", dakar, thies)}
	req := models.SiteTripRequest{ID: "r1", Origin: coord(models.Coord{Lat: 14.7167, Lon: -17.4677}), Matches: []models.Match{{TripID: "t1"}}}
	st := NewViewState()
	st.SelectRequest("r1")

	scene := Render(RenderInput{Trips: trips, Requests: []models.SiteTripRequest{req}, State: st, ShowRequests: true})
	assert.Equal(t, []string{"connector:r1:t1:origin"}, keys(scene, KindConnector))
	assert.Equal(t, []string{"request:r1:origin"}, keys(scene, KindMarker))
}

func TestRenderHiddenEntitiesLeaveSceneAndFit(t *testing.T) {
	trips := []models.Trip{trip("near", dakar, thies), trip("far", thies, stLouis)}
	st := NewViewState()

	st.ToggleTrip("far")
	scene := Render(RenderInput{Trips: trips, State: st})
	assert.Equal(t, []string{"trip:near"}, keys(scene, KindPolyline))
	b, ok := AutoFit(scene, Selection{})
	require.True(t, ok)
	assert.Less(t, b.NorthEast().Lat, stLouis.Lat)

	st.ToggleTrip("far")
	scene = Render(RenderInput{Trips: trips, State: st})
	assert.Equal(t, []string{"trip:near", "trip:far"}, keys(scene, KindPolyline))
	far, _ := scene.Layer("trip:far")
	assert.Equal(t, tripPalette[1], far.Style.Color, "colour follows list position")
}

func TestRenderRequestsVisibility(t *testing.T) {
	reqs := []models.SiteTripRequest{
		{ID: "r1", Origin: coord(dakar), Polyline: polyline.Encode([]models.Coord{dakar, thies})},
		{ID: "r2", Origin: coord(mbour)},
	}
	st := NewViewState()
	st.SelectRequest("r1")

	scene := Render(RenderInput{Requests: reqs, State: st, ShowRequests: false})
	assert.Equal(t, []string{"request:r1"}, keys(scene, KindPolyline))
	assert.Equal(t, []string{"request:r1:origin"}, keys(scene, KindMarker))

	scene = Render(RenderInput{Requests: reqs, State: st, ShowRequests: true})
	assert.Len(t, keys(scene, KindMarker), 2)
	sel, _ := scene.Layer("request:r1")
	assert.Empty(t, sel.Style.DashArray)

	st.ToggleRequest("r2")
	scene = Render(RenderInput{Requests: reqs, State: st, ShowRequests: true})
	assert.Equal(t, []string{"request:r1:origin"}, keys(scene, KindMarker))
}

func TestRenderDisplayModes(t *testing.T) {
	trips := []models.Trip{trip("a", dakar, thies), trip("b", dakar, mbour), trip("c", thies, mbour)}
	st := NewViewState()

	st.Mode = DisplayLastOnly
	assert.Equal(t, []string{"trip:c"}, keys(Render(RenderInput{Trips: trips, State: st}), KindPolyline))

	st.SelectTrip("a")
	assert.Equal(t, []string{"trip:c", "trip:a"}, keys(Render(RenderInput{Trips: trips, State: st}), KindPolyline))

	st.Mode = DisplayNone
	assert.Equal(t, []string{"trip:a"}, keys(Render(RenderInput{Trips: trips, State: st}), KindPolyline))

	st.Close()
	assert.Empty(t, Render(RenderInput{Trips: trips, State: st}).Layers)
}
