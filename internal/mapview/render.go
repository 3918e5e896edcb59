package mapview

import (
	"github.com/example/ride-ops/internal/models"
	"github.com/example/ride-ops/internal/polyline"
)

type LayerKind string

const (
	KindPolyline  LayerKind = "polyline"
	KindMarker    LayerKind = "marker"
	KindConnector LayerKind = "connector"
)

type EntityKind string

const (
	EntityTrip    EntityKind = "trip"
	EntityRequest EntityKind = "request"
)

type MarkerShape string

const (
	ShapeCircle MarkerShape = "circle"
	ShapeSquare MarkerShape = "square"
)

const (
	selectedTripColor = "#FFD700"
	requestColor      = "#7C3AED"
	originColor       = "#16A34A"
	destinationColor  = "#DC2626"
	connectorColor    = "#64748B"

	tripWeight          = 4
	tripActiveWeight    = 7
	requestWeight       = 3
	requestActiveWeight = 6
	connectorWeight     = 1.5
	requestDash         = "8 8"
	connectorDash       = "4 6"
)

// tripPalette colours trips by their position in the loaded list so a
// trip keeps its colour while others are hidden.
var tripPalette = []string{
	"#2563EB", "#0891B2", "#DB2777", "#EA580C", "#65A30D",
	"#9333EA", "#0D9488", "#B45309", "#4F46E5", "#BE123C",
}

type Style struct {
	Color     string  `json:"color"`
	Weight    float64 `json:"weight"`
	Opacity   float64 `json:"opacity"`
	DashArray string  `json:"dash_array,omitempty"`
}

// Layer is one drawable element. Key is unique within a scene and is the
// handle the canvas uses to remove it on the next pass.
type Layer struct {
	Key         string         `json:"key"`
	Kind        LayerKind      `json:"kind"`
	Entity      EntityKind     `json:"entity,omitempty"`
	EntityID    string         `json:"entity_id,omitempty"`
	Points      []models.Coord `json:"points"`
	Shape       MarkerShape    `json:"shape,omitempty"`
	Style       Style          `json:"style"`
	Interactive bool           `json:"interactive"`
}

type Scene struct {
	Layers []Layer `json:"layers"`
}

// Bounds is the union of every polyline and marker in the scene.
// Connectors are excluded: they only join already drawn endpoints.
func (s Scene) Bounds() Bounds {
	var b Bounds
	for _, l := range s.Layers {
		if l.Kind == KindConnector {
			continue
		}
		b.Union(NewBounds(l.Points...))
	}
	return b
}

func (s Scene) entityBounds(kind EntityKind, id string) Bounds {
	var b Bounds
	for _, l := range s.Layers {
		if l.Kind == KindConnector || l.Entity != kind || l.EntityID != id {
			continue
		}
		b.Union(NewBounds(l.Points...))
	}
	return b
}

// Count returns the number of layers of the given kind.
func (s Scene) Count(kind LayerKind) int {
	n := 0
	for _, l := range s.Layers {
		if l.Kind == kind {
			n++
		}
	}
	return n
}

func (s Scene) Layer(key string) (Layer, bool) {
	for _, l := range s.Layers {
		if l.Key == key {
			return l, true
		}
	}
	return Layer{}, false
}

type RenderInput struct {
	Trips        []models.Trip
	Requests     []models.SiteTripRequest
	State        *ViewState
	ShowRequests bool
}

// Render computes the layers to draw for the given data and view state.
// It never fails: entities without decodable geometry are left out.
func Render(in RenderInput) Scene {
	st := in.State
	if st == nil {
		st = NewViewState()
	}
	var scene Scene

	var selected *Layer
	for _, i := range visibleTrips(in.Trips, st) {
		t := in.Trips[i]
		pts, ok := polyline.Decode(t.Polyline)
		if !ok {
			continue
		}
		l := Layer{
			Key:         tripKey(t.ID),
			Kind:        KindPolyline,
			Entity:      EntityTrip,
			EntityID:    t.ID,
			Points:      pts,
			Style:       Style{Color: tripPalette[i%len(tripPalette)], Weight: tripWeight, Opacity: 0.8},
			Interactive: true,
		}
		if st.TripSelected(t.ID) {
			l.Style = Style{Color: selectedTripColor, Weight: tripActiveWeight, Opacity: 1}
			selected = &l
			continue
		}
		if st.HoveredTrip == t.ID {
			l.Style.Weight = tripActiveWeight
			l.Style.Opacity = 1
		}
		scene.Layers = append(scene.Layers, l)
	}
	// the selected trip is drawn last so it sits on top
	if selected != nil {
		scene.Layers = append(scene.Layers, *selected)
	}

	for _, r := range in.Requests {
		isSelected := st.RequestSelected(r.ID)
		if st.RequestHidden(r.ID) || (!in.ShowRequests && !isSelected) {
			continue
		}
		if pts, ok := polyline.Decode(r.Polyline); ok {
			l := Layer{
				Key:         requestKey(r.ID),
				Kind:        KindPolyline,
				Entity:      EntityRequest,
				EntityID:    r.ID,
				Points:      pts,
				Style:       Style{Color: requestColor, Weight: requestWeight, Opacity: 0.7, DashArray: requestDash},
				Interactive: true,
			}
			if isSelected {
				l.Style = Style{Color: requestColor, Weight: requestActiveWeight, Opacity: 1}
			} else if st.HoveredRequest == r.ID {
				l.Style.Weight = requestActiveWeight
			}
			scene.Layers = append(scene.Layers, l)
		}
		if r.Origin != nil {
			scene.Layers = append(scene.Layers, marker(r.ID, "origin", *r.Origin, ShapeCircle, originColor))
		}
		if r.Destination != nil {
			scene.Layers = append(scene.Layers, marker(r.ID, "destination", *r.Destination, ShapeSquare, destinationColor))
		}
		if isSelected {
			scene.Layers = append(scene.Layers, connectors(r, in.Trips)...)
		}
	}
	return scene
}

// visibleTrips returns indexes into trips that pass the hidden set and the
// display mode.
func visibleTrips(trips []models.Trip, st *ViewState) []int {
	if st.Mode == DisplayNone {
		// an explicit selection stays visible
		for i, t := range trips {
			if st.TripSelected(t.ID) {
				return []int{i}
			}
		}
		return nil
	}
	out := make([]int, 0, len(trips))
	for i, t := range trips {
		if st.TripHidden(t.ID) {
			continue
		}
		out = append(out, i)
	}
	if st.Mode == DisplayLastOnly && len(out) > 1 {
		last := out[len(out)-1]
		out = out[:0]
		for i, t := range trips {
			if i == last || (st.TripSelected(t.ID) && !st.TripHidden(t.ID)) {
				out = append(out, i)
			}
		}
	}
	return out
}

func marker(requestID, end string, at models.Coord, shape MarkerShape, color string) Layer {
	return Layer{
		Key:         requestKey(requestID) + ":" + end,
		Kind:        KindMarker,
		Entity:      EntityRequest,
		EntityID:    requestID,
		Points:      []models.Coord{at},
		Shape:       shape,
		Style:       Style{Color: color, Weight: 2, Opacity: 1},
		Interactive: true,
	}
}

// connectors joins the request's endpoints to the matching endpoint of each
// loaded matched trip. A connector is drawn only when both ends are known.
func connectors(r models.SiteTripRequest, trips []models.Trip) []Layer {
	if len(r.Matches) == 0 {
		return nil
	}
	byID := make(map[string]*models.Trip, len(trips))
	for i := range trips {
		byID[trips[i].ID] = &trips[i]
	}
	var out []Layer
	seen := make(map[string]struct{}, len(r.Matches))
	for _, m := range r.Matches {
		t, ok := byID[m.TripID]
		if !ok {
			continue
		}
		if _, dup := seen[m.TripID]; dup {
			continue
		}
		seen[m.TripID] = struct{}{}
		if r.Origin != nil && t.Origin != nil {
			out = append(out, connector(r.ID, t.ID, "origin", *r.Origin, *t.Origin))
		}
		if r.Destination != nil && t.Destination != nil {
			out = append(out, connector(r.ID, t.ID, "destination", *r.Destination, *t.Destination))
		}
	}
	return out
}

func connector(requestID, tripID, end string, from, to models.Coord) Layer {
	return Layer{
		Key:    "connector:" + requestID + ":" + tripID + ":" + end,
		Kind:   KindConnector,
		Points: []models.Coord{from, to},
		Style:  Style{Color: connectorColor, Weight: connectorWeight, Opacity: 0.9, DashArray: connectorDash},
	}
}

func tripKey(id string) string    { return "trip:" + id }
func requestKey(id string) string { return "request:" + id }
