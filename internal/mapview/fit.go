package mapview

import (
	"encoding/json"

	"github.com/golang/geo/s2"

	"github.com/example/ride-ops/internal/models"
)

// FitPadding is the pixel padding applied to every bounds fit.
const FitPadding = 40

// Bounds is a lat/lng rectangle. The zero value is empty.
type Bounds struct {
	rect s2.Rect
	set  bool
}

func NewBounds(points ...models.Coord) Bounds {
	b := Bounds{rect: s2.EmptyRect(), set: true}
	for _, p := range points {
		b.Extend(p)
	}
	return b
}

func (b *Bounds) Extend(c models.Coord) {
	if !b.set {
		b.rect = s2.EmptyRect()
		b.set = true
	}
	b.rect = b.rect.AddPoint(s2.LatLngFromDegrees(c.Lat, c.Lon))
}

func (b *Bounds) Union(o Bounds) {
	if !o.Valid() {
		return
	}
	if !b.Valid() {
		*b = o
		return
	}
	b.rect = b.rect.Union(o.rect)
}

// Valid reports whether the bounds contain at least one point and can be
// handed to a fit call.
func (b Bounds) Valid() bool {
	return b.set && !b.rect.IsEmpty() && b.rect.IsValid()
}

func (b Bounds) SouthWest() models.Coord {
	lo := b.rect.Lo()
	return models.Coord{Lat: lo.Lat.Degrees(), Lon: lo.Lng.Degrees()}
}

func (b Bounds) NorthEast() models.Coord {
	hi := b.rect.Hi()
	return models.Coord{Lat: hi.Lat.Degrees(), Lon: hi.Lng.Degrees()}
}

func (b Bounds) Center() models.Coord {
	c := b.rect.Center()
	return models.Coord{Lat: c.Lat.Degrees(), Lon: c.Lng.Degrees()}
}

// MarshalJSON emits [[south, west], [north, east]], or null when empty.
func (b Bounds) MarshalJSON() ([]byte, error) {
	if !b.Valid() {
		return []byte("null"), nil
	}
	sw, ne := b.SouthWest(), b.NorthEast()
	return json.Marshal([2][2]float64{{sw.Lat, sw.Lon}, {ne.Lat, ne.Lon}})
}

// AutoFit picks the bounds the viewport should fit after a render pass:
// the selected entity's layers when something is selected, otherwise the
// union of everything drawn. ok is false when there is nothing valid to fit.
func AutoFit(scene Scene, sel Selection) (Bounds, bool) {
	var b Bounds
	switch {
	case sel.TripID != "":
		b = scene.entityBounds(EntityTrip, sel.TripID)
	case sel.RequestID != "":
		b = scene.entityBounds(EntityRequest, sel.RequestID)
	}
	if !b.Valid() {
		b = scene.Bounds()
	}
	return b, b.Valid()
}
