// Package polyline decodes and encodes Google's Encoded Polyline Algorithm
// Format on top of github.com/twpayne/go-polyline.
package polyline

import (
	"math"
	"strings"

	gopolyline "github.com/twpayne/go-polyline"

	"github.com/example/ride-ops/internal/models"
)

// DefaultPrecision is the Google Maps standard (5 decimal places).
const DefaultPrecision = 1e-5

// Decode converts an encoded route into coordinates. ok is false when the
// input is empty, malformed, or yields fewer than two points; callers treat
// that as "no geometry" and skip the entity.
func Decode(encoded string) ([]models.Coord, bool) {
	return DecodeWithPrecision(encoded, DefaultPrecision)
}

// DecodeWithPrecision decodes with a custom precision factor (1e-6 for
// polyline6 sources such as OSRM and GraphHopper).
func DecodeWithPrecision(encoded string, precision float64) ([]models.Coord, bool) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" || precision <= 0 {
		return nil, false
	}
	coords, rest, err := codec(precision).DecodeCoords([]byte(encoded))
	if err != nil || len(rest) != 0 || len(coords) < 2 {
		return nil, false
	}
	points := make([]models.Coord, 0, len(coords))
	for _, c := range coords {
		p := models.Coord{Lat: c[0], Lon: c[1]}
		if math.Abs(p.Lat) > 90 || math.Abs(p.Lon) > 180 {
			return nil, false
		}
		points = append(points, p)
	}
	return points, true
}

// Encode is the inverse of Decode at the default precision.
func Encode(points []models.Coord) string {
	return EncodeWithPrecision(points, DefaultPrecision)
}

// EncodeWithPrecision encodes points with the given precision factor; it is
// the inverse of DecodeWithPrecision.
func EncodeWithPrecision(points []models.Coord, precision float64) string {
	coords := make([][]float64, len(points))
	for i, p := range points {
		coords[i] = []float64{p.Lat, p.Lon}
	}
	return string(codec(precision).EncodeCoords(nil, coords))
}

func codec(precision float64) gopolyline.Codec {
	return gopolyline.Codec{Dim: 2, Scale: math.Round(1 / precision)}
}
