package geo

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/example/ride-ops/internal/models"
)

// cities is the fallback gazetteer for site requests submitted without
// coordinates. Keys are normalised names.
var cities = map[string]models.Coord{
	"dakar":       {Lat: 14.7167, Lon: -17.4677},
	"thies":       {Lat: 14.7910, Lon: -16.9359},
	"saint-louis": {Lat: 16.0179, Lon: -16.4896},
	"touba":       {Lat: 14.8500, Lon: -15.8833},
	"mbour":       {Lat: 14.4167, Lon: -16.9667},
	"kaolack":     {Lat: 14.1652, Lon: -16.0726},
	"ziguinchor":  {Lat: 12.5833, Lon: -16.2667},
	"diourbel":    {Lat: 14.6550, Lon: -16.2314},
	"louga":       {Lat: 15.6144, Lon: -16.2286},
	"tambacounda": {Lat: 13.7707, Lon: -13.6673},
	"saly":        {Lat: 14.4500, Lon: -17.0167},
	"rufisque":    {Lat: 14.7153, Lon: -17.2733},
}

// LookupCity returns the approximate centre of a known city.
func LookupCity(name string) (models.Coord, bool) {
	c, ok := cities[normalizeCity(name)]
	return c, ok
}

func normalizeCity(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	s, _, err := transform.String(t, name)
	if err != nil {
		s = name
	}
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "st-", "saint-")
	s = strings.ReplaceAll(s, "st ", "saint-")
	s = strings.ReplaceAll(s, "saint ", "saint-")
	return s
}
