package geo

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/example/ride-ops/internal/models"
)

// Point is an indexed trip origin.
type Point struct {
	ID  string
	Loc models.Coord
}

// Hit is a nearby point with its distance in meters.
type Hit struct {
	ID        string
	Loc       models.Coord
	DistanceM float64
}

// Geo is the minimal interface required by the matcher and the consumer.
type Geo interface {
	Upsert(ctx context.Context, p Point) error
	Remove(ctx context.Context, id string) error
	Nearby(ctx context.Context, lat, lon, radiusM float64, limit int) ([]Hit, error)
}

type entry struct {
	p       Point
	updated time.Time
}

type Index struct {
	mu     sync.RWMutex
	points map[string]entry
}

func NewIndex() *Index {
	return &Index{points: make(map[string]entry)}
}

func (g *Index) Upsert(_ context.Context, p Point) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.points[p.ID] = entry{p: p, updated: time.Now()}
	return nil
}

func (g *Index) Remove(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.points, id)
	return nil
}

func (g *Index) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.points)
}

// naive scan; fine for the few thousand open trips the dashboard sees
func (g *Index) Nearby(_ context.Context, lat, lon, radiusM float64, limit int) ([]Hit, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Hit, 0)
	for _, e := range g.points {
		d := Haversine(lat, lon, e.p.Loc.Lat, e.p.Loc.Lon)
		if d > radiusM {
			continue
		}
		out = append(out, Hit{ID: e.p.ID, Loc: e.p.Loc, DistanceM: d})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DistanceM == out[j].DistanceM {
			return out[i].ID < out[j].ID
		}
		return out[i].DistanceM < out[j].DistanceM
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Haversine distance in meters
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371000.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}

// Distance is Haversine over coordinates.
func Distance(a, b models.Coord) float64 { return Haversine(a.Lat, a.Lon, b.Lat, b.Lon) }
