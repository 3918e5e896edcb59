package geo

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisGeo implements Geo using Redis GEO commands.
type RedisGeo struct {
	client *redis.Client
	key    string
}

func NewRedisGeo(addr, password, key string) *RedisGeo {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisGeo{client: c, key: key}
}

func (r *RedisGeo) Client() *redis.Client { return r.client }

func (r *RedisGeo) Upsert(ctx context.Context, p Point) error {
	if _, err := r.client.GeoAdd(ctx, r.key, &redis.GeoLocation{Longitude: p.Loc.Lon, Latitude: p.Loc.Lat, Name: p.ID}).Result(); err != nil {
		return fmt.Errorf("geoadd %s: %w", p.ID, err)
	}
	return r.client.HSet(ctx, MetaKey(p.ID), map[string]interface{}{"updated": time.Now().Format(time.RFC3339)}).Err()
}

func (r *RedisGeo) Remove(ctx context.Context, id string) error {
	if err := r.client.ZRem(ctx, r.key, id).Err(); err != nil {
		return fmt.Errorf("zrem %s: %w", id, err)
	}
	return r.client.Del(ctx, MetaKey(id)).Err()
}

func (r *RedisGeo) Nearby(ctx context.Context, lat, lon, radiusM float64, limit int) ([]Hit, error) {
	q := &redis.GeoRadiusQuery{Radius: radiusM, Unit: "m", WithCoord: true, WithDist: true, Sort: "ASC"}
	if limit > 0 {
		q.Count = limit
	}
	res, err := r.client.GeoRadius(ctx, r.key, lon, lat, q).Result()
	if err != nil {
		return nil, fmt.Errorf("georadius: %w", err)
	}
	out := make([]Hit, 0, len(res))
	for _, g := range res {
		h := Hit{ID: g.Name, DistanceM: g.Dist}
		// go-redis GeoLocation exposes Latitude and Longitude
		h.Loc.Lat = g.Latitude
		h.Loc.Lon = g.Longitude
		out = append(out, h)
	}
	return out, nil
}

func (r *RedisGeo) Close() error { return r.client.Close() }

// MetaKey is the hash holding bookkeeping for an indexed trip.
func MetaKey(id string) string { return "trip:geo:meta:" + id }
