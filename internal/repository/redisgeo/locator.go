// Package redisgeo keeps a Redis GEO index of courier positions.
package redisgeo

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"laundry-dispatch/internal/geo"
)

// Locator indexes courier positions in one sorted set.
type Locator struct {
	rdb *redis.Client
	key string
}

// New returns a Locator over key.
func New(rdb *redis.Client, key string) *Locator {
	return &Locator{rdb: rdb, key: key}
}

// Put inserts or moves the courier.
func (l *Locator) Put(ctx context.Context, courierID int64, p geo.Point) error {
	err := l.rdb.GeoAdd(ctx, l.key, &redis.GeoLocation{
		Name:      strconv.FormatInt(courierID, 10),
		Longitude: p.Lon,
		Latitude:  p.Lat,
	}).Err()
	if err != nil {
		return fmt.Errorf("geoadd courier %d: %w", courierID, err)
	}
	return nil
}

// Remove drops the courier from the index.
func (l *Locator) Remove(ctx context.Context, courierIDs ...int64) error {
	if len(courierIDs) == 0 {
		return nil
	}
	members := make([]any, len(courierIDs))
	for i, id := range courierIDs {
		members[i] = strconv.FormatInt(id, 10)
	}
	if err := l.rdb.ZRem(ctx, l.key, members...).Err(); err != nil {
		return fmt.Errorf("zrem couriers: %w", err)
	}
	return nil
}

// Nearby returns courier ids within radiusKm of p, nearest first.
func (l *Locator) Nearby(ctx context.Context, p geo.Point, radiusKm float64) ([]int64, error) {
	res, err := l.rdb.GeoSearch(ctx, l.key, &redis.GeoSearchQuery{
		Longitude:  p.Lon,
		Latitude:   p.Lat,
		Radius:     radiusKm,
		RadiusUnit: "km",
		Sort:       "ASC",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("geosearch: %w", err)
	}
	ids := make([]int64, 0, len(res))
	for _, member := range res {
		id, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}
