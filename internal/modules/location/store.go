// README: Location store backed by Redis GEO and Postgres snapshots.
package location

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"shopd/internal/types"
)

const geoKey = "shopd:workers:geo"

type Store struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

// NewStore accepts nil for either backend; the matching methods then return
// errNoBackend.
func NewStore(db *pgxpool.Pool, redis *redis.Client) *Store {
	return &Store{db: db, redis: redis}
}

var errNoBackend = errors.New("location backend not configured")

func (s *Store) SetGeo(ctx context.Context, id types.ID, pos types.Point) error {
	if s.redis == nil {
		return errNoBackend
	}
	return s.redis.GeoAdd(ctx, geoKey, &redis.GeoLocation{
		Name:      string(id),
		Longitude: pos.Lng,
		Latitude:  pos.Lat,
	}).Err()
}

func (s *Store) RemoveGeo(ctx context.Context, id types.ID) error {
	if s.redis == nil {
		return errNoBackend
	}
	return s.redis.ZRem(ctx, geoKey, string(id)).Err()
}

// Nearby returns mirrored positions within radiusKm of center, closest first.
func (s *Store) Nearby(ctx context.Context, center types.Point, radiusKm float64, limit int) ([]Nearby, error) {
	if s.redis == nil {
		return nil, errNoBackend
	}
	hits, err := s.redis.GeoSearchLocation(ctx, geoKey, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  center.Lng,
			Latitude:   center.Lat,
			Radius:     radiusKm,
			RadiusUnit: "km",
			Sort:       "ASC",
			Count:      limit,
		},
		WithCoord: true,
		WithDist:  true,
	}).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Nearby, 0, len(hits))
	for _, h := range hits {
		out = append(out, Nearby{
			WorkerID:   types.ID(h.Name),
			Position:   types.Point{Lat: h.Latitude, Lng: h.Longitude},
			DistanceKm: h.Dist,
		})
	}
	return out, nil
}

func (s *Store) AppendSnapshot(ctx context.Context, snap Snapshot) error {
	if s.db == nil {
		return errNoBackend
	}
	_, err := s.db.Exec(ctx, `
        INSERT INTO location_snapshots (shopper_id, lat, lng, recorded_at)
        VALUES ($1, $2, $3, $4)`,
		string(snap.WorkerID), snap.Position.Lat, snap.Position.Lng, snap.RecordedAt,
	)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
        UPDATE shoppers SET last_lat = $2, last_lng = $3 WHERE id = $1`,
		string(snap.WorkerID), snap.Position.Lat, snap.Position.Lng,
	)
	return err
}
