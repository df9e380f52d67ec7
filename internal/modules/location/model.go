// README: Location updates and persisted snapshots for connected shoppers.
package location

import (
	"errors"
	"time"

	"shopd/internal/types"
)

var (
	ErrInvalidPosition = errors.New("invalid position")
	ErrNotConnected    = errors.New("shopper not connected")
)

// Update is one position report from a shopper's client.
type Update struct {
	WorkerID types.ID
	Position types.Point
	At       time.Time
}

type Snapshot struct {
	ID         int64
	WorkerID   types.ID
	Position   types.Point
	RecordedAt time.Time
}

// Nearby is a GEO search hit.
type Nearby struct {
	WorkerID   types.ID    `json:"worker_id"`
	Position   types.Point `json:"position"`
	DistanceKm float64     `json:"distance_km"`
}
