// README: Live connection entries for online shoppers.
package connection

import (
	"context"
	"time"

	"shopd/internal/types"
)

// Transport is the live direct channel to one shopper's client. Implementations
// must be safe for concurrent Emit calls.
type Transport interface {
	Emit(ctx context.Context, event string, payload any) error
	Close() error
}

// Profile is the scoring and travel input loaded from the shopper profile.
// SpeedKmh is the vehicle's assumed average speed; zero means the caller default.
type Profile struct {
	AvgRating           float64
	HasRating           bool
	CompletedOrderCount int
	SpeedKmh            float64
}

// Connection is a point-in-time copy of a registry entry.
type Connection struct {
	WorkerID    types.ID
	Transport   Transport
	Location    *types.Point
	Available   bool
	Profile     Profile
	ConnectedAt time.Time
	LastSeen    time.Time
}

// HasLocation reports whether the connection carries a usable position.
func (c Connection) HasLocation() bool {
	return c.Location != nil && c.Location.Valid()
}
