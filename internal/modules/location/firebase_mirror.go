// README: Mirrors live shopper positions into Firebase Realtime Database for client-side map views.
package location

import (
	"context"
	"fmt"
	"time"

	"firebase.google.com/go/v4/db"

	"shopd/internal/types"
)

const rtdbNode = "shopper_locations"

// rtdbEntry mirrors a single shopper entry stored under /shopper_locations.
type rtdbEntry struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Status    string  `json:"status"`
	Timestamp int64   `json:"timestamp"`
}

// RTDBMirror writes positions to Firebase RTDB. Clients subscribe to
// /shopper_locations/{id} directly; the dispatch path never reads it back.
type RTDBMirror struct {
	client *db.Client
}

func NewRTDBMirror(client *db.Client) *RTDBMirror {
	return &RTDBMirror{client: client}
}

func (m *RTDBMirror) Publish(ctx context.Context, id types.ID, pos types.Point, at time.Time) error {
	ref := m.client.NewRef(rtdbNode).Child(string(id))
	err := ref.Set(ctx, rtdbEntry{
		Lat:       pos.Lat,
		Lng:       pos.Lng,
		Status:    "online",
		Timestamp: at.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("rtdb set %s: %w", id, err)
	}
	return nil
}

// Offline flags the entry instead of deleting it so clients see the last fix.
func (m *RTDBMirror) Offline(ctx context.Context, id types.ID) error {
	ref := m.client.NewRef(rtdbNode).Child(string(id))
	if err := ref.Update(ctx, map[string]interface{}{"status": "offline"}); err != nil {
		return fmt.Errorf("rtdb offline %s: %w", id, err)
	}
	return nil
}
