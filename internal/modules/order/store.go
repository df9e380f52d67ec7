// README: Order store backed by PostgreSQL; the conditional assignment is the only write.
package order

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"shopd/internal/types"
)

var (
	ErrNotFound   = errors.New("order not found")
	ErrBadRequest = errors.New("bad request")
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const orderColumns = `
    id, order_type, status, shopper_id,
    pickup_lat, pickup_lng, dropoff_lat, dropoff_lng,
    delivery_fee, service_fee, tip, per_stop_fee, stops, currency,
    created_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	var shopperID *string
	err := row.Scan(
		&o.ID, &o.Type, &o.Status, &shopperID,
		&o.Pickup.Lat, &o.Pickup.Lng, &o.Dropoff.Lat, &o.Dropoff.Lng,
		&o.Fees.DeliveryFee, &o.Fees.ServiceFee, &o.Fees.Tip, &o.Fees.PerStopFee, &o.Fees.Stops, &o.Fees.Currency,
		&o.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if shopperID != nil {
		id := types.ID(*shopperID)
		o.ShopperID = &id
	}
	return &o, nil
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Order, error) {
	row := s.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, string(id))
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return o, err
}

// ListPendingOrders returns unassigned pending orders created after the cutoff,
// oldest first.
func (s *Store) ListPendingOrders(ctx context.Context, createdAfter time.Time) ([]*Order, error) {
	rows, err := s.db.Query(ctx, `
        SELECT `+orderColumns+`
        FROM orders
        WHERE shopper_id IS NULL
          AND status = 'pending'
          AND created_at > $1
        ORDER BY created_at ASC`, createdAfter)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// ListPendingByIDs returns those of ids that are still unassigned and pending,
// regardless of age.
func (s *Store) ListPendingByIDs(ctx context.Context, ids []types.ID) ([]*Order, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = string(id)
	}
	rows, err := s.db.Query(ctx, `
        SELECT `+orderColumns+`
        FROM orders
        WHERE id = ANY($1)
          AND shopper_id IS NULL
          AND status = 'pending'
        ORDER BY created_at ASC`, keys)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// ListAvailableWorkers returns online shoppers whose availability window
// contains the local time-of-day of now. A window whose start is after its
// end wraps past midnight.
func (s *Store) ListAvailableWorkers(ctx context.Context, now time.Time) ([]Worker, error) {
	rows, err := s.db.Query(ctx, `
        SELECT id, avg_rating, completed_orders, speed_kmh, last_lat, last_lng
        FROM shoppers
        WHERE is_online
          AND (
            (available_from <= available_to AND available_from <= $1::time AND available_to >= $1::time)
            OR (available_from > available_to AND ($1::time >= available_from OR $1::time <= available_to))
          )`, now.Format("15:04:05"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Worker
	for rows.Next() {
		var w Worker
		var speed, lat, lng *float64
		if err := rows.Scan(&w.ID, &w.AvgRating, &w.CompletedOrderCount, &speed, &lat, &lng); err != nil {
			return nil, err
		}
		if speed != nil {
			w.SpeedKmh = *speed
		}
		if lat != nil && lng != nil {
			w.LastLocation = &types.Point{Lat: *lat, Lng: *lng}
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// AssignIfUnassigned sets the shopper only if no shopper holds the order yet.
// false means another path won the race.
func (s *Store) AssignIfUnassigned(ctx context.Context, orderID, workerID types.ID) (bool, error) {
	if orderID == "" || workerID == "" {
		return false, ErrBadRequest
	}
	tag, err := s.db.Exec(ctx, `
        UPDATE orders
        SET shopper_id = $1,
            status = 'assigned',
            assigned_at = NOW()
        WHERE id = $2
          AND shopper_id IS NULL
          AND status IN ('pending', 'offered')`,
		string(workerID),
		string(orderID),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
