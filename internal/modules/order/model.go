// README: Dispatch-relevant projection of orders and shoppers owned by the order store.
package order

import (
	"time"

	"shopd/internal/types"
)

type Type string

const (
	TypeRegular    Type = "regular"
	TypeBatch      Type = "batch"
	TypeRestaurant Type = "restaurant"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusOffered  Status = "offered"
	StatusAssigned Status = "assigned"
	StatusExpired  Status = "expired"
)

// Fees holds the fee columns used to derive shopper earnings. All amounts are
// minor units of Currency.
type Fees struct {
	DeliveryFee int64
	ServiceFee  int64
	Tip         int64
	PerStopFee  int64
	Stops       int
	Currency    string
}

type Order struct {
	ID        types.ID
	Type      Type
	Pickup    types.Point
	Dropoff   types.Point
	CreatedAt time.Time
	Status    Status
	ShopperID *types.ID
	Fees      Fees
}

// EstimatedEarnings is what the shopper is shown in an offer. Batch orders
// pay per stop; restaurant orders carry no service fee share.
func (o *Order) EstimatedEarnings() types.Money {
	f := o.Fees
	var amount int64
	switch o.Type {
	case TypeBatch:
		stops := f.Stops
		if stops < 1 {
			stops = 1
		}
		amount = f.PerStopFee*int64(stops) + f.Tip
	case TypeRestaurant:
		amount = f.DeliveryFee + f.Tip
	default:
		amount = f.DeliveryFee + f.ServiceFee + f.Tip
	}
	return types.Money{Amount: amount, Currency: f.Currency}
}

// Worker is an online shopper as reported by the store.
type Worker struct {
	ID                  types.ID
	AvgRating           *float64
	CompletedOrderCount int
	// SpeedKmh is the vehicle's average speed; zero when unknown.
	SpeedKmh     float64
	LastLocation *types.Point
}
