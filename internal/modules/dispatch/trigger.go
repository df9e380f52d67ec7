package dispatch

import (
	"context"
	"fmt"

	"shopd/internal/modules/order"
	"shopd/internal/modules/scanner"
	"shopd/internal/types"
)

type OrderLoader interface {
	Get(ctx context.Context, id types.ID) (*order.Order, error)
}

type PendingScanner interface {
	ScanNow(ctx context.Context) (scanner.Result, error)
}

// Trigger is the inbound entry point for external "run dispatch" requests,
// shared by the HTTP API and the queue consumer.
type Trigger struct {
	Orders      OrderLoader
	Coordinator *Coordinator
	Scanner     PendingScanner
}

// Order reloads the order from the store and dispatches it if it is still
// unassigned.
func (t *Trigger) Order(ctx context.Context, id types.ID) error {
	if id == "" {
		return ErrBadOrder
	}
	o, err := t.Orders.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("load order %s: %w", id, err)
	}
	if o.ShopperID != nil || o.Status == order.StatusAssigned {
		return ErrAlreadyAssigned
	}
	return t.Coordinator.DispatchOrder(ctx, o)
}

// All runs a pending scan immediately.
func (t *Trigger) All(ctx context.Context) (scanner.Result, error) {
	return t.Scanner.ScanNow(ctx)
}
