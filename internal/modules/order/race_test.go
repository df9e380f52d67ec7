// README: Concurrency tests for conditional assignment (run with -race against a real DB).
package order

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"shopd/internal/testutil"
	"shopd/internal/types"
)

func TestConcurrentAssignSameOrder(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewTestPool(t, "orders", "shoppers")
	store := NewStore(db)

	const attempts = 8
	for i := 0; i < attempts; i++ {
		seedShopper(t, db, types.ID(fmt.Sprintf("s%d", i)))
	}
	seedOrder(t, db, "o_race", time.Now())

	var wg sync.WaitGroup
	results := make(chan bool, attempts)
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(id types.ID) {
			defer wg.Done()
			ok, err := store.AssignIfUnassigned(ctx, "o_race", id)
			if err != nil {
				errs <- err
				return
			}
			results <- ok
		}(types.ID(fmt.Sprintf("s%d", i)))
	}
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		t.Fatalf("unexpected error: %v", err)
	}
	wins := 0
	for ok := range results {
		if ok {
			wins++
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly 1 winner, got %d", wins)
	}

	o, err := store.Get(ctx, "o_race")
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if o.Status != StatusAssigned || o.ShopperID == nil {
		t.Fatalf("expected assigned order with shopper, got %s %v", o.Status, o.ShopperID)
	}
}

func TestListPendingOrders_CutoffAndAssigned(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewTestPool(t, "orders", "shoppers")
	store := NewStore(db)
	seedShopper(t, db, "s1")

	now := time.Now()
	seedOrder(t, db, "old", now.Add(-time.Hour))
	seedOrder(t, db, "fresh", now.Add(-time.Minute))
	seedOrder(t, db, "taken", now.Add(-time.Minute))
	if ok, err := store.AssignIfUnassigned(ctx, "taken", "s1"); err != nil || !ok {
		t.Fatalf("assign taken: ok=%v err=%v", ok, err)
	}

	got, err := store.ListPendingOrders(ctx, now.Add(-3*time.Minute))
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(got) != 1 || got[0].ID != "fresh" {
		t.Fatalf("expected only fresh, got %v", got)
	}
}

func TestListPendingByIDs_IgnoresAgeDropsResolved(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewTestPool(t, "orders", "shoppers")
	store := NewStore(db)
	seedShopper(t, db, "s1")

	now := time.Now()
	seedOrder(t, db, "old", now.Add(-time.Hour))
	seedOrder(t, db, "taken", now.Add(-time.Hour))
	if ok, err := store.AssignIfUnassigned(ctx, "taken", "s1"); err != nil || !ok {
		t.Fatalf("assign taken: ok=%v err=%v", ok, err)
	}

	got, err := store.ListPendingByIDs(ctx, []types.ID{"old", "taken", "missing"})
	if err != nil {
		t.Fatalf("list by ids: %v", err)
	}
	if len(got) != 1 || got[0].ID != "old" {
		t.Fatalf("expected only old, got %v", got)
	}
	if got, err := store.ListPendingByIDs(ctx, nil); err != nil || got != nil {
		t.Fatalf("expected nil for no ids, got %v %v", got, err)
	}
}

func TestAssignIfUnassigned_StatusGuard(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewTestPool(t, "orders", "shoppers")
	store := NewStore(db)
	seedShopper(t, db, "s1")

	seedOrder(t, db, "o_offered", time.Now())
	seedOrder(t, db, "o_cancelled", time.Now())
	setStatus(t, db, "o_offered", "offered")
	setStatus(t, db, "o_cancelled", "cancelled")

	if ok, err := store.AssignIfUnassigned(ctx, "o_offered", "s1"); err != nil || !ok {
		t.Fatalf("offered order should be assignable: ok=%v err=%v", ok, err)
	}
	if ok, err := store.AssignIfUnassigned(ctx, "o_cancelled", "s1"); err != nil || ok {
		t.Fatalf("cancelled order must not be assigned: ok=%v err=%v", ok, err)
	}
}

func TestListAvailableWorkers_Windows(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewTestPool(t, "shoppers")
	store := NewStore(db)
	seedWindow(t, db, "day", "08:00", "18:00")
	seedWindow(t, db, "night", "22:00", "02:00")

	cases := []struct {
		at   string
		want []types.ID
	}{
		{"12:00", []types.ID{"day"}},
		{"23:30", []types.ID{"night"}},
		{"01:00", []types.ID{"night"}},
		{"05:00", nil},
	}
	for _, tc := range cases {
		at, _ := time.Parse("15:04", tc.at)
		got, err := store.ListAvailableWorkers(ctx, at)
		if err != nil {
			t.Fatalf("%s: list workers: %v", tc.at, err)
		}
		var ids []types.ID
		for _, w := range got {
			ids = append(ids, w.ID)
		}
		if fmt.Sprint(ids) != fmt.Sprint(tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.at, tc.want, ids)
		}
	}
}

func TestGet_NotFound(t *testing.T) {
	db := testutil.NewTestPool(t, "orders")
	_, err := NewStore(db).Get(context.Background(), "missing")
	if err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func seedShopper(t *testing.T, db *pgxpool.Pool, id types.ID) {
	t.Helper()
	_, err := db.Exec(context.Background(),
		`INSERT INTO shoppers (id, is_online) VALUES ($1, TRUE)`, string(id))
	if err != nil {
		t.Fatalf("seed shopper: %v", err)
	}
}

func seedOrder(t *testing.T, db *pgxpool.Pool, id types.ID, createdAt time.Time) {
	t.Helper()
	_, err := db.Exec(context.Background(), `
        INSERT INTO orders (id, pickup_lat, pickup_lng, dropoff_lat, dropoff_lng, delivery_fee, created_at)
        VALUES ($1, -1.95, 30.06, -1.96, 30.07, 500, $2)`, string(id), createdAt)
	if err != nil {
		t.Fatalf("seed order: %v", err)
	}
}

func setStatus(t *testing.T, db *pgxpool.Pool, id types.ID, status string) {
	t.Helper()
	if _, err := db.Exec(context.Background(), `UPDATE orders SET status = $2 WHERE id = $1`, string(id), status); err != nil {
		t.Fatalf("set status: %v", err)
	}
}

func seedWindow(t *testing.T, db *pgxpool.Pool, id types.ID, from, to string) {
	t.Helper()
	_, err := db.Exec(context.Background(), `
        INSERT INTO shoppers (id, is_online, available_from, available_to)
        VALUES ($1, TRUE, $2::time, $3::time)`, string(id), from, to)
	if err != nil {
		t.Fatalf("seed shopper window: %v", err)
	}
}
