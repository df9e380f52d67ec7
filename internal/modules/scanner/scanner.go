// README: Periodic scans: pending-order dispatch, cluster digests and the offer expiry sweep.
package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"shopd/internal/modules/cluster"
	"shopd/internal/modules/connection"
	"shopd/internal/modules/notification"
	"shopd/internal/modules/order"
	"shopd/internal/types"
)

const (
	DefaultScanInterval     = 3 * time.Minute
	DefaultOrderFreshness   = 3 * time.Minute
	DefaultMinScanGap       = 3 * time.Minute
	DefaultClusterFreshness = 10 * time.Minute
	DefaultClusterInterval  = time.Minute
	DefaultSweepInterval    = 60 * time.Second
	DefaultClusterMatchKm   = 3.0
)

// Params holds the scan windows. They are independent of each other.
type Params struct {
	ScanInterval     time.Duration
	OrderFreshness   time.Duration
	MinScanGap       time.Duration
	ClusterFreshness time.Duration
	ClusterInterval  time.Duration
	SweepInterval    time.Duration
	OrderClusterKm   float64
	ClusterMatchKm   float64
}

func DefaultParams() Params {
	return Params{
		ScanInterval:     DefaultScanInterval,
		OrderFreshness:   DefaultOrderFreshness,
		MinScanGap:       DefaultMinScanGap,
		ClusterFreshness: DefaultClusterFreshness,
		ClusterInterval:  DefaultClusterInterval,
		SweepInterval:    DefaultSweepInterval,
		OrderClusterKm:   cluster.DefaultOrderRadiusKm,
		ClusterMatchKm:   DefaultClusterMatchKm,
	}
}

type OrderSource interface {
	ListPendingOrders(ctx context.Context, createdAfter time.Time) ([]*order.Order, error)
	// ListPendingByIDs returns those of ids that are still unassigned and pending.
	ListPendingByIDs(ctx context.Context, ids []types.ID) ([]*order.Order, error)
	ListAvailableWorkers(ctx context.Context, now time.Time) ([]order.Worker, error)
}

type Dispatcher interface {
	DispatchBatch(ctx context.Context, orders []*order.Order, eligible map[types.ID]bool) int
	Sweep(ctx context.Context) int
}

type Registry interface {
	Available() []connection.Connection
	SetProfile(workerID types.ID, p connection.Profile) bool
}

type ClusterIndex interface {
	Rebuild(conns []connection.Connection) []cluster.WorkerCluster
}

type Broadcaster interface {
	SendToCluster(ctx context.Context, clusterID string, msg notification.Message) int
}

type Observer interface {
	ObserveScan(d time.Duration)
}

// Result summarizes one pending scan.
type Result struct {
	Orders     int  `json:"orders"`
	Workers    int  `json:"workers"`
	Dispatched int  `json:"dispatched"`
	Skipped    bool `json:"skipped"`
}

type Deps struct {
	Orders      OrderSource
	Dispatcher  Dispatcher
	Registry    Registry
	Clusters    ClusterIndex
	Broadcaster Broadcaster
	Observer    Observer
	Logger      *slog.Logger
	Now         func() time.Time
}

type Scanner struct {
	deps   Deps
	params Params
	log    *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	lastScan time.Time
	// carried holds orders seen by earlier scans that were still pending.
	// They are reloaded every scan until the store reports them resolved.
	carried map[types.ID]struct{}
}

func New(deps Deps, p Params) *Scanner {
	s := &Scanner{deps: deps, params: p, log: deps.Logger, now: deps.Now, carried: make(map[types.ID]struct{})}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Run starts the scan, digest and sweep loops and blocks until ctx is done.
func (s *Scanner) Run(ctx context.Context) {
	var wg sync.WaitGroup
	loops := []struct {
		name     string
		interval time.Duration
		fn       func(context.Context)
	}{
		{"pending", s.params.ScanInterval, func(ctx context.Context) { s.scanTick(ctx) }},
		{"cluster", s.params.ClusterInterval, func(ctx context.Context) { s.digestTick(ctx) }},
		{"sweep", s.params.SweepInterval, func(ctx context.Context) { s.deps.Dispatcher.Sweep(ctx) }},
	}
	for _, l := range loops {
		if l.interval <= 0 {
			s.log.Info("scan loop disabled", "loop", l.name)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.loop(ctx, l.interval, l.fn)
		}()
	}
	wg.Wait()
}

func (s *Scanner) loop(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

func (s *Scanner) scanTick(ctx context.Context) {
	if _, err := s.scan(ctx, true); err != nil {
		s.log.Error("pending scan aborted", "err", err)
	}
}

func (s *Scanner) digestTick(ctx context.Context) {
	if _, err := s.Digest(ctx); err != nil {
		s.log.Error("cluster digest aborted", "err", err)
	}
}

// ScanPending runs one dispatch cycle over fresh pending orders plus the
// pending orders earlier cycles could not place. Calls within MinScanGap of
// the previous scan are skipped.
func (s *Scanner) ScanPending(ctx context.Context) (Result, error) {
	return s.scan(ctx, false)
}

// ScanNow runs a cycle regardless of the gap guard.
func (s *Scanner) ScanNow(ctx context.Context) (Result, error) {
	return s.scan(ctx, true)
}

func (s *Scanner) scan(ctx context.Context, force bool) (Result, error) {
	now := s.now()
	s.mu.Lock()
	if !force && !s.lastScan.IsZero() && now.Sub(s.lastScan) < s.params.MinScanGap {
		s.mu.Unlock()
		s.log.Debug("pending scan skipped, too soon after previous", "last_scan", s.lastScan)
		return Result{Skipped: true}, nil
	}
	s.lastScan = now
	s.mu.Unlock()
	if s.deps.Observer != nil {
		defer func(start time.Time) { s.deps.Observer.ObserveScan(time.Since(start)) }(time.Now())
	}

	orders, err := s.deps.Orders.ListPendingOrders(ctx, now.Add(-s.params.OrderFreshness))
	if err != nil {
		return Result{}, fmt.Errorf("list pending orders: %w", err)
	}
	orders, err = s.withCarried(ctx, orders)
	if err != nil {
		return Result{}, err
	}
	res := Result{Orders: len(orders)}
	if len(orders) == 0 {
		s.log.Debug("pending scan found no orders")
		return res, nil
	}

	workers, err := s.deps.Orders.ListAvailableWorkers(ctx, now)
	if err != nil {
		return res, fmt.Errorf("list available workers: %w", err)
	}
	res.Workers = len(workers)
	if len(workers) == 0 {
		s.log.Info("pending scan found no available workers", "orders", len(orders))
		return res, nil
	}

	eligible := make(map[types.ID]bool, len(workers))
	for _, w := range workers {
		eligible[w.ID] = true
		s.deps.Registry.SetProfile(w.ID, profileOf(w))
	}

	res.Dispatched = s.deps.Dispatcher.DispatchBatch(ctx, orders, eligible)
	s.log.Info("pending scan complete", "orders", res.Orders, "workers", res.Workers, "dispatched", res.Dispatched)
	return res, nil
}

// withCarried appends carried orders missing from fresh, reloaded from the
// store, and makes the combined set the carry for the next scan.
func (s *Scanner) withCarried(ctx context.Context, fresh []*order.Order) ([]*order.Order, error) {
	seen := make(map[types.ID]bool, len(fresh))
	for _, o := range fresh {
		seen[o.ID] = true
	}
	s.mu.Lock()
	var ids []types.ID
	for id := range s.carried {
		if !seen[id] {
			ids = append(ids, id)
		}
	}
	s.mu.Unlock()

	orders := fresh
	if len(ids) > 0 {
		again, err := s.deps.Orders.ListPendingByIDs(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("reload carried orders: %w", err)
		}
		if len(again) < len(ids) {
			s.log.Debug("carried orders resolved", "count", len(ids)-len(again))
		}
		orders = append(orders, again...)
	}

	next := make(map[types.ID]struct{}, len(orders))
	for _, o := range orders {
		next[o.ID] = struct{}{}
	}
	s.mu.Lock()
	s.carried = next
	s.mu.Unlock()
	return orders, nil
}

// Digest groups fresh pending orders and available workers and tells each
// worker cluster about orders near it. It returns how many clusters were
// notified.
func (s *Scanner) Digest(ctx context.Context) (int, error) {
	now := s.now()
	orders, err := s.deps.Orders.ListPendingOrders(ctx, now.Add(-s.params.ClusterFreshness))
	if err != nil {
		return 0, fmt.Errorf("list pending orders: %w", err)
	}
	workerClusters := s.deps.Clusters.Rebuild(s.deps.Registry.Available())
	if len(orders) == 0 || len(workerClusters) == 0 {
		return 0, nil
	}
	orderClusters := cluster.ClusterOrders(orders, s.params.OrderClusterKm)

	notified := 0
	for _, wc := range workerClusters {
		near := cluster.OrdersNearCluster(wc, orderClusters, s.params.ClusterMatchKm)
		if len(near) == 0 {
			continue
		}
		ids := make([]string, len(near))
		for i, o := range near {
			ids[i] = string(o.ID)
		}
		msg := notification.Message{
			Event: notification.EventNearbyOrders,
			Title: "Orders nearby",
			Body:  fmt.Sprintf("%d orders waiting near you", len(near)),
			Data: map[string]any{
				"cluster_id": wc.ID,
				"count":      len(near),
				"order_ids":  ids,
			},
		}
		if s.deps.Broadcaster.SendToCluster(ctx, wc.ID, msg) > 0 {
			notified++
		}
	}
	s.log.Info("cluster digest complete", "orders", len(orders), "clusters", len(workerClusters), "notified", notified)
	return notified, nil
}

func profileOf(w order.Worker) connection.Profile {
	p := connection.Profile{CompletedOrderCount: w.CompletedOrderCount, SpeedKmh: w.SpeedKmh}
	if w.AvgRating != nil {
		p.AvgRating = *w.AvgRating
		p.HasRating = true
	}
	return p
}
