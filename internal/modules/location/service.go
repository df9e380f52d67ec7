// README: Location service: registry update, Redis GEO mirror and throttled Postgres snapshots.
package location

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"shopd/internal/types"
)

// DefaultSnapshotEvery limits snapshot writes per shopper.
const DefaultSnapshotEvery = 30 * time.Second

type Registry interface {
	UpdateLocation(workerID types.ID, loc types.Point) bool
}

type GeoIndex interface {
	SetGeo(ctx context.Context, id types.ID, pos types.Point) error
	RemoveGeo(ctx context.Context, id types.ID) error
}

type SnapshotStore interface {
	AppendSnapshot(ctx context.Context, snap Snapshot) error
}

type Mirror interface {
	Publish(ctx context.Context, id types.ID, pos types.Point, at time.Time) error
	Offline(ctx context.Context, id types.ID) error
}

type Options struct {
	Geo           GeoIndex
	Snapshots     SnapshotStore
	Mirror        Mirror
	SnapshotEvery time.Duration
	Logger        *slog.Logger
	Now           func() time.Time
}

type Service struct {
	registry Registry
	opts     Options
	log      *slog.Logger

	mu       sync.Mutex
	lastSnap map[types.ID]time.Time
}

func NewService(registry Registry, opts Options) *Service {
	if opts.SnapshotEvery <= 0 {
		opts.SnapshotEvery = DefaultSnapshotEvery
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Service{registry: registry, opts: opts, log: log, lastSnap: make(map[types.ID]time.Time)}
}

// Update records a position for a connected shopper. Only the registry write
// is required; the GEO mirror, RTDB mirror and snapshot are best-effort.
func (s *Service) Update(ctx context.Context, u Update) error {
	if !u.Position.Valid() {
		return ErrInvalidPosition
	}
	if u.At.IsZero() {
		u.At = s.opts.Now()
	}
	if !s.registry.UpdateLocation(u.WorkerID, u.Position) {
		return ErrNotConnected
	}

	if s.opts.Geo != nil {
		if err := s.opts.Geo.SetGeo(ctx, u.WorkerID, u.Position); err != nil {
			s.log.Warn("geo mirror failed", "worker_id", u.WorkerID, "err", err)
		}
	}
	if s.opts.Mirror != nil {
		if err := s.opts.Mirror.Publish(ctx, u.WorkerID, u.Position, u.At); err != nil {
			s.log.Warn("rtdb mirror failed", "worker_id", u.WorkerID, "err", err)
		}
	}
	if s.opts.Snapshots != nil && s.snapshotDue(u.WorkerID, u.At) {
		snap := Snapshot{WorkerID: u.WorkerID, Position: u.Position, RecordedAt: u.At}
		if err := s.opts.Snapshots.AppendSnapshot(ctx, snap); err != nil {
			s.log.Warn("location snapshot failed", "worker_id", u.WorkerID, "err", err)
		}
	}
	return nil
}

// Forget clears mirrored state for a disconnected shopper.
func (s *Service) Forget(ctx context.Context, workerID types.ID) {
	s.mu.Lock()
	delete(s.lastSnap, workerID)
	s.mu.Unlock()
	if s.opts.Geo != nil {
		if err := s.opts.Geo.RemoveGeo(ctx, workerID); err != nil {
			s.log.Warn("geo remove failed", "worker_id", workerID, "err", err)
		}
	}
	if s.opts.Mirror != nil {
		if err := s.opts.Mirror.Offline(ctx, workerID); err != nil {
			s.log.Warn("rtdb offline failed", "worker_id", workerID, "err", err)
		}
	}
}

func (s *Service) snapshotDue(id types.ID, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.lastSnap[id]
	if ok && at.Sub(last) < s.opts.SnapshotEvery {
		return false
	}
	s.lastSnap[id] = at
	return true
}
