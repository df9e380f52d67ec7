// README: Process-wide registry of connected shoppers (single mutex-guarded map).
package connection

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"shopd/internal/types"
)

type entry struct {
	transport   Transport
	location    *types.Point
	available   bool
	profile     Profile
	connectedAt time.Time
	lastSeen    time.Time
}

// Registry tracks currently-connected shoppers. All methods are safe for
// concurrent use; no method performs I/O while holding the lock.
type Registry struct {
	mu      sync.Mutex
	entries map[types.ID]*entry
	now     func() time.Time
	log     *slog.Logger
}

func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		entries: make(map[types.ID]*entry),
		now:     time.Now,
		log:     log,
	}
}

// Register inserts or replaces the entry for workerID. A replaced entry keeps
// nothing from the previous connection: a reconnect starts fresh and
// unavailable. It returns the replaced transport, if any, so the caller can
// close it outside the lock.
func (r *Registry) Register(workerID types.ID, t Transport) Transport {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	var prev Transport
	if old, ok := r.entries[workerID]; ok {
		prev = old.transport
	}
	r.entries[workerID] = &entry{transport: t, connectedAt: now, lastSeen: now}
	return prev
}

// Unregister removes workerID. When t is non-nil the entry is only removed if
// it still belongs to that transport, so a late disconnect of a replaced
// socket does not drop the newer connection.
func (r *Registry) Unregister(workerID types.ID, t Transport) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[workerID]
	if !ok {
		return false
	}
	if t != nil && e.transport != t {
		return false
	}
	delete(r.entries, workerID)
	return true
}

// UpdateLocation records the latest position. Unknown workers are ignored
// since connect and the first location report may race.
func (r *Registry) UpdateLocation(workerID types.ID, loc types.Point) bool {
	now := r.now()
	r.mu.Lock()
	e, ok := r.entries[workerID]
	if ok {
		p := loc
		e.location = &p
		e.lastSeen = now
	}
	r.mu.Unlock()
	if !ok {
		r.log.Debug("location update for unknown worker ignored", "worker_id", workerID)
	}
	return ok
}

// SetAvailable toggles whether the worker may receive offers.
func (r *Registry) SetAvailable(workerID types.ID, available bool) bool {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[workerID]
	if !ok {
		return false
	}
	e.available = available
	e.lastSeen = now
	return true
}

// SetProfile attaches scoring data loaded from the shopper profile.
func (r *Registry) SetProfile(workerID types.ID, p Profile) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[workerID]
	if !ok {
		return false
	}
	e.profile = p
	return true
}

// Touch refreshes lastSeen without changing anything else.
func (r *Registry) Touch(workerID types.ID) {
	now := r.now()
	r.mu.Lock()
	if e, ok := r.entries[workerID]; ok {
		e.lastSeen = now
	}
	r.mu.Unlock()
}

func (r *Registry) Get(workerID types.ID) (Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[workerID]
	if !ok {
		return Connection{}, false
	}
	return e.snapshot(workerID), true
}

// AllConnected returns a snapshot of every entry ordered by worker id, so
// callers iterating it (clustering, ranking) see a stable order.
func (r *Registry) AllConnected() []Connection {
	r.mu.Lock()
	out := make([]Connection, 0, len(r.entries))
	for id, e := range r.entries {
		out = append(out, e.snapshot(id))
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].WorkerID < out[j].WorkerID })
	return out
}

// Available returns connected workers that accept offers.
func (r *Registry) Available() []Connection {
	all := r.AllConnected()
	out := all[:0]
	for _, c := range all {
		if c.Available {
			out = append(out, c)
		}
	}
	return out
}

// Count returns the number of connected and available workers.
func (r *Registry) Count() (connected, available int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		connected++
		if e.available {
			available++
		}
	}
	return connected, available
}

func (e *entry) snapshot(id types.ID) Connection {
	c := Connection{
		WorkerID:    id,
		Transport:   e.transport,
		Available:   e.available,
		Profile:     e.profile,
		ConnectedAt: e.connectedAt,
		LastSeen:    e.lastSeen,
	}
	if e.location != nil {
		p := *e.location
		c.Location = &p
	}
	return c
}
