// README: Offer journal backed by Redis: dispatch timestamps and the set of shoppers already tried per order.
package matching

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"shopd/internal/types"
)

const (
	dispatchKeyPrefix = "shopd:order:%s:dispatched_at"
	triedKeyPrefix    = "shopd:order:%s:tried"
	// Orders older than the freshness windows are never rescanned, so a day
	// is ample.
	keyTTL = 24 * time.Hour
)

// Journal remembers which shoppers an order was already offered to, so
// rescans do not re-offer to someone who ignored or declined it.
type Journal interface {
	RecordOffer(ctx context.Context, orderID, workerID types.ID) error
	TriedWorkers(ctx context.Context, orderID types.ID) (map[types.ID]bool, error)
	GetDispatchedAt(ctx context.Context, orderID types.ID) (time.Time, bool, error)
	Clear(ctx context.Context, orderID types.ID) error
}

type Store struct {
	redis *redis.Client
}

func NewStore(redis *redis.Client) *Store {
	return &Store{redis: redis}
}

// RecordOffer stores the first dispatch time and adds the worker to the tried set.
func (s *Store) RecordOffer(ctx context.Context, orderID, workerID types.ID) error {
	pipe := s.redis.Pipeline()
	pipe.SetNX(ctx, dispatchedAtKey(orderID), time.Now().UTC().Format(time.RFC3339), keyTTL)
	pipe.SAdd(ctx, triedKey(orderID), string(workerID))
	pipe.Expire(ctx, triedKey(orderID), keyTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Store) TriedWorkers(ctx context.Context, orderID types.ID) (map[types.ID]bool, error) {
	members, err := s.redis.SMembers(ctx, triedKey(orderID)).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[types.ID]bool, len(members))
	for _, m := range members {
		out[types.ID(m)] = true
	}
	return out, nil
}

// GetDispatchedAt returns when the order was first offered, and whether it has been.
func (s *Store) GetDispatchedAt(ctx context.Context, orderID types.ID) (time.Time, bool, error) {
	val, err := s.redis.Get(ctx, dispatchedAtKey(orderID)).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

func (s *Store) Clear(ctx context.Context, orderID types.ID) error {
	return s.redis.Del(ctx, dispatchedAtKey(orderID), triedKey(orderID)).Err()
}

func dispatchedAtKey(orderID types.ID) string {
	return fmt.Sprintf(dispatchKeyPrefix, string(orderID))
}

func triedKey(orderID types.ID) string {
	return fmt.Sprintf(triedKeyPrefix, string(orderID))
}

// MemoryJournal is the single-process Journal used when Redis is not configured.
type MemoryJournal struct {
	mu         sync.Mutex
	dispatched map[types.ID]time.Time
	tried      map[types.ID]map[types.ID]bool
}

func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{
		dispatched: make(map[types.ID]time.Time),
		tried:      make(map[types.ID]map[types.ID]bool),
	}
}

func (m *MemoryJournal) RecordOffer(_ context.Context, orderID, workerID types.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.dispatched[orderID]; !ok {
		m.dispatched[orderID] = time.Now()
	}
	set, ok := m.tried[orderID]
	if !ok {
		set = make(map[types.ID]bool)
		m.tried[orderID] = set
	}
	set[workerID] = true
	return nil
}

func (m *MemoryJournal) TriedWorkers(_ context.Context, orderID types.ID) (map[types.ID]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[types.ID]bool, len(m.tried[orderID]))
	for id := range m.tried[orderID] {
		out[id] = true
	}
	return out, nil
}

func (m *MemoryJournal) GetDispatchedAt(_ context.Context, orderID types.ID) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.dispatched[orderID]
	return t, ok, nil
}

func (m *MemoryJournal) Clear(_ context.Context, orderID types.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.dispatched, orderID)
	delete(m.tried, orderID)
	return nil
}
