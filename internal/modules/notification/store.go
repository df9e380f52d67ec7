// README: Push token store backed by PostgreSQL, plus an in-memory variant.
package notification

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"shopd/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// SaveToken is idempotent: saving a known token moves it to the given worker
// and platform and keeps its original created_at.
func (s *Store) SaveToken(ctx context.Context, t Token) error {
	if t.Platform == "" {
		t.Platform = "android"
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO notification_tokens (token, shopper_id, platform, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (token) DO UPDATE
		SET shopper_id = EXCLUDED.shopper_id,
		    platform = EXCLUDED.platform`,
		t.Token, string(t.WorkerID), t.Platform,
	)
	return err
}

func (s *Store) ListTokens(ctx context.Context, workerID types.ID) ([]Token, error) {
	rows, err := s.db.Query(ctx, `
		SELECT token, shopper_id, platform, created_at, last_used
		FROM notification_tokens
		WHERE shopper_id = $1
		ORDER BY created_at ASC`, string(workerID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Token
	for rows.Next() {
		var t Token
		if err := rows.Scan(&t.Token, &t.WorkerID, &t.Platform, &t.CreatedAt, &t.LastUsed); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) DeleteToken(ctx context.Context, token string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM notification_tokens WHERE token = $1`, token)
	return err
}

func (s *Store) TouchTokens(ctx context.Context, tokens []string, at time.Time) error {
	if len(tokens) == 0 {
		return nil
	}
	_, err := s.db.Exec(ctx, `UPDATE notification_tokens SET last_used = $1 WHERE token = ANY($2)`, at, tokens)
	return err
}

// MemoryStore keeps tokens in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	tokens map[string]Token
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: make(map[string]Token), now: time.Now}
}

func (m *MemoryStore) SaveToken(_ context.Context, t Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.Platform == "" {
		t.Platform = "android"
	}
	if old, ok := m.tokens[t.Token]; ok {
		t.CreatedAt = old.CreatedAt
		t.LastUsed = old.LastUsed
	} else {
		t.CreatedAt = m.now()
	}
	m.tokens[t.Token] = t
	return nil
}

func (m *MemoryStore) ListTokens(_ context.Context, workerID types.ID) ([]Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Token
	for _, t := range m.tokens {
		if t.WorkerID == workerID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Token < out[j].Token })
	return out, nil
}

func (m *MemoryStore) DeleteToken(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, token)
	return nil
}

func (m *MemoryStore) TouchTokens(_ context.Context, tokens []string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tok := range tokens {
		if t, ok := m.tokens[tok]; ok {
			ts := at
			t.LastUsed = &ts
			m.tokens[tok] = t
		}
	}
	return nil
}
