package matching

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopd/internal/types"
)

func journals(t *testing.T) map[string]Journal {
	out := map[string]Journal{"memory": NewMemoryJournal()}
	if addr := os.Getenv("SHOPD_REDIS_ADDR"); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		t.Cleanup(func() { rdb.Close() })
		out["redis"] = NewStore(rdb)
	}
	return out
}

func TestJournal_RecordAndClear(t *testing.T) {
	for name, j := range journals(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			orderID := types.ID(fmt.Sprintf("order_%d", time.Now().UnixNano()))

			_, ok, err := j.GetDispatchedAt(ctx, orderID)
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, j.RecordOffer(ctx, orderID, "w1"))
			first, ok, err := j.GetDispatchedAt(ctx, orderID)
			require.NoError(t, err)
			require.True(t, ok)

			require.NoError(t, j.RecordOffer(ctx, orderID, "w2"))
			again, _, _ := j.GetDispatchedAt(ctx, orderID)
			assert.True(t, first.Equal(again), "dispatched_at keeps the first offer time")

			tried, err := j.TriedWorkers(ctx, orderID)
			require.NoError(t, err)
			assert.Equal(t, map[types.ID]bool{"w1": true, "w2": true}, tried)

			require.NoError(t, j.Clear(ctx, orderID))
			tried, err = j.TriedWorkers(ctx, orderID)
			require.NoError(t, err)
			assert.Empty(t, tried)
		})
	}
}
