package connection

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopd/internal/types"
)

type nopTransport struct{ name string }

func (nopTransport) Emit(context.Context, string, any) error { return nil }
func (nopTransport) Close() error                           { return nil }

func TestRegistry_RegisterDoesNotImplyAvailability(t *testing.T) {
	r := NewRegistry(nil)
	r.Register("w1", &nopTransport{})

	c, ok := r.Get("w1")
	require.True(t, ok)
	assert.False(t, c.Available)
	assert.Nil(t, c.Location)
	assert.Empty(t, r.Available())
}

func TestRegistry_UpdateLocationUnknownWorker(t *testing.T) {
	r := NewRegistry(nil)
	assert.False(t, r.UpdateLocation("ghost", types.Point{Lat: 1, Lng: 1}))
	_, ok := r.Get("ghost")
	assert.False(t, ok)
}

func TestRegistry_LocationLastWriteWins(t *testing.T) {
	r := NewRegistry(nil)
	r.Register("w1", &nopTransport{})
	r.UpdateLocation("w1", types.Point{Lat: 1, Lng: 1})
	r.UpdateLocation("w1", types.Point{Lat: 2, Lng: 2})

	c, _ := r.Get("w1")
	require.NotNil(t, c.Location)
	assert.Equal(t, types.Point{Lat: 2, Lng: 2}, *c.Location)
}

func TestRegistry_SnapshotIsCopy(t *testing.T) {
	r := NewRegistry(nil)
	r.Register("w1", &nopTransport{})
	r.UpdateLocation("w1", types.Point{Lat: 1, Lng: 1})

	c, _ := r.Get("w1")
	c.Location.Lat = 50

	again, _ := r.Get("w1")
	assert.Equal(t, 1.0, again.Location.Lat)
}

func TestRegistry_ReconnectReplacesAndReturnsPrevious(t *testing.T) {
	r := NewRegistry(nil)
	first := &nopTransport{name: "first"}
	second := &nopTransport{name: "second"}

	assert.Nil(t, r.Register("w1", first))
	r.SetAvailable("w1", true)
	prev := r.Register("w1", second)
	assert.Same(t, first, prev)

	c, _ := r.Get("w1")
	assert.False(t, c.Available, "reconnect starts unavailable")

	// late disconnect of the first socket must not remove the new one
	assert.False(t, r.Unregister("w1", first))
	_, ok := r.Get("w1")
	assert.True(t, ok)

	assert.True(t, r.Unregister("w1", second))
	_, ok = r.Get("w1")
	assert.False(t, ok)
}

func TestRegistry_AllConnectedStableOrder(t *testing.T) {
	r := NewRegistry(nil)
	for _, id := range []types.ID{"c", "a", "b"} {
		r.Register(id, &nopTransport{})
	}
	all := r.AllConnected()
	require.Len(t, all, 3)
	assert.Equal(t, types.ID("a"), all[0].WorkerID)
	assert.Equal(t, types.ID("b"), all[1].WorkerID)
	assert.Equal(t, types.ID("c"), all[2].WorkerID)
}

func TestRegistry_Count(t *testing.T) {
	r := NewRegistry(nil)
	r.Register("a", &nopTransport{})
	r.Register("b", &nopTransport{})
	r.SetAvailable("b", true)

	connected, available := r.Count()
	assert.Equal(t, 2, connected)
	assert.Equal(t, 1, available)
}

func TestRegistry_ConcurrentMutation(t *testing.T) {
	r := NewRegistry(nil)
	const workers = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := types.ID(fmt.Sprintf("w%d", i))
			tr := &nopTransport{}
			r.Register(id, tr)
			for j := 0; j < 20; j++ {
				r.UpdateLocation(id, types.Point{Lat: float64(j), Lng: 1})
				r.SetAvailable(id, j%2 == 0)
				_ = r.AllConnected()
			}
			if i%2 == 0 {
				r.Unregister(id, tr)
			}
		}(i)
	}
	wg.Wait()

	connected, _ := r.Count()
	assert.Equal(t, workers/2, connected)
}
