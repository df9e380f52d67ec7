package cluster

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopd/internal/geo"
	"shopd/internal/modules/connection"
	"shopd/internal/modules/order"
	"shopd/internal/types"
)

// kmEast offsets a point roughly km kilometres east near the equator.
func kmEast(p types.Point, km float64) types.Point {
	return types.Point{Lat: p.Lat, Lng: p.Lng + km/111.195}
}

func conn(id string, p *types.Point) connection.Connection {
	return connection.Connection{WorkerID: types.ID(id), Location: p, Available: true}
}

func ptr(p types.Point) *types.Point { return &p }

var kigali = types.Point{Lat: -1.95, Lng: 30.06}

func TestClusterWorkers_FirstFit(t *testing.T) {
	conns := []connection.Connection{
		conn("a", ptr(kigali)),
		conn("b", ptr(kmEast(kigali, 1.5))),
		conn("c", ptr(kmEast(kigali, 3))),   // 3km from a: new cluster
		conn("d", ptr(kmEast(kigali, 1.9))), // within 2km of a, joins first cluster even though c is closer
	}
	clusters := ClusterWorkers(conns, 2)
	require.Len(t, clusters, 2)
	assert.Equal(t, []types.ID{"a", "b", "d"}, clusters[0].Members)
	assert.Equal(t, []types.ID{"c"}, clusters[1].Members)
	assert.Equal(t, kigali, clusters[0].Center)
}

func TestClusterWorkers_SkipsMissingLocation(t *testing.T) {
	conns := []connection.Connection{
		conn("nil", nil),
		conn("zero", ptr(types.Point{})),
		conn("bad", ptr(types.Point{Lat: 200, Lng: 0})),
		conn("ok", ptr(kigali)),
	}
	clusters := ClusterWorkers(conns, 2)
	require.Len(t, clusters, 1)
	assert.Equal(t, []types.ID{"ok"}, clusters[0].Members)
}

func TestClusterWorkers_MembersWithinRadius(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 50; trial++ {
		n := 1 + rng.Intn(200)
		conns := make([]connection.Connection, n)
		for i := range conns {
			p := types.Point{
				Lat: kigali.Lat + (rng.Float64()-0.5)*0.2,
				Lng: kigali.Lng + (rng.Float64()-0.5)*0.2,
			}
			conns[i] = conn(fmt.Sprintf("w%d", i), &p)
		}
		pos := make(map[types.ID]types.Point, n)
		for _, c := range conns {
			pos[c.WorkerID] = *c.Location
		}

		total := 0
		for _, cl := range ClusterWorkers(conns, 2) {
			for _, m := range cl.Members {
				d := geo.Distance(cl.Center, pos[m])
				if d > 2 {
					t.Fatalf("trial %d: member %s is %.3fkm from center", trial, m, d)
				}
			}
			total += len(cl.Members)
		}
		assert.Equal(t, n, total, "every located worker belongs to exactly one cluster")
	}
}

func TestClusterOrders_AndNearCluster(t *testing.T) {
	orders := []*order.Order{
		{ID: "o1", Pickup: kigali},
		{ID: "o2", Pickup: kmEast(kigali, 0.5)},
		{ID: "o3", Pickup: kmEast(kigali, 8)},
		{ID: "o4", Pickup: types.Point{}},
		nil,
	}
	ocs := ClusterOrders(orders, 1)
	require.Len(t, ocs, 2)
	assert.Len(t, ocs[0].Orders, 2)

	wc := WorkerCluster{ID: "w", Center: kmEast(kigali, 1)}
	near := OrdersNearCluster(wc, ocs, 3)
	ids := []types.ID{}
	for _, o := range near {
		ids = append(ids, o.ID)
	}
	assert.Equal(t, []types.ID{"o1", "o2"}, ids)

	assert.Empty(t, OrdersNearCluster(WorkerCluster{Center: kmEast(kigali, 30)}, ocs, 3))
}

func TestIndex_RebuildAndMembers(t *testing.T) {
	ix := NewIndex(2, nil)
	clusters := ix.Rebuild([]connection.Connection{
		conn("a", ptr(kigali)),
		conn("b", ptr(kmEast(kigali, 10))),
	})
	require.Len(t, clusters, 2)
	assert.Equal(t, 2, ix.Count())

	m, ok := ix.Members(clusters[1].ID)
	require.True(t, ok)
	assert.Equal(t, []types.ID{"b"}, m)

	_, ok = ix.Members("missing")
	assert.False(t, ok)
}

func TestIndex_CustomStrategy(t *testing.T) {
	called := false
	ix := NewIndex(5, func(conns []connection.Connection, r float64) []WorkerCluster {
		called = true
		assert.Equal(t, 5.0, r)
		return []WorkerCluster{{ID: "all"}}
	})
	ix.Rebuild(nil)
	assert.True(t, called)
	assert.Equal(t, 1, ix.Count())
}
