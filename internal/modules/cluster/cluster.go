// Package cluster groups connected shoppers and pending orders into
// radius-bounded neighbourhoods so notifications can be batched per area.
//
// The partition is greedy first-fit: items are visited in input order, each
// joins the first existing cluster whose center is within the radius, and
// otherwise starts a new cluster centered on itself. A member may therefore
// sit in a cluster that is not the nearest one; this is a known approximation,
// not a k-means or DBSCAN result.
package cluster

import (
	"fmt"

	"shopd/internal/geo"
	"shopd/internal/modules/connection"
	"shopd/internal/modules/order"
	"shopd/internal/types"
)

const (
	DefaultWorkerRadiusKm = 2.0
	DefaultOrderRadiusKm  = 1.0
)

type WorkerCluster struct {
	ID      string
	Center  types.Point
	Members []types.ID
}

type OrderCluster struct {
	ID     string
	Center types.Point
	Orders []*order.Order
}

// WorkerClusterer is the strategy used by Index; ClusterWorkers is the default.
type WorkerClusterer func(conns []connection.Connection, radiusKm float64) []WorkerCluster

type group[T any] struct {
	center  types.Point
	members []T
}

func greedy[T any](items []T, pos func(T) (types.Point, bool), radiusKm float64) []group[T] {
	var groups []group[T]
	for _, it := range items {
		p, ok := pos(it)
		if !ok {
			continue
		}
		placed := false
		for i := range groups {
			if geo.Distance(groups[i].center, p) <= radiusKm {
				groups[i].members = append(groups[i].members, it)
				placed = true
				break
			}
		}
		if !placed {
			groups = append(groups, group[T]{center: p, members: []T{it}})
		}
	}
	return groups
}

// ClusterWorkers partitions connections with a valid location. Connections
// without one are skipped.
func ClusterWorkers(conns []connection.Connection, radiusKm float64) []WorkerCluster {
	groups := greedy(conns, func(c connection.Connection) (types.Point, bool) {
		if !c.HasLocation() {
			return types.Point{}, false
		}
		return *c.Location, true
	}, radiusKm)

	out := make([]WorkerCluster, 0, len(groups))
	for _, g := range groups {
		ids := make([]types.ID, len(g.members))
		for i, c := range g.members {
			ids[i] = c.WorkerID
		}
		out = append(out, WorkerCluster{ID: clusterID("w", g.center), Center: g.center, Members: ids})
	}
	return out
}

// ClusterOrders partitions orders by pickup location. Orders with a missing or
// invalid pickup are skipped.
func ClusterOrders(orders []*order.Order, radiusKm float64) []OrderCluster {
	groups := greedy(orders, func(o *order.Order) (types.Point, bool) {
		if o == nil || !o.Pickup.Valid() {
			return types.Point{}, false
		}
		return o.Pickup, true
	}, radiusKm)

	out := make([]OrderCluster, 0, len(groups))
	for _, g := range groups {
		out = append(out, OrderCluster{ID: clusterID("o", g.center), Center: g.center, Orders: g.members})
	}
	return out
}

// OrdersNearCluster returns every order in an order cluster whose center lies
// within maxDistanceKm of the worker cluster center.
func OrdersNearCluster(c WorkerCluster, orderClusters []OrderCluster, maxDistanceKm float64) []*order.Order {
	var out []*order.Order
	for _, oc := range orderClusters {
		if geo.Distance(c.Center, oc.Center) <= maxDistanceKm {
			out = append(out, oc.Orders...)
		}
	}
	return out
}

func clusterID(prefix string, center types.Point) string {
	return fmt.Sprintf("%s:%.4f:%.4f", prefix, center.Lat, center.Lng)
}
