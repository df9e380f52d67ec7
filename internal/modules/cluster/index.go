// README: Cached worker clusters used to resolve cluster ids to members.
package cluster

import (
	"sync"

	"shopd/internal/modules/connection"
	"shopd/internal/types"
)

// Index keeps the most recent worker partition.
type Index struct {
	mu       sync.RWMutex
	radiusKm float64
	strategy WorkerClusterer
	clusters []WorkerCluster
	byID     map[string][]types.ID
}

func NewIndex(radiusKm float64, strategy WorkerClusterer) *Index {
	if radiusKm <= 0 {
		radiusKm = DefaultWorkerRadiusKm
	}
	if strategy == nil {
		strategy = ClusterWorkers
	}
	return &Index{radiusKm: radiusKm, strategy: strategy, byID: map[string][]types.ID{}}
}

// Rebuild recomputes the partition from a registry snapshot and returns it.
func (ix *Index) Rebuild(conns []connection.Connection) []WorkerCluster {
	clusters := ix.strategy(conns, ix.radiusKm)
	byID := make(map[string][]types.ID, len(clusters))
	for _, c := range clusters {
		byID[c.ID] = append([]types.ID(nil), c.Members...)
	}
	ix.mu.Lock()
	ix.clusters = clusters
	ix.byID = byID
	ix.mu.Unlock()
	return clusters
}

func (ix *Index) Members(clusterID string) ([]types.ID, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	m, ok := ix.byID[clusterID]
	if !ok {
		return nil, false
	}
	return append([]types.ID(nil), m...), true
}

func (ix *Index) Clusters() []WorkerCluster {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return append([]WorkerCluster(nil), ix.clusters...)
}

func (ix *Index) Count() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.clusters)
}
