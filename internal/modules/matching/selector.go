// README: Candidate selection: distance/travel-time filter plus light performance and fairness scoring.
package matching

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"shopd/internal/geo"
	"shopd/internal/modules/connection"
	"shopd/internal/modules/order"
	"shopd/internal/types"
)

// RankCandidates returns the available, located workers that can reach the
// order pickup within p, best first. It is a greedy per-order ranking with no
// joint optimisation across orders.
func RankCandidates(o *order.Order, conns []connection.Connection, p Params, jitter Jitter) []Candidate {
	if o == nil || !o.Pickup.Valid() {
		return nil
	}
	var out []Candidate
	for _, c := range conns {
		if !c.Available || !c.HasLocation() {
			continue
		}
		dist := geo.Distance(*c.Location, o.Pickup)
		if p.MaxRadiusKm > 0 && dist > p.MaxRadiusKm {
			continue
		}
		speed := p.AvgSpeedKmh
		if c.Profile.SpeedKmh > 0 {
			speed = c.Profile.SpeedKmh
		}
		travel := geo.TravelTimeMinutes(dist, speed)
		if p.MaxTravelMinutes > 0 && travel > p.MaxTravelMinutes {
			continue
		}
		out = append(out, Candidate{
			WorkerID:      c.WorkerID,
			Location:      *c.Location,
			DistanceKm:    dist,
			TravelMinutes: travel,
			Score:         score(dist, c.Profile, p.JitterMax, jitter),
			Connection:    c,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score < out[j].Score })
	return out
}

func score(dist float64, prof connection.Profile, jitterMax float64, jitter Jitter) float64 {
	s := dist
	if prof.HasRating {
		s -= (prof.AvgRating - ratingBaseline) * ratingWeight
	}
	s -= math.Min(float64(prof.CompletedOrderCount)*completedWeight, completedBonusLimit)
	if jitter != nil && jitterMax > 0 {
		s += jitter.Float64() * jitterMax
	}
	return s
}

// TravelEstimator refines heuristic travel times with a routing backend. It
// returns one duration per origin, in order.
type TravelEstimator interface {
	TravelTimes(ctx context.Context, origins []types.Point, dest types.Point) ([]time.Duration, error)
}

// Selector ranks candidates with a shared jitter source and optional route
// refinement of the top results.
type Selector struct {
	params    Params
	estimator TravelEstimator
	refineTop int
	log       *slog.Logger

	mu  sync.Mutex
	rng Jitter
}

type SelectorOption func(*Selector)

// WithJitter replaces the fairness source, e.g. with a seeded *rand.Rand in tests.
func WithJitter(j Jitter) SelectorOption {
	return func(s *Selector) { s.rng = j }
}

// WithTravelEstimator re-checks the top n heuristic candidates against est.
func WithTravelEstimator(est TravelEstimator, n int) SelectorOption {
	return func(s *Selector) {
		s.estimator = est
		s.refineTop = n
	}
}

func WithLogger(l *slog.Logger) SelectorOption {
	return func(s *Selector) { s.log = l }
}

func NewSelector(p Params, opts ...SelectorOption) *Selector {
	s := &Selector{
		params: p,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Selector) Params() Params { return s.params }

// Rank is RankCandidates plus route refinement. Refinement failures keep the
// heuristic ranking.
func (s *Selector) Rank(ctx context.Context, o *order.Order, conns []connection.Connection) []Candidate {
	s.mu.Lock()
	ranked := RankCandidates(o, conns, s.params, s.rng)
	s.mu.Unlock()

	if s.estimator == nil || s.refineTop <= 0 || len(ranked) == 0 {
		return ranked
	}
	return s.refine(ctx, o, ranked)
}

func (s *Selector) refine(ctx context.Context, o *order.Order, ranked []Candidate) []Candidate {
	n := s.refineTop
	if n > len(ranked) {
		n = len(ranked)
	}
	origins := make([]types.Point, n)
	for i := 0; i < n; i++ {
		origins[i] = ranked[i].Location
	}
	durations, err := s.estimator.TravelTimes(ctx, origins, o.Pickup)
	if err != nil || len(durations) != n {
		s.log.Warn("travel refinement unavailable, keeping heuristic ranking", "order_id", o.ID, "err", err)
		return ranked
	}

	out := make([]Candidate, 0, len(ranked))
	for i, c := range ranked {
		if i < n && durations[i] > 0 {
			c.TravelMinutes = int(math.Round(durations[i].Minutes()))
			if s.params.MaxTravelMinutes > 0 && c.TravelMinutes > s.params.MaxTravelMinutes {
				continue
			}
		}
		out = append(out, c)
	}
	return out
}
