// README: Candidate ranking inputs and outputs.
package matching

import (
	"shopd/internal/modules/connection"
	"shopd/internal/types"
)

const (
	DefaultMaxRadiusKm      = 10.0
	DefaultMaxTravelMinutes = 15
	DefaultAvgSpeedKmh      = 25.0
	// DefaultJitterMax bounds the random fairness term added to every score.
	DefaultJitterMax = 0.5

	ratingBaseline      = 3.0
	ratingWeight        = 0.5
	completedWeight     = 0.1
	completedBonusLimit = 2.0
)

// Params bounds which workers are eligible for an order.
type Params struct {
	MaxRadiusKm      float64
	MaxTravelMinutes int
	AvgSpeedKmh      float64
	JitterMax        float64
}

func DefaultParams() Params {
	return Params{
		MaxRadiusKm:      DefaultMaxRadiusKm,
		MaxTravelMinutes: DefaultMaxTravelMinutes,
		AvgSpeedKmh:      DefaultAvgSpeedKmh,
		JitterMax:        DefaultJitterMax,
	}
}

// Candidate is one eligible worker for an order. Lower Score is better.
type Candidate struct {
	WorkerID      types.ID
	Location      types.Point
	DistanceKm    float64
	TravelMinutes int
	Score         float64
	Connection    connection.Connection
}

// Jitter supplies the fairness term. *rand.Rand satisfies it.
type Jitter interface {
	Float64() float64
}
