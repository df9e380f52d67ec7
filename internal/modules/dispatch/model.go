// README: Offer records, per-order dispatch states and the transition table.
package dispatch

import (
	"context"
	"errors"
	"time"

	"shopd/internal/modules/connection"
	"shopd/internal/modules/matching"
	"shopd/internal/modules/notification"
	"shopd/internal/modules/order"
	"shopd/internal/types"
)

const (
	DefaultOfferTTL = 60 * time.Second
	// DefaultRetryAfter is how long a worker who let an offer lapse or
	// declined it is skipped for that order.
	DefaultRetryAfter = 10 * time.Minute
	// tombstoneTTL keeps assigned records around so late accepts and timer
	// firings resolve against them.
	tombstoneTTL = 10 * time.Minute
	idleTTL      = time.Hour
	fanoutLimit  = 8
)

var (
	ErrBadOrder        = errors.New("order missing or invalid")
	ErrOfferInFlight   = errors.New("order already has an outstanding offer")
	ErrNoOffer         = errors.New("no outstanding offer for worker")
	ErrOfferExpired    = errors.New("offer expired")
	ErrAlreadyAssigned = errors.New("order no longer available")
)

type OfferState string

const (
	OfferActive      OfferState = "active"
	OfferAccepting   OfferState = "accepting"
	OfferAccepted    OfferState = "accepted"
	OfferRejected    OfferState = "rejected"
	OfferExpired     OfferState = "expired"
	OfferUnreachable OfferState = "unreachable"
	OfferSuperseded  OfferState = "superseded"
)

// Offer is one outstanding notification of an order to a worker.
type Offer struct {
	ID            string
	OrderID       types.ID
	WorkerID      types.ID
	SentAt        time.Time
	ExpiresAt     time.Time
	Channel       notification.Channel
	State         OfferState
	DistanceKm    float64
	TravelMinutes int
}

// AllowedTransitions is the per-order dispatch state flow. Pending→Assigned
// covers a direct confirm-assignment call without an offer.
var AllowedTransitions = map[order.Status][]order.Status{
	order.StatusPending: {order.StatusOffered, order.StatusAssigned, order.StatusPending},
	order.StatusOffered: {order.StatusAssigned, order.StatusExpired, order.StatusPending},
	order.StatusExpired: {order.StatusOffered, order.StatusPending, order.StatusAssigned},
}

func CanTransition(from, to order.Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// OrderStore is the conditional-write side of the external order store.
type OrderStore interface {
	AssignIfUnassigned(ctx context.Context, orderID, workerID types.ID) (bool, error)
}

type Connections interface {
	Available() []connection.Connection
	Get(workerID types.ID) (connection.Connection, bool)
}

type Ranker interface {
	Rank(ctx context.Context, o *order.Order, conns []connection.Connection) []matching.Candidate
}

type Notifier interface {
	SendToWorker(ctx context.Context, workerID types.ID, msg notification.Message) notification.Delivery
}

// Event is a structured record of one transition.
type Event struct {
	Type      string               `json:"type"`
	OrderID   types.ID             `json:"order_id"`
	WorkerID  types.ID             `json:"worker_id,omitempty"`
	OfferID   string               `json:"offer_id,omitempty"`
	Channel   notification.Channel `json:"channel,omitempty"`
	LatencyMs int64                `json:"latency_ms,omitempty"`
	At        time.Time            `json:"at"`
}

const (
	EventOffered     = "offered"
	EventUnreachable = "unreachable"
	EventAccepted    = "assigned"
	EventRejected    = "rejected"
	EventExpired     = "expired"
	EventLostRace    = "lost_race"
	EventExhausted   = "no_candidates"
	EventSuperseded  = "superseded"
	EventEscalated   = "escalated"
)

type EventSink interface {
	Publish(ctx context.Context, e Event) error
}

// Observer receives transition outcomes for metrics.
type Observer interface {
	ObserveOffer(channel notification.Channel)
	ObserveOutcome(outcome string)
	ObserveAcceptLatency(d time.Duration)
}

// Timer is the part of *time.Timer the coordinator needs.
type Timer interface {
	Stop() bool
}

type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Status is the operational snapshot exposed to operators.
type Status struct {
	TrackedOrders  int `json:"tracked_orders"`
	OffersInFlight int `json:"offers_in_flight"`
	Assigned       int `json:"assigned"`
}
