// README: Notification messages, delivery channels and push token records.
package notification

import (
	"context"
	"errors"
	"time"

	"shopd/internal/types"
)

// Worker-facing event names.
const (
	EventNewOrderOffer    = "new-order-offer"
	EventOrderExpired     = "order-expired"
	EventOrderConfirmed   = "order-confirmed"
	EventOrderUnavailable = "order-unavailable"
	EventNearbyOrders     = "nearby-orders"
)

type Channel string

const (
	ChannelNone   Channel = "none"
	ChannelDirect Channel = "direct"
	ChannelPush   Channel = "push"
	ChannelBoth   Channel = "both"
)

var (
	ErrNoTokens       = errors.New("no push tokens for worker")
	ErrPermanentToken = errors.New("push token permanently invalid")
	ErrInvalidToken   = errors.New("worker id and token are required")
)

// Message is one worker-facing event. Data travels as the direct-channel
// payload and, stringified, as the push data map. Critical messages go out on
// the push channel even when the direct channel succeeded.
type Message struct {
	Event    string
	Title    string
	Body     string
	Data     map[string]any
	Critical bool
}

// Delivery reports how a single send went.
type Delivery struct {
	OK      bool
	Channel Channel
}

type Token struct {
	WorkerID  types.ID
	Token     string
	Platform  string
	CreatedAt time.Time
	LastUsed  *time.Time
}

type TokenStore interface {
	SaveToken(ctx context.Context, t Token) error
	ListTokens(ctx context.Context, workerID types.ID) ([]Token, error)
	DeleteToken(ctx context.Context, token string) error
	TouchTokens(ctx context.Context, tokens []string, at time.Time) error
}

type SendResult int

const (
	SendOK SendResult = iota
	SendTransientFailure
	SendPermanentFailure
)

func (r SendResult) String() string {
	switch r {
	case SendOK:
		return "ok"
	case SendPermanentFailure:
		return "permanent_failure"
	default:
		return "transient_failure"
	}
}

// PushSender is the store-and-forward mobile push channel.
type PushSender interface {
	Send(ctx context.Context, token, title, body string, data map[string]string) (SendResult, error)
}
