// README: Dual-channel delivery (direct connection first, push fallback) with token cleanup.
package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"shopd/internal/modules/connection"
	"shopd/internal/types"
)

// ConnectionLookup resolves a worker to its live direct channel.
type ConnectionLookup interface {
	Get(workerID types.ID) (connection.Connection, bool)
}

// ClusterMembers resolves a cluster id to its workers.
type ClusterMembers interface {
	Members(clusterID string) ([]types.ID, bool)
}

// Observer receives delivery outcomes; the metrics collector implements it.
type Observer interface {
	ObserveDelivery(channel Channel, ok bool)
	ObservePermanentToken()
}

const fanoutLimit = 16

type Gateway struct {
	conns    ConnectionLookup
	clusters ClusterMembers
	tokens   TokenStore
	push     PushSender
	limiter  *rate.Limiter
	observer Observer
	log      *slog.Logger
	now      func() time.Time

	cleanup sync.WaitGroup
}

type GatewayDeps struct {
	Connections ConnectionLookup
	Clusters    ClusterMembers
	Tokens      TokenStore
	Push        PushSender
	// PushPerSecond limits push sends; zero disables limiting.
	PushPerSecond float64
	Observer      Observer
	Logger        *slog.Logger
}

func NewGateway(deps GatewayDeps) *Gateway {
	g := &Gateway{
		conns:    deps.Connections,
		clusters: deps.Clusters,
		tokens:   deps.Tokens,
		push:     deps.Push,
		observer: deps.Observer,
		log:      deps.Logger,
		now:      time.Now,
	}
	if g.log == nil {
		g.log = slog.Default()
	}
	if deps.PushPerSecond > 0 {
		burst := int(deps.PushPerSecond)
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(deps.PushPerSecond), burst)
	}
	return g
}

// SendToWorker tries the direct channel, then push. Push is also used after a
// successful direct send when the message is critical.
func (g *Gateway) SendToWorker(ctx context.Context, workerID types.ID, msg Message) Delivery {
	direct := g.sendDirect(ctx, workerID, msg)

	pushed := false
	if !direct || msg.Critical {
		err := g.sendPush(ctx, workerID, msg)
		switch {
		case err == nil:
			pushed = true
		case errors.Is(err, ErrNoTokens):
			g.log.Debug("no push channel for worker", "worker_id", workerID, "event", msg.Event)
		default:
			g.log.Warn("push delivery failed", "worker_id", workerID, "event", msg.Event, "err", err)
		}
	}

	d := Delivery{OK: direct || pushed, Channel: ChannelNone}
	switch {
	case direct && pushed:
		d.Channel = ChannelBoth
	case direct:
		d.Channel = ChannelDirect
	case pushed:
		d.Channel = ChannelPush
	}
	if g.observer != nil {
		g.observer.ObserveDelivery(d.Channel, d.OK)
	}
	return d
}

// SendToWorkers fans out with bounded concurrency and returns the number of
// workers reached on at least one channel.
func (g *Gateway) SendToWorkers(ctx context.Context, workerIDs []types.ID, msg Message) int {
	var ok atomic.Int64
	var eg errgroup.Group
	eg.SetLimit(fanoutLimit)
	for _, id := range workerIDs {
		eg.Go(func() error {
			if g.SendToWorker(ctx, id, msg).OK {
				ok.Add(1)
			}
			return nil
		})
	}
	_ = eg.Wait()
	return int(ok.Load())
}

func (g *Gateway) SendToCluster(ctx context.Context, clusterID string, msg Message) int {
	if g.clusters == nil {
		return 0
	}
	members, found := g.clusters.Members(clusterID)
	if !found {
		g.log.Debug("cluster not found", "cluster_id", clusterID)
		return 0
	}
	return g.SendToWorkers(ctx, members, msg)
}

// SaveToken registers a push token for a worker.
func (g *Gateway) SaveToken(ctx context.Context, t Token) error {
	if t.WorkerID == "" || t.Token == "" {
		return ErrInvalidToken
	}
	return g.tokens.SaveToken(ctx, t)
}

func (g *Gateway) ListTokens(ctx context.Context, workerID types.ID) ([]Token, error) {
	return g.tokens.ListTokens(ctx, workerID)
}

func (g *Gateway) DeleteToken(ctx context.Context, token string) error {
	return g.tokens.DeleteToken(ctx, token)
}

// Wait blocks until pending token deletions finish.
func (g *Gateway) Wait() {
	g.cleanup.Wait()
}

func (g *Gateway) sendDirect(ctx context.Context, workerID types.ID, msg Message) bool {
	if g.conns == nil {
		return false
	}
	c, ok := g.conns.Get(workerID)
	if !ok || c.Transport == nil {
		return false
	}
	if err := c.Transport.Emit(ctx, msg.Event, msg.Data); err != nil {
		g.log.Warn("direct send failed", "worker_id", workerID, "event", msg.Event, "err", err)
		return false
	}
	return true
}

// sendPush delivers msg to every token of the worker. It returns nil when at
// least one token accepted the message and ErrNoTokens when the worker has
// none.
func (g *Gateway) sendPush(ctx context.Context, workerID types.ID, msg Message) error {
	if g.push == nil || g.tokens == nil {
		return ErrNoTokens
	}
	tokens, err := g.tokens.ListTokens(ctx, workerID)
	if err != nil {
		return fmt.Errorf("list push tokens: %w", err)
	}
	if len(tokens) == 0 {
		return ErrNoTokens
	}

	data := stringify(msg)
	delivered := 0
	var lastErr error
	used := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				lastErr = err
				break
			}
		}
		used = append(used, t.Token)
		res, err := g.push.Send(ctx, t.Token, msg.Title, msg.Body, data)
		switch {
		case res == SendOK:
			delivered++
		case res == SendPermanentFailure || errors.Is(err, ErrPermanentToken):
			g.log.Info("push token permanently invalid, deleting", "worker_id", workerID, "err", err)
			if g.observer != nil {
				g.observer.ObservePermanentToken()
			}
			g.deleteAsync(ctx, t.Token)
			lastErr = err
		default:
			lastErr = err
		}
	}
	if err := g.tokens.TouchTokens(ctx, used, g.now()); err != nil {
		g.log.Warn("touch push tokens failed", "worker_id", workerID, "err", err)
	}
	if delivered > 0 {
		return nil
	}
	if lastErr == nil {
		lastErr = errors.New("no token accepted the message")
	}
	return fmt.Errorf("push to %s: %w", workerID, lastErr)
}

func (g *Gateway) deleteAsync(ctx context.Context, token string) {
	g.cleanup.Add(1)
	go func() {
		defer g.cleanup.Done()
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := g.tokens.DeleteToken(dctx, token); err != nil {
			g.log.Warn("delete invalid push token failed", "err", err)
		}
	}()
}

func stringify(msg Message) map[string]string {
	out := make(map[string]string, len(msg.Data)+1)
	for k, v := range msg.Data {
		out[k] = fmt.Sprint(v)
	}
	out["type"] = msg.Event
	return out
}
