// README: Dispatch coordinator: per-order offer state machine with expiry timers and conditional assignment.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"shopd/internal/modules/connection"
	"shopd/internal/modules/matching"
	"shopd/internal/modules/notification"
	"shopd/internal/modules/order"
	"shopd/internal/types"
)

type record struct {
	order      *order.Order
	status     order.Status
	busy       bool
	offer      *Offer
	timer      Timer
	remaining  []matching.Candidate
	tried      map[types.ID]time.Time
	assignedTo types.ID
	updatedAt  time.Time
}

// Coordinator owns the in-flight offer table. At most one offer per order is
// active at any instant; the table lock is never held across I/O.
type Coordinator struct {
	store    OrderStore
	conns    Connections
	ranker   Ranker
	notifier Notifier
	journal  matching.Journal
	events   EventSink
	observer Observer
	clock    Clock
	log      *slog.Logger

	offerTTL   time.Duration
	retryAfter time.Duration
	baseCtx    context.Context

	mu     sync.Mutex
	orders map[types.ID]*record
}

type Deps struct {
	Store      OrderStore
	Conns      Connections
	Ranker     Ranker
	Notifier   Notifier
	Journal    matching.Journal
	Events     EventSink
	Observer   Observer
	Clock      Clock
	Logger     *slog.Logger
	OfferTTL   time.Duration
	RetryAfter time.Duration
	// BaseContext is used by expiry timers; it should live as long as the process.
	BaseContext context.Context
}

func NewCoordinator(d Deps) *Coordinator {
	c := &Coordinator{
		store:      d.Store,
		conns:      d.Conns,
		ranker:     d.Ranker,
		notifier:   d.Notifier,
		journal:    d.Journal,
		events:     d.Events,
		observer:   d.Observer,
		clock:      d.Clock,
		log:        d.Logger,
		offerTTL:   d.OfferTTL,
		retryAfter: d.RetryAfter,
		baseCtx:    d.BaseContext,
		orders:     make(map[types.ID]*record),
	}
	if c.journal == nil {
		c.journal = matching.NewMemoryJournal()
	}
	if c.clock == nil {
		c.clock = realClock{}
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	if c.offerTTL <= 0 {
		c.offerTTL = DefaultOfferTTL
	}
	if c.retryAfter <= 0 {
		c.retryAfter = DefaultRetryAfter
	}
	if c.baseCtx == nil {
		c.baseCtx = context.Background()
	}
	return c
}

// DispatchOrder offers o to its best eligible candidate. It is a no-op
// returning ErrOfferInFlight while another offer or dispatch for o is active.
func (c *Coordinator) DispatchOrder(ctx context.Context, o *order.Order) error {
	return c.dispatch(ctx, o, nil)
}

// DispatchBatch dispatches orders concurrently. eligible, when non-nil,
// restricts candidates to those worker ids. A failing order never stops the
// rest of the batch; it returns how many orders received an offer attempt.
func (c *Coordinator) DispatchBatch(ctx context.Context, orders []*order.Order, eligible map[types.ID]bool) int {
	var mu sync.Mutex
	started := 0
	var eg errgroup.Group
	eg.SetLimit(fanoutLimit)
	for _, o := range orders {
		eg.Go(func() error {
			err := c.safeDispatch(ctx, o, eligible)
			if err == nil {
				mu.Lock()
				started++
				mu.Unlock()
			}
			return nil
		})
	}
	_ = eg.Wait()
	return started
}

func (c *Coordinator) safeDispatch(ctx context.Context, o *order.Order, eligible map[types.ID]bool) (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("dispatch panicked", "order_id", orderIDOf(o), "panic", r)
			c.release(orderIDOf(o))
			err = fmt.Errorf("dispatch panic: %v", r)
		}
	}()
	err = c.dispatch(ctx, o, eligible)
	switch {
	case err == nil, errors.Is(err, ErrOfferInFlight), errors.Is(err, ErrAlreadyAssigned), errors.Is(err, ErrBadOrder):
	default:
		c.log.Warn("dispatch failed", "order_id", orderIDOf(o), "err", err)
	}
	return err
}

func (c *Coordinator) dispatch(ctx context.Context, o *order.Order, eligible map[types.ID]bool) error {
	if o == nil || o.ID == "" {
		return ErrBadOrder
	}
	if o.ShopperID != nil {
		return ErrAlreadyAssigned
	}

	now := c.clock.Now()
	c.mu.Lock()
	rec := c.orders[o.ID]
	if rec != nil {
		switch {
		case rec.status == order.StatusAssigned:
			c.mu.Unlock()
			return ErrAlreadyAssigned
		case rec.busy || rec.status == order.StatusOffered:
			c.mu.Unlock()
			return ErrOfferInFlight
		}
	} else {
		rec = &record{status: order.StatusPending, tried: make(map[types.ID]time.Time)}
		c.orders[o.ID] = rec
	}
	rec.order = o
	rec.busy = true
	rec.updatedAt = now
	c.mu.Unlock()

	if !o.Pickup.Valid() {
		c.log.Warn("order has invalid pickup location, skipping this cycle", "order_id", o.ID)
		c.release(o.ID)
		return fmt.Errorf("order %s pickup %v: %w", o.ID, o.Pickup, ErrBadOrder)
	}

	c.mergeJournal(ctx, o.ID)

	c.mu.Lock()
	skip := c.skipSetLocked(o.ID, now)
	c.mu.Unlock()

	var pool []connection.Connection
	for _, conn := range c.conns.Available() {
		if skip[conn.WorkerID] {
			continue
		}
		if eligible != nil && !eligible[conn.WorkerID] {
			continue
		}
		pool = append(pool, conn)
	}
	ranked := c.ranker.Rank(ctx, o, pool)

	c.mu.Lock()
	rec.remaining = ranked
	c.mu.Unlock()

	c.offerNext(o.ID)
	return nil
}

// mergeJournal pulls tried workers recorded by an earlier process.
func (c *Coordinator) mergeJournal(ctx context.Context, orderID types.ID) {
	tried, err := c.journal.TriedWorkers(ctx, orderID)
	if err != nil {
		c.log.Warn("offer journal unavailable", "order_id", orderID, "err", err)
		return
	}
	if len(tried) == 0 {
		return
	}
	at, ok, err := c.journal.GetDispatchedAt(ctx, orderID)
	if err != nil || !ok {
		at = c.clock.Now()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	rec := c.orders[orderID]
	if rec == nil {
		return
	}
	for id := range tried {
		if _, seen := rec.tried[id]; !seen {
			rec.tried[id] = at
		}
	}
}

// skipSetLocked returns workers that must not receive an offer for orderID:
// recently tried ones and those holding an active offer for another order.
func (c *Coordinator) skipSetLocked(orderID types.ID, now time.Time) map[types.ID]bool {
	skip := make(map[types.ID]bool)
	if rec := c.orders[orderID]; rec != nil {
		for id, at := range rec.tried {
			if now.Sub(at) < c.retryAfter {
				skip[id] = true
			}
		}
	}
	for id, r := range c.orders {
		if id == orderID || r.offer == nil {
			continue
		}
		if r.offer.State == OfferActive || r.offer.State == OfferAccepting {
			skip[r.offer.WorkerID] = true
		}
	}
	return skip
}

// offerNext walks the remaining ranked candidates until one is reached or the
// list is exhausted, in which case the order returns to pending. Offers run on
// the coordinator's base context, not on the request that triggered them.
func (c *Coordinator) offerNext(orderID types.ID) {
	ctx := c.baseCtx
	for {
		now := c.clock.Now()
		c.mu.Lock()
		rec := c.orders[orderID]
		if rec == nil || rec.status == order.StatusAssigned {
			c.mu.Unlock()
			return
		}
		if rec.offer != nil {
			// another path already placed an offer
			c.mu.Unlock()
			return
		}

		skip := c.skipSetLocked(orderID, now)
		var cand *matching.Candidate
		for len(rec.remaining) > 0 {
			next := rec.remaining[0]
			rec.remaining = rec.remaining[1:]
			if skip[next.WorkerID] {
				continue
			}
			if conn, ok := c.conns.Get(next.WorkerID); !ok || !conn.Available {
				continue
			}
			cand = &next
			break
		}

		if cand == nil {
			c.transitionLocked(rec, order.StatusPending)
			rec.busy = false
			rec.updatedAt = now
			o := rec.order
			c.mu.Unlock()
			c.log.Info("no eligible candidates, order stays pending", "order_id", orderID)
			c.emit(ctx, Event{Type: EventExhausted, OrderID: o.ID, At: now})
			return
		}

		offer := &Offer{
			ID:            uuid.NewString(),
			OrderID:       orderID,
			WorkerID:      cand.WorkerID,
			SentAt:        now,
			ExpiresAt:     now.Add(c.offerTTL),
			State:         OfferActive,
			DistanceKm:    cand.DistanceKm,
			TravelMinutes: cand.TravelMinutes,
		}
		offerID := offer.ID
		rec.tried[cand.WorkerID] = now
		rec.offer = offer
		c.transitionLocked(rec, order.StatusOffered)
		rec.busy = false
		rec.updatedAt = now
		rec.timer = c.clock.AfterFunc(c.offerTTL, func() {
			c.ExpireOffer(c.baseCtx, orderID, offerID)
		})
		o := rec.order
		msg := offerMessage(o, offer)
		c.mu.Unlock()

		if err := c.journal.RecordOffer(ctx, orderID, cand.WorkerID); err != nil {
			c.log.Warn("record offer failed", "order_id", orderID, "worker_id", cand.WorkerID, "err", err)
		}

		delivery := c.notifier.SendToWorker(ctx, cand.WorkerID, msg)
		latency := c.clock.Now().Sub(now)

		c.mu.Lock()
		if rec.offer == nil || rec.offer.ID != offerID {
			c.mu.Unlock()
			return
		}
		if delivery.OK {
			rec.offer.Channel = delivery.Channel
			c.mu.Unlock()
			c.log.Info("offer sent",
				"order_id", orderID, "worker_id", cand.WorkerID, "offer_id", offerID,
				"channel", delivery.Channel, "latency_ms", latency.Milliseconds(),
				"distance_km", cand.DistanceKm)
			c.observeOffer(delivery.Channel)
			c.emit(ctx, Event{Type: EventOffered, OrderID: orderID, WorkerID: cand.WorkerID, OfferID: offerID,
				Channel: delivery.Channel, LatencyMs: latency.Milliseconds(), At: now})
			return
		}

		rec.offer.State = OfferUnreachable
		c.stopTimerLocked(rec)
		rec.offer = nil
		c.transitionLocked(rec, order.StatusPending)
		rec.busy = true
		c.mu.Unlock()
		c.log.Warn("candidate unreachable, trying next", "order_id", orderID, "worker_id", cand.WorkerID)
		c.observeOutcome(EventUnreachable)
		c.emit(ctx, Event{Type: EventUnreachable, OrderID: orderID, WorkerID: cand.WorkerID, OfferID: offerID, At: now})
	}
}

// ExpireOffer resolves offerID as timed out. It reports whether a transition
// happened: firing for an offer that is no longer active is a no-op.
func (c *Coordinator) ExpireOffer(ctx context.Context, orderID types.ID, offerID string) bool {
	now := c.clock.Now()
	c.mu.Lock()
	rec := c.orders[orderID]
	if rec == nil || rec.offer == nil || rec.offer.ID != offerID || rec.offer.State != OfferActive {
		c.mu.Unlock()
		return false
	}
	off := *rec.offer
	rec.offer.State = OfferExpired
	c.stopTimerLocked(rec)
	rec.offer = nil
	c.transitionLocked(rec, order.StatusExpired)
	rec.busy = true
	rec.updatedAt = now
	o := rec.order
	c.mu.Unlock()

	c.log.Info("offer expired", "order_id", orderID, "worker_id", off.WorkerID, "offer_id", off.ID,
		"latency_ms", now.Sub(off.SentAt).Milliseconds())
	c.notifier.SendToWorker(ctx, off.WorkerID, expiredMessage(o, &off))
	c.observeOutcome(EventExpired)
	c.emit(ctx, Event{Type: EventExpired, OrderID: orderID, WorkerID: off.WorkerID, OfferID: off.ID,
		LatencyMs: now.Sub(off.SentAt).Milliseconds(), At: now})

	c.offerNext(orderID)
	return true
}

// Reject resolves the worker's active offer immediately and moves on to the
// next candidate.
func (c *Coordinator) Reject(ctx context.Context, orderID, workerID types.ID) error {
	now := c.clock.Now()
	c.mu.Lock()
	rec := c.orders[orderID]
	if rec == nil || rec.offer == nil || rec.offer.WorkerID != workerID || rec.offer.State != OfferActive {
		c.mu.Unlock()
		return ErrNoOffer
	}
	off := *rec.offer
	rec.offer.State = OfferRejected
	c.stopTimerLocked(rec)
	rec.offer = nil
	c.transitionLocked(rec, order.StatusPending)
	rec.busy = true
	rec.updatedAt = now
	c.mu.Unlock()

	c.log.Info("offer rejected", "order_id", orderID, "worker_id", workerID, "offer_id", off.ID,
		"latency_ms", now.Sub(off.SentAt).Milliseconds())
	c.observeOutcome(EventRejected)
	c.emit(ctx, Event{Type: EventRejected, OrderID: orderID, WorkerID: workerID, OfferID: off.ID,
		LatencyMs: now.Sub(off.SentAt).Milliseconds(), At: now})

	c.offerNext(orderID)
	return nil
}

// Accept confirms the order for workerID through the store's conditional
// assignment. Workers without an offer may also confirm; the store decides.
// A lost race returns ErrAlreadyAssigned after telling the worker.
func (c *Coordinator) Accept(ctx context.Context, orderID, workerID types.ID) error {
	if orderID == "" || workerID == "" {
		return ErrBadOrder
	}
	now := c.clock.Now()

	c.mu.Lock()
	rec := c.orders[orderID]
	if rec != nil && rec.status == order.StatusAssigned {
		winner := rec.assignedTo
		c.mu.Unlock()
		if winner == workerID {
			return nil
		}
		c.notifyUnavailable(ctx, orderID, workerID)
		return ErrAlreadyAssigned
	}
	var held *Offer
	if rec != nil && rec.offer != nil && rec.offer.WorkerID == workerID {
		switch rec.offer.State {
		case OfferActive:
			if !now.Before(rec.offer.ExpiresAt) {
				c.mu.Unlock()
				return ErrOfferExpired
			}
			rec.offer.State = OfferAccepting
			cp := *rec.offer
			held = &cp
		case OfferAccepting:
			c.mu.Unlock()
			return ErrOfferInFlight
		}
	}
	c.mu.Unlock()

	ok, err := c.store.AssignIfUnassigned(ctx, orderID, workerID)
	if err != nil {
		c.restoreHeld(orderID, held)
		return fmt.Errorf("assign order %s: %w", orderID, err)
	}
	if !ok {
		c.lostRace(ctx, orderID, workerID)
		return ErrAlreadyAssigned
	}

	done := c.clock.Now()
	c.mu.Lock()
	rec = c.orders[orderID]
	if rec == nil {
		rec = &record{status: order.StatusPending, tried: make(map[types.ID]time.Time)}
		c.orders[orderID] = rec
	}
	var displaced *Offer
	if rec.offer != nil {
		c.stopTimerLocked(rec)
		if rec.offer.WorkerID == workerID {
			rec.offer.State = OfferAccepted
		} else {
			rec.offer.State = OfferSuperseded
			cp := *rec.offer
			displaced = &cp
		}
		rec.offer = nil
	}
	c.transitionLocked(rec, order.StatusAssigned)
	rec.assignedTo = workerID
	rec.busy = false
	rec.remaining = nil
	rec.updatedAt = done
	o := rec.order
	c.mu.Unlock()

	var latency time.Duration
	if held != nil {
		latency = done.Sub(held.SentAt)
		if c.observer != nil {
			c.observer.ObserveAcceptLatency(latency)
		}
	}
	c.log.Info("order assigned", "order_id", orderID, "worker_id", workerID, "latency_ms", latency.Milliseconds(),
		"via_offer", held != nil)
	if err := c.journal.Clear(ctx, orderID); err != nil {
		c.log.Warn("clear offer journal failed", "order_id", orderID, "err", err)
	}
	c.notifier.SendToWorker(ctx, workerID, confirmedMessage(orderID, o))
	c.observeOutcome(EventAccepted)
	c.emit(ctx, Event{Type: EventAccepted, OrderID: orderID, WorkerID: workerID, LatencyMs: latency.Milliseconds(), At: done})

	if displaced != nil {
		c.notifyUnavailable(ctx, orderID, displaced.WorkerID)
		c.emit(ctx, Event{Type: EventSuperseded, OrderID: orderID, WorkerID: displaced.WorkerID, OfferID: displaced.ID, At: done})
	}
	return nil
}

// restoreHeld puts an offer back to active after a failed store write, or
// expires it if its deadline passed meanwhile.
func (c *Coordinator) restoreHeld(orderID types.ID, held *Offer) {
	if held == nil {
		return
	}
	c.mu.Lock()
	rec := c.orders[orderID]
	if rec == nil || rec.offer == nil || rec.offer.ID != held.ID || rec.offer.State != OfferAccepting {
		c.mu.Unlock()
		return
	}
	rec.offer.State = OfferActive
	lapsed := !c.clock.Now().Before(rec.offer.ExpiresAt)
	c.mu.Unlock()
	if lapsed {
		c.ExpireOffer(c.baseCtx, orderID, held.ID)
	}
}

// lostRace records that the store assigned the order elsewhere.
func (c *Coordinator) lostRace(ctx context.Context, orderID, workerID types.ID) {
	now := c.clock.Now()
	c.mu.Lock()
	var displaced *Offer
	if rec := c.orders[orderID]; rec != nil {
		if rec.offer != nil {
			c.stopTimerLocked(rec)
			if rec.offer.WorkerID != workerID {
				cp := *rec.offer
				displaced = &cp
			}
			rec.offer.State = OfferSuperseded
			rec.offer = nil
		}
		if rec.status != order.StatusAssigned {
			c.transitionLocked(rec, order.StatusAssigned)
		}
		rec.busy = false
		rec.remaining = nil
		rec.updatedAt = now
	}
	c.mu.Unlock()

	c.log.Info("lost assignment race", "order_id", orderID, "worker_id", workerID)
	c.observeOutcome(EventLostRace)
	c.emit(ctx, Event{Type: EventLostRace, OrderID: orderID, WorkerID: workerID, At: now})
	c.notifyUnavailable(ctx, orderID, workerID)
	if displaced != nil {
		c.notifyUnavailable(ctx, orderID, displaced.WorkerID)
	}
}

// Sweep force-expires offers whose deadline passed without a terminal
// transition, escalates offers stuck in accepting, and prunes old records.
// It returns the number of offers it expired.
func (c *Coordinator) Sweep(ctx context.Context) int {
	now := c.clock.Now()
	type due struct {
		orderID types.ID
		offerID string
	}
	var expire []due
	var stuck []due

	c.mu.Lock()
	for id, rec := range c.orders {
		switch {
		case rec.offer != nil && rec.offer.State == OfferActive && !now.Before(rec.offer.ExpiresAt):
			expire = append(expire, due{id, rec.offer.ID})
		case rec.offer != nil && rec.offer.State == OfferAccepting && now.Sub(rec.offer.ExpiresAt) > c.offerTTL:
			rec.offer.State = OfferActive
			stuck = append(stuck, due{id, rec.offer.ID})
		case rec.status == order.StatusAssigned && now.Sub(rec.updatedAt) > tombstoneTTL:
			delete(c.orders, id)
		case rec.status == order.StatusPending && !rec.busy && rec.offer == nil && now.Sub(rec.updatedAt) > idleTTL:
			delete(c.orders, id)
		}
	}
	c.mu.Unlock()

	for _, d := range stuck {
		c.log.Error("offer stuck in accepting, forcing expiry", "order_id", d.orderID, "offer_id", d.offerID)
		c.emit(ctx, Event{Type: EventEscalated, OrderID: d.orderID, OfferID: d.offerID, At: now})
	}
	n := 0
	for _, d := range append(expire, stuck...) {
		if c.ExpireOffer(ctx, d.orderID, d.offerID) {
			n++
		}
	}
	if n > 0 {
		c.log.Info("sweep expired lapsed offers", "count", n)
	}
	return n
}

// ActiveOffer returns a copy of the order's outstanding offer.
func (c *Coordinator) ActiveOffer(orderID types.ID) (Offer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec := c.orders[orderID]
	if rec == nil || rec.offer == nil {
		return Offer{}, false
	}
	return *rec.offer, true
}

// OrderStatus returns the coordinator's view of an order.
func (c *Coordinator) OrderStatus(orderID types.ID) (order.Status, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec := c.orders[orderID]
	if rec == nil {
		return "", false
	}
	return rec.status, true
}

func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Status{TrackedOrders: len(c.orders)}
	for _, rec := range c.orders {
		if rec.offer != nil {
			s.OffersInFlight++
		}
		if rec.status == order.StatusAssigned {
			s.Assigned++
		}
	}
	return s
}

// release clears the dispatch flag after an aborted cycle.
func (c *Coordinator) release(orderID types.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rec := c.orders[orderID]; rec != nil && rec.offer == nil {
		rec.busy = false
		if rec.status != order.StatusAssigned {
			rec.status = order.StatusPending
		}
	}
}

func (c *Coordinator) transitionLocked(rec *record, to order.Status) {
	if rec.status != to && !CanTransition(rec.status, to) {
		c.log.Error("unexpected dispatch transition", "order_id", orderIDOf(rec.order), "from", rec.status, "to", to)
	}
	rec.status = to
}

func (c *Coordinator) stopTimerLocked(rec *record) {
	if rec.timer != nil {
		rec.timer.Stop()
		rec.timer = nil
	}
}

func (c *Coordinator) notifyUnavailable(ctx context.Context, orderID, workerID types.ID) {
	c.notifier.SendToWorker(ctx, workerID, unavailableMessage(orderID))
}

func (c *Coordinator) emit(ctx context.Context, e Event) {
	if c.events == nil {
		return
	}
	if err := c.events.Publish(ctx, e); err != nil {
		c.log.Warn("publish dispatch event failed", "type", e.Type, "order_id", e.OrderID, "err", err)
	}
}

func (c *Coordinator) observeOffer(ch notification.Channel) {
	if c.observer != nil {
		c.observer.ObserveOffer(ch)
	}
}

func (c *Coordinator) observeOutcome(outcome string) {
	if c.observer != nil {
		c.observer.ObserveOutcome(outcome)
	}
}

func orderIDOf(o *order.Order) types.ID {
	if o == nil {
		return ""
	}
	return o.ID
}

func offerMessage(o *order.Order, off *Offer) notification.Message {
	earn := o.EstimatedEarnings()
	return notification.Message{
		Event: notification.EventNewOrderOffer,
		Title: "New order nearby",
		Body:  fmt.Sprintf("%.1f km away, earn %s", off.DistanceKm, earn),
		Data: map[string]any{
			"order_id":           string(o.ID),
			"offer_id":           off.ID,
			"order_type":         string(o.Type),
			"distance_km":        strconv.FormatFloat(off.DistanceKm, 'f', 2, 64),
			"travel_minutes":     off.TravelMinutes,
			"estimated_earnings": earn.Amount,
			"currency":           earn.Currency,
			"pickup_lat":         o.Pickup.Lat,
			"pickup_lng":         o.Pickup.Lng,
			"dropoff_lat":        o.Dropoff.Lat,
			"dropoff_lng":        o.Dropoff.Lng,
			"expires_at":         off.ExpiresAt.UTC().Format(time.RFC3339),
		},
	}
}

func expiredMessage(o *order.Order, off *Offer) notification.Message {
	return notification.Message{
		Event: notification.EventOrderExpired,
		Title: "Offer expired",
		Body:  "The order offer has expired.",
		Data: map[string]any{
			"order_id":   string(orderIDOf(o)),
			"offer_id":   off.ID,
			"expired_at": off.ExpiresAt.UTC().Format(time.RFC3339),
		},
		Critical: true,
	}
}

func confirmedMessage(orderID types.ID, o *order.Order) notification.Message {
	data := map[string]any{"order_id": string(orderID)}
	if o != nil {
		earn := o.EstimatedEarnings()
		data["estimated_earnings"] = earn.Amount
		data["currency"] = earn.Currency
	}
	return notification.Message{
		Event:    notification.EventOrderConfirmed,
		Title:    "Order confirmed",
		Body:     "The order is yours.",
		Data:     data,
		Critical: true,
	}
}

func unavailableMessage(orderID types.ID) notification.Message {
	return notification.Message{
		Event: notification.EventOrderUnavailable,
		Title: "Order taken",
		Body:  "This order is no longer available.",
		Data:  map[string]any{"order_id": string(orderID)},
	}
}
