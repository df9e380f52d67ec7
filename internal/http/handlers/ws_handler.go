// README: Websocket direct channel: registers the shopper and handles location, availability and offer replies.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"shopd/internal/http/middleware"
	"shopd/internal/modules/connection"
	"shopd/internal/modules/dispatch"
	"shopd/internal/modules/location"
	"shopd/internal/types"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 75 * time.Second
	pingPeriod = 30 * time.Second
	maxMessage = 4096
)

// Inbound event names.
const (
	wsRegister        = "register"
	wsLocationUpdate  = "location-update"
	wsSetAvailability = "set-availability"
	wsAcceptOffer     = "accept-offer"
	wsRejectOffer     = "reject-offer"
	wsPing            = "ping"
)

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// wsTransport serialises writes; gorilla connections allow one writer at a time.
type wsTransport struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (t *wsTransport) Emit(ctx context.Context, event string, payload any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = t.conn.SetWriteDeadline(deadline)
	return t.conn.WriteJSON(outbound{Event: event, Data: payload})
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}

func (t *wsTransport) ping() error {
	return t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

type WSHandler struct {
	registry *connection.Registry
	coord    *dispatch.Coordinator
	location *location.Service
	upgrader websocket.Upgrader
	log      *slog.Logger
}

func NewWSHandler(registry *connection.Registry, coord *dispatch.Coordinator, loc *location.Service, log *slog.Logger) *WSHandler {
	return &WSHandler{
		registry: registry,
		coord:    coord,
		location: loc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// mobile clients send no Origin
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log: log,
	}
}

// Serve upgrades the request and owns the connection until it closes. The
// shopper id comes from the verified token, or the shopper_id query param
// when auth is disabled.
func (h *WSHandler) Serve(c *gin.Context) {
	id := middleware.CallerUID(c)
	if id == "" {
		id = c.Query("shopper_id")
	}
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid shopper id")
		return
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "shopper_id", id, "err", err)
		return
	}
	h.run(c.Request.Context(), types.ID(id), conn)
}

func (h *WSHandler) run(ctx context.Context, id types.ID, conn *websocket.Conn) {
	t := &wsTransport{conn: conn}
	if prev := h.registry.Register(id, t); prev != nil {
		_ = prev.Close()
	}
	h.log.Info("shopper connected", "worker_id", id)

	done := make(chan struct{})
	defer func() {
		close(done)
		if h.registry.Unregister(id, t) {
			h.location.Forget(context.WithoutCancel(ctx), id)
			h.log.Info("shopper disconnected", "worker_id", id)
		}
		_ = conn.Close()
	}()

	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := t.ping(); err != nil {
					return
				}
			}
		}
	}()

	conn.SetReadLimit(maxMessage)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		h.registry.Touch(id)
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	_ = t.Emit(ctx, "registered", gin.H{"shopper_id": id})

	for {
		var msg envelope
		if err := conn.ReadJSON(&msg); err != nil {
			var syntaxErr *json.SyntaxError
			if errors.As(err, &syntaxErr) {
				_ = t.Emit(ctx, "error", gin.H{"error": "invalid json"})
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Debug("websocket read ended", "worker_id", id, "err", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		h.registry.Touch(id)
		h.handle(ctx, id, t, msg)
	}
}

type wsLocation struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type wsAvailability struct {
	Available bool `json:"available"`
}

type wsOffer struct {
	OrderID string `json:"order_id"`
}

func (h *WSHandler) handle(ctx context.Context, id types.ID, t *wsTransport, msg envelope) {
	fail := func(err error) {
		_ = t.Emit(ctx, "error", gin.H{"event": msg.Event, "error": err.Error()})
	}
	switch msg.Event {
	case wsRegister:
		_ = t.Emit(ctx, "registered", gin.H{"shopper_id": id})
	case wsPing:
		_ = t.Emit(ctx, "pong", nil)
	case wsLocationUpdate:
		var p wsLocation
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			fail(err)
			return
		}
		if err := h.location.Update(ctx, location.Update{WorkerID: id, Position: types.Point{Lat: p.Lat, Lng: p.Lng}}); err != nil {
			fail(err)
		}
	case wsSetAvailability:
		var a wsAvailability
		if err := json.Unmarshal(msg.Data, &a); err != nil {
			fail(err)
			return
		}
		h.registry.SetAvailable(id, a.Available)
		_ = t.Emit(ctx, "availability", gin.H{"available": a.Available})
	case wsAcceptOffer, wsRejectOffer:
		var o wsOffer
		if err := json.Unmarshal(msg.Data, &o); err != nil || !isValidID(o.OrderID) {
			fail(dispatch.ErrBadOrder)
			return
		}
		var err error
		if msg.Event == wsAcceptOffer {
			err = h.coord.Accept(ctx, types.ID(o.OrderID), id)
		} else {
			err = h.coord.Reject(ctx, types.ID(o.OrderID), id)
		}
		if err != nil {
			_ = t.Emit(ctx, "error", gin.H{"event": msg.Event, "order_id": o.OrderID, "error": err.Error()})
		}
	default:
		fail(errors.New("unknown event"))
	}
}
