// README: Router tests covering operator endpoints, shopper endpoints, auth and the websocket channel.
package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httptransport "shopd/internal/http"
	"shopd/internal/http/handlers"
	"shopd/internal/infra"
	"shopd/internal/modules/cluster"
	"shopd/internal/modules/connection"
	"shopd/internal/modules/dispatch"
	"shopd/internal/modules/location"
	"shopd/internal/modules/matching"
	"shopd/internal/modules/notification"
	"shopd/internal/modules/order"
	"shopd/internal/modules/scanner"
	"shopd/internal/types"
)

var pickup = types.Point{Lat: -1.95, Lng: 30.06}

type memOrders struct {
	mu     sync.Mutex
	orders map[types.ID]*order.Order
}

func (m *memOrders) Get(_ context.Context, id types.ID) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memOrders) AssignIfUnassigned(_ context.Context, orderID, workerID types.ID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok || o.ShopperID != nil {
		return false, nil
	}
	w := workerID
	o.ShopperID = &w
	o.Status = order.StatusAssigned
	return true, nil
}

type fixedScanner struct{}

func (fixedScanner) ScanNow(context.Context) (scanner.Result, error) {
	return scanner.Result{Orders: 4, Workers: 2, Dispatched: 2}, nil
}

type recordingTransport struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingTransport) Emit(_ context.Context, event string, _ any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingTransport) Close() error { return nil }

func (r *recordingTransport) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type stubVerifier struct {
	tokens map[string]*infra.FirebaseToken
}

func (s stubVerifier) VerifyIDToken(_ context.Context, raw string) (*infra.FirebaseToken, error) {
	if t, ok := s.tokens[raw]; ok {
		return t, nil
	}
	return nil, io.EOF
}

type fixture struct {
	registry *connection.Registry
	orders   *memOrders
	coord    *dispatch.Coordinator
	handler  http.Handler
}

func newFixture(t *testing.T, verifier infra.TokenVerifier) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	registry := connection.NewRegistry(log)
	idx := cluster.NewIndex(0, nil)
	orders := &memOrders{orders: map[types.ID]*order.Order{
		"o1": {ID: "o1", Type: order.TypeRegular, Pickup: pickup, Dropoff: pickup, Status: order.StatusPending,
			Fees: order.Fees{DeliveryFee: 1000, Currency: "RWF"}},
	}}
	gateway := notification.NewGateway(notification.GatewayDeps{
		Connections: registry,
		Clusters:    idx,
		Tokens:      notification.NewMemoryStore(),
		Logger:      log,
	})
	params := matching.DefaultParams()
	params.JitterMax = 0
	coord := dispatch.NewCoordinator(dispatch.Deps{
		Store:    orders,
		Conns:    registry,
		Ranker:   matching.NewSelector(params),
		Notifier: gateway,
		Logger:   log,
	})

	srv := httptransport.NewServer(httptransport.ServerDeps{
		Registry:      registry,
		Clusters:      idx,
		Coordinator:   coord,
		Trigger:       &dispatch.Trigger{Orders: orders, Coordinator: coord, Scanner: fixedScanner{}},
		Location:      location.NewService(registry, location.Options{Logger: log}),
		Notifications: gateway,
		Verifier:      verifier,
		Logger:        log,
	})
	return &fixture{registry: registry, orders: orders, coord: coord, handler: srv.Routes()}
}

func (f *fixture) do(method, path string, body any, bearer string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func (f *fixture) online(id types.ID, km float64) *recordingTransport {
	tr := &recordingTransport{}
	f.registry.Register(id, tr)
	f.registry.UpdateLocation(id, types.Point{Lat: pickup.Lat + km/111.195, Lng: pickup.Lng})
	f.registry.SetAvailable(id, true)
	return tr
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)
	w := f.do(http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
}

func TestStatus(t *testing.T) {
	f := newFixture(t, nil)
	f.online("w1", 1)
	f.registry.Register("w2", &recordingTransport{})

	w := f.do(http.MethodGet, "/api/dispatch/status", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var got handlers.StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, 2, got.Connections)
	assert.Equal(t, 1, got.Available)
	assert.Equal(t, 0, got.OffersInFlight)
}

func TestUpdateLocation(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodPut, "/api/shoppers/w1/location", map[string]any{"lat": -1.95, "lng": 30.06}, "")
	assert.Equal(t, http.StatusConflict, w.Code, "not connected")

	f.registry.Register("w1", &recordingTransport{})
	w = f.do(http.MethodPut, "/api/shoppers/w1/location", map[string]any{"lat": -1.95, "lng": 30.06}, "")
	assert.Equal(t, http.StatusOK, w.Code)
	conn, _ := f.registry.Get("w1")
	require.NotNil(t, conn.Location)
	assert.Equal(t, -1.95, conn.Location.Lat)

	w = f.do(http.MethodPut, "/api/shoppers/w1/location", map[string]any{"lat": 120, "lng": 30.06}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = f.do(http.MethodPut, "/api/shoppers/w1/location", map[string]any{"lat": 1}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSetAvailability(t *testing.T) {
	f := newFixture(t, nil)
	f.registry.Register("w1", &recordingTransport{})

	w := f.do(http.MethodPut, "/api/shoppers/w1/availability", map[string]any{"available": true}, "")
	assert.Equal(t, http.StatusOK, w.Code)
	conn, _ := f.registry.Get("w1")
	assert.True(t, conn.Available)

	w = f.do(http.MethodPut, "/api/shoppers/w1/availability", map[string]any{}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTokens(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodPost, "/api/shoppers/w1/tokens", map[string]any{"token": "tok-1", "platform": "ios"}, "")
	assert.Equal(t, http.StatusCreated, w.Code)
	w = f.do(http.MethodPost, "/api/shoppers/w1/tokens", map[string]any{"token": ""}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodDelete, "/api/shoppers/w2/tokens/tok-1", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code, "token belongs to another shopper")
	w = f.do(http.MethodDelete, "/api/shoppers/w1/tokens/tok-1", nil, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestDispatchOrderAndAccept(t *testing.T) {
	f := newFixture(t, nil)
	tr := f.online("w1", 1)

	w := f.do(http.MethodPost, "/api/dispatch/orders/o1", nil, "")
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"worker_id":"w1"`)
	assert.Contains(t, tr.seen(), notification.EventNewOrderOffer)

	w = f.do(http.MethodPost, "/api/dispatch/orders/o1", nil, "")
	assert.Equal(t, http.StatusConflict, w.Code, "offer in flight")

	w = f.do(http.MethodPost, "/api/shoppers/w1/offers/o1/accept", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, tr.seen(), notification.EventOrderConfirmed)

	w = f.do(http.MethodPost, "/api/shoppers/w2/offers/o1/accept", nil, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(http.MethodPost, "/api/dispatch/orders/missing", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRejectWithoutOffer(t *testing.T) {
	f := newFixture(t, nil)
	w := f.do(http.MethodPost, "/api/shoppers/w1/offers/o1/reject", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRunAll(t *testing.T) {
	f := newFixture(t, nil)
	w := f.do(http.MethodPost, "/api/dispatch/run", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"dispatched":2`)
}

func TestAuthEnforced(t *testing.T) {
	f := newFixture(t, stubVerifier{tokens: map[string]*infra.FirebaseToken{
		"shopper-a": {UID: "a", Claims: map[string]interface{}{"role": "shopper"}},
		"ops":       {UID: "op", Claims: map[string]interface{}{"role": "ops"}},
	}})
	f.registry.Register("a", &recordingTransport{})

	w := f.do(http.MethodPut, "/api/shoppers/b/availability", map[string]any{"available": true}, "shopper-a")
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = f.do(http.MethodPut, "/api/shoppers/a/availability", map[string]any{"available": true}, "shopper-a")
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodGet, "/api/dispatch/status", nil, "shopper-a")
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = f.do(http.MethodGet, "/api/dispatch/status", nil, "ops")
	assert.Equal(t, http.StatusOK, w.Code)
	w = f.do(http.MethodGet, "/api/dispatch/status", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

type wsFrame struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

func readUntil(t *testing.T, conn *websocket.Conn, event string) wsFrame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var f wsFrame
		require.NoError(t, conn.ReadJSON(&f))
		if f.Event == event {
			return f
		}
	}
}

func TestWebsocketFlow(t *testing.T) {
	f := newFixture(t, nil)
	srv := httptest.NewServer(f.handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?shopper_id=w1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	readUntil(t, conn, "registered")

	require.NoError(t, conn.WriteJSON(map[string]any{"event": "location-update", "data": map[string]any{"lat": pickup.Lat + 0.005, "lng": pickup.Lng}}))
	require.NoError(t, conn.WriteJSON(map[string]any{"event": "set-availability", "data": map[string]any{"available": true}}))
	readUntil(t, conn, "availability")

	c, ok := f.registry.Get("w1")
	require.True(t, ok)
	assert.True(t, c.Available)
	assert.True(t, c.HasLocation())

	resp, err := http.Post(srv.URL+"/api/dispatch/orders/o1", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	offer := readUntil(t, conn, notification.EventNewOrderOffer)
	assert.Equal(t, "o1", offer.Data["order_id"])

	require.NoError(t, conn.WriteJSON(map[string]any{"event": "accept-offer", "data": map[string]any{"order_id": "o1"}}))
	readUntil(t, conn, notification.EventOrderConfirmed)

	o, err := f.orders.Get(context.Background(), "o1")
	require.NoError(t, err)
	require.NotNil(t, o.ShopperID)
	assert.Equal(t, types.ID("w1"), *o.ShopperID)

	conn.Close()
	assert.Eventually(t, func() bool {
		_, still := f.registry.Get("w1")
		return !still
	}, 2*time.Second, 20*time.Millisecond)
}

func TestWebsocketRejectsMissingID(t *testing.T) {
	f := newFixture(t, nil)
	w := f.do(http.MethodGet, "/ws", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
