// README: Operator endpoints: trigger dispatch runs and read engine status.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"shopd/internal/modules/dispatch"
	"shopd/internal/types"
)

type ConnectionCounter interface {
	Count() (connected, available int)
}

type ClusterCounter interface {
	Count() int
}

// GaugeSink receives the status counts; the metrics collector implements it.
type GaugeSink interface {
	SetGauges(connected, available, clusters, offersInFlight int)
}

type DispatchHandler struct {
	trigger  *dispatch.Trigger
	coord    *dispatch.Coordinator
	conns    ConnectionCounter
	clusters ClusterCounter
	gauges   GaugeSink
}

func NewDispatchHandler(trigger *dispatch.Trigger, coord *dispatch.Coordinator, conns ConnectionCounter, clusters ClusterCounter, gauges GaugeSink) *DispatchHandler {
	return &DispatchHandler{trigger: trigger, coord: coord, conns: conns, clusters: clusters, gauges: gauges}
}

type StatusResponse struct {
	Connections    int `json:"connections"`
	Available      int `json:"available"`
	Clusters       int `json:"clusters"`
	OffersInFlight int `json:"offers_in_flight"`
	TrackedOrders  int `json:"tracked_orders"`
	Assigned       int `json:"assigned"`
}

func (h *DispatchHandler) Status(c *gin.Context) {
	connected, available := h.conns.Count()
	st := h.coord.Status()
	resp := StatusResponse{
		Connections:    connected,
		Available:      available,
		OffersInFlight: st.OffersInFlight,
		TrackedOrders:  st.TrackedOrders,
		Assigned:       st.Assigned,
	}
	if h.clusters != nil {
		resp.Clusters = h.clusters.Count()
	}
	if h.gauges != nil {
		h.gauges.SetGauges(resp.Connections, resp.Available, resp.Clusters, resp.OffersInFlight)
	}
	writeJSON(c, http.StatusOK, resp)
}

// RunAll triggers an immediate pending scan.
func (h *DispatchHandler) RunAll(c *gin.Context) {
	res, err := h.trigger.All(c.Request.Context())
	if err != nil {
		writeError(c, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(c, http.StatusOK, res)
}

// RunOrder dispatches a single order now.
func (h *DispatchHandler) RunOrder(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid order id")
		return
	}
	if err := h.trigger.Order(c.Request.Context(), types.ID(id)); err != nil {
		writeDispatchError(c, err)
		return
	}
	resp := gin.H{"order_id": id, "status": "pending"}
	if off, ok := h.coord.ActiveOffer(types.ID(id)); ok {
		resp["status"] = "offered"
		resp["worker_id"] = off.WorkerID
		resp["expires_at"] = off.ExpiresAt
	}
	writeJSON(c, http.StatusAccepted, resp)
}
