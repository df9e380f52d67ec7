// README: Shopper endpoints: location, availability, push tokens and offer replies.
package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"shopd/internal/modules/connection"
	"shopd/internal/modules/dispatch"
	"shopd/internal/modules/location"
	"shopd/internal/modules/notification"
	"shopd/internal/types"
)

// NearbyFinder searches the mirrored GEO index.
type NearbyFinder interface {
	Nearby(ctx context.Context, center types.Point, radiusKm float64, limit int) ([]location.Nearby, error)
}

type ShopperHandler struct {
	coord    *dispatch.Coordinator
	registry *connection.Registry
	location *location.Service
	tokens   *notification.Gateway
	nearby   NearbyFinder
}

func NewShopperHandler(coord *dispatch.Coordinator, registry *connection.Registry, loc *location.Service, tokens *notification.Gateway, nearby NearbyFinder) *ShopperHandler {
	return &ShopperHandler{coord: coord, registry: registry, location: loc, tokens: tokens, nearby: nearby}
}

type locationReq struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

func (h *ShopperHandler) UpdateLocation(c *gin.Context) {
	id, ok := shopperParam(c)
	if !ok {
		return
	}
	var req locationReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Lat == nil || req.Lng == nil {
		writeError(c, http.StatusBadRequest, "lat and lng are required")
		return
	}
	err := h.location.Update(c.Request.Context(), location.Update{
		WorkerID: types.ID(id),
		Position: types.Point{Lat: *req.Lat, Lng: *req.Lng},
	})
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": "ok"})
}

type availabilityReq struct {
	Available *bool `json:"available"`
}

func (h *ShopperHandler) SetAvailability(c *gin.Context) {
	id, ok := shopperParam(c)
	if !ok {
		return
	}
	var req availabilityReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Available == nil {
		writeError(c, http.StatusBadRequest, "available is required")
		return
	}
	if !h.registry.SetAvailable(types.ID(id), *req.Available) {
		writeDispatchError(c, location.ErrNotConnected)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"available": *req.Available})
}

type tokenReq struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
}

func (h *ShopperHandler) SaveToken(c *gin.Context) {
	id, ok := shopperParam(c)
	if !ok {
		return
	}
	var req tokenReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Platform == "" {
		req.Platform = "android"
	}
	err := h.tokens.SaveToken(c.Request.Context(), notification.Token{
		WorkerID: types.ID(id),
		Token:    req.Token,
		Platform: req.Platform,
	})
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{"status": "saved"})
}

func (h *ShopperHandler) DeleteToken(c *gin.Context) {
	id, ok := shopperParam(c)
	if !ok {
		return
	}
	token := c.Param("token")
	tokens, err := h.tokens.ListTokens(c.Request.Context(), types.ID(id))
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	owned := false
	for _, t := range tokens {
		if t.Token == token {
			owned = true
			break
		}
	}
	if !owned {
		writeError(c, http.StatusNotFound, "token not found")
		return
	}
	if err := h.tokens.DeleteToken(c.Request.Context(), token); err != nil {
		writeDispatchError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ShopperHandler) Accept(c *gin.Context) {
	id, ok := shopperParam(c)
	if !ok {
		return
	}
	orderID := c.Param("orderId")
	if !isValidID(orderID) {
		writeError(c, http.StatusBadRequest, "invalid order id")
		return
	}
	if err := h.coord.Accept(c.Request.Context(), types.ID(orderID), types.ID(id)); err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"order_id": orderID, "status": "assigned"})
}

func (h *ShopperHandler) Reject(c *gin.Context) {
	id, ok := shopperParam(c)
	if !ok {
		return
	}
	orderID := c.Param("orderId")
	if !isValidID(orderID) {
		writeError(c, http.StatusBadRequest, "invalid order id")
		return
	}
	if err := h.coord.Reject(c.Request.Context(), types.ID(orderID), types.ID(id)); err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"order_id": orderID, "status": "rejected"})
}

// Nearby lists mirrored shopper positions around a point, for operators.
func (h *ShopperHandler) Nearby(c *gin.Context) {
	if h.nearby == nil {
		writeError(c, http.StatusServiceUnavailable, "geo index not configured")
		return
	}
	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lng, errLng := strconv.ParseFloat(c.Query("lng"), 64)
	center := types.Point{Lat: lat, Lng: lng}
	if errLat != nil || errLng != nil || !center.Valid() {
		writeError(c, http.StatusBadRequest, "valid lat and lng are required")
		return
	}
	radius := 5.0
	if v := c.Query("radius_km"); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil || r <= 0 || r > 50 {
			writeError(c, http.StatusBadRequest, "radius_km must be in (0, 50]")
			return
		}
		radius = r
	}
	hits, err := h.nearby.Nearby(c.Request.Context(), center, radius, 50)
	if err != nil {
		writeError(c, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"shoppers": hits})
}
