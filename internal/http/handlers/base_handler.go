// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"shopd/internal/http/middleware"
	"shopd/internal/modules/dispatch"
	"shopd/internal/modules/location"
	"shopd/internal/modules/notification"
	"shopd/internal/modules/order"
)

type errorResponse struct {
	Error string `json:"error"`
}

// isValidID accepts the id shapes used by the order store: letters, digits,
// '-' and '_', at most 64 chars.
func isValidID(v string) bool {
	if v == "" || len(v) > 64 {
		return false
	}
	for _, c := range v {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '-' || c == '_' {
			continue
		}
		return false
	}
	return true
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

func writeDispatchError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, dispatch.ErrBadOrder), errors.Is(err, order.ErrBadRequest),
		errors.Is(err, location.ErrInvalidPosition), errors.Is(err, notification.ErrInvalidToken):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, order.ErrNotFound), errors.Is(err, dispatch.ErrNoOffer):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, dispatch.ErrOfferExpired):
		writeError(c, http.StatusGone, err.Error())
	case errors.Is(err, dispatch.ErrAlreadyAssigned), errors.Is(err, dispatch.ErrOfferInFlight),
		errors.Is(err, location.ErrNotConnected):
		writeError(c, http.StatusConflict, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

// shopperParam validates :id and, when auth is on, that it is the caller.
func shopperParam(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid shopper id")
		return "", false
	}
	if middleware.Authenticated(c) && middleware.CallerUID(c) != id {
		writeError(c, http.StatusForbidden, "forbidden: id does not match authenticated user")
		return "", false
	}
	return id, true
}
