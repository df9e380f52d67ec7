// README: API gateway; holds module dependencies and builds the gin engine.
package http

import (
	"log/slog"
	"net/http"

	"shopd/internal/http/handlers"
	"shopd/internal/infra"
	"shopd/internal/modules/cluster"
	"shopd/internal/modules/connection"
	"shopd/internal/modules/dispatch"
	"shopd/internal/modules/location"
	"shopd/internal/modules/notification"
)

type ServerDeps struct {
	Registry      *connection.Registry
	Clusters      *cluster.Index
	Coordinator   *dispatch.Coordinator
	Trigger       *dispatch.Trigger
	Location      *location.Service
	Nearby        handlers.NearbyFinder
	Notifications *notification.Gateway
	Gauges        handlers.GaugeSink
	Metrics       http.Handler
	Verifier      infra.TokenVerifier
	Logger        *slog.Logger
}

type Server struct {
	deps ServerDeps
	log  *slog.Logger
}

func NewServer(deps ServerDeps) *Server {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Server{deps: deps, log: log}
}
