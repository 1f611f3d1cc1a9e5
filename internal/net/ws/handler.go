package ws

import (
	"log"
	nethttp "net/http"

	"github.com/gorilla/websocket"

	"netsync/internal/replication"
	"netsync/internal/telemetry"
)

// Verifier resolves a join token to the participant it was issued for.
type Verifier interface {
	Verify(token string) (replication.Participant, int, error)
}

// HandlerConfig configures the upgrade handler.
type HandlerConfig struct {
	Logger telemetry.Logger
}

// Handler upgrades authenticated requests and attaches them to a Hub.
type Handler struct {
	hub      *Hub
	verifier Verifier
	logger   telemetry.Logger
	upgrader websocket.Upgrader
}

// NewHandler constructs a websocket upgrade handler for hub.
func NewHandler(hub *Hub, verifier Verifier, cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.WrapLogger(log.Default())
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *nethttp.Request) bool {
			return true
		},
	}

	return &Handler{
		hub:      hub,
		verifier: verifier,
		logger:   logger,
		upgrader: upgrader,
	}
}

// Handle serves /ws?token=...
func (h *Handler) Handle(w nethttp.ResponseWriter, r *nethttp.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		nethttp.Error(w, "missing token", nethttp.StatusBadRequest)
		return
	}
	participant, _, err := h.verifier.Verify(token)
	if err != nil {
		nethttp.Error(w, "invalid token", nethttp.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("upgrade failed for %s: %v", participant.ID, err)
		return
	}

	if err := h.hub.Serve(participant, conn); err != nil {
		h.logger.Printf("session for %s ended: %v", participant.ID, err)
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w nethttp.ResponseWriter, r *nethttp.Request) {
	h.Handle(w, r)
}
