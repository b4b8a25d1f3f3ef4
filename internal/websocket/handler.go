package websocket

import (
	"log/slog"
	"net/http"
	"net/url"
	"slices"

	"github.com/gorilla/websocket"

	"dicommart/internal/config"
	"dicommart/internal/infrastructure"
)

// Handler upgrades requests to websocket connections served by a Hub.
type Handler struct {
	hub            *Hub
	upgrader       websocket.Upgrader
	allowedOrigins []string
	logger         *slog.Logger
}

// NewHandler creates a handler. Browser requests are accepted from the
// allowed origins or from the serving host itself; "*" allows any origin.
func NewHandler(hub *Hub, allowedOrigins []string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	h := &Handler{
		hub:            hub,
		allowedOrigins: allowedOrigins,
		logger:         logger.With(slog.String("component", "websocket.handler")),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  config.WebSocketReadBufferSize,
		WriteBufferSize: config.WebSocketWriteBufferSize,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if slices.Contains(h.allowedOrigins, "*") || slices.Contains(h.allowedOrigins, origin) {
		return true
	}
	u, err := url.Parse(origin)
	return err == nil && u.Host == r.Host
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		h.logger.WarnContext(ctx, "websocket upgrade failed",
			slog.String("remote_addr", r.RemoteAddr),
			slog.String("error", err.Error()))
		return
	}

	client := NewClient(h.hub, gorillaConn{conn}, infrastructure.GetTraceID(ctx), h.logger)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}
