package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"csvmail/internal/artifacts"
	apierrors "csvmail/internal/errors"
	"csvmail/internal/infrastructure"
	"csvmail/internal/middleware"
	"csvmail/internal/operations"
	"csvmail/internal/services"
	ws "csvmail/internal/websocket"
)

// WebSocketConfig sizes the upgrader buffers and restricts origins.
type WebSocketConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	AllowedOrigins  []string
}

// WebSocketHandler upgrades progress subscriptions for one file.
type WebSocketHandler struct {
	hub          *ws.Hub
	validation   *services.ValidationService
	upgrader     websocket.Upgrader
	errorHandler *apierrors.ErrorHandler
	logger       *slog.Logger
}

// NewWebSocketHandler creates a new websocket handler
func NewWebSocketHandler(hub *ws.Hub, validation *services.ValidationService, cfg WebSocketConfig, errorHandler *apierrors.ErrorHandler, logger *slog.Logger) *WebSocketHandler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &WebSocketHandler{
		hub:          hub,
		validation:   validation,
		errorHandler: errorHandler,
		logger:       logger.With(slog.String("handler", "websocket")),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			// Non-browser clients send no Origin.
			if origin == "" {
				return true
			}
			return middleware.OriginAllowed(cfg.AllowedOrigins, origin)
		},
		Error: func(w http.ResponseWriter, r *http.Request, status int, reason error) {
			h.logger.WarnContext(r.Context(), "websocket upgrade rejected",
				slog.Int("status", status),
				slog.String("origin", r.Header.Get("Origin")),
				slog.String("error", reason.Error()))
			apiErr := apierrors.NewWithDetails(status, apierrors.ErrWebSocketUpgrade.ErrorCode, apierrors.ErrWebSocketUpgrade.Message, reason.Error())
			h.errorHandler.HandleError(w, r, apiErr)
		},
	}
	return h
}

// Routes returns the websocket routes
func (h *WebSocketHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/validation/{filename}", h.Subscribe)
	return r
}

// Subscribe handles GET /ws/validation/{filename}. The client receives a
// snapshot of the current job, if any, followed by its live events.
func (h *WebSocketHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	token, err := artifacts.ParseToken(filename)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	traceID := infrastructure.GetTraceID(r.Context())
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader already answered.
		return
	}

	client := ws.NewClient(h.hub, conn, string(token), traceID, h.logger)
	if !client.Serve() {
		h.logger.WarnContext(r.Context(), "websocket hub stopped, connection closed")
		return
	}
	h.logger.InfoContext(r.Context(), "websocket subscribed",
		slog.String("client_id", client.ID()),
		slog.String("filename", filename),
		slog.String("remote_addr", r.RemoteAddr))

	job, err := h.validation.Status(r.Context(), filename)
	switch {
	case err == nil:
		_ = client.Send(ws.TypeSnapshot, job)
	case errors.Is(err, operations.ErrJobNotFound):
		_ = client.Send(ws.TypeSnapshot, nil)
	default:
		h.logger.ErrorContext(r.Context(), "snapshot lookup failed", slog.String("error", err.Error()))
	}
}
