package gateway

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/quizlive/quiz-live/internal/identity"
	httperrors "github.com/quizlive/quiz-live/pkg/http/errors"
)

// WSHandler upgrades HTTP requests to WebSocket connections. Hosts present a
// bearer token as a query parameter (browsers cannot set headers on WS
// upgrades); participant connections carry no token.
type WSHandler struct {
	handler  *Handler
	identity identity.Provider
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// NewWSHandler creates the upgrade endpoint. checkOrigin may be nil to
// accept all origins (development mode).
func NewWSHandler(handler *Handler, idp identity.Provider, checkOrigin func(*http.Request) bool, logger zerolog.Logger) *WSHandler {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &WSHandler{
		handler:  handler,
		identity: idp,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		logger: logger.With().Str("component", "ws_handler").Logger(),
	}
}

// ServeHTTP implements the /ws/sessions endpoint.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var host *identity.Host
	if token := r.URL.Query().Get("token"); token != "" {
		verified, err := h.identity.Verify(token)
		if err != nil {
			httperrors.RespondUnauthorized(w, httperrors.ErrCodeInvalidToken, "Invalid host token")
			return
		}
		host = &verified
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	go h.handler.HandleConnection(conn, host)
}
