package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/Rrens/collab-hub/internal/api/response"
	"github.com/Rrens/collab-hub/internal/hub"
	"github.com/coder/websocket"
	"github.com/rs/zerolog/log"
)

// WebSocketHandler upgrades authorized requests into hub connections
type WebSocketHandler struct {
	hub            *hub.Hub
	opts           hub.ClientOptions
	originPatterns []string
	// baseCtx outlives individual requests; it is cancelled on shutdown
	baseCtx context.Context
}

// NewWebSocketHandler creates the upgrade handler
func NewWebSocketHandler(baseCtx context.Context, h *hub.Hub, opts hub.ClientOptions, allowedOrigins []string) *WebSocketHandler {
	return &WebSocketHandler{
		hub:            h,
		opts:           opts,
		originPatterns: allowedOrigins,
		baseCtx:        baseCtx,
	}
}

// Serve handles GET /ws?token=&teamId=[&resourceType=&resourceId=]. Auth
// failures are answered with plain HTTP errors before any upgrade.
func (h *WebSocketHandler) Serve(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	token := q.Get("token")
	if token == "" {
		token = bearerToken(r)
	}

	c, err := h.hub.Connect(r.Context(), hub.ConnectRequest{
		Token:        token,
		TeamID:       q.Get("teamId"),
		ResourceType: q.Get("resourceType"),
		ResourceID:   q.Get("resourceId"),
		Location:     q.Get("location"),
		RemoteAddr:   r.RemoteAddr,
	})
	if err != nil {
		switch {
		case errors.Is(err, hub.ErrInvalidRequest):
			response.BadRequest(w, err.Error())
		case errors.Is(err, hub.ErrAuthentication):
			response.Unauthorized(w, "invalid or missing token")
		case errors.Is(err, hub.ErrAuthorization):
			response.Forbidden(w, "not an active member of this team")
		default:
			log.Error().Err(err).Msg("Connection authorization failed")
			response.InternalError(w, "internal error")
		}
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		log.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("Websocket upgrade failed")
		h.hub.Reject(c)
		return
	}

	client := hub.NewClient(h.hub, conn, c, h.opts)
	if err := h.hub.Open(r.Context(), c); err != nil {
		if errors.Is(err, hub.ErrConnectionClosed) {
			log.Debug().Str("connection_id", c.ID.String()).Msg("Connection closed before open completed")
			conn.Close(websocket.StatusNormalClosure, "closed")
			return
		}
		log.Error().Err(err).Str("connection_id", c.ID.String()).Msg("Failed to open connection")
		conn.Close(websocket.StatusInternalError, "open failed")
		return
	}

	client.Run(h.baseCtx)
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		return auth[len(prefix):]
	}
	return ""
}
