package websocket

import (
	"net/http"

	"geminichat-backend/internal/logger"
	"geminichat-backend/internal/middleware"
	"geminichat-backend/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// WSHandler handles WebSocket connection requests.
type WSHandler struct {
	hub      *Hub
	auth     middleware.AuthSource
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler. An empty allowedOrigins list accepts
// any origin.
func NewWSHandler(hub *Hub, auth middleware.AuthSource, allowedOrigins []string) *WSHandler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &WSHandler{
		hub:  hub,
		auth: auth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(allowed) == 0 || origin == "" || allowed[origin]
			},
		},
	}
}

// HandleWebSocketConnection upgrades HTTP GET requests to WebSocket connections.
// It expects a JWT token as a query parameter (/ws?token=...).
func (h *WSHandler) HandleWebSocketConnection(c *gin.Context) {
	log := logger.Ctx(c.Request.Context())

	tokenString := c.Query("token")
	if tokenString == "" {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	claims, err := utils.ValidateJWT(tokenString)
	if err != nil {
		log.Debug().Err(err).Msg("WS Handler: Invalid token")
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	if !middleware.SessionActive(c.Request.Context(), h.auth, claims.Phone) {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the error response.
		log.Warn().Err(err).Msg("WS Handler: Failed to upgrade connection")
		return
	}

	client := NewClient(h.hub, conn, claims.Phone)
	select {
	case h.hub.register <- client:
	case <-h.hub.quit:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
