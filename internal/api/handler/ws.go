package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"meetgogo/backend/internal/client"
	"meetgogo/backend/internal/models"
	"meetgogo/backend/internal/signaling"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Allows connections from any origin. Tighten in production.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWebSocket authenticates the bearer token, upgrades the connection,
// and binds it to a fresh session client. Profile display attributes come
// from the query string; the identity comes only from the token.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	token, ok := bearerToken(c.GetHeader("Authorization"))
	if !ok {
		// Browsers cannot set headers on WebSocket dials; accept the token
		// as a query parameter too.
		token = c.Query("token")
	}
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization token missing"})
		return
	}
	anonID, err := h.validateAndGetAnonID(token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token or expired"})
		return
	}

	profile := models.Profile{
		UID:     anonID,
		Name:    c.DefaultQuery("name", "Anonymous"),
		Country: c.Query("country"),
		Gender:  c.Query("gender"),
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to upgrade connection"})
		return
	}

	cl := client.New(client.Config{
		Store:       h.Store,
		Archive:     h.Archive,
		Profile:     profile,
		Matchmaker:  h.Matchmaker,
		TypingQuiet: h.TypingQuiet,
		TransportFactory: func() (signaling.MediaTransport, error) {
			return signaling.NewPionTransport(h.STUNServers)
		},
	})

	ws := &wsSession{conn: conn, client: cl}
	ws.run()
}
