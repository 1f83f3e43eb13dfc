package handler

import (
	"log"
	"net/http"
	"taskmate/backend/internal/hub"
	"taskmate/backend/pkg/jwt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// Realtime godoc
// @Summary      Subscribe to the change feed
// @Description  Upgrades to a WebSocket delivering row-level change events scoped to the authenticated user. The token is passed as a query parameter because WebSocket clients cannot set headers portably.
// @Tags         realtime
// @Param        token  query  string  true  "Bearer token"
// @Success      101
// @Failure      401  {object}  ErrorResponse
// @Router       /realtime [get]
func Realtime(c *gin.Context) {
	claims, err := jwt.ParseToken(c.Query("token"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
		return
	}
	userID := claims.UserID

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := make(hub.Client, 32)
	subID := hub.GlobalHub.Subscribe(userID, client)

	defer func() {
		hub.GlobalHub.Unsubscribe(userID, subID)
		conn.Close()
		log.Printf("Realtime connection closed for user %d", userID)
	}()

	conn.SetReadLimit(maxMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		log.Printf("Failed to set initial read deadline: %v", err)
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Reader goroutine: we never expect client messages, but reading is
	// required to process pongs and detect closure.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("Realtime error for user %d: %v", userID, err)
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-client:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("Failed to push change event to user %d: %v", userID, err)
				return
			}
		case <-ticker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
