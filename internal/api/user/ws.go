package user

import (
	"net/http"
	"time"

	"github.com/ZJUSCT/CFBingo/internal/auth"
	"github.com/ZJUSCT/CFBingo/internal/pubsub"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const pingInterval = 30 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleMatchWs streams score updates of a match. The current view is sent
// first, followed by every update published for the match.
func (h *Handler) handleMatchWs(c *gin.Context) {
	matchID := c.Param("id")
	tokenString := c.Query("token")

	if tokenString == "" {
		c.String(http.StatusUnauthorized, "token query parameter is required")
		return
	}
	if _, err := auth.ValidateJWT(tokenString, h.cfg.Auth.JWT.Secret); err != nil {
		c.String(http.StatusUnauthorized, "invalid token")
		return
	}

	view, err := h.svc.MatchView(c.Request.Context(), matchID)
	if err != nil {
		c.String(http.StatusNotFound, "match not found")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		zap.S().Errorf("failed to upgrade websocket: %v", err)
		return
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, pubsub.FormatMessage("view", view)); err != nil {
		return
	}

	msgChan, unsubscribe := h.svc.Broker().Subscribe(pubsub.MatchTopic(matchID))
	defer unsubscribe()

	clientClosed := make(chan struct{})
	go func() {
		defer close(clientClosed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					zap.S().Infof("websocket unexpected close error: %v", err)
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-msgChan:
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				zap.S().Warnf("error writing to websocket: %v", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case <-clientClosed:
			return
		}
	}
}
