package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"studysprint/backend/internal/hub"
)

// Timer upgrades the connection and streams full-state snapshots for one
// session. Inbound frames are actions; a rejected action produces an error
// envelope on this connection only, while accepted actions surface to every
// subscriber through the broadcast path.
func (h *SessionHandler) Timer(c *gin.Context) {
	sessionID := c.Param("id")

	snap, apiErr := h.manager.Snapshot(sessionID)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	sub := h.hub.Subscribe(sessionID, snap)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for env := range sub.Receive() {
			if err := conn.WriteJSON(env); err != nil {
				return
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Debug("websocket read failed",
					zap.String("session_id", sessionID),
					zap.Error(err),
				)
			}
			break
		}

		action, apiErr := hub.ParseAction(raw)
		if apiErr != nil {
			h.hub.SendError(sub, apiErr)
			continue
		}
		// Accepted actions broadcast a snapshot through the manager's sink;
		// nothing to send here.
		if _, apiErr := hub.Dispatch(h.manager, sessionID, action); apiErr != nil {
			h.hub.SendError(sub, apiErr)
		}
	}

	h.hub.Unsubscribe(sub)
	<-done
	conn.Close()
}
