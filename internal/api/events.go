package api

import (
	"github.com/gin-gonic/gin"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/roach88/civicsync/internal/connectivity"
)

// Events streams connectivity state over a websocket. The current state is
// sent first, then every transition. Client messages are ignored.
func (h *Handler) Events(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, nil)
	if err != nil {
		h.logger().Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "")

	ctx := conn.CloseRead(c.Request.Context())
	updates := h.Broadcaster.Subscribe(ctx)
	h.logger().Debug("event stream opened", "subscribers", h.Broadcaster.Subscribers())

	if err := wsjson.Write(ctx, conn, connectivity.StateChange{IsOnline: h.Monitor.Online()}); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-updates:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "shutting down")
				return
			}
			if err := wsjson.Write(ctx, conn, msg); err != nil {
				h.logger().Debug("websocket write failed", "error", err)
				return
			}
		}
	}
}
