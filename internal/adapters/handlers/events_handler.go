package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/iwtcode/grblService/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:     func(_ *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// StreamEvents транслирует события брокера в websocket в том же формате, что и TCP протокол.
// @Summary Поток событий
// @Tags Status
// @Router /events [get]
func (h *Handler) StreamEvents(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", "error", err)
		return
	}

	id := "ws-" + uuid.New().String()
	sub := h.broadcaster.Subscribe(id)
	h.logger.Info("Websocket client connected", "client_id", id)

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			// Входящие сообщения не ожидаются, чтение нужно для обработки close и pong.
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	defer func() {
		h.broadcaster.Unsubscribe(id)
		_ = conn.Close()
		h.logger.Info("Websocket client disconnected", "client_id", id)
	}()

	for {
		select {
		case <-closed:
			return
		case evt, ok := <-sub.Events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			envelope := models.NewEventEnvelope(string(evt.Kind), evt.Data, evt.Timestamp)
			if err := conn.WriteJSON(envelope); err != nil {
				return
			}
		}
	}
}
