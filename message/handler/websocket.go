package handler

import (
	"context"
	"net/http"

	"github.com/MJ5aif/skillconnect/internal/auth"
	"github.com/MJ5aif/skillconnect/message/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type WSHandler struct {
	hub      *service.Hub
	verifier *auth.Verifier
	logger   *zap.Logger
}

func NewWSHandler(hub *service.Hub, verifier *auth.Verifier, logger *zap.Logger) *WSHandler {
	return &WSHandler{
		hub:      hub,
		verifier: verifier,
		logger:   logger,
	}
}

// HandleWebSocket GET /ws?token=
// 连接时校验身份 token，之后事件里的发送者以连接身份为准
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	identity, err := h.verifier.Verify(c.Query("token"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"code": 1, "error": "unauthorized"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	client := &service.Client{
		ConnID:      uuid.NewString(),
		UserID:      identity.UserID,
		DisplayName: identity.DisplayName,
		Send:        make(chan []byte, 16),
	}
	h.hub.Register(client)

	go h.writeLoop(client, conn)
	h.readLoop(c.Request.Context(), client, conn)
}

func (h *WSHandler) readLoop(ctx context.Context, client *service.Client, conn *websocket.Conn) {
	defer func() {
		h.hub.Unregister(client)
		_ = conn.Close()
	}()
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		h.hub.HandleEvent(ctx, client, raw)
	}
}

func (h *WSHandler) writeLoop(client *service.Client, conn *websocket.Conn) {
	for msg := range client.Send {
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.logger.Warn("write failed", zap.String("conn_id", client.ConnID), zap.Error(err))
			return
		}
	}
}
