package handler

import (
	"net/http"

	"github.com/MJ5aif/skillconnect/internal/auth"
	"github.com/MJ5aif/skillconnect/signal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type SignalHandler struct {
	relay    *service.Relay
	verifier *auth.Verifier
	logger   *zap.Logger
}

func NewSignalHandler(relay *service.Relay, verifier *auth.Verifier, logger *zap.Logger) *SignalHandler {
	return &SignalHandler{
		relay:    relay,
		verifier: verifier,
		logger:   logger,
	}
}

// HandleWebSocket GET /ws?token=
func (h *SignalHandler) HandleWebSocket(c *gin.Context) {
	identity, err := h.verifier.Verify(c.Query("token"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"code": 1, "error": "unauthorized"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	client := &service.RelayClient{
		SocketID: uuid.NewString(),
		UserID:   identity.UserID,
		Name:     identity.DisplayName,
		Send:     make(chan []byte, 32),
	}
	h.relay.Register(client)

	go h.writeLoop(client, conn)
	h.readLoop(client, conn)
}

func (h *SignalHandler) readLoop(client *service.RelayClient, conn *websocket.Conn) {
	defer func() {
		h.relay.Unregister(client)
		_ = conn.Close()
	}()
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		h.relay.HandleEvent(client, raw)
	}
}

func (h *SignalHandler) writeLoop(client *service.RelayClient, conn *websocket.Conn) {
	for msg := range client.Send {
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.logger.Warn("write failed", zap.String("socket_id", client.SocketID), zap.Error(err))
			return
		}
	}
}
