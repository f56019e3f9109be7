package router

import (
	"github.com/MJ5aif/skillconnect/signal/handler"

	"github.com/gin-gonic/gin"
)

func SetSignalRouter(r *gin.Engine, s *handler.SignalHandler) {
	r.GET("/ws", s.HandleWebSocket)
}
