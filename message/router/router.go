package router

import (
	"github.com/MJ5aif/skillconnect/message/handler"

	"github.com/gin-gonic/gin"
)

func SetMessageRouter(r *gin.Engine, m *handler.MessageHandler, ws *handler.WSHandler) {
	r.GET("/ws", ws.HandleWebSocket)
	r.GET("/conversations", m.GetConversations)
	r.POST("/conversations", m.CreateConversation)
	r.GET("/conversations/:conversation_id/messages", m.GetConversationMessages)
	r.POST("/messages", m.AppendMessage)
}
