package handler

import (
	"errors"
	"net/http"

	"github.com/MJ5aif/skillconnect/message/dto"
	"github.com/MJ5aif/skillconnect/message/service"

	"github.com/gin-gonic/gin"
)

type MessageHandler struct {
	service *service.MessageService
}

func NewMessageHandler(s *service.MessageService) *MessageHandler {
	return &MessageHandler{
		service: s,
	}
}

func (h *MessageHandler) GetConversations(c *gin.Context) {
	var input struct {
		UserID string `form:"user_id"`
	}
	if err := c.ShouldBindQuery(&input); err != nil || input.UserID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": 1, "error": "user_id is required"})
		return
	}
	conversations, err := h.service.GetConversations(c.Request.Context(), input.UserID)
	if err != nil {
		c.JSON(400, gin.H{"code": 1, "error": err.Error()})
		return
	}
	c.JSON(200, gin.H{
		"code":    0,
		"message": "get conversations ok",
		"detail":  conversations,
	})
}

func (h *MessageHandler) GetConversationMessages(c *gin.Context) {
	conversationID := c.Param("conversation_id")
	if conversationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": 1, "error": "conversation id is required"})
		return
	}
	messages, err := h.service.GetConversationMessages(c.Request.Context(), conversationID)
	if err != nil {
		c.JSON(400, gin.H{"code": 1, "error": err.Error()})
		return
	}
	c.JSON(200, gin.H{
		"code":    0,
		"message": "load messages ok",
		"detail":  messages,
	})
}

func (h *MessageHandler) AppendMessage(c *gin.Context) {
	var input dto.MessagePayload
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": 1, "error": err.Error()})
		return
	}
	if input.ConversationID == "" || input.SenderID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": 1, "error": "conversationId and senderId are required"})
		return
	}
	msg, err := h.service.AppendMessage(c.Request.Context(), &input)
	if err != nil {
		if errors.Is(err, service.ErrEmptyMessage) {
			c.JSON(http.StatusBadRequest, gin.H{"code": 1, "error": err.Error()})
			return
		}
		c.JSON(400, gin.H{"code": 1, "error": err.Error()})
		return
	}
	c.JSON(200, gin.H{"code": 0, "message": "append message ok", "detail": msg})
}

func (h *MessageHandler) CreateConversation(c *gin.Context) {
	var input struct {
		Title        string   `json:"title"`
		Kind         string   `json:"kind"`
		AvatarURL    string   `json:"avatar_url"`
		Participants []string `json:"participants"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": 1, "error": err.Error()})
		return
	}
	if input.Kind == "" {
		input.Kind = "direct"
	}
	id, err := h.service.CreateConversation(c.Request.Context(), input.Title, input.Kind, input.AvatarURL, input.Participants)
	if err != nil {
		c.JSON(400, gin.H{"code": 1, "error": err.Error()})
		return
	}
	c.JSON(200, gin.H{"code": 0, "message": "create conversation ok", "conversation_id": id})
}
