package dto

import (
	"encoding/json"
	"time"
)

// 传输层事件名 与前端 socket 事件一一对应
const (
	EventSubscribe      = "subscribe"
	EventSendMessage    = "sendMessage"
	EventReceiveMessage = "receiveMessage"
	EventStartTyping    = "startTyping"
	EventStopTyping     = "stopTyping"
	EventTyping         = "typing"
	EventMarkAsRead     = "markAsRead"
	EventMessagesRead   = "messagesRead"
)

// Event websocket 上的统一信封，payload 原样转发
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type SubscribePayload struct {
	ConversationID string `json:"conversationId"`
}

type MessagePayload struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	SenderName     string    `json:"senderName,omitempty"`
	Text           string    `json:"text,omitempty"`
	FileURL        string    `json:"fileUrl,omitempty"`
	FileName       string    `json:"fileName,omitempty"`
	FileType       string    `json:"fileType,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	Status         string    `json:"status,omitempty"`
}

type TypingPayload struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	SenderName     string `json:"senderName,omitempty"`
	IsTyping       bool   `json:"isTyping"`
}

type MarkAsReadPayload struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
}

type MessagesReadPayload struct {
	ConversationID string   `json:"conversationId"`
	MessageIDs     []string `json:"messageIds"`
}

// HTTP 层返回结构

type LastMessage struct {
	Preview   string    `json:"preview"`
	CreatedAt time.Time `json:"createdAt"`
}

type ConversationDTO struct {
	ID           string       `json:"id"`
	Title        string       `json:"title"`
	Kind         string       `json:"kind"`
	AvatarURL    string       `json:"avatar_url,omitempty"`
	LastMessage  *LastMessage `json:"last_message,omitempty"`
	UnreadCount  int          `json:"unread_count"`
	Participants []string     `json:"participants"`
	Status       string       `json:"status,omitempty"` // online / offline
	LastSeen     *time.Time   `json:"last_seen,omitempty"`
}

type MessageDTO struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	SenderName     string    `json:"sender_name,omitempty"`
	Text           string    `json:"text,omitempty"`
	FileURL        string    `json:"file_url,omitempty"`
	FileName       string    `json:"file_name,omitempty"`
	FileType       string    `json:"file_type,omitempty"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}
