package session

import (
	"context"
	"time"
)

// 消息状态机 sending → sent → delivered → read，持久化失败为 failed
const (
	StatusSending   = "sending"
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
	StatusFailed    = "failed"
)

const (
	KindDirect = "direct"
	KindGroup  = "group"
)

type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	SenderName     string    `json:"senderName,omitempty"`
	Text           string    `json:"text,omitempty"`
	FileURL        string    `json:"fileUrl,omitempty"`
	FileName       string    `json:"fileName,omitempty"`
	FileType       string    `json:"fileType,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	Status         string    `json:"status"`
}

type LastMessage struct {
	Preview   string    `json:"preview"`
	CreatedAt time.Time `json:"createdAt"`
}

type Conversation struct {
	ID           string       `json:"id"`
	Title        string       `json:"title"`
	Kind         string       `json:"kind"`
	AvatarURL    string       `json:"avatar_url,omitempty"`
	LastMessage  *LastMessage `json:"last_message,omitempty"`
	UnreadCount  int          `json:"unread_count"`
	Participants []string     `json:"participants"`
	Status       string       `json:"status,omitempty"`
	LastSeen     *time.Time   `json:"last_seen,omitempty"`
}

// Store 持久化消息库的读写契约，历史以它为准
type Store interface {
	ListConversations(ctx context.Context, userID string) ([]*Conversation, error)
	ListMessages(ctx context.Context, conversationID string) ([]*Message, error)
	AppendMessage(ctx context.Context, msg *Message) error // 按消息 ID 幂等
}

// Transport 实时通道 断线时事件直接丢弃，靠 store 兜底
type Transport interface {
	Connected() bool
	Emit(event string, payload interface{}) error
}

// FileRef 待上传的附件
type FileRef struct {
	Name string
	Mime string
	Data []byte
}

// Uploader 对象存储的上传契约，进度回调可为 nil
type Uploader interface {
	Upload(ctx context.Context, file FileRef, progress func(percent int)) (url string, err error)
}
