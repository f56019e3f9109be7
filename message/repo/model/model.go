package model

import "time"

// 会话（Conversation） 每条消息到达时更新 last_message 预览
type Conversation struct {
	ID            string    `gorm:"type:uuid;primaryKey"`
	Title         string    `gorm:"type:text;not null"`
	Kind          string    `gorm:"type:varchar(10);not null;index"` // direct / group
	AvatarURL     string    `gorm:"type:text"`
	LastMessage   string    `gorm:"type:text"` // 最近一条消息预览
	LastMessageAt time.Time `gorm:"index"`
	CreatedAt     time.Time `gorm:"autoCreateTime"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime"`
}

// 会话成员 每个成员单独维护未读数
type ConversationMember struct {
	ConversationID string    `gorm:"type:uuid;primaryKey"`
	UserID         string    `gorm:"type:varchar(64);primaryKey;index"`
	UnreadCount    int       `gorm:"default:0"`
	JoinedAt       time.Time `gorm:"autoCreateTime"`
}

// 消息（Message） ID 由发送端生成，持久化按 ID 幂等
type Message struct {
	ID             string    `gorm:"type:uuid;primaryKey"`
	ConversationID string    `gorm:"type:uuid;not null;index"`
	SenderID       string    `gorm:"type:varchar(64);not null;index"`
	SenderName     string    `gorm:"type:text"`
	Text           string    `gorm:"type:text"` // 文本与附件至少存在一个
	FileURL        string    `gorm:"type:text"`
	FileName       string    `gorm:"type:text"`
	FileType       string    `gorm:"type:varchar(100)"`
	Status         string    `gorm:"type:varchar(10);not null"` // sent / delivered / read
	CreatedAt      time.Time `gorm:"autoCreateTime;index"`
}
