package repo

import (
	"context"
	"errors"
	"time"

	"github.com/MJ5aif/skillconnect/message/repo/model"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const pgUniqueViolation = "23505"

// 会话列表返回结构
type ConversationWithUnread struct {
	Conversation *model.Conversation
	UnreadCount  int
	Participants []string
}

type MessageRepo interface {
	AppendMessage(ctx context.Context, msg *model.Message) error // 按消息 ID 幂等
	CreateConversation(ctx context.Context, conv *model.Conversation, memberIDs []string) error
	GetConversations(ctx context.Context, userID string) ([]*ConversationWithUnread, error)
	GetConversationMessages(ctx context.Context, conversationID string) ([]*model.Message, error)
	GetConversationMembers(ctx context.Context, conversationID string) ([]string, error)
	MarkConversationRead(ctx context.Context, conversationID, userID string) ([]string, error)
}

type messageRepo struct {
	db *gorm.DB
}

func NewMessageRepo(db *gorm.DB) MessageRepo {
	return &messageRepo{db: db}
}

// AppendMessage 持久化一条消息并更新会话预览与未读数
// 重复的消息 ID 直接返回成功，重连后的补发不会产生重复记录
func (r *messageRepo) AppendMessage(ctx context.Context, msg *model.Message) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1. 插入消息
		if err := tx.Create(msg).Error; err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
				return nil // 已持久化过
			}
			return err
		}

		// 2. 更新会话预览
		preview := msg.Text
		if preview == "" {
			preview = msg.FileName
			if preview == "" {
				preview = "Attachment"
			}
		}
		createdAt := msg.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		if err := tx.Model(&model.Conversation{}).
			Where("id = ?", msg.ConversationID).
			Updates(map[string]interface{}{
				"last_message":    preview,
				"last_message_at": createdAt,
			}).Error; err != nil {
			return err
		}

		// 3. 其余成员未读 +1
		return tx.Model(&model.ConversationMember{}).
			Where("conversation_id = ? AND user_id <> ?", msg.ConversationID, msg.SenderID).
			Update("unread_count", gorm.Expr("unread_count + 1")).Error
	})
}

func (r *messageRepo) CreateConversation(ctx context.Context, conv *model.Conversation, memberIDs []string) error {
	if len(memberIDs) < 2 {
		return errors.New("a conversation needs at least two participants")
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(conv).Error; err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
				return nil
			}
			return err
		}
		for _, uid := range memberIDs {
			member := model.ConversationMember{
				ConversationID: conv.ID,
				UserID:         uid,
			}
			if err := tx.Create(&member).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *messageRepo) GetConversations(ctx context.Context, userID string) ([]*ConversationWithUnread, error) {
	var members []model.ConversationMember
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Find(&members).Error; err != nil {
		return nil, err
	}

	out := make([]*ConversationWithUnread, 0, len(members))
	for _, m := range members {
		var conv model.Conversation
		if err := r.db.WithContext(ctx).
			Where("id = ?", m.ConversationID).
			First(&conv).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return nil, err
		}
		participants, err := r.GetConversationMembers(ctx, conv.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, &ConversationWithUnread{
			Conversation: &conv,
			UnreadCount:  m.UnreadCount,
			Participants: participants,
		})
	}
	return out, nil
}

// GetConversationMessages 按创建时间升序返回全部历史
func (r *messageRepo) GetConversationMessages(ctx context.Context, conversationID string) ([]*model.Message, error) {
	var messages []*model.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *messageRepo) GetConversationMembers(ctx context.Context, conversationID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&model.ConversationMember{}).
		Where("conversation_id = ?", conversationID).
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// MarkConversationRead 将对方发来的未读消息全部置为已读，返回翻转的消息 ID
func (r *messageRepo) MarkConversationRead(ctx context.Context, conversationID, userID string) (readIDs []string, err error) {
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Message{}).
			Where("conversation_id = ? AND sender_id <> ? AND status <> ?", conversationID, userID, "read").
			Pluck("id", &readIDs).Error; err != nil {
			return err
		}
		if len(readIDs) > 0 {
			if err := tx.Model(&model.Message{}).
				Where("id IN ?", readIDs).
				Update("status", "read").Error; err != nil {
				return err
			}
		}
		// 清零本人未读数
		return tx.Model(&model.ConversationMember{}).
			Where("conversation_id = ? AND user_id = ?", conversationID, userID).
			Update("unread_count", 0).Error
	})
	return
}
