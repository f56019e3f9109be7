package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MJ5aif/skillconnect/message/dto"
	"github.com/MJ5aif/skillconnect/message/repo"
	"github.com/MJ5aif/skillconnect/message/repo/model"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrEmptyMessage 文本与附件都缺失
var ErrEmptyMessage = errors.New("message needs text or an attachment")

type MessageService struct {
	repo     repo.MessageRepo
	presence repo.PresenceRedis
	logger   *zap.Logger
}

func NewMessageService(r repo.MessageRepo, p repo.PresenceRedis, logger *zap.Logger) *MessageService {
	return &MessageService{
		repo:     r,
		presence: p,
		logger:   logger,
	}
}

// AppendMessage 持久化一条消息，按 ID 幂等
func (s *MessageService) AppendMessage(ctx context.Context, p *dto.MessagePayload) (*dto.MessageDTO, error) {
	if p.Text == "" && p.FileURL == "" {
		return nil, ErrEmptyMessage
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	msg := &model.Message{
		ID:             p.ID,
		ConversationID: p.ConversationID,
		SenderID:       p.SenderID,
		SenderName:     p.SenderName,
		Text:           p.Text,
		FileURL:        p.FileURL,
		FileName:       p.FileName,
		FileType:       p.FileType,
		Status:         "sent",
		CreatedAt:      createdAt,
	}
	if err := s.repo.AppendMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("fail to append message:%w", err)
	}
	return toMessageDTO(msg), nil
}

func (s *MessageService) CreateConversation(ctx context.Context, title, kind, avatarURL string, memberIDs []string) (string, error) {
	conv := &model.Conversation{
		ID:        uuid.NewString(),
		Title:     title,
		Kind:      kind,
		AvatarURL: avatarURL,
	}
	if err := s.repo.CreateConversation(ctx, conv, memberIDs); err != nil {
		return "", fmt.Errorf("fail to create conversation:%w", err)
	}
	return conv.ID, nil
}

func (s *MessageService) GetConversations(ctx context.Context, userID string) ([]*dto.ConversationDTO, error) {
	conversations, err := s.repo.GetConversations(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("fail to get conversations:%w", err)
	}
	out := make([]*dto.ConversationDTO, 0, len(conversations))
	for _, c := range conversations {
		d := &dto.ConversationDTO{
			ID:           c.Conversation.ID,
			Title:        c.Conversation.Title,
			Kind:         c.Conversation.Kind,
			AvatarURL:    c.Conversation.AvatarURL,
			UnreadCount:  c.UnreadCount,
			Participants: c.Participants,
		}
		if c.Conversation.LastMessage != "" {
			d.LastMessage = &dto.LastMessage{
				Preview:   c.Conversation.LastMessage,
				CreatedAt: c.Conversation.LastMessageAt,
			}
		}
		// 单聊会话附带对方在线状态，尽力而为
		if c.Conversation.Kind == "direct" {
			for _, uid := range c.Participants {
				if uid == userID {
					continue
				}
				p, err := s.presence.GetPresence(ctx, uid)
				if err != nil {
					s.logger.Warn("get presence failed", zap.String("user_id", uid), zap.Error(err))
					break
				}
				d.Status = p.Status
				if !p.LastSeen.IsZero() {
					lastSeen := p.LastSeen
					d.LastSeen = &lastSeen
				}
				break
			}
		}
		out = append(out, d)
	}
	return out, nil
}

// GetConversationMessages 历史按创建时间升序
func (s *MessageService) GetConversationMessages(ctx context.Context, conversationID string) ([]*dto.MessageDTO, error) {
	messages, err := s.repo.GetConversationMessages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("fail to load messages:%w", err)
	}
	out := make([]*dto.MessageDTO, 0, len(messages))
	for _, m := range messages {
		out = append(out, toMessageDTO(m))
	}
	return out, nil
}

func (s *MessageService) MarkRead(ctx context.Context, conversationID, userID string) ([]string, error) {
	readIDs, err := s.repo.MarkConversationRead(ctx, conversationID, userID)
	if err != nil {
		return nil, fmt.Errorf("fail to mark conversation read:%w", err)
	}
	return readIDs, nil
}

func (s *MessageService) MarkOnline(ctx context.Context, userID string) {
	if err := s.presence.SetOnline(ctx, userID); err != nil {
		s.logger.Warn("set online failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func (s *MessageService) MarkOffline(ctx context.Context, userID string) {
	if err := s.presence.SetOffline(ctx, userID); err != nil {
		s.logger.Warn("set offline failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func toMessageDTO(m *model.Message) *dto.MessageDTO {
	return &dto.MessageDTO{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		SenderName:     m.SenderName,
		Text:           m.Text,
		FileURL:        m.FileURL,
		FileName:       m.FileName,
		FileType:       m.FileType,
		Status:         m.Status,
		CreatedAt:      m.CreatedAt,
	}
}
