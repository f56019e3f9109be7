package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/MJ5aif/skillconnect/message/dto"
)

// RestStore 通过消息服务的 HTTP 接口读写持久库
type RestStore struct {
	BaseURL string
	Client  *http.Client
}

func NewRestStore(baseURL string) *RestStore {
	return &RestStore{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// envelope 服务端统一响应 code 非 0 即失败
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Detail  json.RawMessage `json:"detail"`
}

func (s *RestStore) ListConversations(ctx context.Context, userID string) ([]*Conversation, error) {
	detail, err := s.get(ctx, fmt.Sprintf("%s/conversations?user_id=%s", s.BaseURL, userID))
	if err != nil {
		return nil, err
	}
	var dtos []dto.ConversationDTO
	if err := json.Unmarshal(detail, &dtos); err != nil {
		return nil, fmt.Errorf("fail to decode conversations:%w", err)
	}
	out := make([]*Conversation, 0, len(dtos))
	for i := range dtos {
		d := dtos[i]
		conv := &Conversation{
			ID:           d.ID,
			Title:        d.Title,
			Kind:         d.Kind,
			AvatarURL:    d.AvatarURL,
			UnreadCount:  d.UnreadCount,
			Participants: d.Participants,
			Status:       d.Status,
			LastSeen:     d.LastSeen,
		}
		if d.LastMessage != nil {
			conv.LastMessage = &LastMessage{
				Preview:   d.LastMessage.Preview,
				CreatedAt: d.LastMessage.CreatedAt,
			}
		}
		out = append(out, conv)
	}
	return out, nil
}

func (s *RestStore) ListMessages(ctx context.Context, conversationID string) ([]*Message, error) {
	detail, err := s.get(ctx, fmt.Sprintf("%s/conversations/%s/messages", s.BaseURL, conversationID))
	if err != nil {
		return nil, err
	}
	var dtos []dto.MessageDTO
	if err := json.Unmarshal(detail, &dtos); err != nil {
		return nil, fmt.Errorf("fail to decode messages:%w", err)
	}
	out := make([]*Message, 0, len(dtos))
	for i := range dtos {
		d := dtos[i]
		out = append(out, &Message{
			ID:             d.ID,
			ConversationID: d.ConversationID,
			SenderID:       d.SenderID,
			SenderName:     d.SenderName,
			Text:           d.Text,
			FileURL:        d.FileURL,
			FileName:       d.FileName,
			FileType:       d.FileType,
			Status:         d.Status,
			CreatedAt:      d.CreatedAt,
		})
	}
	return out, nil
}

// AppendMessage 服务端按消息 ID 幂等，重放安全
func (s *RestStore) AppendMessage(ctx context.Context, msg *Message) error {
	body, err := json.Marshal(dto.MessagePayload{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		SenderName:     msg.SenderName,
		Text:           msg.Text,
		FileURL:        msg.FileURL,
		FileName:       msg.FileName,
		FileType:       msg.FileType,
		CreatedAt:      msg.CreatedAt,
		Status:         msg.Status,
	})
	if err != nil {
		return fmt.Errorf("fail to marshal message:%w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("fail to build request:%w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	_, err = s.do(req)
	return err
}

func (s *RestStore) get(ctx context.Context, url string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fail to build request:%w", err)
	}
	return s.do(req)
}

func (s *RestStore) do(req *http.Request) (json.RawMessage, error) {
	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fail to reach store:%w", err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("fail to decode response:%w", err)
	}
	if env.Code != 0 {
		return nil, fmt.Errorf("store rejected request: %s", env.Error)
	}
	return env.Detail, nil
}
