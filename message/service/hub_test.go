package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/MJ5aif/skillconnect/message/dto"
	"github.com/MJ5aif/skillconnect/message/repo"
	"github.com/MJ5aif/skillconnect/message/repo/model"

	"go.uber.org/zap"
)

type stubRepo struct {
	appended []*model.Message
	readIDs  []string
}

func (s *stubRepo) AppendMessage(ctx context.Context, msg *model.Message) error {
	s.appended = append(s.appended, msg)
	return nil
}

func (s *stubRepo) CreateConversation(ctx context.Context, conv *model.Conversation, memberIDs []string) error {
	return nil
}

func (s *stubRepo) GetConversations(ctx context.Context, userID string) ([]*repo.ConversationWithUnread, error) {
	return nil, nil
}

func (s *stubRepo) GetConversationMessages(ctx context.Context, conversationID string) ([]*model.Message, error) {
	return nil, nil
}

func (s *stubRepo) GetConversationMembers(ctx context.Context, conversationID string) ([]string, error) {
	return nil, nil
}

func (s *stubRepo) MarkConversationRead(ctx context.Context, conversationID, userID string) ([]string, error) {
	return s.readIDs, nil
}

type stubPresence struct{}

func (s *stubPresence) SetOnline(ctx context.Context, userID string) error  { return nil }
func (s *stubPresence) SetOffline(ctx context.Context, userID string) error { return nil }
func (s *stubPresence) GetPresence(ctx context.Context, userID string) (*repo.PresenceStore, error) {
	return &repo.PresenceStore{Status: "offline"}, nil
}

func newTestHub(r *stubRepo) *Hub {
	svc := NewMessageService(r, &stubPresence{}, zap.NewNop())
	return NewHub(svc, zap.NewNop())
}

func newTestClient(connID, userID, name string) *Client {
	return &Client{ConnID: connID, UserID: userID, DisplayName: name, Send: make(chan []byte, 8)}
}

func frame(t *testing.T, event string, payload interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	raw, err := json.Marshal(dto.Event{Event: event, Data: data})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return raw
}

func recvEvent(t *testing.T, c *Client) dto.Event {
	t.Helper()
	select {
	case raw := <-c.Send:
		var ev dto.Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			t.Fatalf("unmarshal event: %v", err)
		}
		return ev
	default:
		t.Fatalf("expected an event for %s, got none", c.ConnID)
		return dto.Event{}
	}
}

func assertNoEvent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case raw := <-c.Send:
		t.Fatalf("unexpected event for %s: %s", c.ConnID, raw)
	default:
	}
}

func TestBroadcastIsolation(t *testing.T) {
	hub := newTestHub(&stubRepo{})
	sender := newTestClient("conn-a", "user-a", "Alice")
	receiver := newTestClient("conn-b", "user-b", "Bilal")
	outsider := newTestClient("conn-c", "user-c", "Chen")
	for _, c := range []*Client{sender, receiver, outsider} {
		hub.Register(c)
	}
	hub.Subscribe(sender, "conv-1")
	hub.Subscribe(receiver, "conv-1")
	hub.Subscribe(outsider, "conv-2")

	hub.HandleEvent(context.Background(), sender, frame(t, dto.EventSendMessage, dto.MessagePayload{
		ID:             "m1",
		ConversationID: "conv-1",
		SenderID:       "user-a",
		Text:           "hello",
	}))

	ev := recvEvent(t, receiver)
	if ev.Event != dto.EventReceiveMessage {
		t.Fatalf("got event %q, want %q", ev.Event, dto.EventReceiveMessage)
	}
	var p dto.MessagePayload
	if err := json.Unmarshal(ev.Data, &p); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if p.ID != "m1" || p.Text != "hello" {
		t.Fatalf("payload mismatch: %+v", p)
	}
	// 发送方和别的会话都收不到
	assertNoEvent(t, sender)
	assertNoEvent(t, outsider)
}

func TestSendMessageStampsSenderIdentity(t *testing.T) {
	hub := newTestHub(&stubRepo{})
	sender := newTestClient("conn-a", "user-a", "Alice")
	receiver := newTestClient("conn-b", "user-b", "Bilal")
	hub.Register(sender)
	hub.Register(receiver)
	hub.Subscribe(sender, "conv-1")
	hub.Subscribe(receiver, "conv-1")

	// 载荷里伪造的发送者必须被连接身份覆盖
	hub.HandleEvent(context.Background(), sender, frame(t, dto.EventSendMessage, dto.MessagePayload{
		ID:             "m1",
		ConversationID: "conv-1",
		SenderID:       "forged",
		SenderName:     "Mallory",
		Text:           "hello",
	}))

	ev := recvEvent(t, receiver)
	var p dto.MessagePayload
	if err := json.Unmarshal(ev.Data, &p); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if p.SenderID != "user-a" || p.SenderName != "Alice" {
		t.Fatalf("sender not stamped: %+v", p)
	}
}

func TestEmptyMessageNotBroadcast(t *testing.T) {
	hub := newTestHub(&stubRepo{})
	sender := newTestClient("conn-a", "user-a", "Alice")
	receiver := newTestClient("conn-b", "user-b", "Bilal")
	hub.Register(sender)
	hub.Register(receiver)
	hub.Subscribe(sender, "conv-1")
	hub.Subscribe(receiver, "conv-1")

	hub.HandleEvent(context.Background(), sender, frame(t, dto.EventSendMessage, dto.MessagePayload{
		ID:             "m1",
		ConversationID: "conv-1",
		SenderID:       "user-a",
	}))
	assertNoEvent(t, receiver)
}

func TestTypingRelayStampsIdentity(t *testing.T) {
	hub := newTestHub(&stubRepo{})
	sender := newTestClient("conn-a", "user-a", "Alice")
	receiver := newTestClient("conn-b", "user-b", "Bilal")
	hub.Register(sender)
	hub.Register(receiver)
	hub.Subscribe(sender, "conv-1")
	hub.Subscribe(receiver, "conv-1")

	hub.HandleEvent(context.Background(), sender, frame(t, dto.EventStartTyping, dto.TypingPayload{
		ConversationID: "conv-1",
	}))

	ev := recvEvent(t, receiver)
	if ev.Event != dto.EventTyping {
		t.Fatalf("got event %q, want %q", ev.Event, dto.EventTyping)
	}
	var p dto.TypingPayload
	if err := json.Unmarshal(ev.Data, &p); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if !p.IsTyping {
		t.Fatal("expected isTyping true")
	}
	if p.UserID != "user-a" || p.SenderName != "Alice" {
		t.Fatalf("identity not stamped: %+v", p)
	}

	hub.HandleEvent(context.Background(), sender, frame(t, dto.EventStopTyping, dto.TypingPayload{
		ConversationID: "conv-1",
	}))
	ev = recvEvent(t, receiver)
	if err := json.Unmarshal(ev.Data, &p); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if p.IsTyping {
		t.Fatal("expected isTyping false")
	}
}

func TestMarkAsReadBroadcastsFlippedIDs(t *testing.T) {
	hub := newTestHub(&stubRepo{readIDs: []string{"m1", "m2"}})
	reader := newTestClient("conn-a", "user-a", "Alice")
	author := newTestClient("conn-b", "user-b", "Bilal")
	hub.Register(reader)
	hub.Register(author)
	hub.Subscribe(reader, "conv-1")
	hub.Subscribe(author, "conv-1")

	hub.HandleEvent(context.Background(), reader, frame(t, dto.EventMarkAsRead, dto.MarkAsReadPayload{
		ConversationID: "conv-1",
	}))

	ev := recvEvent(t, author)
	if ev.Event != dto.EventMessagesRead {
		t.Fatalf("got event %q, want %q", ev.Event, dto.EventMessagesRead)
	}
	var p dto.MessagesReadPayload
	if err := json.Unmarshal(ev.Data, &p); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if len(p.MessageIDs) != 2 || p.MessageIDs[0] != "m1" || p.MessageIDs[1] != "m2" {
		t.Fatalf("got ids %v, want [m1 m2]", p.MessageIDs)
	}
}

func TestMarkAsReadNothingToFlip(t *testing.T) {
	hub := newTestHub(&stubRepo{})
	reader := newTestClient("conn-a", "user-a", "Alice")
	author := newTestClient("conn-b", "user-b", "Bilal")
	hub.Register(reader)
	hub.Register(author)
	hub.Subscribe(reader, "conv-1")
	hub.Subscribe(author, "conv-1")

	hub.HandleEvent(context.Background(), reader, frame(t, dto.EventMarkAsRead, dto.MarkAsReadPayload{
		ConversationID: "conv-1",
	}))
	assertNoEvent(t, author)
}

func TestUnregisterRemovesSubscriptions(t *testing.T) {
	hub := newTestHub(&stubRepo{})
	sender := newTestClient("conn-a", "user-a", "Alice")
	receiver := newTestClient("conn-b", "user-b", "Bilal")
	hub.Register(sender)
	hub.Register(receiver)
	hub.Subscribe(sender, "conv-1")
	hub.Subscribe(receiver, "conv-1")

	hub.Unregister(receiver)

	// 已注销的连接不再接收广播，也不能写已关闭的通道
	hub.HandleEvent(context.Background(), sender, frame(t, dto.EventSendMessage, dto.MessagePayload{
		ID:             "m1",
		ConversationID: "conv-1",
		SenderID:       "user-a",
		Text:           "hello",
	}))

	if _, ok := <-receiver.Send; ok {
		t.Fatal("expected closed channel without pending events")
	}
}
