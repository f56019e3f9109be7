package service

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/MJ5aif/skillconnect/message/dto"

	"go.uber.org/zap"
)

// Client 一条已认证的 websocket 连接
type Client struct {
	ConnID      string
	UserID      string
	DisplayName string
	Send        chan []byte // 写泵从这里取数据，满了直接丢弃该连接
}

// Hub 实时传输中枢 按会话维护订阅者集合
// 只做转发，不负责持久化，历史以 store 为准
type Hub struct {
	mu          sync.RWMutex
	clients     map[string]*Client            // connID -> client
	subscribers map[string]map[string]*Client // conversationID -> connID -> client

	service *MessageService
	logger  *zap.Logger
}

func NewHub(s *MessageService, logger *zap.Logger) *Hub {
	return &Hub{
		clients:     make(map[string]*Client),
		subscribers: make(map[string]map[string]*Client),
		service:     s,
		logger:      logger,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.ConnID] = c
	h.mu.Unlock()
	h.logger.Info("client connected", zap.String("conn_id", c.ConnID), zap.String("user_id", c.UserID))
	h.service.MarkOnline(context.Background(), c.UserID)
}

func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ConnID]; ok {
		delete(h.clients, c.ConnID)
		for _, subs := range h.subscribers {
			delete(subs, c.ConnID)
		}
		close(c.Send)
	}
	h.mu.Unlock()
	h.logger.Info("client disconnected", zap.String("conn_id", c.ConnID), zap.String("user_id", c.UserID))
	h.service.MarkOffline(context.Background(), c.UserID)
}

// Subscribe 切换客户端正在查看的会话
func (h *Hub) Subscribe(c *Client, conversationID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subscribers[conversationID]; !ok {
		h.subscribers[conversationID] = make(map[string]*Client)
	}
	h.subscribers[conversationID][c.ConnID] = c
}

// broadcast 推给会话内除 exceptConnID 外的所有订阅者
func (h *Hub) broadcast(conversationID, exceptConnID, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("marshal payload failed", zap.Error(err))
		return
	}
	raw, err := json.Marshal(dto.Event{Event: event, Data: data})
	if err != nil {
		h.logger.Error("marshal event failed", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for connID, c := range h.subscribers[conversationID] {
		if connID == exceptConnID {
			continue
		}
		select {
		case c.Send <- raw:
		default:
			// 写不进去说明对端已经堵死，放弃这条连接的实时通道
			h.logger.Warn("send buffer full, dropping event",
				zap.String("conn_id", connID), zap.String("event", event))
		}
	}
}

// HandleEvent 处理一条入站事件
func (h *Hub) HandleEvent(ctx context.Context, c *Client, raw []byte) {
	var ev dto.Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		h.logger.Warn("invalid event frame", zap.String("conn_id", c.ConnID), zap.Error(err))
		return
	}

	switch ev.Event {
	case dto.EventSubscribe:
		var p dto.SubscribePayload
		if err := json.Unmarshal(ev.Data, &p); err != nil || p.ConversationID == "" {
			return
		}
		h.Subscribe(c, p.ConversationID)

	case dto.EventSendMessage:
		var p dto.MessagePayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return
		}
		if p.ConversationID == "" || (p.Text == "" && p.FileURL == "") {
			return
		}
		// 发送者以连接身份为准，载荷里的不可信
		p.SenderID = c.UserID
		if c.DisplayName != "" {
			p.SenderName = c.DisplayName
		}
		// 服务器只做转发，持久化由发送端另行走 store
		h.broadcast(p.ConversationID, c.ConnID, dto.EventReceiveMessage, p)

	case dto.EventStartTyping, dto.EventStopTyping:
		var p dto.TypingPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil || p.ConversationID == "" {
			return
		}
		p.IsTyping = ev.Event == dto.EventStartTyping
		if p.UserID == "" {
			p.UserID = c.UserID
		}
		if p.SenderName == "" {
			p.SenderName = c.DisplayName
		}
		// 去抖是客户端的事，服务端原样转发
		h.broadcast(p.ConversationID, c.ConnID, dto.EventTyping, p)

	case dto.EventMarkAsRead:
		var p dto.MarkAsReadPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil || p.ConversationID == "" {
			return
		}
		if p.UserID == "" {
			p.UserID = c.UserID
		}
		readIDs, err := h.service.MarkRead(ctx, p.ConversationID, p.UserID)
		if err != nil {
			h.logger.Error("mark read failed",
				zap.String("conversation_id", p.ConversationID), zap.Error(err))
			return
		}
		if len(readIDs) == 0 {
			return
		}
		h.broadcast(p.ConversationID, c.ConnID, dto.EventMessagesRead, dto.MessagesReadPayload{
			ConversationID: p.ConversationID,
			MessageIDs:     readIDs,
		})

	default:
		h.logger.Warn("unknown event", zap.String("event", ev.Event))
	}
}
