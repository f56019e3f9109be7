package service

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/MJ5aif/skillconnect/signal/dto"

	"go.uber.org/zap"
)

// RelayClient 一条已认证的信令连接
type RelayClient struct {
	SocketID string
	UserID   string
	Name     string
	Send     chan []byte
}

// Relay 信令中继 只按连接 ID 路由，不解释 offer/answer/candidate 载荷
// 媒体流走点对点，中继的正确性义务只有确定性路由和成员广播
type Relay struct {
	mu      sync.RWMutex
	clients map[string]*RelayClient // socketID -> client

	registry *RoomRegistry
	logger   *zap.Logger
}

func NewRelay(registry *RoomRegistry, logger *zap.Logger) *Relay {
	return &Relay{
		clients:  make(map[string]*RelayClient),
		registry: registry,
		logger:   logger,
	}
}

func (r *Relay) Register(c *RelayClient) {
	r.mu.Lock()
	r.clients[c.SocketID] = c
	r.mu.Unlock()
	r.logger.Info("signaling client connected",
		zap.String("socket_id", c.SocketID), zap.String("user_id", c.UserID))
}

// Unregister 断开时把该连接从所有房间清掉并广播 user-left
func (r *Relay) Unregister(c *RelayClient) {
	r.mu.Lock()
	if _, ok := r.clients[c.SocketID]; !ok {
		r.mu.Unlock()
		return
	}
	delete(r.clients, c.SocketID)
	close(c.Send)
	r.mu.Unlock()

	for roomID, remaining := range r.registry.LeaveAll(c.SocketID) {
		r.broadcastToRoom(roomID, "", dto.EventUserLeft, dto.RoomEventPayload{
			SocketID:     c.SocketID,
			Participants: remaining,
		})
	}
	r.logger.Info("signaling client disconnected", zap.String("socket_id", c.SocketID))
}

// HandleEvent 处理一条入站信令
func (r *Relay) HandleEvent(c *RelayClient, raw []byte) {
	var ev dto.Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		r.logger.Warn("invalid signal frame", zap.String("socket_id", c.SocketID), zap.Error(err))
		return
	}

	switch ev.Event {
	case dto.EventJoinRoom:
		var p dto.JoinRoomPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil || p.RoomID == "" {
			return
		}
		r.joinRoom(c, p.RoomID)

	case dto.EventLeaveRoom:
		var p dto.LeaveRoomPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil || p.RoomID == "" {
			return
		}
		r.leaveRoom(c, p.RoomID)

	case dto.EventOffer, dto.EventAnswer, dto.EventIceCandidate:
		var p dto.ForwardPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil || p.To == "" {
			return
		}
		p.From = c.SocketID
		r.forward(ev.Event, p)

	case dto.EventClassMessage:
		var p dto.ClassMessagePayload
		if err := json.Unmarshal(ev.Data, &p); err != nil || p.RoomID == "" {
			return
		}
		p.From = c.SocketID
		p.Timestamp = time.Now().Format(time.RFC3339)
		r.broadcastToRoom(p.RoomID, c.SocketID, dto.EventClassMessage, p)

	case dto.EventActiveSpeaker:
		var p dto.ActiveSpeakerPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil || p.RoomID == "" {
			return
		}
		r.broadcastToRoom(p.RoomID, c.SocketID, dto.EventActiveSpeaker, p)

	default:
		r.logger.Warn("unknown signal event", zap.String("event", ev.Event))
	}
}

func (r *Relay) joinRoom(c *RelayClient, roomID string) {
	existing := r.registry.Join(roomID, dto.Participant{
		SocketID: c.SocketID,
		Name:     c.Name,
	})

	// 先通知已有成员 新成员由他们发起 offer
	joined := dto.RoomEventPayload{
		SocketID:     c.SocketID,
		Participants: r.registry.Participants(roomID),
	}
	for _, member := range existing {
		r.send(member.SocketID, dto.EventUserJoined, joined)
	}

	// 再把当前成员表回给新成员
	r.send(c.SocketID, dto.EventParticipantsList, existing)
}

func (r *Relay) leaveRoom(c *RelayClient, roomID string) {
	remaining, ok := r.registry.Leave(roomID, c.SocketID)
	if !ok {
		return
	}
	r.broadcastToRoom(roomID, c.SocketID, dto.EventUserLeft, dto.RoomEventPayload{
		SocketID:     c.SocketID,
		Participants: remaining,
	})
}

// forward 定向转发给 to 指定的连接，找不到就丢弃
func (r *Relay) forward(event string, p dto.ForwardPayload) {
	r.mu.RLock()
	target, ok := r.clients[p.To]
	r.mu.RUnlock()
	if !ok {
		r.logger.Warn("forward target not found",
			zap.String("event", event), zap.String("to", p.To))
		return
	}
	r.sendTo(target, event, p)
}

func (r *Relay) broadcastToRoom(roomID, exceptSocketID, event string, payload interface{}) {
	for _, socketID := range r.registry.MemberIDs(roomID) {
		if socketID == exceptSocketID {
			continue
		}
		r.send(socketID, event, payload)
	}
}

func (r *Relay) send(socketID, event string, payload interface{}) {
	r.mu.RLock()
	c, ok := r.clients[socketID]
	r.mu.RUnlock()
	if !ok {
		return
	}
	r.sendTo(c, event, payload)
}

func (r *Relay) sendTo(c *RelayClient, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		r.logger.Error("marshal payload failed", zap.Error(err))
		return
	}
	raw, err := json.Marshal(dto.Event{Event: event, Data: data})
	if err != nil {
		r.logger.Error("marshal event failed", zap.Error(err))
		return
	}
	select {
	case c.Send <- raw:
	default:
		r.logger.Warn("send buffer full, dropping signal",
			zap.String("socket_id", c.SocketID), zap.String("event", event))
	}
}
