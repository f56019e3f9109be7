package mesh

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/MJ5aif/skillconnect/signal/dto"

	"go.uber.org/zap"
)

// peer 一条到远端的连接和它的协商状态
type peer struct {
	conn PeerConnection
	// 远端描述落定前收到的候选先缓存，落定后一次性刷入
	remoteSet   bool
	pending     []json.RawMessage
	remoteTrack TrackSource
}

// Controller 全网状网格的客户端状态机
// 发起方由加入顺序唯一确定：已有成员向新成员发 offer，新成员只应答
type Controller struct {
	mu sync.Mutex

	roomID   string
	signaler Signaler
	factory  PeerFactory
	logger   *zap.Logger

	peers         map[string]*peer           // remote socketID -> peer
	participants  map[string]dto.Participant // 房间成员表，以信令广播为准
	activeSpeaker string
	videoTrack    TrackSource

	// 对端退出或连接失败时通知上层释放渲染资源
	OnPeerDown      func(socketID string)
	OnParticipants  func(participants []dto.Participant)
	OnClassMessage  func(p dto.ClassMessagePayload)
	OnActiveSpeaker func(socketID string)
	OnRemoteTrack   func(socketID string, track TrackSource)
}

func NewController(signaler Signaler, factory PeerFactory, logger *zap.Logger) *Controller {
	return &Controller{
		signaler:     signaler,
		factory:      factory,
		logger:       logger,
		peers:        make(map[string]*peer),
		participants: make(map[string]dto.Participant),
	}
}

// JoinRoom 进房 后续连接由信令事件驱动
func (c *Controller) JoinRoom(roomID string) error {
	c.mu.Lock()
	c.roomID = roomID
	c.mu.Unlock()
	return c.signaler.Emit(dto.EventJoinRoom, dto.JoinRoomPayload{RoomID: roomID})
}

// LeaveRoom 退房并关掉所有对端连接
func (c *Controller) LeaveRoom() error {
	c.mu.Lock()
	roomID := c.roomID
	c.roomID = ""
	peers := c.peers
	c.peers = make(map[string]*peer)
	c.participants = make(map[string]dto.Participant)
	c.activeSpeaker = ""
	c.mu.Unlock()

	for id, p := range peers {
		if err := p.conn.Close(); err != nil {
			c.logger.Warn("close peer failed", zap.String("socket_id", id), zap.Error(err))
		}
	}
	if roomID == "" {
		return nil
	}
	return c.signaler.Emit(dto.EventLeaveRoom, dto.LeaveRoomPayload{RoomID: roomID})
}

// HandleSignal 信令中继入站事件的分发入口
func (c *Controller) HandleSignal(ctx context.Context, raw []byte) {
	var ev dto.Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		c.logger.Warn("invalid signal frame", zap.Error(err))
		return
	}

	switch ev.Event {
	case dto.EventUserJoined:
		var p dto.RoomEventPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return
		}
		c.handleUserJoined(ctx, p)

	case dto.EventParticipantsList:
		var list []dto.Participant
		if err := json.Unmarshal(ev.Data, &list); err != nil {
			return
		}
		c.handleParticipantsList(list)

	case dto.EventUserLeft:
		var p dto.RoomEventPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return
		}
		c.RemovePeer(p.SocketID)
		c.setParticipants(p.Participants)

	case dto.EventOffer:
		var p dto.ForwardPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil || p.From == "" {
			return
		}
		c.handleOffer(ctx, p)

	case dto.EventAnswer:
		var p dto.ForwardPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil || p.From == "" {
			return
		}
		c.handleAnswer(p)

	case dto.EventIceCandidate:
		var p dto.ForwardPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil || p.From == "" {
			return
		}
		c.handleCandidate(p)

	case dto.EventClassMessage:
		var p dto.ClassMessagePayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return
		}
		if c.OnClassMessage != nil {
			c.OnClassMessage(p)
		}

	case dto.EventActiveSpeaker:
		var p dto.ActiveSpeakerPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return
		}
		c.mu.Lock()
		c.activeSpeaker = p.SocketID
		c.mu.Unlock()
		if c.OnActiveSpeaker != nil {
			c.OnActiveSpeaker(p.SocketID)
		}
	}
}

// handleUserJoined 新成员进房 本端是已有成员，由本端发起 offer
func (c *Controller) handleUserJoined(ctx context.Context, p dto.RoomEventPayload) {
	c.setParticipants(p.Participants)

	c.mu.Lock()
	if _, exists := c.peers[p.SocketID]; exists {
		c.mu.Unlock()
		return
	}
	pr, err := c.ensurePeerLocked(p.SocketID)
	if err != nil {
		c.mu.Unlock()
		c.logger.Error("create peer failed", zap.String("socket_id", p.SocketID), zap.Error(err))
		return
	}
	conn := pr.conn
	c.mu.Unlock()

	offer, err := conn.CreateOffer(ctx)
	if err != nil {
		c.logger.Error("create offer failed", zap.String("socket_id", p.SocketID), zap.Error(err))
		c.RemovePeer(p.SocketID)
		return
	}
	c.emit(dto.EventOffer, dto.ForwardPayload{To: p.SocketID, Offer: offer})
}

// handleParticipantsList 本端刚进房 只记成员表，offer 由对面发过来
func (c *Controller) handleParticipantsList(list []dto.Participant) {
	c.mu.Lock()
	for _, p := range list {
		c.participants[p.SocketID] = p
	}
	c.mu.Unlock()
	if c.OnParticipants != nil {
		c.OnParticipants(c.Participants())
	}
}

func (c *Controller) handleOffer(ctx context.Context, p dto.ForwardPayload) {
	c.mu.Lock()
	pr, err := c.ensurePeerLocked(p.From)
	if err != nil {
		c.mu.Unlock()
		c.logger.Error("create peer failed", zap.String("socket_id", p.From), zap.Error(err))
		return
	}
	conn := pr.conn
	c.mu.Unlock()

	if err := conn.SetRemoteDescription(p.Offer); err != nil {
		c.logger.Error("apply offer failed", zap.String("socket_id", p.From), zap.Error(err))
		c.RemovePeer(p.From)
		return
	}
	c.flushCandidates(p.From)

	answer, err := conn.CreateAnswer(ctx)
	if err != nil {
		c.logger.Error("create answer failed", zap.String("socket_id", p.From), zap.Error(err))
		c.RemovePeer(p.From)
		return
	}
	c.emit(dto.EventAnswer, dto.ForwardPayload{To: p.From, Answer: answer})
}

func (c *Controller) handleAnswer(p dto.ForwardPayload) {
	c.mu.Lock()
	pr, ok := c.peers[p.From]
	if !ok {
		c.mu.Unlock()
		c.logger.Warn("answer from unknown peer", zap.String("socket_id", p.From))
		return
	}
	conn := pr.conn
	c.mu.Unlock()

	if err := conn.SetRemoteDescription(p.Answer); err != nil {
		c.logger.Error("apply answer failed", zap.String("socket_id", p.From), zap.Error(err))
		c.RemovePeer(p.From)
		return
	}
	c.flushCandidates(p.From)
}

// handleCandidate 远端描述未落定前先缓存
func (c *Controller) handleCandidate(p dto.ForwardPayload) {
	c.mu.Lock()
	pr, ok := c.peers[p.From]
	if !ok {
		// 候选比 offer 先到 建好条目等描述
		var err error
		pr, err = c.ensurePeerLocked(p.From)
		if err != nil {
			c.mu.Unlock()
			c.logger.Error("create peer failed", zap.String("socket_id", p.From), zap.Error(err))
			return
		}
	}
	if !pr.remoteSet {
		pr.pending = append(pr.pending, p.Candidate)
		c.mu.Unlock()
		return
	}
	conn := pr.conn
	c.mu.Unlock()

	if err := conn.AddICECandidate(p.Candidate); err != nil {
		c.logger.Warn("add candidate failed", zap.String("socket_id", p.From), zap.Error(err))
	}
}

// flushCandidates 远端描述落定后刷入缓存的候选
func (c *Controller) flushCandidates(socketID string) {
	c.mu.Lock()
	pr, ok := c.peers[socketID]
	if !ok {
		c.mu.Unlock()
		return
	}
	pr.remoteSet = true
	pending := pr.pending
	pr.pending = nil
	conn := pr.conn
	c.mu.Unlock()

	for _, candidate := range pending {
		if err := conn.AddICECandidate(candidate); err != nil {
			c.logger.Warn("add buffered candidate failed", zap.String("socket_id", socketID), zap.Error(err))
		}
	}
}

// ReplaceVideoTrack 在所有对端上换视频轨 屏幕共享的开与停都走这里
func (c *Controller) ReplaceVideoTrack(track TrackSource) {
	c.mu.Lock()
	c.videoTrack = track
	conns := make(map[string]PeerConnection, len(c.peers))
	for id, p := range c.peers {
		conns[id] = p.conn
	}
	c.mu.Unlock()

	for id, conn := range conns {
		if err := conn.ReplaceVideoTrack(track); err != nil {
			c.logger.Warn("replace track failed", zap.String("socket_id", id), zap.Error(err))
		}
	}
}

// HandleRemoteTrack 媒体引擎回调 远端轨道到达
func (c *Controller) HandleRemoteTrack(socketID string, track TrackSource) {
	c.mu.Lock()
	pr, ok := c.peers[socketID]
	if ok {
		pr.remoteTrack = track
	}
	c.mu.Unlock()
	if !ok {
		c.logger.Warn("track from unknown peer", zap.String("socket_id", socketID))
		return
	}
	if c.OnRemoteTrack != nil {
		c.OnRemoteTrack(socketID, track)
	}
}

// RemoteTrack 已收到的远端轨道，nil 表示还没到
func (c *Controller) RemoteTrack(socketID string) TrackSource {
	c.mu.Lock()
	defer c.mu.Unlock()
	if pr, ok := c.peers[socketID]; ok {
		return pr.remoteTrack
	}
	return nil
}

// ReportPeerFailure 连接彻底失败 不做 ICE 重启，记日志后移除
func (c *Controller) ReportPeerFailure(socketID string) {
	c.logger.Warn("peer connection failed", zap.String("socket_id", socketID))
	c.RemovePeer(socketID)
}

// RemovePeer 关掉并移除一条对端连接
func (c *Controller) RemovePeer(socketID string) {
	c.mu.Lock()
	pr, ok := c.peers[socketID]
	if ok {
		delete(c.peers, socketID)
	}
	delete(c.participants, socketID)
	if c.activeSpeaker == socketID {
		c.activeSpeaker = ""
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	if err := pr.conn.Close(); err != nil {
		c.logger.Warn("close peer failed", zap.String("socket_id", socketID), zap.Error(err))
	}
	if c.OnPeerDown != nil {
		c.OnPeerDown(socketID)
	}
}

// SendClassMessage 课堂文字频道 时间戳由中继补
func (c *Controller) SendClassMessage(text string) error {
	c.mu.Lock()
	roomID := c.roomID
	c.mu.Unlock()
	return c.signaler.Emit(dto.EventClassMessage, dto.ClassMessagePayload{
		RoomID:  roomID,
		Message: text,
	})
}

// AnnounceActiveSpeaker 广播当前主讲人
func (c *Controller) AnnounceActiveSpeaker(socketID string) error {
	c.mu.Lock()
	roomID := c.roomID
	c.mu.Unlock()
	return c.signaler.Emit(dto.EventActiveSpeaker, dto.ActiveSpeakerPayload{
		RoomID:   roomID,
		SocketID: socketID,
	})
}

func (c *Controller) Participants() []dto.Participant {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]dto.Participant, 0, len(c.participants))
	for _, p := range c.participants {
		out = append(out, p)
	}
	return out
}

func (c *Controller) ActiveSpeaker() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeSpeaker
}

func (c *Controller) PeerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.peers)
}

func (c *Controller) emit(event string, payload interface{}) {
	if err := c.signaler.Emit(event, payload); err != nil {
		c.logger.Warn("emit failed", zap.String("event", event), zap.Error(err))
	}
}

// ensurePeerLocked 调用方必须持锁
func (c *Controller) ensurePeerLocked(socketID string) (*peer, error) {
	if pr, ok := c.peers[socketID]; ok {
		return pr, nil
	}
	conn, err := c.factory(socketID)
	if err != nil {
		return nil, err
	}
	pr := &peer{conn: conn}
	c.peers[socketID] = pr
	return pr, nil
}

func (c *Controller) setParticipants(list []dto.Participant) {
	c.mu.Lock()
	c.participants = make(map[string]dto.Participant, len(list))
	for _, p := range list {
		c.participants[p.SocketID] = p
	}
	c.mu.Unlock()
	if c.OnParticipants != nil {
		c.OnParticipants(c.Participants())
	}
}
