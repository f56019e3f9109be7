package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/MJ5aif/skillconnect/message/dto"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrEmptyMessage 文本与附件都缺失，任何网络调用之前就拒绝
var ErrEmptyMessage = errors.New("message needs text or an attachment")

const typingWindow = 2 * time.Second

// Manager 会话状态机
// store 与实时通道是同一逻辑实体的两个最终一致视图，按消息 ID 合并
type Manager struct {
	mu sync.Mutex

	userID      string
	displayName string

	store     Store
	transport Transport
	uploader  Uploader
	logger    *zap.Logger

	conversations map[string]*Conversation
	messages      map[string]map[string]*Message // conversationID -> messageID -> message
	activeID      string

	// 对端的输入提示，窗口内无刷新自动过期
	typers map[string]*typerState
	// 本端输入提示的自停定时器
	typingStop   *time.Timer
	typingActive bool

	typingWindow    time.Duration
	persistAttempts int
	persistBackoff  time.Duration
	wg              sync.WaitGroup
}

type typerState struct {
	name  string
	timer *time.Timer
}

func NewManager(userID, displayName string, store Store, transport Transport, uploader Uploader, logger *zap.Logger) *Manager {
	return &Manager{
		userID:          userID,
		displayName:     displayName,
		store:           store,
		transport:       transport,
		uploader:        uploader,
		logger:          logger,
		conversations:   make(map[string]*Conversation),
		messages:        make(map[string]map[string]*Message),
		typers:          make(map[string]*typerState),
		typingWindow:    typingWindow,
		persistAttempts: 3,
		persistBackoff:  250 * time.Millisecond,
	}
}

// LoadConversationList 从 store 拉会话列表，空结果走显式兜底
func (m *Manager) LoadConversationList(ctx context.Context) error {
	conversations, err := m.store.ListConversations(ctx, m.userID)
	if err != nil {
		m.logger.Warn("load conversations failed, using fallback", zap.Error(err))
		conversations = nil
	}
	if len(conversations) == 0 {
		conversations = fallbackConversations(time.Now())
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.conversations = make(map[string]*Conversation, len(conversations))
	for _, c := range conversations {
		m.conversations[c.ID] = c
	}
	return nil
}

// SelectConversation 切换正在查看的会话 重载历史并清零未读
func (m *Manager) SelectConversation(ctx context.Context, conversationID string) error {
	history, err := m.store.ListMessages(ctx, conversationID)
	if err != nil {
		// 实时通道还在，历史留到下次重连再补
		m.logger.Warn("load history failed", zap.String("conversation_id", conversationID), zap.Error(err))
		history = nil
	}
	if len(history) == 0 {
		// 兜底会话的线程也要有内容，和兜底列表同一条路径
		if demo, ok := fallbackMessages(time.Now())[conversationID]; ok {
			history = demo
		}
	}

	m.mu.Lock()
	if err == nil || len(history) > 0 {
		m.replaceHistoryLocked(conversationID, history)
	} else if _, ok := m.messages[conversationID]; !ok {
		m.messages[conversationID] = make(map[string]*Message)
	}
	if conv, ok := m.conversations[conversationID]; ok {
		conv.UnreadCount = 0
	}
	m.activeID = conversationID
	m.mu.Unlock()

	if m.transport.Connected() {
		m.emit(dto.EventSubscribe, dto.SubscribePayload{ConversationID: conversationID})
		m.emit(dto.EventMarkAsRead, dto.MarkAsReadPayload{
			ConversationID: conversationID,
			UserID:         m.userID,
		})
	}
	return nil
}

// replaceHistoryLocked 用 store 历史替换内存态，保留尚未落库的本地乐观消息
func (m *Manager) replaceHistoryLocked(conversationID string, history []*Message) {
	fresh := make(map[string]*Message, len(history))
	for _, msg := range history {
		cp := *msg
		fresh[msg.ID] = &cp
	}
	for id, msg := range m.messages[conversationID] {
		if _, ok := fresh[id]; ok {
			continue
		}
		if msg.Status == StatusSending || msg.Status == StatusFailed {
			fresh[id] = msg
		}
	}
	m.messages[conversationID] = fresh
}

// AppendIncoming 合并一条实时到达的消息，按 ID 幂等
func (m *Manager) AppendIncoming(msg *Message) {
	m.mu.Lock()
	byID, ok := m.messages[msg.ConversationID]
	if !ok {
		byID = make(map[string]*Message)
		m.messages[msg.ConversationID] = byID
	}
	if _, exists := byID[msg.ID]; exists {
		m.mu.Unlock()
		return
	}

	incoming := msg.SenderID != m.userID
	cp := *msg
	if incoming && (cp.Status == "" || cp.Status == StatusSending || cp.Status == StatusSent) {
		cp.Status = StatusDelivered
	}
	byID[cp.ID] = &cp

	conv, ok := m.conversations[cp.ConversationID]
	if !ok {
		conv = &Conversation{ID: cp.ConversationID, Kind: KindDirect, Title: cp.SenderName}
		m.conversations[cp.ConversationID] = conv
	}
	// 预览无条件更新
	preview := cp.Text
	if preview == "" {
		preview = cp.FileName
		if preview == "" {
			preview = "Attachment"
		}
	}
	conv.LastMessage = &LastMessage{Preview: preview, CreatedAt: cp.CreatedAt}
	active := m.activeID == cp.ConversationID
	if incoming && !active {
		conv.UnreadCount++
	}
	m.mu.Unlock()

	// 正在看这个会话 立刻回已读
	if incoming && active && m.transport.Connected() {
		m.emit(dto.EventMarkAsRead, dto.MarkAsReadPayload{
			ConversationID: cp.ConversationID,
			UserID:         m.userID,
		})
	}
}

// SendText 发送文本消息
func (m *Manager) SendText(ctx context.Context, conversationID, text string) (*Message, error) {
	return m.send(ctx, &Message{
		ConversationID: conversationID,
		Text:           text,
	})
}

// SendAttachment 上传附件后发送
func (m *Manager) SendAttachment(ctx context.Context, conversationID string, file FileRef, progress func(int)) (*Message, error) {
	if len(file.Data) == 0 {
		return nil, ErrEmptyMessage
	}
	url, err := m.uploader.Upload(ctx, file, progress)
	if err != nil {
		return nil, fmt.Errorf("fail to upload attachment:%w", err)
	}
	return m.send(ctx, &Message{
		ConversationID: conversationID,
		FileURL:        url,
		FileName:       file.Name,
		FileType:       file.Mime,
	})
}

// send 乐观更新：先落本地再走网络，断线时实时通道静默跳过
func (m *Manager) send(ctx context.Context, msg *Message) (*Message, error) {
	if msg.Text == "" && msg.FileURL == "" {
		return nil, ErrEmptyMessage
	}
	msg.ID = uuid.NewString()
	msg.SenderID = m.userID
	msg.SenderName = m.displayName
	msg.CreatedAt = time.Now()
	msg.Status = StatusSending

	m.mu.Lock()
	byID, ok := m.messages[msg.ConversationID]
	if !ok {
		byID = make(map[string]*Message)
		m.messages[msg.ConversationID] = byID
	}
	byID[msg.ID] = msg
	if conv, ok := m.conversations[msg.ConversationID]; ok {
		preview := msg.Text
		if preview == "" {
			preview = msg.FileName
		}
		conv.LastMessage = &LastMessage{Preview: preview, CreatedAt: msg.CreatedAt}
	}
	// 落库用锁内快照，消息本体之后还会被读回执改状态
	snapshot := *msg
	m.mu.Unlock()

	if m.transport.Connected() {
		if err := m.transport.Emit(dto.EventSendMessage, toPayload(msg)); err != nil {
			m.logger.Warn("emit failed, store will reconcile", zap.String("message_id", msg.ID), zap.Error(err))
		} else {
			m.advanceStatus(msg.ConversationID, msg.ID, StatusSent)
		}
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.persist(snapshot)
	}()
	return msg, nil
}

// persist 带退避重试的落库 彻底失败标记 failed，不回滚也不丢弃
// 入参是值快照，状态推进通过 ID 回写
func (m *Manager) persist(msg Message) {
	msg.Status = StatusSent
	var err error
	for attempt := 0; attempt < m.persistAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(m.persistBackoff << (attempt - 1))
		}
		if err = m.store.AppendMessage(context.Background(), &msg); err == nil {
			m.advanceStatus(msg.ConversationID, msg.ID, StatusSent)
			return
		}
	}
	m.logger.Error("persist failed", zap.String("message_id", msg.ID), zap.Error(err))
	m.markFailed(msg.ConversationID, msg.ID)
}

// Reconnect 重连后重新订阅活跃会话、从 store 补齐历史并重放未落库的消息
func (m *Manager) Reconnect(ctx context.Context) {
	m.mu.Lock()
	activeID := m.activeID
	var pending []Message
	for _, byID := range m.messages {
		for _, msg := range byID {
			if msg.SenderID == m.userID && (msg.Status == StatusSending || msg.Status == StatusFailed) {
				pending = append(pending, *msg)
			}
		}
	}
	m.mu.Unlock()

	if activeID != "" {
		if m.transport.Connected() {
			m.emit(dto.EventSubscribe, dto.SubscribePayload{ConversationID: activeID})
		}
		if history, err := m.store.ListMessages(ctx, activeID); err == nil {
			m.mu.Lock()
			m.replaceHistoryLocked(activeID, history)
			m.mu.Unlock()
		} else {
			m.logger.Warn("reload history failed", zap.String("conversation_id", activeID), zap.Error(err))
		}
	}

	// pending 是锁内拷出的快照 ID 不变且 store 幂等，重放不会产生重复文档
	for _, msg := range pending {
		msg := msg
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.persist(msg)
		}()
	}
}

// HandleMessagesRead 把对端确认已读的那些消息翻成 read，其余不动
func (m *Manager) HandleMessagesRead(conversationID string, messageIDs []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byID, ok := m.messages[conversationID]
	if !ok {
		return
	}
	for _, id := range messageIDs {
		if msg, ok := byID[id]; ok {
			msg.Status = StatusRead
		}
	}
}

// NotifyTyping 每次键入调用 2 秒无后续自动发 stopTyping
func (m *Manager) NotifyTyping() {
	m.mu.Lock()
	conversationID := m.activeID
	if conversationID == "" || !m.transport.Connected() {
		m.mu.Unlock()
		return
	}
	m.typingActive = true
	if m.typingStop != nil {
		m.typingStop.Stop()
	}
	m.typingStop = time.AfterFunc(m.typingWindow, m.stopTyping)
	m.mu.Unlock()

	m.emit(dto.EventStartTyping, dto.TypingPayload{
		ConversationID: conversationID,
		UserID:         m.userID,
		SenderName:     m.displayName,
		IsTyping:       true,
	})
}

func (m *Manager) stopTyping() {
	m.mu.Lock()
	if !m.typingActive {
		m.mu.Unlock()
		return
	}
	m.typingActive = false
	conversationID := m.activeID
	connected := m.transport.Connected()
	m.mu.Unlock()

	if conversationID != "" && connected {
		m.emit(dto.EventStopTyping, dto.TypingPayload{
			ConversationID: conversationID,
			UserID:         m.userID,
			SenderName:     m.displayName,
		})
	}
}

// HandleTyping 对端输入提示，窗口内无刷新自动清除
// 发送端掉线丢了 stopTyping 也不会卡住
func (m *Manager) HandleTyping(p dto.TypingPayload) {
	if p.UserID == m.userID {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if state, ok := m.typers[p.ConversationID]; ok {
		state.timer.Stop()
		delete(m.typers, p.ConversationID)
	}
	if !p.IsTyping {
		return
	}
	conversationID := p.ConversationID
	state := &typerState{name: p.SenderName}
	state.timer = time.AfterFunc(m.typingWindow, func() {
		m.expireTyper(conversationID, state)
	})
	m.typers[conversationID] = state
}

// expireTyper 过期回调可能和刷新并发，只清掉还挂在表里的那个条目
func (m *Manager) expireTyper(conversationID string, state *typerState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.typers[conversationID]; ok && cur == state {
		delete(m.typers, conversationID)
	}
}

// HandleTransportEvent 实时通道入站事件的分发入口
func (m *Manager) HandleTransportEvent(raw []byte) {
	var ev dto.Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		m.logger.Warn("invalid transport frame", zap.Error(err))
		return
	}
	switch ev.Event {
	case dto.EventReceiveMessage:
		var p dto.MessagePayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return
		}
		m.AppendIncoming(&Message{
			ID:             p.ID,
			ConversationID: p.ConversationID,
			SenderID:       p.SenderID,
			SenderName:     p.SenderName,
			Text:           p.Text,
			FileURL:        p.FileURL,
			FileName:       p.FileName,
			FileType:       p.FileType,
			CreatedAt:      p.CreatedAt,
			Status:         p.Status,
		})
	case dto.EventTyping:
		var p dto.TypingPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return
		}
		m.HandleTyping(p)
	case dto.EventMessagesRead:
		var p dto.MessagesReadPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return
		}
		m.HandleMessagesRead(p.ConversationID, p.MessageIDs)
	}
}

// Conversations 按最近消息时间降序
func (m *Manager) Conversations() []*Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Conversation, 0, len(m.conversations))
	for _, c := range m.conversations {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		var ti, tj time.Time
		if out[i].LastMessage != nil {
			ti = out[i].LastMessage.CreatedAt
		}
		if out[j].LastMessage != nil {
			tj = out[j].LastMessage.CreatedAt
		}
		return ti.After(tj)
	})
	return out
}

// Messages 派生视图：按创建时间升序，时间相同按 ID 保证稳定
func (m *Manager) Messages(conversationID string) []*Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	byID := m.messages[conversationID]
	out := make([]*Message, 0, len(byID))
	for _, msg := range byID {
		out = append(out, msg)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// TypingName 会话里正在输入的对端名字，空串表示没有
func (m *Manager) TypingName(conversationID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if state, ok := m.typers[conversationID]; ok {
		return state.name
	}
	return ""
}

func (m *Manager) ActiveConversation() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeID
}

func (m *Manager) advanceStatus(conversationID, messageID, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg, ok := m.messages[conversationID][messageID]; ok {
		if msg.Status == StatusSending || msg.Status == StatusFailed {
			msg.Status = status
		}
	}
}

func (m *Manager) markFailed(conversationID, messageID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg, ok := m.messages[conversationID][messageID]; ok {
		if msg.Status == StatusSending {
			msg.Status = StatusFailed
		}
	}
}

func (m *Manager) emit(event string, payload interface{}) {
	if err := m.transport.Emit(event, payload); err != nil {
		m.logger.Warn("emit failed", zap.String("event", event), zap.Error(err))
	}
}

func toPayload(msg *Message) dto.MessagePayload {
	return dto.MessagePayload{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		SenderName:     msg.SenderName,
		Text:           msg.Text,
		FileURL:        msg.FileURL,
		FileName:       msg.FileName,
		FileType:       msg.FileType,
		CreatedAt:      msg.CreatedAt,
		Status:         StatusSent,
	}
}
