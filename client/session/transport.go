package session

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/MJ5aif/skillconnect/message/dto"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSTransport 基于 websocket 的实时通道 断线自动重连
type WSTransport struct {
	url    string
	logger *zap.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	closed    bool

	// 连上/重连成功后的回调，重连补偿在这里做
	OnConnect func()
	OnMessage func(raw []byte)
}

func NewWSTransport(url string, logger *zap.Logger) *WSTransport {
	return &WSTransport{url: url, logger: logger}
}

// Run 维持连接直到 Close 断开后指数退避重连，上限 30 秒
func (t *WSTransport) Run() {
	backoff := time.Second
	for {
		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			return
		}
		t.mu.Unlock()

		conn, _, err := websocket.DefaultDialer.Dial(t.url, nil)
		if err != nil {
			t.logger.Warn("dial failed", zap.String("url", t.url), zap.Error(err))
			time.Sleep(backoff)
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		t.mu.Lock()
		t.conn = conn
		t.connected = true
		t.mu.Unlock()

		if t.OnConnect != nil {
			t.OnConnect()
		}
		t.readLoop(conn)

		t.mu.Lock()
		t.connected = false
		t.conn = nil
		t.mu.Unlock()
	}
}

func (t *WSTransport) readLoop(conn *websocket.Conn) {
	defer conn.Close()
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			t.logger.Info("connection lost", zap.Error(err))
			return
		}
		if t.OnMessage != nil {
			t.OnMessage(raw)
		}
	}
}

func (t *WSTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// Emit 序列化成统一信封后写出 未连接直接报错，由调用方决定要不要兜底
func (t *WSTransport) Emit(event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("fail to marshal payload:%w", err)
	}
	frame, err := json.Marshal(dto.Event{Event: event, Data: data})
	if err != nil {
		return fmt.Errorf("fail to marshal event:%w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected || t.conn == nil {
		return fmt.Errorf("transport not connected")
	}
	if err := t.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("fail to write frame:%w", err)
	}
	return nil
}

func (t *WSTransport) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	if t.conn != nil {
		t.conn.Close()
	}
}
