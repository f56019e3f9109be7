package dto

import "encoding/json"

// 信令事件名 与前端 socket 事件一一对应
const (
	EventJoinRoom         = "join-room"
	EventLeaveRoom        = "leave-room"
	EventUserJoined       = "user-joined"
	EventUserLeft         = "user-left"
	EventParticipantsList = "participants-list"
	EventOffer            = "offer"
	EventAnswer           = "answer"
	EventIceCandidate     = "ice-candidate"
	EventClassMessage     = "class-message"
	EventActiveSpeaker    = "active-speaker"
)

// Event websocket 上的统一信封
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type Participant struct {
	SocketID string `json:"socketId"`
	Name     string `json:"name,omitempty"`
	Role     string `json:"role,omitempty"`
}

type JoinRoomPayload struct {
	RoomID string `json:"roomId"`
}

type LeaveRoomPayload struct {
	RoomID string `json:"roomId"`
}

// RoomEventPayload user-joined / user-left 广播
type RoomEventPayload struct {
	SocketID     string        `json:"socketId"`
	Participants []Participant `json:"participants"`
}

// ForwardPayload offer / answer / ice-candidate 的转发信封
// 载荷原样转发，中继不做任何解释
type ForwardPayload struct {
	To        string          `json:"to,omitempty"`
	From      string          `json:"from,omitempty"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

type ClassMessagePayload struct {
	RoomID    string `json:"roomId,omitempty"`
	From      string `json:"from,omitempty"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp,omitempty"`
}

type ActiveSpeakerPayload struct {
	RoomID   string `json:"roomId,omitempty"`
	SocketID string `json:"socketId"`
}
