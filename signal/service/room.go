package service

import (
	"sync"

	"github.com/MJ5aif/skillconnect/signal/dto"
)

// RoomRegistry 房间成员表，首次加入时创建房间，清空后销毁
// 这是中继进程里唯一的共享可变状态
type RoomRegistry struct {
	mu    sync.RWMutex
	rooms map[string]map[string]dto.Participant // roomID -> socketID -> participant
}

func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{
		rooms: make(map[string]map[string]dto.Participant),
	}
}

// Join 返回加入前已在房间内的成员
func (r *RoomRegistry) Join(roomID string, p dto.Participant) []dto.Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomID]
	if !ok {
		room = make(map[string]dto.Participant)
		r.rooms[roomID] = room
	}
	existing := make([]dto.Participant, 0, len(room))
	for _, member := range room {
		existing = append(existing, member)
	}
	room[p.SocketID] = p
	return existing
}

// Leave 返回剩余成员；socketID 不在房间内时 ok 为 false
func (r *RoomRegistry) Leave(roomID, socketID string) (remaining []dto.Participant, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, exists := r.rooms[roomID]
	if !exists {
		return nil, false
	}
	if _, exists := room[socketID]; !exists {
		return nil, false
	}
	delete(room, socketID)
	if len(room) == 0 {
		delete(r.rooms, roomID)
		return []dto.Participant{}, true
	}
	remaining = make([]dto.Participant, 0, len(room))
	for _, member := range room {
		remaining = append(remaining, member)
	}
	return remaining, true
}

// LeaveAll 断开连接时清理该连接加入过的所有房间
func (r *RoomRegistry) LeaveAll(socketID string) map[string][]dto.Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	affected := make(map[string][]dto.Participant)
	for roomID, room := range r.rooms {
		if _, exists := room[socketID]; !exists {
			continue
		}
		delete(room, socketID)
		if len(room) == 0 {
			delete(r.rooms, roomID)
			affected[roomID] = []dto.Participant{}
			continue
		}
		remaining := make([]dto.Participant, 0, len(room))
		for _, member := range room {
			remaining = append(remaining, member)
		}
		affected[roomID] = remaining
	}
	return affected
}

// Participants 返回房间当前成员
func (r *RoomRegistry) Participants(roomID string) []dto.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return []dto.Participant{}
	}
	out := make([]dto.Participant, 0, len(room))
	for _, member := range room {
		out = append(out, member)
	}
	return out
}

// MemberIDs 返回房间内的连接 ID
func (r *RoomRegistry) MemberIDs(roomID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(room))
	for id := range room {
		ids = append(ids, id)
	}
	return ids
}

// RoomCount 当前存活的房间数
func (r *RoomRegistry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
