package repo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
)

// PresenceStore 在线状态，尽力而为，不保证强一致
type PresenceStore struct {
	Status   string    `json:"status"` // online / offline
	LastSeen time.Time `json:"last_seen"`
}

type PresenceRedis interface {
	SetOnline(ctx context.Context, userID string) error
	SetOffline(ctx context.Context, userID string) error
	GetPresence(ctx context.Context, userID string) (*PresenceStore, error)
}

type presenceRedis struct {
	rdb *redis.Client
}

func NewPresenceRedis(rdb *redis.Client) PresenceRedis {
	return &presenceRedis{rdb: rdb}
}

func (r *presenceRedis) SetOnline(ctx context.Context, userID string) error {
	store := &PresenceStore{Status: "online", LastSeen: time.Now()}
	data, err := json.Marshal(store)
	if err != nil {
		return err
	}
	// 带 TTL，进程崩溃后状态自动回落为 offline
	return r.rdb.Set(ctx, "presence:"+userID, data, 10*time.Hour).Err()
}

func (r *presenceRedis) SetOffline(ctx context.Context, userID string) error {
	store := &PresenceStore{Status: "offline", LastSeen: time.Now()}
	data, err := json.Marshal(store)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, "presence:"+userID, data, 10*time.Hour).Err()
}

func (r *presenceRedis) GetPresence(ctx context.Context, userID string) (*PresenceStore, error) {
	val, err := r.rdb.Get(ctx, "presence:"+userID).Result()
	if err == redis.Nil {
		return &PresenceStore{Status: "offline"}, nil
	}
	if err != nil {
		return nil, err
	}
	var store PresenceStore
	if err := json.Unmarshal([]byte(val), &store); err != nil {
		return nil, err
	}
	return &store, nil
}
