package mesh

import (
	"context"
	"encoding/json"
)

// TrackSource 媒体轨道的不透明句柄 摄像头或屏幕采集
type TrackSource interface{}

// PeerConnection 对单个远端的 WebRTC 连接抽象
// CreateOffer / CreateAnswer 同时落本地描述
type PeerConnection interface {
	CreateOffer(ctx context.Context) (json.RawMessage, error)
	CreateAnswer(ctx context.Context) (json.RawMessage, error)
	SetRemoteDescription(desc json.RawMessage) error
	AddICECandidate(candidate json.RawMessage) error
	// ReplaceVideoTrack 换出视频轨 不触发重新协商
	ReplaceVideoTrack(track TrackSource) error
	Close() error
}

// PeerFactory 为指定远端建一条新连接
type PeerFactory func(remoteID string) (PeerConnection, error)

// Signaler 到信令中继的出站通道
type Signaler interface {
	Emit(event string, payload interface{}) error
}
