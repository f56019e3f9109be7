package mesh

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/MJ5aif/skillconnect/signal/dto"

	"go.uber.org/zap"
)

type fakePeer struct {
	mu         sync.Mutex
	remoteID   string
	remoteDesc json.RawMessage
	candidates []json.RawMessage
	track      TrackSource
	offered    bool
	answered   bool
	closed     bool
}

func (p *fakePeer) CreateOffer(ctx context.Context) (json.RawMessage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.offered = true
	return json.RawMessage(`{"type":"offer","sdp":"from-` + p.remoteID + `"}`), nil
}

func (p *fakePeer) CreateAnswer(ctx context.Context) (json.RawMessage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.answered = true
	return json.RawMessage(`{"type":"answer"}`), nil
}

func (p *fakePeer) SetRemoteDescription(desc json.RawMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.remoteDesc = desc
	return nil
}

func (p *fakePeer) AddICECandidate(candidate json.RawMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.candidates = append(p.candidates, candidate)
	return nil
}

func (p *fakePeer) ReplaceVideoTrack(track TrackSource) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.track = track
	return nil
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

type fakeSignaler struct {
	mu     sync.Mutex
	err    error
	events []struct {
		event   string
		payload interface{}
	}
}

func (s *fakeSignaler) Emit(event string, payload interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, struct {
		event   string
		payload interface{}
	}{event, payload})
	return nil
}

func (s *fakeSignaler) last(t *testing.T) (string, interface{}) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		t.Fatal("no events emitted")
	}
	e := s.events[len(s.events)-1]
	return e.event, e.payload
}

type harness struct {
	ctrl     *Controller
	signaler *fakeSignaler
	peers    map[string]*fakePeer
}

func newHarness(t *testing.T) *harness {
	h := &harness{
		signaler: &fakeSignaler{},
		peers:    make(map[string]*fakePeer),
	}
	factory := func(remoteID string) (PeerConnection, error) {
		p := &fakePeer{remoteID: remoteID}
		h.peers[remoteID] = p
		return p, nil
	}
	h.ctrl = NewController(h.signaler, factory, zap.NewNop())
	if err := h.ctrl.JoinRoom("room-1"); err != nil {
		t.Fatal(err)
	}
	return h
}

func (h *harness) dispatch(t *testing.T, event string, payload interface{}) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	raw, err := json.Marshal(dto.Event{Event: event, Data: data})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	h.ctrl.HandleSignal(context.Background(), raw)
}

func TestExistingMemberInitiatesTowardJoiner(t *testing.T) {
	h := newHarness(t)

	// 新成员进房 本端作为已有成员发 offer
	h.dispatch(t, dto.EventUserJoined, dto.RoomEventPayload{
		SocketID: "s2",
		Participants: []dto.Participant{
			{SocketID: "s1"}, {SocketID: "s2"},
		},
	})

	peer := h.peers["s2"]
	if peer == nil || !peer.offered {
		t.Fatal("expected offer toward joiner")
	}
	event, payload := h.signaler.last(t)
	if event != dto.EventOffer {
		t.Fatalf("emitted %q, want offer", event)
	}
	if fp, ok := payload.(dto.ForwardPayload); !ok || fp.To != "s2" {
		t.Fatalf("offer payload %+v, want to=s2", payload)
	}
}

func TestJoinerAnswersIncomingOffer(t *testing.T) {
	h := newHarness(t)

	// 本端刚进房 只记成员表，不发起
	h.dispatch(t, dto.EventParticipantsList, []dto.Participant{{SocketID: "s1", Name: "Alice"}})
	if h.ctrl.PeerCount() != 0 {
		t.Fatalf("joiner created %d peers before any offer", h.ctrl.PeerCount())
	}

	offer := json.RawMessage(`{"type":"offer","sdp":"v=0"}`)
	h.dispatch(t, dto.EventOffer, dto.ForwardPayload{From: "s1", Offer: offer})

	peer := h.peers["s1"]
	if peer == nil || !peer.answered {
		t.Fatal("expected answer toward offerer")
	}
	if string(peer.remoteDesc) != string(offer) {
		t.Fatalf("remote description %s, want the offer", peer.remoteDesc)
	}
	event, payload := h.signaler.last(t)
	if event != dto.EventAnswer {
		t.Fatalf("emitted %q, want answer", event)
	}
	if fp := payload.(dto.ForwardPayload); fp.To != "s1" {
		t.Fatalf("answer payload %+v, want to=s1", fp)
	}
}

func TestCandidatesBufferedUntilRemoteDescription(t *testing.T) {
	h := newHarness(t)

	c1 := json.RawMessage(`{"candidate":"candidate:1"}`)
	c2 := json.RawMessage(`{"candidate":"candidate:2"}`)
	// 候选比 offer 先到
	h.dispatch(t, dto.EventIceCandidate, dto.ForwardPayload{From: "s1", Candidate: c1})
	h.dispatch(t, dto.EventIceCandidate, dto.ForwardPayload{From: "s1", Candidate: c2})

	peer := h.peers["s1"]
	if len(peer.candidates) != 0 {
		t.Fatalf("%d candidates applied before remote description", len(peer.candidates))
	}

	h.dispatch(t, dto.EventOffer, dto.ForwardPayload{From: "s1", Offer: json.RawMessage(`{"type":"offer"}`)})
	if len(peer.candidates) != 2 {
		t.Fatalf("%d candidates after flush, want 2", len(peer.candidates))
	}

	// 落定后到达的候选直接应用
	h.dispatch(t, dto.EventIceCandidate, dto.ForwardPayload{From: "s1", Candidate: c1})
	if len(peer.candidates) != 3 {
		t.Fatalf("%d candidates, want 3", len(peer.candidates))
	}
}

func TestReplaceVideoTrackHitsAllPeers(t *testing.T) {
	h := newHarness(t)
	h.dispatch(t, dto.EventUserJoined, dto.RoomEventPayload{SocketID: "s2"})
	h.dispatch(t, dto.EventUserJoined, dto.RoomEventPayload{SocketID: "s3"})

	track := "screen-track"
	h.ctrl.ReplaceVideoTrack(track)

	for id, peer := range h.peers {
		if peer.track != track {
			t.Fatalf("peer %s track %v, want screen track", id, peer.track)
		}
	}
}

func TestUserLeftClosesPeer(t *testing.T) {
	h := newHarness(t)
	h.dispatch(t, dto.EventUserJoined, dto.RoomEventPayload{
		SocketID:     "s2",
		Participants: []dto.Participant{{SocketID: "s1"}, {SocketID: "s2"}},
	})

	var downID string
	h.ctrl.OnPeerDown = func(socketID string) { downID = socketID }

	h.dispatch(t, dto.EventUserLeft, dto.RoomEventPayload{
		SocketID:     "s2",
		Participants: []dto.Participant{{SocketID: "s1"}},
	})

	if !h.peers["s2"].closed {
		t.Fatal("peer connection not closed on user-left")
	}
	if downID != "s2" {
		t.Fatalf("peer down callback got %q, want s2", downID)
	}
	if h.ctrl.PeerCount() != 0 {
		t.Fatalf("peer count %d, want 0", h.ctrl.PeerCount())
	}
}

func TestPeerFailureRemovedWithoutRestart(t *testing.T) {
	h := newHarness(t)
	h.dispatch(t, dto.EventUserJoined, dto.RoomEventPayload{SocketID: "s2"})

	before := len(h.signaler.events)
	h.ctrl.ReportPeerFailure("s2")

	if !h.peers["s2"].closed {
		t.Fatal("failed peer not closed")
	}
	if h.ctrl.PeerCount() != 0 {
		t.Fatalf("peer count %d, want 0", h.ctrl.PeerCount())
	}
	// 不做 ICE 重启，失败不触发新一轮协商
	if len(h.signaler.events) != before {
		t.Fatalf("signaling emitted after failure: %v", h.signaler.events[before:])
	}
}

func TestLeaveRoomTearsDownMesh(t *testing.T) {
	h := newHarness(t)
	h.dispatch(t, dto.EventUserJoined, dto.RoomEventPayload{SocketID: "s2"})
	h.dispatch(t, dto.EventUserJoined, dto.RoomEventPayload{SocketID: "s3"})

	if err := h.ctrl.LeaveRoom(); err != nil {
		t.Fatal(err)
	}
	for id, peer := range h.peers {
		if !peer.closed {
			t.Fatalf("peer %s still open after leave", id)
		}
	}
	event, payload := h.signaler.last(t)
	if event != dto.EventLeaveRoom {
		t.Fatalf("emitted %q, want leave-room", event)
	}
	if lp := payload.(dto.LeaveRoomPayload); lp.RoomID != "room-1" {
		t.Fatalf("leave payload %+v", lp)
	}
}

func TestOfferEmittedThroughSignaler(t *testing.T) {
	h := newHarness(t)

	h.dispatch(t, dto.EventUserJoined, dto.RoomEventPayload{SocketID: "s2"})
	event, payload := h.signaler.last(t)
	if event != dto.EventOffer {
		t.Fatalf("emitted %q, want offer", event)
	}
	fp := payload.(dto.ForwardPayload)
	if fp.To != "s2" || len(fp.Offer) == 0 {
		t.Fatalf("offer payload %+v", fp)
	}

	// 信令发送失败只记日志，网格状态照常推进
	h.signaler.mu.Lock()
	h.signaler.err = errors.New("signaling down")
	h.signaler.mu.Unlock()

	h.dispatch(t, dto.EventUserJoined, dto.RoomEventPayload{SocketID: "s3"})
	if h.ctrl.PeerCount() != 2 {
		t.Fatalf("peer count %d, want 2", h.ctrl.PeerCount())
	}
}

func TestRemoteTrackSurfaced(t *testing.T) {
	h := newHarness(t)
	h.dispatch(t, dto.EventUserJoined, dto.RoomEventPayload{SocketID: "s2"})

	var gotID string
	var gotTrack TrackSource
	h.ctrl.OnRemoteTrack = func(socketID string, track TrackSource) {
		gotID, gotTrack = socketID, track
	}

	h.ctrl.HandleRemoteTrack("s2", "camera-track")
	if gotID != "s2" || gotTrack != "camera-track" {
		t.Fatalf("callback got %q/%v", gotID, gotTrack)
	}
	if h.ctrl.RemoteTrack("s2") != "camera-track" {
		t.Fatal("remote track not recorded on the entry")
	}

	// 未知对端的轨道直接丢弃
	h.ctrl.HandleRemoteTrack("ghost", "x")
	if h.ctrl.RemoteTrack("ghost") != nil {
		t.Fatal("track recorded for unknown peer")
	}
}

func TestActiveSpeakerTracked(t *testing.T) {
	h := newHarness(t)
	var announced string
	h.ctrl.OnActiveSpeaker = func(socketID string) { announced = socketID }

	h.dispatch(t, dto.EventActiveSpeaker, dto.ActiveSpeakerPayload{RoomID: "room-1", SocketID: "s9"})

	if h.ctrl.ActiveSpeaker() != "s9" || announced != "s9" {
		t.Fatalf("active speaker %q announced %q, want s9", h.ctrl.ActiveSpeaker(), announced)
	}
}
