package service

import (
	"encoding/json"
	"testing"

	"github.com/MJ5aif/skillconnect/signal/dto"

	"go.uber.org/zap"
)

func newTestRelay() *Relay {
	return NewRelay(NewRoomRegistry(), zap.NewNop())
}

func newRelayClient(socketID, userID, name string) *RelayClient {
	return &RelayClient{SocketID: socketID, UserID: userID, Name: name, Send: make(chan []byte, 8)}
}

func signalFrame(t *testing.T, event string, payload interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	raw, err := json.Marshal(dto.Event{Event: event, Data: data})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return raw
}

func recvSignal(t *testing.T, c *RelayClient) dto.Event {
	t.Helper()
	select {
	case raw := <-c.Send:
		var ev dto.Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			t.Fatalf("unmarshal event: %v", err)
		}
		return ev
	default:
		t.Fatalf("expected an event for %s, got none", c.SocketID)
		return dto.Event{}
	}
}

func assertNoSignal(t *testing.T, c *RelayClient) {
	t.Helper()
	select {
	case raw := <-c.Send:
		t.Fatalf("unexpected event for %s: %s", c.SocketID, raw)
	default:
	}
}

func joinRoom(t *testing.T, r *Relay, c *RelayClient, roomID string) {
	t.Helper()
	r.HandleEvent(c, signalFrame(t, dto.EventJoinRoom, dto.JoinRoomPayload{RoomID: roomID}))
}

func TestJoinNotifiesExistingAndRepliesList(t *testing.T) {
	relay := newTestRelay()
	alice := newRelayClient("s1", "user-a", "Alice")
	bilal := newRelayClient("s2", "user-b", "Bilal")
	relay.Register(alice)
	relay.Register(bilal)

	joinRoom(t, relay, alice, "room-1")
	// 第一个进房的人收到空成员表
	ev := recvSignal(t, alice)
	if ev.Event != dto.EventParticipantsList {
		t.Fatalf("got event %q, want %q", ev.Event, dto.EventParticipantsList)
	}
	var list []dto.Participant
	if err := json.Unmarshal(ev.Data, &list); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("first joiner got %v, want empty list", list)
	}

	joinRoom(t, relay, bilal, "room-1")

	// 已有成员收到 user-joined，由他向新成员发起
	ev = recvSignal(t, alice)
	if ev.Event != dto.EventUserJoined {
		t.Fatalf("got event %q, want %q", ev.Event, dto.EventUserJoined)
	}
	var joined dto.RoomEventPayload
	if err := json.Unmarshal(ev.Data, &joined); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if joined.SocketID != "s2" || len(joined.Participants) != 2 {
		t.Fatalf("user-joined payload %+v", joined)
	}

	// 新成员只拿到先于他的成员
	ev = recvSignal(t, bilal)
	if ev.Event != dto.EventParticipantsList {
		t.Fatalf("got event %q, want %q", ev.Event, dto.EventParticipantsList)
	}
	if err := json.Unmarshal(ev.Data, &list); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(list) != 1 || list[0].SocketID != "s1" {
		t.Fatalf("joiner list %v, want [s1]", list)
	}
}

func TestForwardRoutesByTargetAndStampsFrom(t *testing.T) {
	relay := newTestRelay()
	alice := newRelayClient("s1", "user-a", "Alice")
	bilal := newRelayClient("s2", "user-b", "Bilal")
	chen := newRelayClient("s3", "user-c", "Chen")
	relay.Register(alice)
	relay.Register(bilal)
	relay.Register(chen)

	offer := json.RawMessage(`{"type":"offer","sdp":"v=0"}`)
	relay.HandleEvent(alice, signalFrame(t, dto.EventOffer, dto.ForwardPayload{
		To:    "s2",
		From:  "forged", // 中继必须覆盖调用方伪造的 from
		Offer: offer,
	}))

	ev := recvSignal(t, bilal)
	if ev.Event != dto.EventOffer {
		t.Fatalf("got event %q, want %q", ev.Event, dto.EventOffer)
	}
	var p dto.ForwardPayload
	if err := json.Unmarshal(ev.Data, &p); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if p.From != "s1" {
		t.Fatalf("from %q, want s1", p.From)
	}
	if string(p.Offer) != string(offer) {
		t.Fatalf("offer payload altered: %s", p.Offer)
	}
	assertNoSignal(t, chen)
	assertNoSignal(t, alice)
}

func TestForwardUnknownTargetDropped(t *testing.T) {
	relay := newTestRelay()
	alice := newRelayClient("s1", "user-a", "Alice")
	relay.Register(alice)

	relay.HandleEvent(alice, signalFrame(t, dto.EventIceCandidate, dto.ForwardPayload{
		To:        "ghost",
		Candidate: json.RawMessage(`{"candidate":"candidate:1"}`),
	}))
	assertNoSignal(t, alice)
}

func TestDisconnectBroadcastsUserLeft(t *testing.T) {
	relay := newTestRelay()
	alice := newRelayClient("s1", "user-a", "Alice")
	bilal := newRelayClient("s2", "user-b", "Bilal")
	relay.Register(alice)
	relay.Register(bilal)
	joinRoom(t, relay, alice, "room-1")
	joinRoom(t, relay, bilal, "room-1")
	recvSignal(t, alice) // participants-list
	recvSignal(t, alice) // user-joined
	recvSignal(t, bilal) // participants-list

	relay.Unregister(bilal)

	ev := recvSignal(t, alice)
	if ev.Event != dto.EventUserLeft {
		t.Fatalf("got event %q, want %q", ev.Event, dto.EventUserLeft)
	}
	var p dto.RoomEventPayload
	if err := json.Unmarshal(ev.Data, &p); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if p.SocketID != "s2" || len(p.Participants) != 1 {
		t.Fatalf("user-left payload %+v", p)
	}
}

func TestClassMessageBroadcastExceptSender(t *testing.T) {
	relay := newTestRelay()
	alice := newRelayClient("s1", "user-a", "Alice")
	bilal := newRelayClient("s2", "user-b", "Bilal")
	relay.Register(alice)
	relay.Register(bilal)
	joinRoom(t, relay, alice, "room-1")
	joinRoom(t, relay, bilal, "room-1")
	recvSignal(t, alice)
	recvSignal(t, alice)
	recvSignal(t, bilal)

	relay.HandleEvent(alice, signalFrame(t, dto.EventClassMessage, dto.ClassMessagePayload{
		RoomID:  "room-1",
		Message: "open your editors",
	}))

	ev := recvSignal(t, bilal)
	if ev.Event != dto.EventClassMessage {
		t.Fatalf("got event %q, want %q", ev.Event, dto.EventClassMessage)
	}
	var p dto.ClassMessagePayload
	if err := json.Unmarshal(ev.Data, &p); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if p.From != "s1" || p.Timestamp == "" {
		t.Fatalf("class message not stamped: %+v", p)
	}
	assertNoSignal(t, alice)
}
