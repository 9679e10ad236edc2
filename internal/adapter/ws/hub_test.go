package ws

import (
	"context"
	"encoding/json"
	"testing"
)

func TestNewHub(t *testing.T) {
	hub := NewHub()
	if hub == nil {
		t.Fatal("expected non-nil hub")
	}
	if hub.ConnectionCount() != 0 {
		t.Fatalf("expected 0 connections, got %d", hub.ConnectionCount())
	}
}

func TestHubBroadcastNoClients(t *testing.T) {
	hub := NewHub()

	// Broadcast with nobody attached must not panic.
	hub.Broadcast(context.Background(), Message{
		Type:    "test",
		Payload: []byte(`{"key":"value"}`),
	})
}

func TestHubBroadcastDelivers(t *testing.T) {
	hub := NewHub()
	c := &client{out: make(chan []byte, 4)}
	hub.attach(c)
	defer hub.detach(c)

	hub.BroadcastEvent(context.Background(), EventPacketStatus, PacketStatusEvent{
		PacketID:  "pkt1",
		ProjectID: "proj1",
		Status:    "completed",
	})

	select {
	case frame := <-c.out:
		var msg Message
		if err := json.Unmarshal(frame, &msg); err != nil {
			t.Fatalf("unmarshal frame: %v", err)
		}
		if msg.Type != EventPacketStatus {
			t.Fatalf("expected type %q, got %q", EventPacketStatus, msg.Type)
		}
		var ev PacketStatusEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			t.Fatalf("unmarshal payload: %v", err)
		}
		if ev.PacketID != "pkt1" || ev.Status != "completed" {
			t.Fatalf("unexpected payload %+v", ev)
		}
	default:
		t.Fatal("expected a queued frame")
	}
}

func TestHubDropsSlowClient(t *testing.T) {
	hub := NewHub()
	c := &client{out: make(chan []byte, 1)}
	hub.attach(c)

	msg := Message{Type: "tick", Payload: []byte(`{}`)}
	hub.Broadcast(context.Background(), msg) // fills the queue
	hub.Broadcast(context.Background(), msg) // queue full, client dropped

	if n := hub.ConnectionCount(); n != 0 {
		t.Fatalf("expected slow client dropped, got %d attached", n)
	}

	// The first frame is still readable, then the channel reports closed.
	if _, ok := <-c.out; !ok {
		t.Fatal("expected the queued frame before close")
	}
	if _, ok := <-c.out; ok {
		t.Fatal("expected closed queue after drop")
	}
}

func TestHubBroadcastEventMarshalError(t *testing.T) {
	hub := NewHub()

	// A channel cannot be marshaled to JSON. Must log and return, not panic.
	hub.BroadcastEvent(context.Background(), "bad", make(chan int))
}

func TestHubDetachTwice(t *testing.T) {
	hub := NewHub()
	c := &client{out: make(chan []byte, 1)}
	hub.attach(c)

	hub.detach(c)
	hub.detach(c) // second detach must be a no-op, not a double close

	if n := hub.ConnectionCount(); n != 0 {
		t.Fatalf("expected 0 attached, got %d", n)
	}
}
