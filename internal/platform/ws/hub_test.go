package ws

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

func newTestHub() *Hub {
	h := NewHub(zerolog.Nop())
	h.RegisterTopic(TopicQueue, func(_ context.Context) (interface{}, error) {
		return map[string]int{"count": 2}, nil
	})
	return h
}

func newClient(topic string, buf int) *Client {
	return &Client{ID: "test", Topic: topic, Send: make(chan []byte, buf)}
}

func decodeEvent(t *testing.T, raw []byte) Event {
	t.Helper()
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	return ev
}

func TestRegisterSendsSnapshot(t *testing.T) {
	h := newTestHub()
	c := newClient(TopicQueue, 4)
	h.Register(c)

	select {
	case raw := <-c.Send:
		ev := decodeEvent(t, raw)
		if ev.Type != "snapshot" || ev.Topic != TopicQueue {
			t.Errorf("event = %+v", ev)
		}
		var data map[string]int
		json.Unmarshal(ev.Data, &data)
		if data["count"] != 2 {
			t.Errorf("data = %v", data)
		}
	default:
		t.Fatal("no snapshot delivered on register")
	}

	if h.TopicCount(TopicQueue) != 1 || h.ClientCount() != 1 {
		t.Errorf("counts = %d/%d, want 1/1", h.TopicCount(TopicQueue), h.ClientCount())
	}
}

func TestRefreshBroadcastsToAllListeners(t *testing.T) {
	h := newTestHub()
	a := newClient(TopicQueue, 4)
	b := newClient(TopicQueue, 4)
	h.Register(a)
	h.Register(b)
	<-a.Send // drain registration snapshots
	<-b.Send

	h.Refresh(TopicQueue)

	for _, c := range []*Client{a, b} {
		select {
		case raw := <-c.Send:
			if ev := decodeEvent(t, raw); ev.Topic != TopicQueue {
				t.Errorf("topic = %s", ev.Topic)
			}
		default:
			t.Error("listener missed broadcast")
		}
	}
}

func TestRefreshSkipsSlowListener(t *testing.T) {
	h := newTestHub()
	slow := newClient(TopicQueue, 1)
	fast := newClient(TopicQueue, 4)
	h.Register(slow) // fills slow's single-slot buffer
	h.Register(fast)
	<-fast.Send

	// Must not block even though slow's buffer is full.
	h.Refresh(TopicQueue)

	select {
	case <-fast.Send:
	default:
		t.Error("fast listener starved by slow one")
	}
	if len(slow.Send) != 1 {
		t.Errorf("slow buffer = %d messages, want the original 1", len(slow.Send))
	}
}

func TestUnregisterClosesChannel(t *testing.T) {
	h := newTestHub()
	c := newClient(TopicQueue, 4)
	h.Register(c)
	h.Unregister(c)

	if h.ClientCount() != 0 {
		t.Errorf("client count = %d after unregister", h.ClientCount())
	}

	// Drain the registration snapshot, then the channel must be closed.
	<-c.Send
	if _, ok := <-c.Send; ok {
		t.Error("send channel still open after unregister")
	}

	// Double unregister is a no-op, not a double close.
	h.Unregister(c)
}

func TestRefreshUnknownTopicIsDropped(t *testing.T) {
	h := newTestHub()
	c := newClient(TopicQueue, 4)
	h.Register(c)
	<-c.Send

	h.Refresh("nonsense")

	select {
	case <-c.Send:
		t.Error("unknown topic produced a broadcast")
	default:
	}
}

func TestSnapshotErrorSuppressed(t *testing.T) {
	h := NewHub(zerolog.Nop())
	h.RegisterTopic(TopicAlerts, func(_ context.Context) (interface{}, error) {
		return nil, errors.New("store down")
	})

	c := newClient(TopicAlerts, 4)
	h.Register(c)

	select {
	case <-c.Send:
		t.Error("failed snapshot still delivered")
	default:
	}
	// Listener stays registered; the next successful Refresh reaches it.
	if h.TopicCount(TopicAlerts) != 1 {
		t.Errorf("listener dropped on snapshot failure")
	}
}
