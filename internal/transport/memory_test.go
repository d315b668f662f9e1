package transport

import (
	"context"
	"testing"
	"time"
)

func TestMemoryPublishSubscribe(t *testing.T) {
	m := NewMemory()
	defer m.Close()

	ch, cancel, err := m.Subscribe("chatter")
	if err != nil {
		t.Fatal(err)
	}
	defer cancel()

	if err := m.Publish(context.Background(), "chatter", []byte("hi")); err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-ch:
		if msg.Topic != "chatter" || string(msg.Payload) != "hi" {
			t.Fatalf("got %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("no delivery")
	}
}

func TestMemoryTopicIsolation(t *testing.T) {
	m := NewMemory()
	defer m.Close()

	ch, cancel, err := m.Subscribe("a")
	if err != nil {
		t.Fatal(err)
	}
	defer cancel()

	if err := m.Publish(context.Background(), "b", []byte("x")); err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-ch:
		t.Fatalf("cross-topic delivery: %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryCancelStopsDelivery(t *testing.T) {
	m := NewMemory()
	defer m.Close()

	ch, cancel, err := m.Subscribe("a")
	if err != nil {
		t.Fatal(err)
	}
	cancel()

	if _, ok := <-ch; ok {
		t.Fatal("channel not closed after cancel")
	}
	if err := m.Publish(context.Background(), "a", []byte("x")); err != nil {
		t.Fatal(err)
	}
}

func TestMemoryPeerSet(t *testing.T) {
	m := NewMemory()
	defer m.Close()

	if m.HasPeer("p1") {
		t.Fatal("unexpected peer")
	}
	m.AddPeer("p1", []string{"/ip4/127.0.0.1/tcp/1"})
	if !m.HasPeer("p1") {
		t.Fatal("peer not recorded")
	}
	m.RemovePeer("p1")
	if m.HasPeer("p1") {
		t.Fatal("peer not removed")
	}
}
