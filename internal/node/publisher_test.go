package node

import (
	"testing"

	"github.com/petervdpas/rmwp2p/internal/transport"
	"github.com/petervdpas/rmwp2p/internal/wire"
)

func detachedNode() *Node {
	return newWithTransport(Config{}, transport.NewMemory())
}

func TestSequenceNumberCountsPublishes(t *testing.T) {
	n := detachedNode()
	p := NewPublisher(n, "t")

	if p.SequenceNumber() != 0 {
		t.Fatalf("initial sequence: got %d", p.SequenceNumber())
	}
	for i := 0; i < 100; i++ {
		p.Publish([]byte("x"))
	}
	if p.SequenceNumber() != 100 {
		t.Fatalf("after 100 publishes: got %d", p.SequenceNumber())
	}
}

func TestFramesCarrySequentialNumbers(t *testing.T) {
	n := detachedNode()
	p := NewPublisher(n, "t")

	for i := 0; i < 5; i++ {
		p.Publish([]byte("x"))
	}
	for want := uint64(0); want < 5; want++ {
		it, ok := n.outgoing.TryPop()
		if !ok {
			t.Fatal("queue exhausted early")
		}
		env, err := wire.DecodeEnvelope(it.data)
		if err != nil {
			t.Fatal(err)
		}
		if env.Sequence != want {
			t.Fatalf("frame %d: sequence %d", want, env.Sequence)
		}
	}
}

func TestGIDStableAcrossPublishes(t *testing.T) {
	n := detachedNode()
	p := NewPublisher(n, "t")

	gid := p.GID()
	p.Publish([]byte("a"))
	p.Publish([]byte("b"))
	if p.GID() != gid {
		t.Fatal("gid changed across publishes")
	}

	for i := 0; i < 2; i++ {
		it, _ := n.outgoing.TryPop()
		env, err := wire.DecodeEnvelope(it.data)
		if err != nil {
			t.Fatal(err)
		}
		if env.GID != gid {
			t.Fatalf("frame %d carries gid % x", i, env.GID)
		}
	}
}

func TestGIDsUniquePerPublisher(t *testing.T) {
	n := detachedNode()
	seen := map[[wire.GIDSize]byte]bool{}
	for i := 0; i < 200; i++ {
		p := NewPublisher(n, "t")
		gid := p.GID()
		if seen[gid] {
			t.Fatal("duplicate gid")
		}
		seen[gid] = true
		// Random UUIDs carry the v4 version marker.
		if gid[6]>>4 != 4 {
			t.Fatalf("gid version nibble: got %d", gid[6]>>4)
		}
	}
}

func TestSubscriptionGIDs(t *testing.T) {
	n := detachedNode()
	s1 := NewSubscription(n, "t", func([]byte) {})
	s2 := NewSubscription(n, "t", func([]byte) {})
	if s1.GID() == s2.GID() {
		t.Fatal("subscription gids collide")
	}
	if s1.Topic() != "t" {
		t.Fatalf("topic: got %q", s1.Topic())
	}
	// Two registrations queued, none applied without a running loop.
	if n.registrations.Len() != 2 {
		t.Fatalf("pending registrations: got %d", n.registrations.Len())
	}
}
