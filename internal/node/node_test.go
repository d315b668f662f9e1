package node

import (
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/petervdpas/rmwp2p/internal/transport"
	"github.com/petervdpas/rmwp2p/internal/wire"
)

// startTestNode runs a node over an in-memory session with a short drain
// timeout. Close is registered as cleanup.
func startTestNode(t *testing.T) (*Node, *transport.Memory) {
	t.Helper()
	mem := transport.NewMemory()
	n := newWithTransport(Config{DrainTimeout: 500 * time.Millisecond}, mem)
	n.start()
	t.Cleanup(func() { _ = n.Close() })
	return n, mem
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestPublishEnqueuesEnvelope(t *testing.T) {
	mock := clock.NewMock()
	mock.Set(time.Unix(1700000000, 123456000))

	// Loop not started: the outgoing queue can be inspected directly.
	n := newWithTransport(Config{Clock: mock}, transport.NewMemory())

	p := NewPublisher(n, "telemetry")
	payload := []byte{0xAA, 0xBB, 0xCC}
	p.Publish(payload)

	if p.SequenceNumber() != 1 {
		t.Fatalf("sequence after one publish: got %d, want 1", p.SequenceNumber())
	}
	if n.outgoing.Len() != 1 {
		t.Fatalf("queue length: got %d, want 1", n.outgoing.Len())
	}

	it, ok := n.outgoing.TryPop()
	if !ok {
		t.Fatal("queue empty")
	}
	if it.topic != "telemetry" {
		t.Fatalf("topic: got %q", it.topic)
	}
	if len(it.data) != wire.EnvelopeHeaderSize+len(payload) {
		t.Fatalf("length: got %d, want %d", len(it.data), wire.EnvelopeHeaderSize+len(payload))
	}
	tail := it.data[len(it.data)-3:]
	if tail[0] != 0xAA || tail[1] != 0xBB || tail[2] != 0xCC {
		t.Fatalf("payload tail: got % x", tail)
	}

	env, err := wire.DecodeEnvelope(it.data)
	if err != nil {
		t.Fatal(err)
	}
	if env.Seconds != 1700000000 || env.Microseconds != 123456 {
		t.Fatalf("timestamp: got %d.%06d", env.Seconds, env.Microseconds)
	}
	if env.GID != p.GID() {
		t.Fatalf("gid: got % x", env.GID)
	}
	if env.Sequence != 0 {
		t.Fatalf("first frame sequence: got %d, want 0", env.Sequence)
	}
}

func TestPublishDeliveryRoundTrip(t *testing.T) {
	n, _ := startTestNode(t)

	received := make(chan []byte, 16)
	NewSubscription(n, "telemetry", func(data []byte) {
		received <- data
	})

	p := NewPublisher(n, "telemetry")

	// Registration is asynchronous; publish until the loop has applied
	// it and a message comes back.
	var got []byte
	deadline := time.After(3 * time.Second)
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
loop:
	for {
		select {
		case got = <-received:
			break loop
		case <-tick.C:
			p.Publish([]byte("ping"))
		case <-deadline:
			t.Fatal("no delivery")
		}
	}

	env, err := wire.DecodeEnvelope(got)
	if err != nil {
		t.Fatal(err)
	}
	if string(env.Payload) != "ping" {
		t.Fatalf("payload: got %q", env.Payload)
	}
	if env.GID != p.GID() {
		t.Fatalf("gid: got % x", env.GID)
	}
}

func TestRegistrationLastWins(t *testing.T) {
	n, _ := startTestNode(t)

	first := make(chan []byte, 64)
	second := make(chan []byte, 64)
	NewSubscription(n, "cmds", func(data []byte) { first <- data })

	p := NewPublisher(n, "cmds")
	waitFor(t, "first callback active", func() bool {
		p.Publish([]byte("warmup"))
		select {
		case <-first:
			return true
		default:
			return false
		}
	})

	// Replace the binding. The replacement goes through the same queue,
	// so once the second callback fires the first is out of the registry.
	NewSubscription(n, "cmds", func(data []byte) { second <- data })
	waitFor(t, "second callback active", func() bool {
		p.Publish([]byte("probe"))
		select {
		case <-second:
			return true
		case <-first:
			return false
		default:
			return false
		}
	})

	for len(first) > 0 {
		<-first
	}
	p.Publish([]byte("final"))
	waitFor(t, "delivery to replacement", func() bool { return len(second) > 0 })
	if len(first) != 0 {
		t.Fatal("replaced callback still receiving")
	}
}

func TestUnregisteredTopicDropsSilently(t *testing.T) {
	n, _ := startTestNode(t)

	// No registration for this topic: the loop must survive and keep
	// serving other work.
	p := NewPublisher(n, "orphan")
	p.Publish([]byte("nobody listens"))

	received := make(chan struct{}, 1)
	NewSubscription(n, "alive", func([]byte) { received <- struct{}{} })
	q := NewPublisher(n, "alive")
	waitFor(t, "loop still serving", func() bool {
		q.Publish([]byte("x"))
		select {
		case <-received:
			return true
		default:
			return false
		}
	})
}

func TestShutdownDrainsQueuedMessages(t *testing.T) {
	mock := clock.NewMock()
	mock.Set(time.Unix(1, 0))
	mem := transport.NewMemory()
	n := newWithTransport(Config{Clock: mock}, mem)
	n.start()

	p := NewPublisher(n, "burst")
	for i := 0; i < 5000; i++ {
		p.Publish([]byte{byte(i)})
	}

	start := time.Now()
	n.TriggerShutdown()
	if err := n.Close(); err != nil {
		t.Fatal(err)
	}
	elapsed := time.Since(start)

	// The mock clock never advances, so the drain deadline never fires
	// and every queued message must be flushed.
	if rem := n.outgoing.Len(); rem != 0 {
		t.Fatalf("undelivered messages after drain: %d", rem)
	}
	if elapsed > 5*time.Second {
		t.Fatalf("close took %v", elapsed)
	}
}

func TestTriggerShutdownIdempotent(t *testing.T) {
	n, _ := startTestNode(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n.TriggerShutdown()
		}()
	}
	wg.Wait()

	if err := n.Close(); err != nil {
		t.Fatal(err)
	}
	if err := n.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestPublishAfterShutdownIsIgnored(t *testing.T) {
	n, _ := startTestNode(t)
	n.TriggerShutdown()
	if err := n.Close(); err != nil {
		t.Fatal(err)
	}

	// Enqueueing after shutdown must not panic or block; the loop is
	// gone, so the item just sits in the queue.
	p := NewPublisher(n, "late")
	p.Publish([]byte("too late"))
	if p.SequenceNumber() != 1 {
		t.Fatalf("sequence: got %d", p.SequenceNumber())
	}
}

func TestPeerDiscoveryEvents(t *testing.T) {
	n, mem := startTestNode(t)

	mem.Emit(transport.Event{
		Kind:  transport.PeerFound,
		Peer:  "peer-1",
		Addrs: []string{"/ip4/192.168.1.9/tcp/4001"},
	})

	waitFor(t, "peer recorded", func() bool {
		_, ok := n.Peers()["peer-1"]
		return ok
	})
	if !mem.HasPeer("peer-1") {
		t.Fatal("loop did not add the peer to the session")
	}

	// Simulate the last connection dropping, then the loss event.
	mem.RemovePeer("peer-1")
	mem.Emit(transport.Event{Kind: transport.PeerLost, Peer: "peer-1"})

	waitFor(t, "peer forgotten", func() bool {
		_, ok := n.Peers()["peer-1"]
		return !ok
	})
}

func TestPeerLostKeptWhileStillConnected(t *testing.T) {
	n, mem := startTestNode(t)

	mem.Emit(transport.Event{Kind: transport.PeerFound, Peer: "peer-2"})
	waitFor(t, "peer recorded", func() bool {
		_, ok := n.Peers()["peer-2"]
		return ok
	})

	// Another connection remains (the session still knows the peer), so
	// a single connection loss must not evict it.
	mem.Emit(transport.Event{Kind: transport.PeerLost, Peer: "peer-2"})
	time.Sleep(50 * time.Millisecond)
	if _, ok := n.Peers()["peer-2"]; !ok {
		t.Fatal("peer evicted while still connected")
	}
}

func TestDiagSnapshot(t *testing.T) {
	n, _ := startTestNode(t)

	snap := n.DiagSnapshot()
	for _, key := range []string{"peer_id", "known_peers", "outgoing_queue", "uptime", "logs"} {
		if _, ok := snap[key]; !ok {
			t.Fatalf("snapshot missing %q", key)
		}
	}
}
