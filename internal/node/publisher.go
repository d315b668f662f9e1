package node

import (
	"github.com/google/uuid"

	"github.com/petervdpas/rmwp2p/internal/wire"
)

// Publisher frames payloads for one topic under a stable random GID with
// a monotonically increasing sequence number.
type Publisher struct {
	node  *Node
	topic string
	gid   [wire.GIDSize]byte
	seq   uint64
}

// NewPublisher creates a publisher with a fresh v4 UUID as its GID.
func NewPublisher(n *Node, topic string) *Publisher {
	id := uuid.New()
	var gid [wire.GIDSize]byte
	copy(gid[:], id[:])
	return &Publisher{node: n, topic: topic, gid: gid}
}

// Publish frames payload and enqueues it; the frame carries the current
// sequence number, which is then incremented. It never blocks and never
// fails — transport errors surface as counters and log lines. Concurrent
// calls on the same Publisher need external synchronization.
func (p *Publisher) Publish(payload []byte) {
	frame := wire.EncodeFrame(p.gid, p.seq, payload)
	p.node.Publish(p.topic, frame)
	p.seq++
}

// GID returns the publisher's 16-byte global identifier.
func (p *Publisher) GID() [wire.GIDSize]byte { return p.gid }

// SequenceNumber returns the number of publishes so far: the next frame
// will carry this value.
func (p *Publisher) SequenceNumber() uint64 { return p.seq }

// Topic returns the topic this publisher sends on.
func (p *Publisher) Topic() string { return p.topic }
