package node

import (
	"github.com/google/uuid"

	"github.com/petervdpas/rmwp2p/internal/wire"
)

// Subscription binds a callback to a topic. Registration is asynchronous:
// the event loop applies it on its next wake, and messages arriving
// before that are dropped and counted. There is no unregister — the
// binding lives until the node shuts down or a later registration for
// the same topic replaces it.
type Subscription struct {
	node  *Node
	topic string
	gid   [wire.GIDSize]byte
}

// NewSubscription registers cb for topic and returns the handle.
func NewSubscription(n *Node, topic string, cb MessageCallback) *Subscription {
	n.Register(topic, cb)
	id := uuid.New()
	var gid [wire.GIDSize]byte
	copy(gid[:], id[:])
	return &Subscription{node: n, topic: topic, gid: gid}
}

// GID returns the subscription's 16-byte global identifier.
func (s *Subscription) GID() [wire.GIDSize]byte { return s.gid }

// Topic returns the subscribed topic.
func (s *Subscription) Topic() string { return s.topic }
