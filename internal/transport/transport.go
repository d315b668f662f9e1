// Package transport abstracts the gossip session the node runs on. The
// real implementation is libp2p gossipsub; an in-memory implementation
// backs tests.
package transport

import "context"

// Message is a raw message delivered on a subscribed topic. Payload is
// owned by the receiver.
type Message struct {
	Topic   string
	From    string
	Payload []byte
}

// EventKind classifies session events surfaced to the node's event loop.
type EventKind int

const (
	// PeerFound: a peer appeared via local discovery.
	PeerFound EventKind = iota
	// PeerConnected: a connection to a peer was established.
	PeerConnected
	// PeerLost: a connection to a peer closed.
	PeerLost
	// AddrsUpdated: the local listen address set changed.
	AddrsUpdated
)

// Event is a discovery or connectivity change. Peer is the string form of
// the peer ID; Addrs carries discovered or local multiaddrs depending on
// the kind.
type Event struct {
	Kind  EventKind
	Peer  string
	Addrs []string
}

// PubSub is the gossip session. Publish and Subscribe are safe for
// concurrent use; session mutation (AddPeer, RemovePeer, Close) is meant
// to be driven by a single owner.
type PubSub interface {
	// Publish sends payload on topic, joining it if needed.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe joins topic and returns a channel of incoming messages
	// plus a cancel function releasing the subscription.
	Subscribe(topic string) (<-chan Message, func(), error)

	// Events returns the session event stream. The channel is never
	// closed; events may be dropped under backpressure.
	Events() <-chan Event

	// AddPeer records the peer's addresses and dials it in the background.
	AddPeer(id string, addrs []string)

	// RemovePeer forgets the peer's addresses.
	RemovePeer(id string)

	// HasPeer reports whether a live connection to the peer exists.
	HasPeer(id string) bool

	// ID returns the local peer identity.
	ID() string

	// ListenAddrs returns the current listen multiaddrs.
	ListenAddrs() []string

	Close() error
}
