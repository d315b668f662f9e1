package state

import (
	"sync"
	"time"
)

// KnownPeer is a transport peer seen via discovery or an inbound connection.
type KnownPeer struct {
	Addrs     []string
	Connected bool
	FirstSeen time.Time
	LastSeen  time.Time
}

// PeerTable tracks the peers the node currently knows about. Safe for
// concurrent use, though in practice the event loop is the only writer.
type PeerTable struct {
	mu    sync.Mutex
	peers map[string]KnownPeer
}

func NewPeerTable() *PeerTable {
	return &PeerTable{peers: map[string]KnownPeer{}}
}

// Upsert records a discovery sighting of a peer. Addresses replace the
// previous set when non-empty; connectivity state is preserved.
func (t *PeerTable) Upsert(id string, addrs []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	p, ok := t.peers[id]
	if !ok {
		p = KnownPeer{FirstSeen: now}
	}
	if len(addrs) > 0 {
		p.Addrs = addrs
	}
	p.LastSeen = now
	t.peers[id] = p
}

// SetConnected flips the peer's connectivity flag, creating the entry if
// the connection arrived before discovery did.
func (t *PeerTable) SetConnected(id string, connected bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	p, ok := t.peers[id]
	if !ok {
		p = KnownPeer{FirstSeen: now}
	}
	p.Connected = connected
	p.LastSeen = now
	t.peers[id] = p
}

func (t *PeerTable) Remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.peers, id)
}

func (t *PeerTable) Get(id string) (KnownPeer, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.peers[id]
	return p, ok
}

func (t *PeerTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.peers)
}

func (t *PeerTable) IDs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]string, 0, len(t.peers))
	for id := range t.peers {
		ids = append(ids, id)
	}
	return ids
}

func (t *PeerTable) Snapshot() map[string]KnownPeer {
	t.mu.Lock()
	defer t.mu.Unlock()
	cp := make(map[string]KnownPeer, len(t.peers))
	for k, v := range t.peers {
		cp[k] = v
	}
	return cp
}
