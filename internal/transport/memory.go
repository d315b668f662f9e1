package transport

import (
	"context"
	"errors"
	"sync"
)

// Memory is an in-process PubSub for tests: publishes are delivered to
// local subscribers of the same instance, no network involved.
type Memory struct {
	mu     sync.Mutex
	subs   map[string][]chan Message
	peers  map[string][]string
	closed bool

	events chan Event
}

var _ PubSub = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		subs:   make(map[string][]chan Message),
		peers:  make(map[string][]string),
		events: make(chan Event, 16),
	}
}

func (m *Memory) Publish(_ context.Context, topic string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New("memory pubsub closed")
	}
	for _, ch := range m.subs[topic] {
		msg := Message{
			Topic:   topic,
			From:    m.id(),
			Payload: append([]byte(nil), payload...),
		}
		select {
		case ch <- msg:
		default:
		}
	}
	return nil
}

func (m *Memory) Subscribe(topic string) (<-chan Message, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, nil, errors.New("memory pubsub closed")
	}
	ch := make(chan Message, 64)
	m.subs[topic] = append(m.subs[topic], ch)
	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		chans := m.subs[topic]
		for i, c := range chans {
			if c == ch {
				m.subs[topic] = append(chans[:i], chans[i+1:]...)
				close(c)
				return
			}
		}
	}
	return ch, cancel, nil
}

func (m *Memory) Events() <-chan Event {
	return m.events
}

// Emit injects a session event, letting tests drive the discovery path.
func (m *Memory) Emit(ev Event) {
	m.events <- ev
}

func (m *Memory) AddPeer(id string, addrs []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.peers[id] = addrs
}

func (m *Memory) RemovePeer(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.peers, id)
}

func (m *Memory) HasPeer(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.peers[id]
	return ok
}

func (m *Memory) id() string { return "memory-local" }

func (m *Memory) ID() string { return m.id() }

func (m *Memory) ListenAddrs() []string { return nil }

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	for _, chans := range m.subs {
		for _, ch := range chans {
			close(ch)
		}
	}
	m.subs = make(map[string][]chan Message)
	return nil
}
