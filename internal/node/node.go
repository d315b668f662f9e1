// Package node hosts the transport core: a libp2p gossip session owned by
// a single event-loop goroutine, bridged to synchronous callers through
// unbounded queues. Callers never touch the session directly; they enqueue
// work and the loop applies it.
package node

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	logging "github.com/ipfs/go-log/v2"

	"github.com/petervdpas/rmwp2p/internal/queue"
	"github.com/petervdpas/rmwp2p/internal/state"
	"github.com/petervdpas/rmwp2p/internal/transport"
	"github.com/petervdpas/rmwp2p/internal/util"
	"github.com/petervdpas/rmwp2p/internal/wire"
)

var log = logging.Logger("rmwp2p/node")

// MessageCallback receives one inbound message. The slice is owned by the
// callback; the node never touches it again. Callbacks run on the event
// loop, so they must not block for long.
type MessageCallback func(data []byte)

// Config configures a Node. The zero value is usable: ephemeral identity,
// ephemeral TCP port, default mDNS tag and drain timeout.
type Config struct {
	// ListenAddrs are multiaddr strings to listen on.
	ListenAddrs []string

	// MdnsTag is the LAN discovery service tag.
	MdnsTag string

	// IdentityKeyFile persists the host identity when set.
	IdentityKeyFile string

	// DrainTimeout bounds the outgoing-queue flush at shutdown.
	DrainTimeout time.Duration

	// Clock defaults to the wall clock; tests inject a mock.
	Clock clock.Clock
}

type outgoingItem struct {
	topic string
	data  []byte
}

type registration struct {
	topic string
	cb    MessageCallback
}

// Node owns the gossip session. Exactly one run goroutine mutates the
// session, the topic registry and the peer table; every public method is
// safe to call from any goroutine.
type Node struct {
	cfg Config
	clk clock.Clock
	ts  transport.PubSub

	ctx    context.Context
	cancel context.CancelFunc

	outgoing      *queue.Queue[outgoingItem]
	registrations *queue.Queue[registration]
	inbound       chan transport.Message

	peers *state.PeerTable

	quit         chan struct{}
	done         chan struct{}
	shuttingDown atomic.Bool
	shutdownOnce sync.Once
	closeOnce    sync.Once
	closeErr     error

	// Owned by the run goroutine.
	registry   map[string]MessageCallback
	subCancels map[string]func()

	startTime time.Time

	diagMu   sync.Mutex
	diagLogs []string
	diagMax  int
}

// New builds the gossip session and starts the event loop. It returns as
// soon as the session is listening; peer discovery proceeds in the
// background.
func New(cfg Config) (*Node, error) {
	n := newWithTransport(cfg, nil)
	ts, err := transport.NewGossip(n.ctx, transport.Options{
		ListenAddrs:     cfg.ListenAddrs,
		MdnsTag:         cfg.MdnsTag,
		IdentityKeyFile: cfg.IdentityKeyFile,
	})
	if err != nil {
		n.cancel()
		return nil, fmt.Errorf("start transport: %w", err)
	}
	n.ts = ts
	n.start()
	return n, nil
}

// newWithTransport wires a node around an existing session without
// starting the loop. Tests pair it with transport.NewMemory.
func newWithTransport(cfg Config, ts transport.PubSub) *Node {
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = util.DefaultDrainTimeout
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Node{
		cfg:           cfg,
		clk:           clk,
		ts:            ts,
		ctx:           ctx,
		cancel:        cancel,
		outgoing:      queue.New[outgoingItem](),
		registrations: queue.New[registration](),
		inbound:       make(chan transport.Message, 256),
		peers:         state.NewPeerTable(),
		quit:          make(chan struct{}),
		done:          make(chan struct{}),
		registry:      make(map[string]MessageCallback),
		subCancels:    make(map[string]func()),
		startTime:     time.Now(),
		diagLogs:      make([]string, 0, 200),
		diagMax:       200,
	}
}

func (n *Node) start() {
	go n.run()
}

// Publish prefixes the frame with the capture timestamp and enqueues it
// for the event loop. It never blocks and never fails; transport errors
// are counted and logged by the loop.
func (n *Node) Publish(topic string, frame []byte) {
	msg := wire.PrependTimestamp(n.clk.Now(), frame)
	n.outgoing.Push(outgoingItem{topic: topic, data: msg})
}

// Register binds cb to topic. The binding is applied asynchronously by
// the event loop; messages arriving before that are dropped and counted.
// A later registration for the same topic replaces the callback.
func (n *Node) Register(topic string, cb MessageCallback) {
	n.registrations.Push(registration{topic: topic, cb: cb})
}

// TriggerShutdown asks the event loop to drain and exit. Safe to call
// from any goroutine, any number of times.
func (n *Node) TriggerShutdown() {
	n.shutdownOnce.Do(func() {
		n.shuttingDown.Store(true)
		close(n.quit)
	})
}

// Close triggers shutdown, waits for the event loop to finish its bounded
// drain, then tears down the session. Bounded by the drain timeout plus
// transport teardown.
func (n *Node) Close() error {
	n.closeOnce.Do(func() {
		n.TriggerShutdown()
		<-n.done
		n.cancel()
		if n.ts != nil {
			n.closeErr = n.ts.Close()
		}
	})
	return n.closeErr
}

// ID returns the local peer identity.
func (n *Node) ID() string {
	if n.ts == nil {
		return ""
	}
	return n.ts.ID()
}

// ListenAddrs returns the session's current listen multiaddrs.
func (n *Node) ListenAddrs() []string {
	if n.ts == nil {
		return nil
	}
	return n.ts.ListenAddrs()
}

// Peers returns a snapshot of the known peer table.
func (n *Node) Peers() map[string]state.KnownPeer {
	return n.peers.Snapshot()
}

// diag records a diagnostic line in the ring buffer.
func (n *Node) diag(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	log.Debug(msg)

	entry := fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), msg)

	n.diagMu.Lock()
	n.diagLogs = append(n.diagLogs, entry)
	if len(n.diagLogs) > n.diagMax {
		n.diagLogs = n.diagLogs[len(n.diagLogs)-n.diagMax:]
	}
	n.diagMu.Unlock()
}

// DiagSnapshot returns a diagnostic report for this node.
func (n *Node) DiagSnapshot() map[string]any {
	n.diagMu.Lock()
	logs := make([]string, len(n.diagLogs))
	copy(logs, n.diagLogs)
	n.diagMu.Unlock()

	return map[string]any{
		"peer_id":        n.ID(),
		"listen_addrs":   n.ListenAddrs(),
		"known_peers":    n.peers.Len(),
		"outgoing_queue": n.outgoing.Len(),
		"pending_regs":   n.registrations.Len(),
		"uptime":         time.Since(n.startTime).Truncate(time.Second).String(),
		"started":        n.startTime.Format("2006-01-02 15:04:05"),
		"logs":           logs,
	}
}
