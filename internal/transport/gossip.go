package transport

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"
	libp2p "github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	pb "github.com/libp2p/go-libp2p-pubsub/pb"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/event"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	ma "github.com/multiformats/go-multiaddr"
	"lukechampine.com/blake3"

	"github.com/petervdpas/rmwp2p/internal/util"
)

var log = logging.Logger("rmwp2p/transport")

func init() {
	// Silence noisy libp2p subsystems — dial failures and backoff errors
	// go to stderr by default and pollute terminal output.
	logging.SetLogLevel("swarm2", "error")
	logging.SetLogLevel("autonat", "warn")
	logging.SetLogLevel("pubsub", "warn")
}

// Options configures the gossip session.
type Options struct {
	// ListenAddrs are multiaddr strings; defaults to an ephemeral TCP
	// port on all interfaces.
	ListenAddrs []string

	// MdnsTag is the mDNS service tag peers discover each other under.
	MdnsTag string

	// IdentityKeyFile persists the host identity across restarts when
	// set; the identity is ephemeral otherwise.
	IdentityKeyFile string

	// ConnectTimeout bounds dials to discovered peers.
	ConnectTimeout time.Duration
}

// Gossip is the libp2p gossipsub session. Messages are signed and
// signatures are verified strictly; unsigned or bad-signature messages
// never reach subscribers.
type Gossip struct {
	ctx    context.Context
	cancel context.CancelFunc

	host host.Host
	ps   *pubsub.PubSub
	mdns mdns.Service

	connectTimeout time.Duration
	events         chan Event

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
}

var _ PubSub = (*Gossip)(nil)

// messageID derives message identity from a blake3 hash of the payload
// bytes. Identical payloads on different topics share an identity, so a
// duplicate suppressed on one topic suppresses the other within the
// gossip seen-cache window.
func messageID(m *pb.Message) string {
	sum := blake3.Sum256(m.Data)
	return string(sum[:])
}

// NewGossip builds the libp2p host, gossipsub router and mDNS discovery.
func NewGossip(parent context.Context, opts Options) (*Gossip, error) {
	ctx, cancel := context.WithCancel(parent)

	listenAddrs := make([]ma.Multiaddr, 0, len(opts.ListenAddrs))
	for _, s := range opts.ListenAddrs {
		if s == "" {
			continue
		}
		a, err := ma.NewMultiaddr(s)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("invalid listen multiaddr %q: %w", s, err)
		}
		listenAddrs = append(listenAddrs, a)
	}
	if len(listenAddrs) == 0 {
		a, _ := ma.NewMultiaddr("/ip4/0.0.0.0/tcp/0")
		listenAddrs = append(listenAddrs, a)
	}

	libp2pOpts := []libp2p.Option{libp2p.ListenAddrs(listenAddrs...)}
	if opts.IdentityKeyFile != "" {
		key, isNew, err := loadOrCreateKey(opts.IdentityKeyFile)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("load identity key: %w", err)
		}
		if isNew {
			log.Infof("generated new identity key: %s", opts.IdentityKeyFile)
		}
		libp2pOpts = append(libp2pOpts, libp2p.Identity(key))
	}

	h, err := libp2p.New(libp2pOpts...)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create host: %w", err)
	}

	ps, err := pubsub.NewGossipSub(ctx, h,
		pubsub.WithMessageSigning(true),
		pubsub.WithStrictSignatureVerification(true),
		pubsub.WithMessageIdFn(messageID),
	)
	if err != nil {
		_ = h.Close()
		cancel()
		return nil, fmt.Errorf("create gossipsub: %w", err)
	}

	connectTimeout := opts.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = util.DefaultConnectTimeout
	}

	g := &Gossip{
		ctx:            ctx,
		cancel:         cancel,
		host:           h,
		ps:             ps,
		connectTimeout: connectTimeout,
		events:         make(chan Event, 64),
		topics:         make(map[string]*pubsub.Topic),
	}

	h.Network().Notify(&network.NotifyBundle{
		ConnectedF: func(_ network.Network, c network.Conn) {
			g.emit(Event{Kind: PeerConnected, Peer: c.RemotePeer().String()})
		},
		DisconnectedF: func(_ network.Network, c network.Conn) {
			g.emit(Event{Kind: PeerLost, Peer: c.RemotePeer().String()})
		},
	})

	if sub, err := h.EventBus().Subscribe(new(event.EvtLocalAddressesUpdated)); err == nil {
		go func() {
			defer sub.Close()
			for {
				select {
				case <-ctx.Done():
					return
				case _, ok := <-sub.Out():
					if !ok {
						return
					}
					g.emit(Event{Kind: AddrsUpdated, Addrs: g.ListenAddrs()})
				}
			}
		}()
	} else {
		log.Warnf("address change events unavailable: %v", err)
	}

	tag := opts.MdnsTag
	if tag == "" {
		tag = "rmwp2p"
	}
	md := mdns.NewMdnsService(h, tag, &mdnsNotifee{g: g})
	if err := md.Start(); err != nil {
		_ = h.Close()
		cancel()
		return nil, fmt.Errorf("start mdns: %w", err)
	}
	g.mdns = md

	log.Infow("gossip session up", "peer", h.ID().String(), "addrs", g.ListenAddrs())
	return g, nil
}

// mdnsNotifee reports discovered peers to the event stream; the session
// owner decides whether to dial them.
type mdnsNotifee struct {
	g *Gossip
}

func (n *mdnsNotifee) HandlePeerFound(pi peer.AddrInfo) {
	if pi.ID == n.g.host.ID() {
		return
	}
	addrs := make([]string, 0, len(pi.Addrs))
	for _, a := range pi.Addrs {
		addrs = append(addrs, a.String())
	}
	n.g.emit(Event{Kind: PeerFound, Peer: pi.ID.String(), Addrs: addrs})
}

func (g *Gossip) emit(ev Event) {
	select {
	case g.events <- ev:
	default:
		log.Debugw("event dropped", "kind", ev.Kind, "peer", ev.Peer)
	}
}

func (g *Gossip) Publish(ctx context.Context, topic string, payload []byte) error {
	t, err := g.getOrJoinTopic(topic)
	if err != nil {
		return err
	}
	return t.Publish(ctx, payload)
}

func (g *Gossip) Subscribe(topic string) (<-chan Message, func(), error) {
	t, err := g.getOrJoinTopic(topic)
	if err != nil {
		return nil, nil, err
	}
	sub, err := t.Subscribe()
	if err != nil {
		return nil, nil, err
	}

	out := make(chan Message, 64)
	subCtx, subCancel := context.WithCancel(g.ctx)
	go func() {
		defer close(out)
		for {
			msg, err := sub.Next(subCtx)
			if err != nil {
				return
			}
			m := Message{
				Topic:   topic,
				From:    msg.ReceivedFrom.String(),
				Payload: append([]byte(nil), msg.Data...),
			}
			select {
			case out <- m:
			case <-subCtx.Done():
				return
			}
		}
	}()

	cancel := func() {
		subCancel()
		sub.Cancel()
	}
	return out, cancel, nil
}

func (g *Gossip) Events() <-chan Event {
	return g.events
}

// AddPeer records the peer's addresses and dials in the background. The
// dial is best effort; gossipsub picks the peer up once connected.
func (g *Gossip) AddPeer(id string, addrs []string) {
	pid, err := peer.Decode(id)
	if err != nil {
		log.Debugw("add peer: bad id", "id", id, "err", err)
		return
	}
	mas := make([]ma.Multiaddr, 0, len(addrs))
	for _, s := range addrs {
		if a, err := ma.NewMultiaddr(s); err == nil {
			mas = append(mas, a)
		}
	}
	if len(mas) > 0 {
		g.host.Peerstore().AddAddrs(pid, mas, 10*time.Minute)
	}
	go func() {
		ctx, cancel := context.WithTimeout(g.ctx, g.connectTimeout)
		defer cancel()
		if err := g.host.Connect(ctx, peer.AddrInfo{ID: pid}); err != nil {
			log.Debugw("dial failed", "peer", id, "err", err)
		}
	}()
}

func (g *Gossip) RemovePeer(id string) {
	pid, err := peer.Decode(id)
	if err != nil {
		return
	}
	g.host.Peerstore().ClearAddrs(pid)
}

func (g *Gossip) HasPeer(id string) bool {
	pid, err := peer.Decode(id)
	if err != nil {
		return false
	}
	return g.host.Network().Connectedness(pid) == network.Connected
}

func (g *Gossip) ID() string {
	return g.host.ID().String()
}

func (g *Gossip) ListenAddrs() []string {
	addrs := g.host.Addrs()
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, fmt.Sprintf("%s/p2p/%s", a, g.host.ID()))
	}
	return out
}

func (g *Gossip) Close() error {
	g.cancel()
	if g.mdns != nil {
		_ = g.mdns.Close()
	}
	g.mu.Lock()
	for _, t := range g.topics {
		_ = t.Close()
	}
	g.mu.Unlock()
	return g.host.Close()
}

func (g *Gossip) getOrJoinTopic(name string) (*pubsub.Topic, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if t, ok := g.topics[name]; ok {
		return t, nil
	}
	t, err := g.ps.Join(name)
	if err != nil {
		return nil, err
	}
	g.topics[name] = t
	return t, nil
}

// loadOrCreateKey loads a persistent identity key from disk, or generates
// a new Ed25519 key and saves it on first run.
func loadOrCreateKey(keyFile string) (crypto.PrivKey, bool, error) {
	data, err := os.ReadFile(keyFile)
	if err == nil {
		priv, err := crypto.UnmarshalPrivateKey(data)
		if err == nil {
			return priv, false, nil
		}
		log.Warnf("corrupt identity key at %s: %v (generating new key)", keyFile, err)
	}

	priv, _, err := crypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return nil, false, err
	}

	raw, err := crypto.MarshalPrivateKey(priv)
	if err != nil {
		return nil, false, fmt.Errorf("marshal identity key: %w", err)
	}

	if dir := filepath.Dir(keyFile); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, false, fmt.Errorf("create key directory: %w", err)
		}
	}

	if err := os.WriteFile(keyFile, raw, 0o600); err != nil {
		return nil, false, fmt.Errorf("save identity key: %w", err)
	}

	return priv, true, nil
}
