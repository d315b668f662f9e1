package node

import (
	"context"

	"github.com/petervdpas/rmwp2p/internal/transport"
)

// run is the event loop. It is the sole mutator of the gossip session,
// the topic registry and the peer table. Every wake re-checks the
// shutdown flag so queued work is never applied after shutdown begins;
// the quit branch then drains the outgoing queue within its time bound.
func (n *Node) run() {
	defer close(n.done)
	n.diag("event loop started")

	for {
		select {
		case <-n.quit:
			n.drainOutgoing()
			n.cancelSubscriptions()
			n.diag("event loop stopped")
			return

		case <-n.registrations.Ready():
			if n.shuttingDown.Load() {
				continue
			}
			// One item per wake; the queue re-arms while non-empty.
			if r, ok := n.registrations.TryPop(); ok {
				n.applyRegistration(r)
			}

		case <-n.outgoing.Ready():
			if n.shuttingDown.Load() {
				continue
			}
			if it, ok := n.outgoing.TryPop(); ok {
				n.publishItem(n.ctx, it)
			}

		case m := <-n.inbound:
			if n.shuttingDown.Load() {
				continue
			}
			n.dispatch(m)

		case ev := <-n.ts.Events():
			if n.shuttingDown.Load() {
				continue
			}
			n.handleEvent(ev)
		}
	}
}

func (n *Node) applyRegistration(r registration) {
	if _, ok := n.subCancels[r.topic]; !ok {
		ch, cancel, err := n.ts.Subscribe(r.topic)
		if err != nil {
			log.Errorw("subscribe failed", "topic", r.topic, "err", err)
			return
		}
		n.subCancels[r.topic] = cancel
		go n.pump(ch)
		n.diag("subscribed to %s", r.topic)
	}
	// Last registration wins: a topic maps to exactly one callback.
	if _, exists := n.registry[r.topic]; exists {
		log.Warnw("callback replaced", "topic", r.topic)
	}
	n.registry[r.topic] = r.cb
}

// pump forwards one subscription's messages into the loop's inbound
// channel. Backpressure from a busy loop propagates to the transport.
func (n *Node) pump(ch <-chan transport.Message) {
	for {
		select {
		case m, ok := <-ch:
			if !ok {
				return
			}
			select {
			case n.inbound <- m:
			case <-n.ctx.Done():
				return
			}
		case <-n.ctx.Done():
			return
		}
	}
}

func (n *Node) dispatch(m transport.Message) {
	cb, ok := n.registry[m.Topic]
	if !ok {
		messagesDropped.Inc()
		log.Debugw("message dropped, no callback", "topic", m.Topic)
		return
	}
	// The transport already handed us an owned copy of the payload.
	cb(m.Payload)
	messagesDelivered.Inc()
}

func (n *Node) publishItem(ctx context.Context, it outgoingItem) {
	if err := n.ts.Publish(ctx, it.topic, it.data); err != nil {
		publishErrors.Inc()
		log.Warnw("publish failed", "topic", it.topic, "err", err)
		return
	}
	messagesPublished.Inc()
}

func (n *Node) handleEvent(ev transport.Event) {
	switch ev.Kind {
	case transport.PeerFound:
		n.peers.Upsert(ev.Peer, ev.Addrs)
		n.ts.AddPeer(ev.Peer, ev.Addrs)
		n.diag("peer found: %s", ev.Peer)
	case transport.PeerConnected:
		n.peers.SetConnected(ev.Peer, true)
	case transport.PeerLost:
		// A peer can hold several connections; forget it only when the
		// last one is gone.
		if n.ts.HasPeer(ev.Peer) {
			n.peers.SetConnected(ev.Peer, true)
			return
		}
		n.peers.Remove(ev.Peer)
		n.ts.RemovePeer(ev.Peer)
		n.diag("peer lost: %s", ev.Peer)
	case transport.AddrsUpdated:
		log.Infow("listen addresses updated", "addrs", ev.Addrs)
	}
}

// drainOutgoing flushes queued messages at shutdown, bounded by the
// configured drain timeout. Whatever remains past the deadline is lost
// and counted.
func (n *Node) drainOutgoing() {
	deadline := n.clk.Now().Add(n.cfg.DrainTimeout)
	ctx, cancel := context.WithTimeout(n.ctx, n.cfg.DrainTimeout)
	defer cancel()

	for n.clk.Now().Before(deadline) {
		it, ok := n.outgoing.TryPop()
		if !ok {
			return
		}
		n.publishItem(ctx, it)
	}

	if lost := n.outgoing.Len(); lost > 0 {
		messagesLost.Add(float64(lost))
		log.Warnw("drain timed out, messages lost", "count", lost)
	}
}

func (n *Node) cancelSubscriptions() {
	for topic, cancel := range n.subCancels {
		cancel()
		delete(n.subCancels, topic)
	}
}
