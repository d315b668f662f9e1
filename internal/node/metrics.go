package node

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesPublished = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rmwp2p",
		Subsystem: "node",
		Name:      "messages_published_total",
		Help:      "Messages handed to the gossip layer.",
	})
	publishErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rmwp2p",
		Subsystem: "node",
		Name:      "publish_errors_total",
		Help:      "Publishes rejected by the gossip layer.",
	})
	messagesDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rmwp2p",
		Subsystem: "node",
		Name:      "messages_delivered_total",
		Help:      "Inbound messages handed to a registered callback.",
	})
	messagesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rmwp2p",
		Subsystem: "node",
		Name:      "messages_dropped_total",
		Help:      "Inbound messages discarded because no callback was registered for the topic.",
	})
	messagesLost = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rmwp2p",
		Subsystem: "node",
		Name:      "messages_lost_total",
		Help:      "Outgoing messages discarded when the shutdown drain timed out.",
	})
)
