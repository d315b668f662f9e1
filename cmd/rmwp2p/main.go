// Command rmwp2p runs a demo peer: it publishes a text payload on a topic
// once per second, or subscribes and prints decoded envelopes.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	logging "github.com/ipfs/go-log/v2"

	"github.com/petervdpas/rmwp2p/internal/config"
	"github.com/petervdpas/rmwp2p/internal/node"
	"github.com/petervdpas/rmwp2p/internal/wire"
)

var (
	cfgPath = flag.String("config", "rmwp2p.json", "config file path (created with defaults if missing)")
	topic   = flag.String("topic", "rmwp2p/demo", "topic to publish or subscribe on")
	pubText = flag.String("pub", "", "publish this text once per second; subscribe and print when empty")
)

func main() {
	flag.Parse()

	cfg, created, err := config.Ensure(*cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if created {
		log.Printf("created default config at %s", *cfgPath)
	}

	if err := logging.SetLogLevelRegex("rmwp2p.*", cfg.Logging.Level); err != nil {
		log.Fatalf("log level: %v", err)
	}

	n, err := node.New(node.Config{
		ListenAddrs:     []string{fmt.Sprintf("/ip4/0.0.0.0/tcp/%d", cfg.P2P.ListenPort)},
		MdnsTag:         cfg.P2P.MdnsTag,
		IdentityKeyFile: cfg.Identity.KeyFile,
		DrainTimeout:    time.Duration(cfg.P2P.DrainTimeoutMS) * time.Millisecond,
	})
	if err != nil {
		log.Fatalf("start node: %v", err)
	}

	fmt.Printf("peer:  %s\n", n.ID())
	for _, a := range n.ListenAddrs() {
		fmt.Printf("addr:  %s\n", a)
	}
	fmt.Printf("topic: %s\n", *topic)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	if *pubText != "" {
		runPublisher(n, sigCh)
		return
	}
	runSubscriber(n, sigCh)
}

func runPublisher(n *node.Node, sigCh <-chan os.Signal) {
	pub := node.NewPublisher(n, *topic)
	fmt.Printf("publishing as gid % x (Ctrl+C to stop)\n", pub.GID())

	tick := time.NewTicker(time.Second)
	defer tick.Stop()
	for {
		select {
		case <-tick.C:
			pub.Publish([]byte(*pubText))
			fmt.Printf("sent #%d\n", pub.SequenceNumber())
		case <-sigCh:
			shutdown(n)
			return
		}
	}
}

func runSubscriber(n *node.Node, sigCh <-chan os.Signal) {
	node.NewSubscription(n, *topic, func(data []byte) {
		env, err := wire.DecodeEnvelope(data)
		if err != nil {
			log.Printf("bad envelope: %v", err)
			return
		}
		fmt.Printf("[%d.%06d] gid=%x… seq=%d payload=%q\n",
			env.Seconds, env.Microseconds, env.GID[:4], env.Sequence, env.Payload)
	})
	fmt.Println("listening (Ctrl+C to stop)")
	<-sigCh
	shutdown(n)
}

func shutdown(n *node.Node) {
	log.Println("shutting down gracefully...")
	if err := n.Close(); err != nil {
		log.Printf("close: %v", err)
	}
}
