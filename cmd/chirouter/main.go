package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/chirouter/chirouter/pkg/controlplane"
	"github.com/chirouter/chirouter/pkg/dataplane"
)

var (
	listenAddr = flag.String("listen", ":8087", "address to listen on for the shim's control connection")
	arpTTL     = flag.Duration("arp-ttl", dataplane.DefaultConfig().ArpTTL, "how long a resolved ARP entry is cached")
	maxRetries = flag.Int("arp-retries", dataplane.DefaultConfig().MaxRetries, "ARP request retries before giving up on a pending datagram")
	retryEvery = flag.Duration("arp-retry-interval", dataplane.DefaultConfig().RetryInterval, "interval between ARP request retries")
	maxQueue   = flag.Int("arp-queue-depth", dataplane.DefaultConfig().MaxQueue, "datagrams queued per unresolved destination before dropping with Host Unreachable")
	dev        = flag.Bool("dev", false, "use a human-readable development logger instead of JSON")
)

func main() {
	flag.Parse()

	log, err := newLogger(*dev)
	if err != nil {
		fmt.Fprintf(os.Stderr, "chirouter: logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", *listenAddr)
	if err != nil {
		log.Fatal("chirouter.listen_failed", zap.Error(err))
	}
	log.Info("chirouter.listening", zap.String("addr", ln.Addr().String()))

	cfg := dataplane.Config{
		ArpTTL:        *arpTTL,
		MaxRetries:    *maxRetries,
		RetryInterval: *retryEvery,
		MaxQueue:      *maxQueue,
	}

	srv := controlplane.NewServer(ln, cfg, log)
	if err := srv.Serve(ctx); err != nil {
		log.Error("chirouter.serve_exited", zap.Error(err))
		os.Exit(1)
	}
	log.Info("chirouter.stopped")
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
