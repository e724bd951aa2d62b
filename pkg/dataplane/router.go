// Package dataplane implements the router's frame handler: the
// classify-and-dispatch entry point invoked for every inbound Ethernet
// frame, It owns no I/O of its own — outbound frames
// are handed to a FrameSink so the protocol driver in pkg/controlplane
// can serialise them onto the shim connection in arrival order.
package dataplane

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/gopacket/gopacket/layers"

	"github.com/chirouter/chirouter/pkg/arpcache"
	"github.com/chirouter/chirouter/pkg/pending"
	"github.com/chirouter/chirouter/pkg/route"
	"github.com/chirouter/chirouter/pkg/wire"
)

// DefaultTTL is the TTL the router stamps on packets it originates
// itself (ICMP Echo Reply, ICMP errors),
const DefaultTTL = 64

// FrameSink is the outbound half of the contract between the frame
// handler and the protocol driver: Send hands a fully-built Ethernet
// frame to be written on the named egress interface. Ordering within
// one egress interface is the sink's responsibility. Send may block (the
// protocol driver's sink does while its outbound buffer is full), and
// the frame handler waits for it to return.
type FrameSink interface {
	Send(egressIface int, frame []byte)
}

// Router is one configured virtual router: its interface and route
// tables (read-only after configuration), its ARP cache and pending-ARP
// list (each independently mutex-guarded), and the sink its frame
// handler emits frames through.
type Router struct {
	ID            uint8
	Table         *route.Table
	ArpCache      *arpcache.Cache
	Pending       *pending.List
	Sink          FrameSink
	Log           *zap.Logger
	retryInterval time.Duration
}

// Config bundles the ARP cache TTL and pending-list retry tunables
// a Router is constructed with.
type Config struct {
	ArpTTL        time.Duration
	MaxRetries    int
	RetryInterval time.Duration
	MaxQueue      int
}

// DefaultConfig returns the default tunables: 15s ARP TTL, five retries
// one second apart, 16-deep queues.
func DefaultConfig() Config {
	return Config{
		ArpTTL:        arpcache.DefaultTTL,
		MaxRetries:    pending.DefaultMaxRetries,
		RetryInterval: pending.DefaultRetryInterval,
		MaxQueue:      pending.MaxQueue,
	}
}

// New creates a Router over an already-built interface/route table.
func New(id uint8, table *route.Table, cfg Config, sink FrameSink, log *zap.Logger) *Router {
	return &Router{
		ID:            id,
		Table:         table,
		ArpCache:      arpcache.New(cfg.ArpTTL),
		Pending:       pending.New(cfg.MaxRetries, cfg.RetryInterval, cfg.MaxQueue),
		Sink:          sink,
		Log:           log,
		retryInterval: cfg.RetryInterval,
	}
}

// RunPendingWorker ticks the router's pending-ARP list on its configured
// retry interval and carries out whatever actions each sweep produces,
// until ctx is cancelled. One instance runs per configured router,
// started by the protocol driver once negotiation completes.
func (r *Router) RunPendingWorker(ctx context.Context) {
	pending.RunWorker(ctx, r.Pending, r.retryInterval, func(a pending.Action) {
		r.executeActions([]pending.Action{a})
	})
}

// HandleFrame is the frame handler entry point: parse
// the Ethernet header, drop frames not addressed to us, and dispatch on
// EtherType.
func (r *Router) HandleFrame(ingress int, raw []byte) {
	eth, payload, err := wire.ParseEthernet(raw)
	if err != nil {
		r.Log.Debug("frame.dropped", zap.Int("iface", ingress), zap.Error(err))
		return
	}
	iface := r.Table.Interfaces[ingress]
	if !wire.IsForUs(eth.Dst, iface.MAC) {
		return
	}

	switch eth.EtherType {
	case layers.EthernetTypeARP:
		r.handleARP(ingress, payload)
	case layers.EthernetTypeIPv4:
		r.handleIPv4(ingress, payload)
	default:
		r.Log.Debug("frame.dropped", zap.Int("iface", ingress), zap.String("reason", "unsupported ethertype"))
	}
}
