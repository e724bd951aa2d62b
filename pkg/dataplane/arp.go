package dataplane

import (
	"github.com/gopacket/gopacket/layers"
	"go.uber.org/zap"

	"github.com/chirouter/chirouter/pkg/wire"
)

// handleARP answers who-has requests for one of our own addresses, and
// resolves pending forwards when a reply addressed to us arrives.
func (r *Router) handleARP(ingress int, payload []byte) {
	msg, err := wire.ParseARP(payload)
	if err != nil {
		r.Log.Debug("arp.dropped", zap.Int("iface", ingress), zap.Error(err))
		return
	}
	iface := r.Table.Interfaces[ingress]

	switch {
	case msg.Operation == layers.ARPRequest && netIPEqual(msg.TPA, iface.IP):
		r.replyToARPRequest(ingress, msg)

	case msg.Operation == layers.ARPReply && macEqual(msg.THA, iface.MAC) && netIPEqual(msg.TPA, iface.IP):
		r.resolveARPReply(ingress, msg)
	}
}

func (r *Router) replyToARPRequest(ingress int, msg wire.ARPMessage) {
	iface := r.Table.Interfaces[ingress]
	spa, ok := ipFromNetIP(iface.IP)
	if !ok {
		return
	}
	arp, err := wire.BuildARPReply(iface.MAC, spa, msg.SHA, msg.SPA)
	if err != nil {
		r.Log.Warn("arp.reply.build_failed", zap.Error(err))
		return
	}
	frame, err := wire.BuildEthernet(msg.SHA, iface.MAC, layers.EthernetTypeARP, arp)
	if err != nil {
		r.Log.Warn("arp.reply.build_failed", zap.Error(err))
		return
	}
	r.Log.Info("arp.reply.sent", zap.Int("iface", ingress), zap.String("tpa", msg.SPA.String()))
	r.Sink.Send(ingress, frame)
}

func (r *Router) resolveARPReply(ingress int, msg wire.ARPMessage) {
	targetIP, ok := addrFromNetIP(msg.SPA)
	if !ok {
		return
	}
	r.ArpCache.Insert(targetIP, msg.SHA)
	r.Log.Info("arp.resolved", zap.String("ip", targetIP.String()), zap.String("mac", msg.SHA.String()))
	actions := r.Pending.Resolve(targetIP, msg.SHA)
	r.executeActions(actions)
}
