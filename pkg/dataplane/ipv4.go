package dataplane

import (
	"net"
	"net/netip"

	"github.com/gopacket/gopacket/layers"
	"go.uber.org/zap"

	"github.com/chirouter/chirouter/pkg/pending"
	"github.com/chirouter/chirouter/pkg/wire"
)

// datagramClass is an exhaustively-switched classification of an inbound
// datagram, used in place of dynamic dispatch on protocol numbers.
type datagramClass int

const (
	classLocalEcho datagramClass = iota
	classLocalWrongIface
	classLocalTCPUDP
	classLocalOther
	classForwardTTLExpired
	classForwardNoRoute
	classForwardOK
)

// handleIPv4 classifies the datagram, then dispatches on that
// classification. The classification is computed once, up front, and
// exhaustively switched on below rather than rechecked inline at each
// branch.
func (r *Router) handleIPv4(ingress int, datagram []byte) {
	hdr, ipPayload, err := wire.ParseIPv4(datagram)
	if err != nil {
		r.Log.Debug("ipv4.dropped", zap.Int("iface", ingress), zap.Error(err))
		return
	}
	dst, ok := addrFromNetIP(hdr.Dst)
	if !ok {
		return
	}

	switch r.classify(ingress, dst, hdr) {
	case classLocalWrongIface:
		r.Log.Info("icmp.host_unreachable", zap.String("reason", "wrong interface"), zap.Int("iface", ingress))
		r.emitICMPError(ingress, wire.ICMPTypeUnreachable, wire.ICMPCodeHostUnreachable, datagram, hdr.Src)
	case classLocalEcho:
		r.deliverLocalICMP(ingress, hdr, ipPayload, r.Table.Interfaces[ingress].IP)
	case classLocalTCPUDP:
		r.Log.Info("icmp.port_unreachable", zap.Int("iface", ingress))
		r.emitICMPError(ingress, wire.ICMPTypeUnreachable, wire.ICMPCodePortUnreachable, datagram, hdr.Src)
	case classLocalOther:
		r.Log.Debug("ipv4.dropped", zap.Int("iface", ingress), zap.String("reason", "unhandled local protocol"))
	case classForwardTTLExpired:
		r.Log.Info("icmp.time_exceeded", zap.Int("iface", ingress))
		r.emitICMPError(ingress, wire.ICMPTypeTimeExceeded, wire.ICMPCodeTTLExceeded, datagram, hdr.Src)
	case classForwardNoRoute:
		r.Log.Info("icmp.net_unreachable", zap.Int("iface", ingress), zap.String("dst", dst.String()))
		r.emitICMPError(ingress, wire.ICMPTypeUnreachable, wire.ICMPCodeNetUnreachable, datagram, hdr.Src)
	case classForwardOK:
		r.deliver(dst, datagram, ingress, true)
	}
}

// classify implements the local-vs-forward decision step 3
// as a single exhaustive classification, queried once by handleIPv4.
func (r *Router) classify(ingress int, dst netip.Addr, hdr wire.IPv4Header) datagramClass {
	if localIface, ok := r.Table.IsLocalIP(dst); ok {
		if localIface != ingress {
			return classLocalWrongIface
		}
		switch hdr.Protocol {
		case layers.IPProtocolICMPv4:
			return classLocalEcho
		case layers.IPProtocolTCP, layers.IPProtocolUDP:
			return classLocalTCPUDP
		default:
			return classLocalOther
		}
	}

	if hdr.TTL <= 1 {
		return classForwardTTLExpired
	}
	if _, _, ok := r.Table.LookupRoute(dst); !ok {
		return classForwardNoRoute
	}
	return classForwardOK
}

func (r *Router) deliverLocalICMP(ingress int, hdr wire.IPv4Header, icmpPayload []byte, ingressIP netip.Addr) {
	msg, err := wire.ParseICMP(icmpPayload)
	if err != nil {
		r.Log.Debug("icmp.dropped", zap.Int("iface", ingress), zap.Error(err))
		return
	}
	if msg.Type != wire.ICMPTypeEchoRequest {
		r.Log.Debug("icmp.dropped", zap.Int("iface", ingress), zap.String("reason", "not an echo request"))
		return
	}

	reply, err := wire.BuildICMPEchoReply(msg.Id, msg.Seq, msg.Payload)
	if err != nil {
		r.Log.Warn("icmp.echo_reply.build_failed", zap.Error(err))
		return
	}
	replyIP, ok := ipFromNetIP(ingressIP)
	if !ok {
		return
	}
	ipDatagram, err := wire.BuildIPv4(DefaultTTL, layers.IPProtocolICMPv4, replyIP, hdr.Src, reply)
	if err != nil {
		r.Log.Warn("icmp.echo_reply.build_failed", zap.Error(err))
		return
	}
	r.Log.Info("icmp.echo_reply.sent", zap.Int("iface", ingress))
	srcAddr, ok := addrFromNetIP(hdr.Src)
	if !ok {
		return
	}
	r.deliver(srcAddr, ipDatagram, ingress, false)
}

// deliver resolves the next hop for dst and either forwards datagram
// immediately (ARP cache hit) or withholds it pending ARP resolution.
// decrementTTL distinguishes a datagram in transit (TTL must be
// decremented before it leaves the router) from one the router built
// itself, an ICMP reply or error, which must leave at the TTL it was
// built with. classify has already confirmed a route exists for the
// forwarding path, so a lookup miss here only happens for a datagram
// the router built itself; such a miss is silently dropped rather than
// generating a second ICMP error of its own.
func (r *Router) deliver(dst netip.Addr, datagram []byte, ingress int, decrementTTL bool) {
	egressIface, nextHop, ok := r.Table.LookupRoute(dst)
	if !ok {
		r.Log.Debug("ipv4.dropped", zap.String("dst", dst.String()), zap.String("reason", "no route"))
		return
	}

	if mac, ok := r.ArpCache.Lookup(nextHop); ok {
		r.send(egressIface, mac, datagram, decrementTTL)
		return
	}

	actions := r.Pending.Enqueue(nextHop, egressIface, datagram, ingress, decrementTTL)
	r.executeActions(actions)
}

// send rewrites the Ethernet header and sends datagram on egressIface,
// decrementing the TTL and recomputing the IPv4 checksum first iff
// decrementTTL is set: set for a datagram in transit, clear for one the
// router originated itself.
func (r *Router) send(egressIface int, dstMAC []byte, datagram []byte, decrementTTL bool) {
	out := datagram
	if decrementTTL {
		out = append([]byte(nil), datagram...)
		wire.DecrementTTLAndRechecksum(out)
	}
	iface := r.Table.Interfaces[egressIface]
	frame, err := wire.BuildEthernet(dstMAC, iface.MAC, layers.EthernetTypeIPv4, out)
	if err != nil {
		r.Log.Warn("ipv4.forward.build_failed", zap.Error(err))
		return
	}
	r.Sink.Send(egressIface, frame)
}

// executeActions carries out the effects pending.List operations ask
// for, outside of the list's lock.
func (r *Router) executeActions(actions []pending.Action) {
	for _, a := range actions {
		switch a.Kind {
		case pending.ActionSendARPRequest:
			r.sendARPRequest(a.TargetIP, a.EgressIface)
		case pending.ActionForward:
			r.send(a.EgressIface, a.ResolvedMAC, a.Datagram, a.DecrementTTL)
		case pending.ActionHostUnreachable:
			r.emitHostUnreachableForWithheld(a)
		}
	}
}

func (r *Router) sendARPRequest(targetIP netip.Addr, egressIface int) {
	iface := r.Table.Interfaces[egressIface]
	spa, ok := ipFromNetIP(iface.IP)
	if !ok {
		return
	}
	tpa, ok := ipFromNetIP(targetIP)
	if !ok {
		return
	}
	arp, err := wire.BuildARPRequest(iface.MAC, spa, tpa)
	if err != nil {
		r.Log.Warn("arp.request.build_failed", zap.Error(err))
		return
	}
	broadcast := []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
	frame, err := wire.BuildEthernet(broadcast, iface.MAC, layers.EthernetTypeARP, arp)
	if err != nil {
		r.Log.Warn("arp.request.build_failed", zap.Error(err))
		return
	}
	r.Log.Info("arp.request.sent", zap.Int("iface", egressIface), zap.String("tpa", targetIP.String()))
	r.Sink.Send(egressIface, frame)
}

// emitHostUnreachableForWithheld answers a withheld datagram abandoned
// by the pending list's retry budget (or dropped for queue overflow)
// with ICMP Destination Host Unreachable sourced from the interface the
// datagram originally arrived on.
func (r *Router) emitHostUnreachableForWithheld(a pending.Action) {
	hdr, _, err := wire.ParseIPv4(a.Datagram)
	if err != nil {
		return
	}
	r.Log.Info("icmp.host_unreachable", zap.String("reason", "arp timeout"), zap.Int("iface", a.IngressIface))
	r.emitICMPError(a.IngressIface, wire.ICMPTypeUnreachable, wire.ICMPCodeHostUnreachable, a.Datagram, hdr.Src)
}

// emitICMPError builds the common ICMP error message:
// source is ingressIface's own IP, destination is origSrc, payload is
// the original IPv4 header plus the first 8 bytes of its payload. The
// resulting datagram is handed to deliver, which forwards it (or queues
// it behind ARP resolution) using the router's ordinary forwarding
// path, never generating a second ICMP error of its own.
func (r *Router) emitICMPError(ingress int, typ, code uint8, origDatagram []byte, origSrc net.IP) {
	ingressIP := r.Table.Interfaces[ingress].IP
	srcIP, ok := ipFromNetIP(ingressIP)
	if !ok {
		return
	}
	icmp, err := wire.BuildICMPError(typ, code, origDatagram)
	if err != nil {
		r.Log.Warn("icmp.error.build_failed", zap.Error(err))
		return
	}
	ipDatagram, err := wire.BuildIPv4(DefaultTTL, layers.IPProtocolICMPv4, srcIP, origSrc, icmp)
	if err != nil {
		r.Log.Warn("icmp.error.build_failed", zap.Error(err))
		return
	}
	dst, ok := addrFromNetIP(origSrc)
	if !ok {
		return
	}
	r.deliver(dst, ipDatagram, ingress, false)
}
