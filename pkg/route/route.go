package route

import "net/netip"

// Route is one routing table entry: a destination network, an optional
// gateway (the zero address means "on-link"), a metric used to break
// longest-prefix-match ties, and the outgoing interface index.
type Route struct {
	Dest       netip.Prefix
	Gateway    netip.Addr
	Metric     uint16
	IfaceIndex int
}

// onLink reports whether the route has no gateway, meaning the next hop
// for any datagram this route matches is the datagram's own destination.
func (r Route) onLink() bool {
	return !r.Gateway.IsValid() || r.Gateway == netip.IPv4Unspecified()
}
