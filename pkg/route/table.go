package route

import "net/netip"

// Table is a router's immutable-after-configuration interface list and
// route list, built from the protocol driver's Interface/RouteEntry
// messages in declaration order.
type Table struct {
	Interfaces []Interface
	Routes     []Route
}

// LookupRoute applies longest-prefix match: among the routes whose
// network covers dst, it returns the one with the longest prefix,
// breaking ties by the smaller metric and then by table order. If the
// winning route's gateway is unset ("on-link"), nextHop is dst itself;
// otherwise it is the route's gateway. ok is false when no route covers
// dst, in which case the caller emits ICMP Net Unreachable.
func (t *Table) LookupRoute(dst netip.Addr) (ifaceIndex int, nextHop netip.Addr, ok bool) {
	best := -1
	bestBits := -1
	for i, r := range t.Routes {
		if !r.Dest.Contains(dst) {
			continue
		}
		bits := r.Dest.Bits()
		switch {
		case bits > bestBits:
			best, bestBits = i, bits
		case bits == bestBits && r.Metric < t.Routes[best].Metric:
			best = i
		}
	}
	if best < 0 {
		return 0, netip.Addr{}, false
	}
	r := t.Routes[best]
	if r.onLink() {
		return r.IfaceIndex, dst, true
	}
	return r.IfaceIndex, r.Gateway, true
}

// IsLocalIP returns the index of the interface whose address equals ip,
// or ok == false if no interface owns it.
func (t *Table) IsLocalIP(ip netip.Addr) (ifaceIndex int, ok bool) {
	for i, iface := range t.Interfaces {
		if iface.IP == ip {
			return i, true
		}
	}
	return 0, false
}
