package dataplane

import (
	"net"
	"net/netip"
)

// addrFromNetIP converts a net.IP (as decoded by the wire codec) to a
// netip.Addr, the type route.Table and arpcache.Cache key on.
func addrFromNetIP(ip net.IP) (netip.Addr, bool) {
	v4 := ip.To4()
	if v4 == nil {
		return netip.Addr{}, false
	}
	return netip.AddrFrom4([4]byte(v4)), true
}

// ipFromNetIP is the inverse of addrFromNetIP, used when handing an
// address back to the wire codec's net.IP-typed builders.
func ipFromNetIP(a netip.Addr) (net.IP, bool) {
	if !a.Is4() {
		return nil, false
	}
	b := a.As4()
	return net.IP(b[:]), true
}

func netIPEqual(ip net.IP, a netip.Addr) bool {
	got, ok := addrFromNetIP(ip)
	return ok && got == a
}

func macEqual(a, b net.HardwareAddr) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
