package pending

import "net/netip"

// ActionKind tags the effect an Enqueue/Resolve/Sweep call asks the
// caller to carry out once it has released the list's lock: gather
// under lock, act after release.
type ActionKind int

const (
	// ActionSendARPRequest asks the caller to emit an ARP who-has request
	// for TargetIP on EgressIface.
	ActionSendARPRequest ActionKind = iota
	// ActionForward asks the caller to rewrite the Ethernet header using
	// ResolvedMAC and forward Datagram on EgressIface, decrementing the
	// TTL first iff DecrementTTL is set.
	ActionForward
	// ActionHostUnreachable asks the caller to synthesize an ICMP
	// Destination Host Unreachable reply to Datagram, sourced from
	// IngressIface.
	ActionHostUnreachable
)

// Action is the tagged value pending list operations return instead of
// performing I/O themselves.
type Action struct {
	Kind         ActionKind
	TargetIP     netip.Addr
	EgressIface  int
	IngressIface int
	Datagram     []byte
	ResolvedMAC  []byte
	// DecrementTTL is set for a withheld datagram that arrived from the
	// wire and is being forwarded in transit; it is clear for a datagram
	// the router built itself (an ICMP reply or error), which must leave
	// at the TTL it was built with.
	DecrementTTL bool
}
