// Package wire parses and builds the Ethernet, ARP, IPv4 and ICMP headers
// the router's frame handler operates on. Every build operation zeroes the
// checksum field before summing, matching RFC 1071.
package wire

import "errors"

// ErrMalformed is returned (wrapped with context via fmt.Errorf) when a
// frame is shorter than the header it claims to carry, or otherwise fails
// a structural check (IPv4 version or IHL, IPv4 header checksum).
var ErrMalformed = errors.New("wire: malformed frame")
