package wire

import (
	"fmt"
	"net"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
)

const IPv4HeaderLen = 20

// IPv4Header is the subset of RFC 791 fields the router consumes.
// Options are not supported: only IHL == 5 is accepted.
type IPv4Header struct {
	TotalLength uint16
	TTL         uint8
	Protocol    layers.IPProtocol
	Checksum    uint16
	Src         net.IP
	Dst         net.IP
}

// ParseIPv4 decodes the 20-byte IPv4 header at the front of datagram and
// returns it along with the payload that follows, cut to the header's
// total length so that trailing Ethernet padding is not included. It fails with
// ErrMalformed when the buffer is short, the version isn't 4, the IHL is
// anything but 5 (no options support), or the header checksum is wrong.
func ParseIPv4(datagram []byte) (IPv4Header, []byte, error) {
	if len(datagram) < IPv4HeaderLen {
		return IPv4Header{}, nil, fmt.Errorf("ipv4: datagram too short (%d bytes): %w", len(datagram), ErrMalformed)
	}
	version := datagram[0] >> 4
	ihl := datagram[0] & 0x0f
	if version != 4 {
		return IPv4Header{}, nil, fmt.Errorf("ipv4: unsupported version %d: %w", version, ErrMalformed)
	}
	if ihl < 5 {
		return IPv4Header{}, nil, fmt.Errorf("ipv4: invalid IHL %d: %w", ihl, ErrMalformed)
	}
	if ihl != 5 {
		return IPv4Header{}, nil, fmt.Errorf("ipv4: options unsupported (IHL %d): %w", ihl, ErrMalformed)
	}
	if Checksum16(datagram[:IPv4HeaderLen]) != 0 {
		return IPv4Header{}, nil, fmt.Errorf("ipv4: header checksum mismatch: %w", ErrMalformed)
	}

	pkt := gopacket.NewPacket(datagram, layers.LayerTypeIPv4, gopacket.NoCopy)
	layer := pkt.Layer(layers.LayerTypeIPv4)
	if layer == nil {
		return IPv4Header{}, nil, fmt.Errorf("ipv4: no IPv4 layer decoded: %w", ErrMalformed)
	}
	ip := layer.(*layers.IPv4)
	hdr := IPv4Header{
		TotalLength: ip.Length,
		TTL:         ip.TTL,
		Protocol:    ip.Protocol,
		Checksum:    ip.Checksum,
		Src:         ip.SrcIP,
		Dst:         ip.DstIP,
	}
	return hdr, ip.Payload, nil
}

// BuildIPv4 serialises a 20-byte IPv4 header (no options) followed by
// payload, with the header checksum computed over the zeroed-checksum
// header per RFC 1071.
func BuildIPv4(ttl uint8, protocol layers.IPProtocol, src, dst net.IP, payload []byte) ([]byte, error) {
	ip := layers.IPv4{
		Version:  4,
		IHL:      5,
		Length:   uint16(IPv4HeaderLen + len(payload)),
		TTL:      ttl,
		Protocol: protocol,
		SrcIP:    src.To4(),
		DstIP:    dst.To4(),
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: false, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, &ip, gopacket.Payload(payload)); err != nil {
		return nil, fmt.Errorf("ipv4: serialize: %w", err)
	}
	return buf.Bytes(), nil
}

// DecrementTTLAndRechecksum decrements datagram's TTL field in place by
// one and recomputes the header checksum over the result. The caller must
// have already validated the original checksum and TTL > 1.
func DecrementTTLAndRechecksum(datagram []byte) {
	datagram[8]--
	datagram[10] = 0
	datagram[11] = 0
	sum := Checksum16(datagram[:IPv4HeaderLen])
	datagram[10] = byte(sum >> 8)
	datagram[11] = byte(sum)
}
