package wire

import (
	"fmt"
	"net"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
)

const ARPHeaderLen = 28

// ARPMessage is the subset of RFC 826 fields the router acts on.
type ARPMessage struct {
	Operation layers.ARPOp
	SHA       net.HardwareAddr // sender hardware address
	SPA       net.IP           // sender protocol address
	THA       net.HardwareAddr // target hardware address
	TPA       net.IP           // target protocol address
}

// ParseARP decodes an ARP message carried in payload (the Ethernet
// payload, not including the Ethernet header).
func ParseARP(payload []byte) (ARPMessage, error) {
	if len(payload) < ARPHeaderLen {
		return ARPMessage{}, fmt.Errorf("arp: payload too short (%d bytes): %w", len(payload), ErrMalformed)
	}
	pkt := gopacket.NewPacket(payload, layers.LayerTypeARP, gopacket.NoCopy)
	layer := pkt.Layer(layers.LayerTypeARP)
	if layer == nil {
		return ARPMessage{}, fmt.Errorf("arp: no ARP layer decoded: %w", ErrMalformed)
	}
	a := layer.(*layers.ARP)
	return ARPMessage{
		Operation: a.Operation,
		SHA:       net.HardwareAddr(a.SourceHwAddress),
		SPA:       net.IP(a.SourceProtAddress),
		THA:       net.HardwareAddr(a.DstHwAddress),
		TPA:       net.IP(a.DstProtAddress),
	}, nil
}

func buildARP(op layers.ARPOp, sha net.HardwareAddr, spa net.IP, tha net.HardwareAddr, tpa net.IP) ([]byte, error) {
	arp := layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         op,
		SourceHwAddress:   []byte(sha),
		SourceProtAddress: spa.To4(),
		DstHwAddress:      []byte(tha),
		DstProtAddress:    tpa.To4(),
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	if err := arp.SerializeTo(buf, opts); err != nil {
		return nil, fmt.Errorf("arp: serialize: %w", err)
	}
	return buf.Bytes(), nil
}

// BuildARPRequest builds an ARP who-has request. tha is the zero hardware
// address per RFC 826 since the target's MAC is unknown.
func BuildARPRequest(sha net.HardwareAddr, spa net.IP, tpa net.IP) ([]byte, error) {
	return buildARP(layers.ARPRequest, sha, spa, make(net.HardwareAddr, 6), tpa)
}

// BuildARPReply builds an ARP reply addressed to the original requester.
func BuildARPReply(sha net.HardwareAddr, spa net.IP, tha net.HardwareAddr, tpa net.IP) ([]byte, error) {
	return buildARP(layers.ARPReply, sha, spa, tha, tpa)
}
