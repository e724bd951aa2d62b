package wire

import (
	"fmt"
	"net"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
)

const EthernetHeaderLen = 14

// EthernetHeader is the subset of the 14-byte Ethernet II header the
// frame handler needs: destination/source MAC and EtherType.
type EthernetHeader struct {
	Dst       net.HardwareAddr
	Src       net.HardwareAddr
	EtherType layers.EthernetType
}

// ParseEthernet decodes the Ethernet header from frame and returns the
// header fields plus the remaining payload (ARP message or IPv4 datagram),
// including any zero padding after it.
func ParseEthernet(frame []byte) (EthernetHeader, []byte, error) {
	if len(frame) < EthernetHeaderLen {
		return EthernetHeader{}, nil, fmt.Errorf("ethernet: frame too short (%d bytes): %w", len(frame), ErrMalformed)
	}
	pkt := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.NoCopy)
	layer := pkt.Layer(layers.LayerTypeEthernet)
	if layer == nil {
		return EthernetHeader{}, nil, fmt.Errorf("ethernet: no Ethernet layer decoded: %w", ErrMalformed)
	}
	eth := layer.(*layers.Ethernet)
	hdr := EthernetHeader{
		Dst:       eth.DstMAC,
		Src:       eth.SrcMAC,
		EtherType: eth.EthernetType,
	}
	return hdr, eth.Payload, nil
}

// BuildEthernet serialises an Ethernet II frame carrying payload. A frame
// shorter than the 60-byte Ethernet minimum is zero-padded to that size.
func BuildEthernet(dst, src net.HardwareAddr, ethertype layers.EthernetType, payload []byte) ([]byte, error) {
	eth := layers.Ethernet{
		DstMAC:       dst,
		SrcMAC:       src,
		EthernetType: ethertype,
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, &eth, gopacket.Payload(payload)); err != nil {
		return nil, fmt.Errorf("ethernet: serialize: %w", err)
	}
	return buf.Bytes(), nil
}

// IsForUs reports whether an Ethernet destination MAC is the broadcast
// address or matches ifaceMAC, the only two cases the frame handler
// accepts a frame for.
func IsForUs(dst, ifaceMAC net.HardwareAddr) bool {
	if isBroadcast(dst) {
		return true
	}
	return bytesEqualMAC(dst, ifaceMAC)
}

func isBroadcast(mac net.HardwareAddr) bool {
	if len(mac) != 6 {
		return false
	}
	for _, b := range mac {
		if b != 0xff {
			return false
		}
	}
	return true
}

func bytesEqualMAC(a, b net.HardwareAddr) bool {
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
