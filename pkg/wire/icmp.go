package wire

import (
	"fmt"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
)

const ICMPHeaderLen = 8

// ICMP type/code constants the router generates or terminates. Named
// per RFC 792 rather than imported from layers.* so call sites read in
// IP-router vocabulary rather than gopacket's.
const (
	ICMPTypeEchoReply    uint8 = layers.ICMPv4TypeEchoReply
	ICMPTypeEchoRequest  uint8 = layers.ICMPv4TypeEchoRequest
	ICMPTypeUnreachable  uint8 = layers.ICMPv4TypeDestinationUnreachable
	ICMPTypeTimeExceeded uint8 = layers.ICMPv4TypeTimeExceeded

	ICMPCodeNetUnreachable  uint8 = layers.ICMPv4CodeNet
	ICMPCodeHostUnreachable uint8 = layers.ICMPv4CodeHost
	ICMPCodePortUnreachable uint8 = layers.ICMPv4CodePort
	ICMPCodeTTLExceeded     uint8 = 0
)

// ICMPMessage is the subset of an ICMP header the router inspects: type,
// code, and the 4-byte "rest of header" which carries identifier/sequence
// for Echo messages and is unused (zero) for error messages.
type ICMPMessage struct {
	Type    uint8
	Code    uint8
	Id      uint16
	Seq     uint16
	Payload []byte
}

// ParseICMP decodes the ICMP header and payload carried in an IPv4
// datagram's payload.
func ParseICMP(payload []byte) (ICMPMessage, error) {
	if len(payload) < ICMPHeaderLen {
		return ICMPMessage{}, fmt.Errorf("icmp: payload too short (%d bytes): %w", len(payload), ErrMalformed)
	}
	pkt := gopacket.NewPacket(payload, layers.LayerTypeICMPv4, gopacket.NoCopy)
	layer := pkt.Layer(layers.LayerTypeICMPv4)
	if layer == nil {
		return ICMPMessage{}, fmt.Errorf("icmp: no ICMPv4 layer decoded: %w", ErrMalformed)
	}
	icmp := layer.(*layers.ICMPv4)
	return ICMPMessage{
		Type:    uint8(icmp.TypeCode.Type()),
		Code:    uint8(icmp.TypeCode.Code()),
		Id:      icmp.Id,
		Seq:     icmp.Seq,
		Payload: icmp.Payload,
	}, nil
}

func buildICMP(typ, code uint8, id, seq uint16, payload []byte) ([]byte, error) {
	icmp := layers.ICMPv4{
		TypeCode: layers.CreateICMPv4TypeCode(typ, code),
		Id:       id,
		Seq:      seq,
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, &icmp, gopacket.Payload(payload)); err != nil {
		return nil, fmt.Errorf("icmp: serialize: %w", err)
	}
	return buf.Bytes(), nil
}

// BuildICMPEchoReply builds an Echo Reply carrying the same identifier,
// sequence number and payload as the originating Echo Request.
func BuildICMPEchoReply(id, seq uint16, payload []byte) ([]byte, error) {
	return buildICMP(uint8(ICMPTypeEchoReply), 0, id, seq, payload)
}

// BuildICMPError builds a type-3/type-11 ICMP error message whose payload
// is the original IPv4 header plus the first 8 bytes of its payload. The
// "rest of header" word is always zero for these error types.
func BuildICMPError(typ, code uint8, origDatagram []byte) ([]byte, error) {
	n := IPv4HeaderLen + 8
	if len(origDatagram) < n {
		n = len(origDatagram)
	}
	return buildICMP(typ, code, 0, 0, origDatagram[:n])
}
