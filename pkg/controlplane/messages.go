package controlplane

import (
	"encoding/binary"
	"fmt"
	"net"
)

// RouterPayload is type-3 Router's payload: rid, interface/route counts the
// shim promises to send next, and the router's display name.
type RouterPayload struct {
	RID           uint8
	NumInterfaces uint8
	NumRoutes     uint8
	Name          string
}

// ParseRouterPayload decodes a type-3 Router payload.
func ParseRouterPayload(payload []byte) (RouterPayload, error) {
	if len(payload) < 3 {
		return RouterPayload{}, fmt.Errorf("%w: Router payload too short (%d bytes)", ErrProtocol, len(payload))
	}
	return RouterPayload{
		RID:           payload[0],
		NumInterfaces: payload[1],
		NumRoutes:     payload[2],
		Name:          string(payload[3:]),
	}, nil
}

// InterfacePayload is type-4 Interface's payload.
type InterfacePayload struct {
	RID     uint8
	IfaceID uint8
	MAC     net.HardwareAddr
	IP      net.IP
	Name    string
}

const interfacePayloadFixedLen = 1 + 1 + 6 + 4

// ParseInterfacePayload decodes a type-4 Interface payload.
func ParseInterfacePayload(payload []byte) (InterfacePayload, error) {
	if len(payload) < interfacePayloadFixedLen {
		return InterfacePayload{}, fmt.Errorf("%w: Interface payload too short (%d bytes)", ErrProtocol, len(payload))
	}
	mac := make(net.HardwareAddr, 6)
	copy(mac, payload[2:8])
	ip := make(net.IP, 4)
	copy(ip, payload[8:12])
	return InterfacePayload{
		RID:     payload[0],
		IfaceID: payload[1],
		MAC:     mac,
		IP:      ip,
		Name:    string(payload[interfacePayloadFixedLen:]),
	}, nil
}

// RouteEntryPayload is type-5 RouteEntry's payload.
type RouteEntryPayload struct {
	RID     uint8
	IfaceID uint8
	Metric  uint16
	Dest    net.IP
	Mask    net.IPMask
	Gateway net.IP
}

const routeEntryPayloadLen = 1 + 1 + 2 + 4 + 4 + 4

// ParseRouteEntryPayload decodes a type-5 RouteEntry payload.
func ParseRouteEntryPayload(payload []byte) (RouteEntryPayload, error) {
	if len(payload) != routeEntryPayloadLen {
		return RouteEntryPayload{}, fmt.Errorf("%w: RouteEntry payload wrong size (%d bytes)", ErrProtocol, len(payload))
	}
	dest := make(net.IP, 4)
	copy(dest, payload[4:8])
	mask := make(net.IPMask, 4)
	copy(mask, payload[8:12])
	gw := make(net.IP, 4)
	copy(gw, payload[12:16])
	return RouteEntryPayload{
		RID:     payload[0],
		IfaceID: payload[1],
		Metric:  binary.BigEndian.Uint16(payload[2:4]),
		Dest:    dest,
		Mask:    mask,
		Gateway: gw,
	}, nil
}

// EthernetFramePayload is type-7 EthernetFrame's payload, carried in both
// directions.
type EthernetFramePayload struct {
	RID     uint8
	IfaceID uint8
	Frame   []byte
}

const ethernetFramePayloadFixedLen = 1 + 1 + 2

// ParseEthernetFramePayload decodes a type-7 EthernetFrame payload.
func ParseEthernetFramePayload(payload []byte) (EthernetFramePayload, error) {
	if len(payload) < ethernetFramePayloadFixedLen {
		return EthernetFramePayload{}, fmt.Errorf("%w: EthernetFrame payload too short (%d bytes)", ErrProtocol, len(payload))
	}
	frameLen := binary.BigEndian.Uint16(payload[2:4])
	rest := payload[ethernetFramePayloadFixedLen:]
	if int(frameLen) != len(rest) {
		return EthernetFramePayload{}, fmt.Errorf("%w: EthernetFrame length mismatch (declared %d, got %d)", ErrProtocol, frameLen, len(rest))
	}
	return EthernetFramePayload{
		RID:     payload[0],
		IfaceID: payload[1],
		Frame:   rest,
	}, nil
}

// BuildEthernetFramePayload encodes a type-7 EthernetFrame payload for a
// frame the router is sending back to the shim.
func BuildEthernetFramePayload(rid, ifaceID uint8, frame []byte) []byte {
	buf := make([]byte, ethernetFramePayloadFixedLen+len(frame))
	buf[0] = rid
	buf[1] = ifaceID
	binary.BigEndian.PutUint16(buf[2:4], uint16(len(frame)))
	copy(buf[ethernetFramePayloadFixedLen:], frame)
	return buf
}
