package controlplane

import (
	"encoding/binary"
	"net"
	"testing"
)

func TestParseRouterPayload(t *testing.T) {
	payload := append([]byte{7, 3, 2}, []byte("r1")...)
	rp, err := ParseRouterPayload(payload)
	if err != nil {
		t.Fatalf("ParseRouterPayload: %v", err)
	}
	if rp.RID != 7 || rp.NumInterfaces != 3 || rp.NumRoutes != 2 || rp.Name != "r1" {
		t.Fatalf("unexpected result: %+v", rp)
	}
}

func TestParseInterfacePayload(t *testing.T) {
	mac, _ := net.ParseMAC("02:00:00:00:00:01")
	ip := net.ParseIP("10.0.0.1").To4()
	payload := make([]byte, 0, interfacePayloadFixedLen+4)
	payload = append(payload, 7, 0)
	payload = append(payload, mac...)
	payload = append(payload, ip...)
	payload = append(payload, []byte("eth1")...)

	ip4, err := ParseInterfacePayload(payload)
	if err != nil {
		t.Fatalf("ParseInterfacePayload: %v", err)
	}
	if ip4.RID != 7 || ip4.IfaceID != 0 || ip4.Name != "eth1" {
		t.Fatalf("unexpected result: %+v", ip4)
	}
	if ip4.MAC.String() != mac.String() || !ip4.IP.Equal(net.ParseIP("10.0.0.1")) {
		t.Fatalf("unexpected mac/ip: %v %v", ip4.MAC, ip4.IP)
	}
}

func TestParseRouteEntryPayload(t *testing.T) {
	payload := make([]byte, routeEntryPayloadLen)
	payload[0] = 7
	payload[1] = 2
	binary.BigEndian.PutUint16(payload[2:4], 10)
	copy(payload[4:8], net.ParseIP("192.168.1.0").To4())
	copy(payload[8:12], net.IPv4Mask(255, 255, 255, 0))
	copy(payload[12:16], net.ParseIP("0.0.0.0").To4())

	rep, err := ParseRouteEntryPayload(payload)
	if err != nil {
		t.Fatalf("ParseRouteEntryPayload: %v", err)
	}
	if rep.RID != 7 || rep.IfaceID != 2 || rep.Metric != 10 {
		t.Fatalf("unexpected result: %+v", rep)
	}
	if !rep.Dest.Equal(net.ParseIP("192.168.1.0")) {
		t.Fatalf("unexpected dest: %v", rep.Dest)
	}
}

func TestParseRouteEntryPayload_WrongSize(t *testing.T) {
	if _, err := ParseRouteEntryPayload(make([]byte, routeEntryPayloadLen-1)); err == nil {
		t.Fatal("expected an error for a short RouteEntry payload")
	}
}

func TestBuildParseEthernetFramePayload_RoundTrip(t *testing.T) {
	frame := []byte{0xaa, 0xbb, 0xcc}
	built := BuildEthernetFramePayload(3, 1, frame)

	fp, err := ParseEthernetFramePayload(built)
	if err != nil {
		t.Fatalf("ParseEthernetFramePayload: %v", err)
	}
	if fp.RID != 3 || fp.IfaceID != 1 {
		t.Fatalf("unexpected rid/iface: %+v", fp)
	}
	if string(fp.Frame) != string(frame) {
		t.Fatalf("expected frame %v, got %v", frame, fp.Frame)
	}
}

func TestParseEthernetFramePayload_LengthMismatch(t *testing.T) {
	payload := []byte{0, 0, 0, 5, 1, 2} // declares 5 bytes, only 2 present
	if _, err := ParseEthernetFramePayload(payload); err == nil {
		t.Fatal("expected a length-mismatch error")
	}
}
