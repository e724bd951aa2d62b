package dataplane

import (
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"go.uber.org/zap/zaptest"

	"github.com/chirouter/chirouter/pkg/route"
	"github.com/chirouter/chirouter/pkg/wire"
)

// captureSink is a FrameSink that records every frame handed to it,
// keyed by egress interface, in send order.
type captureSink struct {
	sent []sentFrame
}

type sentFrame struct {
	iface int
	frame []byte
}

func (s *captureSink) Send(iface int, frame []byte) {
	s.sent = append(s.sent, sentFrame{iface, frame})
}

const (
	ifEth1 = 0
	ifEth2 = 1
	ifEth3 = 2
)

var (
	macEth1   = mustMAC("02:00:00:00:00:01")
	macEth2   = mustMAC("02:00:00:00:00:02")
	macEth3   = mustMAC("02:00:00:00:00:03")
	macClient = mustMAC("02:00:00:00:00:10")
	macServer = mustMAC("02:00:00:00:00:20")

	ipEth1    = netip.MustParseAddr("10.0.0.1")
	ipEth2    = netip.MustParseAddr("172.16.0.1")
	ipEth3    = netip.MustParseAddr("192.168.1.1")
	ipClient1 = netip.MustParseAddr("10.0.0.42")
	ipServer1 = netip.MustParseAddr("192.168.1.2")
	ipServer2 = netip.MustParseAddr("172.16.0.2")
)

func mustMAC(s string) net.HardwareAddr {
	mac, err := net.ParseMAC(s)
	if err != nil {
		panic(err)
	}
	return mac
}

// newTestRouter builds the r1/eth1/eth2/eth3 topology used by the
// end-to-end scenarios below.
func newTestRouter(t *testing.T) (*Router, *captureSink) {
	t.Helper()
	table := &route.Table{
		Interfaces: []route.Interface{
			{Name: "eth1", MAC: macEth1, IP: ipEth1},
			{Name: "eth2", MAC: macEth2, IP: ipEth2},
			{Name: "eth3", MAC: macEth3, IP: ipEth3},
		},
		Routes: []route.Route{
			{Dest: netip.MustParsePrefix("10.0.0.0/24"), IfaceIndex: ifEth1},
			{Dest: netip.MustParsePrefix("172.16.0.0/12"), IfaceIndex: ifEth2},
			{Dest: netip.MustParsePrefix("192.168.1.0/24"), IfaceIndex: ifEth3},
		},
	}
	sink := &captureSink{}
	r := New(1, table, DefaultConfig(), sink, zaptest.NewLogger(t))
	return r, sink
}

func buildEchoRequestFrame(t *testing.T, srcMAC, dstMAC net.HardwareAddr, srcIP, dstIP netip.Addr, ttl uint8, id, seq uint16, payload []byte) []byte {
	t.Helper()
	srcIPv4, _ := ipFromNetIP(srcIP)
	dstIPv4, _ := ipFromNetIP(dstIP)
	icmp, err := buildICMPEchoRequest(id, seq, payload)
	if err != nil {
		t.Fatalf("build icmp echo: %v", err)
	}
	ip, err := wire.BuildIPv4(ttl, layers.IPProtocolICMPv4, srcIPv4, dstIPv4, icmp)
	if err != nil {
		t.Fatalf("build ipv4: %v", err)
	}
	frame, err := wire.BuildEthernet(dstMAC, srcMAC, layers.EthernetTypeIPv4, ip)
	if err != nil {
		t.Fatalf("build ethernet: %v", err)
	}
	return frame
}

// buildICMPEchoRequest builds an Echo Request, the mirror image of
// wire.BuildICMPEchoReply which the production code never needs to do
// (the router only ever replies to echo requests, never originates
// them), so this test-only helper is kept local to the test file.
func buildICMPEchoRequest(id, seq uint16, payload []byte) ([]byte, error) {
	icmp := layers.ICMPv4{
		TypeCode: layers.CreateICMPv4TypeCode(wire.ICMPTypeEchoRequest, 0),
		Id:       id,
		Seq:      seq,
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, &icmp, gopacket.Payload(payload)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func TestRouter_ARPRequestReply(t *testing.T) {
	r, sink := newTestRouter(t)

	arp, err := wire.BuildARPRequest(macClient, mustNetIP(ipClient1), mustNetIP(ipEth1))
	if err != nil {
		t.Fatalf("build arp request: %v", err)
	}
	frame, err := wire.BuildEthernet(macEth1, macClient, layers.EthernetTypeARP, arp)
	if err != nil {
		t.Fatalf("build ethernet: %v", err)
	}

	r.HandleFrame(ifEth1, frame)

	if len(sink.sent) != 1 {
		t.Fatalf("expected 1 frame sent, got %d", len(sink.sent))
	}
	eth, payload, err := wire.ParseEthernet(sink.sent[0].frame)
	if err != nil {
		t.Fatalf("parse reply ethernet: %v", err)
	}
	if eth.EtherType != layers.EthernetTypeARP {
		t.Fatalf("expected ARP reply, got ethertype %v", eth.EtherType)
	}
	msg, err := wire.ParseARP(payload)
	if err != nil {
		t.Fatalf("parse arp reply: %v", err)
	}
	if msg.Operation != layers.ARPReply {
		t.Fatalf("expected ARP reply op, got %v", msg.Operation)
	}
	if !macEqual(msg.SHA, macEth1) {
		t.Fatalf("expected sha = eth1 mac, got %v", msg.SHA)
	}
	if !netIPEqual(msg.SPA, ipEth1) {
		t.Fatalf("expected spa = eth1 ip, got %v", msg.SPA)
	}
}

func TestRouter_EchoToRouterInterface(t *testing.T) {
	r, sink := newTestRouter(t)
	payload := []byte("ping-payload")

	// The reply back to client1 is resolved through the ARP cache like
	// any other forwarded datagram, so the cache must already hold
	// client1's mac for the reply to go out in this single HandleFrame
	// call instead of being withheld behind an ARP request.
	r.ArpCache.Insert(ipClient1, macClient)

	frame := buildEchoRequestFrame(t, macClient, macEth1, ipClient1, ipEth1, 64, 7, 1, payload)
	r.HandleFrame(ifEth1, frame)

	if len(sink.sent) != 1 {
		t.Fatalf("expected 1 frame sent, got %d", len(sink.sent))
	}
	_, ipDatagram, err := wire.ParseEthernet(sink.sent[0].frame)
	if err != nil {
		t.Fatalf("parse reply ethernet: %v", err)
	}
	hdr, icmpPayload, err := wire.ParseIPv4(ipDatagram)
	if err != nil {
		t.Fatalf("parse reply ipv4: %v", err)
	}
	if hdr.TTL != DefaultTTL {
		t.Fatalf("expected TTL %d, got %d", DefaultTTL, hdr.TTL)
	}
	if !netIPEqual(hdr.Src, ipEth1) {
		t.Fatalf("expected reply src = eth1 ip, got %v", hdr.Src)
	}
	icmp, err := wire.ParseICMP(icmpPayload)
	if err != nil {
		t.Fatalf("parse reply icmp: %v", err)
	}
	if icmp.Type != wire.ICMPTypeEchoReply {
		t.Fatalf("expected echo reply, got type %d", icmp.Type)
	}
	if icmp.Id != 7 || icmp.Seq != 1 {
		t.Fatalf("expected id=7 seq=1, got id=%d seq=%d", icmp.Id, icmp.Seq)
	}
	if string(icmp.Payload) != string(payload) {
		t.Fatalf("expected payload %q, got %q", payload, icmp.Payload)
	}
}

func TestRouter_WrongInterfaceLocalIP(t *testing.T) {
	r, sink := newTestRouter(t)
	// The ICMP error back to client1 is resolved through the ARP cache,
	// as in TestRouter_EchoToRouterInterface.
	r.ArpCache.Insert(ipClient1, macClient)

	// Addressed to eth3's IP but arrives on eth1.
	frame := buildEchoRequestFrame(t, macClient, macEth1, ipClient1, ipEth3, 64, 1, 1, []byte("x"))
	r.HandleFrame(ifEth1, frame)

	assertICMPError(t, sink, wire.ICMPTypeUnreachable, wire.ICMPCodeHostUnreachable, ipEth1)
}

func TestRouter_TTLExpiredForwarding(t *testing.T) {
	r, sink := newTestRouter(t)
	// The ICMP error back to client1 is resolved through the ARP cache,
	// as in TestRouter_EchoToRouterInterface.
	r.ArpCache.Insert(ipClient1, macClient)

	frame := buildEchoRequestFrame(t, macClient, macEth1, ipClient1, ipServer1, 1, 1, 1, []byte("x"))
	r.HandleFrame(ifEth1, frame)

	assertICMPError(t, sink, wire.ICMPTypeTimeExceeded, wire.ICMPCodeTTLExceeded, ipEth1)
}

func TestRouter_UnroutableDestination(t *testing.T) {
	r, sink := newTestRouter(t)
	// The ICMP error back to client1 is resolved through the ARP cache,
	// as in TestRouter_EchoToRouterInterface.
	r.ArpCache.Insert(ipClient1, macClient)

	frame := buildEchoRequestFrame(t, macClient, macEth1, ipClient1, netip.MustParseAddr("8.8.8.8"), 64, 1, 1, []byte("x"))
	r.HandleFrame(ifEth1, frame)

	assertICMPError(t, sink, wire.ICMPTypeUnreachable, wire.ICMPCodeNetUnreachable, ipEth1)
}

func TestRouter_ForwardingWithARPPending(t *testing.T) {
	r, sink := newTestRouter(t)
	payload := []byte("to-server1")

	frame := buildEchoRequestFrame(t, macClient, macEth1, ipClient1, ipServer1, 64, 9, 1, payload)
	r.HandleFrame(ifEth1, frame)

	if len(sink.sent) != 1 {
		t.Fatalf("expected exactly one ARP request while pending, got %d frames", len(sink.sent))
	}
	eth, arpPayload, err := wire.ParseEthernet(sink.sent[0].frame)
	if err != nil || eth.EtherType != layers.EthernetTypeARP {
		t.Fatalf("expected ARP request frame, err=%v type=%v", err, eth.EtherType)
	}
	arpMsg, err := wire.ParseARP(arpPayload)
	if err != nil {
		t.Fatalf("parse arp request: %v", err)
	}
	if arpMsg.Operation != layers.ARPRequest || !netIPEqual(arpMsg.TPA, ipServer1) {
		t.Fatalf("expected who-has %v, got op=%v tpa=%v", ipServer1, arpMsg.Operation, arpMsg.TPA)
	}
	sink.sent = nil

	// A second echo request for the same unresolved next hop must not
	// emit a second ARP request (at-most-one-in-flight invariant).
	frame2 := buildEchoRequestFrame(t, macClient, macEth1, ipClient1, ipServer1, 64, 10, 1, []byte("second"))
	r.HandleFrame(ifEth1, frame2)
	if len(sink.sent) != 0 {
		t.Fatalf("expected no frames sent while a request is already in flight, got %d", len(sink.sent))
	}

	// ARP reply arrives on eth3.
	arpReply, err := wire.BuildARPReply(macServer, mustNetIP(ipServer1), macEth3, mustNetIP(ipEth3))
	if err != nil {
		t.Fatalf("build arp reply: %v", err)
	}
	replyFrame, err := wire.BuildEthernet(macEth3, macServer, layers.EthernetTypeARP, arpReply)
	if err != nil {
		t.Fatalf("build ethernet: %v", err)
	}
	r.HandleFrame(ifEth3, replyFrame)

	if len(sink.sent) != 2 {
		t.Fatalf("expected both withheld datagrams flushed in FIFO order, got %d frames", len(sink.sent))
	}
	for i, want := range []struct{ id uint16 }{{9}, {10}} {
		if sink.sent[i].iface != ifEth3 {
			t.Fatalf("frame %d: expected egress eth3, got iface %d", i, sink.sent[i].iface)
		}
		_, ipDatagram, err := wire.ParseEthernet(sink.sent[i].frame)
		if err != nil {
			t.Fatalf("frame %d: parse ethernet: %v", i, err)
		}
		hdr, icmpPayload, err := wire.ParseIPv4(ipDatagram)
		if err != nil {
			t.Fatalf("frame %d: parse ipv4: %v", i, err)
		}
		if hdr.TTL != 63 {
			t.Fatalf("frame %d: expected TTL decremented to 63, got %d", i, hdr.TTL)
		}
		icmp, err := wire.ParseICMP(icmpPayload)
		if err != nil {
			t.Fatalf("frame %d: parse icmp: %v", i, err)
		}
		if icmp.Id != want.id {
			t.Fatalf("frame %d: expected id %d, got %d", i, want.id, icmp.Id)
		}
	}
}

func TestRouter_ARPTimeoutHostUnreachable(t *testing.T) {
	r, sink := newTestRouter(t)
	// The ICMP error back to client1 is resolved through the ARP cache,
	// as in TestRouter_EchoToRouterInterface.
	r.ArpCache.Insert(ipClient1, macClient)

	noSuchHost := netip.MustParseAddr("192.168.1.3")
	frame := buildEchoRequestFrame(t, macClient, macEth1, ipClient1, noSuchHost, 64, 1, 1, []byte("x"))
	r.HandleFrame(ifEth1, frame)
	if len(sink.sent) != 1 {
		t.Fatalf("expected initial ARP request, got %d frames", len(sink.sent))
	}
	sink.sent = nil

	// Sweep decrements attemptsRemaining once per call and only abandons
	// the entry on the call that observes it already at zero, so the
	// budget is exhausted after MaxRetries retry sweeps plus one more.
	now := time.Now()
	for i := 0; i < DefaultConfig().MaxRetries; i++ {
		now = now.Add(DefaultConfig().RetryInterval)
		r.executeActions(r.Pending.Sweep(now))
	}
	sink.sent = nil
	now = now.Add(DefaultConfig().RetryInterval)
	r.executeActions(r.Pending.Sweep(now))

	assertICMPError(t, sink, wire.ICMPTypeUnreachable, wire.ICMPCodeHostUnreachable, ipEth1)
}

func assertICMPError(t *testing.T, sink *captureSink, wantType, wantCode uint8, wantSrc netip.Addr) {
	t.Helper()
	if len(sink.sent) != 1 {
		t.Fatalf("expected 1 ICMP error frame, got %d", len(sink.sent))
	}
	_, ipDatagram, err := wire.ParseEthernet(sink.sent[0].frame)
	if err != nil {
		t.Fatalf("parse ethernet: %v", err)
	}
	hdr, icmpPayload, err := wire.ParseIPv4(ipDatagram)
	if err != nil {
		t.Fatalf("parse ipv4: %v", err)
	}
	if !netIPEqual(hdr.Src, wantSrc) {
		t.Fatalf("expected icmp error src %v, got %v", wantSrc, hdr.Src)
	}
	icmp, err := wire.ParseICMP(icmpPayload)
	if err != nil {
		t.Fatalf("parse icmp: %v", err)
	}
	if icmp.Type != wantType || icmp.Code != wantCode {
		t.Fatalf("expected type=%d code=%d, got type=%d code=%d", wantType, wantCode, icmp.Type, icmp.Code)
	}
}

func mustNetIP(a netip.Addr) net.IP {
	ip, _ := ipFromNetIP(a)
	return ip
}
