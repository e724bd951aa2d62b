package route

import (
	"net/netip"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

type lookupResult struct {
	Iface   int
	NextHop netip.Addr
	OK      bool
}

func testTable() *Table {
	return &Table{
		Interfaces: []Interface{
			{Name: "eth1", IP: netip.MustParseAddr("10.0.0.1")},
			{Name: "eth2", IP: netip.MustParseAddr("172.16.0.1")},
		},
		Routes: []Route{
			{Dest: netip.MustParsePrefix("10.0.0.0/24"), IfaceIndex: 0},
			{Dest: netip.MustParsePrefix("0.0.0.0/0"), Gateway: netip.MustParseAddr("172.16.0.254"), IfaceIndex: 1},
			{Dest: netip.MustParsePrefix("172.16.0.0/16"), Metric: 10, IfaceIndex: 1},
			{Dest: netip.MustParsePrefix("172.16.0.0/16"), Metric: 5, IfaceIndex: 1},
		},
	}
}

func TestLookupRoute(t *testing.T) {
	tbl := testTable()

	tests := []struct {
		name string
		dst  netip.Addr
		want lookupResult
	}{
		{
			name: "longest prefix match is on-link",
			dst:  netip.MustParseAddr("10.0.0.42"),
			want: lookupResult{Iface: 0, NextHop: netip.MustParseAddr("10.0.0.42"), OK: true},
		},
		{
			name: "falls back to the default route's gateway",
			dst:  netip.MustParseAddr("8.8.8.8"),
			want: lookupResult{Iface: 1, NextHop: netip.MustParseAddr("172.16.0.254"), OK: true},
		},
		{
			// 172.16.0.0/16 appears twice with different metrics; the
			// lower metric (5) must win over the longer-standing entry (10).
			name: "equal-length prefixes break on metric",
			dst:  netip.MustParseAddr("172.16.5.5"),
			want: lookupResult{Iface: 1, NextHop: netip.MustParseAddr("172.16.5.5"), OK: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			iface, nextHop, ok := tbl.LookupRoute(tt.dst)
			got := lookupResult{Iface: iface, NextHop: nextHop, OK: ok}
			if diff := cmp.Diff(tt.want, got, cmpopts.EquateComparable(netip.Addr{})); diff != "" {
				t.Fatalf("LookupRoute(%v) mismatch (-want +got):\n%s", tt.dst, diff)
			}
		})
	}
}

func TestLookupRoute_NoMatch(t *testing.T) {
	tbl := &Table{Routes: []Route{
		{Dest: netip.MustParsePrefix("10.0.0.0/24"), IfaceIndex: 0},
	}}
	if _, _, ok := tbl.LookupRoute(netip.MustParseAddr("192.168.1.1")); ok {
		t.Fatal("expected no match")
	}
}

func TestIsLocalIP(t *testing.T) {
	tbl := testTable()
	if iface, ok := tbl.IsLocalIP(netip.MustParseAddr("10.0.0.1")); !ok || iface != 0 {
		t.Fatalf("expected iface 0 to own 10.0.0.1, got iface=%d ok=%v", iface, ok)
	}
	if _, ok := tbl.IsLocalIP(netip.MustParseAddr("10.0.0.2")); ok {
		t.Fatal("expected 10.0.0.2 to not be a local address")
	}
}
