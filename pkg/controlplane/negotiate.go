package controlplane

import (
	"fmt"
	"net"
	"net/netip"

	"go.uber.org/zap"

	"github.com/chirouter/chirouter/pkg/dataplane"
	"github.com/chirouter/chirouter/pkg/route"
)

// routerBuilder accumulates one router's interfaces and routes as they
// arrive during negotiation, indexed by interface id.
type routerBuilder struct {
	ifaces map[uint8]route.Interface
	routes []route.Route
}

// negotiate runs the configuration handshake (Hello -> Routers -> Router*
// -> Interface* -> RouteEntry* -> EndConfig) and returns the fully-built
// registry. Every router it constructs is wired
// to a connSink over outbound so its frame handler can reply immediately;
// the caller starts runOutboundWriter and each Router.RunPendingWorker
// only after negotiate returns.
func negotiate(codec *Codec, cfg dataplane.Config, outbound chan<- outboundFrame, log *zap.Logger) (*Registry, error) {
	hello, err := codec.ReadMessage()
	if err != nil {
		return nil, err
	}
	if hello.Type != MsgHello || hello.Subtype != SubtypeToRouter {
		return nil, fmt.Errorf("%w: expected Hello, got type %d subtype %d", ErrProtocol, hello.Type, hello.Subtype)
	}
	if err := codec.WriteMessage(Message{Type: MsgHello, Subtype: SubtypeFromRouter}); err != nil {
		return nil, err
	}

	routersMsg, err := codec.ReadMessage()
	if err != nil {
		return nil, err
	}
	if routersMsg.Type != MsgRouters || len(routersMsg.Payload) < 1 {
		return nil, fmt.Errorf("%w: expected Routers, got type %d", ErrProtocol, routersMsg.Type)
	}
	numRouters := int(routersMsg.Payload[0])
	log.Info("controlplane.negotiate.start", zap.Int("routers", numRouters))

	builders := make(map[uint8]*routerBuilder)
	order := make([]uint8, 0, numRouters)

	for {
		msg, err := codec.ReadMessage()
		if err != nil {
			return nil, err
		}
		switch msg.Type {
		case MsgRouter:
			rp, err := ParseRouterPayload(msg.Payload)
			if err != nil {
				return nil, err
			}
			builders[rp.RID] = &routerBuilder{ifaces: make(map[uint8]route.Interface, rp.NumInterfaces)}
			order = append(order, rp.RID)
			log.Info("controlplane.negotiate.router", zap.Uint8("rid", rp.RID), zap.String("name", rp.Name))

		case MsgInterface:
			ip, err := ParseInterfacePayload(msg.Payload)
			if err != nil {
				return nil, err
			}
			b, ok := builders[ip.RID]
			if !ok {
				return nil, fmt.Errorf("%w: Interface for unconfigured router %d", ErrProtocol, ip.RID)
			}
			addr, ok := netip.AddrFromSlice(ip.IP.To4())
			if !ok {
				return nil, fmt.Errorf("%w: Interface %d/%d has a non-IPv4 address", ErrProtocol, ip.RID, ip.IfaceID)
			}
			b.ifaces[ip.IfaceID] = route.Interface{Name: ip.Name, MAC: ip.MAC, IP: addr}

		case MsgRouteEntry:
			rep, err := ParseRouteEntryPayload(msg.Payload)
			if err != nil {
				return nil, err
			}
			b, ok := builders[rep.RID]
			if !ok {
				return nil, fmt.Errorf("%w: RouteEntry for unconfigured router %d", ErrProtocol, rep.RID)
			}
			prefix, err := routePrefix(rep.Dest, rep.Mask)
			if err != nil {
				return nil, err
			}
			gw, _ := netip.AddrFromSlice(rep.Gateway.To4())
			b.routes = append(b.routes, route.Route{
				Dest:       prefix,
				Gateway:    gw,
				Metric:     rep.Metric,
				IfaceIndex: int(rep.IfaceID),
			})

		case MsgEndConfig:
			return buildRegistry(order, builders, cfg, outbound, log)

		default:
			return nil, fmt.Errorf("%w: unexpected message type %d during negotiation", ErrProtocol, msg.Type)
		}
	}
}

func buildRegistry(order []uint8, builders map[uint8]*routerBuilder, cfg dataplane.Config, outbound chan<- outboundFrame, log *zap.Logger) (*Registry, error) {
	registry := NewRegistry()
	for _, rid := range order {
		b := builders[rid]
		ifaces := make([]route.Interface, len(b.ifaces))
		for id, iface := range b.ifaces {
			if int(id) >= len(ifaces) {
				return nil, fmt.Errorf("%w: router %d has a gap in interface ids", ErrProtocol, rid)
			}
			ifaces[id] = iface
		}
		table := &route.Table{Interfaces: ifaces, Routes: b.routes}
		sink := &connSink{rid: rid, out: outbound}
		registry.set(rid, dataplane.New(rid, table, cfg, sink, log.With(zap.Uint8("router", rid))))
	}
	log.Info("controlplane.negotiate.complete", zap.Int("routers", registry.Len()))
	return registry, nil
}

// routePrefix converts a RouteEntry's 4-byte destination and netmask into
// a netip.Prefix.
func routePrefix(dest net.IP, mask net.IPMask) (netip.Prefix, error) {
	ones, bits := mask.Size()
	if bits != 32 {
		return netip.Prefix{}, fmt.Errorf("%w: route mask is not a valid IPv4 netmask", ErrProtocol)
	}
	addr, ok := netip.AddrFromSlice(dest.To4())
	if !ok {
		return netip.Prefix{}, fmt.Errorf("%w: route destination is not IPv4", ErrProtocol)
	}
	return netip.PrefixFrom(addr, ones).Masked(), nil
}
