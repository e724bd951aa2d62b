package controlplane

import (
	"context"

	"go.uber.org/zap"
)

// outboundFrame is one frame a router's frame handler produced, tagged
// with the router id the shim's wire format requires.
type outboundFrame struct {
	rid   uint8
	iface int
	frame []byte
}

// outboundQueueSize bounds how many outbound frames may be buffered
// ahead of the single writer goroutine before a router's frame handler
// blocks handing one over, keeping memory use bounded.
const outboundQueueSize = 256

// connSink implements dataplane.FrameSink for one configured router,
// funneling its outbound frames into the connection-wide writer so
// ordering within one egress interface is preserved.
type connSink struct {
	rid uint8
	out chan<- outboundFrame
}

func (s *connSink) Send(egressIface int, frame []byte) {
	s.out <- outboundFrame{rid: s.rid, iface: egressIface, frame: frame}
}

// runOutboundWriter drains frames and writes each as a type-7
// EthernetFrame message until ctx is cancelled or the channel is closed.
// It is the connection's single writer: every frame is written
// atomically, in the order its router handed it over.
func runOutboundWriter(ctx context.Context, codec *Codec, frames <-chan outboundFrame, log *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			payload := BuildEthernetFramePayload(f.rid, uint8(f.iface), f.frame)
			msg := Message{Type: MsgEthernetFrame, Subtype: SubtypeFromRouter, Payload: payload}
			if err := codec.WriteMessage(msg); err != nil {
				log.Warn("controlplane.write_failed", zap.Error(err))
				return
			}
		}
	}
}
