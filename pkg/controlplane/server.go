package controlplane

import (
	"context"
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/chirouter/chirouter/pkg/dataplane"
)

// Server accepts the shim's single TCP connection, runs the
// configuration handshake, and then dispatches the steady-state frame
// exchange until the connection closes.
type Server struct {
	ln  net.Listener
	cfg dataplane.Config
	log *zap.Logger
}

// NewServer wraps an already-bound listener.
func NewServer(ln net.Listener, cfg dataplane.Config, log *zap.Logger) *Server {
	return &Server{ln: ln, cfg: cfg, log: log}
}

// Serve accepts the shim's connection and runs it to completion. It
// returns once the connection closes or ctx is cancelled;
// the router process only ever serves one shim connection.
func (s *Server) Serve(ctx context.Context) error {
	stopAccept := context.AfterFunc(ctx, func() { s.ln.Close() })
	conn, err := s.ln.Accept()
	stopAccept()
	if err != nil {
		return fmt.Errorf("controlplane: accept: %w", err)
	}
	defer conn.Close()
	s.log.Info("controlplane.accepted", zap.String("remote", conn.RemoteAddr().String()))
	return s.handleConn(ctx, conn)
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	// Closing conn on cancellation unblocks a pending ReadMessage.
	stopClose := context.AfterFunc(ctx, func() { conn.Close() })
	defer stopClose()

	codec := NewCodec(conn)
	outbound := make(chan outboundFrame, outboundQueueSize)

	registry, err := negotiate(codec, s.cfg, outbound, s.log)
	if err != nil {
		return fmt.Errorf("controlplane: negotiation: %w", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		runOutboundWriter(ctx, codec, outbound, s.log)
	}()

	for _, router := range registry.All() {
		router := router
		wg.Add(1)
		go func() {
			defer wg.Done()
			router.RunPendingWorker(ctx)
		}()
	}

	err = s.dispatchLoop(ctx, codec, registry)
	cancel()
	wg.Wait()
	close(outbound)
	return err
}

// dispatchLoop is the steady-state loop: read EthernetFrame
// messages and hand each to the addressed router's frame handler. Any
// other message type, or a read error, ends the session as a terminal
// framing error.
func (s *Server) dispatchLoop(ctx context.Context, codec *Codec, registry *Registry) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		msg, err := codec.ReadMessage()
		if err != nil {
			return err
		}
		if msg.Type != MsgEthernetFrame || msg.Subtype != SubtypeToRouter {
			return fmt.Errorf("%w: unexpected message type %d subtype %d in steady state", ErrProtocol, msg.Type, msg.Subtype)
		}
		fp, err := ParseEthernetFramePayload(msg.Payload)
		if err != nil {
			return err
		}
		router, ok := registry.Get(fp.RID)
		if !ok {
			s.log.Debug("controlplane.frame.dropped", zap.Uint8("rid", fp.RID), zap.String("reason", "unknown router"))
			continue
		}
		router.HandleFrame(int(fp.IfaceID), fp.Frame)
	}
}
