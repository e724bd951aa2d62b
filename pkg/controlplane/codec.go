// Package controlplane implements the protocol driver: the length-prefixed
// framing contract between the router process and the external network
// emulator ("the shim"), the configuration handshake that builds the
// process-level router registry, and the steady-state loop that hands
// inbound frames to pkg/dataplane and serialises outbound ones back onto
// the shim connection.
package controlplane

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrProtocol marks a terminal framing error: the connection is beyond
// recovery and must be closed.
var ErrProtocol = errors.New("controlplane: protocol error")

// Message types.
const (
	MsgHello         uint8 = 1
	MsgRouters       uint8 = 2
	MsgRouter        uint8 = 3
	MsgInterface     uint8 = 4
	MsgRouteEntry    uint8 = 5
	MsgEndConfig     uint8 = 6
	MsgEthernetFrame uint8 = 7
)

// Subtypes, shared by Hello and EthernetFrame.
const (
	SubtypeToRouter   uint8 = 1
	SubtypeFromRouter uint8 = 2
)

const headerLen = 4 // 1-byte type, 1-byte subtype, 2-byte BE length

// Message is one framed unit of the control protocol.
type Message struct {
	Type    uint8
	Subtype uint8
	Payload []byte
}

// Codec reads and writes framed Messages over a connection. It performs
// no buffering of its own beyond what a single ReadMessage/WriteMessage
// call needs.
type Codec struct {
	r io.Reader
	w io.Writer
}

// NewCodec wraps rw for framed message exchange.
func NewCodec(rw io.ReadWriter) *Codec {
	return &Codec{r: rw, w: rw}
}

// ReadMessage blocks for the next framed message. Any error it returns,
// including io.EOF, is terminal: the caller must close the connection.
func (c *Codec) ReadMessage() (Message, error) {
	var hdr [headerLen]byte
	if _, err := io.ReadFull(c.r, hdr[:]); err != nil {
		return Message{}, fmt.Errorf("%w: read header: %v", ErrProtocol, err)
	}
	length := binary.BigEndian.Uint16(hdr[2:4])
	var payload []byte
	if length > 0 {
		payload = make([]byte, length)
		if _, err := io.ReadFull(c.r, payload); err != nil {
			return Message{}, fmt.Errorf("%w: read payload: %v", ErrProtocol, err)
		}
	}
	return Message{Type: hdr[0], Subtype: hdr[1], Payload: payload}, nil
}

// WriteMessage frames and writes msg in one call.
func (c *Codec) WriteMessage(msg Message) error {
	if len(msg.Payload) > 0xffff {
		return fmt.Errorf("%w: payload too large (%d bytes)", ErrProtocol, len(msg.Payload))
	}
	buf := make([]byte, headerLen+len(msg.Payload))
	buf[0] = msg.Type
	buf[1] = msg.Subtype
	binary.BigEndian.PutUint16(buf[2:4], uint16(len(msg.Payload)))
	copy(buf[headerLen:], msg.Payload)
	if _, err := c.w.Write(buf); err != nil {
		return fmt.Errorf("controlplane: write message: %w", err)
	}
	return nil
}
