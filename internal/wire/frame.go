// Package wire implements the peer-to-peer framing protocol nodes use to
// talk to each other over the replication port: a fixed ASCII handshake
// followed by a stream of length-prefixed MessagePack frames.
package wire

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// Magic is sent by the dialing side immediately after connecting and
// echoed back by the accepting side before either end sends a frame.
const Magic = "solidb-drv-v1\x00"

// MaxFrameBytes bounds a single frame body; anything larger is a protocol
// violation, not a partial read.
const MaxFrameBytes = 16 * 1024 * 1024

// ErrFrameTooLarge is returned when a peer announces a length prefix
// beyond MaxFrameBytes.
var ErrFrameTooLarge = errors.New("wire: frame exceeds maximum size")

// ErrBadHandshake is returned when the peer's opening bytes don't match Magic.
var ErrBadHandshake = errors.New("wire: handshake magic mismatch")

// Type discriminates the frame kinds on the wire.
type Type string

const (
	TypeHeartbeat         Type = "heartbeat"
	TypeHeartbeatAck      Type = "heartbeat_ack"
	TypeReplicate         Type = "replicate"
	TypeReplicateAck      Type = "replicate_ack"
	TypeMigrationStream   Type = "migration_stream"
	TypeMigrationAck      Type = "migration_ack"
	TypeTopologyGossip    Type = "topology_gossip"
	TypeTopologyGossipAck Type = "topology_gossip_ack"
	TypeFetch             Type = "fetch"
	TypeFetchAck          Type = "fetch_ack"
)

// Frame is the envelope written to the wire: a type tag plus an
// already-msgpack-encodable body. Body is decoded into the caller's
// concrete struct via DecodeBody.
type Frame struct {
	Type Type
	Body msgpack.RawMessage
}

// EncodeBody msgpack-encodes v and wraps it with typ into a Frame ready
// for WriteFrame.
func EncodeBody(typ Type, v any) (Frame, error) {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return Frame{}, fmt.Errorf("wire: encoding %s body: %w", typ, err)
	}
	return Frame{Type: typ, Body: data}, nil
}

// DecodeBody unmarshals a frame's body into v.
func (f Frame) DecodeBody(v any) error {
	return msgpack.Unmarshal(f.Body, v)
}

type onWire struct {
	Type Type                `msgpack:"type"`
	Body msgpack.RawMessage `msgpack:"body"`
}

// WriteHandshake sends the magic preamble. Call once per connection,
// before any frame.
func WriteHandshake(w io.Writer) error {
	_, err := w.Write([]byte(Magic))
	return err
}

// ReadHandshake consumes and validates the magic preamble.
func ReadHandshake(r io.Reader) error {
	buf := make([]byte, len(Magic))
	if _, err := io.ReadFull(r, buf); err != nil {
		return fmt.Errorf("wire: reading handshake: %w", err)
	}
	if string(buf) != Magic {
		return ErrBadHandshake
	}
	return nil
}

// WriteFrame writes a length-prefixed, msgpack-encoded frame.
func WriteFrame(w io.Writer, f Frame) error {
	payload, err := msgpack.Marshal(onWire{Type: f.Type, Body: f.Body})
	if err != nil {
		return fmt.Errorf("wire: encoding frame envelope: %w", err)
	}
	if len(payload) > MaxFrameBytes {
		return ErrFrameTooLarge
	}
	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(payload)))
	if _, err := w.Write(lenPrefix[:]); err != nil {
		return err
	}
	_, err = w.Write(payload)
	return err
}

// ReadFrame reads one length-prefixed frame from r. r should be buffered
// (bufio.Reader) when reading from a network connection.
func ReadFrame(r io.Reader) (Frame, error) {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
		return Frame{}, err
	}
	n := binary.BigEndian.Uint32(lenPrefix[:])
	if n > MaxFrameBytes {
		return Frame{}, ErrFrameTooLarge
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Frame{}, fmt.Errorf("wire: reading frame body: %w", err)
	}
	var env onWire
	if err := msgpack.Unmarshal(payload, &env); err != nil {
		return Frame{}, fmt.Errorf("wire: decoding frame envelope: %w", err)
	}
	return Frame{Type: env.Type, Body: env.Body}, nil
}

// NewBufferedReader wraps a raw connection reader so ReadFrame isn't
// making a syscall per field.
func NewBufferedReader(r io.Reader) *bufio.Reader {
	return bufio.NewReaderSize(r, 64*1024)
}
