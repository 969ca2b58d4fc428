// Package peer implements the node-to-node side of the replication
// protocol: a TCP listener that speaks internal/wire framing, and a
// dialer that opens outbound connections to other nodes. It is the glue
// between the protocol defined in internal/wire and the in-process
// engines (replication, registry, coordinator) that act on what arrives.
package peer

import (
	"context"
	"log"
	"net"

	"github.com/solisoft/solidb-sub010/internal/hlc"
	"github.com/solisoft/solidb-sub010/internal/wire"
)

// Handlers bundles the callbacks the Server dispatches inbound frames to.
// A nil field still gets a default ack: heartbeat echoes the sender's
// HLC, replicate and migration_stream answer "ok" without applying
// anything, fetch answers an error, and topology gossip an empty ack.
type Handlers struct {
	Heartbeat       func(ctx context.Context, from hlc.Timestamp) hlc.Timestamp
	Replicate       func(ctx context.Context, msg wire.Replicate) wire.ReplicateAck
	MigrationStream func(ctx context.Context, msg wire.MigrationStream) wire.MigrationAck
	Fetch           func(ctx context.Context, msg wire.Fetch) wire.FetchAck
	TopologyGossip  func(ctx context.Context, msg wire.TopologyGossip) wire.TopologyGossipAck
}

// Server accepts peer connections on one TCP listener and serves them
// until Close is called. Each connection runs its own goroutine and
// handles an arbitrary number of frames until the remote end hangs up.
type Server struct {
	ln       net.Listener
	handlers Handlers
}

// Listen opens addr and returns a Server ready for Serve.
func Listen(addr string, handlers Handlers) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{ln: ln, handlers: handlers}, nil
}

// Addr returns the listener's bound address, useful when addr was ":0".
func (s *Server) Addr() net.Addr { return s.ln.Addr() }

// Serve blocks accepting connections until Close is called, at which
// point it returns net.ErrClosed (the normal shutdown signal).
func (s *Server) Serve() error {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(conn)
	}
}

// Close stops accepting new connections. In-flight ones finish on their own.
func (s *Server) Close() error {
	return s.ln.Close()
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	if err := wire.ReadHandshake(conn); err != nil {
		log.Printf("peer: handshake from %s: %v", conn.RemoteAddr(), err)
		return
	}
	if err := wire.WriteHandshake(conn); err != nil {
		return
	}

	r := wire.NewBufferedReader(conn)
	ctx := context.Background()
	for {
		frame, err := wire.ReadFrame(r)
		if err != nil {
			return
		}
		if err := s.dispatch(ctx, conn, frame); err != nil {
			log.Printf("peer: dispatching %s frame from %s: %v", frame.Type, conn.RemoteAddr(), err)
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, conn net.Conn, frame wire.Frame) error {
	switch frame.Type {
	case wire.TypeHeartbeat:
		var hb wire.Heartbeat
		if err := frame.DecodeBody(&hb); err != nil {
			return err
		}
		ack := wire.HeartbeatAck{HLC: hb.HLC}
		if s.handlers.Heartbeat != nil {
			ack.HLC = s.handlers.Heartbeat(ctx, hb.HLC)
		}
		out, err := wire.EncodeBody(wire.TypeHeartbeatAck, ack)
		if err != nil {
			return err
		}
		return wire.WriteFrame(conn, out)

	case wire.TypeReplicate:
		var msg wire.Replicate
		if err := frame.DecodeBody(&msg); err != nil {
			return err
		}
		ack := wire.ReplicateAck{OpID: msg.OpID, Status: wire.StatusOK}
		if s.handlers.Replicate != nil {
			ack = s.handlers.Replicate(ctx, msg)
		}
		out, err := wire.EncodeBody(wire.TypeReplicateAck, ack)
		if err != nil {
			return err
		}
		return wire.WriteFrame(conn, out)

	case wire.TypeMigrationStream:
		var msg wire.MigrationStream
		if err := frame.DecodeBody(&msg); err != nil {
			return err
		}
		ack := wire.MigrationAck{TaskID: msg.TaskID, BatchID: msg.BatchID, Status: wire.StatusOK}
		if s.handlers.MigrationStream != nil {
			ack = s.handlers.MigrationStream(ctx, msg)
		}
		out, err := wire.EncodeBody(wire.TypeMigrationAck, ack)
		if err != nil {
			return err
		}
		return wire.WriteFrame(conn, out)

	case wire.TypeFetch:
		var msg wire.Fetch
		if err := frame.DecodeBody(&msg); err != nil {
			return err
		}
		ack := wire.FetchAck{Status: wire.StatusError, Message: "fetch not supported"}
		if s.handlers.Fetch != nil {
			ack = s.handlers.Fetch(ctx, msg)
		}
		out, err := wire.EncodeBody(wire.TypeFetchAck, ack)
		if err != nil {
			return err
		}
		return wire.WriteFrame(conn, out)

	case wire.TypeTopologyGossip:
		var msg wire.TopologyGossip
		if err := frame.DecodeBody(&msg); err != nil {
			return err
		}
		ack := wire.TopologyGossipAck{}
		if s.handlers.TopologyGossip != nil {
			ack = s.handlers.TopologyGossip(ctx, msg)
		}
		out, err := wire.EncodeBody(wire.TypeTopologyGossipAck, ack)
		if err != nil {
			return err
		}
		return wire.WriteFrame(conn, out)

	default:
		// Unknown frame types are read and dropped rather than killing
		// the connection.
		return nil
	}
}
