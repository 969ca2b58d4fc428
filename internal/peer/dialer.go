package peer

import (
	"context"
	"fmt"
	"net"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/solisoft/solidb-sub010/internal/docvalue"
	"github.com/solisoft/solidb-sub010/internal/hlc"
	"github.com/solisoft/solidb-sub010/internal/replication"
	"github.com/solisoft/solidb-sub010/internal/wire"
)

// AddrResolver maps a node id to its replication-port address. The
// registry is the normal backing source.
type AddrResolver func(nodeID string) (addr string, ok bool)

// Dialer opens a fresh connection per call. Peer traffic is low enough
// volume (one replicate per write, one heartbeat per interval) that
// connection reuse isn't worth the pooling complexity it would add.
type Dialer struct {
	resolve AddrResolver
}

// NewDialer creates a Dialer that looks up peer addresses via resolve.
func NewDialer(resolve AddrResolver) *Dialer {
	return &Dialer{resolve: resolve}
}

func (d *Dialer) dial(ctx context.Context, nodeID string) (net.Conn, error) {
	addr, ok := d.resolve(nodeID)
	if !ok {
		return nil, fmt.Errorf("peer: no known address for node %q", nodeID)
	}
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("peer: dialing %s (%s): %w", nodeID, addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	if err := wire.WriteHandshake(conn); err != nil {
		conn.Close()
		return nil, err
	}
	if err := wire.ReadHandshake(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// SendReplicate implements replication.Transport over the wire protocol.
func (d *Dialer) SendReplicate(ctx context.Context, peerNodeID string, op replication.Op) error {
	conn, err := d.dial(ctx, peerNodeID)
	if err != nil {
		return err
	}
	defer conn.Close()

	msg := wire.Replicate{
		SourceNodeID: op.SourceNodeID,
		OpID:         op.OpID,
		HLC:          op.HLC,
		Collection:   op.Collection,
		ShardIndex:   op.ShardIndex,
		Payload:      op.Payload,
	}
	frame, err := wire.EncodeBody(wire.TypeReplicate, msg)
	if err != nil {
		return err
	}
	if err := wire.WriteFrame(conn, frame); err != nil {
		return err
	}

	r := wire.NewBufferedReader(conn)
	reply, err := wire.ReadFrame(r)
	if err != nil {
		return fmt.Errorf("peer: reading replicate ack from %s: %w", peerNodeID, err)
	}
	var ack wire.ReplicateAck
	if err := reply.DecodeBody(&ack); err != nil {
		return err
	}
	if ack.Status != wire.StatusOK {
		return fmt.Errorf("peer: %s rejected replicate %s: %s (%s)", peerNodeID, op.OpID, ack.Message, ack.Kind)
	}
	return nil
}

// SendHeartbeat pings a peer and returns its observed HLC for causal
// clock synchronization.
func (d *Dialer) SendHeartbeat(ctx context.Context, peerNodeID string, now hlc.Timestamp) (hlc.Timestamp, error) {
	conn, err := d.dial(ctx, peerNodeID)
	if err != nil {
		return hlc.Timestamp{}, err
	}
	defer conn.Close()

	frame, err := wire.EncodeBody(wire.TypeHeartbeat, wire.Heartbeat{HLC: now})
	if err != nil {
		return hlc.Timestamp{}, err
	}
	if err := wire.WriteFrame(conn, frame); err != nil {
		return hlc.Timestamp{}, err
	}

	r := wire.NewBufferedReader(conn)
	reply, err := wire.ReadFrame(r)
	if err != nil {
		return hlc.Timestamp{}, err
	}
	var ack wire.HeartbeatAck
	if err := reply.DecodeBody(&ack); err != nil {
		return hlc.Timestamp{}, err
	}
	return ack.HLC, nil
}

// FetchDocument implements core.FetchTransport: a direct lookup against
// one specific peer, used when Get's local candidate misses.
func (d *Dialer) FetchDocument(ctx context.Context, peerNodeID, collection, key string) (docvalue.Value, bool, error) {
	conn, err := d.dial(ctx, peerNodeID)
	if err != nil {
		return docvalue.Value{}, false, err
	}
	defer conn.Close()

	frame, err := wire.EncodeBody(wire.TypeFetch, wire.Fetch{Collection: collection, Key: key})
	if err != nil {
		return docvalue.Value{}, false, err
	}
	if err := wire.WriteFrame(conn, frame); err != nil {
		return docvalue.Value{}, false, err
	}

	r := wire.NewBufferedReader(conn)
	reply, err := wire.ReadFrame(r)
	if err != nil {
		return docvalue.Value{}, false, err
	}
	var ack wire.FetchAck
	if err := reply.DecodeBody(&ack); err != nil {
		return docvalue.Value{}, false, err
	}
	if ack.Status != wire.StatusOK {
		return docvalue.Value{}, false, fmt.Errorf("peer: fetch from %s failed: %s", peerNodeID, ack.Message)
	}
	if !ack.Found {
		return docvalue.Value{}, false, nil
	}
	var v docvalue.Value
	if err := msgpack.Unmarshal(ack.Payload, &v); err != nil {
		return docvalue.Value{}, false, err
	}
	return v, true, nil
}

// SendTopologyGossip pushes this node's known membership list to a peer
// so nodes added with add_node become known cluster-wide without a
// restart. The receiver only adds nodes; it never removes any.
func (d *Dialer) SendTopologyGossip(ctx context.Context, peerNodeID string, msg wire.TopologyGossip) (wire.TopologyGossipAck, error) {
	conn, err := d.dial(ctx, peerNodeID)
	if err != nil {
		return wire.TopologyGossipAck{}, err
	}
	defer conn.Close()

	frame, err := wire.EncodeBody(wire.TypeTopologyGossip, msg)
	if err != nil {
		return wire.TopologyGossipAck{}, err
	}
	if err := wire.WriteFrame(conn, frame); err != nil {
		return wire.TopologyGossipAck{}, err
	}

	r := wire.NewBufferedReader(conn)
	reply, err := wire.ReadFrame(r)
	if err != nil {
		return wire.TopologyGossipAck{}, err
	}
	var ack wire.TopologyGossipAck
	if err := reply.DecodeBody(&ack); err != nil {
		return wire.TopologyGossipAck{}, err
	}
	return ack, nil
}

// SendMigrationBatch ships one batch of documents to the destination
// replica of a migration task and returns its verification response.
func (d *Dialer) SendMigrationBatch(ctx context.Context, peerNodeID string, msg wire.MigrationStream) (wire.MigrationAck, error) {
	conn, err := d.dial(ctx, peerNodeID)
	if err != nil {
		return wire.MigrationAck{}, err
	}
	defer conn.Close()

	frame, err := wire.EncodeBody(wire.TypeMigrationStream, msg)
	if err != nil {
		return wire.MigrationAck{}, err
	}
	if err := wire.WriteFrame(conn, frame); err != nil {
		return wire.MigrationAck{}, err
	}

	r := wire.NewBufferedReader(conn)
	reply, err := wire.ReadFrame(r)
	if err != nil {
		return wire.MigrationAck{}, err
	}
	var ack wire.MigrationAck
	if err := reply.DecodeBody(&ack); err != nil {
		return wire.MigrationAck{}, err
	}
	return ack, nil
}
