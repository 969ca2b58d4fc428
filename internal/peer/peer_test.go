package peer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solisoft/solidb-sub010/internal/hlc"
	"github.com/solisoft/solidb-sub010/internal/replication"
	"github.com/solisoft/solidb-sub010/internal/wire"
)

func startTestServer(t *testing.T, handlers Handlers) string {
	t.Helper()
	srv, err := Listen("127.0.0.1:0", handlers)
	require.NoError(t, err)
	go srv.Serve()
	t.Cleanup(func() { srv.Close() })
	return srv.Addr().String()
}

func TestSendReplicateRoundTrip(t *testing.T) {
	var received wire.Replicate
	addr := startTestServer(t, Handlers{
		Replicate: func(ctx context.Context, msg wire.Replicate) wire.ReplicateAck {
			received = msg
			return wire.ReplicateAck{OpID: msg.OpID, Status: wire.StatusOK}
		},
	})

	dialer := NewDialer(func(nodeID string) (string, bool) {
		if nodeID == "n2" {
			return addr, true
		}
		return "", false
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	op := replication.Op{SourceNodeID: "n1", OpID: "op-1", Collection: "docs", ShardIndex: 0, Payload: []byte("x")}
	err := dialer.SendReplicate(ctx, "n2", op)
	require.NoError(t, err)
	assert.Equal(t, "op-1", received.OpID)
}

func TestSendReplicateUnknownPeerFails(t *testing.T) {
	dialer := NewDialer(func(nodeID string) (string, bool) { return "", false })
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := dialer.SendReplicate(ctx, "ghost", replication.Op{OpID: "op-1"})
	assert.Error(t, err)
}

func TestSendReplicateSurfacesRejection(t *testing.T) {
	addr := startTestServer(t, Handlers{
		Replicate: func(ctx context.Context, msg wire.Replicate) wire.ReplicateAck {
			return wire.ReplicateAck{OpID: msg.OpID, Status: wire.StatusError, Kind: "consistency", Message: "stale write"}
		},
	})
	dialer := NewDialer(func(string) (string, bool) { return addr, true })
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := dialer.SendReplicate(ctx, "n2", replication.Op{OpID: "op-1"})
	assert.ErrorContains(t, err, "stale write")
}

func TestSendHeartbeatRoundTrip(t *testing.T) {
	addr := startTestServer(t, Handlers{
		Heartbeat: func(ctx context.Context, from hlc.Timestamp) hlc.Timestamp {
			return hlc.Timestamp{PhysicalMS: from.PhysicalMS + 1, Logical: 0}
		},
	})
	dialer := NewDialer(func(string) (string, bool) { return addr, true })
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ack, err := dialer.SendHeartbeat(ctx, "n2", hlc.Timestamp{PhysicalMS: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(11), ack.PhysicalMS)
}

func TestFetchDocumentRoundTrip(t *testing.T) {
	addr := startTestServer(t, Handlers{
		Fetch: func(ctx context.Context, msg wire.Fetch) wire.FetchAck {
			if msg.Key != "k1" {
				return wire.FetchAck{Status: wire.StatusOK, Found: false}
			}
			return wire.FetchAck{Status: wire.StatusOK, Found: true, Payload: []byte("\x81\xa4name\xa5alice")}
		},
	})
	dialer := NewDialer(func(string) (string, bool) { return addr, true })
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, found, err := dialer.FetchDocument(ctx, "n2", "docs", "missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSendTopologyGossipRoundTrip(t *testing.T) {
	var received wire.TopologyGossip
	addr := startTestServer(t, Handlers{
		TopologyGossip: func(ctx context.Context, msg wire.TopologyGossip) wire.TopologyGossipAck {
			received = msg
			return wire.TopologyGossipAck{MapVersion: 7}
		},
	})
	dialer := NewDialer(func(string) (string, bool) { return addr, true })
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ack, err := dialer.SendTopologyGossip(ctx, "n2", wire.TopologyGossip{
		MapVersion: 3,
		Nodes:      []wire.GossipNode{{NodeID: "n3", PublicAddr: "localhost:8082", ReplicationAddr: "localhost:9092"}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), ack.MapVersion)
	require.Len(t, received.Nodes, 1)
	assert.Equal(t, "n3", received.Nodes[0].NodeID)
}

func TestSendMigrationBatchRoundTrip(t *testing.T) {
	addr := startTestServer(t, Handlers{
		MigrationStream: func(ctx context.Context, msg wire.MigrationStream) wire.MigrationAck {
			return wire.MigrationAck{TaskID: msg.TaskID, BatchID: msg.BatchID, Count: len(msg.Batch), Status: wire.StatusOK}
		},
	})
	dialer := NewDialer(func(string) (string, bool) { return addr, true })
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ack, err := dialer.SendMigrationBatch(ctx, "n2", wire.MigrationStream{
		TaskID:  "task-1",
		BatchID: 0,
		Batch:   []wire.MigrationBatchEntry{{Key: "k1", Payload: []byte("v1")}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, ack.Count)
}
