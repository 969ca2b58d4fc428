package metastore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNodeIDIsGeneratedOnceAndPersists(t *testing.T) {
	s := openTestStore(t)

	calls := 0
	gen := func() string { calls++; return "generated-id" }

	id1, err := s.NodeID(gen)
	require.NoError(t, err)
	id2, err := s.NodeID(gen)
	require.NoError(t, err)

	assert.Equal(t, "generated-id", id1)
	assert.Equal(t, id1, id2)
	assert.Equal(t, 1, calls)
}

func TestShardMapSnapshotRoundTrip(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.SaveShardMapSnapshot(3, []byte("payload-v3")))
	snap, err := s.LoadShardMapSnapshot()
	require.NoError(t, err)
	assert.Equal(t, int64(3), snap.Version)
	assert.Equal(t, []byte("payload-v3"), snap.Payload)

	require.NoError(t, s.SaveShardMapSnapshot(4, []byte("payload-v4")))
	snap, err = s.LoadShardMapSnapshot()
	require.NoError(t, err)
	assert.Equal(t, int64(4), snap.Version)
}

func TestReplicationQueueDrainAndAck(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.EnqueueReplication(QueueEntry{PeerNodeID: "n2", SeqNo: 1, OpID: "op1"}))
	require.NoError(t, s.EnqueueReplication(QueueEntry{PeerNodeID: "n2", SeqNo: 2, OpID: "op2"}))
	require.NoError(t, s.EnqueueReplication(QueueEntry{PeerNodeID: "n3", SeqNo: 1, OpID: "op3"}))

	depth, err := s.QueueDepth("n2")
	require.NoError(t, err)
	assert.Equal(t, int64(2), depth)

	entries, err := s.DrainQueue("n2", 50)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "op1", entries[0].OpID)

	require.NoError(t, s.AckReplication(entries[0].ID))
	depth, err = s.QueueDepth("n2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), depth)
}

func TestMigrationTaskLifecycle(t *testing.T) {
	s := openTestStore(t)

	task := MigrationTaskRow{ID: "task-1", Collection: "docs", ShardIndex: 2, State: "pending"}
	require.NoError(t, s.UpsertMigrationTask(task))

	active, err := s.ActiveMigrationTasks()
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "pending", active[0].State)

	task.State = "done"
	require.NoError(t, s.UpsertMigrationTask(task))

	active, err = s.ActiveMigrationTasks()
	require.NoError(t, err)
	assert.Empty(t, active)
}
