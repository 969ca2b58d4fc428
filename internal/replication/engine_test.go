package replication

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solisoft/solidb-sub010/internal/hlc"
	"github.com/solisoft/solidb-sub010/internal/metastore"
	"github.com/solisoft/solidb-sub010/internal/storage"
	"github.com/solisoft/solidb-sub010/internal/storage/memengine"
)

type fakeTransport struct {
	mu       sync.Mutex
	fail     map[string]bool
	received []string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{fail: map[string]bool{}}
}

func (f *fakeTransport) SendReplicate(ctx context.Context, peerNodeID string, op Op) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.received = append(f.received, peerNodeID)
	if f.fail[peerNodeID] {
		return errors.New("unreachable")
	}
	return nil
}

func newTestEngine(t *testing.T, transport Transport) (*Engine, storage.Engine, *metastore.Store) {
	t.Helper()
	local := memengine.New()
	require.NoError(t, local.CreateNamespace(context.Background(), storage.Namespace("docs", 0)))
	store, err := metastore.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return New("n1", local, store, transport, 1000), local, store
}

func TestReplicateSucceedsOnLocalApply(t *testing.T) {
	engine, local, _ := newTestEngine(t, newFakeTransport())

	op := Op{SourceNodeID: "n1", OpID: "op1", Key: "k1", HLC: hlc.Timestamp{PhysicalMS: 1}, Collection: "docs", ShardIndex: 0, Payload: []byte("v1")}
	outcome, done := engine.Replicate(context.Background(), op, []string{"n1"})
	<-done

	assert.Equal(t, Success, outcome)
	rec, err := local.Get(context.Background(), storage.Namespace("docs", 0), "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), rec.Payload)
}

func TestReplicateFallsBackToQueueOnTransportFailure(t *testing.T) {
	transport := newFakeTransport()
	transport.fail["n2"] = true
	engine, _, store := newTestEngine(t, transport)

	op := Op{SourceNodeID: "n1", OpID: "op1", Key: "k1", HLC: hlc.Timestamp{PhysicalMS: 1}, Collection: "docs", ShardIndex: 0, Payload: []byte("v1")}
	outcome, done := engine.Replicate(context.Background(), op, []string{"n1", "n2"})
	<-done

	assert.Equal(t, Success, outcome)
	depth, err := store.QueueDepth("n2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), depth)
}

func TestReplicateAllFailedWhenEveryReplicaOnlyEnqueues(t *testing.T) {
	transport := newFakeTransport()
	transport.fail["n2"] = true
	transport.fail["n3"] = true
	engine, _, _ := newTestEngine(t, transport)

	op := Op{SourceNodeID: "n1", OpID: "op1", Key: "k1", HLC: hlc.Timestamp{PhysicalMS: 1}, Collection: "docs", ShardIndex: 0, Payload: []byte("v1")}
	outcome, done := engine.Replicate(context.Background(), op, []string{"n2", "n3"})
	<-done

	assert.Equal(t, AllFailed, outcome)
}

func TestApplyLocalDeduplicatesRepeatedOp(t *testing.T) {
	engine, local, _ := newTestEngine(t, newFakeTransport())
	ctx := context.Background()
	op := Op{SourceNodeID: "n1", OpID: "op1", Key: "k1", HLC: hlc.Timestamp{PhysicalMS: 5}, Collection: "docs", ShardIndex: 0, Payload: []byte("first")}

	applied, err := engine.ApplyLocal(ctx, op)
	require.NoError(t, err)
	assert.True(t, applied)

	op2 := op
	op2.Payload = []byte("second")
	applied, err = engine.ApplyLocal(ctx, op2)
	require.NoError(t, err)
	assert.True(t, applied) // dedup reports "handled", not "changed"

	rec, err := local.Get(ctx, storage.Namespace("docs", 0), "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), rec.Payload) // second op never actually applied
}

func TestApplyLocalOlderHLCLoses(t *testing.T) {
	engine, local, _ := newTestEngine(t, newFakeTransport())
	ctx := context.Background()

	newer := Op{SourceNodeID: "n1", OpID: "op-new", Key: "k1", HLC: hlc.Timestamp{PhysicalMS: 10}, Collection: "docs", ShardIndex: 0, Payload: []byte("newer")}
	_, err := engine.ApplyLocal(ctx, newer)
	require.NoError(t, err)

	older := Op{SourceNodeID: "n1", OpID: "op-old", Key: "k1", HLC: hlc.Timestamp{PhysicalMS: 5}, Collection: "docs", ShardIndex: 0, Payload: []byte("older")}
	_, err = engine.ApplyLocal(ctx, older)
	require.NoError(t, err)

	rec, err := local.Get(ctx, storage.Namespace("docs", 0), "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("newer"), rec.Payload)
}

func TestApplyLocalEqualHLCTieBreaksBySourceNodeID(t *testing.T) {
	engine, local, _ := newTestEngine(t, newFakeTransport())
	ctx := context.Background()

	opA := Op{SourceNodeID: "a", OpID: "op-a", Key: "k1", HLC: hlc.Timestamp{PhysicalMS: 10}, Collection: "docs", ShardIndex: 0, Payload: []byte("from-a")}
	opZ := Op{SourceNodeID: "z", OpID: "op-z", Key: "k1", HLC: hlc.Timestamp{PhysicalMS: 10}, Collection: "docs", ShardIndex: 0, Payload: []byte("from-z")}

	_, err := engine.ApplyLocal(ctx, opA)
	require.NoError(t, err)
	_, err = engine.ApplyLocal(ctx, opZ)
	require.NoError(t, err)

	rec, err := local.Get(ctx, storage.Namespace("docs", 0), "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("from-z"), rec.Payload) // "z" > "a" wins the tie
}

type fakeHealth struct {
	healthy map[string]bool
}

func (f *fakeHealth) IsHealthy(id string) bool { return f.healthy[id] }

func TestDrainerSendsQueuedEntriesAndAcks(t *testing.T) {
	transport := newFakeTransport()
	engine, _, store := newTestEngine(t, transport)

	require.NoError(t, store.EnqueueReplication(metastore.QueueEntry{PeerNodeID: "n2", SeqNo: 1, OpID: "op1", Key: "k1", Collection: "docs", ShardIndex: 0}))

	health := &fakeHealth{healthy: map[string]bool{"n2": true}}
	var sleeps []time.Duration
	fakeSleep := func(d time.Duration) { sleeps = append(sleeps, d); panic("stop") }

	drainer := NewDrainer("n2", engine, health, fakeSleep)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	func() {
		defer func() { recover() }()
		drainer.Run(ctx)
	}()

	depth, err := store.QueueDepth("n2")
	require.NoError(t, err)
	assert.Equal(t, int64(0), depth)
}
