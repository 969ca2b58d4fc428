package core

import (
	"context"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/solisoft/solidb-sub010/internal/docvalue"
	"github.com/solisoft/solidb-sub010/internal/replication"
)

// Tx buffers writes scoped to a single shard of a single collection.
// Every write is checked against the shard the transaction opened on; a
// write that resolves to a different shard fails immediately with
// ErrCrossShardTransaction rather than being silently accepted.
type Tx struct {
	node       *Node
	collection string
	shardIndex int
	bound      bool
	pending    []replication.Op
	replicas   []string
}

// BeginTx opens a transaction scoped to collection. The shard it's bound
// to is fixed on the first write.
func (n *Node) BeginTx(collection string) *Tx {
	return &Tx{node: n, collection: collection}
}

// Put buffers a write inside the transaction. The first call fixes the
// transaction's shard; every subsequent call must resolve to the same
// shard or the transaction is poisoned and Commit will fail.
func (t *Tx) Put(ctx context.Context, doc docvalue.Value) error {
	shardIdx, replicas, outDoc, err := t.node.router.RouteWrite(ctx, t.collection, doc)
	if err != nil {
		return translateRoutingErr(err)
	}
	if !t.bound {
		t.shardIndex = shardIdx
		t.replicas = replicas
		t.bound = true
	} else if shardIdx != t.shardIndex {
		return ErrCrossShardTransaction
	}

	field, err := t.node.router.ShardKeyField(t.collection)
	if err != nil {
		return translateRoutingErr(err)
	}
	key, err := shardKeyOf(outDoc, field)
	if err != nil {
		return ErrInvalidShardKey
	}
	payload, err := msgpack.Marshal(outDoc)
	if err != nil {
		return err
	}

	t.pending = append(t.pending, replication.Op{
		SourceNodeID: t.node.ID,
		OpID:         uuid.NewString(),
		Key:          key,
		HLC:          t.node.clock.Now(),
		Collection:   t.collection,
		ShardIndex:   shardIdx,
		Payload:      payload,
	})
	return nil
}

// Commit replicates every buffered op in order. A failure partway through
// leaves earlier ops applied — transactions here provide atomic shard
// scoping, not atomic all-or-nothing apply across ops.
func (t *Tx) Commit(ctx context.Context) error {
	if len(t.pending) == 0 {
		return nil
	}
	for _, op := range t.pending {
		outcome, _ := t.node.repl.Replicate(ctx, op, t.replicas)
		if outcome == replication.AllFailed {
			return ErrClusterDegraded
		}
	}
	t.pending = nil
	return nil
}

// Rollback discards every buffered, not-yet-committed op.
func (t *Tx) Rollback() {
	t.pending = nil
}
