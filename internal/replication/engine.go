package replication

import (
	"context"
	"sync"

	"github.com/solisoft/solidb-sub010/internal/hlc"
	"github.com/solisoft/solidb-sub010/internal/metastore"
	"github.com/solisoft/solidb-sub010/internal/storage"
)

// Transport sends a single op to a remote peer and waits for its
// acknowledgement. internal/peer's Dialer implements this over the
// internal/wire framing protocol; tests substitute a fake.
type Transport interface {
	SendReplicate(ctx context.Context, peerNodeID string, op Op) error
}

// Engine fans a write out to every replica of its shard: the local apply
// and every remote send run concurrently, and a remote replica whose send
// fails falls back to the durable per-peer queue instead of blocking the
// caller. Engine does not consult node health: a replica already known
// Failed is still sent to first and is queued only once that send fails.
type Engine struct {
	localNodeID string
	local       storage.Engine
	queue       *metastore.Store
	transport   Transport
	dedup       *Dedup
}

// New creates an Engine. dedupCapacity bounds the idempotence cache; a
// few thousand entries comfortably covers in-flight replication traffic.
func New(localNodeID string, local storage.Engine, queue *metastore.Store, transport Transport, dedupCapacity int) *Engine {
	return &Engine{
		localNodeID: localNodeID,
		local:       local,
		queue:       queue,
		transport:   transport,
		dedup:       NewDedup(dedupCapacity),
	}
}

type fanoutResult struct {
	peer    string
	applied bool
	err     error
}

// Replicate ships op to every node in replicas. It returns as soon as one
// replica (local or remote) has durably applied the op; the remaining
// fan-out continues in the background via the returned done channel,
// which callers may ignore.
func (e *Engine) Replicate(ctx context.Context, op Op, replicas []string) (Outcome, <-chan struct{}) {
	done := make(chan struct{})
	results := make(chan fanoutResult, len(replicas))

	var wg sync.WaitGroup
	for _, peer := range replicas {
		peer := peer
		wg.Add(1)
		go func() {
			defer wg.Done()
			if peer == e.localNodeID {
				applied, err := e.ApplyLocal(ctx, op)
				results <- fanoutResult{peer: peer, applied: applied, err: err}
				return
			}
			err := e.transport.SendReplicate(ctx, peer, op)
			if err != nil {
				enqErr := e.enqueue(peer, op)
				results <- fanoutResult{peer: peer, applied: false, err: enqErr}
				return
			}
			results <- fanoutResult{peer: peer, applied: true, err: nil}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
		close(done)
	}()

	outcome := AllFailed
	anyApplied := false
	allHandled := true
	collected := 0
	for collected < len(replicas) {
		r, ok := <-results
		if !ok {
			break
		}
		collected++
		if r.applied {
			anyApplied = true
			break
		}
		if r.err != nil {
			allHandled = false
		}
	}
	if anyApplied {
		outcome = Success
	} else if allHandled && len(replicas) > 0 {
		// every replica was enqueued, none applied: still a failure per
		// the write-success contract (pure "all enqueued" is not success).
		outcome = AllFailed
	}
	return outcome, done
}

func (e *Engine) enqueue(peerNodeID string, op Op) error {
	return e.queue.EnqueueReplication(metastore.QueueEntry{
		PeerNodeID:   peerNodeID,
		SeqNo:        op.HLC.PhysicalMS<<20 | int64(op.HLC.Logical),
		OpID:         op.OpID,
		Key:          op.Key,
		SourceNodeID: op.SourceNodeID,
		HLCPhysMS:    op.HLC.PhysicalMS,
		HLCLogical:   op.HLC.Logical,
		Collection:   op.Collection,
		ShardIndex:   op.ShardIndex,
		Tombstone:    op.Tombstone,
		Payload:      op.Payload,
	})
}

func opFromQueueEntry(e metastore.QueueEntry) Op {
	return Op{
		SourceNodeID: e.SourceNodeID,
		OpID:         e.OpID,
		Key:          e.Key,
		HLC:          hlc.Timestamp{PhysicalMS: e.HLCPhysMS, Logical: e.HLCLogical},
		Collection:   e.Collection,
		ShardIndex:   e.ShardIndex,
		Payload:      e.Payload,
		Tombstone:    e.Tombstone,
	}
}

// ApplyLocal applies op to the local storage engine, running the
// idempotence check and the HLC conflict rule. It reports whether the op
// is handled: true when it was written, and also when it was deduplicated
// as already seen; false when it lost the conflict check against an
// existing record.
func (e *Engine) ApplyLocal(ctx context.Context, op Op) (bool, error) {
	if e.dedup.SeenOrMark(op.SourceNodeID, op.OpID) {
		return true, nil
	}

	ns := storage.Namespace(op.Collection, op.ShardIndex)
	existing, err := e.local.Get(ctx, ns, op.Key)
	existed := true
	if err == storage.ErrNotFound {
		existed = false
	} else if err != nil {
		return false, err
	}

	if !ShouldApply(op.HLC.PhysicalMS, op.HLC.Logical, op.SourceNodeID, existing, existed) {
		return false, nil
	}

	rec := storage.Record{
		Payload:      op.Payload,
		HLCPhysMS:    op.HLC.PhysicalMS,
		HLCLogical:   op.HLC.Logical,
		SourceNodeID: op.SourceNodeID,
		Tombstone:    op.Tombstone,
	}
	// A delete is just a write of a tombstone record, so it goes through
	// the same conflict-checked Put path rather than storage.Engine's
	// unconditional Delete.
	if err := e.local.Put(ctx, ns, op.Key, rec); err != nil {
		return false, err
	}
	return true, nil
}
