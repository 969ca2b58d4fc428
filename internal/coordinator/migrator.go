package coordinator

import (
	"context"
	"sort"

	"github.com/solisoft/solidb-sub010/internal/storage"
	"github.com/solisoft/solidb-sub010/internal/wire"
)

// batchSize bounds how many documents travel in one migration_stream
// frame, keeping a single migration batch well under the wire protocol's
// frame cap even for large documents.
const batchSize = 50

// MigrationTransport ships one batch of a migration task to its
// destination replica. internal/peer's Dialer implements this.
type MigrationTransport interface {
	SendMigrationBatch(ctx context.Context, peerNodeID string, msg wire.MigrationStream) (wire.MigrationAck, error)
}

// Migrator drives the MigrationTask state machines a Coordinator has
// scheduled: it streams a source replica's documents to every new
// replica that doesn't already hold them, verifies the destination
// landed everything, and hands a Done task back to the coordinator to
// finalize placement.
type Migrator struct {
	nodeID    string
	coord     *Coordinator
	local     storage.Engine
	transport MigrationTransport
}

// NewMigrator creates a Migrator bound to one node's local storage and
// peer transport.
func NewMigrator(nodeID string, coord *Coordinator, local storage.Engine, transport MigrationTransport) *Migrator {
	return &Migrator{nodeID: nodeID, coord: coord, local: local, transport: transport}
}

// RunOnce advances every active migration task by one step. Call it from
// a ticker; it is safe to call even when there is nothing to do.
func (m *Migrator) RunOnce(ctx context.Context) {
	for _, task := range m.coord.ActiveTasks() {
		switch task.State {
		case Pending:
			task.BeginStreaming()
		case Streaming:
			m.stream(ctx, task)
		case Verifying:
			// Verification is driven by the ack received on the last
			// batch of the current pass; stream() re-enters Streaming
			// whenever Advance didn't reach Done, so there is nothing
			// additional to do here besides waiting for the next pass.
		case Done:
			m.coord.CompleteMigration(task)
		case Failed:
			// Terminal; an operator has to intervene (evict the stuck
			// destination and re-trigger rebalance).
		}
	}
}

func (m *Migrator) stream(ctx context.Context, task *MigrationTask) {
	if len(task.OldReplicas) == 0 {
		// No prior source holds this shard's data — nothing to copy.
		task.BeginVerifying(0)
		task.Advance(VerifyResult{DestCount: 0})
		return
	}
	if !contains(task.OldReplicas, m.nodeID) {
		// Not a source for this task; some other replica streams it.
		return
	}

	ns := storage.Namespace(task.Collection, task.ShardIndex)
	all, err := m.local.Scan(ctx, ns)
	if err != nil {
		return
	}

	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	destinations := make([]string, 0, len(task.NewReplicas))
	for _, n := range task.NewReplicas {
		if n != m.nodeID {
			destinations = append(destinations, n)
		}
	}

	var lastAck wire.MigrationAck
	batchID := 0
	for start := 0; start < len(keys); start += batchSize {
		end := start + batchSize
		if end > len(keys) {
			end = len(keys)
		}
		batch := make([]wire.MigrationBatchEntry, 0, end-start)
		for _, k := range keys[start:end] {
			batch = append(batch, wire.MigrationBatchEntry{Key: k, Payload: all[k].Payload})
		}

		msg := wire.MigrationStream{TaskID: task.TaskID, BatchID: batchID, Batch: batch}
		for _, dest := range destinations {
			ack, err := m.transport.SendMigrationBatch(ctx, dest, msg)
			if err != nil {
				// Destination unreachable this pass; retry on the next
				// RunOnce tick rather than failing the task outright.
				return
			}
			lastAck = ack
		}
		task.RecordBatch(keys[start:end])
		batchID++
	}

	task.BeginVerifying(len(keys))
	task.Advance(VerifyResult{DestCount: lastAck.Count})
}

// ApplyMigrationBatch is the destination side of a migration: it resolves
// the inbound frame's task id to a namespace and writes every entry
// straight into local storage, skipping HLC conflict resolution since a
// migration batch is a bulk catch-up that ordinary replication will
// reconcile going forward.
func (m *Migrator) ApplyMigrationBatch(ctx context.Context, msg wire.MigrationStream) wire.MigrationAck {
	task, ok := m.coord.Task(msg.TaskID)
	if !ok {
		return wire.MigrationAck{TaskID: msg.TaskID, BatchID: msg.BatchID, Status: wire.StatusError}
	}

	ns := storage.Namespace(task.Collection, task.ShardIndex)
	if err := m.local.CreateNamespace(ctx, ns); err != nil && err != storage.ErrNamespaceExists {
		return wire.MigrationAck{TaskID: msg.TaskID, BatchID: msg.BatchID, Status: wire.StatusError}
	}

	var source string
	if len(task.OldReplicas) > 0 {
		source = task.OldReplicas[0]
	}
	for _, entry := range msg.Batch {
		rec := storage.Record{Payload: entry.Payload, SourceNodeID: source}
		if err := m.local.Put(ctx, ns, entry.Key, rec); err != nil {
			return wire.MigrationAck{TaskID: msg.TaskID, BatchID: msg.BatchID, Status: wire.StatusError}
		}
	}

	all, err := m.local.Scan(ctx, ns)
	count := len(all)
	if err != nil {
		count = len(msg.Batch)
	}
	return wire.MigrationAck{TaskID: msg.TaskID, BatchID: msg.BatchID, Count: count, Status: wire.StatusOK}
}
