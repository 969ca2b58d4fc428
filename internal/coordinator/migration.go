package coordinator

// MigrationState is a migration task's position in its state machine.
type MigrationState int

const (
	Pending MigrationState = iota
	Streaming
	Verifying
	Done
	Failed
)

func (s MigrationState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Streaming:
		return "streaming"
	case Verifying:
		return "verifying"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// MigrationTask streams one shard's documents from its old replica set to
// its new replica set: either a freshly-placed replica catching up after a
// node join/removal, or a full reshard moving data to a new shard index.
type MigrationTask struct {
	TaskID      string
	Collection  string
	ShardIndex  int
	OldReplicas []string
	NewReplicas []string
	State       MigrationState

	streamedKeys map[string]bool
	sourceCount  int
}

// NewMigrationTask creates a task in the Pending state.
func NewMigrationTask(taskID, collection string, shardIndex int, oldReplicas, newReplicas []string) *MigrationTask {
	return &MigrationTask{
		TaskID:       taskID,
		Collection:   collection,
		ShardIndex:   shardIndex,
		OldReplicas:  oldReplicas,
		NewReplicas:  newReplicas,
		State:        Pending,
		streamedKeys: map[string]bool{},
	}
}

// BeginStreaming transitions Pending -> Streaming.
func (t *MigrationTask) BeginStreaming() {
	if t.State == Pending {
		t.State = Streaming
	}
}

// RecordBatch marks a batch of keys as streamed to the destination. Replays
// of an already-recorded key are safe no-ops, satisfying the migration
// deduplication requirement.
func (t *MigrationTask) RecordBatch(keys []string) {
	for _, k := range keys {
		t.streamedKeys[k] = true
	}
}

// StreamedCount returns how many distinct keys have been streamed so far.
func (t *MigrationTask) StreamedCount() int {
	return len(t.streamedKeys)
}

// BeginVerifying transitions Streaming -> Verifying once every batch has
// been sent.
func (t *MigrationTask) BeginVerifying(sourceCount int) {
	t.sourceCount = sourceCount
	if t.State == Streaming {
		t.State = Verifying
	}
}

// VerifyResult is the outcome of comparing the destination's reported
// state against the source after a batch or a final pass.
type VerifyResult struct {
	DestCount       int
	SampleMismatches []string
}

// OK reports whether the destination fully matches the source: same
// cardinality and no sampled key came back wrong.
func (v VerifyResult) OK(sourceCount int) bool {
	return v.DestCount == sourceCount && len(v.SampleMismatches) == 0
}

// Advance applies a verification result: success flips Verifying -> Done,
// failure flips back to Streaming so the task re-streams rather than
// dropping data — never jumps to Failed just because one pass didn't
// match, since a mismatch is expected to self-heal on a retry.
func (t *MigrationTask) Advance(result VerifyResult) {
	if t.State != Verifying {
		return
	}
	if result.OK(t.sourceCount) {
		t.State = Done
		return
	}
	t.State = Streaming
}

// Abort marks the task permanently Failed — used only when the
// coordinator gives up (e.g. the destination replica itself died mid
// migration), not for an ordinary verification mismatch.
func (t *MigrationTask) Abort() {
	t.State = Failed
}
