package replication

import "sync"

// Dedup remembers the (source_node_id, op_id) pairs a node has already
// applied so a replayed op from a different path (read-repair, a second
// sender) is a no-op instead of double-applying. It's a bounded FIFO, not
// a full log: eviction is acceptable because HLC-based conflict
// resolution is idempotent on its own — Dedup is purely an optimization
// to skip redundant storage calls, not a correctness requirement.
type Dedup struct {
	mu       sync.Mutex
	seen     map[string]struct{}
	order    []string
	capacity int
}

// NewDedup creates a Dedup that remembers up to capacity entries.
func NewDedup(capacity int) *Dedup {
	return &Dedup{seen: make(map[string]struct{}, capacity), capacity: capacity}
}

func dedupKey(sourceNodeID, opID string) string {
	return sourceNodeID + "\x00" + opID
}

// SeenOrMark reports whether (sourceNodeID, opID) was already recorded,
// and if not, records it.
func (d *Dedup) SeenOrMark(sourceNodeID, opID string) bool {
	key := dedupKey(sourceNodeID, opID)

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[key]; ok {
		return true
	}
	d.seen[key] = struct{}{}
	d.order = append(d.order, key)
	if len(d.order) > d.capacity {
		oldest := d.order[0]
		d.order = d.order[1:]
		delete(d.seen, oldest)
	}
	return false
}
