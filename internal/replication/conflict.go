package replication

import "github.com/solisoft/solidb-sub010/internal/storage"

// ShouldApply decides whether an incoming write wins against what's
// currently stored. A strictly newer HLC always wins; a strictly older
// one is dropped; an equal HLC is broken by comparing source node ids so
// every replica reaches the same decision without coordination.
func ShouldApply(incomingPhysMS int64, incomingLogical uint32, incomingSourceNodeID string, stored storage.Record, storedExists bool) bool {
	if !storedExists {
		return true
	}
	switch {
	case incomingPhysMS > stored.HLCPhysMS:
		return true
	case incomingPhysMS < stored.HLCPhysMS:
		return false
	case incomingLogical > stored.HLCLogical:
		return true
	case incomingLogical < stored.HLCLogical:
		return false
	default:
		return incomingSourceNodeID > stored.SourceNodeID
	}
}
