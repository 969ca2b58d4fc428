package wire

import "github.com/solisoft/solidb-sub010/internal/hlc"

// Heartbeat is the body of a TypeHeartbeat frame.
type Heartbeat struct {
	HLC hlc.Timestamp `msgpack:"hlc"`
}

// HeartbeatAck is the body of a TypeHeartbeatAck frame.
type HeartbeatAck struct {
	HLC hlc.Timestamp `msgpack:"hlc"`
}

// Replicate is the body of a TypeReplicate frame: a single replicated
// write shipped to one peer.
type Replicate struct {
	SourceNodeID string        `msgpack:"source_node_id"`
	OpID         string        `msgpack:"op_id"`
	HLC          hlc.Timestamp `msgpack:"hlc"`
	Collection   string        `msgpack:"collection"`
	ShardIndex   int           `msgpack:"shard_index"`
	Payload      []byte        `msgpack:"payload"`
}

// Status is the outcome field shared by every acknowledgement frame.
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// ReplicateAck is the body of a TypeReplicateAck frame.
type ReplicateAck struct {
	OpID   string `msgpack:"op_id"`
	Status Status `msgpack:"status"`
	Kind   string `msgpack:"kind,omitempty"`
	Message string `msgpack:"message,omitempty"`
}

// MigrationBatchEntry is one document carried inside a migration stream batch.
type MigrationBatchEntry struct {
	Key     string `msgpack:"key"`
	Payload []byte `msgpack:"payload"`
}

// MigrationStream is the body of a TypeMigrationStream frame.
type MigrationStream struct {
	TaskID  string                `msgpack:"task_id"`
	BatchID int                   `msgpack:"batch_id"`
	Batch   []MigrationBatchEntry `msgpack:"batch"`
}

// MigrationAck is the body of a TypeMigrationAck frame.
type MigrationAck struct {
	TaskID  string `msgpack:"task_id"`
	BatchID int    `msgpack:"batch_id"`
	Count   int    `msgpack:"count"`
	Status  Status `msgpack:"status"`
}

// Fetch is the body of a TypeFetch frame: a direct document lookup sent
// to a replica when a local Get misses, e.g. because its migration
// hasn't streamed that key yet.
type Fetch struct {
	Collection string `msgpack:"collection"`
	Key        string `msgpack:"key"`
}

// FetchAck is the body of a TypeFetchAck frame.
type FetchAck struct {
	Found   bool   `msgpack:"found"`
	Payload []byte `msgpack:"payload,omitempty"`
	Status  Status `msgpack:"status"`
	Message string `msgpack:"message,omitempty"`
}

// GossipNode is one node's address info as carried in a TopologyGossip
// frame — enough for the receiver to register it if it isn't already
// known.
type GossipNode struct {
	NodeID          string `msgpack:"node_id"`
	PublicAddr      string `msgpack:"public_addr"`
	ReplicationAddr string `msgpack:"replication_addr"`
}

// TopologyGossip is the body of a TypeTopologyGossip frame: a node pushes
// its full known membership list to a peer so a node added with add_node
// on one node becomes known to the rest of the cluster without a restart
// (the receiver only adds nodes, so a removal is not carried this way).
// MapVersion is advisory only, logged by
// the receiver to notice a coordinator that fell behind — shard map
// contents are never shipped, since every node recomputes the identical
// placement once its membership list matches the sender's.
type TopologyGossip struct {
	MapVersion int64        `msgpack:"map_version"`
	Nodes      []GossipNode `msgpack:"nodes"`
}

// TopologyGossipAck is the body of a TypeTopologyGossipAck frame: the
// receiver's own shard map version, for the sender to log on mismatch.
type TopologyGossipAck struct {
	MapVersion int64 `msgpack:"map_version"`
}
