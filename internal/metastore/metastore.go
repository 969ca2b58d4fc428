// Package metastore persists the core's own control state — not document
// data, which lives in the storage engine — through GORM against a local
// sqlite file: the node's stable identity, a shard map snapshot row, the
// durable per-peer replication queue, and a migration task table.
// Everything here survives a process restart.
package metastore

import (
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NodeIdentity holds the single stable node_id a node keeps across
// restarts. There is always exactly one row.
type NodeIdentity struct {
	ID     uint   `gorm:"primaryKey"`
	NodeID string `gorm:"uniqueIndex"`
}

// ShardMapSnapshot is the last shard map version this node accepted from
// the coordinator. Payload holds whatever opaque bytes the caller passes,
// so the metastore package doesn't need to import shardmap; the
// coordinator saves only the version and leaves Payload empty.
type ShardMapSnapshot struct {
	ID      uint `gorm:"primaryKey"`
	Version int64
	Payload []byte
	SavedAt time.Time
}

// QueueEntry is one durable, not-yet-acknowledged replicated op bound for
// a specific peer. The replication engine appends on enqueue and deletes
// on ack; draining re-reads by PeerNodeID, ordered by SeqNo.
type QueueEntry struct {
	ID           uint `gorm:"primaryKey"`
	PeerNodeID   string `gorm:"index"`
	SeqNo        int64
	OpID         string
	Key          string
	SourceNodeID string
	HLCPhysMS    int64
	HLCLogical   uint32
	Collection   string
	ShardIndex   int
	Tombstone    bool
	Payload      []byte
	EnqueuedAt   time.Time
}

// MigrationTaskRow is a migration task's state machine position as a
// table row. The coordinator keeps its tasks in memory and neither writes
// nor reads this table, so in-flight tasks are not resumed after a
// restart.
type MigrationTaskRow struct {
	ID           string `gorm:"primaryKey"` // task_id
	Collection   string
	ShardIndex   int
	OldReplicas  string // comma-joined node ids
	NewReplicas  string
	State        string // pending, streaming, verifying, done, failed
	UpdatedAt    time.Time
}

// Store wraps the opened database handle and exposes the narrow set of
// queries the rest of the module needs; nothing outside this package
// touches *gorm.DB directly.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if absent) a sqlite-backed metastore at path and
// runs the auto-migration for every model.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("metastore: opening %s: %w", path, err)
	}
	if err := db.AutoMigrate(&NodeIdentity{}, &ShardMapSnapshot{}, &QueueEntry{}, &MigrationTaskRow{}); err != nil {
		return nil, fmt.Errorf("metastore: migrating schema: %w", err)
	}
	return &Store{db: db}, nil
}

// NodeID returns the persisted node id, creating a fresh one via
// generate if this is the first time the node has started.
func (s *Store) NodeID(generate func() string) (string, error) {
	var identity NodeIdentity
	err := s.db.First(&identity).Error
	if err == nil {
		return identity.NodeID, nil
	}
	if err != gorm.ErrRecordNotFound {
		return "", fmt.Errorf("metastore: reading node identity: %w", err)
	}
	identity = NodeIdentity{NodeID: generate()}
	if err := s.db.Create(&identity).Error; err != nil {
		return "", fmt.Errorf("metastore: persisting node identity: %w", err)
	}
	return identity.NodeID, nil
}

// SaveShardMapSnapshot overwrites the single persisted shard map row.
func (s *Store) SaveShardMapSnapshot(version int64, payload []byte) error {
	snap := ShardMapSnapshot{ID: 1, Version: version, Payload: payload, SavedAt: time.Now()}
	return s.db.Save(&snap).Error
}

// LoadShardMapSnapshot returns the last saved shard map, or
// gorm.ErrRecordNotFound if the node has never accepted one.
func (s *Store) LoadShardMapSnapshot() (ShardMapSnapshot, error) {
	var snap ShardMapSnapshot
	err := s.db.First(&snap, 1).Error
	return snap, err
}

// EnqueueReplication appends a durable queue entry for a peer.
func (s *Store) EnqueueReplication(entry QueueEntry) error {
	entry.EnqueuedAt = time.Now()
	return s.db.Create(&entry).Error
}

// DrainQueue returns up to limit queued entries for a peer, oldest first —
// the unit the replication drain loop batches and resends.
func (s *Store) DrainQueue(peerNodeID string, limit int) ([]QueueEntry, error) {
	var entries []QueueEntry
	err := s.db.Where("peer_node_id = ?", peerNodeID).Order("seq_no asc").Limit(limit).Find(&entries).Error
	return entries, err
}

// AckReplication removes a queue entry once the peer has confirmed receipt.
func (s *Store) AckReplication(id uint) error {
	return s.db.Delete(&QueueEntry{}, id).Error
}

// QueueDepth reports how many unacked entries remain for a peer, the
// number internal/metrics exposes as a gauge.
func (s *Store) QueueDepth(peerNodeID string) (int64, error) {
	var count int64
	err := s.db.Model(&QueueEntry{}).Where("peer_node_id = ?", peerNodeID).Count(&count).Error
	return count, err
}

// UpsertMigrationTask persists a migration task's current state.
func (s *Store) UpsertMigrationTask(task MigrationTaskRow) error {
	task.UpdatedAt = time.Now()
	return s.db.Save(&task).Error
}

// ActiveMigrationTasks returns every stored task whose state is not
// "done".
func (s *Store) ActiveMigrationTasks() ([]MigrationTaskRow, error) {
	var tasks []MigrationTaskRow
	err := s.db.Where("state <> ?", "done").Find(&tasks).Error
	return tasks, err
}

// Close releases the underlying sqlite connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
