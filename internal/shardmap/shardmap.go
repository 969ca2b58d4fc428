// Package shardmap implements the cluster's shard-to-replica map: the
// single source of truth for "which nodes hold shard N of collection C".
//
// The map is owned exclusively by the coordinator (internal/coordinator)
// and is read-only to every other component. It is never mutated in
// place: every topology change builds a brand new Map value and publishes
// it atomically, so concurrent readers always see either the whole old map
// or the whole new one, never a partial update.
package shardmap

import (
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// CollectionConfig is the per-collection sharding configuration.
type CollectionConfig struct {
	NumShards         int
	ReplicationFactor int
	ShardKeyField     string
}

// DefaultShardKeyField is used when a collection's config doesn't specify one.
const DefaultShardKeyField = "_key"

func (c CollectionConfig) shardKeyField() string {
	if c.ShardKeyField == "" {
		return DefaultShardKeyField
	}
	return c.ShardKeyField
}

// ShardKey identifies a shard of a collection.
type ShardKey struct {
	Collection string
	ShardIndex int
}

// MigratingEntry describes a shard that is mid-migration: both the old and
// new replica sets must be consulted by the router until the coordinator
// flips the entry over.
type MigratingEntry struct {
	OldReplicas []string
	NewReplicas []string
}

// ShardEntry is one shard's current replica assignment, with an optional
// in-flight migration overlay.
type ShardEntry struct {
	Stable    []string
	Migrating *MigratingEntry
}

// UnionReplicas returns every node that must be considered a valid
// destination for this shard right now: just Stable normally, or the union
// of old and new replicas while a migration is in flight.
func (e ShardEntry) UnionReplicas() []string {
	if e.Migrating == nil {
		return append([]string(nil), e.Stable...)
	}
	seen := make(map[string]bool)
	var out []string
	for _, lists := range [][]string{e.Migrating.OldReplicas, e.Migrating.NewReplicas} {
		for _, n := range lists {
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}
	return out
}

// Map is an immutable snapshot of the whole cluster's shard assignments.
// A new Map is built and published wholesale on every topology change;
// nothing in this type is ever mutated after construction.
type Map struct {
	Version     int64
	collections map[string]CollectionConfig
	shards      map[ShardKey]ShardEntry
}

// New creates an empty Map at version 0. Used at cluster bootstrap before
// any collection exists.
func New() *Map {
	return &Map{collections: map[string]CollectionConfig{}, shards: map[ShardKey]ShardEntry{}}
}

// WithCollection returns a new Map with the given collection configured and
// its shards assigned via Place. It does not mutate the receiver.
func (m *Map) WithCollection(name string, cfg CollectionConfig, nodeIDs []string) *Map {
	next := m.clone()
	next.collections[name] = cfg
	placement := Place(cfg.NumShards, cfg.ReplicationFactor, nodeIDs)
	for i, replicas := range placement {
		next.shards[ShardKey{Collection: name, ShardIndex: i}] = ShardEntry{Stable: replicas}
	}
	next.Version = m.Version + 1
	return next
}

// WithShardEntry returns a new Map with a single shard's entry replaced —
// the unit of change the coordinator applies as migrations complete.
func (m *Map) WithShardEntry(collection string, shardIndex int, entry ShardEntry) *Map {
	next := m.clone()
	next.shards[ShardKey{Collection: collection, ShardIndex: shardIndex}] = entry
	next.Version = m.Version + 1
	return next
}

func (m *Map) clone() *Map {
	next := &Map{
		Version:     m.Version,
		collections: make(map[string]CollectionConfig, len(m.collections)),
		shards:      make(map[ShardKey]ShardEntry, len(m.shards)),
	}
	for k, v := range m.collections {
		next.collections[k] = v
	}
	for k, v := range m.shards {
		next.shards[k] = v
	}
	return next
}

// CollectionConfig returns the configuration for a collection.
func (m *Map) CollectionConfig(collection string) (CollectionConfig, bool) {
	cfg, ok := m.collections[collection]
	return cfg, ok
}

// Collections returns every configured collection name, sorted.
func (m *Map) Collections() []string {
	names := make([]string, 0, len(m.collections))
	for name := range m.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ShardFor computes which shard a key belongs to within a collection.
func (m *Map) ShardFor(collection, key string) (int, error) {
	cfg, ok := m.collections[collection]
	if !ok {
		return 0, fmt.Errorf("shardmap: unknown collection %q", collection)
	}
	return ShardIndexFor(key, cfg.NumShards), nil
}

// ShardIndexFor hashes key with the one fixed stable_hash function and
// reduces it modulo numShards.
func ShardIndexFor(key string, numShards int) int {
	if numShards <= 1 {
		return 0
	}
	return int(StableHash(key) % uint64(numShards))
}

// StableHash is the single, permanently fixed 64-bit hash function used
// everywhere a document key or node id needs a deterministic numeric
// position (shard routing, placement, coordinator stagger delay). It must
// never change: changing it silently reshuffles every key's shard
// assignment and requires a full data rewrite to recover from.
func StableHash(s string) uint64 {
	return xxhash.Sum64String(s)
}

// ReplicasOf returns the current replica list for a shard, including any
// transitional (mid-migration) replicas.
func (m *Map) ReplicasOf(collection string, shardIndex int) []string {
	entry, ok := m.shards[ShardKey{Collection: collection, ShardIndex: shardIndex}]
	if !ok {
		return nil
	}
	return entry.UnionReplicas()
}

// StableReplicasOf returns only the committed (non-transitional) replica
// list — used by the coordinator when deciding the "final" placement.
func (m *Map) StableReplicasOf(collection string, shardIndex int) []string {
	entry, ok := m.shards[ShardKey{Collection: collection, ShardIndex: shardIndex}]
	if !ok {
		return nil
	}
	return append([]string(nil), entry.Stable...)
}

// ShardEntryOf returns the raw entry (stable + migrating) for a shard.
func (m *Map) ShardEntryOf(collection string, shardIndex int) (ShardEntry, bool) {
	entry, ok := m.shards[ShardKey{Collection: collection, ShardIndex: shardIndex}]
	return entry, ok
}

// Role identifies whether a node is the preferred primary or a plain
// replica for a shard.
type Role int

const (
	RoleReplica Role = iota
	RolePrimary
)

// AssignedShard describes one shard a node participates in.
type AssignedShard struct {
	Collection string
	ShardIndex int
	Role       Role
}

// AssignedShards returns every shard (across every collection) that
// nodeID currently holds a stable replica for, and whether it is the
// preferred primary (replica index 0) or a secondary replica.
func (m *Map) AssignedShards(nodeID string) []AssignedShard {
	var out []AssignedShard
	for key, entry := range m.shards {
		for i, n := range entry.Stable {
			if n == nodeID {
				role := RoleReplica
				if i == 0 {
					role = RolePrimary
				}
				out = append(out, AssignedShard{Collection: key.Collection, ShardIndex: key.ShardIndex, Role: role})
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Collection != out[j].Collection {
			return out[i].Collection < out[j].Collection
		}
		return out[i].ShardIndex < out[j].ShardIndex
	})
	return out
}

// Place computes the round-robin replica placement for every shard of a
// collection. Nodes need not be sorted by the caller; Place sorts its own
// copy to guarantee determinism regardless of caller order.
//
// The i-th replica of shard s sits at ordered position (s+i) mod numNodes.
// If there are fewer nodes than the replication factor, each shard is
// underfilled to numNodes replicas rather than failing — the cluster tops
// shards up as nodes join.
func Place(numShards, replicationFactor int, nodeIDs []string) [][]string {
	nodes := append([]string(nil), nodeIDs...)
	sort.Strings(nodes)

	result := make([][]string, numShards)
	if len(nodes) == 0 {
		return result
	}

	rf := replicationFactor
	if rf > len(nodes) {
		rf = len(nodes)
	}

	for s := 0; s < numShards; s++ {
		replicas := make([]string, 0, rf)
		for i := 0; i < rf; i++ {
			pos := (s + i) % len(nodes)
			replicas = append(replicas, nodes[pos])
		}
		result[s] = replicas
	}
	return result
}
