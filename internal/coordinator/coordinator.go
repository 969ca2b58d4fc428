// Package coordinator implements the shard coordinator: the sole mutator
// of the shard map. It reacts to node health transitions and explicit
// admin operations (add_node, remove_node, reshard), schedules migration
// tasks to keep data on the right replicas, and serializes its own
// decisions across the cluster with a staggered startup delay and a
// per-node circuit breaker rather than a consensus protocol.
package coordinator

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/solisoft/solidb-sub010/internal/metastore"
	"github.com/solisoft/solidb-sub010/internal/registry"
	"github.com/solisoft/solidb-sub010/internal/shardmap"
)

// StaggerWindow bounds the per-node startup delay computed from
// hash(node_id): every node probes at a different offset inside this
// window so two nodes rarely act on the same topology event at once.
const StaggerWindow = 5 * time.Second

// StaggerDelay returns a deterministic delay in [0, StaggerWindow) derived
// from nodeID, so restarting a node doesn't change its offset.
func StaggerDelay(nodeID string) time.Duration {
	h := shardmap.StableHash(nodeID)
	return time.Duration(h % uint64(StaggerWindow.Nanoseconds()))
}

// Coordinator is the single writer of the cluster's shard map. Exactly
// one Coordinator per node exists, but only one across the cluster is
// expected to actually act on any given topology event — enforced by
// StaggerDelay plus the circuit breaker, not by consensus.
//
// A Coordinator is reached from two independent goroutines in normal
// operation: Run's transition-consuming loop, and the HTTP admin
// handlers (remove_node/rebalance/reshard/add_node) calling straight
// into it from gin's per-request goroutines. mu guards tasks and paused
// against that concurrency the same way internal/registry.Registry
// guards its own node map.
type Coordinator struct {
	nodeID  string
	shards  *shardmap.Store
	nodes   *registry.Registry
	meta    *metastore.Store
	breaker *CircuitBreaker

	replicationFactor int
	failureThreshold  time.Duration

	mu     sync.Mutex
	paused bool
	tasks  map[string]*MigrationTask
}

// Config carries the tunables a Coordinator needs at construction.
type Config struct {
	ReplicationFactor int
	FailureThreshold  time.Duration
	BreakerCooldown   time.Duration
}

// New creates a Coordinator bound to its node's shard map store, node
// registry, and metastore.
func New(nodeID string, shards *shardmap.Store, nodes *registry.Registry, meta *metastore.Store, cfg Config) *Coordinator {
	return &Coordinator{
		nodeID:            nodeID,
		shards:            shards,
		nodes:             nodes,
		meta:              meta,
		breaker:           NewCircuitBreaker(cfg.BreakerCooldown),
		replicationFactor: cfg.ReplicationFactor,
		failureThreshold:  cfg.FailureThreshold,
		tasks:             map[string]*MigrationTask{},
	}
}

// Run watches the registry's transition channel and reacts to health
// changes until ctx is cancelled. Callers start it once, after waiting
// out this node's stagger delay.
func (c *Coordinator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case tr := <-c.nodes.Transitions():
			c.handleTransition(tr)
		}
	}
}

func (c *Coordinator) handleTransition(tr registry.Transition) {
	if !c.breaker.Allow(tr.NodeID) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case tr.New == registry.Healthy && (tr.Old == registry.Joining || tr.Old == registry.Suspect):
		c.onNodeHealthy(tr.NodeID)
	case tr.New == registry.Failed:
		c.onNodeFailed(tr.NodeID)
		// A node going Failed is the coordination failure the breaker
		// guards against: if it flaps back healthy soon after, repeated
		// eviction/rebalance churn against it is suppressed until cooldown.
		c.breaker.Trip(tr.NodeID)
	}
	c.updatePauseState()
}

// updatePauseState pauses resharding (not health-driven failover) while
// the cluster has many Suspect nodes.
func (c *Coordinator) updatePauseState() {
	all := c.nodes.All()
	suspect := 0
	for _, n := range all {
		if n.State == registry.Suspect {
			suspect++
		}
	}
	c.paused = len(all) > 0 && suspect*2 >= len(all)
}

// onNodeHealthy recomputes placement for every collection after a new
// node becomes available, scheduling a migration for every shard whose
// new replica set now includes it. The old map stays authoritative for a
// shard (as a transitional union) until that shard's migration is Done.
func (c *Coordinator) onNodeHealthy(nodeID string) {
	m := c.shards.Load()
	nodeIDs := c.nodes.NodeIDs()

	next := m
	for _, collection := range m.Collections() {
		cfg, _ := m.CollectionConfig(collection)
		placement := shardmap.Place(cfg.NumShards, cfg.ReplicationFactor, nodeIDs)
		for shardIdx, newReplicas := range placement {
			oldReplicas := m.StableReplicasOf(collection, shardIdx)
			if sameSet(oldReplicas, newReplicas) {
				continue
			}
			if !contains(newReplicas, nodeID) {
				continue
			}
			taskID := collection + "/" + strconv.Itoa(shardIdx) + "@" + nodeID
			task := NewMigrationTask(taskID, collection, shardIdx, oldReplicas, newReplicas)
			c.tasks[taskID] = task
			next = next.WithShardEntry(collection, shardIdx, shardmap.ShardEntry{
				Stable: oldReplicas,
				Migrating: &shardmap.MigratingEntry{OldReplicas: oldReplicas, NewReplicas: newReplicas},
			})
		}
	}
	c.publish(next)
}

// onNodeFailed recomputes placement to cover a permanently failed node
// and discards its outbound replication queues.
func (c *Coordinator) onNodeFailed(nodeID string) {
	c.evict(nodeID)
	c.nodes.Remove(nodeID, time.Now())
}

// AddNode registers a new node so the heartbeat loop starts probing it
// and, once it reports Healthy, onNodeHealthy picks up shard placement
// for it exactly the way a node listed at startup via --peers would. It
// performs no placement work itself — registering a node in the Joining
// state doesn't change any shard's replica set.
func (c *Coordinator) AddNode(nodeID, publicAddr, replicationAddr string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nodes.Register(nodeID, publicAddr, replicationAddr)
}

// RemoveNode is the admin-triggered equivalent of a heartbeat-driven
// failure: it evicts nodeID from every shard's placement immediately,
// without waiting for the suspect/failure timers to elapse.
func (c *Coordinator) RemoveNode(nodeID string) []*MigrationTask {
	c.mu.Lock()
	defer c.mu.Unlock()
	before := make(map[string]bool, len(c.tasks))
	for id := range c.tasks {
		before[id] = true
	}

	c.evict(nodeID)
	c.nodes.Remove(nodeID, time.Now())

	var scheduled []*MigrationTask
	for id, t := range c.tasks {
		if !before[id] {
			scheduled = append(scheduled, t)
		}
	}
	return scheduled
}

// evict recomputes placement over every node but nodeID, scheduling a
// migration task for every shard that was relying on it.
func (c *Coordinator) evict(nodeID string) {
	m := c.shards.Load()
	nodeIDs := c.nodes.NodeIDs()
	survivors := make([]string, 0, len(nodeIDs))
	for _, id := range nodeIDs {
		if id != nodeID {
			survivors = append(survivors, id)
		}
	}

	next := m
	for _, collection := range m.Collections() {
		cfg, _ := m.CollectionConfig(collection)
		placement := shardmap.Place(cfg.NumShards, cfg.ReplicationFactor, survivors)
		for shardIdx, newReplicas := range placement {
			oldReplicas := m.StableReplicasOf(collection, shardIdx)
			if !contains(oldReplicas, nodeID) {
				continue
			}
			taskID := collection + "/" + strconv.Itoa(shardIdx) + "@failover"
			task := NewMigrationTask(taskID, collection, shardIdx, oldReplicas, newReplicas)
			c.tasks[taskID] = task
			next = next.WithShardEntry(collection, shardIdx, shardmap.ShardEntry{
				Stable: oldReplicas,
				Migrating: &shardmap.MigratingEntry{OldReplicas: oldReplicas, NewReplicas: newReplicas},
			})
		}
	}
	c.publish(next)
}

// Rebalance recomputes placement for every collection against the
// current node list and schedules a migration for any shard whose
// replica set changed, without waiting for a health transition to
// trigger it. It is the admin-initiated counterpart to onNodeHealthy.
func (c *Coordinator) Rebalance() []*MigrationTask {
	c.mu.Lock()
	defer c.mu.Unlock()
	before := make(map[string]bool, len(c.tasks))
	for id := range c.tasks {
		before[id] = true
	}

	m := c.shards.Load()
	nodeIDs := c.nodes.NodeIDs()

	next := m
	for _, collection := range m.Collections() {
		cfg, _ := m.CollectionConfig(collection)
		placement := shardmap.Place(cfg.NumShards, cfg.ReplicationFactor, nodeIDs)
		for shardIdx, newReplicas := range placement {
			oldReplicas := m.StableReplicasOf(collection, shardIdx)
			if sameSet(oldReplicas, newReplicas) {
				continue
			}
			taskID := collection + "/" + strconv.Itoa(shardIdx) + "@rebalance"
			task := NewMigrationTask(taskID, collection, shardIdx, oldReplicas, newReplicas)
			c.tasks[taskID] = task
			next = next.WithShardEntry(collection, shardIdx, shardmap.ShardEntry{
				Stable:    oldReplicas,
				Migrating: &shardmap.MigratingEntry{OldReplicas: oldReplicas, NewReplicas: newReplicas},
			})
		}
	}
	c.publish(next)

	var scheduled []*MigrationTask
	for id, t := range c.tasks {
		if !before[id] {
			scheduled = append(scheduled, t)
		}
	}
	return scheduled
}

// CompleteMigration is called once a MigrationTask reaches Done: it flips
// the shard's entry over to the new replica set, dropping the
// transitional union.
func (c *Coordinator) CompleteMigration(task *MigrationTask) {
	if task.State != Done {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.shards.Load()
	next := m.WithShardEntry(task.Collection, task.ShardIndex, shardmap.ShardEntry{Stable: task.NewReplicas})
	c.publish(next)
	delete(c.tasks, task.TaskID)
}

// Reshard changes a collection's shard count, computing new placement and
// scheduling one migration task per new shard, keyed by the new shard
// index and sourced from the union of the old shard replicas that
// contributed to it.
func (c *Coordinator) Reshard(collection string, newNumShards int) []*MigrationTask {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.shards.Load()
	cfg, ok := m.CollectionConfig(collection)
	if !ok {
		return nil
	}
	nodeIDs := c.nodes.NodeIDs()
	newPlacement := shardmap.Place(newNumShards, cfg.ReplicationFactor, nodeIDs)

	// A key with hash h sits in old shard h mod N and new shard h mod N';
	// both can hold at once exactly when old and new index agree modulo
	// gcd(N, N').
	g, b := cfg.NumShards, newNumShards
	for b != 0 {
		g, b = b, g%b
	}

	var scheduled []*MigrationTask
	for newIdx, replicas := range newPlacement {
		// Every old shard index s with s ≡ newIdx (mod g) can contain a
		// key that now belongs to newIdx, so its replicas are all valid
		// migration sources.
		sources := map[string]bool{}
		for oldIdx := 0; oldIdx < cfg.NumShards; oldIdx++ {
			if (oldIdx-newIdx)%g == 0 {
				for _, n := range m.StableReplicasOf(collection, oldIdx) {
					sources[n] = true
				}
			}
		}
		oldReplicas := make([]string, 0, len(sources))
		for n := range sources {
			oldReplicas = append(oldReplicas, n)
		}
		sort.Strings(oldReplicas)

		taskID := collection + "/reshard/" + strconv.Itoa(newIdx)
		task := NewMigrationTask(taskID, collection, newIdx, oldReplicas, replicas)
		c.tasks[taskID] = task
		scheduled = append(scheduled, task)
	}
	return scheduled
}

// FinishReshard is called once every task from a Reshard call is Done: it
// atomically swaps the collection's num_shards and publishes the final
// placement.
func (c *Coordinator) FinishReshard(collection string, newNumShards int, tasks []*MigrationTask) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.shards.Load()
	cfg, ok := m.CollectionConfig(collection)
	if !ok {
		return
	}
	cfg.NumShards = newNumShards
	nodeIDs := c.nodes.NodeIDs()
	next := m.WithCollection(collection, cfg, nodeIDs)
	for _, t := range tasks {
		next = next.WithShardEntry(collection, t.ShardIndex, shardmap.ShardEntry{Stable: t.NewReplicas})
		delete(c.tasks, t.TaskID)
	}
	c.publish(next)
}

// Paused reports whether resharding is currently suppressed due to
// degraded cluster health. Health-driven failover is never paused.
func (c *Coordinator) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// ActiveTasks returns every migration task currently tracked in memory.
func (c *Coordinator) ActiveTasks() []*MigrationTask {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*MigrationTask, 0, len(c.tasks))
	for _, t := range c.tasks {
		out = append(out, t)
	}
	return out
}

// Task looks up one tracked migration task by id, for a destination node
// to resolve which collection/shard an inbound migration_stream frame
// belongs to.
func (c *Coordinator) Task(taskID string) (*MigrationTask, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tasks[taskID]
	return t, ok
}

// publish makes m the live map and records its version in the metastore.
// Only the version is saved: the snapshot row's payload is left empty,
// and nothing reads the row back, so the shard map is not restored from
// it on restart.
func (c *Coordinator) publish(m *shardmap.Map) {
	c.shards.Publish(m)
	_ = c.meta.SaveShardMapSnapshot(m.Version, nil)
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sa := append([]string(nil), a...)
	sb := append([]string(nil), b...)
	sort.Strings(sa)
	sort.Strings(sb)
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}
