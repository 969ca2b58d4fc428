package coordinator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solisoft/solidb-sub010/internal/metastore"
	"github.com/solisoft/solidb-sub010/internal/registry"
	"github.com/solisoft/solidb-sub010/internal/shardmap"
)

func newTestCoordinator(t *testing.T) (*Coordinator, *registry.Registry, *shardmap.Store) {
	t.Helper()
	store, err := metastore.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	reg := registry.New()
	shards := shardmap.NewStore()
	c := New("n1", shards, reg, store, Config{ReplicationFactor: 2, FailureThreshold: 10 * time.Second, BreakerCooldown: time.Minute})
	return c, reg, shards
}

func TestStaggerDelayIsDeterministicAndBounded(t *testing.T) {
	d1 := StaggerDelay("node-a")
	d2 := StaggerDelay("node-a")
	assert.Equal(t, d1, d2)
	assert.True(t, d1 >= 0 && d1 < StaggerWindow)
}

func TestStaggerDelayVariesByNode(t *testing.T) {
	a := StaggerDelay("node-a")
	b := StaggerDelay("node-b")
	assert.NotEqual(t, a, b)
}

func TestOnNodeHealthySchedulesMigrationForNewReplica(t *testing.T) {
	c, reg, shards := newTestCoordinator(t)
	reg.Register("n1", "", "")
	reg.Register("n2", "", "")
	reg.RecordHeartbeatSuccess("n1", time.Now())
	reg.RecordHeartbeatSuccess("n2", time.Now())

	m := shards.Load().WithCollection("docs", shardmap.CollectionConfig{NumShards: 2, ReplicationFactor: 2}, []string{"n1", "n2"})
	shards.Publish(m)

	// drain n1/n2 Joining->Healthy so tr below is n3's transition
	<-reg.Transitions()
	<-reg.Transitions()

	reg.Register("n3", "", "")
	reg.RecordHeartbeatSuccess("n3", time.Now())
	tr := <-reg.Transitions()

	c.handleTransition(tr)

	assert.NotEmpty(t, c.ActiveTasks())
}

func TestOnNodeFailedRecomputesPlacementAndRemoves(t *testing.T) {
	c, reg, shards := newTestCoordinator(t)
	reg.Register("n1", "", "")
	reg.Register("n2", "", "")
	reg.Register("n3", "", "")
	now := time.Now()
	reg.RecordHeartbeatSuccess("n1", now)
	reg.RecordHeartbeatSuccess("n2", now)
	reg.RecordHeartbeatSuccess("n3", now)

	m := shards.Load().WithCollection("docs", shardmap.CollectionConfig{NumShards: 2, ReplicationFactor: 2}, []string{"n1", "n2", "n3"})
	shards.Publish(m)

	for i := 0; i < 5; i++ {
		reg.RecordHeartbeatFailure("n2", now.Add(time.Duration(i)*time.Second), 1, 0)
	}
	st, _ := reg.NodeState("n2")
	require.Equal(t, registry.Failed, st)

	c.onNodeFailed("n2")

	st, ok := reg.NodeState("n2")
	require.True(t, ok)
	assert.Equal(t, registry.Removed, st)
}

func TestCompleteMigrationFlipsShardEntry(t *testing.T) {
	c, _, shards := newTestCoordinator(t)
	m := shards.Load().WithCollection("docs", shardmap.CollectionConfig{NumShards: 1, ReplicationFactor: 1}, []string{"n1"})
	shards.Publish(m)

	task := NewMigrationTask("t1", "docs", 0, []string{"n1"}, []string{"n1", "n2"})
	task.BeginStreaming()
	task.BeginVerifying(0)
	task.Advance(VerifyResult{DestCount: 0})

	require.Equal(t, Done, task.State)
	c.CompleteMigration(task)

	replicas := shards.Load().StableReplicasOf("docs", 0)
	assert.ElementsMatch(t, []string{"n1", "n2"}, replicas)
}

func TestMigrationVerificationMismatchReturnsToStreaming(t *testing.T) {
	task := NewMigrationTask("t1", "docs", 0, []string{"n1"}, []string{"n1", "n2"})
	task.BeginStreaming()
	task.RecordBatch([]string{"a", "b"})
	task.BeginVerifying(2)

	task.Advance(VerifyResult{DestCount: 1})
	assert.Equal(t, Streaming, task.State)

	task.BeginVerifying(2)
	task.Advance(VerifyResult{DestCount: 2})
	assert.Equal(t, Done, task.State)
}

func TestCircuitBreakerSuppressesRepeatedAction(t *testing.T) {
	b := NewCircuitBreaker(time.Minute)
	assert.True(t, b.Allow("n1"))
	b.Trip("n1")
	assert.False(t, b.Allow("n1"))
	assert.True(t, b.Allow("n2"))
}

func TestRemoveNodeSchedulesFailoverAndRemoves(t *testing.T) {
	c, reg, shards := newTestCoordinator(t)
	reg.Register("n1", "", "")
	reg.Register("n2", "", "")
	reg.Register("n3", "", "")
	now := time.Now()
	reg.RecordHeartbeatSuccess("n1", now)
	reg.RecordHeartbeatSuccess("n2", now)
	reg.RecordHeartbeatSuccess("n3", now)

	m := shards.Load().WithCollection("docs", shardmap.CollectionConfig{NumShards: 2, ReplicationFactor: 2}, []string{"n1", "n2", "n3"})
	shards.Publish(m)

	tasks := c.RemoveNode("n2")
	assert.NotEmpty(t, tasks)

	st, ok := reg.NodeState("n2")
	require.True(t, ok)
	assert.Equal(t, registry.Removed, st)
}

func TestRebalanceSchedulesNothingWhenPlacementUnchanged(t *testing.T) {
	c, reg, shards := newTestCoordinator(t)
	reg.Register("n1", "", "")
	reg.RecordHeartbeatSuccess("n1", time.Now())

	m := shards.Load().WithCollection("docs", shardmap.CollectionConfig{NumShards: 2, ReplicationFactor: 1}, []string{"n1"})
	shards.Publish(m)

	tasks := c.Rebalance()
	assert.Empty(t, tasks)
}

func TestReshardSchedulesOneTaskPerNewShard(t *testing.T) {
	c, reg, shards := newTestCoordinator(t)
	reg.Register("n1", "", "")
	reg.RecordHeartbeatSuccess("n1", time.Now())

	m := shards.Load().WithCollection("docs", shardmap.CollectionConfig{NumShards: 2, ReplicationFactor: 1}, []string{"n1"})
	shards.Publish(m)

	tasks := c.Reshard("docs", 4)
	require.Len(t, tasks, 4)
}
