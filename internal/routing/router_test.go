package routing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solisoft/solidb-sub010/internal/docvalue"
	"github.com/solisoft/solidb-sub010/internal/registry"
	"github.com/solisoft/solidb-sub010/internal/shardmap"
)

func newTestMap() *shardmap.Store {
	store := shardmap.NewStore()
	m := store.Load().WithCollection("docs", shardmap.CollectionConfig{NumShards: 4, ReplicationFactor: 2}, []string{"n1", "n2", "n3"})
	store.Publish(m)
	return store
}

func TestRouteWriteUsesExistingKey(t *testing.T) {
	store := newTestMap()
	r := New(store, nil)

	doc := docvalue.Object(map[string]docvalue.Value{"_key": docvalue.String("user:1")})
	idx, nodes, outDoc, err := r.RouteWrite(context.Background(), "docs", doc)

	require.NoError(t, err)
	assert.GreaterOrEqual(t, idx, 0)
	assert.NotEmpty(t, nodes)
	v, _ := outDoc.Field("_key")
	assert.Equal(t, "user:1", v.Str)
}

func TestRouteWriteGeneratesFreshKeyWhenAbsent(t *testing.T) {
	store := newTestMap()
	r := New(store, nil)

	doc := docvalue.Object(map[string]docvalue.Value{"name": docvalue.String("alice")})
	_, _, outDoc, err := r.RouteWrite(context.Background(), "docs", doc)

	require.NoError(t, err)
	v, ok := outDoc.Field("_key")
	require.True(t, ok)
	assert.NotEmpty(t, v.Str)
}

func TestRouteWriteInvalidShardKeyForConfiguredField(t *testing.T) {
	store := shardmap.NewStore()
	m := store.Load().WithCollection("orders", shardmap.CollectionConfig{NumShards: 2, ReplicationFactor: 1, ShardKeyField: "customer_id"}, []string{"n1"})
	store.Publish(m)
	r := New(store, nil)

	doc := docvalue.Object(map[string]docvalue.Value{"amount": docvalue.Number(10)})
	_, _, _, err := r.RouteWrite(context.Background(), "orders", doc)

	require.Error(t, err)
	var shardErr *ErrInvalidShardKey
	assert.ErrorAs(t, err, &shardErr)
}

func TestRouteWriteUnknownCollection(t *testing.T) {
	store := shardmap.NewStore()
	r := New(store, nil)

	_, _, _, err := r.RouteWrite(context.Background(), "ghost", docvalue.Object(nil))
	var collErr *ErrUnknownCollection
	assert.ErrorAs(t, err, &collErr)
}

func TestRouteWriteNumericKeyCanonicalizes(t *testing.T) {
	store := newTestMap()
	r := New(store, nil)

	a := docvalue.Object(map[string]docvalue.Value{"_key": docvalue.Number(1)})
	b := docvalue.Object(map[string]docvalue.Value{"_key": docvalue.Number(1.0)})

	idxA, _, _, err := r.RouteWrite(context.Background(), "docs", a)
	require.NoError(t, err)
	idxB, _, _, err := r.RouteWrite(context.Background(), "docs", b)
	require.NoError(t, err)

	assert.Equal(t, idxA, idxB)
}

func TestRouteReadSingleShardCollectionStillRoutes(t *testing.T) {
	store := shardmap.NewStore()
	m := store.Load().WithCollection("singleton", shardmap.CollectionConfig{NumShards: 1, ReplicationFactor: 2}, []string{"n1", "n2"})
	store.Publish(m)
	r := New(store, nil)

	nodes, err := r.RouteRead(context.Background(), "singleton", "anykey")
	require.NoError(t, err)
	assert.Len(t, nodes, 2)
}

func TestRouteReadPushesFailedReplicasToEnd(t *testing.T) {
	store := shardmap.NewStore()
	m := store.Load().WithCollection("docs", shardmap.CollectionConfig{NumShards: 1, ReplicationFactor: 3}, []string{"n1", "n2", "n3"})
	store.Publish(m)

	reg := registry.New()
	reg.Register("n1", "", "")
	reg.Register("n2", "", "")
	reg.Register("n3", "", "")
	now := time.Now()
	reg.RecordHeartbeatSuccess("n1", now)
	reg.RecordHeartbeatSuccess("n2", now)
	reg.RecordHeartbeatSuccess("n3", now)
	for i := 0; i < 10; i++ {
		reg.RecordHeartbeatFailure("n2", now.Add(time.Duration(i)*time.Second), 1, 0)
	}
	st, _ := reg.NodeState("n2")
	require.Equal(t, registry.Failed, st)

	r := New(store, reg)
	nodes, err := r.RouteRead(context.Background(), "docs", "k")
	require.NoError(t, err)
	require.Len(t, nodes, 3)
	assert.Equal(t, "n2", nodes[len(nodes)-1])
}
