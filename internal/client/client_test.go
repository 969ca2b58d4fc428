package client

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solisoft/solidb-sub010/internal/api"
	"github.com/solisoft/solidb-sub010/internal/coordinator"
	"github.com/solisoft/solidb-sub010/internal/core"
	"github.com/solisoft/solidb-sub010/internal/docvalue"
	"github.com/solisoft/solidb-sub010/internal/hlc"
	"github.com/solisoft/solidb-sub010/internal/metastore"
	"github.com/solisoft/solidb-sub010/internal/metrics"
	"github.com/solisoft/solidb-sub010/internal/registry"
	"github.com/solisoft/solidb-sub010/internal/replication"
	"github.com/solisoft/solidb-sub010/internal/routing"
	"github.com/solisoft/solidb-sub010/internal/shardmap"
	"github.com/solisoft/solidb-sub010/internal/storage"
	"github.com/solisoft/solidb-sub010/internal/storage/memengine"
)

type noopTransport struct{}

func (noopTransport) SendReplicate(ctx context.Context, peerNodeID string, op replication.Op) error {
	return nil
}

func newTestAPIServer(t *testing.T) *httptest.Server {
	t.Helper()

	reg := registry.New()
	reg.Register("n1", "", "")
	reg.RecordHeartbeatSuccess("n1", time.Now())

	shards := shardmap.NewStore()
	m := shards.Load().WithCollection("docs", shardmap.CollectionConfig{NumShards: 1, ReplicationFactor: 1}, []string{"n1"})
	shards.Publish(m)

	local := memengine.New()
	require.NoError(t, local.CreateNamespace(context.Background(), storage.Namespace("docs", 0)))

	meta, err := metastore.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = meta.Close() })

	router := routing.New(shards, reg)
	repl := replication.New("n1", local, meta, noopTransport{}, 1000)
	clock := hlc.New(func() int64 { return 1 })
	node := core.New("n1", clock, router, repl, local, nil)
	coord := coordinator.New("n1", shards, reg, meta, coordinator.Config{ReplicationFactor: 1})

	srv := api.New("n1", node, coord, reg, shards, metrics.New())
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func TestClientPutGetRoundTrip(t *testing.T) {
	ts := newTestAPIServer(t)
	c := New(ts.URL, 0)

	doc := docvalue.Object(map[string]docvalue.Value{"name": docvalue.String("alice")})
	putResp, err := c.Put(context.Background(), "docs", "u1", doc)
	require.NoError(t, err)
	assert.Equal(t, "u1", putResp.Key)

	getResp, err := c.Get(context.Background(), "docs", "u1")
	require.NoError(t, err)
	v, ok := getResp.Value.Field("name")
	require.True(t, ok)
	assert.Equal(t, "alice", v.Str)
}

func TestClientGetMissingReturnsErrNotFound(t *testing.T) {
	ts := newTestAPIServer(t)
	c := New(ts.URL, 0)

	_, err := c.Get(context.Background(), "docs", "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClientTxCommit(t *testing.T) {
	ts := newTestAPIServer(t)
	c := New(ts.URL, 0)

	tx, err := c.BeginTx(context.Background(), "docs")
	require.NoError(t, err)
	require.NoError(t, tx.Write(context.Background(), docvalue.Object(map[string]docvalue.Value{"_key": docvalue.String("k1")})))
	require.NoError(t, tx.Commit(context.Background()))

	_, err = c.Get(context.Background(), "docs", "k1")
	assert.NoError(t, err)
}

func TestClientClusterStatus(t *testing.T) {
	ts := newTestAPIServer(t)
	c := New(ts.URL, 0)

	raw, err := c.ClusterStatus(context.Background())
	require.NoError(t, err)
	assert.Contains(t, string(raw), "n1")
}
