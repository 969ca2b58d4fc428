package memengine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solisoft/solidb-sub010/internal/storage"
)

func TestPutGetRoundTrip(t *testing.T) {
	e := New()
	ctx := context.Background()
	require.NoError(t, e.CreateNamespace(ctx, "docs/0"))

	rec := storage.Record{Payload: []byte("hello"), HLCPhysMS: 1}
	require.NoError(t, e.Put(ctx, "docs/0", "k1", rec))

	got, err := e.Get(ctx, "docs/0", "k1")
	require.NoError(t, err)
	assert.Equal(t, rec.Payload, got.Payload)
}

func TestGetOnMissingNamespace(t *testing.T) {
	e := New()
	_, err := e.Get(context.Background(), "missing/0", "k1")
	assert.ErrorIs(t, err, storage.ErrNamespaceNotFound)
}

func TestGetOnTombstoneIsNotFound(t *testing.T) {
	e := New()
	ctx := context.Background()
	require.NoError(t, e.CreateNamespace(ctx, "docs/0"))
	require.NoError(t, e.Put(ctx, "docs/0", "k1", storage.Record{Payload: []byte("x")}))
	require.NoError(t, e.Delete(ctx, "docs/0", "k1"))

	_, err := e.Get(ctx, "docs/0", "k1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCreateNamespaceTwiceFails(t *testing.T) {
	e := New()
	ctx := context.Background()
	require.NoError(t, e.CreateNamespace(ctx, "docs/0"))
	err := e.CreateNamespace(ctx, "docs/0")
	assert.ErrorIs(t, err, storage.ErrNamespaceExists)
}

func TestDropNamespaceRemovesData(t *testing.T) {
	e := New()
	ctx := context.Background()
	require.NoError(t, e.CreateNamespace(ctx, "docs/0"))
	require.NoError(t, e.Put(ctx, "docs/0", "k1", storage.Record{Payload: []byte("x")}))
	require.NoError(t, e.DropNamespace(ctx, "docs/0"))

	_, err := e.Get(ctx, "docs/0", "k1")
	assert.ErrorIs(t, err, storage.ErrNamespaceNotFound)
}

func TestBatchWriteAcrossNamespaces(t *testing.T) {
	e := New()
	ctx := context.Background()
	require.NoError(t, e.CreateNamespace(ctx, "docs/0"))
	require.NoError(t, e.CreateNamespace(ctx, "docs/1"))

	err := e.BatchWrite(ctx, []storage.WriteOp{
		{Namespace: "docs/0", Key: "a", Record: storage.Record{Payload: []byte("1")}},
		{Namespace: "docs/1", Key: "b", Record: storage.Record{Payload: []byte("2")}},
	})
	require.NoError(t, err)

	got, err := e.Get(ctx, "docs/1", "b")
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), got.Payload)
}

func TestScanReturnsAllEntriesIncludingTombstones(t *testing.T) {
	e := New()
	ctx := context.Background()
	require.NoError(t, e.CreateNamespace(ctx, "docs/0"))
	require.NoError(t, e.Put(ctx, "docs/0", "a", storage.Record{Payload: []byte("1")}))
	require.NoError(t, e.Delete(ctx, "docs/0", "a"))
	require.NoError(t, e.Put(ctx, "docs/0", "b", storage.Record{Payload: []byte("2")}))

	all, err := e.Scan(ctx, "docs/0")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.True(t, all["a"].Tombstone)
	assert.False(t, all["b"].Tombstone)
}
