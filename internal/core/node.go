// Package core wires the hybrid logical clock, shard router, and
// replication engine into the four operations a query layer actually
// calls: put, get, delete, and single-shard transactions.
package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/solisoft/solidb-sub010/internal/docvalue"
	"github.com/solisoft/solidb-sub010/internal/hlc"
	"github.com/solisoft/solidb-sub010/internal/replication"
	"github.com/solisoft/solidb-sub010/internal/routing"
	"github.com/solisoft/solidb-sub010/internal/storage"
)

// FetchTransport fetches a document from a remote peer — the RPC side of
// Get, used once a candidate replica isn't the local node.
type FetchTransport interface {
	FetchDocument(ctx context.Context, peerNodeID, collection, key string) (docvalue.Value, bool, error)
}

// Document is what Get returns: the stored value plus the diagnostic list
// of replicas currently holding it. Replicas holds node ids, not network
// addresses.
type Document struct {
	Value    docvalue.Value
	Replicas []string
}

// Node is a single cluster member's view of the data plane: clock,
// router, replication engine, and the local storage engine they all sit
// on top of.
type Node struct {
	ID     string
	clock  *hlc.Clock
	router *routing.Router
	repl   *replication.Engine
	local  storage.Engine
	fetch  FetchTransport
}

// New creates a Node. fetch may be nil for a single-node deployment with
// no peers to fetch from.
func New(id string, clock *hlc.Clock, router *routing.Router, repl *replication.Engine, local storage.Engine, fetch FetchTransport) *Node {
	return &Node{ID: id, clock: clock, router: router, repl: repl, local: local, fetch: fetch}
}

// Put routes, timestamps, and replicates a document write. It returns the
// document's key (generated if the caller omitted one) and the HLC
// timestamp assigned to the write.
func (n *Node) Put(ctx context.Context, collection string, doc docvalue.Value) (string, hlc.Timestamp, error) {
	shardIdx, replicas, outDoc, err := n.router.RouteWrite(ctx, collection, doc)
	if err != nil {
		return "", hlc.Zero, translateRoutingErr(err)
	}
	if len(replicas) == 0 {
		return "", hlc.Zero, ErrNoEligibleReplica
	}

	field, err := n.router.ShardKeyField(collection)
	if err != nil {
		return "", hlc.Zero, translateRoutingErr(err)
	}
	key, err := shardKeyOf(outDoc, field)
	if err != nil {
		return "", hlc.Zero, ErrInvalidShardKey
	}

	ts := n.clock.Now()
	payload, err := msgpack.Marshal(outDoc)
	if err != nil {
		return "", hlc.Zero, fmt.Errorf("core: encoding document: %w", err)
	}

	op := replication.Op{
		SourceNodeID: n.ID,
		OpID:         uuid.NewString(),
		Key:          key,
		HLC:          ts,
		Collection:   collection,
		ShardIndex:   shardIdx,
		Payload:      payload,
	}

	outcome, _ := n.repl.Replicate(ctx, op, replicas)
	if outcome == replication.AllFailed {
		return "", hlc.Zero, ErrClusterDegraded
	}
	return key, ts, nil
}

// Get routes a read and tries candidate replicas in order, returning the
// first successful response. It never returns a replica that was in
// Failed state unless every other candidate also failed.
func (n *Node) Get(ctx context.Context, collection, key string) (Document, error) {
	candidates, err := n.router.RouteRead(ctx, collection, key)
	if err != nil {
		return Document{}, translateRoutingErr(err)
	}
	if len(candidates) == 0 {
		return Document{}, ErrNoEligibleReplica
	}

	idx, err := n.router.ShardIndex(collection, key)
	if err != nil {
		return Document{}, translateRoutingErr(err)
	}
	ns := storage.Namespace(collection, idx)

	for _, peer := range candidates {
		if peer == n.ID {
			rec, err := n.local.Get(ctx, ns, key)
			if err == storage.ErrNotFound {
				continue
			}
			if err != nil {
				continue
			}
			var v docvalue.Value
			if err := msgpack.Unmarshal(rec.Payload, &v); err != nil {
				continue
			}
			return Document{Value: v, Replicas: candidates}, nil
		}
		if n.fetch == nil {
			continue
		}
		v, ok, err := n.fetch.FetchDocument(ctx, peer, collection, key)
		if err != nil || !ok {
			continue
		}
		return Document{Value: v, Replicas: candidates}, nil
	}
	return Document{}, ErrNotFound
}

// Delete replicates a tombstone for key, using the same routing and
// fan-out path as Put.
func (n *Node) Delete(ctx context.Context, collection, key string) (hlc.Timestamp, error) {
	candidates, err := n.router.RouteRead(ctx, collection, key)
	if err != nil {
		return hlc.Zero, translateRoutingErr(err)
	}
	if len(candidates) == 0 {
		return hlc.Zero, ErrNoEligibleReplica
	}
	idx, err := n.router.ShardIndex(collection, key)
	if err != nil {
		return hlc.Zero, translateRoutingErr(err)
	}

	ts := n.clock.Now()
	op := replication.Op{
		SourceNodeID: n.ID,
		OpID:         uuid.NewString(),
		Key:          key,
		HLC:          ts,
		Collection:   collection,
		ShardIndex:   idx,
		Tombstone:    true,
	}
	outcome, _ := n.repl.Replicate(ctx, op, candidates)
	if outcome == replication.AllFailed {
		return hlc.Zero, ErrClusterDegraded
	}
	return ts, nil
}

func shardKeyOf(doc docvalue.Value, field string) (string, error) {
	v, ok := doc.Field(field)
	if !ok {
		return "", ErrInvalidShardKey
	}
	return v.CanonicalString()
}

func translateRoutingErr(err error) error {
	var invalid *routing.ErrInvalidShardKey
	var unknown *routing.ErrUnknownCollection
	switch {
	case errors.As(err, &invalid):
		return ErrInvalidShardKey
	case errors.As(err, &unknown):
		return ErrUnknownCollection
	default:
		return err
	}
}
