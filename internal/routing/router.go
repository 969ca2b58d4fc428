// Package routing implements the shard router: translating a document or a
// bare key into the ordered list of nodes that should serve it.
//
// The router owns no state of its own. It reads the current shard map
// snapshot and the current node registry snapshot on every call, so it
// never needs invalidation and always reflects the latest topology the
// coordinator has published.
package routing

import (
	"context"
	"errors"
	"fmt"

	"github.com/solisoft/solidb-sub010/internal/docvalue"
	"github.com/solisoft/solidb-sub010/internal/registry"
	"github.com/solisoft/solidb-sub010/internal/shardkey"
	"github.com/solisoft/solidb-sub010/internal/shardmap"
)

// ErrInvalidShardKey is returned when a document is missing the field its
// collection is configured to shard on.
type ErrInvalidShardKey struct {
	Collection string
	Field      string
}

func (e *ErrInvalidShardKey) Error() string {
	return fmt.Sprintf("routing: collection %q missing shard key field %q", e.Collection, e.Field)
}

// ErrUnknownCollection is returned when routing references a collection the
// shard map has no configuration for.
type ErrUnknownCollection struct {
	Collection string
}

func (e *ErrUnknownCollection) Error() string {
	return fmt.Sprintf("routing: unknown collection %q", e.Collection)
}

// HealthSource reports a node's current health state. internal/registry.Registry
// satisfies this directly.
type HealthSource interface {
	NodeState(id string) (registry.State, bool)
}

// Router answers routing questions against a shard map snapshot and a
// health source. It holds no mutable state.
type Router struct {
	shards *shardmap.Store
	health HealthSource
}

// New creates a Router over the given shard map store and health source.
func New(shards *shardmap.Store, health HealthSource) *Router {
	return &Router{shards: shards, health: health}
}

// RouteWrite determines which shard a document belongs to and returns the
// ordered destination replica list. If the document's shard key field is
// the default "_key" and it is absent, a fresh key is generated and
// written into the returned doc's field before routing, so that the same
// routing decision is reproducible on retry.
func (r *Router) RouteWrite(ctx context.Context, collection string, doc docvalue.Value) (shardIndex int, nodes []string, outDoc docvalue.Value, err error) {
	m := r.shards.Load()
	cfg, ok := m.CollectionConfig(collection)
	if !ok {
		return 0, nil, doc, &ErrUnknownCollection{Collection: collection}
	}

	field := cfg.ShardKeyField
	if field == "" {
		field = shardmap.DefaultShardKeyField
	}

	key, present, err := shardkey.Extract(doc, field)
	if err != nil {
		return 0, nil, doc, &ErrInvalidShardKey{Collection: collection, Field: field}
	}
	if !present {
		if field != shardmap.DefaultShardKeyField {
			return 0, nil, doc, &ErrInvalidShardKey{Collection: collection, Field: field}
		}
		key = shardkey.Generate()
		doc = doc.WithField(field, docvalue.String(key))
	}

	idx := shardmap.ShardIndexFor(key, cfg.NumShards)
	replicas := m.ReplicasOf(collection, idx)
	return idx, replicas, doc, nil
}

// ShardKeyField returns the field a collection's documents are sharded on,
// resolving the shardmap.DefaultShardKeyField fallback RouteWrite applies
// internally. Callers that need to re-derive the same key RouteWrite used
// (e.g. to delete a document by its already-routed form) call this instead
// of assuming "_key".
func (r *Router) ShardKeyField(collection string) (string, error) {
	m := r.shards.Load()
	cfg, ok := m.CollectionConfig(collection)
	if !ok {
		return "", &ErrUnknownCollection{Collection: collection}
	}
	field := cfg.ShardKeyField
	if field == "" {
		field = shardmap.DefaultShardKeyField
	}
	return field, nil
}

// RouteRead returns the ordered candidate node list for a read of key in
// collection: the shard's current replicas, with any node the registry
// considers Failed pushed to the end of the list rather than dropped, so a
// caller that exhausts every healthy candidate can still try a failed one
// as a last resort.
func (r *Router) RouteRead(ctx context.Context, collection, key string) ([]string, error) {
	m := r.shards.Load()
	cfg, ok := m.CollectionConfig(collection)
	if !ok {
		return nil, &ErrUnknownCollection{Collection: collection}
	}

	idx := shardmap.ShardIndexFor(key, cfg.NumShards)
	replicas := m.ReplicasOf(collection, idx)
	return r.orderByHealth(replicas), nil
}

func (r *Router) orderByHealth(replicas []string) []string {
	if r.health == nil {
		return replicas
	}
	healthy := make([]string, 0, len(replicas))
	unhealthy := make([]string, 0)
	for _, n := range replicas {
		st, ok := r.health.NodeState(n)
		if ok && st == registry.Failed {
			unhealthy = append(unhealthy, n)
			continue
		}
		healthy = append(healthy, n)
	}
	return append(healthy, unhealthy...)
}

// ShardIndex computes the shard a document belongs to without routing it,
// used by internal/core's Get/Delete and the node's fetch handler.
func (r *Router) ShardIndex(collection string, key string) (int, error) {
	m := r.shards.Load()
	cfg, ok := m.CollectionConfig(collection)
	if !ok {
		return 0, &ErrUnknownCollection{Collection: collection}
	}
	return shardmap.ShardIndexFor(key, cfg.NumShards), nil
}

// ErrNoEligibleReplica names the case where every candidate a Router
// returned is unreachable. Nothing in this module returns it:
// internal/core reports that case with its own core.ErrNoEligibleReplica.
var ErrNoEligibleReplica = errors.New("routing: no eligible replica")
