// Package memengine is an in-process storage.Engine
// implementation: every namespace is a plain map guarded by its own lock.
// It has no durability of its own — a process restart loses everything —
// and exists for tests and single-node evaluation, not production use.
package memengine

import (
	"context"
	"sync"

	"github.com/solisoft/solidb-sub010/internal/storage"
)

type namespace struct {
	mu   sync.RWMutex
	data map[string]storage.Record
}

// Engine is a storage.Engine backed by per-namespace maps. Namespace
// creation and deletion share a single mutex so concurrent shard-topology
// changes never race each other; reads and writes within an existing
// namespace hold that mutex only for the brief namespace lookup and then
// take that namespace's own lock.
type Engine struct {
	nsMu       sync.Mutex
	namespaces map[string]*namespace
}

// New creates an empty Engine.
func New() *Engine {
	return &Engine{namespaces: map[string]*namespace{}}
}

func (e *Engine) lookup(ns string) (*namespace, error) {
	e.nsMu.Lock()
	n, ok := e.namespaces[ns]
	e.nsMu.Unlock()
	if !ok {
		return nil, storage.ErrNamespaceNotFound
	}
	return n, nil
}

func (e *Engine) CreateNamespace(ctx context.Context, ns string) error {
	e.nsMu.Lock()
	defer e.nsMu.Unlock()
	if _, ok := e.namespaces[ns]; ok {
		return storage.ErrNamespaceExists
	}
	e.namespaces[ns] = &namespace{data: map[string]storage.Record{}}
	return nil
}

func (e *Engine) DropNamespace(ctx context.Context, ns string) error {
	e.nsMu.Lock()
	defer e.nsMu.Unlock()
	if _, ok := e.namespaces[ns]; !ok {
		return storage.ErrNamespaceNotFound
	}
	delete(e.namespaces, ns)
	return nil
}

func (e *Engine) Put(ctx context.Context, ns, key string, rec storage.Record) error {
	n, err := e.lookup(ns)
	if err != nil {
		return err
	}
	n.mu.Lock()
	n.data[key] = rec
	n.mu.Unlock()
	return nil
}

func (e *Engine) Get(ctx context.Context, ns, key string) (storage.Record, error) {
	n, err := e.lookup(ns)
	if err != nil {
		return storage.Record{}, err
	}
	n.mu.RLock()
	rec, ok := n.data[key]
	n.mu.RUnlock()
	if !ok || rec.Tombstone {
		return storage.Record{}, storage.ErrNotFound
	}
	return rec, nil
}

func (e *Engine) Delete(ctx context.Context, ns, key string) error {
	n, err := e.lookup(ns)
	if err != nil {
		return err
	}
	n.mu.Lock()
	existing := n.data[key]
	n.data[key] = storage.Record{Tombstone: true, HLCPhysMS: existing.HLCPhysMS, HLCLogical: existing.HLCLogical}
	n.mu.Unlock()
	return nil
}

func (e *Engine) Scan(ctx context.Context, ns string) (map[string]storage.Record, error) {
	n, err := e.lookup(ns)
	if err != nil {
		return nil, err
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make(map[string]storage.Record, len(n.data))
	for k, v := range n.data {
		out[k] = v
	}
	return out, nil
}

func (e *Engine) BatchWrite(ctx context.Context, ops []storage.WriteOp) error {
	byNamespace := make(map[string][]storage.WriteOp, 1)
	for _, op := range ops {
		byNamespace[op.Namespace] = append(byNamespace[op.Namespace], op)
	}
	for ns, nsOps := range byNamespace {
		n, err := e.lookup(ns)
		if err != nil {
			return err
		}
		n.mu.Lock()
		for _, op := range nsOps {
			n.data[op.Key] = op.Record
		}
		n.mu.Unlock()
	}
	return nil
}
