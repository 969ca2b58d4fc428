// Package walengine is a durable storage.Engine: every write is appended
// to a write-ahead log before it is applied to the in-memory index, and a
// periodic snapshot lets restart skip replaying the log from the
// beginning.
//
// Interview explanation carried over from the in-memory engine's
// ancestor: WALs are the backbone of crash safety. Writes are sequential
// (append-only) so they stay fast even without fancy storage, and on
// restart we replay every entry written since the last snapshot to
// rebuild exactly the state the process had before it died.
package walengine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/solisoft/solidb-sub010/internal/storage"
)

// Engine is a storage.Engine backed by a single WAL file and a single
// snapshot file per data directory. Namespace creation/deletion is
// logged the same as a write, so it survives a restart too.
type Engine struct {
	mu         sync.RWMutex
	namespaces map[string]map[string]storage.Record

	wal      *wal
	snapshot *snapshotManager
}

// Open creates or recovers an Engine rooted at dataDir: snapshot.json
// plus wal.log. Recovery order is snapshot first, then every WAL entry
// written since the snapshot was taken.
func Open(dataDir string) (*Engine, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("walengine: creating data dir: %w", err)
	}

	snap := newSnapshotManager(filepath.Join(dataDir, "snapshot.json"))
	w, err := newWAL(filepath.Join(dataDir, "wal.log"))
	if err != nil {
		return nil, fmt.Errorf("walengine: opening wal: %w", err)
	}

	e := &Engine{namespaces: map[string]map[string]storage.Record{}, wal: w, snapshot: snap}
	if err := e.recover(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) recover() error {
	state, err := e.snapshot.Load()
	if err != nil {
		return fmt.Errorf("walengine: loading snapshot: %w", err)
	}
	if state != nil {
		e.namespaces = state
	}

	entries, err := e.wal.readAll()
	if err != nil {
		return fmt.Errorf("walengine: replaying wal: %w", err)
	}
	for _, entry := range entries {
		e.apply(entry)
	}
	return nil
}

func (e *Engine) apply(entry walEntry) {
	switch entry.Op {
	case opCreateNamespace:
		if _, ok := e.namespaces[entry.Namespace]; !ok {
			e.namespaces[entry.Namespace] = map[string]storage.Record{}
		}
	case opDropNamespace:
		delete(e.namespaces, entry.Namespace)
	case opPut:
		ns, ok := e.namespaces[entry.Namespace]
		if !ok {
			ns = map[string]storage.Record{}
			e.namespaces[entry.Namespace] = ns
		}
		ns[entry.Key] = entry.Record
	}
}

// Snapshot writes the current in-memory state to disk and truncates the
// WAL, the durability equivalent of a checkpoint. Call it periodically
// from a background goroutine, not on every write.
func (e *Engine) Snapshot() error {
	e.mu.RLock()
	state := make(map[string]map[string]storage.Record, len(e.namespaces))
	for ns, data := range e.namespaces {
		clone := make(map[string]storage.Record, len(data))
		for k, v := range data {
			clone[k] = v
		}
		state[ns] = clone
	}
	e.mu.RUnlock()

	if err := e.snapshot.Save(state); err != nil {
		return err
	}
	return e.wal.truncate()
}

// Close flushes and closes the underlying WAL file.
func (e *Engine) Close() error {
	return e.wal.close()
}

func (e *Engine) CreateNamespace(ctx context.Context, ns string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.namespaces[ns]; ok {
		return storage.ErrNamespaceExists
	}
	if err := e.wal.append(walEntry{Op: opCreateNamespace, Namespace: ns}); err != nil {
		return err
	}
	e.namespaces[ns] = map[string]storage.Record{}
	return nil
}

func (e *Engine) DropNamespace(ctx context.Context, ns string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.namespaces[ns]; !ok {
		return storage.ErrNamespaceNotFound
	}
	if err := e.wal.append(walEntry{Op: opDropNamespace, Namespace: ns}); err != nil {
		return err
	}
	delete(e.namespaces, ns)
	return nil
}

func (e *Engine) Put(ctx context.Context, ns, key string, rec storage.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	data, ok := e.namespaces[ns]
	if !ok {
		return storage.ErrNamespaceNotFound
	}
	if err := e.wal.append(walEntry{Op: opPut, Namespace: ns, Key: key, Record: rec}); err != nil {
		return err
	}
	data[key] = rec
	return nil
}

func (e *Engine) Get(ctx context.Context, ns, key string) (storage.Record, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	data, ok := e.namespaces[ns]
	if !ok {
		return storage.Record{}, storage.ErrNamespaceNotFound
	}
	rec, ok := data[key]
	if !ok || rec.Tombstone {
		return storage.Record{}, storage.ErrNotFound
	}
	return rec, nil
}

func (e *Engine) Delete(ctx context.Context, ns, key string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	data, ok := e.namespaces[ns]
	if !ok {
		return storage.ErrNamespaceNotFound
	}
	existing := data[key]
	tombstone := storage.Record{
		Tombstone:    true,
		HLCPhysMS:    existing.HLCPhysMS,
		HLCLogical:   existing.HLCLogical,
		SourceNodeID: existing.SourceNodeID,
	}
	if err := e.wal.append(walEntry{Op: opPut, Namespace: ns, Key: key, Record: tombstone}); err != nil {
		return err
	}
	data[key] = tombstone
	return nil
}

func (e *Engine) Scan(ctx context.Context, ns string) (map[string]storage.Record, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	data, ok := e.namespaces[ns]
	if !ok {
		return nil, storage.ErrNamespaceNotFound
	}
	out := make(map[string]storage.Record, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out, nil
}

func (e *Engine) BatchWrite(ctx context.Context, ops []storage.WriteOp) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, op := range ops {
		if _, ok := e.namespaces[op.Namespace]; !ok {
			return storage.ErrNamespaceNotFound
		}
	}
	for _, op := range ops {
		if err := e.wal.append(walEntry{Op: opPut, Namespace: op.Namespace, Key: op.Key, Record: op.Record}); err != nil {
			return err
		}
		e.namespaces[op.Namespace][op.Key] = op.Record
	}
	return nil
}
