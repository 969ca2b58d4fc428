package walengine

import (
	"encoding/json"
	"os"

	"github.com/solisoft/solidb-sub010/internal/storage"
)

// Snapshots provide a compact, point-in-time backup of every namespace so
// restart doesn't need to replay the whole log.
type snapshotManager struct {
	path string
}

func newSnapshotManager(path string) *snapshotManager {
	return &snapshotManager{path: path}
}

func (s *snapshotManager) Save(state map[string]map[string]storage.Record) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}

	// write to a tmp file, then rename: the old snapshot is swapped only
	// after the new one is fully written.
	tempPath := s.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tempPath, s.path)
}

func (s *snapshotManager) Load() (map[string]map[string]storage.Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var state map[string]map[string]storage.Record
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	return state, nil
}
