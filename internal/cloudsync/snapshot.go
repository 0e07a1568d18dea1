package cloudsync

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

const snapshotVersion = 1

type snapshotFile struct {
	Version int       `json:"version"`
	SavedAt time.Time `json:"savedAt"`
	Entries []entry   `json:"entries"`
}

// SaveSnapshot writes the client snapshot, pending edits included, to path.
// The file is replaced atomically.
func (m *SyncManager) SaveSnapshot(path string) error {
	m.mu.Lock()
	file := snapshotFile{Version: snapshotVersion, SavedAt: m.now().UTC(), Entries: make([]entry, 0, len(m.entries))}
	for _, e := range m.entries {
		cp := entry{Base: e.Base}
		if e.Local != nil {
			local := *e.Local
			cp.Local = &local
		}
		file.Entries = append(file.Entries, cp)
	}
	m.mu.Unlock()
	sort.Slice(file.Entries, func(i, j int) bool { return file.Entries[i].Base.ID < file.Entries[j].Base.ID })

	b, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// LoadSnapshot replaces the in-memory snapshot with the one stored at path.
// A missing file leaves the snapshot empty.
func (m *SyncManager) LoadSnapshot(path string) error {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read snapshot %s: %w", path, err)
	}
	var file snapshotFile
	if err := json.Unmarshal(b, &file); err != nil {
		return fmt.Errorf("parse snapshot %s: %w", path, err)
	}
	if file.Version != snapshotVersion {
		return fmt.Errorf("snapshot %s: unsupported version %d", path, file.Version)
	}
	entries := make(map[string]*entry, len(file.Entries))
	for i := range file.Entries {
		e := file.Entries[i]
		if e.Base.ID == "" {
			continue
		}
		entries[e.Base.ID] = &e
	}
	m.mu.Lock()
	m.entries = entries
	m.mu.Unlock()
	return nil
}
