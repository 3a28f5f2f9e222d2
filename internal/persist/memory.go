package persist

import (
	"sync"
	"time"

	"github.com/tejashwikalptaru/gotune-core/internal/domain"
	"github.com/tejashwikalptaru/gotune-core/internal/ports"
)

// MemoryKV is an in-memory ports.KVStore, used in tests in place of BadgerKV.
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string][]byte)}
}

func (m *MemoryKV) Get(keys []string) (map[string][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		if v, ok := m.data[k]; ok {
			cp := make([]byte, len(v))
			copy(cp, v)
			out[k] = cp
		}
	}
	return out, nil
}

func (m *MemoryKV) Set(kvs map[string][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range kvs {
		m.data[k] = v
	}
	return nil
}

func (m *MemoryKV) Close() error { return nil }

// MemoryPluginTable is an in-memory ports.PluginTable.
type MemoryPluginTable struct {
	mu   sync.RWMutex
	rows map[string]domain.PluginState
}

func NewMemoryPluginTable() *MemoryPluginTable {
	return &MemoryPluginTable{rows: make(map[string]domain.PluginState)}
}

func (m *MemoryPluginTable) Get(id string) (domain.PluginState, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.rows[id]
	return s, ok, nil
}

func (m *MemoryPluginTable) ByName(name string) (domain.PluginState, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.rows {
		if s.Name == name {
			return s, true, nil
		}
	}
	return domain.PluginState{}, false, nil
}

func (m *MemoryPluginTable) Put(state domain.PluginState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[state.ID] = state
	return nil
}

func (m *MemoryPluginTable) ListAll() ([]domain.PluginState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.PluginState, 0, len(m.rows))
	for _, s := range m.rows {
		out = append(out, s)
	}
	return out, nil
}

func (m *MemoryPluginTable) ListEnabled() ([]domain.PluginState, error) {
	all, _ := m.ListAll()
	out := all[:0]
	for _, s := range all {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out, nil
}

// Enable sets the enabled flag, upserting a bare row first if none exists
// yet (spec.md §4.8: "On enable with no prior row, upsert a row with
// enabled=true").
func (m *MemoryPluginTable) Enable(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[id]
	if !ok {
		now := time.Now()
		s = domain.PluginState{ID: id, InstalledAt: now, LastUpdated: now}
	}
	s.Enabled = true
	m.rows[id] = s
	return nil
}

func (m *MemoryPluginTable) Disable(id string) error { return m.setEnabled(id, false) }

func (m *MemoryPluginTable) setEnabled(id string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[id]
	if !ok {
		return domain.ErrPluginNotFound
	}
	s.Enabled = enabled
	m.rows[id] = s
	return nil
}

func (m *MemoryPluginTable) UpdateLastUsed(id string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[id]
	if !ok {
		return domain.ErrPluginNotFound
	}
	s.LastUsed = now
	m.rows[id] = s
	return nil
}

func (m *MemoryPluginTable) UpdateID(oldID, newID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[oldID]
	if !ok {
		return domain.ErrPluginNotFound
	}
	delete(m.rows, oldID)
	s.ID = newID
	m.rows[newID] = s
	return nil
}

var (
	_ ports.KVStore     = (*MemoryKV)(nil)
	_ ports.PluginTable = (*MemoryPluginTable)(nil)
)
