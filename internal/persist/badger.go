// Package persist implements ports.KVStore and ports.PluginTable backed by
// an embedded badger/v4 database, with in-memory doubles for tests.
package persist

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/tejashwikalptaru/gotune-core/internal/domain"
	"github.com/tejashwikalptaru/gotune-core/internal/ports"
)

const pluginKeyPrefix = "plugin:"

// BadgerDB wraps a single opened badger database shared by the player-store
// KV namespace and the plugin table's prefixed namespace.
type BadgerDB struct {
	db *badger.DB
}

// OpenBadgerDB opens (creating if necessary) a badger database at path.
func OpenBadgerDB(path string) (*BadgerDB, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}
	return &BadgerDB{db: db}, nil
}

func (d *BadgerDB) Close() error { return d.db.Close() }

// KV returns the player-store KV namespace view of this database.
func (d *BadgerDB) KV() *BadgerKV { return &BadgerKV{db: d.db} }

// Plugins returns the plugin-table view of this database.
func (d *BadgerDB) Plugins() *BadgerPluginTable { return &BadgerPluginTable{db: d.db} }

// BadgerKV is a ports.KVStore over unprefixed keys.
type BadgerKV struct {
	db *badger.DB
}

func (b *BadgerKV) Close() error { return nil } // lifecycle owned by BadgerDB

func (b *BadgerKV) Get(keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	err := b.db.View(func(txn *badger.Txn) error {
		for _, k := range keys {
			item, err := txn.Get([]byte(k))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if err := item.Value(func(val []byte) error {
				cp := make([]byte, len(val))
				copy(cp, val)
				out[k] = cp
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *BadgerKV) Set(kvs map[string][]byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		for k, v := range kvs {
			if err := txn.Set([]byte(k), v); err != nil {
				return err
			}
		}
		return nil
	})
}

// BadgerPluginTable is a ports.PluginTable over keys prefixed "plugin:".
type BadgerPluginTable struct {
	db *badger.DB
}

func (b *BadgerPluginTable) Get(id string) (domain.PluginState, bool, error) {
	var state domain.PluginState
	found := false
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(pluginKeyPrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &state)
		})
	})
	return state, found, err
}

func (b *BadgerPluginTable) ByName(name string) (domain.PluginState, bool, error) {
	all, err := b.ListAll()
	if err != nil {
		return domain.PluginState{}, false, err
	}
	for _, p := range all {
		if p.Name == name {
			return p, true, nil
		}
	}
	return domain.PluginState{}, false, nil
}

func (b *BadgerPluginTable) Put(state domain.PluginState) error {
	buf, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(pluginKeyPrefix+state.ID), buf)
	})
}

func (b *BadgerPluginTable) ListAll() ([]domain.PluginState, error) {
	var out []domain.PluginState
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(pluginKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			item := it.Item()
			var state domain.PluginState
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &state)
			}); err != nil {
				return err
			}
			out = append(out, state)
		}
		return nil
	})
	return out, err
}

func (b *BadgerPluginTable) ListEnabled() ([]domain.PluginState, error) {
	all, err := b.ListAll()
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, p := range all {
		if p.Enabled {
			out = append(out, p)
		}
	}
	return out, nil
}

// Enable sets the enabled flag, upserting a bare row first if none exists
// yet (spec.md §4.8: "On enable with no prior row, upsert a row with
// enabled=true").
func (b *BadgerPluginTable) Enable(id string) error {
	state, ok, err := b.Get(id)
	if err != nil {
		return err
	}
	if !ok {
		now := time.Now()
		state = domain.PluginState{ID: id, InstalledAt: now, LastUpdated: now}
	}
	state.Enabled = true
	return b.Put(state)
}

func (b *BadgerPluginTable) Disable(id string) error { return b.setEnabled(id, false) }

func (b *BadgerPluginTable) setEnabled(id string, enabled bool) error {
	state, ok, err := b.Get(id)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrPluginNotFound
	}
	state.Enabled = enabled
	return b.Put(state)
}

func (b *BadgerPluginTable) UpdateLastUsed(id string, now time.Time) error {
	state, ok, err := b.Get(id)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrPluginNotFound
	}
	state.LastUsed = now
	return b.Put(state)
}

func (b *BadgerPluginTable) UpdateID(oldID, newID string) error {
	state, ok, err := b.Get(oldID)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrPluginNotFound
	}
	state.ID = newID
	if err := b.Put(state); err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(pluginKeyPrefix + oldID))
	})
}

var (
	_ ports.KVStore     = (*BadgerKV)(nil)
	_ ports.PluginTable = (*BadgerPluginTable)(nil)
)
