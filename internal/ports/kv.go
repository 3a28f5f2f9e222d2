package ports

import (
	"time"

	"github.com/tejashwikalptaru/gotune-core/internal/domain"
)

// Recognized keys in the player store's KV namespace.
const (
	KeyPlayerState  = "player_state"
	KeyTrackQueue   = "track_queue"
	KeyCurrentIndex = "current_index"
	KeyQueueData    = "queue_data"
)

// KVStore is a small generic key/value store keyed by opaque string keys,
// with values stored as opaque encoded bytes. Get/Set operate in batches so
// the player store can load or persist all four recognized keys atomically.
type KVStore interface {
	// Get fetches the value for each key present in keys. Keys with no
	// stored value are simply absent from the result map.
	Get(keys []string) (map[string][]byte, error)

	// Set writes every key/value pair in kvs.
	Set(kvs map[string][]byte) error

	// Close releases any resources (file handles, connections) the store holds.
	Close() error
}

// PluginTable is the persisted plugin-state table: one row per installed or
// built-in provider plugin, keyed by the plugin's stable UUID.
type PluginTable interface {
	// Get returns the row for id, or (false) if no such row exists.
	Get(id string) (domain.PluginState, bool, error)

	// ByName returns the row whose Name matches, or (false) if none.
	ByName(name string) (domain.PluginState, bool, error)

	// Put inserts or replaces a row.
	Put(state domain.PluginState) error

	// ListAll returns every row, in no particular order.
	ListAll() ([]domain.PluginState, error)

	// ListEnabled returns every row with Enabled set.
	ListEnabled() ([]domain.PluginState, error)

	// Enable sets Enabled true for id.
	Enable(id string) error

	// Disable sets Enabled false for id.
	Disable(id string) error

	// UpdateLastUsed stamps LastUsed with now for id.
	UpdateLastUsed(id string, now time.Time) error

	// UpdateID migrates a row from oldID to newID in place, preserving the
	// rest of the row. Used when a built-in plugin's canonical UUID changes
	// because the row was created under a stale id.
	UpdateID(oldID, newID string) error
}
