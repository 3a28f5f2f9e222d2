package provider

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tejashwikalptaru/gotune-core/internal/domain"
	"github.com/tejashwikalptaru/gotune-core/internal/ports"
)

//go:embed assets/icon.png assets/manifest.json
var builtinAssets embed.FS

// builtinNamespace is the UUID namespace built-in plugin ids are derived
// from (spec.md §4.8/§9): NewSHA1(builtinNamespace, "builtin:<name>").
var builtinNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("gotune-core.builtin-plugins"))

// BuiltinPluginID derives the stable UUIDv5 id for a built-in plugin from
// its name, so duplicate rows never appear across runs even though the
// in-process struct is re-instantiated each start.
func BuiltinPluginID(name string) string {
	return uuid.NewSHA1(builtinNamespace, []byte("builtin:"+name)).String()
}

// registeredPlugin couples a live Provider with its permission
// restrictions and runtime lifecycle state.
type registeredPlugin struct {
	provider     ports.Provider
	restrictions map[ports.Capability]struct{}
	lifecycle    ports.PluginStatus
}

// Registry is the Plugin Lifecycle & Registry (C8): it owns the set of
// loaded plugins, gates capability use through a Permissions model, and
// persists enabled/installed state through a ports.PluginTable.
type Registry struct {
	logger      *slog.Logger
	table       ports.PluginTable
	permissions *Permissions
	pluginRoot  string

	mu      sync.RWMutex
	plugins map[string]*registeredPlugin
}

// NewRegistry builds a Registry backed by table, enforcing perms, with
// plugin install directories rooted at pluginRoot (spec.md §4.8's install
// layout: <plugin_root>/<id>/assets/... and manifest.json).
func NewRegistry(logger *slog.Logger, table ports.PluginTable, perms *Permissions, pluginRoot string) *Registry {
	return &Registry{
		logger:      logger,
		table:       table,
		permissions: perms,
		pluginRoot:  pluginRoot,
		plugins:     make(map[string]*registeredPlugin),
	}
}

// RegisterBuiltin registers a built-in provider, ensuring its persisted row
// exists (migrating a stale id under the same name if found) and writing
// its install-layout assets from the embedded defaults if missing.
func (r *Registry) RegisterBuiltin(ctx context.Context, p ports.Provider, restrictions ...ports.Capability) error {
	id := BuiltinPluginID(p.Name())
	if err := r.reconcileRow(id, p, true); err != nil {
		return err
	}
	if err := r.ensureInstallAssets(id); err != nil {
		r.logger.Warn("failed to write builtin plugin assets", slog.String("plugin", id), slog.Any("error", err))
	}
	return r.register(ctx, id, p, restrictions)
}

// RegisterExternal registers a non-built-in provider under its own
// self-reported ID, ensuring a persisted row exists.
func (r *Registry) RegisterExternal(ctx context.Context, p ports.Provider, restrictions ...ports.Capability) error {
	if err := r.reconcileRow(p.ID(), p, false); err != nil {
		return err
	}
	return r.register(ctx, p.ID(), p, restrictions)
}

func (r *Registry) reconcileRow(id string, p ports.Provider, builtin bool) error {
	if row, ok, err := r.table.ByName(p.Name()); err == nil && ok && row.ID != id {
		if err := r.table.UpdateID(row.ID, id); err != nil {
			return fmt.Errorf("migrate plugin id for %q: %w", p.Name(), err)
		}
	}
	if _, ok, err := r.table.Get(id); err != nil {
		return fmt.Errorf("load plugin row %s: %w", id, err)
	} else if !ok {
		now := time.Now()
		row := domain.PluginState{
			ID:          id,
			Name:        p.Name(),
			DisplayName: p.Name(),
			Version:     p.Version(),
			Type:        p.Type(),
			Enabled:     builtin,
			Installed:   true,
			Builtin:     builtin,
			InstalledAt: now,
			LastUpdated: now,
		}
		if err := r.table.Put(row); err != nil {
			return fmt.Errorf("create plugin row %s: %w", id, err)
		}
	}
	return nil
}

func (r *Registry) ensureInstallAssets(id string) error {
	dir := filepath.Join(r.pluginRoot, id, "assets", "icons")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	iconPath := filepath.Join(dir, "icon.png")
	if _, err := os.Stat(iconPath); os.IsNotExist(err) {
		data, rerr := builtinAssets.ReadFile("assets/icon.png")
		if rerr == nil {
			_ = os.WriteFile(iconPath, data, 0o644)
		}
	}
	manifestPath := filepath.Join(r.pluginRoot, id, "manifest.json")
	if _, err := os.Stat(manifestPath); os.IsNotExist(err) {
		data, rerr := builtinAssets.ReadFile("assets/manifest.json")
		if rerr == nil {
			_ = os.WriteFile(manifestPath, data, 0o644)
		}
	}
	return nil
}

// register transitions p through Loaded -> Ready (initialize), validating
// capabilities against the permission model, and starts the plugin's
// runtime only when its persisted row is already enabled (otherwise see
// Enable).
func (r *Registry) register(ctx context.Context, id string, p ports.Provider, restrictions []ports.Capability) error {
	restrictionSet := make(map[ports.Capability]struct{}, len(restrictions))
	for _, c := range restrictions {
		restrictionSet[c] = struct{}{}
	}

	if err := r.validateCapabilities(id, p, restrictionSet); err != nil {
		r.mu.Lock()
		r.plugins[id] = &registeredPlugin{provider: p, restrictions: restrictionSet, lifecycle: ports.StatusError}
		r.mu.Unlock()
		return err
	}

	if err := p.Initialize(ctx); err != nil {
		return domain.NewServiceError("registry", "initialize", err.Error(), err)
	}

	r.mu.Lock()
	r.plugins[id] = &registeredPlugin{provider: p, restrictions: restrictionSet, lifecycle: ports.StatusReady}
	r.mu.Unlock()

	row, ok, err := r.table.Get(id)
	if err == nil && ok && row.Enabled {
		return r.Start(id)
	}
	return nil
}

func (r *Registry) validateCapabilities(id string, p ports.Provider, restrictions map[ports.Capability]struct{}) error {
	for _, c := range p.Capabilities() {
		if !r.permissions.CapabilityAllowed(c, restrictions) {
			return domain.NewSecurityViolationError(id, string(c), "capability not permitted")
		}
	}
	return nil
}

// Start transitions a Ready/Stopped plugin to Running.
func (r *Registry) Start(id string) error {
	r.mu.Lock()
	rp, ok := r.plugins[id]
	r.mu.Unlock()
	if !ok {
		return domain.ErrPluginNotFound
	}
	if err := rp.provider.Start(); err != nil {
		return domain.NewServiceError("registry", "start", err.Error(), err)
	}
	r.mu.Lock()
	rp.lifecycle = ports.StatusRunning
	r.mu.Unlock()
	return nil
}

// Stop transitions a Running plugin to Stopped.
func (r *Registry) Stop(id string) error {
	r.mu.Lock()
	rp, ok := r.plugins[id]
	r.mu.Unlock()
	if !ok {
		return domain.ErrPluginNotFound
	}
	err := rp.provider.Stop()
	r.mu.Lock()
	rp.lifecycle = ports.StatusStopped
	r.mu.Unlock()
	return err
}

// Destroy transitions a plugin to Unloaded and removes it from the
// registry's in-memory set (the persisted row survives for later re-load).
func (r *Registry) Destroy(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.plugins, id)
}

// Enable flips the persisted enabled flag on and starts the plugin's
// runtime. If no row exists yet, ports.PluginTable.Enable upserts one with
// enabled=true; its metadata is then backfilled from the in-process
// provider, if one is registered under id.
func (r *Registry) Enable(id string) error {
	if err := r.table.Enable(id); err != nil {
		return err
	}
	r.backfillRowMetadata(id)
	return r.Start(id)
}

// backfillRowMetadata fills in Name/DisplayName/Version/Type on a row that
// Enable upserted bare (no prior row), using the live provider's
// self-reported metadata, if the plugin is registered in-process.
func (r *Registry) backfillRowMetadata(id string) {
	r.mu.RLock()
	rp, ok := r.plugins[id]
	r.mu.RUnlock()
	if !ok {
		return
	}
	row, ok, err := r.table.Get(id)
	if err != nil || !ok || row.Name != "" {
		return
	}
	row.Name = rp.provider.Name()
	row.DisplayName = rp.provider.Name()
	row.Version = rp.provider.Version()
	row.Type = rp.provider.Type()
	row.Installed = true
	if err := r.table.Put(row); err != nil {
		r.logger.Warn("failed to backfill plugin row metadata", slog.String("plugin", id), slog.Any("error", err))
	}
}

// Disable flips the persisted enabled flag off and stops the plugin's
// runtime.
func (r *Registry) Disable(id string) error {
	if err := r.table.Disable(id); err != nil {
		return err
	}
	return r.Stop(id)
}

// Provider returns the live provider for id, if registered.
func (r *Registry) Provider(id string) (ports.Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rp, ok := r.plugins[id]
	if !ok {
		return nil, false
	}
	return rp.provider, true
}

// Status returns the in-process lifecycle status for id.
func (r *Registry) Status(id string) (ports.PluginStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rp, ok := r.plugins[id]
	if !ok {
		return ports.StatusUnloaded, false
	}
	return rp.lifecycle, true
}

// Enabled returns every persisted row with Enabled set.
func (r *Registry) Enabled() ([]domain.PluginState, error) {
	return r.table.ListEnabled()
}

// All returns every persisted plugin row.
func (r *Registry) All() ([]domain.PluginState, error) {
	return r.table.ListAll()
}

// HealthCheck runs every running plugin's self-reported health check and
// returns the aggregate map, keyed by plugin id.
func (r *Registry) HealthCheck(ctx context.Context) map[string]ports.HealthStatus {
	r.mu.RLock()
	snapshot := make(map[string]ports.Provider, len(r.plugins))
	for id, rp := range r.plugins {
		if rp.lifecycle == ports.StatusRunning {
			snapshot[id] = rp.provider
		}
	}
	r.mu.RUnlock()

	out := make(map[string]ports.HealthStatus, len(snapshot))
	for id, p := range snapshot {
		out[id] = p.HealthCheck(ctx)
	}
	return out
}

// Touch stamps last_used with now, used when a provider call succeeds. id
// may be a registry id or a registered provider's own ID(); the latter is
// mapped to the registry id its row is stored under (built-ins differ).
func (r *Registry) Touch(id string, now time.Time) error {
	r.mu.RLock()
	if _, ok := r.plugins[id]; !ok {
		for rid, rp := range r.plugins {
			if rp.provider.ID() == id {
				id = rid
				break
			}
		}
	}
	r.mu.RUnlock()
	return r.table.UpdateLastUsed(id, now)
}
