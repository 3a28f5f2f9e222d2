package provider

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejashwikalptaru/gotune-core/internal/domain"
	"github.com/tejashwikalptaru/gotune-core/internal/logger"
	"github.com/tejashwikalptaru/gotune-core/internal/persist"
	"github.com/tejashwikalptaru/gotune-core/internal/ports"
)

func newTestRegistry(t *testing.T) (*Registry, *persist.MemoryPluginTable) {
	t.Helper()
	table := persist.NewMemoryPluginTable()
	root := t.TempDir()
	perms := NewPermissions(ports.CapSearch, ports.CapStreaming)
	return NewRegistry(logger.NewTestLogger(), table, perms, root), table
}

func TestRegisterBuiltinIDIsStableAcrossInstances(t *testing.T) {
	id1 := BuiltinPluginID("navidrome")
	id2 := BuiltinPluginID("navidrome")
	assert.Equal(t, id1, id2)
	assert.NotEqual(t, id1, BuiltinPluginID("bilibili"))
}

func TestRegisterBuiltinCreatesRowAndAssets(t *testing.T) {
	reg, table := newTestRegistry(t)
	p := &fakeProvider{id: "ignored-self-id", caps: []ports.Capability{ports.CapSearch}}

	err := reg.RegisterBuiltin(context.Background(), p)
	require.NoError(t, err)

	id := BuiltinPluginID(p.Name())
	row, ok, err := table.Get(id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, row.Builtin)
	assert.True(t, row.Enabled)

	_, statOk := reg.Provider(id)
	assert.True(t, statOk)

	_, err = os.Stat(reg.pluginRoot + "/" + id + "/manifest.json")
	assert.NoError(t, err)
}

func TestRegisterBuiltinMigratesStaleIDUnderSameName(t *testing.T) {
	reg, table := newTestRegistry(t)
	p := &fakeProvider{id: "x", caps: nil}

	staleID := "stale-uuid"
	require.NoError(t, table.Put(domain.PluginState{ID: staleID, Name: p.Name(), Enabled: true}))

	require.NoError(t, reg.RegisterBuiltin(context.Background(), p))

	canonical := BuiltinPluginID(p.Name())
	_, staleExists, _ := table.Get(staleID)
	assert.False(t, staleExists, "stale row should have migrated away from its old id")
	row, ok, _ := table.Get(canonical)
	require.True(t, ok)
	assert.Equal(t, canonical, row.ID)
}

func TestRegisterRefusesCapabilityNotPermitted(t *testing.T) {
	reg, _ := newTestRegistry(t)
	p := &fakeProvider{id: "x", caps: []ports.Capability{ports.CapFileSystem}} // not in the registry's allowed set

	err := reg.RegisterExternal(context.Background(), p)
	require.Error(t, err)
	var secErr *domain.SecurityViolationError
	assert.ErrorAs(t, err, &secErr)
}

func TestPerPluginRestrictionSubtractsAllowedCapability(t *testing.T) {
	reg, _ := newTestRegistry(t)
	p := &fakeProvider{id: "x", caps: []ports.Capability{ports.CapSearch}}

	err := reg.RegisterExternal(context.Background(), p, ports.CapSearch)
	require.Error(t, err)
}

func TestEnableDisableTogglesPersistedRowAndRuntime(t *testing.T) {
	reg, table := newTestRegistry(t)
	p := &fakeProvider{id: "x", caps: []ports.Capability{ports.CapSearch}}
	require.NoError(t, reg.RegisterExternal(context.Background(), p))

	require.NoError(t, table.Disable(p.ID()))
	status, ok := reg.Status(p.ID())
	require.True(t, ok)
	assert.Equal(t, ports.StatusReady, status, "register alone does not start a disabled plugin")

	require.NoError(t, reg.Enable(p.ID()))
	status, _ = reg.Status(p.ID())
	assert.Equal(t, ports.StatusRunning, status)

	require.NoError(t, reg.Disable(p.ID()))
	status, _ = reg.Status(p.ID())
	assert.Equal(t, ports.StatusStopped, status)
}

func TestEnableUnknownPluginErrors(t *testing.T) {
	reg, _ := newTestRegistry(t)
	err := reg.Enable("does-not-exist")
	assert.ErrorIs(t, err, domain.ErrPluginNotFound)
}

func TestEnableWithNoPriorRowUpsertsEnabledRow(t *testing.T) {
	reg, table := newTestRegistry(t)

	// No Put/RegisterExternal happened for this id: Enable's table call
	// must still create an enabled=true row (the runtime start still
	// fails, since the plugin is never registered in-process).
	err := reg.Enable("unseen")
	assert.ErrorIs(t, err, domain.ErrPluginNotFound)

	row, ok, getErr := table.Get("unseen")
	require.NoError(t, getErr)
	require.True(t, ok, "Enable must upsert a row even when none existed")
	assert.True(t, row.Enabled)
}

func TestEnableBackfillsRowMetadataFromLiveProvider(t *testing.T) {
	reg, table := newTestRegistry(t)
	p := &fakeProvider{id: "x", caps: []ports.Capability{ports.CapSearch}}

	// register() loads the provider in-process without touching
	// persistence (unlike RegisterExternal, which also reconciles a row),
	// simulating a plugin that's live but has no persisted row yet.
	require.NoError(t, reg.register(context.Background(), p.ID(), p, nil))

	require.NoError(t, reg.Enable(p.ID()))
	row, ok, err := table.Get(p.ID())
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, row.Enabled)
	assert.Equal(t, p.Name(), row.Name)
	assert.Equal(t, p.Version(), row.Version)
}

func TestHealthCheckOnlyQueriesRunningPlugins(t *testing.T) {
	reg, _ := newTestRegistry(t)
	p := &fakeProvider{id: "x", caps: []ports.Capability{ports.CapSearch}}
	require.NoError(t, reg.RegisterExternal(context.Background(), p))
	// RegisterExternal's row is not builtin and not pre-enabled, so Start
	// never ran; HealthCheck must therefore skip it.

	results := reg.HealthCheck(context.Background())
	assert.Empty(t, results)

	require.NoError(t, reg.Enable(p.ID()))
	results = reg.HealthCheck(context.Background())
	assert.Contains(t, results, p.ID())
}

func TestInstallAssetsWrittenUnderPluginRoot(t *testing.T) {
	reg, _ := newTestRegistry(t)
	p := &fakeProvider{id: "x", caps: nil}
	require.NoError(t, reg.RegisterBuiltin(context.Background(), p))

	id := BuiltinPluginID(p.Name())
	_, err := os.Stat(reg.pluginRoot + "/" + id + "/manifest.json")
	assert.NoError(t, err)
}
