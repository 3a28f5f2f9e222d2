package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejashwikalptaru/gotune-core/internal/adapter/eventbus"
	"github.com/tejashwikalptaru/gotune-core/internal/domain"
	"github.com/tejashwikalptaru/gotune-core/internal/logger"
	"github.com/tejashwikalptaru/gotune-core/internal/persist"
	"github.com/tejashwikalptaru/gotune-core/internal/ports"
)

func newTestStore(t *testing.T) (*Store, *persist.MemoryKV) {
	t.Helper()
	kv := persist.NewMemoryKV()
	bus := eventbus.NewSyncEventBus()
	t.Cleanup(func() { _ = bus.Close() })
	return New(logger.NewTestLogger(), kv, bus), kv
}

func track(id string) domain.Track {
	return domain.Track{ID: id, LocalPath: "/music/" + id + ".mp3", Title: id}
}

func TestAddToQueueFirstTrackBecomesCurrent(t *testing.T) {
	s, _ := newTestStore(t)
	s.AddToQueue([]domain.Track{track("a"), track("b")})

	require.Equal(t, 2, s.QueueLen())
	require.Equal(t, 0, s.CurrentIndex())
	cur, ok := s.CurrentTrack()
	require.True(t, ok)
	assert.Equal(t, "a", cur.ID)
}

func TestAddToQueueSkipsDuplicates(t *testing.T) {
	s, _ := newTestStore(t)
	s.AddToQueue([]domain.Track{track("a")})
	s.AddToQueue([]domain.Track{track("a"), track("b")})

	assert.Equal(t, 2, s.QueueLen())
}

func TestPlayNowExistingTrackJumps(t *testing.T) {
	s, _ := newTestStore(t)
	s.AddToQueue([]domain.Track{track("a"), track("b"), track("c")})

	s.PlayNow(track("c"))

	assert.Equal(t, 2, s.CurrentIndex())
	assert.Equal(t, 3, s.QueueLen())
}

func TestPlayNowNewTrackInsertsAfterCurrent(t *testing.T) {
	s, _ := newTestStore(t)
	s.AddToQueue([]domain.Track{track("a"), track("b")})

	s.PlayNow(track("x"))

	assert.Equal(t, 1, s.CurrentIndex())
	assert.Equal(t, 3, s.QueueLen())
	cur, ok := s.CurrentTrack()
	require.True(t, ok)
	assert.Equal(t, "x", cur.ID)
}

func TestRemoveBeforeCurrentDecrementsIndex(t *testing.T) {
	s, _ := newTestStore(t)
	s.AddToQueue([]domain.Track{track("a"), track("b"), track("c")})
	s.ChangeIndex(2, false)

	s.Remove(0)

	assert.Equal(t, 1, s.CurrentIndex())
	cur, ok := s.CurrentTrack()
	require.True(t, ok)
	assert.Equal(t, "c", cur.ID)
}

func TestNextPrevTrackWraparound(t *testing.T) {
	s, _ := newTestStore(t)
	s.AddToQueue([]domain.Track{track("a"), track("b")})

	s.NextTrack()
	assert.Equal(t, 1, s.CurrentIndex())
	s.NextTrack()
	assert.Equal(t, 0, s.CurrentIndex())
	s.PrevTrack()
	assert.Equal(t, 1, s.CurrentIndex())
}

func TestTogglePlayerModeCycle(t *testing.T) {
	s, _ := newTestStore(t)
	assert.Equal(t, domain.RepeatSequential, s.Mode())
	assert.Equal(t, domain.RepeatSingle, s.TogglePlayerMode())
	assert.Equal(t, domain.RepeatShuffle, s.TogglePlayerMode())
	assert.Equal(t, domain.RepeatListLoop, s.TogglePlayerMode())
	assert.Equal(t, domain.RepeatSequential, s.TogglePlayerMode())
}

func TestBlacklistClearedOnClear(t *testing.T) {
	s, _ := newTestStore(t)
	s.Blacklist("rodio")
	assert.True(t, s.IsBlacklisted("rodio"))
	assert.True(t, s.ForceLoadTrack())
	assert.False(t, s.ForceLoadTrack(), "force flag should clear after read")

	s.ClearBlacklist()
	assert.False(t, s.IsBlacklisted("rodio"))
}

func TestVolumePersistSeparateScopesByTrackKey(t *testing.T) {
	s, _ := newTestStore(t)
	s.volumeMode = domain.VolumePersistSeparate
	s.AddToQueue([]domain.Track{track("a")})

	s.SetVolume(42)
	assert.Equal(t, 42.0, s.Volume())

	s.NextTrack() // wraps back to the only track; still same key
	assert.Equal(t, 42.0, s.Volume())
}

func TestColdStartPlayingDowngradesToPaused(t *testing.T) {
	kv := persist.NewMemoryKV()
	bus := eventbus.NewSyncEventBus()
	defer bus.Close()

	seed := New(logger.NewTestLogger(), kv, bus)
	seed.AddToQueue([]domain.Track{track("t1"), track("t2")})
	seed.SetState(domain.StatePlaying)

	restarted := New(logger.NewTestLogger(), kv, bus)
	assert.Equal(t, domain.StatePaused, restarted.State())
	assert.Equal(t, time.Duration(0), restarted.CurrentTime())
}

func TestOutOfBoundsIndexClampedOnLoad(t *testing.T) {
	kv := persist.NewMemoryKV()
	bus := eventbus.NewSyncEventBus()
	defer bus.Close()

	seed := New(logger.NewTestLogger(), kv, bus)
	seed.AddToQueue([]domain.Track{track("t1"), track("t2")})
	seed.ChangeIndex(1, false)
	_ = kv.Set(map[string][]byte{ports.KeyCurrentIndex: []byte("99")})

	restarted := New(logger.NewTestLogger(), kv, bus)
	assert.Equal(t, 0, restarted.CurrentIndex())
}
