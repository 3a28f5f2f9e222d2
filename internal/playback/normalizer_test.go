package playback

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejashwikalptaru/gotune-core/internal/adapter/eventbus"
	"github.com/tejashwikalptaru/gotune-core/internal/domain"
	"github.com/tejashwikalptaru/gotune-core/internal/logger"
	"github.com/tejashwikalptaru/gotune-core/internal/persist"
	"github.com/tejashwikalptaru/gotune-core/internal/ports"
	"github.com/tejashwikalptaru/gotune-core/internal/store"
)

func newTestNormalizer(t *testing.T) (*Normalizer, *store.Store) {
	t.Helper()
	kv := persist.NewMemoryKV()
	bus := eventbus.NewSyncEventBus()
	t.Cleanup(func() { _ = bus.Close() })
	s := store.New(logger.NewTestLogger(), kv, bus)
	return NewNormalizer(s), s
}

func track(id string) domain.Track {
	return domain.Track{ID: id, LocalPath: "/music/" + id + ".mp3", Title: id}
}

func TestApplyPlayPauseLoadingSetsState(t *testing.T) {
	n, s := newTestNormalizer(t)

	n.Apply(ports.BackendEvent{Kind: ports.BackendLoading})
	assert.Equal(t, domain.StateLoading, s.State())

	n.Apply(ports.BackendEvent{Kind: ports.BackendPlay})
	assert.Equal(t, domain.StatePlaying, s.State())

	n.Apply(ports.BackendEvent{Kind: ports.BackendPause})
	assert.Equal(t, domain.StatePaused, s.State())
}

func TestApplyTimeUpdateAdvancesStoreTime(t *testing.T) {
	n, s := newTestNormalizer(t)
	n.Apply(ports.BackendEvent{Kind: ports.BackendTimeUpdate, Position: 12})
	assert.Equal(t, int64(12), s.CurrentTime().Nanoseconds())
}

func TestApplyEndedSequentialLastTrackStops(t *testing.T) {
	n, s := newTestNormalizer(t)
	s.AddToQueue([]domain.Track{track("a"), track("b")})
	s.ChangeIndex(1, false)

	action, _ := n.Apply(ports.BackendEvent{Kind: ports.BackendEnded})

	assert.Equal(t, ActionStop, action)
	assert.Equal(t, domain.StateStopped, s.State())
}

func TestApplyEndedSequentialAdvances(t *testing.T) {
	n, s := newTestNormalizer(t)
	s.AddToQueue([]domain.Track{track("a"), track("b")})

	action, tr := n.Apply(ports.BackendEvent{Kind: ports.BackendEnded})

	require.Equal(t, ActionLoadAndPlay, action)
	assert.Equal(t, "b", tr.ID)
	assert.Equal(t, domain.StatePlaying, s.State())
	assert.Equal(t, 1, s.CurrentIndex())
}

func TestApplyEndedSingleReloadsSameIndex(t *testing.T) {
	n, s := newTestNormalizer(t)
	s.AddToQueue([]domain.Track{track("a"), track("b")})
	s.TogglePlayerMode() // -> Single

	action, tr := n.Apply(ports.BackendEvent{Kind: ports.BackendEnded})

	require.Equal(t, ActionLoadAndPlay, action)
	assert.Equal(t, "a", tr.ID)
	assert.Equal(t, 0, s.CurrentIndex())
}

func TestApplyEndedListLoopWrapsToZero(t *testing.T) {
	n, s := newTestNormalizer(t)
	s.AddToQueue([]domain.Track{track("a"), track("b")})
	s.ChangeIndex(1, false)
	s.TogglePlayerMode() // Single
	s.TogglePlayerMode() // Shuffle
	s.TogglePlayerMode() // ListLoop

	action, tr := n.Apply(ports.BackendEvent{Kind: ports.BackendEnded})

	require.Equal(t, ActionLoadAndPlay, action)
	assert.Equal(t, "a", tr.ID)
	assert.Equal(t, 0, s.CurrentIndex())
}

func TestApplyEndedShuffleDegradesToSingleWhenQueueLenOne(t *testing.T) {
	n, s := newTestNormalizer(t)
	s.AddToQueue([]domain.Track{track("a")})
	s.TogglePlayerMode() // Single
	s.TogglePlayerMode() // Shuffle

	action, tr := n.Apply(ports.BackendEvent{Kind: ports.BackendEnded})

	require.Equal(t, ActionLoadAndPlay, action)
	assert.Equal(t, "a", tr.ID)
}

func TestApplyEndedShuffleVisitsEachIndexOnce(t *testing.T) {
	n, s := newTestNormalizer(t)
	s.AddToQueue([]domain.Track{track("a"), track("b"), track("c"), track("d")})
	s.TogglePlayerMode() // Single
	s.TogglePlayerMode() // Shuffle

	seen := map[int]int{0: 1} // starting index already "visited"
	for i := 0; i < 3; i++ {
		_, _ = n.Apply(ports.BackendEvent{Kind: ports.BackendEnded})
		seen[s.CurrentIndex()]++
	}
	for idx, count := range seen {
		assert.Equalf(t, 1, count, "index %d visited %d times in one bag cycle", idx, count)
	}
}

func TestApplyErrorIsNoOp(t *testing.T) {
	n, s := newTestNormalizer(t)
	s.SetState(domain.StatePlaying)

	action, _ := n.Apply(ports.BackendEvent{Kind: ports.BackendError})

	assert.Equal(t, ActionNone, action)
	assert.Equal(t, domain.StatePlaying, s.State(), "error handling belongs to the orchestrator's error channel")
}
