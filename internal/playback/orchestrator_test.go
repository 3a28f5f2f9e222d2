package playback

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejashwikalptaru/gotune-core/internal/adapter/eventbus"
	"github.com/tejashwikalptaru/gotune-core/internal/domain"
	"github.com/tejashwikalptaru/gotune-core/internal/logger"
	"github.com/tejashwikalptaru/gotune-core/internal/persist"
	"github.com/tejashwikalptaru/gotune-core/internal/ports"
	"github.com/tejashwikalptaru/gotune-core/internal/store"
)

// fakeBackend is a minimal ports.Backend double: it records commands and
// lets a test script which events to emit for each SetSrc/Play call.
type fakeBackend struct {
	mu     sync.Mutex
	caps   []domain.SourceType
	events chan ports.BackendEvent

	setSrcErr error
	playErr   error

	setSrcCalls int
	playCalls   int
	lastSrc     domain.Track
}

func newFakeBackend(caps ...domain.SourceType) *fakeBackend {
	return &fakeBackend{caps: caps, events: make(chan ports.BackendEvent, 16)}
}

func (f *fakeBackend) Capabilities() []domain.SourceType { return f.caps }

func (f *fakeBackend) SetSrc(_ context.Context, track domain.Track) error {
	f.mu.Lock()
	f.setSrcCalls++
	f.lastSrc = track
	err := f.setSrcErr
	f.mu.Unlock()
	if err != nil {
		f.events <- ports.BackendEvent{Kind: ports.BackendError, Err: err}
		return err
	}
	f.events <- ports.BackendEvent{Kind: ports.BackendLoading}
	return nil
}

func (f *fakeBackend) Play(_ context.Context) error {
	f.mu.Lock()
	f.playCalls++
	err := f.playErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	f.events <- ports.BackendEvent{Kind: ports.BackendPlay}
	return nil
}

func (f *fakeBackend) Pause(_ context.Context) error {
	f.events <- ports.BackendEvent{Kind: ports.BackendPause}
	return nil
}

func (f *fakeBackend) Stop(_ context.Context) error {
	f.events <- ports.BackendEvent{Kind: ports.BackendPause}
	return nil
}

func (f *fakeBackend) SetVolume(_ context.Context, _ float64) error { return nil }

func (f *fakeBackend) Seek(_ context.Context, position time.Duration) error {
	f.events <- ports.BackendEvent{Kind: ports.BackendTimeUpdate, Position: position}
	return nil
}

func (f *fakeBackend) Events() <-chan ports.BackendEvent { return f.events }

func (f *fakeBackend) Close() error { close(f.events); return nil }

func (f *fakeBackend) emitEnded() { f.events <- ports.BackendEvent{Kind: ports.BackendEnded} }

type fakeResolver struct {
	url string
	err error
}

func (r *fakeResolver) ResolveStreamURL(_ context.Context, _ domain.Track) (string, error) {
	return r.url, r.err
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *persist.MemoryKV, ports.EventBus) {
	t.Helper()
	kv := persist.NewMemoryKV()
	bus := eventbus.NewSyncEventBus()
	t.Cleanup(func() { _ = bus.Close() })
	s := store.New(logger.NewTestLogger(), kv, bus)
	o := New(logger.NewTestLogger(), s, bus, nil, nil)
	return o, kv, bus
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestSelectBackendSkipsBlacklisted(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	local := newFakeBackend(domain.SourceLocal)
	other := newFakeBackend(domain.SourceLocal)
	o.Register("local-a", local)
	o.Register("local-b", other)

	o.store.Blacklist("local-a")

	idx, backend, err := o.selectBackend(domain.Track{SourceType: domain.SourceLocal})
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	assert.Same(t, ports.Backend(other), backend)
}

func TestSelectBackendReturnsPlayerNotFoundWhenNoneMatch(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	o.Register("hls-only", newFakeBackend(domain.SourceHLS))

	_, _, err := o.selectBackend(domain.Track{SourceType: domain.SourceLocal})
	assert.ErrorIs(t, err, domain.ErrPlayerNotFound)
}

func TestLoadResolvesProviderURLBeforeSelecting(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	backend := newFakeBackend(domain.SourceURL)
	o.Register("url", backend)
	o.router = &fakeResolver{url: "https://stream.example/a.mp3"}

	track := domain.Track{ID: "t1", SourceType: domain.SourceURL, ProviderExtension: "navidrome"}
	err := o.Load(context.Background(), track)
	require.NoError(t, err)
	assert.Equal(t, "https://stream.example/a.mp3", backend.lastSrc.PlaybackURL)
}

func TestLoadRejectsUnloadableTrack(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	err := o.Load(context.Background(), domain.Track{ID: "bad"})
	assert.ErrorIs(t, err, domain.ErrInvalidTrack)
}

func TestBackendErrorBlacklistsAndStops(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	backend := newFakeBackend(domain.SourceLocal)
	o.Register("local", backend)

	track := domain.Track{ID: "t1", SourceType: domain.SourceLocal, LocalPath: "/music/t1.mp3"}
	o.store.AddToQueue([]domain.Track{track})

	backend.mu.Lock()
	backend.setSrcErr = assertError
	backend.mu.Unlock()

	err := o.Load(context.Background(), track)
	require.Error(t, err)

	waitFor(t, func() bool { return o.store.IsBlacklisted("local") })
	assert.Equal(t, domain.StateStopped, o.store.State())
}

var assertError = domain.NewAudioEngineError("set_src", "t1", "decoder construction failed", nil)

func TestSequentialEndedEventOrderMatchesScenario3(t *testing.T) {
	o, _, bus := newTestOrchestrator(t)
	backend := newFakeBackend(domain.SourceLocal)
	o.Register("local", backend)

	t1 := domain.Track{ID: "t1", SourceType: domain.SourceLocal, LocalPath: "/music/t1.mp3"}
	t2 := domain.Track{ID: "t2", SourceType: domain.SourceLocal, LocalPath: "/music/t2.mp3"}
	o.store.AddToQueue([]domain.Track{t1, t2})
	require.NoError(t, o.Load(context.Background(), t1))

	var mu sync.Mutex
	var order []domain.EventType
	bus.SubscribeAll(func(ev domain.Event) {
		mu.Lock()
		order = append(order, ev.Type())
		mu.Unlock()
	})

	backend.emitEnded()

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) >= 3
	})

	mu.Lock()
	defer mu.Unlock()
	// TrackFinished must precede the queue advance's SongChanged/
	// PlaybackStateChanged, per spec.md §8 scenario 3.
	assert.Equal(t, []domain.EventType{
		domain.EventTrackFinished,
		domain.EventSongChanged,
		domain.EventPlaybackStateChanged,
	}, order[:3])
}

func TestSuccessfulLoadClearsBlacklist(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	backend := newFakeBackend(domain.SourceLocal)
	o.Register("local", backend)

	o.store.Blacklist("some-other-backend")
	require.True(t, o.store.IsBlacklisted("some-other-backend"))

	track := domain.Track{ID: "t1", SourceType: domain.SourceLocal, LocalPath: "/music/t1.mp3"}
	require.NoError(t, o.Load(context.Background(), track))

	assert.False(t, o.store.IsBlacklisted("some-other-backend"), "a successful track load must clear the blacklist")
}

func TestPlaySameTrackTwiceIsIdempotent(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	backend := newFakeBackend(domain.SourceLocal)
	o.Register("local", backend)

	track := domain.Track{ID: "t1", SourceType: domain.SourceLocal, LocalPath: "/music/t1.mp3"}
	require.NoError(t, o.Play(context.Background(), &track))
	waitFor(t, func() bool { return o.store.State() == domain.StatePlaying })

	require.NoError(t, o.Play(context.Background(), nil))

	backend.mu.Lock()
	calls := backend.playCalls
	backend.mu.Unlock()
	assert.Equal(t, 1, calls, "play(None) on an already-playing track must not re-issue play")
}
