package playback

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tejashwikalptaru/gotune-core/internal/domain"
	"github.com/tejashwikalptaru/gotune-core/internal/ports"
	"github.com/tejashwikalptaru/gotune-core/internal/store"
)

// StreamResolver resolves a provider-sourced track to a playable URL. The
// orchestrator calls it when a track has a ProviderExtension but no
// PlaybackURL yet (see §4.4 "route URLs from C7"). The concrete
// implementation is provider.Router.
type StreamResolver interface {
	ResolveStreamURL(ctx context.Context, track domain.Track) (string, error)
}

// namedBackend pairs a Backend with the blacklist key the store uses to
// identify it.
type namedBackend struct {
	key     string
	backend ports.Backend
}

// Orchestrator is the Playback Orchestrator (C4): selects a backend for a
// track by capability + blacklist, routes lifecycle operations to the
// active backend, and forwards its normalized events to the UI event bus
// and the optional MPRIS-like sink.
//
// The backend list is insertion-ordered (per §3 "Ownership") and only grows,
// through Register; selection only changes which index is "active".
type Orchestrator struct {
	logger *slog.Logger
	store  *store.Store
	bus    ports.EventBus
	sink   ports.MediaSessionSink
	router StreamResolver

	mu       sync.Mutex
	backends []namedBackend
	active   atomic.Int64 // index into backends, -1 when none selected

	listenerStarted map[string]*atomic.Bool
}

// New constructs an Orchestrator with no backends registered; call Register
// for each backend before first use.
func New(logger *slog.Logger, s *store.Store, bus ports.EventBus, sink ports.MediaSessionSink, router StreamResolver) *Orchestrator {
	o := &Orchestrator{
		logger:          logger,
		store:           s,
		bus:             bus,
		sink:            sink,
		router:          router,
		listenerStarted: make(map[string]*atomic.Bool),
	}
	o.active.Store(-1)
	if sink != nil {
		go o.consumeMediaControls(sink)
	}
	return o
}

// Register adds a backend under the given blacklist key, in the order
// backends should be scanned during selection.
func (o *Orchestrator) Register(key string, backend ports.Backend) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.backends = append(o.backends, namedBackend{key: key, backend: backend})
	o.listenerStarted[key] = &atomic.Bool{}
}

// Sanitize performs the startup reconciliation described in §4.4: if the
// queue is empty or there is no current track, force Stopped; otherwise a
// persisted Playing state downgrades to Paused because no backend has been
// fed media yet.
func (o *Orchestrator) Sanitize() {
	_, ok := o.store.CurrentTrack()
	if o.store.QueueLen() == 0 || !ok {
		o.store.SetState(domain.StateStopped)
		return
	}
	if o.store.State() == domain.StatePlaying {
		o.store.SetState(domain.StatePaused)
	}
}

// selectBackend scans backends in insertion order for the first one that is
// not blacklisted and declares the track's source type. There is no
// per-track can-play check: ports.Backend has no such method, so a backend
// is chosen on blacklist and capabilities alone. Returns ErrPlayerNotFound
// if none match.
func (o *Orchestrator) selectBackend(track domain.Track) (int, ports.Backend, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, nb := range o.backends {
		if o.store.IsBlacklisted(nb.key) {
			continue
		}
		if !hasCapability(nb.backend, track.SourceType) {
			continue
		}
		return i, nb.backend, nil
	}
	return 0, nil, domain.ErrPlayerNotFound
}

func hasCapability(b ports.Backend, st domain.SourceType) bool {
	for _, c := range b.Capabilities() {
		if c == st {
			return true
		}
	}
	return false
}

// resolvedURL returns a track with PlaybackURL populated, calling the
// provider router when the track is provider-sourced and lacks one.
func (o *Orchestrator) resolvedURL(ctx context.Context, track domain.Track) (domain.Track, error) {
	if track.PlaybackURL != "" || track.ProviderExtension == "" {
		return track, nil
	}
	if o.router == nil {
		return track, fmt.Errorf("track %s requires provider resolution but no router is configured", track.ID)
	}
	url, err := o.router.ResolveStreamURL(ctx, track)
	if err != nil {
		return track, err
	}
	track.PlaybackURL = url
	return track, nil
}

// Load selects a backend for track, installs the Event Normalizer as its
// listener (idempotent per backend), issues SetSrc, and notifies the MPRIS
// sink of new metadata once accepted.
func (o *Orchestrator) Load(ctx context.Context, track domain.Track) error {
	if !track.IsLoadable() {
		return domain.ErrInvalidTrack
	}
	track, err := o.resolvedURL(ctx, track)
	if err != nil {
		return err
	}

	idx, backend, err := o.selectBackend(track)
	if err != nil {
		return err
	}
	o.active.Store(int64(idx))
	o.ensureListener(idx, backend)

	if err := backend.SetSrc(ctx, track); err != nil {
		return err
	}
	o.store.ClearBlacklist()

	if o.sink != nil {
		o.sink.SetMetadata(ports.TrackMetadata{
			TrackID:  track.ID,
			Title:    track.Title,
			Artist:   track.Artist,
			Album:    track.Album,
			CoverArt: track.CoverArt,
			Duration: track.Duration,
		})
	}
	return nil
}

// ensureListener starts the per-backend event-forwarding goroutine exactly
// once (atomic CAS), per §5's "add_listeners is idempotent" guarantee.
func (o *Orchestrator) ensureListener(idx int, backend ports.Backend) {
	o.mu.Lock()
	key := o.backends[idx].key
	started := o.listenerStarted[key]
	o.mu.Unlock()

	if !started.CompareAndSwap(false, true) {
		return
	}
	normalizer := NewNormalizer(o.store)
	go o.forward(key, backend, normalizer)
}

// forward is the sole consumer of a backend's event channel: it applies
// the normalizer's policy, forwards normalized events to the UI bus, and
// reacts to backend errors by blacklisting the offending backend and
// forcing Stopped (§4.4 "Error semantics").
func (o *Orchestrator) forward(key string, backend ports.Backend, normalizer *Normalizer) {
	for ev := range backend.Events() {
		if ev.Kind == ports.BackendError {
			o.handleBackendError(key, ev.Err)
			continue
		}

		// TrackFinished must precede the normalizer's queue advance, which
		// in turn publishes SongChanged/PlaybackStateChanged — matching
		// spec.md §8 scenario 3's literal event order.
		if ev.Kind == ports.BackendEnded {
			o.bus.Publish(domain.NewTrackFinishedEvent())
		}

		action, track := normalizer.Apply(ev)
		o.publishForEvent(ev)

		if action == ActionLoadAndPlay {
			go o.loadAndPlay(track)
		}
	}
}

func (o *Orchestrator) publishForEvent(ev ports.BackendEvent) {
	switch ev.Kind {
	case ports.BackendLoading:
		o.bus.Publish(domain.NewBufferingEvent())
	case ports.BackendTimeUpdate:
		if o.sink != nil {
			o.sink.SetPosition(ev.Position)
		}
	case ports.BackendPlay:
		if o.sink != nil {
			o.sink.SetPlaybackState(true)
		}
	case ports.BackendPause:
		if o.sink != nil {
			o.sink.SetPlaybackState(false)
		}
	}
}

// handleBackendError implements §7's Playback error routing: blacklist the
// offending backend (only if key looks valid) and force Stopped, without
// touching queue state.
func (o *Orchestrator) handleBackendError(key string, err error) {
	o.logger.Error("backend reported error", slog.String("backend", key), slog.Any("error", err))
	msg := "playback error"
	if err != nil {
		msg = err.Error()
	}
	o.bus.Publish(domain.NewErrorEvent(msg))
	if key != "" {
		o.store.Blacklist(key)
	}
	o.store.SetState(domain.StateStopped)
}

// loadAndPlay is the orchestrator-side half of an Ended transition: the
// normalizer has already advanced the store's current index; this loads
// the new current track on whatever backend is now selected and plays it.
func (o *Orchestrator) loadAndPlay(track domain.Track) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := o.Load(ctx, track); err != nil {
		o.handleBackendError("", err)
		return
	}
	if err := o.activeBackend().Play(ctx); err != nil {
		o.handleBackendError("", err)
	}
}

func (o *Orchestrator) activeBackend() ports.Backend {
	o.mu.Lock()
	defer o.mu.Unlock()
	idx := int(o.active.Load())
	if idx < 0 || idx >= len(o.backends) {
		return nil
	}
	return o.backends[idx].backend
}

// Play implements §4.4's Play semantics. When track is non-nil and differs
// from the store's current track, it is queued via PlayNow and then loaded
// before play. A nil track with current_time == 0 and a non-null current
// track is treated as a first-resume after app restart. Otherwise play is
// issued directly on the active backend (idempotent if already playing,
// per the "Open Question" decision recorded in DESIGN.md).
func (o *Orchestrator) Play(ctx context.Context, track *domain.Track) error {
	if track != nil {
		cur, ok := o.store.CurrentTrack()
		if !ok || cur.ID != track.ID {
			o.store.PlayNow(*track)
			if err := o.Load(ctx, *track); err != nil {
				return err
			}
		}
		return o.playActive(ctx)
	}

	if o.store.State() == domain.StatePlaying {
		return nil
	}

	cur, ok := o.store.CurrentTrack()
	if ok && o.store.CurrentTime() == 0 {
		if err := o.Load(ctx, cur); err != nil {
			return err
		}
	}
	return o.playActive(ctx)
}

func (o *Orchestrator) playActive(ctx context.Context) error {
	backend := o.activeBackend()
	if backend == nil {
		return domain.ErrPlayerNotFound
	}
	if err := backend.Play(ctx); err != nil {
		return err
	}
	if o.sink != nil {
		o.sink.SetPlaybackState(true)
	}
	return nil
}

// Pause issues pause on the active backend.
func (o *Orchestrator) Pause(ctx context.Context) error {
	backend := o.activeBackend()
	if backend == nil {
		return domain.ErrPlayerNotFound
	}
	if err := backend.Pause(ctx); err != nil {
		return err
	}
	if o.sink != nil {
		o.sink.SetPlaybackState(false)
	}
	return nil
}

// Stop issues stop on the active backend and sets store state to Stopped.
func (o *Orchestrator) Stop(ctx context.Context) error {
	backend := o.activeBackend()
	if backend == nil {
		o.store.SetState(domain.StateStopped)
		return nil
	}
	err := backend.Stop(ctx)
	o.store.SetState(domain.StateStopped)
	if o.sink != nil {
		o.sink.SetPlaybackState(false)
	}
	return err
}

// Seek issues seek on the active backend.
func (o *Orchestrator) Seek(ctx context.Context, position time.Duration) error {
	backend := o.activeBackend()
	if backend == nil {
		return domain.ErrPlayerNotFound
	}
	return backend.Seek(ctx, position)
}

// SetVolume converts a UI-scale [0,1] volume to raw [0,100], persists it on
// the store, and forwards the raw value to the active backend.
func (o *Orchestrator) SetVolume(ctx context.Context, ui float64) error {
	raw := domain.UIToRaw(domain.Clamp01(ui), domain.ClampMax)
	o.store.SetVolume(raw)
	if backend := o.activeBackend(); backend != nil {
		return backend.SetVolume(ctx, raw)
	}
	return nil
}

// Next advances the store index under a short-held lock, then loads and
// plays the new current track.
func (o *Orchestrator) Next(ctx context.Context) error {
	o.store.NextTrack()
	return o.loadAndPlayFromStore(ctx)
}

// Previous retreats the store index, then loads and plays the new current
// track.
func (o *Orchestrator) Previous(ctx context.Context) error {
	o.store.PrevTrack()
	return o.loadAndPlayFromStore(ctx)
}

func (o *Orchestrator) loadAndPlayFromStore(ctx context.Context) error {
	track, ok := o.store.CurrentTrack()
	if !ok {
		return domain.ErrQueueEmpty
	}
	if err := o.Load(ctx, track); err != nil {
		return err
	}
	return o.playActive(ctx)
}

// consumeMediaControls translates inbound MPRIS-like control signals into
// store/orchestrator operations (§4.5). Unhandled actions are logged and
// dropped per spec.md §6.
func (o *Orchestrator) consumeMediaControls(sink ports.MediaSessionSink) {
	ctx := context.Background()
	for ev := range sink.Controls() {
		var err error
		switch ev.Action {
		case ports.ControlPlay:
			err = o.Play(ctx, nil)
		case ports.ControlPause:
			err = o.Pause(ctx)
		case ports.ControlToggle:
			if o.store.State() == domain.StatePlaying {
				err = o.Pause(ctx)
			} else {
				err = o.Play(ctx, nil)
			}
		case ports.ControlStop:
			err = o.Stop(ctx)
		case ports.ControlNext:
			err = o.Next(ctx)
		case ports.ControlPrevious:
			err = o.Previous(ctx)
		case ports.ControlSetPosition:
			err = o.Seek(ctx, ev.Position)
		default:
			o.logger.Warn("unhandled media control action", slog.Int("action", int(ev.Action)))
			continue
		}
		if err != nil {
			o.logger.Warn("media control action failed", slog.Int("action", int(ev.Action)), slog.Any("error", err))
		}
	}
}
