// Package store implements the Player Store (C2): the canonical owner of
// queue, playback mode, current track, volume, and scrobble state.
package store

import (
	"encoding/json"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/tejashwikalptaru/gotune-core/internal/domain"
	"github.com/tejashwikalptaru/gotune-core/internal/ports"
)

// persistedPlayerState is the JSON shape written under KeyPlayerState.
type persistedPlayerState struct {
	Mode           domain.RepeatMode  `json:"mode"`
	State          domain.PlayerState `json:"state"`
	VolumeMode     domain.VolumeMode  `json:"volume_mode"`
	GlobalVolume   float64            `json:"global_volume"`
	VolumeMap      map[string]float64 `json:"volume_map"`
	BlacklistList  []string           `json:"blacklist"`
	ForceLoadTrack bool               `json:"force_load_track"`
}

// Store is the C2 player store. All mutations are serialized through mu;
// every queue, state, mode, volume and blacklist mutation persists the
// affected keys before returning. UpdateTime, ForceLoadTrack and
// NextShuffleIndex change only in-memory state and persist nothing.
type Store struct {
	logger *slog.Logger
	kv     ports.KVStore
	bus    ports.EventBus
	rng    *rand.Rand

	mu sync.RWMutex

	queue          domain.Queue
	state          domain.PlayerState
	mode           domain.RepeatMode
	volumeMode     domain.VolumeMode
	globalVolume   float64
	volumeMap      map[string]float64
	blacklist      map[string]struct{}
	forceLoadTrack bool

	currentTime  time.Duration
	scrobbleTime time.Duration
	scrobbled    bool

	shuffleBag domain.ShuffleBag
}

// New constructs a Store and loads any persisted state from kv.
func New(logger *slog.Logger, kv ports.KVStore, bus ports.EventBus) *Store {
	s := &Store{
		logger:       logger,
		kv:           kv,
		bus:          bus,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
		queue:        domain.NewQueue(),
		state:        domain.StateStopped,
		mode:         domain.RepeatSequential,
		volumeMode:   domain.VolumeSingle,
		globalVolume: domain.ClampMax,
		volumeMap:    make(map[string]float64),
		blacklist:    make(map[string]struct{}),
	}
	s.loadState()
	return s
}

// loadState reads the four recognized keys and sanitizes startup state: an
// out-of-range current_index is clamped, and Playing never survives a cold
// start (it downgrades to Paused).
func (s *Store) loadState() {
	raw, err := s.kv.Get([]string{
		ports.KeyPlayerState, ports.KeyTrackQueue, ports.KeyCurrentIndex, ports.KeyQueueData,
	})
	if err != nil {
		s.logger.Warn("player store: failed to load persisted state", slog.Any("error", err))
		return
	}

	if b, ok := raw[ports.KeyPlayerState]; ok {
		var ps persistedPlayerState
		if err := json.Unmarshal(b, &ps); err == nil {
			s.mode = ps.Mode
			s.state = ps.State
			s.volumeMode = ps.VolumeMode
			s.globalVolume = ps.GlobalVolume
			if ps.VolumeMap != nil {
				s.volumeMap = ps.VolumeMap
			}
			s.blacklist = make(map[string]struct{}, len(ps.BlacklistList))
			for _, k := range ps.BlacklistList {
				s.blacklist[k] = struct{}{}
			}
			s.forceLoadTrack = ps.ForceLoadTrack
		}
	}

	var order []string
	if b, ok := raw[ports.KeyTrackQueue]; ok {
		_ = json.Unmarshal(b, &order)
	}
	var data map[string]domain.Track
	if b, ok := raw[ports.KeyQueueData]; ok {
		_ = json.Unmarshal(b, &data)
	}
	if data == nil {
		data = make(map[string]domain.Track)
	}
	var idx int
	if b, ok := raw[ports.KeyCurrentIndex]; ok {
		_ = json.Unmarshal(b, &idx)
	}
	if len(order) == 0 {
		idx = 0
	} else if idx < 0 || idx >= len(order) {
		idx = 0
	}

	s.queue = domain.Queue{Order: order, CurrentIndex: idx, Data: data}
	s.currentTime = 0

	if s.state == domain.StatePlaying {
		s.state = domain.StatePaused
	}
	if s.queue.Len() == 0 {
		s.state = domain.StateStopped
	}
	s.sanitizeCurrentTrack()
}

// sanitizeCurrentTrack enforces: if queue_data lacks the entry at
// queue[current_index], current_track becomes null and current_time
// resets to zero. Must be called with mu held (or during construction).
func (s *Store) sanitizeCurrentTrack() {
	if _, ok := s.queue.CurrentTrack(); !ok && s.queue.Len() > 0 {
		s.currentTime = 0
	}
}

func (s *Store) persistQueue() {
	order, _ := json.Marshal(s.queue.Order)
	data, _ := json.Marshal(s.queue.Data)
	idx, _ := json.Marshal(s.queue.CurrentIndex)
	_ = s.kv.Set(map[string][]byte{
		ports.KeyTrackQueue:   order,
		ports.KeyQueueData:    data,
		ports.KeyCurrentIndex: idx,
	})
}

func (s *Store) persistPlayerState() {
	blist := make([]string, 0, len(s.blacklist))
	for k := range s.blacklist {
		blist = append(blist, k)
	}
	ps := persistedPlayerState{
		Mode:           s.mode,
		State:          s.state,
		VolumeMode:     s.volumeMode,
		GlobalVolume:   s.globalVolume,
		VolumeMap:      s.volumeMap,
		BlacklistList:  blist,
		ForceLoadTrack: s.forceLoadTrack,
	}
	b, _ := json.Marshal(ps)
	_ = s.kv.Set(map[string][]byte{ports.KeyPlayerState: b})
}

// AddToQueue appends tracks, skipping duplicates by id. If the queue was
// empty, the first appended track becomes current.
func (s *Store) AddToQueue(tracks []domain.Track) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wasEmpty := s.queue.Len() == 0
	for _, t := range tracks {
		if _, exists := s.queue.Data[t.ID]; exists {
			continue
		}
		s.queue.Data[t.ID] = t
		s.queue.Order = append(s.queue.Order, t.ID)
	}
	if wasEmpty && s.queue.Len() > 0 {
		s.queue.CurrentIndex = 0
	}
	s.sanitizeCurrentTrack()
	s.persistQueue()
	s.notifyQueueChanged()
}

// PlayNow jumps to t's existing index, or inserts it immediately after the
// current index and advances to it.
func (s *Store) PlayNow(t domain.Track) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, id := range s.queue.Order {
		if id == t.ID {
			s.queue.CurrentIndex = i
			s.queue.Data[id] = t
			s.sanitizeCurrentTrack()
			s.persistQueue()
			s.notifySongChanged()
			return
		}
	}

	insertAt := s.queue.CurrentIndex + 1
	if insertAt > len(s.queue.Order) {
		insertAt = len(s.queue.Order)
	}
	s.queue.Order = append(s.queue.Order, "")
	copy(s.queue.Order[insertAt+1:], s.queue.Order[insertAt:])
	s.queue.Order[insertAt] = t.ID
	s.queue.Data[t.ID] = t
	s.queue.CurrentIndex = insertAt
	s.sanitizeCurrentTrack()
	s.persistQueue()
	s.notifySongChanged()
}

// Remove deletes the entry at index i, adjusting CurrentIndex as needed.
func (s *Store) Remove(i int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i < 0 || i >= len(s.queue.Order) {
		return
	}
	id := s.queue.Order[i]
	s.queue.Order = append(s.queue.Order[:i], s.queue.Order[i+1:]...)
	delete(s.queue.Data, id)

	switch {
	case i < s.queue.CurrentIndex:
		s.queue.CurrentIndex--
	case i == s.queue.CurrentIndex:
		s.sanitizeCurrentTrack()
		s.notifySongChanged()
	}
	if s.queue.CurrentIndex >= s.queue.Len() && s.queue.Len() > 0 {
		s.queue.CurrentIndex = s.queue.Len() - 1
	}
	s.persistQueue()
	s.notifyQueueChanged()
}

// NextTrack advances CurrentIndex with wraparound.
func (s *Store) NextTrack() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue.Len() == 0 {
		return
	}
	s.queue.CurrentIndex = (s.queue.CurrentIndex + 1) % s.queue.Len()
	s.sanitizeCurrentTrack()
	s.persistQueue()
	s.notifySongChanged()
}

// PrevTrack decrements CurrentIndex with wraparound.
func (s *Store) PrevTrack() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue.Len() == 0 {
		return
	}
	s.queue.CurrentIndex = (s.queue.CurrentIndex - 1 + s.queue.Len()) % s.queue.Len()
	s.sanitizeCurrentTrack()
	s.persistQueue()
	s.notifySongChanged()
}

// ChangeIndex sets CurrentIndex to i. If force, the current-track
// notification fires even when the index is unchanged.
func (s *Store) ChangeIndex(i int, force bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= s.queue.Len() {
		return
	}
	changed := i != s.queue.CurrentIndex
	s.queue.CurrentIndex = i
	s.sanitizeCurrentTrack()
	s.persistQueue()
	if changed || force {
		s.notifySongChanged()
	}
}

// SetState updates the coarse playback state and notifies listeners.
func (s *Store) SetState(state domain.PlayerState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.persistPlayerState()
	s.bus.Publish(domain.NewPlaybackStateChangedEvent(state))
}

// State returns the current playback state.
func (s *Store) State() domain.PlayerState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// UpdateTime advances current_time and the cumulative scrobble counter,
// marking the track scrobbled once 20 seconds of cumulative playback has
// elapsed (fires only once per loaded track). The counter grows by each
// forward step of the position, so a forward seek counts in full and a
// backward one adds nothing; counter and flag reset on every current-track
// change notification.
func (s *Store) UpdateTime(t time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t > s.currentTime {
		s.scrobbleTime += t - s.currentTime
	}
	s.currentTime = t
	if !s.scrobbled && s.scrobbleTime > 20*time.Second {
		s.scrobbled = true
	}
	s.bus.Publish(domain.NewPositionChangedEvent(t))
}

// CurrentTime returns the last reported position.
func (s *Store) CurrentTime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentTime
}

// SetVolume writes raw (0..100) to the global slot, or to the current
// track's scoped slot when VolumeMode is PersistSeparate.
func (s *Store) SetVolume(raw float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw = domain.ClampRaw(raw)
	if s.volumeMode == domain.VolumePersistSeparate {
		if track, ok := s.queue.CurrentTrack(); ok {
			s.volumeMap[track.Key()] = raw
		}
	} else {
		s.globalVolume = raw
	}
	s.persistPlayerState()
	s.bus.Publish(domain.NewVolumeChangedEvent(float32(domain.RawToUI(raw, domain.ClampMax))))
}

// Volume returns the effective raw volume for the current track.
func (s *Store) Volume() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.volumeMode == domain.VolumePersistSeparate {
		if track, ok := s.queue.CurrentTrack(); ok {
			if v, ok := s.volumeMap[track.Key()]; ok {
				return v
			}
		}
	}
	return s.globalVolume
}

// TogglePlayerMode cycles Sequential -> Single -> Shuffle -> ListLoop and
// rebuilds the shuffle bag when entering Shuffle.
func (s *Store) TogglePlayerMode() domain.RepeatMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = s.mode.Next()
	if s.mode == domain.RepeatShuffle {
		s.shuffleBag.Rebuild(s.queue.Len(), s.queue.CurrentIndex, s.rng)
	}
	s.persistPlayerState()
	s.bus.Publish(domain.NewPlayerModeChangedEvent(s.mode))
	return s.mode
}

// Mode returns the current repeat mode.
func (s *Store) Mode() domain.RepeatMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// Blacklist adds key to the backend blacklist and flips force_load_track.
func (s *Store) Blacklist(key string) {
	if key == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blacklist[key] = struct{}{}
	s.forceLoadTrack = true
	s.persistPlayerState()
}

// IsBlacklisted reports whether key is currently blacklisted.
func (s *Store) IsBlacklisted(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blacklist[key]
	return ok
}

// ClearBlacklist empties the blacklist; called on every successful
// track-update.
func (s *Store) ClearBlacklist() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.blacklist) == 0 {
		return
	}
	s.blacklist = make(map[string]struct{})
	s.persistPlayerState()
}

// ForceLoadTrack reports and clears the force_load_track toggle.
func (s *Store) ForceLoadTrack() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.forceLoadTrack
	s.forceLoadTrack = false
	return v
}

// CurrentTrack returns the track at the current index, if resolvable.
func (s *Store) CurrentTrack() (domain.Track, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queue.CurrentTrack()
}

// QueueLen returns the number of tracks in the queue.
func (s *Store) QueueLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queue.Len()
}

// CurrentIndex returns the queue's current index.
func (s *Store) CurrentIndex() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queue.CurrentIndex
}

// NextShuffleIndex pulls the next index from the shuffle bag, rebuilding it
// if exhausted. Returns (0, false) when the queue has at most one track.
func (s *Store) NextShuffleIndex() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue.Len() <= 1 {
		return 0, false
	}
	if s.shuffleBag.Empty() {
		s.shuffleBag.Rebuild(s.queue.Len(), s.queue.CurrentIndex, s.rng)
	}
	return s.shuffleBag.Next()
}

func (s *Store) notifyQueueChanged() {
	s.bus.Publish(domain.NewQueueChangedEvent())
}

func (s *Store) notifySongChanged() {
	s.scrobbleTime = 0
	s.scrobbled = false
	track, ok := s.queue.CurrentTrack()
	if !ok {
		return
	}
	s.bus.Publish(domain.NewSongChangedEvent(track))
}
