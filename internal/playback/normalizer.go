// Package playback implements the Event Normalizer (C1) and the Playback
// Orchestrator (C4): the glue between per-source backends (C3), the player
// store (C2), and the provider router (C7).
package playback

import (
	"github.com/tejashwikalptaru/gotune-core/internal/domain"
	"github.com/tejashwikalptaru/gotune-core/internal/ports"
	"github.com/tejashwikalptaru/gotune-core/internal/store"
)

// Action tells the orchestrator what, if anything, it must do in response
// to a normalized event — the normalizer itself performs no I/O.
type Action int

const (
	ActionNone Action = iota
	ActionLoadAndPlay
	ActionStop
)

// Normalizer applies backend events to the player store per the Ended
// repeat-mode policy in §4.1. It never performs I/O.
type Normalizer struct {
	store *store.Store
}

// NewNormalizer builds a Normalizer bound to the given store.
func NewNormalizer(s *store.Store) *Normalizer {
	return &Normalizer{store: s}
}

// Apply applies ev to the store and returns the follow-up action the
// orchestrator must take, plus the track to load when the action is
// ActionLoadAndPlay.
func (n *Normalizer) Apply(ev ports.BackendEvent) (Action, domain.Track) {
	switch ev.Kind {
	case ports.BackendPlay:
		n.store.SetState(domain.StatePlaying)
	case ports.BackendPause:
		n.store.SetState(domain.StatePaused)
	case ports.BackendLoading:
		n.store.SetState(domain.StateLoading)
	case ports.BackendTimeUpdate:
		n.store.UpdateTime(ev.Position)
	case ports.BackendError:
		// Handled by the orchestrator's error channel: blacklist + Stop.
	case ports.BackendEnded:
		return n.applyEnded()
	}
	return ActionNone, domain.Track{}
}

func (n *Normalizer) applyEnded() (Action, domain.Track) {
	switch n.store.Mode() {
	case domain.RepeatSequential:
		if n.store.CurrentIndex()+1 >= n.store.QueueLen() {
			n.store.SetState(domain.StateStopped)
			return ActionStop, domain.Track{}
		}
		n.store.NextTrack()
		n.store.SetState(domain.StatePlaying)
		return n.loadCurrent()

	case domain.RepeatSingle:
		n.store.ChangeIndex(n.store.CurrentIndex(), true)
		n.store.SetState(domain.StatePlaying)
		return n.loadCurrent()

	case domain.RepeatShuffle:
		idx, ok := n.store.NextShuffleIndex()
		if !ok {
			// Degrade to Single semantics when the bag can't produce a
			// next index (queue length <= 1).
			n.store.ChangeIndex(n.store.CurrentIndex(), true)
			n.store.SetState(domain.StatePlaying)
			return n.loadCurrent()
		}
		n.store.ChangeIndex(idx, false)
		n.store.SetState(domain.StatePlaying)
		return n.loadCurrent()

	case domain.RepeatListLoop:
		if n.store.CurrentIndex()+1 >= n.store.QueueLen() {
			n.store.ChangeIndex(0, true)
		} else {
			n.store.NextTrack()
		}
		n.store.SetState(domain.StatePlaying)
		return n.loadCurrent()

	default:
		n.store.SetState(domain.StateStopped)
		return ActionStop, domain.Track{}
	}
}

func (n *Normalizer) loadCurrent() (Action, domain.Track) {
	track, ok := n.store.CurrentTrack()
	if !ok {
		return ActionStop, domain.Track{}
	}
	return ActionLoadAndPlay, track
}
