package ports

import (
	"context"
	"time"

	"github.com/tejashwikalptaru/gotune-core/internal/domain"
)

// BackendCommand identifies the verbs a Backend's command channel accepts.
type BackendCommand int

const (
	CmdSetSrc BackendCommand = iota
	CmdPlay
	CmdPause
	CmdStop
	CmdSetVolume
	CmdSeek
)

// BackendEventKind enumerates the events a Backend emits on its event channel.
type BackendEventKind int

const (
	BackendPlay BackendEventKind = iota
	BackendPause
	BackendLoading
	BackendEnded
	BackendTimeUpdate
	BackendError
)

// BackendEvent is a single notification from a Backend's event stream.
// Position is populated for BackendTimeUpdate; Err for BackendError.
type BackendEvent struct {
	Kind     BackendEventKind
	Position time.Duration
	Err      error
}

// Backend is a single-source audio player: one dedicated goroutine owns a
// command channel, a decoder pipeline, and an output sink, plus a 500ms
// position ticker. Commands are processed strictly FIFO. Implementations
// must be safe to call from any goroutine; internally they serialize
// through their command channel.
type Backend interface {
	// Capabilities reports which domain.SourceType values this backend can
	// load. The orchestrator uses this, together with a blacklist, to pick
	// a backend for a track.
	Capabilities() []domain.SourceType

	// SetSrc loads a new source, classifying it as local/URL/HLS. Emits
	// TimeUpdate(0) then Loading on the event channel; on failure emits
	// Error and leaves the sink empty. Superseding a prior SetSrc cancels
	// its in-flight load and its Ended watcher.
	SetSrc(ctx context.Context, track domain.Track) error

	// Play starts or resumes playback of the currently loaded source.
	Play(ctx context.Context) error

	// Pause pauses playback, preserving position. Emits Pause.
	Pause(ctx context.Context) error

	// Stop halts playback, clears the sink, and resets position to zero.
	// Emits Pause (the backend does not distinguish a terminal state event
	// from a paused one; callers infer "stopped" from store state).
	Stop(ctx context.Context) error

	// SetVolume sets raw volume (0..100) on the active sink.
	SetVolume(ctx context.Context, raw float64) error

	// Seek jumps to a position. If the sink is empty but a last source is
	// remembered, the backend re-issues SetSrc(last) then Seek then Play
	// before returning, to support resume-from-persisted-state flows.
	Seek(ctx context.Context, position time.Duration) error

	// Events returns the channel the orchestrator drains for this backend's
	// normalized events. The channel is never closed for the backend's
	// lifetime.
	Events() <-chan BackendEvent

	// Close releases the backend's goroutine and underlying sink.
	Close() error
}

// BackendFactory constructs a Backend bound to a specific output sink.
type BackendFactory func() (Backend, error)
