// Package domain contains core business models and logic with no external dependencies.
// This package defines the fundamental entities of the GoTune playback core.
package domain

import (
	"fmt"
	"math"
	"time"
)

// SourceType tags the kind of backend a track needs.
type SourceType int

const (
	// SourceLocal is a file on the local filesystem.
	SourceLocal SourceType = iota
	// SourceURL is an HTTP progressive stream.
	SourceURL
	// SourceHLS is an HTTP Live Streaming playlist.
	SourceHLS
)

// String returns a human-readable name for the source type.
func (s SourceType) String() string {
	switch s {
	case SourceLocal:
		return "local"
	case SourceURL:
		return "url"
	case SourceHLS:
		return "hls"
	default:
		return "unknown"
	}
}

// Track is a single playable unit, sourced from disk, an HTTP stream, or a
// provider plugin. At least one of LocalPath, PlaybackURL, or
// ProviderExtension must be set for a track to be loadable.
type Track struct {
	ID         string
	SourceType SourceType

	LocalPath   string
	PlaybackURL string

	// ProviderExtension is the provider key this track was resolved from
	// (e.g. "navidrome", "bilibili"), or empty for purely local tracks.
	ProviderExtension string

	Duration time.Duration
	Title    string
	Artist   string
	Album    string
	CoverArt string
}

// IsLoadable reports whether the track carries enough information for any
// backend to play it.
func (t Track) IsLoadable() bool {
	return t.LocalPath != "" || t.PlaybackURL != "" || t.ProviderExtension != ""
}

// Key derives the per-track key used to scope volume persistence: the
// provider extension if present, else the stringified source type.
func (t Track) Key() string {
	if t.ProviderExtension != "" {
		return t.ProviderExtension
	}
	return t.SourceType.String()
}

// String implements fmt.Stringer for Track, useful in log lines.
func (t Track) String() string {
	return fmt.Sprintf("Track{id=%s title=%q source=%s}", t.ID, t.Title, t.SourceType)
}

// RepeatMode is the queue-advance policy applied on Ended.
type RepeatMode int

const (
	RepeatSequential RepeatMode = iota
	RepeatSingle
	RepeatShuffle
	RepeatListLoop
)

// String returns a human-readable name for the repeat mode.
func (m RepeatMode) String() string {
	switch m {
	case RepeatSequential:
		return "sequential"
	case RepeatSingle:
		return "single"
	case RepeatShuffle:
		return "shuffle"
	case RepeatListLoop:
		return "list_loop"
	default:
		return "unknown"
	}
}

// Next returns the mode that follows this one in the toggle cycle
// Sequential -> Single -> Shuffle -> ListLoop -> Sequential.
func (m RepeatMode) Next() RepeatMode {
	switch m {
	case RepeatSequential:
		return RepeatSingle
	case RepeatSingle:
		return RepeatShuffle
	case RepeatShuffle:
		return RepeatListLoop
	default:
		return RepeatSequential
	}
}

// PlayerState is the coarse playback status of the active backend.
type PlayerState int

const (
	StateStopped PlayerState = iota
	StatePlaying
	StatePaused
	StateLoading
)

// String returns a human-readable name for the player state.
func (s PlayerState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateLoading:
		return "loading"
	default:
		return "unknown"
	}
}

// VolumeMode controls how raw volume is scoped across tracks.
type VolumeMode int

const (
	// VolumeSingle uses one global raw volume for every track.
	VolumeSingle VolumeMode = iota
	// VolumePersistSeparate remembers a distinct raw volume per track key.
	VolumePersistSeparate
	// VolumePersistClamp remembers a per-track-key soft maximum.
	VolumePersistClamp
)

// ClampMax is the default soft ceiling used by the UI logarithmic mapping.
const ClampMax = 100.0

// RawToUI converts a raw [0, 100] volume into the UI's [0, 1] logarithmic
// scale: ui = ln(raw)/ln(clampMax) when raw > 0, else 0.
func RawToUI(raw, clampMax float64) float64 {
	if raw <= 0 || clampMax <= 1 {
		return 0
	}
	return math.Log(raw) / math.Log(clampMax)
}

// UIToRaw maps a UI value back to raw volume: raw = clampMax^ui for ui > 0,
// and 0 (mute) for ui <= 0. It inverts RawToUI for raw > 1; raw values in
// (0, 1] map to ui <= 0 and so come back as 0.
func UIToRaw(ui, clampMax float64) float64 {
	if ui <= 0 {
		return 0
	}
	return math.Pow(clampMax, ui)
}

// PluginType classifies what a provider plugin offers.
type PluginType int

const (
	PluginAudioProvider PluginType = iota
	PluginAudioProcessor
	PluginCustom
)

// String returns a human-readable name for the plugin type.
func (t PluginType) String() string {
	switch t {
	case PluginAudioProvider:
		return "audio_provider"
	case PluginAudioProcessor:
		return "audio_processor"
	case PluginCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// PluginState is the persisted record describing one installed provider
// plugin. The ID is stable across runs: built-ins derive it from a
// namespaced UUIDv5 hash of "builtin:<name>" (see provider.BuiltinPluginID).
type PluginState struct {
	ID          string
	Name        string
	DisplayName string
	Version     string
	Type        PluginType
	Enabled     bool
	Installed   bool
	Builtin     bool
	Config      []byte // opaque JSON
	IconPath    string
	InstalledAt time.Time
	LastUpdated time.Time
	LastUsed    time.Time
}

// Clamp01 restricts a float64 to [0, 1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ClampRaw restricts a float64 to [0, 100].
func ClampRaw(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
