//go:build linux

// Package mpris implements the OS media-session sink (C5) as a real
// org.mpris.MediaPlayer2 D-Bus object, the way go-musicfox's
// remote_control package exports MediaPlayer2.Player.
package mpris

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/prop"

	"github.com/tejashwikalptaru/gotune-core/internal/ports"
)

const (
	objectPath  = dbus.ObjectPath("/org/mpris/MediaPlayer2")
	rootIface   = "org.mpris.MediaPlayer2"
	playerIface = "org.mpris.MediaPlayer2.Player"
)

// TimeInUs is MPRIS's microsecond time representation.
type TimeInUs int64

func usFromDuration(d time.Duration) TimeInUs { return TimeInUs(d / time.Microsecond) }

// Duration converts a microsecond MPRIS time value back to time.Duration.
func (t TimeInUs) Duration() time.Duration { return time.Duration(t) * time.Microsecond }

// Sink is the concrete MediaSessionSink (C5): it owns a D-Bus connection,
// exports the MediaPlayer2 root and Player objects, and translates inbound
// method calls into ports.MediaControlEvent values on its Controls channel.
type Sink struct {
	logger *slog.Logger
	conn   *dbus.Conn
	props  *prop.Properties
	events chan ports.MediaControlEvent
}

// New connects to the session bus, claims a well-known MPRIS bus name for
// identity, and exports both the root and Player interfaces.
func New(logger *slog.Logger, identity string) (*Sink, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}

	s := &Sink{
		logger: logger,
		conn:   conn,
		events: make(chan ports.MediaControlEvent, 16),
	}

	busName := "org.mpris.MediaPlayer2." + identity
	reply, err := conn.RequestName(busName, dbus.NameFlagReplaceExisting|dbus.NameFlagDoNotQueue)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("request bus name %s: %w", busName, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner && reply != dbus.RequestNameReplyAlreadyOwner {
		logger.Warn("did not become primary owner of mpris bus name", slog.String("name", busName))
	}

	root := &rootObject{identity: identity}
	if err := conn.Export(root, objectPath, rootIface); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("export root object: %w", err)
	}

	player := &playerObject{sink: s}
	if err := conn.Export(player, objectPath, playerIface); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("export player object: %w", err)
	}

	propsSpec := map[string]map[string]*prop.Prop{
		rootIface: {
			"CanQuit":             newProp(false, nil),
			"CanRaise":            newProp(false, nil),
			"HasTrackList":        newProp(false, nil),
			"Identity":            newProp(identity, nil),
			"SupportedUriSchemes": newProp([]string{"file", "http", "https"}, nil),
			"SupportedMimeTypes":  newProp([]string{"audio/mpeg", "audio/ogg", "audio/flac"}, nil),
		},
		playerIface: {
			"PlaybackStatus": newProp("Stopped", nil),
			"LoopStatus":     newProp("None", nil),
			"Rate":           newProp(1.0, nil),
			"Shuffle":        newProp(false, nil),
			"Metadata":       newProp(map[string]dbus.Variant{}, nil),
			"Volume":         newProp(1.0, s.onVolume),
			"Position": {
				Value:    usFromDuration(0),
				Writable: false,
				Emit:     prop.EmitFalse,
			},
			"MinimumRate":   newProp(1.0, nil),
			"MaximumRate":   newProp(1.0, nil),
			"CanGoNext":     newProp(true, nil),
			"CanGoPrevious": newProp(true, nil),
			"CanPlay":       newProp(true, nil),
			"CanPause":      newProp(true, nil),
			"CanSeek":       newProp(true, nil),
			"CanControl":    newProp(true, nil),
		},
	}

	exportedProps, err := prop.Export(conn, objectPath, propsSpec)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("export properties: %w", err)
	}
	s.props = exportedProps
	return s, nil
}

func newProp(value interface{}, cb func(*prop.Change) *dbus.Error) *prop.Prop {
	return &prop.Prop{Value: value, Writable: cb != nil, Emit: prop.EmitTrue, Callback: cb}
}

// rootObject implements the small org.mpris.MediaPlayer2 method set; this
// player never raises a window and refuses remote quit requests.
type rootObject struct {
	identity string
}

func (r *rootObject) Raise() *dbus.Error { return nil }
func (r *rootObject) Quit() *dbus.Error  { return nil }

// SetMetadata publishes the now-playing track's metadata.
func (s *Sink) SetMetadata(meta ports.TrackMetadata) {
	m := map[string]dbus.Variant{
		"mpris:trackid": dbus.MakeVariant(dbus.ObjectPath("/org/mpris/MediaPlayer2/Track/" + sanitizeID(meta.TrackID))),
		"mpris:length":  dbus.MakeVariant(int64(usFromDuration(meta.Duration))),
	}
	if meta.Title != "" {
		m["xesam:title"] = dbus.MakeVariant(meta.Title)
	}
	if meta.Artist != "" {
		m["xesam:artist"] = dbus.MakeVariant([]string{meta.Artist})
	}
	if meta.Album != "" {
		m["xesam:album"] = dbus.MakeVariant(meta.Album)
	}
	if meta.CoverArt != "" {
		m["mpris:artUrl"] = dbus.MakeVariant(meta.CoverArt)
	}
	if err := s.props.Set(playerIface, "Metadata", dbus.MakeVariant(m)); err != nil {
		s.logger.Warn("mpris: failed to set metadata", slog.Any("error", err))
	}
}

// SetPlaybackState publishes Playing/Paused.
func (s *Sink) SetPlaybackState(playing bool) {
	status := "Paused"
	if playing {
		status = "Playing"
	}
	if err := s.props.Set(playerIface, "PlaybackStatus", dbus.MakeVariant(status)); err != nil {
		s.logger.Warn("mpris: failed to set playback status", slog.Any("error", err))
	}
}

// SetPosition publishes the current position and emits the Seeked signal,
// the way MPRIS clients expect an explicit seek notification rather than a
// Position property-changed event (the spec forbids emitting PropertiesChanged
// for Position).
func (s *Sink) SetPosition(position time.Duration) {
	us := usFromDuration(position)
	if err := s.props.Set(playerIface, "Position", dbus.MakeVariant(int64(us))); err != nil {
		s.logger.Warn("mpris: failed to set position", slog.Any("error", err))
	}
	if err := s.conn.Emit(objectPath, playerIface+".Seeked", int64(us)); err != nil {
		s.logger.Warn("mpris: failed to emit Seeked", slog.Any("error", err))
	}
}

// Controls returns the inbound media-control event channel.
func (s *Sink) Controls() <-chan ports.MediaControlEvent { return s.events }

// Close releases the D-Bus connection.
func (s *Sink) Close() error {
	return s.conn.Close()
}

func (s *Sink) emit(evt ports.MediaControlEvent) {
	select {
	case s.events <- evt:
	default:
		s.logger.Warn("mpris: control event dropped, channel full")
	}
}

func (s *Sink) onVolume(c *prop.Change) *dbus.Error {
	return nil
}

// playerObject is the D-Bus-exported object backing org.mpris.MediaPlayer2.Player;
// it is kept distinct from Sink because the MediaSessionSink interface and the
// MPRIS method set both want a method named SetPosition with different
// signatures, which can't coexist on one Go type.
type playerObject struct {
	sink *Sink
}

func (p *playerObject) Next() *dbus.Error {
	p.sink.emit(ports.MediaControlEvent{Action: ports.ControlNext})
	return nil
}

func (p *playerObject) Previous() *dbus.Error {
	p.sink.emit(ports.MediaControlEvent{Action: ports.ControlPrevious})
	return nil
}

func (p *playerObject) Pause() *dbus.Error {
	p.sink.emit(ports.MediaControlEvent{Action: ports.ControlPause})
	return nil
}

func (p *playerObject) PlayPause() *dbus.Error {
	p.sink.emit(ports.MediaControlEvent{Action: ports.ControlToggle})
	return nil
}

func (p *playerObject) Play() *dbus.Error {
	p.sink.emit(ports.MediaControlEvent{Action: ports.ControlPlay})
	return nil
}

func (p *playerObject) Stop() *dbus.Error {
	p.sink.emit(ports.MediaControlEvent{Action: ports.ControlStop})
	return nil
}

func (p *playerObject) Seek(offsetUs TimeInUs) *dbus.Error {
	p.sink.emit(ports.MediaControlEvent{Action: ports.ControlSetPosition, Position: offsetUs.Duration()})
	return nil
}

func (p *playerObject) SetPosition(trackID dbus.ObjectPath, positionUs TimeInUs) *dbus.Error {
	p.sink.emit(ports.MediaControlEvent{Action: ports.ControlSetPosition, Position: positionUs.Duration()})
	return nil
}

func (p *playerObject) OpenUri(uri string) *dbus.Error {
	return dbus.MakeFailedError(fmt.Errorf("OpenUri not supported"))
}

func sanitizeID(id string) string {
	out := make([]rune, 0, len(id))
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	if len(out) == 0 {
		return "none"
	}
	return string(out)
}

var _ ports.MediaSessionSink = (*Sink)(nil)
