package audio

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/tejashwikalptaru/gotune-core/internal/domain"
	"github.com/tejashwikalptaru/gotune-core/internal/ports"
)

type cmdKind int

const (
	cmdSetSrc cmdKind = iota
	cmdPlay
	cmdPause
	cmdStop
	cmdSetVolume
	cmdSeek
	cmdClose
)

type command struct {
	kind  cmdKind
	track domain.Track
	raw   float64
	pos   time.Duration
	done  chan error
}

// Backend is the per-source audio player described by C3: a dedicated
// goroutine owns the oto sink and processes commands strictly FIFO, a
// 500ms ticker reports position while playing, and a helper goroutine per
// load watches for natural end-of-stream.
type Backend struct {
	otoCtx *oto.Context
	client *http.Client

	cmds   chan command
	events chan ports.BackendEvent
	closed chan struct{}

	generation uint64 // bumped on every SetSrc; guards stale Ended firings

	// touched only by the run() goroutine, except playing, which tick() also
	// reads (hence atomic)
	sink      *oto.Player
	lastTrack *domain.Track
	volume    float64
	playing   atomic.Bool

	// posMu guards position: written by run() (handleSetSrc/handleStop/
	// handleSeek) and by tick(), so it can't live in the run()-only set
	// above (spec.md §4.3/§5: "the position counter guarded by a short-
	// held lock").
	posMu    sync.Mutex
	position time.Duration
}

func (b *Backend) setPosition(d time.Duration) {
	b.posMu.Lock()
	b.position = d
	b.posMu.Unlock()
}

func (b *Backend) addPosition(d time.Duration) time.Duration {
	b.posMu.Lock()
	b.position += d
	p := b.position
	b.posMu.Unlock()
	return p
}

// NewBackend creates a Backend bound to a shared oto output context.
func NewBackend(otoCtx *oto.Context) *Backend {
	b := &Backend{
		otoCtx: otoCtx,
		client: &http.Client{Timeout: 30 * time.Second},
		cmds:   make(chan command, 8),
		events: make(chan ports.BackendEvent, 64),
		closed: make(chan struct{}),
		volume: 100,
	}
	go b.run()
	go b.tick()
	return b
}

func (b *Backend) Capabilities() []domain.SourceType {
	return []domain.SourceType{domain.SourceLocal, domain.SourceURL, domain.SourceHLS}
}

func (b *Backend) Events() <-chan ports.BackendEvent { return b.events }

func (b *Backend) send(ctx context.Context, kind cmdKind, track domain.Track, raw float64, pos time.Duration) error {
	done := make(chan error, 1)
	cmd := command{kind: kind, track: track, raw: raw, pos: pos, done: done}
	select {
	case b.cmds <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-b.closed:
		return domain.ErrNotInitialized
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Backend) SetSrc(ctx context.Context, track domain.Track) error {
	return b.send(ctx, cmdSetSrc, track, 0, 0)
}

func (b *Backend) Play(ctx context.Context) error {
	return b.send(ctx, cmdPlay, domain.Track{}, 0, 0)
}

func (b *Backend) Pause(ctx context.Context) error {
	return b.send(ctx, cmdPause, domain.Track{}, 0, 0)
}

func (b *Backend) Stop(ctx context.Context) error {
	return b.send(ctx, cmdStop, domain.Track{}, 0, 0)
}

func (b *Backend) SetVolume(ctx context.Context, raw float64) error {
	return b.send(ctx, cmdSetVolume, domain.Track{}, raw, 0)
}

func (b *Backend) Seek(ctx context.Context, position time.Duration) error {
	return b.send(ctx, cmdSeek, domain.Track{}, 0, position)
}

func (b *Backend) Close() error {
	close(b.closed)
	return nil
}

// run is the single goroutine that owns all mutable backend state and
// processes commands in submission order.
func (b *Backend) run() {
	for {
		select {
		case cmd := <-b.cmds:
			var err error
			switch cmd.kind {
			case cmdSetSrc:
				err = b.handleSetSrc(cmd.track)
			case cmdPlay:
				err = b.handlePlay()
			case cmdPause:
				err = b.handlePause()
			case cmdStop:
				err = b.handleStop()
			case cmdSetVolume:
				err = b.handleSetVolume(cmd.raw)
			case cmdSeek:
				err = b.handleSeek(cmd.pos)
			}
			cmd.done <- err
		case <-b.closed:
			b.handleStop()
			return
		}
	}
}

func (b *Backend) handleSetSrc(track domain.Track) error {
	gen := atomic.AddUint64(&b.generation, 1)
	b.closeSink()
	b.setPosition(0)
	b.emit(ports.BackendEvent{Kind: ports.BackendTimeUpdate, Position: 0})
	b.emit(ports.BackendEvent{Kind: ports.BackendLoading})

	src, format, err := b.open(track)
	if err != nil {
		b.emit(ports.BackendEvent{Kind: ports.BackendError, Err: err})
		return err
	}

	stream, err := decode(format, src)
	if err != nil {
		b.emit(ports.BackendEvent{Kind: ports.BackendError, Err: err})
		return err
	}

	eof := make(chan struct{})
	notify := &eofNotifyReader{r: stream, ch: eof}
	player := b.otoCtx.NewPlayer(notify)
	player.SetVolume(domain.Clamp01(b.volume / domain.ClampMax))

	b.sink = player
	t := track
	b.lastTrack = &t

	go b.watchEnded(gen, eof, player)
	return nil
}

func (b *Backend) handlePlay() error {
	if b.sink == nil {
		return domain.ErrNotInitialized
	}
	b.sink.Play()
	b.playing.Store(true)
	b.emit(ports.BackendEvent{Kind: ports.BackendPlay})
	return nil
}

func (b *Backend) handlePause() error {
	b.playing.Store(false)
	if b.sink != nil {
		b.sink.Pause()
	}
	b.emit(ports.BackendEvent{Kind: ports.BackendPause})
	return nil
}

func (b *Backend) handleStop() error {
	b.playing.Store(false)
	b.closeSink()
	b.setPosition(0)
	b.emit(ports.BackendEvent{Kind: ports.BackendPause})
	return nil
}

func (b *Backend) handleSetVolume(raw float64) error {
	b.volume = domain.ClampRaw(raw)
	if b.sink != nil {
		b.sink.SetVolume(domain.Clamp01(b.volume / domain.ClampMax))
	}
	return nil
}

// handleSeek updates the reported position and, if the sink is empty but a
// prior source is remembered, reloads and resumes it so callers can
// implement resume-from-persisted-state flows. The decoder chain here does
// not support sample-accurate seeking mid-stream; position is tracked for
// reporting purposes only.
func (b *Backend) handleSeek(pos time.Duration) error {
	if b.sink == nil && b.lastTrack != nil {
		track := *b.lastTrack
		if err := b.handleSetSrc(track); err != nil {
			return err
		}
		b.setPosition(pos)
		b.emit(ports.BackendEvent{Kind: ports.BackendTimeUpdate, Position: pos})
		return b.handlePlay()
	}
	b.setPosition(pos)
	b.emit(ports.BackendEvent{Kind: ports.BackendTimeUpdate, Position: pos})
	return nil
}

func (b *Backend) closeSink() {
	if b.sink != nil {
		b.sink.Close()
		b.sink = nil
	}
}

func (b *Backend) emit(ev ports.BackendEvent) {
	select {
	case b.events <- ev:
	default:
		// drop rather than block the command goroutine; the orchestrator
		// is expected to drain promptly.
	}
}

// tick emits TimeUpdate every 500ms while playing, advancing by 0.5s per
// tick. It runs for the Backend's lifetime.
func (b *Backend) tick() {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if b.playing.Load() {
				pos := b.addPosition(500 * time.Millisecond)
				b.emit(ports.BackendEvent{Kind: ports.BackendTimeUpdate, Position: pos})
			}
		case <-b.closed:
			return
		}
	}
}

// watchEnded waits for the decoder to exhaust its input, then polls until
// the sink has played out its buffered audio, then emits Ended only if no
// intervening SetSrc has superseded this load.
func (b *Backend) watchEnded(gen uint64, eof <-chan struct{}, player *oto.Player) {
	select {
	case <-eof:
	case <-b.closed:
		return
	}
	for player.IsPlaying() || player.BufferedSize() > 0 {
		select {
		case <-b.closed:
			return
		case <-time.After(50 * time.Millisecond):
		}
	}
	if atomic.LoadUint64(&b.generation) == gen {
		b.emit(ports.BackendEvent{Kind: ports.BackendEnded})
	}
}

// open classifies a track's source and returns a raw byte reader plus a
// format hint, per the SetSrc routing rules: local path, HLS playlist, or
// plain HTTP progressive stream.
func (b *Backend) open(track domain.Track) (io.Reader, string, error) {
	switch {
	case track.LocalPath != "":
		f, err := os.Open(track.LocalPath)
		if err != nil {
			return nil, "", fmt.Errorf("open local file: %w", err)
		}
		return f, sniffFormat("", track.LocalPath, ""), nil
	case track.PlaybackURL != "" && isHLSURL(track.PlaybackURL):
		r, err := newHLSSegmentReader(b.client, track.PlaybackURL)
		if err != nil {
			return nil, "", err
		}
		return r, "mp3", nil
	case track.PlaybackURL != "":
		resp, err := httpGet(b.client, track.PlaybackURL)
		if err != nil {
			return nil, "", fmt.Errorf("fetch stream: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, "", fmt.Errorf("stream returned status %d", resp.StatusCode)
		}
		format := sniffFormat("", track.PlaybackURL, resp.Header.Get("Content-Type"))
		return resp.Body, format, nil
	default:
		return nil, "", domain.ErrInvalidTrack
	}
}

// eofNotifyReader closes ch the first time the wrapped reader returns EOF.
type eofNotifyReader struct {
	r        io.Reader
	ch       chan struct{}
	notified bool
}

func (e *eofNotifyReader) Read(p []byte) (int, error) {
	n, err := e.r.Read(p)
	if err == io.EOF && !e.notified {
		e.notified = true
		close(e.ch)
	}
	return n, err
}

var _ ports.Backend = (*Backend)(nil)

// NewOtoContext creates the shared oto output context used by every
// Backend instance. Call once per process.
func NewOtoContext() (*oto.Context, chan struct{}, error) {
	op := &oto.NewContextOptions{
		SampleRate:   44100,
		ChannelCount: 2,
		Format:       oto.FormatSignedInt16LE,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, nil, fmt.Errorf("create oto context: %w", err)
	}
	readyCh := make(chan struct{})
	go func() {
		<-ready
		close(readyCh)
	}()
	return ctx, readyCh, nil
}
