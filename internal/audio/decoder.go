// Package audio implements the progressive/HLS/local playback backend (C3):
// a single dedicated goroutine hosting a command channel, a format-sniffing
// decoder chain, and an oto output sink.
package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	gomp3 "github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	"github.com/mewkiz/flac"
)

// decodedStream is a PCM16LE io.Reader plus the format info the sink needs.
type decodedStream struct {
	io.Reader
	sampleRate int
	channels   int
}

// sniffFormat guesses a container from a format hint, a URL/path suffix, and
// an HTTP content-type, in that priority order. Defaults to mp3.
func sniffFormat(formatHint, url, contentType string) string {
	if h := strings.ToLower(formatHint); h != "" {
		switch h {
		case "mp3", "mpeg":
			return "mp3"
		case "flac":
			return "flac"
		case "ogg", "oga", "vorbis":
			return "ogg"
		}
	}

	lower := strings.ToLower(url)
	switch {
	case strings.Contains(lower, ".flac"):
		return "flac"
	case strings.Contains(lower, ".ogg"), strings.Contains(lower, ".oga"):
		return "ogg"
	case strings.Contains(lower, ".mp3"):
		return "mp3"
	}

	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "flac"):
		return "flac"
	case strings.Contains(ct, "ogg"), strings.Contains(ct, "vorbis"):
		return "ogg"
	}
	return "mp3"
}

// decode builds a PCM16LE reader for the given container format.
func decode(format string, r io.Reader) (*decodedStream, error) {
	switch strings.ToLower(format) {
	case "mp3":
		return decodeMP3(r)
	case "flac":
		return decodeFLAC(r)
	case "ogg", "oga":
		return decodeOGG(r)
	default:
		return nil, fmt.Errorf("unsupported audio format: %s", format)
	}
}

func decodeMP3(r io.Reader) (*decodedStream, error) {
	d, err := gomp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("mp3 decode: %w", err)
	}
	return &decodedStream{Reader: d, sampleRate: d.SampleRate(), channels: 2}, nil
}

func decodeFLAC(r io.Reader) (*decodedStream, error) {
	stream, err := flac.New(r)
	if err != nil {
		return nil, fmt.Errorf("flac decode: %w", err)
	}
	fr := &flacPCMReader{stream: stream, channels: int(stream.Info.NChannels)}
	return &decodedStream{Reader: fr, sampleRate: int(stream.Info.SampleRate), channels: fr.channels}, nil
}

func decodeOGG(r io.Reader) (*decodedStream, error) {
	d, format, err := oggReader(r)
	if err != nil {
		return nil, fmt.Errorf("ogg decode: %w", err)
	}
	return &decodedStream{Reader: d, sampleRate: format.sampleRate, channels: format.channels}, nil
}

type oggFormat struct {
	sampleRate int
	channels   int
}

func oggReader(r io.Reader) (io.Reader, oggFormat, error) {
	dec, err := oggvorbis.NewReader(r)
	if err != nil {
		return nil, oggFormat{}, err
	}
	return &oggPCMReader{dec: dec}, oggFormat{sampleRate: int(dec.SampleRate()), channels: dec.Channels()}, nil
}

// flacPCMReader adapts mewkiz/flac's frame-based API to io.Reader, emitting
// interleaved 16-bit little-endian PCM.
type flacPCMReader struct {
	stream   *flac.Stream
	channels int
	pending  []byte
}

func (f *flacPCMReader) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		if len(f.pending) > 0 {
			c := copy(p[n:], f.pending)
			f.pending = f.pending[c:]
			n += c
			continue
		}
		frame, err := f.stream.ParseNext()
		if err != nil {
			if n > 0 {
				return n, nil
			}
			return 0, err
		}
		f.pending = framePCM(frame)
	}
	return n, nil
}

// framePCM interleaves a FLAC frame's per-channel int32 samples into
// 16-bit little-endian PCM, truncating FLAC's wider bit depths.
func framePCM(frame *flac.Frame) []byte {
	nchan := len(frame.Subframes)
	if nchan == 0 {
		return nil
	}
	nsamp := len(frame.Subframes[0].Samples)
	buf := make([]byte, 0, nsamp*nchan*2)
	for i := 0; i < nsamp; i++ {
		for c := 0; c < nchan; c++ {
			s := frame.Subframes[c].Samples[i]
			var b [2]byte
			binary.LittleEndian.PutUint16(b[:], uint16(int16(s)))
			buf = append(buf, b[0], b[1])
		}
	}
	return buf
}

// oggPCMReader adapts jfreymuth/oggvorbis's float32 API to io.Reader,
// converting samples to interleaved 16-bit little-endian PCM.
type oggPCMReader struct {
	dec     *oggvorbis.Reader
	scratch []float32
	pending []byte
}

func (o *oggPCMReader) Read(p []byte) (int, error) {
	if len(o.pending) > 0 {
		n := copy(p, o.pending)
		o.pending = o.pending[n:]
		return n, nil
	}
	if cap(o.scratch) == 0 {
		o.scratch = make([]float32, 4096)
	}
	n, err := o.dec.Read(o.scratch)
	if n == 0 {
		return 0, err
	}
	buf := make([]byte, n*2)
	for i := 0; i < n; i++ {
		s := o.scratch[i]
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(int16(s*32767)))
	}
	got := copy(p, buf)
	if got < len(buf) {
		o.pending = buf[got:]
	}
	return got, nil
}
