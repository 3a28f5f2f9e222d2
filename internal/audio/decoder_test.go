package audio

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSniffFormat(t *testing.T) {
	cases := []struct {
		name        string
		hint        string
		url         string
		contentType string
		want        string
	}{
		{"hint wins", "flac", "https://host/track.mp3", "audio/mpeg", "flac"},
		{"url extension", "", "https://host/track.ogg", "", "ogg"},
		{"content type", "", "https://host/stream", "audio/flac", "flac"},
		{"default mp3", "", "https://host/stream", "", "mp3"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, sniffFormat(tc.hint, tc.url, tc.contentType))
		})
	}
}

func TestIsHLSURL(t *testing.T) {
	assert.True(t, isHLSURL("https://host/playlist.m3u8"))
	assert.False(t, isHLSURL("https://host/track.mp3"))
}

func TestEOFNotifyReader(t *testing.T) {
	src := bytes.NewReader([]byte("hello"))
	ch := make(chan struct{})
	r := &eofNotifyReader{r: src, ch: ch}

	buf := make([]byte, 16)
	n, err := r.Read(buf)
	assert.Equal(t, 5, n)
	assert.NoError(t, err)

	select {
	case <-ch:
		t.Fatal("channel closed before EOF observed")
	default:
	}

	n, err = r.Read(buf)
	assert.Equal(t, 0, n)
	assert.Equal(t, io.EOF, err)

	select {
	case <-ch:
	default:
		t.Fatal("expected channel to be closed after EOF")
	}

	// A second EOF must not attempt to close ch again.
	_, err = r.Read(buf)
	assert.ErrorIs(t, err, io.EOF)
}

type failingReader struct{}

func (failingReader) Read(p []byte) (int, error) { return 0, errors.New("boom") }

func TestDecodeUnsupportedFormat(t *testing.T) {
	_, err := decode("wav", failingReader{})
	assert.Error(t, err)
}
