package audio

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/grafov/m3u8"
)

// hlsSegmentReader sequentially fetches and concatenates an HLS media
// playlist's segments into a single io.Reader, suitable for handing to a
// format decoder the way a progressive stream would be. Live playlists
// (no #EXT-X-ENDLIST) are read once per SetSrc; looping/refresh is out of
// scope for this backend.
type hlsSegmentReader struct {
	client    *http.Client
	segments  []string
	index     int
	current   io.ReadCloser
}

func newHLSSegmentReader(ctx httpDoer, playlistURL string) (*hlsSegmentReader, error) {
	resp, err := httpGet(ctx, playlistURL)
	if err != nil {
		return nil, fmt.Errorf("fetch hls playlist: %w", err)
	}
	defer resp.Body.Close()

	playlist, listType, err := m3u8.DecodeFrom(bufio.NewReader(resp.Body), true)
	if err != nil {
		return nil, fmt.Errorf("decode hls playlist: %w", err)
	}

	base, err := url.Parse(playlistURL)
	if err != nil {
		return nil, fmt.Errorf("parse playlist url: %w", err)
	}

	switch listType {
	case m3u8.MASTER:
		master := playlist.(*m3u8.MasterPlaylist)
		variantURL, err := pickVariant(master, base)
		if err != nil {
			return nil, err
		}
		return newHLSSegmentReader(ctx, variantURL)
	case m3u8.MEDIA:
		media := playlist.(*m3u8.MediaPlaylist)
		segs := make([]string, 0, media.Count())
		for _, seg := range media.Segments {
			if seg == nil {
				continue
			}
			segs = append(segs, resolve(base, seg.URI))
		}
		if len(segs) == 0 {
			return nil, fmt.Errorf("hls media playlist has no segments")
		}
		return &hlsSegmentReader{client: resolveClient(ctx), segments: segs}, nil
	default:
		return nil, fmt.Errorf("unrecognized hls playlist type")
	}
}

// pickVariant chooses the highest-bandwidth variant from a master playlist.
func pickVariant(master *m3u8.MasterPlaylist, base *url.URL) (string, error) {
	var best *m3u8.Variant
	for _, v := range master.Variants {
		if v == nil {
			continue
		}
		if best == nil || v.Bandwidth > best.Bandwidth {
			best = v
		}
	}
	if best == nil {
		return "", fmt.Errorf("hls master playlist has no variants")
	}
	return resolve(base, best.URI), nil
}

func resolve(base *url.URL, ref string) string {
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(refURL).String()
}

func (h *hlsSegmentReader) Read(p []byte) (int, error) {
	for {
		if h.current == nil {
			if h.index >= len(h.segments) {
				return 0, io.EOF
			}
			resp, err := h.client.Get(h.segments[h.index])
			h.index++
			if err != nil {
				continue
			}
			h.current = resp.Body
		}
		n, err := h.current.Read(p)
		if n > 0 {
			return n, nil
		}
		if err != nil {
			h.current.Close()
			h.current = nil
			if err != io.EOF {
				return 0, err
			}
		}
	}
}

func (h *hlsSegmentReader) Close() error {
	if h.current != nil {
		return h.current.Close()
	}
	return nil
}

// httpDoer is the minimal dependency the HLS fetcher needs; satisfied by
// *http.Client.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

func httpGet(client httpDoer, rawURL string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	return client.Do(req)
}

func resolveClient(d httpDoer) *http.Client {
	if c, ok := d.(*http.Client); ok {
		return c
	}
	return http.DefaultClient
}

// isHLSURL reports whether a URL looks like an HLS playlist entry point.
func isHLSURL(raw string) bool {
	lower := strings.ToLower(raw)
	return strings.Contains(lower, ".m3u8")
}
