package bilibili

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejashwikalptaru/gotune-core/internal/domain"
	"github.com/tejashwikalptaru/gotune-core/internal/ports"
)

func newFakeBilibiliServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/x/web-interface/search/type", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":0,"message":"0","data":{"result":[
			{"bvid":"BV1xx","title":"<em class=\"keyword\">Song</em> One","author":"Artist","pic":"//i0.hdslb.com/a.jpg","duration":"3:45"}
		]}}`))
	})
	mux.HandleFunc("/x/web-interface/view", func(w http.ResponseWriter, r *http.Request) {
		bvid := r.URL.Query().Get("bvid")
		if bvid == "missing" {
			_, _ = w.Write([]byte(`{"code":-400,"message":"not found","data":null}`))
			return
		}
		_, _ = w.Write([]byte(`{"code":0,"message":"0","data":{
			"bvid":"BV1xx","cid":123,"title":"Song One","pic":"//i0.hdslb.com/a.jpg",
			"owner":{"name":"Artist"},"duration":225
		}}`))
	})
	mux.HandleFunc("/x/player/playurl", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":0,"message":"0","data":{"durl":[
			{"url":"https://cdn.example/low.mp4","size":100,"length":100},
			{"url":"https://cdn.example/high.mp4","size":900,"length":900}
		]}}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestProvider(t *testing.T) *Provider {
	t.Helper()
	srv := newFakeBilibiliServer(t)
	p := newWithBase(srv.URL)
	require.NoError(t, p.Initialize(context.Background()))
	return p
}

func TestSearchMapsVideoResultStripsHTMLAndParsesDuration(t *testing.T) {
	p := newTestProvider(t)
	res, err := p.Search(context.Background(), ports.SearchQuery{Text: "song"})
	require.NoError(t, err)
	require.Len(t, res.Tracks, 1)

	tr := res.Tracks[0]
	assert.Equal(t, trackIDPrefix+"BV1xx", tr.ID)
	assert.Equal(t, "Song One", tr.Title)
	assert.Equal(t, "Artist", tr.Artist)
	assert.Equal(t, "https://i0.hdslb.com/a.jpg", tr.CoverArt)
	assert.Equal(t, 3*time.Minute+45*time.Second, tr.Duration)
	assert.Equal(t, ProviderName, tr.ProviderExtension)
	assert.Equal(t, domain.SourceURL, tr.SourceType)
}

func TestGetTrackPropagatesNotFoundAsProviderError(t *testing.T) {
	p := newTestProvider(t)
	_, err := p.GetTrack(context.Background(), trackIDPrefix+"missing")
	require.Error(t, err)
	var provErr *domain.ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, ProviderName, provErr.Provider)
}

func TestIsTrackAvailable(t *testing.T) {
	p := newTestProvider(t)
	ok, err := p.IsTrackAvailable(context.Background(), trackIDPrefix+"BV1xx")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.IsTrackAvailable(context.Background(), trackIDPrefix+"missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetMediaStreamPicksLargestDurlAndSetsAntiHotlinkHeaders(t *testing.T) {
	p := newTestProvider(t)
	src, err := p.GetMediaStream(context.Background(), trackIDPrefix+"BV1xx", ports.StreamRequest{})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/high.mp4", src.URL)
	assert.Equal(t, ports.ProtocolProgressive, src.Protocol)
	assert.Equal(t, "https://www.bilibili.com", src.Headers["Referer"])
	assert.Equal(t, "https://www.bilibili.com", src.Headers["Origin"])
}

func TestUnsupportedOperationsReturnErrNotSupported(t *testing.T) {
	p := newTestProvider(t)
	_, err := p.GetAlbum(context.Background(), "a1")
	assert.ErrorIs(t, err, domain.ErrNotSupported)
	_, err = p.GetArtist(context.Background(), "ar1")
	assert.ErrorIs(t, err, domain.ErrNotSupported)
	_, err = p.GetPlaylist(context.Background(), "pl1")
	assert.ErrorIs(t, err, domain.ErrNotSupported)
	_, err = p.GetUserPlaylists(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotSupported)
}

func TestBuiltinIDIsStableAcrossInstances(t *testing.T) {
	assert.Equal(t, New().ID(), New().ID())
}
