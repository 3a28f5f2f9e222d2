package bilibili

import (
	"context"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tejashwikalptaru/gotune-core/internal/domain"
	"github.com/tejashwikalptaru/gotune-core/internal/ports"
)

// ProviderName is the stable internal name used to derive this plugin's
// built-in UUID, mirroring the original crate's
// Uuid::new_v5(&Uuid::NAMESPACE_OID, b"builtin:bilibili").
const ProviderName = "bilibili"

// trackIDPrefix namespaces bvids in domain.Track.ID; the provider strips it
// again before calling the Bilibili API.
const trackIDPrefix = "bilibili:"

// Provider adapts Bilibili's public video/audio surface into a
// ports.Provider, grounded on original_source's
// crates/plugins/src/internal/bilibili/plugin.rs. Unlike that crate, this
// provider has no session/cookie state: everything it calls is a public,
// unauthenticated endpoint, so Initialize/Start/Stop are no-ops beyond
// status bookkeeping.
type Provider struct {
	id     string
	client *client
	status atomic.Int32 // ports.PluginStatus
}

// New builds a Provider with a deterministic ID. The registry stores the
// built-in's row under BuiltinPluginID(ProviderName), not under this ID.
func New() *Provider {
	id := uuid.NewSHA1(uuid.NameSpaceOID, []byte("builtin:"+ProviderName)).String()
	return &Provider{id: id, client: newClient()}
}

// newWithBase builds a Provider against an arbitrary API base URL, used by
// tests to point at an httptest fixture.
func newWithBase(base string) *Provider {
	id := uuid.NewSHA1(uuid.NameSpaceOID, []byte("builtin:"+ProviderName)).String()
	return &Provider{id: id, client: newClientWithBase(base)}
}

func (p *Provider) ID() string             { return p.id }
func (p *Provider) Name() string            { return ProviderName }
func (p *Provider) Version() string         { return "1.0.0" }
func (p *Provider) Type() domain.PluginType { return domain.PluginAudioProvider }

func (p *Provider) Capabilities() []ports.Capability {
	return []ports.Capability{ports.CapSearch, ports.CapStreaming, ports.CapNetwork}
}

func (p *Provider) Initialize(ctx context.Context) error {
	p.status.Store(int32(ports.StatusReady))
	return nil
}

func (p *Provider) Start() error {
	p.status.Store(int32(ports.StatusRunning))
	return nil
}

func (p *Provider) Stop() error {
	p.status.Store(int32(ports.StatusStopped))
	return nil
}

func (p *Provider) Status() ports.PluginStatus {
	return ports.PluginStatus(p.status.Load())
}

// HealthCheck probes the search endpoint with the keyword "a"; Bilibili's
// public API answers code 0 for that, so a non-zero code or network error
// means the surface is down or blocked.
func (p *Provider) HealthCheck(ctx context.Context) ports.HealthStatus {
	if _, err := p.client.search(ctx, "a", 1); err != nil {
		return ports.HealthStatus{State: ports.HealthUnhealthy, Message: err.Error()}
	}
	return ports.HealthStatus{State: ports.HealthHealthy}
}

// Search maps Bilibili's search/type video results onto ports.SearchResult,
// grounded on BilibiliSearchVideo in original_source's bilibili/types.rs.
func (p *Provider) Search(ctx context.Context, query ports.SearchQuery) (ports.SearchResult, error) {
	page := 1
	if query.Page.Offset > 0 && query.Page.Limit > 0 {
		page = query.Page.Offset/query.Page.Limit + 1
	}
	results, err := p.client.search(ctx, query.Text, page)
	if err != nil {
		return ports.SearchResult{}, domain.NewProviderError(ProviderName, "search", err.Error(), err)
	}

	out := ports.SearchResult{ProviderContext: map[string]string{"source": "bilibili"}}
	for _, v := range results {
		out.Tracks = append(out.Tracks, domain.Track{
			ID:                trackIDPrefix + v.BVID,
			SourceType:        domain.SourceURL,
			ProviderExtension: ProviderName,
			Duration:          parseMMSS(v.Duration),
			Title:             stripHTMLTags(v.Title),
			Artist:            v.Author,
			CoverArt:          normalizePicURL(v.Pic),
		})
	}
	return out, nil
}

// GetTrack resolves full metadata for a bvid via the view endpoint, the
// Go equivalent of the crate's BilibiliVideoDetails lookup.
func (p *Provider) GetTrack(ctx context.Context, id string) (domain.Track, error) {
	bvid := strings.TrimPrefix(id, trackIDPrefix)
	d, err := p.client.view(ctx, bvid)
	if err != nil {
		return domain.Track{}, domain.NewProviderError(ProviderName, "get_track", err.Error(), err)
	}
	return domain.Track{
		ID:                trackIDPrefix + d.BVID,
		SourceType:        domain.SourceURL,
		ProviderExtension: ProviderName,
		Duration:          time.Duration(d.Duration) * time.Second,
		Title:             d.Title,
		Artist:            d.Owner.Name,
		CoverArt:          normalizePicURL(d.Pic),
	}, nil
}

func (p *Provider) GetAlbum(ctx context.Context, id string) (ports.AlbumRef, error) {
	return ports.AlbumRef{}, domain.ErrNotSupported
}

func (p *Provider) GetArtist(ctx context.Context, id string) (ports.ArtistRef, error) {
	return ports.ArtistRef{}, domain.ErrNotSupported
}

func (p *Provider) GetPlaylist(ctx context.Context, id string) (ports.PlaylistRef, error) {
	return ports.PlaylistRef{}, domain.ErrNotSupported
}

func (p *Provider) GetUserPlaylists(ctx context.Context) ([]ports.PlaylistRef, error) {
	return nil, domain.ErrNotSupported
}

func (p *Provider) IsTrackAvailable(ctx context.Context, id string) (bool, error) {
	bvid := strings.TrimPrefix(id, trackIDPrefix)
	_, err := p.client.view(ctx, bvid)
	return err == nil, nil
}

// GetMediaStream resolves bvid -> cid -> progressive MP4 URL, and attaches
// the Referer/Origin/User-Agent headers Bilibili's CDN requires for
// anti-hotlinking, exactly as original_source's audio.rs StreamSource does.
func (p *Provider) GetMediaStream(ctx context.Context, trackID string, req ports.StreamRequest) (ports.StreamSource, error) {
	bvid := strings.TrimPrefix(trackID, trackIDPrefix)
	d, err := p.client.view(ctx, bvid)
	if err != nil {
		return ports.StreamSource{}, domain.NewProviderError(ProviderName, "get_media_stream", err.Error(), err)
	}
	streamURL, err := p.client.playURL(ctx, bvid, d.CID)
	if err != nil {
		return ports.StreamSource{}, domain.NewProviderError(ProviderName, "get_media_stream", err.Error(), err)
	}
	return ports.StreamSource{
		URL:       streamURL,
		Container: "mp4",
		Codec:     "aac",
		Protocol:  ports.ProtocolProgressive,
		Headers: map[string]string{
			"Referer":    "https://www.bilibili.com",
			"Origin":     "https://www.bilibili.com",
			"User-Agent": userAgent,
		},
	}, nil
}

// parseMMSS parses Bilibili's "mm:ss" or "hh:mm:ss" search-result duration
// string; an unparseable value yields zero rather than an error, matching
// how the original crate treats duration as a best-effort display field.
func parseMMSS(s string) time.Duration {
	parts := strings.Split(s, ":")
	var seconds int
	for _, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil {
			return 0
		}
		seconds = seconds*60 + n
	}
	return time.Duration(seconds) * time.Second
}

func stripHTMLTags(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// normalizePicURL prefixes Bilibili's protocol-relative thumbnail URLs
// ("//i0.hdslb.com/...") with https, the way a browser would resolve them.
func normalizePicURL(pic string) string {
	if strings.HasPrefix(pic, "//") {
		return "https:" + pic
	}
	return pic
}

var _ ports.Provider = (*Provider)(nil)
