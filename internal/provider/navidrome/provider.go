package navidrome

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tejashwikalptaru/gotune-core/internal/domain"
	"github.com/tejashwikalptaru/gotune-core/internal/ports"
)

// ProviderName is the stable internal name used to derive this plugin's
// built-in UUID (provider.BuiltinPluginID("navidrome")).
const ProviderName = "navidrome"

// Config carries the server connection details, the way
// navitone-cli's config.NavidromeConfig does.
type Config struct {
	ServerURL string
	Username  string
	Password  string
	Timeout   time.Duration
}

// Provider adapts a Subsonic/Navidrome server into a ports.Provider.
type Provider struct {
	id     string
	cfg    Config
	client *client
	status atomic.Int32 // ports.PluginStatus
}

// New builds an unconnected Provider; call Initialize before use.
func New(cfg Config) *Provider {
	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte("navidrome:"+cfg.ServerURL)).String()
	return &Provider{id: id, cfg: cfg}
}

func (p *Provider) ID() string             { return p.id }
func (p *Provider) Name() string            { return ProviderName }
func (p *Provider) Version() string         { return "1.0.0" }
func (p *Provider) Type() domain.PluginType { return domain.PluginAudioProvider }

func (p *Provider) Capabilities() []ports.Capability {
	return []ports.Capability{ports.CapSearch, ports.CapStreaming, ports.CapNetwork}
}

func (p *Provider) Initialize(ctx context.Context) error {
	p.client = newClient(p.cfg.ServerURL, p.cfg.Username, p.cfg.Password)
	if p.cfg.Timeout > 0 {
		p.client.httpClient.Timeout = p.cfg.Timeout
	}
	if err := p.client.ping(ctx); err != nil {
		p.status.Store(int32(ports.StatusError))
		return domain.NewProviderError(ProviderName, "initialize", err.Error(), err)
	}
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

func (p *Provider) HealthCheck(ctx context.Context) ports.HealthStatus {
	if err := p.client.ping(ctx); err != nil {
		return ports.HealthStatus{State: ports.HealthUnhealthy, Message: err.Error()}
	}
	return ports.HealthStatus{State: ports.HealthHealthy}
}

// Search maps a Subsonic search3 response onto ports.SearchResult.
func (p *Provider) Search(ctx context.Context, query ports.SearchQuery) (ports.SearchResult, error) {
	res, err := p.client.search3(ctx, query.Text, query.Page.Limit, query.Page.Offset)
	if err != nil {
		return ports.SearchResult{}, domain.NewProviderError(ProviderName, "search", err.Error(), err)
	}

	out := ports.SearchResult{ProviderContext: map[string]string{"server": p.cfg.ServerURL}}
	for _, s := range res.Song {
		out.Tracks = append(out.Tracks, trackFromSong(s, p.cfg.ServerURL))
	}
	for _, a := range res.Album {
		out.Albums = append(out.Albums, ports.AlbumRef{ID: a.ID, Name: a.Name, Artist: a.Artist, CoverArt: a.CoverArt})
	}
	for _, a := range res.Artist {
		out.Artists = append(out.Artists, ports.ArtistRef{ID: a.ID, Name: a.Name})
	}
	return out, nil
}

func (p *Provider) GetTrack(ctx context.Context, id string) (domain.Track, error) {
	s, err := p.client.getSong(ctx, id)
	if err != nil {
		return domain.Track{}, domain.NewProviderError(ProviderName, "get_track", err.Error(), err)
	}
	return trackFromSong(s, p.cfg.ServerURL), nil
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
	_, err := p.client.getSong(ctx, id)
	return err == nil, nil
}

// GetMediaStream returns the authenticated stream URL for trackID, the way
// the teacher's Client.GetStreamURL builds one. It first fetches the song
// with getSong (one network round trip) for its metadata; the URL itself
// carries fresh auth params.
func (p *Provider) GetMediaStream(ctx context.Context, trackID string, req ports.StreamRequest) (ports.StreamSource, error) {
	s, err := p.client.getSong(ctx, trackID)
	if err != nil {
		return ports.StreamSource{}, domain.NewProviderError(ProviderName, "get_media_stream", err.Error(), err)
	}
	return ports.StreamSource{
		URL:         p.client.streamURL(trackID),
		Container:   s.Suffix,
		BitrateKbps: s.BitRate,
		Protocol:    ports.ProtocolProgressive,
	}, nil
}

func trackFromSong(s song, serverURL string) domain.Track {
	var cover string
	if s.CoverArt != "" {
		cover = fmt.Sprintf("%s/rest/getCoverArt?id=%s", serverURL, s.CoverArt)
	}
	return domain.Track{
		ID:                s.ID,
		SourceType:        domain.SourceURL,
		ProviderExtension: ProviderName,
		Duration:          time.Duration(s.Duration) * time.Second,
		Title:             s.Title,
		Artist:            s.Artist,
		Album:             s.Album,
		CoverArt:          cover,
	}
}

var _ ports.Provider = (*Provider)(nil)
