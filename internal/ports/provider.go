package ports

import (
	"context"
	"time"

	"github.com/tejashwikalptaru/gotune-core/internal/domain"
)

// Capability is a single permission/feature a provider plugin may declare.
type Capability string

const (
	CapSearch         Capability = "search"
	CapPlaylists      Capability = "playlists"
	CapStreaming      Capability = "streaming"
	CapAuthentication Capability = "authentication"
	CapFileSystem     Capability = "filesystem"
	CapNetwork        Capability = "network"
)

// PluginStatus is a plugin lifecycle status (Unloaded/Loaded/Ready/...): both
// what a provider reports about itself and what the registry tracks for
// each registered plugin. It is distinct from the persisted
// domain.PluginState row.
type PluginStatus int

const (
	StatusUnloaded PluginStatus = iota
	StatusLoaded
	StatusReady
	StatusRunning
	StatusStopped
	StatusError
)

// HealthStatus reports a provider's self-assessed health.
type HealthStatus struct {
	State   HealthState
	Message string
}

type HealthState int

const (
	HealthHealthy HealthState = iota
	HealthUnhealthy
	HealthMaintenance
)

// SearchEntityType enumerates the kinds of item a SearchQuery can request.
type SearchEntityType string

const (
	EntityTrack    SearchEntityType = "track"
	EntityAlbum    SearchEntityType = "album"
	EntityArtist   SearchEntityType = "artist"
	EntityPlaylist SearchEntityType = "playlist"
	EntityAll      SearchEntityType = "all"
)

// PageInfo carries pagination state shared by a request and its response.
type PageInfo struct {
	Limit  int
	Offset int
	Cursor string
	Total  int
}

// SearchQuery describes a free-text search request against one provider.
type SearchQuery struct {
	Text   string
	Types  []SearchEntityType
	Page   PageInfo
	Sort   string
	Params map[string]string
}

// SearchResult is a provider's typed search response.
type SearchResult struct {
	Tracks          []domain.Track
	Albums          []AlbumRef
	Artists         []ArtistRef
	Playlists       []PlaylistRef
	Page            PageInfo
	Suggestions     []string
	ProviderContext map[string]string
}

// AlbumRef, ArtistRef and PlaylistRef are thin provider-reported references;
// the provider resolves full detail on follow-up GetAlbum/GetArtist/GetPlaylist calls.
type AlbumRef struct {
	ID, Name, Artist, CoverArt string
}

type ArtistRef struct {
	ID, Name, Picture string
}

type PlaylistRef struct {
	ID, Name, Owner string
	TrackCount      int
}

// StreamProtocol tags the transport a StreamSource uses.
type StreamProtocol string

const (
	ProtocolProgressive StreamProtocol = "progressive"
	ProtocolHLS         StreamProtocol = "hls"
	ProtocolDASH        StreamProtocol = "dash"
	ProtocolOther       StreamProtocol = "other"
)

// StreamSource describes a playable URL a provider resolved for a track.
type StreamSource struct {
	URL        string
	MimeType   string
	Container  string
	Codec      string
	BitrateKbps int
	SampleRate  int
	Channels    int
	Protocol    StreamProtocol
	Expiry      time.Time
	Headers     map[string]string // Referer, Origin, User-Agent, Cookie, ...
}

// StreamRequest carries hints the caller passes into GetMediaStream (e.g.
// preferred bitrate or container); empty value means "provider default".
type StreamRequest struct {
	PreferredBitrateKbps int
	PreferredContainer   string
}

// Provider is the contract every provider plugin implements. A plugin may
// leave media or auth operations unimplemented by returning
// domain.ErrNotSupported; the router treats that as "capability absent".
type Provider interface {
	ID() string
	Name() string
	Version() string
	Type() domain.PluginType
	Capabilities() []Capability

	Initialize(ctx context.Context) error
	Start() error
	Stop() error
	Status() PluginStatus
	HealthCheck(ctx context.Context) HealthStatus

	Search(ctx context.Context, query SearchQuery) (SearchResult, error)
	GetTrack(ctx context.Context, id string) (domain.Track, error)
	GetAlbum(ctx context.Context, id string) (AlbumRef, error)
	GetArtist(ctx context.Context, id string) (ArtistRef, error)
	GetPlaylist(ctx context.Context, id string) (PlaylistRef, error)
	GetUserPlaylists(ctx context.Context) ([]PlaylistRef, error)
	IsTrackAvailable(ctx context.Context, id string) (bool, error)
	GetMediaStream(ctx context.Context, trackID string, req StreamRequest) (StreamSource, error)
}

// AuthState is the state machine an optional auth-capable provider exposes.
type AuthState int

const (
	AuthPending AuthState = iota
	AuthAuthorized
	AuthFailed
)

// AuthResult reports the outcome of an auth poll.
type AuthResult struct {
	State  AuthState
	User   string
	Reason string
}

// AuthProvider is implemented by providers declaring CapAuthentication.
type AuthProvider interface {
	Provider
	BeginQRAuth(ctx context.Context) (qrPayload string, token string, err error)
	PollQRAuth(ctx context.Context, token string) (AuthResult, error)
	AuthWithPassword(ctx context.Context, username, password string) (AuthResult, error)
}
