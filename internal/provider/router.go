// Package provider implements the Provider Plugin Interface (C6), the
// Provider Router (C7), and the Plugin Lifecycle & Registry (C8).
package provider

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tejashwikalptaru/gotune-core/internal/domain"
	"github.com/tejashwikalptaru/gotune-core/internal/ports"
)

// callTimeout is the hard per-call timeout every provider invocation is
// bound to (spec.md §5, §7).
const callTimeout = 5 * time.Second

// Selection picks which providers a Router call fans out to.
type Selection struct {
	Mode SelectionMode
	Key  string   // used by SelectionSingle
	Keys []string // used by SelectionMany
}

type SelectionMode int

const (
	SelectionSingle SelectionMode = iota
	SelectionAll
	SelectionMany
)

// Single builds a Selection targeting exactly one provider.
func Single(key string) Selection { return Selection{Mode: SelectionSingle, Key: key} }

// All builds a Selection targeting every registered provider.
func All() Selection { return Selection{Mode: SelectionAll} }

// Many builds a Selection targeting the named providers.
func Many(keys ...string) Selection { return Selection{Mode: SelectionMany, Keys: keys} }

// Toucher records that a provider call succeeded, used to stamp
// last_used on the plugin's persisted row. *Registry satisfies this.
type Toucher interface {
	Touch(id string, now time.Time) error
}

// Router is the Provider Router (C7): it fans out search and stream-URL
// requests across one or more providers, honoring a 5-second per-call
// timeout, a single delegation hop, and partial-failure tolerance in
// aggregate modes.
type Router struct {
	logger    *slog.Logger
	providers map[string]ports.Provider
	toucher   Toucher
}

// NewRouter builds an empty Router; register providers with Register.
func NewRouter(logger *slog.Logger) *Router {
	return &Router{logger: logger, providers: make(map[string]ports.Provider)}
}

// SetToucher wires the registry that receives last_used stamps on every
// successful provider call. Optional: a nil toucher (the default) simply
// skips the stamp.
func (r *Router) SetToucher(t Toucher) { r.toucher = t }

func (r *Router) touch(id string) {
	if r.toucher == nil {
		return
	}
	if err := r.toucher.Touch(id, time.Now()); err != nil {
		r.logger.Warn("failed to stamp provider last_used", slog.String("provider", id), slog.Any("error", err))
	}
}

// Register adds a provider to the router under its name, the provider key
// that tracks carry in ProviderExtension and that Single/Many selections
// and delegation targets name.
func (r *Router) Register(p ports.Provider) {
	r.providers[p.Name()] = p
}

func (r *Router) candidates(sel Selection, capability ports.Capability) []ports.Provider {
	var out []ports.Provider
	switch sel.Mode {
	case SelectionSingle:
		if p, ok := r.providers[sel.Key]; ok && hasCapability(p, capability) {
			out = append(out, p)
		}
	case SelectionMany:
		for _, k := range sel.Keys {
			if p, ok := r.providers[k]; ok && hasCapability(p, capability) {
				out = append(out, p)
			}
		}
	case SelectionAll:
		for _, p := range r.providers {
			if hasCapability(p, capability) {
				out = append(out, p)
			}
		}
	}
	return out
}

func hasCapability(p ports.Provider, capability ports.Capability) bool {
	for _, c := range p.Capabilities() {
		if c == capability {
			return true
		}
	}
	return false
}

// Search dispatches query per sel. SelectionSingle honors one delegation
// hop (§4.7, §9): if the provider returns a DelegationError, the router
// retries once against the named provider, provided it exists and
// declares CapSearch. SelectionAll/Many fan out concurrently with an
// errgroup, each call independently timed out; failed or timed-out
// providers are dropped silently and their slices are simply absent from
// the merged result.
func (r *Router) Search(ctx context.Context, sel Selection, query ports.SearchQuery) (ports.SearchResult, error) {
	if sel.Mode == SelectionSingle {
		return r.searchSingle(ctx, sel.Key, query, true)
	}

	candidates := r.candidates(sel, ports.CapSearch)
	results := make([]ports.SearchResult, len(candidates))
	ok := make([]bool, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range candidates {
		i, p := i, p
		g.Go(func() error {
			res, err := r.callSearch(gctx, p, query)
			if err != nil {
				r.logger.Warn("provider search failed, dropping from aggregate",
					slog.String("provider", p.ID()), slog.Any("error", err))
				return nil
			}
			results[i] = res
			ok[i] = true
			return nil
		})
	}
	// errgroup.Go never returns an error from these goroutines (failures
	// are logged and dropped), so Wait cannot fail here.
	_ = g.Wait()

	merged := ports.SearchResult{ProviderContext: make(map[string]string)}
	for i, p := range candidates {
		if !ok[i] {
			continue
		}
		mergeSearchResult(&merged, results[i], p.Name())
	}
	return merged, nil
}

func (r *Router) searchSingle(ctx context.Context, key string, query ports.SearchQuery, allowDelegate bool) (ports.SearchResult, error) {
	p, found := r.providers[key]
	if !found || !hasCapability(p, ports.CapSearch) {
		return ports.SearchResult{}, domain.ErrNotSupported
	}
	res, err := r.callSearch(ctx, p, query)
	if err == nil {
		return res, nil
	}

	var delegate *domain.DelegationError
	if allowDelegate && asDelegationError(err, &delegate) {
		target, ok := r.providers[delegate.Target]
		if !ok || !hasCapability(target, ports.CapSearch) {
			return ports.SearchResult{}, delegationUnavailableErr(delegate.Target)
		}
		res, derr := r.searchSingle(ctx, delegate.Target, query, false)
		if derr != nil {
			// §8 scenario 5: a delegated provider that errors surfaces the
			// same "delegated provider unavailable" error as one that is
			// missing or lacks the capability.
			return ports.SearchResult{}, delegationUnavailableErr(delegate.Target)
		}
		return res, nil
	}
	return ports.SearchResult{}, err
}

// delegationUnavailableErr normalizes every way a delegation hop can fail —
// target missing, target lacks the capability, or the target's own call
// erroring — into spec.md §8 scenario 5's single "delegated provider
// unavailable" error.
func delegationUnavailableErr(target string) error {
	return fmt.Errorf("delegated provider %q unavailable: %w", target, domain.ErrNoProviderAvailable)
}

func (r *Router) callSearch(ctx context.Context, p ports.Provider, query ports.SearchQuery) (ports.SearchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	res, err := p.Search(ctx, query)
	if err != nil {
		return ports.SearchResult{}, domain.NewProviderError(p.ID(), "search", err.Error(), err)
	}
	r.touch(p.ID())
	for i := range res.Tracks {
		if res.Tracks[i].ProviderExtension == "" {
			res.Tracks[i].ProviderExtension = p.Name()
		}
	}
	return res, nil
}

// mergeSearchResult concatenates per-type slices, prefixes src's
// ProviderContext keys with the provider key, and takes the first
// non-default PageInfo per merge. Tracks missing a provider key were
// already stamped by callSearch.
func mergeSearchResult(dst *ports.SearchResult, src ports.SearchResult, providerKey string) {
	dst.Tracks = append(dst.Tracks, src.Tracks...)
	dst.Albums = append(dst.Albums, src.Albums...)
	dst.Artists = append(dst.Artists, src.Artists...)
	dst.Playlists = append(dst.Playlists, src.Playlists...)
	dst.Suggestions = append(dst.Suggestions, src.Suggestions...)
	if dst.Page == (ports.PageInfo{}) && src.Page != (ports.PageInfo{}) {
		dst.Page = src.Page
	}
	for k, v := range src.ProviderContext {
		dst.ProviderContext[providerKey+":"+k] = v
	}
}

// ResolveStreamURL implements the orchestrator's StreamResolver: it routes
// through StreamURL using SelectionSingle targeting the track's own
// provider, falling back to every capable provider on failure, the track's
// own provider included (§4.7's "Stream URL" policy for All/Many mode,
// entered here with the track's provider preferred first).
func (r *Router) ResolveStreamURL(ctx context.Context, track domain.Track) (string, error) {
	src, err := r.StreamURL(ctx, Single(track.ProviderExtension), track.ID, ports.StreamRequest{})
	if err == nil {
		return src.URL, nil
	}
	fallback, ferr := r.StreamURL(ctx, All(), track.ID, ports.StreamRequest{})
	if ferr != nil {
		return "", ferr
	}
	return fallback.URL, nil
}

// StreamURL resolves a playable StreamSource for trackID. SelectionSingle
// honors one delegation hop. SelectionAll/Many try every capable provider
// in turn (All: map iteration order; Many: the order of sel.Keys; the
// caller's track-provider-first
// preference is applied by ResolveStreamURL's two-step call), returning
// the first success; if none succeeds, ErrNoProviderAvailable.
func (r *Router) StreamURL(ctx context.Context, sel Selection, trackID string, req ports.StreamRequest) (ports.StreamSource, error) {
	if sel.Mode == SelectionSingle {
		return r.streamURLSingle(ctx, sel.Key, trackID, req, true)
	}

	var lastErr error
	for _, p := range r.candidates(sel, ports.CapStreaming) {
		src, err := r.callStreamURL(ctx, p, trackID, req)
		if err == nil {
			return src, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = domain.ErrNoProviderAvailable
	}
	return ports.StreamSource{}, fmt.Errorf("%w: %v", domain.ErrNoProviderAvailable, lastErr)
}

func (r *Router) streamURLSingle(ctx context.Context, key, trackID string, req ports.StreamRequest, allowDelegate bool) (ports.StreamSource, error) {
	p, found := r.providers[key]
	if !found || !hasCapability(p, ports.CapStreaming) {
		return ports.StreamSource{}, domain.ErrNotSupported
	}
	src, err := r.callStreamURL(ctx, p, trackID, req)
	if err == nil {
		return src, nil
	}

	var delegate *domain.DelegationError
	if allowDelegate && asDelegationError(err, &delegate) {
		target, ok := r.providers[delegate.Target]
		if !ok || !hasCapability(target, ports.CapStreaming) {
			return ports.StreamSource{}, delegationUnavailableErr(delegate.Target)
		}
		src, derr := r.streamURLSingle(ctx, delegate.Target, trackID, req, false)
		if derr != nil {
			return ports.StreamSource{}, delegationUnavailableErr(delegate.Target)
		}
		return src, nil
	}
	return ports.StreamSource{}, err
}

func (r *Router) callStreamURL(ctx context.Context, p ports.Provider, trackID string, req ports.StreamRequest) (ports.StreamSource, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	src, err := p.GetMediaStream(ctx, trackID, req)
	if err != nil {
		return ports.StreamSource{}, domain.NewProviderError(p.ID(), "get_media_stream", err.Error(), err)
	}
	r.touch(p.ID())
	return src, nil
}

// asDelegationError unwraps err looking for a *domain.DelegationError,
// handling the ProviderError wrapping callSearch/callStreamURL apply.
func asDelegationError(err error, target **domain.DelegationError) bool {
	for err != nil {
		if de, ok := err.(*domain.DelegationError); ok {
			*target = de
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}
