// Package bilibili adapts Bilibili's public video/audio API into a
// ports.Provider, grounded on original_source's
// crates/plugins/src/internal/bilibili/{audio,types,convert}.rs. The WBI
// signing scheme that crate layers over every request is a Bilibili-specific
// anti-scraping quirk, not part of this spec's contract, so this client
// calls the same unauthenticated public endpoints without it (see
// DESIGN.md's bilibili entry for the tradeoff).
package bilibili

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	apiBase   = "https://api.bilibili.com"
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"
)

// client is the low-level Bilibili HTTP client.
type client struct {
	httpClient *http.Client
	base       string
}

func newClient() *client {
	return &client{httpClient: &http.Client{Timeout: 15 * time.Second}, base: apiBase}
}

// newClientWithBase builds a client against an arbitrary base URL, used by
// tests to point at an httptest fixture instead of the real Bilibili API.
func newClientWithBase(base string) *client {
	return &client{httpClient: &http.Client{Timeout: 15 * time.Second}, base: base}
}

// envelope mirrors Bilibili's {"code":0,"message":"...","data":{...}} shape.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	reqURL := fmt.Sprintf("%s%s?%s", c.base, path, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Referer", "https://www.bilibili.com")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("parse envelope: %w", err)
	}
	if env.Code != 0 {
		return fmt.Errorf("bilibili api error %d: %s", env.Code, env.Message)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

// searchVideo mirrors BilibiliSearchVideo.
type searchVideo struct {
	BVID     string `json:"bvid"`
	Title    string `json:"title"`
	Author   string `json:"author"`
	Pic      string `json:"pic"`
	Duration string `json:"duration"` // "mm:ss"
}

type searchResponse struct {
	Result []searchVideo `json:"result"`
}

func (c *client) search(ctx context.Context, keyword string, page int) ([]searchVideo, error) {
	params := url.Values{
		"search_type": {"video"},
		"keyword":     {keyword},
	}
	if page > 0 {
		params.Set("page", strconv.Itoa(page))
	}
	var out searchResponse
	if err := c.get(ctx, "/x/web-interface/search/type", params, &out); err != nil {
		return nil, err
	}
	return out.Result, nil
}

// videoDetails mirrors BilibiliVideoDetails, trimmed to what this provider maps.
type videoDetails struct {
	BVID  string `json:"bvid"`
	CID   int64  `json:"cid"`
	Title string `json:"title"`
	Pic   string `json:"pic"`
	Owner struct {
		Name string `json:"name"`
	} `json:"owner"`
	Duration int64 `json:"duration"` // seconds
}

func (c *client) view(ctx context.Context, bvid string) (videoDetails, error) {
	var out videoDetails
	err := c.get(ctx, "/x/web-interface/view", url.Values{"bvid": {bvid}}, &out)
	return out, err
}

// durl is one progressive-MP4 candidate from the playurl response.
type durl struct {
	URL    string `json:"url"`
	Size   int64  `json:"size"`
	Length int64  `json:"length"`
}

type playURLResponse struct {
	Durl []durl `json:"durl"`
}

// playURL requests a progressive (durl) stream for bvid/cid, fixed to MP4
// (fnval=1) and 1080p (qn=80), matching the original crate's "progressive
// only, no DASH fallback" policy.
func (c *client) playURL(ctx context.Context, bvid string, cid int64) (string, error) {
	params := url.Values{
		"bvid":         {bvid},
		"cid":          {strconv.FormatInt(cid, 10)},
		"fnval":        {"1"},
		"fnver":        {"0"},
		"fourk":        {"0"},
		"platform":     {"html5"},
		"high_quality": {"1"},
		"qn":           {"80"},
	}
	var out playURLResponse
	if err := c.get(ctx, "/x/player/playurl", params, &out); err != nil {
		return "", err
	}
	if len(out.Durl) == 0 {
		return "", fmt.Errorf("no available audio stream")
	}
	best := out.Durl[0]
	for _, d := range out.Durl[1:] {
		if max64(d.Size, d.Length) > max64(best.Size, best.Length) {
			best = d
		}
	}
	return best.URL, nil
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
