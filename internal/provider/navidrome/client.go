// Package navidrome adapts a Subsonic-API client into a ports.Provider, the
// way chartzngrafs-navitone-cli/pkg/navidrome's Client builds authenticated
// Subsonic requests (md5(password+salt) token auth, getRandomSongs,
// search3, stream) against a self-hosted Navidrome server.
package navidrome

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const apiVersion = "1.16.1"
const clientName = "gotune-core"

// client is the low-level Subsonic HTTP client, grounded on the teacher
// pack's navidrome.Client.
type client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
}

func newClient(serverURL, username, password string) *client {
	return &client{
		baseURL:    strings.TrimSuffix(serverURL, "/"),
		username:   username,
		password:   password,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *client) authParams() url.Values {
	salt := fmt.Sprintf("%d", time.Now().UnixNano())
	hash := md5.Sum([]byte(c.password + salt))
	params := url.Values{}
	params.Add("u", c.username)
	params.Add("t", fmt.Sprintf("%x", hash))
	params.Add("s", salt)
	params.Add("c", clientName)
	params.Add("v", apiVersion)
	params.Add("f", "json")
	return params
}

func (c *client) get(ctx context.Context, endpoint string, params url.Values) (*http.Response, error) {
	full := c.authParams()
	for k, vs := range params {
		for _, v := range vs {
			full.Add(k, v)
		}
	}
	reqURL := fmt.Sprintf("%s/rest/%s?%s", c.baseURL, endpoint, full.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

func (c *client) ping(ctx context.Context) error {
	resp, err := c.get(ctx, "ping", url.Values{})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	var out subsonicEnvelope[struct{}]
	if err := decodeEnvelope(resp.Body, &out); err != nil {
		return err
	}
	return out.err()
}

func (c *client) search3(ctx context.Context, query string, count, offset int) (searchResult3, error) {
	params := url.Values{"query": {query}}
	if count > 0 {
		params.Add("songCount", fmt.Sprintf("%d", count))
		params.Add("albumCount", fmt.Sprintf("%d", count))
		params.Add("artistCount", fmt.Sprintf("%d", count))
	}
	if offset > 0 {
		params.Add("songOffset", fmt.Sprintf("%d", offset))
	}
	resp, err := c.get(ctx, "search3", params)
	if err != nil {
		return searchResult3{}, err
	}
	defer resp.Body.Close()
	var out subsonicEnvelope[struct {
		SearchResult3 searchResult3 `json:"searchResult3"`
	}]
	if err := decodeEnvelope(resp.Body, &out); err != nil {
		return searchResult3{}, err
	}
	if err := out.err(); err != nil {
		return searchResult3{}, err
	}
	return out.Payload.SearchResult3, nil
}

func (c *client) getSong(ctx context.Context, id string) (song, error) {
	resp, err := c.get(ctx, "getSong", url.Values{"id": {id}})
	if err != nil {
		return song{}, err
	}
	defer resp.Body.Close()
	var out subsonicEnvelope[struct {
		Song song `json:"song"`
	}]
	if err := decodeEnvelope(resp.Body, &out); err != nil {
		return song{}, err
	}
	if err := out.err(); err != nil {
		return song{}, err
	}
	return out.Payload.Song, nil
}

// streamURL builds the authenticated streaming URL for a song id, mirroring
// the teacher's Client.GetStreamURL.
func (c *client) streamURL(songID string) string {
	params := c.authParams()
	params.Add("id", songID)
	return fmt.Sprintf("%s/rest/stream?%s", c.baseURL, params.Encode())
}

func (c *client) scrobble(ctx context.Context, songID string, submission bool) error {
	params := url.Values{"id": {songID}}
	if submission {
		params.Add("submission", "true")
	}
	resp, err := c.get(ctx, "scrobble", params)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	var out subsonicEnvelope[struct{}]
	if err := decodeEnvelope(resp.Body, &out); err != nil {
		return err
	}
	return out.err()
}

// subsonicError mirrors the teacher's SubsonicError.
type subsonicError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// subsonicEnvelope is the generic "subsonic-response" wrapper every
// endpoint returns, parameterized over the endpoint-specific payload.
type subsonicEnvelope[T any] struct {
	Payload T
	status  string
	srvErr  *subsonicError
}

func (e *subsonicEnvelope[T]) UnmarshalJSON(data []byte) error {
	var raw struct {
		Response struct {
			Status string         `json:"status"`
			Error  *subsonicError `json:"error,omitempty"`
		} `json:"subsonic-response"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var payload struct {
		Response T `json:"subsonic-response"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}
	e.Payload = payload.Response
	e.status = raw.Response.Status
	e.srvErr = raw.Response.Error
	return nil
}

func (e *subsonicEnvelope[T]) err() error {
	if e.status == "ok" {
		return nil
	}
	if e.srvErr != nil {
		return fmt.Errorf("subsonic error %d: %s", e.srvErr.Code, e.srvErr.Message)
	}
	return fmt.Errorf("subsonic request failed with status %q", e.status)
}

func decodeEnvelope(r io.Reader, out interface{ UnmarshalJSON([]byte) error }) error {
	body, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := out.UnmarshalJSON(body); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// song is the Subsonic track shape, trimmed to the fields this provider
// maps onto domain.Track.
type song struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Album    string `json:"album"`
	Artist   string `json:"artist"`
	Duration int    `json:"duration"`
	CoverArt string `json:"coverArt"`
	Suffix   string `json:"suffix"`
	BitRate  int    `json:"bitRate"`
}

type album struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Artist   string `json:"artist"`
	CoverArt string `json:"coverArt"`
}

type artist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type searchResult3 struct {
	Song   []song   `json:"song"`
	Album  []album  `json:"album"`
	Artist []artist `json:"artist"`
}
