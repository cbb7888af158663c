package spotify

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var (
	// ErrRateLimited means the platform returned 429 and the call may be
	// retried later.
	ErrRateLimited = errors.New("spotify: rate limited")
	// ErrRejected covers every other non-success platform response.
	ErrRejected = errors.New("spotify: request rejected")
)

const (
	defaultAPIURL      = "https://api.spotify.com"
	defaultAccountsURL = "https://accounts.spotify.com"
)

// Client is a thin wrapper around the Spotify Web API. Base URLs are
// injectable so tests can point it at an httptest server.
type Client struct {
	clientID     string
	clientSecret string
	redirectURI  string
	apiURL       string
	accountsURL  string
	http         *http.Client
}

func NewClient(clientID, clientSecret, redirectURI string) *Client {
	return &Client{
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURI:  redirectURI,
		apiURL:       defaultAPIURL,
		accountsURL:  defaultAccountsURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// WithBaseURLs overrides the API and accounts endpoints. Test hook.
func (c *Client) WithBaseURLs(apiURL, accountsURL string) *Client {
	c.apiURL = apiURL
	c.accountsURL = accountsURL
	return c
}

// QueueTrack appends a track to the player queue of the account behind
// accessToken.
func (c *Client) QueueTrack(ctx context.Context, accessToken, deviceID, uri string) error {
	q := url.Values{}
	q.Set("uri", uri)
	if deviceID != "" {
		q.Set("device_id", deviceID)
	}
	return c.playerCall(ctx, http.MethodPost, "/v1/me/player/queue?"+q.Encode(), accessToken)
}

// Next skips to the next track on the device.
func (c *Client) Next(ctx context.Context, accessToken, deviceID string) error {
	return c.playerCall(ctx, http.MethodPost, "/v1/me/player/next"+deviceQuery(deviceID), accessToken)
}

func (c *Client) Play(ctx context.Context, accessToken, deviceID string) error {
	return c.playerCall(ctx, http.MethodPut, "/v1/me/player/play"+deviceQuery(deviceID), accessToken)
}

func (c *Client) Pause(ctx context.Context, accessToken, deviceID string) error {
	return c.playerCall(ctx, http.MethodPut, "/v1/me/player/pause"+deviceQuery(deviceID), accessToken)
}

func deviceQuery(deviceID string) string {
	if deviceID == "" {
		return ""
	}
	q := url.Values{}
	q.Set("device_id", deviceID)
	return "?" + q.Encode()
}

func (c *Client) playerCall(ctx context.Context, method, path, accessToken string) error {
	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return classifyStatus(resp.StatusCode)
}

func classifyStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return fmt.Errorf("%w: status %d", ErrRejected, code)
	}
}

// NowPlaying is the subset of the currently-playing response the server
// cares about.
type NowPlaying struct {
	URI        string
	Name       string
	Artist     string
	DurationMs int
	IsPlaying  bool
	ProgressMs int64
}

type currentlyPlayingResponse struct {
	IsPlaying  bool  `json:"is_playing"`
	ProgressMs int64 `json:"progress_ms"`
	Item       *struct {
		URI        string `json:"uri"`
		Name       string `json:"name"`
		DurationMs int    `json:"duration_ms"`
		Artists    []struct {
			Name string `json:"name"`
		} `json:"artists"`
	} `json:"item"`
}

// CurrentlyPlaying reports what the account is playing right now. Returns
// (nil, nil) when nothing is playing (platform answers 204).
func (c *Client) CurrentlyPlaying(ctx context.Context, accessToken string) (*NowPlaying, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"/v1/me/player/currently-playing", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if err := classifyStatus(resp.StatusCode); err != nil {
		return nil, err
	}

	var body currentlyPlayingResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	if body.Item == nil {
		return nil, nil
	}

	np := &NowPlaying{
		URI:        body.Item.URI,
		Name:       body.Item.Name,
		DurationMs: body.Item.DurationMs,
		IsPlaying:  body.IsPlaying,
		ProgressMs: body.ProgressMs,
	}
	if len(body.Item.Artists) > 0 {
		np.Artist = body.Item.Artists[0].Name
	}
	return np, nil
}

// TrackInfo describes one track looked up on the platform.
type TrackInfo struct {
	URI        string `json:"uri"`
	Name       string `json:"name"`
	Artist     string `json:"artist"`
	DurationMs int    `json:"durationMs"`
}

type trackResponse struct {
	URI        string `json:"uri"`
	Name       string `json:"name"`
	DurationMs int    `json:"duration_ms"`
	Artists    []struct {
		Name string `json:"name"`
	} `json:"artists"`
}

func (tr trackResponse) info() TrackInfo {
	t := TrackInfo{URI: tr.URI, Name: tr.Name, DurationMs: tr.DurationMs}
	if len(tr.Artists) > 0 {
		t.Artist = tr.Artists[0].Name
	}
	return t
}

// GetTrack looks up track metadata by platform track id.
func (c *Client) GetTrack(ctx context.Context, accessToken, trackID string) (TrackInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"/v1/tracks/"+url.PathEscape(trackID), nil)
	if err != nil {
		return TrackInfo{}, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return TrackInfo{}, err
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		return TrackInfo{}, err
	}

	var body trackResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return TrackInfo{}, err
	}
	return body.info(), nil
}

type searchResponse struct {
	Tracks struct {
		Items []trackResponse `json:"items"`
	} `json:"tracks"`
}

// SearchTracks runs a track search on the platform.
func (c *Client) SearchTracks(ctx context.Context, accessToken, query string, limit int) ([]TrackInfo, error) {
	if limit <= 0 || limit > 25 {
		limit = 5
	}

	q := url.Values{}
	q.Set("q", query)
	q.Set("type", "track")
	q.Set("limit", fmt.Sprint(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"/v1/search?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		return nil, err
	}

	var body searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}

	out := make([]TrackInfo, 0, len(body.Tracks.Items))
	for _, it := range body.Tracks.Items {
		out = append(out, it.info())
	}
	return out, nil
}

// TokenResponse is the accounts-service answer to a code exchange or refresh.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int    `json:"expires_in"`
}

// AuthorizeURL builds the user-facing OAuth consent URL.
func (c *Client) AuthorizeURL() string {
	scope := strings.Join([]string{
		"user-read-playback-state",
		"user-modify-playback-state",
		"user-read-currently-playing",
		"streaming",
		"user-read-email",
		"user-read-private",
	}, " ")

	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", c.clientID)
	q.Set("scope", scope)
	q.Set("redirect_uri", c.redirectURI)

	return c.accountsURL + "/authorize?" + q.Encode()
}

// ExchangeCode swaps an OAuth authorization code for tokens.
func (c *Client) ExchangeCode(ctx context.Context, code string) (TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", c.redirectURI)
	return c.tokenCall(ctx, form)
}

// Refresh trades a refresh token for a fresh access token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	return c.tokenCall(ctx, form)
}

func (c *Client) tokenCall(ctx context.Context, form url.Values) (TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.accountsURL+"/api/token", strings.NewReader(form.Encode()))
	if err != nil {
		return TokenResponse{}, err
	}
	basic := base64.StdEncoding.EncodeToString([]byte(c.clientID + ":" + c.clientSecret))
	req.Header.Set("Authorization", "Basic "+basic)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return TokenResponse{}, err
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		return TokenResponse{}, err
	}

	var body TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return TokenResponse{}, err
	}
	return body, nil
}
