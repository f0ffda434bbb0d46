package skills

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	spotifyAPIBase   = "https://api.spotify.com/v1"
	spotifyTokenURL  = "https://accounts.spotify.com/api/token"
	spotifyHTTPLimit = 10 * time.Second
)

// MusicCredentials holds the Spotify Web API credentials. The zero value
// disables the API path entirely; playback then falls back to media keys.
type MusicCredentials struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
}

func (c MusicCredentials) configured() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.RefreshToken != ""
}

// MusicOption is a functional option for configuring [Music].
type MusicOption func(*Music)

// WithMusicHTTPClient overrides the HTTP client used for API calls.
func WithMusicHTTPClient(client *http.Client) MusicOption {
	return func(m *Music) {
		m.client = client
	}
}

// WithMusicBaseURLs overrides the API and token endpoints. Used in tests.
func WithMusicBaseURLs(apiBase, tokenURL string) MusicOption {
	return func(m *Music) {
		m.apiBase = apiBase
		m.tokenURL = tokenURL
	}
}

// Music controls playback through the Spotify Web API, with synthesized
// media keys as the fallback when no credentials are configured or the API
// call fails.
type Music struct {
	runner   Runner
	creds    MusicCredentials
	client   *http.Client
	apiBase  string
	tokenURL string
	log      *slog.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewMusic builds the music skill.
func NewMusic(runner Runner, creds MusicCredentials, opts ...MusicOption) *Music {
	m := &Music{
		runner:   runner,
		creds:    creds,
		client:   &http.Client{Timeout: spotifyHTTPLimit},
		apiBase:  spotifyAPIBase,
		tokenURL: spotifyTokenURL,
		log:      slog.Default().With("component", "skills.music"),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Do performs one playback action and returns the sentence to speak.
func (m *Music) Do(ctx context.Context, action, query string) (string, error) {
	if !m.creds.configured() {
		return m.fallback(ctx, action, query), nil
	}

	reply, err := m.viaAPI(ctx, action, query)
	if err != nil {
		m.log.Warn("spotify api call failed, falling back to media keys", "action", action, "err", err)
		return m.fallback(ctx, action, query), nil
	}
	return reply, nil
}

func (m *Music) viaAPI(ctx context.Context, action, query string) (string, error) {
	switch action {
	case "play":
		if err := m.call(ctx, http.MethodPut, "/me/player/play", nil); err != nil {
			return "", err
		}
		return "Resuming playback.", nil
	case "pause":
		if err := m.call(ctx, http.MethodPut, "/me/player/pause", nil); err != nil {
			return "", err
		}
		return "Pausing the music.", nil
	case "next":
		if err := m.call(ctx, http.MethodPost, "/me/player/next", nil); err != nil {
			return "", err
		}
		return "Skipping to the next track.", nil
	case "previous":
		if err := m.call(ctx, http.MethodPost, "/me/player/previous", nil); err != nil {
			return "", err
		}
		return "Going back to the previous track.", nil
	case "search_and_play":
		return m.searchAndPlay(ctx, query)
	}
	return "", fmt.Errorf("skills: unknown music action %q", action)
}

// searchAndPlay finds the best track match and starts it.
func (m *Music) searchAndPlay(ctx context.Context, query string) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", fmt.Errorf("skills: empty search query")
	}

	path := "/search?type=track&limit=1&q=" + url.QueryEscape(query)
	var result struct {
		Tracks struct {
			Items []struct {
				URI     string `json:"uri"`
				Name    string `json:"name"`
				Artists []struct {
					Name string `json:"name"`
				} `json:"artists"`
			} `json:"items"`
		} `json:"tracks"`
	}
	if err := m.callJSON(ctx, http.MethodGet, path, nil, &result); err != nil {
		return "", err
	}
	if len(result.Tracks.Items) == 0 {
		return fmt.Sprintf("I couldn't find anything on Spotify for '%s'.", query), nil
	}

	track := result.Tracks.Items[0]
	body := map[string]any{"uris": []string{track.URI}}
	if err := m.call(ctx, http.MethodPut, "/me/player/play", body); err != nil {
		return "", err
	}

	if len(track.Artists) > 0 {
		return fmt.Sprintf("Playing %s by %s on Spotify.", track.Name, track.Artists[0].Name), nil
	}
	return fmt.Sprintf("Playing %s on Spotify.", track.Name), nil
}

// call performs an authenticated API request, discarding the response body.
func (m *Music) call(ctx context.Context, method, path string, body any) error {
	return m.callJSON(ctx, method, path, body, nil)
}

// callJSON performs an authenticated API request and decodes the response
// into out when non-nil.
func (m *Music) callJSON(ctx context.Context, method, path string, body, out any) error {
	token, err := m.token(ctx)
	if err != nil {
		return err
	}

	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = strings.NewReader(string(raw))
	}

	req, err := http.NewRequestWithContext(ctx, method, m.apiBase+path, payload)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("skills: spotify %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// token returns a valid access token, refreshing it when expired. Spotify
// refresh tokens are long-lived; access tokens last an hour.
func (m *Music) token(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.accessToken != "" && time.Now().Before(m.tokenExpiry) {
		return m.accessToken, nil
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {m.creds.RefreshToken},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	basic := base64.StdEncoding.EncodeToString([]byte(m.creds.ClientID + ":" + m.creds.ClientSecret))
	req.Header.Set("Authorization", "Basic "+basic)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("skills: spotify token refresh: status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var decoded struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", err
	}
	if decoded.AccessToken == "" {
		return "", fmt.Errorf("skills: spotify token refresh returned no token")
	}

	m.accessToken = decoded.AccessToken
	// Refresh a minute early so in-flight calls never race expiry.
	m.tokenExpiry = time.Now().Add(time.Duration(decoded.ExpiresIn)*time.Second - time.Minute)
	return m.accessToken, nil
}

// fallback drives the player with synthesized media keys.
func (m *Music) fallback(ctx context.Context, action, query string) string {
	key := map[string]string{
		"play":     "XF86AudioPlay",
		"pause":    "XF86AudioPlay",
		"next":     "XF86AudioNext",
		"previous": "XF86AudioPrev",
	}[action]

	if key == "" {
		if action == "search_and_play" && query != "" {
			return fmt.Sprintf("I can only use basic controls without the Spotify API. I can't search for '%s'.", query)
		}
		return "Sorry, I can't perform that music command using basic controls."
	}

	if _, err := m.runner.Run(ctx, "xdotool", "key", key); err != nil {
		m.log.Warn("media key failed", "key", key, "err", err)
		return "Sorry, I couldn't reach the music player."
	}

	switch action {
	case "next":
		return "Using keyboard controls: skipping to the next track."
	case "previous":
		return "Using keyboard controls: going back to the previous track."
	}
	return "Using keyboard controls: toggling playback."
}
