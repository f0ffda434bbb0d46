package skills

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func TestMusic_SearchAndPlayViaAPI(t *testing.T) {
	t.Parallel()

	var tokenCalls, playCalls atomic.Int32

	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.Form.Get("grant_type"); got != "refresh_token" {
			t.Errorf("grant_type: want refresh_token, got %q", got)
		}
		if user, pass, ok := r.BasicAuth(); !ok || user != "client-id" || pass != "client-secret" {
			t.Error("token request must carry basic auth credentials")
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-1",
			"expires_in":   3600,
		})
	}))
	defer tokenSrv.Close()

	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("authorization: got %q", got)
		}
		switch {
		case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/search"):
			if got := r.URL.Query().Get("q"); got != "take five" {
				t.Errorf("search query: got %q", got)
			}
			json.NewEncoder(w).Encode(map[string]any{
				"tracks": map[string]any{
					"items": []map[string]any{{
						"uri":     "spotify:track:123",
						"name":    "Take Five",
						"artists": []map[string]any{{"name": "Dave Brubeck"}},
					}},
				},
			})
		case r.Method == http.MethodPut && r.URL.Path == "/me/player/play":
			playCalls.Add(1)
			var body struct {
				URIs []string `json:"uris"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("decode play body: %v", err)
			}
			if len(body.URIs) != 1 || body.URIs[0] != "spotify:track:123" {
				t.Errorf("play uris: got %v", body.URIs)
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer apiSrv.Close()

	runner := newFakeRunner()
	m := NewMusic(runner,
		MusicCredentials{ClientID: "client-id", ClientSecret: "client-secret", RefreshToken: "refresh"},
		WithMusicBaseURLs(apiSrv.URL, tokenSrv.URL),
	)

	reply, err := m.Do(context.Background(), "search_and_play", "take five")
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	assertEqual(t, "reply", "Playing Take Five by Dave Brubeck on Spotify.", reply)

	// The cached token serves both API calls.
	if got := tokenCalls.Load(); got != 1 {
		t.Errorf("token refreshes: want 1, got %d", got)
	}
	if got := playCalls.Load(); got != 1 {
		t.Errorf("play calls: want 1, got %d", got)
	}
	if len(runner.commands()) != 0 {
		t.Error("API path must not fall back to media keys")
	}
}

func TestMusic_APIFailureFallsBack(t *testing.T) {
	t.Parallel()

	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer tokenSrv.Close()

	runner := newFakeRunner()
	m := NewMusic(runner,
		MusicCredentials{ClientID: "id", ClientSecret: "secret", RefreshToken: "refresh"},
		WithMusicBaseURLs("http://127.0.0.1:0", tokenSrv.URL),
	)

	reply, err := m.Do(context.Background(), "play", "")
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if !strings.Contains(reply, "keyboard controls") {
		t.Errorf("want media-key fallback, got %q", reply)
	}
	cmds := runner.commands()
	if len(cmds) != 1 || cmds[0] != "xdotool key XF86AudioPlay" {
		t.Errorf("unexpected commands: %v", cmds)
	}
}
