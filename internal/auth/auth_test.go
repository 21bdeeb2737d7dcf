package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

func newCache(t *testing.T) *TokenCache {
	t.Helper()
	return NewTokenCache(filepath.Join(t.TempDir(), "cache", "tokens.json"))
}

func bearer(access string, ttl time.Duration) *oauth2.Token {
	return &oauth2.Token{AccessToken: access, TokenType: "Bearer", Expiry: time.Now().Add(ttl)}
}

func TestTokenCacheKeysByClient(t *testing.T) {
	cache := newCache(t)
	if err := cache.Save("app-a", bearer("token-a", time.Hour)); err != nil {
		t.Fatalf("Save(app-a) error = %v", err)
	}
	if err := cache.Save("app-b", bearer("token-b", time.Hour)); err != nil {
		t.Fatalf("Save(app-b) error = %v", err)
	}

	tests := []struct {
		client string
		want   string
	}{
		{"app-a", "token-a"},
		{"app-b", "token-b"},
		{"app-c", ""},
	}
	for _, tt := range tests {
		t.Run(tt.client, func(t *testing.T) {
			got, err := cache.Load(tt.client)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if tt.want == "" {
				if got != nil {
					t.Errorf("Load() = %+v, want nil", got)
				}
				return
			}
			if got == nil || got.AccessToken != tt.want || got.TokenType != "Bearer" {
				t.Errorf("Load() = %+v, want access token %q", got, tt.want)
			}
		})
	}
}

func TestTokenCacheMissingFile(t *testing.T) {
	cache := newCache(t)
	got, err := cache.Load("app")
	if err != nil || got != nil {
		t.Errorf("Load() = %v, %v, want nil, nil", got, err)
	}
	if err := cache.Forget("app"); err != nil {
		t.Errorf("Forget() error = %v", err)
	}
}

func TestTokenCacheRejectsBadInput(t *testing.T) {
	cache := newCache(t)
	if err := cache.Save("app", nil); err == nil {
		t.Error("Save(nil token) succeeded")
	}
	if err := cache.Save("", bearer("x", time.Hour)); err == nil {
		t.Error("Save(empty client) succeeded")
	}
}

func TestTokenCachePrunesExpiredEntries(t *testing.T) {
	cache := newCache(t)
	if err := cache.Save("old", bearer("stale", -time.Hour)); err != nil {
		t.Fatalf("Save(old) error = %v", err)
	}
	if err := cache.Save("new", bearer("fresh", time.Hour)); err != nil {
		t.Fatalf("Save(new) error = %v", err)
	}
	if got, _ := cache.Load("old"); got != nil {
		t.Errorf("expired entry survived: %+v", got)
	}
}

func TestTokenCacheForget(t *testing.T) {
	cache := newCache(t)
	_ = cache.Save("a", bearer("ta", time.Hour))
	_ = cache.Save("b", bearer("tb", time.Hour))

	if err := cache.Forget("a"); err != nil {
		t.Fatalf("Forget(a) error = %v", err)
	}
	if got, _ := cache.Load("a"); got != nil {
		t.Errorf("Load(a) after Forget = %+v", got)
	}
	if got, _ := cache.Load("b"); got == nil {
		t.Error("Forget(a) also dropped b")
	}

	if err := cache.Forget("b"); err != nil {
		t.Fatalf("Forget(b) error = %v", err)
	}
	if _, err := os.Stat(cache.Path()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("cache file still present after last entry forgotten: %v", err)
	}
}

func TestTokenCacheReplacesCorruptFile(t *testing.T) {
	cache := newCache(t)
	if err := os.MkdirAll(filepath.Dir(cache.Path()), 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(cache.Path(), []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := cache.Load("app"); err == nil {
		t.Error("Load() of corrupt file succeeded")
	}
	if err := cache.Save("app", bearer("t", time.Hour)); err != nil {
		t.Fatalf("Save() over corrupt file error = %v", err)
	}
	if got, err := cache.Load("app"); err != nil || got == nil {
		t.Errorf("Load() = %v, %v after rewrite", got, err)
	}
}

func TestTokenCacheFileIsPrivate(t *testing.T) {
	cache := newCache(t)
	if err := cache.Save("app", bearer("secret", time.Hour)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	info, err := os.Stat(cache.Path())
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if mode := info.Mode().Perm(); mode&0o077 != 0 {
		t.Errorf("permissions = %o, want no group or other access", mode)
	}
}

func TestNewMissingCredentials(t *testing.T) {
	tests := []struct {
		name  string
		creds Credentials
	}{
		{"both missing", Credentials{}},
		{"id missing", Credentials{ClientSecret: "secret"}},
		{"secret missing", Credentials{ClientID: "id"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.creds, nil); !errors.Is(err, ErrMissingCredentials) {
				t.Errorf("New() error = %v, want ErrMissingCredentials", err)
			}
		})
	}
}

func newTokenServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm() error = %v", err)
		}
		if got := r.Form.Get("grant_type"); got != "client_credentials" {
			t.Errorf("grant_type = %q, want client_credentials", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"issued-token","token_type":"Bearer","expires_in":3600}`))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestToken(t *testing.T) {
	tests := []struct {
		name      string
		seed      map[string]*oauth2.Token
		want      string
		wantCalls int32
	}{
		{
			name:      "no cached token",
			want:      "issued-token",
			wantCalls: 1,
		},
		{
			name:      "valid cached token",
			seed:      map[string]*oauth2.Token{"id": bearer("cached-token", time.Hour)},
			want:      "cached-token",
			wantCalls: 0,
		},
		{
			name:      "expired cached token",
			seed:      map[string]*oauth2.Token{"id": bearer("stale-token", -time.Hour)},
			want:      "issued-token",
			wantCalls: 1,
		},
		{
			name:      "token cached for another client",
			seed:      map[string]*oauth2.Token{"other": bearer("foreign-token", time.Hour)},
			want:      "issued-token",
			wantCalls: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := newTokenServer(t, &calls)
			cache := newCache(t)
			for id, tok := range tt.seed {
				if err := cache.Save(id, tok); err != nil {
					t.Fatalf("seeding cache: %v", err)
				}
			}

			a, err := New(Credentials{ClientID: "id", ClientSecret: "secret", TokenURL: server.URL}, cache)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			token, err := a.Token(context.Background())
			if err != nil {
				t.Fatalf("Token() error = %v", err)
			}
			if token.AccessToken != tt.want {
				t.Errorf("AccessToken = %q, want %q", token.AccessToken, tt.want)
			}
			if calls.Load() != tt.wantCalls {
				t.Errorf("token endpoint calls = %d, want %d", calls.Load(), tt.wantCalls)
			}

			cached, err := cache.Load("id")
			if err != nil || cached == nil || cached.AccessToken != tt.want {
				t.Errorf("cache.Load(id) = %+v, %v, want %q", cached, err, tt.want)
			}
		})
	}
}

func TestForget(t *testing.T) {
	a, err := New(Credentials{ClientID: "id", ClientSecret: "secret"}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := a.Forget(); err != nil {
		t.Errorf("Forget() without cache error = %v", err)
	}

	cache := newCache(t)
	_ = cache.Save("id", bearer("t", time.Hour))
	a, _ = New(Credentials{ClientID: "id", ClientSecret: "secret"}, cache)
	if err := a.Forget(); err != nil {
		t.Fatalf("Forget() error = %v", err)
	}
	if got, _ := cache.Load("id"); got != nil {
		t.Errorf("token still cached after Forget: %+v", got)
	}
}
