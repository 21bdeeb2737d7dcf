package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/justestif/go-dual-gravity/internal/logging"
)

// ErrMissingCredentials is returned when the client id or secret is empty.
var ErrMissingCredentials = errors.New("missing spotify client id or secret")

// Credentials identify the application to the Spotify accounts service.
type Credentials struct {
	ClientID     string
	ClientSecret string
	// TokenURL overrides the accounts endpoint. Empty uses Spotify's.
	TokenURL string
}

// Authenticator issues app-level access tokens using the client-credentials
// grant. The engine only reads public catalog data, so no user consent is needed.
type Authenticator struct {
	config *clientcredentials.Config
	cache  *TokenCache
}

// New creates an Authenticator. cache may be nil to disable on-disk caching.
func New(creds Credentials, cache *TokenCache) (*Authenticator, error) {
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return nil, ErrMissingCredentials
	}

	tokenURL := creds.TokenURL
	if tokenURL == "" {
		tokenURL = spotifyauth.TokenURL
	}

	return &Authenticator{
		config: &clientcredentials.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			TokenURL:     tokenURL,
		},
		cache: cache,
	}, nil
}

// TokenSource returns a token source that starts from the cached token when it
// is still valid and persists every newly issued token.
func (a *Authenticator) TokenSource(ctx context.Context) oauth2.TokenSource {
	var initial *oauth2.Token
	if a.cache != nil {
		token, err := a.cache.Load(a.config.ClientID)
		if err != nil {
			logging.Warn().Err(err).Str("path", a.cache.Path()).Msg("auth: ignoring unreadable token cache")
		} else if token.Valid() {
			initial = token
		}
	}

	src := &cachingSource{
		base:     a.config.TokenSource(ctx),
		cache:    a.cache,
		clientID: a.config.ClientID,
	}
	return oauth2.ReuseTokenSource(initial, src)
}

// Client returns an HTTP client that authenticates every request.
func (a *Authenticator) Client(ctx context.Context) *http.Client {
	return oauth2.NewClient(ctx, a.TokenSource(ctx))
}

// Token fetches a token eagerly, which verifies the credentials at startup.
func (a *Authenticator) Token(ctx context.Context) (*oauth2.Token, error) {
	token, err := a.TokenSource(ctx).Token()
	if err != nil {
		return nil, fmt.Errorf("requesting client-credentials token: %w", err)
	}
	return token, nil
}

// Forget drops this client's cached token so the next process start fetches
// a fresh one.
func (a *Authenticator) Forget() error {
	if a.cache == nil {
		return nil
	}
	return a.cache.Forget(a.config.ClientID)
}

// cachingSource saves every token it obtains from base.
type cachingSource struct {
	mu       sync.Mutex
	base     oauth2.TokenSource
	cache    *TokenCache
	clientID string
}

func (s *cachingSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.Save(s.clientID, token); err != nil {
			// Auth succeeded; a stale cache only costs one extra token request.
			logging.Warn().Err(err).Msg("auth: failed to cache token")
		}
	}
	return token, nil
}
