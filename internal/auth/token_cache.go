// Package auth provides Spotify client-credentials authentication with an
// on-disk token cache.
package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"
)

const (
	cacheDirName  = "dual-gravity"
	cacheFileName = "catalog-tokens.json"
)

// cachedToken is the persisted form of an app token. Client-credentials
// tokens carry no refresh token, so only the bearer and its expiry are kept.
type cachedToken struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	Expiry      time.Time `json:"expiry"`
}

// TokenCache stores app tokens keyed by client id, so several deployments
// with different credentials can share one cache file without handing each
// other tokens.
type TokenCache struct {
	mu   sync.Mutex
	path string
}

// DefaultTokenCache returns a TokenCache under the user cache directory,
// e.g. ~/.cache/dual-gravity/catalog-tokens.json.
func DefaultTokenCache() (*TokenCache, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return nil, fmt.Errorf("locating user cache dir: %w", err)
	}
	return NewTokenCache(filepath.Join(dir, cacheDirName, cacheFileName)), nil
}

// NewTokenCache creates a TokenCache backed by the file at path.
func NewTokenCache(path string) *TokenCache {
	return &TokenCache{path: path}
}

// Path returns the backing file.
func (c *TokenCache) Path() string {
	return c.path
}

// Load returns the token stored for clientID, or nil when there is none.
func (c *TokenCache) Load(clientID string) (*oauth2.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := c.read()
	if err != nil {
		return nil, err
	}
	entry, ok := entries[clientID]
	if !ok {
		return nil, nil
	}
	return &oauth2.Token{
		AccessToken: entry.AccessToken,
		TokenType:   entry.TokenType,
		Expiry:      entry.Expiry,
	}, nil
}

// Save stores token for clientID. Entries for other clients that have
// already expired are pruned on the way.
func (c *TokenCache) Save(clientID string, token *oauth2.Token) error {
	if token == nil {
		return errors.New("cannot cache nil token")
	}
	if clientID == "" {
		return errors.New("cannot cache token without client id")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := c.read()
	if err != nil {
		// An unreadable file is replaced rather than blocking new tokens.
		entries = make(map[string]cachedToken)
	}
	now := time.Now()
	for id, e := range entries {
		if !e.Expiry.IsZero() && e.Expiry.Before(now) {
			delete(entries, id)
		}
	}
	entries[clientID] = cachedToken{
		AccessToken: token.AccessToken,
		TokenType:   token.TokenType,
		Expiry:      token.Expiry,
	}
	return c.write(entries)
}

// Forget removes the entry for clientID. Forgetting an unknown client or a
// missing file is not an error.
func (c *TokenCache) Forget(clientID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := c.read()
	if err != nil {
		return err
	}
	if _, ok := entries[clientID]; !ok {
		return nil
	}
	delete(entries, clientID)
	if len(entries) == 0 {
		if err := os.Remove(c.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("removing token cache: %w", err)
		}
		return nil
	}
	return c.write(entries)
}

func (c *TokenCache) read() (map[string]cachedToken, error) {
	entries := make(map[string]cachedToken)
	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return entries, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading token cache: %w", err)
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing token cache: %w", err)
	}
	return entries, nil
}

// write replaces the cache file through a rename so a crash mid-write never
// leaves a truncated file behind.
func (c *TokenCache) write(entries map[string]cachedToken) error {
	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating token cache dir: %w", err)
	}

	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encoding token cache: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tokens-*")
	if err != nil {
		return fmt.Errorf("creating temp token file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing token cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing token cache: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		return fmt.Errorf("replacing token cache: %w", err)
	}
	return nil
}
