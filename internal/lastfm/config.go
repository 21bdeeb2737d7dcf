// Package lastfm fetches artist top tags from Last.fm. The profile resolver
// uses them as a secondary genre source when the catalog reports none.
package lastfm

import (
	"errors"
	"time"
)

// ErrMissingAPIKey is returned when no API key is configured.
var ErrMissingAPIKey = errors.New("missing Last.fm API key")

// DefaultTimeout bounds a single HTTP request.
const DefaultTimeout = 10 * time.Second

// Config holds Last.fm API configuration.
type Config struct {
	APIKey  string        `koanf:"api_key"`
	BaseURL string        `koanf:"base_url"`
	Timeout time.Duration `koanf:"timeout"`
}

// Validate reports ErrMissingAPIKey when the key is empty.
func (c Config) Validate() error {
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	return nil
}
