package lastfm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/justestif/go-dual-gravity/internal/ttlcache"
)

const (
	defaultBaseURL = "https://ws.audioscrobbler.com/2.0/"
	userAgent      = "go-dual-gravity/1.0"
	tagCacheTTL    = time.Hour
)

// Tag filtering used when tags stand in for genres.
const (
	MinTagCount   = 10
	DefaultMaxTag = 5
)

// Last.fm API error codes.
const (
	errCodeInvalidAPIKey = 10
	errCodeRateLimited   = 29
)

// Sentinel errors.
var (
	// ErrRateLimited is returned when the API rate limit is exceeded after retries.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrInvalidAPIKey is returned when the API key is invalid.
	ErrInvalidAPIKey = errors.New("invalid API key")
)

// Client is a Last.fm API client with caching and rate-limit retries.
type Client struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	delays     []time.Duration
	cache      *ttlcache.Cache[[]Tag]
}

// NewClient creates a new Last.fm API client from the provided configuration.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	return &Client{
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    base,
		delays:     []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second},
		cache:      ttlcache.New[[]Tag](tagCacheTTL),
	}
}

// ArtistGenres returns up to limit of the artist's strongest tags, lowercased,
// keeping only tags with a count of at least MinTagCount.
func (c *Client) ArtistGenres(ctx context.Context, artist string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = DefaultMaxTag
	}
	tags, err := c.ArtistTags(ctx, artist)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(tags, func(i, j int) bool { return tags[i].Count > tags[j].Count })

	genres := make([]string, 0, limit)
	seen := make(map[string]struct{}, limit)
	for _, tag := range tags {
		if tag.Count < MinTagCount {
			break
		}
		name := strings.ToLower(strings.TrimSpace(tag.Name))
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		genres = append(genres, name)
		if len(genres) == limit {
			break
		}
	}
	return genres, nil
}

// ArtistTags fetches the artist's top tags. Results are cached for an hour.
// Returns an empty slice (not nil) if no tags are found.
func (c *Client) ArtistTags(ctx context.Context, artist string) ([]Tag, error) {
	key := strings.ToLower(artist)
	if cached, ok := c.cache.Get(key); ok {
		return append([]Tag(nil), cached...), nil
	}

	params := url.Values{
		"method":      {"artist.getTopTags"},
		"artist":      {artist},
		"autocorrect": {"1"},
		"format":      {"json"},
		"api_key":     {c.apiKey},
	}

	body, err := c.doRequest(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("fetching artist tags for %q: %w", artist, err)
	}

	var resp topTagsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing artist tags response: %w", err)
	}

	tags := resp.TopTags.Tag
	if tags == nil {
		tags = []Tag{}
	}
	c.cache.Set(key, tags)
	return append([]Tag(nil), tags...), nil
}

// doRequest performs an HTTP GET, retrying rate-limit responses with the
// configured backoff delays.
func (c *Client) doRequest(ctx context.Context, params url.Values) ([]byte, error) {
	reqURL := c.baseURL + "?" + params.Encode()

	var lastErr error
	for attempt := 0; attempt <= len(c.delays); attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(c.delays[attempt-1])
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}

		body, err := c.doSingleRequest(ctx, reqURL)
		if err == nil {
			return body, nil
		}
		if !errors.Is(err, ErrRateLimited) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (c *Client) doSingleRequest(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	var apiErr errorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Code != 0 {
		switch apiErr.Code {
		case errCodeRateLimited:
			return nil, ErrRateLimited
		case errCodeInvalidAPIKey:
			return nil, ErrInvalidAPIKey
		default:
			return nil, fmt.Errorf("API error %d: %s", apiErr.Code, apiErr.Message)
		}
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return body, nil
}
