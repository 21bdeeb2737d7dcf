package lastfm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(server *httptest.Server) *Client {
	c := NewClient(Config{APIKey: "test-api-key", BaseURL: server.URL + "/"})
	c.httpClient = server.Client()
	c.delays = []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}
	return c
}

func serveJSON(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
}

func TestArtistGenres(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		limit   int
		want    []string
		wantErr error
	}{
		{
			name: "strongest tags first, weak tags dropped",
			body: `{"toptags":{"tag":[
				{"name":"Rock","count":100},
				{"name":"seen live","count":4},
				{"name":"Alternative","count":65},
				{"name":"british","count":12}
			],"@attr":{"artist":"Radiohead"}}}`,
			limit: 5,
			want:  []string{"rock", "alternative", "british"},
		},
		{
			name: "limit applies",
			body: `{"toptags":{"tag":[
				{"name":"metal","count":100},
				{"name":"nu metal","count":90},
				{"name":"rock","count":50}
			]}}`,
			limit: 2,
			want:  []string{"metal", "nu metal"},
		},
		{
			name:  "no tags",
			body:  `{"toptags":{"tag":[]}}`,
			limit: 5,
			want:  []string{},
		},
		{
			name:    "invalid API key",
			body:    `{"error":10,"message":"Invalid API key"}`,
			limit:   5,
			wantErr: ErrInvalidAPIKey,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(serveJSON(tt.body))
			defer server.Close()

			got, err := newTestClient(server).ArtistGenres(context.Background(), "Radiohead", tt.limit)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ArtistGenres() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ArtistGenres() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestArtistTags_Caching(t *testing.T) {
	var requestCount atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount.Add(1)
		if got := r.URL.Query().Get("method"); got != "artist.getTopTags" {
			t.Errorf("method = %q, want artist.getTopTags", got)
		}
		serveJSON(`{"toptags":{"tag":[{"name":"rock","count":100}]}}`)(w, r)
	}))
	defer server.Close()

	client := newTestClient(server)
	for i := 0; i < 2; i++ {
		tags, err := client.ArtistTags(context.Background(), "Artist")
		if err != nil {
			t.Fatalf("ArtistTags() call %d error = %v", i+1, err)
		}
		if len(tags) != 1 {
			t.Fatalf("ArtistTags() call %d got %d tags, want 1", i+1, len(tags))
		}
	}

	if count := requestCount.Load(); count != 1 {
		t.Errorf("Expected 1 request, got %d", count)
	}
}

func TestArtistTags_RateLimitRetry(t *testing.T) {
	var requestCount atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requestCount.Add(1) < 3 {
			serveJSON(`{"error":29,"message":"Rate limit exceeded"}`)(w, r)
			return
		}
		serveJSON(`{"toptags":{"tag":[{"name":"rock","count":100}]}}`)(w, r)
	}))
	defer server.Close()

	tags, err := newTestClient(server).ArtistTags(context.Background(), "Artist")
	if err != nil {
		t.Fatalf("ArtistTags() error = %v", err)
	}
	if len(tags) != 1 || tags[0].Name != "rock" {
		t.Errorf("ArtistTags() got unexpected tags: %v", tags)
	}
	if count := requestCount.Load(); count != 3 {
		t.Errorf("Expected 3 requests, got %d", count)
	}
}

func TestArtistTags_RateLimitExhausted(t *testing.T) {
	var requestCount atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount.Add(1)
		serveJSON(`{"error":29,"message":"Rate limit exceeded"}`)(w, r)
	}))
	defer server.Close()

	_, err := newTestClient(server).ArtistTags(context.Background(), "Artist")
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("ArtistTags() error = %v, want ErrRateLimited", err)
	}
	// 1 initial + 3 retries
	if count := requestCount.Load(); count != 4 {
		t.Errorf("Expected 4 requests, got %d", count)
	}
}

func TestNewClient(t *testing.T) {
	client := NewClient(Config{APIKey: "test-key"})

	if client.apiKey != "test-key" {
		t.Errorf("NewClient() apiKey = %s, want test-key", client.apiKey)
	}
	if client.httpClient == nil || client.httpClient.Timeout != DefaultTimeout {
		t.Error("NewClient() httpClient not configured with default timeout")
	}
	if client.baseURL != defaultBaseURL {
		t.Errorf("NewClient() baseURL = %s, want %s", client.baseURL, defaultBaseURL)
	}
}
