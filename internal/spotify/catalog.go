package spotify

import (
	"context"
	"fmt"

	"github.com/zmb3/spotify/v2"

	"github.com/justestif/go-dual-gravity/internal/music"
)

// Artists retrieves artist profiles by id, batching 50 ids per request.
// Unknown ids are omitted from the result.
func (c *Client) Artists(ctx context.Context, ids []string) ([]music.ArtistProfile, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	profiles := make([]music.ArtistProfile, 0, len(ids))
	for i := 0; i < len(ids); i += maxArtistsPerRequest {
		end := min(i+maxArtistsPerRequest, len(ids))
		batch := make([]spotify.ID, 0, end-i)
		for _, id := range ids[i:end] {
			batch = append(batch, spotify.ID(id))
		}

		var artists []*spotify.FullArtist
		err := c.call(ctx, "get_artists", func(ctx context.Context) error {
			var err error
			artists, err = c.api.GetArtists(ctx, batch...)
			return err
		})
		if err != nil {
			return profiles, fmt.Errorf("fetching artists (batch %d-%d): %w", i+1, end, err)
		}

		for _, a := range artists {
			if a == nil || a.ID == "" {
				continue
			}
			profiles = append(profiles, convertArtist(*a))
		}
	}
	return profiles, nil
}

// TopTracks retrieves an artist's top tracks in the configured market.
func (c *Client) TopTracks(ctx context.Context, artistID string) ([]music.Track, error) {
	var tracks []spotify.FullTrack
	err := c.call(ctx, "artist_top_tracks", func(ctx context.Context) error {
		var err error
		tracks, err = c.api.GetArtistsTopTracks(ctx, spotify.ID(artistID), c.market)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fetching top tracks for %s: %w", artistID, err)
	}
	return convertTracks(tracks), nil
}

// RelatedArtists retrieves artists the catalog considers similar to artistID.
func (c *Client) RelatedArtists(ctx context.Context, artistID string) ([]music.ArtistProfile, error) {
	var artists []spotify.FullArtist
	err := c.call(ctx, "related_artists", func(ctx context.Context) error {
		var err error
		artists, err = c.api.GetRelatedArtists(ctx, spotify.ID(artistID))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fetching related artists for %s: %w", artistID, err)
	}

	profiles := make([]music.ArtistProfile, 0, len(artists))
	for _, a := range artists {
		profiles = append(profiles, convertArtist(a))
	}
	return profiles, nil
}

// SearchArtists runs a text search for artists, best match first.
func (c *Client) SearchArtists(ctx context.Context, query string, limit int) ([]music.ArtistProfile, error) {
	limit = clampLimit(limit)

	var result *spotify.SearchResult
	err := c.call(ctx, "search_artists", func(ctx context.Context) error {
		var err error
		result, err = c.api.Search(ctx, query, spotify.SearchTypeArtist, spotify.Limit(limit))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("searching artists %q: %w", query, err)
	}
	if result == nil || result.Artists == nil {
		return nil, nil
	}

	profiles := make([]music.ArtistProfile, 0, len(result.Artists.Artists))
	for _, a := range result.Artists.Artists {
		profiles = append(profiles, convertArtist(a))
	}
	return profiles, nil
}

// SearchTracksByGenre finds tracks tagged with genre in the configured market.
func (c *Client) SearchTracksByGenre(ctx context.Context, genre string, limit int) ([]music.Track, error) {
	limit = clampLimit(limit)
	query := fmt.Sprintf("genre:%q", genre)

	var result *spotify.SearchResult
	err := c.call(ctx, "search_tracks", func(ctx context.Context) error {
		var err error
		result, err = c.api.Search(ctx, query, spotify.SearchTypeTrack, spotify.Limit(limit), spotify.Market(c.market))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("searching tracks for genre %q: %w", genre, err)
	}
	if result == nil || result.Tracks == nil {
		return nil, nil
	}
	return convertTracks(result.Tracks.Tracks), nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 10
	}
	return min(limit, maxSearchLimit)
}
