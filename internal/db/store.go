package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/justestif/go-dual-gravity/internal/music"
)

// Store adapts the repositories to the engine's domain types.
type Store struct {
	db *DB
}

// NewStore wraps db.
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

// GetArtists returns stored profiles keyed by id.
func (s *Store) GetArtists(ctx context.Context, ids []string) (map[string]music.ArtistProfile, error) {
	artists, err := s.db.Artists().GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[string]music.ArtistProfile, len(artists))
	for _, a := range artists {
		out[a.ID] = toProfile(a)
	}
	return out, nil
}

// ArtistByName returns the stored artist with that name, or nil.
func (s *Store) ArtistByName(ctx context.Context, name string) (*music.ArtistProfile, error) {
	a, err := s.db.Artists().GetByName(ctx, name)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p := toProfile(*a)
	return &p, nil
}

// SaveArtists upserts profiles.
func (s *Store) SaveArtists(ctx context.Context, profiles []music.ArtistProfile) error {
	artists := make([]Artist, 0, len(profiles))
	for _, p := range profiles {
		if p.ID == "" {
			continue
		}
		artists = append(artists, fromProfile(p))
	}
	return s.db.Artists().UpsertBatch(ctx, artists)
}

// ArtistsWithGenres returns up to limit stored artists that have genres.
func (s *Store) ArtistsWithGenres(ctx context.Context, limit int) ([]music.ArtistProfile, error) {
	artists, err := s.db.Artists().WithGenres(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]music.ArtistProfile, len(artists))
	for i, a := range artists {
		out[i] = toProfile(a)
	}
	return out, nil
}

// TopTracks returns cached top-track lists keyed by artist id, in chart order.
// Artists without a cached list are absent.
func (s *Store) TopTracks(ctx context.Context, artistIDs []string) (map[string][]music.Track, error) {
	lists, err := s.db.Graph().TopTrackIDs(ctx, artistIDs)
	if err != nil {
		return nil, err
	}
	if len(lists) == 0 {
		return map[string][]music.Track{}, nil
	}

	var ids []string
	for _, trackIDs := range lists {
		ids = append(ids, trackIDs...)
	}
	tracks, err := s.db.Tracks().GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]Track, len(tracks))
	for _, t := range tracks {
		byID[t.ID] = t
	}

	out := make(map[string][]music.Track, len(lists))
	for artistID, trackIDs := range lists {
		list := make([]music.Track, 0, len(trackIDs))
		for _, id := range trackIDs {
			if t, ok := byID[id]; ok {
				list = append(list, toTrack(t))
			}
		}
		out[artistID] = list
	}
	return out, nil
}

// SaveTopTracks stores the tracks and records them as the artist's top list.
func (s *Store) SaveTopTracks(ctx context.Context, artistID string, tracks []music.Track) error {
	if err := s.SaveTracks(ctx, tracks); err != nil {
		return err
	}
	ids := make([]string, 0, len(tracks))
	for _, t := range tracks {
		ids = append(ids, t.ID)
	}
	return s.db.Graph().SaveTopTrackIDs(ctx, artistID, ids)
}

// SaveTracks upserts tracks.
func (s *Store) SaveTracks(ctx context.Context, tracks []music.Track) error {
	rows := make([]Track, 0, len(tracks))
	for _, t := range tracks {
		if t.ID == "" || t.PrimaryArtist().ID == "" {
			continue
		}
		rows = append(rows, fromTrack(t))
	}
	return s.db.Tracks().UpsertBatch(ctx, rows)
}

// TracksByArtists returns up to perArtist stored tracks for each artist.
func (s *Store) TracksByArtists(ctx context.Context, artistIDs []string, perArtist int) ([]music.Track, error) {
	tracks, err := s.db.Tracks().ByArtists(ctx, artistIDs, perArtist)
	if err != nil {
		return nil, err
	}
	return toTracks(tracks), nil
}

// SampleTracks returns random stored tracks.
func (s *Store) SampleTracks(ctx context.Context, q SampleQuery) ([]music.Track, error) {
	tracks, err := s.db.Tracks().RandomSample(ctx, q)
	if err != nil {
		return nil, err
	}
	return toTracks(tracks), nil
}

// CountTracks returns the number of stored tracks.
func (s *Store) CountTracks(ctx context.Context) (int, error) {
	return s.db.Tracks().Count(ctx)
}

// RelatedArtistIDs returns the cached related-artist list and whether one exists.
func (s *Store) RelatedArtistIDs(ctx context.Context, artistID string) ([]string, bool, error) {
	lists, err := s.db.Graph().RelatedIDs(ctx, []string{artistID})
	if err != nil {
		return nil, false, fmt.Errorf("loading related artists: %w", err)
	}
	ids, ok := lists[artistID]
	return ids, ok, nil
}

// SaveRelatedArtistIDs records the related-artist list for an artist.
func (s *Store) SaveRelatedArtistIDs(ctx context.Context, artistID string, relatedIDs []string) error {
	return s.db.Graph().SaveRelatedIDs(ctx, artistID, relatedIDs)
}

func toProfile(a Artist) music.ArtistProfile {
	p := music.ArtistProfile{
		ID:         a.ID,
		Name:       a.Name,
		Genres:     a.Genres,
		Popularity: a.Popularity,
	}
	if p.Genres == nil {
		p.Genres = []string{}
	}
	if a.Followers != nil && *a.Followers >= 0 {
		f := uint64(*a.Followers)
		p.Followers = &f
	}
	return p
}

func fromProfile(p music.ArtistProfile) Artist {
	a := Artist{
		ID:         p.ID,
		Name:       p.Name,
		Genres:     p.Genres,
		Popularity: p.Popularity,
	}
	if p.Followers != nil {
		f := int64(*p.Followers)
		a.Followers = &f
	}
	return a
}

func toTrack(t Track) music.Track {
	return music.Track{
		ID:          t.ID,
		Name:        t.Name,
		URI:         t.URI,
		Artists:     []music.ArtistRef{{ID: t.ArtistID, Name: t.ArtistName}},
		Album:       t.Album,
		ReleaseDate: t.ReleaseDate,
		Popularity:  t.Popularity,
		DurationMs:  t.DurationMs,
		Playable:    t.Playable,
	}
}

func toTracks(tracks []Track) []music.Track {
	out := make([]music.Track, len(tracks))
	for i, t := range tracks {
		out[i] = toTrack(t)
	}
	return out
}

func fromTrack(t music.Track) Track {
	artist := t.PrimaryArtist()
	return Track{
		ID:          t.ID,
		Name:        t.Name,
		URI:         t.URI,
		ArtistID:    artist.ID,
		ArtistName:  artist.Name,
		Album:       t.Album,
		ReleaseDate: t.ReleaseDate,
		Popularity:  t.Popularity,
		DurationMs:  t.DurationMs,
		Playable:    t.Playable,
	}
}
