package spotify

import (
	"github.com/zmb3/spotify/v2"

	"github.com/justestif/go-dual-gravity/internal/music"
)

// convertArtist converts a Spotify FullArtist to a music.ArtistProfile.
func convertArtist(a spotify.FullArtist) music.ArtistProfile {
	popularity := int(a.Popularity)
	followers := uint64(a.Followers.Count)

	genres := a.Genres
	if genres == nil {
		genres = []string{}
	}

	return music.ArtistProfile{
		ID:         a.ID.String(),
		Name:       a.Name,
		Genres:     genres,
		Popularity: &popularity,
		Followers:  &followers,
	}
}

// convertTracks converts tracks, dropping entries without an id (local files).
func convertTracks(tracks []spotify.FullTrack) []music.Track {
	out := make([]music.Track, 0, len(tracks))
	for _, t := range tracks {
		if t.ID == "" {
			continue
		}
		out = append(out, convertTrack(t))
	}
	return out
}

// convertTrack converts a Spotify FullTrack to a music.Track.
// A track is playable unless the API explicitly says otherwise.
func convertTrack(t spotify.FullTrack) music.Track {
	artists := make([]music.ArtistRef, len(t.Artists))
	for i, a := range t.Artists {
		artists[i] = music.ArtistRef{ID: a.ID.String(), Name: a.Name}
	}

	return music.Track{
		ID:          t.ID.String(),
		Name:        t.Name,
		URI:         string(t.URI),
		Artists:     artists,
		Album:       t.Album.Name,
		ReleaseDate: t.Album.ReleaseDate,
		Popularity:  int(t.Popularity),
		DurationMs:  int(t.Duration),
		Playable:    t.IsPlayable == nil || *t.IsPlayable,
	}
}
