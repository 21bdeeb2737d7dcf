// Package music defines the domain types shared by the selection engine.
package music

import (
	"strconv"
	"strings"
	"unicode"
)

// ArtistProfile is an immutable snapshot of catalog metadata for an artist.
// Popularity and Followers are nil when the catalog did not report them.
type ArtistProfile struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Genres     []string `json:"genres"`
	Popularity *int     `json:"popularity,omitempty"`
	Followers  *uint64  `json:"followers,omitempty"`
}

// NeedsBackfill reports whether the profile is missing genres or popularity.
func (p ArtistProfile) NeedsBackfill() bool {
	return len(p.Genres) == 0 || p.Popularity == nil
}

// ArtistRef is the minimal artist reference carried on a track.
type ArtistRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Track holds the track details the engine needs to score and present a candidate.
type Track struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	URI         string      `json:"uri,omitempty"`
	Artists     []ArtistRef `json:"artists"`
	Album       string      `json:"album,omitempty"`
	ReleaseDate string      `json:"releaseDate,omitempty"` // YYYY, YYYY-MM or YYYY-MM-DD
	Popularity  int         `json:"popularity"`
	DurationMs  int         `json:"durationMs,omitempty"`
	Playable    bool        `json:"playable"`
}

// PrimaryArtist returns the first credited artist, or a zero ArtistRef.
func (t Track) PrimaryArtist() ArtistRef {
	if len(t.Artists) == 0 {
		return ArtistRef{}
	}
	return t.Artists[0]
}

// ReleaseYear parses the year out of ReleaseDate. Returns 0 when unknown.
func (t Track) ReleaseYear() int {
	if len(t.ReleaseDate) < 4 {
		return 0
	}
	year, err := strconv.Atoi(t.ReleaseDate[:4])
	if err != nil {
		return 0
	}
	return year
}

// TargetProfile is a player's hidden target artist with its resolved metadata.
type TargetProfile struct {
	Name       string   `json:"name"`
	SpotifyID  string   `json:"spotifyId"`
	Genres     []string `json:"genres"`
	Popularity *int     `json:"popularity,omitempty"`
	Followers  *uint64  `json:"followers,omitempty"`
}

// NewTargetProfile builds a target profile from a resolved artist.
func NewTargetProfile(p ArtistProfile) *TargetProfile {
	return &TargetProfile{
		Name:       p.Name,
		SpotifyID:  p.ID,
		Genres:     p.Genres,
		Popularity: p.Popularity,
		Followers:  p.Followers,
	}
}

// Artist returns the target as an ArtistProfile.
func (t TargetProfile) Artist() ArtistProfile {
	return ArtistProfile{
		ID:         t.SpotifyID,
		Name:       t.Name,
		Genres:     t.Genres,
		Popularity: t.Popularity,
		Followers:  t.Followers,
	}
}

// Matches reports whether the artist is this target, by id or normalized name.
func (t TargetProfile) Matches(artistID, artistName string) bool {
	if t.SpotifyID != "" && artistID == t.SpotifyID {
		return true
	}
	return NormalizeName(artistName) != "" && NormalizeName(artistName) == NormalizeName(t.Name)
}

// NormalizeName lowercases a name and strips punctuation and surrounding space,
// so "The  Beatles!" and "the beatles" compare equal.
func NormalizeName(name string) string {
	var b strings.Builder
	lastSpace := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r):
			if !lastSpace && b.Len() > 0 {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}
