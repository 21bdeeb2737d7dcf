package db

import "time"

// Artist is a stored artist profile.
type Artist struct {
	ID         string
	Name       string
	Genres     []string
	Popularity *int   // nullable
	Followers  *int64 // nullable
	UpdatedAt  time.Time
}

// Track is a stored track. Only the primary artist is kept.
type Track struct {
	ID          string
	Name        string
	URI         string
	ArtistID    string
	ArtistName  string
	Album       string
	ReleaseDate string
	Popularity  int
	DurationMs  int
	Playable    bool
}

// SampleQuery selects random playable tracks.
type SampleQuery struct {
	Limit            int
	ExcludeArtistIDs []string
	ExcludeTrackIDs  []string
	// OnePerArtist returns at most one track per artist.
	OnePerArtist bool
}
