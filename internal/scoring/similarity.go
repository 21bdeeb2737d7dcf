// Package scoring computes how close candidate tracks are to the playing
// track and to each player's target, and folds in gravity to rank them.
package scoring

import (
	"math"

	"github.com/justestif/go-dual-gravity/internal/genres"
	"github.com/justestif/go-dual-gravity/internal/music"
)

// Weights are the factor weights of a similarity or attraction model.
// Track-level factors are zero in the attraction model.
type Weights struct {
	Genre        float64 `koanf:"genre"`
	Relationship float64 `koanf:"relationship"`
	TrackPop     float64 `koanf:"track_pop"`
	ArtistPop    float64 `koanf:"artist_pop"`
	Era          float64 `koanf:"era"`
	Followers    float64 `koanf:"followers"`
}

// Apply returns the weighted sum of c.
func (w Weights) Apply(c music.Components) float64 {
	return w.Genre*c.Genre +
		w.Relationship*c.Relationship +
		w.TrackPop*c.TrackPop +
		w.ArtistPop*c.ArtistPop +
		w.Era*c.Era +
		w.Followers*c.Followers
}

// Sum returns the total weight.
func (w Weights) Sum() float64 {
	return w.Genre + w.Relationship + w.TrackPop + w.ArtistPop + w.Era + w.Followers
}

// DefaultSimilarityWeights weighs the playing track against a candidate.
func DefaultSimilarityWeights() Weights {
	return Weights{Genre: 0.5, Relationship: 0.1, TrackPop: 0.075, ArtistPop: 0.075, Era: 0.2, Followers: 0.05}
}

// DefaultAttractionWeights weighs a candidate artist against a target artist.
func DefaultAttractionWeights() Weights {
	return Weights{Genre: 0.4, Relationship: 0.3, ArtistPop: 0.15, Followers: 0.15}
}

const (
	unknownCloseness = 0.5
	eraSpanYears     = 30.0
	followerDecades  = 8.0

	relationshipUnknown = 0.5
	relationshipBase    = 0.3
	relationshipGenre   = 0.7
)

// Relations reports whether a precomputed related-artist edge links a and b.
type Relations interface {
	Related(a, b string) bool
}

// Edges is an undirected related-artist graph.
type Edges map[string]map[string]struct{}

// Add links from to each of to.
func (e Edges) Add(from string, to ...string) {
	for _, id := range to {
		if id == "" || from == "" || id == from {
			continue
		}
		e.link(from, id)
		e.link(id, from)
	}
}

func (e Edges) link(a, b string) {
	if e[a] == nil {
		e[a] = make(map[string]struct{})
	}
	e[a][b] = struct{}{}
}

func (e Edges) Related(a, b string) bool {
	_, ok := e[a][b]
	return ok
}

// PopularityCloseness is 1 - |a-b|/100, or 0.5 when either is unknown.
func PopularityCloseness(a, b *int) float64 {
	if a == nil || b == nil {
		return unknownCloseness
	}
	return clamp01(1 - math.Abs(float64(*a-*b))/100)
}

func trackPopularityCloseness(a, b int) float64 {
	return clamp01(1 - math.Abs(float64(a-b))/100)
}

// EraCloseness falls linearly to zero over thirty years. A zero year is unknown.
func EraCloseness(yearA, yearB int) float64 {
	if yearA == 0 || yearB == 0 {
		return unknownCloseness
	}
	return math.Max(0, 1-math.Abs(float64(yearA-yearB))/eraSpanYears)
}

// FollowerCloseness compares follower counts on a log scale.
func FollowerCloseness(a, b *uint64) float64 {
	if a == nil || b == nil {
		return unknownCloseness
	}
	d := math.Abs(math.Log10(float64(*a)+1) - math.Log10(float64(*b)+1))
	return math.Max(0, 1-d/followerDecades)
}

// Relationship scores how directly two artists are connected: 1 for the
// same artist or a related edge, otherwise a function of genre overlap.
func Relationship(a, b *music.ArtistProfile, genreScore float64, rel Relations) float64 {
	if a == nil || b == nil {
		return relationshipUnknown
	}
	if a.ID != "" && a.ID == b.ID {
		return 1
	}
	if rel != nil && rel.Related(a.ID, b.ID) {
		return 1
	}
	return relationshipBase + relationshipGenre*clamp01(genreScore)
}

// Subject is one side of a similarity comparison. Artist is nil when no
// profile is known.
type Subject struct {
	Artist *music.ArtistProfile
	Track  music.Track
}

// Similarity compares a candidate with the base track and artist.
func Similarity(w Weights, base, candidate Subject, rel Relations) (float64, music.Components) {
	genre := genres.Compare(genresOf(base.Artist), genresOf(candidate.Artist)).Score

	c := music.Components{
		Genre:        genre,
		Relationship: Relationship(base.Artist, candidate.Artist, genre, rel),
		TrackPop:     trackPopularityCloseness(base.Track.Popularity, candidate.Track.Popularity),
		ArtistPop:    PopularityCloseness(popularityOf(base.Artist), popularityOf(candidate.Artist)),
		Era:          EraCloseness(base.Track.ReleaseYear(), candidate.Track.ReleaseYear()),
		Followers:    FollowerCloseness(followersOf(base.Artist), followersOf(candidate.Artist)),
	}
	return clamp01(w.Apply(c)), c
}

// Attraction compares a candidate artist with a target using artist-level
// factors only. A candidate that is the target scores 1; a nil target
// attracts nothing.
func Attraction(w Weights, candidate *music.ArtistProfile, target *music.TargetProfile, rel Relations) float64 {
	if target == nil {
		return 0
	}
	if candidate != nil && target.Matches(candidate.ID, candidate.Name) {
		return 1
	}

	t := target.Artist()
	genre := genres.Compare(t.Genres, genresOf(candidate)).Score
	c := music.Components{
		Genre:        genre,
		Relationship: Relationship(&t, candidate, genre, rel),
		ArtistPop:    PopularityCloseness(t.Popularity, popularityOf(candidate)),
		Followers:    FollowerCloseness(t.Followers, followersOf(candidate)),
	}
	return clamp01(w.Apply(c))
}

func genresOf(p *music.ArtistProfile) []string {
	if p == nil {
		return nil
	}
	return p.Genres
}

func popularityOf(p *music.ArtistProfile) *int {
	if p == nil {
		return nil
	}
	return p.Popularity
}

func followersOf(p *music.ArtistProfile) *uint64 {
	if p == nil {
		return nil
	}
	return p.Followers
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(1, math.Max(0, v))
}
