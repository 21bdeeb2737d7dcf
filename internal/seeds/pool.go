package seeds

import "github.com/justestif/go-dual-gravity/internal/music"

// Exclusions are the tracks and artists a pool must never admit.
type Exclusions struct {
	CurrentTrackID    string
	CurrentArtistID   string
	PlayedTrackIDs    []string
	ExcludedArtistIDs []string
}

// Constraints are the minimums a pool must reach before the fallback chain stops.
type Constraints struct {
	MinPool          int
	MinUniqueArtists int
}

// Satisfied reports whether p meets both minimums.
func (c Constraints) Satisfied(p *Pool) bool {
	return p.Len() >= c.MinPool && p.UniqueArtists() >= c.MinUniqueArtists
}

// Pool is the candidate set for one selection. Add is its only way in, so
// every track it holds has passed the exclusion rules. Not safe for
// concurrent use.
type Pool struct {
	seeds   map[string]music.CandidateSeed
	order   []string
	artists map[string]int

	currentTrack  string
	currentArtist string
	played        map[string]struct{}
	excluded      map[string]struct{}
}

// NewPool creates an empty pool enforcing ex.
func NewPool(ex Exclusions) *Pool {
	p := &Pool{
		seeds:         make(map[string]music.CandidateSeed),
		artists:       make(map[string]int),
		currentTrack:  ex.CurrentTrackID,
		currentArtist: ex.CurrentArtistID,
		played:        make(map[string]struct{}, len(ex.PlayedTrackIDs)),
		excluded:      make(map[string]struct{}, len(ex.ExcludedArtistIDs)),
	}
	for _, id := range ex.PlayedTrackIDs {
		p.played[id] = struct{}{}
	}
	for _, id := range ex.ExcludedArtistIDs {
		if id != "" && id != ex.CurrentArtistID {
			p.excluded[id] = struct{}{}
		}
	}
	return p
}

// Allows reports whether t passes the exclusion rules: playable, not played,
// not the current track, not by the current artist or an excluded artist.
func (p *Pool) Allows(t music.Track) bool {
	if t.ID == "" || !t.Playable || len(t.Artists) == 0 || t.PrimaryArtist().ID == "" {
		return false
	}
	if t.ID == p.currentTrack {
		return false
	}
	if _, ok := p.played[t.ID]; ok {
		return false
	}
	for _, a := range t.Artists {
		if p.currentArtist != "" && a.ID == p.currentArtist {
			return false
		}
	}
	_, excluded := p.excluded[t.PrimaryArtist().ID]
	return !excluded
}

// ArtistAllowed reports whether tracks by artistID could be admitted.
func (p *Pool) ArtistAllowed(artistID string) bool {
	if artistID == "" || artistID == p.currentArtist {
		return false
	}
	_, excluded := p.excluded[artistID]
	return !excluded
}

// Add admits t from src. On an id collision the source with the higher
// priority is kept. Seeds without a valid source are refused. Returns
// whether the pool changed.
func (p *Pool) Add(t music.Track, src music.Source) bool {
	if !src.Valid() || !p.Allows(t) {
		return false
	}
	if existing, ok := p.seeds[t.ID]; ok {
		if existing.Source.Priority() >= src.Priority() {
			return false
		}
		p.seeds[t.ID] = music.CandidateSeed{Track: t, Source: src}
		return true
	}

	p.seeds[t.ID] = music.CandidateSeed{Track: t, Source: src}
	p.order = append(p.order, t.ID)
	p.artists[t.PrimaryArtist().ID]++
	return true
}

// Merge adds every seed of other. The result does not depend on merge order.
func (p *Pool) Merge(other []music.CandidateSeed) {
	for _, s := range other {
		p.Add(s.Track, s.Source)
	}
}

// Has reports whether the pool holds trackID.
func (p *Pool) Has(trackID string) bool {
	_, ok := p.seeds[trackID]
	return ok
}

// Len returns the number of tracks.
func (p *Pool) Len() int {
	return len(p.seeds)
}

// UniqueArtists returns the number of distinct primary artists.
func (p *Pool) UniqueArtists() int {
	return len(p.artists)
}

// HasArtist reports whether any track by artistID is in the pool.
func (p *Pool) HasArtist(artistID string) bool {
	return p.artists[artistID] > 0
}

// Seeds returns the pool contents in insertion order.
func (p *Pool) Seeds() []music.CandidateSeed {
	out := make([]music.CandidateSeed, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.seeds[id])
	}
	return out
}

// ArtistIDs returns the distinct primary artist ids in the pool.
func (p *Pool) ArtistIDs() []string {
	out := make([]string, 0, len(p.artists))
	seen := make(map[string]struct{}, len(p.artists))
	for _, id := range p.order {
		a := p.seeds[id].Track.PrimaryArtist().ID
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}

// blockedTrackIDs lists every track id a store query should skip.
func (p *Pool) blockedTrackIDs() []string {
	out := make([]string, 0, len(p.played)+len(p.order)+1)
	for id := range p.played {
		out = append(out, id)
	}
	out = append(out, p.order...)
	if p.currentTrack != "" {
		out = append(out, p.currentTrack)
	}
	return out
}

// blockedArtistIDs lists the current and excluded artists.
func (p *Pool) blockedArtistIDs() []string {
	out := make([]string, 0, len(p.excluded)+1)
	for id := range p.excluded {
		out = append(out, id)
	}
	if p.currentArtist != "" {
		out = append(out, p.currentArtist)
	}
	return out
}
