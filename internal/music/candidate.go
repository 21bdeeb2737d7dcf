package music

import (
	"fmt"
	"strings"
)

// Source identifies which pool-building stage produced a candidate.
type Source int

const (
	SourceRelatedTopTracks Source = iota + 1
	SourceRelatedArtistInsertion
	SourceRecommendations
	SourceEmbeddingFallback
	SourceTargetBoost
	SourceTargetInsertion
)

var sourceNames = map[Source]string{
	SourceRelatedTopTracks:       "relatedTopTracks",
	SourceRelatedArtistInsertion: "relatedArtistInsertion",
	SourceRecommendations:        "recommendations",
	SourceEmbeddingFallback:      "embeddingFallback",
	SourceTargetBoost:            "targetBoost",
	SourceTargetInsertion:        "targetInsertion",
}

func (s Source) String() string {
	if name, ok := sourceNames[s]; ok {
		return name
	}
	return "unknown"
}

// Valid reports whether s names a known source. The zero Source is not
// valid.
func (s Source) Valid() bool {
	_, ok := sourceNames[s]
	return ok
}

// Priority ranks how much a source is trusted when two stages produce the
// same track. Higher wins.
func (s Source) Priority() int {
	return int(s)
}

// MarshalText encodes the source by name.
func (s Source) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid source %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText decodes a source name.
func (s *Source) UnmarshalText(text []byte) error {
	for src, name := range sourceNames {
		if strings.EqualFold(name, string(text)) {
			*s = src
			return nil
		}
	}
	return fmt.Errorf("unknown source %q", string(text))
}

// CandidateSeed is a track proposed for the current selection.
type CandidateSeed struct {
	Track  Track  `json:"track"`
	Source Source `json:"source" validate:"required"`
}

// Category classifies a candidate relative to the currently playing track.
type Category string

const (
	CategoryCloser  Category = "closer"
	CategoryNeutral Category = "neutral"
	CategoryFurther Category = "further"
)

// Categories lists the selection buckets in presentation order.
var Categories = []Category{CategoryCloser, CategoryNeutral, CategoryFurther}

// PopularityBand buckets an artist's popularity.
type PopularityBand string

const (
	BandLow  PopularityBand = "low"
	BandMid  PopularityBand = "mid"
	BandHigh PopularityBand = "high"
)

// BandFor returns the band for a 0-100 popularity value.
func BandFor(popularity int) PopularityBand {
	switch {
	case popularity < 40:
		return BandLow
	case popularity < 70:
		return BandMid
	default:
		return BandHigh
	}
}

// PlayerID identifies one of the two players.
type PlayerID string

const (
	Player1 PlayerID = "player1"
	Player2 PlayerID = "player2"
)

// Valid reports whether id names one of the two players.
func (id PlayerID) Valid() bool {
	return id == Player1 || id == Player2
}

// Opponent returns the other player.
func (id PlayerID) Opponent() PlayerID {
	if id == Player1 {
		return Player2
	}
	return Player1
}

// Components are the individual similarity factors, each in [0,1].
type Components struct {
	Genre        float64 `json:"genre"`
	Relationship float64 `json:"relationship"`
	TrackPop     float64 `json:"trackPop"`
	ArtistPop    float64 `json:"artistPop"`
	Era          float64 `json:"era"`
	Followers    float64 `json:"followers"`
}

// CandidateTrackMetrics is a scored candidate.
type CandidateTrackMetrics struct {
	Track                 Track          `json:"track"`
	Source                Source         `json:"source"`
	ArtistID              string         `json:"artistId"`
	ArtistName            string         `json:"artistName"`
	ArtistGenres          []string       `json:"artistGenres"`
	SimScore              float64        `json:"simScore"`
	Components            Components     `json:"components"`
	AAttraction           float64        `json:"aAttraction"`
	BAttraction           float64        `json:"bAttraction"`
	GravityScore          float64        `json:"gravityScore"`
	StabilizedScore       float64        `json:"stabilizedScore"`
	FinalScore            float64        `json:"finalScore"`
	PopularityBand        PopularityBand `json:"popularityBand"`
	CurrentSongAttraction float64        `json:"currentSongAttraction"`
	IsTarget              bool           `json:"isTarget"`
	SelectionCategory     Category       `json:"selectionCategory,omitempty"`
}

// AttractionFor returns the candidate's attraction to the given player's target.
func (m CandidateTrackMetrics) AttractionFor(player PlayerID) float64 {
	if player == Player2 {
		return m.BAttraction
	}
	return m.AAttraction
}
