package engine

import (
	"github.com/justestif/go-dual-gravity/internal/gravity"
	"github.com/justestif/go-dual-gravity/internal/music"
	"github.com/justestif/go-dual-gravity/internal/profiles"
	"github.com/justestif/go-dual-gravity/internal/scoring"
	"github.com/justestif/go-dual-gravity/internal/seeds"
	"github.com/justestif/go-dual-gravity/internal/selection"
)

// PlaybackState is what the player is currently hearing.
type PlaybackState struct {
	Track      music.Track `json:"track"`
	IsPlaying  bool        `json:"isPlaying"`
	ProgressMs int         `json:"progressMs,omitempty"`
}

// TargetRef names a player's target artist. ID is optional.
type TargetRef struct {
	Name string `json:"name" validate:"required_without=ID"`
	ID   string `json:"id,omitempty"`
}

// Targets holds both players' targets.
type Targets struct {
	Player1 TargetRef `json:"player1"`
	Player2 TargetRef `json:"player2"`
}

// For returns player's target.
func (t Targets) For(player music.PlayerID) TargetRef {
	if player == music.Player2 {
		return t.Player2
	}
	return t.Player1
}

// TargetProfiles holds both resolved targets. A nil entry is unresolved.
type TargetProfiles struct {
	Player1 *music.TargetProfile `json:"player1"`
	Player2 *music.TargetProfile `json:"player2"`
}

// For returns player's resolved target.
func (t TargetProfiles) For(player music.PlayerID) *music.TargetProfile {
	if player == music.Player2 {
		return t.Player2
	}
	return t.Player1
}

// Map returns the targets keyed by player.
func (t TargetProfiles) Map() map[music.PlayerID]*music.TargetProfile {
	return map[music.PlayerID]*music.TargetProfile{
		music.Player1: t.Player1,
		music.Player2: t.Player2,
	}
}

// LastSelection is the outcome of the previous turn. When Category is empty
// it is derived from Attraction and BaselineAttraction.
type LastSelection struct {
	Player             music.PlayerID `json:"player" validate:"required,oneof=player1 player2"`
	TrackID            string         `json:"trackId,omitempty"`
	Category           music.Category `json:"category,omitempty" validate:"omitempty,oneof=closer neutral further"`
	Attraction         float64        `json:"attraction" validate:"min=0,max=1"`
	BaselineAttraction float64        `json:"baselineAttraction" validate:"min=0,max=1"`
}

// InitRequest is the input of stage 1.
type InitRequest struct {
	Playback       PlaybackState  `json:"playbackState"`
	Round          int            `json:"roundNumber" validate:"min=1"`
	Turn           int            `json:"turnNumber" validate:"min=0"`
	ActivePlayer   music.PlayerID `json:"activePlayerId" validate:"required,oneof=player1 player2"`
	Targets        Targets        `json:"playerTargets"`
	Gravities      gravity.Map    `json:"playerGravities"`
	PlayedTrackIDs []string       `json:"playedTrackIds"`
	LastSelection  *LastSelection `json:"lastSelection,omitempty"`
}

// InitDebug is stage 1 instrumentation.
type InitDebug struct {
	RequestID         string           `json:"requestId"`
	DurationMs        int64            `json:"durationMs"`
	UnresolvedTargets []music.PlayerID `json:"unresolvedTargets,omitempty"`
	RelatedSource     string           `json:"relatedSource"`
	PhaseExcluded     int              `json:"phaseExcluded,omitempty"`
	PhaseAdded        int              `json:"phaseAdded,omitempty"`
	SelectionCategory music.Category   `json:"selectionCategory,omitempty"`
	Profiles          profiles.Stats   `json:"profiles"`
	DeadlineHit       bool             `json:"deadlineHit,omitempty"`
}

// InitResponse is the output of stage 1.
type InitResponse struct {
	TargetProfiles        TargetProfiles `json:"targetProfiles"`
	SeedArtistID          string         `json:"seedArtistId"`
	SeedArtistName        string         `json:"seedArtistName"`
	CurrentTrack          music.Track    `json:"currentTrack"`
	RelatedArtistIDs      []string       `json:"relatedArtistIds"`
	UpdatedGravities      gravity.Map    `json:"updatedGravities"`
	ExplorationPhase      gravity.Phase  `json:"explorationPhase"`
	HardConvergenceActive bool           `json:"hardConvergenceActive"`
	OGDrift               float64        `json:"ogDrift"`
	Debug                 InitDebug      `json:"debug"`
}

// CandidatesRequest is the input of stage 2 for one chunk of artist ids.
type CandidatesRequest struct {
	ArtistIDs       []string `json:"artistIds" validate:"max=50,dive,required"`
	PlayedTrackIDs  []string `json:"playedTrackIds"`
	CurrentArtistID string   `json:"currentArtistId"`
	CurrentTrackID  string   `json:"currentTrackId,omitempty"`
}

// CandidatesDebug is stage 2 instrumentation.
type CandidatesDebug struct {
	RequestID    string           `json:"requestId"`
	DurationMs   int64            `json:"durationMs"`
	Fetch        seeds.FetchStats `json:"fetch"`
	Profiles     profiles.Stats   `json:"profiles"`
	HitRatio     float64          `json:"cacheHitRatio"`
	Tiers        []string         `json:"tiers,omitempty"`
	DeadlineNear bool             `json:"deadlineNear,omitempty"`
}

// CandidatesResponse is the output of stage 2.
type CandidatesResponse struct {
	Seeds    []music.CandidateSeed `json:"seeds"`
	Profiles []music.ArtistProfile `json:"profiles"`
	Debug    CandidatesDebug       `json:"debug"`
}

// ScoreRequest is the input of stage 3.
type ScoreRequest struct {
	Seeds            []music.CandidateSeed `json:"seeds" validate:"dive"`
	Profiles         []music.ArtistProfile `json:"profiles"`
	TargetProfiles   TargetProfiles        `json:"targetProfiles"`
	Gravities        gravity.Map           `json:"playerGravities"`
	CurrentTrack     music.Track           `json:"currentTrack"`
	RelatedArtistIDs []string              `json:"relatedArtistIds"`
	Round            int                   `json:"roundNumber" validate:"min=1"`
	CurrentPlayer    music.PlayerID        `json:"currentPlayerId" validate:"required,oneof=player1 player2"`
	OGDrift          float64               `json:"ogDrift" validate:"min=-1,max=1"`
	HardConvergence  bool                  `json:"hardConvergenceActive"`
	PlayedTrackIDs   []string              `json:"playedTrackIds"`
}

// OptionTrack is one presented option.
type OptionTrack struct {
	Track   music.Track                 `json:"track"`
	Artist  music.ArtistProfile         `json:"artist"`
	Metrics music.CandidateTrackMetrics `json:"metrics"`
}

// ScoreDebug is stage 3 instrumentation.
type ScoreDebug struct {
	RequestID  string             `json:"requestId"`
	DurationMs int64              `json:"durationMs"`
	Phase      gravity.Phase      `json:"phase"`
	Inserted   int                `json:"inserted,omitempty"`
	Excluded   int                `json:"excluded,omitempty"`
	Scoring    scoring.Report     `json:"scoring"`
	Strategy   selection.Strategy `json:"strategy"`
	Tolerance  float64            `json:"tolerance"`
	Unique     int                `json:"unique"`
	Balanced   bool               `json:"balanced"`
}

// ScoreResponse is the output of stage 3.
type ScoreResponse struct {
	OptionTracks []OptionTrack `json:"optionTracks"`
	Debug        ScoreDebug    `json:"debug"`
}

// RunDebug describes an in-process run across all stages.
type RunDebug struct {
	RequestID  string `json:"requestId"`
	DurationMs int64  `json:"durationMs"`
	Chunks     int    `json:"chunks"`
	Seeds      int    `json:"seeds"`
	Profiles   int    `json:"profiles"`
	// Fetch and ProfileStats are the sums over all chunks.
	Fetch        seeds.FetchStats `json:"fetch"`
	ProfileStats profiles.Stats   `json:"profileStats"`
	// DeadlineExceeded is set when the budget ran out before scoring began.
	DeadlineExceeded bool `json:"deadlineExceeded,omitempty"`
}

// RunResponse is the output of Run.
type RunResponse struct {
	Init  InitResponse  `json:"init"`
	Score ScoreResponse `json:"score"`
	Debug RunDebug      `json:"debug"`
}
