package scoring

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/justestif/go-dual-gravity/internal/deadline"
	"github.com/justestif/go-dual-gravity/internal/gravity"
	"github.com/justestif/go-dual-gravity/internal/logging"
	"github.com/justestif/go-dual-gravity/internal/music"
	"github.com/justestif/go-dual-gravity/internal/profiles"
	"github.com/justestif/go-dual-gravity/internal/seeds"
)

// Config tunes the scorer.
type Config struct {
	Similarity Weights `koanf:"similarity"`
	Attraction Weights `koanf:"attraction"`

	// The active player's target is boosted by min(BoostMax, 1 + BoostSlope*g)
	// once gravity g reaches BoostThreshold.
	BoostThreshold float64 `koanf:"boost_threshold"`
	BoostSlope     float64 `koanf:"boost_slope"`
	BoostMax       float64 `koanf:"boost_max"`

	// DriftDamping pulls similarity toward 0.5 in proportion to |ogDrift|.
	DriftDamping float64 `koanf:"drift_damping"`

	// The final score never falls below a fraction of raw similarity:
	// FloorEarly up to round FloorEarlyRound, FloorMid up to FloorMidRound,
	// FloorLate after that.
	FloorEarly      float64 `koanf:"floor_early"`
	FloorEarlyRound int     `koanf:"floor_early_round"`
	FloorMid        float64 `koanf:"floor_mid"`
	FloorMidRound   int     `koanf:"floor_mid_round"`
	FloorLate       float64 `koanf:"floor_late"`

	// RoundMultiplier scales how much gravity counts as rounds pass.
	RoundMultiplier float64 `koanf:"round_multiplier"`

	// A pool smaller than MinPool or spanning fewer than MinUniqueArtists
	// artists is topped up, blocking, before scoring.
	MinPool          int `koanf:"min_pool"`
	MinUniqueArtists int `koanf:"min_unique_artists"`
}

// DefaultConfig returns the default scorer configuration.
func DefaultConfig() Config {
	return Config{
		Similarity:       DefaultSimilarityWeights(),
		Attraction:       DefaultAttractionWeights(),
		BoostThreshold:   0.35,
		BoostSlope:       2,
		BoostMax:         3,
		DriftDamping:     0.3,
		FloorEarly:       0.40,
		FloorEarlyRound:  2,
		FloorMid:         0.15,
		FloorMidRound:    5,
		FloorLate:        0.05,
		RoundMultiplier:  0.7,
		MinPool:          50,
		MinUniqueArtists: 20,
	}
}

// Validate checks that both weight sets sum to one.
func (c Config) Validate() error {
	for name, w := range map[string]Weights{"similarity": c.Similarity, "attraction": c.Attraction} {
		if math.Abs(w.Sum()-1) > 1e-6 {
			return fmt.Errorf("%s weights sum to %v, want 1", name, w.Sum())
		}
	}
	if c.BoostMax < 1 {
		return fmt.Errorf("boost max %v must be at least 1", c.BoostMax)
	}
	if c.MinPool < 0 || c.MinUniqueArtists < 0 {
		return fmt.Errorf("pool minimums %d/%d must not be negative", c.MinPool, c.MinUniqueArtists)
	}
	return nil
}

// GravityScore is gravity times attraction, boosted for the active player's
// target once gravity crosses the threshold.
func (c Config) GravityScore(g, attraction float64, isTarget bool) float64 {
	score := g * attraction
	if isTarget && g >= c.BoostThreshold {
		score *= math.Min(c.BoostMax, 1+c.BoostSlope*g)
	}
	return score
}

// Stabilize damps similarity toward 0.5 by the playing track's drift
// between the two targets.
func (c Config) Stabilize(sim, ogDrift float64) float64 {
	d := c.DriftDamping * math.Min(1, math.Abs(ogDrift))
	return sim*(1-d) + 0.5*d
}

// Floor returns the fraction of raw similarity the final score keeps in round.
func (c Config) Floor(round int) float64 {
	switch {
	case round <= c.FloorEarlyRound:
		return c.FloorEarly
	case round <= c.FloorMidRound:
		return c.FloorMid
	default:
		return c.FloorLate
	}
}

// FinalScore blends the stabilised similarity with the gravity score and
// clamps the result to [0,1].
func (c Config) FinalScore(sim, ogDrift, gravityScore float64, round int) float64 {
	stabilized := c.Stabilize(sim, ogDrift)
	weighted := stabilized * (0.5 + gravityScore*(0.5+c.RoundMultiplier*float64(round)))
	return clamp01(math.Max(weighted, c.Floor(round)*sim))
}

// ProfileSource resolves artist profiles.
type ProfileSource interface {
	Lookup(ctx context.Context, ids []string) (map[string]music.ArtistProfile, profiles.Stats, error)
}

// PoolCompleter runs the seed fallback chain on a pool.
type PoolCompleter interface {
	Complete(ctx context.Context, dl deadline.Deadline, pool *seeds.Pool, req seeds.Request) (seeds.Report, error)
}

// Request is the input of one scoring pass.
type Request struct {
	Seeds    []music.CandidateSeed
	Profiles map[string]music.ArtistProfile
	Targets  map[music.PlayerID]*music.TargetProfile

	Gravities       gravity.Map
	CurrentTrack    music.Track
	Round           int
	Player          music.PlayerID
	OGDrift         float64
	HardConvergence bool

	RelatedArtistIDs  []string
	PlayedTrackIDs    []string
	ExcludedArtistIDs []string
	SeedGenres        []string
}

// Report describes a scoring pass.
type Report struct {
	PoolSize       int            `json:"poolSize"`
	UniqueArtists  int            `json:"uniqueArtists"`
	ToppedUp       bool           `json:"toppedUp"`
	TopUp          *seeds.Report  `json:"topUp,omitempty"`
	ProfileStats   profiles.Stats `json:"profileStats"`
	MissingProfile int            `json:"missingProfile"`
	Baseline       float64        `json:"baseline"`
}

// Scorer ranks candidate pools.
type Scorer struct {
	cfg       Config
	profiles  ProfileSource
	completer PoolCompleter
}

// NewScorer creates a Scorer. source and completer may be nil, in which
// case missing profiles stay missing and no diversity top-up happens.
func NewScorer(cfg Config, source ProfileSource, completer PoolCompleter) (*Scorer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{cfg: cfg, profiles: source, completer: completer}, nil
}

// Config returns the scorer configuration.
func (s *Scorer) Config() Config {
	return s.cfg
}

// Score re-applies the pool exclusions to req.Seeds, tops the pool up when
// it is below either minimum, and scores every candidate against the
// playing track and both targets. The result is sorted by final score, ties
// broken by track id.
func (s *Scorer) Score(ctx context.Context, dl deadline.Deadline, req Request) ([]music.CandidateTrackMetrics, Report, error) {
	var report Report

	ex := seeds.Exclusions{
		CurrentTrackID:    req.CurrentTrack.ID,
		CurrentArtistID:   req.CurrentTrack.PrimaryArtist().ID,
		PlayedTrackIDs:    req.PlayedTrackIDs,
		ExcludedArtistIDs: req.ExcludedArtistIDs,
	}
	pool := seeds.NewPool(ex)
	pool.Merge(req.Seeds)

	cons := seeds.Constraints{MinPool: s.cfg.MinPool, MinUniqueArtists: s.cfg.MinUniqueArtists}
	if !cons.Satisfied(pool) && s.completer != nil {
		topUp, err := s.completer.Complete(ctx, dl, pool, seeds.Request{
			SeedArtistID: ex.CurrentArtistID,
			SeedGenres:   req.SeedGenres,
			Exclusions:   ex,
			Constraints:  cons,
		})
		if err != nil {
			return nil, report, fmt.Errorf("diversity top-up: %w", err)
		}
		report.ToppedUp = true
		report.TopUp = &topUp
	}
	report.PoolSize = pool.Len()
	report.UniqueArtists = pool.UniqueArtists()

	profs, stats, err := s.completeProfiles(ctx, req.Profiles, pool.ArtistIDs(), ex.CurrentArtistID)
	if err != nil {
		return nil, report, err
	}
	report.ProfileStats = stats

	rel := make(Edges)
	rel.Add(ex.CurrentArtistID, req.RelatedArtistIDs...)

	current := Subject{Track: req.CurrentTrack, Artist: lookup(profs, ex.CurrentArtistID)}
	active := req.Targets[req.Player]
	baseline := Attraction(s.cfg.Attraction, current.Artist, active, rel)
	report.Baseline = baseline
	g := req.Gravities.Get(req.Player)

	out := make([]music.CandidateTrackMetrics, 0, pool.Len())
	for _, seed := range pool.Seeds() {
		ref := seed.Track.PrimaryArtist()
		artist := lookup(profs, ref.ID)
		if artist == nil {
			report.MissingProfile++
		}

		sim, comps := Similarity(s.cfg.Similarity, current, Subject{Artist: artist, Track: seed.Track}, rel)
		a := Attraction(s.cfg.Attraction, artist, req.Targets[music.Player1], rel)
		b := Attraction(s.cfg.Attraction, artist, req.Targets[music.Player2], rel)
		isTarget := active != nil && active.Matches(ref.ID, ref.Name)

		attraction := a
		if req.Player == music.Player2 {
			attraction = b
		}
		gs := s.cfg.GravityScore(g, attraction, isTarget)

		m := music.CandidateTrackMetrics{
			Track:                 seed.Track,
			Source:                seed.Source,
			ArtistID:              ref.ID,
			ArtistName:            ref.Name,
			SimScore:              sim,
			Components:            comps,
			AAttraction:           a,
			BAttraction:           b,
			GravityScore:          gs,
			StabilizedScore:       s.cfg.Stabilize(sim, req.OGDrift),
			FinalScore:            s.cfg.FinalScore(sim, req.OGDrift, gs, req.Round),
			PopularityBand:        band(artist, seed.Track),
			CurrentSongAttraction: baseline,
			IsTarget:              isTarget,
		}
		if artist != nil {
			m.ArtistGenres = artist.Genres
			if artist.Name != "" {
				m.ArtistName = artist.Name
			}
		}
		out = append(out, m)
	}

	Sort(out)
	return out, report, nil
}

// completeProfiles fills in profiles for any artist in ids not already in
// known. Lookup failures other than cancellation leave the profiles missing.
func (s *Scorer) completeProfiles(ctx context.Context, known map[string]music.ArtistProfile, ids []string, currentArtistID string) (map[string]music.ArtistProfile, profiles.Stats, error) {
	out := make(map[string]music.ArtistProfile, len(known)+len(ids)+1)
	for id, p := range known {
		out[id] = p
	}

	var missing []string
	seen := make(map[string]struct{}, len(ids)+1)
	for _, id := range append([]string{currentArtistID}, ids...) {
		if _, ok := out[id]; ok || id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		missing = append(missing, id)
	}
	if len(missing) == 0 || s.profiles == nil {
		return out, profiles.Stats{}, nil
	}

	found, stats, err := s.profiles.Lookup(ctx, missing)
	if err != nil {
		if ctx.Err() != nil {
			return nil, stats, ctx.Err()
		}
		logging.Warn().Err(err).Int("artists", len(missing)).Msg("scoring: profile lookup failed")
		return out, stats, nil
	}
	for id, p := range found {
		out[id] = p
	}
	return out, stats, nil
}

func lookup(profs map[string]music.ArtistProfile, id string) *music.ArtistProfile {
	if p, ok := profs[id]; ok {
		return &p
	}
	return nil
}

func band(artist *music.ArtistProfile, t music.Track) music.PopularityBand {
	if artist != nil && artist.Popularity != nil {
		return music.BandFor(*artist.Popularity)
	}
	return music.BandFor(t.Popularity)
}

// Sort orders metrics by final score descending, ties by track id.
func Sort(metrics []music.CandidateTrackMetrics) {
	sort.SliceStable(metrics, func(i, j int) bool {
		if metrics[i].FinalScore != metrics[j].FinalScore {
			return metrics[i].FinalScore > metrics[j].FinalScore
		}
		return metrics[i].Track.ID < metrics[j].Track.ID
	})
}
