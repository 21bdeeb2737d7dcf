package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/justestif/go-dual-gravity/internal/deadline"
	"github.com/justestif/go-dual-gravity/internal/gravity"
	"github.com/justestif/go-dual-gravity/internal/logging"
	"github.com/justestif/go-dual-gravity/internal/music"
	"github.com/justestif/go-dual-gravity/internal/scoring"
	"github.com/justestif/go-dual-gravity/internal/seeds"
)

// Score runs stage 3 under its own deadline.
func (e *Engine) Score(ctx context.Context, req ScoreRequest) (*ScoreResponse, error) {
	return e.score(ctx, e.deadline(), uuid.NewString(), req)
}

func (e *Engine) score(ctx context.Context, dl deadline.Deadline, requestID string, req ScoreRequest) (*ScoreResponse, error) {
	start := e.now()
	current := req.CurrentTrack
	if current.ID == "" || current.PrimaryArtist().ID == "" {
		return nil, &StageError{Stage: StageScore, Message: "score request has no current track"}
	}
	if !req.CurrentPlayer.Valid() {
		return nil, &StageError{Stage: StageScore, Message: "unknown current player " + string(req.CurrentPlayer)}
	}
	for _, s := range req.Seeds {
		if !s.Source.Valid() {
			return nil, &StageError{Stage: StageScore, Message: fmt.Sprintf("seed %q has no valid source", s.Track.ID)}
		}
	}

	gravities := e.gravity.Clamp(req.Gravities)
	phase := e.gravity.PhaseFor(req.Round, gravities.Get(req.CurrentPlayer))
	if req.HardConvergence {
		phase = gravity.PhaseConvergence
	}
	debug := ScoreDebug{RequestID: requestID, Phase: phase}

	known := make(map[string]music.ArtistProfile, len(req.Profiles))
	for _, p := range req.Profiles {
		known[p.ID] = p
	}

	target := req.TargetProfiles.For(req.CurrentPlayer)
	inserted, excluded, err := e.phaseSeeds(ctx, dl, phase, target, req)
	if err != nil {
		return nil, stageError(StageScore, err)
	}
	debug.Inserted = len(inserted)
	debug.Excluded = len(excluded)

	seedGenres, err := e.seedGenres(ctx, known, current.PrimaryArtist().ID)
	if err != nil {
		return nil, stageError(StageScore, err)
	}

	metrics, report, err := e.scorer.Score(ctx, dl, scoring.Request{
		Seeds:             mergeSeeds(req.Seeds, inserted),
		Profiles:          known,
		Targets:           req.TargetProfiles.Map(),
		Gravities:         gravities,
		CurrentTrack:      current,
		Round:             req.Round,
		Player:            req.CurrentPlayer,
		OGDrift:           req.OGDrift,
		HardConvergence:   req.HardConvergence,
		RelatedArtistIDs:  req.RelatedArtistIDs,
		PlayedTrackIDs:    req.PlayedTrackIDs,
		ExcludedArtistIDs: excluded,
		SeedGenres:        seedGenres,
	})
	if err != nil {
		logging.Error().Err(err).Str("request_id", requestID).Msg("engine: scoring failed")
		return nil, stageError(StageScore, err)
	}
	debug.Scoring = report

	result := e.selector.Select(metrics, req.Round, req.CurrentPlayer)
	debug.Strategy = result.Strategy
	debug.Tolerance = result.Tolerance
	debug.Unique = result.Unique
	debug.Balanced = result.Balanced(e.selector.Config())

	options := make([]OptionTrack, 0, len(result.Options))
	for _, m := range result.Options {
		artist, ok := known[m.ArtistID]
		if !ok {
			artist = music.ArtistProfile{ID: m.ArtistID, Name: m.ArtistName, Genres: m.ArtistGenres}
		}
		options = append(options, OptionTrack{Track: m.Track, Artist: artist, Metrics: m})
	}

	debug.DurationMs = elapsedMs(start, e.now)
	logging.Debug().Str("request_id", requestID).Int("pool", report.PoolSize).
		Int("options", len(options)).Str("strategy", string(result.Strategy)).
		Str("phase", string(phase)).Msg("engine: score complete")
	return &ScoreResponse{OptionTracks: options, Debug: debug}, nil
}

// phaseSeeds returns the seeds the phase injects and the artists it holds
// back. Convergence injects the target's own top track and tracks from its
// related artists; desperation injects only the related artists' tracks;
// the dead zone holds back the target and its related artists; every other
// phase holds back the target alone.
func (e *Engine) phaseSeeds(ctx context.Context, dl deadline.Deadline, phase gravity.Phase, target *music.TargetProfile, req ScoreRequest) ([]music.CandidateSeed, []string, error) {
	if target == nil || target.SpotifyID == "" {
		return nil, nil, nil
	}

	var related []string
	if phase != gravity.PhaseExploration {
		var err error
		if related, err = e.targetRelated(ctx, dl, target); err != nil {
			return nil, nil, err
		}
	}

	switch phase {
	case gravity.PhaseConvergence:
		own, err := e.topTrackSeeds(ctx, dl, req, []string{target.SpotifyID}, music.SourceTargetInsertion)
		if err != nil {
			return nil, nil, err
		}
		boost, err := e.topTrackSeeds(ctx, dl, req, related, music.SourceTargetBoost)
		if err != nil {
			return nil, nil, err
		}
		return append(own, boost...), nil, nil
	case gravity.PhaseDesperation:
		seedList, err := e.topTrackSeeds(ctx, dl, req, related, music.SourceRelatedArtistInsertion)
		return seedList, []string{target.SpotifyID}, err
	case gravity.PhaseDeadZone:
		return nil, append([]string{target.SpotifyID}, related...), nil
	default:
		return nil, []string{target.SpotifyID}, nil
	}
}

// topTrackSeeds picks one top track per artist and labels it with src.
func (e *Engine) topTrackSeeds(ctx context.Context, dl deadline.Deadline, req ScoreRequest, artistIDs []string, src music.Source) ([]music.CandidateSeed, error) {
	if len(artistIDs) == 0 {
		return nil, nil
	}
	pool := seeds.NewPool(seeds.Exclusions{
		CurrentTrackID:  req.CurrentTrack.ID,
		CurrentArtistID: req.CurrentTrack.PrimaryArtist().ID,
		PlayedTrackIDs:  req.PlayedTrackIDs,
	})
	if _, err := e.deps.Seeds.RelatedTopTracks(ctx, dl, pool, artistIDs); err != nil {
		return nil, err
	}

	out := pool.Seeds()
	for i := range out {
		out[i].Source = src
	}
	return out, nil
}

// seedGenres returns the playing artist's genres for the diversity top-up.
func (e *Engine) seedGenres(ctx context.Context, known map[string]music.ArtistProfile, artistID string) ([]string, error) {
	if p, ok := known[artistID]; ok {
		return p.Genres, nil
	}
	found, _, err := e.deps.Profiles.Lookup(ctx, []string{artistID})
	if err != nil {
		return nil, err
	}
	if p, ok := found[artistID]; ok {
		known[artistID] = p
		return p.Genres, nil
	}
	return nil, nil
}
