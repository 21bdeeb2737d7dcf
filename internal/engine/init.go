package engine

import (
	"context"
	"math"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/justestif/go-dual-gravity/internal/deadline"
	"github.com/justestif/go-dual-gravity/internal/gravity"
	"github.com/justestif/go-dual-gravity/internal/logging"
	"github.com/justestif/go-dual-gravity/internal/music"
	"github.com/justestif/go-dual-gravity/internal/scoring"
)

// Init runs stage 1 under its own deadline.
func (e *Engine) Init(ctx context.Context, req InitRequest) (*InitResponse, error) {
	return e.init(ctx, e.deadline(), uuid.NewString(), req)
}

func (e *Engine) init(ctx context.Context, dl deadline.Deadline, requestID string, req InitRequest) (*InitResponse, error) {
	start := e.now()
	current := req.Playback.Track
	seed := current.PrimaryArtist()
	if current.ID == "" || seed.ID == "" {
		return nil, &StageError{Stage: StageInit, Message: "playback state has no current track"}
	}
	if !req.ActivePlayer.Valid() {
		return nil, &StageError{Stage: StageInit, Message: "unknown active player " + string(req.ActivePlayer)}
	}

	resp := &InitResponse{
		SeedArtistID:   seed.ID,
		SeedArtistName: seed.Name,
		CurrentTrack:   current,
		Debug:          InitDebug{RequestID: requestID},
	}

	targets, err := e.resolveTargets(ctx, req.Targets)
	if err != nil {
		return nil, stageError(StageInit, err)
	}
	resp.TargetProfiles = targets
	for _, p := range []music.PlayerID{music.Player1, music.Player2} {
		if targets.For(p) == nil {
			resp.Debug.UnresolvedTargets = append(resp.Debug.UnresolvedTargets, p)
		}
	}

	found, stats, err := e.deps.Profiles.Lookup(ctx, []string{seed.ID})
	if err != nil {
		return nil, stageError(StageInit, err)
	}
	resp.Debug.Profiles = stats
	var seedProfile *music.ArtistProfile
	if p, ok := found[seed.ID]; ok {
		seedProfile = &p
		if p.Name != "" {
			resp.SeedArtistName = p.Name
		}
	}

	related, source, err := e.relatedIDs(ctx, dl, seed.ID)
	if err != nil {
		return nil, stageError(StageInit, err)
	}
	resp.Debug.RelatedSource = source

	gravities := e.gravity.Clamp(req.Gravities)
	if last := req.LastSelection; last != nil && last.Player.Valid() {
		cat := last.Category
		if cat == "" {
			cat = e.gravity.Classify(last.Attraction, last.BaselineAttraction)
		}
		gravities = e.gravity.Record(gravities, last.Player, cat)
		resp.Debug.SelectionCategory = cat
	}
	resp.UpdatedGravities = gravities

	active := gravities.Get(req.ActivePlayer)
	resp.ExplorationPhase = e.gravity.PhaseFor(req.Round, active)
	resp.HardConvergenceActive = e.gravity.HardConvergence(req.Round)

	rel := make(scoring.Edges)
	rel.Add(seed.ID, related...)
	resp.OGDrift = e.drift(seedProfile, targets, req.ActivePlayer, rel)

	related, err = e.phaseRelated(ctx, dl, resp.ExplorationPhase, targets.For(req.ActivePlayer), seed.ID, related, &resp.Debug)
	if err != nil {
		return nil, stageError(StageInit, err)
	}
	resp.RelatedArtistIDs = related
	resp.Debug.DeadlineHit = dl.Near()
	resp.Debug.DurationMs = elapsedMs(start, e.now)

	logging.Debug().Str("request_id", requestID).Str("seed_artist", seed.ID).
		Int("related", len(related)).Str("phase", string(resp.ExplorationPhase)).
		Float64("og_drift", resp.OGDrift).Msg("engine: init complete")
	return resp, nil
}

// resolveTargets resolves both players' targets concurrently. Unresolvable
// targets stay nil.
func (e *Engine) resolveTargets(ctx context.Context, targets Targets) (TargetProfiles, error) {
	var out TargetProfiles
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := e.deps.Profiles.ResolveTarget(gctx, targets.Player1.Name, targets.Player1.ID)
		out.Player1 = p
		return err
	})
	g.Go(func() error {
		p, err := e.deps.Profiles.ResolveTarget(gctx, targets.Player2.Name, targets.Player2.ID)
		out.Player2 = p
		return err
	})
	if err := g.Wait(); err != nil {
		return TargetProfiles{}, err
	}
	return out, nil
}

// drift is the playing artist's attraction to the active player's target
// minus its attraction to the opponent's, in [-1, 1].
func (e *Engine) drift(seed *music.ArtistProfile, targets TargetProfiles, active music.PlayerID, rel scoring.Relations) float64 {
	w := e.cfg.Scoring.Attraction
	mine := scoring.Attraction(w, seed, targets.For(active), rel)
	theirs := scoring.Attraction(w, seed, targets.For(active.Opponent()), rel)
	return math.Max(-1, math.Min(1, mine-theirs))
}

// phaseRelated adjusts the related-artist list for the phase: the target is
// held back outside convergence, the dead zone also holds back the target's
// related artists, and desperation puts them first.
func (e *Engine) phaseRelated(ctx context.Context, dl deadline.Deadline, phase gravity.Phase, target *music.TargetProfile, seedID string, related []string, debug *InitDebug) ([]string, error) {
	exclude := map[string]struct{}{seedID: {}}
	if target != nil && target.SpotifyID != "" && phase != gravity.PhaseConvergence {
		exclude[target.SpotifyID] = struct{}{}
	}

	var first []string
	if target != nil && target.SpotifyID != "" && (phase == gravity.PhaseDeadZone || phase == gravity.PhaseDesperation) {
		targetRelated, err := e.targetRelated(ctx, dl, target)
		if err != nil {
			return nil, err
		}
		for _, id := range targetRelated {
			if phase == gravity.PhaseDeadZone {
				exclude[id] = struct{}{}
			} else if _, skip := exclude[id]; !skip {
				first = append(first, id)
			}
		}
	}

	out := make([]string, 0, len(first)+len(related))
	seen := make(map[string]struct{}, cap(out))
	for _, id := range append(first, related...) {
		if _, dup := seen[id]; dup || id == "" {
			continue
		}
		seen[id] = struct{}{}
		if _, skip := exclude[id]; skip {
			debug.PhaseExcluded++
			continue
		}
		out = append(out, id)
	}
	debug.PhaseAdded = len(first)
	return out, nil
}

func (e *Engine) targetRelated(ctx context.Context, dl deadline.Deadline, target *music.TargetProfile) ([]string, error) {
	if target == nil || target.SpotifyID == "" {
		return nil, nil
	}
	ids, _, err := e.relatedIDs(ctx, dl, target.SpotifyID)
	if err != nil {
		return nil, err
	}
	if len(ids) > e.cfg.TargetRelatedLimit {
		ids = ids[:e.cfg.TargetRelatedLimit]
	}
	return ids, nil
}
