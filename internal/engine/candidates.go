package engine

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/justestif/go-dual-gravity/internal/deadline"
	"github.com/justestif/go-dual-gravity/internal/music"
	"github.com/justestif/go-dual-gravity/internal/profiles"
	"github.com/justestif/go-dual-gravity/internal/seeds"
)

// Candidates runs stage 2 for one chunk under its own deadline.
func (e *Engine) Candidates(ctx context.Context, req CandidatesRequest) (*CandidatesResponse, error) {
	return e.candidates(ctx, e.deadline(), uuid.NewString(), req)
}

// candidates picks one top track per artist in the chunk and resolves the
// chunk's profiles, both concurrently.
func (e *Engine) candidates(ctx context.Context, dl deadline.Deadline, requestID string, req CandidatesRequest) (*CandidatesResponse, error) {
	start := e.now()
	pool := seeds.NewPool(seeds.Exclusions{
		CurrentTrackID:  req.CurrentTrackID,
		CurrentArtistID: req.CurrentArtistID,
		PlayedTrackIDs:  req.PlayedTrackIDs,
	})

	var (
		fetch seeds.FetchStats
		found map[string]music.ArtistProfile
		stats profiles.Stats
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		fetch, err = e.deps.Seeds.RelatedTopTracks(gctx, dl, pool, req.ArtistIDs)
		return err
	})
	g.Go(func() error {
		var err error
		found, stats, err = e.deps.Profiles.Lookup(gctx, req.ArtistIDs)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, stageError(StageCandidates, err)
	}

	resp := &CandidatesResponse{
		Seeds:    pool.Seeds(),
		Profiles: sortedProfiles(found),
		Debug: CandidatesDebug{
			RequestID:    requestID,
			Fetch:        fetch,
			Profiles:     stats,
			HitRatio:     stats.HitRatio(),
			Tiers:        stats.Tiers(),
			DeadlineNear: dl.Near(),
		},
	}
	resp.Debug.DurationMs = elapsedMs(start, e.now)
	return resp, nil
}

func sortedProfiles(m map[string]music.ArtistProfile) []music.ArtistProfile {
	out := make([]music.ArtistProfile, 0, len(m))
	for _, p := range m {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// mergeSeeds is the set union of seed lists keyed by track id, keeping the
// higher-priority source. The result is ordered by track id, so it does not
// depend on the order of the inputs.
func mergeSeeds(lists ...[]music.CandidateSeed) []music.CandidateSeed {
	byID := make(map[string]music.CandidateSeed)
	for _, list := range lists {
		for _, s := range list {
			if existing, ok := byID[s.Track.ID]; ok && existing.Source.Priority() >= s.Source.Priority() {
				continue
			}
			byID[s.Track.ID] = s
		}
	}
	out := make([]music.CandidateSeed, 0, len(byID))
	for _, s := range byID {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Track.ID < out[j].Track.ID })
	return out
}

// mergeProfiles dedupes profiles by id. On a conflict the profile with more
// genres wins, then the lexically larger name, so the result is
// order-independent.
func mergeProfiles(lists ...[]music.ArtistProfile) []music.ArtistProfile {
	byID := make(map[string]music.ArtistProfile)
	for _, list := range lists {
		for _, p := range list {
			if existing, ok := byID[p.ID]; ok && !richer(p, existing) {
				continue
			}
			byID[p.ID] = p
		}
	}
	return sortedProfiles(byID)
}

func richer(a, b music.ArtistProfile) bool {
	if len(a.Genres) != len(b.Genres) {
		return len(a.Genres) > len(b.Genres)
	}
	if (a.Popularity != nil) != (b.Popularity != nil) {
		return a.Popularity != nil
	}
	return a.Name > b.Name
}
