package engine

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/justestif/go-dual-gravity/internal/logging"
	"github.com/justestif/go-dual-gravity/internal/music"
	"github.com/justestif/go-dual-gravity/internal/profiles"
	"github.com/justestif/go-dual-gravity/internal/seeds"
)

// Progress labels.
const (
	ProgressInit       = "init"
	ProgressCandidates = "candidates"
	ProgressScoring    = "scoring"
	ProgressFinalize   = "finalize"
)

// ProgressFunc observes coarse milestones of a Run. It never affects
// control flow and may be called from several goroutines, one at a time.
type ProgressFunc func(stage string, percent int)

// Run executes all three stages in process under one deadline: Init, then
// Candidates for every chunk of related artists in parallel, then Score on
// the merged pool.
func (e *Engine) Run(ctx context.Context, req InitRequest, progress ProgressFunc) (*RunResponse, error) {
	start := e.now()
	dl := e.deadline()
	requestID := uuid.NewString()

	var mu sync.Mutex
	report := func(stage string, percent int) {
		if progress == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		progress(stage, percent)
	}

	initResp, err := e.init(ctx, dl, requestID, req)
	if err != nil {
		return nil, err
	}
	report(ProgressInit, 10)

	chunks := chunk(initResp.RelatedArtistIDs, e.cfg.ChunkSize)
	results := make([]*CandidatesResponse, len(chunks))
	var done int
	chunkDone := func() {
		mu.Lock()
		defer mu.Unlock()
		done++
		if progress != nil {
			progress(ProgressCandidates, 10+70*done/len(chunks))
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.ChunkConcurrency)
	for i, ids := range chunks {
		g.Go(func() error {
			resp, err := e.candidates(gctx, dl, requestID, CandidatesRequest{
				ArtistIDs:       ids,
				PlayedTrackIDs:  req.PlayedTrackIDs,
				CurrentArtistID: initResp.SeedArtistID,
				CurrentTrackID:  initResp.CurrentTrack.ID,
			})
			if err != nil {
				return err
			}
			results[i] = resp
			chunkDone()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, stageError(StageCandidates, err)
	}

	mergedSeeds, mergedProfiles, fetch, stats := Merge(results...)
	debug := RunDebug{
		RequestID:    requestID,
		Chunks:       len(chunks),
		Seeds:        len(mergedSeeds),
		Profiles:     len(mergedProfiles),
		Fetch:        fetch,
		ProfileStats: stats,
	}
	if dl.Exceeded() {
		debug.DeadlineExceeded = true
		logging.Warn().Str("request_id", requestID).Dur("elapsed", dl.Elapsed()).
			Int("seeds", len(mergedSeeds)).Msg("engine: deadline exceeded before scoring")
	}
	report(ProgressScoring, 80)

	scoreResp, err := e.score(ctx, dl, requestID, ScoreRequest{
		Seeds:            mergedSeeds,
		Profiles:         mergedProfiles,
		TargetProfiles:   initResp.TargetProfiles,
		Gravities:        initResp.UpdatedGravities,
		CurrentTrack:     initResp.CurrentTrack,
		RelatedArtistIDs: initResp.RelatedArtistIDs,
		Round:            req.Round,
		CurrentPlayer:    req.ActivePlayer,
		OGDrift:          initResp.OGDrift,
		HardConvergence:  initResp.HardConvergenceActive,
		PlayedTrackIDs:   req.PlayedTrackIDs,
	})
	if err != nil {
		return nil, err
	}
	report(ProgressFinalize, 100)

	debug.DurationMs = elapsedMs(start, e.now)
	return &RunResponse{Init: *initResp, Score: *scoreResp, Debug: debug}, nil
}

func chunk(ids []string, size int) [][]string {
	var out [][]string
	for len(ids) > 0 {
		n := min(size, len(ids))
		out = append(out, ids[:n:n])
		ids = ids[n:]
	}
	return out
}

// Merge combines stage 2 responses: seeds by set union, profiles deduped by
// id, stats summed. The result does not depend on response order.
func Merge(responses ...*CandidatesResponse) (seedList []music.CandidateSeed, profileList []music.ArtistProfile, fetch seeds.FetchStats, stats profiles.Stats) {
	seedLists := make([][]music.CandidateSeed, 0, len(responses))
	profileLists := make([][]music.ArtistProfile, 0, len(responses))
	for _, r := range responses {
		if r == nil {
			continue
		}
		seedLists = append(seedLists, r.Seeds)
		profileLists = append(profileLists, r.Profiles)
		fetch = fetch.Merge(r.Debug.Fetch)
		stats = stats.Merge(r.Debug.Profiles)
	}
	return mergeSeeds(seedLists...), mergeProfiles(profileLists...), fetch, stats
}
