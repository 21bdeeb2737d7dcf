// Package seeds builds the candidate pool for a selection: one random top
// track per related artist, then an ordered chain of fallback strategies
// until the pool is large and diverse enough.
package seeds

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/justestif/go-dual-gravity/internal/clustering"
	"github.com/justestif/go-dual-gravity/internal/db"
	"github.com/justestif/go-dual-gravity/internal/deadline"
	"github.com/justestif/go-dual-gravity/internal/logging"
	"github.com/justestif/go-dual-gravity/internal/music"
	"github.com/justestif/go-dual-gravity/internal/worker"
)

// ErrEmptyStore means the durable store holds no tracks at all, so no
// fallback can ever fill a pool. It is a configuration error.
var ErrEmptyStore = errors.New("track store is empty")

// JobSaveTopTracks is the kind of the write-back job for fetched top tracks.
const JobSaveTopTracks = "top_tracks_writeback"

// Store is the durable track tier.
type Store interface {
	TopTracks(ctx context.Context, artistIDs []string) (map[string][]music.Track, error)
	SaveTopTracks(ctx context.Context, artistID string, tracks []music.Track) error
	TracksByArtists(ctx context.Context, artistIDs []string, perArtist int) ([]music.Track, error)
	SampleTracks(ctx context.Context, q db.SampleQuery) ([]music.Track, error)
	CountTracks(ctx context.Context) (int, error)
	ArtistsWithGenres(ctx context.Context, limit int) ([]music.ArtistProfile, error)
}

// Catalog is the external track API.
type Catalog interface {
	TopTracks(ctx context.Context, artistID string) ([]music.Track, error)
	SearchTracksByGenre(ctx context.Context, genre string, limit int) ([]music.Track, error)
}

// Queue accepts background jobs without blocking.
type Queue interface {
	Submit(job worker.Job) bool
}

// Config tunes pool building.
type Config struct {
	MinPool            int               `koanf:"min_pool"`
	MinUniqueArtists   int               `koanf:"min_unique_artists"`
	TopTracksPerArtist int               `koanf:"top_tracks_per_artist"`
	MaxCatalogFetches  int               `koanf:"max_catalog_fetches"`
	FetchConcurrency   int               `koanf:"fetch_concurrency"`
	MaxSeedGenres      int               `koanf:"max_seed_genres"`
	GenreSearchLimit   int               `koanf:"genre_search_limit"`
	EmbeddingArtists   int               `koanf:"embedding_artists"`
	EmbeddingPerArtist int               `koanf:"embedding_per_artist"`
	Clustering         clustering.Config `koanf:"clustering"`
}

// DefaultConfig returns the default pool configuration.
func DefaultConfig() Config {
	return Config{
		MinPool:            50,
		MinUniqueArtists:   20,
		TopTracksPerArtist: 10,
		MaxCatalogFetches:  10,
		FetchConcurrency:   5,
		MaxSeedGenres:      3,
		GenreSearchLimit:   20,
		EmbeddingArtists:   40,
		EmbeddingPerArtist: 2,
		Clustering:         clustering.DefaultConfig(),
	}
}

// Request describes the pool to build.
type Request struct {
	SeedArtistID     string
	SeedGenres       []string
	RelatedArtistIDs []string
	Exclusions       Exclusions
	// Constraints override the configured minimums when non-zero.
	Constraints Constraints
}

// Builder assembles candidate pools. It is safe for concurrent use.
type Builder struct {
	cfg        Config
	store      Store
	catalog    Catalog
	queue      Queue
	strategies []Strategy

	mu  sync.Mutex
	rng *rand.Rand
}

// Option configures a Builder.
type Option func(*Builder)

// WithConfig overrides the default configuration.
func WithConfig(cfg Config) Option {
	return func(b *Builder) { b.cfg = cfg }
}

// WithRand sets the random source used to pick tracks.
func WithRand(rng *rand.Rand) Option {
	return func(b *Builder) {
		if rng != nil {
			b.rng = rng
		}
	}
}

// WithStrategies replaces the default fallback chain.
func WithStrategies(strategies ...Strategy) Option {
	return func(b *Builder) { b.strategies = strategies }
}

// NewBuilder creates a Builder. catalog and queue may be nil: without a
// catalog only stored data is used, without a queue fetched lists are not
// written back.
func NewBuilder(store Store, catalog Catalog, queue Queue, opts ...Option) *Builder {
	b := &Builder{
		cfg:     DefaultConfig(),
		store:   store,
		catalog: catalog,
		queue:   queue,
		rng:     rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.strategies == nil {
		b.strategies = DefaultStrategies(store, catalog, b.cfg)
	}
	return b
}

// Config returns the builder configuration.
func (b *Builder) Config() Config {
	return b.cfg
}

// Build runs the related-top-tracks stage followed by the fallback chain.
func (b *Builder) Build(ctx context.Context, dl deadline.Deadline, req Request) (*Pool, Report, error) {
	pool := NewPool(req.Exclusions)

	fetch, err := b.RelatedTopTracks(ctx, dl, pool, req.RelatedArtistIDs)
	if err != nil {
		return nil, Report{}, err
	}

	report, err := b.Complete(ctx, dl, pool, req)
	report.Fetch = fetch
	if err != nil {
		return nil, report, err
	}
	return pool, report, nil
}

// Complete runs the fallback chain on an existing pool until the
// constraints hold or every strategy has run. Once the deadline is near only
// fast strategies run.
func (b *Builder) Complete(ctx context.Context, dl deadline.Deadline, pool *Pool, req Request) (Report, error) {
	cons := b.constraints(req)
	var report Report
	if dl.Exceeded() {
		report.DeadlineExceeded = true
		report.DeadlineHit = true
		logging.Warn().Dur("elapsed", dl.Elapsed()).Int("pool", pool.Len()).
			Msg("seeds: deadline exceeded, running fast strategies only")
	}

	for _, s := range b.strategies {
		if cons.Satisfied(pool) {
			break
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}

		run := StrategyRun{Name: s.Name()}
		if !s.Fast() && dl.Near() {
			run.Skipped = true
			report.DeadlineHit = true
			report.Strategies = append(report.Strategies, run)
			logging.Warn().Str("strategy", s.Name()).Dur("elapsed", dl.Elapsed()).
				Msg("seeds: deadline near, skipping slow strategy")
			continue
		}

		before := pool.Len()
		err := s.Run(ctx, pool, req, cons)
		run.Added = pool.Len() - before
		run.Satisfied = cons.Satisfied(pool)
		if err != nil {
			if errors.Is(err, ErrEmptyStore) {
				report.Strategies = append(report.Strategies, run)
				return report, err
			}
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			run.Error = err.Error()
			logging.Warn().Err(err).Str("strategy", s.Name()).Msg("seeds: strategy failed")
		}
		report.Strategies = append(report.Strategies, run)
	}

	if !cons.Satisfied(pool) {
		logging.Warn().Int("pool", pool.Len()).Int("artists", pool.UniqueArtists()).
			Int("min_pool", cons.MinPool).Int("min_artists", cons.MinUniqueArtists).
			Msg("seeds: pool below minimum after every strategy")
	}
	return report, nil
}

// RelatedTopTracks adds one random valid top track per related artist.
// Cached lists are read in bulk; artists missing from the store are fetched
// from the catalog in parallel, up to the per-request cap, and written back
// in the background. Artists whose fetch fails are skipped.
func (b *Builder) RelatedTopTracks(ctx context.Context, dl deadline.Deadline, pool *Pool, artistIDs []string) (FetchStats, error) {
	ids := make([]string, 0, len(artistIDs))
	seen := make(map[string]struct{}, len(artistIDs))
	for _, id := range artistIDs {
		if _, dup := seen[id]; dup || !pool.ArtistAllowed(id) {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	stats := FetchStats{Artists: len(ids)}
	if len(ids) == 0 {
		return stats, nil
	}

	lists, err := b.store.TopTracks(ctx, ids)
	if err != nil {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		logging.Warn().Err(err).Int("artists", len(ids)).Msg("seeds: top track store lookup failed")
		lists = map[string][]music.Track{}
	}
	stats.StoreHits = len(lists)

	var missing []string
	for _, id := range ids {
		if _, ok := lists[id]; !ok {
			missing = append(missing, id)
		}
	}

	toFetch := missing
	switch {
	case b.catalog == nil || dl.Near():
		toFetch = nil
	case len(toFetch) > b.cfg.MaxCatalogFetches:
		toFetch = toFetch[:b.cfg.MaxCatalogFetches]
	}
	stats.CapSkipped = len(missing) - len(toFetch)

	if len(toFetch) > 0 {
		fetched, failures := b.fetchTopTracks(ctx, toFetch)
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Fetched = len(fetched)
		stats.FetchFailures = failures
		for id, tracks := range fetched {
			lists[id] = tracks
		}
	}

	before := pool.Len()
	for _, id := range ids {
		if t, ok := b.pickTrack(pool, lists[id]); ok {
			pool.Add(t, music.SourceRelatedTopTracks)
		}
	}
	stats.Added = pool.Len() - before
	return stats, nil
}

func (b *Builder) fetchTopTracks(ctx context.Context, ids []string) (map[string][]music.Track, int) {
	var (
		mu       sync.Mutex
		fetched  = make(map[string][]music.Track, len(ids))
		failures int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, b.cfg.FetchConcurrency))
	for _, id := range ids {
		g.Go(func() error {
			tracks, err := b.catalog.TopTracks(gctx, id)
			if err != nil {
				logging.Warn().Err(err).Str("artist_id", id).Msg("seeds: top tracks fetch failed, excluding artist")
				mu.Lock()
				failures++
				mu.Unlock()
				return nil
			}
			mu.Lock()
			fetched[id] = tracks
			mu.Unlock()
			b.enqueueSave(id, tracks)
			return nil
		})
	}
	_ = g.Wait()
	return fetched, failures
}

func (b *Builder) enqueueSave(artistID string, tracks []music.Track) {
	if b.queue == nil || len(tracks) == 0 {
		return
	}
	b.queue.Submit(worker.Job{
		Kind: JobSaveTopTracks,
		Key:  artistID,
		Run: func(ctx context.Context) error {
			return b.store.SaveTopTracks(ctx, artistID, tracks)
		},
	})
}

// pickTrack chooses uniformly among the first TopTracksPerArtist tracks
// the pool would admit.
func (b *Builder) pickTrack(pool *Pool, tracks []music.Track) (music.Track, bool) {
	valid := make([]music.Track, 0, b.cfg.TopTracksPerArtist)
	for _, t := range tracks {
		if len(valid) == b.cfg.TopTracksPerArtist {
			break
		}
		if pool.Allows(t) && !pool.Has(t.ID) {
			valid = append(valid, t)
		}
	}
	if len(valid) == 0 {
		return music.Track{}, false
	}
	return valid[b.intN(len(valid))], true
}

func (b *Builder) intN(n int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rng.IntN(n)
}

func (b *Builder) constraints(req Request) Constraints {
	cons := req.Constraints
	if cons.MinPool <= 0 {
		cons.MinPool = b.cfg.MinPool
	}
	if cons.MinUniqueArtists <= 0 {
		cons.MinUniqueArtists = b.cfg.MinUniqueArtists
	}
	return cons
}
