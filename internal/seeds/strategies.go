package seeds

import (
	"context"
	"errors"
	"fmt"

	"github.com/justestif/go-dual-gravity/internal/clustering"
	"github.com/justestif/go-dual-gravity/internal/db"
	"github.com/justestif/go-dual-gravity/internal/logging"
	"github.com/justestif/go-dual-gravity/internal/music"
)

// Strategy is one rung of the fallback ladder. Run adds what it can to the
// pool; the chain checks the constraints between rungs.
type Strategy interface {
	Name() string
	// Fast strategies only touch the durable store and still run once the
	// deadline is near.
	Fast() bool
	Run(ctx context.Context, pool *Pool, req Request, cons Constraints) error
}

// Strategy names.
const (
	StrategyGenreSearch    = "genre-search"
	StrategyGenreEmbedding = "genre-embedding"
	StrategyStoreSample    = "store-sample"
	StrategyAbsolute       = "absolute"
)

// DefaultStrategies returns the standard chain: catalog genre search, genre
// embedding neighbours, a diverse store sample, then the absolute fallback.
// The genre search is left out when there is no catalog.
func DefaultStrategies(store Store, catalog Catalog, cfg Config) []Strategy {
	var out []Strategy
	if catalog != nil {
		out = append(out, &genreSearch{catalog: catalog, cfg: cfg})
	}
	return append(out,
		&genreEmbedding{store: store, cfg: cfg},
		&storeSample{store: store},
		&absolute{store: store},
	)
}

type genreSearch struct {
	catalog Catalog
	cfg     Config
}

func (s *genreSearch) Name() string { return StrategyGenreSearch }
func (s *genreSearch) Fast() bool   { return false }

func (s *genreSearch) Run(ctx context.Context, pool *Pool, req Request, cons Constraints) error {
	searched := 0
	for _, genre := range req.SeedGenres {
		if searched == s.cfg.MaxSeedGenres || cons.Satisfied(pool) {
			break
		}
		if genre == "" {
			continue
		}
		searched++

		tracks, err := s.catalog.SearchTracksByGenre(ctx, genre, s.cfg.GenreSearchLimit)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logging.Warn().Err(err).Str("genre", genre).Msg("seeds: genre search failed")
			continue
		}
		for _, t := range tracks {
			pool.Add(t, music.SourceRecommendations)
		}
	}
	return nil
}

type genreEmbedding struct {
	store Store
	cfg   Config
}

func (s *genreEmbedding) Name() string { return StrategyGenreEmbedding }
func (s *genreEmbedding) Fast() bool   { return true }

func (s *genreEmbedding) Run(ctx context.Context, pool *Pool, req Request, cons Constraints) error {
	if len(req.SeedGenres) == 0 {
		return nil
	}

	artists, err := s.store.ArtistsWithGenres(ctx, s.cfg.Clustering.MaxArtists)
	if err != nil {
		return fmt.Errorf("loading artists for embedding: %w", err)
	}
	neighbors, err := clustering.Neighbors(req.SeedGenres, artists, s.cfg.Clustering)
	if errors.Is(err, clustering.ErrNoEmbedding) {
		return nil
	}
	if err != nil {
		return err
	}

	ids := make([]string, 0, s.cfg.EmbeddingArtists)
	for _, a := range neighbors {
		if len(ids) == s.cfg.EmbeddingArtists {
			break
		}
		if a.ID == req.SeedArtistID || pool.HasArtist(a.ID) || !pool.ArtistAllowed(a.ID) {
			continue
		}
		ids = append(ids, a.ID)
	}
	if len(ids) == 0 {
		return nil
	}

	tracks, err := s.store.TracksByArtists(ctx, ids, s.cfg.EmbeddingPerArtist)
	if err != nil {
		return fmt.Errorf("loading embedding neighbour tracks: %w", err)
	}
	for _, t := range tracks {
		pool.Add(t, music.SourceEmbeddingFallback)
	}
	return nil
}

// storeSample adds one random stored track per artist not yet in the pool.
type storeSample struct {
	store Store
}

func (s *storeSample) Name() string { return StrategyStoreSample }
func (s *storeSample) Fast() bool   { return true }

func (s *storeSample) Run(ctx context.Context, pool *Pool, req Request, cons Constraints) error {
	exclude := append(pool.blockedArtistIDs(), pool.ArtistIDs()...)
	tracks, err := s.store.SampleTracks(ctx, db.SampleQuery{
		Limit:            max(cons.MinPool, cons.MinUniqueArtists),
		ExcludeArtistIDs: exclude,
		ExcludeTrackIDs:  pool.blockedTrackIDs(),
		OnePerArtist:     true,
	})
	if err != nil {
		return fmt.Errorf("sampling stored tracks: %w", err)
	}
	for _, t := range tracks {
		pool.Add(t, music.SourceEmbeddingFallback)
	}
	return nil
}

// absolute samples any eligible stored tracks. It fails only when the store
// has no tracks at all.
type absolute struct {
	store Store
}

func (s *absolute) Name() string { return StrategyAbsolute }
func (s *absolute) Fast() bool   { return true }

func (s *absolute) Run(ctx context.Context, pool *Pool, req Request, cons Constraints) error {
	n, err := s.store.CountTracks(ctx)
	if err != nil {
		return fmt.Errorf("counting stored tracks: %w", err)
	}
	if n == 0 {
		return ErrEmptyStore
	}

	tracks, err := s.store.SampleTracks(ctx, db.SampleQuery{
		Limit:            2 * cons.MinPool,
		ExcludeArtistIDs: pool.blockedArtistIDs(),
		ExcludeTrackIDs:  pool.blockedTrackIDs(),
	})
	if err != nil {
		return fmt.Errorf("sampling stored tracks: %w", err)
	}
	for _, t := range tracks {
		pool.Add(t, music.SourceEmbeddingFallback)
	}
	return nil
}
