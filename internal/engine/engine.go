// Package engine runs the dual gravity selection: stage 1 resolves targets
// and the playing artist's neighbourhood, stage 2 builds candidate seeds per
// chunk of artist ids, and stage 3 scores the pool and picks the options.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/justestif/go-dual-gravity/internal/deadline"
	"github.com/justestif/go-dual-gravity/internal/gravity"
	"github.com/justestif/go-dual-gravity/internal/logging"
	"github.com/justestif/go-dual-gravity/internal/music"
	"github.com/justestif/go-dual-gravity/internal/profiles"
	"github.com/justestif/go-dual-gravity/internal/scoring"
	"github.com/justestif/go-dual-gravity/internal/seeds"
	"github.com/justestif/go-dual-gravity/internal/selection"
	"github.com/justestif/go-dual-gravity/internal/worker"
)

// Stage names.
const (
	StageInit       = "init"
	StageCandidates = "candidates"
	StageScore      = "score"
)

// JobSaveRelated is the kind of the write-back job for fetched related artists.
const JobSaveRelated = "related_writeback"

// StageError is a protocol-level failure of one stage. Its message is shown
// to the caller verbatim.
type StageError struct {
	Stage   string
	Message string
	Err     error
}

func (e *StageError) Error() string {
	return e.Message
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageError(stage string, err error) error {
	var se *StageError
	if errors.As(err, &se) {
		return se
	}
	return &StageError{Stage: stage, Message: fmt.Sprintf("%s stage failed: %v", stage, err), Err: err}
}

// Profiles resolves artist and target profiles.
type Profiles interface {
	Lookup(ctx context.Context, ids []string) (map[string]music.ArtistProfile, profiles.Stats, error)
	ResolveTarget(ctx context.Context, name, id string) (*music.TargetProfile, error)
}

// RelatedStore is the durable related-artist graph.
type RelatedStore interface {
	RelatedArtistIDs(ctx context.Context, artistID string) ([]string, bool, error)
	SaveRelatedArtistIDs(ctx context.Context, artistID string, relatedIDs []string) error
}

// RelatedCatalog fetches related artists from the external catalog.
type RelatedCatalog interface {
	RelatedArtists(ctx context.Context, artistID string) ([]music.ArtistProfile, error)
}

// SeedBuilder builds and completes candidate pools.
type SeedBuilder interface {
	RelatedTopTracks(ctx context.Context, dl deadline.Deadline, pool *seeds.Pool, artistIDs []string) (seeds.FetchStats, error)
	Complete(ctx context.Context, dl deadline.Deadline, pool *seeds.Pool, req seeds.Request) (seeds.Report, error)
}

// Queue accepts background jobs without blocking.
type Queue interface {
	Submit(job worker.Job) bool
}

// Config tunes the engine.
type Config struct {
	ChunkSize        int           `koanf:"chunk_size"`
	ChunkConcurrency int           `koanf:"chunk_concurrency"`
	Budget           time.Duration `koanf:"budget"`
	Margin           time.Duration `koanf:"margin"`
	// TargetRelatedLimit caps how many of a target's related artists are
	// used for phase insertions and exclusions.
	TargetRelatedLimit int `koanf:"target_related_limit"`

	Gravity   gravity.Config   `koanf:"gravity"`
	Scoring   scoring.Config   `koanf:"scoring"`
	Selection selection.Config `koanf:"selection"`
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		ChunkSize:          5,
		ChunkConcurrency:   4,
		Budget:             deadline.DefaultBudget,
		Margin:             deadline.DefaultMargin,
		TargetRelatedLimit: 5,
		Gravity:            gravity.DefaultConfig(),
		Scoring:            scoring.DefaultConfig(),
		Selection:          selection.DefaultConfig(),
	}
}

// Deps are the collaborators of an Engine. Catalog and Queue may be nil.
type Deps struct {
	Profiles Profiles
	Related  RelatedStore
	Catalog  RelatedCatalog
	Seeds    SeedBuilder
	Queue    Queue
	Rand     *rand.Rand
	Now      func() time.Time
}

// Engine runs the three selection stages. It holds no per-request state
// and is safe for concurrent use.
type Engine struct {
	cfg      Config
	deps     Deps
	gravity  *gravity.Machine
	scorer   *scoring.Scorer
	selector *selection.Selector
	now      func() time.Time
}

// New creates an Engine.
func New(cfg Config, deps Deps) (*Engine, error) {
	if deps.Profiles == nil || deps.Related == nil || deps.Seeds == nil {
		return nil, errors.New("engine needs profiles, related store and seed builder")
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultConfig().ChunkSize
	}
	if cfg.ChunkConcurrency <= 0 {
		cfg.ChunkConcurrency = DefaultConfig().ChunkConcurrency
	}

	machine, err := gravity.NewMachine(cfg.Gravity)
	if err != nil {
		return nil, fmt.Errorf("gravity config: %w", err)
	}
	scorer, err := scoring.NewScorer(cfg.Scoring, deps.Profiles, deps.Seeds)
	if err != nil {
		return nil, fmt.Errorf("scoring config: %w", err)
	}
	selector, err := selection.New(cfg.Selection, selection.WithRand(deps.Rand))
	if err != nil {
		return nil, fmt.Errorf("selection config: %w", err)
	}

	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		cfg:      cfg,
		deps:     deps,
		gravity:  machine,
		scorer:   scorer,
		selector: selector,
		now:      now,
	}, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

func (e *Engine) deadline() deadline.Deadline {
	return deadline.NewWithClock(e.cfg.Budget, e.cfg.Margin, e.now)
}

// relatedIDs returns artistID's related artists: the stored edge list when
// present, else a catalog fetch written back in the background. Failures
// yield an empty list; only cancellation is returned.
func (e *Engine) relatedIDs(ctx context.Context, dl deadline.Deadline, artistID string) ([]string, string, error) {
	if artistID == "" {
		return nil, "none", nil
	}

	ids, ok, err := e.deps.Related.RelatedArtistIDs(ctx, artistID)
	switch {
	case err != nil && ctx.Err() != nil:
		return nil, "", ctx.Err()
	case err != nil:
		logging.Warn().Err(err).Str("artist_id", artistID).Msg("engine: related store lookup failed")
	case ok:
		return ids, "store", nil
	}

	if e.deps.Catalog == nil || dl.Near() {
		return nil, "none", nil
	}
	artists, err := e.deps.Catalog.RelatedArtists(ctx, artistID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		logging.Warn().Err(err).Str("artist_id", artistID).Msg("engine: related artists fetch failed")
		return nil, "none", nil
	}

	ids = make([]string, 0, len(artists))
	for _, a := range artists {
		if a.ID != "" {
			ids = append(ids, a.ID)
		}
	}
	e.enqueueRelated(artistID, ids)
	return ids, "catalog", nil
}

func (e *Engine) enqueueRelated(artistID string, ids []string) {
	if e.deps.Queue == nil {
		return
	}
	e.deps.Queue.Submit(worker.Job{
		Kind: JobSaveRelated,
		Key:  artistID,
		Run: func(ctx context.Context) error {
			return e.deps.Related.SaveRelatedArtistIDs(ctx, artistID, ids)
		},
	})
}

func elapsedMs(start time.Time, now func() time.Time) int64 {
	return now().Sub(start).Milliseconds()
}
