// Package profiles resolves artist profiles through three tiers: a
// process-local TTL cache, the durable store, then the catalog API.
//
// Profiles fetched from the catalog are written back to the store in the
// background, and profiles missing genres or popularity are queued for
// backfill. The request path only ever enqueues that work.
package profiles

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/justestif/go-dual-gravity/internal/logging"
	"github.com/justestif/go-dual-gravity/internal/music"
	"github.com/justestif/go-dual-gravity/internal/ttlcache"
	"github.com/justestif/go-dual-gravity/internal/worker"
)

// Store is the durable artist tier.
type Store interface {
	GetArtists(ctx context.Context, ids []string) (map[string]music.ArtistProfile, error)
	ArtistByName(ctx context.Context, name string) (*music.ArtistProfile, error)
	SaveArtists(ctx context.Context, profiles []music.ArtistProfile) error
}

// Catalog is the external artist API.
type Catalog interface {
	Artists(ctx context.Context, ids []string) ([]music.ArtistProfile, error)
	SearchArtists(ctx context.Context, query string, limit int) ([]music.ArtistProfile, error)
}

// GenreSource supplies genres for artists the catalog has none for.
type GenreSource interface {
	ArtistGenres(ctx context.Context, artist string, limit int) ([]string, error)
}

// Queue accepts background jobs without blocking.
type Queue interface {
	Submit(job worker.Job) bool
}

// Job kinds submitted to the queue.
const (
	JobWriteBack = "artist_writeback"
	JobBackfill  = "artist_backfill"
)

// catalogBatchSize is how many ids the catalog accepts per request.
const catalogBatchSize = 50

// Config tunes the resolver.
type Config struct {
	TTL              time.Duration `koanf:"ttl"`
	MaxEntries       int           `koanf:"max_entries"`
	SearchLimit      int           `koanf:"search_limit"`
	BackfillTagLimit int           `koanf:"backfill_tag_limit"`
}

// DefaultConfig returns the default resolver configuration.
func DefaultConfig() Config {
	return Config{
		TTL:              5 * time.Minute,
		MaxEntries:       ttlcache.DefaultMaxEntries,
		SearchLimit:      10,
		BackfillTagLimit: 5,
	}
}

// Resolver looks up artist profiles. It is safe for concurrent use.
type Resolver struct {
	cfg     Config
	store   Store
	catalog Catalog
	queue   Queue
	genres  GenreSource
	sink    StatsSink
	now     func() time.Time

	profiles  *ttlcache.Cache[music.ArtistProfile]
	names     *ttlcache.Cache[string]
	// attempted holds ids backfilled within the TTL, found or not.
	attempted *ttlcache.Cache[struct{}]

	mu          sync.Mutex
	backfilling map[string]struct{}
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithConfig overrides the default configuration.
func WithConfig(cfg Config) Option {
	return func(r *Resolver) { r.cfg = cfg }
}

// WithGenreSource enables the secondary genre source for backfill.
func WithGenreSource(g GenreSource) Option {
	return func(r *Resolver) { r.genres = g }
}

// WithStatsSink reports every lookup's statistics to sink.
func WithStatsSink(sink StatsSink) Option {
	return func(r *Resolver) {
		if sink != nil {
			r.sink = sink
		}
	}
}

// WithClock sets the clock used for cache expiry.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// New creates a Resolver. store and queue may be nil: without a store the
// resolver skips tier 2, without a queue write-back and backfill are skipped.
func New(store Store, catalog Catalog, queue Queue, opts ...Option) *Resolver {
	r := &Resolver{
		cfg:         DefaultConfig(),
		store:       store,
		catalog:     catalog,
		queue:       queue,
		sink:        nopSink{},
		backfilling: make(map[string]struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	cacheOpts := []ttlcache.Option{ttlcache.WithMaxEntries(r.cfg.MaxEntries)}
	if r.now != nil {
		cacheOpts = append(cacheOpts, ttlcache.WithClock(r.now))
	}
	r.profiles = ttlcache.New[music.ArtistProfile](r.cfg.TTL, cacheOpts...)
	r.names = ttlcache.New[string](r.cfg.TTL, cacheOpts...)
	r.attempted = ttlcache.New[struct{}](r.cfg.TTL, cacheOpts...)
	return r
}

// Lookup returns profiles for ids, keyed by id. Ids no tier could resolve are
// absent from the map and counted in Stats.Missing. Store and catalog
// failures degrade to fewer profiles; only cancellation is returned.
func (r *Resolver) Lookup(ctx context.Context, ids []string) (map[string]music.ArtistProfile, Stats, error) {
	ids = uniqueIDs(ids)
	stats := Stats{Requested: len(ids)}

	found, missing := r.profiles.GetMany(ids)
	stats.MemoryHits = len(found)

	if len(missing) > 0 && r.store != nil {
		stored, err := r.store.GetArtists(ctx, missing)
		if err != nil {
			if ctx.Err() != nil {
				return nil, stats, ctx.Err()
			}
			logging.Warn().Err(err).Int("ids", len(missing)).Msg("profiles: store lookup failed")
		}
		for id, p := range stored {
			found[id] = p
			r.profiles.Set(id, p)
			stats.StoreHits++
		}
		missing = remaining(missing, found)
	}

	if len(missing) > 0 && r.catalog != nil {
		stats.APICalls = (len(missing) + catalogBatchSize - 1) / catalogBatchSize
		fetched, err := r.catalog.Artists(ctx, missing)
		if err != nil {
			if ctx.Err() != nil {
				return nil, stats, ctx.Err()
			}
			logging.Warn().Err(err).Strs("artist_ids", missing).Msg("profiles: catalog lookup failed")
		}
		var writeBack []music.ArtistProfile
		for _, p := range fetched {
			if _, dup := found[p.ID]; dup {
				continue
			}
			found[p.ID] = p
			r.profiles.Set(p.ID, p)
			stats.APIFetched++
			writeBack = append(writeBack, p)
		}
		r.enqueueWriteBack(writeBack)
	}

	stats.Missing = stats.Requested - len(found)
	for _, p := range found {
		if p.NeedsBackfill() {
			r.enqueueBackfill(p)
		}
	}

	r.sink.RecordLookup(stats)
	return found, stats, nil
}

// ResolveByName finds an artist from a free-text name: the store's
// case-insensitive match first, then a catalog search that prefers an exact
// case-insensitive name match over the top result. Returns nil when nothing
// matches.
func (r *Resolver) ResolveByName(ctx context.Context, name string) (*music.ArtistProfile, error) {
	name = strings.TrimSpace(name)
	key := music.NormalizeName(name)
	if key == "" {
		return nil, nil
	}

	if id, ok := r.names.Get(key); ok {
		if p, ok := r.profiles.Get(id); ok {
			return &p, nil
		}
	}

	if r.store != nil {
		p, err := r.store.ArtistByName(ctx, name)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logging.Warn().Err(err).Str("name", name).Msg("profiles: store name lookup failed")
		}
		if p != nil {
			r.remember(key, *p)
			if p.NeedsBackfill() {
				r.enqueueBackfill(*p)
			}
			return p, nil
		}
	}

	if r.catalog == nil {
		return nil, nil
	}
	results, err := r.catalog.SearchArtists(ctx, name, r.cfg.SearchLimit)
	if err != nil {
		return nil, err
	}
	best, ok := pickMatch(name, results)
	if !ok {
		return nil, nil
	}

	r.remember(key, best)
	r.enqueueWriteBack([]music.ArtistProfile{best})
	if best.NeedsBackfill() {
		r.enqueueBackfill(best)
	}
	return &best, nil
}

// ResolveTarget resolves a player's target by id when known, else by name.
// An unresolvable target is reported as nil, not as an error; only
// cancellation is returned.
func (r *Resolver) ResolveTarget(ctx context.Context, name, id string) (*music.TargetProfile, error) {
	if id != "" {
		found, _, err := r.Lookup(ctx, []string{id})
		if err != nil {
			return nil, err
		}
		if p, ok := found[id]; ok {
			return music.NewTargetProfile(p), nil
		}
	}

	if name == "" {
		return nil, nil
	}
	p, err := r.ResolveByName(ctx, name)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logging.Warn().Err(err).Str("name", name).Msg("profiles: target unresolved")
		return nil, nil
	}
	if p == nil {
		logging.Info().Str("name", name).Msg("profiles: target unresolved")
		return nil, nil
	}
	return music.NewTargetProfile(*p), nil
}

// Reset clears the memory tier.
func (r *Resolver) Reset() {
	r.profiles.Reset()
	r.names.Reset()
	r.attempted.Reset()
}

// CacheLen returns the number of cached profiles.
func (r *Resolver) CacheLen() int {
	return r.profiles.Len()
}

func (r *Resolver) remember(key string, p music.ArtistProfile) {
	r.profiles.Set(p.ID, p)
	r.names.Set(key, p.ID)
}

func (r *Resolver) enqueueWriteBack(profiles []music.ArtistProfile) {
	if len(profiles) == 0 || r.queue == nil || r.store == nil {
		return
	}
	r.queue.Submit(worker.Job{
		Kind: JobWriteBack,
		Key:  profiles[0].ID,
		Run: func(ctx context.Context) error {
			return r.store.SaveArtists(ctx, profiles)
		},
	})
}

func (r *Resolver) enqueueBackfill(p music.ArtistProfile) {
	if r.queue == nil || p.ID == "" {
		return
	}
	if _, done := r.attempted.Get(p.ID); done {
		return
	}

	r.mu.Lock()
	if _, running := r.backfilling[p.ID]; running {
		r.mu.Unlock()
		return
	}
	r.backfilling[p.ID] = struct{}{}
	r.mu.Unlock()

	accepted := r.queue.Submit(worker.Job{
		Kind: JobBackfill,
		Key:  p.ID,
		Run: func(ctx context.Context) error {
			defer r.doneBackfilling(p.ID)
			return r.backfill(ctx, p)
		},
	})
	if !accepted {
		r.mu.Lock()
		delete(r.backfilling, p.ID)
		r.mu.Unlock()
	}
}

func (r *Resolver) doneBackfilling(id string) {
	r.attempted.Set(id, struct{}{})
	r.mu.Lock()
	delete(r.backfilling, id)
	r.mu.Unlock()
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func remaining(ids []string, found map[string]music.ArtistProfile) []string {
	var out []string
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// pickMatch prefers an exact case-insensitive name match, else the first result.
func pickMatch(name string, results []music.ArtistProfile) (music.ArtistProfile, bool) {
	var first *music.ArtistProfile
	for i := range results {
		if results[i].ID == "" {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(results[i].Name), name) {
			return results[i], true
		}
		if first == nil {
			first = &results[i]
		}
	}
	if first == nil {
		return music.ArtistProfile{}, false
	}
	return *first, true
}
