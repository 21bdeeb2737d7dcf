// Package selection picks the final, diversity-balanced option set from a
// scored candidate pool.
package selection

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/justestif/go-dual-gravity/internal/logging"
	"github.com/justestif/go-dual-gravity/internal/music"
)

// Strategy names how a selection was balanced.
type Strategy string

const (
	// StrategyBalanced means every bucket had enough candidates on its own.
	StrategyBalanced Strategy = "balanced"
	// StrategyPercentile means buckets were rebuilt from diff percentiles.
	StrategyPercentile Strategy = "percentile"
	// StrategyBestScore means fewer than a full set of distinct artists was
	// available and options were filled by score alone.
	StrategyBestScore Strategy = "best-score"
)

// Config tunes the selector.
type Config struct {
	PerCategory    int `koanf:"per_category"`
	MinPerCategory int `koanf:"min_per_category"`
	// TopK bounds the score-weighted random pick within a bucket.
	TopK int `koanf:"top_k"`

	Tolerance     float64 `koanf:"tolerance"`
	WideTolerance float64 `koanf:"wide_tolerance"`
	// NarrowRange is the diff range below which WideTolerance applies.
	NarrowRange float64 `koanf:"narrow_range"`

	CloserWeight  float64 `koanf:"closer_weight"`
	NeutralWeight float64 `koanf:"neutral_weight"`
	FurtherWeight float64 `koanf:"further_weight"`
}

// DefaultConfig returns the default 3-3-3 configuration.
func DefaultConfig() Config {
	return Config{
		PerCategory:    3,
		MinPerCategory: 2,
		TopK:           5,
		Tolerance:      0.02,
		WideTolerance:  0.05,
		NarrowRange:    0.10,
		CloserWeight:   0.4,
		NeutralWeight:  0.3,
		FurtherWeight:  0.3,
	}
}

// Validate checks the category counts.
func (c Config) Validate() error {
	if c.PerCategory <= 0 {
		return fmt.Errorf("per-category count %d must be positive", c.PerCategory)
	}
	if c.MinPerCategory < 0 || c.MinPerCategory > c.PerCategory {
		return fmt.Errorf("minimum per category %d outside [0, %d]", c.MinPerCategory, c.PerCategory)
	}
	if c.CloserWeight < 0 || c.NeutralWeight < 0 || c.FurtherWeight < 0 {
		return fmt.Errorf("category weights must not be negative")
	}
	return nil
}

// OptionCount is the size of a full selection.
func (c Config) OptionCount() int {
	return c.PerCategory * len(music.Categories)
}

func (c Config) weight(cat music.Category) float64 {
	switch cat {
	case music.CategoryCloser:
		return c.CloserWeight
	case music.CategoryNeutral:
		return c.NeutralWeight
	default:
		return c.FurtherWeight
	}
}

// Result is a selection with how it was reached.
type Result struct {
	Options   []music.CandidateTrackMetrics `json:"options"`
	Strategy  Strategy                      `json:"strategy"`
	Tolerance float64                       `json:"tolerance"`
	Unique    int                           `json:"unique"`
	// Buckets counts the distinct candidates per category before picking.
	Buckets map[music.Category]int `json:"buckets"`
}

// Balanced reports whether every category got its full share.
func (r Result) Balanced(cfg Config) bool {
	counts := make(map[music.Category]int, len(music.Categories))
	for _, o := range r.Options {
		counts[o.SelectionCategory]++
	}
	for _, cat := range music.Categories {
		if counts[cat] != cfg.PerCategory {
			return false
		}
	}
	return true
}

// Selector picks option sets. It is safe for concurrent use.
type Selector struct {
	cfg Config

	mu  sync.Mutex
	rng *rand.Rand
}

// Option configures a Selector.
type Option func(*Selector)

// WithRand sets the random source for the weighted picks.
func WithRand(rng *rand.Rand) Option {
	return func(s *Selector) {
		if rng != nil {
			s.rng = rng
		}
	}
}

// New creates a Selector.
func New(cfg Config, opts ...Option) (*Selector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Selector{
		cfg: cfg,
		rng: rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x2545f4914f6cdd1d)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Config returns the selector configuration.
func (s *Selector) Config() Config {
	return s.cfg
}

type scored struct {
	m    music.CandidateTrackMetrics
	diff float64
}

// Select chooses up to OptionCount candidates, at most one per artist, split
// across closer, neutral and further relative to the playing track's
// attraction to player's target.
//
// Precedence: dedupe by artist, then a balanced pick when every bucket has
// PerCategory candidates; otherwise, with at least OptionCount distinct
// artists, buckets are rebuilt from diff percentiles; otherwise the best
// scores fill the set and the result is logged as degraded.
func (s *Selector) Select(candidates []music.CandidateTrackMetrics, round int, player music.PlayerID) Result {
	unique := dedupe(candidates)
	items := make([]scored, len(unique))
	for i, m := range unique {
		items[i] = scored{m: m, diff: m.AttractionFor(player) - m.CurrentSongAttraction}
	}

	tol := s.tolerance(items)
	buckets := classify(items, tol)
	res := Result{
		Tolerance: tol,
		Unique:    len(items),
		Buckets:   make(map[music.Category]int, len(buckets)),
	}
	for cat, b := range buckets {
		res.Buckets[cat] = len(b)
	}

	switch {
	case s.full(buckets):
		res.Strategy = StrategyBalanced
	case len(items) >= s.cfg.OptionCount():
		res.Strategy = StrategyPercentile
		buckets = percentileSplit(items)
	default:
		res.Strategy = StrategyBestScore
		res.Options = s.bestScore(items, tol)
		logging.Warn().Int("unique", len(items)).Int("options", len(res.Options)).Int("round", round).
			Str("player", string(player)).Msg("selection: not enough distinct artists for a balanced set")
		return res
	}

	res.Options = s.balancedPick(buckets)
	return res
}

func (s *Selector) full(buckets map[music.Category][]scored) bool {
	for _, cat := range music.Categories {
		if len(buckets[cat]) < s.cfg.PerCategory {
			return false
		}
	}
	return true
}

// tolerance widens the neutral band when every candidate sits in a narrow
// diff range.
func (s *Selector) tolerance(items []scored) float64 {
	if len(items) == 0 {
		return s.cfg.Tolerance
	}
	lo, hi := items[0].diff, items[0].diff
	for _, it := range items[1:] {
		lo = min(lo, it.diff)
		hi = max(hi, it.diff)
	}
	if hi-lo < s.cfg.NarrowRange {
		return s.cfg.WideTolerance
	}
	return s.cfg.Tolerance
}

// Classify labels a diff against tolerance.
func Classify(diff, tolerance float64) music.Category {
	switch {
	case diff > tolerance:
		return music.CategoryCloser
	case diff < -tolerance:
		return music.CategoryFurther
	default:
		return music.CategoryNeutral
	}
}

func classify(items []scored, tol float64) map[music.Category][]scored {
	out := make(map[music.Category][]scored, len(music.Categories))
	for _, it := range items {
		cat := Classify(it.diff, tol)
		out[cat] = append(out[cat], it)
	}
	return out
}

// percentileSplit ranks by diff and cuts the list in thirds: the top third
// is closer, the bottom third further, the rest neutral.
func percentileSplit(items []scored) map[music.Category][]scored {
	ranked := append([]scored(nil), items...)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].diff != ranked[j].diff {
			return ranked[i].diff > ranked[j].diff
		}
		return better(ranked[i].m, ranked[j].m)
	})

	third := len(ranked) / 3
	return map[music.Category][]scored{
		music.CategoryCloser:  ranked[:third],
		music.CategoryNeutral: ranked[third : len(ranked)-third],
		music.CategoryFurther: ranked[len(ranked)-third:],
	}
}

// balancedPick takes the best MinPerCategory of each bucket, then fills the
// remaining slots by drawing a bucket by category weight and a candidate by
// score from that bucket's next TopK.
func (s *Selector) balancedPick(buckets map[music.Category][]scored) []music.CandidateTrackMetrics {
	remaining := make(map[music.Category][]scored, len(buckets))
	picked := make(map[music.Category][]music.CandidateTrackMetrics, len(buckets))
	for _, cat := range music.Categories {
		b := append([]scored(nil), buckets[cat]...)
		sort.SliceStable(b, func(i, j int) bool { return better(b[i].m, b[j].m) })

		n := min(s.cfg.MinPerCategory, len(b))
		for _, it := range b[:n] {
			picked[cat] = append(picked[cat], annotate(it.m, cat))
		}
		remaining[cat] = b[n:]
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		var open []music.Category
		for _, cat := range music.Categories {
			if len(picked[cat]) < s.cfg.PerCategory && len(remaining[cat]) > 0 {
				open = append(open, cat)
			}
		}
		if len(open) == 0 {
			break
		}

		cat := s.pickCategory(open)
		i := s.pickByScore(remaining[cat])
		picked[cat] = append(picked[cat], annotate(remaining[cat][i].m, cat))
		remaining[cat] = append(remaining[cat][:i:i], remaining[cat][i+1:]...)
	}

	out := make([]music.CandidateTrackMetrics, 0, s.cfg.OptionCount())
	for _, cat := range music.Categories {
		opts := picked[cat]
		sort.SliceStable(opts, func(i, j int) bool { return better(opts[i], opts[j]) })
		out = append(out, opts...)
	}
	return out
}

func (s *Selector) pickCategory(open []music.Category) music.Category {
	var total float64
	for _, cat := range open {
		total += s.cfg.weight(cat)
	}
	if total <= 0 {
		return open[0]
	}
	r := s.rng.Float64() * total
	for _, cat := range open {
		r -= s.cfg.weight(cat)
		if r < 0 {
			return cat
		}
	}
	return open[len(open)-1]
}

// pickByScore draws an index from the first TopK of a score-sorted bucket,
// weighted by final score.
func (s *Selector) pickByScore(bucket []scored) int {
	k := min(max(1, s.cfg.TopK), len(bucket))
	const floor = 0.01

	var total float64
	for _, it := range bucket[:k] {
		total += it.m.FinalScore + floor
	}
	r := s.rng.Float64() * total
	for i, it := range bucket[:k] {
		r -= it.m.FinalScore + floor
		if r < 0 {
			return i
		}
	}
	return k - 1
}

func (s *Selector) bestScore(items []scored, tol float64) []music.CandidateTrackMetrics {
	ranked := append([]scored(nil), items...)
	sort.SliceStable(ranked, func(i, j int) bool { return better(ranked[i].m, ranked[j].m) })
	if len(ranked) > s.cfg.OptionCount() {
		ranked = ranked[:s.cfg.OptionCount()]
	}

	out := make([]music.CandidateTrackMetrics, 0, len(ranked))
	for _, cat := range music.Categories {
		for _, it := range ranked {
			if Classify(it.diff, tol) == cat {
				out = append(out, annotate(it.m, cat))
			}
		}
	}
	return out
}

// dedupe keeps the best-scored candidate per artist, matching on artist id
// and on normalised artist name.
func dedupe(candidates []music.CandidateTrackMetrics) []music.CandidateTrackMetrics {
	ranked := append([]music.CandidateTrackMetrics(nil), candidates...)
	sort.SliceStable(ranked, func(i, j int) bool { return better(ranked[i], ranked[j]) })

	ids := make(map[string]struct{}, len(ranked))
	names := make(map[string]struct{}, len(ranked))
	tracks := make(map[string]struct{}, len(ranked))
	out := make([]music.CandidateTrackMetrics, 0, len(ranked))
	for _, m := range ranked {
		id, name := m.ArtistID, music.NormalizeName(m.ArtistName)
		if _, dup := ids[id]; dup && id != "" {
			continue
		}
		if _, dup := names[name]; dup && name != "" {
			continue
		}
		if _, dup := tracks[m.Track.ID]; dup {
			continue
		}
		if id != "" {
			ids[id] = struct{}{}
		}
		if name != "" {
			names[name] = struct{}{}
		}
		tracks[m.Track.ID] = struct{}{}
		out = append(out, m)
	}
	return out
}

func better(a, b music.CandidateTrackMetrics) bool {
	if a.FinalScore != b.FinalScore {
		return a.FinalScore > b.FinalScore
	}
	return a.Track.ID < b.Track.ID
}

func annotate(m music.CandidateTrackMetrics, cat music.Category) music.CandidateTrackMetrics {
	m.SelectionCategory = cat
	return m
}
