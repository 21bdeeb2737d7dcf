package gravity

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/justestif/go-dual-gravity/internal/music"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func newMachine(t *testing.T) *Machine {
	t.Helper()
	m, err := NewMachine(DefaultConfig())
	if err != nil {
		t.Fatalf("NewMachine() error = %v", err)
	}
	return m
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"min above max", func(c *Config) { c.Min, c.Max = 0.9, 0.1 }, true},
		{"max above one", func(c *Config) { c.Max = 1.5 }, true},
		{"baseline outside", func(c *Config) { c.Baseline = 0.9 }, true},
		{"negative tolerance", func(c *Config) { c.Tolerance = -0.1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRecord(t *testing.T) {
	g := newMachine(t)

	tests := []struct {
		name     string
		start    Map
		player   music.PlayerID
		category music.Category
		want     Map
	}{
		{"closer", Map{0.32, 0.32}, music.Player1, music.CategoryCloser, Map{0.42, 0.32}},
		{"neutral", Map{0.32, 0.32}, music.Player2, music.CategoryNeutral, Map{0.32, 0.34}},
		{"further", Map{0.32, 0.32}, music.Player1, music.CategoryFurther, Map{0.27, 0.32}},
		{"clamped at max", Map{0.80, 0.60}, music.Player1, music.CategoryCloser, Map{0.85, 0.60}},
		{"clamped at min", Map{0.16, 0.32}, music.Player1, music.CategoryFurther, Map{0.15, 0.32}},
		{"underdog boost", Map{0.45, 0.20}, music.Player1, music.CategoryCloser, Map{0.55, 0.25}},
		{"underdog for player1", Map{0.22, 0.55}, music.Player2, music.CategoryNeutral, Map{0.27, 0.57}},
		{"no boost at threshold", Map{0.50, 0.20}, music.Player2, music.CategoryNeutral, Map{0.50, 0.22}},
		{"unset values start at baseline", Map{}, music.Player1, music.CategoryCloser, Map{0.42, 0.32}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := g.Record(tt.start, tt.player, tt.category)
			if !approx(got.Player1, tt.want.Player1) || !approx(got.Player2, tt.want.Player2) {
				t.Errorf("Record() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestRecordStaysWithinLimits(t *testing.T) {
	g := newMachine(t)
	rng := rand.New(rand.NewPCG(7, 11))
	players := []music.PlayerID{music.Player1, music.Player2}
	cfg := g.Config()

	m := g.Initial()
	for i := 0; i < 10000; i++ {
		m = g.Record(m, players[rng.IntN(2)], music.Categories[rng.IntN(3)])
		for _, v := range []float64{m.Player1, m.Player2} {
			if v < cfg.Min || v > cfg.Max {
				t.Fatalf("step %d: gravity %v outside [%v, %v]", i, v, cfg.Min, cfg.Max)
			}
		}
	}
}

func TestClassify(t *testing.T) {
	g := newMachine(t)

	tests := []struct {
		selected, baseline float64
		want               music.Category
	}{
		{0.60, 0.50, music.CategoryCloser},
		{0.40, 0.50, music.CategoryFurther},
		{0.51, 0.50, music.CategoryNeutral},
		{0.49, 0.50, music.CategoryNeutral},
		{0.515, 0.50, music.CategoryNeutral},
	}

	for _, tt := range tests {
		if got := g.Classify(tt.selected, tt.baseline); got != tt.want {
			t.Errorf("Classify(%v, %v) = %v, want %v", tt.selected, tt.baseline, got, tt.want)
		}
	}
}

func TestPhaseFor(t *testing.T) {
	g := newMachine(t)

	tests := []struct {
		name    string
		round   int
		gravity float64
		want    Phase
	}{
		{"opening round", 1, 0.32, PhaseExploration},
		{"opening round low gravity", 2, 0.15, PhaseExploration},
		{"desperation", 3, 0.25, PhaseDesperation},
		{"dead zone", 4, 0.40, PhaseDeadZone},
		{"high gravity mid game", 5, 0.60, PhaseExploration},
		{"convergence by gravity", 2, 0.75, PhaseConvergence},
		{"hard convergence", 8, 0.20, PhaseConvergence},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := g.PhaseFor(tt.round, tt.gravity); got != tt.want {
				t.Errorf("PhaseFor(%d, %v) = %v, want %v", tt.round, tt.gravity, got, tt.want)
			}
		})
	}
}

func TestHardConvergence(t *testing.T) {
	g := newMachine(t)
	if g.HardConvergence(7) {
		t.Error("round 7 should not be hard convergence")
	}
	if !g.HardConvergence(8) {
		t.Error("round 8 should be hard convergence")
	}
}
