// Package gravity holds the per-player bias toward each player's target
// artist and the round phases derived from it.
package gravity

import (
	"errors"
	"fmt"
	"math"

	"github.com/justestif/go-dual-gravity/internal/music"
)

// Phase is the qualitative stage of a round, used to decide which
// target-adjacent candidates may enter the pool.
type Phase string

const (
	// PhaseExploration is the default: only the target artist is held back.
	PhaseExploration Phase = "exploration"
	// PhaseDesperation surfaces target-adjacent candidates aggressively.
	PhaseDesperation Phase = "desperation"
	// PhaseDeadZone holds back the target and its related artists.
	PhaseDeadZone Phase = "dead-zone"
	// PhaseConvergence allows the target itself into the pool.
	PhaseConvergence Phase = "convergence"
)

// Config holds the gravity limits, deltas and phase thresholds.
type Config struct {
	Min      float64 `koanf:"min"`
	Max      float64 `koanf:"max"`
	Baseline float64 `koanf:"baseline"`

	CloserDelta  float64 `koanf:"closer_delta"`
	NeutralDelta float64 `koanf:"neutral_delta"`
	FurtherDelta float64 `koanf:"further_delta"`

	// Underdog boost: when one player is above UnderdogLeader and the other
	// below UnderdogTrailer, the trailer gains UnderdogBoost.
	UnderdogLeader  float64 `koanf:"underdog_leader"`
	UnderdogTrailer float64 `koanf:"underdog_trailer"`
	UnderdogBoost   float64 `koanf:"underdog_boost"`

	// Tolerance is the attraction difference below which a selection counts
	// as neutral.
	Tolerance float64 `koanf:"tolerance"`

	HardConvergenceRound int     `koanf:"hard_convergence_round"`
	ConvergenceGravity   float64 `koanf:"convergence_gravity"`
	DesperationGravity   float64 `koanf:"desperation_gravity"`
	DesperationRound     int     `koanf:"desperation_round"`
	DeadZoneGravity      float64 `koanf:"dead_zone_gravity"`
}

// DefaultConfig returns the default gravity configuration.
func DefaultConfig() Config {
	return Config{
		Min:                  0.15,
		Max:                  0.85,
		Baseline:             0.32,
		CloserDelta:          0.10,
		NeutralDelta:         0.02,
		FurtherDelta:         -0.05,
		UnderdogLeader:       0.5,
		UnderdogTrailer:      0.25,
		UnderdogBoost:        0.05,
		Tolerance:            0.02,
		HardConvergenceRound: 8,
		ConvergenceGravity:   0.75,
		DesperationGravity:   0.25,
		DesperationRound:     3,
		DeadZoneGravity:      0.5,
	}
}

// Validate checks that the limits are ordered and the baseline lies within them.
func (c Config) Validate() error {
	if c.Min < 0 || c.Max > 1 || c.Min >= c.Max {
		return fmt.Errorf("gravity limits [%v, %v] must satisfy 0 <= min < max <= 1", c.Min, c.Max)
	}
	if c.Baseline < c.Min || c.Baseline > c.Max {
		return fmt.Errorf("gravity baseline %v outside [%v, %v]", c.Baseline, c.Min, c.Max)
	}
	if c.Tolerance < 0 {
		return errors.New("gravity tolerance must not be negative")
	}
	return nil
}

// Map is the gravity of both players.
type Map struct {
	Player1 float64 `json:"player1"`
	Player2 float64 `json:"player2"`
}

// Get returns the gravity of player.
func (m Map) Get(player music.PlayerID) float64 {
	if player == music.Player2 {
		return m.Player2
	}
	return m.Player1
}

func (m Map) with(player music.PlayerID, v float64) Map {
	if player == music.Player2 {
		m.Player2 = v
	} else {
		m.Player1 = v
	}
	return m
}

// Machine applies the gravity transition rules. It is stateless; every
// method returns a new Map.
type Machine struct {
	cfg Config
}

// NewMachine creates a Machine.
func NewMachine(cfg Config) (*Machine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Machine{cfg: cfg}, nil
}

// Config returns the machine configuration.
func (g *Machine) Config() Config {
	return g.cfg
}

// Initial returns both players at the baseline.
func (g *Machine) Initial() Map {
	return Map{Player1: g.cfg.Baseline, Player2: g.cfg.Baseline}
}

// Clamp forces both values into the configured limits. A zero or NaN value
// is treated as unset and becomes the baseline.
func (g *Machine) Clamp(m Map) Map {
	return Map{Player1: g.clampOne(m.Player1), Player2: g.clampOne(m.Player2)}
}

func (g *Machine) clampOne(v float64) float64 {
	if v == 0 || math.IsNaN(v) {
		return g.cfg.Baseline
	}
	return math.Min(g.cfg.Max, math.Max(g.cfg.Min, v))
}

// Record applies player's selection outcome: the category delta, a clamp,
// then the underdog rule.
func (g *Machine) Record(m Map, player music.PlayerID, category music.Category) Map {
	m = g.Clamp(m)
	m = m.with(player, g.clampOne(m.Get(player)+g.delta(category)))
	return g.underdog(m)
}

func (g *Machine) delta(category music.Category) float64 {
	switch category {
	case music.CategoryCloser:
		return g.cfg.CloserDelta
	case music.CategoryFurther:
		return g.cfg.FurtherDelta
	case music.CategoryNeutral:
		return g.cfg.NeutralDelta
	default:
		return 0
	}
}

func (g *Machine) underdog(m Map) Map {
	for _, p := range []music.PlayerID{music.Player1, music.Player2} {
		leader, trailer := m.Get(p.Opponent()), m.Get(p)
		if leader > g.cfg.UnderdogLeader && trailer < g.cfg.UnderdogTrailer {
			return m.with(p, g.clampOne(trailer+g.cfg.UnderdogBoost))
		}
	}
	return m
}

// Classify labels a selection by how its attraction to the active player's
// target compares with the baseline attraction of the track that was playing.
func (g *Machine) Classify(selected, baseline float64) music.Category {
	diff := selected - baseline
	switch {
	case diff > g.cfg.Tolerance:
		return music.CategoryCloser
	case diff < -g.cfg.Tolerance:
		return music.CategoryFurther
	default:
		return music.CategoryNeutral
	}
}

// HardConvergence reports whether round has reached the late-game threshold.
func (g *Machine) HardConvergence(round int) bool {
	return round >= g.cfg.HardConvergenceRound
}

// PhaseFor returns the phase for the active player's gravity in round.
// Convergence wins over everything; desperation needs low gravity after the
// opening rounds; mid gravity after the opening rounds is the dead zone.
func (g *Machine) PhaseFor(round int, gravity float64) Phase {
	switch {
	case g.HardConvergence(round) || gravity >= g.cfg.ConvergenceGravity:
		return PhaseConvergence
	case round < g.cfg.DesperationRound:
		return PhaseExploration
	case gravity <= g.cfg.DesperationGravity:
		return PhaseDesperation
	case gravity < g.cfg.DeadZoneGravity:
		return PhaseDeadZone
	default:
		return PhaseExploration
	}
}
