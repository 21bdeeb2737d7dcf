// Package config loads the service configuration in three layers: built-in
// defaults, an optional YAML file, then DGS_ environment variables.
//
//	DGS_SERVER_ADDR                      -> server.addr
//	DGS_SCORING_SIMILARITY__GENRE        -> scoring.similarity.genre
//	DGS_POOL_CLUSTERING__NUM_CLUSTERS    -> pool.clustering.num_clusters
//
// A double underscore separates nested sections below the top level.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/justestif/go-dual-gravity/internal/db"
	"github.com/justestif/go-dual-gravity/internal/deadline"
	"github.com/justestif/go-dual-gravity/internal/engine"
	"github.com/justestif/go-dual-gravity/internal/gravity"
	"github.com/justestif/go-dual-gravity/internal/lastfm"
	"github.com/justestif/go-dual-gravity/internal/logging"
	"github.com/justestif/go-dual-gravity/internal/profiles"
	"github.com/justestif/go-dual-gravity/internal/scoring"
	"github.com/justestif/go-dual-gravity/internal/seeds"
	"github.com/justestif/go-dual-gravity/internal/selection"
	"github.com/justestif/go-dual-gravity/internal/spotify"
	"github.com/justestif/go-dual-gravity/internal/web"
	"github.com/justestif/go-dual-gravity/internal/worker"
)

const (
	// EnvPrefix marks the environment variables read into the configuration.
	EnvPrefix = "DGS_"
	// PathEnvVar names the config file to load.
	PathEnvVar = "CONFIG_PATH"
)

// DefaultPaths are tried in order when no path is given.
var DefaultPaths = []string{"config.yaml", "/etc/dual-gravity/config.yaml"}

// Config is the full service configuration.
type Config struct {
	Server    web.ServerConfig `koanf:"server"`
	Database  db.Config        `koanf:"database"`
	Spotify   SpotifyConfig    `koanf:"spotify"`
	LastFM    lastfm.Config    `koanf:"lastfm"`
	Cache     profiles.Config  `koanf:"cache"`
	Pool      seeds.Config     `koanf:"pool"`
	Engine    EngineConfig     `koanf:"engine"`
	Gravity   gravity.Config   `koanf:"gravity"`
	Scoring   scoring.Config   `koanf:"scoring"`
	Selection selection.Config `koanf:"selection"`
	Workers   WorkerConfig     `koanf:"workers"`
	Log       LogConfig        `koanf:"log"`
}

// SpotifyConfig holds catalog credentials and resilience settings.
type SpotifyConfig struct {
	ClientID     string `koanf:"client_id"`
	ClientSecret string `koanf:"client_secret"`
	TokenURL     string `koanf:"token_url"`
	// TokenCache is the token file path, or "user" for the per-user cache
	// directory. Empty disables on-disk caching.
	TokenCache  string        `koanf:"token_cache"`
	Market      string        `koanf:"market"`
	RatePerSec  float64       `koanf:"rate_per_sec"`
	Burst       int           `koanf:"burst"`
	MaxRetries  int           `koanf:"max_retries"`
	BaseBackoff time.Duration `koanf:"base_backoff"`
}

// EngineConfig tunes stage orchestration.
type EngineConfig struct {
	ChunkSize          int           `koanf:"chunk_size"`
	ChunkConcurrency   int           `koanf:"chunk_concurrency"`
	Budget             time.Duration `koanf:"budget"`
	Margin             time.Duration `koanf:"margin"`
	TargetRelatedLimit int           `koanf:"target_related_limit"`
}

// WorkerConfig sizes the write-back pool.
type WorkerConfig struct {
	QueueSize  int           `koanf:"queue_size"`
	Workers    int           `koanf:"workers"`
	JobTimeout time.Duration `koanf:"job_timeout"`
}

// LogConfig configures the global logger.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Logging returns the logger configuration.
func (c LogConfig) Logging() logging.Config {
	return logging.Config{Level: c.Level, Format: c.Format}
}

// Default returns the built-in configuration.
func Default() Config {
	eng := engine.DefaultConfig()
	return Config{
		Server:   web.DefaultServerConfig(),
		Database: db.DefaultConfig(),
		Spotify: SpotifyConfig{
			Market:      spotify.DefaultMarket,
			RatePerSec:  spotify.DefaultRatePerSec,
			Burst:       spotify.DefaultBurst,
			MaxRetries:  spotify.DefaultMaxRetries,
			BaseBackoff: spotify.DefaultBaseBackoff,
		},
		LastFM: lastfm.Config{Timeout: lastfm.DefaultTimeout},
		Cache:  profiles.DefaultConfig(),
		Pool:   seeds.DefaultConfig(),
		Engine: EngineConfig{
			ChunkSize:          eng.ChunkSize,
			ChunkConcurrency:   eng.ChunkConcurrency,
			Budget:             deadline.DefaultBudget,
			Margin:             deadline.DefaultMargin,
			TargetRelatedLimit: eng.TargetRelatedLimit,
		},
		Gravity:   gravity.DefaultConfig(),
		Scoring:   scoring.DefaultConfig(),
		Selection: selection.DefaultConfig(),
		Workers: WorkerConfig{
			QueueSize:  256,
			Workers:    4,
			JobTimeout: worker.DefaultJobTimeout,
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads the configuration. path may be empty, in which case
// CONFIG_PATH and then DefaultPaths are tried; a missing file is not an
// error unless path was given explicitly.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path == "" {
		path = findFile()
	} else if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file: %w", err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func findFile() string {
	if p := os.Getenv(PathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envKey maps DGS_POOL_CLUSTERING__NUM_CLUSTERS to pool.clustering.num_clusters.
func envKey(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	key = strings.ReplaceAll(key, "__", ".")
	return strings.Replace(key, "_", ".", 1)
}

// Validate checks the parts of the configuration the engine cannot run without.
func (c Config) Validate() error {
	var errs []error
	if c.Database.URL == "" {
		errs = append(errs, errors.New("database.url is required"))
	}
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Engine.Budget <= c.Engine.Margin {
		errs = append(errs, fmt.Errorf("engine.budget %v must exceed engine.margin %v", c.Engine.Budget, c.Engine.Margin))
	}
	if err := c.Gravity.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("gravity: %w", err))
	}
	if err := c.Scoring.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("scoring: %w", err))
	}
	if err := c.Selection.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("selection: %w", err))
	}
	return errors.Join(errs...)
}

// EngineConfig assembles the engine configuration.
func (c Config) EngineConfig() engine.Config {
	return engine.Config{
		ChunkSize:          c.Engine.ChunkSize,
		ChunkConcurrency:   c.Engine.ChunkConcurrency,
		Budget:             c.Engine.Budget,
		Margin:             c.Engine.Margin,
		TargetRelatedLimit: c.Engine.TargetRelatedLimit,
		Gravity:            c.Gravity,
		Scoring:            c.Scoring,
		Selection:          c.Selection,
	}
}
