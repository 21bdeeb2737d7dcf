package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	spotifyapi "github.com/zmb3/spotify/v2"

	"github.com/justestif/go-dual-gravity/internal/auth"
	"github.com/justestif/go-dual-gravity/internal/config"
	"github.com/justestif/go-dual-gravity/internal/db"
	"github.com/justestif/go-dual-gravity/internal/engine"
	"github.com/justestif/go-dual-gravity/internal/lastfm"
	"github.com/justestif/go-dual-gravity/internal/logging"
	"github.com/justestif/go-dual-gravity/internal/metrics"
	"github.com/justestif/go-dual-gravity/internal/profiles"
	"github.com/justestif/go-dual-gravity/internal/seeds"
	"github.com/justestif/go-dual-gravity/internal/spotify"
	"github.com/justestif/go-dual-gravity/internal/web"
	"github.com/justestif/go-dual-gravity/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the selection API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	},
}

func serve(ctx context.Context, cfg *config.Config) error {
	database, err := db.New(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer database.Close()
	store := db.NewStore(database)

	catalog, err := newCatalog(ctx, cfg.Spotify)
	if err != nil {
		return err
	}

	var recorder metrics.Recorder
	pool := worker.NewPool(cfg.Workers.QueueSize,
		worker.WithJobTimeout(cfg.Workers.JobTimeout),
		worker.WithRecorder(recorder),
	)
	pool.Start(cfg.Workers.Workers)
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := pool.Stop(stopCtx); err != nil {
			logging.Warn().Err(err).Int("pending", pool.Pending()).Msg("write-back pool did not drain")
		}
	}()

	resolverOpts := []profiles.Option{
		profiles.WithConfig(cfg.Cache),
		profiles.WithStatsSink(recorder),
	}
	if err := cfg.LastFM.Validate(); err == nil {
		resolverOpts = append(resolverOpts, profiles.WithGenreSource(lastfm.NewClient(cfg.LastFM)))
	} else {
		logging.Warn().Err(err).Msg("genre backfill from Last.fm disabled")
	}
	resolver := profiles.New(store, catalog, pool, resolverOpts...)

	builder := seeds.NewBuilder(store, catalog, pool, seeds.WithConfig(cfg.Pool))

	eng, err := engine.New(cfg.EngineConfig(), engine.Deps{
		Profiles: resolver,
		Related:  store,
		Catalog:  catalog,
		Seeds:    builder,
		Queue:    pool,
	})
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}

	logging.Info().Str("version", version).Msg("dual-gravity starting")
	return web.NewServer(cfg.Server, eng, web.WithHealthCheck("store", database.Ping)).Run(ctx)
}

// newCatalog authenticates with client credentials and wraps the catalog
// client in the rate limiter, breaker and retry policy.
func newCatalog(ctx context.Context, cfg config.SpotifyConfig) (*spotify.Client, error) {
	var cache *auth.TokenCache
	switch cfg.TokenCache {
	case "":
	case "user":
		var err error
		if cache, err = auth.DefaultTokenCache(); err != nil {
			return nil, err
		}
	default:
		cache = auth.NewTokenCache(cfg.TokenCache)
	}
	authenticator, err := auth.New(auth.Credentials{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
	}, cache)
	if err != nil {
		return nil, fmt.Errorf("catalog credentials: %w", err)
	}
	if _, err := authenticator.Token(ctx); err != nil {
		return nil, err
	}

	// WithRetry makes the library itself wait out 429s using Retry-After.
	api := spotifyapi.New(authenticator.Client(ctx), spotifyapi.WithRetry(true))
	return spotify.New(api,
		spotify.WithMarket(cfg.Market),
		spotify.WithRateLimit(cfg.RatePerSec, cfg.Burst),
		spotify.WithRetry(cfg.MaxRetries, cfg.BaseBackoff),
		spotify.WithObserver(metrics.Recorder{}),
	), nil
}
