package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rl1809/market-core/internal/adapter/identity"
	"github.com/rl1809/market-core/internal/adapter/storage"
	"github.com/rl1809/market-core/internal/config"
	"github.com/rl1809/market-core/internal/core/service"
	"github.com/rl1809/market-core/internal/port"
	"github.com/rl1809/market-core/internal/seed"
	"github.com/rl1809/market-core/internal/telemetry"
)

func main() {
	file := flag.String("file", "fixtures.yaml", "YAML fixture to load")
	tokenTTL := flag.Duration("token-ttl", time.Hour, "lifetime of the printed tokens")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := telemetry.NewLogger(os.Stderr, "market-seed", cfg.LogLevel)
	ctx := log.WithContext(context.Background())

	f, err := os.Open(*file)
	if err != nil {
		log.Fatal().Err(err).Msg("open fixture")
	}
	fixture, err := seed.Decode(f)
	f.Close()
	if err != nil {
		log.Fatal().Err(err).Str("file", *file).Send()
	}

	dialect, err := storage.ParseDialect(cfg.StoreDriver)
	if err != nil {
		log.Fatal().Err(err).Send()
	}
	store, err := storage.Open(ctx, dialect, cfg.StoreDSN, storage.PoolConfig{MaxOpenConns: cfg.MaxOpenConns})
	if err != nil {
		log.Fatal().Err(err).Msg("open store")
	}
	defer store.Close()

	rt := service.NewRuntime(store, port.SystemClock{}, nil, service.RetryPolicy{
		MaxAttempts:    cfg.TxMaxAttempts,
		InitialBackoff: cfg.TxInitialBackoff,
	})
	components := service.NewComponents(rt, port.NopGuard{}, nil, cfg.CouponValidity)

	rep, applyErr := seed.Apply(ctx, components, fixture)
	if applyErr != nil {
		log.Error().Err(applyErr).Msg("seed stopped")
	}
	log.Info().
		Int("users", len(rep.Users)).
		Ints64("products", rep.Products).
		Ints64("campaigns", rep.Campaigns).
		Msg("fixture applied")

	// Tokens let the seeded users call the API straight away.
	if cfg.JWTSecret != "" && len(rep.Users) > 0 {
		auth, err := identity.NewJWTAuthenticator(cfg.JWTSecret, cfg.JWTAudience)
		if err != nil {
			log.Fatal().Err(err).Send()
		}
		for _, id := range rep.Users {
			token, err := auth.Issue(id, *tokenTTL)
			if err != nil {
				log.Fatal().Err(err).Int64("user_id", id).Msg("issue token")
			}
			fmt.Printf("user %d: %s\n", id, token)
		}
	}

	if applyErr != nil {
		store.Close()
		os.Exit(1)
	}
}
