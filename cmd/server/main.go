package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rl1809/market-core/internal/adapter/events"
	"github.com/rl1809/market-core/internal/adapter/handler"
	"github.com/rl1809/market-core/internal/adapter/identity"
	"github.com/rl1809/market-core/internal/adapter/storage"
	"github.com/rl1809/market-core/internal/config"
	"github.com/rl1809/market-core/internal/core/service"
	"github.com/rl1809/market-core/internal/metrics"
	"github.com/rl1809/market-core/internal/port"
	"github.com/rl1809/market-core/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("load config")
	}
	log := telemetry.NewLogger(os.Stdout, cfg.ServiceName, cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
	log.Info().Msg("shutdown complete")
}

func run(cfg config.Config, log zerolog.Logger) error {
	if cfg.JWTSecret == "" {
		return errors.New("MARKET_JWT_SECRET is required to serve requests")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = log.WithContext(ctx)

	shutdownTracing, err := telemetry.Setup(ctx, cfg.ServiceName, cfg.OTELEndpoint)
	if err != nil {
		return err
	}
	defer shutdownTracing(context.Background())

	dialect, err := storage.ParseDialect(cfg.StoreDriver)
	if err != nil {
		return err
	}
	store, err := storage.Open(ctx, dialect, cfg.StoreDSN, storage.PoolConfig{
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	})
	if err != nil {
		return err
	}
	defer store.Close()
	log.Info().Str("driver", string(dialect)).Msg("connected to store")

	var guard port.IdempotencyGuard = port.NopGuard{}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			PoolSize: cfg.RedisPoolSize,
		})
		defer rdb.Close()
		adapter := storage.NewRedisAdapter(rdb, cfg.IdempotencyTTL)
		if err := adapter.Ping(ctx); err != nil {
			return err
		}
		guard = adapter
		log.Info().Str("addr", cfg.RedisAddr).Msg("connected to redis")
	}

	var publisher port.EventPublisher = port.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		kp := events.NewKafkaPublisher(events.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic))
		defer kp.Close()
		publisher = kp
		log.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("publishing events to kafka")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	dispatcher := service.NewEventDispatcher(publisher, cfg.EventQueue, m, log)
	dispatcher.Start(cfg.EventWorkers)
	// Closed after both servers stop so that in-flight requests can still
	// enqueue events.
	defer dispatcher.Close()

	rt := service.NewRuntime(store, port.SystemClock{}, m, service.RetryPolicy{
		MaxAttempts:    cfg.TxMaxAttempts,
		InitialBackoff: cfg.TxInitialBackoff,
	})
	components := service.NewComponents(rt, guard, dispatcher, cfg.CouponValidity)

	auth, err := identity.NewJWTAuthenticator(cfg.JWTSecret, cfg.JWTAudience)
	if err != nil {
		return err
	}
	market := service.NewMarketplace(auth, nil, port.SystemClock{}, components)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.NewHTTPHandler(market, store, log).Routes(reg),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       requestBase(ctx),
	}

	reporter := handler.NewHealthReporter(store, 5*time.Second, log)
	grpcServer := handler.NewGRPCServer(reporter, log)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		log.Info().Str("addr", cfg.GRPCAddr).Msg("gRPC server listening")
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		return reporter.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		log.Info().Msg("HTTP server stopped")

		grpcServer.GracefulStop()
		log.Info().Msg("gRPC server stopped")
		return err
	})
	return g.Wait()
}

// requestBase keeps the logger of ctx but not its cancellation: a signal
// starts Shutdown, which lets in-flight requests finish on their own.
func requestBase(ctx context.Context) func(net.Listener) context.Context {
	base := context.WithoutCancel(ctx)
	return func(net.Listener) context.Context { return base }
}
