package handler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

// MarketplaceService is the name health status is reported under, besides
// the server-wide empty name.
const MarketplaceService = "market.Marketplace"

// HealthReporter keeps the gRPC health service in step with store liveness.
type HealthReporter struct {
	server   *health.Server
	store    Pinger
	interval time.Duration
	log      zerolog.Logger
}

func NewHealthReporter(store Pinger, interval time.Duration, log zerolog.Logger) *HealthReporter {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &HealthReporter{server: health.NewServer(), store: store, interval: interval, log: log}
}

// Probe pings the store once and publishes the result.
func (h *HealthReporter) Probe(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	st := healthpb.HealthCheckResponse_SERVING
	if err := h.store.Ping(ctx); err != nil {
		h.log.Warn().Err(err).Msg("store ping failed, reporting NOT_SERVING")
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.server.SetServingStatus("", st)
	h.server.SetServingStatus(MarketplaceService, st)
	return st
}

// Run probes until ctx is done, then marks everything NOT_SERVING.
func (h *HealthReporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		probeCtx, cancel := context.WithTimeout(ctx, h.interval)
		h.Probe(probeCtx)
		cancel()

		select {
		case <-ctx.Done():
			h.server.Shutdown()
			return nil
		case <-ticker.C:
		}
	}
}

// NewGRPCServer hosts the health service and reflection, traced through
// the global otel provider.
func NewGRPCServer(reporter *HealthReporter, log zerolog.Logger) *grpc.Server {
	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(loggingInterceptor(log)),
	)
	healthpb.RegisterHealthServer(srv, reporter.server)
	reflection.Register(srv)
	return srv
}

func loggingInterceptor(log zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		started := time.Now()
		resp, err := next(log.WithContext(ctx), req)
		log.Debug().
			Str("method", info.FullMethod).
			Str("code", status.Code(err).String()).
			Dur("duration", time.Since(started)).
			Msg("grpc request")
		return resp, err
	}
}
