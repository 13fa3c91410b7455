package service

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rl1809/market-core/internal/core/domain"
	"github.com/rl1809/market-core/internal/metrics"
	"github.com/rl1809/market-core/internal/port"
)

const tracerName = "github.com/rl1809/market-core/internal/core/service"

// RetryPolicy bounds the retries of a transaction the store aborted on a
// lock conflict.
type RetryPolicy struct {
	MaxAttempts    uint
	InitialBackoff time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, InitialBackoff: 10 * time.Millisecond}
}

// Runtime is what every core component shares: the pooled store, the clock,
// and the instrumentation.
type Runtime struct {
	store   port.Store
	clock   port.Clock
	metrics *metrics.Metrics
	retry   RetryPolicy
	tracer  trace.Tracer
}

func NewRuntime(store port.Store, clock port.Clock, m *metrics.Metrics, retry RetryPolicy) *Runtime {
	if clock == nil {
		clock = port.SystemClock{}
	}
	if retry.MaxAttempts == 0 {
		retry.MaxAttempts = 1
	}
	if retry.InitialBackoff <= 0 {
		retry.InitialBackoff = DefaultRetryPolicy().InitialBackoff
	}
	return &Runtime{
		store:   store,
		clock:   clock,
		metrics: m,
		retry:   retry,
		tracer:  otel.Tracer(tracerName),
	}
}

func (r *Runtime) Now() time.Time { return r.clock.Now() }

// inTx runs fn in a fresh transaction, retrying the whole transaction when
// the store reports a conflict. fn may run more than once and must not keep
// state across attempts.
func (r *Runtime) inTx(ctx context.Context, op string, fn func(tx port.Tx) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.retry.InitialBackoff
	b.MaxInterval = 50 * r.retry.InitialBackoff

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		if attempt > 1 {
			r.metrics.TxRetry(op)
		}
		err := r.store.InTx(ctx, fn)
		if err == nil || errors.Is(err, port.ErrTxConflict) {
			return struct{}{}, err
		}
		return struct{}{}, backoff.Permanent(err)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(r.retry.MaxAttempts))
	return err
}

// begin opens a span for op. The returned func must be deferred with the
// operation's named error: it turns foreign errors into internal ones,
// closes the span, records the outcome and logs failures.
func (r *Runtime) begin(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(*error)) {
	started := time.Now()
	ctx, span := r.tracer.Start(ctx, op, trace.WithAttributes(attrs...))

	return ctx, func(errp *error) {
		defer span.End()

		outcome := "ok"
		if *errp != nil {
			*errp = domain.AsDomain(*errp)
			kind := domain.KindOf(*errp)
			outcome = string(kind)
			span.SetStatus(codes.Error, string(kind))

			log := zerolog.Ctx(ctx)
			if kind == domain.KindInternal {
				span.RecordError(*errp)
				log.Error().Err(*errp).Str("op", op).Msg("operation failed")
			} else {
				log.Warn().Str("op", op).Str("kind", outcome).Msg((*errp).Error())
			}
		}
		r.metrics.ObserveOperation(op, outcome, started)
	}
}
