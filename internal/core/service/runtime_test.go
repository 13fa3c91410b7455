package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/market-core/internal/core/domain"
	"github.com/rl1809/market-core/internal/metrics"
	"github.com/rl1809/market-core/internal/port"
)

// flakyStore fails the first n transactions with a conflict.
type flakyStore struct {
	conflicts int
	calls     int
}

func (s *flakyStore) InTx(_ context.Context, fn func(tx port.Tx) error) error {
	s.calls++
	if s.calls <= s.conflicts {
		return fmt.Errorf("%w: database is locked", port.ErrTxConflict)
	}
	return fn(nil)
}

func (s *flakyStore) Ping(context.Context) error { return nil }

func TestInTx_RetriesConflicts(t *testing.T) {
	store := &flakyStore{conflicts: 2}
	rt := NewRuntime(store, nil, metrics.New(prometheus.NewRegistry()), RetryPolicy{MaxAttempts: 5, InitialBackoff: time.Millisecond})

	ran := 0
	err := rt.inTx(context.Background(), "test", func(port.Tx) error {
		ran++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, store.calls)
	assert.Equal(t, 1, ran)
}

func TestInTx_GivesUpAfterMaxAttempts(t *testing.T) {
	store := &flakyStore{conflicts: 100}
	rt := NewRuntime(store, nil, nil, RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond})

	err := rt.inTx(context.Background(), "test", func(port.Tx) error { return nil })
	require.ErrorIs(t, err, port.ErrTxConflict)
	assert.Equal(t, 3, store.calls)
}

func TestInTx_DomainErrorsAreNotRetried(t *testing.T) {
	store := &flakyStore{}
	rt := NewRuntime(store, nil, nil, DefaultRetryPolicy())

	want := domain.ProductNotFound(9)
	err := rt.inTx(context.Background(), "test", func(port.Tx) error { return want })
	assert.Same(t, want, err)
	assert.Equal(t, 1, store.calls)
}

func TestBegin_HidesForeignErrors(t *testing.T) {
	rt := NewRuntime(&flakyStore{}, nil, nil, DefaultRetryPolicy())

	run := func(cause error) (err error) {
		_, end := rt.begin(context.Background(), "test")
		defer end(&err)
		return cause
	}

	err := run(errors.New("dial tcp 10.0.0.1:3306: connection refused"))
	requireKind(t, err, domain.KindInternal)
	var de *domain.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "internal error", de.Detail)

	err = run(domain.CouponNotFound(3))
	requireKind(t, err, domain.KindCouponNotFound)

	assert.NoError(t, run(nil))
}

type failingPublisher struct{ calls chan port.Event }

func (p failingPublisher) Publish(_ context.Context, events ...port.Event) error {
	for _, e := range events {
		p.calls <- e
	}
	return errors.New("broker down")
}

func TestEventDispatcher(t *testing.T) {
	pub := failingPublisher{calls: make(chan port.Event, 4)}
	d := NewEventDispatcher(pub, 1, nil, zerolog.Nop())

	// Nothing drains the queue yet: the second event does not fit.
	d.Dispatch(context.Background(), port.Event{Type: "a"}, port.Event{Type: "b"})
	d.Start(2)
	assert.Equal(t, "a", (<-pub.calls).Type)

	d.Close()
	d.Close()
	d.Dispatch(context.Background(), port.Event{Type: "after close"})
	assert.Empty(t, pub.calls)

	var nilDispatcher *EventDispatcher
	assert.NotPanics(t, func() {
		nilDispatcher.Dispatch(context.Background(), port.Event{Type: "x"})
		nilDispatcher.Close()
	})
}

func TestMergeCart(t *testing.T) {
	got := mergeCart([]domain.CartLine{item(3, 1), item(1, 2), item(3, 4), item(2, 1)})
	assert.Equal(t, []domain.CartLine{item(3, 5), item(1, 2), item(2, 1)}, got)
}
