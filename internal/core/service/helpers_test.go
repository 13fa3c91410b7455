package service

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// runConcurrently starts n workers together and fails the test on the first
// error any of them returns.
func runConcurrently(t *testing.T, n int, fn func(i int) error) {
	t.Helper()
	start := make(chan struct{})
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			<-start
			return fn(i)
		})
	}
	close(start)
	require.NoError(t, g.Wait())
}

// raceAll is runConcurrently for workers whose failures are part of the
// outcome: every error is collected instead of failing the test.
func raceAll(n int, fn func(i int) error) []error {
	start := make(chan struct{})
	errs := make([]error, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			<-start
			errs[i] = fn(i)
			return nil
		})
	}
	close(start)
	_ = g.Wait()
	return errs
}

// eventually waits for the dispatcher to deliver want events.
func eventually(t *testing.T, env *testEnv, want int) []string {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(env.published.Types()) >= want
	}, 2*time.Second, 10*time.Millisecond)
	return env.published.Types()
}

func decFromInt(i int) decimal.Decimal {
	return decimal.NewFromInt(int64(i))
}
