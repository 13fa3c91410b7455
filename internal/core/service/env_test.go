package service

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/market-core/internal/adapter/storage"
	"github.com/rl1809/market-core/internal/core/domain"
	"github.com/rl1809/market-core/internal/metrics"
	"github.com/rl1809/market-core/internal/port"
)

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []port.Event
}

func (p *recordingPublisher) Publish(_ context.Context, events ...port.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func (p *recordingPublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type memoryGuard struct {
	mu       sync.Mutex
	held     map[string]string
	issued   int
	released []string
}

func (g *memoryGuard) Acquire(_ context.Context, key string) (string, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.held[key]; ok {
		return "", false, nil
	}
	g.issued++
	token := fmt.Sprintf("%s#%d", key, g.issued)
	g.held[key] = token
	return token, true, nil
}

func (g *memoryGuard) Release(_ context.Context, key, token string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.held[key] == token {
		delete(g.held, key)
	}
	g.released = append(g.released, key)
	return nil
}

type testEnv struct {
	store     *storage.SQLStore
	clock     *fixedClock
	rt        *Runtime
	guard     *memoryGuard
	published *recordingPublisher
	events    *EventDispatcher
	Components
}

var day0 = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := storage.Open(context.Background(), storage.DialectSQLite,
		filepath.Join(t.TempDir(), "market.db"), storage.PoolConfig{MaxOpenConns: 16})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	env := &testEnv{
		store:     store,
		clock:     &fixedClock{now: day0},
		guard:     &memoryGuard{held: map[string]string{}},
		published: &recordingPublisher{},
	}
	env.rt = NewRuntime(store, env.clock, metrics.New(prometheus.NewRegistry()),
		RetryPolicy{MaxAttempts: 10, InitialBackoff: 5 * time.Millisecond})
	env.events = NewEventDispatcher(env.published, 256, nil, zerolog.Nop())
	env.events.Start(1)
	t.Cleanup(env.events.Close)

	env.Components = NewComponents(env.rt, env.guard, env.events, DefaultCouponValidity)
	return env
}

func rawAttrs(t *testing.T, in map[string]any) map[string]json.RawMessage {
	t.Helper()
	out, err := domain.RawAttributes(in)
	require.NoError(t, err)
	return out
}

func (e *testEnv) newPhone(t *testing.T, sellerID int64, price string, stock int) int64 {
	t.Helper()
	id, err := e.Catalog.CreateProduct(context.Background(), sellerID, domain.NewProduct{
		Name:        "phone",
		Price:       decimal.RequireFromString(price),
		Stock:       stock,
		Description: "a phone",
		Type:        "smartphones",
		Attributes: rawAttrs(t, map[string]any{
			"screen_size": 6.1, "os": "android", "storage": 128, "color": "black",
		}),
	})
	require.NoError(t, err)
	return id
}

func (e *testEnv) available(t *testing.T, productID, version int64) int {
	t.Helper()
	n, err := e.Inventory.Available(context.Background(), productID, version)
	require.NoError(t, err)
	return n
}

func (e *testEnv) count(t *testing.T, table string) int {
	t.Helper()
	var n int
	require.NoError(t, e.store.DB().QueryRow(`SELECT COUNT(*) FROM `+table).Scan(&n))
	return n
}

func (e *testEnv) newCampaign(t *testing.T, start, end string, budget int, percent string) int64 {
	t.Helper()
	s, err := domain.ParseDay(start)
	require.NoError(t, err)
	f, err := domain.ParseDay(end)
	require.NoError(t, err)
	id, err := e.Campaigns.CreateCampaign(context.Background(), 1, domain.NewCampaign{
		Description:     "campaign " + start,
		DateStart:       s,
		DateEnd:         f,
		CouponBudget:    budget,
		DiscountPercent: decimal.RequireFromString(percent),
	})
	require.NoError(t, err)
	return id
}

func requireKind(t *testing.T, err error, kind domain.Kind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, domain.KindOf(err), "error: %v", err)
}

func checkoutOf(lines ...domain.CartLine) domain.CheckoutRequest {
	return domain.CheckoutRequest{Cart: lines}
}

func item(productID int64, quantity int) domain.CartLine {
	return domain.CartLine{ProductID: productID, Quantity: quantity}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
