package service

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/market-core/internal/core/domain"
)

const buyer = int64(42)

func TestCheckout_Success(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.newPhone(t, 7, "100.00", 10)
	b := env.newPhone(t, 7, "25.50", 3)

	order, err := env.Orders.Checkout(ctx, buyer, checkoutOf(item(a, 2), item(b, 3)))
	require.NoError(t, err)

	assert.NotZero(t, order.ID)
	assert.Equal(t, buyer, order.BuyerID)
	assert.True(t, dec("276.50").Equal(order.TotalPrice), "got %s", order.TotalPrice)
	assert.Nil(t, order.CouponID)
	require.Len(t, order.Lines, 2)
	assert.Equal(t, a, order.Lines[0].ProductID)
	assert.Equal(t, int64(1), order.Lines[0].Version)

	assert.Equal(t, 8, env.available(t, a, 1))
	assert.Equal(t, 0, env.available(t, b, 1))

	stored, err := env.Orders.GetOrder(ctx, buyer, order.ID)
	require.NoError(t, err)
	assert.True(t, order.TotalPrice.Equal(stored.TotalPrice))
	assert.Len(t, stored.Lines, 2)

	_, err = env.Orders.GetOrder(ctx, buyer+1, order.ID)
	requireKind(t, err, domain.KindOrderNotFound)

	assert.Contains(t, eventually(t, env, 3), "order.placed")
}

func TestCheckout_OrderIDsAreMonotonic(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.newPhone(t, 7, "1.00", 10)

	first, err := env.Orders.Checkout(ctx, buyer, checkoutOf(item(a, 1)))
	require.NoError(t, err)
	second, err := env.Orders.Checkout(ctx, buyer, checkoutOf(item(a, 1)))
	require.NoError(t, err)
	assert.Greater(t, second.ID, first.ID)
}

func TestCheckout_BindsLinesToLatestVersion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.newPhone(t, 7, "100.00", 10)

	price := dec("80.00")
	stock := 4
	_, err := env.Catalog.UpdateProduct(ctx, 7, a, domain.ProductPatch{Price: &price, Stock: &stock})
	require.NoError(t, err)

	order, err := env.Orders.Checkout(ctx, buyer, checkoutOf(item(a, 4)))
	require.NoError(t, err)
	assert.Equal(t, int64(2), order.Lines[0].Version)
	assert.True(t, dec("320").Equal(order.TotalPrice))
	assert.Equal(t, 0, env.available(t, a, 2))
	assert.Equal(t, 10, env.available(t, a, 1))
}

func TestCheckout_MergesRepeatedProducts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.newPhone(t, 7, "10.00", 10)
	b := env.newPhone(t, 7, "1.00", 10)

	order, err := env.Orders.Checkout(ctx, buyer, checkoutOf(item(b, 1), item(a, 2), item(b, 3)))
	require.NoError(t, err)
	require.Len(t, order.Lines, 2)
	assert.Equal(t, b, order.Lines[0].ProductID)
	assert.Equal(t, 4, order.Lines[0].Quantity)
	assert.True(t, dec("24").Equal(order.TotalPrice))
	assert.Equal(t, 6, env.available(t, b, 1))
}

func TestCheckout_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.Orders.Checkout(ctx, buyer, checkoutOf())
	requireKind(t, err, domain.KindValidation)

	_, err = env.Orders.Checkout(ctx, buyer, checkoutOf(item(1, 0)))
	requireKind(t, err, domain.KindValidation)

	_, err = env.Orders.Checkout(ctx, buyer, checkoutOf(item(0, 1)))
	requireKind(t, err, domain.KindValidation)

	_, err = env.Orders.Checkout(ctx, buyer, checkoutOf(item(1, math.MaxInt), item(1, 1)))
	requireKind(t, err, domain.KindValidation)

	assert.Zero(t, env.count(t, "orders"))
}

func TestCheckout_TotalBound(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.newPhone(t, 7, domain.MaxAmount.String(), 5)

	_, err := env.Orders.Checkout(ctx, buyer, checkoutOf(item(a, 2)))
	requireKind(t, err, domain.KindValidation)
	assert.Equal(t, 5, env.available(t, a, 1))
	assert.Zero(t, env.count(t, "orders"))

	order, err := env.Orders.Checkout(ctx, buyer, checkoutOf(item(a, 1)))
	require.NoError(t, err)
	stored, err := env.Orders.GetOrder(ctx, buyer, order.ID)
	require.NoError(t, err)
	assert.True(t, domain.MaxAmount.Equal(stored.TotalPrice), stored.TotalPrice.String())
}

func TestCheckout_FailureLeavesNoTrace(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.newPhone(t, 7, "100.00", 10)
	b := env.newPhone(t, 7, "100.00", 1)
	campaign := env.newCampaign(t, "2024-01-01", "2024-01-31", 5, "10")
	coupon, err := env.Campaigns.TrySubscribe(ctx, campaign, buyer, env.clock.Now())
	require.NoError(t, err)

	req := checkoutOf(item(a, 5), item(b, 2))
	req.CouponID = &coupon.ID
	_, err = env.Orders.Checkout(ctx, buyer, req)
	requireKind(t, err, domain.KindInsufficientStock)

	_, err = env.Orders.Checkout(ctx, buyer, checkoutOf(item(a, 5), item(999, 1)))
	requireKind(t, err, domain.KindProductNotFound)

	assert.Equal(t, 10, env.available(t, a, 1), "reservation of the first line rolled back")
	assert.Equal(t, 1, env.available(t, b, 1))
	assert.Zero(t, env.count(t, "orders"))
	assert.Zero(t, env.count(t, "order_lines"))

	coupons, err := env.Coupons.ListForBuyer(ctx, buyer)
	require.NoError(t, err)
	require.Len(t, coupons, 1)
	assert.False(t, coupons[0].Used, "coupon left unused")
}

func TestCheckout_WithCoupon(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.newPhone(t, 7, "333.33", 10)
	campaign := env.newCampaign(t, "2024-01-01", "2024-01-31", 5, "10")
	coupon, err := env.Campaigns.TrySubscribe(ctx, campaign, buyer, env.clock.Now())
	require.NoError(t, err)

	req := checkoutOf(item(a, 1))
	req.CouponID = &coupon.ID
	order, err := env.Orders.Checkout(ctx, buyer, req)
	require.NoError(t, err)

	assert.True(t, dec("33.33").Equal(order.Discount), "got %s", order.Discount)
	assert.True(t, dec("300.00").Equal(order.TotalPrice), "got %s", order.TotalPrice)
	require.NotNil(t, order.CouponID)
	assert.Equal(t, coupon.ID, *order.CouponID)
	require.NotNil(t, order.CampaignID)
	assert.Equal(t, campaign, *order.CampaignID)

	_, err = env.Orders.Checkout(ctx, buyer, req)
	requireKind(t, err, domain.KindCouponAlreadyUsed)
	assert.Equal(t, 9, env.available(t, a, 1))

	stats, err := env.Campaigns.GetStats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, 1, stats[0].UsedCoupons)
	assert.True(t, dec("33.33").Equal(stats[0].TotalDiscountValue))
}

func TestCheckout_CouponOwnershipAndExpiry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.newPhone(t, 7, "10.00", 10)
	campaign := env.newCampaign(t, "2024-01-01", "2024-01-31", 5, "50")
	coupon, err := env.Campaigns.TrySubscribe(ctx, campaign, buyer, env.clock.Now())
	require.NoError(t, err)

	req := checkoutOf(item(a, 1))
	req.CouponID = &coupon.ID
	_, err = env.Orders.Checkout(ctx, buyer+1, req)
	requireKind(t, err, domain.KindCouponNotFound)

	missing := coupon.ID + 100
	req.CouponID = &missing
	_, err = env.Orders.Checkout(ctx, buyer, req)
	requireKind(t, err, domain.KindCouponNotFound)

	// Still valid on its expiration day, expired the day after.
	req.CouponID = &coupon.ID
	env.clock.Set(coupon.ExpirationDate.Add(24*time.Hour + time.Minute))
	_, err = env.Orders.Checkout(ctx, buyer, req)
	requireKind(t, err, domain.KindCouponExpired)

	env.clock.Set(domain.Day(coupon.ExpirationDate).Add(23 * time.Hour))
	_, err = env.Orders.Checkout(ctx, buyer, req)
	require.NoError(t, err)
}

func TestCheckout_IdempotencyKey(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.newPhone(t, 7, "10.00", 1)

	req := checkoutOf(item(a, 1))
	req.IdempotencyKey = "k1"
	_, err := env.Orders.Checkout(ctx, buyer, req)
	require.NoError(t, err)

	_, err = env.Orders.Checkout(ctx, buyer, req)
	requireKind(t, err, domain.KindDuplicateRequest)

	// A failed checkout frees its key so the client may retry.
	req.IdempotencyKey = "k2"
	_, err = env.Orders.Checkout(ctx, buyer, req)
	requireKind(t, err, domain.KindInsufficientStock)
	assert.Contains(t, env.guard.released, "order:42:k2")
	assert.NotContains(t, env.guard.released, "order:42:k1")
}

func TestCheckout_LastUnitRace(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.newPhone(t, 7, "10.00", 1)

	const buyers = 10
	errs := raceAll(buyers, func(i int) error {
		_, err := env.Orders.Checkout(ctx, int64(100+i), checkoutOf(item(a, 1)))
		return err
	})

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		requireKind(t, err, domain.KindInsufficientStock)
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 0, env.available(t, a, 1))
	assert.Equal(t, 1, env.count(t, "orders"))
}

func TestCheckout_TwoConcurrentBuyersOfSix(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.newPhone(t, 7, "100", 10)

	orders := make([]domain.Order, 2)
	errs := raceAll(2, func(i int) error {
		var err error
		orders[i], err = env.Orders.Checkout(ctx, int64(200+i), checkoutOf(item(a, 6)))
		return err
	})

	var winner int
	switch {
	case errs[0] == nil && errs[1] != nil:
		winner = 0
		requireKind(t, errs[1], domain.KindInsufficientStock)
	case errs[1] == nil && errs[0] != nil:
		winner = 1
		requireKind(t, errs[0], domain.KindInsufficientStock)
	default:
		t.Fatalf("expected exactly one winner, got errors %v and %v", errs[0], errs[1])
	}
	assert.True(t, dec("600").Equal(orders[winner].TotalPrice))
	assert.Equal(t, 4, env.available(t, a, 1))
}

func TestCheckout_ConcurrentCouponUseOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.newPhone(t, 7, "10.00", 100)
	campaign := env.newCampaign(t, "2024-01-01", "2024-01-31", 1, "10")
	coupon, err := env.Campaigns.TrySubscribe(ctx, campaign, buyer, env.clock.Now())
	require.NoError(t, err)

	errs := raceAll(5, func(int) error {
		req := checkoutOf(item(a, 1))
		req.CouponID = &coupon.ID
		_, err := env.Orders.Checkout(ctx, buyer, req)
		return err
	})

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		requireKind(t, err, domain.KindCouponAlreadyUsed)
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 99, env.available(t, a, 1))
}
