package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/rl1809/market-core/internal/core/domain"
	"github.com/rl1809/market-core/internal/port"
)

// OrderService settles checkouts: every line, the stock it reserves and the
// coupon it redeems commit together or not at all.
type OrderService struct {
	rt        *Runtime
	inventory *InventoryService
	coupons   *CouponService
	guard     port.IdempotencyGuard
	events    *EventDispatcher
}

func NewOrderService(rt *Runtime, inventory *InventoryService, coupons *CouponService, guard port.IdempotencyGuard, events *EventDispatcher) *OrderService {
	if guard == nil {
		guard = port.NopGuard{}
	}
	return &OrderService{rt: rt, inventory: inventory, coupons: coupons, guard: guard, events: events}
}

func (s *OrderService) Checkout(ctx context.Context, buyerID int64, req domain.CheckoutRequest) (order domain.Order, err error) {
	ctx, end := s.rt.begin(ctx, "order.checkout",
		attribute.Int64("buyer.id", buyerID), attribute.Int("cart.lines", len(req.Cart)))
	defer func() {
		end(&err)
		s.rt.metrics.Checkout(outcomeOf(err))
	}()

	if err := req.Validate(); err != nil {
		return domain.Order{}, err
	}
	cart := mergeCart(req.Cart)

	if req.IdempotencyKey != "" {
		key := fmt.Sprintf("order:%d:%s", buyerID, req.IdempotencyKey)
		token, ok, err := s.guard.Acquire(ctx, key)
		if err != nil {
			return domain.Order{}, fmt.Errorf("idempotency check failed: %w", err)
		}
		if !ok {
			return domain.Order{}, domain.NewError(domain.KindDuplicateRequest, 0, "duplicate request %q", req.IdempotencyKey)
		}
		defer func() {
			if err == nil {
				return
			}
			if rerr := s.guard.Release(context.WithoutCancel(ctx), key, token); rerr != nil {
				zerolog.Ctx(ctx).Error().Err(rerr).Str("key", key).Msg("release idempotency key")
			}
		}()
	}

	now := s.rt.Now()
	err = s.rt.inTx(ctx, "order.checkout", func(tx port.Tx) error {
		var err error
		order, err = s.settle(ctx, tx, buyerID, cart, req.CouponID, now)
		return err
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.events.Dispatch(ctx, orderPlacedEvent(order))
	return order, nil
}

// settle runs the checkout steps inside tx. Lines are processed in cart
// order, which is the order row locks are taken in.
func (s *OrderService) settle(ctx context.Context, tx port.Tx, buyerID int64, cart []domain.CartLine, couponID *int64, now time.Time) (domain.Order, error) {
	orderID, err := tx.InsertOrder(ctx, buyerID, now)
	if err != nil {
		return domain.Order{}, err
	}
	order := domain.Order{
		ID:        orderID,
		OrderDate: now,
		BuyerID:   buyerID,
		Discount:  decimal.Zero,
	}

	total := decimal.Zero
	for _, item := range cart {
		product, err := latestProduct(ctx, tx, item.ProductID)
		if err != nil {
			return domain.Order{}, err
		}
		if err := s.inventory.Reserve(ctx, tx, product.ID, product.Version, item.Quantity); err != nil {
			return domain.Order{}, err
		}

		line := domain.OrderLine{
			OrderID:   orderID,
			ProductID: product.ID,
			Version:   product.Version,
			Quantity:  item.Quantity,
			UnitPrice: product.Price,
		}
		total = total.Add(line.Subtotal())
		if total.GreaterThan(domain.MaxAmount) {
			return domain.Order{}, domain.Validation("order total exceeds %s", domain.MaxAmount)
		}
		if err := tx.InsertOrderLine(ctx, line); err != nil {
			return domain.Order{}, err
		}
		order.Lines = append(order.Lines, line)
	}

	if couponID != nil {
		coupon, err := s.coupons.Redeem(ctx, tx, *couponID, buyerID, total, now)
		if err != nil {
			return domain.Order{}, err
		}
		campaignID := coupon.CampaignID
		order.CouponID = &coupon.ID
		order.CampaignID = &campaignID
		order.Discount = coupon.DiscountApplied
		total = total.Sub(coupon.DiscountApplied)
	}

	order.TotalPrice = total
	if err := tx.FinalizeOrder(ctx, order); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

// GetOrder returns an order placed by buyerID.
func (s *OrderService) GetOrder(ctx context.Context, buyerID, orderID int64) (order domain.Order, err error) {
	ctx, end := s.rt.begin(ctx, "order.get", attribute.Int64("order.id", orderID))
	defer end(&err)

	err = s.rt.inTx(ctx, "order.get", func(tx port.Tx) error {
		order, err = tx.Order(ctx, orderID)
		if errors.Is(err, port.ErrNotFound) || (err == nil && order.BuyerID != buyerID) {
			return domain.NewError(domain.KindOrderNotFound, orderID, "order %d not found", orderID)
		}
		return err
	})
	return order, err
}

// mergeCart folds repeated products into one line, keeping the position of
// the first occurrence.
func mergeCart(cart []domain.CartLine) []domain.CartLine {
	merged := make([]domain.CartLine, 0, len(cart))
	index := make(map[int64]int, len(cart))
	for _, l := range cart {
		if i, ok := index[l.ProductID]; ok {
			merged[i].Quantity += l.Quantity
			continue
		}
		index[l.ProductID] = len(merged)
		merged = append(merged, l)
	}
	return merged
}

func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	return string(domain.KindOf(err))
}

func orderPlacedEvent(o domain.Order) port.Event {
	lines := make([]map[string]any, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, map[string]any{
			"product_id": l.ProductID,
			"version":    l.Version,
			"quantity":   l.Quantity,
			"unit_price": l.UnitPrice.StringFixed(2),
		})
	}
	payload := map[string]any{
		"order_id":    o.ID,
		"buyer_id":    o.BuyerID,
		"total_price": o.TotalPrice.StringFixed(2),
		"discount":    o.Discount.StringFixed(2),
		"lines":       lines,
	}
	if o.CouponID != nil {
		payload["coupon_id"] = *o.CouponID
	}
	return port.Event{
		Type:       port.EventOrderPlaced,
		Key:        keyOf(o.BuyerID),
		OccurredAt: o.OrderDate,
		Payload:    payload,
	}
}
