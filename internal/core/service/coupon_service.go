package service

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/rl1809/market-core/internal/core/domain"
	"github.com/rl1809/market-core/internal/port"
)

// CouponService issues and redeems single-use coupons. Issue and Redeem only
// run inside a transaction owned by another component.
type CouponService struct {
	rt *Runtime
}

func NewCouponService(rt *Runtime) *CouponService {
	return &CouponService{rt: rt}
}

func (s *CouponService) Issue(ctx context.Context, tx port.CouponRepository, campaign domain.Campaign, buyerID int64, issuedAt, expiration time.Time) (domain.Coupon, error) {
	c := domain.Coupon{
		CampaignID:      campaign.ID,
		BuyerID:         buyerID,
		DiscountApplied: decimal.Zero,
		DiscountPercent: campaign.DiscountPercent,
		ExpirationDate:  expiration,
		IssuedAt:        issuedAt,
	}
	id, err := tx.InsertCoupon(ctx, c)
	if err != nil {
		return domain.Coupon{}, err
	}
	c.ID = id
	return c, nil
}

// Redeem marks the coupon used against cartTotal and returns it with the
// discount applied. A coupon that does not exist and one owned by another
// buyer are reported the same way.
func (s *CouponService) Redeem(ctx context.Context, tx port.CouponRepository, couponID, buyerID int64, cartTotal decimal.Decimal, today time.Time) (domain.Coupon, error) {
	c, err := tx.LockCoupon(ctx, couponID)
	if errors.Is(err, port.ErrNotFound) {
		return domain.Coupon{}, domain.CouponNotFound(couponID)
	}
	if err != nil {
		return domain.Coupon{}, err
	}
	if c.BuyerID != buyerID {
		return domain.Coupon{}, domain.CouponNotFound(couponID)
	}
	if c.Used {
		return domain.Coupon{}, domain.NewError(domain.KindCouponAlreadyUsed, couponID, "coupon %d was already used", couponID)
	}
	if c.Expired(today) {
		return domain.Coupon{}, domain.NewError(domain.KindCouponExpired, couponID,
			"coupon %d expired on %s", couponID, c.ExpirationDate.Format(domain.DateLayout))
	}

	discount := domain.Discount(cartTotal, c.DiscountPercent)
	if err := tx.MarkCouponUsed(ctx, couponID, discount); err != nil {
		if errors.Is(err, port.ErrDuplicate) {
			return domain.Coupon{}, domain.NewError(domain.KindCouponAlreadyUsed, couponID, "coupon %d was already used", couponID)
		}
		return domain.Coupon{}, err
	}
	c.Used = true
	c.DiscountApplied = discount
	return c, nil
}

func (s *CouponService) ListForBuyer(ctx context.Context, buyerID int64) (coupons []domain.Coupon, err error) {
	ctx, end := s.rt.begin(ctx, "coupon.list", attribute.Int64("buyer.id", buyerID))
	defer end(&err)

	err = s.rt.inTx(ctx, "coupon.list", func(tx port.Tx) error {
		coupons, err = tx.CouponsForBuyer(ctx, buyerID)
		return err
	})
	return coupons, err
}
