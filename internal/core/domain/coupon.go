package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Coupon struct {
	ID              int64
	CampaignID      int64
	BuyerID         int64
	Used            bool
	DiscountApplied decimal.Decimal
	DiscountPercent decimal.Decimal
	ExpirationDate  time.Time
	IssuedAt        time.Time
}

// Expired is evaluated lazily: a coupon stays valid through its
// expiration day.
func (c Coupon) Expired(now time.Time) bool {
	return Day(c.ExpirationDate).Before(Day(now))
}

// Discount is cartTotal * percent / 100, rounded to cents.
func Discount(cartTotal, percent decimal.Decimal) decimal.Decimal {
	return cartTotal.Mul(percent).Div(decimal.NewFromInt(100)).Round(2)
}
