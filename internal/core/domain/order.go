package domain

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

type Order struct {
	ID         int64
	OrderDate  time.Time
	BuyerID    int64
	CouponID   *int64
	CampaignID *int64
	Discount   decimal.Decimal
	TotalPrice decimal.Decimal
	Lines      []OrderLine
}

// OrderLine binds a quantity to the exact product version reserved.
type OrderLine struct {
	OrderID   int64
	ProductID int64
	Version   int64
	Quantity  int
	UnitPrice decimal.Decimal
}

func (l OrderLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type CartLine struct {
	ProductID int64
	Quantity  int
}

type CheckoutRequest struct {
	Cart     []CartLine
	CouponID *int64
	// IdempotencyKey is optional; a repeated key is rejected while the first
	// attempt holds it.
	IdempotencyKey string
}

// Validate runs before any transaction is opened. Repeated products are
// summed, and the sums must stay representable.
func (r CheckoutRequest) Validate() error {
	if len(r.Cart) == 0 {
		return Validation("cart is required to buy products")
	}
	sums := make(map[int64]int, len(r.Cart))
	for i, l := range r.Cart {
		if l.ProductID <= 0 {
			return Validation("cart line %d: product_id is required", i)
		}
		if l.Quantity <= 0 {
			return Validation("cart line %d: quantity must be positive for product %d", i, l.ProductID)
		}
		if sums[l.ProductID] > math.MaxInt-l.Quantity {
			return Validation("cart line %d: total quantity of product %d is too large", i, l.ProductID)
		}
		sums[l.ProductID] += l.Quantity
	}
	if r.CouponID != nil && *r.CouponID <= 0 {
		return Validation("coupon id must be positive")
	}
	return nil
}
