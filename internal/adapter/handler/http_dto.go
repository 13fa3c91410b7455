package handler

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/market-core/internal/core/domain"
)

type errorResponse struct {
	Success bool        `json:"success"`
	Kind    domain.Kind `json:"kind"`
	Message string      `json:"message"`
}

type idResponse struct {
	ID      int64 `json:"id"`
	Version int64 `json:"version,omitempty"`
}

type productRequest struct {
	Name        string                     `json:"name"`
	Price       decimal.Decimal            `json:"price"`
	Stock       int                        `json:"stock"`
	Description string                     `json:"description"`
	Type        string                     `json:"type"`
	Attributes  map[string]json.RawMessage `json:"attributes"`
}

func (r productRequest) toDomain() domain.NewProduct {
	return domain.NewProduct{
		Name:        r.Name,
		Price:       r.Price,
		Stock:       r.Stock,
		Description: r.Description,
		Type:        r.Type,
		Attributes:  r.Attributes,
	}
}

type productPatchRequest struct {
	Name        *string                    `json:"name"`
	Price       *decimal.Decimal           `json:"price"`
	Stock       *int                       `json:"stock"`
	Description *string                    `json:"description"`
	Attributes  map[string]json.RawMessage `json:"attributes"`
}

func (r productPatchRequest) toDomain() domain.ProductPatch {
	return domain.ProductPatch{
		Name:        r.Name,
		Price:       r.Price,
		Stock:       r.Stock,
		Description: r.Description,
		Attributes:  r.Attributes,
	}
}

type productResponse struct {
	ID          int64           `json:"id"`
	Version     int64           `json:"version"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Description string          `json:"description"`
	SellerID    int64           `json:"seller_id"`
	Type        domain.Category `json:"type"`
	Attributes  any             `json:"attributes"`
	CreatedAt   time.Time       `json:"created_at"`
}

type pricePointResponse struct {
	Version   int64           `json:"version"`
	Price     decimal.Decimal `json:"price"`
	CreatedAt time.Time       `json:"created_at"`
}

type productDetailsResponse struct {
	Product       productResponse      `json:"product"`
	PriceHistory  []pricePointResponse `json:"price_history"`
	AverageRating *float64             `json:"average_rating"`
	Comments      []string             `json:"comments"`
}

func toProductDetails(d domain.ProductDetails) productDetailsResponse {
	p := d.Product
	out := productDetailsResponse{
		Product: productResponse{
			ID:          p.ID,
			Version:     p.Version,
			Name:        p.Name,
			Price:       p.Price,
			Stock:       p.Stock,
			Description: p.Description,
			SellerID:    p.SellerID,
			Type:        p.Category(),
			Attributes:  p.Attributes,
			CreatedAt:   p.CreatedAt,
		},
		PriceHistory:  make([]pricePointResponse, 0, len(d.PriceHistory)),
		AverageRating: d.AverageRating,
		Comments:      d.Comments,
	}
	for _, pp := range d.PriceHistory {
		out.PriceHistory = append(out.PriceHistory, pricePointResponse{Version: pp.Version, Price: pp.Price, CreatedAt: pp.CreatedAt})
	}
	if out.Comments == nil {
		out.Comments = []string{}
	}
	return out
}

type cartLineRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type checkoutRequest struct {
	Cart           []cartLineRequest `json:"cart"`
	CouponID       *int64            `json:"coupon_id"`
	IdempotencyKey string            `json:"idempotency_key"`
}

func (r checkoutRequest) toDomain() domain.CheckoutRequest {
	req := domain.CheckoutRequest{CouponID: r.CouponID, IdempotencyKey: r.IdempotencyKey}
	for _, l := range r.Cart {
		req.Cart = append(req.Cart, domain.CartLine{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	return req
}

type orderLineResponse struct {
	ProductID int64           `json:"product_id"`
	Version   int64           `json:"version"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type orderResponse struct {
	ID         int64               `json:"id"`
	OrderDate  time.Time           `json:"order_date"`
	BuyerID    int64               `json:"buyer_id"`
	CouponID   *int64              `json:"coupon_id"`
	CampaignID *int64              `json:"campaign_id"`
	Discount   decimal.Decimal     `json:"discount"`
	TotalPrice decimal.Decimal     `json:"total_price"`
	Lines      []orderLineResponse `json:"lines"`
}

func toOrder(o domain.Order) orderResponse {
	out := orderResponse{
		ID:         o.ID,
		OrderDate:  o.OrderDate,
		BuyerID:    o.BuyerID,
		CouponID:   o.CouponID,
		CampaignID: o.CampaignID,
		Discount:   o.Discount,
		TotalPrice: o.TotalPrice,
		Lines:      make([]orderLineResponse, 0, len(o.Lines)),
	}
	for _, l := range o.Lines {
		out.Lines = append(out.Lines, orderLineResponse{
			ProductID: l.ProductID,
			Version:   l.Version,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			Subtotal:  l.Subtotal(),
		})
	}
	return out
}

type campaignRequest struct {
	Description string          `json:"description"`
	DateStart   string          `json:"date_start"`
	DateEnd     string          `json:"date_end"`
	Coupons     int             `json:"coupons"`
	Discount    decimal.Decimal `json:"discount"`
}

func (r campaignRequest) toDomain() (domain.NewCampaign, error) {
	start, err := domain.ParseDay(r.DateStart)
	if err != nil {
		return domain.NewCampaign{}, err
	}
	end, err := domain.ParseDay(r.DateEnd)
	if err != nil {
		return domain.NewCampaign{}, err
	}
	return domain.NewCampaign{
		Description:     r.Description,
		DateStart:       start,
		DateEnd:         end,
		CouponBudget:    r.Coupons,
		DiscountPercent: r.Discount,
	}, nil
}

type couponResponse struct {
	ID              int64           `json:"id"`
	CampaignID      int64           `json:"campaign_id"`
	BuyerID         int64           `json:"buyer_id"`
	Used            bool            `json:"used"`
	DiscountApplied decimal.Decimal `json:"discount_applied"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	ExpirationDate  string          `json:"expiration_date"`
	IssuedAt        time.Time       `json:"issued_at"`
}

func toCoupon(c domain.Coupon) couponResponse {
	return couponResponse{
		ID:              c.ID,
		CampaignID:      c.CampaignID,
		BuyerID:         c.BuyerID,
		Used:            c.Used,
		DiscountApplied: c.DiscountApplied,
		DiscountPercent: c.DiscountPercent,
		ExpirationDate:  c.ExpirationDate.Format(domain.DateLayout),
		IssuedAt:        c.IssuedAt,
	}
}

type campaignStatsResponse struct {
	CampaignID         int64           `json:"campaign_id"`
	GeneratedCoupons   int             `json:"generated_coupons"`
	UsedCoupons        int             `json:"used_coupons"`
	TotalDiscountValue decimal.Decimal `json:"total_discount_value"`
}

type ratingRequest struct {
	OrderID   int64  `json:"order_id"`
	ProductID int64  `json:"product_id"`
	Rating    int    `json:"rating"`
	Comment   string `json:"comment"`
}

type ratingResponse struct {
	OrderID        int64     `json:"order_id"`
	ProductID      int64     `json:"product_id"`
	ProductVersion int64     `json:"product_version"`
	Rating         int       `json:"rating"`
	Comment        string    `json:"comment"`
	CreatedAt      time.Time `json:"created_at"`
}

type roleRequest struct {
	UserID int64       `json:"user_id"`
	Role   domain.Role `json:"role"`
}
