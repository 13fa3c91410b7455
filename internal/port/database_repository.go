package port

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/market-core/internal/core/domain"
)

var (
	// ErrNotFound is returned by lookups that match no row.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned when a uniqueness constraint rejects a write.
	ErrDuplicate = errors.New("duplicate record")

	// ErrTxConflict marks a transaction the store aborted because of lock
	// contention or serialization failure; the whole transaction may be retried.
	ErrTxConflict = errors.New("transaction conflict")
)

type Store interface {
	// InTx runs fn inside one transaction scoped to this call. It commits when
	// fn returns nil and rolls back otherwise; the connection is always
	// released before InTx returns.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	Ping(ctx context.Context) error
}

// Tx is the transactional view of every repository.
type Tx interface {
	CatalogRepository
	InventoryRepository
	CampaignRepository
	CouponRepository
	OrderRepository
	RatingRepository
	RoleRepository
}

type CatalogRepository interface {
	// InsertProduct allocates a product id and writes its first version.
	InsertProduct(ctx context.Context, p domain.Product) (int64, error)

	// LockProductHead locks the product's head row for the rest of the
	// transaction and returns its latest version and owner.
	LockProductHead(ctx context.Context, productID int64) (latest int64, sellerID int64, err error)

	// InsertProductVersion writes a new snapshot and advances the head row.
	InsertProductVersion(ctx context.Context, p domain.Product) error

	// LatestProduct returns the snapshot with the greatest version, with the
	// stock counter of that version.
	LatestProduct(ctx context.Context, productID int64) (domain.Product, error)

	// PriceHistory lists every version oldest first.
	PriceHistory(ctx context.Context, productID int64) ([]domain.PricePoint, error)
}

type InventoryRepository interface {
	InsertStock(ctx context.Context, counter domain.StockCounter) error

	// LockStock reads the counter and holds an exclusive row lock on it.
	LockStock(ctx context.Context, productID, version int64) (domain.StockCounter, error)

	// DecrementStock subtracts quantity when enough is left; false otherwise.
	DecrementStock(ctx context.Context, productID, version int64, quantity int, at time.Time) (bool, error)

	Stock(ctx context.Context, productID, version int64) (domain.StockCounter, error)
}

type CampaignRepository interface {
	// LockCampaignRegistry serializes campaign creation.
	LockCampaignRegistry(ctx context.Context) error

	CountOverlappingCampaigns(ctx context.Context, start, end time.Time) (int, error)

	InsertCampaign(ctx context.Context, c domain.Campaign) (int64, error)

	// TakeCouponFromBudget decrements the budget when day is inside the
	// window and budget remains; false otherwise.
	TakeCouponFromBudget(ctx context.Context, campaignID int64, day time.Time) (bool, error)

	Campaign(ctx context.Context, campaignID int64) (domain.Campaign, error)

	CampaignStats(ctx context.Context) ([]domain.CampaignStats, error)
}

type CouponRepository interface {
	InsertCoupon(ctx context.Context, c domain.Coupon) (int64, error)

	// LockCoupon reads the coupon with its campaign's discount and holds an
	// exclusive row lock on it.
	LockCoupon(ctx context.Context, couponID int64) (domain.Coupon, error)

	MarkCouponUsed(ctx context.Context, couponID int64, discount decimal.Decimal) error

	CouponsForBuyer(ctx context.Context, buyerID int64) ([]domain.Coupon, error)
}

type OrderRepository interface {
	// InsertOrder writes the order head and returns its id.
	InsertOrder(ctx context.Context, buyerID int64, orderDate time.Time) (int64, error)

	InsertOrderLine(ctx context.Context, line domain.OrderLine) error

	FinalizeOrder(ctx context.Context, o domain.Order) error

	Order(ctx context.Context, orderID int64) (domain.Order, error)

	// OrderLine returns the line for (orderID, productID) and the buyer who
	// placed the order.
	OrderLine(ctx context.Context, orderID, productID int64) (domain.OrderLine, int64, error)
}

type RatingRepository interface {
	RatingExists(ctx context.Context, orderID, productID int64) (bool, error)

	InsertRating(ctx context.Context, r domain.Rating) error

	// RatingSummary returns the average score and the comments left on any
	// version of productID. avg is nil when there are no ratings.
	RatingSummary(ctx context.Context, productID int64) (avg *float64, comments []string, err error)
}

type RoleRepository interface {
	HasRole(ctx context.Context, userID int64, role domain.Role) (bool, error)

	GrantRole(ctx context.Context, userID int64, role domain.Role) error
}
