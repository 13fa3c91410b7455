package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/rl1809/market-core/internal/core/domain"
	"github.com/rl1809/market-core/internal/port"
)

// Marketplace is the entry point transports call. It resolves the caller's
// credential, checks the role each operation needs and delegates to the
// components.
type Marketplace struct {
	auth  port.Authenticator
	roles port.RoleDirectory
	clock port.Clock

	Components
}

// Components groups the services a Marketplace fronts.
type Components struct {
	Catalog   *CatalogService
	Inventory *InventoryService
	Campaigns *CampaignService
	Coupons   *CouponService
	Orders    *OrderService
	Ratings   *RatingService
	Roles     *RoleService
}

// NewComponents wires every component on one runtime.
func NewComponents(rt *Runtime, guard port.IdempotencyGuard, events *EventDispatcher, couponValidity time.Duration) Components {
	inventory := NewInventoryService(rt)
	coupons := NewCouponService(rt)
	return Components{
		Catalog:   NewCatalogService(rt, events),
		Inventory: inventory,
		Campaigns: NewCampaignService(rt, coupons, events, couponValidity),
		Coupons:   coupons,
		Orders:    NewOrderService(rt, inventory, coupons, guard, events),
		Ratings:   NewRatingService(rt, events),
		Roles:     NewRoleService(rt),
	}
}

// NewMarketplace uses c.Roles as the role directory when roles is nil.
func NewMarketplace(auth port.Authenticator, roles port.RoleDirectory, clock port.Clock, c Components) *Marketplace {
	if roles == nil {
		roles = c.Roles
	}
	if clock == nil {
		clock = port.SystemClock{}
	}
	return &Marketplace{auth: auth, roles: roles, clock: clock, Components: c}
}

// Authorize resolves credential and requires role. The returned context
// carries a logger tagged with the user id.
func (m *Marketplace) Authorize(ctx context.Context, credential string, role domain.Role) (context.Context, int64, error) {
	userID, err := m.auth.Authenticate(ctx, credential)
	if err != nil {
		if errors.Is(err, port.ErrInvalidCredential) {
			return ctx, 0, domain.NewError(domain.KindUnauthorized, 0, "%v", err)
		}
		return ctx, 0, domain.AsDomain(err)
	}

	ok, err := m.roles.HasRole(ctx, userID, role)
	if err != nil {
		return ctx, 0, domain.AsDomain(err)
	}
	if !ok {
		return ctx, 0, domain.Forbidden(string(role), "for this operation")
	}

	log := zerolog.Ctx(ctx).With().Int64("user_id", userID).Logger()
	return log.WithContext(ctx), userID, nil
}

func (m *Marketplace) AddProduct(ctx context.Context, credential string, in domain.NewProduct) (int64, error) {
	ctx, sellerID, err := m.Authorize(ctx, credential, domain.RoleSeller)
	if err != nil {
		return 0, err
	}
	return m.Catalog.CreateProduct(ctx, sellerID, in)
}

func (m *Marketplace) UpdateProduct(ctx context.Context, credential string, productID int64, patch domain.ProductPatch) (int64, error) {
	ctx, sellerID, err := m.Authorize(ctx, credential, domain.RoleSeller)
	if err != nil {
		return 0, err
	}
	return m.Catalog.UpdateProduct(ctx, sellerID, productID, patch)
}

// ProductDetails is public.
func (m *Marketplace) ProductDetails(ctx context.Context, productID int64) (domain.ProductDetails, error) {
	return m.Catalog.GetDetails(ctx, productID)
}

func (m *Marketplace) Checkout(ctx context.Context, credential string, req domain.CheckoutRequest) (domain.Order, error) {
	ctx, buyerID, err := m.Authorize(ctx, credential, domain.RoleBuyer)
	if err != nil {
		return domain.Order{}, err
	}
	return m.Orders.Checkout(ctx, buyerID, req)
}

func (m *Marketplace) GetOrder(ctx context.Context, credential string, orderID int64) (domain.Order, error) {
	ctx, buyerID, err := m.Authorize(ctx, credential, domain.RoleBuyer)
	if err != nil {
		return domain.Order{}, err
	}
	return m.Orders.GetOrder(ctx, buyerID, orderID)
}

func (m *Marketplace) CreateCampaign(ctx context.Context, credential string, in domain.NewCampaign) (int64, error) {
	ctx, adminID, err := m.Authorize(ctx, credential, domain.RoleAdmin)
	if err != nil {
		return 0, err
	}
	return m.Campaigns.CreateCampaign(ctx, adminID, in)
}

func (m *Marketplace) Subscribe(ctx context.Context, credential string, campaignID int64) (domain.Coupon, error) {
	ctx, buyerID, err := m.Authorize(ctx, credential, domain.RoleBuyer)
	if err != nil {
		return domain.Coupon{}, err
	}
	return m.Campaigns.TrySubscribe(ctx, campaignID, buyerID, m.clock.Now())
}

func (m *Marketplace) CampaignStats(ctx context.Context, credential string) ([]domain.CampaignStats, error) {
	ctx, _, err := m.Authorize(ctx, credential, domain.RoleAdmin)
	if err != nil {
		return nil, err
	}
	return m.Campaigns.GetStats(ctx)
}

func (m *Marketplace) MyCoupons(ctx context.Context, credential string) ([]domain.Coupon, error) {
	ctx, buyerID, err := m.Authorize(ctx, credential, domain.RoleBuyer)
	if err != nil {
		return nil, err
	}
	return m.Coupons.ListForBuyer(ctx, buyerID)
}

func (m *Marketplace) Rate(ctx context.Context, credential string, in domain.NewRating) (domain.Rating, error) {
	ctx, buyerID, err := m.Authorize(ctx, credential, domain.RoleBuyer)
	if err != nil {
		return domain.Rating{}, err
	}
	return m.Ratings.Rate(ctx, buyerID, in)
}

// GrantRole lets an admin hand a role to another user.
func (m *Marketplace) GrantRole(ctx context.Context, credential string, userID int64, role domain.Role) error {
	ctx, _, err := m.Authorize(ctx, credential, domain.RoleAdmin)
	if err != nil {
		return err
	}
	return m.Roles.Grant(ctx, userID, role)
}
