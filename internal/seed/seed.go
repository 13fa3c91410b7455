// Package seed loads YAML fixtures of roles, products and campaigns into a
// store through the core services.
package seed

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/rl1809/market-core/internal/core/domain"
	"github.com/rl1809/market-core/internal/core/service"
)

type Fixture struct {
	Roles     []RoleGrant `yaml:"roles"`
	Products  []Product   `yaml:"products"`
	Campaigns []Campaign  `yaml:"campaigns"`
}

type RoleGrant struct {
	UserID int64    `yaml:"user_id"`
	Roles  []string `yaml:"roles"`
}

type Product struct {
	SellerID    int64          `yaml:"seller_id"`
	Name        string         `yaml:"name"`
	Price       string         `yaml:"price"`
	Stock       int            `yaml:"stock"`
	Description string         `yaml:"description"`
	Type        string         `yaml:"type"`
	Attributes  map[string]any `yaml:"attributes"`
}

type Campaign struct {
	AdminID     int64  `yaml:"admin_id"`
	Description string `yaml:"description"`
	DateStart   string `yaml:"date_start"`
	DateEnd     string `yaml:"date_end"`
	Coupons     int    `yaml:"coupons"`
	Discount    string `yaml:"discount"`
}

// Report lists the ids created, in fixture order.
type Report struct {
	Users     []int64
	Products  []int64
	Campaigns []int64
}

func Decode(r io.Reader) (Fixture, error) {
	var f Fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return Fixture{}, errors.Wrap(err, "decode fixture")
	}
	return f, nil
}

// Apply writes f in order: roles, products, campaigns. It stops at the first
// failure; entries already written stay.
func Apply(ctx context.Context, c service.Components, f Fixture) (Report, error) {
	var rep Report

	for _, g := range f.Roles {
		for _, role := range g.Roles {
			if err := c.Roles.Grant(ctx, g.UserID, domain.Role(role)); err != nil {
				return rep, errors.Wrapf(err, "grant %s to user %d", role, g.UserID)
			}
		}
		rep.Users = append(rep.Users, g.UserID)
	}

	for i, p := range f.Products {
		in, err := p.toDomain()
		if err != nil {
			return rep, errors.Wrapf(err, "product %d", i)
		}
		id, err := c.Catalog.CreateProduct(ctx, p.SellerID, in)
		if err != nil {
			return rep, errors.Wrapf(err, "create product %q", p.Name)
		}
		rep.Products = append(rep.Products, id)
	}

	for i, cp := range f.Campaigns {
		in, err := cp.toDomain()
		if err != nil {
			return rep, errors.Wrapf(err, "campaign %d", i)
		}
		id, err := c.Campaigns.CreateCampaign(ctx, cp.AdminID, in)
		if err != nil {
			return rep, errors.Wrapf(err, "create campaign %q", cp.Description)
		}
		rep.Campaigns = append(rep.Campaigns, id)
	}
	return rep, nil
}

func (p Product) toDomain() (domain.NewProduct, error) {
	price, err := decimal.NewFromString(p.Price)
	if err != nil {
		return domain.NewProduct{}, errors.Wrapf(err, "price %q", p.Price)
	}
	attrs, err := domain.RawAttributes(p.Attributes)
	if err != nil {
		return domain.NewProduct{}, err
	}
	return domain.NewProduct{
		Name:        p.Name,
		Price:       price,
		Stock:       p.Stock,
		Description: p.Description,
		Type:        p.Type,
		Attributes:  attrs,
	}, nil
}

func (c Campaign) toDomain() (domain.NewCampaign, error) {
	start, err := domain.ParseDay(c.DateStart)
	if err != nil {
		return domain.NewCampaign{}, err
	}
	end, err := domain.ParseDay(c.DateEnd)
	if err != nil {
		return domain.NewCampaign{}, err
	}
	discount, err := decimal.NewFromString(c.Discount)
	if err != nil {
		return domain.NewCampaign{}, errors.Wrapf(err, "discount %q", c.Discount)
	}
	return domain.NewCampaign{
		Description:     c.Description,
		DateStart:       start,
		DateEnd:         end,
		CouponBudget:    c.Coupons,
		DiscountPercent: discount,
	}, nil
}
