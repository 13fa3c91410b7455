package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MaxAmount bounds unit prices and order totals. Amounts are stored as
// integer cents, so anything larger could not be written back exactly.
var MaxAmount = decimal.New(1, 13)

func validatePrice(price decimal.Decimal) error {
	if price.IsNegative() {
		return Validation("price cannot be negative")
	}
	if price.GreaterThan(MaxAmount) {
		return Validation("price cannot exceed %s", MaxAmount)
	}
	return nil
}

// Product is one immutable version snapshot. Stock is the counter the
// inventory ledger keeps for this exact (ID, Version).
type Product struct {
	ID          int64
	Version     int64
	Name        string
	Price       decimal.Decimal
	Stock       int
	Description string
	SellerID    int64
	Attributes  Variant
	CreatedAt   time.Time
}

func (p Product) Category() Category {
	if p.Attributes == nil {
		return ""
	}
	return p.Attributes.Category()
}

// PricePoint is one entry of a product's version history.
type PricePoint struct {
	Version   int64
	Price     decimal.Decimal
	CreatedAt time.Time
}

// ProductDetails is the read model of a product page.
type ProductDetails struct {
	Product       Product
	PriceHistory  []PricePoint
	AverageRating *float64
	Comments      []string
}

type NewProduct struct {
	Name        string
	Price       decimal.Decimal
	Stock       int
	Description string
	Type        string
	Attributes  map[string]json.RawMessage
}

// Build validates the payload and produces the first snapshot.
func (n NewProduct) Build(sellerID int64, now time.Time) (Product, error) {
	if strings.TrimSpace(n.Name) == "" {
		return Product{}, Validation("name is required to add a product")
	}
	if err := validatePrice(n.Price); err != nil {
		return Product{}, err
	}
	if n.Stock < 0 {
		return Product{}, Validation("stock cannot be negative")
	}
	category, err := ParseCategory(n.Type)
	if err != nil {
		return Product{}, err
	}
	variant, err := DecodeVariant(category, n.Attributes)
	if err != nil {
		return Product{}, err
	}
	if err := variant.Validate(); err != nil {
		return Product{}, err
	}
	return Product{
		Version:     1,
		Name:        strings.TrimSpace(n.Name),
		Price:       n.Price.Round(2),
		Stock:       n.Stock,
		Description: n.Description,
		SellerID:    sellerID,
		Attributes:  variant,
		CreatedAt:   now,
	}, nil
}

// ProductPatch carries the fields of an edit; nil means carry forward.
type ProductPatch struct {
	Name        *string
	Price       *decimal.Decimal
	Stock       *int
	Description *string
	Attributes  map[string]json.RawMessage
}

func (p ProductPatch) Empty() bool {
	return p.Name == nil && p.Price == nil && p.Stock == nil && p.Description == nil && len(p.Attributes) == 0
}

// MergePatch derives the next snapshot from previous. Unspecified fields are
// carried forward, including the stock counter value previous had when read.
// previous is never modified.
func MergePatch(previous Product, patch ProductPatch, version int64, now time.Time) (Product, error) {
	if patch.Empty() {
		return Product{}, Validation("no attributes to update for product %d", previous.ID)
	}
	if version <= previous.Version {
		return Product{}, Validation("version %d does not follow %d", version, previous.Version)
	}

	next := previous
	next.Version = version
	next.CreatedAt = now

	if patch.Name != nil {
		if strings.TrimSpace(*patch.Name) == "" {
			return Product{}, Validation("name cannot be empty")
		}
		next.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Price != nil {
		if err := validatePrice(*patch.Price); err != nil {
			return Product{}, err
		}
		next.Price = patch.Price.Round(2)
	}
	if patch.Stock != nil {
		if *patch.Stock < 0 {
			return Product{}, Validation("stock cannot be negative")
		}
		next.Stock = *patch.Stock
	}
	if patch.Description != nil {
		next.Description = *patch.Description
	}

	if len(patch.Attributes) > 0 {
		if previous.Attributes == nil {
			return Product{}, Validation("product %d has no type attributes", previous.ID)
		}
		category := previous.Category()
		if err := rejectUnknown(category, patch.Attributes); err != nil {
			return Product{}, err
		}
		merged, err := EncodeVariant(previous.Attributes)
		if err != nil {
			return Product{}, Validation("encode %s attributes: %v", category, err)
		}
		for k, v := range patch.Attributes {
			merged[k] = v
		}
		variant, err := DecodeVariant(category, merged)
		if err != nil {
			return Product{}, err
		}
		if err := variant.Validate(); err != nil {
			return Product{}, err
		}
		next.Attributes = variant
	}
	return next, nil
}
