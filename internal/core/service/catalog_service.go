package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"

	"github.com/rl1809/market-core/internal/core/domain"
	"github.com/rl1809/market-core/internal/port"
)

// CatalogService owns the immutable product versions.
type CatalogService struct {
	rt     *Runtime
	events *EventDispatcher
}

func NewCatalogService(rt *Runtime, events *EventDispatcher) *CatalogService {
	return &CatalogService{rt: rt, events: events}
}

// CreateProduct writes version 1 of a new product and its stock counter.
func (s *CatalogService) CreateProduct(ctx context.Context, sellerID int64, in domain.NewProduct) (id int64, err error) {
	ctx, end := s.rt.begin(ctx, "catalog.create_product", attribute.Int64("seller.id", sellerID))
	defer end(&err)

	now := s.rt.Now()
	product, err := in.Build(sellerID, now)
	if err != nil {
		return 0, err
	}

	err = s.rt.inTx(ctx, "catalog.create_product", func(tx port.Tx) error {
		id, err = tx.InsertProduct(ctx, product)
		if err != nil {
			return err
		}
		return tx.InsertStock(ctx, domain.StockCounter{
			ProductID: id,
			Version:   product.Version,
			Quantity:  product.Stock,
			UpdatedAt: now,
		})
	})
	if err != nil {
		return 0, err
	}

	product.ID = id
	s.events.Dispatch(ctx, productEvent(product))
	return id, nil
}

// UpdateProduct appends a new version derived from the latest one. Earlier
// versions and their counters are left as they are.
func (s *CatalogService) UpdateProduct(ctx context.Context, sellerID, productID int64, patch domain.ProductPatch) (version int64, err error) {
	ctx, end := s.rt.begin(ctx, "catalog.update_product", attribute.Int64("product.id", productID))
	defer end(&err)

	if patch.Empty() {
		return 0, domain.Validation("no attributes to update for product %d", productID)
	}

	var next domain.Product
	err = s.rt.inTx(ctx, "catalog.update_product", func(tx port.Tx) error {
		latest, owner, err := tx.LockProductHead(ctx, productID)
		if errors.Is(err, port.ErrNotFound) {
			return domain.ProductNotFound(productID)
		}
		if err != nil {
			return err
		}
		if owner != sellerID {
			return domain.NewError(domain.KindForbidden, productID, "product %d belongs to another seller", productID)
		}

		previous, err := tx.LatestProduct(ctx, productID)
		if err != nil {
			return err
		}

		now := s.rt.Now()
		next, err = domain.MergePatch(previous, patch, latest+1, now)
		if err != nil {
			return err
		}
		if err := tx.InsertProductVersion(ctx, next); err != nil {
			return err
		}
		return tx.InsertStock(ctx, domain.StockCounter{
			ProductID: productID,
			Version:   next.Version,
			Quantity:  next.Stock,
			UpdatedAt: now,
		})
	})
	if err != nil {
		return 0, err
	}

	s.events.Dispatch(ctx, productEvent(next))
	return next.Version, nil
}

func (s *CatalogService) GetLatest(ctx context.Context, productID int64) (p domain.Product, err error) {
	ctx, end := s.rt.begin(ctx, "catalog.get_latest", attribute.Int64("product.id", productID))
	defer end(&err)

	err = s.rt.inTx(ctx, "catalog.get_latest", func(tx port.Tx) error {
		p, err = latestProduct(ctx, tx, productID)
		return err
	})
	return p, err
}

// GetVersionHistory lists every version's price, oldest first.
func (s *CatalogService) GetVersionHistory(ctx context.Context, productID int64) (history []domain.PricePoint, err error) {
	ctx, end := s.rt.begin(ctx, "catalog.get_history", attribute.Int64("product.id", productID))
	defer end(&err)

	err = s.rt.inTx(ctx, "catalog.get_history", func(tx port.Tx) error {
		history, err = tx.PriceHistory(ctx, productID)
		if err != nil {
			return err
		}
		if len(history) == 0 {
			return domain.ProductNotFound(productID)
		}
		return nil
	})
	return history, err
}

// GetDetails is the product page: latest version, price history and ratings.
func (s *CatalogService) GetDetails(ctx context.Context, productID int64) (d domain.ProductDetails, err error) {
	ctx, end := s.rt.begin(ctx, "catalog.get_details", attribute.Int64("product.id", productID))
	defer end(&err)

	err = s.rt.inTx(ctx, "catalog.get_details", func(tx port.Tx) error {
		p, err := latestProduct(ctx, tx, productID)
		if err != nil {
			return err
		}
		history, err := tx.PriceHistory(ctx, productID)
		if err != nil {
			return err
		}
		avg, comments, err := tx.RatingSummary(ctx, productID)
		if err != nil {
			return err
		}
		d = domain.ProductDetails{Product: p, PriceHistory: history, AverageRating: avg, Comments: comments}
		return nil
	})
	return d, err
}

func latestProduct(ctx context.Context, tx port.CatalogRepository, productID int64) (domain.Product, error) {
	p, err := tx.LatestProduct(ctx, productID)
	if errors.Is(err, port.ErrNotFound) {
		return domain.Product{}, domain.ProductNotFound(productID)
	}
	return p, err
}

func productEvent(p domain.Product) port.Event {
	return port.Event{
		Type:       port.EventProductVersion,
		Key:        keyOf(p.ID),
		OccurredAt: p.CreatedAt,
		Payload: map[string]any{
			"product_id": p.ID,
			"version":    p.Version,
			"price":      p.Price.StringFixed(2),
			"stock":      p.Stock,
			"seller_id":  p.SellerID,
		},
	}
}
