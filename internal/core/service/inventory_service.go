package service

import (
	"context"
	"errors"

	"github.com/rl1809/market-core/internal/core/domain"
	"github.com/rl1809/market-core/internal/port"
)

// InventoryService keeps one stock counter per product version.
type InventoryService struct {
	rt *Runtime
}

func NewInventoryService(rt *Runtime) *InventoryService {
	return &InventoryService{rt: rt}
}

// Reserve takes quantity units of (productID, version) inside the caller's
// transaction. The counter row stays locked until that transaction ends.
func (s *InventoryService) Reserve(ctx context.Context, tx port.InventoryRepository, productID, version int64, quantity int) error {
	if quantity <= 0 {
		return domain.Validation("quantity must be positive for product %d", productID)
	}

	counter, err := tx.LockStock(ctx, productID, version)
	if errors.Is(err, port.ErrNotFound) {
		return domain.InsufficientStock(productID, version, quantity, 0)
	}
	if err != nil {
		return err
	}
	if !counter.CanReserve(quantity) {
		return domain.InsufficientStock(productID, version, quantity, counter.Quantity)
	}

	ok, err := tx.DecrementStock(ctx, productID, version, quantity, s.rt.Now())
	if err != nil {
		return err
	}
	if !ok {
		return domain.InsufficientStock(productID, version, quantity, counter.Quantity)
	}
	return nil
}

// Available reads the counter of one version.
func (s *InventoryService) Available(ctx context.Context, productID, version int64) (n int, err error) {
	ctx, end := s.rt.begin(ctx, "inventory.available")
	defer end(&err)

	err = s.rt.inTx(ctx, "inventory.available", func(tx port.Tx) error {
		c, err := tx.Stock(ctx, productID, version)
		if errors.Is(err, port.ErrNotFound) {
			return domain.NewError(domain.KindProductNotFound, productID, "product %d has no version %d", productID, version)
		}
		if err != nil {
			return err
		}
		n = c.Quantity
		return nil
	})
	return n, err
}
