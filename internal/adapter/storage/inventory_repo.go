package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/rl1809/market-core/internal/core/domain"
	"github.com/rl1809/market-core/internal/port"
)

func (t *sqlTx) InsertStock(ctx context.Context, c domain.StockCounter) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO stock_counters (product_id, version, quantity, updated_at)
		VALUES (?, ?, ?, ?)`,
		c.ProductID, c.Version, c.Quantity, toMillis(c.UpdatedAt),
	)
	if err != nil {
		if isDuplicate(err) {
			return errors.Wrapf(port.ErrDuplicate, "stock for product %d version %d", c.ProductID, c.Version)
		}
		return errors.Wrap(err, "insert stock")
	}
	return nil
}

func (t *sqlTx) LockStock(ctx context.Context, productID, version int64) (domain.StockCounter, error) {
	return t.scanStock(ctx, `
		SELECT product_id, version, quantity, updated_at
		FROM stock_counters WHERE product_id = ? AND version = ?`+t.dialect.lockRows(),
		productID, version)
}

func (t *sqlTx) Stock(ctx context.Context, productID, version int64) (domain.StockCounter, error) {
	return t.scanStock(ctx, `
		SELECT product_id, version, quantity, updated_at
		FROM stock_counters WHERE product_id = ? AND version = ?`,
		productID, version)
}

func (t *sqlTx) scanStock(ctx context.Context, query string, productID, version int64) (domain.StockCounter, error) {
	var (
		c       domain.StockCounter
		updated int64
	)
	err := t.tx.QueryRowContext(ctx, query, productID, version).
		Scan(&c.ProductID, &c.Version, &c.Quantity, &updated)
	if err != nil {
		return domain.StockCounter{}, errors.Wrap(notFound(err), "query stock")
	}
	c.UpdatedAt = fromMillis(updated)
	return c, nil
}

func (t *sqlTx) DecrementStock(ctx context.Context, productID, version int64, quantity int, at time.Time) (bool, error) {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE stock_counters
		SET quantity = quantity - ?, updated_at = ?
		WHERE product_id = ? AND version = ? AND quantity >= ?`,
		quantity, toMillis(at), productID, version, quantity,
	)
	if err != nil {
		return false, errors.Wrap(err, "update stock")
	}

	rows, _ := result.RowsAffected()
	return rows == 1, nil
}
