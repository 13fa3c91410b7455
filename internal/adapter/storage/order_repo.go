package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/rl1809/market-core/internal/core/domain"
	"github.com/rl1809/market-core/internal/port"
)

func (t *sqlTx) InsertOrder(ctx context.Context, buyerID int64, orderDate time.Time) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO orders (buyer_id, order_date, discount_cents, total_price_cents)
		VALUES (?, ?, 0, 0)`,
		buyerID, toMillis(orderDate),
	)
	if err != nil {
		return 0, errors.Wrap(err, "insert order")
	}
	id, err := res.LastInsertId()
	return id, errors.Wrap(err, "order id")
}

func (t *sqlTx) InsertOrderLine(ctx context.Context, line domain.OrderLine) error {
	price, err := toCents(line.UnitPrice)
	if err != nil {
		return errors.Wrapf(err, "order %d product %d unit price", line.OrderID, line.ProductID)
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO order_lines (order_id, product_id, version, quantity, unit_price_cents, line_no)
		SELECT ?, ?, ?, ?, ?, COUNT(*) FROM order_lines WHERE order_id = ?`,
		line.OrderID, line.ProductID, line.Version, line.Quantity, price, line.OrderID,
	)
	if err != nil {
		if isDuplicate(err) {
			return errors.Wrapf(port.ErrDuplicate, "order %d already has product %d", line.OrderID, line.ProductID)
		}
		return errors.Wrap(err, "insert order line")
	}
	return nil
}

func (t *sqlTx) FinalizeOrder(ctx context.Context, o domain.Order) error {
	discount, err := toCents(o.Discount)
	if err != nil {
		return errors.Wrapf(err, "order %d discount", o.ID)
	}
	total, err := toCents(o.TotalPrice)
	if err != nil {
		return errors.Wrapf(err, "order %d total", o.ID)
	}
	res, err := t.tx.ExecContext(ctx, `
		UPDATE orders
		SET coupon_id = ?, campaign_id = ?, discount_cents = ?, total_price_cents = ?
		WHERE id = ?`,
		nullInt64(o.CouponID), nullInt64(o.CampaignID), discount, total, o.ID,
	)
	if err != nil {
		return errors.Wrap(err, "finalize order")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return errors.Wrapf(port.ErrNotFound, "order %d", o.ID)
	}
	return nil
}

func (t *sqlTx) Order(ctx context.Context, orderID int64) (domain.Order, error) {
	var (
		o                  domain.Order
		orderDate          int64
		couponID, campaign sql.NullInt64
		discount, total    int64
	)
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, buyer_id, order_date, coupon_id, campaign_id, discount_cents, total_price_cents
		FROM orders WHERE id = ?`, orderID,
	).Scan(&o.ID, &o.BuyerID, &orderDate, &couponID, &campaign, &discount, &total)
	if err != nil {
		return domain.Order{}, errors.Wrap(notFound(err), "query order")
	}
	o.OrderDate = fromMillis(orderDate)
	o.CouponID = int64Ptr(couponID)
	o.CampaignID = int64Ptr(campaign)
	o.Discount = fromCents(discount)
	o.TotalPrice = fromCents(total)

	rows, err := t.tx.QueryContext(ctx, `
		SELECT order_id, product_id, version, quantity, unit_price_cents
		FROM order_lines WHERE order_id = ?
		ORDER BY line_no`, orderID,
	)
	if err != nil {
		return domain.Order{}, errors.Wrap(err, "query order lines")
	}
	defer rows.Close()

	for rows.Next() {
		line, err := scanOrderLine(rows)
		if err != nil {
			return domain.Order{}, errors.Wrap(err, "scan order line")
		}
		o.Lines = append(o.Lines, line)
	}
	return o, errors.Wrap(rows.Err(), "iterate order lines")
}

func (t *sqlTx) OrderLine(ctx context.Context, orderID, productID int64) (domain.OrderLine, int64, error) {
	var (
		buyerID int64
		line    domain.OrderLine
		price   int64
	)
	err := t.tx.QueryRowContext(ctx, `
		SELECT l.order_id, l.product_id, l.version, l.quantity, l.unit_price_cents, o.buyer_id
		FROM order_lines l
		JOIN orders o ON o.id = l.order_id
		WHERE l.order_id = ? AND l.product_id = ?`, orderID, productID,
	).Scan(&line.OrderID, &line.ProductID, &line.Version, &line.Quantity, &price, &buyerID)
	if err != nil {
		return domain.OrderLine{}, 0, errors.Wrap(notFound(err), "query order line")
	}
	line.UnitPrice = fromCents(price)
	return line, buyerID, nil
}

func scanOrderLine(row rowScanner) (domain.OrderLine, error) {
	var (
		line  domain.OrderLine
		price int64
	)
	if err := row.Scan(&line.OrderID, &line.ProductID, &line.Version, &line.Quantity, &price); err != nil {
		return domain.OrderLine{}, err
	}
	line.UnitPrice = fromCents(price)
	return line, nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}
