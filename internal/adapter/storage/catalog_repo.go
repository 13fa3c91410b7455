package storage

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/rl1809/market-core/internal/core/domain"
	"github.com/rl1809/market-core/internal/port"
)

func (t *sqlTx) InsertProduct(ctx context.Context, p domain.Product) (int64, error) {
	attrs, err := json.Marshal(p.Attributes)
	if err != nil {
		return 0, errors.Wrap(err, "encode attributes")
	}

	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO products (seller_id, category, latest_version, created_at)
		VALUES (?, ?, ?, ?)`,
		p.SellerID, string(p.Category()), p.Version, toMillis(p.CreatedAt),
	)
	if err != nil {
		return 0, errors.Wrap(err, "insert product")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(err, "product id")
	}

	if err := t.insertVersionRow(ctx, id, p, attrs); err != nil {
		return 0, err
	}
	return id, nil
}

func (t *sqlTx) LockProductHead(ctx context.Context, productID int64) (int64, int64, error) {
	var latest, seller int64
	err := t.tx.QueryRowContext(ctx,
		`SELECT latest_version, seller_id FROM products WHERE id = ?`+t.dialect.lockRows(),
		productID,
	).Scan(&latest, &seller)
	if err != nil {
		return 0, 0, errors.Wrap(notFound(err), "lock product head")
	}
	return latest, seller, nil
}

func (t *sqlTx) InsertProductVersion(ctx context.Context, p domain.Product) error {
	attrs, err := json.Marshal(p.Attributes)
	if err != nil {
		return errors.Wrap(err, "encode attributes")
	}
	if err := t.insertVersionRow(ctx, p.ID, p, attrs); err != nil {
		return err
	}

	res, err := t.tx.ExecContext(ctx, `
		UPDATE products SET latest_version = ?
		WHERE id = ? AND latest_version < ?`,
		p.Version, p.ID, p.Version,
	)
	if err != nil {
		return errors.Wrap(err, "advance product head")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return errors.Wrapf(port.ErrDuplicate, "product %d already at version %d or later", p.ID, p.Version)
	}
	return nil
}

func (t *sqlTx) insertVersionRow(ctx context.Context, id int64, p domain.Product, attrs []byte) error {
	price, err := toCents(p.Price)
	if err != nil {
		return errors.Wrapf(err, "product %d version %d price", id, p.Version)
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO product_versions (product_id, version, name, price_cents, description, attributes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, p.Version, p.Name, price, p.Description, string(attrs), toMillis(p.CreatedAt),
	)
	if err != nil {
		if isDuplicate(err) {
			return errors.Wrapf(port.ErrDuplicate, "product %d version %d", id, p.Version)
		}
		return errors.Wrap(err, "insert product version")
	}
	return nil
}

func (t *sqlTx) LatestProduct(ctx context.Context, productID int64) (domain.Product, error) {
	var (
		p         domain.Product
		price     int64
		category  string
		attrs     string
		createdAt int64
	)
	err := t.tx.QueryRowContext(ctx, `
		SELECT p.id, v.version, v.name, v.price_cents, v.description, p.seller_id,
		       p.category, v.attributes, v.created_at, COALESCE(s.quantity, 0)
		FROM products p
		JOIN product_versions v ON v.product_id = p.id AND v.version = p.latest_version
		LEFT JOIN stock_counters s ON s.product_id = v.product_id AND s.version = v.version
		WHERE p.id = ?`, productID,
	).Scan(&p.ID, &p.Version, &p.Name, &price, &p.Description, &p.SellerID,
		&category, &attrs, &createdAt, &p.Stock)
	if err != nil {
		return domain.Product{}, errors.Wrap(notFound(err), "query latest product")
	}

	variant, err := domain.DecodeVariantJSON(domain.Category(category), []byte(attrs))
	if err != nil {
		return domain.Product{}, errors.Wrapf(err, "decode product %d attributes", productID)
	}
	p.Price = fromCents(price)
	p.Attributes = variant
	p.CreatedAt = fromMillis(createdAt)
	return p, nil
}

func (t *sqlTx) PriceHistory(ctx context.Context, productID int64) ([]domain.PricePoint, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT version, price_cents, created_at
		FROM product_versions WHERE product_id = ?
		ORDER BY version ASC`, productID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "query price history")
	}
	defer rows.Close()

	var history []domain.PricePoint
	for rows.Next() {
		var (
			pp      domain.PricePoint
			price   int64
			created int64
		)
		if err := rows.Scan(&pp.Version, &price, &created); err != nil {
			return nil, errors.Wrap(err, "scan price history")
		}
		pp.Price = fromCents(price)
		pp.CreatedAt = fromMillis(created)
		history = append(history, pp)
	}
	return history, errors.Wrap(rows.Err(), "iterate price history")
}
