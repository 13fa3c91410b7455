package storage

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/rl1809/market-core/internal/core/domain"
	"github.com/rl1809/market-core/internal/port"
)

func (t *sqlTx) RatingExists(ctx context.Context, orderID, productID int64) (bool, error) {
	var n int
	err := t.tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ratings WHERE order_id = ? AND product_id = ?`,
		orderID, productID,
	).Scan(&n)
	if err != nil {
		return false, errors.Wrap(err, "query rating")
	}
	return n > 0, nil
}

func (t *sqlTx) InsertRating(ctx context.Context, r domain.Rating) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO ratings (order_id, product_id, product_version, buyer_id, score, comment, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.OrderID, r.ProductID, r.ProductVersion, r.BuyerID, r.Score, r.Comment, toMillis(r.CreatedAt),
	)
	if err != nil {
		if isDuplicate(err) {
			return errors.Wrapf(port.ErrDuplicate, "rating for order %d product %d", r.OrderID, r.ProductID)
		}
		return errors.Wrap(err, "insert rating")
	}
	return nil
}

func (t *sqlTx) RatingSummary(ctx context.Context, productID int64) (*float64, []string, error) {
	var avg sql.NullFloat64
	err := t.tx.QueryRowContext(ctx,
		`SELECT AVG(score) FROM ratings WHERE product_id = ?`, productID,
	).Scan(&avg)
	if err != nil {
		return nil, nil, errors.Wrap(err, "query average rating")
	}

	rows, err := t.tx.QueryContext(ctx, `
		SELECT comment FROM ratings
		WHERE product_id = ? AND comment <> ''
		ORDER BY created_at, order_id`, productID,
	)
	if err != nil {
		return nil, nil, errors.Wrap(err, "query comments")
	}
	defer rows.Close()

	var comments []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, nil, errors.Wrap(err, "scan comment")
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, errors.Wrap(err, "iterate comments")
	}

	if !avg.Valid {
		return nil, comments, nil
	}
	v := avg.Float64
	return &v, comments, nil
}
