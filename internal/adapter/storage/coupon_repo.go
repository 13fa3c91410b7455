package storage

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/rl1809/market-core/internal/core/domain"
	"github.com/rl1809/market-core/internal/port"
)

func (t *sqlTx) InsertCoupon(ctx context.Context, c domain.Coupon) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO coupons (campaign_id, buyer_id, used, discount_applied_cents, expiration_date, issued_at)
		VALUES (?, ?, 0, 0, ?, ?)`,
		c.CampaignID, c.BuyerID, toMillis(c.ExpirationDate), toMillis(c.IssuedAt),
	)
	if err != nil {
		return 0, errors.Wrap(err, "insert coupon")
	}
	id, err := res.LastInsertId()
	return id, errors.Wrap(err, "coupon id")
}

const couponColumns = `
	SELECT k.id, k.campaign_id, k.buyer_id, k.used, k.discount_applied_cents,
	       c.discount_bps, k.expiration_date, k.issued_at
	FROM coupons k
	JOIN campaigns c ON c.id = k.campaign_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCoupon(row rowScanner) (domain.Coupon, error) {
	var (
		c                    domain.Coupon
		used                 int
		applied, bps         int64
		expiration, issuedAt int64
	)
	if err := row.Scan(&c.ID, &c.CampaignID, &c.BuyerID, &used, &applied, &bps, &expiration, &issuedAt); err != nil {
		return domain.Coupon{}, err
	}
	c.Used = used != 0
	c.DiscountApplied = fromCents(applied)
	c.DiscountPercent = fromBasisPoints(bps)
	c.ExpirationDate = fromMillis(expiration)
	c.IssuedAt = fromMillis(issuedAt)
	return c, nil
}

func (t *sqlTx) LockCoupon(ctx context.Context, couponID int64) (domain.Coupon, error) {
	row := t.tx.QueryRowContext(ctx, couponColumns+` WHERE k.id = ?`+t.dialect.lockRows(), couponID)
	c, err := scanCoupon(row)
	if err != nil {
		return domain.Coupon{}, errors.Wrap(notFound(err), "lock coupon")
	}
	return c, nil
}

func (t *sqlTx) MarkCouponUsed(ctx context.Context, couponID int64, discount decimal.Decimal) error {
	cents, err := toCents(discount)
	if err != nil {
		return errors.Wrapf(err, "coupon %d discount", couponID)
	}
	res, err := t.tx.ExecContext(ctx, `
		UPDATE coupons SET used = 1, discount_applied_cents = ?
		WHERE id = ? AND used = 0`,
		cents, couponID,
	)
	if err != nil {
		return errors.Wrap(err, "mark coupon used")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return errors.Wrapf(port.ErrDuplicate, "coupon %d already used", couponID)
	}
	return nil
}

func (t *sqlTx) CouponsForBuyer(ctx context.Context, buyerID int64) ([]domain.Coupon, error) {
	rows, err := t.tx.QueryContext(ctx, couponColumns+` WHERE k.buyer_id = ? ORDER BY k.id`, buyerID)
	if err != nil {
		return nil, errors.Wrap(err, "query coupons")
	}
	defer rows.Close()

	var coupons []domain.Coupon
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan coupon")
		}
		coupons = append(coupons, c)
	}
	return coupons, errors.Wrap(rows.Err(), "iterate coupons")
}
