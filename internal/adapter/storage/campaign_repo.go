package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/rl1809/market-core/internal/core/domain"
)

func toBasisPoints(percent decimal.Decimal) (int64, error) {
	bps := percent.Shift(2)
	if !bps.Equal(bps.Truncate(0)) || bps.LessThan(minInt64) || bps.GreaterThan(maxInt64) {
		return 0, errors.Errorf("discount %s is not a whole number of basis points", percent)
	}
	return bps.IntPart(), nil
}

func fromBasisPoints(bps int64) decimal.Decimal {
	return decimal.New(bps, -2)
}

func (t *sqlTx) LockCampaignRegistry(ctx context.Context) error {
	var name string
	err := t.tx.QueryRowContext(ctx,
		`SELECT name FROM registry_locks WHERE name = 'campaigns'`+t.dialect.lockRows(),
	).Scan(&name)
	return errors.Wrap(notFound(err), "lock campaign registry")
}

func (t *sqlTx) CountOverlappingCampaigns(ctx context.Context, start, end time.Time) (int, error) {
	var n int
	err := t.tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM campaigns
		WHERE ? <= date_end AND ? >= date_start`,
		start.Format(domain.DateLayout), end.Format(domain.DateLayout),
	).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, "count overlapping campaigns")
	}
	return n, nil
}

func (t *sqlTx) InsertCampaign(ctx context.Context, c domain.Campaign) (int64, error) {
	bps, err := toBasisPoints(c.DiscountPercent)
	if err != nil {
		return 0, err
	}
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO campaigns (description, date_start, date_end, coupon_budget, discount_bps, admin_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.Description,
		c.DateStart.Format(domain.DateLayout),
		c.DateEnd.Format(domain.DateLayout),
		c.CouponBudget,
		bps,
		c.AdminID,
		toMillis(c.CreatedAt),
	)
	if err != nil {
		return 0, errors.Wrap(err, "insert campaign")
	}
	id, err := res.LastInsertId()
	return id, errors.Wrap(err, "campaign id")
}

func (t *sqlTx) TakeCouponFromBudget(ctx context.Context, campaignID int64, day time.Time) (bool, error) {
	today := day.Format(domain.DateLayout)
	res, err := t.tx.ExecContext(ctx, `
		UPDATE campaigns SET coupon_budget = coupon_budget - 1
		WHERE id = ? AND date_start <= ? AND date_end >= ? AND coupon_budget > 0`,
		campaignID, today, today,
	)
	if err != nil {
		return false, errors.Wrap(err, "take coupon from budget")
	}
	rows, _ := res.RowsAffected()
	return rows == 1, nil
}

func (t *sqlTx) Campaign(ctx context.Context, campaignID int64) (domain.Campaign, error) {
	var (
		c          domain.Campaign
		start, end string
		bps        int64
		createdAt  int64
	)
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, description, date_start, date_end, coupon_budget, discount_bps, admin_id, created_at
		FROM campaigns WHERE id = ?`, campaignID,
	).Scan(&c.ID, &c.Description, &start, &end, &c.CouponBudget, &bps, &c.AdminID, &createdAt)
	if err != nil {
		return domain.Campaign{}, errors.Wrap(notFound(err), "query campaign")
	}
	if c.DateStart, err = time.Parse(domain.DateLayout, start); err != nil {
		return domain.Campaign{}, errors.Wrap(err, "parse date_start")
	}
	if c.DateEnd, err = time.Parse(domain.DateLayout, end); err != nil {
		return domain.Campaign{}, errors.Wrap(err, "parse date_end")
	}
	c.DiscountPercent = fromBasisPoints(bps)
	c.CreatedAt = fromMillis(createdAt)
	return c, nil
}

func (t *sqlTx) CampaignStats(ctx context.Context) ([]domain.CampaignStats, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT c.id,
		       COUNT(k.id),
		       COALESCE(SUM(CASE WHEN k.used = 1 THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(k.discount_applied_cents), 0)
		FROM campaigns c
		LEFT JOIN coupons k ON k.campaign_id = c.id
		GROUP BY c.id
		ORDER BY c.id`)
	if err != nil {
		return nil, errors.Wrap(err, "query campaign stats")
	}
	defer rows.Close()

	var stats []domain.CampaignStats
	for rows.Next() {
		var (
			s     domain.CampaignStats
			cents int64
		)
		if err := rows.Scan(&s.CampaignID, &s.GeneratedCoupons, &s.UsedCoupons, &cents); err != nil {
			return nil, errors.Wrap(err, "scan campaign stats")
		}
		s.TotalDiscountValue = fromCents(cents)
		stats = append(stats, s)
	}
	return stats, errors.Wrap(rows.Err(), "iterate campaign stats")
}
