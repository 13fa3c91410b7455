package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the day-granularity layout of campaign windows.
const DateLayout = "2006-01-02"

// Campaign windows are inclusive whole days: [DateStart, DateEnd].
type Campaign struct {
	ID              int64
	Description     string
	DateStart       time.Time
	DateEnd         time.Time
	CouponBudget    int
	DiscountPercent decimal.Decimal
	AdminID         int64
	CreatedAt       time.Time
}

// Active reports whether now falls on a day inside the window.
func (c Campaign) Active(now time.Time) bool {
	day := Day(now)
	return !day.Before(c.DateStart) && !day.After(c.DateEnd)
}

type NewCampaign struct {
	Description     string
	DateStart       time.Time
	DateEnd         time.Time
	CouponBudget    int
	DiscountPercent decimal.Decimal
}

func (n NewCampaign) Validate() error {
	if strings.TrimSpace(n.Description) == "" {
		return Validation("description value not in payload")
	}
	if n.DateStart.IsZero() || n.DateEnd.IsZero() {
		return Validation("date_start and date_end are required")
	}
	if Day(n.DateStart).After(Day(n.DateEnd)) {
		return Validation("the end date must be after the start date")
	}
	if n.CouponBudget < 0 {
		return Validation("coupons cannot be negative")
	}
	if !n.DiscountPercent.IsPositive() || n.DiscountPercent.GreaterThan(decimal.NewFromInt(100)) {
		return Validation("discount must be in (0, 100], got %s", n.DiscountPercent)
	}
	if !n.DiscountPercent.Equal(n.DiscountPercent.Round(2)) {
		return Validation("discount %s has more than two decimal places", n.DiscountPercent)
	}
	return nil
}

// CampaignStats aggregates the coupons issued under one campaign.
type CampaignStats struct {
	CampaignID         int64
	GeneratedCoupons   int
	UsedCoupons        int
	TotalDiscountValue decimal.Decimal
}

// Day truncates t to midnight UTC of its calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, Validation("invalid date %q, expected YYYY-MM-DD", s)
	}
	return t, nil
}
