package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/rl1809/market-core/internal/core/domain"
	"github.com/rl1809/market-core/internal/port"
)

const DefaultCouponValidity = 30 * 24 * time.Hour

// CampaignService keeps campaign windows disjoint and hands out coupons from
// each campaign's budget.
type CampaignService struct {
	rt             *Runtime
	coupons        *CouponService
	events         *EventDispatcher
	couponValidity time.Duration
}

func NewCampaignService(rt *Runtime, coupons *CouponService, events *EventDispatcher, couponValidity time.Duration) *CampaignService {
	if couponValidity <= 0 {
		couponValidity = DefaultCouponValidity
	}
	return &CampaignService{rt: rt, coupons: coupons, events: events, couponValidity: couponValidity}
}

func (s *CampaignService) CreateCampaign(ctx context.Context, adminID int64, in domain.NewCampaign) (id int64, err error) {
	ctx, end := s.rt.begin(ctx, "campaign.create", attribute.Int64("admin.id", adminID))
	defer end(&err)

	if err := in.Validate(); err != nil {
		return 0, err
	}
	c := domain.Campaign{
		Description:     in.Description,
		DateStart:       domain.Day(in.DateStart),
		DateEnd:         domain.Day(in.DateEnd),
		CouponBudget:    in.CouponBudget,
		DiscountPercent: in.DiscountPercent,
		AdminID:         adminID,
		CreatedAt:       s.rt.Now(),
	}

	err = s.rt.inTx(ctx, "campaign.create", func(tx port.Tx) error {
		// Creators queue on the registry row, so the overlap check below
		// sees every campaign committed before this one.
		if err := tx.LockCampaignRegistry(ctx); err != nil {
			return err
		}
		n, err := tx.CountOverlappingCampaigns(ctx, c.DateStart, c.DateEnd)
		if err != nil {
			return err
		}
		if n > 0 {
			return domain.NewError(domain.KindAlreadyInCampaign, 0,
				"a campaign already exists between %s and %s",
				c.DateStart.Format(domain.DateLayout), c.DateEnd.Format(domain.DateLayout))
		}
		id, err = tx.InsertCampaign(ctx, c)
		return err
	})
	if err != nil {
		return 0, err
	}

	c.ID = id
	s.events.Dispatch(ctx, port.Event{
		Type:       port.EventCampaignCreated,
		Key:        keyOf(id),
		OccurredAt: c.CreatedAt,
		Payload: map[string]any{
			"campaign_id":      id,
			"date_start":       c.DateStart.Format(domain.DateLayout),
			"date_end":         c.DateEnd.Format(domain.DateLayout),
			"coupon_budget":    c.CouponBudget,
			"discount_percent": c.DiscountPercent.String(),
		},
	})
	return id, nil
}

// TrySubscribe takes one coupon from the campaign's budget and issues it to
// buyerID. The budget decrement is a single conditional update, so
// concurrent subscribers never overdraw it.
func (s *CampaignService) TrySubscribe(ctx context.Context, campaignID, buyerID int64, now time.Time) (coupon domain.Coupon, err error) {
	ctx, end := s.rt.begin(ctx, "campaign.subscribe",
		attribute.Int64("campaign.id", campaignID), attribute.Int64("buyer.id", buyerID))
	defer end(&err)

	err = s.rt.inTx(ctx, "campaign.subscribe", func(tx port.Tx) error {
		ok, err := tx.TakeCouponFromBudget(ctx, campaignID, domain.Day(now))
		if err != nil {
			return err
		}
		campaign, err := tx.Campaign(ctx, campaignID)
		if errors.Is(err, port.ErrNotFound) {
			return domain.NewError(domain.KindCampaignExpiredOrNotFound, campaignID, "campaign %d does not exist", campaignID)
		}
		if err != nil {
			return err
		}
		if !ok {
			if campaign.Active(now) {
				return domain.NewError(domain.KindCampaignExpiredOrNotFound, campaignID,
					"campaign %d has no coupons left", campaignID)
			}
			return domain.NewError(domain.KindCampaignExpiredOrNotFound, campaignID,
				"campaign %d is not running on %s", campaignID, now.Format(domain.DateLayout))
		}

		coupon, err = s.coupons.Issue(ctx, tx, campaign, buyerID, now, now.Add(s.couponValidity))
		return err
	})
	if err != nil {
		return domain.Coupon{}, err
	}

	s.events.Dispatch(ctx, port.Event{
		Type:       port.EventCouponIssued,
		Key:        keyOf(coupon.ID),
		OccurredAt: now,
		Payload: map[string]any{
			"coupon_id":       coupon.ID,
			"campaign_id":     campaignID,
			"buyer_id":        buyerID,
			"expiration_date": coupon.ExpirationDate.Format(domain.DateLayout),
		},
	})
	return coupon, nil
}

func (s *CampaignService) GetCampaign(ctx context.Context, campaignID int64) (c domain.Campaign, err error) {
	ctx, end := s.rt.begin(ctx, "campaign.get", attribute.Int64("campaign.id", campaignID))
	defer end(&err)

	err = s.rt.inTx(ctx, "campaign.get", func(tx port.Tx) error {
		c, err = tx.Campaign(ctx, campaignID)
		if errors.Is(err, port.ErrNotFound) {
			return domain.NewError(domain.KindCampaignNotFound, campaignID, "campaign %d not found", campaignID)
		}
		return err
	})
	return c, err
}

func (s *CampaignService) GetStats(ctx context.Context) (stats []domain.CampaignStats, err error) {
	ctx, end := s.rt.begin(ctx, "campaign.stats")
	defer end(&err)

	err = s.rt.inTx(ctx, "campaign.stats", func(tx port.Tx) error {
		stats, err = tx.CampaignStats(ctx)
		if err != nil {
			return err
		}
		if len(stats) == 0 {
			return domain.NewError(domain.KindNoCampaigns, 0, "no campaigns found")
		}
		return nil
	})
	return stats, err
}
