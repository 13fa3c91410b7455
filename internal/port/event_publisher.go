package port

import (
	"context"
	"time"
)

// Event is a committed fact published after its transaction succeeds.
type Event struct {
	Type       string
	Key        string
	OccurredAt time.Time
	Payload    any
}

const (
	EventOrderPlaced     = "order.placed"
	EventCouponIssued    = "coupon.issued"
	EventProductVersion  = "product.version_created"
	EventCampaignCreated = "campaign.created"
	EventProductRated    = "product.rated"
)

type EventPublisher interface {
	Publish(ctx context.Context, events ...Event) error
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, ...Event) error { return nil }
