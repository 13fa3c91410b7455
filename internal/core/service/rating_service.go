package service

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/rl1809/market-core/internal/core/domain"
	"github.com/rl1809/market-core/internal/port"
)

// RatingService records one rating per purchased order line.
type RatingService struct {
	rt     *Runtime
	events *EventDispatcher
}

func NewRatingService(rt *Runtime, events *EventDispatcher) *RatingService {
	return &RatingService{rt: rt, events: events}
}

func (s *RatingService) Rate(ctx context.Context, buyerID int64, in domain.NewRating) (rating domain.Rating, err error) {
	ctx, end := s.rt.begin(ctx, "rating.rate",
		attribute.Int64("order.id", in.OrderID), attribute.Int64("product.id", in.ProductID))
	defer end(&err)

	if err := in.Validate(); err != nil {
		return domain.Rating{}, err
	}

	err = s.rt.inTx(ctx, "rating.rate", func(tx port.Tx) error {
		line, owner, err := tx.OrderLine(ctx, in.OrderID, in.ProductID)
		if errors.Is(err, port.ErrNotFound) {
			return domain.NewError(domain.KindProductNotFound, in.ProductID,
				"product %d is not part of order %d", in.ProductID, in.OrderID)
		}
		if err != nil {
			return err
		}
		if owner != buyerID {
			return domain.NewError(domain.KindForbidden, in.OrderID, "order %d was placed by another buyer", in.OrderID)
		}

		exists, err := tx.RatingExists(ctx, in.OrderID, in.ProductID)
		if err != nil {
			return err
		}
		if exists {
			return alreadyRated(in)
		}

		rating = domain.Rating{
			OrderID:        in.OrderID,
			ProductID:      in.ProductID,
			ProductVersion: line.Version,
			BuyerID:        buyerID,
			Score:          in.Score,
			Comment:        strings.TrimSpace(in.Comment),
			CreatedAt:      s.rt.Now(),
		}
		err = tx.InsertRating(ctx, rating)
		if errors.Is(err, port.ErrDuplicate) {
			return alreadyRated(in)
		}
		return err
	})
	if err != nil {
		return domain.Rating{}, err
	}

	s.events.Dispatch(ctx, port.Event{
		Type:       port.EventProductRated,
		Key:        keyOf(rating.ProductID),
		OccurredAt: rating.CreatedAt,
		Payload: map[string]any{
			"order_id":   rating.OrderID,
			"product_id": rating.ProductID,
			"version":    rating.ProductVersion,
			"score":      rating.Score,
		},
	})
	return rating, nil
}

func alreadyRated(in domain.NewRating) error {
	return domain.NewError(domain.KindAlreadyRated, in.ProductID,
		"product %d of order %d was already rated", in.ProductID, in.OrderID)
}
