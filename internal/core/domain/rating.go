package domain

import (
	"strings"
	"time"
)

const (
	MinScore = 1
	MaxScore = 5
)

type Rating struct {
	OrderID        int64
	ProductID      int64
	ProductVersion int64
	BuyerID        int64
	Score          int
	Comment        string
	CreatedAt      time.Time
}

type NewRating struct {
	OrderID   int64
	ProductID int64
	Score     int
	Comment   string
}

func (r NewRating) Validate() error {
	if r.OrderID <= 0 {
		return Validation("order_id is required to rate a product")
	}
	if r.ProductID <= 0 {
		return Validation("product_id is required to rate a product")
	}
	if r.Score < MinScore || r.Score > MaxScore {
		return Validation("a rating between %d and %d is required, got %d", MinScore, MaxScore, r.Score)
	}
	if len(strings.TrimSpace(r.Comment)) > 1000 {
		return Validation("comment is longer than 1000 characters")
	}
	return nil
}
