package domain

import "time"

// StockCounter is the inventory ledger row for one product version.
type StockCounter struct {
	ProductID int64
	Version   int64
	Quantity  int
	UpdatedAt time.Time
}

func (s StockCounter) CanReserve(quantity int) bool {
	return quantity > 0 && s.Quantity >= quantity
}
