package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID        string
	SKU       string
	Name      string
	UnitPrice decimal.Decimal
	Stock     int
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// Reservation is one line of a stock reservation request.
type Reservation struct {
	ProductID string
	Quantity  int
}

// ProductSnapshot is the copy of product fields taken while the product
// row is locked during reservation. Order items are built from it and
// never re-read from the product afterwards.
type ProductSnapshot struct {
	ProductID string
	SKU       string
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
}
