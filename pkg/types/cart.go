package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartLineItem is the server-owned cart row; the client caches a copy.
type CartLineItem struct {
	ID        int64 `json:"id"`
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// ProductSnapshot is a point-in-time copy of mutable product data, joined
// into a cart line for display and totals. It is never persisted as truth.
type ProductSnapshot struct {
	ProductID     int64            `json:"product_id"`
	Title         string           `json:"title"`
	Author        string           `json:"author"`
	Price         decimal.Decimal  `json:"price"`
	DiscountPrice *decimal.Decimal `json:"discount_price,omitempty"`
	ThumbnailURL  string           `json:"thumbnail_url"`
	StockQuantity int              `json:"stock_quantity"`
	FetchedAt     time.Time        `json:"fetched_at"`
}

// EffectiveUnitPrice is the discount price when present and positive, else the list price.
func (p ProductSnapshot) EffectiveUnitPrice() decimal.Decimal {
	if p.DiscountPrice != nil && p.DiscountPrice.IsPositive() {
		return *p.DiscountPrice
	}
	return p.Price
}

// EnrichedCartItem joins a cart line with its snapshot. Snapshot may be nil
// when the lookup failed; such lines are kept visible but excluded from
// totals and checkout eligibility.
type EnrichedCartItem struct {
	Line          CartLineItem     `json:"line"`
	Snapshot      *ProductSnapshot `json:"snapshot,omitempty"`
	SnapshotError string           `json:"snapshot_error,omitempty"`
}

// Resolved reports whether the line has a usable snapshot.
func (e EnrichedCartItem) Resolved() bool {
	return e.Snapshot != nil
}

// Total is a computed cart total. Incomplete is set when at least one
// participating line had no snapshot and therefore contributed zero.
type Total struct {
	Amount     decimal.Decimal `json:"amount"`
	Incomplete bool            `json:"incomplete"`
}

// Cart is the raw server cart.
type Cart struct {
	CartID int64          `json:"cart_id"`
	Items  []CartLineItem `json:"items"`
}
