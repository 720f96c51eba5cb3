package localdb

import (
	"time"

	"github.com/nvquang/storefront-core/pkg/enums"
	"github.com/nvquang/storefront-core/pkg/types"
	"github.com/shopspring/decimal"
)

// CachedSnapshot is the sqlite row for a previously resolved product snapshot.
// Prices are stored as strings to keep decimal values exact.
type CachedSnapshot struct {
	ProductID     int64  `gorm:"primaryKey"`
	Title         string `gorm:"not null"`
	Author        string
	Price         string `gorm:"not null"`
	DiscountPrice *string
	ThumbnailURL  string
	StockQuantity int
	FetchedAt     time.Time `gorm:"index"`
}

// ToSnapshot converts the cached row back into the domain snapshot.
func (c CachedSnapshot) ToSnapshot() (types.ProductSnapshot, error) {
	price, err := decimal.NewFromString(c.Price)
	if err != nil {
		return types.ProductSnapshot{}, err
	}
	snap := types.ProductSnapshot{
		ProductID:     c.ProductID,
		Title:         c.Title,
		Author:        c.Author,
		Price:         price,
		ThumbnailURL:  c.ThumbnailURL,
		StockQuantity: c.StockQuantity,
		FetchedAt:     c.FetchedAt,
	}
	if c.DiscountPrice != nil {
		discount, err := decimal.NewFromString(*c.DiscountPrice)
		if err != nil {
			return types.ProductSnapshot{}, err
		}
		snap.DiscountPrice = &discount
	}
	return snap, nil
}

// FromSnapshot builds the cache row for a freshly resolved snapshot.
func FromSnapshot(snap types.ProductSnapshot) CachedSnapshot {
	row := CachedSnapshot{
		ProductID:     snap.ProductID,
		Title:         snap.Title,
		Author:        snap.Author,
		Price:         snap.Price.String(),
		ThumbnailURL:  snap.ThumbnailURL,
		StockQuantity: snap.StockQuantity,
		FetchedAt:     snap.FetchedAt,
	}
	if snap.DiscountPrice != nil {
		value := snap.DiscountPrice.String()
		row.DiscountPrice = &value
	}
	return row
}

// CachedOrder is the sqlite row for an order the user has already seen,
// kept so order history renders while the backend is unreachable.
type CachedOrder struct {
	OrderID   int64  `gorm:"primaryKey"`
	UserID    string `gorm:"index;not null"`
	Status    string `gorm:"not null"`
	Total     string `gorm:"not null"`
	Method    string
	CreatedAt time.Time
	SyncedAt  time.Time
}

// ToOrder converts the cached row back into the domain order.
func (c CachedOrder) ToOrder() (types.Order, error) {
	total, err := decimal.NewFromString(c.Total)
	if err != nil {
		return types.Order{}, err
	}
	return types.Order{
		ID:        c.OrderID,
		Status:    enums.OrderStatus(c.Status),
		Total:     total,
		Method:    enums.PaymentMethod(c.Method),
		CreatedAt: c.CreatedAt,
	}, nil
}

// FromOrder builds the cache row for a freshly listed order.
func FromOrder(userID string, order types.Order, syncedAt time.Time) CachedOrder {
	return CachedOrder{
		OrderID:   order.ID,
		UserID:    userID,
		Status:    string(order.Status),
		Total:     order.Total.String(),
		Method:    string(order.Method),
		CreatedAt: order.CreatedAt,
		SyncedAt:  syncedAt,
	}
}
