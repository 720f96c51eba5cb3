package types

import (
	"time"

	"github.com/nvquang/storefront-core/pkg/enums"
	"github.com/shopspring/decimal"
)

// DraftItem is one line of an immutable checkout draft.
type DraftItem struct {
	ProductID    int64           `json:"product_id"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	ProductName  string          `json:"product_name"`
	ThumbnailURL string          `json:"thumbnail_url"`
}

// Order is the server entity returned after submission. The client only
// needs id and status to drive payment and history flows.
type Order struct {
	ID        int64               `json:"id"`
	Status    enums.OrderStatus   `json:"status"`
	Total     decimal.Decimal     `json:"total"`
	Method    enums.PaymentMethod `json:"payment_method"`
	CreatedAt time.Time           `json:"created_at"`
}

// PaymentSession tracks an in-progress external payment redirect for one order.
type PaymentSession struct {
	OrderID     int64               `json:"order_id"`
	Method      enums.PaymentMethod `json:"payment_method"`
	RedirectURL string              `json:"redirect_url,omitempty"`
	Completed   bool                `json:"completed"`
}
