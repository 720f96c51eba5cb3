package backend

import (
	"time"

	"github.com/nvquang/storefront-core/pkg/enums"
	pkgerrors "github.com/nvquang/storefront-core/pkg/errors"
	"github.com/nvquang/storefront-core/pkg/types"
	"github.com/shopspring/decimal"
)

// Wire payloads mirror the backend's loosely shaped JSON: fields the server
// sometimes omits are pointers here, and normalization into strict domain
// types happens at this boundary so the core never branches on missing keys.

type envelope[T any] struct {
	Data  *T        `json:"data"`
	Error *apiError `json:"error"`
}

type apiError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type cartPayload struct {
	CartID *int64            `json:"cart_id"`
	ID     *int64            `json:"id"`
	Items  []cartItemPayload `json:"items"`
}

type cartItemPayload struct {
	ID        *int64 `json:"id"`
	ProductID *int64 `json:"product_id"`
	Quantity  *int   `json:"quantity"`
}

func (p cartPayload) normalize() (types.Cart, error) {
	cart := types.Cart{}
	switch {
	case p.CartID != nil:
		cart.CartID = *p.CartID
	case p.ID != nil:
		cart.CartID = *p.ID
	}
	cart.Items = make([]types.CartLineItem, 0, len(p.Items))
	for _, item := range p.Items {
		line, err := item.normalize()
		if err != nil {
			return types.Cart{}, err
		}
		cart.Items = append(cart.Items, line)
	}
	return cart, nil
}

func (p cartItemPayload) normalize() (types.CartLineItem, error) {
	if p.ID == nil || p.ProductID == nil {
		return types.CartLineItem{}, pkgerrors.New(pkgerrors.CodeServer, "cart item missing id fields")
	}
	quantity := 1
	if p.Quantity != nil {
		quantity = *p.Quantity
	}
	if quantity < 1 {
		return types.CartLineItem{}, pkgerrors.New(pkgerrors.CodeServer, "cart item quantity below one")
	}
	return types.CartLineItem{
		ID:        *p.ID,
		ProductID: *p.ProductID,
		Quantity:  quantity,
	}, nil
}

type productPayload struct {
	ID            *int64           `json:"id"`
	ProductID     *int64           `json:"product_id"`
	Title         *string          `json:"title"`
	Name          *string          `json:"name"`
	Author        *string          `json:"author"`
	Price         *decimal.Decimal `json:"price"`
	DiscountPrice *decimal.Decimal `json:"discount_price"`
	Thumbnail     *string          `json:"thumbnail"`
	ThumbnailURL  *string          `json:"thumbnail_url"`
	Stock         *int             `json:"stock"`
	StockQuantity *int             `json:"stock_quantity"`
}

func (p productPayload) normalize(now time.Time) (types.ProductSnapshot, error) {
	snap := types.ProductSnapshot{FetchedAt: now}
	switch {
	case p.ProductID != nil:
		snap.ProductID = *p.ProductID
	case p.ID != nil:
		snap.ProductID = *p.ID
	default:
		return types.ProductSnapshot{}, pkgerrors.New(pkgerrors.CodeServer, "product missing id")
	}
	switch {
	case p.Title != nil:
		snap.Title = *p.Title
	case p.Name != nil:
		snap.Title = *p.Name
	}
	if p.Author != nil {
		snap.Author = *p.Author
	}
	if p.Price == nil {
		return types.ProductSnapshot{}, pkgerrors.New(pkgerrors.CodeServer, "product missing price")
	}
	snap.Price = *p.Price
	if p.DiscountPrice != nil && p.DiscountPrice.IsPositive() {
		discount := *p.DiscountPrice
		snap.DiscountPrice = &discount
	}
	switch {
	case p.ThumbnailURL != nil:
		snap.ThumbnailURL = *p.ThumbnailURL
	case p.Thumbnail != nil:
		snap.ThumbnailURL = *p.Thumbnail
	}
	switch {
	case p.StockQuantity != nil:
		snap.StockQuantity = *p.StockQuantity
	case p.Stock != nil:
		snap.StockQuantity = *p.Stock
	}
	if snap.StockQuantity < 0 {
		snap.StockQuantity = 0
	}
	return snap, nil
}

type orderPayload struct {
	ID        *int64           `json:"id"`
	OrderID   *int64           `json:"order_id"`
	Status    *string          `json:"status"`
	Total     *decimal.Decimal `json:"total"`
	Method    *string          `json:"payment_method"`
	CreatedAt *time.Time       `json:"created_at"`
}

func (p orderPayload) normalize() (types.Order, error) {
	order := types.Order{}
	switch {
	case p.ID != nil:
		order.ID = *p.ID
	case p.OrderID != nil:
		order.ID = *p.OrderID
	default:
		return types.Order{}, pkgerrors.New(pkgerrors.CodeServer, "order missing id")
	}
	if p.Status != nil {
		order.Status = enums.OrderStatus(*p.Status)
	} else {
		order.Status = enums.OrderStatusPending
	}
	if p.Total != nil {
		order.Total = *p.Total
	}
	if p.Method != nil {
		order.Method = enums.PaymentMethod(*p.Method)
	}
	if p.CreatedAt != nil {
		order.CreatedAt = *p.CreatedAt
	}
	return order, nil
}

// The backend is inconsistent about its list container key; accept both.
type orderListPayload struct {
	Items  []orderPayload `json:"items"`
	Orders []orderPayload `json:"orders"`
}

func (p orderListPayload) entries() []orderPayload {
	if len(p.Items) > 0 {
		return p.Items
	}
	return p.Orders
}

type paymentPayload struct {
	RedirectURL *string `json:"redirect_url"`
	PaymentURL  *string `json:"payment_url"`
}

func (p paymentPayload) url() string {
	switch {
	case p.RedirectURL != nil:
		return *p.RedirectURL
	case p.PaymentURL != nil:
		return *p.PaymentURL
	}
	return ""
}

// Notification is the thin shape the notification screens need.
type Notification struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

type notificationListPayload struct {
	Items         []Notification `json:"items"`
	Notifications []Notification `json:"notifications"`
}

func (p notificationListPayload) entries() []Notification {
	if len(p.Items) > 0 {
		return p.Items
	}
	return p.Notifications
}

// CreateOrderInput is the order submission payload.
type CreateOrderInput struct {
	ShippingAddressID int64               `json:"shipping_address_id"`
	PaymentMethod     enums.PaymentMethod `json:"payment_method"`
	Note              string              `json:"note,omitempty"`
	Items             []OrderItemInput    `json:"items"`
}

// OrderItemInput is one submitted order line.
type OrderItemInput struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}
