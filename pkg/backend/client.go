package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nvquang/storefront-core/pkg/config"
	pkgerrors "github.com/nvquang/storefront-core/pkg/errors"
	"github.com/nvquang/storefront-core/pkg/logger"
	"github.com/nvquang/storefront-core/pkg/metrics"
	"github.com/nvquang/storefront-core/pkg/types"
)

var errLoggerRequired = errors.New("backend logger is required")

// Client wraps the remote storefront REST API with centralized auth header
// handling, logging, timeout enforcement, and error mapping.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	logger     *logger.Logger
	metrics    *metrics.BackendCallMetrics
}

// NewClient validates the configuration and builds the API wrapper.
func NewClient(cfg config.BackendConfig, logg *logger.Logger, m *metrics.BackendCallMetrics) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("backend base url is required")
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    base,
		userAgent:  cfg.UserAgent,
		logger:     logg,
		metrics:    m,
	}, nil
}

// GetCart fetches the caller's server cart.
func (c *Client) GetCart(ctx context.Context) (types.Cart, error) {
	var payload cartPayload
	if err := c.do(ctx, "get_cart", http.MethodGet, "/api/v1/cart", nil, &payload); err != nil {
		return types.Cart{}, err
	}
	return payload.normalize()
}

// GetProduct fetches the current snapshot for one product.
func (c *Client) GetProduct(ctx context.Context, productID int64) (types.ProductSnapshot, error) {
	var payload productPayload
	path := fmt.Sprintf("/api/v1/products/%d", productID)
	if err := c.do(ctx, "get_product", http.MethodGet, path, nil, &payload); err != nil {
		return types.ProductSnapshot{}, err
	}
	return payload.normalize(time.Now())
}

// UpsertCartItem creates or merges a cart line for the product.
func (c *Client) UpsertCartItem(ctx context.Context, productID int64, quantity int) (types.CartLineItem, error) {
	body := map[string]any{"product_id": productID, "quantity": quantity}
	var payload cartItemPayload
	if err := c.do(ctx, "upsert_cart_item", http.MethodPost, "/api/v1/cart/items", body, &payload); err != nil {
		return types.CartLineItem{}, err
	}
	return payload.normalize()
}

// RemoveCartItems deletes the given cart lines.
func (c *Client) RemoveCartItems(ctx context.Context, ids []int64) error {
	body := map[string]any{"ids": ids}
	return c.do(ctx, "remove_cart_items", http.MethodPost, "/api/v1/cart/items/remove", body, nil)
}

// CreateOrder submits an order. Never retried here; duplicate protection is
// the caller's responsibility.
func (c *Client) CreateOrder(ctx context.Context, input CreateOrderInput) (types.Order, error) {
	var payload orderPayload
	if err := c.do(ctx, "create_order", http.MethodPost, "/api/v1/orders", input, &payload); err != nil {
		return types.Order{}, err
	}
	return payload.normalize()
}

// InitiateOnlinePayment asks the backend to open a payment session for the order.
func (c *Client) InitiateOnlinePayment(ctx context.Context, orderID int64, provider string) (string, error) {
	body := map[string]any{"provider": provider}
	path := fmt.Sprintf("/api/v1/orders/%d/payments", orderID)
	var payload paymentPayload
	if err := c.do(ctx, "initiate_payment", http.MethodPost, path, body, &payload); err != nil {
		return "", err
	}
	redirect := payload.url()
	if redirect == "" {
		return "", pkgerrors.New(pkgerrors.CodeServer, "payment session missing redirect url")
	}
	return redirect, nil
}

// CancelOrder requests cancellation of an order the client created earlier.
func (c *Client) CancelOrder(ctx context.Context, orderID int64) error {
	path := fmt.Sprintf("/api/v1/orders/%d/cancel", orderID)
	return c.do(ctx, "cancel_order", http.MethodPost, path, nil, nil)
}

// ListOrders returns the caller's order history page.
func (c *Client) ListOrders(ctx context.Context, page, pageSize int) ([]types.Order, error) {
	path := fmt.Sprintf("/api/v1/orders?page=%d&page_size=%d", page, pageSize)
	var payload orderListPayload
	if err := c.do(ctx, "list_orders", http.MethodGet, path, nil, &payload); err != nil {
		return nil, err
	}
	entries := payload.entries()
	orders := make([]types.Order, 0, len(entries))
	for _, entry := range entries {
		order, err := entry.normalize()
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, nil
}

// ListNotifications returns the caller's notifications.
func (c *Client) ListNotifications(ctx context.Context) ([]Notification, error) {
	var payload notificationListPayload
	if err := c.do(ctx, "list_notifications", http.MethodGet, "/api/v1/notifications", nil, &payload); err != nil {
		return nil, err
	}
	return payload.entries(), nil
}

// MarkNotificationRead flags one notification as read.
func (c *Client) MarkNotificationRead(ctx context.Context, id int64) error {
	path := fmt.Sprintf("/api/v1/notifications/%d/read", id)
	return c.do(ctx, "mark_notification_read", http.MethodPost, path, nil, nil)
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	start := time.Now()
	err := c.doOnce(ctx, op, method, path, body, out)
	c.metrics.ObserveDuration(op, time.Since(start))
	if err != nil {
		code := pkgerrors.CodeInternal
		if typed := pkgerrors.As(err); typed != nil {
			code = typed.Code()
		}
		c.metrics.RecordFailure(op, string(code))
		c.log(ctx, "error", op, map[string]any{"error": err.Error()})
		return err
	}
	c.metrics.RecordSuccess(op)
	return nil
}

func (c *Client) doOnce(ctx context.Context, op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode request")
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if token := TokenFromContext(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	c.log(ctx, "request", op, map[string]any{"method": method, "path": req.URL.Path})

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return mapTransportError(err, op)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeNetwork, err, fmt.Sprintf("read %s response", op))
	}

	if resp.StatusCode >= 400 {
		return mapStatusError(resp.StatusCode, raw, op)
	}

	if out == nil {
		return nil
	}
	if err := decodeBody(raw, out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeServer, err, fmt.Sprintf("decode %s response", op))
	}
	return nil
}

// decodeBody accepts both the {"data": ...} envelope and a naked payload.
func decodeBody(raw []byte, out any) error {
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err == nil && len(env.Data) > 0 {
		return json.Unmarshal(env.Data, out)
	}
	return json.Unmarshal(raw, out)
}

func mapTransportError(err error, op string) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return pkgerrors.Wrap(pkgerrors.CodeNetwork, err, fmt.Sprintf("%s timed out", op))
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return pkgerrors.Wrap(pkgerrors.CodeNetwork, err, fmt.Sprintf("%s cancelled", op))
	}
	return pkgerrors.Wrap(pkgerrors.CodeNetwork, err, fmt.Sprintf("%s unreachable", op))
}

func mapStatusError(status int, raw []byte, op string) error {
	message := ""
	var fields map[string]string
	var env envelope[struct{}]
	if err := json.Unmarshal(raw, &env); err == nil && env.Error != nil {
		message = env.Error.Message
		fields = env.Error.Fields
	}

	code := domainCodeForStatus(status)
	if message == "" {
		message = fmt.Sprintf("%s failed with status %d", op, status)
	}
	typed := pkgerrors.New(code, message)
	if len(fields) > 0 {
		typed = typed.WithDetails(fields)
	}
	return typed
}

func domainCodeForStatus(status int) pkgerrors.Code {
	switch status {
	case http.StatusUnauthorized:
		return pkgerrors.CodeAuthExpired
	case http.StatusNotFound:
		return pkgerrors.CodeNotFound
	case http.StatusConflict:
		return pkgerrors.CodeConflict
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return pkgerrors.CodeValidation
	default:
		if status >= 400 && status < 500 {
			return pkgerrors.CodeValidation
		}
		return pkgerrors.CodeServer
	}
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"operation": op,
		"phase":     phase,
	}
	for k, v := range fields {
		logFields[k] = v
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Error(ctx, fmt.Sprintf("backend %s", op), errors.New(fmt.Sprint(fields["error"])))
	default:
		c.logger.Info(ctx, fmt.Sprintf("backend %s", phase))
	}
}
