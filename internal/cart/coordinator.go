package cart

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nvquang/storefront-core/internal/catalog"
	pkgerrors "github.com/nvquang/storefront-core/pkg/errors"
	"github.com/nvquang/storefront-core/pkg/logger"
	"github.com/nvquang/storefront-core/pkg/types"
	"go.uber.org/multierr"
)

type cartBackend interface {
	GetCart(ctx context.Context) (types.Cart, error)
	UpsertCartItem(ctx context.Context, productID int64, quantity int) (types.CartLineItem, error)
	RemoveCartItems(ctx context.Context, ids []int64) error
}

// Coordinator owns every mutation of one user's cart. Mutations touching the
// same product are serialized through a per-product gate, so two quantity
// updates for one line can never interleave and the later caller always sees
// the server state produced by the earlier one. The store is rebuilt from the
// server response after each acknowledged mutation, never optimistically.
type Coordinator struct {
	backend cartBackend
	catalog catalog.Service
	store   *Store
	logger  *logger.Logger
	now     func() time.Time

	gatesMu sync.Mutex
	gates   map[int64]*sync.Mutex
}

type CoordinatorDeps struct {
	Backend         cartBackend
	Catalog         catalog.Service
	Logger          *logger.Logger
	SelectAllOnLoad bool
}

func NewCoordinator(deps CoordinatorDeps) (*Coordinator, error) {
	if deps.Backend == nil {
		return nil, errors.New("cart backend is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("catalog service is required")
	}
	if deps.Logger == nil {
		return nil, errors.New("cart logger is required")
	}
	return &Coordinator{
		backend: deps.Backend,
		catalog: deps.Catalog,
		store:   NewStore(deps.SelectAllOnLoad),
		logger:  deps.Logger,
		now:     time.Now,
	}, nil
}

// Store exposes the read-side view backing this coordinator.
func (c *Coordinator) Store() *Store {
	return c.store
}

// Refresh pulls the server cart and rebuilds the enriched view. Snapshot
// failures for individual lines do not fail the refresh: the line is kept
// with its error recorded so totals can be flagged incomplete.
func (c *Coordinator) Refresh(ctx context.Context) ([]types.EnrichedCartItem, error) {
	cart, err := c.backend.GetCart(ctx)
	if err != nil {
		return nil, err
	}

	items := make([]types.EnrichedCartItem, 0, len(cart.Items))
	var snapErrs error
	for _, line := range cart.Items {
		enriched := types.EnrichedCartItem{Line: line}
		snap, err := c.catalog.Resolve(ctx, line.ProductID)
		if err != nil {
			enriched.SnapshotError = err.Error()
			snapErrs = multierr.Append(snapErrs, fmt.Errorf("product %d: %w", line.ProductID, err))
		} else {
			enriched.Snapshot = &snap
		}
		items = append(items, enriched)
	}
	if snapErrs != nil {
		c.logger.Warn(ctx, "cart refresh resolved with partial snapshots: "+snapErrs.Error())
	}

	c.store.Replace(cart, items, c.now())
	return c.store.Items(), nil
}

// AddItem adds a product to the cart (or bumps its quantity server-side) and
// refreshes.
func (c *Coordinator) AddItem(ctx context.Context, productID int64, quantity int) error {
	if quantity < 1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least one")
	}
	ctx = c.opContext(ctx, "add_item")

	unlock := c.lockProduct(productID)
	defer unlock()

	if _, err := c.backend.UpsertCartItem(ctx, productID, quantity); err != nil {
		return err
	}
	c.catalog.Invalidate(ctx, productID)
	_, err := c.Refresh(ctx)
	return err
}

// UpdateQuantity sets a line's quantity. Out-of-bounds requests are rejected
// locally against the last known stock, without a network call.
func (c *Coordinator) UpdateQuantity(ctx context.Context, lineItemID int64, quantity int) error {
	item, ok := c.store.Item(lineItemID)
	if !ok {
		return pkgerrors.New(pkgerrors.CodeNotFound, "cart line not found")
	}
	if quantity < 1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least one")
	}
	if item.Resolved() && quantity > item.Snapshot.StockQuantity {
		return pkgerrors.New(pkgerrors.CodeStockExceeded, "requested quantity exceeds available stock").
			WithDetails(map[string]any{
				"line_item_id": lineItemID,
				"requested":    quantity,
				"available":    item.Snapshot.StockQuantity,
			})
	}
	ctx = c.opContext(ctx, "update_quantity")

	unlock := c.lockProduct(item.Line.ProductID)
	defer unlock()

	if _, err := c.backend.UpsertCartItem(ctx, item.Line.ProductID, quantity); err != nil {
		return err
	}
	c.catalog.Invalidate(ctx, item.Line.ProductID)
	_, err := c.Refresh(ctx)
	return err
}

// RemoveItem deletes a line server-side, drops it from the selection before
// the view rebuild, and refreshes.
func (c *Coordinator) RemoveItem(ctx context.Context, lineItemID int64) error {
	item, ok := c.store.Item(lineItemID)
	if !ok {
		return pkgerrors.New(pkgerrors.CodeNotFound, "cart line not found")
	}
	ctx = c.opContext(ctx, "remove_item")

	unlock := c.lockProduct(item.Line.ProductID)
	defer unlock()

	if err := c.backend.RemoveCartItems(ctx, []int64{lineItemID}); err != nil {
		return err
	}
	c.store.DropSelection(lineItemID)
	_, err := c.Refresh(ctx)
	return err
}

// RemoveItems deletes several lines in one server call. Used by checkout to
// purge purchased lines after a completed order. The gates of every affected
// product are held across the call so the purge cannot interleave with an
// in-flight mutation on one of its lines.
func (c *Coordinator) RemoveItems(ctx context.Context, lineItemIDs []int64) error {
	if len(lineItemIDs) == 0 {
		return nil
	}
	ctx = c.opContext(ctx, "remove_items")

	unlock := c.lockProducts(c.productsForLines(lineItemIDs))
	defer unlock()

	if err := c.backend.RemoveCartItems(ctx, lineItemIDs); err != nil {
		return err
	}
	c.store.DropSelection(lineItemIDs...)
	_, err := c.Refresh(ctx)
	return err
}

// Clear removes every line in one server call and empties the local view on
// the ack, without waiting for another refresh round trip.
func (c *Coordinator) Clear(ctx context.Context) error {
	items := c.store.Items()
	if len(items) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(items))
	products := make([]int64, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.Line.ID)
		products = append(products, item.Line.ProductID)
	}
	ctx = c.opContext(ctx, "clear")

	unlock := c.lockProducts(products)
	defer unlock()

	if err := c.backend.RemoveCartItems(ctx, ids); err != nil {
		return err
	}
	c.store.Replace(types.Cart{CartID: c.store.CartID()}, nil, c.now())
	return nil
}

// productsForLines maps line ids to their products through the current view.
// Lines the view no longer knows have no gate to take.
func (c *Coordinator) productsForLines(lineItemIDs []int64) []int64 {
	products := make([]int64, 0, len(lineItemIDs))
	for _, id := range lineItemIDs {
		if item, ok := c.store.Item(id); ok {
			products = append(products, item.Line.ProductID)
		}
	}
	return products
}

// lockProducts takes the gates for a set of products in ascending id order so
// overlapping multi-product operations cannot deadlock against each other.
func (c *Coordinator) lockProducts(productIDs []int64) func() {
	ids := make([]int64, len(productIDs))
	copy(ids, productIDs)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	unlocks := make([]func(), 0, len(ids))
	var taken bool
	var last int64
	for _, id := range ids {
		if taken && id == last {
			continue
		}
		taken, last = true, id
		unlocks = append(unlocks, c.lockProduct(id))
	}
	return func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
}

func (c *Coordinator) opContext(ctx context.Context, op string) context.Context {
	return c.logger.WithFields(ctx, map[string]any{
		"cart_op": op,
		"op_id":   uuid.NewString(),
	})
}

func (c *Coordinator) lockProduct(productID int64) func() {
	c.gatesMu.Lock()
	if c.gates == nil {
		c.gates = map[int64]*sync.Mutex{}
	}
	gate, ok := c.gates[productID]
	if !ok {
		gate = &sync.Mutex{}
		c.gates[productID] = gate
	}
	c.gatesMu.Unlock()

	gate.Lock()
	return gate.Unlock
}
