package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/nvquang/storefront-core/api/middleware"
	"github.com/nvquang/storefront-core/api/responses"
	"github.com/nvquang/storefront-core/api/validators"
	"github.com/nvquang/storefront-core/internal/cart"
	pkgerrors "github.com/nvquang/storefront-core/pkg/errors"
	"github.com/nvquang/storefront-core/pkg/logger"
	"github.com/nvquang/storefront-core/pkg/types"
)

type cartItemView struct {
	LineItemID    int64            `json:"line_item_id"`
	ProductID     int64            `json:"product_id"`
	Quantity      int              `json:"quantity"`
	Selected      bool             `json:"selected"`
	Title         string           `json:"title,omitempty"`
	Author        string           `json:"author,omitempty"`
	ThumbnailURL  string           `json:"thumbnail_url,omitempty"`
	UnitPrice     *decimal.Decimal `json:"unit_price,omitempty"`
	OriginalPrice *decimal.Decimal `json:"original_price,omitempty"`
	StockQuantity int              `json:"stock_quantity"`
	SnapshotError string           `json:"snapshot_error,omitempty"`
}

type cartView struct {
	CartID          int64          `json:"cart_id"`
	Items           []cartItemView `json:"items"`
	SelectedTotal   types.Total    `json:"selected_total"`
	CartTotal       types.Total    `json:"cart_total"`
	LastRefreshedAt time.Time      `json:"last_refreshed_at"`
}

func buildCartView(store *cart.Store) cartView {
	view := cartView{
		CartID:          store.CartID(),
		Items:           []cartItemView{},
		SelectedTotal:   store.ComputeTotal(true),
		CartTotal:       store.ComputeTotal(false),
		LastRefreshedAt: store.LastRefreshedAt(),
	}
	for _, item := range store.Items() {
		itemView := cartItemView{
			LineItemID:    item.Line.ID,
			ProductID:     item.Line.ProductID,
			Quantity:      item.Line.Quantity,
			Selected:      store.IsSelected(item.Line.ID),
			SnapshotError: item.SnapshotError,
		}
		if item.Resolved() {
			unit := item.Snapshot.EffectiveUnitPrice()
			original := item.Snapshot.Price
			itemView.Title = item.Snapshot.Title
			itemView.Author = item.Snapshot.Author
			itemView.ThumbnailURL = item.Snapshot.ThumbnailURL
			itemView.UnitPrice = &unit
			itemView.OriginalPrice = &original
			itemView.StockQuantity = item.Snapshot.StockQuantity
		}
		view.Items = append(view.Items, itemView)
	}
	return view
}

func coordinatorFor(r *http.Request, manager *cart.Manager) (*cart.Coordinator, error) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeAuthExpired, "missing user context")
	}
	return manager.ForUser(userID)
}

// CartFetch refreshes the cart from the backend and returns the enriched view.
func CartFetch(manager *cart.Manager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		coordinator, err := coordinatorFor(r, manager)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if _, err := coordinator.Refresh(r.Context()); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, buildCartView(coordinator.Store()))
	}
}

type addItemRequest struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"required,gt=0"`
}

func CartAddItem(manager *cart.Manager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req addItemRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		coordinator, err := coordinatorFor(r, manager)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := coordinator.AddItem(r.Context(), req.ProductID, req.Quantity); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, buildCartView(coordinator.Store()))
	}
}

type updateQuantityRequest struct {
	Quantity int `json:"quantity" validate:"required,gt=0"`
}

func CartUpdateQuantity(manager *cart.Manager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lineItemID, err := validators.ParsePathID(chi.URLParam(r, "lineItemId"), "lineItemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req updateQuantityRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		coordinator, err := coordinatorFor(r, manager)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := coordinator.UpdateQuantity(r.Context(), lineItemID, req.Quantity); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, buildCartView(coordinator.Store()))
	}
}

func CartRemoveItem(manager *cart.Manager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lineItemID, err := validators.ParsePathID(chi.URLParam(r, "lineItemId"), "lineItemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		coordinator, err := coordinatorFor(r, manager)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := coordinator.RemoveItem(r.Context(), lineItemID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, buildCartView(coordinator.Store()))
	}
}

type removeItemsRequest struct {
	LineItemIDs []int64 `json:"line_item_ids" validate:"required,min=1,dive,gt=0"`
}

func CartRemoveItems(manager *cart.Manager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req removeItemsRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		coordinator, err := coordinatorFor(r, manager)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := coordinator.RemoveItems(r.Context(), req.LineItemIDs); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, buildCartView(coordinator.Store()))
	}
}

func CartClear(manager *cart.Manager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		coordinator, err := coordinatorFor(r, manager)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := coordinator.Clear(r.Context()); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, buildCartView(coordinator.Store()))
	}
}

type selectionRequest struct {
	Action     string `json:"action" validate:"required,oneof=toggle select_all clear"`
	LineItemID int64  `json:"line_item_id,omitempty" validate:"omitempty,gt=0"`
}

// CartSelection mutates the local selection set. No backend call is involved.
func CartSelection(manager *cart.Manager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req selectionRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		coordinator, err := coordinatorFor(r, manager)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		store := coordinator.Store()
		switch req.Action {
		case "toggle":
			if req.LineItemID == 0 {
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.New(pkgerrors.CodeValidation, "line_item_id required for toggle"))
				return
			}
			store.Toggle(req.LineItemID)
		case "select_all":
			store.SelectAll()
		case "clear":
			store.ClearSelection()
		}
		responses.WriteSuccess(w, buildCartView(store))
	}
}
