package cart

import (
	"testing"
	"time"

	"github.com/nvquang/storefront-core/pkg/types"
	"github.com/shopspring/decimal"
)

func snapshotWithPrices(productID int64, price int64, discount *int64, stock int) *types.ProductSnapshot {
	snap := &types.ProductSnapshot{
		ProductID:     productID,
		Title:         "Sách",
		Price:         decimal.NewFromInt(price),
		StockQuantity: stock,
		FetchedAt:     time.Now(),
	}
	if discount != nil {
		value := decimal.NewFromInt(*discount)
		snap.DiscountPrice = &value
	}
	return snap
}

func enriched(lineID, productID int64, quantity int, snap *types.ProductSnapshot) types.EnrichedCartItem {
	return types.EnrichedCartItem{
		Line:     types.CartLineItem{ID: lineID, ProductID: productID, Quantity: quantity},
		Snapshot: snap,
	}
}

func int64Ptr(v int64) *int64 { return &v }

func TestComputeTotalUsesDiscountedPrices(t *testing.T) {
	store := NewStore(true)
	store.Replace(types.Cart{CartID: 1}, []types.EnrichedCartItem{
		enriched(10, 100, 2, snapshotWithPrices(100, 100000, int64Ptr(80000), 5)),
		enriched(11, 101, 1, snapshotWithPrices(101, 50000, nil, 5)),
	}, time.Now())

	total := store.ComputeTotal(true)
	if total.Incomplete {
		t.Fatalf("total unexpectedly incomplete")
	}
	if !total.Amount.Equal(decimal.NewFromInt(210000)) {
		t.Fatalf("expected 210000, got %s", total.Amount)
	}
}

func TestComputeTotalSkipsUnresolvedAndFlagsIncomplete(t *testing.T) {
	store := NewStore(true)
	broken := enriched(12, 102, 3, nil)
	broken.SnapshotError = "network: backend unreachable"
	store.Replace(types.Cart{CartID: 1}, []types.EnrichedCartItem{
		enriched(10, 100, 1, snapshotWithPrices(100, 50000, nil, 5)),
		broken,
	}, time.Now())

	total := store.ComputeTotal(false)
	if !total.Incomplete {
		t.Fatalf("expected incomplete total")
	}
	if !total.Amount.Equal(decimal.NewFromInt(50000)) {
		t.Fatalf("expected 50000, got %s", total.Amount)
	}
}

func TestSelectionSurvivesRefreshOnlyForRemainingLines(t *testing.T) {
	store := NewStore(false)
	store.Replace(types.Cart{CartID: 1}, []types.EnrichedCartItem{
		enriched(10, 100, 1, snapshotWithPrices(100, 50000, nil, 5)),
		enriched(11, 101, 1, snapshotWithPrices(101, 60000, nil, 5)),
	}, time.Now())
	store.Toggle(10)
	store.Toggle(11)

	// Line 11 disappears server-side; its selection must not survive.
	store.Replace(types.Cart{CartID: 1}, []types.EnrichedCartItem{
		enriched(10, 100, 1, snapshotWithPrices(100, 50000, nil, 5)),
	}, time.Now())

	ids := store.SelectedIDs()
	if len(ids) != 1 || ids[0] != 10 {
		t.Fatalf("expected selection [10], got %v", ids)
	}
}

func TestSelectAllOnFirstLoadOnly(t *testing.T) {
	store := NewStore(true)
	store.Replace(types.Cart{CartID: 1}, []types.EnrichedCartItem{
		enriched(10, 100, 1, snapshotWithPrices(100, 50000, nil, 5)),
	}, time.Now())
	if !store.IsSelected(10) {
		t.Fatalf("first load should select everything")
	}

	store.Toggle(10)
	store.Replace(types.Cart{CartID: 1}, []types.EnrichedCartItem{
		enriched(10, 100, 1, snapshotWithPrices(100, 50000, nil, 5)),
		enriched(11, 101, 1, snapshotWithPrices(101, 60000, nil, 5)),
	}, time.Now())
	if store.IsSelected(10) || store.IsSelected(11) {
		t.Fatalf("later refresh should not re-select deselected or new lines")
	}
}

func TestToggleIgnoresUnknownLine(t *testing.T) {
	store := NewStore(false)
	store.Replace(types.Cart{CartID: 1}, []types.EnrichedCartItem{
		enriched(10, 100, 1, snapshotWithPrices(100, 50000, nil, 5)),
	}, time.Now())

	store.Toggle(999)
	if len(store.SelectedIDs()) != 0 {
		t.Fatalf("unknown line must not enter selection")
	}
}

func TestResetClearsEverything(t *testing.T) {
	store := NewStore(true)
	store.Replace(types.Cart{CartID: 7}, []types.EnrichedCartItem{
		enriched(10, 100, 1, snapshotWithPrices(100, 50000, nil, 5)),
	}, time.Now())

	store.Reset()
	if store.CartID() != 0 || len(store.Items()) != 0 || len(store.SelectedIDs()) != 0 {
		t.Fatalf("reset left state behind")
	}
	if !store.LastRefreshedAt().IsZero() {
		t.Fatalf("reset should clear refresh timestamp")
	}
}

func TestSubscribeFiresOnStateChanges(t *testing.T) {
	store := NewStore(true)
	var fired int
	store.Subscribe(func() { fired++ })

	store.Replace(types.Cart{CartID: 1}, []types.EnrichedCartItem{
		enriched(10, 100, 1, snapshotWithPrices(100, 50000, nil, 5)),
	}, time.Now())
	if fired != 1 {
		t.Fatalf("expected notify after replace, got %d", fired)
	}

	store.Toggle(10)
	store.ClearSelection()
	store.SelectAll()
	store.DropSelection(10)
	store.Reset()
	if fired != 6 {
		t.Fatalf("expected 6 notifications, got %d", fired)
	}

	// Unknown line toggles change nothing and stay silent.
	store.Toggle(999)
	if fired != 6 {
		t.Fatalf("no-op toggle must not notify, got %d", fired)
	}
}
