package cart

import (
	"sync"
	"time"

	"github.com/nvquang/storefront-core/pkg/types"
	"github.com/shopspring/decimal"
)

// Store is the in-memory view of one user's cart: the enriched line items,
// the selection set used for checkout, and the last refresh timestamp.
// Selection always references line items present in the cart; every rebuild
// intersects the previous selection with the incoming line ids so removed
// lines can never stay selected.
type Store struct {
	mu              sync.RWMutex
	cartID          int64
	items           []types.EnrichedCartItem
	selected        map[int64]struct{}
	lastRefreshedAt time.Time
	selectAllOnLoad bool
	loadedOnce      bool
	subscribers     []func()
}

func NewStore(selectAllOnLoad bool) *Store {
	return &Store{
		selected:        map[int64]struct{}{},
		selectAllOnLoad: selectAllOnLoad,
	}
}

// Subscribe registers a callback invoked after every state change: refresh,
// reset, and any selection edit. Callbacks run outside the store lock and may
// read the store freely.
func (s *Store) Subscribe(fn func()) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

func (s *Store) notify() {
	s.mu.RLock()
	subs := make([]func(), len(s.subscribers))
	copy(subs, s.subscribers)
	s.mu.RUnlock()
	for _, fn := range subs {
		fn()
	}
}

// Replace installs a freshly refreshed cart view. The previous selection is
// intersected with the new line ids; on the very first load the store can
// instead select everything, matching the storefront's default.
func (s *Store) Replace(cart types.Cart, items []types.EnrichedCartItem, refreshedAt time.Time) {
	defer s.notify()
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cartID = cart.CartID
	s.items = items
	s.lastRefreshedAt = refreshedAt

	next := make(map[int64]struct{}, len(items))
	if !s.loadedOnce && s.selectAllOnLoad {
		for _, item := range items {
			next[item.Line.ID] = struct{}{}
		}
	} else {
		for _, item := range items {
			if _, ok := s.selected[item.Line.ID]; ok {
				next[item.Line.ID] = struct{}{}
			}
		}
	}
	s.selected = next
	s.loadedOnce = true
}

// Reset clears all local state. Used on sign-out and when the server cart is
// gone.
func (s *Store) Reset() {
	defer s.notify()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cartID = 0
	s.items = nil
	s.selected = map[int64]struct{}{}
	s.lastRefreshedAt = time.Time{}
	s.loadedOnce = false
}

func (s *Store) CartID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cartID
}

func (s *Store) LastRefreshedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRefreshedAt
}

// Items returns a copy of the current enriched line items.
func (s *Store) Items() []types.EnrichedCartItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.EnrichedCartItem, len(s.items))
	copy(out, s.items)
	return out
}

// Item looks up a line item by id.
func (s *Store) Item(lineItemID int64) (types.EnrichedCartItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, item := range s.items {
		if item.Line.ID == lineItemID {
			return item, true
		}
	}
	return types.EnrichedCartItem{}, false
}

// Toggle flips a line item's selection. Unknown ids are ignored so a stale
// client reference cannot grow the selection beyond the cart.
func (s *Store) Toggle(lineItemID int64) {
	s.mu.Lock()
	if !s.hasLineLocked(lineItemID) {
		s.mu.Unlock()
		return
	}
	if _, ok := s.selected[lineItemID]; ok {
		delete(s.selected, lineItemID)
	} else {
		s.selected[lineItemID] = struct{}{}
	}
	s.mu.Unlock()
	s.notify()
}

func (s *Store) SelectAll() {
	defer s.notify()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range s.items {
		s.selected[item.Line.ID] = struct{}{}
	}
}

func (s *Store) ClearSelection() {
	defer s.notify()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = map[int64]struct{}{}
}

func (s *Store) IsSelected(lineItemID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.selected[lineItemID]
	return ok
}

// SelectedIDs returns the selected line item ids in cart order.
func (s *Store) SelectedIDs() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]int64, 0, len(s.selected))
	for _, item := range s.items {
		if _, ok := s.selected[item.Line.ID]; ok {
			out = append(out, item.Line.ID)
		}
	}
	return out
}

// SelectedItems returns the enriched items currently selected, in cart order.
func (s *Store) SelectedItems() []types.EnrichedCartItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.EnrichedCartItem, 0, len(s.selected))
	for _, item := range s.items {
		if _, ok := s.selected[item.Line.ID]; ok {
			out = append(out, item)
		}
	}
	return out
}

// DropSelection removes specific line ids from the selection without touching
// the items. Called before a removal refresh so the selection never points at
// a line the server no longer has.
func (s *Store) DropSelection(lineItemIDs ...int64) {
	defer s.notify()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range lineItemIDs {
		delete(s.selected, id)
	}
}

// ComputeTotal sums effective unit price times quantity over either the
// selected lines or the whole cart. Lines whose snapshot failed to resolve
// are skipped and the total is flagged incomplete.
func (s *Store) ComputeTotal(selectedOnly bool) types.Total {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := types.Total{Amount: decimal.Zero}
	for _, item := range s.items {
		if selectedOnly {
			if _, ok := s.selected[item.Line.ID]; !ok {
				continue
			}
		}
		if !item.Resolved() {
			total.Incomplete = true
			continue
		}
		lineTotal := item.Snapshot.EffectiveUnitPrice().Mul(decimal.NewFromInt(int64(item.Line.Quantity)))
		total.Amount = total.Amount.Add(lineTotal)
	}
	return total
}

func (s *Store) hasLineLocked(lineItemID int64) bool {
	for _, item := range s.items {
		if item.Line.ID == lineItemID {
			return true
		}
	}
	return false
}
