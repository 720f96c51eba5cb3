package checkout

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/nvquang/storefront-core/internal/cart"
	"github.com/nvquang/storefront-core/internal/payment"
	"github.com/nvquang/storefront-core/pkg/backend"
	"github.com/nvquang/storefront-core/pkg/config"
	"github.com/nvquang/storefront-core/pkg/enums"
	pkgerrors "github.com/nvquang/storefront-core/pkg/errors"
	"github.com/nvquang/storefront-core/pkg/logger"
	"github.com/nvquang/storefront-core/pkg/types"
	"github.com/shopspring/decimal"
)

// fakeStorefront implements both the cart and order sides of the remote API
// so one fixture can drive a full checkout.
type fakeStorefront struct {
	mu         sync.Mutex
	nextLineID int64
	byProduct  map[int64]*types.CartLineItem

	nextOrderID    int64
	createdOrders  []backend.CreateOrderInput
	cancelledIDs   []int64
	paymentInitErr error
	createErr      error
	redirectURL    string
}

func newFakeStorefront() *fakeStorefront {
	return &fakeStorefront{
		nextLineID:  100,
		byProduct:   map[int64]*types.CartLineItem{},
		nextOrderID: 500,
		redirectURL: "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html?vnp_TxnRef=1",
	}
}

func (f *fakeStorefront) GetCart(context.Context) (types.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cart := types.Cart{CartID: 1}
	for _, line := range f.byProduct {
		cart.Items = append(cart.Items, *line)
	}
	return cart, nil
}

func (f *fakeStorefront) UpsertCartItem(_ context.Context, productID int64, quantity int) (types.CartLineItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	line, ok := f.byProduct[productID]
	if !ok {
		f.nextLineID++
		line = &types.CartLineItem{ID: f.nextLineID, ProductID: productID}
		f.byProduct[productID] = line
	}
	line.Quantity = quantity
	return *line, nil
}

func (f *fakeStorefront) RemoveCartItems(_ context.Context, ids []int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		for productID, line := range f.byProduct {
			if line.ID == id {
				delete(f.byProduct, productID)
			}
		}
	}
	return nil
}

func (f *fakeStorefront) CreateOrder(_ context.Context, input backend.CreateOrderInput) (types.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return types.Order{}, f.createErr
	}
	f.nextOrderID++
	f.createdOrders = append(f.createdOrders, input)
	return types.Order{
		ID:        f.nextOrderID,
		Status:    enums.OrderStatusPending,
		Method:    input.PaymentMethod,
		CreatedAt: time.Now(),
	}, nil
}

func (f *fakeStorefront) InitiateOnlinePayment(_ context.Context, orderID int64, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.paymentInitErr != nil {
		return "", f.paymentInitErr
	}
	return f.redirectURL, nil
}

func (f *fakeStorefront) CancelOrder(_ context.Context, orderID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelledIDs = append(f.cancelledIDs, orderID)
	return nil
}

type fakeCatalog struct {
	snapshots map[int64]types.ProductSnapshot
}

func (f *fakeCatalog) Resolve(_ context.Context, productID int64) (types.ProductSnapshot, error) {
	snap, ok := f.snapshots[productID]
	if !ok {
		return types.ProductSnapshot{}, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return snap, nil
}

func (f *fakeCatalog) Invalidate(context.Context, int64) {}

type fakeReservations struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func (f *fakeReservations) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held == nil {
		f.held = map[string]struct{}{}
	}
	if _, ok := f.held[key]; ok {
		return false, nil
	}
	f.held[key] = struct{}{}
	return true, nil
}

func (f *fakeReservations) Del(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range keys {
		delete(f.held, key)
	}
	return nil
}

func (f *fakeReservations) CheckoutReservationKey(userID, fingerprint string) string {
	return "checkout:" + userID + ":" + fingerprint
}

type fakeRecorder struct {
	mu     sync.Mutex
	orders []types.Order
}

func (f *fakeRecorder) Record(_ context.Context, _ string, order types.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append(f.orders, order)
	return nil
}

type fixture struct {
	store        *fakeStorefront
	manager      *cart.Manager
	orchestrator *Orchestrator
	reservations *fakeReservations
	recorder     *fakeRecorder
}

func snapshot(productID int64, price int64, discount *int64, stock int) types.ProductSnapshot {
	snap := types.ProductSnapshot{
		ProductID:     productID,
		Title:         "Dế Mèn Phiêu Lưu Ký",
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

func int64Ptr(v int64) *int64 { return &v }

func newFixture(t *testing.T, snapshots ...types.ProductSnapshot) *fixture {
	t.Helper()
	store := newFakeStorefront()
	byID := map[int64]types.ProductSnapshot{}
	for _, snap := range snapshots {
		byID[snap.ProductID] = snap
	}
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	manager := cart.NewManager(cart.CoordinatorDeps{
		Backend:         store,
		Catalog:         &fakeCatalog{snapshots: byID},
		Logger:          logg,
		SelectAllOnLoad: false,
	})

	providers, err := payment.NewRegistry(config.PaymentConfig{
		Provider:       "vnpay",
		CompletionPath: "/payment/return",
		SuccessParam:   "vnp_ResponseCode",
		SuccessValue:   "00",
	})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	reservations := &fakeReservations{}
	recorder := &fakeRecorder{}
	orchestrator, err := NewOrchestrator(Deps{
		Carts:        manager,
		Backend:      store,
		Providers:    providers,
		Reservations: reservations,
		Recorder:     recorder,
		Logger:       logg,
	})
	if err != nil {
		t.Fatalf("orchestrator: %v", err)
	}
	return &fixture{
		store:        store,
		manager:      manager,
		orchestrator: orchestrator,
		reservations: reservations,
		recorder:     recorder,
	}
}

// seedCart adds products and selects the requested ones.
func (f *fixture) seedCart(t *testing.T, userID string, quantities map[int64]int, selected []int64) {
	t.Helper()
	coordinator, err := f.manager.ForUser(userID)
	if err != nil {
		t.Fatalf("for user: %v", err)
	}
	for productID, quantity := range quantities {
		if err := coordinator.AddItem(context.Background(), productID, quantity); err != nil {
			t.Fatalf("seed product %d: %v", productID, err)
		}
	}
	for _, item := range coordinator.Store().Items() {
		for _, want := range selected {
			if item.Line.ProductID == want {
				coordinator.Store().Toggle(item.Line.ID)
			}
		}
	}
}

func TestBuildDraftExcludesUnshippableLines(t *testing.T) {
	f := newFixture(t,
		snapshot(100, 100000, int64Ptr(80000), 5),
		snapshot(101, 50000, nil, 0),
	)
	f.seedCart(t, "u1", map[int64]int{100: 2, 101: 1}, []int64{100, 101})

	draft, err := f.orchestrator.BuildDraft(context.Background(), "u1")
	if err != nil {
		t.Fatalf("build draft: %v", err)
	}
	if len(draft.Items) != 1 || draft.Items[0].ProductID != 100 {
		t.Fatalf("unexpected draft items %+v", draft.Items)
	}
	if len(draft.Excluded) != 1 || draft.Excluded[0].Reason != ExclusionOutOfStock {
		t.Fatalf("out-of-stock line not surfaced: %+v", draft.Excluded)
	}
	if !draft.Total.Equal(decimal.NewFromInt(160000)) {
		t.Fatalf("expected 160000, got %s", draft.Total)
	}
	if draft.Fingerprint == "" {
		t.Fatalf("draft needs a fingerprint")
	}
}

func TestSubmitCODPurgesOnlyDraftedLines(t *testing.T) {
	f := newFixture(t,
		snapshot(100, 100000, int64Ptr(80000), 5),
		snapshot(101, 50000, nil, 5),
		snapshot(102, 70000, nil, 5),
	)
	// Product 102 stays in the cart unselected.
	f.seedCart(t, "u1", map[int64]int{100: 2, 101: 1, 102: 1}, []int64{100, 101})

	status, err := f.orchestrator.Submit(context.Background(), "u1", SubmitInput{
		ShippingAddressID: 9,
		Method:            enums.PaymentMethodCOD,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if status.State != StateCompleted {
		t.Fatalf("cod checkout should complete immediately, got %s", status.State)
	}
	if status.OrderID == 0 {
		t.Fatalf("completed checkout must carry the order id")
	}

	coordinator, _ := f.manager.ForUser("u1")
	items := coordinator.Store().Items()
	if len(items) != 1 || items[0].Line.ProductID != 102 {
		t.Fatalf("only the unselected line should remain, got %+v", items)
	}
	if len(f.recorder.orders) != 1 {
		t.Fatalf("order not written through to history")
	}
	if len(f.reservations.held) != 0 {
		t.Fatalf("reservation not released after completion")
	}
}

func TestSubmitSendsReviewedLinesToBackend(t *testing.T) {
	f := newFixture(t, snapshot(100, 100000, nil, 5))
	f.seedCart(t, "u1", map[int64]int{100: 3}, []int64{100})

	if _, err := f.orchestrator.Submit(context.Background(), "u1", SubmitInput{
		ShippingAddressID: 9,
		Method:            enums.PaymentMethodCOD,
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if len(f.store.createdOrders) != 1 {
		t.Fatalf("expected one order, got %d", len(f.store.createdOrders))
	}
	input := f.store.createdOrders[0]
	if input.ShippingAddressID != 9 || len(input.Items) != 1 ||
		input.Items[0].ProductID != 100 || input.Items[0].Quantity != 3 {
		t.Fatalf("order input diverged from draft: %+v", input)
	}
}

func TestSubmitRejectsEmptySelection(t *testing.T) {
	f := newFixture(t, snapshot(100, 100000, nil, 5))
	f.seedCart(t, "u1", map[int64]int{100: 1}, nil)

	_, err := f.orchestrator.Submit(context.Background(), "u1", SubmitInput{ShippingAddressID: 9, Method: enums.PaymentMethodCOD})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(f.store.createdOrders) != 0 {
		t.Fatalf("no order may be created for an empty draft")
	}
}

func TestSubmitRejectsStaleFingerprint(t *testing.T) {
	f := newFixture(t, snapshot(100, 100000, nil, 5))
	f.seedCart(t, "u1", map[int64]int{100: 1}, []int64{100})

	draft, err := f.orchestrator.BuildDraft(context.Background(), "u1")
	if err != nil {
		t.Fatalf("draft: %v", err)
	}

	// Quantity changes after the user reviewed the draft.
	coordinator, _ := f.manager.ForUser("u1")
	lineID := coordinator.Store().Items()[0].Line.ID
	if err := coordinator.UpdateQuantity(context.Background(), lineID, 2); err != nil {
		t.Fatalf("update: %v", err)
	}

	_, err = f.orchestrator.Submit(context.Background(), "u1", SubmitInput{
		ShippingAddressID: 9,
		Method:      enums.PaymentMethodCOD,
		Fingerprint: draft.Fingerprint,
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeStaleSelection) {
		t.Fatalf("expected stale selection, got %v", err)
	}
	if len(f.store.createdOrders) != 0 {
		t.Fatalf("stale draft must not create an order")
	}
}

func TestDuplicateSubmitOfSameDraftIsBlocked(t *testing.T) {
	f := newFixture(t, snapshot(100, 100000, nil, 5))
	f.seedCart(t, "u1", map[int64]int{100: 1}, []int64{100})

	// Pre-hold the reservation the submit would take.
	draft, err := f.orchestrator.BuildDraft(context.Background(), "u1")
	if err != nil {
		t.Fatalf("draft: %v", err)
	}
	key := f.reservations.CheckoutReservationKey("u1", draft.Fingerprint)
	if ok, _ := f.reservations.SetNX(context.Background(), key, "x", time.Minute); !ok {
		t.Fatalf("pre-hold failed")
	}

	_, err = f.orchestrator.Submit(context.Background(), "u1", SubmitInput{ShippingAddressID: 9, Method: enums.PaymentMethodCOD})
	if !pkgerrors.IsCode(err, pkgerrors.CodeIdempotency) {
		t.Fatalf("expected idempotency rejection, got %v", err)
	}
	if len(f.store.createdOrders) != 0 {
		t.Fatalf("reserved draft must not create an order")
	}
}

func TestOnlinePaymentFlowCompletesOnSuccessfulReturn(t *testing.T) {
	f := newFixture(t, snapshot(100, 100000, nil, 5))
	f.seedCart(t, "u1", map[int64]int{100: 1}, []int64{100})

	status, err := f.orchestrator.Submit(context.Background(), "u1", SubmitInput{
		ShippingAddressID: 9,
		Method:            enums.PaymentMethodVNPay,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if status.State != StateAwaitingPayment || status.RedirectURL == "" {
		t.Fatalf("expected awaiting payment with redirect, got %+v", status)
	}

	// A gateway intermediate page changes nothing.
	mid, err := f.orchestrator.ObserveRedirect(context.Background(), "u1",
		"https://sandbox.vnpayment.vn/paymentv2/vpcpay.html?step=2")
	if err != nil || mid.State != StateAwaitingPayment {
		t.Fatalf("intermediate URL must be ignored: %+v %v", mid, err)
	}

	final, err := f.orchestrator.ObserveRedirect(context.Background(), "u1",
		"https://shop.example.com/payment/return?vnp_ResponseCode=00")
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	if final.State != StateCompleted {
		t.Fatalf("expected completed, got %s", final.State)
	}

	coordinator, _ := f.manager.ForUser("u1")
	if len(coordinator.Store().Items()) != 0 {
		t.Fatalf("paid lines should be purged")
	}
}

func TestDeclinedPaymentCancelsAndKeepsCart(t *testing.T) {
	f := newFixture(t, snapshot(100, 100000, nil, 5))
	f.seedCart(t, "u1", map[int64]int{100: 1}, []int64{100})

	if _, err := f.orchestrator.Submit(context.Background(), "u1", SubmitInput{
		ShippingAddressID: 9,
		Method:            enums.PaymentMethodVNPay,
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	status, err := f.orchestrator.ObserveRedirect(context.Background(), "u1",
		"https://shop.example.com/payment/return?vnp_ResponseCode=24")
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	if status.State != StateCancelled {
		t.Fatalf("expected cancelled, got %s", status.State)
	}
	if len(f.store.cancelledIDs) != 1 {
		t.Fatalf("declined payment should cancel the server order")
	}

	coordinator, _ := f.manager.ForUser("u1")
	if len(coordinator.Store().Items()) != 1 {
		t.Fatalf("declined payment must not purge the cart")
	}
}

func TestPaymentInitFailureRetainsOrderAndCart(t *testing.T) {
	f := newFixture(t, snapshot(100, 100000, nil, 5))
	f.seedCart(t, "u1", map[int64]int{100: 1}, []int64{100})
	f.store.paymentInitErr = pkgerrors.New(pkgerrors.CodeServer, "gateway down")

	status, err := f.orchestrator.Submit(context.Background(), "u1", SubmitInput{
		ShippingAddressID: 9,
		Method:            enums.PaymentMethodVNPay,
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodePaymentInit) {
		t.Fatalf("expected payment init error, got %v", err)
	}
	if status.State != StatePaymentInitFailed {
		t.Fatalf("expected payment_init_failed, got %s", status.State)
	}
	if status.OrderID == 0 {
		t.Fatalf("order id must be retained for retry")
	}

	coordinator, _ := f.manager.ForUser("u1")
	if len(coordinator.Store().Items()) != 1 {
		t.Fatalf("cart must not be purged before payment")
	}

	// Retry succeeds without creating a second order.
	f.store.paymentInitErr = nil
	retried, err := f.orchestrator.RetryPayment(context.Background(), "u1")
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if retried.State != StateAwaitingPayment || retried.OrderID != status.OrderID {
		t.Fatalf("retry should reuse the order: %+v", retried)
	}
	if len(f.store.createdOrders) != 1 {
		t.Fatalf("retry must never recreate the order")
	}
}

func TestCancelTearsDownSessionLocallyOnly(t *testing.T) {
	f := newFixture(t, snapshot(100, 100000, nil, 5))
	f.seedCart(t, "u1", map[int64]int{100: 1}, []int64{100})

	status, err := f.orchestrator.Submit(context.Background(), "u1", SubmitInput{
		ShippingAddressID: 9,
		Method:            enums.PaymentMethodVNPay,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if status.State != StateAwaitingPayment {
		t.Fatalf("expected awaiting payment, got %s", status.State)
	}

	status, err = f.orchestrator.Cancel(context.Background(), "u1")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if status.State != StateCancelled {
		t.Fatalf("expected cancelled, got %s", status.State)
	}
	// The created order must stay on the server exactly as it was.
	if len(f.store.cancelledIDs) != 0 {
		t.Fatalf("user cancel must not touch the server order, cancelled %v", f.store.cancelledIDs)
	}
	if len(f.store.createdOrders) != 1 {
		t.Fatalf("expected the created order to remain, got %d", len(f.store.createdOrders))
	}

	coordinator, _ := f.manager.ForUser("u1")
	if len(coordinator.Store().Items()) != 1 {
		t.Fatalf("cancel must keep the cart intact")
	}
	if len(f.reservations.held) != 0 {
		t.Fatalf("reservation not released on cancel")
	}
}

func TestSubmitWhileInFlightConflicts(t *testing.T) {
	f := newFixture(t, snapshot(100, 100000, nil, 5))
	f.seedCart(t, "u1", map[int64]int{100: 1}, []int64{100})

	status, err := f.orchestrator.Submit(context.Background(), "u1", SubmitInput{
		ShippingAddressID: 9,
		Method:            enums.PaymentMethodVNPay,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if status.State != StateAwaitingPayment {
		t.Fatalf("expected awaiting payment, got %s", status.State)
	}

	_, err = f.orchestrator.Submit(context.Background(), "u1", SubmitInput{ShippingAddressID: 9, Method: enums.PaymentMethodCOD})
	if !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestPaymentInitFailureAllowsReset(t *testing.T) {
	f := newFixture(t, snapshot(100, 100000, nil, 5))
	f.seedCart(t, "u1", map[int64]int{100: 2}, []int64{100})
	f.store.paymentInitErr = pkgerrors.New(pkgerrors.CodeServer, "gateway down")

	if _, err := f.orchestrator.Submit(context.Background(), "u1", SubmitInput{
		ShippingAddressID: 9,
		Method:            enums.PaymentMethodVNPay,
	}); !pkgerrors.IsCode(err, pkgerrors.CodePaymentInit) {
		t.Fatalf("expected payment init failure, got %v", err)
	}

	// The order exists but the session is recoverable: a reset must not be
	// refused, and a fresh checkout can start afterwards.
	if err := f.orchestrator.Reset("u1"); err != nil {
		t.Fatalf("reset after payment init failure: %v", err)
	}
	if got := f.orchestrator.Status("u1").State; got != StateIdle {
		t.Fatalf("expected idle after reset, got %s", got)
	}

	coordinator, _ := f.manager.ForUser("u1")
	lineID := coordinator.Store().Items()[0].Line.ID
	if err := coordinator.UpdateQuantity(context.Background(), lineID, 1); err != nil {
		t.Fatalf("update quantity: %v", err)
	}

	f.store.paymentInitErr = nil
	status, err := f.orchestrator.Submit(context.Background(), "u1", SubmitInput{
		ShippingAddressID: 9,
		Method:            enums.PaymentMethodCOD,
	})
	if err != nil {
		t.Fatalf("resubmit after reset: %v", err)
	}
	if status.State != StateCompleted {
		t.Fatalf("expected completed, got %s", status.State)
	}
}

func TestOrderCreateFailureReturnsToIdle(t *testing.T) {
	f := newFixture(t, snapshot(100, 100000, nil, 5))
	f.seedCart(t, "u1", map[int64]int{100: 1}, []int64{100})
	f.store.createErr = pkgerrors.New(pkgerrors.CodeNetwork, "backend unreachable")

	status, err := f.orchestrator.Submit(context.Background(), "u1", SubmitInput{ShippingAddressID: 9, Method: enums.PaymentMethodCOD})
	if !pkgerrors.IsCode(err, pkgerrors.CodeNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
	if status.State != StateIdle {
		t.Fatalf("failed create should return to idle, got %s", status.State)
	}
	if len(f.reservations.held) != 0 {
		t.Fatalf("reservation must be released when create fails")
	}

	// The same draft can be submitted again once the backend recovers.
	f.store.createErr = nil
	again, err := f.orchestrator.Submit(context.Background(), "u1", SubmitInput{ShippingAddressID: 9, Method: enums.PaymentMethodCOD})
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if again.State != StateCompleted {
		t.Fatalf("resubmit should complete, got %s", again.State)
	}
}

func TestSubmitRequiresShippingAddress(t *testing.T) {
	f := newFixture(t, snapshot(100, 50000, nil, 5))
	f.seedCart(t, "u1", map[int64]int{100: 1}, []int64{100})

	_, err := f.orchestrator.Submit(context.Background(), "u1", SubmitInput{
		Method: enums.PaymentMethodCOD,
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(f.store.createdOrders) != 0 {
		t.Fatalf("no order may be created without an address")
	}
}
