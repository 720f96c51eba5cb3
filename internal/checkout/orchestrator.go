package checkout

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nvquang/storefront-core/internal/cart"
	"github.com/nvquang/storefront-core/internal/payment"
	"github.com/nvquang/storefront-core/pkg/backend"
	"github.com/nvquang/storefront-core/pkg/enums"
	pkgerrors "github.com/nvquang/storefront-core/pkg/errors"
	"github.com/nvquang/storefront-core/pkg/logger"
	"github.com/nvquang/storefront-core/pkg/metrics"
	"github.com/nvquang/storefront-core/pkg/types"
)

const (
	outcomeCompleted         = "completed"
	outcomeCancelled         = "cancelled"
	outcomePaymentDeclined   = "payment_declined"
	outcomePaymentInitFailed = "payment_init_failed"
)

type orderBackend interface {
	CreateOrder(ctx context.Context, input backend.CreateOrderInput) (types.Order, error)
	InitiateOnlinePayment(ctx context.Context, orderID int64, provider string) (string, error)
	CancelOrder(ctx context.Context, orderID int64) error
}

type cartAccess interface {
	ForUser(userID string) (*cart.Coordinator, error)
}

type reservationStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	CheckoutReservationKey(userID, draftFingerprint string) string
}

type orderRecorder interface {
	Record(ctx context.Context, userID string, order types.Order) error
}

// SubmitInput is what the user confirmed on the review screen. Fingerprint,
// when set, pins the draft the user actually reviewed; a cart that changed
// underneath is rejected instead of silently ordering different lines.
type SubmitInput struct {
	ShippingAddressID int64
	Method            enums.PaymentMethod
	Note              string
	Fingerprint       string
}

// Status is a point-in-time view of a checkout session.
type Status struct {
	State       State               `json:"state"`
	OrderID     int64               `json:"order_id,omitempty"`
	Method      enums.PaymentMethod `json:"payment_method,omitempty"`
	RedirectURL string              `json:"redirect_url,omitempty"`
}

type session struct {
	mu             sync.Mutex
	state          State
	order          types.Order
	method         enums.PaymentMethod
	redirectURL    string
	draftedLineIDs []int64
	fingerprint    string
	reservationKey string
}

// Orchestrator drives checkout for every user: one session per user, each a
// small state machine whose only mutations happen under the session lock.
// Order creation is never retried; a duplicate submit of the same reviewed
// draft is blocked by a redis reservation keyed on the draft fingerprint.
type Orchestrator struct {
	mu       sync.Mutex
	sessions map[string]*session

	carts        cartAccess
	backend      orderBackend
	providers    *payment.Registry
	reservations reservationStore
	recorder     orderRecorder
	metrics      *metrics.CheckoutMetrics
	logger       *logger.Logger

	reservationTTL time.Duration
}

type Deps struct {
	Carts        cartAccess
	Backend      orderBackend
	Providers    *payment.Registry
	Reservations reservationStore
	Recorder     orderRecorder
	Metrics      *metrics.CheckoutMetrics
	Logger       *logger.Logger
	// ReservationTTL bounds how long a submitted draft stays reserved when
	// the session is abandoned mid-flight.
	ReservationTTL time.Duration
}

func NewOrchestrator(deps Deps) (*Orchestrator, error) {
	if deps.Carts == nil {
		return nil, errors.New("checkout cart access is required")
	}
	if deps.Backend == nil {
		return nil, errors.New("checkout backend is required")
	}
	if deps.Providers == nil {
		return nil, errors.New("checkout payment registry is required")
	}
	if deps.Logger == nil {
		return nil, errors.New("checkout logger is required")
	}
	ttl := deps.ReservationTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Orchestrator{
		sessions:       map[string]*session{},
		carts:          deps.Carts,
		backend:        deps.Backend,
		providers:      deps.Providers,
		reservations:   deps.Reservations,
		recorder:       deps.Recorder,
		metrics:        deps.Metrics,
		logger:         deps.Logger,
		reservationTTL: ttl,
	}, nil
}

// BuildDraft refreshes the cart and assembles the order proposal from the
// current selection. Lines that cannot ship are listed as excluded rather
// than dropped silently.
func (o *Orchestrator) BuildDraft(ctx context.Context, userID string) (Draft, error) {
	coordinator, err := o.carts.ForUser(userID)
	if err != nil {
		return Draft{}, err
	}
	if _, err := coordinator.Refresh(ctx); err != nil {
		return Draft{}, err
	}
	return buildDraft(coordinator.Store().SelectedItems()), nil
}

// Submit creates the order for the user's current draft and, for redirect
// methods, opens the payment session. Only one submission per user can be in
// flight, and a given reviewed draft can be submitted once until its
// reservation clears.
func (o *Orchestrator) Submit(ctx context.Context, userID string, input SubmitInput) (Status, error) {
	coordinator, err := o.carts.ForUser(userID)
	if err != nil {
		return Status{}, err
	}
	provider, err := o.providers.ForMethod(input.Method)
	if err != nil {
		return Status{}, err
	}
	if input.ShippingAddressID <= 0 {
		return Status{}, pkgerrors.New(pkgerrors.CodeValidation, "shipping address is required")
	}

	sess := o.sessionFor(userID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.state.InFlight() {
		return sess.status(), pkgerrors.New(pkgerrors.CodeConflict, "a checkout is already in progress")
	}
	sess.reset()

	draft := buildDraft(coordinator.Store().SelectedItems())
	if draft.Empty() {
		return sess.status(), pkgerrors.New(pkgerrors.CodeValidation, "no orderable items selected").
			WithDetails(draft.Excluded)
	}
	if input.Fingerprint != "" && input.Fingerprint != draft.Fingerprint {
		return sess.status(), pkgerrors.New(pkgerrors.CodeStaleSelection, "cart changed since the draft was reviewed")
	}

	ctx = o.logger.WithUserID(ctx, userID)
	if o.reservations != nil {
		key := o.reservations.CheckoutReservationKey(userID, draft.Fingerprint)
		acquired, err := o.reservations.SetNX(ctx, key, draft.Fingerprint, o.reservationTTL)
		if err != nil {
			return sess.status(), pkgerrors.Wrap(pkgerrors.CodeDependency, err, "checkout reservation unavailable")
		}
		if !acquired {
			return sess.status(), pkgerrors.New(pkgerrors.CodeIdempotency, "this draft was already submitted")
		}
		sess.reservationKey = key
	}

	sess.state = StateSubmitting
	sess.method = input.Method
	sess.fingerprint = draft.Fingerprint

	orderInput := backend.CreateOrderInput{
		ShippingAddressID: input.ShippingAddressID,
		PaymentMethod:     input.Method,
		Note:              input.Note,
	}
	for _, item := range draft.Items {
		orderInput.Items = append(orderInput.Items, backend.OrderItemInput{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}

	order, err := o.backend.CreateOrder(ctx, orderInput)
	if err != nil {
		o.releaseReservation(ctx, sess)
		sess.state = StateIdle
		return sess.status(), err
	}

	sess.order = order
	sess.draftedLineIDs = draft.LineItemIDs
	sess.state = StateOrderCreated
	o.recordOrder(ctx, userID, order)
	ctx = o.logger.WithOrderID(ctx, order.ID)
	o.logger.Info(ctx, "order created")

	if !provider.RequiresRedirect() {
		o.complete(ctx, userID, coordinator, sess)
		return sess.status(), nil
	}

	return o.openPaymentSession(ctx, sess)
}

// RetryPayment reopens the payment session for an order whose first payment
// initialization failed. The order itself is never recreated.
func (o *Orchestrator) RetryPayment(ctx context.Context, userID string) (Status, error) {
	sess := o.sessionFor(userID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.state != StatePaymentInitFailed {
		return sess.status(), pkgerrors.New(pkgerrors.CodeConflict, "no failed payment to retry")
	}
	ctx = o.logger.WithOrderID(o.logger.WithUserID(ctx, userID), sess.order.ID)
	return o.openPaymentSession(ctx, sess)
}

// ObserveRedirect feeds a URL seen during the gateway redirect flow into the
// session. URLs that are not the provider's return endpoint are ignored.
func (o *Orchestrator) ObserveRedirect(ctx context.Context, userID, rawURL string) (Status, error) {
	coordinator, err := o.carts.ForUser(userID)
	if err != nil {
		return Status{}, err
	}

	sess := o.sessionFor(userID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.state != StateAwaitingPayment {
		return sess.status(), nil
	}
	provider, err := o.providers.ForMethod(sess.method)
	if err != nil {
		return sess.status(), err
	}

	completion := provider.MatchCompletion(rawURL)
	if !completion.Matched {
		return sess.status(), nil
	}

	ctx = o.logger.WithOrderID(o.logger.WithUserID(ctx, userID), sess.order.ID)
	if completion.Success {
		o.complete(ctx, userID, coordinator, sess)
		return sess.status(), nil
	}

	// Declined. Release the order server-side so stock is not held, then
	// close the session. The cart keeps every line.
	if err := o.backend.CancelOrder(ctx, sess.order.ID); err != nil {
		o.logger.Warn(ctx, "order cancel after declined payment failed")
	}
	sess.state = StateCancelled
	o.releaseReservation(ctx, sess)
	o.metrics.RecordOutcome(outcomePaymentDeclined)
	o.logger.Info(ctx, "payment declined, checkout cancelled")
	return sess.status(), nil
}

// Cancel abandons an in-flight checkout locally. Only the payment session
// and the draft reservation are torn down: the created order stays on the
// server in whatever state it reached, and the cart keeps every line,
// drafted ones included. Cancelling the order itself is the orders service's
// job.
func (o *Orchestrator) Cancel(ctx context.Context, userID string) (Status, error) {
	sess := o.sessionFor(userID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	switch sess.state {
	case StateOrderCreated, StateAwaitingPayment, StatePaymentInitFailed:
	default:
		return sess.status(), pkgerrors.New(pkgerrors.CodeConflict, "no cancellable checkout in progress")
	}

	ctx = o.logger.WithOrderID(o.logger.WithUserID(ctx, userID), sess.order.ID)
	sess.state = StateCancelled
	o.releaseReservation(ctx, sess)
	o.metrics.RecordOutcome(outcomeCancelled)
	o.logger.Info(ctx, "checkout session cancelled, order left on server")
	return sess.status(), nil
}

// Status reports the user's current session without mutating it.
func (o *Orchestrator) Status(userID string) Status {
	sess := o.sessionFor(userID)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.status()
}

// Reset returns a finished or idle session to Idle. In-flight sessions are
// not resettable; they must finish or be cancelled.
func (o *Orchestrator) Reset(userID string) error {
	sess := o.sessionFor(userID)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.state.InFlight() {
		return pkgerrors.New(pkgerrors.CodeConflict, "checkout still in progress")
	}
	sess.reset()
	return nil
}

func (o *Orchestrator) openPaymentSession(ctx context.Context, sess *session) (Status, error) {
	redirectURL, err := o.backend.InitiateOnlinePayment(ctx, sess.order.ID, string(sess.method))
	if err != nil {
		sess.state = StatePaymentInitFailed
		sess.redirectURL = ""
		o.metrics.RecordOutcome(outcomePaymentInitFailed)
		o.logger.Warn(ctx, "payment session failed to open")
		return sess.status(), pkgerrors.Wrap(pkgerrors.CodePaymentInit, err, "payment session could not be opened")
	}
	sess.state = StateAwaitingPayment
	sess.redirectURL = redirectURL
	o.logger.Info(ctx, "payment session opened")
	return sess.status(), nil
}

// complete finalizes a paid (or COD) checkout: purge the ordered lines from
// the cart and close the session. A purge failure is logged but does not undo
// the completion; the next cart refresh reconciles.
func (o *Orchestrator) complete(ctx context.Context, userID string, coordinator *cart.Coordinator, sess *session) {
	if err := coordinator.RemoveItems(ctx, sess.draftedLineIDs); err != nil {
		o.logger.Warn(ctx, "purging ordered lines from cart failed")
	}
	sess.state = StateCompleted
	sess.redirectURL = ""
	o.releaseReservation(ctx, sess)
	o.metrics.RecordOutcome(outcomeCompleted)
	o.logger.Info(ctx, "checkout completed")
}

func (o *Orchestrator) recordOrder(ctx context.Context, userID string, order types.Order) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.Record(ctx, userID, order); err != nil {
		o.logger.Warn(ctx, "order history write-through failed")
	}
}

func (o *Orchestrator) releaseReservation(ctx context.Context, sess *session) {
	if o.reservations == nil || sess.reservationKey == "" {
		return
	}
	if err := o.reservations.Del(ctx, sess.reservationKey); err != nil {
		o.logger.Warn(ctx, "checkout reservation release failed")
	}
	sess.reservationKey = ""
}

func (o *Orchestrator) sessionFor(userID string) *session {
	o.mu.Lock()
	defer o.mu.Unlock()
	sess, ok := o.sessions[userID]
	if !ok {
		sess = &session{state: StateIdle}
		o.sessions[userID] = sess
	}
	return sess
}

func (s *session) reset() {
	s.state = StateIdle
	s.order = types.Order{}
	s.method = ""
	s.redirectURL = ""
	s.draftedLineIDs = nil
	s.fingerprint = ""
	s.reservationKey = ""
}

func (s *session) status() Status {
	return Status{
		State:       s.state,
		OrderID:     s.order.ID,
		Method:      s.method,
		RedirectURL: s.redirectURL,
	}
}
