package checkout

// State is the phase of one user's checkout session.
type State string

const (
	// StateIdle means no checkout is in flight; the next step is Submit.
	StateIdle State = "idle"
	// StateSubmitting covers the window between the order request leaving
	// and the server acknowledging it.
	StateSubmitting State = "submitting"
	// StateOrderCreated means the server accepted the order but the payment
	// session has not been opened yet.
	StateOrderCreated State = "order_created"
	// StateAwaitingPayment means an online payment session is open and the
	// user is on the gateway.
	StateAwaitingPayment State = "awaiting_payment"
	// StatePaymentInitFailed means the order exists but opening the payment
	// session failed; the order id is retained so payment can be retried.
	// It does not block a reset or a fresh submission.
	StatePaymentInitFailed State = "payment_init_failed"
	// StateCompleted and StateCancelled are terminal.
	StateCompleted State = "completed"
	StateCancelled State = "cancelled"
)

func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled
}

func (s State) InFlight() bool {
	switch s {
	case StateSubmitting, StateOrderCreated, StateAwaitingPayment:
		return true
	}
	return false
}
