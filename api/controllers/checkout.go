package controllers

import (
	"net/http"

	"github.com/nvquang/storefront-core/api/middleware"
	"github.com/nvquang/storefront-core/api/responses"
	"github.com/nvquang/storefront-core/api/validators"
	"github.com/nvquang/storefront-core/internal/checkout"
	"github.com/nvquang/storefront-core/pkg/enums"
	pkgerrors "github.com/nvquang/storefront-core/pkg/errors"
	"github.com/nvquang/storefront-core/pkg/logger"
)

func checkoutUser(r *http.Request) (string, error) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		return "", pkgerrors.New(pkgerrors.CodeAuthExpired, "missing user context")
	}
	return userID, nil
}

// CheckoutDraft builds the order proposal from the current cart selection.
func CheckoutDraft(orchestrator *checkout.Orchestrator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := checkoutUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		draft, err := orchestrator.BuildDraft(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, draft)
	}
}

type submitRequest struct {
	ShippingAddressID int64  `json:"shipping_address_id" validate:"required,gt=0"`
	PaymentMethod     string `json:"payment_method" validate:"required"`
	Note              string `json:"note,omitempty" validate:"omitempty,max=500"`
	Fingerprint       string `json:"fingerprint,omitempty"`
}

// CheckoutSubmit places the order and, for online methods, opens the payment
// session.
func CheckoutSubmit(orchestrator *checkout.Orchestrator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := checkoutUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req submitRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		method, err := enums.ParsePaymentMethod(req.PaymentMethod)
		if err != nil {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported payment method"))
			return
		}

		status, err := orchestrator.Submit(r.Context(), userID, checkout.SubmitInput{
			ShippingAddressID: req.ShippingAddressID,
			Method:            method,
			Note:              req.Note,
			Fingerprint:       req.Fingerprint,
		})
		if err != nil {
			// A failed payment init still created the order; surface both the
			// session state and the typed error status.
			if pkgerrors.IsCode(err, pkgerrors.CodePaymentInit) {
				typed := pkgerrors.As(err)
				responses.WriteError(r.Context(), logg, w, typed.WithDetails(status))
				return
			}
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, status)
	}
}

// CheckoutStatus reports the session state.
func CheckoutStatus(orchestrator *checkout.Orchestrator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := checkoutUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, orchestrator.Status(userID))
	}
}

// CheckoutRetryPayment reopens the payment session after an init failure.
func CheckoutRetryPayment(orchestrator *checkout.Orchestrator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := checkoutUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := orchestrator.RetryPayment(r.Context(), userID)
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodePaymentInit) {
				typed := pkgerrors.As(err)
				responses.WriteError(r.Context(), logg, w, typed.WithDetails(status))
				return
			}
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, status)
	}
}

type redirectRequest struct {
	URL string `json:"url" validate:"required,url"`
}

// CheckoutObserveRedirect feeds a URL seen during the gateway flow into the
// session.
func CheckoutObserveRedirect(orchestrator *checkout.Orchestrator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := checkoutUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req redirectRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := orchestrator.ObserveRedirect(r.Context(), userID, req.URL)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, status)
	}
}

// CheckoutCancel abandons the in-flight checkout.
func CheckoutCancel(orchestrator *checkout.Orchestrator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := checkoutUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := orchestrator.Cancel(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, status)
	}
}

// PaymentReturn is the public landing endpoint gateways redirect to. The app
// intercepts the URL before it loads; this handler just acknowledges stray
// hits so the gateway sees a 200.
func PaymentReturn() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]string{"status": "received"})
	}
}
