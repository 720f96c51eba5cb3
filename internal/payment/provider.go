package payment

import (
	"net/url"
	"strings"

	"github.com/nvquang/storefront-core/pkg/config"
	"github.com/nvquang/storefront-core/pkg/enums"
	pkgerrors "github.com/nvquang/storefront-core/pkg/errors"
)

// Completion is the verdict for a URL observed during an online payment flow.
type Completion struct {
	// Matched reports that the URL is the provider's return endpoint.
	Matched bool
	// Success reports the provider's declared outcome; only meaningful when
	// Matched is true.
	Success bool
}

// Provider describes one way an order can be paid.
type Provider interface {
	Method() enums.PaymentMethod
	// RequiresRedirect reports whether the method needs an external payment
	// session before the order is payable.
	RequiresRedirect() bool
	// MatchCompletion inspects a URL seen during the redirect flow and
	// decides whether it terminates the payment session and with what
	// outcome.
	MatchCompletion(rawURL string) Completion
}

// Registry resolves providers by payment method.
type Registry struct {
	byMethod map[enums.PaymentMethod]Provider
}

func NewRegistry(cfg config.PaymentConfig) (*Registry, error) {
	online, err := newRedirectProvider(cfg)
	if err != nil {
		return nil, err
	}
	return &Registry{
		byMethod: map[enums.PaymentMethod]Provider{
			enums.PaymentMethodCOD:   codProvider{},
			enums.PaymentMethodVNPay: online,
		},
	}, nil
}

func (r *Registry) ForMethod(method enums.PaymentMethod) (Provider, error) {
	provider, ok := r.byMethod[method]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment method").
			WithDetails(map[string]string{"payment_method": string(method)})
	}
	return provider, nil
}

// codProvider settles on delivery; there is no payment session to observe.
type codProvider struct{}

func (codProvider) Method() enums.PaymentMethod { return enums.PaymentMethodCOD }
func (codProvider) RequiresRedirect() bool      { return false }
func (codProvider) MatchCompletion(string) Completion {
	return Completion{}
}

// redirectProvider models gateway-hosted payments: the user is sent to the
// gateway and lands back on a configured return URL whose query string carries
// the outcome.
type redirectProvider struct {
	host         string
	path         string
	successParam string
	successValue string
}

func newRedirectProvider(cfg config.PaymentConfig) (redirectProvider, error) {
	path := strings.TrimSpace(cfg.CompletionPath)
	if path == "" {
		return redirectProvider{}, pkgerrors.New(pkgerrors.CodeValidation, "payment completion path is required")
	}
	if cfg.SuccessParam == "" {
		return redirectProvider{}, pkgerrors.New(pkgerrors.CodeValidation, "payment success param is required")
	}
	return redirectProvider{
		host:         strings.ToLower(strings.TrimSpace(cfg.CompletionHost)),
		path:         path,
		successParam: cfg.SuccessParam,
		successValue: cfg.SuccessValue,
	}, nil
}

func (p redirectProvider) Method() enums.PaymentMethod { return enums.PaymentMethodVNPay }
func (p redirectProvider) RequiresRedirect() bool      { return true }

func (p redirectProvider) MatchCompletion(rawURL string) Completion {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return Completion{}
	}
	if p.host != "" && strings.ToLower(parsed.Hostname()) != p.host {
		return Completion{}
	}
	if parsed.Path != p.path {
		return Completion{}
	}
	outcome := parsed.Query().Get(p.successParam)
	return Completion{
		Matched: true,
		Success: outcome == p.successValue,
	}
}
