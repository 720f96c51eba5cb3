package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nvquang/storefront-core/api/controllers"
	"github.com/nvquang/storefront-core/api/middleware"
	"github.com/nvquang/storefront-core/internal/cart"
	"github.com/nvquang/storefront-core/internal/checkout"
	"github.com/nvquang/storefront-core/internal/notifications"
	"github.com/nvquang/storefront-core/internal/orders"
	"github.com/nvquang/storefront-core/pkg/config"
	"github.com/nvquang/storefront-core/pkg/logger"
	pkgredis "github.com/nvquang/storefront-core/pkg/redis"
)

type pinger interface {
	Ping(context.Context) error
}

type Deps struct {
	Config        *config.Config
	Logger        *logger.Logger
	Redis         *pkgredis.Client
	CachePinger   pinger
	CartManager   *cart.Manager
	Checkout      *checkout.Orchestrator
	Orders        orders.Service
	Notifications notifications.Service
	Metrics       *prometheus.Registry
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, redisPinger(deps.Redis), deps.CachePinger))
	})

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{}))
	}

	// Payment gateways land the browser here after an online payment.
	r.Get(cfg.Payment.CompletionPath, controllers.PaymentReturn())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(idempotencyStore(deps.Redis), logg))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", controllers.CartFetch(deps.CartManager, logg))
			r.Delete("/", controllers.CartClear(deps.CartManager, logg))
			r.Post("/items", controllers.CartAddItem(deps.CartManager, logg))
			r.Patch("/items/{lineItemId}", controllers.CartUpdateQuantity(deps.CartManager, logg))
			r.Delete("/items/{lineItemId}", controllers.CartRemoveItem(deps.CartManager, logg))
			r.Post("/items/remove", controllers.CartRemoveItems(deps.CartManager, logg))
			r.Post("/selection", controllers.CartSelection(deps.CartManager, logg))
		})

		r.Route("/checkout", func(r chi.Router) {
			r.Get("/", controllers.CheckoutStatus(deps.Checkout, logg))
			r.Post("/draft", controllers.CheckoutDraft(deps.Checkout, logg))
			r.Post("/submit", controllers.CheckoutSubmit(deps.Checkout, logg))
			r.Post("/retry-payment", controllers.CheckoutRetryPayment(deps.Checkout, logg))
			r.Post("/redirect", controllers.CheckoutObserveRedirect(deps.Checkout, logg))
			r.Post("/cancel", controllers.CheckoutCancel(deps.Checkout, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.OrdersList(deps.Orders, logg))
			r.Post("/{orderId}/cancel", controllers.OrderCancel(deps.Orders, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(deps.Notifications, logg))
			r.Get("/unread-count", controllers.NotificationsUnreadCount(deps.Notifications, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(deps.Notifications, logg))
		})
	})

	return r
}

func redisPinger(client *pkgredis.Client) pinger {
	if client == nil {
		return nil
	}
	return client
}

func idempotencyStore(client *pkgredis.Client) pkgredis.IdempotencyStore {
	if client == nil {
		return nil
	}
	return client
}
