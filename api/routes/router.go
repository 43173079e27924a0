package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/minierp-console/api/controllers"
	"github.com/angelmondragon/minierp-console/api/middleware"
	"github.com/angelmondragon/minierp-console/pkg/config"
	"github.com/angelmondragon/minierp-console/pkg/enums"
	"github.com/angelmondragon/minierp-console/pkg/logger"
	"github.com/angelmondragon/minierp-console/pkg/metrics"
	"github.com/angelmondragon/minierp-console/pkg/redis"
)

// NewRouter wires the console HTTP surface. rateStore and idempotencyStore may
// be nil, which disables throttling and replay respectively.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	registry middleware.ConsoleResolver,
	readiness map[string]controllers.Pinger,
	rateStore middleware.RateLimitStore,
	idempotencyStore redis.IdempotencyStore,
	promRegistry *prometheus.Registry,
) http.Handler {
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	var httpMetrics *metrics.HTTPMetrics
	if promRegistry != nil {
		gatherer = promRegistry
		httpMetrics = metrics.NewHTTPMetrics(promRegistry)
	}

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, httpMetrics),
		middleware.CORS(cfg.Console.CORSOrigins),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.RateLimit.LoginWindow,
		cfg.RateLimit.LoginIPLimit,
		cfg.RateLimit.LoginUsernameLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.RateLimit.RegisterWindow,
		cfg.RateLimit.RegisterIPLimit,
		0,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, readiness, logg))
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.ConsoleProfile(cfg.Console, registry, logg))

		r.Get("/session", controllers.SessionGet(logg))
		r.With(middleware.AuthRateLimit(loginPolicy, rateStore, logg)).Post("/session/login", controllers.SessionLogin(logg))
		r.Post("/session/logout", controllers.SessionLogout(logg))
		r.With(
			middleware.AuthRateLimit(registerPolicy, rateStore, logg),
			middleware.Idempotency(idempotencyStore, logg),
		).Post("/session/register", controllers.SessionRegister(logg))

		// Guests keep a cart too.
		r.Get("/cart", controllers.CartGet(logg))
		r.Delete("/cart", controllers.CartClear(logg))
		r.Post("/cart/items", controllers.CartAddItem(logg))
		r.Put("/cart/items/{productId}", controllers.CartSetQuantity(logg))
		r.Post("/cart/items/{productId}/increment", controllers.CartIncrement(logg))
		r.Post("/cart/items/{productId}/decrement", controllers.CartDecrement(logg))
		r.Delete("/cart/items/{productId}", controllers.CartRemoveItem(logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireSession(logg))
			r.Use(middleware.Idempotency(idempotencyStore, logg))

			r.Get("/products", controllers.ProductsList(logg))
			r.Get("/dashboard", controllers.Dashboard(logg))
			r.Get("/orders", controllers.OrdersList(logg))
			r.Post("/orders", controllers.OrderPlace(logg))
			r.Get("/orders/{orderId}", controllers.OrderGet(logg))
			r.Post("/orders/{orderId}/pay", controllers.OrderPay(logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireSession(logg))
			r.Use(middleware.RequireRole(logg, enums.RoleAdmin))
			r.Use(middleware.Idempotency(idempotencyStore, logg))

			r.Post("/admin/products", controllers.AdminProductCreate(logg))
			r.Put("/admin/products/{productId}", controllers.AdminProductUpdate(logg))
			r.Delete("/admin/products/{productId}", controllers.AdminProductDelete(logg))
			r.Get("/admin/products/export", controllers.AdminProductExport(logg))
			r.Post("/admin/products/import", controllers.AdminProductImport(logg))
			r.Patch("/admin/orders/{orderId}/status", controllers.AdminOrderStatus(logg))
		})
	})

	return r
}
