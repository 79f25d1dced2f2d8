package routes

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/storefront-backend/api/controllers"
	cartcontrollers "github.com/angelmondragon/storefront-backend/api/controllers/cart"
	ordercontrollers "github.com/angelmondragon/storefront-backend/api/controllers/orders"
	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/internal/auth"
	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	products "github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/pkg/auth/session"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
	"github.com/angelmondragon/storefront-backend/pkg/storage"
)

// localFiles is implemented by object stores that keep uploads on disk.
type localFiles interface {
	Dir() string
}

func passthrough(next http.Handler) http.Handler { return next }

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisClient *redis.Client,
	objects storage.Store,
	sessions session.AccessSessionChecker,
	gatherer prometheus.Gatherer,
	httpMetrics *metrics.HTTPMetrics,
	authService auth.Service,
	productService products.Service,
	cartService cart.Service,
	ordersService orders.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Metrics(httpMetrics),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	signupPolicy := middleware.NewAuthRateLimitPolicy(
		"signup",
		cfg.AuthRateLimit.SignupWindow,
		cfg.AuthRateLimit.SignupIPLimit,
		cfg.AuthRateLimit.SignupEmailLimit,
	)
	otpPolicy := middleware.NewAuthRateLimitPolicy(
		"otp",
		cfg.AuthRateLimit.OTPWindow,
		cfg.AuthRateLimit.OTPIPLimit,
		cfg.AuthRateLimit.OTPEmailLimit,
	)

	// A nil *redis.Client must not leak into the interfaces below as a non-nil value.
	readiness := map[string]controllers.Pinger{"db": dbP}
	idempotent := passthrough
	rateLimit := func(middleware.AuthRateLimitPolicy) func(http.Handler) http.Handler { return passthrough }
	if redisClient != nil {
		readiness["redis"] = redisClient
		idempotent = middleware.Idempotency(redisClient, logg)
		rateLimit = func(policy middleware.AuthRateLimitPolicy) func(http.Handler) http.Handler {
			return middleware.AuthRateLimit(policy, redisClient, logg)
		}
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	if local, ok := objects.(localFiles); ok {
		prefix := "/" + strings.Trim(cfg.Storage.PublicBaseURL, "/")
		r.Handle(prefix+"/*", http.StripPrefix(prefix, http.FileServer(http.Dir(local.Dir()))))
	}

	requireAuth := middleware.Auth(cfg.JWT, sessions, logg)
	requireAdmin := middleware.RequireAdmin(logg)
	maxUpload := cfg.Storage.MaxUploadBytes()

	r.Route("/api/auth", func(r chi.Router) {
		r.With(rateLimit(signupPolicy)).Post("/signup", controllers.AuthSignup(authService, logg))
		r.With(rateLimit(otpPolicy)).Post("/verify-otp", controllers.AuthVerifyOTP(authService, logg))
		r.With(rateLimit(otpPolicy)).Post("/resend-otp", controllers.AuthResendOTP(authService, logg))
		r.With(rateLimit(loginPolicy)).Post("/login", controllers.AuthLogin(authService, logg))
		r.Post("/logout", controllers.AuthLogout(authService, cfg.JWT, logg))
		r.Post("/refresh", controllers.AuthRefresh(authService, cfg.JWT, logg))
		r.With(requireAuth).Get("/session", controllers.AuthSession(authService, logg))
	})

	r.Route("/api/product", func(r chi.Router) {
		r.Get("/get-products", controllers.ProductList(productService, logg))
		r.Get("/search/{query}", controllers.ProductSearch(productService, logg))
		r.Get("/{id}", controllers.ProductDetail(productService, logg))

		r.Group(func(r chi.Router) {
			r.Use(requireAuth, requireAdmin)
			r.With(idempotent).Post("/add-product", controllers.ProductCreate(productService, maxUpload, logg))
			r.Put("/{id}", controllers.ProductUpdate(productService, logg))
		})
	})

	r.With(requireAuth, requireAdmin).Post("/api/upload", controllers.Upload(objects, maxUpload, logg))

	r.Route("/api/cart", func(r chi.Router) {
		r.Use(requireAuth)
		r.Get("/", cartcontrollers.CartFetch(cartService, logg))
		r.Post("/add", cartcontrollers.CartAdd(cartService, logg))
		r.Put("/update/{cartItemId}", cartcontrollers.CartUpdateItem(cartService, logg))
		r.Delete("/remove/{cartItemId}", cartcontrollers.CartRemoveItem(cartService, logg))
	})

	r.Route("/api/orders", func(r chi.Router) {
		r.Use(requireAuth)
		r.Get("/", ordercontrollers.List(ordersService, logg))
		r.With(idempotent).Post("/create-order", ordercontrollers.CreateOrder(ordersService, logg))
		r.With(idempotent).Post("/verify-payment", ordercontrollers.VerifyPayment(ordersService, logg))
		r.Get("/{orderId}", ordercontrollers.Detail(ordersService, logg))
	})

	return r
}
