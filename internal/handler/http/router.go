package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Openverse-iiitk/mess-rating/pkg/health"
	"github.com/Openverse-iiitk/mess-rating/pkg/middleware"
)

const serviceName = "mess-rating"

// RouterConfig carries the handlers and cross-cutting pieces the router mounts.
type RouterConfig struct {
	Ratings *RatingHandler
	Auth    *AuthHandler
	Menu    *MenuHandler
	Health  *health.Handler

	// Sessions validates tokens from the Authorization header or session cookie.
	Sessions      middleware.TokenValidator
	SessionCookie string

	// RateLimiter guards rating submissions. Nil disables it.
	RateLimiter *middleware.RateLimiter

	CORS            middleware.CORSConfig
	MenuCacheMaxAge int
	Logger          *slog.Logger
}

// NewRouter creates a chi router with all mess rating routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Tracing(serviceName))
	r.Use(middleware.RequestLogging(cfg.Logger))
	r.Use(middleware.PrometheusMetrics(serviceName))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))

	// Health check endpoints
	r.Get("/health/live", cfg.Health.Liveness)
	r.Get("/health/ready", cfg.Health.Readiness)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Session(cfg.Sessions, cfg.SessionCookie))
		r.Use(middleware.RequestLogger(cfg.Logger))

		r.Route("/auth", func(r chi.Router) {
			r.Post("/google", cfg.Auth.GoogleSignIn)
			r.Get("/session", cfg.Auth.Session)
			r.Post("/logout", cfg.Auth.Logout)
		})

		r.Route("/ratings", func(r chi.Router) {
			r.Get("/", cfg.Ratings.Average)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireSession)
				if cfg.RateLimiter != nil {
					r.With(cfg.RateLimiter.Middleware).Post("/", cfg.Ratings.Submit)
				} else {
					r.Post("/", cfg.Ratings.Submit)
				}
				r.Get("/me", cfg.Ratings.Me)
				r.Get("/view", cfg.Ratings.View)
				r.Get("/today", cfg.Ratings.Today)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.CacheControl(cfg.MenuCacheMaxAge))
			r.Get("/menu", cfg.Menu.Week)
			r.Get("/menu/{day}", cfg.Menu.Day)
		})

		// Clock-dependent, never cached.
		r.Get("/menu/today", cfg.Menu.Today)
		r.Get("/menu/current", cfg.Menu.Current)
		r.Get("/meals/availability", cfg.Menu.Availability)
	})

	return r
}
