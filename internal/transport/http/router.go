package http

import (
	"net/http"

	"github.com/genclean-otp/internal/config"
	"github.com/genclean-otp/internal/domain"
	"github.com/genclean-otp/internal/transport/http/handler"
	appmiddleware "github.com/genclean-otp/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"
)

// NewRouter builds and returns the application router. The returned limiter
// should be stopped on shutdown.
func NewRouter(cfg *config.Config, deps *Deps) (http.Handler, *appmiddleware.RateLimiter) {
	r := chi.NewRouter()
	if cfg.TrustProxyHeaders {
		r.Use(chimiddleware.RealIP)
	}
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	authMw := appmiddleware.DenyAll
	if deps.Verifier != nil {
		authMw = appmiddleware.Auth(deps.Verifier)
	}

	sensitiveRL := appmiddleware.NewRateLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)

	healthH := handler.NewHealthHandler()
	otpH := handler.NewOTPHandler(deps.OTP)
	regH := handler.NewRegistrationHandler(deps.Registrations)

	r.Route("/v1", func(r chi.Router) {
		// ── Public routes (no auth) ──────────────────────────────────────────
		r.Get("/health-check/{action}", healthH.Ping)

		r.Group(func(r chi.Router) {
			r.Use(sensitiveRL.Limit)

			r.Post("/otp/send", otpH.Send)
			r.Post("/otp/verify", otpH.Verify)
			r.Post("/registrations", regH.Stage)
			r.Post("/registrations/resend", regH.Resend)
			r.Post("/registrations/confirm", regH.Confirm)
			r.Post("/registrations/commit", regH.Commit)
		})

		// ── Admin-only routes ────────────────────────────────────────────────
		if deps.Events != nil {
			r.Group(func(r chi.Router) {
				r.Use(authMw)
				r.Use(appmiddleware.RequireRole(domain.RoleAdmin))

				r.Get("/events", deps.Events.ServeWS)
			})
		}
	})

	return r, sensitiveRL
}
