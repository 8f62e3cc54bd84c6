package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/contacthub/contacthub/internal/auth"
	"github.com/contacthub/contacthub/internal/service"
	"github.com/contacthub/contacthub/pkg/health"
	"github.com/contacthub/contacthub/pkg/middleware"
	"github.com/contacthub/contacthub/pkg/ratelimit"
)

// Limiters bundles the per-route-group rate limiters.
type Limiters struct {
	// Read covers contact list and get-by-id.
	Read *ratelimit.Limiter
	// Write covers contact create, update, and delete.
	Write *ratelimit.Limiter
	// Query covers search and upcoming birthdays.
	Query *ratelimit.Limiter
}

// NewLimiters builds the default policy table on the given store:
// reads 2 req / 2s, writes 1 req / 5s, queries 1 req / 1s.
func NewLimiters(store ratelimit.Store) Limiters {
	return Limiters{
		Read:  ratelimit.New(store, "contacts-read", 2, 2*time.Second),
		Write: ratelimit.New(store, "contacts-write", 1, 5*time.Second),
		Query: ratelimit.New(store, "contacts-query", 1, time.Second),
	}
}

// Pinger reports backend connectivity. Satisfied by the pgx pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewRouter creates a chi router with all routes registered.
func NewRouter(
	authService *service.AuthService,
	userService *service.UserService,
	contactService *service.ContactService,
	gate *auth.Gate,
	limiters Limiters,
	db Pinger,
	healthHandler *health.Handler,
	logger *slog.Logger,
	corsConfig CORSConfig,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(CORS(corsConfig))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.PrometheusMetrics("contacthub"))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// Database healthcheck with a fixed error body.
	r.Get("/api/healthchecker", healthchecker(db, logger))

	// Auth endpoints (public)
	authHandler := NewAuthHandler(authService, logger)
	r.Route("/api/auth", func(r chi.Router) {
		r.With(ContentTypeJSON).Post("/signup", authHandler.Signup)
		// Login takes a form-encoded body, so no JSON content-type gate.
		r.Post("/login", authHandler.Login)
		r.Post("/refresh_token", authHandler.RefreshToken)
		r.Get("/confirmed_email/{token}", authHandler.ConfirmEmail)
	})

	authenticate := Authenticate(gate, logger)

	// Contact endpoints (auth required, rate limited per route group)
	contactHandler := NewContactHandler(contactService, logger)
	r.Route("/api/contacts", func(r chi.Router) {
		r.Use(authenticate)

		r.Group(func(r chi.Router) {
			r.Use(RateLimit(limiters.Read, logger))
			r.Get("/", contactHandler.List)
			r.Get("/{id}", contactHandler.Get)
		})

		r.Group(func(r chi.Router) {
			r.Use(RateLimit(limiters.Write, logger))
			r.With(ContentTypeJSON).Post("/", contactHandler.Create)
			r.With(ContentTypeJSON).Put("/{id}", contactHandler.Update)
			r.Delete("/{id}", contactHandler.Delete)
		})

		r.Group(func(r chi.Router) {
			r.Use(RateLimit(limiters.Query, logger))
			r.Get("/search/keyword={keyword}", contactHandler.Search)
			r.Get("/birthdays/{days}", contactHandler.UpcomingBirthdays)
		})
	})

	// User profile endpoints (auth required)
	userHandler := NewUserHandler(userService, logger)
	r.Route("/api/users", func(r chi.Router) {
		r.Use(authenticate)

		r.Get("/me/", userHandler.Me)
		r.Patch("/avatar", userHandler.UploadAvatar)
	})

	return r
}

// healthchecker pings the database. Any failure maps to the same fixed
// message so no driver detail leaks.
func healthchecker(db Pinger, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			logger.ErrorContext(r.Context(), "healthcheck database ping failed",
				slog.String("error", err.Error()),
			)
			writeJSON(w, http.StatusInternalServerError, response{
				Error: &errorResponse{Code: "INTERNAL_ERROR", Message: "Error connecting to the database"},
			})
			return
		}

		writeJSON(w, http.StatusOK, response{
			Data: map[string]string{"message": "Welcome to the contacts API"},
		})
	}
}
