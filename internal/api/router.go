/**
 * @description
 * This file sets up the HTTP router for the banking-service using the `chi`
 * routing library. It defines all the API routes and applies necessary middleware.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: The routing library.
 * - github.com/go-chi/cors: CORS handling for browser clients.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

// RouterOptions carries the middleware and settings of the router.
type RouterOptions struct {
	Auth           func(http.Handler) http.Handler
	RateLimit      func(http.Handler) http.Handler
	AllowedOrigins []string
	Logger         zerolog.Logger
}

// NewRouter creates and configures a new HTTP router.
func NewRouter(service BankingService, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(opts.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", SessionKeyHeader},
		ExposedHeaders:   []string{"Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: !allowsAnyOrigin(opts.AllowedOrigins),
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	h := NewHandler(service, opts.Logger)

	r.Route("/banking", func(r chi.Router) {
		if opts.Auth != nil {
			r.Use(opts.Auth)
		}
		if opts.RateLimit != nil {
			r.Use(opts.RateLimit)
		}

		r.Get("/catalog", h.ListCatalog)

		r.Route("/directory", func(r chi.Router) {
			r.Post("/", h.SetupDirectory)
			r.Get("/", h.ListDirectories)
			r.Get("/count", h.CountDirectories)

			r.Route("/{id}", func(r chi.Router) {
				r.Patch("/", h.RenameDirectory)
				r.Delete("/", h.DeleteDirectory)

				r.Get("/accounts", h.ListAccounts)
				r.Get("/accounts/{account_number}/movements", h.ListMovements)
				r.Get("/institutions", h.ListInstitutions)
				r.Post("/request-transfer", h.RequestTransfer)
				r.Post("/confirm-transfer", h.ConfirmTransfer)

				r.Post("/session", h.OpenSession)
				r.Delete("/session", h.CloseSession)
				r.Post("/session/client", h.SelectClient)
			})
		})
	})

	return r
}

// allowsAnyOrigin reports a wildcard origin list. Credentials are never
// shared with arbitrary origins.
func allowsAnyOrigin(origins []string) bool {
	if len(origins) == 0 {
		return true
	}
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}

// requestLogger logs one line per request with zerolog.
func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	logger = logger.With().Str("component", "http").Logger()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Info().
				Str("request_id", chimiddleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("took", time.Since(start)).
				Msg("request handled")
		})
	}
}
