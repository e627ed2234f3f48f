/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging (logrus, JSON)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the operator frontend

ROUTE GROUPS:
  /api/submissions/*    Submission lifecycle and rows
  /api/operations/*     Weekly operation edits
  /api/stocks/*         Monthly stock edits
  /api/periods/*        Week and month options
  /api/alerts           Pending filings
  /api/admin/*          History import
  /health               Liveness

SECURITY NOTE:
  No authentication middleware. The server is meant to run behind the
  operator's internal gateway.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/submissions", func(r chi.Router) {
			r.Get("/", h.ListSubmissions)
			r.Post("/", h.CreateSubmission)
			r.Post("/validate", h.ValidateSubmission)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetSubmission)
				r.Post("/send", h.SendSubmission)
				r.Post("/rectify", h.RequestRectification)
				r.Post("/cancel-rectification", h.CancelRectification)
				r.Post("/sync", h.SyncSubmission)
				r.Get("/responses", h.ListResponses)

				r.Post("/operations", h.AddOperation)
				r.Post("/stocks", h.AddStock)
				r.Post("/stock/generate", h.GenerateStock)
				r.Delete("/stock", h.ClearStock)
			})
		})

		r.Route("/operations", func(r chi.Router) {
			r.Put("/{opID}", h.UpdateOperation)
			r.Delete("/{opID}", h.DeleteOperation)
		})

		r.Route("/stocks", func(r chi.Router) {
			r.Put("/{stockID}", h.UpdateStock)
			r.Delete("/{stockID}", h.DeleteStock)
		})

		r.Route("/periods", func(r chi.Router) {
			r.Get("/weeks", h.ListWeeks)
			r.Get("/months", h.ListMonths)
		})

		r.Get("/alerts", h.ListAlerts)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/import", h.ImportHistory)
		})
	})

	return r
}

// requestLogger logs one line per request through logrus.
func requestLogger(logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.WithFields(logrus.Fields{
					"request_id": middleware.GetReqID(r.Context()),
					"method":     r.Method,
					"path":       r.URL.Path,
					"status":     ww.Status(),
					"bytes":      ww.BytesWritten(),
					"duration":   time.Since(start).String(),
				}).Info("request")
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
