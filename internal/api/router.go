package api

import (
	"net/http"

	"taskstream/internal/api/middleware"

	"github.com/go-chi/chi/v5"
	ChiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(h *Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(ChiMiddleware.Logger)
	r.Use(ChiMiddleware.Recoverer)
	r.Use(ChiMiddleware.RequestID)

	r.Get("/health", h.Health)

	r.Route("/transactions", func(r chi.Router) {
		r.Get("/", h.ListTransactions)
		r.With(middleware.IdempotencyKey).Post("/create", h.CreateTransaction)
		r.With(middleware.IdempotencyKey).Post("/async-process", h.AsyncProcessTransaction)
		r.Get("/stream", h.Stream)
		r.Get("/{id}", h.GetTransaction)
	})

	r.Route("/summaries", func(r chi.Router) {
		r.Get("/", h.ListSummaries)
		r.With(middleware.IdempotencyKey).Post("/async", h.CreateSummaryAsync)
		r.Get("/{id}", h.GetSummary)
	})

	r.Get("/ws/stream", h.Stream)

	r.Handle("/metrics", promhttp.Handler())

	return r
}
