// Package api is the HTTP surface: request decoding, status mapping and JSON
// shaping around the ledger, purchase and overdue services.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/safar/trade-credit/internal/config"
	"github.com/sirupsen/logrus"
)

// NewRouter mounts every route on a chi router with request ids, panic
// recovery, request logging and CORS.
func NewRouter(h *Handler, cfg config.ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Post("/businesses", h.CreateBusiness)
	r.Route("/businesses/{businessId}", func(r chi.Router) {
		r.Get("/products", h.ListProducts)
		r.Get("/orders", h.ListOrders)
		r.Get("/orders/{orderId}", h.GetOrder)
	})

	r.Post("/products", h.CreateProduct)
	r.Patch("/products/{productId}", h.UpdateProduct)

	r.Post("/purchase", h.Purchase)

	r.Post("/orders/{orderId}/settle", h.SettleOrder)

	r.Get("/overdue", h.OverdueSummary)
	r.Get("/overdue-businesses", h.OverdueBusinesses)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}

func requestLogger(log *logrus.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			log.WithFields(logrus.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      ww.Status(),
				"bytes":       ww.BytesWritten(),
				"duration_ms": time.Since(start).Milliseconds(),
				"request_id":  middleware.GetReqID(r.Context()),
			}).Info("request")
		})
	}
}
