package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Cheertaboi/qris-discount-service/internal/api/handlers"
	"github.com/Cheertaboi/qris-discount-service/internal/api/middleware"
	"github.com/Cheertaboi/qris-discount-service/internal/payment"
	"github.com/Cheertaboi/qris-discount-service/internal/service"
)

// Deps are the collaborators the HTTP surface is built on.
type Deps struct {
	Log           *zap.Logger
	Engine        *service.ReservationService
	Catalog       *service.CatalogService
	Provider      payment.Provider
	AdminSecret   string
	WebhookSecret string
	ApplyLimit    middleware.RateLimit
}

// NewRouter builds the HTTP router for the discount service
func NewRouter(deps Deps) http.Handler {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if deps.Provider == nil {
		deps.Provider = payment.StaticProvider{}
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(deps.Log))
	r.Use(middleware.Metrics)
	r.Use(chimw.Recoverer)

	transactions := handlers.NewTransactionHandler(deps.Log, deps.Engine, deps.Provider)
	webhooks := handlers.NewWebhookHandler(deps.Log, deps.Engine, deps.WebhookSecret)
	admin := handlers.NewAdminHandler(deps.Catalog)
	limiter := middleware.NewRateLimiter(deps.ApplyLimit)

	// Public transaction endpoints
	r.Route("/transactions", func(r chi.Router) {
		r.With(limiter.Middleware).Post("/", transactions.Create)
		r.Post("/{id}/cancel", transactions.Cancel)
		r.Get("/{id}/reservation", transactions.Reservation)
	})

	r.Post("/webhooks/payment", webhooks.Payment)

	// Admin endpoints
	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.RequireAdmin(deps.AdminSecret))
		r.Get("/vouchers", admin.ListVouchers)
		r.Put("/vouchers", admin.UpsertVoucher)
		r.Get("/vouchers/{code}", admin.GetVoucher)
		r.Post("/vouchers/{code}/disable", admin.DisableVoucher)
		r.Get("/monthly-promo", admin.GetMonthlyPromo)
		r.Put("/monthly-promo", admin.SetMonthlyPromo)
	})

	// health
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	return r
}
