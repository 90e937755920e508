package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"lora-osmnotes/gateway/internal/api"
	"lora-osmnotes/gateway/internal/db/repositories"
	"lora-osmnotes/gateway/internal/logging"
	"lora-osmnotes/gateway/internal/metrics"
	"lora-osmnotes/gateway/internal/middleware"
	"lora-osmnotes/gateway/internal/poscache"
)

// RegisterRoutes wires the loopback dashboard surface.
func RegisterRoutes(
	gdb *gorm.DB,
	reports *repositories.ReportRepository,
	cache *poscache.Cache,
	radio api.RadioStatus,
	metricsReg *metrics.Registry,
	upSince time.Time,
) http.Handler {

	r := chi.NewRouter()

	// global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(middleware.RateLimit)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	logging.Info("Router initialized with logging and rate-limit middleware")

	r.Get("/healthz", api.HealthCheckHandler(gdb, radio, upSince))

	handlers := api.NewHandlers(reports, cache)
	r.Get("/api/queue", handlers.GetQueue)
	r.Get("/api/reports", handlers.GetReports)
	r.Get("/api/nodes", handlers.GetNodes)

	r.Handle("/metrics", promhttp.HandlerFor(metricsReg.Gatherer(), promhttp.HandlerOpts{}))

	return r
}
